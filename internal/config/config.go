package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the global ~/.messaging/config.toml.
type Config struct {
	DefaultProfile string         `toml:"default_profile"`
	Log            LogConfig      `toml:"log"`
	Executor       ExecutorConfig `toml:"executor"`
	ReadSide       ReadSideConfig `toml:"read_side"`
	Metrics        MetricsConfig  `toml:"metrics"`
	NATS           NATSConfig     `toml:"nats"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Stderr bool   `toml:"stderr"`
}

type ExecutorConfig struct {
	MaxRetries      int `toml:"max_retries"`
	RetryBackoffMS  int `toml:"retry_backoff_ms"`
	DeferredWorkers int `toml:"deferred_workers"`
}

// RetryBackoff returns the backoff as a duration.
func (e ExecutorConfig) RetryBackoff() time.Duration {
	return time.Duration(e.RetryBackoffMS) * time.Millisecond
}

type ReadSideConfig struct {
	FavoriteLookupTimeoutMS int `toml:"favorite_lookup_timeout_ms"`
}

// FavoriteLookupTimeout returns the timeout as a duration.
func (r ReadSideConfig) FavoriteLookupTimeout() time.Duration {
	return time.Duration(r.FavoriteLookupTimeoutMS) * time.Millisecond
}

// MetricsConfig holds the HTTP side port. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `toml:"addr"`
}

// NATSConfig holds the change bridge settings. An empty URL disables it.
type NATSConfig struct {
	URL           string `toml:"url"`
	SubjectPrefix string `toml:"subject_prefix"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		DefaultProfile: "main",
		Log:            LogConfig{Level: "info", Stderr: true},
		Executor: ExecutorConfig{
			MaxRetries:      3,
			RetryBackoffMS:  50,
			DeferredWorkers: 4,
		},
		ReadSide: ReadSideConfig{FavoriteLookupTimeoutMS: 500},
		NATS:     NATSConfig{SubjectPrefix: "messaging"},
	}
}

// Load reads config from the given path. Returns nil and error if file missing.
// Keys absent from the file keep their Default values.
func Load(path string) (*Config, error) {
	cfg := Default()
	_, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault is Load, except a missing file yields Default.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
