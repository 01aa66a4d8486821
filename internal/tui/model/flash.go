package model

import (
	"sync"
	"time"
)

// Level grades a flash message.
type Level int

const (
	FlashInfo Level = iota
	FlashWarn
	FlashErr
)

// Flash holds transient notification messages.
type Flash struct {
	mu      sync.RWMutex
	message string
	level   Level
	expires time.Time
	now     func() time.Time
}

func (f *Flash) clock() time.Time {
	if f.now != nil {
		return f.now()
	}
	return time.Now()
}

// Set stores an info message that expires after the given duration.
func (f *Flash) Set(msg string, d time.Duration) {
	f.SetLevel(FlashInfo, msg, d)
}

// SetLevel stores a message of the given level.
func (f *Flash) SetLevel(level Level, msg string, d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.message = msg
	f.level = level
	f.expires = f.clock().Add(d)
}

// Get returns the current flash message, or empty if expired.
func (f *Flash) Get() string {
	msg, _ := f.Current()
	return msg
}

// Current returns the live message and its level.
func (f *Flash) Current() (string, Level) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.clock().After(f.expires) {
		return "", FlashInfo
	}
	return f.message, f.level
}
