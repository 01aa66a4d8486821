// Package busbridge forwards change hints from the in-process bus to NATS so
// that other processes on the machine can refresh their own views.
package busbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/sherry5707/Messaging/internal/bus"
	"github.com/sherry5707/Messaging/internal/metrics"
)

// Publisher is the part of *nats.Conn the bridge uses.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Config holds the bridge settings.
type Config struct {
	URL           string
	SubjectPrefix string
	Profile       string
}

// Hint is the JSON body of a forwarded change hint.
type Hint struct {
	ID             string    `json:"id"`
	Topic          string    `json:"topic"`
	ConversationID string    `json:"conversation_id,omitempty"`
	Timestamp      time.Time `json:"ts"`
	Status         string    `json:"status,omitempty"`
}

// Connect dials NATS with reconnect handling logged through logger.
func Connect(url string, logger *zap.Logger) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name("messagingd"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			logger.Error("NATS error", zap.Error(err))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return nc, nil
}

// Bridge copies every bus hint to a NATS subject.
type Bridge struct {
	bus    *bus.Bus
	pub    Publisher
	prefix string
	logger *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a bridge publishing under <prefix>.<profile>.
func New(b *bus.Bus, pub Publisher, cfg Config, logger *zap.Logger) *Bridge {
	prefix := cfg.SubjectPrefix
	if prefix == "" {
		prefix = "messaging"
	}
	return &Bridge{
		bus:    b,
		pub:    pub,
		prefix: prefix + "." + cfg.Profile,
		logger: logger,
	}
}

// Subject returns the subject a hint with topic is published on.
func (br *Bridge) Subject(topic string) string {
	return br.prefix + "." + topic
}

// Start begins forwarding. It returns immediately.
func (br *Bridge) Start(ctx context.Context) {
	br.mu.Lock()
	defer br.mu.Unlock()
	if br.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	br.cancel = cancel
	br.done = make(chan struct{})
	sub := br.bus.Subscribe("")

	go func(done chan struct{}) {
		defer close(done)
		defer sub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case <-sub.Ready():
				for _, evt := range sub.Drain() {
					br.forward(evt)
				}
			}
		}
	}(br.done)
}

// Stop ends forwarding and waits for the loop to exit.
func (br *Bridge) Stop() {
	br.mu.Lock()
	cancel, done := br.cancel, br.done
	br.cancel, br.done = nil, nil
	br.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (br *Bridge) forward(evt bus.Event) {
	hint := Hint{
		ID:             uuid.NewString(),
		Topic:          evt.Topic,
		ConversationID: evt.ConversationID,
		Timestamp:      evt.Timestamp,
	}
	if s, ok := evt.Payload.(fmt.Stringer); ok {
		hint.Status = s.String()
	}
	data, err := json.Marshal(hint)
	if err != nil {
		br.logger.Error("encode hint", zap.Error(err))
		return
	}
	subject := br.Subject(evt.Topic)
	if err := br.pub.Publish(subject, data); err != nil {
		br.logger.Warn("forward hint", zap.String("subject", subject), zap.Error(err))
		return
	}
	metrics.BridgeForwarded.WithLabelValues(evt.Topic).Inc()
}
