package bus

import (
	"strings"
	"sync"
)

// Bus is an in-process publish/subscribe change bus with topic-prefix
// filtering. Publish never blocks: each subscription keeps a coalesced set
// of pending hints and a one-slot wake-up signal.
type Bus struct {
	mu   sync.RWMutex
	subs map[int]*Subscription
	next int
}

type hintKey struct {
	topic          string
	conversationID string
}

// Subscription is a live registration on the bus. Close releases it.
type Subscription struct {
	bus            *Bus
	id             int
	prefix         string
	conversationID string

	ready chan struct{}

	mu      sync.Mutex
	pending []Event
	seen    map[hintKey]struct{}
	closed  bool
	once    sync.Once
}

// New creates a new change bus.
func New() *Bus {
	return &Bus{
		subs: make(map[int]*Subscription),
	}
}

// Publish delivers evt to every subscription whose prefix matches its topic.
// A hint already pending on a subscription absorbs an identical one.
func (b *Bus) Publish(evt Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if !strings.HasPrefix(evt.Topic, sub.prefix) {
			continue
		}
		if sub.conversationID != "" && evt.Topic == TopicConversation && evt.ConversationID != sub.conversationID {
			continue
		}
		sub.push(evt)
	}
}

// Subscribe registers for events whose topic starts with prefix. An empty
// prefix receives everything.
func (b *Bus) Subscribe(prefix string) *Subscription {
	return b.subscribe(prefix, "")
}

// SubscribeConversation receives conversation.changed events for id only.
func (b *Bus) SubscribeConversation(id string) *Subscription {
	return b.subscribe(TopicConversation, id)
}

func (b *Bus) subscribe(prefix, conversationID string) *Subscription {
	sub := &Subscription{
		bus:            b,
		prefix:         prefix,
		conversationID: conversationID,
		ready:          make(chan struct{}, 1),
		seen:           make(map[hintKey]struct{}),
	}
	b.mu.Lock()
	sub.id = b.next
	b.next++
	b.subs[sub.id] = sub
	b.mu.Unlock()
	return sub
}

// Len returns the number of live subscriptions.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func (s *Subscription) push(evt Event) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	key := hintKey{topic: evt.Topic, conversationID: evt.ConversationID}
	if _, dup := s.seen[key]; !dup || evt.Payload != nil {
		s.seen[key] = struct{}{}
		s.pending = append(s.pending, evt)
	}
	s.mu.Unlock()

	select {
	case s.ready <- struct{}{}:
	default:
	}
}

// Ready is signalled whenever hints are pending. The channel is never closed.
func (s *Subscription) Ready() <-chan struct{} {
	return s.ready
}

// Drain returns and clears the pending hints in arrival order.
func (s *Subscription) Drain() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.pending
	s.pending = nil
	clear(s.seen)
	return out
}

// Close unregisters the subscription and discards anything pending. It is
// safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.bus.mu.Lock()
		delete(s.bus.subs, s.id)
		s.bus.mu.Unlock()

		s.mu.Lock()
		s.closed = true
		s.pending = nil
		s.mu.Unlock()
	})
}
