// Package listdata owns the read side of the conversation and favorites
// lists: it re-queries the store when the change bus hints at a change and
// hands a fresh, sectioned snapshot to whoever is bound.
package listdata

import (
	"context"
	"errors"
	"sync"

	"github.com/sherry5707/Messaging/internal/bus"
)

// ErrBound is returned by Bind when a listener is already bound.
var ErrBound = errors.New("listener already bound")

// watcher runs refresh once on bind and again after every bus hint or kick,
// until unbound.
type watcher struct {
	mu     sync.Mutex
	kick   chan struct{}
	sub    *bus.Subscription
	cancel context.CancelFunc
	done   chan struct{}
}

func (w *watcher) bound() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cancel != nil
}

// start runs the loop. match filters which drained hints cause a refresh;
// nil accepts all of them.
func (w *watcher) start(ctx context.Context, sub *bus.Subscription, match func(bus.Event) bool, refresh func(context.Context)) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		sub.Close()
		return ErrBound
	}
	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.sub = sub
	w.kick = make(chan struct{}, 1)
	w.done = make(chan struct{})
	kick, done := w.kick, w.done

	go func() {
		defer close(done)
		defer sub.Close()
		refresh(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-sub.Ready():
				if !relevant(sub.Drain(), match) {
					continue
				}
			case <-kick:
			}
			refresh(ctx)
		}
	}()
	return nil
}

// poke requests a refresh without waiting for it.
func (w *watcher) poke() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.kick == nil {
		return
	}
	select {
	case w.kick <- struct{}{}:
	default:
	}
}

// stop cancels the loop and waits for it. A refresh in flight finishes but
// its result is dropped by the caller's bound check.
func (w *watcher) stop() {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.cancel, w.done, w.kick, w.sub = nil, nil, nil, nil
	w.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func relevant(events []bus.Event, match func(bus.Event) bool) bool {
	if match == nil {
		return len(events) > 0
	}
	for _, evt := range events {
		if match(evt) {
			return true
		}
	}
	return false
}
