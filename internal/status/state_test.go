package status

import (
	"testing"

	"github.com/sherry5707/Messaging/internal/bus"
)

func TestInitialState(t *testing.T) {
	m := NewMachine(nil)
	if m.Current() != Booting {
		t.Errorf("initial state = %s, want BOOTING", m.Current())
	}
	if m.Accepting() {
		t.Error("BOOTING should not accept commands")
	}
}

func TestValidTransitions(t *testing.T) {
	tests := []struct {
		from State
		to   State
	}{
		{Booting, Replaying},
		{Booting, Error},
		{Booting, Draining},
		{Replaying, Ready},
		{Replaying, Error},
		{Ready, Draining},
		{Draining, Stopped},
		{Error, Booting},
		{Error, Draining},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			m := NewMachine(nil)
			walkTo(t, m, tt.from)
			if err := m.Transition(tt.to); err != nil {
				t.Errorf("Transition(%s -> %s) error = %v", tt.from, tt.to, err)
			}
			if m.Current() != tt.to {
				t.Errorf("state = %s, want %s", m.Current(), tt.to)
			}
		})
	}
}

func TestInvalidTransitions(t *testing.T) {
	tests := []struct {
		from State
		to   State
	}{
		{Booting, Ready},
		{Ready, Replaying},
		{Stopped, Booting},
		{Draining, Ready},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			m := NewMachine(nil)
			walkTo(t, m, tt.from)
			if err := m.Transition(tt.to); err == nil {
				t.Errorf("Transition(%s -> %s) should fail", tt.from, tt.to)
			}
			if m.Current() != tt.from {
				t.Errorf("state = %s, want %s (unchanged)", m.Current(), tt.from)
			}
		})
	}
}

func TestAccepting(t *testing.T) {
	m := NewMachine(nil)
	walkTo(t, m, Replaying)
	if !m.Accepting() {
		t.Error("REPLAYING should accept commands")
	}
	_ = m.Transition(Ready)
	if !m.Accepting() {
		t.Error("READY should accept commands")
	}
	_ = m.Transition(Draining)
	if m.Accepting() {
		t.Error("DRAINING should not accept commands")
	}
}

func TestTransitionEmitsEvent(t *testing.T) {
	b := bus.New()
	sub := b.Subscribe(bus.TopicStatus)
	defer sub.Close()

	m := NewMachine(b)
	if err := m.Transition(Replaying); err != nil {
		t.Fatal(err)
	}

	<-sub.Ready()
	events := sub.Drain()
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
	if events[0].Topic != bus.TopicStatus {
		t.Errorf("event topic = %q, want %s", events[0].Topic, bus.TopicStatus)
	}
	change, ok := events[0].Payload.(StatusChange)
	if !ok {
		t.Fatalf("payload type = %T, want StatusChange", events[0].Payload)
	}
	if change.From != Booting || change.To != Replaying {
		t.Errorf("change = %v -> %v, want BOOTING -> REPLAYING", change.From, change.To)
	}
}

func TestEveryTransitionIsDelivered(t *testing.T) {
	b := bus.New()
	sub := b.Subscribe(bus.TopicStatus)
	defer sub.Close()

	m := NewMachine(b)
	walkTo(t, m, Stopped)

	<-sub.Ready()
	events := sub.Drain()
	if len(events) != 4 {
		t.Fatalf("events = %d, want 4 (status changes carry payloads and are not coalesced)", len(events))
	}
	last := events[3].Payload.(StatusChange)
	if last.To != Stopped {
		t.Errorf("last change to %s, want STOPPED", last.To)
	}
}

// TestFullLifecycle walks BOOTING → REPLAYING → READY → DRAINING → STOPPED.
func TestFullLifecycle(t *testing.T) {
	m := NewMachine(nil)
	for _, s := range []State{Replaying, Ready, Draining, Stopped} {
		if err := m.Transition(s); err != nil {
			t.Fatalf("Transition to %s: %v (current: %s)", s, err, m.Current())
		}
	}
	if m.Current() != Stopped {
		t.Errorf("final state = %s, want STOPPED", m.Current())
	}
}

// walkTo is a helper that transitions the machine to a target state.
func walkTo(t *testing.T, m *Machine, target State) {
	t.Helper()
	paths := map[State][]State{
		Booting:   {},
		Replaying: {Replaying},
		Ready:     {Replaying, Ready},
		Draining:  {Replaying, Ready, Draining},
		Stopped:   {Replaying, Ready, Draining, Stopped},
		Error:     {Error},
	}
	for _, s := range paths[target] {
		if err := m.Transition(s); err != nil {
			t.Fatalf("walkTo(%s): %v", target, err)
		}
	}
}
