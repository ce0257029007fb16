package status

import (
	"testing"
	"time"

	"github.com/peerflex/peerflex/internal/bus"
)

func TestInitialState(t *testing.T) {
	m := NewMachine(nil)
	if m.Current() != Booting {
		t.Errorf("initial state = %s, want %s", m.Current(), Booting)
	}
}

func TestValidTransitionChain(t *testing.T) {
	m := NewMachine(nil)
	chain := []State{Connecting, Live, Reconnecting, Connecting, Live}
	for _, s := range chain {
		if err := m.Transition(s); err != nil {
			t.Fatalf("transition to %s: %v", s, err)
		}
	}
	if m.Current() != Live {
		t.Errorf("final state = %s, want %s", m.Current(), Live)
	}
}

func TestInvalidTransition(t *testing.T) {
	m := NewMachine(nil)
	// Booting cannot jump straight to Live.
	if err := m.Transition(Live); err == nil {
		t.Fatal("expected error for Booting -> Live")
	}
	if m.Current() != Booting {
		t.Errorf("state changed on invalid transition: %s", m.Current())
	}
}

func TestDegradedRecovers(t *testing.T) {
	m := NewMachine(nil)
	for _, s := range []State{Connecting, Live, Degraded, Reconnecting, Live} {
		if err := m.Transition(s); err != nil {
			t.Fatalf("transition to %s: %v", s, err)
		}
	}
}

func TestTransitionPublishesStatusChange(t *testing.T) {
	b := bus.New()
	m := NewMachine(b)

	ch, unsub := b.Subscribe("feed.", 10)
	defer unsub()

	if err := m.Transition(Connecting); err != nil {
		t.Fatal(err)
	}

	select {
	case evt := <-ch:
		change, ok := evt.Payload.(StatusChange)
		if !ok {
			t.Fatalf("payload type %T, want StatusChange", evt.Payload)
		}
		if change.From != Booting || change.To != Connecting {
			t.Errorf("change = %+v, want Booting -> Connecting", change)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for status change event")
	}
}
