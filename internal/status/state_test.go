package status

import (
	"context"
	"testing"
	"time"

	"github.com/matheus3301/gitchat/internal/bus"
)

func TestInitialState(t *testing.T) {
	tr := NewTracker(bus.New())
	if tr.Current() != Booting {
		t.Errorf("initial state = %s, want %s", tr.Current(), Booting)
	}
}

func TestValidTransition(t *testing.T) {
	tr := NewTracker(bus.New())
	if err := tr.Transition(Ready); err != nil {
		t.Fatalf("Booting -> Ready: %v", err)
	}
	if err := tr.Transition(Degraded); err != nil {
		t.Fatalf("Ready -> Degraded: %v", err)
	}
	if err := tr.Transition(Ready); err != nil {
		t.Fatalf("Degraded -> Ready: %v", err)
	}
}

func TestInvalidTransition(t *testing.T) {
	tr := NewTracker(bus.New())
	if err := tr.Transition(Degraded); err == nil {
		t.Error("Booting -> Degraded should fail")
	}
}

func TestSelfTransitionIsNoop(t *testing.T) {
	tr := NewTracker(bus.New())
	if err := tr.Transition(Booting); err != nil {
		t.Errorf("self transition: %v", err)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestCountersFromEvents(t *testing.T) {
	b := bus.New()
	tr := NewTracker(b)
	if err := tr.Transition(Ready); err != nil {
		t.Fatal(err)
	}
	tr.Start(context.Background())
	defer tr.Stop()

	now := time.Now()
	b.Publish(bus.Event{Kind: bus.KindMessageCreated, Timestamp: now})
	b.Publish(bus.Event{Kind: bus.KindMessageCreated, Timestamp: now})
	b.Publish(bus.Event{Kind: bus.KindPushOK, Timestamp: now})
	b.Publish(bus.Event{Kind: bus.KindPullCompleted, Timestamp: now})

	waitFor(t, func() bool {
		s := tr.Snapshot()
		return s.Posts == 2 && s.PushesOK == 1 && s.LastPull != ""
	})

	s := tr.Snapshot()
	if s.State != Ready {
		t.Errorf("state = %s, want %s", s.State, Ready)
	}
	if s.LastPush == "" {
		t.Error("LastPush not recorded")
	}
}

func TestPushFailureDegrades(t *testing.T) {
	b := bus.New()
	tr := NewTracker(b)
	if err := tr.Transition(Ready); err != nil {
		t.Fatal(err)
	}
	tr.Start(context.Background())
	defer tr.Stop()

	b.Publish(bus.Event{Kind: bus.KindPushFailed, Timestamp: time.Now()})
	waitFor(t, func() bool { return tr.Current() == Degraded })

	b.Publish(bus.Event{Kind: bus.KindPushOK, Timestamp: time.Now()})
	waitFor(t, func() bool { return tr.Current() == Ready })

	s := tr.Snapshot()
	if s.PushesFailed != 1 || s.PushesOK != 1 {
		t.Errorf("counters = %+v", s)
	}
}
