package status

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/matheus3301/gitchat/internal/bus"
)

// State represents a daemon runtime state.
type State string

const (
	Booting State = "BOOTING"
	Ready   State = "READY"
	// Degraded means local writes succeed but the last push or pull failed.
	Degraded State = "DEGRADED"
	Error    State = "ERROR"
)

// validTransitions defines allowed state transitions.
var validTransitions = map[State][]State{
	Booting:  {Ready, Error},
	Ready:    {Degraded, Error},
	Degraded: {Ready, Error},
	Error:    {Booting},
}

// Snapshot is the tracker's state for /status and the stats command.
type Snapshot struct {
	State        State
	Posts        int
	PushesOK     int
	PushesFailed int
	LastPush     string
	LastPull     string
}

// Tracker holds the daemon's runtime state and counters. It subscribes to
// board events and flips between Ready and Degraded on push outcomes.
type Tracker struct {
	mu      sync.RWMutex
	current State
	snap    Snapshot
	bus     *bus.Bus
	cancel  context.CancelFunc
}

// NewTracker creates a tracker starting in Booting state.
func NewTracker(b *bus.Bus) *Tracker {
	return &Tracker{current: Booting, bus: b}
}

// Current returns the current state.
func (t *Tracker) Current() State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.current
}

// Transition attempts to move to a new state. Returns error if the
// transition is invalid.
func (t *Tracker) Transition(to State) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.transitionLocked(to)
}

func (t *Tracker) transitionLocked(to State) error {
	if to == t.current {
		return nil
	}
	allowed := validTransitions[t.current]
	if !slices.Contains(allowed, to) {
		return fmt.Errorf("invalid transition from %s to %s", t.current, to)
	}
	t.current = to
	return nil
}

// Snapshot returns the current state and counters.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s := t.snap
	s.State = t.current
	return s
}

// Start subscribes to board events and updates counters until ctx ends.
func (t *Tracker) Start(ctx context.Context) {
	ctx, t.cancel = context.WithCancel(ctx)
	ch, unsub := t.bus.Subscribe("", 256)

	go func() {
		defer unsub()
		for {
			select {
			case evt := <-ch:
				t.handle(evt)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the tracker.
func (t *Tracker) Stop() {
	if t.cancel != nil {
		t.cancel()
	}
}

func (t *Tracker) handle(evt bus.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := evt.Timestamp.UTC().Format(time.RFC3339)
	switch evt.Kind {
	case bus.KindMessageCreated:
		t.snap.Posts++
	case bus.KindPushOK:
		t.snap.PushesOK++
		t.snap.LastPush = now
		_ = t.transitionLocked(Ready)
	case bus.KindPushFailed:
		t.snap.PushesFailed++
		_ = t.transitionLocked(Degraded)
	case bus.KindPullCompleted:
		t.snap.LastPull = now
	}
}
