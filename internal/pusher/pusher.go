// Package pusher pushes the mirror worktree to the main repository in the
// background. Posts land locally first; the pusher picks up message.created
// events and syncs the remote on a best-effort basis, retrying on a slow
// ticker while pushes keep failing.
package pusher

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/gitchat/internal/bus"
	"github.com/matheus3301/gitchat/internal/remote"
)

// RetryInterval is how often a failed push is retried when no new
// messages arrive to trigger one.
const RetryInterval = 30 * time.Second

// RemoteSyncer is the part of the remote syncer the pusher needs.
type RemoteSyncer interface {
	Push(force bool) (*remote.PushResult, error)
}

// Pusher drains pending commits to the main repository.
type Pusher struct {
	syncer RemoteSyncer
	bus    *bus.Bus
	logger *zap.Logger
	cancel context.CancelFunc
}

// New creates a pusher. Start must be called before it does anything.
func New(s RemoteSyncer, b *bus.Bus, logger *zap.Logger) *Pusher {
	return &Pusher{
		syncer: s,
		bus:    b,
		logger: logger.Named("pusher"),
	}
}

// Start begins listening for new messages and pushing them.
func (p *Pusher) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	go p.loop(ctx)
}

// Stop stops the pusher loop.
func (p *Pusher) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
}

func (p *Pusher) loop(ctx context.Context) {
	ch, unsub := p.bus.Subscribe("message.", 64)
	defer unsub()

	ticker := time.NewTicker(RetryInterval)
	defer ticker.Stop()

	pending := false
	for {
		select {
		case <-ch:
			// Drain any queued events; one push covers them all.
			for len(ch) > 0 {
				<-ch
			}
			pending = !p.push()
		case <-ticker.C:
			if pending {
				pending = !p.push()
			}
		case <-ctx.Done():
			return
		}
	}
}

// push syncs once and reports success. Failures are published on the bus
// so the status tracker can flag the daemon as degraded.
func (p *Pusher) push() bool {
	res, err := p.syncer.Push(false)
	if err != nil {
		p.logger.Warn("push failed", zap.Error(err))
		p.bus.Publish(bus.Event{
			Kind:      bus.KindPushFailed,
			Timestamp: time.Now(),
			Payload:   err.Error(),
		})
		return false
	}
	if res.Pushed {
		p.logger.Info("pushed to main repository", zap.String("commit", res.CommitHash))
		p.bus.Publish(bus.Event{
			Kind:      bus.KindPushOK,
			Timestamp: time.Now(),
			Payload:   res.CommitHash,
		})
	}
	return true
}
