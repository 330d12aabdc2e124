// Package poller keeps local clones of the pull-source repositories fresh.
// It runs a fetch cycle on a fixed interval so the merged feed reflects
// other boards without blocking reads on network calls.
package poller

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/gitchat/internal/bus"
	"github.com/matheus3301/gitchat/internal/registry"
	"github.com/matheus3301/gitchat/internal/remote"
)

// Fetcher is the part of the remote syncer the poller needs.
type Fetcher interface {
	FetchAll(identifiers []string) []remote.TreeResult
}

// Poller periodically syncs pull-source clones.
type Poller struct {
	fetcher  Fetcher
	reg      *registry.Registry
	interval time.Duration
	bus      *bus.Bus
	logger   *zap.Logger
	cancel   context.CancelFunc
}

func New(f Fetcher, reg *registry.Registry, interval time.Duration, b *bus.Bus, logger *zap.Logger) *Poller {
	return &Poller{
		fetcher:  f,
		reg:      reg,
		interval: interval,
		bus:      b,
		logger:   logger.Named("poller"),
	}
}

// Start runs an immediate cycle and then polls on the configured interval.
// A non-positive interval disables the poller entirely.
func (p *Poller) Start(ctx context.Context) {
	if p.interval <= 0 {
		return
	}
	ctx, p.cancel = context.WithCancel(ctx)

	go func() {
		p.Cycle()
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				p.Cycle()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the poll loop.
func (p *Poller) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
}

// Cycle fetches every pull-source once. A repo that fails to sync is
// logged and skipped; the cycle still completes for the rest.
func (p *Poller) Cycle() []remote.TreeResult {
	sources := p.reg.PullSources()
	ids := make([]string, 0, len(sources))
	for _, e := range sources {
		ids = append(ids, e.Identifier)
	}
	if len(ids) == 0 {
		return nil
	}

	results := p.fetcher.FetchAll(ids)

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	p.logger.Info("pull cycle completed",
		zap.Int("sources", len(ids)),
		zap.Int("failed", failed))
	p.bus.Publish(bus.Event{
		Kind:      bus.KindPullCompleted,
		Timestamp: time.Now(),
		Payload:   map[string]int{"sources": len(ids), "failed": failed},
	})
	return results
}
