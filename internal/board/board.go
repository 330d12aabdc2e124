package board

import (
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/gitchat/internal/bus"
	"github.com/matheus3301/gitchat/internal/mirror"
	"github.com/matheus3301/gitchat/internal/remote"
	"github.com/matheus3301/gitchat/internal/store"
)

// Board is the write path of the message board. A post lands in the local
// store and the git mirror in one pass; pushing to the remote happens
// asynchronously off the bus.
type Board struct {
	db     *store.DB
	mirror *mirror.Mirror
	syncer *remote.Syncer
	bus    *bus.Bus
	logger *zap.Logger
}

func New(db *store.DB, m *mirror.Mirror, s *remote.Syncer, b *bus.Bus, logger *zap.Logger) *Board {
	return &Board{
		db:     db,
		mirror: m,
		syncer: s,
		bus:    b,
		logger: logger.Named("board"),
	}
}

// Post validates and stores a message, writes its mirror file and commits it.
// A failed mirror write unwinds the store row so no partial message is ever
// readable; a failed commit leaves the row in place for Recover to pick up.
func (b *Board) Post(content string) (*store.Message, error) {
	unlock := b.syncer.LockWorktree()
	defer unlock()

	msg, err := b.db.Append(content)
	if err != nil {
		return nil, err
	}

	if _, err := b.mirror.Write(msg); err != nil {
		b.logger.Error("mirror write failed", zap.String("id", msg.ID), zap.Error(err))
		if delErr := b.db.Delete(msg.ID); delErr != nil {
			b.logger.Error("unwind of stored row failed",
				zap.String("id", msg.ID), zap.Error(delErr))
		}
		return nil, err
	}

	hash, err := b.mirror.Commit([]string{msg.ID})
	if err != nil {
		b.logger.Error("mirror commit failed", zap.String("id", msg.ID), zap.Error(err))
		return msg, err
	}

	if err := b.db.SetCommitHash(msg.ID, hash); err != nil {
		return msg, err
	}
	msg.CommitHash = hash

	b.bus.Publish(bus.Event{
		Kind:      bus.KindMessageCreated,
		Timestamp: time.Now(),
		Payload:   msg.ID,
	})
	b.logger.Info("message posted",
		zap.String("id", msg.ID),
		zap.String("commit", hash))
	return msg, nil
}

// Recover commits messages that made it into the store but not into a git
// commit, typically after a crash mid-post. Returns how many were recovered.
func (b *Board) Recover() (int, error) {
	unlock := b.syncer.LockWorktree()
	defer unlock()

	pending, err := b.db.Uncommitted()
	if err != nil {
		return 0, err
	}
	if len(pending) == 0 {
		return 0, nil
	}

	ids := make([]string, 0, len(pending))
	for i := range pending {
		msg := &pending[i]
		if _, err := b.mirror.Write(msg); err != nil {
			var conflict *mirror.ConflictError
			if !errors.As(err, &conflict) {
				b.logger.Warn("recover: mirror write failed",
					zap.String("id", msg.ID), zap.Error(err))
				continue
			}
			// File already exists from the failed attempt; restage it.
		}
		ids = append(ids, msg.ID)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	hash, err := b.mirror.Commit(ids)
	if err != nil {
		if errors.Is(err, mirror.ErrNothingStaged) {
			return 0, nil
		}
		return 0, err
	}
	for _, id := range ids {
		if err := b.db.SetCommitHash(id, hash); err != nil {
			return 0, err
		}
	}
	b.logger.Info("recovered uncommitted messages",
		zap.Int("count", len(ids)), zap.String("commit", hash))
	return len(ids), nil
}
