// Package merge produces the board's combined feed: the union of the local
// store and every pull-source's tree, deduplicated by message id and
// ordered by timestamp.
package merge

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/matheus3301/gitchat/internal/mirror"
	"github.com/matheus3301/gitchat/internal/registry"
	"github.com/matheus3301/gitchat/internal/remote"
	"github.com/matheus3301/gitchat/internal/store"
	"go.uber.org/zap"
)

// TreeSource hands out up-to-date local trees for repository identifiers.
// *remote.Syncer satisfies it; tests inject a directory-backed fake.
type TreeSource interface {
	FetchAll(identifiers []string) []remote.TreeResult
}

// Engine merges the local store with pulled trees.
type Engine struct {
	db     *store.DB
	reg    *registry.Registry
	trees  TreeSource
	logger *zap.Logger
}

// NewEngine creates a merge engine.
func NewEngine(db *store.DB, reg *registry.Registry, trees TreeSource, logger *zap.Logger) *Engine {
	return &Engine{db: db, reg: reg, trees: trees, logger: logger}
}

// Feed returns the deduplicated union of the local store and every
// registered pull-source (plus main when includeMain), ordered by
// timestamp ascending with id tiebreak. When the same id appears in
// several sources the local store's copy wins, then the earliest source
// in registry order. A positive limit keeps only the most recent entries,
// still in ascending order.
func (e *Engine) Feed(includeMain bool, limit int) ([]store.Message, error) {
	local, err := e.db.ListAll()
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(local))
	merged := make([]store.Message, 0, len(local))
	for _, m := range local {
		seen[m.ID] = struct{}{}
		merged = append(merged, m)
	}

	var ids []string
	for _, entry := range e.reg.List() {
		if entry.Role == registry.RoleMain && !includeMain {
			continue
		}
		ids = append(ids, entry.Identifier)
	}

	for _, res := range e.trees.FetchAll(ids) {
		if res.Err != nil {
			// Degraded, not fatal: this source just contributes nothing.
			continue
		}
		for _, m := range e.scanTree(res.Dir, res.Identifier) {
			if _, dup := seen[m.ID]; dup {
				continue
			}
			seen[m.ID] = struct{}{}
			merged = append(merged, m)
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].Timestamp != merged[j].Timestamp {
			return merged[i].Timestamp < merged[j].Timestamp
		}
		return merged[i].ID < merged[j].ID
	})

	if limit > 0 && len(merged) > limit {
		merged = merged[len(merged)-limit:]
	}
	return merged, nil
}

// scanTree reads every message file in a tree's messages directory, in
// sorted name order so the feed never depends on directory iteration order.
func (e *Engine) scanTree(dir, originRepo string) []store.Message {
	msgDir := filepath.Join(dir, mirror.MessagesSubdir)
	entries, err := os.ReadDir(msgDir)
	if err != nil {
		// A tree without a messages directory contributes nothing.
		return nil
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	var msgs []store.Message
	for _, name := range names {
		path := filepath.Join(msgDir, name)
		m, err := parseFile(path, originRepo)
		if err != nil {
			e.logger.Warn("skipping malformed message file",
				zap.String("path", path), zap.Error(err))
			continue
		}
		if m == nil {
			continue
		}
		msgs = append(msgs, *m)
	}
	return msgs
}
