// Package mirror maintains the file representation of the board: one JSON
// file per message inside the worktree's messages directory, committed so
// the git history doubles as an append-only audit log.
package mirror

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/matheus3301/gitchat/internal/gitx"
	"github.com/matheus3301/gitchat/internal/store"
)

// MessagesSubdir is the directory inside the worktree holding message files.
const MessagesSubdir = "messages"

// ConflictError is returned when a file for the same message id already
// exists. IDs are immutable, so an overwrite is always a caller bug.
type ConflictError struct {
	ID   string
	Path string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("message file already exists for id %s: %s", e.ID, e.Path)
}

// ErrNothingStaged is returned by Commit when, after restaging, there is
// nothing to commit.
var ErrNothingStaged = errors.New("nothing staged to commit")

// fileRecord is the on-disk JSON shape, shared with every peer repository.
type fileRecord struct {
	ID        string `json:"id"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

// Mirror writes message files into a git worktree and commits them.
type Mirror struct {
	worktree string
	branch   string
}

// New creates a mirror over the given worktree.
func New(worktree, branch string) *Mirror {
	return &Mirror{worktree: worktree, branch: branch}
}

// Dir returns the message directory inside the worktree.
func (m *Mirror) Dir() string {
	return filepath.Join(m.worktree, MessagesSubdir)
}

// Worktree returns the worktree root.
func (m *Mirror) Worktree() string { return m.worktree }

// relPath is the file path for an id, relative to the worktree root.
func relPath(id string) string {
	return filepath.Join(MessagesSubdir, id+".json")
}

// Write serializes the message into a new file named after its id.
// An existing file for the same id is a ConflictError, never overwritten.
func (m *Mirror) Write(msg *store.Message) (string, error) {
	if err := os.MkdirAll(m.Dir(), 0755); err != nil {
		return "", fmt.Errorf("create messages dir: %w", err)
	}

	path := filepath.Join(m.worktree, relPath(msg.ID))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		if os.IsExist(err) {
			return "", &ConflictError{ID: msg.ID, Path: path}
		}
		return "", fmt.Errorf("create message file: %w", err)
	}

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	encErr := enc.Encode(fileRecord{
		ID:        msg.ID,
		Content:   msg.Content,
		Timestamp: msg.Timestamp,
	})
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		encErr = closeErr
	}
	if encErr != nil {
		// Leave no partial file behind.
		_ = os.Remove(path)
		return "", fmt.Errorf("write message file: %w", encErr)
	}
	return path, nil
}

// Commit stages the files for the given message ids plus anything else
// pending under the messages directory (so a retry after a failed commit
// picks up files written earlier) and creates one commit. Returns the
// commit hash, or ErrNothingStaged when the restage found nothing new.
func (m *Mirror) Commit(ids []string) (string, error) {
	paths := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		paths = append(paths, relPath(id))
	}
	// Idempotent restage: pick up leftovers from interrupted commits too.
	paths = append(paths, MessagesSubdir)
	if err := gitx.Add(m.worktree, paths...); err != nil {
		return "", err
	}

	staged, err := gitx.StagedFiles(m.worktree)
	if err != nil {
		return "", err
	}
	if len(staged) == 0 {
		return "", ErrNothingStaged
	}

	summary := fmt.Sprintf("Add %d message(s)", len(staged))
	if len(ids) == 1 {
		summary = "Add message " + ids[0]
	}
	return gitx.Commit(m.worktree, summary, false)
}

// TreeStats reports message file count and total size for the stats command.
func (m *Mirror) TreeStats() (files int, bytes int64) {
	entries, err := os.ReadDir(m.Dir())
	if err != nil {
		return 0, 0
	}
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		files++
		if info, err := e.Info(); err == nil {
			bytes += info.Size()
		}
	}
	return files, bytes
}
