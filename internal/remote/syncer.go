// Package remote pushes the local worktree to the main repository and
// maintains local clones of pull-source repositories. All mutating git
// operations are serialized per worktree; different remotes' clones may
// be synced in parallel.
package remote

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/matheus3301/gitchat/internal/gitx"
	"go.uber.org/zap"
)

// DefaultBranch is the branch message commits live on.
const DefaultBranch = "main"

// PushResult reports what a push did.
type PushResult struct {
	Pushed     bool
	CommitHash string
}

// TreeResult is the outcome of syncing one pull-source. A failed repo
// carries its error here instead of failing the whole sync.
type TreeResult struct {
	Identifier string
	Dir        string
	Err        error
}

// Options tunes a Syncer. URLFor is injectable so tests can point
// identifiers at local repositories.
type Options struct {
	Token  string
	URLFor func(identifier string) string
}

// CloneURL builds the authenticated https URL for an owner/name identifier.
func CloneURL(identifier, token string) string {
	if token == "" {
		return "https://github.com/" + identifier + ".git"
	}
	return "https://x-access-token:" + token + "@github.com/" + identifier + ".git"
}

// Syncer owns the network side of the board.
type Syncer struct {
	worktree   string
	remotesDir string
	branch     string
	urlFor     func(string) string
	logger     *zap.Logger

	// wtMu serializes mutating operations on the main worktree.
	wtMu sync.Mutex

	// cloneMu hands out one mutex per pull-source clone.
	cloneMuMu sync.Mutex
	cloneMu   map[string]*sync.Mutex
}

// New creates a Syncer over the given worktree and remotes directory.
func New(worktree, remotesDir, branch string, opts Options, logger *zap.Logger) *Syncer {
	urlFor := opts.URLFor
	if urlFor == nil {
		token := opts.Token
		urlFor = func(id string) string { return CloneURL(id, token) }
	}
	if branch == "" {
		branch = DefaultBranch
	}
	return &Syncer{
		worktree:   worktree,
		remotesDir: remotesDir,
		branch:     branch,
		urlFor:     urlFor,
		logger:     logger,
		cloneMu:    map[string]*sync.Mutex{},
	}
}

// Worktree returns the main worktree path.
func (s *Syncer) Worktree() string { return s.worktree }

// Branch returns the branch message commits live on.
func (s *Syncer) Branch() string { return s.branch }

// LockWorktree serializes a write-path critical section (mirror write +
// commit) against pushes. Returns the unlock function.
func (s *Syncer) LockWorktree() func() {
	s.wtMu.Lock()
	return s.wtMu.Unlock
}

// EnsureWorktree makes sure the local clone of mainID exists: clones when
// possible, otherwise initializes a fresh repository pointed at the remote.
// With an empty mainID it initializes a detached local-only repository.
func (s *Syncer) EnsureWorktree(mainID string) error {
	s.wtMu.Lock()
	defer s.wtMu.Unlock()

	if gitx.IsRepository(s.worktree) {
		if mainID != "" {
			return gitx.SetRemote(s.worktree, s.urlFor(mainID))
		}
		return nil
	}

	if mainID != "" {
		if err := gitx.Clone(s.urlFor(mainID), s.worktree); err != nil {
			s.logger.Warn("clone failed, initializing fresh worktree",
				zap.String("repo", mainID), zap.Error(err))
		} else {
			return nil
		}
	}

	if err := gitx.Init(s.worktree, s.branch); err != nil {
		return err
	}
	if mainID != "" {
		if err := gitx.SetRemote(s.worktree, s.urlFor(mainID)); err != nil {
			return err
		}
	}
	return nil
}

// EnsureIdentity sets a local commit identity when neither local nor
// global git config provides one.
func (s *Syncer) EnsureIdentity(name, email string) error {
	if gitx.HasIdentity(s.worktree) {
		return nil
	}
	return gitx.SetIdentity(s.worktree, name, email)
}

// Push pushes local commits to the main remote. Nothing to push is a no-op
// result, not an error, unless force is set, in which case an empty commit
// is created so the push always happens.
func (s *Syncer) Push(force bool) (*PushResult, error) {
	s.wtMu.Lock()
	defer s.wtMu.Unlock()

	if !gitx.HasCommits(s.worktree) {
		return &PushResult{Pushed: false}, nil
	}

	ahead, err := gitx.AheadCount(s.worktree, s.branch)
	if err != nil {
		return nil, err
	}
	if ahead == 0 {
		if !force {
			return &PushResult{Pushed: false}, nil
		}
		if _, err := gitx.Commit(s.worktree, "Force sync", true); err != nil {
			return nil, err
		}
	}

	if err := gitx.Push(s.worktree, s.branch); err != nil {
		return nil, err
	}
	hash, err := gitx.RevParseHead(s.worktree)
	if err != nil {
		return nil, err
	}
	return &PushResult{Pushed: true, CommitHash: hash}, nil
}

// cloneDir is where a pull-source's local clone lives.
func (s *Syncer) cloneDir(identifier string) string {
	return filepath.Join(s.remotesDir, strings.ReplaceAll(identifier, "/", "_"))
}

func (s *Syncer) lockClone(identifier string) func() {
	s.cloneMuMu.Lock()
	mu, ok := s.cloneMu[identifier]
	if !ok {
		mu = &sync.Mutex{}
		s.cloneMu[identifier] = mu
	}
	s.cloneMuMu.Unlock()
	mu.Lock()
	return mu.Unlock
}

// FetchOrClone ensures an up-to-date local clone of the given repository
// and returns its path. Clones on first use, fetches and fast-forwards
// thereafter, so repeated calls with no upstream changes are no-ops.
func (s *Syncer) FetchOrClone(identifier string) (string, error) {
	unlock := s.lockClone(identifier)
	defer unlock()

	dir := s.cloneDir(identifier)
	if !gitx.IsRepository(dir) {
		if err := gitx.Clone(s.urlFor(identifier), dir); err != nil {
			return "", fmt.Errorf("clone %s: %w", identifier, err)
		}
		return dir, nil
	}

	if err := gitx.Fetch(dir); err != nil {
		return "", fmt.Errorf("fetch %s: %w", identifier, err)
	}
	if err := gitx.FastForward(dir, s.branch); err != nil {
		return "", fmt.Errorf("fast-forward %s: %w", identifier, err)
	}
	return dir, nil
}

// FetchAll syncs every given repository. Failures are collected per
// repository; one unreachable remote never aborts the others.
func (s *Syncer) FetchAll(identifiers []string) []TreeResult {
	results := make([]TreeResult, 0, len(identifiers))
	for _, id := range identifiers {
		dir, err := s.FetchOrClone(id)
		if err != nil {
			s.logger.Warn("repository sync failed",
				zap.String("repo", id), zap.Error(err))
		}
		results = append(results, TreeResult{Identifier: id, Dir: dir, Err: err})
	}
	return results
}
