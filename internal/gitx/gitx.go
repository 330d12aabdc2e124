// Package gitx shells out to the system git binary. Remote errors are
// classified into auth, network and conflict kinds from git's stderr so
// callers can apply the right propagation policy.
package gitx

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

var authMarkers = []string{
	"authentication failed",
	"could not read username",
	"could not read password",
	"invalid username or password",
	"terminal prompts disabled",
	"permission denied",
	"403",
}

var networkMarkers = []string{
	"could not resolve host",
	"connection refused",
	"connection timed out",
	"network is unreachable",
	"operation timed out",
	"remote end hung up",
}

var conflictMarkers = []string{
	"non-fast-forward",
	"fetch first",
	"not possible to fast-forward",
	"[rejected]",
}

func classify(output string) ErrorKind {
	lower := strings.ToLower(output)
	for _, m := range authMarkers {
		if strings.Contains(lower, m) {
			return KindAuth
		}
	}
	for _, m := range networkMarkers {
		if strings.Contains(lower, m) {
			return KindNetwork
		}
	}
	for _, m := range conflictMarkers {
		if strings.Contains(lower, m) {
			return KindConflict
		}
	}
	return KindGeneric
}

func run(repoPath string, args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	if repoPath != "" {
		cmd.Dir = filepath.Clean(repoPath)
	}
	// Never fall back to interactive credential prompts.
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
	output, err := cmd.CombinedOutput()
	if err != nil {
		out := strings.TrimSpace(string(output))
		return "", &GitError{
			Op:     args[0],
			Kind:   classify(out),
			Output: out,
			Err:    err,
		}
	}
	return strings.TrimSpace(string(output)), nil
}

// IsRepository checks if the given path is a valid git repository.
func IsRepository(path string) bool {
	info, err := os.Stat(filepath.Join(filepath.Clean(path), ".git"))
	return err == nil && info.IsDir()
}

// Init creates a new repository at path with the given initial branch.
func Init(path, branch string) error {
	if err := os.MkdirAll(path, 0755); err != nil {
		return fmt.Errorf("create repo dir: %w", err)
	}
	_, err := run(path, "init", "-b", branch)
	return err
}

// Clone clones url into path.
func Clone(url, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create clone parent: %w", err)
	}
	_, err := run("", "clone", url, path)
	return err
}

// Fetch updates remote tracking refs from origin.
func Fetch(repoPath string) error {
	_, err := run(repoPath, "fetch", "origin")
	return err
}

// FastForward merges origin/<branch> into the current branch, fast-forward
// only. A diverged history surfaces as a conflict-kind GitError.
func FastForward(repoPath, branch string) error {
	_, err := run(repoPath, "merge", "--ff-only", "origin/"+branch)
	return err
}

// Add stages the given paths (relative to the repo root).
func Add(repoPath string, paths ...string) error {
	_, err := run(repoPath, append([]string{"add", "--"}, paths...)...)
	return err
}

// Commit creates a commit with the given message and returns its hash.
// With allowEmpty, a commit is created even when nothing is staged.
func Commit(repoPath, message string, allowEmpty bool) (string, error) {
	args := []string{"commit", "-m", message}
	if allowEmpty {
		args = append(args, "--allow-empty")
	}
	if _, err := run(repoPath, args...); err != nil {
		return "", err
	}
	return RevParseHead(repoPath)
}

// RevParseHead returns the current HEAD commit hash.
func RevParseHead(repoPath string) (string, error) {
	return run(repoPath, "rev-parse", "HEAD")
}

// HasCommits reports whether the repository has any commit at all.
func HasCommits(repoPath string) bool {
	_, err := run(repoPath, "rev-parse", "--verify", "HEAD")
	return err == nil
}

// Push pushes the given branch to origin.
func Push(repoPath, branch string) error {
	_, err := run(repoPath, "push", "origin", branch)
	return err
}

// AheadCount returns how many local commits on branch are not on
// origin/<branch>. A missing remote tracking ref counts everything local
// as ahead.
func AheadCount(repoPath, branch string) (int, error) {
	out, err := run(repoPath, "rev-list", "--count", "origin/"+branch+".."+branch)
	if err != nil {
		// No remote ref yet: every local commit is unpushed.
		out, err = run(repoPath, "rev-list", "--count", branch)
		if err != nil {
			return 0, err
		}
	}
	n, convErr := strconv.Atoi(out)
	if convErr != nil {
		return 0, fmt.Errorf("parse rev-list count %q: %w", out, convErr)
	}
	return n, nil
}

// StagedFiles returns the paths currently staged for commit.
func StagedFiles(repoPath string) ([]string, error) {
	out, err := run(repoPath, "diff", "--cached", "--name-only")
	if err != nil {
		return nil, err
	}
	var files []string
	for _, line := range strings.Split(out, "\n") {
		if s := strings.TrimSpace(line); s != "" {
			files = append(files, s)
		}
	}
	return files, nil
}

// CurrentBranch returns the name of the current branch.
func CurrentBranch(repoPath string) (string, error) {
	return run(repoPath, "symbolic-ref", "--short", "HEAD")
}

// RemoteURL returns origin's URL, or empty if origin is not configured.
func RemoteURL(repoPath string) string {
	out, err := run(repoPath, "remote", "get-url", "origin")
	if err != nil {
		return ""
	}
	return out
}

// SetRemote points origin at url, adding the remote if it does not exist.
func SetRemote(repoPath, url string) error {
	if RemoteURL(repoPath) == "" {
		_, err := run(repoPath, "remote", "add", "origin", url)
		return err
	}
	_, err := run(repoPath, "remote", "set-url", "origin", url)
	return err
}

// HasIdentity reports whether the repository resolves a commit author,
// from local or global config.
func HasIdentity(repoPath string) bool {
	out, err := run(repoPath, "config", "user.email")
	return err == nil && strings.TrimSpace(out) != ""
}

// SetIdentity sets the repo-local committer identity.
func SetIdentity(repoPath, name, email string) error {
	if _, err := run(repoPath, "config", "--local", "user.name", name); err != nil {
		return err
	}
	_, err := run(repoPath, "config", "--local", "user.email", email)
	return err
}
