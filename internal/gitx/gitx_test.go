package gitx

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func initRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	if err := Init(dir, "main"); err != nil {
		t.Fatal(err)
	}
	if err := SetIdentity(dir, "test", "test@example.com"); err != nil {
		t.Fatal(err)
	}
	return dir
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestInitAndIsRepository(t *testing.T) {
	dir := initRepo(t)
	if !IsRepository(dir) {
		t.Error("IsRepository = false for initialized repo")
	}
	if IsRepository(t.TempDir()) {
		t.Error("IsRepository = true for plain dir")
	}
}

func TestAddCommitRevParse(t *testing.T) {
	dir := initRepo(t)
	writeFile(t, dir, "messages/a.json", "{}")

	if err := Add(dir, "messages/a.json"); err != nil {
		t.Fatal(err)
	}

	staged, err := StagedFiles(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(staged) != 1 || staged[0] != "messages/a.json" {
		t.Errorf("staged = %v", staged)
	}

	hash, err := Commit(dir, "add message a", false)
	if err != nil {
		t.Fatal(err)
	}
	if len(hash) != 40 {
		t.Errorf("commit hash = %q, want 40 hex chars", hash)
	}

	head, err := RevParseHead(dir)
	if err != nil {
		t.Fatal(err)
	}
	if head != hash {
		t.Errorf("HEAD = %q, want %q", head, hash)
	}
}

func TestCommitNothingStagedFails(t *testing.T) {
	dir := initRepo(t)
	writeFile(t, dir, "seed.txt", "x")
	if err := Add(dir, "seed.txt"); err != nil {
		t.Fatal(err)
	}
	if _, err := Commit(dir, "seed", false); err != nil {
		t.Fatal(err)
	}

	_, err := Commit(dir, "empty", false)
	var gerr *GitError
	if !errors.As(err, &gerr) {
		t.Fatalf("error = %v, want GitError", err)
	}
	if gerr.Kind != KindGeneric {
		t.Errorf("kind = %v, want generic", gerr.Kind)
	}

	// Allow-empty succeeds and produces a fresh hash.
	hash, err := Commit(dir, "forced", true)
	if err != nil {
		t.Fatal(err)
	}
	if hash == "" {
		t.Error("empty commit hash")
	}
}

func TestCloneFetchFastForward(t *testing.T) {
	// Upstream repo with one commit.
	upstream := initRepo(t)
	writeFile(t, upstream, "messages/a.json", "{}")
	if err := Add(upstream, "messages/a.json"); err != nil {
		t.Fatal(err)
	}
	if _, err := Commit(upstream, "a", false); err != nil {
		t.Fatal(err)
	}

	clone := filepath.Join(t.TempDir(), "clone")
	if err := Clone(upstream, clone); err != nil {
		t.Fatal(err)
	}
	if !IsRepository(clone) {
		t.Fatal("clone is not a repository")
	}

	// New upstream commit, then fetch + fast-forward in the clone.
	writeFile(t, upstream, "messages/b.json", "{}")
	if err := Add(upstream, "messages/b.json"); err != nil {
		t.Fatal(err)
	}
	if _, err := Commit(upstream, "b", false); err != nil {
		t.Fatal(err)
	}

	if err := Fetch(clone); err != nil {
		t.Fatal(err)
	}
	if err := FastForward(clone, "main"); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(filepath.Join(clone, "messages", "b.json")); err != nil {
		t.Errorf("fast-forwarded file missing: %v", err)
	}
}

func TestAheadCount(t *testing.T) {
	upstream := initRepo(t)
	writeFile(t, upstream, "seed.txt", "x")
	if err := Add(upstream, "seed.txt"); err != nil {
		t.Fatal(err)
	}
	if _, err := Commit(upstream, "seed", false); err != nil {
		t.Fatal(err)
	}

	clone := filepath.Join(t.TempDir(), "clone")
	if err := Clone(upstream, clone); err != nil {
		t.Fatal(err)
	}
	if err := SetIdentity(clone, "test", "test@example.com"); err != nil {
		t.Fatal(err)
	}

	n, err := AheadCount(clone, "main")
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("ahead = %d, want 0", n)
	}

	writeFile(t, clone, "new.txt", "y")
	if err := Add(clone, "new.txt"); err != nil {
		t.Fatal(err)
	}
	if _, err := Commit(clone, "new", false); err != nil {
		t.Fatal(err)
	}

	n, err = AheadCount(clone, "main")
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("ahead = %d, want 1", n)
	}
}

func TestPushToLocalRemote(t *testing.T) {
	// Bare upstream repo so pushes are accepted.
	bare := filepath.Join(t.TempDir(), "up.git")
	if _, err := run("", "init", "--bare", "-b", "main", bare); err != nil {
		t.Fatal(err)
	}

	work := initRepo(t)
	if err := SetRemote(work, bare); err != nil {
		t.Fatal(err)
	}
	writeFile(t, work, "messages/a.json", "{}")
	if err := Add(work, "messages/a.json"); err != nil {
		t.Fatal(err)
	}
	if _, err := Commit(work, "a", false); err != nil {
		t.Fatal(err)
	}

	if err := Push(work, "main"); err != nil {
		t.Fatalf("Push() error = %v", err)
	}

	n, err := AheadCount(work, "main")
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("ahead after push = %d, want 0", n)
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		output string
		want   ErrorKind
	}{
		{"fatal: Authentication failed for 'https://github.com/a/b.git'", KindAuth},
		{"fatal: could not read Username for 'https://github.com': terminal prompts disabled", KindAuth},
		{"fatal: unable to access 'https://github.com/a/b.git': Could not resolve host: github.com", KindNetwork},
		{"ssh: connect to host github.com port 22: Connection refused", KindNetwork},
		{"! [rejected]        main -> main (non-fast-forward)", KindConflict},
		{"hint: Updates were rejected because the remote contains work... fetch first", KindConflict},
		{"error: pathspec 'nope' did not match any file(s)", KindGeneric},
	}
	for _, c := range cases {
		if got := classify(c.output); got != c.want {
			t.Errorf("classify(%q) = %v, want %v", c.output, got, c.want)
		}
	}
}

func TestRemoteURLRoundTrip(t *testing.T) {
	dir := initRepo(t)
	if got := RemoteURL(dir); got != "" {
		t.Errorf("RemoteURL on fresh repo = %q, want empty", got)
	}
	if err := SetRemote(dir, "https://example.com/a/b.git"); err != nil {
		t.Fatal(err)
	}
	if got := RemoteURL(dir); got != "https://example.com/a/b.git" {
		t.Errorf("RemoteURL = %q", got)
	}
	// Update path.
	if err := SetRemote(dir, "https://example.com/c/d.git"); err != nil {
		t.Fatal(err)
	}
	if got := RemoteURL(dir); got != "https://example.com/c/d.git" {
		t.Errorf("RemoteURL after update = %q", got)
	}
}
