package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/matheus3301/gitchat/internal/bus"
	"github.com/matheus3301/gitchat/internal/github"
	"github.com/matheus3301/gitchat/internal/gitx"
	"github.com/matheus3301/gitchat/internal/merge"
	"github.com/matheus3301/gitchat/internal/registry"
	"github.com/matheus3301/gitchat/internal/remote"
	"github.com/matheus3301/gitchat/internal/status"
	"github.com/matheus3301/gitchat/internal/store"
)

type fakeBoard struct {
	err  error
	last string
}

func (f *fakeBoard) Post(content string) (*store.Message, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.last = content
	return &store.Message{
		ID:         "11111111-1111-1111-1111-111111111111",
		Content:    content,
		Timestamp:  "2026-08-30T12:00:00Z",
		OriginRepo: store.LocalOrigin,
		CommitHash: strings.Repeat("a", 40),
	}, nil
}

type emptyTrees struct{}

func (emptyTrees) FetchAll(ids []string) []remote.TreeResult { return nil }

func testServer(t *testing.T, board Poster, ghBase string) *Server {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })

	reg, err := registry.Load(filepath.Join(t.TempDir(), "repos.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if err := reg.Add("alice/board"); err != nil {
		t.Fatal(err)
	}

	engine := merge.NewEngine(db, reg, emptyTrees{}, zap.NewNop())
	var gh *github.Client
	if ghBase != "" {
		gh = github.New("tok", github.WithBaseURL(ghBase))
	} else {
		gh = github.New("tok")
	}
	tracker := status.NewTracker(bus.New())
	return NewServer(board, engine, reg, gh, tracker, zap.NewNop())
}

func doJSON(t *testing.T, h http.Handler, method, target, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var rd *strings.Reader
	if body == "" {
		rd = strings.NewReader("")
	} else {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	out := map[string]any{}
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
			t.Fatalf("bad response body %q: %v", rec.Body.String(), err)
		}
	}
	return rec, out
}

func TestPostMessage(t *testing.T) {
	fb := &fakeBoard{}
	h := testServer(t, fb, "").Handler()

	rec, out := doJSON(t, h, http.MethodPost, "/messages", `{"content":"hello"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	if out["content"] != "hello" || fb.last != "hello" {
		t.Errorf("content round trip failed: %v", out)
	}
	if out["commit_hash"] == "" {
		t.Error("commit hash missing from response")
	}
}

func TestPostValidationError(t *testing.T) {
	fb := &fakeBoard{err: &store.ValidationError{Reason: "content is empty"}}
	h := testServer(t, fb, "").Handler()

	rec, out := doJSON(t, h, http.MethodPost, "/messages", `{"content":""}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	if out["error"] == "" {
		t.Error("no error message in body")
	}
}

func TestPostBadJSON(t *testing.T) {
	h := testServer(t, &fakeBoard{}, "").Handler()
	rec, _ := doJSON(t, h, http.MethodPost, "/messages", `{"content":`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestPostGitAuthMapsToBadGateway(t *testing.T) {
	fb := &fakeBoard{err: &gitx.GitError{
		Op:   "push",
		Kind: gitx.KindAuth,
		Err:  errors.New("exit status 128"),
	}}
	h := testServer(t, fb, "").Handler()

	rec, _ := doJSON(t, h, http.MethodPost, "/messages", `{"content":"x"}`)
	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rec.Code)
	}
}

func TestListMessages(t *testing.T) {
	srv := testServer(t, &fakeBoard{}, "")
	h := srv.Handler()

	rec, out := doJSON(t, h, http.MethodGet, "/messages", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if out["count"].(float64) != 0 {
		t.Errorf("count = %v, want 0", out["count"])
	}
}

func TestListOffsetBeyondEnd(t *testing.T) {
	h := testServer(t, &fakeBoard{}, "").Handler()
	rec, out := doJSON(t, h, http.MethodGet, "/messages?offset=999", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if out["count"].(float64) != 0 {
		t.Errorf("count = %v", out["count"])
	}
}

func TestCommitsEndpoint(t *testing.T) {
	gh := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wantPath := "/repos/alice/board/commits"
		if r.URL.Path != wantPath {
			t.Errorf("path = %q, want %q", r.URL.Path, wantPath)
		}
		if got := r.URL.Query().Get("path"); got != "messages/msg-1.json" {
			t.Errorf("path query = %q", got)
		}
		fmt.Fprint(w, `[{"sha":"abc","commit":{"message":"Add message msg-1","author":{"name":"alice","date":"2026-08-30T12:00:00Z"}}}]`)
	}))
	defer gh.Close()

	h := testServer(t, &fakeBoard{}, gh.URL).Handler()
	rec, out := doJSON(t, h, http.MethodGet, "/messages/msg-1/commits", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	commits := out["commits"].([]any)
	if len(commits) != 1 {
		t.Errorf("commits = %v", commits)
	}
}

func TestCommitsUpstream404(t *testing.T) {
	gh := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"Not Found"}`, http.StatusNotFound)
	}))
	defer gh.Close()

	h := testServer(t, &fakeBoard{}, gh.URL).Handler()
	rec, _ := doJSON(t, h, http.MethodGet, "/messages/ghost/commits", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestStatusEndpoint(t *testing.T) {
	h := testServer(t, &fakeBoard{}, "").Handler()
	rec, out := doJSON(t, h, http.MethodGet, "/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if out["state"] != string(status.Booting) {
		t.Errorf("state = %v", out["state"])
	}
}

func TestHealthz(t *testing.T) {
	h := testServer(t, &fakeBoard{}, "").Handler()
	rec, out := doJSON(t, h, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK || out["status"] != "ok" {
		t.Errorf("healthz = %d %v", rec.Code, out)
	}
}
