package github

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestListCommits(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/repos/alice/chat/commits" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "token tok" {
			t.Errorf("Authorization = %q", got)
		}
		if got := r.URL.Query().Get("path"); got != "messages/abc.json" {
			t.Errorf("path query = %q", got)
		}
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{
				"sha":      "deadbeef",
				"html_url": "https://github.com/alice/chat/commit/deadbeef",
				"commit": map[string]any{
					"message": "Add message abc",
					"author": map[string]any{
						"name":  "Alice",
						"email": "alice@example.com",
						"date":  "2026-01-01T00:00:00Z",
					},
				},
			},
		})
	}))
	defer srv.Close()

	c := New("tok", WithBaseURL(srv.URL))
	commits, err := c.ListCommits(context.Background(), "alice", "chat", "messages/abc.json", 30, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(commits) != 1 {
		t.Fatalf("got %d commits, want 1", len(commits))
	}
	got := commits[0]
	if got.SHA != "deadbeef" || got.Message != "Add message abc" || got.AuthorName != "Alice" {
		t.Errorf("commit = %+v", got)
	}
}

func TestAPIErrorCarriesStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "Not Found"})
	}))
	defer srv.Close()

	c := New("tok", WithBaseURL(srv.URL))
	_, err := c.GetRepo(context.Background(), "alice", "gone")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want APIError", err)
	}
	if apiErr.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", apiErr.StatusCode)
	}
}

func TestCreateRepo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/user/repos" {
			t.Errorf("%s %s", r.Method, r.URL.Path)
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatal(err)
		}
		if body["name"] != "chat-messages" {
			t.Errorf("name = %v", body["name"])
		}
		_ = json.NewEncoder(w).Encode(Repo{FullName: "alice/chat-messages"})
	}))
	defer srv.Close()

	c := New("tok", WithBaseURL(srv.URL))
	repo, err := c.CreateRepo(context.Background(), "chat-messages", true)
	if err != nil {
		t.Fatal(err)
	}
	if repo.FullName != "alice/chat-messages" {
		t.Errorf("full name = %q", repo.FullName)
	}
}

func TestAuthenticatedUser(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/user" {
			t.Errorf("path = %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"login": "alice"})
	}))
	defer srv.Close()

	c := New("tok", WithBaseURL(srv.URL))
	login, err := c.AuthenticatedUser(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if login != "alice" {
		t.Errorf("login = %q, want alice", login)
	}
}
