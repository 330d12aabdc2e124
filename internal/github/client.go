// Package github is a thin client for the GitHub REST v3 endpoints the
// board needs: commit provenance listing and repository creation for the
// setup flow.
package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const defaultBaseURL = "https://api.github.com"

// APIError carries the status code so callers can distinguish missing
// repositories from auth and rate-limit failures.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("github api: %d %s", e.StatusCode, e.Message)
}

// CommitInfo is one commit as reported by the commits endpoint.
type CommitInfo struct {
	SHA         string
	Message     string
	AuthorName  string
	AuthorEmail string
	Timestamp   string
	URL         string
}

// Repo is the subset of repository metadata the setup flow uses.
type Repo struct {
	FullName string `json:"full_name"`
	Private  bool   `json:"private"`
	CloneURL string `json:"clone_url"`
}

// Client talks to the GitHub REST API.
type Client struct {
	token   string
	baseURL string
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at a different API root. Tests use this
// with httptest servers.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// New creates a client authenticated with the given token.
func New(token string, opts ...Option) *Client {
	c := &Client{
		token:   token,
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("User-Agent", "gitchat")
	if c.token != "" {
		req.Header.Set("Authorization", "token "+c.token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("github request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		var apiMsg struct {
			Message string `json:"message"`
		}
		data, _ := io.ReadAll(resp.Body)
		_ = json.Unmarshal(data, &apiMsg)
		return &APIError{StatusCode: resp.StatusCode, Message: apiMsg.Message}
	}

	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

// ListCommits fetches commits for owner/repo, optionally filtered to a path.
// perPage is capped at GitHub's limit of 100.
func (c *Client) ListCommits(ctx context.Context, owner, repo, path string, perPage, page int) ([]CommitInfo, error) {
	if perPage <= 0 || perPage > 100 {
		perPage = 100
	}
	if page <= 0 {
		page = 1
	}
	q := url.Values{
		"per_page": {strconv.Itoa(perPage)},
		"page":     {strconv.Itoa(page)},
	}
	if path != "" {
		q.Set("path", path)
	}

	var raw []struct {
		SHA    string `json:"sha"`
		Commit struct {
			Message string `json:"message"`
			Author  struct {
				Name  string `json:"name"`
				Email string `json:"email"`
				Date  string `json:"date"`
			} `json:"author"`
		} `json:"commit"`
		HTMLURL string `json:"html_url"`
	}
	err := c.do(ctx, http.MethodGet, "/repos/"+owner+"/"+repo+"/commits", q, nil, &raw)
	if err != nil {
		return nil, err
	}

	commits := make([]CommitInfo, 0, len(raw))
	for _, r := range raw {
		commits = append(commits, CommitInfo{
			SHA:         r.SHA,
			Message:     r.Commit.Message,
			AuthorName:  r.Commit.Author.Name,
			AuthorEmail: r.Commit.Author.Email,
			Timestamp:   r.Commit.Author.Date,
			URL:         r.HTMLURL,
		})
	}
	return commits, nil
}

// GetRepo fetches repository metadata. A 404 surfaces as an APIError.
func (c *Client) GetRepo(ctx context.Context, owner, repo string) (*Repo, error) {
	var r Repo
	if err := c.do(ctx, http.MethodGet, "/repos/"+owner+"/"+repo, nil, nil, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// CreateRepo creates a repository for the authenticated user.
func (c *Client) CreateRepo(ctx context.Context, name string, private bool) (*Repo, error) {
	body := map[string]any{
		"name":      name,
		"private":   private,
		"auto_init": true,
	}
	var r Repo
	if err := c.do(ctx, http.MethodPost, "/user/repos", nil, body, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// AuthenticatedUser returns the login of the token's owner.
func (c *Client) AuthenticatedUser(ctx context.Context) (string, error) {
	var u struct {
		Login string `json:"login"`
	}
	if err := c.do(ctx, http.MethodGet, "/user", nil, nil, &u); err != nil {
		return "", err
	}
	return u.Login, nil
}
