// Package gateway exposes the board over HTTP. It is the only surface
// clients talk to; everything behind it goes through the board write path
// and the merge engine.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/matheus3301/gitchat/internal/github"
	"github.com/matheus3301/gitchat/internal/gitx"
	"github.com/matheus3301/gitchat/internal/merge"
	"github.com/matheus3301/gitchat/internal/mirror"
	"github.com/matheus3301/gitchat/internal/registry"
	"github.com/matheus3301/gitchat/internal/status"
	"github.com/matheus3301/gitchat/internal/store"
)

// DefaultLimit caps GET /messages when no limit is given.
const DefaultLimit = 100

// Poster is the write path the gateway posts through.
type Poster interface {
	Post(content string) (*store.Message, error)
}

// Server routes HTTP requests to the board.
type Server struct {
	board   Poster
	engine  *merge.Engine
	reg     *registry.Registry
	gh      *github.Client
	tracker *status.Tracker
	logger  *zap.Logger
}

func NewServer(board Poster, engine *merge.Engine, reg *registry.Registry, gh *github.Client, tracker *status.Tracker, logger *zap.Logger) *Server {
	return &Server{
		board:   board,
		engine:  engine,
		reg:     reg,
		gh:      gh,
		tracker: tracker,
		logger:  logger.Named("gateway"),
	}
}

// Handler builds the chi router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
	}))

	r.Get("/healthz", s.handleHealth)
	r.Get("/status", s.handleStatus)
	r.Route("/messages", func(r chi.Router) {
		r.Post("/", s.handlePost)
		r.Get("/", s.handleList)
		r.Get("/{id}/commits", s.handleCommits)
	})
	return r
}

type postRequest struct {
	Content string `json:"content"`
}

type messageResponse struct {
	ID         string `json:"id"`
	Content    string `json:"content"`
	Timestamp  string `json:"timestamp"`
	OriginRepo string `json:"origin_repo"`
	CommitHash string `json:"commit_hash,omitempty"`
}

func toResponse(m *store.Message) messageResponse {
	return messageResponse{
		ID:         m.ID,
		Content:    m.Content,
		Timestamp:  m.Timestamp,
		OriginRepo: m.OriginRepo,
		CommitHash: m.CommitHash,
	}
}

func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	var req postRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	msg, err := s.board.Post(req.Content)
	if err != nil {
		s.writePostError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toResponse(msg))
}

func (s *Server) writePostError(w http.ResponseWriter, err error) {
	var verr *store.ValidationError
	if errors.As(err, &verr) {
		s.writeError(w, http.StatusBadRequest, verr.Error())
		return
	}
	var cerr *mirror.ConflictError
	if errors.As(err, &cerr) {
		s.writeError(w, http.StatusConflict, cerr.Error())
		return
	}
	var gerr *gitx.GitError
	if errors.As(err, &gerr) {
		switch gerr.Kind {
		case gitx.KindAuth, gitx.KindNetwork:
			s.writeError(w, http.StatusBadGateway, gerr.Error())
			return
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		s.writeError(w, http.StatusGatewayTimeout, "operation timed out")
		return
	}
	s.logger.Error("post failed", zap.Error(err))
	s.writeError(w, http.StatusInternalServerError, "internal error")
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := intParam(q.Get("limit"), DefaultLimit)
	offset := intParam(q.Get("offset"), 0)
	includeMain := q.Get("include_main") == "true"

	// Offset is applied after the merge so it pages the combined feed.
	msgs, err := s.engine.Feed(includeMain, 0)
	if err != nil {
		s.logger.Error("feed failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if offset >= len(msgs) {
		msgs = nil
	} else {
		msgs = msgs[offset:]
	}
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}

	out := make([]messageResponse, 0, len(msgs))
	for i := range msgs {
		out = append(out, toResponse(&msgs[i]))
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"messages": out,
		"count":    len(out),
	})
}

func (s *Server) handleCommits(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	main, ok := s.reg.Main()
	if !ok {
		s.writeError(w, http.StatusNotFound, "no main repository configured")
		return
	}
	owner, repo, ok := splitIdentifier(main)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "malformed main repository identifier")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	commits, err := s.gh.ListCommits(ctx, owner, repo, mirror.MessagesSubdir+"/"+id+".json", 100, 1)
	if err != nil {
		var aerr *github.APIError
		if errors.As(err, &aerr) && aerr.StatusCode == http.StatusNotFound {
			s.writeError(w, http.StatusNotFound, "message has no remote history")
			return
		}
		s.logger.Warn("commit lookup failed", zap.String("id", id), zap.Error(err))
		s.writeError(w, http.StatusBadGateway, "upstream lookup failed")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"id":      id,
		"commits": commits,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	s.writeJSON(w, http.StatusOK, map[string]any{
		"state":         snap.State,
		"posts":         snap.Posts,
		"pushes_ok":     snap.PushesOK,
		"pushes_failed": snap.PushesFailed,
		"last_push":     snap.LastPush,
		"last_pull":     snap.LastPull,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("response encode failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, code int, msg string) {
	s.writeJSON(w, code, map[string]string{"error": msg})
}

func intParam(raw string, def int) int {
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func splitIdentifier(id string) (owner, repo string, ok bool) {
	for i := range id {
		if id[i] == '/' {
			return id[:i], id[i+1:], i > 0 && i < len(id)-1
		}
	}
	return "", "", false
}
