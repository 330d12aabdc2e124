package daemon

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/gitchat/internal/gateway"
)

// Server manages the HTTP server lifecycle for the daemon.
type Server struct {
	srv      *http.Server
	listener net.Listener
	logger   *zap.Logger
}

// NewServer binds the gateway to the configured address. Binding happens
// here rather than in Start so a taken port fails daemon boot.
func NewServer(p Params, gw *gateway.Server, logger *zap.Logger) (*Server, error) {
	addr := p.HTTPAddr
	if addr == "" {
		addr = p.Config.HTTPAddr
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	return &Server{
		srv: &http.Server{
			Handler:           gw.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		},
		listener: listener,
		logger:   logger,
	}, nil
}

// Addr returns the bound address.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Start begins serving HTTP requests. Blocks until stopped.
func (s *Server) Start() error {
	s.logger.Info("http server starting", zap.String("addr", s.Addr()))
	err := s.srv.Serve(s.listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop performs a graceful shutdown.
func (s *Server) Stop(ctx context.Context) {
	s.logger.Info("http server stopping")
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("shutdown error", zap.Error(err))
	}
}
