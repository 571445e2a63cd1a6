package api

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"grist-assistant/internal/domain"
	"grist-assistant/internal/infra/config"
	"grist-assistant/internal/infra/middleware"
	"grist-assistant/internal/usecase"
)

// Server exposes the assistant over HTTP. Every chat request builds its own
// document service and tool catalog bound to the caller's credential; the
// server itself only holds the long-lived pieces.
type Server struct {
	cfg           config.Config
	logger        *slog.Logger
	factory       domain.ServiceFactory
	llm           domain.LLMProvider
	confirmations *usecase.ConfirmationRegistry
	diagnostics   *usecase.Diagnostics

	server    *http.Server
	boundAddr string

	ctx    context.Context
	cancel context.CancelFunc
}

// NewServer wires the HTTP surface.
func NewServer(
	cfg config.Config,
	factory domain.ServiceFactory,
	llm domain.LLMProvider,
	confirmations *usecase.ConfirmationRegistry,
	logger *slog.Logger,
) *Server {
	return &Server{
		cfg:           cfg,
		logger:        logger,
		factory:       factory,
		llm:           llm,
		confirmations: confirmations,
		diagnostics:   usecase.NewDiagnostics(),
	}
}

// Start begins serving. Non-blocking.
func (s *Server) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/chat", s.handleChat)
	mux.HandleFunc("/api/v1/chat/confirm", s.handleConfirm)
	mux.HandleFunc("/api/v1/health", s.handleHealth)

	secureHandler := middleware.SecurityHeaders(
		middleware.RateLimit(s.ctx, s.cfg.Server.RequestsPerMin, s.cfg.Server.BurstSize)(mux),
	)

	s.server = &http.Server{
		Addr:              s.cfg.Server.Addr,
		Handler:           secureHandler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      120 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	ln, err := net.Listen("tcp", s.cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Server.Addr, err)
	}
	s.boundAddr = ln.Addr().String()

	go func() {
		s.logger.Info("api server started", "addr", s.boundAddr)
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("http server error", "error", err)
		}
	}()

	return nil
}

// Addr returns the actual bound address, useful when Addr was ":0".
func (s *Server) Addr() string { return s.boundAddr }

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
