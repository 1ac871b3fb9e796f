// Package server exposes the chat service over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/hupe1980/agentdesk/logging"
	"github.com/hupe1980/agentdesk/ratelimit"
	"github.com/hupe1980/agentdesk/runner"
	"github.com/hupe1980/agentdesk/session"
)

// DefaultUserID identifies requests without an X-User-Id header.
const DefaultUserID = "00000000-0000-0000-0000-000000000000"

// Options configure a Server.
type Options struct {
	Logger         logging.Logger
	Port           int
	DefaultUserID  string
	RequestTimeout time.Duration
	// Limiter guards the /api routes; nil disables rate limiting.
	Limiter *ratelimit.Limiter
	// Agents lists the agent names served by GET /api/agents.
	Agents []string
	// ServiceName names the otelhttp server spans.
	ServiceName string
}

type Server struct {
	Router        *chi.Mux
	runner        *runner.Runner
	conversations session.Store
	opts          Options
}

// New builds the router and its middleware chain.
func New(run *runner.Runner, conversations session.Store, optFns ...func(o *Options)) *Server {
	opts := Options{
		Logger:         logging.NoOpLogger{},
		Port:           3000,
		DefaultUserID:  DefaultUserID,
		RequestTimeout: 60 * time.Second,
		ServiceName:    "agentdesk",
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	s := &Server{runner: run, conversations: conversations, opts: opts}

	r := chi.NewRouter()
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(opts.Logger))
	r.Use(CORSMiddleware)
	if opts.RequestTimeout > 0 {
		r.Use(TimeoutMiddleware(opts.RequestTimeout))
	}
	r.Use(middleware.Recoverer)
	r.Use(func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, opts.ServiceName)
	})

	r.Get("/health", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		if opts.Limiter != nil {
			r.Use(opts.Limiter.Middleware)
		}
		r.Post("/chat", s.handleChat)
		r.Get("/agents", s.handleAgents)
		r.Get("/conversations", s.handleListConversations)
		r.Post("/conversations", s.handleCreateConversation)
		r.Get("/conversations/{id}", s.handleConversationMessages)
		r.Get("/conversations/{id}/messages", s.handleConversationMessages)
		r.Delete("/conversations/{id}", s.handleDeleteConversation)
	})

	s.Router = r
	return s
}

// Start serves until ctx is cancelled, then shuts down gracefully within
// shutdownTimeout.
func (s *Server) Start(ctx context.Context, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.opts.Port),
		Handler:           s.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.opts.Logger.Info("server.start", "port", s.opts.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.opts.Logger.Info("server.shutdown")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
