// Package server exposes the chat service over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/shaharia-lab/chatsvc"
	"github.com/shaharia-lab/chatsvc/observability"
	"go.opentelemetry.io/otel/codes"
)

const (
	defaultMaxBodySize     = 1 << 20
	defaultShutdownTimeout = 5 * time.Second
)

// ChatAPI is the part of chatsvc.ChatService the handlers need.
type ChatAPI interface {
	GetCompletion(ctx context.Context, userID int64, text string, override *chatsvc.ModelType) (*chatsvc.CompletionResult, error)
	GetHistory(ctx context.Context, userID int64) ([]chatsvc.Message, error)
	ClearHistory(ctx context.Context, userID int64) error
}

// Options configures a Server.
type Options struct {
	Addr               string
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
	ShutdownTimeout    time.Duration
	MaxRequestBodySize int64
	CORSAllowedOrigins []string
}

// Server serves the chat API.
type Server struct {
	chat    ChatAPI
	auth    *Authenticator
	opts    Options
	logger  observability.Logger
	handler http.Handler
}

// New wires the routes and middleware. A nil logger discards logs.
func New(chat ChatAPI, auth *Authenticator, opts Options, logger observability.Logger) *Server {
	if opts.MaxRequestBodySize <= 0 {
		opts.MaxRequestBodySize = defaultMaxBodySize
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = defaultShutdownTimeout
	}

	s := &Server{
		chat:   chat,
		auth:   auth,
		opts:   opts,
		logger: observability.OrNull(logger),
	}
	s.handler = s.routes()
	return s
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)

	protected := func(h http.HandlerFunc) http.Handler {
		return s.auth.Middleware(h)
	}
	mux.Handle("POST /api/v1/chat/completion", protected(s.handleCompletion))
	mux.Handle("GET /api/v1/chat/history", protected(s.handleGetHistory))
	mux.Handle("DELETE /api/v1/chat/history", protected(s.handleClearHistory))

	return chain(mux,
		requestID,
		tracing,
		accessLog(s.logger),
		recovery(s.logger),
		cors(s.opts.CORSAllowedOrigins),
	)
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run listens on the configured address until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ctx, span := observability.StartSpan(ctx, "Server.Run")
	defer span.End()

	server := &http.Server{
		BaseContext: func(listener net.Listener) context.Context {
			return context.WithoutCancel(ctx)
		},
		Addr:              s.opts.Addr,
		Handler:           s.handler,
		ReadTimeout:       s.opts.ReadTimeout,
		ReadHeaderTimeout: s.opts.ReadTimeout,
		WriteTimeout:      s.opts.WriteTimeout,
	}

	s.logger.Infof("Starting chat server on %s", s.opts.Addr)

	errChan := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Warn("Context cancelled. Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			s.logger.WithErr(err).Error("Error during server shutdown")
			return fmt.Errorf("error during server shutdown: %w", err)
		}

		s.logger.Warn("Server gracefully shut down.")
		return nil
	case err := <-errChan:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.WithErr(err).Error("Error starting server")
		return fmt.Errorf("server error: %w", err)
	}
}
