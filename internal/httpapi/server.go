// Package httpapi exposes the registration core over HTTP.
//
// The adapter is thin: it decodes requests, calls the coordinator or the
// resolver, and maps fault codes to status codes. All domain decisions stay
// in internal/registration and internal/lineage.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/roach88/pathchain/internal/credential"
	"github.com/roach88/pathchain/internal/lineage"
	"github.com/roach88/pathchain/internal/projection"
	"github.com/roach88/pathchain/internal/registration"
)

// Coordinator is the subset of *registration.Coordinator the adapter calls.
type Coordinator interface {
	Register(ctx context.Context, secretInput, username, password string) (registration.Result, error)
	Login(ctx context.Context, username, password string) (registration.Result, error)
	CheckSecret(ctx context.Context, secretInput string) (registration.SecretStatus, error)
	IssueSecret(ctx context.Context, entityID int64) (projection.SecretRow, error)
}

// Resolver is the subset of *lineage.Resolver the adapter calls.
type Resolver interface {
	ResolveAncestor(ctx context.Context, entityID int64) (lineage.EntityInfo, error)
	Lineage(ctx context.Context, entityID int64) ([]lineage.EntityInfo, error)
}

var (
	_ Coordinator = (*registration.Coordinator)(nil)
	_ Resolver    = (*lineage.Resolver)(nil)
)

const maxBodyBytes = 64 << 10

// Server routes HTTP requests to the registration core.
type Server struct {
	coord    Coordinator
	resolver Resolver
	tokens   credential.Verifier
	limiter  *clientLimiter
	logger   *slog.Logger
	router   chi.Router
}

// Option configures a Server.
type Option func(*Server)

// WithRateLimit limits register and login to perSecond requests per client
// with the given burst. perSecond <= 0 disables limiting.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(s *Server) {
		if perSecond <= 0 {
			s.limiter = nil
			return
		}
		s.limiter = newClientLimiter(perSecond, burst)
	}
}

// WithLogger sets the access and error logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// New builds a Server. A nil verifier makes authenticated routes answer
// CREDENTIALS_UNAVAILABLE.
func New(coord Coordinator, resolver Resolver, tokens credential.Verifier, opts ...Option) *Server {
	s := &Server{
		coord:    coord,
		resolver: resolver,
		tokens:   tokens,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.accessLog)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(s.rateLimit)
			r.Post("/register", s.handleRegister)
			r.Post("/login", s.handleLogin)
		})
		// Secrets may arrive author-scoped, so the address can span segments.
		r.Get("/secrets/*", s.handleCheckSecret)
		r.Route("/entities/{id}", func(r chi.Router) {
			r.Post("/secrets", s.handleIssueSecret)
			r.Get("/ancestor", s.handleAncestor)
			r.Get("/lineage", s.handleLineage)
		})
	})
	return r
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully within shutdownTimeout.
func (s *Server) ListenAndServe(ctx context.Context, addr string, readHeaderTimeout, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen on %s: %w", addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	s.logger.Info("http server stopped")
	return nil
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
