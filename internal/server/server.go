// Package server exposes the admin HTTP API: health, recipe status, starting
// recipes and Prometheus metrics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/roach88/tablehook/internal/engine"
)

const shutdownTimeout = 5 * time.Second

// Recipes is the part of engine.Manager the API drives.
type Recipes interface {
	Status() []engine.Status
	Start(ctx context.Context, name string) error
}

// Server is the admin API.
type Server struct {
	recipes  Recipes
	gatherer prometheus.Gatherer
	logger   zerolog.Logger

	// runCtx parents runners started over HTTP, so they outlive the
	// request that started them.
	runCtx context.Context
	router chi.Router
}

// Option configures a Server.
type Option func(*Server)

// WithGatherer serves /metrics from g. Without it /metrics is not routed.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// WithLogger sets the request logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// WithRunContext sets the context runners started over HTTP inherit.
//
// Default: context.Background()
func WithRunContext(ctx context.Context) Option {
	return func(s *Server) {
		s.runCtx = ctx
	}
}

// New creates the API over recipes.
func New(recipes Recipes, opts ...Option) *Server {
	s := &Server{
		recipes: recipes,
		logger:  zerolog.Nop(),
		runCtx:  context.Background(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.routes()
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", s.handleHealth)
	r.Route("/recipes", func(r chi.Router) {
		r.Get("/", s.handleList)
		r.Post("/{name}/start", s.handleStart)
	})
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

// Serve listens on addr until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.serve(ctx, ln)
}

func (s *Server) serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", ln.Addr().String()).Msg("admin API listening")
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		s.logger.Info().Msg("admin API stopped")
		return nil
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"recipes": s.recipes.Status()})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	err := s.recipes.Start(s.runCtx, name)
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, map[string]string{"name": name, "state": engine.StateRunning.String()})
	case errors.Is(err, engine.ErrUnknownRecipe):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, engine.ErrAlreadyRunning), errors.Is(err, engine.ErrStopped):
		writeError(w, http.StatusConflict, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("admin request")
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
