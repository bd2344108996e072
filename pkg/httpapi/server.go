// Package httpapi exposes the assistant and the prompt store over HTTP.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"localassist/pkg/correction"
	"localassist/pkg/logx"
	"localassist/pkg/persistence"
)

// RequestIDHeader carries the request ID in both directions.
const RequestIDHeader = "X-Request-ID"

const (
	readHeaderTimeout = 10 * time.Second
	corsMaxAgeSeconds = "600"
)

// Runner runs the correction loop for one query.
type Runner interface {
	Run(ctx context.Context, query string) (*correction.Result, error)
}

// Reviewer makes a single verifier call.
type Reviewer interface {
	Review(ctx context.Context, candidate string) (string, error)
}

// PromptStore is the storage the prompt endpoints need.
type PromptStore interface {
	Create(ctx context.Context, params persistence.CreatePromptParams) (*persistence.Prompt, error)
	Get(ctx context.Context, id int64) (*persistence.Prompt, error)
	Update(ctx context.Context, id int64, params persistence.UpdatePromptParams) (*persistence.Prompt, error)
	Delete(ctx context.Context, id int64) error
	Activate(ctx context.Context, id int64) (*persistence.Prompt, error)
	List(ctx context.Context, opts persistence.ListPromptsOpts) ([]persistence.Prompt, int, error)
	ActiveByType(ctx context.Context, promptType string) (*persistence.Prompt, error)
}

// Options configures the server.
type Options struct {
	Mode        string
	CORSOrigins []string
	// Registry receives HTTP metrics and is served on /metrics. Nil disables both.
	Registry *prometheus.Registry
}

// Server serves the assistant API.
type Server struct {
	loop     Runner
	verifier Reviewer
	store    PromptStore
	logger   *logx.Logger
	metrics  *httpMetrics
	registry *prometheus.Registry
	origins  map[string]bool
	mode     string
	httpSrv  *http.Server
}

// NewServer creates a server. Call Handler to mount it or ListenAndServe to run it.
//
//nolint:gocritic // Options is small and copied once
func NewServer(loop Runner, verifier Reviewer, store PromptStore, opts Options) *Server {
	s := &Server{
		loop:     loop,
		verifier: verifier,
		store:    store,
		logger:   logx.NewLogger("httpapi"),
		registry: opts.Registry,
		origins:  make(map[string]bool, len(opts.CORSOrigins)),
		mode:     opts.Mode,
	}
	for _, origin := range opts.CORSOrigins {
		if origin = normalizeOrigin(origin); origin != "" {
			s.origins[origin] = true
		}
	}
	if opts.Registry != nil {
		s.metrics = newHTTPMetrics(opts.Registry)
	}
	return s
}

// RegisterRoutes mounts every endpoint on mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	s.handle(mux, "GET /health", s.handleHealth)

	s.handle(mux, "POST /prompt", s.handlePrompt)
	s.handle(mux, "POST /reason", s.handlePrompt)
	s.handle(mux, "POST /verify", s.handleVerify)

	s.handle(mux, "GET /prompts", s.handleListPrompts)
	s.handle(mux, "POST /prompts", s.handleCreatePrompt)
	s.handle(mux, "GET /prompts/active/{type}", s.handleActivePrompt)
	s.handle(mux, "GET /prompts/{id}", s.handleGetPrompt)
	s.handle(mux, "PUT /prompts/{id}", s.handleUpdatePrompt)
	s.handle(mux, "DELETE /prompts/{id}", s.handleDeletePrompt)
	s.handle(mux, "PATCH /prompts/{id}/activate", s.handleActivatePrompt)

	if s.registry != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry}))
	}
}

// Handler returns the full middleware-wrapped handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return s.withRequestID(s.withCORS(mux))
}

// handle registers fn under pattern, instrumented with the pattern as its route label.
func (s *Server) handle(mux *http.ServeMux, pattern string, fn http.HandlerFunc) {
	if s.metrics == nil {
		mux.HandleFunc(pattern, fn)
		return
	}
	route := pattern
	if _, path, ok := strings.Cut(pattern, " "); ok {
		route = path
	}
	mux.Handle(pattern, s.metrics.instrument(route, fn))
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down within shutdownTimeout.
// It returns nil after a clean shutdown.
func (s *Server) ListenAndServe(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, listener, shutdownTimeout)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, listener net.Listener, shutdownTimeout time.Duration) error {
	s.httpSrv = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Listening on %s (mode %s)", listener.Addr(), s.mode)
		errCh <- s.httpSrv.Serve(listener)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down HTTP server")
	// Parent context is cancelled; shutdown needs its own budget.
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown failed: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

// withRequestID tags each request with an ID, taken from the client when supplied.
func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get(RequestIDHeader))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, requestID)
		next.ServeHTTP(w, r.WithContext(logx.WithRequestID(r.Context(), requestID)))
	})
}

// withCORS allows configured origins and answers preflight requests with 204.
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		allowed := origin != "" && s.origins[normalizeOrigin(origin)]
		if allowed {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Add("Vary", "Origin")
		}

		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			if allowed {
				h := w.Header()
				h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
				if reqHeaders := r.Header.Get("Access-Control-Request-Headers"); reqHeaders != "" {
					h.Set("Access-Control-Allow-Headers", reqHeaders)
				} else {
					h.Set("Access-Control-Allow-Headers", "*")
				}
				h.Set("Access-Control-Max-Age", corsMaxAgeSeconds)
			}
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// normalizeOrigin lowercases and drops trailing slashes so "http://localhost:5173/" matches the browser's form.
func normalizeOrigin(origin string) string {
	return strings.TrimRight(strings.ToLower(strings.TrimSpace(origin)), "/")
}
