// Package httpapi is Kiki's HTTP surface: the chat, clear, health and memory
// endpoints used by the web UI, plus /healthz and /metrics.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/bdobrica/Kiki/common/trace"
	"github.com/bdobrica/Kiki/internal/kiki/memory"
	"github.com/bdobrica/Kiki/internal/kiki/observability"
	"github.com/bdobrica/Kiki/internal/kiki/orchestrator"
)

// Asker answers questions. *orchestrator.Orchestrator implements it.
type Asker interface {
	Ask(ctx context.Context, req orchestrator.Request) (*orchestrator.Answer, error)
	Ready() bool
}

// Pinger reports database reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Counter reports the number of indexed chunks.
type Counter interface {
	Count(ctx context.Context) (int, error)
}

type Options struct {
	ModelName          string
	DatabaseName       string
	RateLimitPerMinute int
	RequestTimeout     time.Duration
}

type Server struct {
	opts    Options
	asker   Asker
	modes   *memory.Modes
	db      Pinger
	index   Counter
	metrics *observability.Metrics
	limiter *rateLimiter
	logger  *slog.Logger
}

func New(opts Options, asker Asker, modes *memory.Modes, db Pinger, index Counter, metrics *observability.Metrics, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		opts:    opts,
		asker:   asker,
		modes:   modes,
		db:      db,
		index:   index,
		metrics: metrics,
		logger:  logger,
	}
	if opts.RateLimitPerMinute > 0 {
		s.limiter = newRateLimiter(opts.RateLimitPerMinute, rateLimitWindow)
	}
	return s
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(s.traceRequests)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.With(s.rateLimit).Post("/chat", s.handleChat)
		r.Post("/clear", s.handleClear)
		r.Get("/health", s.handleHealth)
		r.Get("/memory", s.handleMemoryStats)
		r.Get("/memory/{mode}", s.handleMemoryStats)
	})
	return r
}

// traceRequests attaches a trace id to the request context, echoes it in
// the X-Trace-Id header and logs the request when it completes.
func (s *Server) traceRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if id := strings.TrimSpace(r.Header.Get("X-Trace-Id")); id != "" {
			ctx = trace.WithTraceID(ctx, id)
		}
		ctx, id := trace.Ensure(ctx)
		w.Header().Set("X-Trace-Id", id)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r.WithContext(ctx))
		trace.Logger(ctx, s.logger).Debug("http: request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
		)
	})
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter == nil {
			next.ServeHTTP(w, r)
			return
		}
		ok, wait := s.limiter.allow(clientKey(r))
		if !ok {
			if s.metrics != nil {
				s.metrics.RateLimited.Inc()
			}
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			respondJSON(w, http.StatusTooManyRequests, chatResponse{Error: errorText("Too many requests. Please wait a moment and try again.")})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

type healthResponse struct {
	Status   string `json:"status"`
	Model    string `json:"model"`
	Database string `json:"database"`
	Chunks   *int   `json:"chunks,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:   "loading",
		Model:    s.opts.ModelName,
		Database: s.opts.DatabaseName,
	}
	if s.asker != nil && s.asker.Ready() {
		resp.Status = "ready"
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if s.db != nil {
		if err := s.db.Ping(ctx); err != nil {
			trace.Logger(ctx, s.logger).Warn("http: database ping failed", "err", err)
			resp.Database = "unavailable"
		}
	}
	if s.index != nil && resp.Database != "unavailable" {
		if n, err := s.index.Count(ctx); err == nil {
			resp.Chunks = &n
		}
	}
	respondJSON(w, http.StatusOK, resp)
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

// statusFor maps pipeline errors onto HTTP status codes and user-facing
// messages. Unexpected errors get a generic message; the detail goes to the
// log only.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, orchestrator.ErrEmptyQuestion):
		return http.StatusBadRequest, "Empty message"
	case errors.Is(err, orchestrator.ErrUnknownMode):
		return http.StatusBadRequest, "Unknown mode"
	case errors.Is(err, orchestrator.ErrModelUnavailable):
		return http.StatusServiceUnavailable, "Model not loaded. Please check server logs."
	case errors.Is(err, orchestrator.ErrRetrievalUnavailable):
		return http.StatusServiceUnavailable, "Knowledge base not available. Please check server logs."
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "The model took too long to answer. Please try again."
	default:
		return http.StatusInternalServerError, "Something went wrong while answering. Please try again."
	}
}
