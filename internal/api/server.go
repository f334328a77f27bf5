package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/kb-engine/internal/catalog"
	"github.com/JakeFAU/kb-engine/internal/crawl"
	"github.com/JakeFAU/kb-engine/internal/kb"
	"github.com/JakeFAU/kb-engine/internal/metrics"
)

// Orchestrator is the crawl control surface the server depends on.
type Orchestrator interface {
	Start(ctx context.Context, seed crawl.Seed) (kb.CrawlJob, error)
	CrawlMany(ctx context.Context, seeds []crawl.Seed) []crawl.SeedResult
	List(ctx context.Context) ([]kb.CrawlJob, error)
	Status(ctx context.Context, idPrefix string) (kb.CrawlJob, error)
	Logs(ctx context.Context, idPrefix string, tail int) (string, error)
	Stop(ctx context.Context, idPrefix string) (kb.CrawlJob, error)
	RemoveCompleted(ctx context.Context) (int, []crawl.RemovalError, error)
}

// Catalog is the knowledge base management surface the server depends on.
type Catalog interface {
	Create(ctx context.Context, req catalog.CreateRequest) (kb.KnowledgeBase, error)
	Get(ctx context.Context, name string) (kb.KnowledgeBase, error)
	List(ctx context.Context, namePattern string) ([]kb.KnowledgeBase, error)
	Delete(ctx context.Context, name string) error
}

// Answerer resolves questions against knowledge bases.
type Answerer interface {
	Ask(ctx context.Context, questions []string, targets []kb.KnowledgeBase, style kb.AnswerStyle) ([]kb.Answer, error)
}

// Server wires HTTP handlers to the orchestrator, catalog, and answerer.
type Server struct {
	router       chi.Router
	orchestrator Orchestrator
	catalog      Catalog
	answerer     Answerer
	logTail      int
	logger       *zap.Logger
}

// NewServer constructs a Server with middleware and routes. logTail
// bounds the log lines returned per worker; zero means 40.
func NewServer(orchestrator Orchestrator, cat Catalog, answerer Answerer, logTail int, logger *zap.Logger) *Server {
	if logTail <= 0 {
		logTail = 40
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		orchestrator: orchestrator,
		catalog:      cat,
		answerer:     answerer,
		logTail:      logTail,
		logger:       logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(timeoutMiddleware(60 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/crawls", func(r chi.Router) {
			r.Post("/", s.startCrawl)
			r.Post("/batch", s.startCrawlBatch)
			r.Get("/", s.listCrawls)
			r.Delete("/completed", s.removeCompleted)
			r.Route("/{job_id}", func(r chi.Router) {
				r.Get("/", s.getCrawl)
				r.Get("/logs", s.getCrawlLogs)
				r.Delete("/", s.stopCrawl)
			})
		})
		r.Route("/knowledge-bases", func(r chi.Router) {
			r.Post("/", s.createKnowledgeBase)
			r.Get("/", s.listKnowledgeBases)
			r.Route("/{name}", func(r chi.Router) {
				r.Get("/", s.getKnowledgeBase)
				r.Delete("/", s.deleteKnowledgeBase)
			})
		})
		r.Post("/ask", s.ask)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.logger, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	// The backend check doubles as readiness: listing knowledge bases
	// exercises the search cluster round trip.
	if _, err := s.catalog.List(r.Context(), ""); err != nil {
		writeError(w, s.logger, http.StatusServiceUnavailable, "backend not ready")
		return
	}
	writeJSON(w, s.logger, http.StatusOK, map[string]string{"status": "ready"})
}

// httpStatusFor maps domain errors onto HTTP status codes.
func httpStatusFor(err error) int {
	switch {
	case errors.Is(err, kb.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, kb.ErrAmbiguousID),
		errors.Is(err, kb.ErrDuplicateJob),
		errors.Is(err, kb.ErrDuplicateKnowledgeBase):
		return http.StatusConflict
	case errors.Is(err, kb.ErrConfig), errors.Is(err, kb.ErrEmptyPhrase):
		return http.StatusBadRequest
	case errors.Is(err, kb.ErrBackendUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			duration := time.Since(start)
			metrics.ObserveHTTPRequest(r.Method, r.URL.Path, ww.status, duration)
			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", duration.Milliseconds()),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("error", rec))
					writeError(w, logger, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

type requestIDKey struct{}

func writeJSON(w http.ResponseWriter, logger *zap.Logger, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, logger *zap.Logger, status int, msg string) {
	writeJSON(w, logger, status, map[string]string{"error": msg})
}
