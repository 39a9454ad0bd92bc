// Package http exposes the JSON API: commitments, terms, payments,
// categories and the derived summaries.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"finansheet/internal/cache"
	"finansheet/internal/core"
	applog "finansheet/internal/log"
	"finansheet/internal/middleware/ratelimit"
	"finansheet/internal/middleware/security"
	"finansheet/internal/middleware/trace"
	"finansheet/internal/services"
)

const (
	summaryCacheSize = 500
	listCacheSize    = 16
	cacheTTL         = 5 * time.Minute
)

// Service is the orchestration surface the handlers need.
type Service interface {
	CreateCommitment(ctx context.Context, name, categoryID string, flow core.FlowType, initial services.NewTermInput) (core.Commitment, error)
	GetCommitment(ctx context.Context, id string) (core.Commitment, error)
	ListCommitments(ctx context.Context) ([]core.Commitment, error)
	DeleteCommitment(ctx context.Context, id string) error
	AddTerm(ctx context.Context, commitmentID string, input services.NewTermInput) (core.Term, error)
	RescheduleTerm(ctx context.Context, commitmentID, termID string, newStart time.Time) error
	RecordPayment(ctx context.Context, input services.RecordPaymentInput) (core.Payment, error)
	DeletePayment(ctx context.Context, id string) error
	Summary(ctx context.Context, commitmentID string, now time.Time) (core.Summary, error)
	Summaries(ctx context.Context, filter core.LifecycleFilter, now time.Time) ([]core.Summary, error)
	ListCategories(ctx context.Context) ([]core.Category, error)
	CreateCategory(ctx context.Context, name string) (core.Category, error)
}

// Server wires the service behind the API routes with summary caching,
// write rate limiting and the security/trace middleware chain.
type Server struct {
	http.Server
	service  Service
	logger   *applog.Logger
	detector *security.Detector
	limiter  *ratelimit.Limiter

	// Derived summaries are cached per commitment and per filter; any
	// write to a commitment invalidates both.
	summaryCache *cache.LRUCache[core.Summary]
	listCache    *cache.LRUCache[[]core.Summary]
	caches       *cache.Manager

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, svc Service, logger *applog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		Server:       http.Server{Addr: addr},
		service:      svc,
		logger:       logger.WithComponent(applog.ComponentHTTP),
		detector:     security.NewDetector(),
		limiter:      ratelimit.NewLimiter(ratelimit.DefaultConfig()),
		summaryCache: cache.NewLRUCache[core.Summary](summaryCacheSize, cacheTTL),
		listCache:    cache.NewLRUCache[[]core.Summary](listCacheSize, cacheTTL),
		caches:       cache.NewManager(),
	}
	s.caches.Register(s.summaryCache)
	s.caches.Register(s.listCache)
	s.caches.StartCleanup(10 * time.Minute)

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("GET /api/commitments", s.handleListCommitments)
	mux.HandleFunc("POST /api/commitments", s.withWriteLimit(s.handleCreateCommitment))
	mux.HandleFunc("GET /api/commitments/{id}", s.handleGetCommitment)
	mux.HandleFunc("DELETE /api/commitments/{id}", s.withWriteLimit(s.handleDeleteCommitment))
	mux.HandleFunc("GET /api/commitments/{id}/summary", s.handleSummary)
	mux.HandleFunc("POST /api/commitments/{id}/terms", s.withWriteLimit(s.handleAddTerm))
	mux.HandleFunc("POST /api/commitments/{id}/terms/{termID}/reschedule", s.withWriteLimit(s.handleRescheduleTerm))

	mux.HandleFunc("GET /api/summaries", s.handleSummaries)

	mux.HandleFunc("POST /api/payments", s.withWriteLimit(s.handleRecordPayment))
	mux.HandleFunc("DELETE /api/payments/{id}", s.withWriteLimit(s.handleDeletePayment))

	mux.HandleFunc("GET /api/categories", s.handleListCategories)
	mux.HandleFunc("POST /api/categories", s.withWriteLimit(s.handleCreateCategory))

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	tracer := trace.NewMiddleware(s.detector.ExtractClientIP, applog.NewStructuredLogger(s.logger))
	s.Handler = headers.Middleware(tracer.Middleware(s.withDetection(mux)))

	return s
}

// withDetection flags suspicious requests before they reach the mux.
func (s *Server) withDetection(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.detector.DetectSuspiciousRequest(r) {
			s.logger.WarnContext(r.Context(), "Suspicious request blocked",
				applog.FieldMethod, r.Method,
				applog.FieldPath, r.URL.Path,
				applog.FieldClientIP, s.detector.ExtractClientIP(r))
			writeError(w, http.StatusBadRequest, "bad request")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withWriteLimit applies per-IP rate limiting to mutating handlers.
func (s *Server) withWriteLimit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clientIP := s.detector.ExtractClientIP(r)
		if !s.limiter.Allow(clientIP) {
			s.logger.WarnContext(r.Context(), "Rate limit exceeded",
				applog.FieldClientIP, clientIP,
				applog.FieldMethod, r.Method,
				applog.FieldPath, r.URL.Path)
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next(w, r)
	}
}

// Shutdown gracefully shuts down the server and its cleanup routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.caches.Stop()
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})

	return shutdownErr
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func summaryCacheKey(commitmentID string, now time.Time) string {
	return "summary:" + commitmentID + ":" + now.Format("2006-01-02")
}

func listCacheKey(filter core.LifecycleFilter, now time.Time) string {
	return "summaries:" + string(filter) + ":" + now.Format("2006-01-02")
}

// invalidateSummaries drops every cached view of the commitment. The
// filtered lists embed all commitments, so they go too.
func (s *Server) invalidateSummaries(commitmentID string) {
	s.summaryCache.DeletePrefix("summary:" + commitmentID + ":")
	s.listCache.DeletePrefix("summaries:")
}

// cachedSummary serves a commitment summary through the LRU cache.
func (s *Server) cachedSummary(ctx context.Context, commitmentID string, now time.Time) (core.Summary, error) {
	key := summaryCacheKey(commitmentID, now)
	if sum, found := s.summaryCache.Get(key); found {
		s.logger.DebugContext(ctx, "Summary cache hit", applog.FieldCommitmentID, commitmentID)
		return sum, nil
	}

	sum, err := s.service.Summary(ctx, commitmentID, now)
	if err != nil {
		return core.Summary{}, err
	}
	s.summaryCache.Set(key, sum)
	return sum, nil
}

// cachedSummaries serves a filtered summary list through the LRU cache.
func (s *Server) cachedSummaries(ctx context.Context, filter core.LifecycleFilter, now time.Time) ([]core.Summary, error) {
	key := listCacheKey(filter, now)
	if sums, found := s.listCache.Get(key); found {
		s.logger.DebugContext(ctx, "Summaries cache hit",
			"filter", string(filter), "count", len(sums))
		result := make([]core.Summary, len(sums))
		copy(result, sums)
		return result, nil
	}

	sums, err := s.service.Summaries(ctx, filter, now)
	if err != nil {
		return nil, err
	}
	s.listCache.Set(key, sums)
	return sums, nil
}
