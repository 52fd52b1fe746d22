package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/docutag/sentimint"
	"github.com/docutag/sentimint/db"
	"github.com/docutag/sentimint/metrics"
	"github.com/docutag/sentimint/models"
	"github.com/docutag/sentimint/storage"
)

// Estimator computes a sentiment result for an entity
type Estimator interface {
	GetSentimentScore(ctx context.Context, entity string) (*models.SentimentResult, error)
}

// ResultStore persists computed results
type ResultStore interface {
	SaveResult(result *models.SentimentResult) error
	GetByID(id string) (*models.SentimentResult, error)
	LatestForEntity(entity string, since time.Time) (*models.SentimentResult, error)
	DeleteByID(id string) error
	List(limit, offset int) ([]*models.SentimentResult, error)
	Count() (int, error)
}

// SnapshotStore reads and removes the page snapshots recorded on results
type SnapshotStore interface {
	ReadSnapshot(ctx context.Context, key string) (string, error)
	DeleteSnapshot(ctx context.Context, key string) error
}

// Server represents the API server
type Server struct {
	estimator Estimator
	store     ResultStore
	snapshots SnapshotStore
	limiter   *clientLimiter
	config    Config
	server    *http.Server
	mux       *http.ServeMux
}

// Config contains server configuration
type Config struct {
	Addr           string
	CORSEnabled    bool
	RequestTimeout time.Duration // Upper bound for one sentiment computation
	CacheTTL       time.Duration // Stored results younger than this are served again; 0 disables
	RateLimit      RateLimitConfig
}

// DefaultConfig returns default server configuration
func DefaultConfig() Config {
	return Config{
		Addr:           ":8080",
		CORSEnabled:    true,
		RequestTimeout: 5 * time.Minute,
		CacheTTL:       time.Hour,
		RateLimit:      DefaultRateLimitConfig(),
	}
}

// NewServer creates a new API server.
// store can be nil, which disables the result history endpoints and caching.
// snapshots can be nil, which disables the snapshot endpoint.
func NewServer(config Config, estimator Estimator, store ResultStore, snapshots SnapshotStore) *Server {
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = DefaultConfig().RequestTimeout
	}

	s := &Server{
		estimator: estimator,
		store:     store,
		snapshots: snapshots,
		limiter:   newClientLimiter(config.RateLimit),
		config:    config,
		mux:       http.NewServeMux(),
	}

	s.registerRoutes()

	s.server = &http.Server{
		Addr:         config.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: config.RequestTimeout + 30*time.Second, // Allow time for long-running estimates
		IdleTimeout:  120 * time.Second,
	}

	return s
}

// registerRoutes sets up all API routes
func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/api/sentiment", s.handleSentiment)
	s.mux.HandleFunc("/api/results/", s.handleResult) // Handles /api/results/{id} and /api/results/{id}/snapshots/{n}
	s.mux.HandleFunc("/api/results", s.handleList)
	s.mux.Handle("/metrics", promhttp.Handler())
}

// Handler returns the fully wrapped HTTP handler
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.middleware(s.mux), "sentimint-api")
}

// Start starts the API server
func (s *Server) Start() error {
	slog.Info("starting API server", "addr", s.config.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("shutting down API server")
	return s.server.Shutdown(ctx)
}

// statusRecorder captures the response status for logging and metrics
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// middleware applies common middleware to all routes
func (s *Server) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// CORS headers
		if s.config.CORSEnabled {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
		}

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		metrics.HTTPRequestsTotal.WithLabelValues(routeLabel(r.URL.Path), strconv.Itoa(rec.status)).Inc()

		// Skip health checks and scrapes to reduce noise
		if r.URL.Path != "/health" && r.URL.Path != "/metrics" {
			slog.Info("request completed",
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.status,
				"duration", time.Since(start),
			)
		}
	})
}

// routeLabel collapses per-ID paths so metric cardinality stays bounded
func routeLabel(path string) string {
	if strings.HasPrefix(path, "/api/results/") {
		if strings.Contains(strings.TrimPrefix(path, "/api/results/"), "/snapshots/") {
			return "/api/results/{id}/snapshots/{n}"
		}
		return "/api/results/{id}"
	}
	switch path {
	case "/health", "/metrics", "/api/sentiment", "/api/results":
		return path
	}
	return "other"
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	resp := map[string]interface{}{
		"status":  "healthy",
		"history": s.store != nil,
		"time":    time.Now(),
	}

	if s.store != nil {
		count, err := s.store.Count()
		if err != nil {
			respondError(w, http.StatusInternalServerError, "failed to get count")
			return
		}
		resp["count"] = count
	}

	respondJSON(w, http.StatusOK, resp)
}

// handleSentiment computes (or serves a recent stored) sentiment result for an entity
func (s *Server) handleSentiment(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if !s.limiter.Allow(clientKey(r)) {
		metrics.RateLimitedTotal.Inc()
		respondError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	var req models.SentimentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.Entity = strings.TrimSpace(req.Entity)
	if req.Entity == "" {
		respondError(w, http.StatusBadRequest, "entity is required")
		return
	}

	if cached := s.cachedResult(req); cached != nil {
		respondJSON(w, http.StatusOK, cached)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.config.RequestTimeout)
	defer cancel()

	result, err := s.estimator.GetSentimentScore(ctx, req.Entity)
	if err != nil {
		switch {
		case errors.Is(err, sentimint.ErrEmptyEntity):
			respondError(w, http.StatusBadRequest, "entity is required")
		case errors.Is(err, sentimint.ErrSearchUnavailable):
			slog.Warn("search provider unavailable", "entity", req.Entity, "error", err)
			respondError(w, http.StatusBadGateway, "search provider unavailable")
		case errors.Is(err, context.DeadlineExceeded):
			respondError(w, http.StatusGatewayTimeout, "sentiment analysis timed out")
		default:
			slog.Error("sentiment analysis failed", "entity", req.Entity, "error", err)
			respondError(w, http.StatusInternalServerError, fmt.Sprintf("sentiment analysis failed: %v", err))
		}
		return
	}

	if s.store != nil {
		if err := s.store.SaveResult(result); err != nil {
			// Still return the result even if save fails
			slog.Error("failed to save result", "id", result.ID, "error", err)
		}
	}

	respondJSON(w, http.StatusOK, result)
}

// cachedResult returns a recent stored result for the entity, or nil
func (s *Server) cachedResult(req models.SentimentRequest) *models.SentimentResult {
	if s.store == nil || req.Force || s.config.CacheTTL <= 0 {
		return nil
	}

	existing, err := s.store.LatestForEntity(req.Entity, time.Now().Add(-s.config.CacheTTL))
	if err != nil {
		if !errors.Is(err, db.ErrNotFound) {
			slog.Warn("failed to look up cached result", "entity", req.Entity, "error", err)
		}
		return nil
	}

	existing.Cached = true
	return existing
}

// handleResult handles GET and DELETE for a single stored result and GET for its snapshots
func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/results/"), "/")
	id := parts[0]
	if id == "" {
		respondError(w, http.StatusBadRequest, "id is required")
		return
	}

	if s.store == nil {
		respondError(w, http.StatusServiceUnavailable, "history disabled")
		return
	}

	switch {
	case len(parts) == 1:
	case len(parts) == 3 && parts[1] == "snapshots":
		if r.Method != http.MethodGet {
			respondError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		s.handleSnapshot(w, r, id, parts[2])
		return
	default:
		respondError(w, http.StatusNotFound, "not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.handleGetByID(w, id)
	case http.MethodDelete:
		s.handleDeleteByID(w, r, id)
	default:
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleGetByID retrieves a stored result by ID
func (s *Server) handleGetByID(w http.ResponseWriter, id string) {
	result, err := s.store.GetByID(id)
	if errors.Is(err, db.ErrNotFound) {
		respondError(w, http.StatusNotFound, "result not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "database error")
		return
	}

	result.Cached = true
	respondJSON(w, http.StatusOK, result)
}

// handleDeleteByID deletes a stored result by ID along with its page snapshots
func (s *Server) handleDeleteByID(w http.ResponseWriter, r *http.Request, id string) {
	result, err := s.store.GetByID(id)
	if errors.Is(err, db.ErrNotFound) {
		respondError(w, http.StatusNotFound, "result not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "database error")
		return
	}

	if err := s.store.DeleteByID(id); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			respondError(w, http.StatusNotFound, "result not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to delete result")
		return
	}

	deleted := 0
	if s.snapshots != nil {
		for _, key := range result.Snapshots {
			if err := s.snapshots.DeleteSnapshot(r.Context(), key); err != nil {
				// The result is gone either way; an orphaned snapshot is only logged
				slog.Warn("failed to delete snapshot", "id", id, "snapshot", key, "error", err)
				continue
			}
			deleted++
		}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"message":           "result deleted successfully",
		"snapshots_deleted": deleted,
	})
}

// handleSnapshot returns the n-th stored page snapshot of a result as HTML
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request, id, index string) {
	if s.snapshots == nil {
		respondError(w, http.StatusServiceUnavailable, "snapshots disabled")
		return
	}

	n, err := strconv.Atoi(index)
	if err != nil || n < 0 {
		respondError(w, http.StatusBadRequest, "invalid snapshot index")
		return
	}

	result, err := s.store.GetByID(id)
	if errors.Is(err, db.ErrNotFound) {
		respondError(w, http.StatusNotFound, "result not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "database error")
		return
	}

	if n >= len(result.Snapshots) {
		respondError(w, http.StatusNotFound, "snapshot not found")
		return
	}

	content, err := s.snapshots.ReadSnapshot(r.Context(), result.Snapshots[n])
	if errors.Is(err, storage.ErrNotFound) {
		respondError(w, http.StatusNotFound, "snapshot not found")
		return
	}
	if err != nil {
		slog.Error("failed to read snapshot", "id", id, "snapshot", result.Snapshots[n], "error", err)
		respondError(w, http.StatusInternalServerError, "failed to read snapshot")
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(content)); err != nil {
		slog.Error("failed to write snapshot", "error", err)
	}
}

// handleList lists stored results with pagination
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if s.store == nil {
		respondError(w, http.StatusServiceUnavailable, "history disabled")
		return
	}

	limit := queryInt(r, "limit", 20)
	offset := queryInt(r, "offset", 0)

	// Enforce reasonable limits
	if limit < 1 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	results, err := s.store.List(limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "database error")
		return
	}

	for _, result := range results {
		result.Cached = true
	}

	count, err := s.store.Count()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "database error")
		return
	}

	respondJSON(w, http.StatusOK, models.ResultList{
		Data:   results,
		Total:  count,
		Limit:  limit,
		Offset: offset,
	})
}

// queryInt reads an integer query parameter, returning def when absent or malformed
func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// respondError sends an error response
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}
