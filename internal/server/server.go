// Package server provides the HTTP API for building protest packages.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/felixge/httpsnoop"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/jonathan/erc-protest-agent/internal/llm"
	"github.com/jonathan/erc-protest-agent/internal/logging"
	"github.com/jonathan/erc-protest-agent/internal/metrics"
	"github.com/jonathan/erc-protest-agent/internal/pipeline"
	"github.com/jonathan/erc-protest-agent/internal/research"
	"github.com/jonathan/erc-protest-agent/internal/server/ratelimit"
	"github.com/jonathan/erc-protest-agent/internal/types"
)

const maxBodyBytes = 1 << 20

// Runner builds one protest package.
type Runner interface {
	RunWithProgress(ctx context.Context, req types.ExtractionRequest, onProgress pipeline.ProgressCallback) (*types.PackageResult, error)
}

// SourceFinder searches for official order sources.
type SourceFinder interface {
	FindOrderSources(ctx context.Context, req research.Request, perQuery int) ([]research.Source, error)
}

// Config holds server configuration
type Config struct {
	Port int
	// MaxConcurrent caps package builds in flight; further requests wait.
	MaxConcurrent   int
	CORSOrigins     []string
	RateLimit       *ratelimit.Config
	ResultsPerQuery int
}

// Server represents the HTTP server
type Server struct {
	httpServer  *http.Server
	handler     http.Handler
	runner      Runner
	llm         llm.Client
	sources     SourceFinder
	rateLimiter *ratelimit.Limiter
	slots       *semaphore.Weighted
	archives    *archiveIndex
	cfg         Config
	logger      *zap.Logger
}

// New creates a new server instance. client and sources may be nil; prompts
// are then returned uncustomized and without sources.
func New(cfg Config, runner Runner, client llm.Client, sources SourceFinder, logger *zap.Logger) (*Server, error) {
	if runner == nil {
		return nil, fmt.Errorf("server requires a pipeline runner")
	}
	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = 1
	}
	if cfg.ResultsPerQuery < 1 {
		cfg.ResultsPerQuery = 5
	}

	s := &Server{
		runner:      runner,
		llm:         client,
		sources:     sources,
		rateLimiter: ratelimit.NewLimiter(cfg.RateLimit),
		slots:       semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		archives:    newArchiveIndex(),
		cfg:         cfg,
		logger:      logging.OrNop(logger),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /packages", s.handleCreatePackage)
	mux.HandleFunc("POST /packages/stream", s.handleCreatePackageStream)
	mux.HandleFunc("GET /packages/{id}/archive", s.handleArchive)
	mux.HandleFunc("POST /prompts", s.handlePrompt)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	s.handler = s.withLogging(s.withRateLimit(s.withCORS(mux)))
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// package builds can run for the whole request deadline
		WriteTimeout: 20 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// Handler returns the server's root handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start listens until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		s.rateLimiter.Stop()
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err := s.httpServer.Shutdown(shutdownCtx)
	s.rateLimiter.Stop()
	if err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	s.logger.Info("server stopped")
	return nil
}

// withCORS adds CORS headers
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := s.allowedOrigin(r.Header.Get("Origin")); origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			if origin != "*" {
				w.Header().Add("Vary", "Origin")
			}
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) allowedOrigin(origin string) string {
	for _, allowed := range s.cfg.CORSOrigins {
		if allowed == "*" {
			return "*"
		}
		if origin != "" && allowed == origin {
			return origin
		}
	}
	return ""
}

// withRateLimit adds rate limiting middleware
func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed, info := s.rateLimiter.Allow(extractClientID(r), r.URL.Path, r.Method)
		setRateLimitHeaders(w, info)
		if !allowed {
			s.rateLimitResponse(w, r, info)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withLogging logs each request and records HTTP metrics. httpsnoop keeps
// the Flusher the SSE endpoint needs.
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := httpsnoop.CaptureMetrics(next, w, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		metrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(m.Code)).Inc()

		s.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("remote", r.RemoteAddr),
			zap.Int("status", m.Code),
			zap.Int64("bytes", m.Written),
			zap.Duration("duration", m.Duration))
	})
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// jsonResponse writes a JSON response
func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Warn("failed to encode JSON response", zap.Error(err))
	}
}

// errorResponse writes an error JSON response
func (s *Server) errorResponse(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, map[string]string{"error": message})
}

// extractClientID extracts the client identifier from the request.
// It uses the IP address from RemoteAddr; forwarded headers are not trusted.
func extractClientID(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// setRateLimitHeaders sets standard rate limit headers on the response.
func setRateLimitHeaders(w http.ResponseWriter, info ratelimit.Info) {
	if info.Limit > 0 {
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(info.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(info.ResetTime.Unix(), 10))
	}
}

// rateLimitResponse writes a 429 Too Many Requests response with rate limit information.
func (s *Server) rateLimitResponse(w http.ResponseWriter, r *http.Request, info ratelimit.Info) {
	response := map[string]any{
		"error":     "rate_limit_exceeded",
		"message":   "Rate limit exceeded. Please try again later.",
		"limit":     info.Limit,
		"remaining": info.Remaining,
		"reset_at":  info.ResetTime.Format(time.RFC3339),
	}

	if info.RetryAfter > 0 {
		seconds := int(info.RetryAfter.Round(time.Second).Seconds())
		if seconds < 1 {
			seconds = 1
		}
		response["retry_after"] = seconds
		w.Header().Set("Retry-After", strconv.Itoa(seconds))
	}

	s.logger.Info("rate limit exceeded",
		zap.String("client", extractClientID(r)),
		zap.String("path", r.URL.Path),
		zap.Int("limit", info.Limit),
		zap.Time("reset", info.ResetTime))

	s.jsonResponse(w, http.StatusTooManyRequests, response)
}

// archiveIndex maps request IDs to the archives this process produced.
type archiveIndex struct {
	mu    sync.RWMutex
	paths map[string]string
}

func newArchiveIndex() *archiveIndex {
	return &archiveIndex{paths: make(map[string]string)}
}

func (a *archiveIndex) put(requestID, path string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.paths[requestID] = path
}

func (a *archiveIndex) get(requestID string) (string, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	path, ok := a.paths[requestID]
	return path, ok
}
