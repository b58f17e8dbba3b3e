package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/khanhnv2901/secora/internal/api/middleware"
	"github.com/khanhnv2901/secora/internal/report"
	secerrors "github.com/khanhnv2901/secora/internal/shared/errors"
)

// ErrReportNotReady is returned for jobs that have not produced a report.
var ErrReportNotReady = errors.New("report not ready")

type HealthService interface {
	Check(ctx context.Context) error
	Ready(ctx context.Context) error
}

type JobService interface {
	StartJob(ctx context.Context, req ScanRequest) (*Job, error)
	GetJob(ctx context.Context, id string) (*Job, error)
	ListJobs(ctx context.Context, limit int) ([]Job, error)
	GetReport(ctx context.Context, id string) (*report.ScanReport, error)
	Subscribe() (chan Job, func())
}

type Config struct {
	Jobs JobService
	// Scanner serves synchronous scans. Nil disables POST /api/v1/scan.
	Scanner     Scanner
	Health      HealthService
	Metrics     http.Handler
	AuthToken   string
	Logger      *zap.Logger
	CORSOrigins []string // Allowed CORS origins (empty = allow all)
	RateLimit   int      // Requests per second per IP (0 = disabled)
	RateBurst   int      // Burst size for rate limiter
	// SyncTimeout bounds synchronous scans (default 3m).
	SyncTimeout time.Duration
}

type Server struct {
	cfg      Config
	mux      *http.ServeMux
	limiters *clientLimiters
}

func NewServer(cfg Config) *Server {
	if cfg.SyncTimeout <= 0 {
		cfg.SyncTimeout = 3 * time.Minute
	}
	srv := &Server{
		cfg:      cfg,
		mux:      http.NewServeMux(),
		limiters: newClientLimiters(),
	}
	srv.routes()
	return srv
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// RequestID -> Logging -> RateLimit -> CORS -> Auth -> Handler
	handler := middleware.RequestID(s.withLogging(s.withRateLimit(s.withCORS(s.mux))))
	handler.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.mux.Handle("/api/v1/health", http.HandlerFunc(s.handleHealth))
	s.mux.Handle("/api/v1/ready", http.HandlerFunc(s.handleReady))
	s.mux.Handle("/api/v1/scan", s.withAuth(http.HandlerFunc(s.handleSyncScan)))
	s.mux.Handle("/api/v1/scans", s.withAuth(http.HandlerFunc(s.handleScans)))
	s.mux.Handle("/api/v1/jobs", s.withAuth(http.HandlerFunc(s.handleJobs)))
	s.mux.Handle("/api/v1/jobs/", s.withAuth(http.HandlerFunc(s.handleJobByID)))
	s.mux.Handle("/api/v1/jobs-stream", s.withAuth(http.HandlerFunc(s.handleJobStream)))
	s.mux.Handle("/api/v1/reports/", s.withAuth(http.HandlerFunc(s.handleReport)))
	if s.cfg.Metrics != nil {
		s.mux.Handle("/metrics", s.cfg.Metrics)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, r)
		return
	}
	if s.cfg.Health != nil {
		if err := s.cfg.Health.Check(r.Context()); err != nil {
			s.writeError(w, r, http.StatusInternalServerError, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, r)
		return
	}
	if s.cfg.Health != nil {
		if err := s.cfg.Health.Ready(r.Context()); err != nil {
			s.writeError(w, r, http.StatusServiceUnavailable, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) decodeScanRequest(w http.ResponseWriter, r *http.Request) (ScanRequest, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, 1048576) // 1MB limit
	var req ScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return req, false
	}
	if strings.TrimSpace(req.URL) == "" {
		s.writeError(w, r, http.StatusBadRequest, errors.New("url is required"))
		return req, false
	}
	return req, true
}

// handleSyncScan runs the scan within the request.
func (s *Server) handleSyncScan(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Scanner == nil {
		s.writeError(w, r, http.StatusNotFound, errors.New("synchronous scans are disabled"))
		return
	}
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w, r)
		return
	}
	req, ok := s.decodeScanRequest(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.SyncTimeout)
	defer cancel()

	rep, err := s.cfg.Scanner.Scan(ctx, req.URL)
	if err != nil {
		s.writeError(w, r, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleScans(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Jobs == nil {
		s.writeError(w, r, http.StatusNotFound, errors.New("job service not available"))
		return
	}
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w, r)
		return
	}
	req, ok := s.decodeScanRequest(w, r)
	if !ok {
		return
	}
	job, err := s.cfg.Jobs.StartJob(r.Context(), req)
	if err != nil {
		s.writeError(w, r, statusFor(err), err)
		return
	}
	w.Header().Set("Location", "/api/v1/jobs/"+job.ID)
	writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Jobs == nil {
		s.writeError(w, r, http.StatusNotFound, errors.New("job service not available"))
		return
	}
	switch r.Method {
	case http.MethodGet:
		limit := 25
		if q := r.URL.Query().Get("limit"); q != "" {
			if parsed, err := strconv.Atoi(q); err == nil && parsed > 0 {
				limit = parsed
			}
		}
		jobs, err := s.cfg.Jobs.ListJobs(r.Context(), limit)
		if err != nil {
			s.writeError(w, r, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, jobs)
	case http.MethodPost:
		s.handleScans(w, r)
	default:
		s.methodNotAllowed(w, r)
	}
}

func (s *Server) handleJobByID(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Jobs == nil {
		s.writeError(w, r, http.StatusNotFound, errors.New("job service not available"))
		return
	}
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, r)
		return
	}
	id := pathID(r, "/api/v1/jobs/")
	if id == "" {
		s.writeError(w, r, http.StatusNotFound, errors.New("job ID required"))
		return
	}
	job, err := s.cfg.Jobs.GetJob(r.Context(), id)
	if err != nil || job == nil {
		s.writeError(w, r, http.StatusNotFound, secerrors.ErrJobNotFound)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Jobs == nil {
		s.writeError(w, r, http.StatusNotFound, errors.New("job service not available"))
		return
	}
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, r)
		return
	}
	id := pathID(r, "/api/v1/reports/")
	if id == "" {
		s.writeError(w, r, http.StatusNotFound, errors.New("job ID required"))
		return
	}
	rep, err := s.cfg.Jobs.GetReport(r.Context(), id)
	if err != nil {
		s.writeError(w, r, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleJobStream(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Jobs == nil {
		s.writeError(w, r, http.StatusNotFound, errors.New("job service not available"))
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, r, http.StatusInternalServerError, errors.New("streaming unsupported"))
		return
	}
	updates, unsubscribe := s.cfg.Jobs.Subscribe()
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case job, ok := <-updates:
			if !ok {
				return
			}
			payload, err := json.Marshal(job)
			if err != nil {
				s.requestLogger(r).Error("failed to marshal job", zap.Error(err))
				continue
			}
			if !s.writeStreamChunk(w, []byte("event: job\ndata: ")) {
				return
			}
			if !s.writeStreamChunk(w, payload) {
				return
			}
			if !s.writeStreamChunk(w, []byte("\n\n")) {
				return
			}
			flusher.Flush()
		case <-ctx.Done():
			return
		}
	}
}

// statusFor maps scan and job errors to HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, secerrors.ErrInvalidTarget):
		return http.StatusBadRequest
	case errors.Is(err, secerrors.ErrUnreachable):
		return http.StatusBadGateway
	case errors.Is(err, secerrors.ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrReportNotReady):
		return http.StatusConflict
	case errors.Is(err, secerrors.ErrQueueFull):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func pathID(r *http.Request, prefix string) string {
	return strings.Trim(strings.TrimPrefix(r.URL.Path, prefix), "/")
}

func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.RateLimit <= 0 {
			next.ServeHTTP(w, r)
			return
		}

		addr := clientAddr(r)
		if !s.limiters.allow(addr, s.cfg.RateLimit, s.cfg.RateBurst) {
			s.requestLogger(r).Warn("rate_limit_exceeded", zap.String("client_ip", addr))
			s.writeError(w, r, http.StatusTooManyRequests, errors.New("rate limit exceeded"))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// clientAddr returns the first X-Forwarded-For hop, or the remote host.
func clientAddr(r *http.Request) string {
	clientIP := r.RemoteAddr
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		if idx := strings.Index(forwarded, ","); idx > 0 {
			clientIP = strings.TrimSpace(forwarded[:idx])
		} else {
			clientIP = strings.TrimSpace(forwarded)
		}
	}
	if idx := strings.LastIndex(clientIP, ":"); idx > 0 && !strings.HasSuffix(clientIP, "]") {
		clientIP = clientIP[:idx]
	}
	return clientIP
}

func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		allowOrigin := "*"
		if len(s.cfg.CORSOrigins) > 0 {
			allowOrigin = ""
			for _, allowed := range s.cfg.CORSOrigins {
				if allowed == origin {
					allowOrigin = origin
					break
				}
			}
		}

		if allowOrigin != "" {
			w.Header().Set("Access-Control-Allow-Origin", allowOrigin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Auth-Token")
			w.Header().Set("Access-Control-Max-Age", "3600")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(lrw, r)

		if s.cfg.Logger != nil {
			s.cfg.Logger.Info("http_request",
				zap.String("request_id", middleware.GetRequestID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("remote_addr", r.RemoteAddr),
				zap.Int("status", lrw.statusCode),
				zap.Duration("duration", time.Since(start)),
				zap.Int64("bytes", lrw.bytesWritten),
			)
		}
	})
}

func (s *Server) withAuth(next http.Handler) http.Handler {
	if s.cfg.AuthToken == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get("X-Auth-Token")
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.AuthToken)) != 1 {
			s.writeError(w, r, http.StatusUnauthorized, errors.New("unauthorized"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// loggingResponseWriter wraps http.ResponseWriter to capture status code and bytes written
type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int64
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Write(b []byte) (int, error) {
	n, err := lrw.ResponseWriter.Write(b)
	lrw.bytesWritten += int64(n)
	return n, err
}

// Flush keeps the job stream working through the logging wrapper.
func (lrw *loggingResponseWriter) Flush() {
	if f, ok := lrw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	msg := err.Error()

	// Upstream failures keep their sentinel text; other 5xx details stay in the log.
	switch {
	case status == http.StatusBadGateway:
		msg = secerrors.ErrUnreachable.Error()
	case status == http.StatusServiceUnavailable && errors.Is(err, secerrors.ErrQueueFull):
		msg = secerrors.ErrQueueFull.Error()
	case status == http.StatusGatewayTimeout:
		msg = "scan timed out"
	case status >= 500:
		s.requestLogger(r).Error("internal_server_error",
			zap.Error(err),
			zap.Int("status", status),
		)
		msg = "internal server error"
	}

	writeJSON(w, status, map[string]string{"error": msg})
}

// requestLogger creates a logger with request context (request ID, method, path)
func (s *Server) requestLogger(r *http.Request) *zap.Logger {
	if s.cfg.Logger == nil {
		return zap.NewNop()
	}
	return s.cfg.Logger.With(
		zap.String("request_id", middleware.GetRequestID(r.Context())),
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
	)
}

func (s *Server) methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	s.writeError(w, r, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

func (s *Server) writeStreamChunk(w http.ResponseWriter, data []byte) bool {
	if _, err := w.Write(data); err != nil {
		if s.cfg.Logger != nil {
			s.cfg.Logger.Error("failed to write stream chunk", zap.Error(err))
		}
		return false
	}
	return true
}

// clientLimiters hands out one token bucket per client address. Buckets idle
// longer than clientIdleTTL are dropped, at most once per sweep interval,
// during lookups.
type clientLimiters struct {
	mu        sync.Mutex
	buckets   map[string]*clientBucket
	lastSweep time.Time
}

type clientBucket struct {
	limiter *rate.Limiter
	seen    time.Time
}

const clientIdleTTL = 5 * time.Minute

func newClientLimiters() *clientLimiters {
	return &clientLimiters{buckets: make(map[string]*clientBucket)}
}

func (c *clientLimiters) allow(addr string, rps, burst int) bool {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	if now.Sub(c.lastSweep) > time.Minute {
		for key, b := range c.buckets {
			if now.Sub(b.seen) > clientIdleTTL {
				delete(c.buckets, key)
			}
		}
		c.lastSweep = now
	}

	if burst <= 0 {
		burst = rps
	}
	b, ok := c.buckets[addr]
	if !ok {
		b = &clientBucket{limiter: rate.NewLimiter(rate.Limit(rps), burst)}
		c.buckets[addr] = b
	}
	b.seen = now
	return b.limiter.AllowN(now, 1)
}
