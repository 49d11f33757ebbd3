// Package httpserver serves the web front end for direct glidein submission.
package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	glidein "github.com/bbockelm/golang-glidein"
	"github.com/bbockelm/golang-glidein/logging"
	"github.com/bbockelm/golang-glidein/ratelimit"
)

// Submitter runs one submission. *glidein.Submitter satisfies it.
type Submitter interface {
	Submit(ctx context.Context, req glidein.SubmitRequest) (*glidein.SubmitResult, error)
}

// QueueLister lists the scheduler queue. *glidein.QueueLister satisfies it.
type QueueLister interface {
	List(ctx context.Context) ([]string, []glidein.QueueRecord, error)
}

// Server is the web front end
type Server struct {
	httpServer *http.Server
	submitter  Submitter
	base       glidein.SubmitRequest
	workspaces *glidein.WorkspaceManager
	queue      QueueLister
	limits     *ratelimit.Manager
	sessions   *SessionSigner
	logger     *logging.Logger

	workspaceTTL  time.Duration
	sweepInterval time.Duration
	stopChan      chan struct{}
	stopOnce      sync.Once
	wg            sync.WaitGroup
}

// Config holds server configuration
type Config struct {
	ListenAddr string // Address to listen on (e.g., ":8080")
	Submitter  Submitter
	// Base carries the collector, frontend, entry, client, idle lifetime and
	// template for every web submission. Overrides are filled in per request.
	Base       glidein.SubmitRequest
	Workspaces *glidein.WorkspaceManager
	Queue      QueueLister
	RateLimits *ratelimit.Manager // nil means unlimited
	SessionKey []byte             // HMAC key for session cookies; generated when empty
	Logger     *logging.Logger
	// WorkspaceTTL enables the retired-workspace sweep when > 0
	WorkspaceTTL  time.Duration
	SweepInterval time.Duration // defaults to WorkspaceTTL/4, at least a minute
}

// NewServer creates a new web server
func NewServer(cfg Config) (*Server, error) {
	if cfg.Submitter == nil || cfg.Workspaces == nil || cfg.Queue == nil {
		return nil, fmt.Errorf("submitter, workspaces and queue lister are required")
	}

	key := cfg.SessionKey
	if len(key) == 0 {
		var err error
		if key, err = GenerateSigningKey(); err != nil {
			return nil, err
		}
		cfg.Logger.Warn(logging.DestinationSecurity, "no session key configured, using an ephemeral one")
	}

	limits := cfg.RateLimits
	if limits == nil {
		limits = ratelimit.NewManager(0, 0, 0, 0)
	}

	sweep := cfg.SweepInterval
	if sweep <= 0 {
		sweep = cfg.WorkspaceTTL / 4
		if sweep < time.Minute {
			sweep = time.Minute
		}
	}

	s := &Server{
		submitter:     cfg.Submitter,
		base:          cfg.Base,
		workspaces:    cfg.Workspaces,
		queue:         cfg.Queue,
		limits:        limits,
		sessions:      NewSessionSigner(key),
		logger:        cfg.Logger,
		workspaceTTL:  cfg.WorkspaceTTL,
		sweepInterval: sweep,
		stopChan:      make(chan struct{}),
	}

	mux := http.NewServeMux()
	s.setupRoutes(mux)

	s.httpServer = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      s.accessLog(mux),
		ReadTimeout:  5 * time.Minute, // uploads
		WriteTimeout: 30 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

// Handler returns the server's root handler
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start starts the HTTP server and, when configured, the workspace sweeper
func (s *Server) Start() error {
	if s.workspaceTTL > 0 {
		s.wg.Add(1)
		go s.sweepLoop()
	}
	s.logger.Info(logging.DestinationHTTP, "starting glidein submit server", "address", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(logging.DestinationHTTP, "shutting down HTTP server")
	s.stopOnce.Do(func() { close(s.stopChan) })
	err := s.httpServer.Shutdown(ctx)
	s.wg.Wait()
	return err
}

func (s *Server) sweepLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.sweepOnce(context.Background())
		}
	}
}

func (s *Server) sweepOnce(ctx context.Context) {
	n, err := s.workspaces.Sweep(ctx, s.workspaceTTL)
	if err != nil {
		s.logger.Error(logging.DestinationWorkspace, "workspace sweep failed", "error", err)
	}
	if n > 0 {
		s.logger.Info(logging.DestinationWorkspace, "swept retired workspaces", "count", n)
	}
	s.limits.Prune(time.Hour)
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code"`
}

// writeError writes an error response
func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	}); err != nil {
		s.logger.Error(logging.DestinationHTTP, "failed to encode error response", "error", err)
	}
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			s.logger.Error(logging.DestinationHTTP, "failed to encode JSON response", "error", err)
		}
	}
}

// statusForError maps pipeline and workspace failures to HTTP status codes
func statusForError(err error) int {
	var (
		notFound   *glidein.NotFoundError
		validation *glidein.ValidationError
		decryption *glidein.DecryptionError
		allocation *glidein.AllocationError
		submission *glidein.SubmissionError
		incomplete *glidein.TemplateIncompleteError
		listing    *glidein.QueueListingError
	)
	switch {
	case ratelimit.IsRateLimitError(err):
		return http.StatusTooManyRequests
	case errors.Is(err, glidein.ErrWorkspaceNotFound), errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &validation):
		return http.StatusForbidden
	case errors.As(err, &decryption), errors.As(err, &submission), errors.As(err, &listing):
		return http.StatusBadGateway
	case errors.As(err, &allocation):
		return http.StatusInsufficientStorage
	case errors.As(err, &incomplete):
		return http.StatusInternalServerError
	}
	return http.StatusInternalServerError
}

// statusRecorder captures the status and size of a response for the access log
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(b)
	r.bytes += n
	return n, err
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		if rec.status == 0 {
			rec.status = http.StatusOK
		}
		s.logger.Info(logging.DestinationHTTP, "HTTP request",
			"client_ip", clientIP(r),
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
			"bytes", rec.bytes,
			"user_agent", r.UserAgent(),
		)
	})
}

// clientIP is the rate-limit key for a request
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
