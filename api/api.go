// Package api exposes the logtest engine over HTTP: a websocket
// endpoint for streaming sessions, a single-shot token endpoint for
// stateless clients, plus health and metrics.
package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"argus/config"
	"argus/session"
)

// rateLimiterEntry holds a per-client limiter with last seen time.
type rateLimiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// API is the logtest HTTP server. It owns the router and the
// connection-level concerns; all engine semantics live behind the
// session manager and processor.
type API struct {
	manager   *session.Manager
	processor *session.Processor
	config    *config.Config
	logger    *zap.SugaredLogger
	server    *http.Server

	rateLimiters   map[string]*rateLimiterEntry
	rateLimitersMu sync.Mutex

	cleanupCtx    context.Context
	cleanupCancel context.CancelFunc
	cleanupWg     sync.WaitGroup
}

// NewAPI creates the API server and registers all routes.
func NewAPI(manager *session.Manager, processor *session.Processor, cfg *config.Config, logger *zap.SugaredLogger) *API {
	ctx, cancel := context.WithCancel(context.Background())
	a := &API{
		manager:       manager,
		processor:     processor,
		config:        cfg,
		logger:        logger,
		rateLimiters:  make(map[string]*rateLimiterEntry),
		cleanupCtx:    ctx,
		cleanupCancel: cancel,
	}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", a.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	lt := r.PathPrefix("/logtest").Subrouter()
	lt.Use(a.rateLimitMiddleware, a.loggingMiddleware)
	lt.HandleFunc("/ws", a.handleWebsocket).Methods(http.MethodGet)
	lt.HandleFunc("", a.handleAnalyze).Methods(http.MethodPost)
	lt.HandleFunc("/sessions/{token}", a.handleCloseSession).Methods(http.MethodDelete)

	a.server = &http.Server{
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	a.cleanupWg.Add(1)
	go a.cleanupRateLimiters()

	return a
}

// Start listens and serves until Stop is called.
func (a *API) Start() error {
	addr := fmt.Sprintf("%s:%d", a.config.Server.Host, a.config.Server.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	a.logger.Infof("Logtest API listening on %s", addr)
	if err := a.server.Serve(ln); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop shuts the server down gracefully: stop accepting, drain active
// requests within the context deadline.
func (a *API) Stop(ctx context.Context) error {
	a.cleanupCancel()
	err := a.server.Shutdown(ctx)
	a.cleanupWg.Wait()
	return err
}

// Handler returns the configured HTTP handler, for tests.
func (a *API) Handler() http.Handler {
	return a.server.Handler
}

// rateLimitMiddleware applies a per-client-IP token bucket.
func (a *API) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)

		a.rateLimitersMu.Lock()
		entry, exists := a.rateLimiters[ip]
		if !exists {
			entry = &rateLimiterEntry{
				limiter: rate.NewLimiter(
					rate.Limit(a.config.Server.RateLimit.RequestsPerSecond),
					a.config.Server.RateLimit.Burst),
			}
			a.rateLimiters[ip] = entry
		}
		entry.lastSeen = time.Now()
		limiter := entry.limiter
		a.rateLimitersMu.Unlock()

		if !limiter.Allow() {
			http.Error(w, "Too many requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware records one debug line per request.
func (a *API) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		a.logger.Debugw("Request handled",
			"method", r.Method,
			"path", r.URL.Path,
			"remote", r.RemoteAddr,
			"duration", time.Since(start))
	})
}

// cleanupRateLimiters drops limiter entries for clients not seen for
// an hour.
func (a *API) cleanupRateLimiters() {
	defer a.cleanupWg.Done()
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			a.rateLimitersMu.Lock()
			for ip, entry := range a.rateLimiters {
				if time.Since(entry.lastSeen) > time.Hour {
					delete(a.rateLimiters, ip)
				}
			}
			a.rateLimitersMu.Unlock()
		case <-a.cleanupCtx.Done():
			return
		}
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
