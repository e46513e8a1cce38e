// Package http hosts the read-mostly HTTP surface: the mux router,
// middleware chain, and the request/response shapes a single endpoint
// assembles from several repository calls.
package http

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/transferintel/scout/internal/cache"
	"github.com/transferintel/scout/internal/config"
	"github.com/transferintel/scout/internal/metrics"
	"github.com/transferintel/scout/internal/net/ratelimit"
	"github.com/transferintel/scout/internal/persistence"
	"github.com/transferintel/scout/internal/timetravel"
	"github.com/transferintel/scout/internal/whatchanged"
)

// Server wires the router, middleware chain, and handlers together.
type Server struct {
	router   *mux.Router
	server   *http.Server
	handlers *Handlers
	limiter  *ratelimit.Limiter
	metrics  *metrics.Collector
	cfg      config.HTTPConfig
}

// NewServer builds the full HTTP surface: every route, rate
// limiting, prometheus instrumentation, and the admin API-key guard.
func NewServer(cfg config.HTTPConfig, repo *persistence.Repository, reader *timetravel.Reader, detector *whatchanged.Detector, health persistence.RepositoryHealth, cacheClient *cache.Cache, collector *metrics.Collector) *Server {
	s := &Server{
		router:  mux.NewRouter(),
		handlers: NewHandlers(repo, reader, detector, health, cacheClient, cfg),
		limiter:  ratelimit.NewLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst),
		metrics:  collector,
		cfg:      cfg,
	}
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.RequestTimeout,
		WriteTimeout: cfg.RequestTimeout,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.requestLoggingMiddleware)
	s.router.Use(s.timeoutMiddleware)
	s.router.Use(s.corsMiddleware)
	s.router.Use(s.rateLimitMiddleware)

	s.router.HandleFunc("/health", s.instrumented("/health", s.handlers.Health)).Methods(http.MethodGet)
	s.router.HandleFunc("/ready", s.instrumented("/ready", s.handlers.Ready)).Methods(http.MethodGet)
	s.router.HandleFunc("/live", s.instrumented("/live", s.handlers.Live)).Methods(http.MethodGet)

	api := s.router.PathPrefix("/").Subrouter()
	api.Use(s.jsonContentTypeMiddleware)

	api.HandleFunc("/search", s.instrumented("/search", s.handlers.Search)).Methods(http.MethodGet)
	api.HandleFunc("/players/{id}", s.instrumented("/players/{id}", s.handlers.PlayerDetail)).Methods(http.MethodGet)
	api.HandleFunc("/players/{id}/signals", s.instrumented("/players/{id}/signals", s.handlers.PlayerSignals)).Methods(http.MethodGet)
	api.HandleFunc("/players/{id}/predictions", s.instrumented("/players/{id}/predictions", s.handlers.PlayerPredictions)).Methods(http.MethodGet)
	api.HandleFunc("/clubs/{id}", s.instrumented("/clubs/{id}", s.handlers.ClubDetail)).Methods(http.MethodGet)
	api.HandleFunc("/market/latest", s.instrumented("/market/latest", s.handlers.MarketLatest)).Methods(http.MethodGet)

	api.HandleFunc("/events/user", s.instrumented("/events/user", s.handlers.PostUserEvent)).Methods(http.MethodPost)

	admin := api.PathPrefix("/admin").Subrouter()
	admin.Use(s.adminAuthMiddleware)
	admin.HandleFunc("/transfer_events", s.instrumented("/admin/transfer_events", s.handlers.AdminTransferEvent)).Methods(http.MethodPost)
	admin.HandleFunc("/signal_events", s.instrumented("/admin/signal_events", s.handlers.AdminSignalEvent)).Methods(http.MethodPost)
	admin.HandleFunc("/rebuild/materialized", s.instrumented("/admin/rebuild/materialized", s.handlers.AdminRebuildMaterialized)).Methods(http.MethodPost)

	s.router.HandleFunc("/metrics", s.metrics.Handler().ServeHTTP).Methods(http.MethodGet)
	s.router.NotFoundHandler = http.HandlerFunc(s.handlers.NotFound)
}

func (s *Server) instrumented(route string, next http.HandlerFunc) http.HandlerFunc {
	return s.metrics.InstrumentRoute(route, next)
}

type requestIDKey struct{}

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.New().String()[:8]
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, requestID)))
	})
}

func (s *Server) requestLoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapper := &responseWrapper{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapper, r)

		log.Info().
			Str("request_id", fmt.Sprint(r.Context().Value(requestIDKey{}))).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapper.statusCode).
			Dur("duration", time.Since(start)).
			Str("remote_addr", r.RemoteAddr).
			Msg("http request")
	})
}

func (s *Server) timeoutMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		for _, allowed := range s.cfg.CORSOrigins {
			if allowed == "*" || allowed == origin {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				break
			}
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-API-Key")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// rateLimitMiddleware applies the per-key token-bucket limiter, keyed
// by a SHA-256 hash of the X-API-Key header when present, otherwise the
// client IP, returning 429 with Retry-After on exhaustion.
func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := clientIP(r)
		if apiKey := r.Header.Get("X-API-Key"); apiKey != "" {
			sum := sha256.Sum256([]byte(apiKey))
			key = hex.EncodeToString(sum[:])
		}
		if !s.limiter.Allow(key) {
			w.Header().Set("Retry-After", "60")
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			fmt.Fprintf(w, `{"error":"rate_limited","message":"too many requests"}`)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	return r.RemoteAddr
}

// adminAuthMiddleware guards every /admin/* route with the X-API-Key
// header; an empty configured key disables the surface entirely
// rather than accepting any key.
func (s *Server) adminAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("X-API-Key")
		if s.cfg.AdminAPIKey == "" || key != s.cfg.AdminAPIKey {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprintf(w, `{"error":"unauthorized","message":"missing or invalid X-API-Key"}`)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) jsonContentTypeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// Start begins serving; it blocks until Shutdown is called or the
// listener fails.
func (s *Server) Start() error {
	log.Info().Int("port", s.cfg.Port).Msg("starting http server")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("shutting down http server")
	return s.server.Shutdown(ctx)
}

// Address returns the address the server listens on.
func (s *Server) Address() string {
	return s.server.Addr
}

// responseWrapper captures the response status code for logging.
type responseWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWrapper) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
