package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/brojonat/solxfer/service/metrics"
	natspkg "github.com/brojonat/solxfer/service/nats"
	"github.com/brojonat/solxfer/service/transfer"
	"github.com/brojonat/solxfer/service/wallet"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server represents the HTTP server for the transfer form.
type Server struct {
	addr       string
	network    string
	form       *transfer.Form
	wallets    *wallet.Registry
	subscriber natspkg.Subscriber
	renderer   *TemplateRenderer
	metrics    *metrics.Metrics
	logger     *slog.Logger

	mu       sync.Mutex
	server   *http.Server
	shutdown bool
}

// New creates a new HTTP server with the given dependencies.
// The subscriber is optional - if nil, the SSE endpoint won't be available.
// The metrics is optional - if nil, the metrics endpoint won't be available.
func New(addr, network string, form *transfer.Form, wallets *wallet.Registry, subscriber natspkg.Subscriber, m *metrics.Metrics, logger *slog.Logger) *Server {
	return &Server{
		addr:       addr,
		network:    network,
		form:       form,
		wallets:    wallets,
		subscriber: subscriber,
		metrics:    m,
		logger:     logger,
	}
}

// WithTemplates adds template rendering support to the server using embedded files
func (s *Server) WithTemplates() error {
	renderer, err := NewTemplateRenderer(s.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize templates: %w", err)
	}
	s.renderer = renderer
	s.logger.Info("HTML templates loaded from embedded files")
	return nil
}

// Handler builds the routed handler with all middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	instrument := s.metrics.Instrument

	// JSON API
	mux.Handle("GET /api/v1/form", instrument("/api/v1/form", handleGetForm(s.form, s.wallets)))
	mux.Handle("POST /api/v1/transfers", instrument("/api/v1/transfers", handleSubmitTransfer(s.form, s.logger)))
	mux.Handle("GET /api/v1/wallets", instrument("/api/v1/wallets", handleListWallets(s.wallets, s.network)))

	// SSE streaming endpoint (if a subscriber is configured)
	if s.subscriber != nil {
		mux.Handle("GET /api/v1/stream/transfers", handleStreamTransfers(s.subscriber, s.metrics, s.logger))
		s.logger.Info("SSE streaming endpoint enabled")
	} else {
		s.logger.Warn("NATS not configured, streaming endpoint disabled")
	}

	// HTML pages (if template renderer is configured)
	if s.renderer != nil {
		page := &formPage{
			renderer:      s.renderer,
			form:          s.form,
			wallets:       s.wallets,
			network:       s.network,
			streamEnabled: s.subscriber != nil,
			logger:        s.logger,
		}
		mux.Handle("GET /{$}", instrument("/", page.handleIndex()))
		mux.Handle("POST /wallet/connect", instrument("/wallet/connect", page.handleConnect()))
		mux.Handle("POST /wallet/disconnect", instrument("/wallet/disconnect", page.handleDisconnect()))
		mux.Handle("POST /transfer", instrument("/transfer", page.handleTransfer()))
		s.logger.Info("HTML page endpoints enabled")
	}

	// Health check endpoint
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Prometheus metrics endpoint (if metrics collector is configured)
	if s.metrics != nil {
		mux.Handle("GET /metrics", promhttp.Handler())
		s.logger.Info("Prometheus metrics endpoint enabled")
	}

	return corsMiddleware(mux)
}

// Start starts the HTTP server.
// It returns nil once Shutdown has been called, even when Shutdown ran first.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return nil
	}
	srv := &http.Server{
		Addr:        s.addr,
		Handler:     s.Handler(),
		ReadTimeout: 15 * time.Second,
		// No write timeout: a transfer request lasts until confirmation and
		// SSE streams are long-lived.
		IdleTimeout: 60 * time.Second,
	}
	s.server = srv
	s.mu.Unlock()

	s.logger.Info("starting HTTP server", "addr", s.addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	s.mu.Lock()
	s.shutdown = true
	srv := s.server
	s.mu.Unlock()

	if srv != nil {
		return srv.Shutdown(ctx)
	}
	return nil
}

// corsMiddleware adds CORS headers to all responses and handles OPTIONS preflight requests.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "3600")

		// Handle preflight OPTIONS requests
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
