package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/brojonat/mintledger/service/ledger"
	"github.com/brojonat/mintledger/service/metrics"
	"github.com/klauspost/compress/gzhttp"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server serves the ledger query API and the webhook listener.
type Server struct {
	addr       string
	webhookKey string
	store      ledger.Store
	ingester   Ingester
	metrics    *metrics.Metrics
	logger     *slog.Logger
	server     *http.Server
}

// New creates a new HTTP server with the given dependencies.
// The ingester is optional - if nil, the webhook route isn't registered.
// The metrics is optional - if nil, the metrics endpoint isn't available.
func New(addr, webhookKey string, store ledger.Store, ingester Ingester, m *metrics.Metrics, logger *slog.Logger) *Server {
	return &Server{
		addr:       addr,
		webhookKey: webhookKey,
		store:      store,
		ingester:   ingester,
		metrics:    m,
		logger:     logger,
	}
}

// Handler builds the routed, instrumented and compressed handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	route := func(pattern, name string, h http.Handler) {
		mux.Handle(pattern, metrics.HTTPMetricsMiddleware(s.metrics, name)(h))
	}

	route("GET /token-account/{address}", "/token-account", handleGetTokenAccount(s.store, s.logger))
	route("GET /balance/{address}", "/balance", handleGetBalance(s.store, s.logger))
	route("GET /mint/{mint}", "/mint", handleGetMint(s.store, s.logger))
	route("GET /all-balances", "/all-balances", handleListBalances(s.store, s.logger))
	route("GET /all-accounts", "/all-accounts", handleListAccounts(s.store, s.logger))
	route("GET /events", "/events", handleListEvents(s.store, s.logger))

	if s.ingester != nil {
		route("POST /programListener", "/programListener", handleProgramListener(s.ingester, s.webhookKey, s.logger))
	} else {
		s.logger.Warn("no ingester configured, webhook listener disabled")
	}

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	if s.metrics != nil {
		mux.Handle("GET /metrics", promhttp.Handler())
	}

	return gzhttp.GzipHandler(corsMiddleware(mux))
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:        s.addr,
		Handler:     s.Handler(),
		ReadTimeout: 15 * time.Second,
		// webhook deliveries wait on confirmation polls
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting HTTP server", "addr", s.addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	if s.server != nil {
		return s.server.Shutdown(ctx)
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

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
