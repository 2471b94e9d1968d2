package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/brojonat/solclient/service/metrics"
	"github.com/brojonat/solclient/service/state"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server is the status HTTP server of a running client.
type Server struct {
	addr      string
	store     *state.Store
	txns      TransactionLister
	transfers TransferStarter
	events    *EventStream
	metrics   *metrics.Metrics
	logger    *slog.Logger
	server    *http.Server
}

// New creates a new HTTP server with the given dependencies.
// txns is optional - if nil, the transaction history endpoints are not served.
// transfers is optional - if nil, transfers cannot be started over HTTP.
// events is optional - if nil, the transaction event stream is not served.
// The metrics is optional - if nil, the metrics endpoint won't be available.
func New(addr string, store *state.Store, txns TransactionLister, transfers TransferStarter, events *EventStream, m *metrics.Metrics, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		addr:      addr,
		store:     store,
		txns:      txns,
		transfers: transfers,
		events:    events,
		metrics:   m,
		logger:    logger,
	}
}

// Handler builds the routed handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	s.handle(mux, "GET /api/v1/state", "/api/v1/state", handleGetState(s.store))
	s.handle(mux, "GET /api/v1/state/stream", "/api/v1/state/stream", handleStateStream(s.store, s.metrics, s.logger))

	if s.txns != nil {
		s.handle(mux, "GET /api/v1/transactions", "/api/v1/transactions", handleListTransactions(s.txns, s.logger))
		s.handle(mux, "GET /api/v1/transactions/{id}", "/api/v1/transactions/{id}", handleGetTransaction(s.txns, s.logger))
	} else {
		s.logger.Warn("transaction store not configured, history endpoints disabled")
	}

	if s.transfers != nil {
		s.handle(mux, "POST /api/v1/transfers", "/api/v1/transfers", handleStartTransfer(s.transfers, s.logger))
	}

	if s.events != nil {
		s.handle(mux, "GET /api/v1/stream/transactions/{address}", "/api/v1/stream/transactions/{address}", handleStreamTransactions(s.events, s.metrics, s.logger))
		s.handle(mux, "GET /api/v1/stream/transactions", "/api/v1/stream/transactions", handleStreamTransactions(s.events, s.metrics, s.logger))
		s.logger.Info("transaction event stream enabled")
	}

	// Health check endpoint
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
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

func (s *Server) handle(mux *http.ServeMux, pattern, name string, h http.Handler) {
	mux.Handle(pattern, metrics.HTTPMetricsMiddleware(s.metrics, name)(h))
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
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

	// Close the event stream first (disconnects all stream clients)
	if s.events != nil {
		s.events.Close()
	}

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
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Idempotency-Key")
		w.Header().Set("Access-Control-Max-Age", "3600")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
