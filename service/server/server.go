package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/brojonat/soltrack/service/config"
	"github.com/brojonat/soltrack/service/db"
	"github.com/brojonat/soltrack/service/metrics"
	txsync "github.com/brojonat/soltrack/service/sync"
	"github.com/brojonat/soltrack/service/valuation"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
)

// Syncer runs one incremental sync.
type Syncer interface {
	Sync(ctx context.Context) *txsync.Result
}

// Valuer values the tracked wallet's holdings.
type Valuer interface {
	NetWorth(ctx context.Context) (*valuation.Portfolio, error)
}

// Server is the dashboard HTTP server.
type Server struct {
	addr         string
	cfg          *config.Config
	opener       db.Opener
	syncer       Syncer
	valuer       Valuer
	ssePublisher *SSEPublisher
	renderer     *TemplateRenderer
	metrics      *metrics.Metrics
	logger       *slog.Logger
	server       *http.Server

	// syncMu allows at most one sync to write at a time.
	syncMu sync.Mutex
}

// New creates a new HTTP server with the given dependencies.
// The ssePublisher is optional - if nil, the streaming endpoint is disabled.
// The metrics is optional - if nil, /metrics is not served.
func New(addr string, cfg *config.Config, opener db.Opener, syncer Syncer, valuer Valuer, ssePublisher *SSEPublisher, m *metrics.Metrics, logger *slog.Logger) *Server {
	return &Server{
		addr:         addr,
		cfg:          cfg,
		opener:       opener,
		syncer:       syncer,
		valuer:       valuer,
		ssePublisher: ssePublisher,
		metrics:      m,
		logger:       logger,
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

// Handler builds the routed, CORS-wrapped handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	route := func(pattern, name string, h http.Handler) {
		mux.Handle(pattern, metrics.HTTPMetricsMiddleware(s.metrics, name)(h))
	}

	route("GET /api/v1/summary", "/api/v1/summary", handleSummary(s.opener, s.logger))
	route("GET /api/v1/transactions", "/api/v1/transactions", handleListTransactions(s.opener, s.logger))
	route("GET /api/v1/transactions/{signature}", "/api/v1/transactions/{signature}", handleGetTransaction(s.opener, s.cfg.WalletAddress, s.logger))
	route("GET /api/v1/swaps", "/api/v1/swaps", handleListSwaps(s.opener, s.cfg.WalletAddress, s.logger))
	route("GET /api/v1/holdings", "/api/v1/holdings", handleHoldings(s.valuer, s.logger))
	route("POST /api/v1/sync", "/api/v1/sync", handleSync(s.syncer, &s.syncMu, s.logger))

	if s.ssePublisher != nil {
		mux.Handle("GET /api/v1/stream/transactions", handleStreamTransactions(s.ssePublisher, s.cfg.WalletAddress, s.logger))
		s.logger.Info("SSE streaming endpoint enabled")
	}

	if s.renderer != nil {
		route("GET /{$}", "/", handleDashboardPage(s.renderer, s.opener, s.valuer, s.ssePublisher != nil, s.logger))
		s.logger.Info("HTML page endpoints enabled")
	}

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	if s.metrics != nil {
		mux.Handle("GET /metrics", promhttp.Handler())
	}

	origins := s.cfg.CORSAllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		MaxAge:         3600,
	})
	return c.Handler(mux)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute, // a sync may page through a long history
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

	if s.ssePublisher != nil {
		s.ssePublisher.Close()
	}
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
