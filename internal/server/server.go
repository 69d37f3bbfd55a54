// Package server implements the HTTP server that exposes the document
// analysis engine via a REST API. The server is started by the
// `paperlens serve` CLI command.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/paperlens/paperlens-go/internal/logging"
	"github.com/paperlens/paperlens-go/internal/parser"
	"github.com/paperlens/paperlens-go/internal/startup"
	"github.com/paperlens/paperlens-go/internal/store"
)

// defaultMaxUploadBytes caps uploaded documents at 32 MiB.
const defaultMaxUploadBytes = 32 << 20

// Options carries the optional collaborators for New. Zero values are valid:
// a nil Registry falls back to the default Prometheus registry, a nil History
// disables query history, a nil Boot makes /api/ready skip startup flags.
type Options struct {
	// Boot reports startup readiness on /api/ready.
	Boot *startup.Orchestrator
	// History records answered queries.
	History store.HistoryStore
	// Registry receives the server's Prometheus metrics.
	Registry prometheus.Registerer
}

// New constructs a Server from the engine, document parser, and config.
func New(svc service, p parser.Parser, cfg *Config, opts *Options) (*Server, error) {
	if svc == nil {
		return nil, fmt.Errorf("server: engine must not be nil")
	}
	if p == nil {
		return nil, fmt.Errorf("server: parser must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if opts == nil {
		opts = &Options{}
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		// WriteTimeout must cover the slowest generation request.
		cfg.WriteTimeout = 5 * time.Minute
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.MaxUploadBytes == 0 {
		cfg.MaxUploadBytes = defaultMaxUploadBytes
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = defaultRateBurst
	}
	log := cfg.Logger
	if log == nil {
		log = logging.New()
	}
	reg := opts.Registry
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	s := &Server{
		engine:  svc,
		parser:  p,
		boot:    opts.Boot,
		history: opts.History,
		cfg:     cfg,
		log:     log,
		pingers: cfg.Pingers,
		metrics: newServerMetrics(reg),
	}

	rl, stopRL := newRateLimiter(cfg.RateLimit, cfg.RateBurst, log)
	s.stopRL = stopRL

	if cfg.APIKey == "" {
		log.Warn("server: PAPERLENS_API_KEY not set — API authentication disabled")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/documents", s.handleUpload)
	mux.HandleFunc("GET /api/documents", s.handleListDocuments)
	mux.HandleFunc("GET /api/documents/{id}", s.handleGetDocument)
	mux.HandleFunc("DELETE /api/documents/{id}", s.handleDeleteDocument)
	mux.HandleFunc("POST /api/query", s.handleQuery)
	mux.HandleFunc("GET /api/search", s.handleSearch)
	mux.HandleFunc("POST /api/documents/{id}/query", s.handleDocumentQuery)
	mux.HandleFunc("POST /api/documents/{id}/summary", s.handleSummary)
	mux.HandleFunc("POST /api/documents/{id}/explanation", s.handleAttribution)
	mux.HandleFunc("POST /api/documents/{id}/explain-text", s.handleExplain)
	mux.HandleFunc("GET /api/documents/{id}/related", s.handleRelated)
	mux.HandleFunc("POST /api/synthesize", s.handleSynthesize)
	mux.HandleFunc("GET /api/history", s.handleHistory)
	mux.HandleFunc("GET /api/index/health", s.handleIndexHealth)
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/ready", s.handleReady)

	// Middleware order (outermost first): request logging, metrics,
	// rate limiting, then authentication. Health and readiness stay
	// unauthenticated so orchestrators can probe without credentials.
	protected := authMiddleware(cfg.APIKey, mux)
	chained := requestLogger(log, s.httpMetrics(rl.middleware(s.exempt(mux, protected))))

	root := http.NewServeMux()
	root.Handle("/api/", chained)
	root.Handle("GET /metrics", promhttp.HandlerFor(registryGatherer(reg), promhttp.HandlerOpts{}))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      root,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// exempt routes health and readiness probes straight to the mux, bypassing
// authentication; everything else goes through the protected chain.
func (s *Server) exempt(mux *http.ServeMux, protected http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/health", "/api/ready":
			mux.ServeHTTP(w, r)
		default:
			protected.ServeHTTP(w, r)
		}
	})
}

// registryGatherer returns reg as a Gatherer when possible, falling back to
// the default gatherer for non-Registry Registerers (wrapped registries).
func registryGatherer(reg prometheus.Registerer) prometheus.Gatherer {
	if g, ok := reg.(prometheus.Gatherer); ok {
		return g
	}
	return prometheus.DefaultGatherer
}

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.log.Info("paperlens server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		s.stopRL()
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		s.stopRL()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		return nil
	}
}
