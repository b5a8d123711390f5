// Package controller contains the HTTP API of the layer builder.
package controller

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"layerplane/internal/controller/handlers"
	"layerplane/internal/controller/middleware"
	"layerplane/internal/store"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Options configures the server.
type Options struct {
	Addr            string
	APIToken        string
	RateLimit       float64
	RateLimitBurst  int
	WriteTimeout    time.Duration // Must exceed the build timeout
	ShutdownTimeout time.Duration
	Metrics         http.Handler // Served on /metrics when set
	Logger          *slog.Logger
}

// Server is the HTTP server for the layer API.
type Server struct {
	httpServer      *http.Server
	shutdownTimeout time.Duration
}

// New creates a new controller server.
func New(opts Options, gen handlers.LayerGenerator, builds store.BuildStore, docker handlers.Pinger) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 20 * time.Minute
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 30 * time.Second
	}

	return &Server{
		httpServer: &http.Server{
			Addr:              opts.Addr,
			Handler:           NewHandler(opts, gen, builds, docker),
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      opts.WriteTimeout,
		},
		shutdownTimeout: opts.ShutdownTimeout,
	}
}

// NewHandler builds the routed and instrumented handler tree.
func NewHandler(opts Options, gen handlers.LayerGenerator, builds store.BuildStore, docker handlers.Pinger) http.Handler {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	h := handlers.New(gen, builds, docker, opts.Logger)
	authMW := middleware.RequireToken(opts.APIToken)
	rateMW := middleware.NewRateLimiter(opts.RateLimit, opts.RateLimitBurst).Middleware()

	mux := http.NewServeMux()

	// Probes and metrics stay open for orchestrators and scrapers.
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
	if opts.Metrics != nil {
		mux.Handle("GET /metrics", opts.Metrics)
	}

	generate := authMW(rateMW(http.HandlerFunc(h.GenerateLayer)))
	mux.Handle("POST /generate_layer/{$}", generate)
	mux.Handle("POST /generate_layer", generate)
	mux.Handle("GET /versions", authMW(http.HandlerFunc(h.Versions)))
	mux.Handle("GET /builds", authMW(http.HandlerFunc(h.ListBuilds)))

	handler := middleware.RequestID(middleware.AccessLog(opts.Logger)(mux))
	return otelhttp.NewHandler(handler, "layerplane",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}

// Run starts the HTTP server. It blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
		shutDownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()

		return s.Shutdown(shutDownCtx)
	}
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
