package server

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gaspardpetit/chatrelay/internal/api"
	"github.com/gaspardpetit/chatrelay/internal/config"
	"github.com/gaspardpetit/chatrelay/internal/metrics"
	"github.com/gaspardpetit/chatrelay/internal/relay"
)

// Options carries the collaborators of the HTTP handler. Zero values are
// replaced with the production implementations.
type Options struct {
	Version string
	// Chat serves POST /api/chat; defaults to a relay built from the config.
	Chat http.Handler
	// Registry backs /metrics when it is served on the main port.
	Registry *prometheus.Registry
}

// New constructs the HTTP handler for the server.
func New(cfg config.ServerConfig, opts Options) http.Handler {
	if opts.Chat == nil {
		opts.Chat = relay.NewFromConfig(cfg)
	}
	if opts.Registry == nil {
		opts.Registry = metrics.NewRegistry()
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}

	r := chi.NewRouter()
	if len(cfg.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.AllowedOrigins,
			AllowedMethods: []string{"GET", "HEAD", "POST", "OPTIONS"},
			AllowedHeaders: []string{"*"},
		}))
	}
	for _, m := range api.MiddlewareChain() {
		r.Use(m)
	}
	r.Use(chiMiddleware.GetHead)

	r.Get("/health", HealthHandler)
	r.Route("/api", func(ar chi.Router) {
		ar.Method(http.MethodPost, "/chat", opts.Chat)
		ar.Get("/openapi.json", api.OpenAPIHandler(opts.Version))
	})
	if cfg.MetricsAddr == "" || cfg.MetricsAddr == fmt.Sprintf(":%d", cfg.Port) {
		r.Handle("/metrics", promhttp.HandlerFor(opts.Registry, promhttp.HandlerOpts{}))
	}

	static := StaticFS(cfg.StaticDir)
	index := cfg.IndexFile
	if index == "" {
		index = config.DefaultIndexFile
	}
	r.Get("/", IndexHandler(static, index))
	r.Get("/*", StaticHandler(static).ServeHTTP)

	return r
}

// HealthHandler answers liveness probes. It never touches the upstream.
func HealthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}
