package server

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/lexiqai/gh-activity-agent/internal/observability"
)

// Routes served by the router
const (
	AnalyzePath   = "/api/chat/github-cli/analyze"
	WebSocketPath = "/api/chat/github-cli/ws"
	ToolsPath     = "/api/tools"
)

// RouterConfig wires the HTTP surface
type RouterConfig struct {
	Chat           *ChatService
	Catalog        Catalog
	Checks         map[string]observability.HealthCheckFunc
	AllowedOrigins []string
	MetricsEnabled bool
	Logger         zerolog.Logger
}

// NewRouter builds the service handler with CORS and access logging applied
func NewRouter(cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST "+AnalyzePath, cfg.Chat.HandleAnalyze())
	mux.HandleFunc("GET "+WebSocketPath, cfg.Chat.HandleWebSocket(cfg.AllowedOrigins))
	mux.HandleFunc("GET "+ToolsPath, HandleTools(cfg.Catalog))

	mux.HandleFunc("/health", observability.HealthCheckHandler())
	mux.HandleFunc("/ready", observability.ReadinessHandler(cfg.Checks))
	if cfg.MetricsEnabled {
		mux.Handle("/metrics", promhttp.Handler())
	}

	return AccessLog(cfg.Logger)(CORS(cfg.AllowedOrigins)(mux))
}

// CORS allows the configured front-end origins
func CORS(origins []string) func(http.Handler) http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"X-Session-ID", "X-Request-ID"},
		AllowCredentials: true,
	})
	return c.Handler
}

// AccessLog attaches logger to each request and logs one line per response
func AccessLog(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		h := hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
			hlog.FromRequest(r).Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", status).
				Int("size", size).
				Dur("duration", duration).
				Msg("Request handled")
		})(next)
		h = hlog.RemoteAddrHandler("remote_addr")(h)
		h = hlog.RequestIDHandler("request_id", "X-Request-ID")(h)
		return hlog.NewHandler(logger)(h)
	}
}
