package api

import (
	"net/http"
	"time"

	"vigil/internal/dispatch"
	"vigil/internal/event"
	"vigil/internal/logging"
	"vigil/internal/metrics"
	"vigil/internal/store"
)

type RoutesConfig struct {
	Engine         *dispatch.Engine
	Store          store.Store
	Bus            *event.Bus[dispatch.Notification]
	Metrics        *metrics.Registry
	Logger         *logging.Logger
	AllowedOrigins []string
	StartTime      time.Time
}

func RegisterRoutes(mux *http.ServeMux, config RoutesConfig) {
	startTime := config.StartTime
	if startTime.IsZero() {
		startTime = time.Now().UTC()
	}
	rest := &RestHandler{
		Store:     config.Store,
		Engine:    config.Engine,
		Metrics:   config.Metrics,
		Logger:    config.Logger,
		StartTime: startTime,
	}
	wrap := func(handler http.Handler) http.Handler {
		return loggingMiddleware(config.Logger, handler)
	}

	mux.Handle("/ws", securityHeadersMiddleware(cacheControlNoStore, &DispatchHandler{
		Engine:         config.Engine,
		Logger:         config.Logger,
		AllowedOrigins: config.AllowedOrigins,
	}))
	mux.Handle("/ws/logs", securityHeadersMiddleware(cacheControlNoStore, &LogsHandler{
		Logger:         config.Logger,
		AllowedOrigins: config.AllowedOrigins,
	}))
	mux.Handle("/ws/monitor", securityHeadersMiddleware(cacheControlNoStore, &MonitorHandler{
		Bus:            config.Bus,
		Logger:         config.Logger,
		AllowedOrigins: config.AllowedOrigins,
	}))

	mux.Handle("/api/agents", wrap(restHandler(rest.handleAgents)))
	mux.Handle("/api/missions", wrap(restHandler(rest.handleMissions)))
	mux.Handle("/api/status", wrap(restHandler(rest.handleStatus)))
	mux.Handle("/api/metrics", wrap(restHandler(rest.handleMetrics)))
	mux.Handle("/api/", securityHeadersMiddleware(cacheControlNoStore, http.NotFoundHandler()))

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		setSecurityHeaders(w, cacheControlNoStore)
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("vigil ok\n"))
	})
}
