package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"vigil/internal/api"
	"vigil/internal/config"
	"vigil/internal/dispatch"
	"vigil/internal/event"
	"vigil/internal/logging"
	"vigil/internal/metrics"
	"vigil/internal/store"
	"vigil/internal/version"
)

const notificationHistorySize = 256

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	flags := flag.NewFlagSet("vigil", flag.ContinueOnError)
	configPath := flags.String("config", envOr("VIGIL_CONFIG", "vigil.yaml"), "path to the settings file")
	portFlag := flags.Int("port", 0, "listen port (overrides the settings file)")
	levelFlag := flags.String("log-level", "", "minimum log level (overrides the settings file)")
	if err := flags.Parse(args); err != nil {
		return 2
	}

	settings, err := config.Load(*configPath)
	if err != nil {
		logging.NewLogger(nil, logging.LevelError).Error("load settings failed", map[string]string{
			"path":  *configPath,
			"error": err.Error(),
		})
		return 1
	}
	settings = applyOverrides(settings, *portFlag, *levelFlag)
	if err := settings.Validate(); err != nil {
		logging.NewLogger(nil, logging.LevelError).Error("invalid settings", map[string]string{
			"error": err.Error(),
		})
		return 1
	}

	logBuffer := logging.NewBuffer(settings.Log.BufferSize)
	logger := logging.NewLogger(logBuffer, settings.LogLevel())

	shutdownCtx, shutdownCancel := context.WithCancel(context.Background())
	defer shutdownCancel()

	repository, cleanup, err := openStore(shutdownCtx, settings, logger)
	if err != nil {
		logger.Error("open store failed", map[string]string{"error": err.Error()})
		return 1
	}
	defer cleanup()

	roster := settings.AgentRoster()
	if err := store.Seed(shutdownCtx, repository, roster); err != nil {
		logger.Error("seed roster failed", map[string]string{"error": err.Error()})
		return 1
	}
	logger.Info("roster seeded", map[string]string{"agents": strconv.Itoa(len(roster))})

	registry := metrics.Default
	bus := event.NewBus[dispatch.Notification](shutdownCtx, event.BusOptions{
		Name:        "dispatch",
		HistorySize: notificationHistorySize,
		Registry:    registry,
	})
	engine := dispatch.NewEngine(dispatch.Options{
		Store:   repository,
		Bus:     bus,
		Metrics: registry,
		Logger:  logger,
	})

	watcher, err := config.Watch(*configPath, logger, func(updated config.Settings) {
		logger.SetMinLevel(updated.LogLevel())
	})
	if err != nil {
		logger.Warn("settings watcher unavailable", map[string]string{"error": err.Error()})
	} else {
		defer watcher.Close()
	}

	mux := newServeMux(engine, repository, bus, registry, logger, settings.Listen.AllowedOrigins)

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signalCh)
	stopSignals := watchShutdownSignals(logger, shutdownCancel, signalCh)
	defer stopSignals()

	versionInfo := version.GetVersionInfo()
	logger.Info("vigil starting", map[string]string{
		"addr":    settings.ListenAddr(),
		"version": versionInfo.Version,
	})

	if err := runServer(shutdownCtx, settings.ListenAddr(), mux, logger); err != nil {
		logger.Error("server stopped", map[string]string{"error": err.Error()})
		return 1
	}
	return 0
}

func openStore(ctx context.Context, settings config.Settings, logger *logging.Logger) (store.Store, func(), error) {
	switch settings.Store.Backend {
	case config.StoreBackendSQLite:
		sqliteStore, err := store.OpenSQLite(ctx, settings.Store.Path)
		if err != nil {
			return nil, func() {}, err
		}
		logger.Info("using sqlite store", map[string]string{"path": settings.Store.Path})
		return sqliteStore, func() {
			if err := sqliteStore.Close(); err != nil {
				logger.Warn("close sqlite store", map[string]string{"error": err.Error()})
			}
		}, nil
	default:
		return store.NewMemStore(), func() {}, nil
	}
}

func applyOverrides(settings config.Settings, port int, level string) config.Settings {
	if port == 0 {
		if rawPort := os.Getenv("VIGIL_PORT"); rawPort != "" {
			if parsed, err := strconv.Atoi(rawPort); err == nil {
				port = parsed
			}
		}
	}
	if port != 0 {
		settings.Listen.Port = port
	}
	if level == "" {
		level = os.Getenv("VIGIL_LOG_LEVEL")
	}
	if strings.TrimSpace(level) != "" {
		settings.Log.Level = level
	}
	return settings
}

func envOr(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func newServeMux(engine *dispatch.Engine, repository store.Store, bus *event.Bus[dispatch.Notification], registry *metrics.Registry, logger *logging.Logger, allowedOrigins []string) *http.ServeMux {
	mux := http.NewServeMux()
	api.RegisterRoutes(mux, api.RoutesConfig{
		Engine:         engine,
		Store:          repository,
		Bus:            bus,
		Metrics:        registry,
		Logger:         logger,
		AllowedOrigins: allowedOrigins,
	})
	return mux
}
