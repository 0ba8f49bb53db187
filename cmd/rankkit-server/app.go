package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"rankkit/adapters/jsonfile"
	mem "rankkit/adapters/memory"
	redisAdapter "rankkit/adapters/redis"
	sqlxAdapter "rankkit/adapters/sqlx"
	"rankkit/api/httpapi"
	"rankkit/config"
	"rankkit/engine"
	"rankkit/integrations/webhook"
	"rankkit/leaderboard"
	"rankkit/metrics"
	"rankkit/rank"
	"rankkit/realtime"
)

// App aggregates the assembled server components.
type App struct {
	Config  *config.Config
	Logger  *slog.Logger
	Hub     *realtime.Hub
	Metrics *metrics.Recorder
	Service *engine.Service
	Handler http.Handler
	Server  *http.Server
}

// provideConfig reads RANKKIT_CONFIG_FILE when set, otherwise the profile
// named by RANKKIT_PROFILE, otherwise defaults plus environment.
func provideConfig() (*config.Config, error) {
	if path := os.Getenv("RANKKIT_CONFIG_FILE"); path != "" {
		return config.LoadFromFile(path)
	}
	if profile := os.Getenv("RANKKIT_PROFILE"); profile != "" && profile != "default" {
		return config.LoadProfile(profile)
	}
	return config.Load()
}

func provideLogger(cfg *config.Config) *slog.Logger {
	return setupLogging(cfg, os.Stdout, os.Stderr)
}

func provideHub() *realtime.Hub {
	return realtime.NewHub()
}

func provideMetrics(cfg *config.Config, hub *realtime.Hub) *metrics.Recorder {
	registry := prometheus.NewRegistry()
	if cfg.Metrics.CollectSystem {
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	rec := metrics.New(metrics.WithRegistry(registry))
	rec.WatchGauge("realtime", "subscribers", "Connected realtime subscribers.", func() float64 {
		return float64(hub.Subscribers())
	})
	rec.WatchGauge("realtime", "dropped_events", "Events dropped for slow realtime subscribers.", func() float64 {
		return float64(hub.Dropped())
	})
	return rec
}

func provideOpener(ctx context.Context, cfg *config.Config, logger *slog.Logger) (leaderboard.Opener, func(), error) {
	return setupStorage(ctx, cfg, logger)
}

func provideService(ctx context.Context, cfg *config.Config, logger *slog.Logger, opener leaderboard.Opener, hub *realtime.Hub, rec *metrics.Recorder) (*engine.Service, func(), error) {
	boards, err := cfg.BoardPolarities()
	if err != nil {
		return nil, nil, err
	}

	mode := engine.DispatchAsync
	if cfg.Events.Dispatch == "sync" {
		mode = engine.DispatchSync
	}
	opts := []rank.Option{
		rank.WithOpener(opener),
		rank.WithDispatchMode(mode,
			engine.WithQueueSize(cfg.Events.QueueSize),
			engine.WithWorkers(cfg.Events.Workers)),
		rank.WithRealtime(hub),
		rank.WithLogger(logger),
		rank.WithObserver(rec),
	}
	if len(cfg.Events.Webhooks) > 0 {
		opts = append(opts, rank.WithWebhook(webhook.New(cfg.Events.Webhooks,
			webhook.WithSecret(cfg.Events.WebhookSecret),
			webhook.WithLogger(logger))))
	}
	for name, p := range boards {
		opts = append(opts, rank.WithBoard(name, p))
	}

	svc, err := rank.New(ctx, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build leaderboard service: %w", err)
	}
	svc.SubscribeAll(rec.OnEvent)
	return svc, svc.Close, nil
}

func provideHandler(svc *engine.Service, hub *realtime.Hub, cfg *config.Config, rec *metrics.Recorder, logger *slog.Logger) http.Handler {
	return httpapi.NewMux(svc, hub, httpapi.Options{
		PathPrefix:       cfg.Server.PathPrefix,
		AllowCORSOrigin:  cfg.Server.CORSOrigin,
		APIKeys:          cfg.Security.APIKeys,
		RateLimitEnabled: cfg.Security.EnableRateLimit,
		RateLimitRPM:     cfg.Security.RateLimit.RequestsPerMinute,
		RateLimitBurst:   cfg.Security.RateLimit.BurstSize,
		RateLimitCleanup: cfg.Security.RateLimit.CleanupInterval,
		Metrics:          rec,
		Logger:           logger,
	})
}

func provideServer(cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           handler,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}
}

// setupLogging configures the logger based on configuration.
func setupLogging(cfg *config.Config, stdout, stderr io.Writer) *slog.Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Logging.Level),
	}

	out := stdout
	if cfg.Logging.Output == "stderr" {
		out = stderr
	}

	switch cfg.Logging.Format {
	case "text":
		handler = slog.NewTextHandler(out, opts)
	case "json":
		handler = slog.NewJSONHandler(out, opts)
	default:
		handler = slog.NewJSONHandler(out, opts)
	}

	if len(cfg.Logging.Attributes) > 0 {
		handler = handler.WithAttrs(convertAttributes(cfg.Logging.Attributes))
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// parseLogLevel converts string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// convertAttributes converts map[string]string to []slog.Attr.
func convertAttributes(attrs map[string]string) []slog.Attr {
	var result []slog.Attr
	for k, v := range attrs {
		result = append(result, slog.String(k, v))
	}
	return result
}

// setupStorage opens the configured store backend. The returned cleanup
// releases its connections.
func setupStorage(ctx context.Context, cfg *config.Config, logger *slog.Logger) (leaderboard.Opener, func(), error) {
	noop := func() {}
	switch cfg.Storage.Adapter {
	case "memory":
		return mem.NewRegistry(), noop, nil
	case "redis":
		backend, err := redisAdapter.New(cfg.Storage.Redis)
		if err != nil {
			return nil, nil, err
		}
		return backend, closer(logger, "redis", backend.Close), nil
	case "sql":
		backend, err := sqlxAdapter.New(ctx, cfg.Storage.SQL)
		if err != nil {
			return nil, nil, err
		}
		return backend, closer(logger, "sql", backend.Close), nil
	case "file":
		f, err := jsonfile.New(cfg.Storage.File.Path)
		if err != nil {
			return nil, nil, err
		}
		return f, noop, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage adapter: %s", cfg.Storage.Adapter)
	}
}

func closer(logger *slog.Logger, name string, fn func() error) func() {
	return func() {
		if err := fn(); err != nil {
			logger.Warn("failed to close storage", "adapter", name, "error", err)
		}
	}
}
