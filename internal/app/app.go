// Package app wires the probes, caches, alert engine, history store and
// HTTP surface into one running process.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"watchpost/internal/config"
	"watchpost/internal/controllers"
	"watchpost/internal/routes"
	"watchpost/internal/services"
	"watchpost/internal/store"
)

// App is one watchpost process
type App struct {
	cfg        *config.Config
	configPath string
	logger     zerolog.Logger

	backend    store.SampleStore
	snapshots  *services.SnapshotService
	dispatcher *services.Dispatcher
	engine     *services.AlertEngine
	history    *services.HistoryStore
	collector  *services.HistoryCollector
	hub        *services.WebSocketHub
	server     *http.Server

	ready atomic.Bool
}

// New builds every component from cfg. configPath, when set, is watched for
// rule changes while running.
func New(cfg *config.Config, configPath string, logger zerolog.Logger) (*App, error) {
	backend, err := store.Open(cfg.History.Backend, cfg.History.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history store: %w", err)
	}

	a := &App{
		cfg:        cfg,
		configPath: configPath,
		logger:     logger,
		backend:    backend,
	}

	bus := services.NewSnapshotBus()
	a.snapshots = services.NewSnapshotService(bus, NewSources(cfg.Probes, logger), services.SnapshotOptions{
		TTL:               cfg.Cache.TTL(),
		Interval:          cfg.Snapshot.Interval,
		SystemTimeout:     cfg.Probes.SystemTimeout,
		ServicesTimeout:   cfg.Probes.ServicesTimeout,
		ContainersTimeout: cfg.Probes.ContainersTimeout,
		AgentsTimeout:     cfg.Probes.AgentsTimeout,
		ProcessesTimeout:  cfg.Probes.ProcessesTimeout,
	}, logger)

	a.dispatcher = services.NewDispatcher(NewNotifier(cfg.Notifier, logger), cfg.Notifier.Telegram.Timeout, logger)
	a.engine = services.NewAlertEngine(bus, a.dispatcher, services.AlertOptions{
		Rules:    cfg.Alerts.Rules,
		Interval: cfg.Alerts.Interval,
		Cooldown: cfg.Alerts.Cooldown(),
	}, logger)

	a.history = services.NewHistoryStore(backend, services.HistoryOptions{Retention: cfg.History.Retention}, logger)
	a.collector = services.NewHistoryCollector(bus, a.history, cfg.History.Interval, logger)

	a.hub = services.NewWebSocketHub(logger)
	a.snapshots.SetListener(a.hub)
	a.engine.SetListener(a.hub)

	opts := routes.RouterOptions{
		Metrics:        controllers.NewMetricsController(a.snapshots),
		History:        controllers.NewHistoryController(a.history),
		Alerts:         controllers.NewAlertsController(a.engine),
		Health:         controllers.NewHealthController(a.ready.Load),
		WebSocket:      controllers.NewWebSocketController(a.hub, cfg.Server.AllowedOrigins, logger),
		AllowedOrigins: cfg.Server.AllowedOrigins,
		RateLimitRPS:   cfg.Server.RateLimit.RPS,
		RateLimitBurst: cfg.Server.RateLimit.Burst,
		Logger:         logger.With().Str("component", "http").Logger(),
	}
	if cfg.Server.Auth.Enabled {
		auth, err := services.NewAuthService(cfg.Server.Auth.Secret, cfg.Server.Auth.TokenExpiry)
		if err != nil {
			_ = backend.Close()
			return nil, err
		}
		opts.Auth = auth
	}

	a.server = &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           routes.NewRouter(opts),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return a, nil
}

// NewSources builds the probes enabled by cfg. The container probe is off
// when no socket is configured, the service probe when no units are listed,
// the process probe when the limit is zero.
func NewSources(cfg config.ProbesConfig, logger zerolog.Logger) services.SnapshotSources {
	system := &services.SystemProbe{DiskPath: cfg.DiskPath}
	sources := services.SnapshotSources{
		System: system.Probe,
		Agents: services.NewAgentProbe(cfg.AgentsDir, cfg.AgentStaleAfter, logger).Probe,
	}
	if len(cfg.Services) > 0 {
		sources.Services = services.NewServiceProbe(cfg.Services).Probe
	}
	if cfg.DockerSocket != "" {
		sources.Containers = services.NewContainerProbe(cfg.DockerSocket, cfg.ContainersTimeout, logger).Probe
	}
	if cfg.ProcessesLimit > 0 {
		sources.Processes = services.NewProcessProbe(cfg.ProcessesLimit).Probe
	}
	return sources
}

// NewNotifier returns the Telegram notifier when credentials are configured
// and a log-only notifier otherwise.
func NewNotifier(cfg config.NotifierConfig, logger zerolog.Logger) services.Notifier {
	if cfg.Telegram.Enabled() {
		return services.NewTelegramNotifier(cfg.Telegram.BaseURL, cfg.Telegram.Token, cfg.Telegram.ChatID, cfg.Telegram.Timeout)
	}
	logger.Warn().Msg("telegram not configured, alerts will only be logged")
	return services.NewLogNotifier(logger)
}

// Ready reports whether warm start has finished
func (a *App) Ready() bool {
	return a.ready.Load()
}

// Run serves until ctx is cancelled or the HTTP server fails, then shuts
// everything down.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.hub.Run(gctx)
		return nil
	})

	g.Go(func() error {
		a.logger.Info().Str("addr", a.server.Addr).Msg("http server listening")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return a.server.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		a.warmStart(gctx)
		a.snapshots.Run(gctx)
		return nil
	})

	g.Go(func() error {
		a.engine.Run(gctx)
		return nil
	})

	g.Go(func() error {
		a.collector.Run(gctx)
		return nil
	})

	if err := config.WatchRules(gctx, a.configPath, a.logger, func(cfg *config.Config) {
		a.engine.SetRules(cfg.Alerts.Rules)
	}); err != nil {
		a.logger.Warn().Err(err).Msg("rule hot reload disabled")
	}

	err := g.Wait()
	a.close()
	return err
}

// warmStart runs one blocking round of probes before reporting ready. A
// slow probe delays readiness by at most the configured timeout.
func (a *App) warmStart(ctx context.Context) {
	defer a.ready.Store(true)
	if !a.cfg.Cache.WarmStart {
		return
	}

	timeout := a.cfg.Cache.WarmStartTimeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	warmCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	if err := a.snapshots.Warm(warmCtx); err != nil {
		a.logger.Warn().Err(err).Dur("elapsed", time.Since(start)).Msg("warm start incomplete")
		return
	}
	a.logger.Info().Dur("elapsed", time.Since(start)).Msg("caches warm")
}

func (a *App) close() {
	a.snapshots.Close()
	a.dispatcher.Wait()
	if err := a.backend.Close(); err != nil {
		a.logger.Warn().Err(err).Msg("failed to close history store")
	}
	a.logger.Info().Msg("stopped")
}
