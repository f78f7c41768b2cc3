// Package control assembles the accelhost service from configuration and
// manages its lifecycle.
package control

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"

	"github.com/tmaun/accelhost/internal/core/config"
	"github.com/tmaun/accelhost/internal/core/domain"
	"github.com/tmaun/accelhost/internal/engine"
	"github.com/tmaun/accelhost/internal/events"
	"github.com/tmaun/accelhost/internal/infra/notify"
	redisclient "github.com/tmaun/accelhost/internal/infra/redis"
	"github.com/tmaun/accelhost/internal/infra/store"
	"github.com/tmaun/accelhost/internal/loading"
	"github.com/tmaun/accelhost/internal/observe/health"
)

// App is the main application struct that owns the engine and its
// collaborators.
type App struct {
	cfg          *config.AppConfig
	engine       *engine.Engine
	registry     *loading.Registry
	healthServer *health.Server
	traceSink    *redisclient.TraceSink
	wsNotifier   *notify.WebsocketNotifier
	prefStore    store.PreferenceStore
	log          *slog.Logger
}

// NewApp creates an App instance with all dependencies initialized.
func NewApp(cfg *config.AppConfig, prober engine.CapabilityProber) (*App, error) {
	platform := HostPlatform()
	arch := HostArch()

	// 1. Preference storage
	var prefStore store.PreferenceStore
	if cfg.Database.URL != "" {
		pg, err := store.NewPostgresStore(context.Background(), cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init preference store: %w", err)
		}
		prefStore = pg
		slog.Info("Using PostgreSQL preference store")
	} else {
		prefStore = store.NewMemoryStore()
		slog.Info("Using in-memory preference store")
	}

	// 2. Decision-trace sinks
	emitter := events.MultiEmitter{events.NewSlogEmitter(slog.Default())}
	var traceSink *redisclient.TraceSink
	if cfg.Redis.URL != "" {
		var err error
		traceSink, err = redisclient.NewTraceSink(cfg.Redis)
		if err != nil {
			slog.Warn("Failed to connect to Redis, trace persistence disabled", "error", err)
		} else {
			emitter = append(emitter, traceSink)
			slog.Info("Redis trace persistence enabled")
		}
	}

	// 3. UI notifications
	var notifier notify.Notifier = notify.Nop{}
	var wsNotifier *notify.WebsocketNotifier
	if cfg.UI.WebsocketURL != "" {
		wsNotifier = notify.NewWebsocketNotifier(cfg.UI.WebsocketURL)
		notifier = wsNotifier
	}

	// 4. Module registry and loader
	registry := loading.NewRegistry(cfg.Loading.ModuleDir, platform)
	loader := loading.NewLoader(registry, loading.Config{
		CacheDir:          cfg.Loading.CacheDir,
		ValidationTimeout: cfg.Loading.ValidationTimeout.Std(),
		OpenVINOTimeout:   cfg.Loading.OpenVINOTimeout.Std(),
	})

	// 5. Engine + status server
	tracker := health.NewTracker()
	eng := engine.New(
		engine.Config{
			Platform:            platform,
			Arch:                arch,
			LargeModelMemoryMB:  cfg.Selection.LargeModelMemoryMB,
			ModelDir:            cfg.Loading.ModelDir,
			RecoveryBackoffUnit: cfg.Recovery.BackoffUnit.Std(),
			DefaultPriority:     cfg.Selection.Priority,
		},
		loader,
		prober,
		engine.WithEmitter(emitter),
		engine.WithNotifier(notifier),
		engine.WithPreferenceStore(prefStore),
		engine.WithHealthTracker(tracker),
	)

	return &App{
		cfg:          cfg,
		engine:       eng,
		registry:     registry,
		healthServer: health.NewServer(tracker, cfg.Server.Port),
		traceSink:    traceSink,
		wsNotifier:   wsNotifier,
		prefStore:    prefStore,
		log:          slog.Default(),
	}, nil
}

// Engine exposes the assembled engine.
func (a *App) Engine() *engine.Engine {
	return a.engine
}

// Registry exposes the module registry so callers can bind custom openers.
func (a *App) Registry() *loading.Registry {
	return a.registry
}

// TraceSink returns the Redis trace sink, or nil when disabled.
func (a *App) TraceSink() *redisclient.TraceSink {
	return a.traceSink
}

// Start starts the background components.
func (a *App) Start(ctx context.Context) error {
	go func() {
		if err := a.healthServer.Start(); err != nil {
			a.log.Error("Status server failed", "error", err)
		}
	}()
	a.log.Info("Status server listening", "port", a.cfg.Server.Port)
	return nil
}

// Stop shuts everything down.
func (a *App) Stop(ctx context.Context) error {
	a.log.Info("Stopping accelhost...")

	if err := a.registry.Close(); err != nil {
		a.log.Warn("Failed to close module handles", "error", err)
	}
	if a.traceSink != nil {
		if err := a.traceSink.Close(); err != nil {
			a.log.Warn("Failed to close Redis", "error", err)
		}
	}
	if a.wsNotifier != nil {
		if err := a.wsNotifier.Close(); err != nil {
			a.log.Warn("Failed to close UI websocket", "error", err)
		}
	}
	if closer, ok := a.prefStore.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			a.log.Warn("Failed to close preference store", "error", err)
		}
	}

	return a.healthServer.Stop(ctx)
}

// HostPlatform maps the build target onto the platform id used by the
// fallback rule table.
func HostPlatform() domain.PlatformID {
	switch runtime.GOOS {
	case "windows":
		return domain.PlatformWindows
	case "darwin":
		return domain.PlatformDarwin
	case "linux":
		return domain.PlatformLinux
	}
	return domain.PlatformUnknown
}

// HostArch maps the build target onto the architecture id.
func HostArch() domain.ArchID {
	if runtime.GOARCH == "arm64" {
		return domain.ArchARM64
	}
	return domain.ArchX64
}
