// Package engine orchestrates the full selection -> load -> recover pipeline
// behind the single public SelectAndLoad entry point.
package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/tmaun/accelhost/internal/core/domain"
	"github.com/tmaun/accelhost/internal/events"
	"github.com/tmaun/accelhost/internal/infra/notify"
	"github.com/tmaun/accelhost/internal/infra/store"
	"github.com/tmaun/accelhost/internal/loading"
	"github.com/tmaun/accelhost/internal/observe/health"
	"github.com/tmaun/accelhost/internal/observe/metrics"
	"github.com/tmaun/accelhost/internal/recovery"
	"github.com/tmaun/accelhost/internal/selection"
)

// CapabilityProber produces a fresh capability snapshot. Hardware probing
// itself lives outside this module.
type CapabilityProber func(ctx context.Context) (domain.CapabilityModel, error)

// Config holds engine settings.
type Config struct {
	Platform domain.PlatformID
	Arch     domain.ArchID

	// LargeModelMemoryMB overrides the large-tier requirement (see the
	// 6400-vs-4096 discrepancy note in domain).
	LargeModelMemoryMB int

	// ModelDir is where ggml model files live; used by the model-missing
	// recovery strategy.
	ModelDir string

	// RecoveryBackoffUnit tunes the catch-all retry delay. Zero keeps the
	// 2s default.
	RecoveryBackoffUnit time.Duration

	// DefaultPriority is used when the stored preference carries no probe
	// order. Empty keeps the built-in order.
	DefaultPriority []domain.BackendKind
}

// Engine is the resilient backend selection and loading engine.
type Engine struct {
	cfg      Config
	selector *selection.Engine
	loader   *loading.Loader
	prober   CapabilityProber
	prefs    store.PreferenceStore
	emitter  events.Emitter
	notifier notify.Notifier
	health   *health.Tracker
}

// Option configures optional engine collaborators.
type Option func(*Engine)

// WithEmitter sets the trace sink.
func WithEmitter(emitter events.Emitter) Option {
	return func(e *Engine) { e.emitter = emitter }
}

// WithNotifier sets the UI notification surface.
func WithNotifier(notifier notify.Notifier) Option {
	return func(e *Engine) { e.notifier = notifier }
}

// WithPreferenceStore sets the user preference store.
func WithPreferenceStore(prefs store.PreferenceStore) Option {
	return func(e *Engine) { e.prefs = prefs }
}

// WithHealthTracker sets the backend health tracker.
func WithHealthTracker(tracker *health.Tracker) Option {
	return func(e *Engine) { e.health = tracker }
}

// New creates an engine. prober may be nil when callers always pass an
// existing capability snapshot to SelectAndLoad.
func New(cfg Config, loader *loading.Loader, prober CapabilityProber, opts ...Option) *Engine {
	e := &Engine{
		cfg:      cfg,
		selector: selection.NewEngine(cfg.Platform, cfg.Arch, cfg.LargeModelMemoryMB),
		loader:   loader,
		prober:   prober,
		prefs:    store.NewMemoryStore(),
		emitter:  events.NopEmitter{},
		notifier: notify.Nop{},
		health:   health.NewTracker(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Health exposes the backend health tracker for the status server.
func (e *Engine) Health() *health.Tracker {
	return e.health
}

// Loaded pairs the adapted callable with the descriptor it came from.
type Loaded struct {
	Call       domain.InferenceFunc
	Descriptor domain.BackendDescriptor
	Trace      *events.Trace
}

// SelectAndLoad is the single public entry point: selection, load,
// chain-walk recovery and the terminal legacy fallback, in that order.
// existingCaps short-circuits the probe when the caller already holds a
// snapshot; pass nil to probe.
func (e *Engine) SelectAndLoad(
	ctx context.Context,
	model domain.ModelName,
	existingCaps *domain.CapabilityModel,
) (*Loaded, error) {
	trace := events.NewTrace(e.emitter)

	caps, err := e.capabilities(ctx, existingCaps)
	if err != nil {
		// The pipeline failed before selection could even run: this is
		// the legacy path's territory.
		trace.Error("capability_probe_failed", events.CategorySelection, map[string]any{
			"error": err.Error(),
		})
		return e.legacyFallback(ctx, trace, fmt.Errorf("%w: %v", domain.ErrCapabilityProbeFailed, err))
	}
	if err := caps.Validate(); err != nil {
		trace.Error("capability_snapshot_invalid", events.CategorySelection, map[string]any{
			"error": err.Error(),
		})
		return e.legacyFallback(ctx, trace, fmt.Errorf("%w: %v", domain.ErrCapabilityProbeFailed, err))
	}

	desc := e.selectBackend(ctx, trace, caps, model)

	loaded, err := e.loadWithFallback(ctx, trace, desc)
	if err != nil {
		return nil, err
	}

	metrics.SelectionsTotal.WithLabelValues(string(loaded.Descriptor.Kind)).Inc()
	metrics.ActiveBackend.Reset()
	metrics.ActiveBackend.WithLabelValues(string(loaded.Descriptor.Kind)).Set(1)
	e.notifier.Notify(notify.ChannelBackendStatus, notify.StatusPayload{
		Backend:     string(loaded.Descriptor.Kind),
		DisplayName: loaded.Descriptor.DisplayName,
		Fallback:    loaded.Descriptor.FallbackReason,
	})
	return loaded, nil
}

// selectBackend applies the user override first, then automatic selection.
func (e *Engine) selectBackend(
	ctx context.Context,
	trace *events.Trace,
	caps domain.CapabilityModel,
	model domain.ModelName,
) domain.BackendDescriptor {
	pref, err := e.prefs.Read(ctx)
	if err != nil {
		pref = store.DefaultPreference()
	}

	if pref.ForceCPU {
		trace.Info("cpu_forced_by_preference", events.CategorySelection, nil)
		return domain.CPUDescriptor("user_preference")
	}

	if pref.SelectedBackendID != "" && pref.SelectedBackendID != "auto" {
		if desc, ok := e.selector.ResolveSpecificGPU(pref.SelectedBackendID, caps); ok {
			trace.Info("user_override_resolved", events.CategorySelection, map[string]any{
				"device": pref.SelectedBackendID,
			})
			return desc
		}
		trace.Warn("user_override_unresolved", events.CategorySelection, map[string]any{
			"device": pref.SelectedBackendID,
		})
		// Fall through to automatic selection.
	}

	priority := pref.PriorityOrder
	if len(priority) == 0 {
		priority = e.cfg.DefaultPriority
	}
	return e.selector.SelectOptimalGPU(trace, priority, caps, model)
}

// loadWithFallback loads the chosen backend and, on failure, walks the
// platform fallback chain.
func (e *Engine) loadWithFallback(
	ctx context.Context,
	trace *events.Trace,
	desc domain.BackendDescriptor,
) (*Loaded, error) {
	start := time.Now()
	callable, err := e.loader.LoadAndValidate(ctx, trace, desc)
	if err == nil {
		e.recordSuccess(desc, time.Since(start))
		metrics.FallbackDepth.WithLabelValues(string(e.cfg.Platform)).Observe(0)
		return &Loaded{Call: callable, Descriptor: desc, Trace: trace}, nil
	}
	e.recordFailure(desc, err)

	chain := selection.BuildFallbackChain(desc, e.cfg.Platform, e.cfg.Arch)
	callable, winner, walkErr := recovery.WalkChain(ctx, trace, &trackingLoader{e: e}, err, chain)
	if walkErr != nil {
		return nil, walkErr
	}

	depth := float64(1)
	for i, c := range chain {
		if c.ModulePath == winner.ModulePath {
			depth = float64(i + 1)
			break
		}
	}
	metrics.FallbackDepth.WithLabelValues(string(e.cfg.Platform)).Observe(depth)
	return &Loaded{Call: callable, Descriptor: winner, Trace: trace}, nil
}

// trackingLoader decorates the loader with health/metrics bookkeeping for
// chain-walk attempts.
type trackingLoader struct {
	e *Engine
}

func (t *trackingLoader) LoadAndValidate(
	ctx context.Context,
	trace *events.Trace,
	desc domain.BackendDescriptor,
) (domain.InferenceFunc, error) {
	start := time.Now()
	callable, err := t.e.loader.LoadAndValidate(ctx, trace, desc)
	if err != nil {
		t.e.recordFailure(desc, err)
		return nil, err
	}
	t.e.recordSuccess(desc, time.Since(start))
	return callable, nil
}

func (e *Engine) recordSuccess(desc domain.BackendDescriptor, latency time.Duration) {
	e.health.RecordSuccess(string(desc.Kind), latency)
	metrics.ValidationLatency.WithLabelValues(string(desc.Kind)).Observe(latency.Seconds())
}

func (e *Engine) recordFailure(desc domain.BackendDescriptor, err error) {
	e.health.RecordFailure(string(desc.Kind))
	stage := "load"
	var loadErr *domain.LoadError
	if errors.As(err, &loadErr) {
		stage = string(loadErr.Stage)
	}
	metrics.LoadFailuresTotal.WithLabelValues(string(desc.Kind), stage).Inc()
}

func (e *Engine) capabilities(
	ctx context.Context,
	existing *domain.CapabilityModel,
) (domain.CapabilityModel, error) {
	if existing != nil {
		return *existing, nil
	}
	if e.prober == nil {
		return domain.CapabilityModel{}, fmt.Errorf("no capability prober configured")
	}
	return e.prober(ctx)
}

// modelExists checks for the ggml artifact of a model under ModelDir.
func (e *Engine) modelExists(model domain.ModelName) bool {
	if e.cfg.ModelDir == "" {
		return true
	}
	path := filepath.Join(e.cfg.ModelDir, fmt.Sprintf("ggml-%s.bin", model))
	_, err := os.Stat(path)
	return err == nil
}
