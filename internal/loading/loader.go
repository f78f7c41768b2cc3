package loading

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tmaun/accelhost/internal/core/domain"
	"github.com/tmaun/accelhost/internal/events"
)

// Validation timeouts. The OpenVINO-style runtime initializes devices slowly
// and gets double the budget.
const (
	DefaultValidationTimeout  = 5 * time.Second
	OpenVINOValidationTimeout = 10 * time.Second
)

// Config tunes the loader.
type Config struct {
	CacheDir          string
	ValidationTimeout time.Duration
	OpenVINOTimeout   time.Duration
}

// Loader loads a backend module, confirms its structure, and smoke-tests the
// entry point under a bounded timeout.
type Loader struct {
	registry *Registry
	cfg      Config
}

// NewLoader creates a loader over the given module registry.
func NewLoader(registry *Registry, cfg Config) *Loader {
	if cfg.ValidationTimeout <= 0 {
		cfg.ValidationTimeout = DefaultValidationTimeout
	}
	if cfg.OpenVINOTimeout <= 0 {
		cfg.OpenVINOTimeout = OpenVINOValidationTimeout
	}
	return &Loader{registry: registry, cfg: cfg}
}

// Registry exposes the underlying module registry for reload operations.
func (l *Loader) Registry() *Registry {
	return l.registry
}

// LoadAndValidate consumes one descriptor and returns the adapted callable,
// or a stage-tagged LoadError.
func (l *Loader) LoadAndValidate(
	ctx context.Context,
	trace *events.Trace,
	desc domain.BackendDescriptor,
) (domain.InferenceFunc, error) {
	if trace == nil {
		trace = events.NewTrace(nil)
	}

	artifact, err := l.registry.Resolve(desc.ModulePath)
	if err != nil {
		trace.Error("module_missing", events.CategoryLoading, map[string]any{
			"backend": string(desc.Kind),
			"module":  desc.ModulePath,
		})
		return nil, domain.NewLoadError(desc, domain.StageResolve, err)
	}
	trace.Info("module_resolved", events.CategoryLoading, map[string]any{
		"backend":  string(desc.Kind),
		"artifact": artifact,
	})

	adapterCfg := adapterConfigFor(desc, l.cfg.CacheDir)

	var entry domain.InferenceFunc
	loadAndCheck := func() error {
		handle, err := l.registry.Open(desc.ModulePath)
		if err != nil {
			return domain.NewLoadError(desc, domain.StageLoad, err)
		}

		entry, err = soleEntrypoint(handle)
		if err != nil {
			return domain.NewLoadError(desc, domain.StageStruct, err)
		}
		return nil
	}

	// The OpenVINO-style runtime reads device id, cache dir and performance
	// hint from the process environment at load time. Scope and restore so
	// a failed load never leaks configuration into later calls.
	if desc.Kind == domain.KindOpenVINO {
		err = withScopedEnv(adapterCfg.envVars(), loadAndCheck)
	} else {
		err = loadAndCheck()
	}
	if err != nil {
		trace.Error("load_failed", events.CategoryLoading, map[string]any{
			"backend": string(desc.Kind),
			"error":   err.Error(),
		})
		return nil, err
	}
	trace.Info("module_loaded", events.CategoryLoading, map[string]any{
		"backend": string(desc.Kind),
	})

	if desc.Kind == domain.KindCoreML {
		// File existence is sufficient for the CoreML-style backend; the
		// smoke call is skipped.
		trace.Info("validation_skipped", events.CategoryLoading, map[string]any{
			"backend": string(desc.Kind),
		})
		return Adapt(entry, adapterCfg), nil
	}

	if err := l.validate(ctx, desc, entry); err != nil {
		trace.Error("validation_failed", events.CategoryLoading, map[string]any{
			"backend": string(desc.Kind),
			"error":   err.Error(),
		})
		return nil, domain.NewLoadError(desc, domain.StageValidate, err)
	}
	trace.Info("module_validated", events.CategoryLoading, map[string]any{
		"backend": string(desc.Kind),
	})

	return Adapt(entry, adapterCfg), nil
}

// LoadRaw opens the module and adapts its entry point without the structural
// or smoke-call validation. Only the legacy fallback path uses it.
func (l *Loader) LoadRaw(ctx context.Context, desc domain.BackendDescriptor) (domain.InferenceFunc, error) {
	if _, err := l.registry.Resolve(desc.ModulePath); err != nil {
		return nil, domain.NewLoadError(desc, domain.StageResolve, err)
	}

	handle, err := l.registry.Open(desc.ModulePath)
	if err != nil {
		return nil, domain.NewLoadError(desc, domain.StageLoad, err)
	}
	entry, err := soleEntrypoint(handle)
	if err != nil {
		return nil, domain.NewLoadError(desc, domain.StageStruct, err)
	}
	return Adapt(entry, adapterConfigFor(desc, l.cfg.CacheDir)), nil
}

// validate issues the synthetic smoke call and races it against the
// per-backend timeout. A late completion is discarded, never acted on.
func (l *Loader) validate(ctx context.Context, desc domain.BackendDescriptor, entry domain.InferenceFunc) error {
	timeout := l.cfg.ValidationTimeout
	if desc.Kind == domain.KindOpenVINO {
		timeout = l.cfg.OpenVINOTimeout
	}

	valCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1) // buffered so a late callback is dropped
	go func() {
		_, err := entry(valCtx, domain.TranscribeParams{Model: "", ValidateOnly: true})
		done <- err
	}()

	select {
	case err := <-done:
		if err == nil || isBenignValidationError(err) {
			return nil
		}
		return fmt.Errorf("%w: %v", domain.ErrValidationFailed, err)
	case <-valCtx.Done():
		if errors.Is(valCtx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w after %s", domain.ErrValidationTimeout, timeout)
		}
		return valCtx.Err()
	}
}

// isBenignValidationError reports whether the smoke-call error is the
// expected complaint about the empty model/file, which counts as success.
func isBenignValidationError(err error) bool {
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "model") || strings.Contains(s, "file")
}

// soleEntrypoint enforces structural validity: exactly one callable entry.
func soleEntrypoint(handle Module) (domain.InferenceFunc, error) {
	entries := handle.Entrypoints()
	if len(entries) != 1 {
		return nil, fmt.Errorf("%w: %d entry points", domain.ErrInvalidStructure, len(entries))
	}
	for _, fn := range entries {
		if fn == nil {
			return nil, fmt.Errorf("%w: nil entry point", domain.ErrInvalidStructure)
		}
		return fn, nil
	}
	return nil, fmt.Errorf("%w: no entry points", domain.ErrInvalidStructure)
}

func msToDuration(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
