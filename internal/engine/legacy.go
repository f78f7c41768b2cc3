package engine

import (
	"context"
	"fmt"

	"github.com/tmaun/accelhost/internal/core/domain"
	"github.com/tmaun/accelhost/internal/events"
	"github.com/tmaun/accelhost/internal/infra/store"
	"github.com/tmaun/accelhost/internal/observe/metrics"
)

// legacyFallback is the terminal safety net for failures that happen before
// selection can run at all (a capability probe crash, an invalid snapshot).
// It deliberately knows nothing about hardware: platform, architecture and
// the stored force-CPU flag are its only inputs, and the module is opened
// without the smoke-call validation the enhanced path performs.
func (e *Engine) legacyFallback(
	ctx context.Context,
	trace *events.Trace,
	cause error,
) (*Loaded, error) {
	desc := e.legacySelect(ctx)
	trace.Warn("legacy_fallback", events.CategoryLegacy, map[string]any{
		"backend": string(desc.Kind),
		"module":  desc.ModulePath,
		"cause":   cause.Error(),
	})

	entry, err := e.loader.LoadRaw(ctx, desc)
	if err != nil && !desc.IsBaseline() {
		// The platform guess failed; the plain CPU module is the last word.
		desc = domain.CPUDescriptor("legacy_fallback")
		entry, err = e.loader.LoadRaw(ctx, desc)
	}
	if err != nil {
		trace.Error("legacy_fallback_failed", events.CategoryLegacy, map[string]any{
			"error": err.Error(),
		})
		return nil, fmt.Errorf("%w: %v (after %v)", domain.ErrLegacyFallbackFailed, err, cause)
	}

	trace.Info("legacy_fallback_loaded", events.CategoryLegacy, map[string]any{
		"backend": string(desc.Kind),
	})
	metrics.SelectionsTotal.WithLabelValues(string(desc.Kind)).Inc()
	metrics.ActiveBackend.Reset()
	metrics.ActiveBackend.WithLabelValues(string(desc.Kind)).Set(1)
	return &Loaded{Call: entry, Descriptor: desc, Trace: trace}, nil
}

// legacySelect mirrors the pre-capability selection rules: force-CPU wins,
// otherwise the platform's historical default module.
func (e *Engine) legacySelect(ctx context.Context) domain.BackendDescriptor {
	pref, err := e.prefs.Read(ctx)
	if err != nil {
		pref = store.DefaultPreference()
	}
	if pref.ForceCPU {
		return domain.CPUDescriptor("legacy_force_cpu")
	}

	switch e.cfg.Platform {
	case domain.PlatformDarwin:
		if e.cfg.Arch == domain.ArchARM64 {
			return domain.BackendDescriptor{
				Kind:           domain.KindCoreML,
				ModulePath:     domain.ModuleCoreML,
				DisplayName:    "Apple CoreML",
				FallbackReason: "legacy_fallback",
			}
		}
	case domain.PlatformWindows, domain.PlatformLinux:
		return domain.BackendDescriptor{
			Kind:           domain.KindOpenVINO,
			ModulePath:     domain.ModuleOpenVINO,
			DisplayName:    "OpenVINO CPU",
			Device:         &domain.DeviceConfig{DeviceID: "CPU"},
			FallbackReason: "legacy_fallback",
		}
	}
	return domain.CPUDescriptor("legacy_fallback")
}
