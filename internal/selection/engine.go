// Package selection picks the best acceleration backend for a given
// capability snapshot, user priority order and model, and builds the
// platform-aware fallback chains used after a load failure.
package selection

import (
	"sort"

	"github.com/tmaun/accelhost/internal/core/domain"
	"github.com/tmaun/accelhost/internal/events"
)

// Engine implements backend selection. Selection is pure and deterministic
// for a fixed (capabilities, priority, model) input; the engine itself holds
// only configuration, never per-request state.
type Engine struct {
	Platform domain.PlatformID
	Arch     domain.ArchID

	// LargeModelMemoryMB overrides the large-tier memory requirement.
	// Zero keeps the 6400MB default.
	LargeModelMemoryMB int
}

// NewEngine creates a selection engine for the given host platform.
func NewEngine(platform domain.PlatformID, arch domain.ArchID, largeModelMB int) *Engine {
	return &Engine{Platform: platform, Arch: arch, LargeModelMemoryMB: largeModelMB}
}

// DefaultPriority is the selection order used when the user preference does
// not supply one.
var DefaultPriority = []domain.BackendKind{
	domain.KindCUDA, domain.KindOpenVINO, domain.KindCoreML, domain.KindCPU,
}

// SelectOptimalGPU walks the priority order and returns the first backend
// whose probe succeeds. It never fails: the CPU baseline descriptor is the
// unconditional last resort.
func (e *Engine) SelectOptimalGPU(
	trace *events.Trace,
	priority []domain.BackendKind,
	caps domain.CapabilityModel,
	model domain.ModelName,
) domain.BackendDescriptor {
	if trace == nil {
		trace = events.NewTrace(nil)
	}
	if len(priority) == 0 {
		priority = DefaultPriority
	}

	trace.Info("detection_started", events.CategorySelection, map[string]any{
		"model":    string(model),
		"priority": kindsToStrings(priority),
	})

	for _, kind := range priority {
		if desc, ok := e.tryVendor(trace, kind, caps, model); ok {
			trace.Info("detection_completed", events.CategorySelection, map[string]any{
				"backend": string(desc.Kind),
				"device":  deviceID(desc),
			})
			return desc
		}
	}

	// No priority entry matched: give the platform-specific enhanced
	// fallback a chance before the unconditional baseline.
	if desc, ok := e.platformFallback(caps, model); ok {
		trace.Warn("platform_fallback_selected", events.CategorySelection, map[string]any{
			"backend": string(desc.Kind),
		})
		trace.Info("detection_completed", events.CategorySelection, map[string]any{
			"backend": string(desc.Kind),
		})
		return desc
	}

	cpu := domain.CPUDescriptor("no_acceleration_available")
	trace.Info("detection_completed", events.CategorySelection, map[string]any{
		"backend": string(cpu.Kind),
	})
	return cpu
}

// ResolveSpecificGPU bypasses automatic selection and resolves a user-chosen
// device id directly. It returns false when the id is unknown or the device
// is unavailable, in which case the caller falls back to automatic selection.
func (e *Engine) ResolveSpecificGPU(id string, caps domain.CapabilityModel) (domain.BackendDescriptor, bool) {
	if id == "" || id == "auto" {
		return domain.BackendDescriptor{}, false
	}
	if id == "cpu" {
		return domain.CPUDescriptor("user_override"), true
	}

	dev, ok := caps.FindDevice(id)
	if !ok {
		return domain.BackendDescriptor{}, false
	}
	if !caps.HasRuntime() {
		return domain.BackendDescriptor{}, false
	}

	return openvinoDescriptor(dev, "user_override"), true
}

// tryVendor runs the per-vendor probe: hardware-present, runtime-present,
// model-support, then device-suitability.
func (e *Engine) tryVendor(
	trace *events.Trace,
	kind domain.BackendKind,
	caps domain.CapabilityModel,
	model domain.ModelName,
) (domain.BackendDescriptor, bool) {
	if !domain.IsKnownModel(model) && kind != domain.KindCPU {
		return domain.BackendDescriptor{}, false
	}

	switch kind {
	case domain.KindCUDA:
		return e.tryCUDA(trace, caps)
	case domain.KindOpenVINO:
		return e.tryOpenVINO(trace, caps, model)
	case domain.KindCoreML:
		return e.tryCoreML(trace, caps)
	case domain.KindCPU:
		return domain.CPUDescriptor(""), true
	}
	return domain.BackendDescriptor{}, false
}

func (e *Engine) tryCUDA(trace *events.Trace, caps domain.CapabilityModel) (domain.BackendDescriptor, bool) {
	if !caps.HasDiscreteNVIDIA {
		return domain.BackendDescriptor{}, false
	}

	trace.Info("gpu_found", events.CategorySelection, map[string]any{"backend": "cuda"})
	desc := domain.BackendDescriptor{
		Kind:        domain.KindCUDA,
		ModulePath:  domain.ModuleCUDA,
		DisplayName: "NVIDIA CUDA",
	}
	trace.Info("gpu_validated", events.CategorySelection, map[string]any{"backend": "cuda"})
	return desc, true
}

func (e *Engine) tryOpenVINO(
	trace *events.Trace,
	caps domain.CapabilityModel,
	model domain.ModelName,
) (domain.BackendDescriptor, bool) {
	candidates := openvinoCandidates(caps)
	if len(candidates) == 0 {
		return domain.BackendDescriptor{}, false
	}
	if !caps.HasRuntime() {
		return domain.BackendDescriptor{}, false
	}

	trace.Info("gpu_found", events.CategorySelection, map[string]any{
		"backend":    "openvino",
		"candidates": len(candidates),
	})

	if dev, ok := e.pickSuitableDevice(candidates, model); ok {
		trace.Info("gpu_validated", events.CategorySelection, map[string]any{
			"backend": "openvino",
			"device":  dev.ID,
			"memory":  dev.Memory.String(),
		})
		return openvinoDescriptor(dev, ""), true
	}

	// No unit can hold the model. When an alternate discrete unit exists on
	// this stack, fall back to the CPU-capable OpenVINO device rather than
	// abandoning the runtime entirely.
	if hasDiscrete(candidates) {
		trace.Warn("gpu_rejected", events.CategorySelection, map[string]any{
			"backend": "openvino",
			"reason":  "insufficient_memory",
		})
		return domain.BackendDescriptor{
			Kind:           domain.KindOpenVINO,
			ModulePath:     domain.ModuleOpenVINO,
			DisplayName:    "OpenVINO CPU",
			Device:         &domain.DeviceConfig{DeviceID: "CPU"},
			FallbackReason: "openvino_gpu_unsuitable",
		}, true
	}

	return domain.BackendDescriptor{}, false
}

func (e *Engine) tryCoreML(trace *events.Trace, caps domain.CapabilityModel) (domain.BackendDescriptor, bool) {
	if !caps.AppleUnifiedGPU {
		return domain.BackendDescriptor{}, false
	}
	if e.Platform != domain.PlatformDarwin {
		return domain.BackendDescriptor{}, false
	}

	trace.Info("gpu_found", events.CategorySelection, map[string]any{"backend": "coreml"})
	desc := domain.BackendDescriptor{
		Kind:        domain.KindCoreML,
		ModulePath:  domain.ModuleCoreML,
		DisplayName: "Apple CoreML",
	}
	trace.Info("gpu_validated", events.CategorySelection, map[string]any{"backend": "coreml"})
	return desc, true
}

// pickSuitableDevice filters candidates by the model's memory requirement and
// returns the best remaining device: discrete before integrated, then higher
// performance tier first. The filter and sort are stable so selection stays
// deterministic for identical snapshots.
func (e *Engine) pickSuitableDevice(candidates []domain.GPUDevice, model domain.ModelName) (domain.GPUDevice, bool) {
	required := domain.RequiredMemoryMB(model, e.LargeModelMemoryMB)

	suitable := make([]domain.GPUDevice, 0, len(candidates))
	for _, dev := range candidates {
		if dev.Memory.Shared {
			// Shared-memory integrated units are trusted only up to the
			// medium tier.
			if domain.AtMostMediumTier(model) {
				suitable = append(suitable, dev)
			}
			continue
		}
		if dev.Memory.MB >= required {
			suitable = append(suitable, dev)
		}
	}
	if len(suitable) == 0 {
		return domain.GPUDevice{}, false
	}

	sort.SliceStable(suitable, func(i, j int) bool {
		a, b := suitable[i], suitable[j]
		if a.FormFactor != b.FormFactor {
			return a.FormFactor == domain.FormFactorDiscrete
		}
		return a.Tier < b.Tier
	})
	return suitable[0], true
}

// platformFallback is the enhanced last step before the CPU baseline: it
// ignores the priority order and picks whatever the platform can still offer.
func (e *Engine) platformFallback(caps domain.CapabilityModel, model domain.ModelName) (domain.BackendDescriptor, bool) {
	switch e.Platform {
	case domain.PlatformDarwin:
		if e.Arch == domain.ArchARM64 && caps.AppleUnifiedGPU {
			return domain.BackendDescriptor{
				Kind:           domain.KindCoreML,
				ModulePath:     domain.ModuleCoreML,
				DisplayName:    "Apple CoreML",
				FallbackReason: "platform_fallback",
			}, true
		}
	case domain.PlatformWindows, domain.PlatformLinux:
		if caps.HasRuntime() && len(openvinoCandidates(caps)) > 0 {
			return domain.BackendDescriptor{
				Kind:           domain.KindOpenVINO,
				ModulePath:     domain.ModuleOpenVINO,
				DisplayName:    "OpenVINO CPU",
				Device:         &domain.DeviceConfig{DeviceID: "CPU"},
				FallbackReason: "platform_fallback",
			}, true
		}
	}
	return domain.BackendDescriptor{}, false
}

func openvinoCandidates(caps domain.CapabilityModel) []domain.GPUDevice {
	candidates := make([]domain.GPUDevice, 0, len(caps.IntelUnits)+len(caps.AMDUnits))
	candidates = append(candidates, caps.IntelUnits...)
	for _, dev := range caps.AMDUnits {
		// AMD units run through the OpenCL path; units without working
		// OpenCL cannot serve.
		if dev.OpenCLOK {
			candidates = append(candidates, dev)
		}
	}
	return candidates
}

func openvinoDescriptor(dev domain.GPUDevice, reason string) domain.BackendDescriptor {
	return domain.BackendDescriptor{
		Kind:        domain.KindOpenVINO,
		ModulePath:  domain.ModuleOpenVINO,
		DisplayName: dev.DisplayName,
		Device: &domain.DeviceConfig{
			DeviceID:      dev.ID,
			Memory:        dev.Memory,
			FormFactor:    dev.FormFactor,
			DriverVersion: dev.DriverVersion,
		},
		FallbackReason: reason,
	}
}

func hasDiscrete(devices []domain.GPUDevice) bool {
	for _, dev := range devices {
		if dev.FormFactor == domain.FormFactorDiscrete {
			return true
		}
	}
	return false
}

func deviceID(desc domain.BackendDescriptor) string {
	if desc.Device == nil {
		return ""
	}
	return desc.Device.DeviceID
}

func kindsToStrings(kinds []domain.BackendKind) []string {
	out := make([]string, len(kinds))
	for i, k := range kinds {
		out[i] = string(k)
	}
	return out
}
