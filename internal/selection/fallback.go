package selection

import (
	"fmt"

	"github.com/tmaun/accelhost/internal/core/domain"
)

// BuildFallbackChain produces the ordered list of next-best backends to try
// after failedBackend could not be loaded. It is a pure function of the rule
// table below: no I/O, deterministic for a given platform/arch, and the
// returned chain always ends in the CPU baseline.
//
// Rule table:
//
//	win32:  cuda failure      -> openvino, cpu
//	        openvino failure  -> cpu-noavx, cpu
//	linux:  any GPU failure   -> openvino (unless it failed), cpu
//	darwin: any failure       -> cpu
//	other:  cpu only
func BuildFallbackChain(
	failed domain.BackendDescriptor,
	platform domain.PlatformID,
	arch domain.ArchID,
) []domain.BackendDescriptor {
	reason := fmt.Sprintf("fallback_from_%s", failed.Kind)
	baseline := domain.CPUDescriptor(reason)

	switch platform {
	case domain.PlatformWindows:
		switch failed.Kind {
		case domain.KindCUDA:
			return []domain.BackendDescriptor{openvinoFallback(reason), baseline}
		case domain.KindOpenVINO:
			return []domain.BackendDescriptor{cpuNoAVXFallback(), baseline}
		}
		return []domain.BackendDescriptor{baseline}

	case domain.PlatformLinux:
		if failed.Kind != domain.KindOpenVINO && failed.Kind != domain.KindCPU {
			return []domain.BackendDescriptor{openvinoFallback(reason), baseline}
		}
		return []domain.BackendDescriptor{baseline}

	case domain.PlatformDarwin:
		// Unified-memory and x64 Macs alike go straight to the baseline.
		return []domain.BackendDescriptor{baseline}

	default:
		return []domain.BackendDescriptor{baseline}
	}
}

func openvinoFallback(reason string) domain.BackendDescriptor {
	return domain.BackendDescriptor{
		Kind:           domain.KindOpenVINO,
		ModulePath:     domain.ModuleOpenVINO,
		DisplayName:    "OpenVINO",
		Device:         &domain.DeviceConfig{DeviceID: "GPU"},
		FallbackReason: reason,
	}
}

func cpuNoAVXFallback() domain.BackendDescriptor {
	return domain.BackendDescriptor{
		Kind:           domain.KindCPU,
		ModulePath:     domain.ModuleCPUNoAVX,
		DisplayName:    "CPU (reduced feature set)",
		FallbackReason: "reduced_feature_set",
	}
}
