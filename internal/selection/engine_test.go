package selection

import (
	"reflect"
	"testing"

	"github.com/tmaun/accelhost/internal/core/domain"
)

func testEngine() *Engine {
	return NewEngine(domain.PlatformLinux, domain.ArchX64, 0)
}

func discreteAMD(id string, memMB int) domain.GPUDevice {
	return domain.GPUDevice{
		ID:          id,
		DisplayName: "AMD " + id,
		Memory:      domain.FixedMemory(memMB),
		FormFactor:  domain.FormFactorDiscrete,
		OpenCLOK:    true,
		Tier:        domain.TierHigh,
	}
}

func integratedIntel(id string) domain.GPUDevice {
	return domain.GPUDevice{
		ID:          id,
		DisplayName: "Intel " + id,
		Memory:      domain.SharedMemory(),
		FormFactor:  domain.FormFactorIntegrated,
		Tier:        domain.TierMedium,
	}
}

func TestSelectNoHardwareFallsToCPU(t *testing.T) {
	caps := domain.CapabilityModel{CPUAlwaysAvailable: true}
	priority := []domain.BackendKind{
		domain.KindCUDA, domain.KindOpenVINO, domain.KindCoreML, domain.KindCPU,
	}

	desc := testEngine().SelectOptimalGPU(nil, priority, caps, domain.ModelBase)
	if desc.Kind != domain.KindCPU {
		t.Fatalf("expected cpu baseline, got %s", desc.Kind)
	}
}

func TestSelectDiscreteDeviceMemoryFilter(t *testing.T) {
	engine := testEngine()
	priority := []domain.BackendKind{domain.KindOpenVINO, domain.KindCPU}

	// 8192MB discrete unit holds the large model (required 6400MB).
	caps := domain.CapabilityModel{
		AMDUnits:            []domain.GPUDevice{discreteAMD("amd-0", 8192)},
		CPUAlwaysAvailable:  true,
		AccelRuntimeVersion: "2024.1",
	}
	desc := engine.SelectOptimalGPU(nil, priority, caps, domain.ModelLarge)
	if desc.Kind != domain.KindOpenVINO || desc.Device == nil || desc.Device.DeviceID != "amd-0" {
		t.Fatalf("expected amd-0 selected, got %+v", desc)
	}

	// 4096MB is below the 6400MB requirement: the device must be rejected.
	caps.AMDUnits = []domain.GPUDevice{discreteAMD("amd-0", 4096)}
	desc = engine.SelectOptimalGPU(nil, priority, caps, domain.ModelLarge)
	if desc.Device != nil && desc.Device.DeviceID == "amd-0" {
		t.Fatalf("undersized device must not be selected, got %+v", desc)
	}

	// With the alternative 4096MB large-tier figure the same device passes.
	alt := NewEngine(domain.PlatformLinux, domain.ArchX64, domain.AltLargeModelMemoryMB)
	desc = alt.SelectOptimalGPU(nil, priority, caps, domain.ModelLarge)
	if desc.Device == nil || desc.Device.DeviceID != "amd-0" {
		t.Fatalf("device should pass under the 4096MB table, got %+v", desc)
	}
}

func TestSelectSharedMemoryCeiling(t *testing.T) {
	engine := testEngine()
	priority := []domain.BackendKind{domain.KindOpenVINO, domain.KindCPU}
	caps := domain.CapabilityModel{
		IntelUnits:          []domain.GPUDevice{integratedIntel("intel-0")},
		CPUAlwaysAvailable:  true,
		AccelRuntimeVersion: "2024.1",
	}

	desc := engine.SelectOptimalGPU(nil, priority, caps, domain.ModelMedium)
	if desc.Device == nil || desc.Device.DeviceID != "intel-0" {
		t.Fatalf("shared-memory unit should hold medium, got %+v", desc)
	}

	desc = engine.SelectOptimalGPU(nil, priority, caps, domain.ModelLarge)
	if desc.Device != nil && desc.Device.DeviceID == "intel-0" {
		t.Fatalf("shared-memory unit must not hold large, got %+v", desc)
	}
}

func TestSelectPrefersDiscreteThenTier(t *testing.T) {
	engine := testEngine()
	priority := []domain.BackendKind{domain.KindOpenVINO}
	lowDiscrete := discreteAMD("amd-low", 8192)
	lowDiscrete.Tier = domain.TierLow
	highDiscrete := discreteAMD("amd-high", 8192)

	caps := domain.CapabilityModel{
		IntelUnits:          []domain.GPUDevice{integratedIntel("intel-0")},
		AMDUnits:            []domain.GPUDevice{lowDiscrete, highDiscrete},
		CPUAlwaysAvailable:  true,
		AccelRuntimeVersion: "2024.1",
	}

	desc := engine.SelectOptimalGPU(nil, priority, caps, domain.ModelSmall)
	if desc.Device == nil || desc.Device.DeviceID != "amd-high" {
		t.Fatalf("expected high-tier discrete unit, got %+v", desc)
	}
}

func TestSelectRuntimeMissingSkipsOpenVINO(t *testing.T) {
	engine := testEngine()
	priority := []domain.BackendKind{domain.KindOpenVINO, domain.KindCPU}
	caps := domain.CapabilityModel{
		AMDUnits:           []domain.GPUDevice{discreteAMD("amd-0", 8192)},
		CPUAlwaysAvailable: true,
		// AccelRuntimeVersion empty: runtime not installed.
	}

	desc := engine.SelectOptimalGPU(nil, priority, caps, domain.ModelSmall)
	if desc.Kind != domain.KindCPU {
		t.Fatalf("expected cpu when runtime is missing, got %s", desc.Kind)
	}
}

func TestSelectSameStackCPUFallback(t *testing.T) {
	// A discrete unit exists but no unit can hold the model: the probe
	// falls back to the CPU-capable device on the same runtime stack
	// instead of abandoning OpenVINO.
	engine := testEngine()
	priority := []domain.BackendKind{domain.KindOpenVINO, domain.KindCPU}
	caps := domain.CapabilityModel{
		AMDUnits:            []domain.GPUDevice{discreteAMD("amd-0", 2048)},
		CPUAlwaysAvailable:  true,
		AccelRuntimeVersion: "2024.1",
	}

	desc := engine.SelectOptimalGPU(nil, priority, caps, domain.ModelLarge)
	if desc.Kind != domain.KindOpenVINO {
		t.Fatalf("expected openvino cpu-device fallback, got %s", desc.Kind)
	}
	if desc.Device == nil || desc.Device.DeviceID != "CPU" {
		t.Fatalf("expected CPU device on the openvino stack, got %+v", desc.Device)
	}
}

func TestSelectCUDAShortCircuits(t *testing.T) {
	engine := testEngine()
	caps := domain.CapabilityModel{
		HasDiscreteNVIDIA:   true,
		AMDUnits:            []domain.GPUDevice{discreteAMD("amd-0", 8192)},
		CPUAlwaysAvailable:  true,
		AccelRuntimeVersion: "2024.1",
	}

	desc := engine.SelectOptimalGPU(nil, DefaultPriority, caps, domain.ModelMedium)
	if desc.Kind != domain.KindCUDA {
		t.Fatalf("cuda first in priority must win, got %s", desc.Kind)
	}
}

func TestSelectDeterminism(t *testing.T) {
	engine := testEngine()
	caps := domain.CapabilityModel{
		IntelUnits:          []domain.GPUDevice{integratedIntel("intel-0")},
		AMDUnits:            []domain.GPUDevice{discreteAMD("amd-0", 8192), discreteAMD("amd-1", 8192)},
		CPUAlwaysAvailable:  true,
		AccelRuntimeVersion: "2024.1",
	}

	first := engine.SelectOptimalGPU(nil, DefaultPriority, caps, domain.ModelSmall)
	for i := 0; i < 10; i++ {
		again := engine.SelectOptimalGPU(nil, DefaultPriority, caps, domain.ModelSmall)
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("selection not deterministic: %+v vs %+v", first, again)
		}
	}
}

func TestSelectUnknownModelFallsToCPU(t *testing.T) {
	engine := testEngine()
	caps := domain.CapabilityModel{
		HasDiscreteNVIDIA:   true,
		CPUAlwaysAvailable:  true,
		AccelRuntimeVersion: "2024.1",
	}

	desc := engine.SelectOptimalGPU(nil, DefaultPriority, caps, "nonsense-model")
	if desc.Kind != domain.KindCPU {
		t.Fatalf("unsupported model must land on cpu, got %s", desc.Kind)
	}
}

func TestResolveSpecificGPU(t *testing.T) {
	engine := testEngine()
	caps := domain.CapabilityModel{
		AMDUnits:            []domain.GPUDevice{discreteAMD("amd-0", 8192)},
		CPUAlwaysAvailable:  true,
		AccelRuntimeVersion: "2024.1",
	}

	desc, ok := engine.ResolveSpecificGPU("amd-0", caps)
	if !ok || desc.Device == nil || desc.Device.DeviceID != "amd-0" {
		t.Fatalf("expected amd-0 resolved, got %+v (ok=%v)", desc, ok)
	}

	if _, ok := engine.ResolveSpecificGPU("ghost-gpu", caps); ok {
		t.Fatal("unknown device id must not resolve")
	}
	if _, ok := engine.ResolveSpecificGPU("auto", caps); ok {
		t.Fatal("auto must defer to automatic selection")
	}

	desc, ok = engine.ResolveSpecificGPU("cpu", caps)
	if !ok || desc.Kind != domain.KindCPU {
		t.Fatalf("cpu override must resolve to baseline, got %+v (ok=%v)", desc, ok)
	}
}

func TestResolveSpecificGPUQuantizedUnaffected(t *testing.T) {
	// An override referencing a missing device leaves automatic selection
	// unaffected: the caller simply proceeds with SelectOptimalGPU.
	engine := testEngine()
	caps := domain.CapabilityModel{
		AMDUnits:            []domain.GPUDevice{discreteAMD("amd-0", 8192)},
		CPUAlwaysAvailable:  true,
		AccelRuntimeVersion: "2024.1",
	}

	if _, ok := engine.ResolveSpecificGPU("missing", caps); ok {
		t.Fatal("missing id should not resolve")
	}
	desc := engine.SelectOptimalGPU(nil, []domain.BackendKind{domain.KindOpenVINO, domain.KindCPU}, caps, "small-q5_1")
	if desc.Device == nil || desc.Device.DeviceID != "amd-0" {
		t.Fatalf("automatic selection should proceed unaffected, got %+v", desc)
	}
}
