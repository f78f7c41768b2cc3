package domain

// BackendKind identifies an acceleration path capable of running inference.
type BackendKind string

const (
	KindCUDA     BackendKind = "cuda"     // NVIDIA discrete GPU
	KindOpenVINO BackendKind = "openvino" // Intel/AMD units via the OpenVINO runtime
	KindCoreML   BackendKind = "coreml"   // Apple unified-memory GPU
	KindCPU      BackendKind = "cpu"      // always-available baseline
)

// PlatformID is the host OS identifier used by the fallback rule table.
type PlatformID string

const (
	PlatformWindows PlatformID = "win32"
	PlatformLinux   PlatformID = "linux"
	PlatformDarwin  PlatformID = "darwin"
	PlatformUnknown PlatformID = "unknown"
)

// ArchID is the host CPU architecture.
type ArchID string

const (
	ArchX64   ArchID = "x64"
	ArchARM64 ArchID = "arm64"
)

// FormFactor distinguishes discrete boards from integrated units.
type FormFactor string

const (
	FormFactorDiscrete   FormFactor = "discrete"
	FormFactorIntegrated FormFactor = "integrated"
)

// PerformanceTier ranks devices of the same form factor.
// Lower value = better tier, so tiers sort ascending.
type PerformanceTier int

const (
	TierHigh PerformanceTier = iota
	TierMedium
	TierLow
)

// DeviceConfig carries the device-specific settings a backend module needs.
// It is passed by value into the loader and the call adapter, never written
// to shared state.
type DeviceConfig struct {
	DeviceID      string
	Memory        MemorySize
	FormFactor    FormFactor
	DriverVersion string
}

// BackendDescriptor names a chosen backend and its device configuration.
// Descriptors are immutable once created: selection and fallback produce new
// values, the loader consumes each exactly once.
type BackendDescriptor struct {
	Kind           BackendKind
	ModulePath     string
	DisplayName    string
	Device         *DeviceConfig
	FallbackReason string
}

// IsBaseline reports whether this descriptor is the guaranteed CPU baseline.
func (d BackendDescriptor) IsBaseline() bool {
	return d.Kind == KindCPU && d.FallbackReason != "reduced_feature_set"
}

// Module names resolved by the loader. The on-disk artifact gets a
// platform-specific extension appended at resolution time.
const (
	ModuleCUDA     = "accel-cuda"
	ModuleOpenVINO = "accel-openvino"
	ModuleCoreML   = "accel-coreml"
	ModuleCPU      = "accel-cpu"
	ModuleCPUNoAVX = "accel-cpu-noavx"
)

// CPUDescriptor returns the baseline descriptor that every selection and
// every fallback chain can terminate with.
func CPUDescriptor(reason string) BackendDescriptor {
	return BackendDescriptor{
		Kind:           KindCPU,
		ModulePath:     ModuleCPU,
		DisplayName:    "CPU",
		FallbackReason: reason,
	}
}
