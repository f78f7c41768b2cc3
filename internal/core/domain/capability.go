package domain

import "fmt"

// MemorySize is a device memory amount in MB. Integrated units that borrow
// system RAM report Shared=true instead of a fixed figure.
type MemorySize struct {
	MB     int
	Shared bool
}

// FixedMemory returns a dedicated memory size.
func FixedMemory(mb int) MemorySize {
	return MemorySize{MB: mb}
}

// SharedMemory returns the shared-memory marker used by integrated units.
func SharedMemory() MemorySize {
	return MemorySize{Shared: true}
}

func (m MemorySize) String() string {
	if m.Shared {
		return "shared"
	}
	return fmt.Sprintf("%dMB", m.MB)
}

// GPUDevice describes one compute unit reported by the capability probe.
type GPUDevice struct {
	ID            string
	DisplayName   string
	ClassID       string
	Memory        MemorySize
	FormFactor    FormFactor
	DriverVersion string
	OpenCLOK      bool
	VulkanOK      bool
	Tier          PerformanceTier
}

// Topology describes the machine-level GPU arrangement.
type Topology struct {
	MultiGPU     bool
	HybridSystem bool
}

// CapabilityModel is an immutable snapshot of what compute backends are
// present on this machine. It is produced externally by the hardware probe
// and consumed once per selection call.
type CapabilityModel struct {
	HasDiscreteNVIDIA   bool
	IntelUnits          []GPUDevice
	AMDUnits            []GPUDevice
	AppleUnifiedGPU     bool
	CPUAlwaysAvailable  bool
	AccelRuntimeVersion string // empty = acceleration runtime not installed
	Topology            Topology
}

// Validate checks snapshot invariants: device ids are unique across vendor
// lists and shared memory is only reported by integrated units.
func (c CapabilityModel) Validate() error {
	seen := make(map[string]struct{}, len(c.IntelUnits)+len(c.AMDUnits))
	for _, dev := range append(append([]GPUDevice{}, c.IntelUnits...), c.AMDUnits...) {
		if _, dup := seen[dev.ID]; dup {
			return fmt.Errorf("duplicate device id %q in capability snapshot", dev.ID)
		}
		seen[dev.ID] = struct{}{}

		if dev.Memory.Shared && dev.FormFactor != FormFactorIntegrated {
			return fmt.Errorf("device %q: shared memory on %s form factor", dev.ID, dev.FormFactor)
		}
	}
	return nil
}

// HasRuntime reports whether the vendor acceleration runtime is installed.
func (c CapabilityModel) HasRuntime() bool {
	return c.AccelRuntimeVersion != ""
}

// FindDevice resolves a device id against both vendor lists.
func (c CapabilityModel) FindDevice(id string) (GPUDevice, bool) {
	for _, dev := range c.IntelUnits {
		if dev.ID == id {
			return dev, true
		}
	}
	for _, dev := range c.AMDUnits {
		if dev.ID == id {
			return dev, true
		}
	}
	return GPUDevice{}, false
}
