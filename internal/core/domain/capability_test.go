package domain

import "testing"

func TestCapabilityValidateUniqueIDs(t *testing.T) {
	caps := CapabilityModel{
		IntelUnits: []GPUDevice{
			{ID: "gpu-0", FormFactor: FormFactorIntegrated, Memory: SharedMemory()},
		},
		AMDUnits: []GPUDevice{
			{ID: "gpu-0", FormFactor: FormFactorDiscrete, Memory: FixedMemory(8192)},
		},
		CPUAlwaysAvailable: true,
	}

	if err := caps.Validate(); err == nil {
		t.Fatal("expected duplicate device id to fail validation")
	}
}

func TestCapabilityValidateSharedMemoryFormFactor(t *testing.T) {
	caps := CapabilityModel{
		AMDUnits: []GPUDevice{
			{ID: "gpu-1", FormFactor: FormFactorDiscrete, Memory: SharedMemory()},
		},
		CPUAlwaysAvailable: true,
	}

	if err := caps.Validate(); err == nil {
		t.Fatal("shared memory on a discrete device must fail validation")
	}

	caps.AMDUnits[0].FormFactor = FormFactorIntegrated
	if err := caps.Validate(); err != nil {
		t.Fatalf("shared memory on integrated device should validate: %v", err)
	}
}

func TestFindDevice(t *testing.T) {
	caps := CapabilityModel{
		IntelUnits: []GPUDevice{{ID: "intel-0", FormFactor: FormFactorIntegrated, Memory: SharedMemory()}},
		AMDUnits:   []GPUDevice{{ID: "amd-0", FormFactor: FormFactorDiscrete, Memory: FixedMemory(8192)}},
	}

	if _, ok := caps.FindDevice("amd-0"); !ok {
		t.Error("expected to find amd-0")
	}
	if _, ok := caps.FindDevice("intel-0"); !ok {
		t.Error("expected to find intel-0")
	}
	if _, ok := caps.FindDevice("ghost"); ok {
		t.Error("unknown id must not resolve")
	}
}
