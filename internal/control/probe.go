package control

import (
	"context"
	"os"
	"runtime"

	"github.com/tmaun/accelhost/internal/core/domain"
)

// DefaultProber builds a conservative capability snapshot from the build
// target and environment. Real device enumeration is delegated to an external
// probe process; this one only asserts what is safe to assume: the CPU
// baseline always, the unified GPU on Apple Silicon, and the acceleration
// runtime when its environment marker is present.
func DefaultProber() func(ctx context.Context) (domain.CapabilityModel, error) {
	return func(ctx context.Context) (domain.CapabilityModel, error) {
		caps := domain.CapabilityModel{
			CPUAlwaysAvailable:  true,
			AppleUnifiedGPU:     runtime.GOOS == "darwin" && runtime.GOARCH == "arm64",
			AccelRuntimeVersion: os.Getenv("ACCEL_RUNTIME_VERSION"),
		}
		return caps, nil
	}
}
