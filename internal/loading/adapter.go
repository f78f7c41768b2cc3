package loading

import (
	"context"

	"github.com/tmaun/accelhost/internal/core/domain"
)

// AdapterConfig is the backend-specific call configuration, passed by value
// into the adapter closure. It is never written to shared state.
type AdapterConfig struct {
	DeviceID string
	CacheDir string
	PerfHint string
}

// Performance hints for the OpenVINO-style runtime: discrete boards favor
// throughput, integrated units favor latency.
const (
	PerfHintThroughput = "THROUGHPUT"
	PerfHintLatency    = "LATENCY"
)

// adapterConfigFor derives the call configuration from a descriptor.
func adapterConfigFor(desc domain.BackendDescriptor, cacheDir string) AdapterConfig {
	cfg := AdapterConfig{CacheDir: cacheDir, PerfHint: PerfHintLatency}

	if desc.Device != nil {
		cfg.DeviceID = desc.Device.DeviceID
		if desc.Device.FormFactor == domain.FormFactorDiscrete {
			cfg.PerfHint = PerfHintThroughput
		}
	} else if desc.Kind == domain.KindOpenVINO {
		cfg.DeviceID = "GPU"
	}

	return cfg
}

func (c AdapterConfig) envVars() map[string]string {
	return map[string]string{
		EnvDevice:   c.DeviceID,
		EnvCacheDir: c.CacheDir,
		EnvPerfHint: c.PerfHint,
	}
}

// Adapt wraps a raw entry point so every real call carries the
// backend-specific parameters.
func Adapt(entry domain.InferenceFunc, cfg AdapterConfig) domain.InferenceFunc {
	return func(ctx context.Context, params domain.TranscribeParams) (*domain.TranscribeResult, error) {
		if cfg.DeviceID != "" {
			params = params.WithBackendField("device", cfg.DeviceID)
		}
		if cfg.CacheDir != "" {
			params = params.WithBackendField("cache_dir", cfg.CacheDir)
		}
		params = params.WithBackendField("performance_hint", cfg.PerfHint)
		return entry(ctx, params)
	}
}
