package loading

import (
	"os"
	"sync"
)

// Environment variable names the OpenVINO-style runtime reads at load time.
const (
	EnvDevice   = "ACCEL_OV_DEVICE"
	EnvCacheDir = "ACCEL_OV_CACHE_DIR"
	EnvPerfHint = "ACCEL_OV_PERF_HINT"
)

// envMu serializes scoped-env sections. Process environment is process-wide
// mutable state; concurrent backend loads would otherwise race on it.
var envMu sync.Mutex

// withScopedEnv sets the given variables, runs fn, and restores the prior
// values (or unsets them) no matter how fn exits.
func withScopedEnv(vars map[string]string, fn func() error) error {
	envMu.Lock()
	defer envMu.Unlock()

	type prior struct {
		value string
		had   bool
	}
	prev := make(map[string]prior, len(vars))
	for k, v := range vars {
		old, had := os.LookupEnv(k)
		prev[k] = prior{value: old, had: had}
		os.Setenv(k, v)
	}
	defer func() {
		for k, p := range prev {
			if p.had {
				os.Setenv(k, p.value)
			} else {
				os.Unsetenv(k)
			}
		}
	}()

	return fn()
}
