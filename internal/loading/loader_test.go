package loading

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tmaun/accelhost/internal/core/domain"
)

// =============================================================================
// Fake modules
// =============================================================================

type fakeModule struct {
	name    string
	entries map[string]domain.InferenceFunc
	closed  bool
}

func (m *fakeModule) Name() string                                 { return m.name }
func (m *fakeModule) Entrypoints() map[string]domain.InferenceFunc { return m.entries }
func (m *fakeModule) Close() error                                 { m.closed = true; return nil }

func singleEntry(fn domain.InferenceFunc) map[string]domain.InferenceFunc {
	return map[string]domain.InferenceFunc{"transcribe": fn}
}

func okEntry(ctx context.Context, params domain.TranscribeParams) (*domain.TranscribeResult, error) {
	if params.ValidateOnly {
		return nil, errors.New("model file not found: ''")
	}
	return &domain.TranscribeResult{}, nil
}

// testRegistry creates a registry over a temp dir with artifacts for the
// given module names already present.
func testRegistry(t *testing.T, names ...string) *Registry {
	t.Helper()
	dir := t.TempDir()
	for _, n := range names {
		path := filepath.Join(dir, n+ArtifactExt(domain.PlatformLinux))
		if err := os.WriteFile(path, []byte("stub"), 0o644); err != nil {
			t.Fatalf("write artifact: %v", err)
		}
	}
	return NewRegistry(dir, domain.PlatformLinux)
}

// =============================================================================
// Loader
// =============================================================================

func TestLoadModuleNotFound(t *testing.T) {
	reg := testRegistry(t) // no artifacts
	loader := NewLoader(reg, Config{})

	desc := domain.CPUDescriptor("")
	_, err := loader.LoadAndValidate(context.Background(), nil, desc)
	if !errors.Is(err, domain.ErrModuleNotFound) {
		t.Fatalf("expected ErrModuleNotFound, got %v", err)
	}

	var loadErr *domain.LoadError
	if !errors.As(err, &loadErr) || loadErr.Stage != domain.StageResolve {
		t.Fatalf("expected resolve-stage LoadError, got %v", err)
	}
}

func TestLoadOpenerFailure(t *testing.T) {
	reg := testRegistry(t, domain.ModuleCPU)
	reg.RegisterOpener(domain.ModuleCPU, func(path string) (Module, error) {
		return nil, errors.New("dlopen: bad ELF")
	})
	loader := NewLoader(reg, Config{})

	_, err := loader.LoadAndValidate(context.Background(), nil, domain.CPUDescriptor(""))
	if !errors.Is(err, domain.ErrLoadFailed) {
		t.Fatalf("expected ErrLoadFailed, got %v", err)
	}
}

func TestLoadInvalidStructure(t *testing.T) {
	reg := testRegistry(t, domain.ModuleCPU)
	reg.RegisterOpener(domain.ModuleCPU, func(path string) (Module, error) {
		return &fakeModule{name: path, entries: map[string]domain.InferenceFunc{
			"transcribe": okEntry,
			"detect":     okEntry,
		}}, nil
	})
	loader := NewLoader(reg, Config{})

	_, err := loader.LoadAndValidate(context.Background(), nil, domain.CPUDescriptor(""))
	if !errors.Is(err, domain.ErrInvalidStructure) {
		t.Fatalf("expected ErrInvalidStructure for two entry points, got %v", err)
	}
}

func TestValidationBenignModelErrorIsSuccess(t *testing.T) {
	reg := testRegistry(t, domain.ModuleCPU)
	reg.RegisterOpener(domain.ModuleCPU, func(path string) (Module, error) {
		return &fakeModule{name: path, entries: singleEntry(okEntry)}, nil
	})
	loader := NewLoader(reg, Config{})

	callable, err := loader.LoadAndValidate(context.Background(), nil, domain.CPUDescriptor(""))
	if err != nil {
		t.Fatalf("model-not-found during the smoke call must count as success: %v", err)
	}
	if callable == nil {
		t.Fatal("expected a callable")
	}
}

func TestValidationRealErrorFails(t *testing.T) {
	reg := testRegistry(t, domain.ModuleCPU)
	reg.RegisterOpener(domain.ModuleCPU, func(path string) (Module, error) {
		return &fakeModule{name: path, entries: singleEntry(
			func(ctx context.Context, p domain.TranscribeParams) (*domain.TranscribeResult, error) {
				return nil, errors.New("device initialization error")
			},
		)}, nil
	})
	loader := NewLoader(reg, Config{})

	_, err := loader.LoadAndValidate(context.Background(), nil, domain.CPUDescriptor(""))
	if !errors.Is(err, domain.ErrValidationFailed) {
		t.Fatalf("expected ErrValidationFailed, got %v", err)
	}
}

func TestValidationTimeoutBound(t *testing.T) {
	reg := testRegistry(t, domain.ModuleCPU)
	reg.RegisterOpener(domain.ModuleCPU, func(path string) (Module, error) {
		return &fakeModule{name: path, entries: singleEntry(
			func(ctx context.Context, p domain.TranscribeParams) (*domain.TranscribeResult, error) {
				// Hang past the timeout regardless of ctx.
				time.Sleep(2 * time.Second)
				return &domain.TranscribeResult{}, nil
			},
		)}, nil
	})
	loader := NewLoader(reg, Config{ValidationTimeout: 50 * time.Millisecond})

	start := time.Now()
	_, err := loader.LoadAndValidate(context.Background(), nil, domain.CPUDescriptor(""))
	elapsed := time.Since(start)

	if !errors.Is(err, domain.ErrValidationTimeout) {
		t.Fatalf("expected ErrValidationTimeout, got %v", err)
	}
	if elapsed > time.Second {
		t.Fatalf("caller blocked %s, timeout bound not honored", elapsed)
	}
}

func TestCoreMLSkipsFunctionalValidation(t *testing.T) {
	reg := testRegistry(t, domain.ModuleCoreML)
	reg.RegisterOpener(domain.ModuleCoreML, func(path string) (Module, error) {
		return &fakeModule{name: path, entries: singleEntry(
			func(ctx context.Context, p domain.TranscribeParams) (*domain.TranscribeResult, error) {
				if p.ValidateOnly {
					return nil, errors.New("device initialization error")
				}
				return &domain.TranscribeResult{}, nil
			},
		)}, nil
	})
	loader := NewLoader(reg, Config{})

	desc := domain.BackendDescriptor{
		Kind:        domain.KindCoreML,
		ModulePath:  domain.ModuleCoreML,
		DisplayName: "Apple CoreML",
	}
	callable, err := loader.LoadAndValidate(context.Background(), nil, desc)
	if err != nil {
		t.Fatalf("coreml must skip the smoke call, got %v", err)
	}
	if callable == nil {
		t.Fatal("expected a callable")
	}
}

func TestAdapterInjectsBackendFields(t *testing.T) {
	var got domain.TranscribeParams
	reg := testRegistry(t, domain.ModuleOpenVINO)
	reg.RegisterOpener(domain.ModuleOpenVINO, func(path string) (Module, error) {
		return &fakeModule{name: path, entries: singleEntry(
			func(ctx context.Context, p domain.TranscribeParams) (*domain.TranscribeResult, error) {
				if p.ValidateOnly {
					return nil, errors.New("no model file")
				}
				got = p
				return &domain.TranscribeResult{}, nil
			},
		)}, nil
	})
	loader := NewLoader(reg, Config{CacheDir: "/tmp/accel-cache"})

	desc := domain.BackendDescriptor{
		Kind:       domain.KindOpenVINO,
		ModulePath: domain.ModuleOpenVINO,
		Device: &domain.DeviceConfig{
			DeviceID:   "gpu-7",
			FormFactor: domain.FormFactorDiscrete,
		},
	}
	callable, err := loader.LoadAndValidate(context.Background(), nil, desc)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if _, err := callable(context.Background(), domain.TranscribeParams{Model: domain.ModelBase, InputPath: "in.wav"}); err != nil {
		t.Fatalf("call failed: %v", err)
	}

	if got.Backend["device"] != "gpu-7" {
		t.Errorf("device = %q, want gpu-7", got.Backend["device"])
	}
	if got.Backend["cache_dir"] != "/tmp/accel-cache" {
		t.Errorf("cache_dir = %q", got.Backend["cache_dir"])
	}
	if got.Backend["performance_hint"] != PerfHintThroughput {
		t.Errorf("performance_hint = %q, want THROUGHPUT for discrete", got.Backend["performance_hint"])
	}
}

func TestScopedEnvRestoredAfterLoad(t *testing.T) {
	t.Setenv(EnvDevice, "previous-device")
	os.Unsetenv(EnvPerfHint)

	var seenDevice, seenHint string
	reg := testRegistry(t, domain.ModuleOpenVINO)
	reg.RegisterOpener(domain.ModuleOpenVINO, func(path string) (Module, error) {
		seenDevice = os.Getenv(EnvDevice)
		seenHint = os.Getenv(EnvPerfHint)
		return &fakeModule{name: path, entries: singleEntry(okEntry)}, nil
	})
	loader := NewLoader(reg, Config{})

	desc := domain.BackendDescriptor{
		Kind:       domain.KindOpenVINO,
		ModulePath: domain.ModuleOpenVINO,
		Device:     &domain.DeviceConfig{DeviceID: "gpu-0", FormFactor: domain.FormFactorIntegrated},
	}
	if _, err := loader.LoadAndValidate(context.Background(), nil, desc); err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if seenDevice != "gpu-0" {
		t.Errorf("opener saw device %q, want gpu-0", seenDevice)
	}
	if seenHint != PerfHintLatency {
		t.Errorf("opener saw hint %q, want LATENCY for integrated", seenHint)
	}
	if got := os.Getenv(EnvDevice); got != "previous-device" {
		t.Errorf("env not restored: %q", got)
	}
	if _, set := os.LookupEnv(EnvPerfHint); set {
		t.Error("previously unset variable must be unset again")
	}
}

// =============================================================================
// Registry
// =============================================================================

func TestRegistryReloadProducesFreshHandle(t *testing.T) {
	reg := testRegistry(t, domain.ModuleCPU)

	var created []*fakeModule
	reg.RegisterOpener(domain.ModuleCPU, func(path string) (Module, error) {
		m := &fakeModule{name: path, entries: singleEntry(okEntry)}
		created = append(created, m)
		return m, nil
	})

	first, err := reg.Open(domain.ModuleCPU)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	again, err := reg.Open(domain.ModuleCPU)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if first != again {
		t.Fatal("second Open should reuse the cached handle")
	}

	fresh, err := reg.Reload(domain.ModuleCPU)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if fresh == first {
		t.Fatal("Reload must produce a fresh handle")
	}
	if !created[0].closed {
		t.Fatal("Reload must close the old handle")
	}
}
