package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"github.com/tmaun/accelhost/internal/core/domain"
	"github.com/tmaun/accelhost/internal/engine"
	"github.com/tmaun/accelhost/internal/events"
	"github.com/tmaun/accelhost/internal/loading"
)

// Demo harness: runs one full selection/loading/recovery workflow against a
// synthetic capability snapshot and stub backend modules, printing the
// decision trace to stdout.
func main() {
	err := godotenv.Load()
	if err != nil {
		log.Println("No .env file found")
	}

	model := domain.ModelName(os.Getenv("ACCEL_MODEL"))
	if model == "" {
		model = domain.ModelSmall
	}

	ctx := context.Background()

	// 1. Stub module artifacts in a scratch directory
	dir, err := os.MkdirTemp("", "accelhost-demo")
	if err != nil {
		log.Fatalf("mkdtemp: %v", err)
	}
	defer os.RemoveAll(dir)

	registry := loading.NewRegistry(dir, domain.PlatformLinux)
	installStub(registry, dir, domain.ModuleOpenVINO, true)
	installStub(registry, dir, domain.ModuleCPU, false)
	loader := loading.NewLoader(registry, loading.Config{})

	// 2. Synthetic capability snapshot: one discrete Intel unit, runtime
	// installed, no NVIDIA board
	caps := domain.CapabilityModel{
		IntelUnits: []domain.GPUDevice{{
			ID:          "gpu-0",
			DisplayName: "Intel Arc A770",
			Memory:      domain.FixedMemory(16384),
			FormFactor:  domain.FormFactorDiscrete,
			Tier:        domain.TierHigh,
		}},
		CPUAlwaysAvailable:  true,
		AccelRuntimeVersion: "2024.1",
	}

	// 3. Engine with a stdout trace
	eng := engine.New(
		engine.Config{Platform: domain.PlatformLinux, Arch: domain.ArchX64},
		loader,
		nil,
		engine.WithEmitter(printEmitter{}),
	)

	fmt.Println("=== Backend Selection ===")
	loaded, err := eng.SelectAndLoad(ctx, model, &caps)
	if err != nil {
		log.Fatalf("SelectAndLoad failed: %v", err)
	}
	fmt.Printf("\nSelected: %s (%s)\n", loaded.Descriptor.Kind, loaded.Descriptor.DisplayName)
	if loaded.Descriptor.FallbackReason != "" {
		fmt.Printf("Fallback reason: %s\n", loaded.Descriptor.FallbackReason)
	}

	// 4. One processing call through the recovery ladder
	fmt.Println("\n=== Processing ===")
	result, err := eng.Process(ctx, loaded, domain.TranscribeParams{
		Model:     model,
		InputPath: "demo.wav",
	})
	if err != nil {
		log.Fatalf("Process failed: %v", err)
	}
	for _, seg := range result.Segments {
		fmt.Printf("segment: %q\n", seg.Text)
	}
	if result.Degraded {
		fmt.Println("(degraded placeholder result)")
	}
}

// installStub writes a placeholder artifact and binds a stub opener. The
// flaky variant fails its first real call so the recovery ladder has
// something to do.
func installStub(registry *loading.Registry, dir, module string, flaky bool) {
	path := filepath.Join(dir, module+loading.ArtifactExt(domain.PlatformLinux))
	if err := os.WriteFile(path, []byte("stub"), 0o644); err != nil {
		log.Fatalf("write stub artifact: %v", err)
	}

	calls := 0
	registry.RegisterOpener(module, func(string) (loading.Module, error) {
		return stubModule{name: module, fn: func(ctx context.Context, params domain.TranscribeParams) (*domain.TranscribeResult, error) {
			if params.ValidateOnly {
				return nil, errors.New("no model file given")
			}
			calls++
			if flaky && calls == 1 {
				return nil, errors.New("out of memory")
			}
			return &domain.TranscribeResult{Segments: []domain.Segment{
				{Text: fmt.Sprintf("transcribed %s with %s (model %s)", params.InputPath, module, params.Model)},
			}}, nil
		}}, nil
	})
}

type stubModule struct {
	name string
	fn   domain.InferenceFunc
}

func (m stubModule) Name() string { return m.name }
func (m stubModule) Entrypoints() map[string]domain.InferenceFunc {
	return map[string]domain.InferenceFunc{"transcribe": m.fn}
}
func (m stubModule) Close() error { return nil }

// printEmitter dumps each trace event to stdout.
type printEmitter struct{}

func (printEmitter) Emit(ev events.Event) {
	fmt.Printf("[%s] %-24s %v\n", ev.Category, ev.Name, ev.Context)
}
