package selection

import (
	"testing"

	"github.com/tmaun/accelhost/internal/core/domain"
)

func kinds(chain []domain.BackendDescriptor) []domain.BackendKind {
	out := make([]domain.BackendKind, len(chain))
	for i, d := range chain {
		out[i] = d.Kind
	}
	return out
}

func TestWin32CUDAFailureChain(t *testing.T) {
	failed := domain.BackendDescriptor{Kind: domain.KindCUDA, ModulePath: domain.ModuleCUDA}
	chain := BuildFallbackChain(failed, domain.PlatformWindows, domain.ArchX64)

	if len(chain) != 2 {
		t.Fatalf("expected 2 entries, got %d: %v", len(chain), kinds(chain))
	}
	if chain[0].Kind != domain.KindOpenVINO {
		t.Errorf("first candidate = %s, want openvino", chain[0].Kind)
	}
	if chain[1].Kind != domain.KindCPU || chain[1].ModulePath != domain.ModuleCPU {
		t.Errorf("chain must end in the cpu baseline, got %+v", chain[1])
	}
}

func TestWin32OpenVINOFailureChain(t *testing.T) {
	failed := domain.BackendDescriptor{Kind: domain.KindOpenVINO, ModulePath: domain.ModuleOpenVINO}
	chain := BuildFallbackChain(failed, domain.PlatformWindows, domain.ArchX64)

	if len(chain) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(chain))
	}
	if chain[0].ModulePath != domain.ModuleCPUNoAVX {
		t.Errorf("expected reduced-feature cpu variant first, got %+v", chain[0])
	}
	if chain[1].ModulePath != domain.ModuleCPU {
		t.Errorf("chain must end in the cpu baseline, got %+v", chain[1])
	}
}

func TestLinuxGPUFailureChain(t *testing.T) {
	for _, failedKind := range []domain.BackendKind{domain.KindCUDA, domain.KindCoreML} {
		failed := domain.BackendDescriptor{Kind: failedKind}
		chain := BuildFallbackChain(failed, domain.PlatformLinux, domain.ArchX64)

		want := []domain.BackendKind{domain.KindOpenVINO, domain.KindCPU}
		got := kinds(chain)
		if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
			t.Errorf("linux %s failure: chain = %v, want %v", failedKind, got, want)
		}
	}

	failed := domain.BackendDescriptor{Kind: domain.KindOpenVINO}
	chain := BuildFallbackChain(failed, domain.PlatformLinux, domain.ArchX64)
	if len(chain) != 1 || chain[0].Kind != domain.KindCPU {
		t.Errorf("linux openvino failure should go straight to cpu, got %v", kinds(chain))
	}
}

func TestDarwinChains(t *testing.T) {
	coreml := domain.BackendDescriptor{Kind: domain.KindCoreML}
	chain := BuildFallbackChain(coreml, domain.PlatformDarwin, domain.ArchARM64)
	if len(chain) != 1 || chain[0].Kind != domain.KindCPU {
		t.Errorf("darwin/arm64: chain = %v, want [cpu]", kinds(chain))
	}

	openvino := domain.BackendDescriptor{Kind: domain.KindOpenVINO}
	chain = BuildFallbackChain(openvino, domain.PlatformDarwin, domain.ArchX64)
	if len(chain) != 1 || chain[0].Kind != domain.KindCPU {
		t.Errorf("darwin/x64: chain = %v, want [cpu]", kinds(chain))
	}
}

func TestUnknownPlatformChain(t *testing.T) {
	failed := domain.BackendDescriptor{Kind: domain.KindCUDA}
	chain := BuildFallbackChain(failed, domain.PlatformUnknown, domain.ArchX64)
	if len(chain) != 1 || chain[0].Kind != domain.KindCPU {
		t.Errorf("unknown platform: chain = %v, want [cpu]", kinds(chain))
	}
}

// Every platform/arch/failed-kind combination must yield a finite chain that
// ends in the CPU baseline and stays within the rule-table bound.
func TestChainTermination(t *testing.T) {
	platforms := []domain.PlatformID{
		domain.PlatformWindows, domain.PlatformLinux, domain.PlatformDarwin, domain.PlatformUnknown, "beos",
	}
	archs := []domain.ArchID{domain.ArchX64, domain.ArchARM64}
	failedKinds := []domain.BackendKind{
		domain.KindCUDA, domain.KindOpenVINO, domain.KindCoreML, domain.KindCPU,
	}

	for _, p := range platforms {
		for _, a := range archs {
			for _, k := range failedKinds {
				chain := BuildFallbackChain(domain.BackendDescriptor{Kind: k}, p, a)
				if len(chain) == 0 {
					t.Fatalf("%s/%s/%s: empty chain", p, a, k)
				}
				if len(chain) > 3 {
					t.Fatalf("%s/%s/%s: chain too long (%d)", p, a, k, len(chain))
				}
				last := chain[len(chain)-1]
				if last.Kind != domain.KindCPU || last.ModulePath != domain.ModuleCPU {
					t.Fatalf("%s/%s/%s: chain does not end in cpu baseline: %+v", p, a, k, last)
				}
				for _, d := range chain {
					if d.FallbackReason == "" {
						t.Fatalf("%s/%s/%s: candidate missing fallback reason: %+v", p, a, k, d)
					}
				}
			}
		}
	}
}
