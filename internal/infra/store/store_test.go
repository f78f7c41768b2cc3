package store

import (
	"context"
	"reflect"
	"testing"

	"github.com/tmaun/accelhost/internal/core/domain"
)

func TestMemoryStoreDefault(t *testing.T) {
	s := NewMemoryStore()

	pref, err := s.Read(context.Background())
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if pref.SelectedBackendID != "auto" {
		t.Errorf("fresh store should default to auto, got %q", pref.SelectedBackendID)
	}
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	want := Preference{
		SelectedBackendID: "gpu-1",
		PriorityOrder:     []domain.BackendKind{domain.KindOpenVINO, domain.KindCPU},
		ForceCPU:          true,
	}

	if err := s.Write(context.Background(), want); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := s.Read(context.Background())
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("round trip mismatch: %+v vs %+v", got, want)
	}
}

func TestKindsEncoding(t *testing.T) {
	kinds := []domain.BackendKind{domain.KindCUDA, domain.KindOpenVINO, domain.KindCPU}
	encoded := joinKinds(kinds)
	if encoded != "cuda,openvino,cpu" {
		t.Errorf("joinKinds = %q", encoded)
	}
	if got := splitKinds(encoded); !reflect.DeepEqual(got, kinds) {
		t.Errorf("splitKinds = %v, want %v", got, kinds)
	}
	if got := splitKinds(""); got != nil {
		t.Errorf("empty string should decode to nil, got %v", got)
	}
}
