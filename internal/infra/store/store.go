// Package store persists user backend preferences.
package store

import (
	"context"
	"strings"
	"sync"

	"github.com/tmaun/accelhost/internal/core/domain"
)

// Preference is the stored user choice consumed by the engine.
type Preference struct {
	// SelectedBackendID is "auto" or a specific device/backend id.
	SelectedBackendID string

	// PriorityOrder overrides the automatic vendor probe order.
	PriorityOrder []domain.BackendKind

	// ForceCPU is the single legacy boolean the terminal fallback path
	// consults when capability-aware selection is unavailable.
	ForceCPU bool
}

// DefaultPreference is what a fresh installation behaves like.
func DefaultPreference() Preference {
	return Preference{SelectedBackendID: "auto"}
}

// PreferenceStore reads and writes the user preference.
type PreferenceStore interface {
	Read(ctx context.Context) (Preference, error)
	Write(ctx context.Context, pref Preference) error
}

// MemoryStore is an in-process PreferenceStore for tests and the demo
// harness.
type MemoryStore struct {
	mu   sync.RWMutex
	pref Preference
	set  bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Read(ctx context.Context) (Preference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.set {
		return DefaultPreference(), nil
	}
	return s.pref, nil
}

func (s *MemoryStore) Write(ctx context.Context, pref Preference) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pref = pref
	s.set = true
	return nil
}

func joinKinds(kinds []domain.BackendKind) string {
	parts := make([]string, len(kinds))
	for i, k := range kinds {
		parts[i] = string(k)
	}
	return strings.Join(parts, ",")
}

func splitKinds(s string) []domain.BackendKind {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	kinds := make([]domain.BackendKind, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kinds = append(kinds, domain.BackendKind(p))
		}
	}
	return kinds
}
