// Package loading resolves, loads and functionally validates backend
// modules, and wraps their entry points with call adapters that inject
// device-specific configuration.
package loading

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/tmaun/accelhost/internal/core/domain"
)

// Module is a loaded backend artifact. A structurally valid module exposes
// exactly one callable inference entry point.
type Module interface {
	Name() string
	Entrypoints() map[string]domain.InferenceFunc
	Close() error
}

// Opener produces a fresh Module handle from an on-disk artifact.
type Opener func(artifactPath string) (Module, error)

// Registry maps module names to openers and caches open handles. Reload
// produces a fresh handle and discards the old one explicitly; nothing here
// relies on cache eviction by side effect.
type Registry struct {
	dir      string
	platform domain.PlatformID

	mu      sync.Mutex
	openers map[string]Opener
	handles map[string]Module
}

// NewRegistry creates a registry rooted at the module artifact directory.
func NewRegistry(dir string, platform domain.PlatformID) *Registry {
	return &Registry{
		dir:      dir,
		platform: platform,
		openers:  make(map[string]Opener),
		handles:  make(map[string]Module),
	}
}

// RegisterOpener binds an opener to a module name. Later registrations
// replace earlier ones.
func (r *Registry) RegisterOpener(name string, opener Opener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.openers[name] = opener
}

// ArtifactExt returns the shared-library extension for a platform.
func ArtifactExt(platform domain.PlatformID) string {
	switch platform {
	case domain.PlatformWindows:
		return ".dll"
	case domain.PlatformDarwin:
		return ".dylib"
	default:
		return ".so"
	}
}

// Resolve maps a module name to its on-disk artifact for the current
// platform. A missing artifact is ErrModuleNotFound; there is no silent
// substitution.
func (r *Registry) Resolve(name string) (string, error) {
	path := filepath.Join(r.dir, name+ArtifactExt(r.platform))
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("%w: %s", domain.ErrModuleNotFound, path)
	}
	return path, nil
}

// ArtifactExists reports whether the module artifact is present without
// opening it. The CoreML-style backend treats this as sufficient validation.
func (r *Registry) ArtifactExists(name string) bool {
	_, err := r.Resolve(name)
	return err == nil
}

// Open loads the named module, reusing a cached handle when one is open.
func (r *Registry) Open(name string) (Module, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if handle, ok := r.handles[name]; ok {
		return handle, nil
	}
	return r.openLocked(name)
}

// Reload closes any open handle for the module and opens a fresh one.
func (r *Registry) Reload(name string) (Module, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.handles[name]; ok {
		delete(r.handles, name)
		_ = old.Close()
	}
	return r.openLocked(name)
}

// Close closes every open handle.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	for name, handle := range r.handles {
		if err := handle.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(r.handles, name)
	}
	return firstErr
}

func (r *Registry) openLocked(name string) (Module, error) {
	path := filepath.Join(r.dir, name+ArtifactExt(r.platform))
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrModuleNotFound, path)
	}

	opener, ok := r.openers[name]
	if !ok {
		opener = defaultOpener
	}

	handle, err := opener(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrLoadFailed, name, err)
	}

	r.handles[name] = handle
	return handle, nil
}
