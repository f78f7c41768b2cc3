//go:build !linux && !darwin

package loading

import "errors"

// Platforms without dlopen support need an explicitly registered opener;
// falling back silently would mask a misconfigured deployment.
var defaultOpener Opener = func(path string) (Module, error) {
	return nil, errors.New("no native module opener on this platform; register one")
}
