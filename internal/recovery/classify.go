// Package recovery turns runtime processing failures into another attempt:
// chain-walk recovery retries the loader against a pre-built fallback chain,
// and strategy-based recovery adjusts call parameters and retries with a
// hard attempt cap.
package recovery

import (
	"errors"
	"strings"

	"github.com/tmaun/accelhost/internal/core/domain"
)

// Category is the error signature recovery strategies key on.
type Category string

const (
	CategoryMemory        Category = "memory"
	CategoryDriver        Category = "driver"
	CategoryModelMissing  Category = "model_missing"
	CategoryBackendModule Category = "backend_module"
	CategoryInputFile     Category = "input_file"
	CategoryUnknown       Category = "unknown"
)

// Classify maps an error onto its recovery category. Native backends report
// failures as strings, so signatures are substring matches; taxonomy errors
// are matched structurally first.
func Classify(err error) Category {
	if err == nil {
		return CategoryUnknown
	}

	if errors.Is(err, domain.ErrModuleNotFound) ||
		errors.Is(err, domain.ErrLoadFailed) ||
		errors.Is(err, domain.ErrInvalidStructure) {
		return CategoryBackendModule
	}

	s := strings.ToLower(err.Error())

	switch {
	case strings.Contains(s, "out of memory"),
		strings.Contains(s, "oom"),
		strings.Contains(s, "memory allocation"),
		strings.Contains(s, "alloc failed"):
		return CategoryMemory

	case strings.Contains(s, "driver"),
		strings.Contains(s, "cuda error"),
		strings.Contains(s, "device lost"),
		strings.Contains(s, "device not found"):
		return CategoryDriver

	case strings.Contains(s, "model not found"),
		strings.Contains(s, "model file"),
		strings.Contains(s, "no such model"):
		return CategoryModelMissing

	case strings.Contains(s, "module"),
		strings.Contains(s, "dlopen"),
		strings.Contains(s, "symbol"):
		return CategoryBackendModule

	case strings.Contains(s, "input file"),
		strings.Contains(s, "audio"),
		strings.Contains(s, "decode failed"),
		strings.Contains(s, "unsupported format"):
		return CategoryInputFile
	}

	return CategoryUnknown
}
