package domain

import (
	"errors"
	"fmt"
)

// Error taxonomy for the selection/loading/recovery pipeline. Each failure
// mode is distinct so the recovery layer can decide whether a retry is
// worthwhile.
var (
	// ErrCapabilityProbeFailed indicates the hardware probe itself failed
	// before selection could run.
	ErrCapabilityProbeFailed = errors.New("capability probe failed")

	// ErrModuleNotFound indicates the backend module artifact is missing
	// on disk for this platform/architecture.
	ErrModuleNotFound = errors.New("backend module not found")

	// ErrLoadFailed indicates the module artifact exists but loading it
	// raised an error.
	ErrLoadFailed = errors.New("backend module load failed")

	// ErrInvalidStructure indicates the loaded module does not expose
	// exactly one callable inference entry point.
	ErrInvalidStructure = errors.New("backend module has invalid structure")

	// ErrValidationTimeout indicates the smoke call did not complete
	// within its bounded timeout.
	ErrValidationTimeout = errors.New("backend validation timed out")

	// ErrValidationFailed indicates the smoke call returned a real error
	// (not a benign model/file-not-found).
	ErrValidationFailed = errors.New("backend validation failed")

	// ErrAllFallbacksExhausted indicates the chain walk tried every
	// candidate without success.
	ErrAllFallbacksExhausted = errors.New("all fallback backends exhausted")

	// ErrAllRecoveryStrategiesExhausted indicates strategy-based recovery
	// ran out of applicable strategies or attempts.
	ErrAllRecoveryStrategiesExhausted = errors.New("all recovery strategies exhausted")

	// ErrLegacyFallbackFailed is fatal: even the capability-unaware legacy
	// path could not produce a working backend.
	ErrLegacyFallbackFailed = errors.New("legacy fallback failed")
)

// LoadStage names the loader step a LoadError occurred in.
type LoadStage string

const (
	StageResolve  LoadStage = "resolve"
	StageLoad     LoadStage = "load"
	StageStruct   LoadStage = "structure"
	StageValidate LoadStage = "validate"
)

// LoadError wraps a loader failure with the descriptor and stage it hit.
type LoadError struct {
	Backend BackendDescriptor
	Stage   LoadStage
	Err     error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s (%s stage): %v", e.Backend.DisplayName, e.Stage, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// NewLoadError builds a LoadError for the given descriptor and stage.
func NewLoadError(backend BackendDescriptor, stage LoadStage, err error) *LoadError {
	return &LoadError{Backend: backend, Stage: stage, Err: err}
}
