package recovery

import (
	"context"
	"fmt"

	"github.com/tmaun/accelhost/internal/core/domain"
	"github.com/tmaun/accelhost/internal/events"
)

// BackendLoader is the slice of the loader the chain walk needs.
type BackendLoader interface {
	LoadAndValidate(
		ctx context.Context,
		trace *events.Trace,
		desc domain.BackendDescriptor,
	) (domain.InferenceFunc, error)
}

// WalkChain tries each fallback candidate in order and returns the first one
// that loads and validates. An exhausted chain propagates
// ErrAllFallbacksExhausted wrapping the last failure.
func WalkChain(
	ctx context.Context,
	trace *events.Trace,
	loader BackendLoader,
	original error,
	chain []domain.BackendDescriptor,
) (domain.InferenceFunc, domain.BackendDescriptor, error) {
	if trace == nil {
		trace = events.NewTrace(nil)
	}

	lastErr := original
	for i, candidate := range chain {
		trace.Warn("fallback_attempt", events.CategoryRecovery, map[string]any{
			"position": i + 1,
			"of":       len(chain),
			"backend":  string(candidate.Kind),
			"module":   candidate.ModulePath,
			"reason":   candidate.FallbackReason,
		})

		callable, err := loader.LoadAndValidate(ctx, trace, candidate)
		if err == nil {
			trace.Info("fallback_succeeded", events.CategoryRecovery, map[string]any{
				"backend": string(candidate.Kind),
				"module":  candidate.ModulePath,
			})
			return callable, candidate, nil
		}

		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}

	trace.Error("fallbacks_exhausted", events.CategoryRecovery, map[string]any{
		"tried": len(chain),
	})
	return nil, domain.BackendDescriptor{},
		fmt.Errorf("%w: last failure: %v", domain.ErrAllFallbacksExhausted, lastErr)
}
