package recovery

import (
	"context"
	"fmt"
	"time"

	"github.com/tmaun/accelhost/internal/core/domain"
	"github.com/tmaun/accelhost/internal/events"
)

// MaxRetries is the hard cap on strategy-driven retry attempts.
const MaxRetries = 3

// Runner drives strategy-based recovery for runtime processing errors, one
// layer above backend loading.
type Runner struct {
	Strategies []Strategy

	// CPUFallback supplies the baseline callable for a ForceCPU outcome.
	// The switch applies to a single attempt; the original callable is
	// used again afterwards.
	CPUFallback func(ctx context.Context) (domain.InferenceFunc, error)

	// Reload produces a fresh backend handle for a ReloadBackend outcome.
	Reload func(ctx context.Context) (domain.InferenceFunc, error)

	// ModelExists checks model file presence for the model-missing strategy.
	ModelExists func(domain.ModelName) bool

	// Notify surfaces the terminal, category-specific message to the UI.
	Notify func(category Category, message string)
}

// Run executes call with the given params, applying recovery strategies on
// failure until one attempt succeeds, the retry cap is hit, or no strategy
// can make progress. When recovery is exhausted it returns a degenerate
// placeholder result and notifies the UI separately; the only error Run
// itself returns is the caller's context ending mid-recovery.
func (r *Runner) Run(
	ctx context.Context,
	trace *events.Trace,
	call domain.InferenceFunc,
	params domain.TranscribeParams,
) (*domain.TranscribeResult, error) {
	if trace == nil {
		trace = events.NewTrace(nil)
	}

	result, err := call(ctx, params)
	if err == nil {
		return result, nil
	}

	for retry := 0; retry < MaxRetries; retry++ {
		outcome, strategyName, strategyErr := r.applyStrategies(trace, StrategyContext{
			Err:         err,
			Params:      params,
			RetryCount:  retry,
			ModelExists: r.ModelExists,
		})
		if strategyErr != nil {
			trace.Error("recovery_exhausted", events.CategoryRecovery, map[string]any{
				"retry": retry,
				"error": err.Error(),
			})
			return r.degenerate(err), nil
		}

		attemptCall := call
		switch {
		case outcome.ForceCPU && r.CPUFallback != nil:
			cpuCall, cpuErr := r.CPUFallback(ctx)
			if cpuErr == nil {
				attemptCall = cpuCall
			}
		case outcome.ReloadBackend && r.Reload != nil:
			fresh, reloadErr := r.Reload(ctx)
			if reloadErr == nil {
				call = fresh
				attemptCall = fresh
			}
		}

		if outcome.Delay > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(outcome.Delay):
			}
		}

		params = outcome.Params
		trace.Warn("recovery_attempt", events.CategoryRecovery, map[string]any{
			"strategy": strategyName,
			"retry":    retry + 1,
			"model":    string(params.Model),
		})

		result, err = attemptCall(ctx, params)
		if err == nil {
			trace.Info("recovery_succeeded", events.CategoryRecovery, map[string]any{
				"strategy": strategyName,
				"retries":  retry + 1,
			})
			return result, nil
		}
	}

	trace.Error("recovery_exhausted", events.CategoryRecovery, map[string]any{
		"retry": MaxRetries,
		"error": err.Error(),
	})
	return r.degenerate(err), nil
}

// applyStrategies runs the applicable strategies in priority order until one
// produces an outcome.
func (r *Runner) applyStrategies(
	trace *events.Trace,
	sc StrategyContext,
) (Outcome, string, error) {
	applicable := Applicable(r.strategies(), sc.Err)
	if len(applicable) == 0 {
		return Outcome{}, "", fmt.Errorf("%w: no applicable strategy", domain.ErrAllRecoveryStrategiesExhausted)
	}

	var lastErr error
	for _, s := range applicable {
		outcome, err := s.Execute(sc)
		if err == nil {
			trace.Info("strategy_selected", events.CategoryRecovery, map[string]any{
				"strategy": s.Name,
				"priority": s.Priority,
			})
			return outcome, s.Name, nil
		}
		lastErr = err
		trace.Warn("strategy_declined", events.CategoryRecovery, map[string]any{
			"strategy": s.Name,
			"error":    err.Error(),
		})
	}
	return Outcome{}, "", fmt.Errorf("%w: %v", domain.ErrAllRecoveryStrategiesExhausted, lastErr)
}

func (r *Runner) strategies() []Strategy {
	if len(r.Strategies) > 0 {
		return r.Strategies
	}
	return DefaultStrategies(0)
}

// degenerate builds the single placeholder segment downstream writers can
// still consume, and notifies the UI with a category-specific message.
func (r *Runner) degenerate(cause error) *domain.TranscribeResult {
	category := Classify(cause)
	if r.Notify != nil {
		r.Notify(category, GuidanceFor(category))
	}
	return &domain.TranscribeResult{
		Segments: []domain.Segment{{Text: "[transcription unavailable]"}},
		Degraded: true,
	}
}

// GuidanceFor maps an error category to the human-readable guidance shown to
// the user instead of raw error text.
func GuidanceFor(category Category) string {
	switch category {
	case CategoryMemory:
		return "Not enough GPU memory. Try a smaller model or switch to CPU."
	case CategoryDriver:
		return "A GPU driver problem occurred. Update your drivers or switch to CPU."
	case CategoryModelMissing:
		return "The selected model file is missing. Re-download the model or pick another one."
	case CategoryBackendModule:
		return "The acceleration module failed to load. Reinstall the application or switch to CPU."
	case CategoryInputFile:
		return "The input file could not be processed. Check the file and try again."
	default:
		return "Transcription failed. Try again, or switch to CPU in settings."
	}
}
