package recovery

import (
	"fmt"
	"runtime"
	"sort"
	"time"

	"github.com/tmaun/accelhost/internal/core/domain"
)

// StrategyContext is what a strategy sees when it runs: the triggering
// error, the parameters of the failed call, and the attempt counter.
type StrategyContext struct {
	Err        error
	Params     domain.TranscribeParams
	RetryCount int

	// ModelExists checks whether a model file is present on disk. Nil is
	// treated as "unknown, assume present".
	ModelExists func(domain.ModelName) bool
}

// Outcome tells the runner how to shape the next attempt.
type Outcome struct {
	Params domain.TranscribeParams

	// ForceCPU routes the next attempt through the CPU baseline for this
	// call only; prior settings are restored afterwards.
	ForceCPU bool

	// ReloadBackend forces a fresh backend handle before retrying.
	ReloadBackend bool

	// Delay is waited out before the retry.
	Delay time.Duration
}

// Strategy is a named, priority-ordered recovery handler. Strategies live in
// a static registry, not per-request state; Execute must not mutate anything
// outside the returned Outcome.
type Strategy struct {
	Name      string
	Priority  int
	CanHandle func(err error) bool
	Execute   func(sc StrategyContext) (Outcome, error)
}

// DefaultBackoffUnit is the base delay of the catch-all retry strategy:
// delay = unit * (retryCount + 1).
const DefaultBackoffUnit = 2 * time.Second

// DefaultStrategies returns the built-in registry, already sorted by
// priority descending. backoffUnit <= 0 keeps the default.
func DefaultStrategies(backoffUnit time.Duration) []Strategy {
	if backoffUnit <= 0 {
		backoffUnit = DefaultBackoffUnit
	}

	strategies := []Strategy{
		{
			Name:      "memory_pressure",
			Priority:  100,
			CanHandle: func(err error) bool { return Classify(err) == CategoryMemory },
			Execute: func(sc StrategyContext) (Outcome, error) {
				smaller, ok := domain.NextSmallerModel(sc.Params.Model)
				if !ok {
					return Outcome{}, fmt.Errorf("no smaller model below %s", sc.Params.Model)
				}
				// Nudge the runtime to hand freed buffers back before the
				// smaller model loads.
				runtime.GC()
				params := sc.Params
				params.Model = smaller
				return Outcome{Params: params}, nil
			},
		},
		{
			Name:      "driver_failure",
			Priority:  90,
			CanHandle: func(err error) bool { return Classify(err) == CategoryDriver },
			Execute: func(sc StrategyContext) (Outcome, error) {
				return Outcome{Params: sc.Params, ForceCPU: true}, nil
			},
		},
		{
			Name:      "model_missing",
			Priority:  80,
			CanHandle: func(err error) bool { return Classify(err) == CategoryModelMissing },
			Execute: func(sc StrategyContext) (Outcome, error) {
				if sc.ModelExists != nil && sc.ModelExists(sc.Params.Model) {
					return Outcome{}, fmt.Errorf("model %s is present, not a missing-model failure", sc.Params.Model)
				}
				if domain.ResolveBaseModel(sc.Params.Model) == domain.ModelBase {
					return Outcome{}, fmt.Errorf("base model itself is missing")
				}
				params := sc.Params
				params.Model = domain.ModelBase
				return Outcome{Params: params}, nil
			},
		},
		{
			Name:      "backend_module",
			Priority:  70,
			CanHandle: func(err error) bool { return Classify(err) == CategoryBackendModule },
			Execute: func(sc StrategyContext) (Outcome, error) {
				return Outcome{Params: sc.Params, ReloadBackend: true}, nil
			},
		},
		{
			Name:      "input_file",
			Priority:  60,
			CanHandle: func(err error) bool { return Classify(err) == CategoryInputFile },
			Execute: func(sc StrategyContext) (Outcome, error) {
				params := sc.Params
				cur := params.AudioCtx
				if cur == 0 {
					cur = 1500 // full encoder window
				}
				half := cur / 2
				if half < 128 {
					return Outcome{}, fmt.Errorf("context window already at minimum (%d)", cur)
				}
				params.AudioCtx = half
				return Outcome{Params: params}, nil
			},
		},
		{
			Name:      "retry_backoff",
			Priority:  0, // always last
			CanHandle: func(err error) bool { return true },
			Execute: func(sc StrategyContext) (Outcome, error) {
				return Outcome{
					Params: sc.Params,
					Delay:  backoffUnit * time.Duration(sc.RetryCount+1),
				}, nil
			},
		},
	}

	sortStrategies(strategies)
	return strategies
}

// Applicable filters the registry by CanHandle and returns the matches in
// priority-descending order.
func Applicable(strategies []Strategy, err error) []Strategy {
	matched := make([]Strategy, 0, len(strategies))
	for _, s := range strategies {
		if s.CanHandle != nil && s.CanHandle(err) {
			matched = append(matched, s)
		}
	}
	sortStrategies(matched)
	return matched
}

func sortStrategies(strategies []Strategy) {
	sort.SliceStable(strategies, func(i, j int) bool {
		return strategies[i].Priority > strategies[j].Priority
	})
}
