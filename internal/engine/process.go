package engine

import (
	"context"

	"github.com/tmaun/accelhost/internal/core/domain"
	"github.com/tmaun/accelhost/internal/events"
	"github.com/tmaun/accelhost/internal/infra/notify"
	"github.com/tmaun/accelhost/internal/observe/metrics"
	"github.com/tmaun/accelhost/internal/recovery"
)

// Process runs one transcription through the loaded backend with the full
// recovery ladder behind it. The returned result may be the degraded
// placeholder; the error is reserved for context cancellation and other
// conditions no strategy can address.
func (e *Engine) Process(
	ctx context.Context,
	loaded *Loaded,
	params domain.TranscribeParams,
) (*domain.TranscribeResult, error) {
	trace := loaded.Trace
	if trace == nil {
		trace = events.NewTrace(e.emitter)
	}

	runner := e.runner(loaded)
	result, err := runner.Run(ctx, trace, loaded.Call, params)
	if err != nil {
		return nil, err
	}
	if result.Degraded {
		e.health.RecordFailure(string(loaded.Descriptor.Kind))
	}
	return result, nil
}

// runner assembles the recovery runner around a loaded backend.
func (e *Engine) runner(loaded *Loaded) *recovery.Runner {
	strategies := recovery.DefaultStrategies(e.cfg.RecoveryBackoffUnit)
	return &recovery.Runner{
		Strategies: instrumented(strategies),

		CPUFallback: func(ctx context.Context) (domain.InferenceFunc, error) {
			return e.loader.LoadAndValidate(ctx, loaded.Trace, domain.CPUDescriptor("recovery_force_cpu"))
		},

		Reload: func(ctx context.Context) (domain.InferenceFunc, error) {
			if _, err := e.loader.Registry().Reload(loaded.Descriptor.ModulePath); err != nil {
				return nil, err
			}
			return e.loader.LoadAndValidate(ctx, loaded.Trace, loaded.Descriptor)
		},

		ModelExists: e.modelExists,

		Notify: func(category recovery.Category, message string) {
			e.notifier.Notify(notify.ChannelError, notify.ErrorPayload{
				Category: string(category),
				Message:  message,
			})
		},
	}
}

// instrumented wraps each strategy's Execute with the attempts counter.
func instrumented(strategies []recovery.Strategy) []recovery.Strategy {
	out := make([]recovery.Strategy, len(strategies))
	for i, s := range strategies {
		wrapped := s
		wrapped.Execute = func(sc recovery.StrategyContext) (recovery.Outcome, error) {
			outcome, err := s.Execute(sc)
			if err == nil {
				metrics.RecoveryAttemptsTotal.WithLabelValues(s.Name).Inc()
			}
			return outcome, err
		}
		out[i] = wrapped
	}
	return out
}
