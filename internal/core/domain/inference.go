package domain

import (
	"context"
	"time"
)

// TranscribeParams is the parameter set handed to a backend entry point.
// Backend holds the backend-specific fields the adapter injects on every
// real call (device id, cache dir, performance hint).
type TranscribeParams struct {
	Model     ModelName
	InputPath string
	Language  string

	// AudioCtx is the encoder context-window size; 0 means full audio.
	// Input-file recovery halves this on retry.
	AudioCtx int

	// ValidateOnly marks the synthetic smoke call the loader issues; a
	// backend must not run real inference for it.
	ValidateOnly bool

	Backend map[string]string
}

// WithBackendField returns a copy of the params with one backend-specific
// field set. The receiver's map is never mutated.
func (p TranscribeParams) WithBackendField(key, value string) TranscribeParams {
	fields := make(map[string]string, len(p.Backend)+1)
	for k, v := range p.Backend {
		fields[k] = v
	}
	fields[key] = value
	p.Backend = fields
	return p
}

// Segment is one transcribed span.
type Segment struct {
	Start time.Duration
	End   time.Duration
	Text  string
}

// TranscribeResult is the output of one inference call.
type TranscribeResult struct {
	Segments []Segment

	// Degraded marks the placeholder result produced when every recovery
	// strategy failed; downstream writers still get a usable value.
	Degraded bool
}

// InferenceFunc is the callable a loaded-and-validated backend exposes.
// The context bounds the call; implementations must honor cancellation.
type InferenceFunc func(ctx context.Context, params TranscribeParams) (*TranscribeResult, error)
