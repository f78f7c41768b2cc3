// Package events defines the structured decision-trace events emitted by the
// selection, loading and recovery pipeline, and the sinks that consume them.
package events

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Category groups events by subsystem.
type Category string

const (
	CategorySelection Category = "selection"
	CategoryLoading   Category = "loading"
	CategoryRecovery  Category = "recovery"
	CategoryLegacy    Category = "legacy"
)

// Severity follows the usual log-level split.
type Severity string

const (
	SeverityInfo  Severity = "info"
	SeverityWarn  Severity = "warn"
	SeverityError Severity = "error"
)

// Event is one correlated decision-trace record. Events within a workflow
// share a correlation id and are emitted in causal order.
type Event struct {
	Name          string         `json:"name"`
	Category      Category       `json:"category"`
	Severity      Severity       `json:"severity"`
	Context       map[string]any `json:"context,omitempty"`
	CorrelationID string         `json:"correlation_id"`
	TimestampMs   int64          `json:"timestamp_ms"`
}

// Emitter is a fire-and-forget trace sink. Implementations must not block
// the pipeline and must tolerate being called after the workflow finished.
type Emitter interface {
	Emit(ev Event)
}

// NewCorrelationID mints the opaque id threaded through one workflow.
func NewCorrelationID() string {
	return uuid.New().String()
}

// Trace binds a correlation id to an emitter so call sites stay terse.
type Trace struct {
	emitter Emitter
	id      string
}

// NewTrace starts a new correlated trace on the given emitter.
func NewTrace(emitter Emitter) *Trace {
	if emitter == nil {
		emitter = NopEmitter{}
	}
	return &Trace{emitter: emitter, id: NewCorrelationID()}
}

// CorrelationID returns the id shared by every event on this trace.
func (t *Trace) CorrelationID() string {
	return t.id
}

// Emit records one event on the trace.
func (t *Trace) Emit(name string, category Category, severity Severity, ctx map[string]any) {
	t.emitter.Emit(Event{
		Name:          name,
		Category:      category,
		Severity:      severity,
		Context:       ctx,
		CorrelationID: t.id,
		TimestampMs:   time.Now().UnixMilli(),
	})
}

// Info emits an info-severity event.
func (t *Trace) Info(name string, category Category, ctx map[string]any) {
	t.Emit(name, category, SeverityInfo, ctx)
}

// Warn emits a warn-severity event.
func (t *Trace) Warn(name string, category Category, ctx map[string]any) {
	t.Emit(name, category, SeverityWarn, ctx)
}

// Error emits an error-severity event.
func (t *Trace) Error(name string, category Category, ctx map[string]any) {
	t.Emit(name, category, SeverityError, ctx)
}

// NopEmitter discards every event.
type NopEmitter struct{}

func (NopEmitter) Emit(Event) {}

// SlogEmitter writes events to a slog.Logger.
type SlogEmitter struct {
	Logger *slog.Logger
}

// NewSlogEmitter wraps a logger; nil falls back to slog.Default.
func NewSlogEmitter(logger *slog.Logger) *SlogEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogEmitter{Logger: logger}
}

func (e *SlogEmitter) Emit(ev Event) {
	attrs := []any{
		"category", string(ev.Category),
		"correlation_id", ev.CorrelationID,
	}
	for k, v := range ev.Context {
		attrs = append(attrs, k, v)
	}

	switch ev.Severity {
	case SeverityError:
		e.Logger.Error(ev.Name, attrs...)
	case SeverityWarn:
		e.Logger.Warn(ev.Name, attrs...)
	default:
		e.Logger.Info(ev.Name, attrs...)
	}
}

// MultiEmitter fans one event out to several sinks.
type MultiEmitter []Emitter

func (m MultiEmitter) Emit(ev Event) {
	for _, e := range m {
		if e != nil {
			e.Emit(ev)
		}
	}
}
