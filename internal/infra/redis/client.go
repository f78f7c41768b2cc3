// Package redis persists decision-trace events so a full selection/recovery
// workflow can be reconstructed after the fact.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tmaun/accelhost/internal/events"
)

// Config holds Redis connection configuration.
type Config struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`

	// MaxTraceLen caps the events kept per correlation id (default 256).
	MaxTraceLen int64 `yaml:"max_trace_len"`

	// TraceTTL expires traces after the given duration (default 24h).
	TraceTTL time.Duration `yaml:"trace_ttl"`
}

// queueDepth bounds the number of events waiting for the writer.
const queueDepth = 1024

// TraceSink writes emitted events to capped per-workflow Redis lists.
// It implements events.Emitter and is strictly fire-and-forget: sink
// failures never surface into the pipeline. A single writer goroutine
// drains the queue so events land in Redis in emission order.
type TraceSink struct {
	rdb   *redis.Client
	cfg   Config
	queue chan events.Event
	stop  chan struct{}
	done  chan struct{}

	// write persists one event; replaced in tests.
	write func(events.Event)
}

// NewTraceSink connects to Redis, verifies the connection and starts the
// writer goroutine.
func NewTraceSink(cfg Config) (*TraceSink, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	if cfg.MaxTraceLen <= 0 {
		cfg.MaxTraceLen = 256
	}
	if cfg.TraceTTL <= 0 {
		cfg.TraceTTL = 24 * time.Hour
	}

	rdb := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	s := &TraceSink{
		rdb:   rdb,
		cfg:   cfg,
		queue: make(chan events.Event, queueDepth),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	s.write = s.writeEvent
	go s.run()
	return s, nil
}

// Close drains pending events, stops the writer and closes the connection.
// Emit remains safe to call afterwards; late events are simply dropped.
func (s *TraceSink) Close() error {
	close(s.stop)
	<-s.done
	return s.rdb.Close()
}

func traceKey(correlationID string) string {
	return fmt.Sprintf("accel:trace:%s", correlationID)
}

// Emit enqueues one event for its workflow trace. It never blocks: when the
// queue is full the event is dropped.
func (s *TraceSink) Emit(ev events.Event) {
	select {
	case s.queue <- ev:
	default:
		slog.Debug("trace sink queue full, event dropped", "event", ev.Name)
	}
}

// run is the single writer loop; it preserves the enqueue order and drains
// the queue before exiting on Close.
func (s *TraceSink) run() {
	defer close(s.done)
	for {
		select {
		case ev := <-s.queue:
			s.write(ev)
		case <-s.stop:
			for {
				select {
				case ev := <-s.queue:
					s.write(ev)
				default:
					return
				}
			}
		}
	}
}

func (s *TraceSink) writeEvent(ev events.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	key := traceKey(ev.CorrelationID)
	pipe := s.rdb.Pipeline()
	pipe.RPush(ctx, key, payload)
	pipe.LTrim(ctx, key, -s.cfg.MaxTraceLen, -1)
	pipe.Expire(ctx, key, s.cfg.TraceTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		slog.Debug("trace sink write failed", "error", err)
	}
}

// Trace returns the persisted events of one workflow, oldest first.
func (s *TraceSink) Trace(ctx context.Context, correlationID string) ([]events.Event, error) {
	raw, err := s.rdb.LRange(ctx, traceKey(correlationID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("lrange failed: %w", err)
	}

	out := make([]events.Event, 0, len(raw))
	for _, item := range raw {
		var ev events.Event
		if err := json.Unmarshal([]byte(item), &ev); err != nil {
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}
