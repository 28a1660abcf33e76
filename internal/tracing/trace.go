// Package tracing provides lightweight in-process span tracing for the
// reconciliation engine's event-coalescing path and the control API's
// HTTP/WebSocket handlers. It implements reconcile.Tracer/Span so the
// engine can drive it without importing this package's construction.
package tracing

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/codedread/spaces/internal/shared/id"
)

// TraceID identifies an entire request/event flow.
type TraceID = id.TraceID

// SpanID identifies one operation within a trace.
type SpanID = id.SpanID

// Span represents a single traced operation.
type Span struct {
	TraceID   TraceID
	SpanID    SpanID
	ParentID  SpanID
	Name      string
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
	Tags      map[string]interface{}
	Err       error
}

// Tracer collects and logs completed spans.
type Tracer struct {
	logger *zap.Logger
	spans  chan *Span
}

// New creates a new tracer. Submitted spans are logged asynchronously so a
// slow log sink never blocks the reconciliation engine.
func New(logger *zap.Logger) *Tracer {
	t := &Tracer{
		logger: logger,
		spans:  make(chan *Span, 1000),
	}
	go t.collect()
	return t
}

// StartSpan creates a new root span. EngineTracer wraps it to implement
// reconcile.Tracer.
func (t *Tracer) StartSpan(name string) *Span {
	return &Span{
		TraceID:   id.NewTraceID(),
		SpanID:    id.NewSpanID(),
		Name:      name,
		StartTime: time.Now(),
		Tags:      make(map[string]interface{}),
	}
}

// StartChildSpan creates a span that is a child of parent, propagating its
// trace id and taking the span id found in ctx as its parent.
func (t *Tracer) StartChildSpan(ctx context.Context, name string) *Span {
	s := t.StartSpan(name)
	if traceID, ok := ctx.Value(traceIDKey).(TraceID); ok {
		s.TraceID = traceID
	}
	if parentID, ok := ctx.Value(spanIDKey).(SpanID); ok {
		s.ParentID = parentID
	}
	return s
}

// WithSpan returns a context carrying s's identifiers, for propagation into
// downstream StartChildSpan calls.
func WithSpan(ctx context.Context, s *Span) context.Context {
	ctx = context.WithValue(ctx, traceIDKey, s.TraceID)
	return context.WithValue(ctx, spanIDKey, s.SpanID)
}

// SetTag adds a tag to the span. Implements reconcile.Span.
func (s *Span) SetTag(key string, value interface{}) {
	s.Tags[key] = value
}

// SetError records an error on the span.
func (s *Span) SetError(err error) {
	s.Err = err
}

// Finish records the span's end time and duration. Implements
// reconcile.Span. Span holds no tracer reference, so Finish does not submit
// it; callers pass the finished span to Tracer.Submit.
func (s *Span) Finish() {
	s.EndTime = time.Now()
	s.Duration = s.EndTime.Sub(s.StartTime)
}

// Submit hands a finished span to the collector, dropping it under
// sustained backpressure rather than blocking the caller.
func (t *Tracer) Submit(s *Span) {
	select {
	case t.spans <- s:
	default:
		t.logger.Warn("span buffer full, dropping span",
			zap.String("trace_id", string(s.TraceID)),
			zap.String("name", s.Name))
	}
}

func (t *Tracer) collect() {
	for s := range t.spans {
		t.log(s)
	}
}

func (t *Tracer) log(s *Span) {
	fields := []zap.Field{
		zap.String("trace_id", string(s.TraceID)),
		zap.String("span_id", string(s.SpanID)),
		zap.String("operation", s.Name),
		zap.Duration("duration", s.Duration),
	}
	if s.ParentID != "" {
		fields = append(fields, zap.String("parent_id", string(s.ParentID)))
	}
	for k, v := range s.Tags {
		fields = append(fields, zap.Any(k, v))
	}

	if s.Err != nil {
		t.logger.Error("span completed with error", append(fields, zap.Error(s.Err))...)
		return
	}
	t.logger.Debug("span completed", fields...)
}

type contextKey string

const (
	traceIDKey contextKey = "trace_id"
	spanIDKey  contextKey = "span_id"
)

// GetTraceID retrieves the trace id carried on ctx, if any.
func GetTraceID(ctx context.Context) TraceID {
	if traceID, ok := ctx.Value(traceIDKey).(TraceID); ok {
		return traceID
	}
	return ""
}
