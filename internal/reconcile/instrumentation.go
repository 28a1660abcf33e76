package reconcile

// Metrics is the narrow set of counters the engine drives; internal/metrics
// implements it against Prometheus. Kept as a small interface here (rather
// than importing internal/metrics directly) so reconcile has no dependency
// on the metrics registry's construction.
type Metrics interface {
	RecordBind()
	RecordRebind()
	RecordWindowClosed()
	RecordWindowEventHandled()
	RecordStoreDegraded()
	SetSessionsActive(count int)
	SetSessionsDurable(count int)
	SetEventQueueCount(count int)
}

// Tracer starts named spans around the event-coalescing path, giving
// event_queue_count concrete traceability per the spec's tracing
// responsibility. internal/tracing implements it.
type Tracer interface {
	StartSpan(name string) Span
}

// Span is a single traced operation.
type Span interface {
	SetTag(key string, value interface{})
	Finish()
}

type noopMetrics struct{}

func (noopMetrics) RecordBind()               {}
func (noopMetrics) RecordRebind()             {}
func (noopMetrics) RecordWindowClosed()       {}
func (noopMetrics) RecordWindowEventHandled() {}
func (noopMetrics) RecordStoreDegraded()      {}
func (noopMetrics) SetSessionsActive(int)     {}
func (noopMetrics) SetSessionsDurable(int)    {}
func (noopMetrics) SetEventQueueCount(int)    {}

type noopTracer struct{}

func (noopTracer) StartSpan(string) Span { return noopSpan{} }

type noopSpan struct{}

func (noopSpan) SetTag(string, interface{}) {}
func (noopSpan) Finish()                    {}
