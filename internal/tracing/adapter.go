package tracing

import "github.com/codedread/spaces/internal/reconcile"

// EngineTracer adapts a *Tracer to reconcile.Tracer. Go's interface
// satisfaction requires an exact return-type match, so this thin wrapper
// is what reconcile.New's WithTracer option actually receives. The spans it
// hands out submit themselves to the tracer when finished.
type EngineTracer struct {
	*Tracer
}

var _ reconcile.Tracer = EngineTracer{}
var _ reconcile.Span = (*Span)(nil)

// StartSpan implements reconcile.Tracer.
func (t EngineTracer) StartSpan(name string) reconcile.Span {
	return engineSpan{Span: t.Tracer.StartSpan(name), tracer: t.Tracer}
}

// engineSpan submits its span to the tracer once finished.
type engineSpan struct {
	*Span
	tracer *Tracer
}

func (s engineSpan) Finish() {
	s.Span.Finish()
	s.tracer.Submit(s.Span)
}
