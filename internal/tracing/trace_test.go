package tracing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestStartSpanAssignsIDs(t *testing.T) {
	tr := New(zap.NewNop())

	s := tr.StartSpan("bind")
	assert.NotEmpty(t, s.TraceID)
	assert.NotEmpty(t, s.SpanID)
	assert.Equal(t, "bind", s.Name)
}

func TestChildSpanInheritsTrace(t *testing.T) {
	tr := New(zap.NewNop())

	root := tr.StartSpan("handle_event")
	ctx := WithSpan(context.Background(), root)

	child := tr.StartChildSpan(ctx, "bind")
	assert.Equal(t, root.TraceID, child.TraceID)
	assert.Equal(t, root.SpanID, child.ParentID)
	assert.Equal(t, root.TraceID, GetTraceID(ctx))
}

func TestFinishComputesDuration(t *testing.T) {
	s := (&Tracer{}).StartSpan("op")
	time.Sleep(2 * time.Millisecond)
	s.Finish()

	assert.True(t, s.Duration > 0)
	assert.False(t, s.EndTime.IsZero())
}

func TestSubmitDropsUnderBackpressureWithoutBlocking(t *testing.T) {
	tr := New(zap.NewNop())
	// Fill the buffer past capacity; Submit must never block the caller.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 2000; i++ {
			s := tr.StartSpan("flood")
			s.Finish()
			tr.Submit(s)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Submit blocked under backpressure")
	}
}
