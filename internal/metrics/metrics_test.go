package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func newTestMetrics(t *testing.T) *Metrics {
	t.Helper()
	return NewWithRegisterer(prometheus.NewRegistry())
}

func TestRecordBindAndRebind(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordBind()
	m.RecordBind()
	m.RecordRebind()

	assert.InDelta(t, 2, testutil.ToFloat64(m.BindsTotal), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.RebindsTotal), 0)
}

func TestRecordStoreOp(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordStoreOp("create", 5*time.Millisecond, true)
	m.RecordStoreOp("create", 5*time.Millisecond, false)

	assert.InDelta(t, 1, testutil.ToFloat64(m.StoreOpFailures.WithLabelValues("create")), 0)
}

func TestGaugeSetters(t *testing.T) {
	m := newTestMetrics(t)

	m.SetSessionsActive(3)
	m.SetSessionsDurable(7)
	m.SetEventQueueCount(2)

	assert.InDelta(t, 3, testutil.ToFloat64(m.SessionsActive), 0)
	assert.InDelta(t, 7, testutil.ToFloat64(m.SessionsDurable), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.EventQueueCount), 0)
}

func TestWSConnectionGauge(t *testing.T) {
	m := newTestMetrics(t)

	m.IncWSConnections()
	m.IncWSConnections()
	m.DecWSConnections()

	assert.InDelta(t, 1, testutil.ToFloat64(m.WSConnections), 0)
}
