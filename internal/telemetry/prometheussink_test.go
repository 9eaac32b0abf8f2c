package telemetry

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, g.Write(&m))
	return m.GetGauge().GetValue()
}

func TestPrometheusSinkSyncChannelUpdatesConfidenceAndState(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink := NewPrometheusSink(reg)

	sink.Deliver(Record{Channel: "SYNC", Fields: []string{"LOCKED", "0", "0.75"}})

	assert.InDelta(t, 0.75, gaugeValue(t, sink.syncConfidence.WithLabelValues()), 1e-9)
	assert.Equal(t, 2.0, gaugeValue(t, sink.syncState.WithLabelValues()))
}

func TestPrometheusSinkTickChannelUpdatesInterval(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink := NewPrometheusSink(reg)

	sink.Deliver(Record{Channel: "TICK", Fields: []string{"a", "b", "c", "1000.5"}})
	assert.InDelta(t, 1000.5, gaugeValue(t, sink.tickInterval), 1e-9)
}

func TestPrometheusSinkCtrlDroppedChannelUpdatesCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink := NewPrometheusSink(reg)

	sink.Deliver(Record{Channel: "CTRL_DROPPED", Fields: []string{"7"}})
	assert.Equal(t, 7.0, gaugeValue(t, sink.droppedRecords))
}

func TestPrometheusSinkIgnoresShortFieldLists(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink := NewPrometheusSink(reg)

	sink.Deliver(Record{Channel: "SYNC", Fields: []string{"LOCKED"}})
	assert.Equal(t, 0.0, gaugeValue(t, sink.syncConfidence.WithLabelValues()))
}

func TestSyncStateOrdinal(t *testing.T) {
	assert.Equal(t, 0.0, syncStateOrdinal("ACQUIRING"))
	assert.Equal(t, 1.0, syncStateOrdinal("TENTATIVE"))
	assert.Equal(t, 2.0, syncStateOrdinal("LOCKED"))
	assert.Equal(t, 3.0, syncStateOrdinal("RECOVERING"))
	assert.Equal(t, -1.0, syncStateOrdinal("BOGUS"))
}
