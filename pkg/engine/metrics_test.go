package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// installManualReader swaps the engine's instruments for ones backed by an
// in-process SDK meter and returns the reader that collects them.
func installManualReader(t *testing.T, e *Engine) *sdkmetric.ManualReader {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	m, err := newEngineMetricsWithMeter(provider.Meter(instrumentationName), e.FighterCount)
	require.NoError(t, err)
	e.metrics = m
	return reader
}

func collectMetrics(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	byName := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			byName[m.Name] = m
		}
	}
	return byName
}

func commandsByOutcome(t *testing.T, m metricdata.Metrics) map[string]int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "commands should be an int64 sum, got %T", m.Data)

	out := make(map[string]int64)
	for _, dp := range sum.DataPoints {
		v, ok := dp.Attributes.Value("outcome")
		require.True(t, ok, "command datapoint without outcome")
		out[v.AsString()] += dp.Value
	}
	return out
}

func TestEngineMetrics_TickAndCommandOutcomes(t *testing.T) {
	e := newTestEngine(t)
	require.True(t, e.Spawn("Alpha", 0, 100, 1000, 1000))
	require.True(t, e.Spawn("Bravo", 90, 200, 2000, 2000))
	require.True(t, e.Spawn("Charlie", 180, 300, 3000, 3000))

	reader := installManualReader(t, e)

	applied := e.Submit(Command{Kind: SetHeading, FighterID: "Alpha", Heading: 90})
	rejected := e.Submit(Command{Kind: SetHeading, FighterID: "Ghost", Heading: 10})
	e.Tick()
	require.True(t, <-applied)
	require.False(t, <-rejected)

	got := collectMetrics(t, reader)

	ticks, ok := got["dogfight.engine.ticks"].Data.(metricdata.Sum[int64])
	require.True(t, ok, "ticks should be an int64 sum")
	require.Len(t, ticks.DataPoints, 1)
	assert.Equal(t, int64(1), ticks.DataPoints[0].Value)
	assert.True(t, ticks.IsMonotonic)

	assert.Equal(t, map[string]int64{"applied": 1, "rejected": 1},
		commandsByOutcome(t, got["dogfight.engine.commands"]))

	fighters, ok := got["dogfight.engine.fighters"].Data.(metricdata.Gauge[int64])
	require.True(t, ok, "fighters should be an int64 gauge")
	require.Len(t, fighters.DataPoints, 1)
	assert.Equal(t, int64(3), fighters.DataPoints[0].Value)

	duration, ok := got["dogfight.engine.tick.duration"].Data.(metricdata.Histogram[float64])
	require.True(t, ok, "tick duration should be a float64 histogram")
	require.Len(t, duration.DataPoints, 1)
	assert.Equal(t, uint64(1), duration.DataPoints[0].Count)
	assert.Equal(t, "s", got["dogfight.engine.tick.duration"].Unit)
}

// Immediate calls are counted the same way as queued ones, and the gauge
// follows registrations made after the meter was installed.
func TestEngineMetrics_DirectCallsAndGauge(t *testing.T) {
	e := newTestEngine(t)
	reader := installManualReader(t, e)

	require.True(t, e.Spawn("Alpha", 0, 0, 0, 0))
	require.False(t, e.Spawn("Alpha", 0, 0, 0, 0))
	require.False(t, e.SetNewHeading("Alpha", 360))
	require.True(t, e.SetInertialData("Alpha", 45, 10, 5, 5))

	got := collectMetrics(t, reader)
	assert.Equal(t, map[string]int64{"applied": 2, "rejected": 2},
		commandsByOutcome(t, got["dogfight.engine.commands"]))

	fighters := got["dogfight.engine.fighters"].Data.(metricdata.Gauge[int64])
	require.Len(t, fighters.DataPoints, 1)
	assert.Equal(t, int64(1), fighters.DataPoints[0].Value)

	if m, ok := got["dogfight.engine.ticks"]; ok {
		assert.Empty(t, m.Data.(metricdata.Sum[int64]).DataPoints, "no tick has run yet")
	}
}

// Commands still queued when the run ends are reported as rejected.
func TestEngineMetrics_PendingRejectedOnEnd(t *testing.T) {
	e := newTestEngine(t)
	require.True(t, e.Spawn("Alpha", 0, 0, 0, 0))
	reader := installManualReader(t, e)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result := e.Submit(Command{Kind: SetHeading, FighterID: "Alpha", Heading: 30})
	_ = e.Run(ctx, time.Hour)
	assert.False(t, <-result)

	got := collectMetrics(t, reader)
	outcomes := commandsByOutcome(t, got["dogfight.engine.commands"])
	assert.Equal(t, int64(1), outcomes["rejected"])
	assert.Zero(t, outcomes["applied"])
}
