// pkg/engine/metrics.go
package engine

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const instrumentationName = "github.com/opd-ai/go-dogfight/pkg/engine"

var (
	outcomeApplied  = metric.WithAttributes(attribute.String("outcome", "applied"))
	outcomeRejected = metric.WithAttributes(attribute.String("outcome", "rejected"))
)

// engineMetrics records tick and command activity on the global
// OpenTelemetry meter, which is a no-op unless a provider is installed.
type engineMetrics struct {
	ticks        metric.Int64Counter
	tickDuration metric.Float64Histogram
	commands     metric.Int64Counter
	fighters     metric.Int64ObservableGauge
}

func newEngineMetrics(fighterCount func() int) (*engineMetrics, error) {
	return newEngineMetricsWithMeter(otel.Meter(instrumentationName), fighterCount)
}

func newEngineMetricsWithMeter(m metric.Meter, fighterCount func() int) (*engineMetrics, error) {
	em := &engineMetrics{}
	var err error

	em.ticks, err = m.Int64Counter(
		"dogfight.engine.ticks",
		metric.WithDescription("Total simulation ticks completed"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating ticks counter: %w", err)
	}

	em.tickDuration, err = m.Float64Histogram(
		"dogfight.engine.tick.duration",
		metric.WithDescription("Time spent inside a single tick"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating tick duration histogram: %w", err)
	}

	em.commands, err = m.Int64Counter(
		"dogfight.engine.commands",
		metric.WithDescription("Commands applied at tick boundaries, by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating commands counter: %w", err)
	}

	em.fighters, err = m.Int64ObservableGauge(
		"dogfight.engine.fighters",
		metric.WithDescription("Registered fighters"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(int64(fighterCount()))
			return nil
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("creating fighters gauge: %w", err)
	}

	return em, nil
}

func noopEngineMetrics() *engineMetrics {
	em, _ := newEngineMetricsWithMeter(noop.NewMeterProvider().Meter(instrumentationName), func() int { return 0 })
	return em
}

func (em *engineMetrics) recordTick(ctx context.Context, took time.Duration) {
	em.ticks.Add(ctx, 1)
	em.tickDuration.Record(ctx, took.Seconds())
}

func (em *engineMetrics) recordCommand(ctx context.Context, accepted bool) {
	if accepted {
		em.commands.Add(ctx, 1, outcomeApplied)
		return
	}
	em.commands.Add(ctx, 1, outcomeRejected)
}
