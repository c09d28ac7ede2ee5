package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/shiftline/shiftline-sync-server"

// SyncMetrics records measurements for mirroring ticks. A nil *SyncMetrics is
// valid and records nothing, so callers never need to guard call sites.
type SyncMetrics struct {
	tickDuration metric.Float64Histogram
	recordSets   metric.Int64Counter
	tickErrors   metric.Int64Counter
	forcedSyncs  metric.Int64Counter
}

// NewSyncMetrics creates the sync-side instruments on the given provider.
func NewSyncMetrics(provider metric.MeterProvider) (*SyncMetrics, error) {
	if provider == nil {
		return nil, nil
	}
	meter := provider.Meter(meterName)

	tickDuration, err := meter.Float64Histogram(
		"sync_tick_duration_seconds",
		metric.WithDescription("Duration of mirroring ticks"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 300),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create tick duration histogram: %w", err)
	}

	recordSets, err := meter.Int64Counter(
		"sync_record_sets_mirrored_total",
		metric.WithDescription("Record sets mirrored successfully"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create record set counter: %w", err)
	}

	tickErrors, err := meter.Int64Counter(
		"sync_tick_errors_total",
		metric.WithDescription("Errors recorded during mirroring ticks"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create tick error counter: %w", err)
	}

	forcedSyncs, err := meter.Int64Counter(
		"sync_forced_total",
		metric.WithDescription("Manually triggered sync passes"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create forced sync counter: %w", err)
	}

	return &SyncMetrics{
		tickDuration: tickDuration,
		recordSets:   recordSets,
		tickErrors:   tickErrors,
		forcedSyncs:  forcedSyncs,
	}, nil
}

// RecordTick records the duration and outcome of one tick.
func (m *SyncMetrics) RecordTick(ctx context.Context, duration time.Duration, errs int) {
	if m == nil {
		return
	}
	m.tickDuration.Record(ctx, duration.Seconds(),
		metric.WithAttributes(attribute.Bool("clean", errs == 0)))
	if errs > 0 {
		m.tickErrors.Add(ctx, int64(errs))
	}
}

// RecordMirrored adds successfully mirrored record sets.
func (m *SyncMetrics) RecordMirrored(ctx context.Context, count int) {
	if m == nil || count == 0 {
		return
	}
	m.recordSets.Add(ctx, int64(count))
}

// RecordForcedSync counts a manual sync trigger.
func (m *SyncMetrics) RecordForcedSync(ctx context.Context) {
	if m == nil {
		return
	}
	m.forcedSyncs.Add(ctx, 1)
}

// QueueMetrics records measurements for the notification queue. A nil
// *QueueMetrics records nothing.
type QueueMetrics struct {
	depth     metric.Int64Gauge
	admitted  metric.Int64Counter
	skipped   metric.Int64Counter
	reclaimed metric.Int64Counter
}

// NewQueueMetrics creates the queue-side instruments on the given provider.
func NewQueueMetrics(provider metric.MeterProvider) (*QueueMetrics, error) {
	if provider == nil {
		return nil, nil
	}
	meter := provider.Meter(meterName)

	depth, err := meter.Int64Gauge(
		"notify_queue_depth",
		metric.WithDescription("Unacknowledged items in the notification queue"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create queue depth gauge: %w", err)
	}

	admitted, err := meter.Int64Counter(
		"notify_admitted_total",
		metric.WithDescription("Notification records admitted to the queue"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create admitted counter: %w", err)
	}

	skipped, err := meter.Int64Counter(
		"notify_skipped_total",
		metric.WithDescription("Notification records skipped by throttling or deduplication"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create skipped counter: %w", err)
	}

	reclaimed, err := meter.Int64Counter(
		"notify_reclaimed_total",
		metric.WithDescription("Acknowledged items removed from the queue"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create reclaimed counter: %w", err)
	}

	return &QueueMetrics{
		depth:     depth,
		admitted:  admitted,
		skipped:   skipped,
		reclaimed: reclaimed,
	}, nil
}

// RecordRefresh records the outcome of one queue refresh pass.
func (m *QueueMetrics) RecordRefresh(ctx context.Context, admitted, skipped, reclaimed, pending int) {
	if m == nil {
		return
	}
	if admitted > 0 {
		m.admitted.Add(ctx, int64(admitted))
	}
	if skipped > 0 {
		m.skipped.Add(ctx, int64(skipped))
	}
	if reclaimed > 0 {
		m.reclaimed.Add(ctx, int64(reclaimed))
	}
	m.depth.Record(ctx, int64(pending))
}
