// Package monitoring - metrics.go provides simple counters.
//
// DESIGN: Lightweight in-memory counters for operational metrics:
//   - invocations_*:   Lifecycle events seen by the handler
//   - alerts_*:        Alerts raised, delivered, skipped or failed
//   - timers_evicted:  Orphaned start times dropped by the run timer
//
// Served as JSON by the ingest server's /stats endpoint.
package monitoring

import "sync/atomic"

// MetricsCollector collects operational metrics.
type MetricsCollector struct {
	started          atomic.Int64
	completed        atomic.Int64
	failed           atomic.Int64
	alertsFired      atomic.Int64
	alertsDelivered  atomic.Int64
	alertsSkipped    atomic.Int64
	deliveryFailures atomic.Int64
	timersEvicted    atomic.Int64
}

// NewMetricsCollector creates a new metrics collector.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{}
}

// RecordStart records an invocation-start event.
func (mc *MetricsCollector) RecordStart() { mc.started.Add(1) }

// RecordEnd records an invocation-success event.
func (mc *MetricsCollector) RecordEnd() { mc.completed.Add(1) }

// RecordFailure records an invocation or pipeline error event.
func (mc *MetricsCollector) RecordFailure() { mc.failed.Add(1) }

// RecordAlert records an alert handed to the dispatcher.
func (mc *MetricsCollector) RecordAlert() { mc.alertsFired.Add(1) }

// RecordDelivery records the outcome of a channel send.
func (mc *MetricsCollector) RecordDelivery(success bool) {
	if success {
		mc.alertsDelivered.Add(1)
		return
	}
	mc.deliveryFailures.Add(1)
}

// RecordSkipped records an alert dropped because its channel is not configured.
func (mc *MetricsCollector) RecordSkipped() { mc.alertsSkipped.Add(1) }

// RecordEvicted records orphaned timer entries removed by a sweep.
func (mc *MetricsCollector) RecordEvicted(n int) { mc.timersEvicted.Add(int64(n)) }

// Stats returns current metrics.
func (mc *MetricsCollector) Stats() map[string]int64 {
	return map[string]int64{
		"invocations_started":   mc.started.Load(),
		"invocations_completed": mc.completed.Load(),
		"invocations_failed":    mc.failed.Load(),
		"alerts_fired":          mc.alertsFired.Load(),
		"alerts_delivered":      mc.alertsDelivered.Load(),
		"alerts_skipped":        mc.alertsSkipped.Load(),
		"delivery_failures":     mc.deliveryFailures.Load(),
		"timers_evicted":        mc.timersEvicted.Load(),
	}
}
