// Package lifecycle binds alerting to invocation lifecycle events.
//
// DESIGN: Handler is the single entry point the orchestration framework calls.
// Per run ID it moves between two states:
//
//	no-entry --OnInvocationStart--> pending
//	any      --OnInvocationEnd / OnInvocationError / OnPipelineError--> no-entry
//
// End events are checked against thresholds; error events always alert.
// The timer entry is released before any notification I/O starts.
package lifecycle

import (
	"context"
	"runtime/debug"

	"github.com/compresr/llm-alerts/internal/alerts"
	"github.com/compresr/llm-alerts/internal/config"
	"github.com/compresr/llm-alerts/internal/monitoring"
	"github.com/compresr/llm-alerts/internal/runtimer"
	"github.com/compresr/llm-alerts/internal/usage"
)

// Callback is the contract the event source calls into.
type Callback interface {
	OnInvocationStart(ctx context.Context, metadata map[string]any, runID string)
	OnInvocationEnd(ctx context.Context, response any, runID string)
	OnInvocationError(ctx context.Context, err error, runID string)
	OnPipelineError(ctx context.Context, err error, runID string)
}

// Dispatcher delivers a formatted alert.
type Dispatcher interface {
	Dispatch(ctx context.Context, p alerts.Payload)
}

// Handler raises alerts for slow, expensive or failed invocations.
// Safe for concurrent use by parallel invocations.
type Handler struct {
	thresholds alerts.Thresholds
	timer      *runtimer.Timer
	extractor  *usage.Extractor
	dispatcher Dispatcher
	logger     *monitoring.Logger
	metrics    *monitoring.MetricsCollector
}

// Option configures a Handler.
type Option func(*Handler)

// WithTimer replaces the run timer.
func WithTimer(t *runtimer.Timer) Option {
	return func(h *Handler) { h.timer = t }
}

// WithDispatcher replaces the dispatcher built from the config.
func WithDispatcher(d Dispatcher) Option {
	return func(h *Handler) { h.dispatcher = d }
}

// WithExtractor replaces the default usage extractor.
func WithExtractor(e *usage.Extractor) Option {
	return func(h *Handler) { h.extractor = e }
}

// New creates a Handler for cfg. Unless overridden, it owns a run timer
// (with cfg.RunTTL eviction) and a dispatcher for cfg.NotifyMode.
func New(cfg config.AlertConfig, logger *monitoring.Logger, metrics *monitoring.MetricsCollector, opts ...Option) *Handler {
	if logger == nil {
		logger = monitoring.Nop()
	}
	if metrics == nil {
		metrics = monitoring.NewMetricsCollector()
	}

	h := &Handler{
		thresholds: alerts.Thresholds{
			LatencySeconds: cfg.LatencySeconds,
			TokenThreshold: cfg.TokenThreshold,
		},
		extractor: usage.NewExtractor(),
		logger:    logger,
		metrics:   metrics,
	}
	for _, opt := range opts {
		opt(h)
	}

	if h.timer == nil {
		h.timer = runtimer.New(
			runtimer.WithTTL(cfg.RunTTL),
			runtimer.WithEvictHook(func(n int) {
				metrics.RecordEvicted(n)
				logger.Debug().Int("count", n).Msg("evicted orphaned run timers")
			}),
		)
	}
	if h.dispatcher == nil {
		h.dispatcher = alerts.NewDispatcher(cfg, logger, metrics)
	}

	return h
}

// BuildCallbacks returns the default callback list for an event source.
func BuildCallbacks(cfg config.AlertConfig, logger *monitoring.Logger, metrics *monitoring.MetricsCollector) []Callback {
	return []Callback{New(cfg, logger, metrics)}
}

// OnInvocationStart records the start time for runID.
func (h *Handler) OnInvocationStart(ctx context.Context, metadata map[string]any, runID string) {
	defer h.recoverPanic(runID, "invocation_start")

	h.metrics.RecordStart()
	h.timer.RecordStart(runID)
	h.logger.Debug().Str("run_id", runID).Int("metadata_keys", len(metadata)).Msg("invocation started")
}

// OnInvocationEnd checks latency and token usage and alerts once per
// threshold crossed.
func (h *Handler) OnInvocationEnd(ctx context.Context, response any, runID string) {
	defer h.recoverPanic(runID, "invocation_end")

	h.metrics.RecordEnd()

	var obs alerts.Observation
	obs.Elapsed, obs.HasElapsed = h.timer.TakeElapsed(runID)
	obs.TotalTokens, obs.HasTokens = h.extractor.TotalTokens(response)

	ctx = monitoring.WithRunIDContext(ctx, runID)
	for _, reason := range alerts.Evaluate(h.thresholds, obs) {
		h.dispatcher.Dispatch(ctx, alerts.BuildPayload(reason, obs))
	}
}

// OnInvocationError always alerts with the model error.
func (h *Handler) OnInvocationError(ctx context.Context, err error, runID string) {
	defer h.recoverPanic(runID, "invocation_error")
	h.alertFailure(ctx, "LLM error: ", err, runID)
}

// OnPipelineError always alerts with the pipeline error.
func (h *Handler) OnPipelineError(ctx context.Context, err error, runID string) {
	defer h.recoverPanic(runID, "pipeline_error")
	h.alertFailure(ctx, "Chain error: ", err, runID)
}

// Pending returns the number of runs started but not yet finished.
func (h *Handler) Pending() int {
	return h.timer.Len()
}

// Close stops the run timer's sweeper.
func (h *Handler) Close() error {
	return h.timer.Close()
}

func (h *Handler) alertFailure(ctx context.Context, prefix string, err error, runID string) {
	h.metrics.RecordFailure()

	var obs alerts.Observation
	obs.Elapsed, obs.HasElapsed = h.timer.TakeElapsed(runID)

	ctx = monitoring.WithRunIDContext(ctx, runID)
	h.dispatcher.Dispatch(ctx, alerts.BuildPayload(prefix+describe(err), obs))
}

// recoverPanic keeps failures below the handler invisible to the event source.
func (h *Handler) recoverPanic(runID, event string) {
	if r := recover(); r != nil {
		h.logger.Error().
			Str("run_id", runID).
			Str("event", event).
			Interface("panic", r).
			Str("stack", string(debug.Stack())).
			Msg("panic in alert handler")
	}
}

func describe(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}
