package alerts

import (
	"context"
	"errors"

	"github.com/compresr/llm-alerts/internal/config"
	"github.com/compresr/llm-alerts/internal/monitoring"
)

// ErrNotConfigured is returned by a notifier whose required settings are missing.
var ErrNotConfigured = errors.New("notifier not configured")

// Notifier delivers a payload through one channel.
type Notifier interface {
	// Name identifies the channel in logs ("webhook", "smtp").
	Name() string

	// Notify sends p. Wrap ErrNotConfigured when settings are missing.
	Notify(ctx context.Context, p Payload) error
}

// Dispatcher logs every alert and forwards it to the configured channel.
// Safe for concurrent use; it holds no mutable state.
type Dispatcher struct {
	mode     config.NotifyMode
	notifier Notifier // nil: log-only
	logger   *monitoring.Logger
	metrics  *monitoring.MetricsCollector
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithNotifier replaces the channel selected from the notify mode.
func WithNotifier(n Notifier) DispatcherOption {
	return func(d *Dispatcher) { d.notifier = n }
}

// NewDispatcher selects the channel for cfg.NotifyMode.
// log and unrecognised modes deliver nothing beyond the log line.
func NewDispatcher(cfg config.AlertConfig, logger *monitoring.Logger, metrics *monitoring.MetricsCollector, opts ...DispatcherOption) *Dispatcher {
	if logger == nil {
		logger = monitoring.Nop()
	}
	if metrics == nil {
		metrics = monitoring.NewMetricsCollector()
	}

	mode := cfg.NotifyMode.Normalize()
	d := &Dispatcher{
		mode:    mode,
		logger:  logger,
		metrics: metrics,
	}

	switch mode {
	case config.NotifyWebhook:
		d.notifier = NewWebhookNotifier(cfg)
	case config.NotifySMTP:
		d.notifier = NewSMTPNotifier(cfg)
	case config.NotifyLog:
	default:
		logger.Warn().Str("notify_mode", string(mode)).Msg("unknown notify mode; alerts will only be logged")
	}

	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Mode returns the normalized notify mode.
func (d *Dispatcher) Mode() config.NotifyMode { return d.mode }

// Dispatch logs p and sends it through the channel. It never fails:
// missing settings and delivery errors end up as warnings.
func (d *Dispatcher) Dispatch(ctx context.Context, p Payload) {
	runID := monitoring.RunIDFromContext(ctx)

	d.logger.Warn().Str("run_id", runID).Msg(p.Title)
	d.metrics.RecordAlert()

	if d.notifier == nil {
		return
	}

	err := d.notifier.Notify(ctx, p)
	switch {
	case err == nil:
		d.metrics.RecordDelivery(true)
		d.logger.Debug().
			Str("run_id", runID).
			Str("channel", d.notifier.Name()).
			Msg("alert delivered")
	case errors.Is(err, ErrNotConfigured):
		d.metrics.RecordSkipped()
		d.logger.Warn().
			Str("run_id", runID).
			Str("channel", d.notifier.Name()).
			Err(err).
			Msg("channel not configured; skipping alert")
	default:
		d.metrics.RecordDelivery(false)
		d.logger.Warn().
			Str("run_id", runID).
			Str("channel", d.notifier.Name()).
			Err(err).
			Msg("alert delivery failed")
	}
}
