// Package alerts decides when an invocation deserves an alert, formats it and
// delivers it through the single configured channel.
//
// DESIGN:
//   - Evaluate:    latency and token thresholds, checked in that order
//   - BuildPayload: title + newline-joined body lines
//   - Dispatcher:  log line on every alert, then at most one Notifier
//
// Delivery is fail-soft: notifier errors are logged and counted, never
// returned to the caller.
package alerts

import "time"

// Threshold alert reasons.
const (
	ReasonLatency = "Latency threshold exceeded"
	ReasonTokens  = "Token threshold exceeded"
)

// Thresholds are the limits an invocation is checked against.
type Thresholds struct {
	LatencySeconds float64
	TokenThreshold int
}

// Observation is what is known about a finished invocation.
type Observation struct {
	Elapsed     time.Duration
	HasElapsed  bool
	TotalTokens int
	HasTokens   bool
}

// Evaluate returns the reasons that fire for obs, latency first.
// Each reason is dispatched as its own alert.
func Evaluate(th Thresholds, obs Observation) []string {
	var reasons []string
	if obs.HasElapsed && obs.Elapsed.Seconds() >= th.LatencySeconds {
		reasons = append(reasons, ReasonLatency)
	}
	if obs.HasTokens && obs.TotalTokens >= th.TokenThreshold {
		reasons = append(reasons, ReasonTokens)
	}
	return reasons
}
