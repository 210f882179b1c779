// Package ingest types - wire format for lifecycle events.
//
// DESIGN: One JSON object per event. The response payload is kept raw so the
// usage extractor sees exactly what the framework sent.
package ingest

import "encoding/json"

// EventType names a lifecycle callback.
type EventType string

const (
	EventInvocationStart EventType = "invocation_start"
	EventInvocationEnd   EventType = "invocation_end"
	EventInvocationError EventType = "invocation_error"
	EventPipelineError   EventType = "pipeline_error"
)

// Valid reports whether t is a known event type.
func (t EventType) Valid() bool {
	switch t {
	case EventInvocationStart, EventInvocationEnd, EventInvocationError, EventPipelineError:
		return true
	}
	return false
}

// Event is the body of POST /v1/events.
type Event struct {
	Event    EventType       `json:"event"`
	RunID    string          `json:"run_id"`
	Metadata map[string]any  `json:"metadata,omitempty"`
	Response json.RawMessage `json:"response,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// Accepted is the 202 response body.
type Accepted struct {
	RunID string `json:"run_id"`
}

// HTTP headers and limits.
const (
	HeaderRequestID = "X-Request-ID"
	MaxBodySize     = 10 << 20
)
