package alerts

import (
	"fmt"
	"strings"
)

// TitlePrefix starts every alert title.
const TitlePrefix = "LangSmith alert: "

// Payload is the alert sent to a channel.
type Payload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// BuildPayload formats the alert for reason. Latency and token lines are
// added only when the observation carries them.
func BuildPayload(reason string, obs Observation) Payload {
	lines := []string{"Reason: " + reason}
	if obs.HasElapsed {
		lines = append(lines, fmt.Sprintf("Latency: %.2fs", obs.Elapsed.Seconds()))
	}
	if obs.HasTokens {
		lines = append(lines, fmt.Sprintf("Total tokens: %d", obs.TotalTokens))
	}

	return Payload{
		Title: TitlePrefix + reason,
		Body:  strings.Join(lines, "\n"),
	}
}
