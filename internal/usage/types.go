package usage

// LLMResult mirrors the completion payload emitted by the orchestration
// framework. Every field is optional; callers may also pass raw JSON or maps.
type LLMResult struct {
	Generations [][]Generation `json:"generations,omitempty"`
	LLMOutput   map[string]any `json:"llm_output,omitempty"`
}

// Generation is one candidate completion.
type Generation struct {
	Text    string   `json:"text,omitempty"`
	Message *Message `json:"message,omitempty"`
}

// Message is the chat message attached to a generation.
type Message struct {
	Content       string         `json:"content,omitempty"`
	UsageMetadata map[string]any `json:"usage_metadata,omitempty"`
}
