// Package usage recovers total token counts from completion responses.
//
// DESIGN: Responses arrive in whatever shape the model provider produced.
// The Extractor runs an ordered chain of strategies over the response as
// untyped JSON (queried with gjson) and returns the first hit:
//  1. llm_output.token_usage.total_tokens, else llm_output.usage.total_tokens
//  2. generations[*][*].message.usage_metadata.total_tokens, first in order
//
// A missing field, a wrong type or an empty sequence at any level means
// "no token data", never an error.
package usage

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// Strategy tries to read a total token count from a parsed response.
type Strategy func(doc gjson.Result) (int, bool)

// DefaultStrategies is the fixed extraction order.
var DefaultStrategies = []Strategy{FromLLMOutput, FromGenerations}

// Extractor runs strategies in order.
type Extractor struct {
	strategies []Strategy
}

// NewExtractor creates an Extractor. With no strategies it uses DefaultStrategies.
func NewExtractor(strategies ...Strategy) *Extractor {
	if len(strategies) == 0 {
		strategies = DefaultStrategies
	}
	return &Extractor{strategies: strategies}
}

// TotalTokens returns the first total token count any strategy finds.
//
// response may be raw JSON ([]byte, json.RawMessage, string), a gjson.Result,
// or any value encoding/json can marshal.
func (e *Extractor) TotalTokens(response any) (int, bool) {
	doc, ok := parse(response)
	if !ok {
		return 0, false
	}

	for _, strategy := range e.strategies {
		if total, ok := strategy(doc); ok {
			return total, true
		}
	}
	return 0, false
}

var defaultExtractor = NewExtractor()

// TotalTokens extracts with the default strategy chain.
func TotalTokens(response any) (int, bool) {
	return defaultExtractor.TotalTokens(response)
}

// FromLLMOutput reads the provider-level usage block.
// token_usage wins over usage when it is present (non-empty).
func FromLLMOutput(doc gjson.Result) (int, bool) {
	output := doc.Get("llm_output")
	if !output.IsObject() {
		return 0, false
	}

	block := output.Get("token_usage")
	if !truthy(block) {
		block = output.Get("usage")
	}
	if !block.IsObject() {
		return 0, false
	}

	return count(block.Get("total_tokens"))
}

// FromGenerations scans per-message usage metadata in iteration order.
func FromGenerations(doc gjson.Result) (int, bool) {
	generations := doc.Get("generations")
	if !generations.IsArray() {
		return 0, false
	}

	var (
		total int
		found bool
	)
	generations.ForEach(func(_, group gjson.Result) bool {
		if !group.IsArray() {
			return true
		}
		group.ForEach(func(_, generation gjson.Result) bool {
			if !generation.IsObject() {
				return true
			}
			meta := generation.Get("message.usage_metadata")
			if !meta.IsObject() {
				return true
			}
			total, found = count(meta.Get("total_tokens"))
			return !found
		})
		return !found
	})

	return total, found
}

func parse(response any) (gjson.Result, bool) {
	var data []byte
	switch v := response.(type) {
	case nil:
		return gjson.Result{}, false
	case gjson.Result:
		return v, v.Exists()
	case []byte:
		data = v
	case json.RawMessage:
		data = v
	case string:
		data = []byte(v)
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return gjson.Result{}, false
		}
		data = encoded
	}

	if len(data) == 0 || !gjson.ValidBytes(data) {
		return gjson.Result{}, false
	}
	return gjson.ParseBytes(data), true
}

// count accepts only non-negative JSON integers (no fraction or exponent).
func count(v gjson.Result) (int, bool) {
	if v.Type != gjson.Number || strings.ContainsAny(v.Raw, ".eE") {
		return 0, false
	}

	n, err := strconv.ParseInt(v.Raw, 10, 64)
	if err != nil || n < 0 || n > math.MaxInt {
		return 0, false
	}
	return int(n), true
}

// truthy treats null, false, 0, "" and empty containers as absent.
func truthy(v gjson.Result) bool {
	if !v.Exists() {
		return false
	}

	switch v.Type {
	case gjson.Null, gjson.False:
		return false
	case gjson.Number:
		return v.Num != 0
	case gjson.String:
		return v.Str != ""
	case gjson.JSON:
		if v.IsObject() {
			return len(v.Map()) > 0
		}
		return len(v.Array()) > 0
	}
	return true
}
