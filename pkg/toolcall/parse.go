package toolcall

import (
	"encoding/json"
	"strconv"
	"time"
)

// ToolCall is the result of successfully parsing a model's tool-invocation
// response.
type ToolCall struct {
	ID            string
	Name          string
	ArgumentsJSON string
}

// ParseToolCall extracts and parses a tool call from text, returning
// ok=false on any failure: no balanced JSON object, invalid JSON, or a
// missing/non-string "name" field. Parsing is tolerant by design — a
// malformed tool call simply falls back to treating the turn as plain
// text, it never errors the request.
func ParseToolCall(text string) (ToolCall, bool) {
	candidate, ok := ExtractJSON(text)
	if !ok {
		return ToolCall{}, false
	}

	var parsed struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal([]byte(candidate), &parsed); err != nil {
		return ToolCall{}, false
	}
	if parsed.Name == "" {
		return ToolCall{}, false
	}

	argsJSON := string(parsed.Arguments)
	if argsJSON == "" {
		argsJSON = "{}"
	}

	return ToolCall{
		ID:            synthesizeID(),
		Name:          parsed.Name,
		ArgumentsJSON: argsJSON,
	}, true
}

func synthesizeID() string {
	return "call_" + strconv.FormatInt(time.Now().UnixNano(), 10)
}
