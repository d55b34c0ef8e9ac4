// Package rpcapi defines the wire message types served over net/rpc on the
// daemon's Unix domain socket, and a thin Service adapter that dispatches
// them to a Handler. Wire serialization (gob, via net/rpc) is
// treated as an external collaborator — its framing is never touched
// directly by this package.
package rpcapi

// Message is one chat turn as carried over the wire.
type Message struct {
	Role    string
	Content string
}

// ToolDescriptor is a callable function the model may invoke, as carried
// over the wire.
type ToolDescriptor struct {
	Name             string
	Description      string
	ParametersSchema string
}

// CompletionRequest is the Complete RPC's argument.
type CompletionRequest struct {
	SystemPrompt string
	Messages     []Message
	Tools        []ToolDescriptor
	MaxTokens    int32
	JSONSchema   string
}

// ToolCallResult is one tool invocation the model produced.
type ToolCallResult struct {
	ID            string
	Name          string
	ArgumentsJSON string
}

// Usage reports token accounting for a single completion.
type Usage struct {
	InputTokens  int32
	OutputTokens int32
}

// CompletionResponse is the Complete RPC's result.
type CompletionResponse struct {
	Content    string
	ToolCalls  []ToolCallResult
	StopReason string
	Usage      Usage
}

// Stop reasons, in the priority order RequestHandler resolves them.
const (
	StopReasonTimeout   = "timeout"
	StopReasonMaxTokens = "max_tokens"
	StopReasonToolUse   = "tool_use"
	StopReasonEndTurn   = "end_turn"
)

// ShutdownRequest is the Shutdown RPC's argument.
type ShutdownRequest struct {
	Graceful bool
}

// ShutdownResponse is the Shutdown RPC's result.
type ShutdownResponse struct {
	Accepted bool
}

// StatusRequest is the GetStatus RPC's argument; it carries no fields.
type StatusRequest struct{}

// StatusResponse is the GetStatus RPC's result.
type StatusResponse struct {
	Ready              bool
	ModelName          string
	ModelSizeBytes     uint64
	Backend            string
	AvailableVRAMBytes uint64
}
