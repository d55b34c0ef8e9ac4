// Package prompt renders a Request into the ChatML-flavored prompt string
// the InferenceEngine tokenizes.
package prompt

import "strings"

// Role is a chat participant. Unknown values map to RoleUser when rendered.
type Role int

const (
	RoleUser Role = iota
	RoleAssistant
	RoleTool
)

func (r Role) chatMLName() string {
	switch r {
	case RoleAssistant:
		return "assistant"
	case RoleTool:
		return "tool"
	default:
		return "user"
	}
}

// Message is one turn in the conversation.
type Message struct {
	Role    Role
	Content string
}

// Tool describes a callable function the model may invoke via a bare JSON
// response instead of free text.
type Tool struct {
	Name        string
	Description string
}

// Request is the transient input to a single completion call.
type Request struct {
	SystemPrompt string
	Messages     []Message
	Tools        []Tool
}

const toolInstructionHeader = "You may call one of the following tools by responding with a single JSON object of the form {\"name\": ..., \"arguments\": {...}} and nothing else:"

// Build renders req into the full ChatML prompt string, ending with an
// open assistant turn for the model to complete.
func Build(req Request) string {
	var b strings.Builder

	b.WriteString("<|im_start|>system\n")
	b.WriteString(effectiveSystemPrompt(req))
	b.WriteString("<|im_end|>\n")

	for _, msg := range req.Messages {
		b.WriteString("<|im_start|>")
		b.WriteString(msg.Role.chatMLName())
		b.WriteString("\n")
		b.WriteString(msg.Content)
		b.WriteString("<|im_end|>\n")
	}

	b.WriteString("<|im_start|>assistant\n")

	return b.String()
}

// effectiveSystemPrompt appends a tool-instruction block to the caller's
// system prompt when tools were provided.
func effectiveSystemPrompt(req Request) string {
	if len(req.Tools) == 0 {
		return req.SystemPrompt
	}

	var b strings.Builder
	b.WriteString(req.SystemPrompt)
	if req.SystemPrompt != "" {
		b.WriteString("\n\n")
	}
	b.WriteString(toolInstructionHeader)
	for _, t := range req.Tools {
		b.WriteString("\n- ")
		b.WriteString(t.Name)
		b.WriteString(": ")
		b.WriteString(t.Description)
	}

	return b.String()
}
