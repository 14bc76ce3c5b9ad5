// Package llm provides LLM client implementations behind a single
// request/response contract. Providers translate the shared message
// and tool types into their own wire format and normalize responses
// back into Response.
package llm

import (
	"context"
	"log/slog"
)

// LevelTrace is below Debug, used for wire-level payload logging.
const LevelTrace = slog.Level(-8)

// Block type tags for ContentBlock.
const (
	BlockText       = "text"
	BlockImage      = "image"
	BlockDocument   = "document"
	BlockToolUse    = "tool_use"
	BlockToolResult = "tool_result"
)

// ContentBlock is one element of a structured message. Type selects
// which fields are meaningful.
type ContentBlock struct {
	Type string

	// BlockText
	Text string

	// BlockImage / BlockDocument
	MediaType string
	Data      string // base64

	// BlockToolUse
	ID    string
	Name  string
	Input map[string]any

	// BlockToolResult
	ToolUseID string
	Content   string
}

// Message is a chat message. Content carries plain text when Blocks is
// empty; otherwise Blocks carries the ordered structured content.
type Message struct {
	Role    string // user, assistant, tool
	Content string
	Blocks  []ContentBlock
}

// TextMessage builds a plain-text message.
func TextMessage(role, text string) Message {
	return Message{Role: role, Content: text}
}

// BlockMessage builds a structured message.
func BlockMessage(role string, blocks []ContentBlock) Message {
	return Message{Role: role, Blocks: blocks}
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID    string
	Name  string
	Input map[string]any
}

// ToolDefinition describes a callable tool for the model.
type ToolDefinition struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// StopReason says why the model stopped emitting.
type StopReason int

const (
	StopEndTurn StopReason = iota
	StopToolUse
	StopMaxTokens
	StopOther
)

func (r StopReason) String() string {
	switch r {
	case StopToolUse:
		return "tool_use"
	case StopMaxTokens:
		return "max_tokens"
	case StopOther:
		return "other"
	default:
		return "end_turn"
	}
}

// Response is the normalized result of a completion call.
type Response struct {
	Text      string
	ToolCalls []ToolCall
	Stop      StopReason

	InputTokens  int
	OutputTokens int

	// EchoBlocks holds the assistant's emitted content blocks
	// verbatim, including tool_use entries, so the agentic loop can
	// resubmit them on the next turn.
	EchoBlocks []ContentBlock
}

// Client is the abstraction over LLM backends.
type Client interface {
	// Complete sends a conversation to the model. tools may be nil,
	// in which case no tool definitions are included and the response
	// carries no tool calls.
	Complete(ctx context.Context, system string, messages []Message, tools []ToolDefinition) (*Response, error)

	// Description is a human-readable provider and model summary,
	// e.g. "anthropic (claude-sonnet-4-20250514)". Used in /status.
	Description() string
}
