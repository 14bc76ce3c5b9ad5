package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/processone/fluux-agent-sub000/internal/httpkit"
)

const (
	anthropicAPIURL     = "https://api.anthropic.com/v1/messages"
	anthropicAPIVersion = "2023-06-01"
)

// Anthropic is a client for the Anthropic Messages API.
type Anthropic struct {
	apiKey     string
	model      string
	maxTokens  int
	apiURL     string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewAnthropic creates an Anthropic client. Responses can take a long
// time before headers arrive (long prompts, thinking), so the request
// timeout is generous.
func NewAnthropic(apiKey, model string, maxTokens int, logger *slog.Logger) *Anthropic {
	if logger == nil {
		logger = slog.Default()
	}
	t := httpkit.NewTransport()
	t.ResponseHeaderTimeout = 120 * time.Second

	return &Anthropic{
		apiKey:    apiKey,
		model:     model,
		maxTokens: maxTokens,
		apiURL:    anthropicAPIURL,
		logger:    logger.With("provider", "anthropic"),
		httpClient: httpkit.NewClient(
			httpkit.WithTimeout(5*time.Minute),
			httpkit.WithTransport(t),
		),
	}
}

// Anthropic wire types.

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
	Tools     []anthropicTool    `json:"tools,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"` // string or []anthropicContent
}

type anthropicContent struct {
	Type      string           `json:"type"`
	Text      string           `json:"text,omitempty"`
	Source    *anthropicSource `json:"source,omitempty"`
	ID        string           `json:"id,omitempty"`
	Name      string           `json:"name,omitempty"`
	Input     map[string]any   `json:"input,omitempty"`
	ToolUseID string           `json:"tool_use_id,omitempty"`
	Content   string           `json:"content,omitempty"` // tool_result
}

type anthropicSource struct {
	Type      string `json:"type"` // "base64"
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type anthropicTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema"`
}

type anthropicResponse struct {
	ID         string             `json:"id"`
	Role       string             `json:"role"`
	Content    []anthropicContent `json:"content"`
	Model      string             `json:"model"`
	StopReason string             `json:"stop_reason"`
	Usage      anthropicUsage     `json:"usage"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Complete sends a non-streaming completion request.
func (c *Anthropic) Complete(ctx context.Context, system string, messages []Message, tools []ToolDefinition) (*Response, error) {
	req := anthropicRequest{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		System:    system,
		Messages:  convertToAnthropic(messages),
		Tools:     convertToolsToAnthropic(tools),
	}

	jsonData, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	c.logger.Debug("sending completion request",
		"model", c.model,
		"messages", len(req.Messages),
		"tools", len(req.Tools),
	)
	c.logger.Log(ctx, LevelTrace, "request payload", "json", string(jsonData))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicAPIVersion)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody := httpkit.ReadErrorBody(resp.Body, 4096)
		c.logger.Error("API error", "status", resp.StatusCode, "body", errBody)
		return nil, fmt.Errorf("anthropic API error %d: %s", resp.StatusCode, errBody)
	}

	var wire anthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	result := convertFromAnthropic(&wire)
	c.logger.Debug("completion response",
		"stop", result.Stop.String(),
		"input_tokens", result.InputTokens,
		"output_tokens", result.OutputTokens,
		"tool_calls", len(result.ToolCalls),
	)
	c.logger.Log(ctx, LevelTrace, "response text", "text", result.Text)
	return result, nil
}

// Description returns the provider and model summary.
func (c *Anthropic) Description() string {
	return fmt.Sprintf("anthropic (%s)", c.model)
}

// convertToAnthropic converts shared messages to Anthropic wire
// format. Tool results become tool_result blocks on user messages.
func convertToAnthropic(messages []Message) []anthropicMessage {
	result := make([]anthropicMessage, 0, len(messages))
	for _, msg := range messages {
		if len(msg.Blocks) == 0 {
			role := msg.Role
			if role == "tool" {
				// Bare tool message without blocks; should not occur,
				// but degrade to user text rather than drop it.
				role = "user"
			}
			result = append(result, anthropicMessage{Role: role, Content: msg.Content})
			continue
		}

		blocks := make([]anthropicContent, 0, len(msg.Blocks))
		for _, b := range msg.Blocks {
			blocks = append(blocks, blockToAnthropic(b))
		}
		role := msg.Role
		if role == "tool" {
			role = "user"
		}
		result = append(result, anthropicMessage{Role: role, Content: blocks})
	}
	return result
}

func blockToAnthropic(b ContentBlock) anthropicContent {
	switch b.Type {
	case BlockImage, BlockDocument:
		return anthropicContent{
			Type:   b.Type,
			Source: &anthropicSource{Type: "base64", MediaType: b.MediaType, Data: b.Data},
		}
	case BlockToolUse:
		input := b.Input
		if input == nil {
			input = map[string]any{}
		}
		return anthropicContent{Type: BlockToolUse, ID: b.ID, Name: b.Name, Input: input}
	case BlockToolResult:
		return anthropicContent{Type: BlockToolResult, ToolUseID: b.ToolUseID, Content: b.Content}
	default:
		return anthropicContent{Type: BlockText, Text: b.Text}
	}
}

func convertToolsToAnthropic(tools []ToolDefinition) []anthropicTool {
	if len(tools) == 0 {
		return nil
	}
	result := make([]anthropicTool, 0, len(tools))
	for _, t := range tools {
		schema := t.InputSchema
		if schema == nil {
			schema = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		result = append(result, anthropicTool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: schema,
		})
	}
	return result
}

// convertFromAnthropic normalizes an Anthropic response. EchoBlocks
// carries the emitted blocks verbatim for agentic-loop resubmission;
// tool-use IDs round-trip unchanged.
func convertFromAnthropic(resp *anthropicResponse) *Response {
	var text string
	var toolCalls []ToolCall
	var echo []ContentBlock

	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			text += block.Text
			echo = append(echo, ContentBlock{Type: BlockText, Text: block.Text})
		case "tool_use":
			input := block.Input
			if input == nil {
				input = map[string]any{}
			}
			toolCalls = append(toolCalls, ToolCall{ID: block.ID, Name: block.Name, Input: input})
			echo = append(echo, ContentBlock{Type: BlockToolUse, ID: block.ID, Name: block.Name, Input: input})
		}
	}

	stop := StopOther
	switch resp.StopReason {
	case "end_turn", "":
		stop = StopEndTurn
	case "tool_use":
		stop = StopToolUse
	case "max_tokens":
		stop = StopMaxTokens
	}

	return &Response{
		Text:         text,
		ToolCalls:    toolCalls,
		Stop:         stop,
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
		EchoBlocks:   echo,
	}
}
