package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/processone/fluux-agent-sub000/internal/httpkit"
)

const defaultOllamaHost = "http://localhost:11434"

// Ollama is a client for a local Ollama server's /api/chat endpoint.
type Ollama struct {
	host       string
	model      string
	maxTokens  int
	httpClient *http.Client
	logger     *slog.Logger
}

// NewOllama creates an Ollama client. host defaults to
// http://localhost:11434 when empty; a trailing slash is trimmed.
func NewOllama(host, model string, maxTokens int, logger *slog.Logger) *Ollama {
	if logger == nil {
		logger = slog.Default()
	}
	if host == "" {
		host = defaultOllamaHost
	}
	host = strings.TrimRight(host, "/")

	t := httpkit.NewTransport()
	t.ResponseHeaderTimeout = 120 * time.Second

	return &Ollama{
		host:      host,
		model:     model,
		maxTokens: maxTokens,
		logger:    logger.With("provider", "ollama"),
		httpClient: httpkit.NewClient(
			httpkit.WithTimeout(5*time.Minute),
			httpkit.WithTransport(t),
		),
	}
}

// Ollama wire types.

type ollamaRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Tools    []ollamaTool    `json:"tools,omitempty"`
	Options  *ollamaOptions  `json:"options,omitempty"`
}

type ollamaOptions struct {
	NumPredict int `json:"num_predict,omitempty"`
}

type ollamaMessage struct {
	Role      string           `json:"role"`
	Content   string           `json:"content"`
	ToolCalls []ollamaToolCall `json:"tool_calls,omitempty"`
}

type ollamaToolCall struct {
	Function ollamaFunctionCall `json:"function"`
}

type ollamaFunctionCall struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

type ollamaTool struct {
	Type     string         `json:"type"` // "function"
	Function ollamaFunction `json:"function"`
}

type ollamaFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters"`
}

type ollamaResponse struct {
	Model           string        `json:"model"`
	Message         ollamaMessage `json:"message"`
	DoneReason      string        `json:"done_reason"`
	PromptEvalCount int           `json:"prompt_eval_count"`
	EvalCount       int           `json:"eval_count"`
}

const multimodalPlaceholder = "[Unsupported: image/document content omitted]"

// Complete sends a non-streaming chat request. The system prompt goes
// in as a leading system-role message since the chat API has no
// top-level system field.
func (c *Ollama) Complete(ctx context.Context, system string, messages []Message, tools []ToolDefinition) (*Response, error) {
	wireMessages := make([]ollamaMessage, 0, len(messages)+1)
	if system != "" {
		wireMessages = append(wireMessages, ollamaMessage{Role: "system", Content: system})
	}
	for _, msg := range messages {
		translated, dropped := translateOllamaMessage(msg)
		if dropped {
			c.logger.Warn("multimodal content not supported by ollama, substituting placeholder")
		}
		wireMessages = append(wireMessages, translated...)
	}

	req := ollamaRequest{
		Model:    c.model,
		Messages: wireMessages,
		Stream:   false,
		Tools:    convertToolsToOllama(tools),
	}
	if c.maxTokens > 0 {
		req.Options = &ollamaOptions{NumPredict: c.maxTokens}
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

	url := c.host + "/api/chat"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody := httpkit.ReadErrorBody(resp.Body, 4096)
		c.logger.Error("API error", "status", resp.StatusCode, "body", errBody)
		return nil, fmt.Errorf("ollama API error %d: %s", resp.StatusCode, errBody)
	}

	var wire ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	result := convertFromOllama(&wire)
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
func (c *Ollama) Description() string {
	return fmt.Sprintf("ollama (%s)", c.model)
}

// translateOllamaMessage maps one shared message to Ollama messages.
// Tool results expand to one role:"tool" message each; image and
// document blocks are replaced by a placeholder since the chat API has
// no equivalent. dropped reports whether any block was replaced.
func translateOllamaMessage(msg Message) (out []ollamaMessage, dropped bool) {
	if len(msg.Blocks) == 0 {
		return []ollamaMessage{{Role: msg.Role, Content: msg.Content}}, false
	}

	var textParts []string
	var toolCalls []ollamaToolCall
	var toolResults []ollamaMessage

	for _, b := range msg.Blocks {
		switch b.Type {
		case BlockText:
			textParts = append(textParts, b.Text)
		case BlockImage, BlockDocument:
			textParts = append(textParts, multimodalPlaceholder)
			dropped = true
		case BlockToolUse:
			args := b.Input
			if args == nil {
				args = map[string]any{}
			}
			toolCalls = append(toolCalls, ollamaToolCall{
				Function: ollamaFunctionCall{Name: b.Name, Arguments: args},
			})
		case BlockToolResult:
			toolResults = append(toolResults, ollamaMessage{Role: "tool", Content: b.Content})
		}
	}

	if len(textParts) > 0 || len(toolCalls) > 0 {
		out = append(out, ollamaMessage{
			Role:      msg.Role,
			Content:   strings.Join(textParts, "\n"),
			ToolCalls: toolCalls,
		})
	}
	out = append(out, toolResults...)
	return out, dropped
}

func convertToolsToOllama(tools []ToolDefinition) []ollamaTool {
	if len(tools) == 0 {
		return nil
	}
	result := make([]ollamaTool, 0, len(tools))
	for _, t := range tools {
		params := t.InputSchema
		if params == nil {
			params = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		result = append(result, ollamaTool{
			Type: "function",
			Function: ollamaFunction{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  params,
			},
		})
	}
	return result
}

// convertFromOllama normalizes an Ollama response. The API does not
// assign tool-call IDs, so they are synthesized; a response carrying
// tool calls counts as tool use regardless of done_reason.
func convertFromOllama(resp *ollamaResponse) *Response {
	var toolCalls []ToolCall
	var echo []ContentBlock

	if resp.Message.Content != "" {
		echo = append(echo, ContentBlock{Type: BlockText, Text: resp.Message.Content})
	}
	for i, tc := range resp.Message.ToolCalls {
		id := fmt.Sprintf("local_tool_%d", i)
		args := tc.Function.Arguments
		if args == nil {
			args = map[string]any{}
		}
		toolCalls = append(toolCalls, ToolCall{ID: id, Name: tc.Function.Name, Input: args})
		echo = append(echo, ContentBlock{Type: BlockToolUse, ID: id, Name: tc.Function.Name, Input: args})
	}

	stop := StopOther
	switch resp.DoneReason {
	case "stop", "":
		stop = StopEndTurn
	case "length":
		stop = StopMaxTokens
	}
	if len(toolCalls) > 0 {
		stop = StopToolUse
	}

	return &Response{
		Text:         resp.Message.Content,
		ToolCalls:    toolCalls,
		Stop:         stop,
		InputTokens:  resp.PromptEvalCount,
		OutputTokens: resp.EvalCount,
		EchoBlocks:   echo,
	}
}
