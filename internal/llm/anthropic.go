package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/kaptinlin/jsonrepair"

	"github.com/kristerus/nulalabs/internal/chat"
	"github.com/kristerus/nulalabs/internal/logging"
)

const (
	defaultAnthropicBaseURL = "https://api.anthropic.com"
	anthropicVersion        = "2023-06-01"
	defaultMaxTokens        = 4096
)

// AnthropicConfig configures the Anthropic messages client.
type AnthropicConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// AnthropicClient speaks the Anthropic messages API with SSE streaming.
type AnthropicClient struct {
	config AnthropicConfig
	http   *http.Client
	logger logging.Logger
}

// NewAnthropicClient builds a client. APIKey falls back to ANTHROPIC_API_KEY.
func NewAnthropicClient(config AnthropicConfig, logger logging.Logger) *AnthropicClient {
	if config.APIKey == "" {
		config.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if config.BaseURL == "" {
		config.BaseURL = defaultAnthropicBaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = 120 * time.Second
	}
	return &AnthropicClient{
		config: config,
		http:   &http.Client{Timeout: config.Timeout},
		logger: logging.OrNop(logger),
	}
}

func (c *AnthropicClient) Model() string { return c.config.Model }

// Complete performs a non-streaming completion by draining the stream.
func (c *AnthropicClient) Complete(ctx context.Context, req Request) (*Response, error) {
	return c.StreamComplete(ctx, req, Callbacks{})
}

// wire types for the messages API

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	Tools       []anthropicTool    `json:"tools,omitempty"`
	Temperature float64            `json:"temperature,omitempty"`
	Stream      bool               `json:"stream"`
}

type anthropicMessage struct {
	Role    string           `json:"role"`
	Content []anthropicBlock `json:"content"`
}

type anthropicBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     map[string]any  `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

type anthropicTool struct {
	Name        string              `json:"name"`
	Description string              `json:"description,omitempty"`
	InputSchema chat.ParameterSchema `json:"input_schema"`
}

type streamEvent struct {
	Type  string `json:"type"`
	Index int    `json:"index"`
	Delta struct {
		Type        string `json:"type"`
		Text        string `json:"text"`
		PartialJSON string `json:"partial_json"`
		StopReason  string `json:"stop_reason"`
	} `json:"delta"`
	ContentBlock struct {
		Type string `json:"type"`
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"content_block"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Message struct {
		Usage struct {
			InputTokens  int `json:"input_tokens"`
			OutputTokens int `json:"output_tokens"`
		} `json:"usage"`
	} `json:"message"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

type pendingToolUse struct {
	id   string
	name string
	json strings.Builder
}

// StreamComplete issues one streaming request and forwards deltas to cb.
func (c *AnthropicClient) StreamComplete(ctx context.Context, req Request, cb Callbacks) (*Response, error) {
	if c.config.APIKey == "" {
		return nil, fmt.Errorf("anthropic: missing API key")
	}

	body := anthropicRequest{
		Model:       c.config.Model,
		MaxTokens:   req.MaxTokens,
		System:      req.System,
		Messages:    toAnthropicMessages(req.Messages),
		Temperature: req.Temperature,
		Stream:      true,
	}
	if body.MaxTokens == 0 {
		body.MaxTokens = defaultMaxTokens
	}
	for _, tool := range req.Tools {
		body.Tools = append(body.Tools, anthropicTool{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: tool.Parameters,
		})
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("anthropic: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("anthropic: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.config.APIKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("anthropic: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("anthropic: status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	return c.readStream(resp.Body, cb)
}

func (c *AnthropicClient) readStream(body io.Reader, cb Callbacks) (*Response, error) {
	result := &Response{}
	var text strings.Builder
	pending := map[int]*pendingToolUse{}

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" || data == "[DONE]" {
			continue
		}

		var ev streamEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			c.logger.Warn("anthropic: skipping malformed event: %v", err)
			continue
		}

		switch ev.Type {
		case "message_start":
			result.Usage.InputTokens = ev.Message.Usage.InputTokens
		case "content_block_start":
			if ev.ContentBlock.Type == "tool_use" {
				pending[ev.Index] = &pendingToolUse{id: ev.ContentBlock.ID, name: ev.ContentBlock.Name}
			}
		case "content_block_delta":
			switch ev.Delta.Type {
			case "text_delta":
				text.WriteString(ev.Delta.Text)
				if cb.OnTextDelta != nil {
					cb.OnTextDelta(ev.Delta.Text)
				}
			case "input_json_delta":
				if p := pending[ev.Index]; p != nil {
					p.json.WriteString(ev.Delta.PartialJSON)
				}
			}
		case "content_block_stop":
			if p := pending[ev.Index]; p != nil {
				call := chat.ToolCallPart{
					CallID: p.id,
					Name:   p.name,
					Args:   c.decodeToolArgs(p.name, p.json.String()),
				}
				result.ToolCalls = append(result.ToolCalls, call)
				if cb.OnToolCall != nil {
					cb.OnToolCall(call)
				}
				delete(pending, ev.Index)
			}
		case "message_delta":
			if ev.Delta.StopReason != "" {
				result.StopReason = ev.Delta.StopReason
			}
			if ev.Usage.OutputTokens > 0 {
				result.Usage.OutputTokens = ev.Usage.OutputTokens
			}
		case "error":
			return nil, fmt.Errorf("anthropic: stream error %s: %s", ev.Error.Type, ev.Error.Message)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("anthropic: read stream: %w", err)
	}

	result.Text = text.String()
	return result, nil
}

// decodeToolArgs parses accumulated tool-use JSON, repairing truncated or
// otherwise malformed payloads before giving up.
func (c *AnthropicClient) decodeToolArgs(toolName, raw string) map[string]any {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return map[string]any{}
	}

	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err == nil {
		return args
	}

	repaired, err := jsonrepair.JSONRepair(raw)
	if err == nil {
		if err := json.Unmarshal([]byte(repaired), &args); err == nil {
			c.logger.Warn("anthropic: repaired malformed args for tool %s", toolName)
			return args
		}
	}
	c.logger.Error("anthropic: unparseable args for tool %s: %.120s", toolName, raw)
	return map[string]any{}
}

// toAnthropicMessages converts history into API blocks. Tool results become
// user-role tool_result blocks per the messages protocol.
func toAnthropicMessages(messages []chat.Message) []anthropicMessage {
	var out []anthropicMessage
	for _, msg := range messages {
		var assistant, toolResults []anthropicBlock
		for _, part := range msg.Parts {
			switch p := part.(type) {
			case chat.TextPart:
				if p.Text != "" {
					assistant = append(assistant, anthropicBlock{Type: "text", Text: p.Text})
				}
			case chat.ToolCallPart:
				assistant = append(assistant, anthropicBlock{
					Type:  "tool_use",
					ID:    p.CallID,
					Name:  p.Name,
					Input: p.Args,
				})
			case chat.ToolResultPart:
				content, err := json.Marshal(p.Result)
				if err != nil {
					content = []byte(`"unserializable result"`)
				}
				toolResults = append(toolResults, anthropicBlock{
					Type:      "tool_result",
					ToolUseID: p.CallID,
					Content:   content,
					IsError:   p.IsError,
				})
			}
		}

		role := "user"
		if msg.Role == chat.RoleAssistant {
			role = "assistant"
		}
		if len(assistant) > 0 {
			out = append(out, anthropicMessage{Role: role, Content: assistant})
		}
		if len(toolResults) > 0 {
			out = append(out, anthropicMessage{Role: "user", Content: toolResults})
		}
	}
	return out
}
