// Package llm defines the model-provider boundary: a completion client, a
// streaming variant, and the request/response types shared by both. The
// provider performs inference only; tool execution stays with the caller.
package llm

import (
	"context"

	"github.com/kristerus/nulalabs/internal/chat"
)

// Request contains all parameters for one model invocation.
type Request struct {
	System      string
	Messages    []chat.Message
	Tools       []chat.ToolDefinition
	MaxTokens   int
	Temperature float64
}

// Usage tracks token consumption reported by the provider.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Response is the provider's aggregate answer for one step.
type Response struct {
	Text       string
	ToolCalls  []chat.ToolCallPart
	StopReason string
	Usage      Usage
}

// Callbacks captures optional hooks invoked while streaming. All callbacks
// are optional; nil functions are ignored.
type Callbacks struct {
	// OnTextDelta receives incremental assistant text as it arrives.
	OnTextDelta func(delta string)
	// OnToolCall fires once per tool call, after its arguments are complete.
	OnToolCall func(call chat.ToolCallPart)
}

// Client is any non-streaming model provider.
type Client interface {
	Complete(ctx context.Context, req Request) (*Response, error)
	Model() string
}

// StreamingClient additionally surfaces incremental events. The returned
// Response carries the same aggregate content as the stream.
type StreamingClient interface {
	Client
	StreamComplete(ctx context.Context, req Request, cb Callbacks) (*Response, error)
}

// EnsureStreaming wraps a non-streaming client so callers can rely on
// StreamComplete; the fallback emits the full text as one delta.
func EnsureStreaming(client Client) StreamingClient {
	if sc, ok := client.(StreamingClient); ok {
		return sc
	}
	return &streamingFallback{base: client}
}

type streamingFallback struct {
	base Client
}

func (f *streamingFallback) Complete(ctx context.Context, req Request) (*Response, error) {
	return f.base.Complete(ctx, req)
}

func (f *streamingFallback) Model() string { return f.base.Model() }

func (f *streamingFallback) StreamComplete(ctx context.Context, req Request, cb Callbacks) (*Response, error) {
	resp, err := f.base.Complete(ctx, req)
	if err != nil {
		return nil, err
	}
	if cb.OnTextDelta != nil && resp.Text != "" {
		cb.OnTextDelta(resp.Text)
	}
	if cb.OnToolCall != nil {
		for _, call := range resp.ToolCalls {
			cb.OnToolCall(call)
		}
	}
	return resp, nil
}
