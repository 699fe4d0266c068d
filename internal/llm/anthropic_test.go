package llm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kristerus/nulalabs/internal/chat"
)

const sampleStream = `event: message_start
data: {"type":"message_start","message":{"usage":{"input_tokens":42}}}

event: content_block_start
data: {"type":"content_block_start","index":0,"content_block":{"type":"text"}}

event: content_block_delta
data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Hello "}}

event: content_block_delta
data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"world"}}

event: content_block_stop
data: {"type":"content_block_stop","index":0}

event: content_block_start
data: {"type":"content_block_start","index":1,"content_block":{"type":"tool_use","id":"tu_1","name":"load_data"}}

event: content_block_delta
data: {"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":"{\"file\":"}}

event: content_block_delta
data: {"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":"\"x.csv\"}"}}

event: content_block_stop
data: {"type":"content_block_stop","index":1}

event: message_delta
data: {"type":"message_delta","delta":{"stop_reason":"tool_use"},"usage":{"output_tokens":17}}

event: message_stop
data: {"type":"message_stop"}
`

func newTestClient(t *testing.T, handler http.HandlerFunc) *AnthropicClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewAnthropicClient(AnthropicConfig{
		APIKey:  "test-key",
		BaseURL: server.URL,
		Model:   "claude-test",
	}, nil)
}

func TestStreamCompleteParsesTextAndToolUse(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "test-key" {
			t.Errorf("missing api key header")
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte(sampleStream))
	})

	var deltas []string
	var calls []chat.ToolCallPart
	resp, err := client.StreamComplete(context.Background(), Request{
		Messages: []chat.Message{chat.UserMessage("hi")},
	}, Callbacks{
		OnTextDelta: func(d string) { deltas = append(deltas, d) },
		OnToolCall:  func(c chat.ToolCallPart) { calls = append(calls, c) },
	})
	if err != nil {
		t.Fatalf("StreamComplete: %v", err)
	}

	if resp.Text != "Hello world" {
		t.Fatalf("text = %q", resp.Text)
	}
	if strings.Join(deltas, "") != "Hello world" {
		t.Fatalf("deltas = %v", deltas)
	}
	if len(calls) != 1 || calls[0].Name != "load_data" || calls[0].Args["file"] != "x.csv" {
		t.Fatalf("tool calls = %#v", calls)
	}
	if resp.StopReason != "tool_use" {
		t.Fatalf("stop reason = %q", resp.StopReason)
	}
	if resp.Usage.InputTokens != 42 || resp.Usage.OutputTokens != 17 {
		t.Fatalf("usage = %+v", resp.Usage)
	}
}

func TestStreamCompleteSurfacesAPIError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"overloaded"}}`, http.StatusTooManyRequests)
	})

	_, err := client.StreamComplete(context.Background(), Request{}, Callbacks{})
	if err == nil || !strings.Contains(err.Error(), "429") {
		t.Fatalf("expected status error, got %v", err)
	}
}

func TestDecodeToolArgsRepairsMalformedJSON(t *testing.T) {
	client := NewAnthropicClient(AnthropicConfig{APIKey: "k"}, nil)

	args := client.decodeToolArgs("t", `{"a": 1, "b": "x"`)
	if args["b"] != "x" {
		t.Fatalf("repair failed: %#v", args)
	}
	if got := client.decodeToolArgs("t", ""); len(got) != 0 {
		t.Fatalf("empty input should yield empty map, got %#v", got)
	}
}

func TestEnsureStreamingFallbackEmitsAggregate(t *testing.T) {
	mock := NewMock(Response{Text: "done", StopReason: "end_turn"})
	sc := EnsureStreaming(mock)

	var got string
	resp, err := sc.StreamComplete(context.Background(), Request{}, Callbacks{
		OnTextDelta: func(d string) { got += d },
	})
	if err != nil {
		t.Fatalf("StreamComplete: %v", err)
	}
	if resp.Text != "done" || got != "done" {
		t.Fatalf("resp=%q deltas=%q", resp.Text, got)
	}
}

func TestToAnthropicMessagesSplitsToolResults(t *testing.T) {
	msgs := []chat.Message{
		{
			Role: chat.RoleAssistant,
			Parts: []chat.Part{
				chat.TextPart{Text: "calling"},
				chat.ToolCallPart{CallID: "c1", Name: "t", Args: map[string]any{"a": 1}},
				chat.ToolResultPart{CallID: "c1", Result: map[string]any{"ok": true}},
			},
		},
	}

	wire := toAnthropicMessages(msgs)
	if len(wire) != 2 {
		t.Fatalf("expected assistant + tool_result messages, got %d", len(wire))
	}
	if wire[0].Role != "assistant" || wire[1].Role != "user" {
		t.Fatalf("roles = %s %s", wire[0].Role, wire[1].Role)
	}
	if wire[1].Content[0].Type != "tool_result" || wire[1].Content[0].ToolUseID != "c1" {
		t.Fatalf("tool result block = %#v", wire[1].Content[0])
	}
}
