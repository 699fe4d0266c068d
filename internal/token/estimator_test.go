package token

import (
	"strings"
	"testing"

	"github.com/kristerus/nulalabs/internal/chat"
)

func TestEstimateTextRoundsUp(t *testing.T) {
	if got := EstimateText(""); got != 0 {
		t.Fatalf("empty text: got %d, want 0", got)
	}
	if got := EstimateText("abcd"); got != 1 {
		t.Fatalf("4 chars: got %d, want 1", got)
	}
	if got := EstimateText("abcde"); got != 2 {
		t.Fatalf("5 chars: got %d, want 2", got)
	}
}

func TestMessageIncludesToolPayloads(t *testing.T) {
	bare := chat.Message{Role: chat.RoleAssistant, Parts: []chat.Part{chat.TextPart{Text: "done"}}}
	withTool := chat.Message{Role: chat.RoleAssistant, Parts: []chat.Part{
		chat.TextPart{Text: "done"},
		chat.ToolCallPart{CallID: "c1", Name: "load_data", Args: map[string]any{"file": "measurements.csv"}},
		chat.ToolResultPart{CallID: "c1", Result: map[string]any{"rows": 245}},
	}}

	if Message(withTool) <= Message(bare) {
		t.Fatal("tool invocation payload did not increase estimate")
	}
}

func TestSizeThreshold(t *testing.T) {
	msgs := []chat.Message{{Role: chat.RoleUser, Parts: []chat.Part{chat.TextPart{Text: strings.Repeat("x", 400)}}}}

	size := Size("prompt", msgs, nil, 1000)
	if size.ExceedsThreshold {
		t.Fatalf("unexpected trigger at %d tokens", size.Total)
	}
	size = Size("prompt", msgs, nil, 50)
	if !size.ExceedsThreshold {
		t.Fatalf("expected trigger at %d tokens against 50", size.Total)
	}
	if size.Total != size.SystemTokens+size.MessageTokens+size.ToolTokens {
		t.Fatal("total does not match component sum")
	}
}

func TestTruncateBoundsText(t *testing.T) {
	text := strings.Repeat("the quick brown fox jumps over the lazy dog ", 100)
	short := Truncate(text, 50)
	if len(short) >= len(text) {
		t.Fatal("truncate did not shorten text")
	}
	if !strings.HasSuffix(short, "...") {
		t.Fatalf("expected ellipsis suffix, got %q", short[len(short)-8:])
	}
	if got := Truncate("short", 50); got != "short" {
		t.Fatalf("short text modified: %q", got)
	}
}
