package chat

import (
	"encoding/json"
	"testing"

	"github.com/kristerus/nulalabs/internal/logging"
)

func TestMessageJSONRoundTrip(t *testing.T) {
	msg := Message{
		ID:   "m1",
		Role: RoleAssistant,
		Parts: []Part{
			ReasoningPart{Text: "thinking about CV values"},
			ToolCallPart{CallID: "c1", Name: "load_compounds", Args: map[string]any{"file": "batch1"}},
			ToolResultPart{CallID: "c1", Result: map[string]any{"rows": float64(10)}},
			TextPart{Text: "Loaded 10 rows."},
		},
	}

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded Message
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(decoded.Parts) != 4 {
		t.Fatalf("expected 4 parts, got %d", len(decoded.Parts))
	}
	call, ok := decoded.Parts[1].(ToolCallPart)
	if !ok || call.Name != "load_compounds" {
		t.Fatalf("unexpected tool call part: %#v", decoded.Parts[1])
	}
	if decoded.Text() != "Loaded 10 rows." {
		t.Fatalf("unexpected text: %q", decoded.Text())
	}
}

func TestInvocationsPairsCallsWithResults(t *testing.T) {
	msg := Message{
		ID:   "m2",
		Role: RoleAssistant,
		Parts: []Part{
			ToolCallPart{CallID: "c1", Name: "load_data", Args: map[string]any{"file": "X"}},
			ToolCallPart{CallID: "c2", Name: ""}, // nameless, skipped
			ToolResultPart{CallID: "c1", Result: map[string]any{"rows": 10}},
		},
	}

	records := Invocations(msg, 3, logging.Nop())
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	rec := records[0]
	if rec.ToolName != "load_data" || rec.MessageIndex != 3 || rec.IsError {
		t.Fatalf("unexpected record: %#v", rec)
	}
	if rec.Result == nil {
		t.Fatal("result was not paired")
	}
}

func TestCanonicalArgsIgnoresInsertionOrder(t *testing.T) {
	a := map[string]any{"b": 2, "a": map[string]any{"y": 1, "x": 2}}
	b := map[string]any{"a": map[string]any{"x": 2, "y": 1}, "b": 2}
	if CanonicalArgs(a) != CanonicalArgs(b) {
		t.Fatalf("canonical forms differ: %s vs %s", CanonicalArgs(a), CanonicalArgs(b))
	}
	if CanonicalArgs(nil) != "{}" {
		t.Fatalf("nil args should canonicalise to {}")
	}
}

func TestSignatureChangesWithContent(t *testing.T) {
	msgs := []Message{UserMessage("load X")}
	sig1 := Signature(msgs)
	sig2 := Signature(append(msgs, UserMessage("and Y")))
	if sig1 == sig2 {
		t.Fatal("signature did not change when messages were appended")
	}
	if sig1 != Signature(msgs[:1]) {
		t.Fatal("signature not deterministic")
	}
}
