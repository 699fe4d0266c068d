package conversation

import (
	stdctx "context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kristerus/nulalabs/internal/chat"
	convctx "github.com/kristerus/nulalabs/internal/context"
	"github.com/kristerus/nulalabs/internal/llm"
	"github.com/kristerus/nulalabs/internal/toolcache"
	"github.com/kristerus/nulalabs/internal/workflow"
)

type fakeDispatcher struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeDispatcher) Tools() []chat.ToolDefinition {
	return []chat.ToolDefinition{{Name: "srv__load_data", Description: "loads"}}
}

func (f *fakeDispatcher) Dispatch(_ stdctx.Context, name string, _ map[string]any) (string, bool, error) {
	f.mu.Lock()
	f.calls = append(f.calls, name)
	f.mu.Unlock()
	return `{"rows": 3}`, false, nil
}

func toolCallResponse(name string) llm.Response {
	return llm.Response{
		ToolCalls: []chat.ToolCallPart{
			{CallID: "c1", Name: name, Args: map[string]any{"f": "x"}},
		},
		StopReason: "tool_use",
		Usage:      llm.Usage{InputTokens: 10, OutputTokens: 5},
	}
}

func newTestEngine(mock *llm.Mock, tools ToolDispatcher, cache *toolcache.Cache) *Engine {
	return NewEngine(llm.EnsureStreaming(mock), tools, cache,
		convctx.NewSummarizer(nil, nil), workflow.NewEnricher(nil, nil),
		Config{SystemPrompt: "You are a data analyst."}, nil)
}

func TestRunTurnStepLoopWithTools(t *testing.T) {
	mock := llm.NewMock(
		toolCallResponse("srv__load_data"),
		llm.Response{Text: "Loaded 3 rows.", StopReason: "end_turn"},
	)
	tools := &fakeDispatcher{}
	engine := newTestEngine(mock, tools, toolcache.New(0, 0, nil))

	var deltas []string
	var steps []int
	history := []chat.Message{chat.UserMessage("load my data")}
	updated, err := engine.RunTurn(stdctx.Background(), history, Events{
		OnTextDelta:  func(d string) { deltas = append(deltas, d) },
		OnStepFinish: func(s int) { steps = append(steps, s) },
	})
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}

	if len(updated) != 3 {
		t.Fatalf("history = %d messages, want 3", len(updated))
	}
	if len(tools.calls) != 1 || tools.calls[0] != "srv__load_data" {
		t.Fatalf("dispatched = %v", tools.calls)
	}
	if len(steps) != 2 {
		t.Fatalf("steps = %v", steps)
	}
	if strings.Join(deltas, "") != "Loaded 3 rows." {
		t.Fatalf("deltas = %v", deltas)
	}

	// Tool call and its result both live on the assistant message.
	first := updated[1]
	if len(chat.Invocations(first, 1, nil)) != 1 {
		t.Fatalf("invocation not recorded: %#v", first.Parts)
	}
}

func TestRunTurnUsesCacheForRepeatCalls(t *testing.T) {
	cache := toolcache.New(0, 0, nil)
	tools := &fakeDispatcher{}

	mock := llm.NewMock(
		toolCallResponse("srv__load_data"),
		llm.Response{Text: "done", StopReason: "end_turn"},
	)
	engine := newTestEngine(mock, tools, cache)
	history, err := engine.RunTurn(stdctx.Background(), []chat.Message{chat.UserMessage("go")}, Events{})
	if err != nil {
		t.Fatalf("first turn: %v", err)
	}
	if len(tools.calls) != 1 {
		t.Fatalf("dispatches after first turn = %d", len(tools.calls))
	}

	// Same call again next turn must come from the cache.
	mock2 := llm.NewMock(
		toolCallResponse("srv__load_data"),
		llm.Response{Text: "done again", StopReason: "end_turn"},
	)
	engine2 := NewEngine(llm.EnsureStreaming(mock2), tools, cache,
		convctx.NewSummarizer(nil, nil), workflow.NewEnricher(nil, nil),
		Config{SystemPrompt: "s"}, nil)

	history = append(history, chat.UserMessage("again"))
	if _, err := engine2.RunTurn(stdctx.Background(), history, Events{}); err != nil {
		t.Fatalf("second turn: %v", err)
	}
	if len(tools.calls) != 1 {
		t.Fatalf("cache miss re-dispatched the tool: %v", tools.calls)
	}
}

func TestRunTurnSummarizesOversizedHistory(t *testing.T) {
	mock := llm.NewMock(llm.Response{Text: "ok", StopReason: "end_turn"})
	engine := NewEngine(llm.EnsureStreaming(mock), nil, nil,
		convctx.NewSummarizer(nil, nil), nil,
		Config{SystemPrompt: "s", SummarizationTrigger: 10, KeepRecent: 2}, nil)

	history := []chat.Message{
		chat.UserMessage(strings.Repeat("old words here ", 50)),
		chat.UserMessage("middle"),
		chat.UserMessage("recent one"),
		chat.UserMessage("recent two"),
	}

	var summarized int
	updated, err := engine.RunTurn(stdctx.Background(), history, Events{
		OnSummarization: func(n int) { summarized = n },
	})
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	if summarized != 2 {
		t.Fatalf("summarized = %d, want 2", summarized)
	}
	// Summary message + 2 recent + 1 assistant reply.
	if len(updated) != 4 {
		t.Fatalf("history = %d messages", len(updated))
	}
	if !strings.HasPrefix(updated[0].Text(), convctx.SummaryPrefix) {
		t.Fatalf("first message is not the summary: %q", updated[0].Text())
	}
}

func TestRunTurnToolFailureBecomesErrorResult(t *testing.T) {
	mock := llm.NewMock(
		toolCallResponse("missing__tool"),
		llm.Response{Text: "could not load", StopReason: "end_turn"},
	)
	engine := newTestEngine(mock, nil, nil)

	updated, err := engine.RunTurn(stdctx.Background(), []chat.Message{chat.UserMessage("go")}, Events{})
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	recs := chat.Invocations(updated[1], 1, nil)
	if len(recs) != 1 || !recs[0].IsError {
		t.Fatalf("expected error invocation: %#v", recs)
	}
}

func TestGraphRebuildsOnlyWhenHistoryChanges(t *testing.T) {
	engine := newTestEngine(llm.NewMock(), nil, nil)
	history := []chat.Message{
		chat.UserMessage("analyze"),
		{ID: "a1", Role: chat.RoleAssistant, Parts: []chat.Part{chat.TextPart{Text: "Found 3 outliers today."}}},
	}

	g1 := engine.Graph(stdctx.Background(), history)
	if len(g1.Nodes) != 1 {
		t.Fatalf("nodes = %d", len(g1.Nodes))
	}

	start := time.Now()
	g2 := engine.Graph(stdctx.Background(), history)
	if time.Since(start) > time.Second {
		t.Fatal("cached graph lookup too slow")
	}
	if len(g2.Nodes) != len(g1.Nodes) {
		t.Fatal("cached graph differs")
	}

	grown := append(history, chat.Message{ID: "a2", Role: chat.RoleAssistant,
		Parts: []chat.Part{chat.TextPart{Text: "Then found 2 more issues."}}})
	g3 := engine.Graph(stdctx.Background(), grown)
	if len(g3.Nodes) != 2 {
		t.Fatalf("rebuilt nodes = %d", len(g3.Nodes))
	}
}
