package context

import (
	stdctx "context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/kristerus/nulalabs/internal/chat"
	"github.com/kristerus/nulalabs/internal/llm"
)

func conversation(n int) []chat.Message {
	msgs := make([]chat.Message, 0, n)
	for i := 0; i < n; i++ {
		if i%2 == 0 {
			msgs = append(msgs, chat.UserMessage(fmt.Sprintf("question %d", i)))
			continue
		}
		msgs = append(msgs, chat.Message{
			ID:   chat.NewMessageID(),
			Role: chat.RoleAssistant,
			Parts: []chat.Part{
				chat.TextPart{Text: fmt.Sprintf("answer %d", i)},
				chat.ToolCallPart{CallID: fmt.Sprintf("c%d", i), Name: "load_data"},
			},
		})
	}
	return msgs
}

func TestSummarizeNoOpWhenHistoryFits(t *testing.T) {
	s := NewSummarizer(nil, nil)
	msgs := conversation(5)

	result := s.Summarize(stdctx.Background(), msgs, 5)
	if result.Summarized() {
		t.Fatal("short history must not be summarized")
	}
	if len(result.RecentMessages) != 5 || result.SummaryText != "" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestSummarizeCoversAllOlderMessages(t *testing.T) {
	mock := llm.NewMock(llm.Response{Text: "User loaded compounds and computed CV."})
	s := NewSummarizer(mock, nil)
	msgs := conversation(12)

	result := s.Summarize(stdctx.Background(), msgs, 5)
	if result.SummarizedCount != 7 {
		t.Fatalf("summarized count = %d, want 7", result.SummarizedCount)
	}
	if len(result.RecentMessages) != 5 {
		t.Fatalf("recent = %d, want 5", len(result.RecentMessages))
	}
	if result.RecentMessages[4].ID != msgs[11].ID {
		t.Fatal("recent window must be the trailing messages")
	}
	if result.SummaryText != "User loaded compounds and computed CV." {
		t.Fatalf("summary = %q", result.SummaryText)
	}
}

func TestSummarizeFallbackOnModelError(t *testing.T) {
	mock := llm.NewMock()
	mock.Fail(errors.New("provider down"))
	s := NewSummarizer(mock, nil)

	result := s.Summarize(stdctx.Background(), conversation(10), 5)
	if !result.Summarized() {
		t.Fatal("expected summarization despite model failure")
	}
	want := "Previous conversation (5 messages): User interacted with the assistant, calling tools including: load_data."
	if result.SummaryText != want {
		t.Fatalf("fallback = %q, want %q", result.SummaryText, want)
	}
}

func TestFallbackWithoutToolCalls(t *testing.T) {
	s := NewSummarizer(nil, nil)
	msgs := []chat.Message{
		chat.UserMessage("a"), chat.UserMessage("b"),
		chat.UserMessage("c"), chat.UserMessage("d"),
		chat.UserMessage("e"), chat.UserMessage("f"),
	}

	result := s.Summarize(stdctx.Background(), msgs, 5)
	want := "Previous conversation (1 messages): User interacted with the assistant."
	if result.SummaryText != want {
		t.Fatalf("fallback = %q", result.SummaryText)
	}
}

func TestSummaryMessageCarriesPrefix(t *testing.T) {
	msg := SummaryMessage("the gist")
	if msg.Role != chat.RoleAssistant {
		t.Fatalf("role = %q", msg.Role)
	}
	if !strings.HasPrefix(msg.Text(), SummaryPrefix) {
		t.Fatalf("missing prefix: %q", msg.Text())
	}
	if !strings.Contains(msg.Text(), "the gist") {
		t.Fatalf("missing body: %q", msg.Text())
	}
}

func TestRenderTranscriptIncludesToolBullets(t *testing.T) {
	msgs := conversation(4)
	transcript := renderTranscript(msgs)
	if !strings.Contains(transcript, "USER: question 0") {
		t.Fatalf("user line missing: %q", transcript)
	}
	if !strings.Contains(transcript, "[tool: load_data]") {
		t.Fatalf("tool bullet missing: %q", transcript)
	}
	if !strings.Contains(transcript, transcriptSeparator) {
		t.Fatal("separator missing")
	}
}

func TestLoadTemplatesFallsBackOnBlank(t *testing.T) {
	tpls, err := LoadTemplates([]byte("prompt: \"\"\nfallback: \"\"\n"))
	if err != nil {
		t.Fatalf("LoadTemplates: %v", err)
	}
	got := tpls.RenderFallback(3, []string{"a", "b"})
	if !strings.Contains(got, "3 messages") || !strings.Contains(got, "a, b") {
		t.Fatalf("default fallback not applied: %q", got)
	}

	custom, err := LoadTemplates([]byte("fallback: \"Condensed {{.Count}} turns.\"\n"))
	if err != nil {
		t.Fatalf("LoadTemplates custom: %v", err)
	}
	if got := custom.RenderFallback(4, nil); got != "Condensed 4 turns." {
		t.Fatalf("custom fallback = %q", got)
	}
}
