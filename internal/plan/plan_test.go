package plan

import (
	"testing"
	"time"

	"github.com/kristerus/nulalabs/internal/chat"
)

func planMessage(text string) chat.Message {
	return chat.Message{
		ID:    chat.NewMessageID(),
		Role:  chat.RoleAssistant,
		Parts: []chat.Part{chat.TextPart{Text: text}},
	}
}

func toolMessage(name string) chat.Message {
	return chat.Message{
		ID:   chat.NewMessageID(),
		Role: chat.RoleAssistant,
		Parts: []chat.Part{
			chat.ToolCallPart{CallID: "c1", Name: name},
			chat.ToolResultPart{CallID: "c1", Result: "ok"},
		},
	}
}

func TestExtractTaggedPlan(t *testing.T) {
	msgs := []chat.Message{
		chat.UserMessage("plan the QC workflow"),
		planMessage(`<plan title="QC Plan" description="three steps">1. load
2. compute CV
3. flag</plan>`),
	}

	records := ExtractFromMessages("sess-1", msgs)
	if len(records) != 1 {
		t.Fatalf("records = %d", len(records))
	}
	r := records[0]
	if r.Title != "QC Plan" || r.Description != "three steps" {
		t.Fatalf("unexpected record: %+v", r)
	}
	if r.UserQuery != "plan the QC workflow" {
		t.Fatalf("user query = %q", r.UserQuery)
	}
	if r.SessionID != "sess-1" || r.Status != StatusProposed {
		t.Fatalf("session/status: %+v", r)
	}
}

func TestExtractUntaggedPlan(t *testing.T) {
	msgs := []chat.Message{
		planMessage("## Plan: QC workflow\n\n1. Load data\n2. Compute CV"),
	}
	records := ExtractFromMessages("s", msgs)
	if len(records) != 1 {
		t.Fatalf("untagged plan not detected: %d", len(records))
	}
	if records[0].Title != "Plan: QC workflow" {
		t.Fatalf("title = %q", records[0].Title)
	}
}

func TestPlanStatusProgression(t *testing.T) {
	planMsg := planMessage("<plan>1. load\n2. check</plan>")

	executing := []chat.Message{planMsg, toolMessage("load_data")}
	records := ExtractFromMessages("s", executing)
	if records[0].Status != StatusExecuting {
		t.Fatalf("status = %q, want executing", records[0].Status)
	}

	completed := append(executing, planMessage("All done, CV looks fine."))
	records = ExtractFromMessages("s", completed)
	if records[0].Status != StatusCompleted {
		t.Fatalf("status = %q, want completed", records[0].Status)
	}
	if len(records[0].ToolsUsed) != 1 || records[0].ToolsUsed[0] != "load_data" {
		t.Fatalf("tools = %v", records[0].ToolsUsed)
	}
}

func TestNonPlanMessagesIgnored(t *testing.T) {
	msgs := []chat.Message{
		chat.UserMessage("hi"),
		planMessage("Just a normal answer with no structure."),
	}
	if records := ExtractFromMessages("s", msgs); len(records) != 0 {
		t.Fatalf("expected no plans, got %d", len(records))
	}
}

func TestStoreSaveAndLoadAll(t *testing.T) {
	store, err := NewStore(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	base := time.Now()
	for i, title := range []string{"first", "second"} {
		rec := Record{
			ID:        chat.NewMessageID(),
			SessionID: "sess-1",
			Timestamp: base.Add(time.Duration(i) * time.Second),
			Title:     title,
			PlanText:  "1. do things",
			Status:    StatusProposed,
		}
		if err := store.Save(rec); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}
	other := Record{ID: "x", SessionID: "other", Timestamp: base, PlanText: "p", Status: StatusProposed}
	if err := store.Save(other); err != nil {
		t.Fatalf("Save other: %v", err)
	}

	records, err := store.LoadAll("sess-1")
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("records = %d", len(records))
	}
	if records[0].Title != "first" || records[1].Title != "second" {
		t.Fatalf("order wrong: %v %v", records[0].Title, records[1].Title)
	}
}

func TestStoreCleanup(t *testing.T) {
	store, err := NewStore(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	rec := Record{ID: "a", SessionID: "s", Timestamp: time.Now(), PlanText: "p", Status: StatusProposed}
	if err := store.Save(rec); err != nil {
		t.Fatalf("Save: %v", err)
	}

	removed, err := store.Cleanup(0)
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed = %d", removed)
	}
	records, _ := store.LoadAll("s")
	if len(records) != 0 {
		t.Fatalf("records remain: %d", len(records))
	}
}
