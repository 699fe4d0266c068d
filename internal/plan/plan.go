// Package plan captures analysis plans the assistant proposes, whether
// explicitly tagged or recognized from structured prose, and persists them
// per session for later retrieval.
package plan

import (
	"strings"
	"time"

	"github.com/kristerus/nulalabs/internal/annotation"
	"github.com/kristerus/nulalabs/internal/chat"
)

// Status tracks a plan through its lifecycle.
type Status string

const (
	StatusProposed  Status = "proposed"
	StatusExecuting Status = "executing"
	StatusCompleted Status = "completed"
)

// Record is one persisted plan.
type Record struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"sessionId"`
	Timestamp   time.Time `json:"timestamp"`
	Title       string    `json:"title,omitempty"`
	Description string    `json:"description,omitempty"`
	PlanText    string    `json:"planText"`
	ToolsUsed   []string  `json:"toolsUsed,omitempty"`
	UserQuery   string    `json:"userQuery,omitempty"`
	Status      Status    `json:"status"`
}

// ExtractFromMessages walks the history and collects every plan the
// assistant emitted: explicit <plan> tags first, then untagged structured
// plans. ToolsUsed aggregates the tools invoked after the plan appeared.
func ExtractFromMessages(sessionID string, messages []chat.Message) []Record {
	var records []Record
	var lastUserQuery string

	for idx, msg := range messages {
		if msg.Role == chat.RoleUser {
			if text := strings.TrimSpace(msg.Text()); text != "" {
				lastUserQuery = text
			}
			continue
		}
		if msg.Role != chat.RoleAssistant {
			continue
		}

		text := msg.Text()
		tags := annotation.ExtractPlanTags(text)
		if len(tags) == 0 {
			if tag, ok := annotation.DetectUntaggedPlan(text); ok {
				tags = []annotation.PlanTag{tag}
			}
		}
		if len(tags) == 0 {
			continue
		}

		tools := toolsFromIndex(messages, idx)
		for _, tag := range tags {
			records = append(records, Record{
				ID:          chat.NewMessageID(),
				SessionID:   sessionID,
				Timestamp:   time.Now(),
				Title:       tag.Title,
				Description: tag.Description,
				PlanText:    tag.Content,
				ToolsUsed:   tools,
				UserQuery:   lastUserQuery,
				Status:      planStatus(messages, idx),
			})
		}
	}
	return records
}

// toolsFromIndex collects distinct tool names used at or after the plan's
// message.
func toolsFromIndex(messages []chat.Message, from int) []string {
	seen := map[string]bool{}
	var tools []string
	for i := from; i < len(messages); i++ {
		if messages[i].Role != chat.RoleAssistant {
			continue
		}
		for _, rec := range chat.Invocations(messages[i], i, nil) {
			if !seen[rec.ToolName] {
				seen[rec.ToolName] = true
				tools = append(tools, rec.ToolName)
			}
		}
	}
	return tools
}

// planStatus infers how far the plan got: executing once any later message
// calls tools, completed when the conversation moved past tool usage.
func planStatus(messages []chat.Message, planIdx int) Status {
	sawTools := false
	for i := planIdx + 1; i < len(messages); i++ {
		if messages[i].Role != chat.RoleAssistant {
			continue
		}
		if len(chat.Invocations(messages[i], i, nil)) > 0 {
			sawTools = true
		}
	}
	if !sawTools {
		return StatusProposed
	}
	last := messages[len(messages)-1]
	if last.Role == chat.RoleAssistant && len(chat.Invocations(last, len(messages)-1, nil)) == 0 {
		return StatusCompleted
	}
	return StatusExecuting
}
