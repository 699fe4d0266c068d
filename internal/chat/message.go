package chat

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single conversation turn. Messages are immutable once
// received; derived structures are rebuilt from scratch rather than patching
// messages in place.
type Message struct {
	ID    string `json:"id"`
	Role  Role   `json:"role"`
	Parts []Part `json:"parts"`
}

// NewMessageID returns a fresh message identifier.
func NewMessageID() string {
	return uuid.NewString()
}

// UserMessage builds a single-text-part user message.
func UserMessage(text string) Message {
	return Message{ID: NewMessageID(), Role: RoleUser, Parts: []Part{TextPart{Text: text}}}
}

// Text concatenates all text-bearing parts, space separated.
func (m Message) Text() string {
	var parts []string
	for _, p := range m.Parts {
		if tp, ok := p.(TextPart); ok {
			parts = append(parts, tp.Text)
		}
	}
	return strings.Join(parts, " ")
}

// ReasoningText returns the reasoning parts joined by newlines. When a message
// carries no reasoning parts, all text parts are joined instead so callers can
// still inspect the narrative.
func (m Message) ReasoningText() string {
	var reasoning []string
	for _, p := range m.Parts {
		if rp, ok := p.(ReasoningPart); ok {
			reasoning = append(reasoning, rp.Text)
		}
	}
	if len(reasoning) > 0 {
		return strings.Join(reasoning, "\n")
	}
	var texts []string
	for _, p := range m.Parts {
		if tp, ok := p.(TextPart); ok {
			texts = append(texts, tp.Text)
		}
	}
	return strings.Join(texts, "\n")
}

// PartKind tags the closed set of message part variants.
type PartKind string

const (
	PartText       PartKind = "text"
	PartReasoning  PartKind = "reasoning"
	PartToolCall   PartKind = "tool-call"
	PartToolResult PartKind = "tool-result"
)

// Part is one element of a message. The set of implementations is closed:
// TextPart, ReasoningPart, ToolCallPart, ToolResultPart.
type Part interface {
	Kind() PartKind
}

// TextPart carries visible assistant or user text.
type TextPart struct {
	Text string `json:"text"`
}

func (TextPart) Kind() PartKind { return PartText }

// ReasoningPart carries model reasoning that is not shown verbatim to the user.
type ReasoningPart struct {
	Text string `json:"text"`
}

func (ReasoningPart) Kind() PartKind { return PartReasoning }

// ToolCallPart records a model request to execute a named tool.
type ToolCallPart struct {
	CallID string         `json:"call_id"`
	Name   string         `json:"name"`
	Args   map[string]any `json:"args"`
}

func (ToolCallPart) Kind() PartKind { return PartToolCall }

// ToolResultPart records the outcome of a tool call, matched by CallID.
type ToolResultPart struct {
	CallID  string `json:"call_id"`
	Result  any    `json:"result"`
	IsError bool   `json:"is_error,omitempty"`
}

func (ToolResultPart) Kind() PartKind { return PartToolResult }

type partEnvelope struct {
	Type    PartKind        `json:"type"`
	Text    string          `json:"text,omitempty"`
	CallID  string          `json:"call_id,omitempty"`
	Name    string          `json:"name,omitempty"`
	Args    map[string]any  `json:"args,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	IsError bool            `json:"is_error,omitempty"`
}

// MarshalJSON encodes the message with an explicit type tag per part.
func (m Message) MarshalJSON() ([]byte, error) {
	envelopes := make([]partEnvelope, 0, len(m.Parts))
	for _, p := range m.Parts {
		env := partEnvelope{Type: p.Kind()}
		switch v := p.(type) {
		case TextPart:
			env.Text = v.Text
		case ReasoningPart:
			env.Text = v.Text
		case ToolCallPart:
			env.CallID = v.CallID
			env.Name = v.Name
			env.Args = v.Args
		case ToolResultPart:
			env.CallID = v.CallID
			env.IsError = v.IsError
			raw, err := json.Marshal(v.Result)
			if err != nil {
				return nil, fmt.Errorf("marshal tool result: %w", err)
			}
			env.Result = raw
		}
		envelopes = append(envelopes, env)
	}
	type alias struct {
		ID    string         `json:"id"`
		Role  Role           `json:"role"`
		Parts []partEnvelope `json:"parts"`
	}
	return json.Marshal(alias{ID: m.ID, Role: m.Role, Parts: envelopes})
}

// UnmarshalJSON decodes the tagged part envelopes back into variants. Unknown
// part types are dropped rather than failing the whole message.
func (m *Message) UnmarshalJSON(data []byte) error {
	var aux struct {
		ID    string         `json:"id"`
		Role  Role           `json:"role"`
		Parts []partEnvelope `json:"parts"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	m.ID = aux.ID
	m.Role = aux.Role
	m.Parts = m.Parts[:0]
	for _, env := range aux.Parts {
		switch env.Type {
		case PartText:
			m.Parts = append(m.Parts, TextPart{Text: env.Text})
		case PartReasoning:
			m.Parts = append(m.Parts, ReasoningPart{Text: env.Text})
		case PartToolCall:
			m.Parts = append(m.Parts, ToolCallPart{CallID: env.CallID, Name: env.Name, Args: env.Args})
		case PartToolResult:
			var result any
			if len(env.Result) > 0 {
				if err := json.Unmarshal(env.Result, &result); err != nil {
					result = string(env.Result)
				}
			}
			m.Parts = append(m.Parts, ToolResultPart{CallID: env.CallID, Result: result, IsError: env.IsError})
		}
	}
	return nil
}

// Signature returns a stable fingerprint of a message list, used to detect
// whether an in-flight graph rebuild has been superseded by a newer snapshot.
func Signature(messages []Message) string {
	h := sha256.New()
	for _, m := range messages {
		fmt.Fprintf(h, "%s|%s|%d;", m.ID, m.Role, len(m.Parts))
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}
