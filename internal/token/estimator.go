// Package token approximates token cost from character length. The estimate
// is deliberately coarse and conservative: over-estimating triggers
// summarization early instead of risking context overflow. An exact
// tiktoken-backed counter is available separately for bounding prompt text.
package token

import (
	"encoding/json"

	"github.com/kristerus/nulalabs/internal/chat"
)

const (
	// CharsPerToken is the assumed average characters per token. Calibrate
	// per model family; 4 matches OpenAI/Anthropic English text averages.
	CharsPerToken = 4

	// DefaultSummarizationTrigger is the token total above which the
	// conversation should be summarized.
	DefaultSummarizationTrigger = 30000
)

// EstimateText estimates tokens for a plain string: ceil(len/CharsPerToken).
func EstimateText(text string) int {
	if text == "" {
		return 0
	}
	return (len(text) + CharsPerToken - 1) / CharsPerToken
}

// Message estimates tokens for one message: role label plus all text parts
// plus, for tool invocations, tool name and serialized arguments and results.
func Message(msg chat.Message) int {
	chars := len(msg.Role)
	for _, p := range msg.Parts {
		switch v := p.(type) {
		case chat.TextPart:
			chars += len(v.Text)
		case chat.ReasoningPart:
			chars += len(v.Text)
		case chat.ToolCallPart:
			chars += len(v.Name)
			chars += len(chat.CanonicalArgs(v.Args))
		case chat.ToolResultPart:
			if v.Result != nil {
				if data, err := json.Marshal(v.Result); err == nil {
					chars += len(data)
				}
			}
		}
	}
	return (chars + CharsPerToken - 1) / CharsPerToken
}

// Messages estimates tokens for a message list.
func Messages(msgs []chat.Message) int {
	total := 0
	for _, m := range msgs {
		total += Message(m)
	}
	return total
}

// ToolSchemas estimates tokens for a tool definition set by serializing it.
func ToolSchemas(tools []chat.ToolDefinition) int {
	if len(tools) == 0 {
		return 0
	}
	data, err := json.Marshal(tools)
	if err != nil {
		return 0
	}
	return EstimateText(string(data))
}

// ContextSize reports the estimated token footprint of a full model
// invocation and whether it exceeds the summarization trigger.
type ContextSize struct {
	SystemTokens     int  `json:"system_tokens"`
	MessageTokens    int  `json:"message_tokens"`
	ToolTokens       int  `json:"tool_tokens"`
	Total            int  `json:"total"`
	ExceedsThreshold bool `json:"exceeds_threshold"`
}

// Size computes the context footprint against the given trigger. A trigger
// of zero or less falls back to DefaultSummarizationTrigger.
func Size(systemPrompt string, msgs []chat.Message, tools []chat.ToolDefinition, trigger int) ContextSize {
	if trigger <= 0 {
		trigger = DefaultSummarizationTrigger
	}
	size := ContextSize{
		SystemTokens:  EstimateText(systemPrompt),
		MessageTokens: Messages(msgs),
		ToolTokens:    ToolSchemas(tools),
	}
	size.Total = size.SystemTokens + size.MessageTokens + size.ToolTokens
	size.ExceedsThreshold = size.Total > trigger
	return size
}
