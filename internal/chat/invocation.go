package chat

import (
	"encoding/json"
	"sort"

	"github.com/kristerus/nulalabs/internal/logging"
)

// ToolInvocationRecord is a read-only pairing of a tool call with its result,
// derived from message parts and never persisted separately.
type ToolInvocationRecord struct {
	ToolName     string         `json:"tool_name"`
	Args         map[string]any `json:"args"`
	Result       any            `json:"result,omitempty"`
	IsError      bool           `json:"is_error,omitempty"`
	MessageID    string         `json:"message_id"`
	MessageIndex int            `json:"message_index"`
	PartIndex    int            `json:"part_index"`
}

// Invocations extracts tool invocation records from one message, matching
// tool-call parts to tool-result parts by call id. A tool-call part without a
// name is skipped with a warning rather than treated as an error.
func Invocations(msg Message, msgIndex int, logger logging.Logger) []ToolInvocationRecord {
	logger = logging.OrNop(logger)

	var records []ToolInvocationRecord
	for i, p := range msg.Parts {
		call, ok := p.(ToolCallPart)
		if !ok {
			continue
		}
		if call.Name == "" {
			logger.Warn("skipping tool call with empty name (message=%s part=%d)", msg.ID, i)
			continue
		}
		rec := ToolInvocationRecord{
			ToolName:     call.Name,
			Args:         call.Args,
			MessageID:    msg.ID,
			MessageIndex: msgIndex,
			PartIndex:    i,
		}
		if rec.Args == nil {
			rec.Args = map[string]any{}
		}
		for _, q := range msg.Parts {
			if res, ok := q.(ToolResultPart); ok && res.CallID == call.CallID {
				rec.Result = res.Result
				rec.IsError = res.IsError
				break
			}
		}
		records = append(records, rec)
	}
	return records
}

// CanonicalArgs serialises an argument map deterministically by sorting keys
// at every nesting level. Two argument maps with equal contents produce equal
// strings regardless of insertion order.
func CanonicalArgs(args map[string]any) string {
	if len(args) == 0 {
		return "{}"
	}
	data, err := json.Marshal(sortedMap(args))
	if err != nil {
		return "{}"
	}
	return string(data)
}

func sortedMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := m[k]
		if nested, ok := v.(map[string]any); ok {
			v = sortedMap(nested)
		}
		out[k] = v
	}
	return out
}
