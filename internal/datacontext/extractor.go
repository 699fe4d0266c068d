// Package datacontext scans conversation history for prior tool invocations
// and derives a deduplication summary: which datasets were already loaded and
// what information is already available. The summary is injected into the
// next model invocation so the model reuses data instead of reloading it.
package datacontext

import (
	"fmt"
	"strings"
	"time"

	"github.com/kristerus/nulalabs/internal/chat"
	"github.com/kristerus/nulalabs/internal/logging"
)

// Summary aggregates tool usage over a message window. It is rebuilt fully on
// every turn; no incremental mutation.
type Summary struct {
	ToolCalls            []chat.ToolInvocationRecord
	LoadedDatasets       []string
	AvailableInformation []string
	LastUpdated          time.Time
}

// Extractor builds data-context summaries from message history.
type Extractor struct {
	logger logging.Logger
}

// NewExtractor constructs an extractor. A nil logger is replaced with a no-op.
func NewExtractor(logger logging.Logger) *Extractor {
	return &Extractor{logger: logging.OrNop(logger)}
}

// Build derives a summary from the full message history. Only assistant
// messages are inspected; dataset and information sets dedupe by exact string
// equality.
func (e *Extractor) Build(messages []chat.Message) Summary {
	summary := Summary{LastUpdated: time.Now()}
	datasets := map[string]bool{}
	info := map[string]bool{}

	for idx, msg := range messages {
		if msg.Role != chat.RoleAssistant {
			continue
		}
		for _, rec := range chat.Invocations(msg, idx, e.logger) {
			summary.ToolCalls = append(summary.ToolCalls, rec)

			dataset, infoStrings := inferDatasetInfo(rec.ToolName, rec.Result)
			if dataset != "" && !datasets[dataset] {
				datasets[dataset] = true
				summary.LoadedDatasets = append(summary.LoadedDatasets, dataset)
			}
			for _, s := range infoStrings {
				if !info[s] {
					info[s] = true
					summary.AvailableInformation = append(summary.AvailableInformation, s)
				}
			}
		}
	}
	return summary
}

// inferDatasetInfo classifies a tool heuristically by name substrings. This
// is fuzzy business logic by design; exact coverage is not a goal.
func inferDatasetInfo(toolName string, result any) (dataset string, info []string) {
	lower := strings.ToLower(toolName)

	if strings.Contains(lower, "load") || strings.Contains(lower, "get") || strings.Contains(lower, "read") {
		switch {
		case strings.Contains(lower, "compound"):
			dataset = "Compound list"
			info = append(info, "compound names, formulas, retention times")
		case strings.Contains(lower, "cv"), strings.Contains(lower, "coefficient"):
			dataset = "CV analysis results"
			info = append(info, "CV values by extraction method", "quality metrics (CV distribution, outliers)")
		case strings.Contains(lower, "acquisition"):
			dataset = "Acquisition data"
			info = append(info, "sample acquisition information")
		default:
			dataset = "Dataset"
			info = append(info, "analysis data")
		}
		if count, ok := rowCount(result); ok {
			dataset = fmt.Sprintf("%s (%d rows)", dataset, count)
		}
	}

	if strings.Contains(lower, "analyze") || strings.Contains(lower, "calculate") {
		info = append(info, fmt.Sprintf("%s analysis results", toolName))
	}
	return dataset, info
}

func rowCount(result any) (int, bool) {
	m, ok := result.(map[string]any)
	if !ok {
		return 0, false
	}
	for _, key := range []string{"rowCount", "rows", "length"} {
		switch v := m[key].(type) {
		case float64:
			return int(v), true
		case int:
			return v, true
		}
	}
	return 0, false
}

// FormatForPrompt renders a compact instruction block for the system prompt.
// Returns the empty string when no tool calls exist yet so the first turn is
// not polluted.
func (s Summary) FormatForPrompt() string {
	if len(s.ToolCalls) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("## Previous Data Loaded\n\n")
	if len(s.LoadedDatasets) > 0 {
		fmt.Fprintf(&b, "Datasets: %s\n", strings.Join(s.LoadedDatasets, ", "))
	}
	if len(s.AvailableInformation) > 0 {
		recent := s.AvailableInformation
		if len(recent) > 3 {
			recent = recent[len(recent)-3:]
		}
		fmt.Fprintf(&b, "Info: %s\n", strings.Join(recent, ", "))
	}
	b.WriteString("\nREUSE existing data. Only reload if the user requests new or different data.\n")
	return b.String()
}

// IsRedundant reports whether the exact same call (name plus canonical
// key-sorted argument serialization) was already made this session.
func (s Summary) IsRedundant(toolName string, args map[string]any) bool {
	want := chat.CanonicalArgs(args)
	for _, call := range s.ToolCalls {
		if call.ToolName == toolName && chat.CanonicalArgs(call.Args) == want {
			return true
		}
	}
	return false
}

// CachedResult returns the prior result for an identical call, or nil.
func (s Summary) CachedResult(toolName string, args map[string]any) any {
	want := chat.CanonicalArgs(args)
	for _, call := range s.ToolCalls {
		if call.ToolName == toolName && chat.CanonicalArgs(call.Args) == want {
			return call.Result
		}
	}
	return nil
}
