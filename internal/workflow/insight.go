package workflow

import (
	"regexp"
	"strings"

	"github.com/kristerus/nulalabs/internal/annotation"
)

const maxInsightLen = 120

// Sentences opening with these verbs describe activity, not findings.
var actionVerbOpeners = []string{
	"loading", "calling", "running", "executing",
	"processing", "using", "analyzing", "checking",
}

// First-person openers that carry no information about results.
var vacuousOpeners = []string{"let me", "i will", "i can", "i'll"}

// A sentence mentioning one of these likely states a finding.
var resultKeywords = []string{
	"found", "detected", "identified", "shows",
	"contains", "reveals", "has", "were", "are",
}

var (
	markdownBold   = regexp.MustCompile(`\*\*([^*]+)\*\*`)
	markdownItalic = regexp.MustCompile(`\*([^*]+)\*`)
	markdownCode   = regexp.MustCompile("`([^`]+)`")
	markdownLink   = regexp.MustCompile(`\[([^\]]+)\]\([^)]*\)`)
	markdownHeader = regexp.MustCompile(`(?m)^#{1,6}\s*`)
	bulletMarker   = regexp.MustCompile(`(?m)^\s*[-*]\s+`)
	sentenceEnd    = regexp.MustCompile(`[.!?]\s+|\n+`)
	digitPattern   = regexp.MustCompile(`\d`)
)

// HeuristicInsight extracts a one-line finding from reasoning text without a
// model call. Sentences describing activity rather than results are skipped;
// sentences carrying numbers or result language are preferred. Returns the
// empty string when nothing qualifies.
func HeuristicInsight(text string) string {
	clean := stripMarkdown(annotation.StripWorkflowTags(text))
	if clean == "" {
		return ""
	}

	var candidates []string
	for _, raw := range sentenceEnd.Split(clean, -1) {
		s := strings.TrimSpace(raw)
		if len(s) < 15 {
			continue
		}
		lower := strings.ToLower(s)
		if hasOpener(lower, vacuousOpeners) || hasOpener(lower, actionVerbOpeners) {
			continue
		}
		candidates = append(candidates, s)
	}
	if len(candidates) == 0 {
		return ""
	}

	for _, s := range candidates {
		lower := strings.ToLower(s)
		if digitPattern.MatchString(s) || containsWord(lower, resultKeywords) {
			return truncateInsight(s)
		}
	}
	return truncateInsight(candidates[0])
}

func hasOpener(lower string, openers []string) bool {
	for _, o := range openers {
		if strings.HasPrefix(lower, o) {
			return true
		}
	}
	return false
}

func containsWord(lower string, words []string) bool {
	for _, w := range words {
		if strings.Contains(lower, " "+w+" ") ||
			strings.HasPrefix(lower, w+" ") ||
			strings.HasSuffix(lower, " "+w) {
			return true
		}
	}
	return false
}

func stripMarkdown(text string) string {
	text = markdownLink.ReplaceAllString(text, "$1")
	text = markdownBold.ReplaceAllString(text, "$1")
	text = markdownItalic.ReplaceAllString(text, "$1")
	text = markdownCode.ReplaceAllString(text, "$1")
	text = markdownHeader.ReplaceAllString(text, "")
	text = bulletMarker.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

func truncateInsight(s string) string {
	runes := []rune(s)
	if len(runes) <= maxInsightLen {
		return s
	}
	return strings.TrimSpace(string(runes[:maxInsightLen])) + "..."
}
