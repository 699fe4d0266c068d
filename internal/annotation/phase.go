package annotation

import (
	"regexp"
	"strings"
)

// Recommended phase vocabulary. Free-text phases from annotations are used
// verbatim; these labels are what the keyword fallback can produce.
const (
	PhaseDataLoading      = "Data Loading"
	PhaseQCAssessment     = "QC Assessment"
	PhasePreprocessing    = "Data Preprocessing"
	PhaseDimReduction     = "Dimensionality Reduction"
	PhaseStatTesting      = "Statistical Testing"
	PhaseComparative      = "Comparative Analysis"
	PhaseExploratory      = "Exploratory Analysis"
	PhaseVisualization    = "Visualization"
	PhaseDefault          = "Analysis"
)

var phaseAttrPattern = regexp.MustCompile(`(?i)phase="([^"]+)"`)

// PhaseRule maps a predicate over lowercased text to a phase label. The rule
// set is ordered; the first matching rule wins.
type PhaseRule struct {
	Match func(lower string) bool
	Phase string
}

func containsAny(subs ...string) func(string) bool {
	return func(lower string) bool {
		for _, s := range subs {
			if strings.Contains(lower, s) {
				return true
			}
		}
		return false
	}
}

// textPhaseRules infer a phase from reasoning prose.
var textPhaseRules = []PhaseRule{
	{containsAny("loading", "load data"), PhaseDataLoading},
	{containsAny("qc", "quality", "coefficient of variation"), PhaseQCAssessment},
	{containsAny("preprocess", "normalize", "transform"), PhasePreprocessing},
	{containsAny("pca", "dimensionality"), PhaseDimReduction},
	{containsAny("statistical", "test", "compare"), PhaseStatTesting},
	{containsAny("exploratory", "explore"), PhaseExploratory},
	{containsAny("visualiz"), PhaseVisualization},
}

// toolPhaseRules infer a phase from tool names.
var toolPhaseRules = []PhaseRule{
	{containsAny("load", "read", "fetch", "get_data"), PhaseDataLoading},
	{containsAny("cv", "coefficient", "quality", "qc", "check", "validate", "replicate"), PhaseQCAssessment},
	{containsAny("normalize", "transform", "filter", "clean", "preprocess", "impute", "scale"), PhasePreprocessing},
	{containsAny("pca", "tsne", "umap", "dimension", "cluster"), PhaseDimReduction},
	{containsAny("stat", "test", "compare", "anova", "ttest", "correlation", "regression"), PhaseStatTesting},
	{containsAny("difference", "between", "contrast"), PhaseComparative},
	{containsAny("explore", "summarize", "describe", "distribution"), PhaseExploratory},
	{containsAny("plot", "chart", "visualiz", "graph"), PhaseVisualization},
}

// ExtractPhaseHint infers a phase label for reasoning text. An explicit
// phase="..." attribute wins; otherwise the keyword rules apply. Returns
// ("", false) when nothing matches — callers keep their own default.
func ExtractPhaseHint(text string) (string, bool) {
	if text == "" {
		return "", false
	}
	if m := phaseAttrPattern.FindStringSubmatch(text); m != nil {
		return m[1], true
	}
	lower := strings.ToLower(text)
	for _, rule := range textPhaseRules {
		if rule.Match(lower) {
			return rule.Phase, true
		}
	}
	return "", false
}

// PhaseFromToolNames infers a phase from the tools an assistant turn invoked,
// consulting reasoning text for an explicit attribute first. Falls back to
// the default phase label when nothing matches.
func PhaseFromToolNames(toolNames []string, reasoningText string) string {
	if len(toolNames) == 0 {
		return PhaseDefault
	}
	if m := phaseAttrPattern.FindStringSubmatch(reasoningText); m != nil {
		return m[1]
	}
	joined := strings.ToLower(strings.Join(toolNames, " "))
	for _, rule := range toolPhaseRules {
		if rule.Match(joined) {
			return rule.Phase
		}
	}
	return PhaseDefault
}

// SplitAnswer separates internal reasoning from the visible answer at the
// first ---ANSWER--- delimiter. Without a delimiter the whole text counts as
// both reasoning and answer.
func SplitAnswer(text string) (reasoning, answer string) {
	idx := strings.Index(text, AnswerDelimiter)
	if idx < 0 {
		return text, text
	}
	return strings.TrimSpace(text[:idx]), strings.TrimSpace(text[idx+len(AnswerDelimiter):])
}
