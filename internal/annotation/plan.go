package annotation

import (
	"regexp"
	"strings"
)

// PlanTag is an extracted <plan> block. Content may contain markdown and code
// fences; extraction is non-recursive, the first enclosing tag wins.
type PlanTag struct {
	Title       string
	Description string
	Content     string
}

var (
	planTagPattern = regexp.MustCompile(`(?s)<plan(?:\s+title="([^"]*)")?(?:\s+description="([^"]*)")?\s*>(.*?)</plan>`)

	planIndicatorPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?im)^##?\s*Plan:`),
		regexp.MustCompile(`(?im)^##?\s*Implementation Plan`),
		regexp.MustCompile(`(?im)^##?\s*Strategy`),
		regexp.MustCompile(`(?im)^##?\s*Approach`),
	}
	numberedStepPattern = regexp.MustCompile(`(?m)(?:^|\n)\d+\.\s+.+`)
	sectionPattern      = regexp.MustCompile(`(?m)(?:^|\n)##\s+.+`)
	stepBulletPattern   = regexp.MustCompile(`(?im)(?:^|\n)[-*]\s+(?:Step|Phase|Task|Action)`)
	headerLinePattern   = regexp.MustCompile(`(?m)^##?\s*(.+?)$`)
)

// ExtractPlanTags returns all explicit <plan> blocks in emission order.
func ExtractPlanTags(text string) []PlanTag {
	var out []PlanTag
	for _, m := range planTagPattern.FindAllStringSubmatch(text, -1) {
		out = append(out, PlanTag{
			Title:       m[1],
			Description: m[2],
			Content:     strings.TrimSpace(m[3]),
		})
	}
	return out
}

// DetectUntaggedPlan recognises planning content that lacks explicit tags: a
// plan-indicator heading combined with numbered steps, sections, or at least
// three step bullets. Returns the whole text as content when detected.
func DetectUntaggedPlan(text string) (PlanTag, bool) {
	indicated := false
	for _, p := range planIndicatorPatterns {
		if p.MatchString(text) {
			indicated = true
			break
		}
	}
	if !indicated {
		return PlanTag{}, false
	}

	structured := numberedStepPattern.MatchString(text) ||
		sectionPattern.MatchString(text) ||
		len(stepBulletPattern.FindAllString(text, -1)) >= 3
	if !structured {
		return PlanTag{}, false
	}

	tag := PlanTag{Content: text}
	if m := headerLinePattern.FindStringSubmatch(text); m != nil {
		tag.Title = strings.TrimSpace(m[1])
	}
	return tag, true
}
