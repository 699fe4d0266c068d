// Package annotation extracts inline structured signals the model embeds in
// its own free text: workflow phase tags, plan blocks, and the answer and
// follow-up delimiters. Matching is tolerant — a malformed tag is "no
// signal", never an error.
package annotation

import (
	"regexp"
	"strings"
)

// Wire-format delimiters the model is instructed to emit.
const (
	AnswerDelimiter   = "---ANSWER---"
	FollowupDelimiter = "---FOLLOWUP---"
)

// Tag is a parsed [WORKFLOW: ...] annotation.
type Tag struct {
	IsParallel  bool
	Phase       string
	Insight     string
	Description string
}

// LocatedTag pairs a tag with its character offset in the source text.
type LocatedTag struct {
	Tag    Tag
	Offset int
}

// Attribute order is fixed as the model writes it: type, then optional phase,
// then optional insight. WORKFLOW and the type values match case-insensitively.
var workflowPattern = regexp.MustCompile(`(?i)\[WORKFLOW:\s*type="(parallel|sequential)"(?:\s+phase="([^"]+)")?(?:\s+insight="([^"]+)")?\]`)

// ExtractWorkflowTag returns the first workflow tag in text, or nil when none
// matches. Absent phase/insight attributes leave the fields empty.
func ExtractWorkflowTag(text string) *Tag {
	if text == "" {
		return nil
	}
	match := workflowPattern.FindStringSubmatch(text)
	if match == nil {
		return nil
	}
	return &Tag{
		IsParallel:  strings.EqualFold(match[1], "parallel"),
		Phase:       match[2],
		Insight:     match[3],
		Description: match[0],
	}
}

// ExtractAllWorkflowTags returns every workflow tag with its offset, in
// emission order.
func ExtractAllWorkflowTags(text string) []LocatedTag {
	if text == "" {
		return nil
	}
	var out []LocatedTag
	for _, loc := range workflowPattern.FindAllStringSubmatchIndex(text, -1) {
		match := workflowPattern.FindStringSubmatch(text[loc[0]:loc[1]])
		if match == nil {
			continue
		}
		out = append(out, LocatedTag{
			Tag: Tag{
				IsParallel:  strings.EqualFold(match[1], "parallel"),
				Phase:       match[2],
				Insight:     match[3],
				Description: match[0],
			},
			Offset: loc[0],
		})
	}
	return out
}

// HasWorkflowTag reports whether text contains any workflow annotation.
func HasWorkflowTag(text string) bool {
	return text != "" && workflowPattern.MatchString(text)
}

// StripWorkflowTags removes every workflow annotation span from text.
func StripWorkflowTags(text string) string {
	if text == "" {
		return text
	}
	return strings.TrimSpace(workflowPattern.ReplaceAllString(text, ""))
}
