package annotation

import "strings"

// ExtractFollowupTag returns the suggested next question after the first
// ---FOLLOWUP--- delimiter, or ("", false) when no delimiter or no trailing
// text exists.
func ExtractFollowupTag(text string) (string, bool) {
	idx := strings.Index(text, FollowupDelimiter)
	if idx < 0 {
		return "", false
	}
	followup := strings.TrimSpace(text[idx+len(FollowupDelimiter):])
	if followup == "" {
		return "", false
	}
	return followup, true
}

// StripFollowupTag removes the delimiter and everything after it so the
// follow-up never appears in the displayed answer.
func StripFollowupTag(text string) string {
	idx := strings.Index(text, FollowupDelimiter)
	if idx < 0 {
		return text
	}
	return strings.TrimSpace(text[:idx])
}
