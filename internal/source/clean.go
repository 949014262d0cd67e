package source

import (
	"regexp"
	"strings"

	"github.com/clerasense/drugfacts-cli/internal/model"
)

const defaultMaxLen = 3000

var (
	tagRe        = regexp.MustCompile(`<[^>]+>`)
	spaceRe      = regexp.MustCompile(`\s+`)
	sectionNumRe = regexp.MustCompile(`\b\d{1,2}(?:\.\d{1,2})?\s+[A-Z][A-Z\s,&/\-]{3,50}\b`)
	capsHeaderRe = regexp.MustCompile(`\b[A-Z]{4,}(?:\s+(?:AND|OR|IN|OF|FOR|THE|WITH)\s+[A-Z]{3,})*\b`)
)

// cleanLabelText normalizes raw label text: strips markup, numbered section
// headers and ALL-CAPS section titles, collapses whitespace, and truncates.
func cleanLabelText(parts []string, maxLen int) string {
	if maxLen <= 0 {
		maxLen = defaultMaxLen
	}
	joined := strings.Join(parts, " ")
	if strings.TrimSpace(joined) == "" {
		return ""
	}
	cleaned := tagRe.ReplaceAllString(joined, " ")
	cleaned = spaceRe.ReplaceAllString(cleaned, " ")
	cleaned = sectionNumRe.ReplaceAllString(cleaned, " ")
	cleaned = capsHeaderRe.ReplaceAllString(cleaned, " ")
	cleaned = strings.TrimSpace(spaceRe.ReplaceAllString(cleaned, " "))
	if len(cleaned) > maxLen {
		cleaned = cleaned[:maxLen] + "..."
	}
	return cleaned
}

// cleanXMLText strips tags and squeezes whitespace without the section-header
// heuristics; SPL XML text nodes carry no numbered headers.
func cleanXMLText(text string, maxLen int) string {
	if maxLen <= 0 {
		maxLen = defaultMaxLen
	}
	if strings.TrimSpace(text) == "" {
		return ""
	}
	cleaned := tagRe.ReplaceAllString(text, " ")
	cleaned = strings.TrimSpace(spaceRe.ReplaceAllString(cleaned, " "))
	if len(cleaned) > maxLen {
		cleaned = cleaned[:maxLen] + "..."
	}
	return cleaned
}

// extractSeverity assigns an interaction severity from description text.
func extractSeverity(text string) model.Severity {
	lower := strings.ToLower(text)
	for _, w := range []string{"contraindicated", "fatal", "death", "do not use"} {
		if strings.Contains(lower, w) {
			return model.SeverityContraindicated
		}
	}
	for _, w := range []string{"serious", "severe", "major", "significant", "avoid"} {
		if strings.Contains(lower, w) {
			return model.SeverityMajor
		}
	}
	for _, w := range []string{"moderate", "caution", "monitor closely"} {
		if strings.Contains(lower, w) {
			return model.SeverityModerate
		}
	}
	return model.SeverityMinor
}
