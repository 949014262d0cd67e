package source

import (
	"regexp"
	"strings"

	"github.com/clerasense/drugfacts-cli/internal/model"
)

const maxInteractions = 20

// Capitalized words that look like drug names in label text but are not.
var nonDrugWords = map[string]struct{}{}

func init() {
	for _, w := range []string{
		"table", "tables", "see", "drug", "drugs", "interaction", "interactions",
		"concomitant", "use", "intervention", "interventions", "effect",
		"effects", "clinical", "impact", "example", "examples", "risk",
		"monitor", "monitoring", "recommendation", "recommendations",
		"mechanism", "warnings", "warning", "precaution", "precautions",
		"description", "may", "can", "should", "when", "avoid", "the",
		"these", "there", "this", "other", "some", "specific", "certain",
		"following", "administration", "dosage", "management", "patients",
		"potential", "information", "note", "important", "based", "data",
		"studies", "study", "results", "increased", "decreased", "however",
		"although", "because", "therefore", "particularly", "combination",
		"combinations", "concurrent", "coadministration", "pharmacokinetic",
		"pharmacodynamic", "efficacy", "safety", "with", "section",
	} {
		nonDrugWords[w] = struct{}{}
	}
}

var (
	bulletSplitRe = regexp.MustCompile(`[•\-–]\s+`)
	drugHeadRe    = regexp.MustCompile(`^(?:\d{1,2}(?:\.\d+)?\s+)?([A-Z][a-zA-Z\-]+(?:\s+[A-Z][a-zA-Z\-]+){0,3})\s*[:\-–(]`)
	drugVerbRe    = regexp.MustCompile(`^(?:\d{1,2}(?:\.\d+)?\s+)?([A-Z][a-zA-Z\-]+(?:\s+[A-Z][a-zA-Z\-]+){0,2})\s+(?:may|can|should|is|are|has|increases?|decreases?|affects?|inhibits?|induces?|reduces?|enhances?|potentiates?)\b`)
)

// splitSegments breaks interaction free text into candidate entries: on
// newlines, and on sentence boundaries followed by a capitalized word.
func splitSegments(raw string) []string {
	var segments []string
	for _, line := range strings.Split(raw, "\n") {
		start := 0
		for i := 0; i+2 < len(line); i++ {
			if line[i] == '.' && line[i+1] == ' ' &&
				line[i+2] >= 'A' && line[i+2] <= 'Z' {
				segments = append(segments, line[start:i+1])
				start = i + 2
			}
		}
		segments = append(segments, line[start:])
	}
	return segments
}

// parseInteractionText extracts structured interaction entries from FDA or
// DailyMed drug-interaction label text. For each segment it takes the first
// capitalized phrase not on the blacklist as the interacting drug and the
// remainder as the description; segments with no plausible name are dropped.
func parseInteractionText(raw string) []model.Interaction {
	var interactions []model.Interaction
	seen := make(map[string]struct{})

	segments := splitSegments(raw)
	if len(segments) <= 2 {
		segments = bulletSplitRe.Split(raw, -1)
	}

	for _, segment := range segments {
		segment = strings.TrimSpace(segment)
		if len(segment) < 15 {
			continue
		}

		match := drugHeadRe.FindStringSubmatchIndex(segment)
		if match == nil {
			match = drugVerbRe.FindStringSubmatchIndex(segment)
		}
		if match == nil {
			continue
		}

		drugName := strings.TrimSpace(segment[match[2]:match[3]])
		valid := false
		for _, w := range strings.Fields(drugName) {
			if _, blacklisted := nonDrugWords[strings.ToLower(w)]; !blacklisted {
				valid = true
				break
			}
		}
		if !valid || len(drugName) < 3 {
			continue
		}

		key := strings.ToLower(drugName)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		desc := strings.Trim(segment[match[1]:], " :-–")
		if desc == "" {
			desc = segment
		}
		if len(desc) > 500 {
			desc = desc[:500]
		}

		interactions = append(interactions, model.Interaction{
			InteractingDrug: drugName,
			Severity:        extractSeverity(segment),
			Description:     desc,
		})
		if len(interactions) >= maxInteractions {
			break
		}
	}

	return interactions
}
