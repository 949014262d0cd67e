// Package verify cross-checks drug data returned by multiple authoritative
// sources and merges it into one record before anything reaches the store.
//
// Rules:
//  1. A drug should appear in at least two independent sources.
//  2. Critical safety fields must agree across sources; disagreement is
//     recorded as a conflict, never silently resolved.
//  3. Non-critical fields merge by preferring the most detailed version.
//  4. Interactions union-merge with the highest severity winning.
package verify

import (
	"fmt"
	"strings"

	"github.com/clerasense/drugfacts-cli/internal/model"
)

// AgreementThreshold is the minimum text similarity for two safety
// descriptions to count as agreeing.
const AgreementThreshold = 0.35

// MinSourcesRequired is how many sources must return data for full
// verification confidence.
const MinSourcesRequired = 2

// Authoritative class overrides for commonly misclassified drugs. APIs
// sometimes return a combo-product class even for single-ingredient queries.
var drugClassOverrides = map[string]string{
	"metformin":           "Biguanide Antihyperglycemic",
	"atorvastatin":        "HMG-CoA Reductase Inhibitor (Statin)",
	"simvastatin":         "HMG-CoA Reductase Inhibitor (Statin)",
	"rosuvastatin":        "HMG-CoA Reductase Inhibitor (Statin)",
	"ibuprofen":           "Nonsteroidal Anti-inflammatory Drug (NSAID)",
	"amoxicillin":         "Aminopenicillin Antibiotic",
	"omeprazole":          "Proton Pump Inhibitor",
	"amlodipine":          "Calcium Channel Blocker",
	"metoprolol":          "Beta-Adrenergic Blocker",
	"hydrochlorothiazide": "Thiazide Diuretic",
	"doxycycline":         "Tetracycline Antibiotic",
	"meloxicam":           "Nonsteroidal Anti-inflammatory Drug (NSAID)",
}

func pickLongest(texts ...string) string {
	best := ""
	for _, t := range texts {
		if strings.TrimSpace(t) != "" && len(t) > len(best) {
			best = t
		}
	}
	return best
}

// mergeLists unions string lists, deduplicating case-insensitively while
// keeping first-seen casing and order.
func mergeLists(lists ...[]string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, list := range lists {
		for _, item := range list {
			key := strings.ToLower(strings.TrimSpace(item))
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, item)
		}
	}
	return out
}

// mergeInteractions union-merges interactions across sources. When the same
// interacting drug appears more than once, the higher severity wins; on a
// severity tie the longer description wins.
func mergeInteractions(lists ...[]model.Interaction) []model.Interaction {
	merged := make(map[string]model.Interaction)
	var order []string
	for _, list := range lists {
		for _, ix := range list {
			key := strings.ToLower(strings.TrimSpace(ix.InteractingDrug))
			if key == "" {
				continue
			}
			existing, ok := merged[key]
			if !ok {
				merged[key] = ix
				order = append(order, key)
				continue
			}
			switch {
			case ix.Severity.Rank() > existing.Severity.Rank():
				merged[key] = ix
			case ix.Severity.Rank() == existing.Severity.Rank() &&
				len(ix.Description) > len(existing.Description):
				merged[key] = ix
			}
		}
	}
	out := make([]model.Interaction, 0, len(order))
	for _, key := range order {
		out = append(out, merged[key])
	}
	return out
}

// checkAgreement compares the first two populated values of a critical
// safety field and returns a conflict message when they diverge.
func checkAgreement(values []string, label string) (string, bool) {
	if len(values) < 2 {
		return "", false
	}
	sim := textSimilarity(values[0], values[1])
	if sim >= AgreementThreshold {
		return "", false
	}
	return fmt.Sprintf(
		"%s differ significantly (similarity=%.2f); using the most detailed version but flagging for review",
		label, sim,
	), true
}

func collectField(data []*model.DrugData, get func(*model.DrugData) string) []string {
	var out []string
	for _, d := range data {
		if v := get(d); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// mergeDrugClass picks a single-ingredient class, preferring NIH/NLM (ATC)
// over FDA, with the authoritative override table taking absolute precedence.
func mergeDrugClass(drugName string, data []*model.DrugData) string {
	if override, ok := drugClassOverrides[strings.ToLower(strings.TrimSpace(drugName))]; ok {
		return override
	}

	isCombo := func(c string) bool {
		lower := strings.ToLower(c)
		return strings.Contains(lower, "combination") ||
			strings.Contains(lower, " and ") ||
			strings.Contains(lower, " with ")
	}

	type classed struct{ class, authority string }
	var all, single []classed
	for _, d := range data {
		if d.DrugClass == "" {
			continue
		}
		c := classed{d.DrugClass, d.SourceAuthority}
		all = append(all, c)
		if !isCombo(d.DrugClass) {
			single = append(single, c)
		}
	}

	if len(single) > 0 {
		for _, prefAuth := range []string{"NIH/NLM", "FDA"} {
			for _, c := range single {
				if c.authority == prefAuth {
					return c.class
				}
			}
		}
		return single[0].class
	}
	if len(all) > 0 {
		classes := make([]string, len(all))
		for i, c := range all {
			classes[i] = c.class
		}
		return pickLongest(classes...)
	}
	return ""
}

// VerifyDrugData cross-verifies per-source drug data and merges it. Nil
// entries are skipped. A result with Verified=false means no source had
// anything at all; single-source data is accepted with reduced confidence.
func VerifyDrugData(drugName string, sourceData []*model.DrugData) *model.VerificationResult {
	result := &model.VerificationResult{}

	var valid []*model.DrugData
	for _, d := range sourceData {
		if d != nil {
			valid = append(valid, d)
		}
	}
	if len(valid) == 0 {
		result.Notes = append(result.Notes,
			fmt.Sprintf("No data found for %q from any source.", drugName))
		return result
	}

	for _, d := range valid {
		result.SourcesUsed = append(result.SourcesUsed, d.SourceAuthority)
	}

	if len(valid) < MinSourcesRequired {
		result.Notes = append(result.Notes, fmt.Sprintf(
			"Only %d source(s) returned data for %q. Minimum %d required for full verification.",
			len(valid), drugName, MinSourcesRequired))
		if len(valid) == 1 {
			authority := valid[0].SourceAuthority
			if authority == "FDA" || authority == "NIH/NLM" {
				result.Notes = append(result.Notes,
					fmt.Sprintf("Single %s source accepted as authoritative.", authority))
			} else {
				result.Notes = append(result.Notes, fmt.Sprintf(
					"Single non-authoritative source (%s); accepting with low confidence.", authority))
			}
		}
	}

	if msg, conflict := checkAgreement(
		collectField(valid, func(d *model.DrugData) string { return d.Contraindications }),
		"Contraindication descriptions"); conflict {
		result.Conflicts = append(result.Conflicts, msg)
	}
	if msg, conflict := checkAgreement(
		collectField(valid, func(d *model.DrugData) string { return d.BlackBoxWarnings }),
		"Black box warning descriptions"); conflict {
		result.Conflicts = append(result.Conflicts, msg)
	}
	if msg, conflict := checkAgreement(
		collectField(valid, func(d *model.DrugData) string { return d.PregnancyRisk }),
		"Pregnancy risk descriptions"); conflict {
		result.Conflicts = append(result.Conflicts, msg)
	}

	merged := &model.DrugData{GenericName: model.CanonicalName(drugName)}

	brandLists := make([][]string, len(valid))
	for i, d := range valid {
		brandLists[i] = d.BrandNames
	}
	merged.BrandNames = mergeLists(brandLists...)

	merged.DrugClass = mergeDrugClass(drugName, valid)

	merged.MechanismOfAction = pickLongest(collectField(valid, func(d *model.DrugData) string { return d.MechanismOfAction })...)

	indicationLists := make([][]string, len(valid))
	for i, d := range valid {
		indicationLists[i] = d.Indications
	}
	merged.Indications = mergeLists(indicationLists...)

	merged.AdultDosage = pickLongest(collectField(valid, func(d *model.DrugData) string { return d.AdultDosage })...)
	merged.PediatricDosage = pickLongest(collectField(valid, func(d *model.DrugData) string { return d.PediatricDosage })...)
	merged.RenalAdjustment = pickLongest(collectField(valid, func(d *model.DrugData) string { return d.RenalAdjustment })...)
	merged.HepaticAdjustment = pickLongest(collectField(valid, func(d *model.DrugData) string { return d.HepaticAdjustment })...)
	merged.OverdoseInfo = pickLongest(collectField(valid, func(d *model.DrugData) string { return d.OverdoseInfo })...)
	merged.AdministrationInfo = pickLongest(collectField(valid, func(d *model.DrugData) string { return d.AdministrationInfo })...)

	merged.Contraindications = pickLongest(collectField(valid, func(d *model.DrugData) string { return d.Contraindications })...)
	merged.BlackBoxWarnings = pickLongest(collectField(valid, func(d *model.DrugData) string { return d.BlackBoxWarnings })...)
	merged.PregnancyRisk = pickLongest(collectField(valid, func(d *model.DrugData) string { return d.PregnancyRisk })...)
	merged.LactationRisk = pickLongest(collectField(valid, func(d *model.DrugData) string { return d.LactationRisk })...)

	interactionLists := make([][]model.Interaction, len(valid))
	for i, d := range valid {
		interactionLists[i] = d.Interactions
	}
	merged.Interactions = mergeInteractions(interactionLists...)

	// Pricing: real acquisition cost beats any estimate.
	for _, d := range valid {
		if d.UnitPrice != nil {
			merged.ApproximateCost = d.ApproximateCost
			merged.UnitPrice = d.UnitPrice
			merged.PriceNDC = d.PriceNDC
			merged.PriceUnit = d.PriceUnit
			merged.PriceEffectiveDate = d.PriceEffectiveDate
			merged.PackageDescription = d.PackageDescription
			break
		}
	}
	if merged.ApproximateCost == "" {
		for _, d := range valid {
			if d.ApproximateCost != "" {
				merged.ApproximateCost = d.ApproximateCost
				break
			}
		}
	}

	// Generic availability: any source saying true wins.
	for _, d := range valid {
		if d.GenericAvailable != nil && *d.GenericAvailable {
			merged.GenericAvailable = d.GenericAvailable
			break
		}
	}
	if merged.GenericAvailable == nil {
		for _, d := range valid {
			if d.GenericAvailable != nil {
				merged.GenericAvailable = d.GenericAvailable
				break
			}
		}
	}

	// Adverse events come from whichever source carries FAERS data.
	for _, d := range valid {
		if d.EventCount != nil {
			merged.EventCount = d.EventCount
			merged.SeriousEventCount = d.SeriousEventCount
			merged.TopReactions = d.TopReactions
			break
		}
	}

	// Provenance from the primary source, FDA preferred.
	primary := valid[0]
	for _, d := range valid {
		if d.SourceAuthority == "FDA" {
			primary = d
			break
		}
	}
	merged.SourceAuthority = primary.SourceAuthority
	merged.SourceDocumentTitle = primary.SourceDocumentTitle
	merged.SourceURL = primary.SourceURL
	merged.SourceYear = primary.SourceYear
	merged.EffectiveDate = primary.EffectiveDate
	merged.RetrievedAt = primary.RetrievedAt

	confidence := min(float64(len(valid))/4.0, 0.35)
	if merged.MechanismOfAction != "" {
		confidence += 0.08
	}
	if len(merged.Indications) > 0 {
		confidence += 0.08
	}
	if merged.Contraindications != "" {
		confidence += 0.08
	}
	if merged.AdultDosage != "" {
		confidence += 0.08
	}
	if merged.BlackBoxWarnings != "" || merged.Contraindications != "" {
		confidence += 0.08
	}
	if merged.UnitPrice != nil {
		confidence += 0.08
	}
	if merged.EventCount != nil {
		confidence += 0.07
	}
	confidence -= float64(len(result.Conflicts)) * 0.05
	confidence = max(0, min(1, confidence))

	result.Verified = true
	result.Confidence = round3(confidence)
	result.MergedData = merged

	if len(result.Conflicts) > 0 {
		result.Notes = append(result.Notes, fmt.Sprintf(
			"Verified with %d conflict(s): data merged using safety-first approach.", len(result.Conflicts)))
	} else {
		result.Notes = append(result.Notes, fmt.Sprintf(
			"Verified across %d source(s) with no conflicts.", len(valid)))
	}
	return result
}

func round3(f float64) float64 {
	if f < 0 {
		return float64(int(f*1000-0.5)) / 1000
	}
	return float64(int(f*1000+0.5)) / 1000
}
