package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/clerasense/drugfacts-cli/internal/config"
	"github.com/clerasense/drugfacts-cli/internal/model"
)

// OpenFDA fetches drug labeling from the FDA Drug Label API and the
// adverse-event summary from FAERS. It is the only adapter that carries
// adverse-event counts.
type OpenFDA struct {
	client *httpClient
}

// NewOpenFDA creates the OpenFDA adapter.
func NewOpenFDA(cfg config.SourceConfig) *OpenFDA {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.fda.gov"
	}
	return &OpenFDA{client: newHTTPClient(cfg)}
}

func (s *OpenFDA) Name() string      { return "OpenFDA Drug Label API" }
func (s *OpenFDA) Authority() string { return "FDA" }

type fdaLabelResponse struct {
	Results []fdaLabel `json:"results"`
}

type fdaLabel struct {
	OpenFDA                  fdaMeta  `json:"openfda"`
	EffectiveTime            string   `json:"effective_time"`
	MechanismOfAction        []string `json:"mechanism_of_action"`
	ClinicalPharmacology     []string `json:"clinical_pharmacology"`
	IndicationsAndUsage      []string `json:"indications_and_usage"`
	DosageAndAdministration  []string `json:"dosage_and_administration"`
	PediatricUse             []string `json:"pediatric_use"`
	Overdosage               []string `json:"overdosage"`
	DosageFormsAndStrengths  []string `json:"dosage_forms_and_strengths"`
	HowSupplied              []string `json:"how_supplied"`
	StorageAndHandling       []string `json:"storage_and_handling"`
	UseInSpecificPopulations []string `json:"use_in_specific_populations"`
	Contraindications        []string `json:"contraindications"`
	BoxedWarning             []string `json:"boxed_warning"`
	WarningsAndCautions      []string `json:"warnings_and_cautions"`
	Warnings                 []string `json:"warnings"`
	AdverseReactions         []string `json:"adverse_reactions"`
	Pregnancy                []string `json:"pregnancy"`
	TeratogenicEffects       []string `json:"teratogenic_effects"`
	NursingMothers           []string `json:"nursing_mothers"`
	DrugInteractions         []string `json:"drug_interactions"`
}

type fdaMeta struct {
	GenericName      []string `json:"generic_name"`
	BrandName        []string `json:"brand_name"`
	PharmClassEPC    []string `json:"pharm_class_epc"`
	PharmClassMOA    []string `json:"pharm_class_moa"`
	ManufacturerName []string `json:"manufacturer_name"`
	ProductType      []string `json:"product_type"`
	Route            []string `json:"route"`
}

type fdaEventResponse struct {
	Meta struct {
		Results struct {
			Total int `json:"total"`
		} `json:"results"`
	} `json:"meta"`
	Results []fdaEventCount `json:"results"`
}

type fdaEventCount struct {
	Term  fdaTerm `json:"term"`
	Count int     `json:"count"`
}

// fdaTerm decodes FAERS count terms, which are numbers for the "serious"
// facet and strings for reaction names.
type fdaTerm string

func (t *fdaTerm) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*t = fdaTerm(s)
		return nil
	}
	*t = fdaTerm(b)
	return nil
}

// Search returns generic names matching the query.
func (s *OpenFDA) Search(ctx context.Context, query string, limit int) ([]string, error) {
	if limit > 100 {
		limit = 100
	}
	q := url.Values{}
	q.Set("search", fmt.Sprintf(`openfda.generic_name:"%s"`, query))
	q.Set("limit", strconv.Itoa(limit))

	var resp fdaLabelResponse
	found, err := s.client.getJSON(ctx, "/drug/label.json", q, &resp)
	if err != nil || !found {
		return nil, err
	}

	seen := make(map[string]struct{})
	var names []string
	for _, label := range resp.Results {
		for _, name := range label.OpenFDA.GenericName {
			canon := model.CanonicalName(name)
			if _, dup := seen[canon]; dup || canon == "" {
				continue
			}
			seen[canon] = struct{}{}
			names = append(names, canon)
			if len(names) >= limit {
				return names, nil
			}
		}
	}
	return names, nil
}

// pickBestLabel scores candidate labels, strongly preferring single-ingredient
// products and penalizing combinations, so that the chosen label is specific
// to the queried drug.
func pickBestLabel(results []fdaLabel, genericName string) fdaLabel {
	nameLower := strings.ToLower(strings.TrimSpace(genericName))

	best := results[0]
	bestScore := -1 << 30
	for _, label := range results {
		score := 0

		for _, gn := range label.OpenFDA.GenericName {
			gn = strings.ToLower(gn)
			isCombo := strings.Contains(gn, " and ") || strings.Contains(gn, "/") || strings.Contains(gn, ",")
			switch {
			case gn == nameLower:
				score += 300
			case gn == nameLower+" hydrochloride" || gn == nameLower+" hcl":
				score += 280
			case strings.HasPrefix(gn, nameLower) && !isCombo:
				score += 200
			case strings.Contains(gn, nameLower) && !isCombo:
				score += 100
			case strings.Contains(gn, nameLower) && isCombo:
				score -= 200
			}
		}

		for _, populated := range [][]string{
			label.Contraindications, label.WarningsAndCautions, label.DrugInteractions,
			label.AdverseReactions, label.BoxedWarning, label.Pregnancy,
			label.MechanismOfAction, label.ClinicalPharmacology,
			label.DosageAndAdministration,
		} {
			if len(populated) > 0 {
				score += 5
			}
		}

		for _, pt := range label.OpenFDA.ProductType {
			upper := strings.ToUpper(pt)
			if strings.Contains(upper, "PRESCRIPTION") {
				score += 30
			} else if strings.Contains(upper, "OTC") {
				score -= 10
			}
		}

		if score > bestScore {
			bestScore = score
			best = label
		}
	}
	return best
}

var (
	renalRe     = regexp.MustCompile(`renal[^.]*\.(?:[^.]*\.)?`)
	hepaticRe   = regexp.MustCompile(`hepatic[^.]*\.(?:[^.]*\.)?`)
	lactationRe = regexp.MustCompile(`lactat[^.]*\.(?:[^.]*\.)?(?:[^.]*\.)?`)
)

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// estimateCost builds a rough fallback estimate used only when the pricing
// authority has no real acquisition cost for the drug.
func estimateCost(drugClass, route string, genericAvailable bool) string {
	if genericAvailable {
		switch {
		case strings.Contains(route, "oral") || strings.Contains(route, "tablet"):
			return "Estimated $4–$30/month (generic; verify with pharmacy)"
		case strings.Contains(route, "injection") || strings.Contains(route, "intravenous"):
			return "Estimated $10–$100/dose (generic injection; verify with pharmacy)"
		case strings.Contains(route, "inhalation"):
			return "Estimated $20–$80/month (generic inhaler; verify with pharmacy)"
		default:
			return "Estimated $4–$50/month (generic; verify with pharmacy)"
		}
	}
	classLower := strings.ToLower(drugClass)
	switch {
	case strings.Contains(classLower, "biologic") || strings.Contains(classLower, "monoclonal"):
		return "Estimated $1,000–$5,000/month (brand biologic; verify with pharmacy)"
	case strings.Contains(route, "injection"):
		return "Estimated $50–$500/dose (brand injection; verify with pharmacy)"
	case strings.Contains(route, "oral"):
		return "Estimated $30–$200/month (brand oral; verify with pharmacy)"
	default:
		return "Estimated $30–$300/month (brand; verify with pharmacy)"
	}
}

// parseEffectiveTime converts an FDA effective_time (YYYYMMDD) into an ISO
// date string and a year.
func parseEffectiveTime(effTime string) (string, int) {
	if len(effTime) >= 4 {
		if year, err := strconv.Atoi(effTime[:4]); err == nil {
			if len(effTime) >= 8 {
				return fmt.Sprintf("%s-%s-%s", effTime[:4], effTime[4:6], effTime[6:8]), year
			}
			return effTime[:4] + "-01-01", year
		}
	}
	return "", model.CurrentYear()
}

// fetchAdverseEvents queries FAERS for the total report count, serious
// report count, and top reactions. All failures degrade to nils.
func (s *OpenFDA) fetchAdverseEvents(ctx context.Context, genericName string) (total, serious *int, reactions []model.Reaction) {
	searchTerm := fmt.Sprintf(`patient.drug.openfda.generic_name:"%s"`, genericName)

	q := url.Values{}
	q.Set("search", searchTerm)
	q.Set("limit", "1")
	var totalResp fdaEventResponse
	if found, err := s.client.getJSON(ctx, "/drug/event.json", q, &totalResp); err == nil && found {
		t := totalResp.Meta.Results.Total
		total = &t
	} else if err != nil {
		zap.L().Warn("faers total count fetch failed", zap.String("drug", genericName), zap.Error(err))
	}

	q = url.Values{}
	q.Set("search", searchTerm)
	q.Set("count", "serious")
	var seriousResp fdaEventResponse
	if found, err := s.client.getJSON(ctx, "/drug/event.json", q, &seriousResp); err == nil && found {
		for _, item := range seriousResp.Results {
			if item.Term == "1" {
				c := item.Count
				serious = &c
				break
			}
		}
		if serious == nil {
			c := seriousResp.Meta.Results.Total
			serious = &c
		}
	}

	q = url.Values{}
	q.Set("search", searchTerm)
	q.Set("count", "patient.reaction.reactionmeddrapt.exact")
	var reactionResp fdaEventResponse
	if found, err := s.client.getJSON(ctx, "/drug/event.json", q, &reactionResp); err == nil && found {
		top := reactionResp.Results
		if len(top) > 15 {
			top = top[:15]
		}
		for _, r := range top {
			reactions = append(reactions, model.Reaction{Reaction: string(r.Term), Count: r.Count})
		}
	}

	return total, serious, reactions
}

// FetchDrugData fetches the best-matching label plus the FAERS summary.
func (s *OpenFDA) FetchDrugData(ctx context.Context, genericName string) (*model.DrugData, error) {
	q := url.Values{}
	q.Set("search", fmt.Sprintf(`openfda.generic_name:"%s"`, genericName))
	q.Set("limit", "10")

	var resp fdaLabelResponse
	found, err := s.client.getJSON(ctx, "/drug/label.json", q, &resp)
	if err != nil {
		return nil, err
	}
	if !found || len(resp.Results) == 0 {
		return nil, nil
	}

	label := pickBestLabel(resp.Results, genericName)
	meta := label.OpenFDA

	brandNames := make([]string, 0, len(meta.BrandName))
	for _, b := range meta.BrandName {
		brandNames = append(brandNames, model.CanonicalName(b))
	}

	// Drug class: EPC preferred, MOA fallback, combo classes filtered out.
	rawClasses := meta.PharmClassEPC
	if len(rawClasses) == 0 {
		rawClasses = meta.PharmClassMOA
	}
	var singleClasses []string
	for _, c := range rawClasses {
		if !isComboClass(c) {
			singleClasses = append(singleClasses, c)
		}
	}
	drugClass := strings.Join(singleClasses, ", ")
	if drugClass == "" {
		drugClass = strings.Join(rawClasses, ", ")
	}

	mechanism := cleanLabelText(label.MechanismOfAction, 0)
	if mechanism == "" {
		mechanism = cleanLabelText(label.ClinicalPharmacology, 0)
	}

	var indications []string
	if ind := cleanLabelText(label.IndicationsAndUsage, 0); ind != "" {
		indications = []string{ind}
	}

	adultDosage := cleanLabelText(label.DosageAndAdministration, 0)
	pediatricDosage := cleanLabelText(label.PediatricUse, 0)
	overdoseInfo := cleanLabelText(label.Overdosage, 0)

	var adminParts []string
	if dfs := cleanLabelText(label.DosageFormsAndStrengths, 1500); dfs != "" {
		adminParts = append(adminParts, dfs)
	}
	if sup := cleanLabelText(label.HowSupplied, 1500); sup != "" {
		adminParts = append(adminParts, sup)
	}
	if storage := cleanLabelText(label.StorageAndHandling, 800); storage != "" {
		adminParts = append(adminParts, "Storage & Handling: "+storage)
	}
	administrationInfo := strings.Join(adminParts, "\n\n")

	var renalAdjustment, hepaticAdjustment string
	specificPopulations := cleanLabelText(label.UseInSpecificPopulations, 0)
	if specificPopulations != "" {
		spLower := strings.ToLower(specificPopulations)
		if m := renalRe.FindString(spLower); m != "" {
			renalAdjustment = capitalize(strings.TrimSpace(m))
		}
		if strings.Contains(spLower, "hepatic") || strings.Contains(spLower, "liver") {
			if m := hepaticRe.FindString(spLower); m != "" {
				hepaticAdjustment = capitalize(strings.TrimSpace(m))
			}
		}
	}

	contraindications := cleanLabelText(label.Contraindications, 0)
	blackBox := cleanLabelText(label.BoxedWarning, 0)

	warningsText := cleanLabelText(label.WarningsAndCautions, 0)
	if warningsText == "" {
		warningsText = cleanLabelText(label.Warnings, 0)
	}
	switch {
	case warningsText != "" && contraindications == "":
		contraindications = warningsText
	case warningsText != "" && contraindications != "":
		contraindications = contraindications + "\n\nADDITIONAL WARNINGS: " + truncate(warningsText, 1500)
	}

	adverseReactions := cleanLabelText(label.AdverseReactions, 2000)
	switch {
	case adverseReactions != "" && contraindications != "":
		contraindications = contraindications + "\n\nADVERSE REACTIONS: " + truncate(adverseReactions, 1000)
	case adverseReactions != "":
		contraindications = "ADVERSE REACTIONS: " + adverseReactions
	}

	pregnancyRisk := cleanLabelText(label.Pregnancy, 2000)
	if pregnancyRisk == "" {
		pregnancyRisk = cleanLabelText(label.TeratogenicEffects, 2000)
	}
	lactationRisk := cleanLabelText(label.NursingMothers, 2000)
	if lactationRisk == "" && strings.Contains(strings.ToLower(specificPopulations), "lactat") {
		if m := lactationRe.FindString(strings.ToLower(specificPopulations)); m != "" {
			lactationRisk = capitalize(strings.TrimSpace(m))
		}
	}

	// Multiple manufacturers or an explicit generic product type imply a
	// generic formulation exists.
	genericAvailable := len(meta.ManufacturerName) > 1
	for _, pt := range meta.ProductType {
		if strings.Contains(strings.ToLower(pt), "generic") {
			genericAvailable = true
		}
	}
	routeStr := strings.ToLower(strings.Join(meta.Route, ", "))
	approximateCost := estimateCost(drugClass, routeStr, genericAvailable)

	// The DailyMed search URL is stable; openfda spl_id values are often
	// stale and redirect to the DailyMed homepage.
	sourceURL := "https://dailymed.nlm.nih.gov/dailymed/search.cfm?labeltype=all&query=" +
		url.QueryEscape(genericName)

	effectiveDate, sourceYear := parseEffectiveTime(label.EffectiveTime)

	total, serious, reactions := s.fetchAdverseEvents(ctx, genericName)

	var interactions []model.Interaction
	if raw := cleanLabelText(label.DrugInteractions, 0); raw != "" {
		interactions = parseInteractionText(raw)
	}

	canon := model.CanonicalName(genericName)
	return &model.DrugData{
		GenericName:         canon,
		BrandNames:          brandNames,
		DrugClass:           drugClass,
		MechanismOfAction:   mechanism,
		Indications:         indications,
		AdultDosage:         adultDosage,
		PediatricDosage:     pediatricDosage,
		RenalAdjustment:     renalAdjustment,
		HepaticAdjustment:   hepaticAdjustment,
		OverdoseInfo:        overdoseInfo,
		AdministrationInfo:  administrationInfo,
		Contraindications:   contraindications,
		BlackBoxWarnings:    blackBox,
		PregnancyRisk:       pregnancyRisk,
		LactationRisk:       lactationRisk,
		Interactions:        interactions,
		ApproximateCost:     approximateCost,
		GenericAvailable:    &genericAvailable,
		EventCount:          total,
		SeriousEventCount:   serious,
		TopReactions:        reactions,
		SourceAuthority:     s.Authority(),
		SourceDocumentTitle: "FDA Drug Label – " + canon,
		SourceURL:           sourceURL,
		SourceYear:          sourceYear,
		EffectiveDate:       effectiveDate,
		RetrievedAt:         time.Now().UTC().Format(time.RFC3339),
	}, nil
}

// FetchInteractions extracts interactions from the FDA label text.
func (s *OpenFDA) FetchInteractions(ctx context.Context, genericName string) ([]model.Interaction, error) {
	q := url.Values{}
	q.Set("search", fmt.Sprintf(`openfda.generic_name:"%s"`, genericName))
	q.Set("limit", "1")

	var resp fdaLabelResponse
	found, err := s.client.getJSON(ctx, "/drug/label.json", q, &resp)
	if err != nil || !found || len(resp.Results) == 0 {
		return nil, err
	}

	raw := cleanLabelText(resp.Results[0].DrugInteractions, 0)
	if raw == "" {
		return nil, nil
	}
	return parseInteractionText(raw), nil
}

func isComboClass(class string) bool {
	lower := strings.ToLower(class)
	return strings.Contains(lower, "combination") ||
		strings.Contains(lower, " and ") ||
		strings.Contains(lower, " with ")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
