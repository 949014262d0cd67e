package source

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
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

// DailyMed fetches structured product labeling (SPL) from NIH DailyMed.
//
// The v2 /sections.json endpoint returns HTML instead of JSON, so section
// content comes from the SPL XML zip download instead.
type DailyMed struct {
	client *httpClient
	site   string
}

// NewDailyMed creates the DailyMed adapter.
func NewDailyMed(cfg config.SourceConfig) *DailyMed {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://dailymed.nlm.nih.gov/dailymed"
	}
	return &DailyMed{
		client: newHTTPClient(cfg),
		site:   strings.TrimSuffix(cfg.BaseURL, "/"),
	}
}

func (s *DailyMed) Name() string      { return "NIH DailyMed API" }
func (s *DailyMed) Authority() string { return "NIH/NLM" }

// LOINC section code to field key.
var splSectionCodes = map[string]string{
	"34067-9": "indications_and_usage",
	"34068-7": "dosage_and_administration",
	"34070-3": "contraindications",
	"43685-7": "warnings_and_precautions",
	"34071-1": "warnings",
	"34084-4": "adverse_reactions",
	"34073-7": "drug_interactions",
	"42228-7": "pregnancy",
	"34080-2": "nursing_mothers",
	"34081-0": "pediatric_use",
	"34082-8": "geriatric_use",
	"34088-5": "overdosage",
	"34090-1": "clinical_pharmacology",
	"43679-0": "mechanism_of_action",
	"34066-1": "boxed_warning",
	"42229-5": "spl_medguide",
	"34069-5": "how_supplied",
	"43684-0": "use_in_specific_populations",
}

type splsResponse struct {
	Data []splListing `json:"data"`
}

type splListing struct {
	SetID string `json:"setid"`
	Title string `json:"title"`
}

var titleDashRe = regexp.MustCompile(`\s*[-–]\s*`)

// Search returns drug names from SPL titles matching the query.
func (s *DailyMed) Search(ctx context.Context, query string, limit int) ([]string, error) {
	if limit > 100 {
		limit = 100
	}
	q := url.Values{}
	q.Set("drug_name", query)
	q.Set("page", "1")
	q.Set("pagesize", strconv.Itoa(limit))

	var resp splsResponse
	found, err := s.client.getJSON(ctx, "/services/v2/spls.json", q, &resp)
	if err != nil || !found {
		return nil, err
	}

	seen := make(map[string]struct{})
	var names []string
	for _, item := range resp.Data {
		parts := titleDashRe.Split(item.Title, 2)
		if len(parts) == 0 {
			continue
		}
		name := model.CanonicalName(parts[0])
		if len(name) <= 2 {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
		if len(names) >= limit {
			break
		}
	}
	return names, nil
}

var saltSuffixes = []string{
	"hydrochloride", "hcl", "sulfate", "sodium", "potassium",
	"maleate", "besylate", "mesylate", "fumarate", "tartrate",
	"succinate", "calcium", "acetate", "phosphate", "citrate",
	"dihydrate", "anhydrous", "trihydrate",
}

var dosageFormWords = []string{
	"tablet", "capsule", "solution", "injection", "cream",
	"ointment", "powder", "suspension", "aerosol", "spray",
	"patch", "gel", "drops", "inhaler", "suppository", "lozenge",
	"syrup", "elixir", "emulsion", "pellet", "granule", "kit",
}

// Titles containing these words are not pharmaceutical drugs, no matter how
// well the name matches (hand sanitizer shows up for "ethane").
var nonPharmaWords = []string{
	"sanitizer", "hand wash", "antiseptic", "disinfectant",
	"cleaning", "cosmetic", "sunscreen", "soap", "shampoo",
	"toothpaste", "mouthwash", "deodorant",
}

// scoreSPLTitle rates how well an SPL listing title matches a
// single-ingredient drug query.
func scoreSPLTitle(title, nameLower string) int {
	titleLower := strings.ToLower(strings.TrimSpace(title))
	score := 0

	for _, nw := range nonPharmaWords {
		if strings.Contains(titleLower, nw) {
			score -= 500
			break
		}
	}

	// Title formats: "DRUG NAME- dosage form [MANUFACTURER]" or
	// "DRUG NAME SALT FORM TABLET, FILM COATED [MANUFACTURER]".
	nameAndForm := titleLower
	if idx := strings.Index(nameAndForm, "["); idx >= 0 {
		nameAndForm = nameAndForm[:idx]
	}
	nameAndForm = strings.TrimSpace(nameAndForm)

	drugPortion := strings.TrimSpace(titleDashRe.Split(nameAndForm, 2)[0])

	// Isolate the drug name from trailing dosage-form words, e.g.
	// "atorvastatin calcium tablet" becomes "atorvastatin calcium".
	drugNamePart := drugPortion
	for _, df := range dosageFormWords {
		if idx := strings.Index(drugNamePart, df); idx > 0 {
			drugNamePart = strings.TrimSpace(strings.TrimRight(strings.TrimSpace(drugNamePart[:idx]), ","))
			break
		}
	}

	hasSalt := false
	for _, suffix := range saltSuffixes {
		if strings.Contains(drugNamePart, suffix) {
			hasSalt = true
			break
		}
	}
	isCombo := strings.Contains(drugNamePart, " and ") ||
		strings.Contains(drugNamePart, " / ") ||
		(strings.Contains(drugNamePart, ",") && !hasSalt)

	isSaltForm := false
	for _, suffix := range saltSuffixes {
		if drugNamePart == nameLower+" "+suffix {
			isSaltForm = true
			break
		}
	}

	switch {
	case drugNamePart == nameLower:
		score += 300
	case isSaltForm:
		score += 280
	case strings.HasPrefix(drugNamePart, nameLower) && !isCombo:
		score += 260
	case strings.Contains(drugNamePart, nameLower) && !isCombo:
		score += 100
	case strings.Contains(drugNamePart, nameLower) && isCombo:
		score -= 100
	case !strings.Contains(titleLower, nameLower):
		score -= 300
	}

	if isCombo {
		score -= 200
	}

	if len(title) < 80 {
		score += 10
	} else if len(title) > 140 {
		score -= 10
	}

	return score
}

// findSetID returns the best SPL set_id for a single-ingredient drug, or ""
// when no candidate is plausibly relevant.
func (s *DailyMed) findSetID(ctx context.Context, genericName string) (string, error) {
	q := url.Values{}
	q.Set("drug_name", genericName)
	q.Set("page", "1")
	q.Set("pagesize", "25")

	var resp splsResponse
	found, err := s.client.getJSON(ctx, "/services/v2/spls.json", q, &resp)
	if err != nil || !found || len(resp.Data) == 0 {
		return "", err
	}

	nameLower := strings.ToLower(strings.TrimSpace(genericName))
	bestSetID := ""
	bestScore := -9999
	for _, item := range resp.Data {
		if item.SetID == "" {
			continue
		}
		if score := scoreSPLTitle(item.Title, nameLower); score > bestScore {
			bestScore = score
			bestSetID = item.SetID
		}
	}
	if bestScore <= -200 {
		return "", nil
	}
	return bestSetID, nil
}

type splSection struct {
	Code struct {
		Code string `xml:"code,attr"`
	} `xml:"code"`
	Text struct {
		Raw string `xml:",innerxml"`
	} `xml:"text"`
	Sections []splSection `xml:"component>section"`
}

type splDocument struct {
	Sections []splSection `xml:"component>structuredBody>component>section"`
}

func collectSections(secs []splSection, out map[string]string) {
	for _, sec := range secs {
		if key, ok := splSectionCodes[sec.Code.Code]; ok && strings.TrimSpace(sec.Text.Raw) != "" {
			if _, exists := out[key]; !exists {
				out[key] = sec.Text.Raw
			}
		}
		collectSections(sec.Sections, out)
	}
}

// fetchSPLSections downloads the SPL XML zip for a setid and parses the
// labeled sections. Failures degrade to an empty map.
func (s *DailyMed) fetchSPLSections(ctx context.Context, setid string) map[string]string {
	sections := make(map[string]string)

	zipURL := fmt.Sprintf("%s/getFile.cfm?setid=%s&type=zip&name=%s", s.site, setid, setid)
	body, found, err := s.client.getBytes(ctx, zipURL)
	if err != nil || !found {
		if err != nil {
			zap.L().Warn("dailymed zip download failed", zap.String("setid", setid), zap.Error(err))
		}
		return sections
	}

	zr, err := zip.NewReader(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		zap.L().Debug("dailymed zip was invalid", zap.String("setid", setid), zap.Error(err))
		return sections
	}

	for _, f := range zr.File {
		if !strings.HasSuffix(strings.ToLower(f.Name), ".xml") {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			continue
		}
		var doc splDocument
		err = xml.NewDecoder(rc).Decode(&doc)
		_ = rc.Close()
		if err != nil {
			zap.L().Warn("dailymed spl xml parse failed", zap.String("setid", setid), zap.Error(err))
			return sections
		}
		collectSections(doc.Sections, sections)
		break
	}

	return sections
}

// FetchDrugData fetches drug label data from the DailyMed SPL XML.
func (s *DailyMed) FetchDrugData(ctx context.Context, genericName string) (*model.DrugData, error) {
	setid, err := s.findSetID(ctx, genericName)
	if err != nil {
		return nil, err
	}
	if setid == "" {
		return nil, nil
	}

	canon := model.CanonicalName(genericName)
	sourceURL := s.site + "/drugInfo.cfm?setid=" + setid
	now := time.Now().UTC().Format(time.RFC3339)

	sections := s.fetchSPLSections(ctx, setid)
	if len(sections) == 0 {
		// Even without section content, the listing confirms the drug
		// exists in DailyMed, which still counts toward verification.
		return &model.DrugData{
			GenericName:         canon,
			SourceAuthority:     s.Authority(),
			SourceDocumentTitle: "DailyMed SPL – " + canon,
			SourceURL:           sourceURL,
			SourceYear:          model.CurrentYear(),
			RetrievedAt:         now,
		}, nil
	}

	indications := cleanXMLText(sections["indications_and_usage"], 0)
	dosage := cleanXMLText(sections["dosage_and_administration"], 0)
	contraindications := cleanXMLText(sections["contraindications"], 0)
	warnings := cleanXMLText(sections["warnings_and_precautions"], 0)
	if warnings == "" {
		warnings = cleanXMLText(sections["warnings"], 0)
	}
	boxed := cleanXMLText(sections["boxed_warning"], 0)
	pregnancy := cleanXMLText(sections["pregnancy"], 0)
	if pregnancy == "" {
		pregnancy = cleanXMLText(sections["use_in_specific_populations"], 0)
	}
	nursing := cleanXMLText(sections["nursing_mothers"], 0)
	mechanism := cleanXMLText(sections["mechanism_of_action"], 0)
	if mechanism == "" {
		mechanism = cleanXMLText(sections["clinical_pharmacology"], 0)
	}
	adverse := cleanXMLText(sections["adverse_reactions"], 0)
	overdosage := cleanXMLText(sections["overdosage"], 0)
	administrationInfo := cleanXMLText(sections["how_supplied"], 0)

	var interactions []model.Interaction
	if raw := cleanXMLText(sections["drug_interactions"], 0); raw != "" {
		interactions = parseInteractionText(raw)
	}

	switch {
	case warnings != "" && contraindications != "":
		contraindications = contraindications + "\n\nWARNINGS: " + truncate(warnings, 1500)
	case warnings != "":
		contraindications = warnings
	}
	switch {
	case adverse != "" && contraindications != "":
		contraindications = contraindications + "\n\nADVERSE REACTIONS: " + truncate(adverse, 1000)
	case adverse != "":
		contraindications = "ADVERSE REACTIONS: " + adverse
	}

	if len(pregnancy) > 2000 {
		pregnancy = pregnancy[:2000] + "..."
	}
	if len(nursing) > 2000 {
		nursing = nursing[:2000] + "..."
	}

	var indicationList []string
	if indications != "" {
		indicationList = []string{indications}
	}

	return &model.DrugData{
		GenericName:         canon,
		MechanismOfAction:   mechanism,
		Indications:         indicationList,
		AdultDosage:         dosage,
		OverdoseInfo:        overdosage,
		AdministrationInfo:  administrationInfo,
		Contraindications:   contraindications,
		BlackBoxWarnings:    boxed,
		PregnancyRisk:       pregnancy,
		LactationRisk:       nursing,
		Interactions:        interactions,
		SourceAuthority:     s.Authority(),
		SourceDocumentTitle: "DailyMed SPL – " + canon,
		SourceURL:           sourceURL,
		SourceYear:          model.CurrentYear(),
		RetrievedAt:         now,
	}, nil
}

// FetchInteractions extracts interactions from the SPL DRUG INTERACTIONS
// section.
func (s *DailyMed) FetchInteractions(ctx context.Context, genericName string) ([]model.Interaction, error) {
	setid, err := s.findSetID(ctx, genericName)
	if err != nil || setid == "" {
		return nil, err
	}

	sections := s.fetchSPLSections(ctx, setid)
	raw := cleanXMLText(sections["drug_interactions"], 0)
	if raw == "" {
		return nil, nil
	}
	return parseInteractionText(raw), nil
}
