package source

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/clerasense/drugfacts-cli/internal/config"
	"github.com/clerasense/drugfacts-cli/internal/model"
)

const nadacDatasetID = "dfa2ab14-06c2-457a-9e36-5cb6d80f8d93"

// NADAC fetches national average drug acquisition cost from the CMS
// Medicaid.gov DKAN datastore. Pricing only; no clinical fields.
type NADAC struct {
	client *httpClient
}

// NewNADAC creates the CMS NADAC pricing adapter.
func NewNADAC(cfg config.SourceConfig) *NADAC {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://data.medicaid.gov/api/1"
	}
	return &NADAC{client: newHTTPClient(cfg)}
}

func (s *NADAC) Name() string      { return "CMS NADAC Pricing" }
func (s *NADAC) Authority() string { return "CMS" }

type nadacResponse struct {
	Results []nadacRecord `json:"results"`
}

type nadacRecord struct {
	NDC            string `json:"ndc"`
	NDCDescription string `json:"ndc_description"`
	NADACPerUnit   string `json:"nadac_per_unit"`
	PricingUnit    string `json:"pricing_unit"`
	EffectiveDate  string `json:"effective_date"`
	Classification string `json:"classification_for_rate_setting"`
	PackageSize    string `json:"package_size"`
}

// Pricing is the condensed NADAC result: a display summary plus the primary
// (cheapest current) formulation's identifiers.
type Pricing struct {
	DisplayText        string
	PerUnit            float64
	NDC                string
	PackageDescription string
	PricingUnit        string
	EffectiveDate      string
	Classification     string
	FormsCount         int
}

func (s *NADAC) query(ctx context.Context, drugName string, limit int) ([]nadacRecord, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", "0")
	q.Set("conditions[0][property]", "ndc_description")
	q.Set("conditions[0][value]", "%"+strings.ToUpper(drugName)+"%")
	q.Set("conditions[0][operator]", "LIKE")
	q.Set("sort", "effective_date")
	q.Set("sort_order", "desc")

	var resp nadacResponse
	found, err := s.client.getJSON(ctx, "/datastore/query/"+nadacDatasetID+"/0", q, &resp)
	if err != nil || !found {
		return nil, err
	}
	return resp.Results, nil
}

// Search returns drug names appearing in NADAC descriptions.
func (s *NADAC) Search(ctx context.Context, query string, limit int) ([]string, error) {
	fetchLimit := limit
	if fetchLimit > 50 {
		fetchLimit = 50
	}
	records, err := s.query(ctx, query, fetchLimit)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var names []string
	for _, rec := range records {
		fields := strings.Fields(rec.NDCDescription)
		if len(fields) == 0 {
			continue
		}
		name := model.CanonicalName(fields[0])
		if name == "" {
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

type nadacForm struct {
	description    string
	perUnit        float64
	pricingUnit    string
	effectiveDate  string
	classification string
	ndc            string
	packageSize    string
}

// summarizePricing keeps the latest price per formulation, sorts cheapest
// first, and builds the display text with an estimated monthly range for
// per-each units.
func summarizePricing(records []nadacRecord) *Pricing {
	byForm := make(map[string]nadacForm)
	for _, rec := range records {
		if rec.NADACPerUnit == "" {
			continue
		}
		perUnit, err := strconv.ParseFloat(rec.NADACPerUnit, 64)
		if err != nil {
			continue
		}

		formKey := strings.TrimSpace(strings.ToLower(rec.NDCDescription))
		if formKey == "" {
			formKey = "form_" + rec.PricingUnit
		} else if len(formKey) > 80 {
			formKey = formKey[:80]
		}

		effDate := rec.EffectiveDate
		if len(effDate) > 10 {
			effDate = effDate[:10]
		}

		existing, ok := byForm[formKey]
		if !ok || effDate > existing.effectiveDate {
			byForm[formKey] = nadacForm{
				description:    rec.NDCDescription,
				perUnit:        perUnit,
				pricingUnit:    rec.PricingUnit,
				effectiveDate:  effDate,
				classification: rec.Classification,
				ndc:            rec.NDC,
				packageSize:    rec.PackageSize,
			}
		}
	}
	if len(byForm) == 0 {
		return nil
	}

	forms := make([]nadacForm, 0, len(byForm))
	for _, f := range byForm {
		forms = append(forms, f)
	}
	sort.Slice(forms, func(i, j int) bool { return forms[i].perUnit < forms[j].perUnit })

	var lines []string
	for i, form := range forms {
		if i >= 5 {
			break
		}
		unit := strings.ToUpper(form.pricingUnit)
		var line string
		if unit == "EA" || unit == "EACH" || unit == "TAB" || unit == "CAP" {
			// 30 units/month at standard dosing, 90 at high dosing.
			line = fmt.Sprintf("$%.4f/%s → ~$%.2f–$%.2f/month",
				form.perUnit, form.pricingUnit, form.perUnit*30, form.perUnit*90)
		} else {
			line = fmt.Sprintf("$%.4f/%s", form.perUnit, form.pricingUnit)
		}
		if form.description != "" {
			line += " (" + form.description + ")"
		}
		lines = append(lines, line)
	}
	if len(lines) > 3 {
		lines = lines[:3]
	}

	primary := forms[0]
	return &Pricing{
		DisplayText:        strings.Join(lines, "; "),
		PerUnit:            primary.perUnit,
		NDC:                primary.ndc,
		PackageDescription: primary.description,
		PricingUnit:        primary.pricingUnit,
		EffectiveDate:      primary.effectiveDate,
		Classification:     primary.classification,
		FormsCount:         len(forms),
	}
}

// partitionRecords splits single-ingredient matches from combination
// products; "METFORMIN HCL 500 MG" is single, "GLYBURIDE-METFORMIN 5-500 MG"
// is a combo.
func partitionRecords(records []nadacRecord, genericName string) (single, combo []nadacRecord) {
	drugUpper := strings.ToUpper(strings.TrimSpace(genericName))
	for _, rec := range records {
		desc := strings.ToUpper(rec.NDCDescription)
		switch {
		case strings.HasPrefix(desc, drugUpper):
			single = append(single, rec)
		case strings.Contains(desc, drugUpper+" ") &&
			!strings.Contains(strings.SplitN(desc, drugUpper, 2)[0], "-"):
			single = append(single, rec)
		default:
			combo = append(combo, rec)
		}
	}
	return single, combo
}

// FetchPricing returns the condensed pricing summary for a drug, preferring
// single-ingredient records. Used by ingestion to enrich pricing without a
// full fetch.
func (s *NADAC) FetchPricing(ctx context.Context, genericName string) (*Pricing, error) {
	records, err := s.query(ctx, genericName, 50)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}

	single, combo := partitionRecords(records, genericName)
	preferred := single
	if len(preferred) == 0 {
		preferred = combo
	}
	return summarizePricing(preferred), nil
}

// FetchDrugData returns a pricing-only record for the drug.
func (s *NADAC) FetchDrugData(ctx context.Context, genericName string) (*model.DrugData, error) {
	pricing, err := s.FetchPricing(ctx, genericName)
	if err != nil {
		return nil, err
	}
	if pricing == nil {
		return nil, nil
	}

	sourceYear := model.CurrentYear()
	if len(pricing.EffectiveDate) >= 4 {
		if y, err := strconv.Atoi(pricing.EffectiveDate[:4]); err == nil {
			sourceYear = y
		}
	}

	// Classification "G" marks a generic in NADAC rate setting.
	genericAvailable := strings.Contains(strings.ToUpper(pricing.Classification), "G")
	perUnit := pricing.PerUnit

	canon := model.CanonicalName(genericName)
	return &model.DrugData{
		GenericName:        canon,
		ApproximateCost:    pricing.DisplayText,
		GenericAvailable:   &genericAvailable,
		UnitPrice:          &perUnit,
		PriceNDC:           pricing.NDC,
		PriceUnit:          pricing.PricingUnit,
		PriceEffectiveDate: pricing.EffectiveDate,
		PackageDescription: pricing.PackageDescription,

		SourceAuthority:     s.Authority(),
		SourceDocumentTitle: "NADAC Weekly Price – " + canon,
		SourceURL:           "https://data.medicaid.gov/dataset/" + nadacDatasetID,
		SourceYear:          sourceYear,
		EffectiveDate:       pricing.EffectiveDate,
		RetrievedAt:         time.Now().UTC().Format(time.RFC3339),
	}, nil
}

// FetchInteractions always returns nothing; NADAC is pricing-only.
func (s *NADAC) FetchInteractions(ctx context.Context, genericName string) ([]model.Interaction, error) {
	return nil, nil
}
