package source

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/clerasense/drugfacts-cli/internal/config"
	"github.com/clerasense/drugfacts-cli/internal/model"
)

// RxNorm fetches drug classification and nomenclature from NIH RxNav.
//
// The legacy RxNav interaction endpoint was sunset; interactions come from
// the label-text adapters. RxNorm's value is classes, brand relationships,
// and generic availability.
type RxNorm struct {
	client *httpClient
}

// NewRxNorm creates the RxNorm/RxNav adapter.
func NewRxNorm(cfg config.SourceConfig) *RxNorm {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://rxnav.nlm.nih.gov/REST"
	}
	return &RxNorm{client: newHTTPClient(cfg)}
}

func (s *RxNorm) Name() string      { return "NIH RxNorm / RxNav API" }
func (s *RxNorm) Authority() string { return "NIH/NLM" }

type rxcuiResponse struct {
	IDGroup struct {
		RxNormID []string `json:"rxnormId"`
	} `json:"idGroup"`
}

type rxPropertiesResponse struct {
	Properties struct {
		Name string `json:"name"`
	} `json:"properties"`
}

type rxApproximateResponse struct {
	ApproximateGroup struct {
		Candidate []struct {
			RxCUI string `json:"rxcui"`
		} `json:"candidate"`
	} `json:"approximateGroup"`
}

type rxConceptGroup struct {
	TTY               string `json:"tty"`
	ConceptProperties []struct {
		Name string `json:"name"`
	} `json:"conceptProperties"`
}

type rxRelatedResponse struct {
	RelatedGroup struct {
		ConceptGroup []rxConceptGroup `json:"conceptGroup"`
	} `json:"relatedGroup"`
}

type rxAllRelatedResponse struct {
	AllRelatedGroup struct {
		ConceptGroup []rxConceptGroup `json:"conceptGroup"`
	} `json:"allRelatedGroup"`
}

type rxClassResponse struct {
	RxClassDrugInfoList struct {
		RxClassDrugInfo []struct {
			RxClassMinConceptItem struct {
				ClassName string `json:"className"`
			} `json:"rxclassMinConceptItem"`
		} `json:"rxclassDrugInfo"`
	} `json:"rxclassDrugInfoList"`
}

// getRxCUI looks up the RxNorm concept ID for a drug name using normalized
// search.
func (s *RxNorm) getRxCUI(ctx context.Context, drugName string) (string, error) {
	q := url.Values{}
	q.Set("name", drugName)
	q.Set("search", "2")

	var resp rxcuiResponse
	found, err := s.client.getJSON(ctx, "/rxcui.json", q, &resp)
	if err != nil || !found {
		return "", err
	}
	if len(resp.IDGroup.RxNormID) == 0 {
		return "", nil
	}
	return resp.IDGroup.RxNormID[0], nil
}

// Search resolves approximate matches, then looks up each candidate's
// normalized name.
func (s *RxNorm) Search(ctx context.Context, query string, limit int) ([]string, error) {
	maxEntries := limit
	if maxEntries > 20 {
		maxEntries = 20
	}
	q := url.Values{}
	q.Set("term", query)
	q.Set("maxEntries", strconv.Itoa(maxEntries))

	var resp rxApproximateResponse
	found, err := s.client.getJSON(ctx, "/approximateTerm.json", q, &resp)
	if err != nil || !found {
		return nil, err
	}

	seen := make(map[string]struct{})
	var names []string
	for _, cand := range resp.ApproximateGroup.Candidate {
		if cand.RxCUI == "" {
			continue
		}
		var props rxPropertiesResponse
		ok, err := s.client.getJSON(ctx, "/rxcui/"+cand.RxCUI+"/properties.json", nil, &props)
		if err != nil || !ok {
			continue
		}
		name := model.CanonicalName(props.Properties.Name)
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

func isComboClassName(name string) bool {
	lower := strings.ToLower(name)
	return strings.Contains(lower, "combination") ||
		strings.Contains(lower, " and ") ||
		strings.Contains(lower, " with ")
}

// fetchDrugClass queries RxClass by rxcui, ATC first, falling back to MeSH
// when ATC yields nothing usable or only combination classes.
func (s *RxNorm) fetchDrugClass(ctx context.Context, rxcui string) string {
	query := func(relaSource string) []string {
		q := url.Values{}
		q.Set("rxcui", rxcui)
		q.Set("relaSource", relaSource)
		var resp rxClassResponse
		found, err := s.client.getJSON(ctx, "/rxclass/class/byRxcui.json", q, &resp)
		if err != nil || !found {
			return nil
		}
		var names []string
		for _, info := range resp.RxClassDrugInfoList.RxClassDrugInfo {
			if name := info.RxClassMinConceptItem.ClassName; name != "" {
				names = append(names, name)
			}
		}
		return names
	}

	drugClass := ""
	var comboFallback string
	for _, name := range query("ATC") {
		if isComboClassName(name) {
			if comboFallback == "" {
				comboFallback = name
			}
			continue
		}
		drugClass = name
		break
	}
	if drugClass == "" {
		drugClass = comboFallback
	}

	if drugClass == "" || isComboClassName(drugClass) {
		for _, name := range query("MESH") {
			if !isComboClassName(name) {
				drugClass = name
				break
			}
		}
	}
	return drugClass
}

// FetchDrugData returns classification, brand names, and generic
// availability for a drug concept.
func (s *RxNorm) FetchDrugData(ctx context.Context, genericName string) (*model.DrugData, error) {
	rxcui, err := s.getRxCUI(ctx, genericName)
	if err != nil {
		return nil, err
	}
	if rxcui == "" {
		return nil, nil
	}

	var props rxPropertiesResponse
	found, err := s.client.getJSON(ctx, "/rxcui/"+rxcui+"/properties.json", nil, &props)
	if err != nil || !found {
		return nil, err
	}
	normalizedName := model.CanonicalName(props.Properties.Name)
	if normalizedName == "" {
		normalizedName = model.CanonicalName(genericName)
	}

	var brandNames []string
	q := url.Values{}
	q.Set("tty", "BN")
	var related rxRelatedResponse
	if ok, err := s.client.getJSON(ctx, "/rxcui/"+rxcui+"/related.json", q, &related); err == nil && ok {
		for _, group := range related.RelatedGroup.ConceptGroup {
			for _, prop := range group.ConceptProperties {
				if bn := model.CanonicalName(prop.Name); bn != "" {
					brandNames = append(brandNames, bn)
				}
			}
		}
	}
	if len(brandNames) > 10 {
		brandNames = brandNames[:10]
	}

	// SCD (semantic clinical drug) or GPCK (generic pack) concepts mean a
	// generic formulation exists.
	var genericAvailable *bool
	var allRelated rxAllRelatedResponse
	if ok, err := s.client.getJSON(ctx, "/rxcui/"+rxcui+"/allrelated.json", nil, &allRelated); err == nil && ok {
		for _, group := range allRelated.AllRelatedGroup.ConceptGroup {
			if len(group.ConceptProperties) == 0 {
				continue
			}
			if group.TTY == "SCD" || group.TTY == "GPCK" {
				t := true
				genericAvailable = &t
				break
			}
		}
	}

	drugClass := s.fetchDrugClass(ctx, rxcui)

	return &model.DrugData{
		GenericName:         normalizedName,
		BrandNames:          brandNames,
		DrugClass:           drugClass,
		GenericAvailable:    genericAvailable,
		SourceAuthority:     s.Authority(),
		SourceDocumentTitle: "RxNorm Drug Concept – " + normalizedName + " (RXCUI: " + rxcui + ")",
		SourceURL:           "https://mor.nlm.nih.gov/RxNav/search?searchBy=RXCUI&searchTerm=" + rxcui,
		SourceYear:          model.CurrentYear(),
		RetrievedAt:         time.Now().UTC().Format(time.RFC3339),
	}, nil
}

// FetchInteractions always returns nothing; the RxNav interaction endpoint
// was retired.
func (s *RxNorm) FetchInteractions(ctx context.Context, genericName string) ([]model.Interaction, error) {
	return nil, nil
}
