package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPartitionRecords(t *testing.T) {
	records := []nadacRecord{
		{NDCDescription: "METFORMIN HCL 500 MG TABLET"},
		{NDCDescription: "METFORMIN ER 750 MG TABLET"},
		{NDCDescription: "GLYBURIDE-METFORMIN 5-500 MG"},
		{NDCDescription: "PIOGLITAZONE-METFORMIN 15-850"},
	}

	single, combo := partitionRecords(records, "metformin")
	require.Len(t, single, 2)
	require.Len(t, combo, 2)
	assert.Equal(t, "METFORMIN HCL 500 MG TABLET", single[0].NDCDescription)
	assert.Equal(t, "GLYBURIDE-METFORMIN 5-500 MG", combo[0].NDCDescription)
}

func TestSummarizePricing(t *testing.T) {
	records := []nadacRecord{
		{
			NDC:            "68180-0513-01",
			NDCDescription: "LISINOPRIL 10 MG TABLET",
			NADACPerUnit:   "0.02710",
			PricingUnit:    "EA",
			EffectiveDate:  "2025-07-01",
			Classification: "G",
		},
		{
			// Older price for the same formulation must lose.
			NDC:            "68180-0513-01",
			NDCDescription: "LISINOPRIL 10 MG TABLET",
			NADACPerUnit:   "0.09000",
			PricingUnit:    "EA",
			EffectiveDate:  "2024-01-01",
			Classification: "G",
		},
		{
			NDC:            "68180-0514-01",
			NDCDescription: "LISINOPRIL 20 MG TABLET",
			NADACPerUnit:   "0.03500",
			PricingUnit:    "EA",
			EffectiveDate:  "2025-07-01",
			Classification: "G",
		},
	}

	pricing := summarizePricing(records)
	require.NotNil(t, pricing)

	assert.Equal(t, 0.0271, pricing.PerUnit)
	assert.Equal(t, "68180-0513-01", pricing.NDC)
	assert.Equal(t, "2025-07-01", pricing.EffectiveDate)
	assert.Equal(t, 2, pricing.FormsCount)

	// Per-each units get a monthly estimate at 30 and 90 units.
	assert.Contains(t, pricing.DisplayText, "$0.0271/EA")
	assert.Contains(t, pricing.DisplayText, "$0.81–$2.44/month")
	assert.Contains(t, pricing.DisplayText, "LISINOPRIL 10 MG TABLET")
}

func TestSummarizePricing_NonEachUnit(t *testing.T) {
	records := []nadacRecord{
		{
			NDCDescription: "INSULIN GLARGINE 100 UNIT/ML",
			NADACPerUnit:   "9.85000",
			PricingUnit:    "ML",
			EffectiveDate:  "2025-07-01",
		},
	}
	pricing := summarizePricing(records)
	require.NotNil(t, pricing)
	assert.Contains(t, pricing.DisplayText, "$9.8500/ML")
	assert.NotContains(t, pricing.DisplayText, "/month")
}

func TestSummarizePricing_Empty(t *testing.T) {
	assert.Nil(t, summarizePricing(nil))
	assert.Nil(t, summarizePricing([]nadacRecord{{NDCDescription: "X", NADACPerUnit: "not-a-number"}}))
}

func TestSummarizePricing_LineCap(t *testing.T) {
	var records []nadacRecord
	for _, d := range []string{"A 1 MG", "B 2 MG", "C 3 MG", "D 4 MG", "E 5 MG"} {
		records = append(records, nadacRecord{
			NDCDescription: d,
			NADACPerUnit:   "0.10000",
			PricingUnit:    "EA",
			EffectiveDate:  "2025-07-01",
		})
	}
	pricing := summarizePricing(records)
	require.NotNil(t, pricing)
	assert.Equal(t, 5, pricing.FormsCount)
	assert.Len(t, strings.Split(pricing.DisplayText, "; "), 3)
}

func TestNADAC_FetchDrugData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasPrefix(r.URL.Path, "/datastore/query/"))
		assert.Equal(t, "%LISINOPRIL%", r.URL.Query().Get("conditions[0][value]"))
		assert.Equal(t, "LIKE", r.URL.Query().Get("conditions[0][operator]"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results": [
			{
				"ndc": "68180-0513-01",
				"ndc_description": "LISINOPRIL 10 MG TABLET",
				"nadac_per_unit": "0.02710",
				"pricing_unit": "EA",
				"effective_date": "2025-07-01",
				"classification_for_rate_setting": "G"
			},
			{
				"ndc": "00000-0001-01",
				"ndc_description": "LISINOPRIL-HCTZ 10-12.5 MG TAB",
				"nadac_per_unit": "0.04000",
				"pricing_unit": "EA",
				"effective_date": "2025-07-01",
				"classification_for_rate_setting": "G"
			}
		]}`))
	}))
	defer srv.Close()

	s := NewNADAC(testSourceConfig(srv.URL))
	data, err := s.FetchDrugData(context.Background(), "lisinopril")
	require.NoError(t, err)
	require.NotNil(t, data)

	assert.Equal(t, "Lisinopril", data.GenericName)
	assert.Equal(t, "CMS", data.SourceAuthority)
	require.NotNil(t, data.UnitPrice)
	assert.Equal(t, 0.0271, *data.UnitPrice)
	assert.Equal(t, "68180-0513-01", data.PriceNDC)
	assert.Equal(t, 2025, data.SourceYear)
	require.NotNil(t, data.GenericAvailable)
	assert.True(t, *data.GenericAvailable)

	// Clinical fields stay empty; this source is pricing-only.
	assert.Empty(t, data.Contraindications)
	assert.Empty(t, data.MechanismOfAction)
}

func TestNADAC_FetchDrugData_NoResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results": []}`))
	}))
	defer srv.Close()

	s := NewNADAC(testSourceConfig(srv.URL))
	data, err := s.FetchDrugData(context.Background(), "notarealdrug")
	require.NoError(t, err)
	assert.Nil(t, data)

	interactions, err := s.FetchInteractions(context.Background(), "anything")
	require.NoError(t, err)
	assert.Nil(t, interactions)
}

func TestNADAC_Search(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results": [
			{"ndc_description": "LISINOPRIL 10 MG TABLET"},
			{"ndc_description": "LISINOPRIL 20 MG TABLET"},
			{"ndc_description": "LOSARTAN 50 MG TABLET"}
		]}`))
	}))
	defer srv.Close()

	s := NewNADAC(testSourceConfig(srv.URL))
	names, err := s.Search(context.Background(), "lis", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"Lisinopril", "Losartan"}, names)
}
