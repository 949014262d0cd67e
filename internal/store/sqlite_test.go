package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clerasense/drugfacts-cli/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func testRecord(name string) *model.Record {
	unitPrice := 0.027
	return &model.Record{
		GenericName:       name,
		BrandNames:        []string{"Prinivil", "Zestril"},
		DrugClass:         "ACE Inhibitor",
		MechanismOfAction: "Inhibits angiotensin-converting enzyme.",
		Source: model.SourceRef{
			ID:            "src-1",
			Authority:     "FDA",
			DocumentTitle: "FDA Drug Label – " + name,
			RetrievedAt:   time.Now().UTC(),
		},
		Indications: []model.IndicationRow{
			{ID: "ind-1", ApprovedUse: "Hypertension", SourceID: "src-1"},
		},
		Dosage: []model.DosageRow{
			{ID: "dos-1", AdultDosage: "10 mg once daily", SourceID: "src-1"},
		},
		Safety: []model.SafetyRow{
			{ID: "saf-1", Contraindications: "History of angioedema.", SourceID: "src-1"},
		},
		Interactions: []model.InteractionRow{
			{ID: "ix-1", InteractingDrug: "Lithium", Severity: model.SeverityModerate, Description: "Reduced clearance.", SourceID: "src-1"},
		},
		Pricing: []model.PricingRow{
			{ID: "pr-1", UnitPrice: &unitPrice, PricingSource: "NADAC", GenericAvailable: true, SourceID: "src-1"},
		},
	}
}

func TestSQLite_InsertAndFindByName(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := testRecord("Lisinopril")
	require.NoError(t, s.InsertVerifiedDrug(ctx, rec))
	assert.NotEmpty(t, rec.ID)
	assert.False(t, rec.CreatedAt.IsZero())

	got, err := s.FindByName(ctx, "  LISINOPRIL ")
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, "Lisinopril", got.GenericName)
	assert.Equal(t, []string{"Prinivil", "Zestril"}, got.BrandNames)
	assert.Equal(t, "FDA", got.Source.Authority)
	require.Len(t, got.Indications, 1)
	assert.Equal(t, "Hypertension", got.Indications[0].ApprovedUse)
	require.Len(t, got.Interactions, 1)
	assert.Equal(t, model.SeverityModerate, got.Interactions[0].Severity)
	require.Len(t, got.Pricing, 1)
	require.NotNil(t, got.Pricing[0].UnitPrice)
	assert.Equal(t, 0.027, *got.Pricing[0].UnitPrice)
}

func TestSQLite_FindByName_Missing(t *testing.T) {
	s := newTestStore(t)
	got, err := s.FindByName(context.Background(), "nothing")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLite_Exists(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ok, err := s.Exists(ctx, "Lisinopril")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.InsertVerifiedDrug(ctx, testRecord("Lisinopril")))

	ok, err = s.Exists(ctx, "lisinopril")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSQLite_DuplicateInsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertVerifiedDrug(ctx, testRecord("Lisinopril")))

	err := s.InsertVerifiedDrug(ctx, testRecord("LISINOPRIL"))
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestSQLite_FindByNameOrBrand(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertVerifiedDrug(ctx, testRecord("Lisinopril")))

	// Exact generic.
	got, err := s.FindByNameOrBrand(ctx, "lisinopril")
	require.NoError(t, err)
	require.NotNil(t, got)

	// Brand name, case-insensitive.
	got, err = s.FindByNameOrBrand(ctx, "ZESTRIL")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Lisinopril", got.GenericName)

	// Partial generic resolves to the shortest key.
	require.NoError(t, s.InsertVerifiedDrug(ctx, testRecord("Lisinopril And Hydrochlorothiazide")))
	got, err = s.FindByNameOrBrand(ctx, "lisinopr")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Lisinopril", got.GenericName)

	got, err = s.FindByNameOrBrand(ctx, "totallyunknown")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLite_GetByIDs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := testRecord("Lisinopril")
	b := testRecord("Metformin")
	require.NoError(t, s.InsertVerifiedDrug(ctx, a))
	require.NoError(t, s.InsertVerifiedDrug(ctx, b))

	recs, err := s.GetByIDs(ctx, []string{a.ID, b.ID, "missing-id"})
	require.NoError(t, err)
	assert.Len(t, recs, 2)

	recs, err = s.GetByIDs(ctx, nil)
	require.NoError(t, err)
	assert.Nil(t, recs)
}

func TestSQLite_SearchDrugs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertVerifiedDrug(ctx, testRecord("Lisinopril")))
	require.NoError(t, s.InsertVerifiedDrug(ctx, testRecord("Metformin")))

	recs, err := s.SearchDrugs(ctx, "lisin", 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "Lisinopril", recs[0].GenericName)

	// Brand substring also matches.
	recs, err = s.SearchDrugs(ctx, "zestril", 10)
	require.NoError(t, err)
	assert.Len(t, recs, 2)
}

func TestSQLite_ListDrugs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, name := range []string{"Atorvastatin", "Lisinopril", "Metformin"} {
		require.NoError(t, s.InsertVerifiedDrug(ctx, testRecord(name)))
	}

	page, err := s.ListDrugs(ctx, 2, 0)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "Atorvastatin", page[0].GenericName)
	assert.Equal(t, "Lisinopril", page[1].GenericName)

	page, err = s.ListDrugs(ctx, 2, 2)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "Metformin", page[0].GenericName)
}

func TestSQLite_UpdateDrug(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := testRecord("Lisinopril")
	require.NoError(t, s.InsertVerifiedDrug(ctx, rec))

	rec.DrugClass = "Angiotensin-Converting Enzyme Inhibitor"
	rec.BrandNames = append(rec.BrandNames, "Qbrelis")
	require.NoError(t, s.UpdateDrug(ctx, rec))

	got, err := s.FindByName(ctx, "Lisinopril")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Angiotensin-Converting Enzyme Inhibitor", got.DrugClass)
	assert.Contains(t, got.BrandNames, "Qbrelis")
}

func TestSQLite_UpdateDrug_Missing(t *testing.T) {
	s := newTestStore(t)
	rec := testRecord("Ghost")
	rec.ID = "no-such-id"
	err := s.UpdateDrug(context.Background(), rec)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestSQLite_IngestLog(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := &model.IngestLogEntry{
		DrugName:    "Lisinopril",
		Stage:       "verification",
		Status:      "verified",
		Confidence:  0.67,
		SourcesUsed: []string{"FDA", "NIH/NLM"},
		CreatedAt:   time.Now().UTC().Add(-time.Minute),
	}
	second := &model.IngestLogEntry{
		DrugName:  "Lisinopril",
		Stage:     "ingestion",
		Status:    "ingested",
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, s.AppendIngestLog(ctx, first))
	require.NoError(t, s.AppendIngestLog(ctx, second))

	entries, err := s.RecentIngestLog(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	// Newest first.
	assert.Equal(t, "ingestion", entries[0].Stage)
	assert.Equal(t, "verification", entries[1].Stage)
	assert.Equal(t, []string{"FDA", "NIH/NLM"}, entries[1].SourcesUsed)
	assert.InDelta(t, 0.67, entries[1].Confidence, 0.0001)
}

func TestSQLite_PutEmbedding_Upsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := testRecord("Lisinopril")
	require.NoError(t, s.InsertVerifiedDrug(ctx, rec))

	require.NoError(t, s.PutEmbedding(ctx, rec.ID, "text-embedding-3-small", []float32{0.1, 0.2}))
	// Second write replaces the row instead of violating the unique key.
	require.NoError(t, s.PutEmbedding(ctx, rec.ID, "text-embedding-3-small", []float32{0.3, 0.4}))
}
