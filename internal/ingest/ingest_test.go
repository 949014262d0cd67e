package ingest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clerasense/drugfacts-cli/internal/model"
	"github.com/clerasense/drugfacts-cli/internal/store"
)

// fakeEmbedder records the texts it was asked to embed.
type fakeEmbedder struct {
	texts []string
	err   error
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.texts = append(f.texts, text)
	if f.err != nil {
		return nil, f.err
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

func (f *fakeEmbedder) Model() string { return "text-embedding-3-small" }

func TestIngestOne_EmptyName(t *testing.T) {
	p := NewPipeline(newFakeStore(), newTestRegistry(), nil, 0)
	_, err := p.IngestOne(context.Background(), "   ")
	require.Error(t, err)
}

func TestIngestOne_AlreadyExists(t *testing.T) {
	st := newFakeStore()
	require.NoError(t, st.InsertVerifiedDrug(context.Background(), &model.Record{ID: "id-1", GenericName: "Lisinopril"}))

	fda := &fakeSource{name: "OpenFDA", authority: "FDA", data: fdaTestData("Lisinopril")}
	p := NewPipeline(st, newTestRegistry(fda), nil, 0)

	outcome, err := p.IngestOne(context.Background(), "lisinopril")
	require.NoError(t, err)

	assert.Equal(t, model.IngestStatusSkipped, outcome.Status)
	assert.Equal(t, "Already in database", outcome.Reason)
	// No fetch happens when the drug is already stored.
	assert.Zero(t, fda.fetchCalls())
}

func TestIngestOne_NoSourceData(t *testing.T) {
	st := newFakeStore()
	fda := &fakeSource{name: "OpenFDA", authority: "FDA"}
	nlm := &fakeSource{name: "RxNorm", authority: "NIH/NLM"}
	p := NewPipeline(st, newTestRegistry(fda, nlm), nil, 0)

	outcome, err := p.IngestOne(context.Background(), "Notarealdrug")
	require.NoError(t, err)

	assert.Equal(t, model.IngestStatusNotFound, outcome.Status)
	assert.Equal(t, "No sources returned data", outcome.Reason)
	assert.Equal(t, 1, fda.fetchCalls())
	assert.Equal(t, 1, nlm.fetchCalls())
	assert.Equal(t, []string{"discovery"}, st.logStages())
}

func TestIngestOne_TwoSources(t *testing.T) {
	st := newFakeStore()
	fda := &fakeSource{name: "OpenFDA", authority: "FDA", data: fdaTestData("Lisinopril")}
	nlm := &fakeSource{name: "RxNorm", authority: "NIH/NLM", data: nlmTestData("Lisinopril")}
	emb := &fakeEmbedder{}
	p := NewPipeline(st, newTestRegistry(fda, nlm), emb, 0)

	outcome, err := p.IngestOne(context.Background(), "lisinopril")
	require.NoError(t, err)

	assert.Equal(t, model.IngestStatusIngested, outcome.Status)
	assert.InDelta(t, 0.75, outcome.Confidence, 0.0001)
	assert.Equal(t, []string{"FDA", "NIH/NLM"}, outcome.Sources)
	assert.Empty(t, outcome.Conflicts)
	assert.NotEmpty(t, outcome.RecordID)

	stored, err := st.FindByName(context.Background(), "Lisinopril")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "ACE Inhibitor", stored.DrugClass)
	assert.Equal(t, "FDA", stored.Source.Authority)

	// Embedding was generated and persisted for the new record.
	require.Len(t, emb.texts, 1)
	assert.Contains(t, emb.texts[0], "Drug: Lisinopril")
	assert.Len(t, st.vectors[outcome.RecordID], 3)

	assert.Equal(t, []string{"ingestion"}, st.logStages())
}

func TestIngestOne_SingleAuthoritativeSource(t *testing.T) {
	st := newFakeStore()
	fda := &fakeSource{name: "OpenFDA", authority: "FDA", data: fdaTestData("Lisinopril")}
	p := NewPipeline(st, newTestRegistry(fda), nil, 0)

	outcome, err := p.IngestOne(context.Background(), "Lisinopril")
	require.NoError(t, err)

	assert.Equal(t, model.IngestStatusIngested, outcome.Status)
	assert.InDelta(t, 0.65, outcome.Confidence, 0.0001)
	assert.Equal(t, []string{"FDA"}, outcome.Sources)
}

func TestIngestOne_SourceFailureIsolation(t *testing.T) {
	st := newFakeStore()
	fda := &fakeSource{name: "OpenFDA", authority: "FDA", data: fdaTestData("Lisinopril")}
	broken := &fakeSource{name: "RxNorm", authority: "NIH/NLM", err: errors.New("upstream 503")}
	p := NewPipeline(st, newTestRegistry(fda, broken), nil, 0)

	outcome, err := p.IngestOne(context.Background(), "Lisinopril")
	require.NoError(t, err)

	// One adapter failing never fails the pipeline.
	assert.Equal(t, model.IngestStatusIngested, outcome.Status)
	assert.Equal(t, []string{"FDA"}, outcome.Sources)
	assert.Equal(t, 1, broken.fetchCalls())
}

func TestIngestOne_DuplicateRace(t *testing.T) {
	st := newFakeStore()
	require.NoError(t, st.InsertVerifiedDrug(context.Background(), &model.Record{ID: "winner-id", GenericName: "Lisinopril"}))
	st.forceNotExists = true
	st.insertErr = store.ErrDuplicate

	fda := &fakeSource{name: "OpenFDA", authority: "FDA", data: fdaTestData("Lisinopril")}
	p := NewPipeline(st, newTestRegistry(fda), nil, 0)

	outcome, err := p.IngestOne(context.Background(), "Lisinopril")
	require.NoError(t, err)

	assert.Equal(t, model.IngestStatusSkipped, outcome.Status)
	assert.Equal(t, "Already in database", outcome.Reason)
	// The race loser reports the winner's record.
	assert.Equal(t, "winner-id", outcome.RecordID)
}

func TestIngestOne_InsertFailed(t *testing.T) {
	st := newFakeStore()
	st.insertErr = errors.New("disk full")
	fda := &fakeSource{name: "OpenFDA", authority: "FDA", data: fdaTestData("Lisinopril")}
	p := NewPipeline(st, newTestRegistry(fda), nil, 0)

	outcome, err := p.IngestOne(context.Background(), "Lisinopril")
	require.NoError(t, err)

	assert.Equal(t, model.IngestStatusInsertFailed, outcome.Status)
	assert.Equal(t, []string{"insertion"}, st.logStages())
}

func TestBuildRecord_SafetyFallbacks(t *testing.T) {
	merged := &model.DrugData{
		GenericName:     "lisinopril",
		SourceAuthority: "FDA",
	}
	rec := buildRecord(merged)

	assert.Equal(t, "Lisinopril", rec.GenericName)
	assert.NotEmpty(t, rec.ID)

	require.Len(t, rec.Safety, 1)
	assert.Equal(t, fallbackContraindications, rec.Safety[0].Contraindications)
	assert.Equal(t, fallbackPregnancyRisk, rec.Safety[0].PregnancyRisk)
	assert.Equal(t, fallbackLactationRisk, rec.Safety[0].LactationRisk)

	// No dosage data means no dosage row at all.
	assert.Empty(t, rec.Dosage)

	require.Len(t, rec.Pricing, 1)
	assert.Equal(t, "estimate", rec.Pricing[0].PricingSource)
	assert.Equal(t, "Contact pharmacy for current pricing", rec.Pricing[0].ApproximateCost)
	assert.False(t, rec.Pricing[0].GenericAvailable)
}

func TestBuildRecord_RealPricing(t *testing.T) {
	unitPrice := 0.0271
	available := true
	merged := &model.DrugData{
		GenericName:       "lisinopril",
		SourceAuthority:   "FDA",
		Contraindications: "History of angioedema.",
		AdultDosage:       "10 mg once daily.",
		UnitPrice:         &unitPrice,
		PriceNDC:          "68180-0513-01",
		GenericAvailable:  &available,
		ApproximateCost:   "$0.0271/EA",
	}
	rec := buildRecord(merged)

	require.Len(t, rec.Dosage, 1)
	assert.Equal(t, "10 mg once daily.", rec.Dosage[0].AdultDosage)

	require.Len(t, rec.Safety, 1)
	assert.Equal(t, "History of angioedema.", rec.Safety[0].Contraindications)

	require.Len(t, rec.Pricing, 1)
	assert.Equal(t, "NADAC", rec.Pricing[0].PricingSource)
	assert.Equal(t, "$0.0271/EA", rec.Pricing[0].ApproximateCost)
	require.NotNil(t, rec.Pricing[0].UnitPrice)
	assert.Equal(t, 0.0271, *rec.Pricing[0].UnitPrice)
	assert.True(t, rec.Pricing[0].GenericAvailable)

	// Every child row points back at the provenance record.
	assert.Equal(t, rec.Source.ID, rec.Dosage[0].SourceID)
	assert.Equal(t, rec.Source.ID, rec.Safety[0].SourceID)
	assert.Equal(t, rec.Source.ID, rec.Pricing[0].SourceID)
}

func TestBuildDrugText_SkipsEmptyFields(t *testing.T) {
	rec := &model.Record{
		GenericName:       "Lisinopril",
		BrandNames:        []string{"Prinivil", "Zestril"},
		MechanismOfAction: "Inhibits ACE.",
		Safety: []model.SafetyRow{
			{Contraindications: "History of angioedema."},
		},
	}
	text := buildDrugText(rec)

	assert.Contains(t, text, "Drug: Lisinopril")
	assert.Contains(t, text, "Brand names: Prinivil, Zestril")
	assert.Contains(t, text, "Mechanism: Inhibits ACE.")
	assert.Contains(t, text, "Contraindications: History of angioedema.")

	// Empty fields never appear as bare labels.
	assert.NotContains(t, text, "Class:")
	assert.NotContains(t, text, "Black box warnings:")
	assert.NotContains(t, text, "Pregnancy risk:")
}

func TestGenerateEmbedding_NilAndFailure(t *testing.T) {
	st := newFakeStore()
	rec := &model.Record{ID: "id-1", GenericName: "Lisinopril"}

	// Nil embedder is a no-op.
	p := NewPipeline(st, newTestRegistry(), nil, 0)
	p.generateEmbedding(context.Background(), rec)
	assert.Empty(t, st.vectors)

	// Embed failure is swallowed; nothing gets stored.
	p = NewPipeline(st, newTestRegistry(), &fakeEmbedder{err: errors.New("rate limited")}, 0)
	p.generateEmbedding(context.Background(), rec)
	assert.Empty(t, st.vectors)
}
