package ingest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clerasense/drugfacts-cli/internal/model"
)

func TestUpdateExisting_AppliesRicherData(t *testing.T) {
	st := newFakeStore()
	ctx := context.Background()
	require.NoError(t, st.InsertVerifiedDrug(ctx, &model.Record{
		ID:                "id-1",
		GenericName:       "Lisinopril",
		BrandNames:        []string{"Prinivil"},
		MechanismOfAction: "Inhibits ACE.",
	}))

	fresh := fdaTestData("Lisinopril")
	fresh.BrandNames = []string{"prinivil", "Zestril"}
	fresh.DrugClass = "ACE Inhibitor"
	fda := &fakeSource{name: "OpenFDA", authority: "FDA", data: fresh}
	p := NewPipeline(st, newTestRegistry(fda), nil, 0)

	stats, err := p.UpdateExisting(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Updated)
	assert.Zero(t, stats.Unchanged)
	assert.Zero(t, stats.Errors)

	got, err := st.FindByName(ctx, "Lisinopril")
	require.NoError(t, err)
	require.NotNil(t, got)

	// Longer mechanism replaces the stored one.
	assert.Equal(t, "Inhibits angiotensin-converting enzyme.", got.MechanismOfAction)
	// Brand union is case-insensitive; existing casing survives.
	assert.Equal(t, []string{"Prinivil", "Zestril"}, got.BrandNames)
	// Empty class gets filled.
	assert.Equal(t, "ACE Inhibitor", got.DrugClass)
}

func TestUpdateExisting_ShorterDataIsIgnored(t *testing.T) {
	st := newFakeStore()
	ctx := context.Background()
	require.NoError(t, st.InsertVerifiedDrug(ctx, &model.Record{
		ID:                "id-1",
		GenericName:       "Lisinopril",
		BrandNames:        []string{"Prinivil"},
		DrugClass:         "ACE Inhibitor",
		MechanismOfAction: "Inhibits angiotensin-converting enzyme, lowering angiotensin II levels.",
	}))

	fresh := fdaTestData("Lisinopril")
	fresh.DrugClass = "Something Else"
	fda := &fakeSource{name: "OpenFDA", authority: "FDA", data: fresh}
	p := NewPipeline(st, newTestRegistry(fda), nil, 0)

	stats, err := p.UpdateExisting(ctx)
	require.NoError(t, err)

	assert.Zero(t, stats.Updated)
	assert.Equal(t, 1, stats.Unchanged)

	got, err := st.FindByName(ctx, "Lisinopril")
	require.NoError(t, err)
	assert.Equal(t, "Inhibits angiotensin-converting enzyme, lowering angiotensin II levels.", got.MechanismOfAction)
	assert.Equal(t, "ACE Inhibitor", got.DrugClass)
}

func TestUpdateExisting_NoSourceData(t *testing.T) {
	st := newFakeStore()
	ctx := context.Background()
	require.NoError(t, st.InsertVerifiedDrug(ctx, &model.Record{ID: "id-1", GenericName: "Lisinopril"}))

	p := NewPipeline(st, newTestRegistry(&fakeSource{name: "OpenFDA", authority: "FDA"}), nil, 0)
	stats, err := p.UpdateExisting(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Unchanged)
}

func TestUpdateExisting_StoreError(t *testing.T) {
	st := newFakeStore()
	ctx := context.Background()
	require.NoError(t, st.InsertVerifiedDrug(ctx, &model.Record{ID: "id-1", GenericName: "Lisinopril"}))
	st.updateErr = errors.New("write failed")

	fda := &fakeSource{name: "OpenFDA", authority: "FDA", data: fdaTestData("Lisinopril")}
	p := NewPipeline(st, newTestRegistry(fda), nil, 0)

	stats, err := p.UpdateExisting(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Errors)
}
