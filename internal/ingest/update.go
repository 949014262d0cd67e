package ingest

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/clerasense/drugfacts-cli/internal/model"
	"github.com/clerasense/drugfacts-cli/internal/verify"
)

const updatePageSize = 100

type updateResult int

const (
	updateUnchanged updateResult = iota
	updateApplied
	updateErrored
)

// UpdateExisting re-fetches every stored drug from the sources, re-verifies,
// and updates fields where fresher data is more detailed. Existing data is
// never replaced with something shorter.
func (p *Pipeline) UpdateExisting(ctx context.Context) (*model.UpdateStats, error) {
	stats := &model.UpdateStats{}

	for offset := 0; ; offset += updatePageSize {
		page, err := p.store.ListDrugs(ctx, updatePageSize, offset)
		if err != nil {
			return stats, err
		}
		if len(page) == 0 {
			break
		}

		for i := range page {
			if err := ctx.Err(); err != nil {
				return stats, err
			}
			switch p.updateOne(ctx, &page[i]) {
			case updateApplied:
				stats.Updated++
			case updateErrored:
				stats.Errors++
			default:
				stats.Unchanged++
			}
		}
	}
	return stats, nil
}

func (p *Pipeline) updateOne(ctx context.Context, rec *model.Record) updateResult {
	results := p.fetchAll(ctx, rec.GenericName)
	var nonNil []*model.DrugData
	for _, r := range results {
		if r != nil {
			nonNil = append(nonNil, r)
		}
	}
	if len(nonNil) == 0 {
		return updateUnchanged
	}

	verification := verify.VerifyDrugData(rec.GenericName, nonNil)
	if !verification.Verified || verification.MergedData == nil {
		return updateUnchanged
	}
	merged := verification.MergedData

	updated := false
	if merged.MechanismOfAction != "" && len(merged.MechanismOfAction) > len(rec.MechanismOfAction) {
		rec.MechanismOfAction = merged.MechanismOfAction
		updated = true
	}

	if len(merged.BrandNames) > 0 {
		existing := make(map[string]struct{}, len(rec.BrandNames))
		for _, b := range rec.BrandNames {
			existing[strings.ToLower(b)] = struct{}{}
		}
		for _, b := range merged.BrandNames {
			if _, dup := existing[strings.ToLower(b)]; !dup {
				rec.BrandNames = append(rec.BrandNames, b)
				existing[strings.ToLower(b)] = struct{}{}
				updated = true
			}
		}
	}

	if merged.DrugClass != "" && rec.DrugClass == "" {
		rec.DrugClass = merged.DrugClass
		updated = true
	}

	if !updated {
		return updateUnchanged
	}

	if err := p.store.UpdateDrug(ctx, rec); err != nil {
		zap.L().Error("drug update failed",
			zap.String("drug", rec.GenericName),
			zap.Error(err),
		)
		return updateErrored
	}
	p.generateEmbedding(ctx, rec)
	return updateApplied
}
