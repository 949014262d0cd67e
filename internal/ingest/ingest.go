// Package ingest orchestrates the drug ingestion pipeline: fan-out fetch
// from all registered sources, cross-source verification, insertion, and
// embedding generation, with an append-only audit trail.
package ingest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/clerasense/drugfacts-cli/internal/model"
	"github.com/clerasense/drugfacts-cli/internal/source"
	"github.com/clerasense/drugfacts-cli/internal/store"
	"github.com/clerasense/drugfacts-cli/internal/verify"
	"github.com/clerasense/drugfacts-cli/pkg/openai"
)

const defaultAdapterTimeout = 90 * time.Second

// Safety rows are always created so downstream safety features have data to
// point at even when labeling was silent.
const (
	fallbackContraindications = "No specific contraindications listed in FDA labeling."
	fallbackPregnancyRisk     = "Consult prescribing information for pregnancy safety data."
	fallbackLactationRisk     = "Consult prescribing information for lactation safety data."
)

// Pipeline runs the fetch-verify-insert flow. The embedder is optional; a
// nil client skips embedding generation.
type Pipeline struct {
	store          store.Store
	registry       *source.Registry
	embedder       openai.Client
	adapterTimeout time.Duration
}

// NewPipeline creates an ingestion pipeline.
func NewPipeline(st store.Store, reg *source.Registry, embedder openai.Client, adapterTimeout time.Duration) *Pipeline {
	if adapterTimeout <= 0 {
		adapterTimeout = defaultAdapterTimeout
	}
	return &Pipeline{
		store:          st,
		registry:       reg,
		embedder:       embedder,
		adapterTimeout: adapterTimeout,
	}
}

// logIngest appends an audit row. Audit failures are logged and swallowed;
// they never fail the pipeline.
func (p *Pipeline) logIngest(ctx context.Context, drugName, stage, status string, confidence float64, sources []string, conflicts []string, details string) {
	entry := &model.IngestLogEntry{
		DrugName:    drugName,
		Stage:       stage,
		Status:      status,
		Confidence:  confidence,
		SourcesUsed: sources,
		Conflicts:   strings.Join(conflicts, "; "),
		Details:     details,
	}
	if err := p.store.AppendIngestLog(ctx, entry); err != nil {
		zap.L().Warn("failed to write ingestion log",
			zap.String("drug", drugName),
			zap.Error(err),
		)
	}
}

// fetchAll queries every registered source concurrently. Each adapter gets
// its own timeout, and one adapter's failure never blocks the others.
func (p *Pipeline) fetchAll(ctx context.Context, drugName string) []*model.DrugData {
	sources := p.registry.All()
	results := make([]*model.DrugData, len(sources))

	g, gctx := errgroup.WithContext(ctx)
	for i, src := range sources {
		g.Go(func() error {
			fctx, cancel := context.WithTimeout(gctx, p.adapterTimeout)
			defer cancel()

			data, err := src.FetchDrugData(fctx, drugName)
			if err != nil {
				zap.L().Warn("source fetch failed",
					zap.String("source", src.Name()),
					zap.String("drug", drugName),
					zap.Error(err),
				)
				return nil
			}
			if data != nil {
				zap.L().Debug("source returned data",
					zap.String("source", src.Name()),
					zap.String("drug", drugName),
				)
			}
			results[i] = data
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// buildRecord converts verified merged data into the persisted record shape.
func buildRecord(merged *model.DrugData) *model.Record {
	retrievedAt := time.Now().UTC()
	if merged.RetrievedAt != "" {
		if t, err := time.Parse(time.RFC3339, merged.RetrievedAt); err == nil {
			retrievedAt = t
		}
	}
	year := merged.SourceYear
	if year == 0 {
		year = model.CurrentYear()
	}
	src := model.SourceRef{
		ID:              uuid.New().String(),
		Authority:       merged.SourceAuthority,
		DocumentTitle:   merged.SourceDocumentTitle,
		URL:             merged.SourceURL,
		PublicationYear: year,
		EffectiveDate:   merged.EffectiveDate,
		RetrievedAt:     retrievedAt,
	}

	rec := &model.Record{
		ID:                uuid.New().String(),
		GenericName:       model.CanonicalName(merged.GenericName),
		BrandNames:        merged.BrandNames,
		DrugClass:         merged.DrugClass,
		MechanismOfAction: merged.MechanismOfAction,
		Source:            src,
	}

	for _, ind := range merged.Indications {
		if strings.TrimSpace(ind) == "" {
			continue
		}
		rec.Indications = append(rec.Indications, model.IndicationRow{
			ID:          uuid.New().String(),
			ApprovedUse: strings.TrimSpace(ind),
			SourceID:    src.ID,
		})
	}

	if merged.AdultDosage != "" || merged.PediatricDosage != "" {
		rec.Dosage = append(rec.Dosage, model.DosageRow{
			ID:                 uuid.New().String(),
			AdultDosage:        merged.AdultDosage,
			PediatricDosage:    merged.PediatricDosage,
			RenalAdjustment:    merged.RenalAdjustment,
			HepaticAdjustment:  merged.HepaticAdjustment,
			OverdoseInfo:       merged.OverdoseInfo,
			UnderdoseInfo:      merged.UnderdoseInfo,
			AdministrationInfo: merged.AdministrationInfo,
			SourceID:           src.ID,
		})
	}

	safety := model.SafetyRow{
		ID:                uuid.New().String(),
		Contraindications: merged.Contraindications,
		BlackBoxWarnings:  merged.BlackBoxWarnings,
		PregnancyRisk:     merged.PregnancyRisk,
		LactationRisk:     merged.LactationRisk,
		EventCount:        merged.EventCount,
		SeriousEventCount: merged.SeriousEventCount,
		TopReactions:      merged.TopReactions,
		SourceID:          src.ID,
	}
	if safety.Contraindications == "" {
		safety.Contraindications = fallbackContraindications
	}
	if safety.PregnancyRisk == "" {
		safety.PregnancyRisk = fallbackPregnancyRisk
	}
	if safety.LactationRisk == "" {
		safety.LactationRisk = fallbackLactationRisk
	}
	rec.Safety = append(rec.Safety, safety)

	for _, ix := range merged.Interactions {
		rec.Interactions = append(rec.Interactions, model.InteractionRow{
			ID:              uuid.New().String(),
			InteractingDrug: ix.InteractingDrug,
			Severity:        ix.Severity,
			Description:     ix.Description,
			SourceID:        src.ID,
		})
	}

	pricingSource := "estimate"
	if merged.UnitPrice != nil {
		pricingSource = "NADAC"
	}
	cost := merged.ApproximateCost
	if cost == "" {
		cost = "Contact pharmacy for current pricing"
	}
	genericAvailable := false
	if merged.GenericAvailable != nil {
		genericAvailable = *merged.GenericAvailable
	}
	rec.Pricing = append(rec.Pricing, model.PricingRow{
		ID:                 uuid.New().String(),
		ApproximateCost:    cost,
		GenericAvailable:   genericAvailable,
		UnitPrice:          merged.UnitPrice,
		PriceNDC:           merged.PriceNDC,
		PriceEffectiveDate: merged.PriceEffectiveDate,
		PackageDescription: merged.PackageDescription,
		PricingSource:      pricingSource,
		SourceID:           src.ID,
	})

	return rec
}

// buildDrugText flattens a record into the text block that gets embedded.
func buildDrugText(rec *model.Record) string {
	parts := []string{
		"Drug: " + rec.GenericName,
		"Brand names: " + strings.Join(rec.BrandNames, ", "),
		"Class: " + rec.DrugClass,
		"Mechanism: " + rec.MechanismOfAction,
	}
	for _, ind := range rec.Indications {
		parts = append(parts, "Indication: "+ind.ApprovedUse)
	}
	for _, dg := range rec.Dosage {
		parts = append(parts,
			"Adult dosage: "+dg.AdultDosage,
			"Pediatric dosage: "+dg.PediatricDosage,
			"Renal adjustment: "+dg.RenalAdjustment,
			"Hepatic adjustment: "+dg.HepaticAdjustment,
			"Overdose information: "+dg.OverdoseInfo,
			"Administration details: "+dg.AdministrationInfo,
		)
	}
	for _, sw := range rec.Safety {
		parts = append(parts,
			"Contraindications: "+sw.Contraindications,
			"Black box warnings: "+sw.BlackBoxWarnings,
			"Pregnancy risk: "+sw.PregnancyRisk,
			"Lactation risk: "+sw.LactationRisk,
		)
	}
	for _, ix := range rec.Interactions {
		parts = append(parts, fmt.Sprintf("Interaction with %s: %s – %s",
			ix.InteractingDrug, ix.Severity, ix.Description))
	}

	var kept []string
	for _, p := range parts {
		if _, val, ok := strings.Cut(p, ":"); ok && strings.TrimSpace(val) != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "\n")
}

// generateEmbedding embeds the drug profile and stores the vector. Failures
// are logged only; the drug is already committed.
func (p *Pipeline) generateEmbedding(ctx context.Context, rec *model.Record) {
	if p.embedder == nil {
		return
	}
	text := buildDrugText(rec)
	if strings.TrimSpace(text) == "" {
		return
	}
	vec, err := p.embedder.Embed(ctx, text)
	if err != nil {
		zap.L().Warn("embedding generation failed",
			zap.String("drug", rec.GenericName),
			zap.Error(err),
		)
		return
	}
	if err := p.store.PutEmbedding(ctx, rec.ID, p.embedder.Model(), vec); err != nil {
		zap.L().Warn("embedding store failed",
			zap.String("drug", rec.GenericName),
			zap.Error(err),
		)
		return
	}
	zap.L().Info("generated embedding", zap.String("drug", rec.GenericName))
}

// IngestOne runs the full pipeline for a single drug: existence check,
// parallel fetch from all sources, cross-verification, insert, embedding.
// The returned outcome is always non-nil; the error covers only store-level
// failures on the existence check.
func (p *Pipeline) IngestOne(ctx context.Context, drugName string) (*model.IngestOutcome, error) {
	canon := model.CanonicalName(drugName)
	if canon == "" {
		return nil, eris.New("ingest: empty drug name")
	}

	exists, err := p.store.Exists(ctx, canon)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: existence check for %s", canon)
	}
	if exists {
		return &model.IngestOutcome{
			Drug:   canon,
			Status: model.IngestStatusSkipped,
			Reason: "Already in database",
		}, nil
	}

	zap.L().Info("ingesting drug", zap.String("drug", canon))

	results := p.fetchAll(ctx, canon)
	var nonNil []*model.DrugData
	for _, r := range results {
		if r != nil {
			nonNil = append(nonNil, r)
		}
	}
	if len(nonNil) == 0 {
		p.logIngest(ctx, canon, "discovery", string(model.IngestStatusNotFound), 0, nil, nil,
			"No sources returned data")
		return &model.IngestOutcome{
			Drug:   canon,
			Status: model.IngestStatusNotFound,
			Reason: "No sources returned data",
		}, nil
	}

	verification := verify.VerifyDrugData(canon, nonNil)
	if !verification.Verified || verification.MergedData == nil {
		p.logIngest(ctx, canon, "verification", string(model.IngestStatusUnverified), 0,
			verification.SourcesUsed, nil, strings.Join(verification.Notes, "; "))
		return &model.IngestOutcome{
			Drug:    canon,
			Status:  model.IngestStatusUnverified,
			Reason:  strings.Join(verification.Notes, "; "),
			Sources: verification.SourcesUsed,
		}, nil
	}

	rec := buildRecord(verification.MergedData)
	if err := p.store.InsertVerifiedDrug(ctx, rec); err != nil {
		if eris.Is(err, store.ErrDuplicate) {
			// Lost an insert race; the winner's record is what we want.
			if winner, rerr := p.store.FindByName(ctx, canon); rerr == nil && winner != nil {
				return &model.IngestOutcome{
					Drug:     canon,
					Status:   model.IngestStatusSkipped,
					Reason:   "Already in database",
					RecordID: winner.ID,
				}, nil
			}
			return &model.IngestOutcome{
				Drug:   canon,
				Status: model.IngestStatusSkipped,
				Reason: "Already in database",
			}, nil
		}
		zap.L().Error("drug insert failed", zap.String("drug", canon), zap.Error(err))
		p.logIngest(ctx, canon, "insertion", "failed", 0, verification.SourcesUsed, nil,
			"Database insert failed")
		return &model.IngestOutcome{
			Drug:   canon,
			Status: model.IngestStatusInsertFailed,
			Reason: "Database insert failed",
		}, nil
	}

	zap.L().Info("inserted drug",
		zap.String("drug", rec.GenericName),
		zap.String("id", rec.ID),
		zap.Float64("confidence", verification.Confidence),
	)

	p.generateEmbedding(ctx, rec)

	p.logIngest(ctx, canon, "ingestion", string(model.IngestStatusIngested),
		verification.Confidence, verification.SourcesUsed, verification.Conflicts, "")

	return &model.IngestOutcome{
		Drug:       canon,
		Status:     model.IngestStatusIngested,
		Confidence: verification.Confidence,
		Sources:    verification.SourcesUsed,
		Conflicts:  verification.Conflicts,
		RecordID:   rec.ID,
	}, nil
}
