// Package lookup is the single entry point for retrieving drug records.
// Every consumer goes through it so that on-demand ingestion, verification,
// and source backing apply uniformly.
package lookup

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/clerasense/drugfacts-cli/internal/ingest"
	"github.com/clerasense/drugfacts-cli/internal/model"
	"github.com/clerasense/drugfacts-cli/internal/source"
	"github.com/clerasense/drugfacts-cli/internal/store"
)

const defaultWorkers = 4

// Service resolves drug names to verified records, ingesting on demand when
// a name is not in the store yet.
type Service struct {
	store    store.Store
	pipeline *ingest.Pipeline
	registry *source.Registry
	workers  int
}

// NewService creates a lookup service. workers bounds parallel on-demand
// ingestion during batch lookups.
func NewService(st store.Store, pipeline *ingest.Pipeline, reg *source.Registry, workers int) *Service {
	if workers <= 0 {
		workers = defaultWorkers
	}
	return &Service{
		store:    st,
		pipeline: pipeline,
		registry: reg,
		workers:  workers,
	}
}

// onDemandIngest runs the ingestion pipeline for a missing drug and returns
// the stored record when ingestion lands one.
func (s *Service) onDemandIngest(ctx context.Context, name string) (*model.Record, error) {
	outcome, err := s.pipeline.IngestOne(ctx, name)
	if err != nil {
		return nil, err
	}
	switch outcome.Status {
	case model.IngestStatusIngested, model.IngestStatusSkipped:
		// Skipped covers the insert race: another caller got there first.
		return s.store.FindByName(ctx, name)
	default:
		zap.L().Info("on-demand ingestion did not land a record",
			zap.String("drug", name),
			zap.String("status", string(outcome.Status)),
		)
		return nil, nil
	}
}

// LookupOne resolves a single name: exact match, partial match, brand-name
// match, then on-demand ingestion. Returns (nil, nil) when the drug cannot
// be found anywhere.
func (s *Service) LookupOne(ctx context.Context, name string) (*model.Record, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil
	}

	rec, err := s.store.FindByNameOrBrand(ctx, name)
	if err != nil {
		return nil, eris.Wrapf(err, "lookup: %s", name)
	}
	if rec != nil {
		return rec, nil
	}

	zap.L().Info("drug not in store, attempting on-demand ingestion", zap.String("drug", name))
	return s.onDemandIngest(ctx, name)
}

// LookupMany resolves a batch of names. Phase 1 scans the store; phase 2
// ingests the missing names in parallel with bounded workers; phase 3
// reloads everything in one query so results are consistent. Input order is
// preserved and duplicate records are collapsed.
func (s *Service) LookupMany(ctx context.Context, names []string) ([]model.Record, []string, error) {
	var cleanNames []string
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			cleanNames = append(cleanNames, n)
		}
	}
	if len(cleanNames) == 0 {
		return nil, nil, nil
	}

	foundMap := make(map[string]*model.Record, len(cleanNames))
	var missing []string
	for _, name := range cleanNames {
		if _, done := foundMap[name]; done {
			continue
		}
		rec, err := s.store.FindByNameOrBrand(ctx, name)
		if err != nil {
			return nil, nil, eris.Wrapf(err, "lookup: batch scan %s", name)
		}
		if rec != nil {
			foundMap[name] = rec
		} else {
			missing = append(missing, name)
		}
	}

	if len(missing) > 0 {
		type ingested struct {
			name string
			rec  *model.Record
		}
		results := make([]ingested, len(missing))

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(min(len(missing), s.workers))
		for i, name := range missing {
			g.Go(func() error {
				rec, err := s.onDemandIngest(gctx, name)
				if err != nil {
					zap.L().Error("parallel ingestion error",
						zap.String("drug", name),
						zap.Error(err),
					)
					return nil
				}
				results[i] = ingested{name: name, rec: rec}
				return nil
			})
		}
		_ = g.Wait()

		for _, r := range results {
			if r.rec != nil {
				foundMap[r.name] = r.rec
			}
		}
	}

	// Reload by ID so every returned record reflects the store, including
	// rows just written by the parallel workers.
	var ids []string
	for _, rec := range foundMap {
		ids = append(ids, rec.ID)
	}
	reloaded := make(map[string]model.Record, len(ids))
	if len(ids) > 0 {
		recs, err := s.store.GetByIDs(ctx, ids)
		if err != nil {
			return nil, nil, eris.Wrap(err, "lookup: batch reload")
		}
		for _, rec := range recs {
			reloaded[rec.ID] = rec
		}
	}

	var found []model.Record
	var notFound []string
	seenIDs := make(map[string]struct{})
	for _, name := range cleanNames {
		rec, ok := foundMap[name]
		if !ok {
			notFound = append(notFound, name)
			continue
		}
		fresh, loaded := reloaded[rec.ID]
		if !loaded {
			continue
		}
		if _, dup := seenIDs[rec.ID]; dup {
			continue
		}
		seenIDs[rec.ID] = struct{}{}
		found = append(found, fresh)
	}
	return found, notFound, nil
}

// Search finds drugs matching a free-text query. The store is consulted
// first; when it has nothing, candidate names are discovered from the
// sources and looked up (triggering ingestion).
func (s *Service) Search(ctx context.Context, query string, limit int) ([]model.Record, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}

	results, err := s.store.SearchDrugs(ctx, query, limit)
	if err != nil {
		return nil, eris.Wrapf(err, "lookup: search %s", query)
	}
	if len(results) > 0 {
		return results, nil
	}

	for _, src := range s.registry.All() {
		names, err := src.Search(ctx, query, 5)
		if err != nil {
			zap.L().Warn("external drug search failed",
				zap.String("source", src.Name()),
				zap.Error(err),
			)
			continue
		}
		for _, name := range names {
			rec, err := s.LookupOne(ctx, name)
			if err != nil {
				zap.L().Warn("search lookup failed", zap.String("drug", name), zap.Error(err))
				continue
			}
			if rec != nil {
				results = append(results, *rec)
				if len(results) >= limit {
					return results, nil
				}
			}
		}
		if len(results) > 0 {
			break
		}
	}
	return results, nil
}
