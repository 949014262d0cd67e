package ingest

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/clerasense/drugfacts-cli/internal/model"
	"github.com/clerasense/drugfacts-cli/internal/source"
	"github.com/clerasense/drugfacts-cli/internal/store"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

// fakeStore is an in-memory Store for pipeline tests.
type fakeStore struct {
	mu        sync.Mutex
	records   map[string]*model.Record
	log       []model.IngestLogEntry
	vectors   map[string][]float32
	insertErr error
	updateErr error

	// forceNotExists makes Exists report false regardless of contents,
	// simulating a concurrent insert that lands after the existence check.
	forceNotExists bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		records: make(map[string]*model.Record),
		vectors: make(map[string][]float32),
	}
}

func storeKey(name string) string { return strings.ToLower(strings.TrimSpace(name)) }

func (f *fakeStore) Exists(_ context.Context, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.forceNotExists {
		return false, nil
	}
	_, ok := f.records[storeKey(name)]
	return ok, nil
}

func (f *fakeStore) FindByName(_ context.Context, name string) (*model.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.records[storeKey(name)], nil
}

func (f *fakeStore) FindByNameOrBrand(ctx context.Context, name string) (*model.Record, error) {
	f.mu.Lock()
	if rec, ok := f.records[storeKey(name)]; ok {
		f.mu.Unlock()
		return rec, nil
	}
	for _, rec := range f.records {
		if rec.HasBrand(name) {
			f.mu.Unlock()
			return rec, nil
		}
	}
	f.mu.Unlock()
	return nil, nil
}

func (f *fakeStore) GetByIDs(_ context.Context, ids []string) ([]model.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Record
	for _, id := range ids {
		for _, rec := range f.records {
			if rec.ID == id {
				out = append(out, *rec)
			}
		}
	}
	return out, nil
}

func (f *fakeStore) SearchDrugs(_ context.Context, query string, limit int) ([]model.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Record
	for key, rec := range f.records {
		if strings.Contains(key, storeKey(query)) {
			out = append(out, *rec)
		}
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (f *fakeStore) ListDrugs(_ context.Context, limit, offset int) ([]model.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var all []model.Record
	for _, rec := range f.records {
		all = append(all, *rec)
	}
	if offset >= len(all) {
		return nil, nil
	}
	end := min(offset+limit, len(all))
	return all[offset:end], nil
}

func (f *fakeStore) InsertVerifiedDrug(_ context.Context, rec *model.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return f.insertErr
	}
	key := storeKey(rec.GenericName)
	if _, dup := f.records[key]; dup {
		return store.ErrDuplicate
	}
	f.records[key] = rec
	return nil
}

func (f *fakeStore) UpdateDrug(_ context.Context, rec *model.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	f.records[storeKey(rec.GenericName)] = rec
	return nil
}

func (f *fakeStore) AppendIngestLog(_ context.Context, entry *model.IngestLogEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.log = append(f.log, *entry)
	return nil
}

func (f *fakeStore) RecentIngestLog(_ context.Context, limit int) ([]model.IngestLogEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.log) > limit {
		return f.log[len(f.log)-limit:], nil
	}
	return f.log, nil
}

func (f *fakeStore) PutEmbedding(_ context.Context, drugID, _ string, vector []float32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.vectors[drugID] = vector
	return nil
}

func (f *fakeStore) Migrate(context.Context) error { return nil }
func (f *fakeStore) Close() error                  { return nil }

func (f *fakeStore) logStages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var stages []string
	for _, e := range f.log {
		stages = append(stages, e.Stage)
	}
	return stages
}

// fakeSource returns canned drug data for every fetch.
type fakeSource struct {
	name      string
	authority string
	data      *model.DrugData
	err       error
	calls     int
	mu        sync.Mutex
}

func (f *fakeSource) Name() string      { return f.name }
func (f *fakeSource) Authority() string { return f.authority }

func (f *fakeSource) Search(context.Context, string, int) ([]string, error) {
	return nil, nil
}

func (f *fakeSource) FetchDrugData(_ context.Context, _ string) (*model.DrugData, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.data == nil {
		return nil, nil
	}
	copied := *f.data
	return &copied, nil
}

func (f *fakeSource) FetchInteractions(context.Context, string) ([]model.Interaction, error) {
	return nil, nil
}

func (f *fakeSource) fetchCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newTestRegistry(sources ...source.Source) *source.Registry {
	reg := source.NewRegistry()
	for _, s := range sources {
		reg.Register(s)
	}
	return reg
}

func fdaTestData(name string) *model.DrugData {
	return &model.DrugData{
		GenericName:       name,
		BrandNames:        []string{"Prinivil"},
		MechanismOfAction: "Inhibits angiotensin-converting enzyme.",
		Indications:       []string{"Hypertension"},
		AdultDosage:       "10 mg once daily.",
		Contraindications: "History of angioedema.",
		SourceAuthority:   "FDA",
	}
}

func nlmTestData(name string) *model.DrugData {
	return &model.DrugData{
		GenericName:       name,
		DrugClass:         "ACE Inhibitor",
		Contraindications: "History of angioedema.",
		SourceAuthority:   "NIH/NLM",
	}
}
