package ingest

import (
	"context"
	"os"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/clerasense/drugfacts-cli/internal/model"
)

// seedDrugs is the bootstrap discovery list: the most dispensed US
// prescription medications, ordered by clinical importance rather than
// alphabetically so the first batches populate drugs people actually look up.
var seedDrugs = []string{
	// Cardiovascular
	"Lisinopril", "Amlodipine", "Atorvastatin", "Losartan", "Metoprolol",
	"Hydrochlorothiazide", "Simvastatin", "Rosuvastatin", "Pravastatin",
	"Carvedilol", "Valsartan", "Furosemide", "Spironolactone", "Warfarin",
	"Clopidogrel", "Apixaban", "Rivaroxaban", "Diltiazem", "Enalapril",
	// Diabetes
	"Metformin", "Glipizide", "Glyburide", "Sitagliptin", "Empagliflozin",
	"Insulin Glargine", "Liraglutide", "Pioglitazone", "Semaglutide",
	"Dapagliflozin",
	// Respiratory
	"Albuterol", "Montelukast", "Fluticasone", "Tiotropium", "Budesonide",
	"Cetirizine", "Loratadine", "Fexofenadine", "Prednisone", "Prednisolone",
	// Pain / inflammation
	"Ibuprofen", "Acetaminophen", "Naproxen", "Meloxicam", "Celecoxib",
	"Gabapentin", "Pregabalin", "Tramadol", "Cyclobenzaprine", "Diclofenac",
	// Mental health
	"Sertraline", "Escitalopram", "Fluoxetine", "Duloxetine", "Venlafaxine",
	"Bupropion", "Trazodone", "Citalopram", "Paroxetine", "Mirtazapine",
	"Aripiprazole", "Quetiapine", "Risperidone", "Olanzapine", "Lithium",
	"Alprazolam", "Lorazepam", "Clonazepam", "Buspirone", "Hydroxyzine",
	// Gastrointestinal
	"Omeprazole", "Pantoprazole", "Esomeprazole", "Famotidine",
	"Ondansetron", "Metoclopramide", "Sucralfate", "Dicyclomine",
	"Loperamide", "Docusate",
	// Endocrine / thyroid
	"Levothyroxine", "Methimazole",
	// Antibiotics / anti-infectives
	"Amoxicillin", "Azithromycin", "Ciprofloxacin", "Levofloxacin",
	"Doxycycline", "Metronidazole", "Cephalexin", "Sulfamethoxazole",
	"Clindamycin", "Nitrofurantoin", "Fluconazole", "Valacyclovir",
	"Acyclovir",
	// Neurological
	"Levetiracetam", "Topiramate", "Lamotrigine", "Carbamazepine",
	"Sumatriptan", "Donepezil", "Memantine",
	// Other common Rx
	"Tamsulosin", "Finasteride", "Sildenafil", "Tadalafil",
	"Latanoprost", "Timolol", "Cyclosporine",
	"Allopurinol", "Colchicine", "Methotrexate",
}

type seedFile struct {
	Drugs []string `yaml:"drugs"`
}

// loadSeedList returns the discovery drug list: the contents of the YAML
// seed file when one is configured, the built-in list otherwise.
func loadSeedList(path string) ([]string, error) {
	names := seedDrugs
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, eris.Wrapf(err, "discovery: read seed file %s", path)
		}
		var sf seedFile
		if err := yaml.Unmarshal(raw, &sf); err != nil {
			return nil, eris.Wrapf(err, "discovery: parse seed file %s", path)
		}
		if len(sf.Drugs) > 0 {
			names = sf.Drugs
		}
	}

	seen := make(map[string]struct{}, len(names))
	unique := make([]string, 0, len(names))
	for _, d := range names {
		canon := model.CanonicalName(d)
		if canon == "" {
			continue
		}
		key := canon
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		unique = append(unique, canon)
	}
	return unique, nil
}

// DiscoverAndIngest works through the seed list in batches, ingesting drugs
// that are not yet in the store. It stops early when the list is exhausted.
func (p *Pipeline) DiscoverAndIngest(ctx context.Context, seedPath string, batchSize, maxBatches int) (*model.DiscoveryStats, error) {
	if batchSize <= 0 {
		batchSize = 20
	}
	if maxBatches <= 0 {
		maxBatches = 5
	}

	names, err := loadSeedList(seedPath)
	if err != nil {
		return nil, err
	}

	stats := &model.DiscoveryStats{}
	for batch := range maxBatches {
		if err := ctx.Err(); err != nil {
			return stats, eris.Wrap(err, "discovery: canceled")
		}

		skip := batch * batchSize
		if skip >= len(names) {
			zap.L().Info("no more drugs to discover", zap.Int("offset", skip))
			break
		}
		end := min(skip+batchSize, len(names))
		batchNames := names[skip:end]
		stats.Discovered += len(batchNames)

		for _, name := range batchNames {
			outcome, err := p.IngestOne(ctx, name)
			if err != nil {
				zap.L().Error("ingestion error", zap.String("drug", name), zap.Error(err))
				stats.Failed++
				stats.Details = append(stats.Details, model.IngestOutcome{
					Drug:   name,
					Status: model.IngestStatusInsertFailed,
					Reason: err.Error(),
				})
				continue
			}
			switch outcome.Status {
			case model.IngestStatusIngested:
				stats.Ingested++
			case model.IngestStatusSkipped:
				stats.Skipped++
			case model.IngestStatusUnverified:
				stats.Unverified++
			default:
				stats.Failed++
			}
			stats.Details = append(stats.Details, *outcome)
		}

		zap.L().Info("discovery batch complete",
			zap.Int("batch", batch+1),
			zap.Int("max_batches", maxBatches),
			zap.Int("ingested", stats.Ingested),
			zap.Int("skipped", stats.Skipped),
		)
	}
	return stats, nil
}
