// Package store persists verified drug records, the ingestion audit log,
// and embeddings behind a driver-agnostic interface.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/clerasense/drugfacts-cli/internal/model"
)

// ErrDuplicate is returned by InsertVerifiedDrug when a record with the same
// generic name (case-insensitive) already exists. Two concurrent ingestions
// of the same drug race to the unique index; the loser gets this error and
// can re-read the winner's record.
var ErrDuplicate = eris.New("store: drug already exists")

// Store defines the persistence interface for verified drug records.
// Lookup methods return (nil, nil) when nothing matches.
type Store interface {
	// Drugs
	Exists(ctx context.Context, genericName string) (bool, error)
	FindByName(ctx context.Context, name string) (*model.Record, error)
	FindByNameOrBrand(ctx context.Context, name string) (*model.Record, error)
	GetByIDs(ctx context.Context, ids []string) ([]model.Record, error)
	SearchDrugs(ctx context.Context, query string, limit int) ([]model.Record, error)
	ListDrugs(ctx context.Context, limit, offset int) ([]model.Record, error)
	InsertVerifiedDrug(ctx context.Context, rec *model.Record) error
	UpdateDrug(ctx context.Context, rec *model.Record) error

	// Audit log
	AppendIngestLog(ctx context.Context, entry *model.IngestLogEntry) error
	RecentIngestLog(ctx context.Context, limit int) ([]model.IngestLogEntry, error)

	// Embeddings
	PutEmbedding(ctx context.Context, drugID, embeddingModel string, vector []float32) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
