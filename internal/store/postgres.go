package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/clerasense/drugfacts-cli/internal/db"
	"github.com/clerasense/drugfacts-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresFromPool wraps an existing pool; used by tests with pgxmock.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, closeFn: pool.Close}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS drugs (
	id           TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	generic_name TEXT NOT NULL,
	generic_key  TEXT NOT NULL UNIQUE,
	brand_names  JSONB,
	drug_class   TEXT,
	mechanism    TEXT,
	source       JSONB NOT NULL,
	indications  JSONB,
	dosage       JSONB,
	safety       JSONB,
	interactions JSONB,
	pricing      JSONB,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS ingestion_log (
	id           TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	drug_name    TEXT NOT NULL,
	stage        TEXT NOT NULL,
	status       TEXT NOT NULL,
	confidence   DOUBLE PRECISION,
	sources_used JSONB,
	conflicts    TEXT,
	details      TEXT,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS embeddings (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	drug_id    TEXT NOT NULL UNIQUE REFERENCES drugs(id),
	model      TEXT NOT NULL,
	vector     JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_drugs_generic_key ON drugs(generic_key);
CREATE INDEX IF NOT EXISTS idx_ingestion_log_drug_name ON ingestion_log(drug_name);
CREATE INDEX IF NOT EXISTS idx_ingestion_log_created_at ON ingestion_log(created_at);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func scanPgRecord(row pgx.Row) (*model.Record, error) {
	var rec model.Record
	var brands, source, indications, dosage, safety, interactions, pricing sql.NullString

	err := row.Scan(&rec.ID, &rec.GenericName, &brands, &rec.DrugClass, &rec.MechanismOfAction,
		&source, &indications, &dosage, &safety, &interactions, &pricing, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan drug")
	}

	for _, field := range []struct {
		name string
		src  sql.NullString
		dst  any
	}{
		{"brand_names", brands, &rec.BrandNames},
		{"source", source, &rec.Source},
		{"indications", indications, &rec.Indications},
		{"dosage", dosage, &rec.Dosage},
		{"safety", safety, &rec.Safety},
		{"interactions", interactions, &rec.Interactions},
		{"pricing", pricing, &rec.Pricing},
	} {
		if !field.src.Valid || field.src.String == "" || field.src.String == "null" {
			continue
		}
		if err := json.Unmarshal([]byte(field.src.String), field.dst); err != nil {
			return nil, eris.Wrapf(err, "postgres: unmarshal %s", field.name)
		}
	}
	return &rec, nil
}

func scanPgRecords(rows pgx.Rows) ([]model.Record, error) {
	defer rows.Close()
	var out []model.Record
	for rows.Next() {
		rec, err := scanPgRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate drugs")
}

func (s *PostgresStore) Exists(ctx context.Context, genericName string) (bool, error) {
	var one int
	err := s.pool.QueryRow(ctx,
		`SELECT 1 FROM drugs WHERE generic_key = $1`, genericKey(genericName),
	).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, eris.Wrap(err, "postgres: exists")
	}
	return true, nil
}

func (s *PostgresStore) FindByName(ctx context.Context, name string) (*model.Record, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+recordColumns+` FROM drugs WHERE generic_key = $1`, genericKey(name))
	rec, err := scanPgRecord(row)
	return rec, eris.Wrap(err, "postgres: find by name")
}

func (s *PostgresStore) FindByNameOrBrand(ctx context.Context, name string) (*model.Record, error) {
	rec, err := s.FindByName(ctx, name)
	if err != nil || rec != nil {
		return rec, err
	}

	key := genericKey(name)
	row := s.pool.QueryRow(ctx,
		`SELECT `+recordColumns+` FROM drugs WHERE generic_key LIKE $1 ORDER BY length(generic_key) LIMIT 1`,
		"%"+key+"%")
	rec, err = scanPgRecord(row)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: find partial")
	}
	if rec != nil {
		return rec, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+recordColumns+` FROM drugs WHERE brand_names::text ILIKE $1`,
		"%"+key+"%")
	if err != nil {
		return nil, eris.Wrap(err, "postgres: brand scan")
	}
	candidates, err := scanPgRecords(rows)
	if err != nil {
		return nil, err
	}
	for i := range candidates {
		if candidates[i].HasBrand(name) {
			return &candidates[i], nil
		}
	}
	return nil, nil
}

func (s *PostgresStore) GetByIDs(ctx context.Context, ids []string) ([]model.Record, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "$" + strconv.Itoa(i+1)
		args[i] = id
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+recordColumns+` FROM drugs WHERE id IN (`+strings.Join(placeholders, ",")+`)`, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get by ids")
	}
	return scanPgRecords(rows)
}

func (s *PostgresStore) SearchDrugs(ctx context.Context, query string, limit int) ([]model.Record, error) {
	if limit <= 0 {
		limit = 20
	}
	key := "%" + genericKey(query) + "%"
	rows, err := s.pool.Query(ctx,
		`SELECT `+recordColumns+` FROM drugs
		 WHERE generic_key LIKE $1 OR brand_names::text ILIKE $2
		 ORDER BY generic_key LIMIT $3`,
		key, key, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: search drugs")
	}
	return scanPgRecords(rows)
}

func (s *PostgresStore) ListDrugs(ctx context.Context, limit, offset int) ([]model.Record, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+recordColumns+` FROM drugs ORDER BY generic_key LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list drugs")
	}
	return scanPgRecords(rows)
}

func (s *PostgresStore) InsertVerifiedDrug(ctx context.Context, rec *model.Record) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	cols, err := marshalRecord(rec)
	if err != nil {
		return eris.Wrap(err, "postgres: insert drug")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO drugs (id, generic_name, generic_key, brand_names, drug_class, mechanism,
			source, indications, dosage, safety, interactions, pricing, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		rec.ID, rec.GenericName, genericKey(rec.GenericName), cols.brands, rec.DrugClass,
		rec.MechanismOfAction, cols.source, cols.indications, cols.dosage, cols.safety,
		cols.interactions, cols.pricing, rec.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return eris.Wrap(err, "postgres: insert drug")
	}
	return nil
}

func (s *PostgresStore) UpdateDrug(ctx context.Context, rec *model.Record) error {
	cols, err := marshalRecord(rec)
	if err != nil {
		return eris.Wrap(err, "postgres: update drug")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE drugs SET generic_name = $1, generic_key = $2, brand_names = $3, drug_class = $4,
			mechanism = $5, source = $6, indications = $7, dosage = $8, safety = $9,
			interactions = $10, pricing = $11
		 WHERE id = $12`,
		rec.GenericName, genericKey(rec.GenericName), cols.brands, rec.DrugClass,
		rec.MechanismOfAction, cols.source, cols.indications, cols.dosage, cols.safety,
		cols.interactions, cols.pricing, rec.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update drug %s", rec.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("drug not found: %s", rec.ID)
	}
	return nil
}

func (s *PostgresStore) AppendIngestLog(ctx context.Context, entry *model.IngestLogEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	sources, err := json.Marshal(entry.SourcesUsed)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal sources")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO ingestion_log (id, drug_name, stage, status, confidence, sources_used, conflicts, details, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		entry.ID, entry.DrugName, entry.Stage, entry.Status, entry.Confidence,
		string(sources), entry.Conflicts, entry.Details, entry.CreatedAt,
	)
	return eris.Wrap(err, "postgres: append ingest log")
}

func (s *PostgresStore) RecentIngestLog(ctx context.Context, limit int) ([]model.IngestLogEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, drug_name, stage, status, confidence, sources_used, conflicts, details, created_at
		 FROM ingestion_log ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: recent ingest log")
	}
	defer rows.Close()

	var entries []model.IngestLogEntry
	for rows.Next() {
		var e model.IngestLogEntry
		var confidence sql.NullFloat64
		var sources, conflicts, details sql.NullString
		if err := rows.Scan(&e.ID, &e.DrugName, &e.Stage, &e.Status, &confidence,
			&sources, &conflicts, &details, &e.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan ingest log")
		}
		e.Confidence = confidence.Float64
		e.Conflicts = conflicts.String
		e.Details = details.String
		if sources.Valid && sources.String != "" && sources.String != "null" {
			if err := json.Unmarshal([]byte(sources.String), &e.SourcesUsed); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal sources")
			}
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "postgres: ingest log iterate")
}

func (s *PostgresStore) PutEmbedding(ctx context.Context, drugID, embeddingModel string, vector []float32) error {
	vec, err := json.Marshal(vector)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal vector")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO embeddings (id, drug_id, model, vector, created_at) VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (drug_id) DO UPDATE SET model = EXCLUDED.model, vector = EXCLUDED.vector, created_at = EXCLUDED.created_at`,
		uuid.New().String(), drugID, embeddingModel, string(vec), time.Now().UTC(),
	)
	return eris.Wrap(err, "postgres: put embedding")
}
