package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/clerasense/drugfacts-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS drugs (
	id           TEXT PRIMARY KEY,
	generic_name TEXT NOT NULL,
	generic_key  TEXT NOT NULL UNIQUE,
	brand_names  TEXT,
	drug_class   TEXT,
	mechanism    TEXT,
	source       TEXT NOT NULL,
	indications  TEXT,
	dosage       TEXT,
	safety       TEXT,
	interactions TEXT,
	pricing      TEXT,
	created_at   DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS ingestion_log (
	id           TEXT PRIMARY KEY,
	drug_name    TEXT NOT NULL,
	stage        TEXT NOT NULL,
	status       TEXT NOT NULL,
	confidence   REAL,
	sources_used TEXT,
	conflicts    TEXT,
	details      TEXT,
	created_at   DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS embeddings (
	id         TEXT PRIMARY KEY,
	drug_id    TEXT NOT NULL UNIQUE REFERENCES drugs(id),
	model      TEXT NOT NULL,
	vector     TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_drugs_generic_key ON drugs(generic_key);
CREATE INDEX IF NOT EXISTS idx_ingestion_log_drug_name ON ingestion_log(drug_name);
CREATE INDEX IF NOT EXISTS idx_ingestion_log_created_at ON ingestion_log(created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func genericKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// recordColumns is the column list shared by every drug SELECT.
const recordColumns = `id, generic_name, brand_names, drug_class, mechanism, source,
	indications, dosage, safety, interactions, pricing, created_at`

type recordJSON struct {
	brands, source, indications, dosage, safety, interactions, pricing string
}

func marshalRecord(rec *model.Record) (*recordJSON, error) {
	var out recordJSON
	for _, field := range []struct {
		name string
		dst  *string
		src  any
	}{
		{"brand_names", &out.brands, rec.BrandNames},
		{"source", &out.source, rec.Source},
		{"indications", &out.indications, rec.Indications},
		{"dosage", &out.dosage, rec.Dosage},
		{"safety", &out.safety, rec.Safety},
		{"interactions", &out.interactions, rec.Interactions},
		{"pricing", &out.pricing, rec.Pricing},
	} {
		b, err := json.Marshal(field.src)
		if err != nil {
			return nil, eris.Wrapf(err, "marshal %s", field.name)
		}
		*field.dst = string(b)
	}
	return &out, nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRecord(row scannable) (*model.Record, error) {
	var rec model.Record
	var brands, source, indications, dosage, safety, interactions, pricing sql.NullString

	err := row.Scan(&rec.ID, &rec.GenericName, &brands, &rec.DrugClass, &rec.MechanismOfAction,
		&source, &indications, &dosage, &safety, &interactions, &pricing, &rec.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "scan drug")
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
			return nil, eris.Wrapf(err, "unmarshal %s", field.name)
		}
	}
	return &rec, nil
}

func scanRecords(rows *sql.Rows) ([]model.Record, error) {
	var out []model.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, eris.Wrap(rows.Err(), "iterate drugs")
}

func (s *SQLiteStore) Exists(ctx context.Context, genericName string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM drugs WHERE generic_key = ?`, genericKey(genericName),
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, eris.Wrap(err, "sqlite: exists")
	}
	return true, nil
}

func (s *SQLiteStore) FindByName(ctx context.Context, name string) (*model.Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM drugs WHERE generic_key = ?`, genericKey(name))
	rec, err := scanRecord(row)
	return rec, eris.Wrap(err, "sqlite: find by name")
}

func (s *SQLiteStore) FindByNameOrBrand(ctx context.Context, name string) (*model.Record, error) {
	rec, err := s.FindByName(ctx, name)
	if err != nil || rec != nil {
		return rec, err
	}

	key := genericKey(name)
	row := s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM drugs WHERE generic_key LIKE ? ORDER BY length(generic_key) LIMIT 1`,
		"%"+key+"%")
	rec, err = scanRecord(row)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: find partial")
	}
	if rec != nil {
		return rec, nil
	}

	// Brand scan: cheap LIKE prefilter on the JSON text, exact match in Go.
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM drugs WHERE brand_names LIKE ? COLLATE NOCASE`,
		"%"+key+"%")
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: brand scan")
	}
	defer rows.Close()

	candidates, err := scanRecords(rows)
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

func (s *SQLiteStore) GetByIDs(ctx context.Context, ids []string) ([]model.Record, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM drugs WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get by ids")
	}
	defer rows.Close()
	return scanRecords(rows)
}

func (s *SQLiteStore) SearchDrugs(ctx context.Context, query string, limit int) ([]model.Record, error) {
	if limit <= 0 {
		limit = 20
	}
	key := genericKey(query)
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM drugs
		 WHERE generic_key LIKE ? OR brand_names LIKE ? COLLATE NOCASE
		 ORDER BY generic_key LIMIT ?`,
		"%"+key+"%", "%"+key+"%", limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: search drugs")
	}
	defer rows.Close()
	return scanRecords(rows)
}

func (s *SQLiteStore) ListDrugs(ctx context.Context, limit, offset int) ([]model.Record, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM drugs ORDER BY generic_key LIMIT ? OFFSET ?`,
		limit, offset)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list drugs")
	}
	defer rows.Close()
	return scanRecords(rows)
}

func (s *SQLiteStore) InsertVerifiedDrug(ctx context.Context, rec *model.Record) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	cols, err := marshalRecord(rec)
	if err != nil {
		return eris.Wrap(err, "sqlite: insert drug")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO drugs (id, generic_name, generic_key, brand_names, drug_class, mechanism,
			source, indications, dosage, safety, interactions, pricing, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.GenericName, genericKey(rec.GenericName), cols.brands, rec.DrugClass,
		rec.MechanismOfAction, cols.source, cols.indications, cols.dosage, cols.safety,
		cols.interactions, cols.pricing, rec.CreatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return ErrDuplicate
		}
		return eris.Wrap(err, "sqlite: insert drug")
	}
	return nil
}

func (s *SQLiteStore) UpdateDrug(ctx context.Context, rec *model.Record) error {
	cols, err := marshalRecord(rec)
	if err != nil {
		return eris.Wrap(err, "sqlite: update drug")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE drugs SET generic_name = ?, generic_key = ?, brand_names = ?, drug_class = ?,
			mechanism = ?, source = ?, indications = ?, dosage = ?, safety = ?,
			interactions = ?, pricing = ?
		 WHERE id = ?`,
		rec.GenericName, genericKey(rec.GenericName), cols.brands, rec.DrugClass,
		rec.MechanismOfAction, cols.source, cols.indications, cols.dosage, cols.safety,
		cols.interactions, cols.pricing, rec.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update drug %s", rec.ID)
	}
	return checkRowsAffected(res, "drug", rec.ID)
}

func (s *SQLiteStore) AppendIngestLog(ctx context.Context, entry *model.IngestLogEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	sources, err := json.Marshal(entry.SourcesUsed)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal sources")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO ingestion_log (id, drug_name, stage, status, confidence, sources_used, conflicts, details, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.DrugName, entry.Stage, entry.Status, entry.Confidence,
		string(sources), entry.Conflicts, entry.Details, entry.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: append ingest log")
}

func (s *SQLiteStore) RecentIngestLog(ctx context.Context, limit int) ([]model.IngestLogEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, drug_name, stage, status, confidence, sources_used, conflicts, details, created_at
		 FROM ingestion_log ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: recent ingest log")
	}
	defer rows.Close()

	var entries []model.IngestLogEntry
	for rows.Next() {
		var e model.IngestLogEntry
		var confidence sql.NullFloat64
		var sources, conflicts, details sql.NullString
		if err := rows.Scan(&e.ID, &e.DrugName, &e.Stage, &e.Status, &confidence,
			&sources, &conflicts, &details, &e.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan ingest log")
		}
		e.Confidence = confidence.Float64
		e.Conflicts = conflicts.String
		e.Details = details.String
		if sources.Valid && sources.String != "" && sources.String != "null" {
			if err := json.Unmarshal([]byte(sources.String), &e.SourcesUsed); err != nil {
				return nil, eris.Wrap(err, "sqlite: unmarshal sources")
			}
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "sqlite: ingest log iterate")
}

func (s *SQLiteStore) PutEmbedding(ctx context.Context, drugID, embeddingModel string, vector []float32) error {
	vec, err := json.Marshal(vector)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal vector")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO embeddings (id, drug_id, model, vector, created_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(drug_id) DO UPDATE SET model = excluded.model, vector = excluded.vector, created_at = excluded.created_at`,
		uuid.New().String(), drugID, embeddingModel, string(vec), time.Now().UTC(),
	)
	return eris.Wrap(err, "sqlite: put embedding")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}
