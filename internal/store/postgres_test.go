package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewPostgresFromPool(mock), mock
}

var pgRecordCols = []string{
	"id", "generic_name", "brand_names", "drug_class", "mechanism", "source",
	"indications", "dosage", "safety", "interactions", "pricing", "created_at",
}

func TestPostgres_FindByName(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT (.+) FROM drugs WHERE generic_key = \$1`).
		WithArgs("lisinopril").
		WillReturnRows(pgxmock.NewRows(pgRecordCols).AddRow(
			"id-1", "Lisinopril", `["Prinivil","Zestril"]`, "ACE Inhibitor", "Inhibits ACE.",
			`{"id":"src-1","authority":"FDA","document_title":"FDA Drug Label","retrieved_at":"2025-07-01T00:00:00Z"}`,
			`[{"id":"ind-1","approved_use":"Hypertension","source_id":"src-1"}]`,
			"null", "null", "null", "null", now,
		))

	rec, err := s.FindByName(context.Background(), "Lisinopril")
	require.NoError(t, err)
	require.NotNil(t, rec)

	assert.Equal(t, "id-1", rec.ID)
	assert.Equal(t, []string{"Prinivil", "Zestril"}, rec.BrandNames)
	assert.Equal(t, "FDA", rec.Source.Authority)
	require.Len(t, rec.Indications, 1)
	assert.Equal(t, "Hypertension", rec.Indications[0].ApprovedUse)
	assert.Empty(t, rec.Safety)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_FindByName_Missing(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT (.+) FROM drugs WHERE generic_key = \$1`).
		WithArgs("nothing").
		WillReturnError(pgx.ErrNoRows)

	rec, err := s.FindByName(context.Background(), "nothing")
	require.NoError(t, err)
	assert.Nil(t, rec)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_Exists(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT 1 FROM drugs WHERE generic_key = \$1`).
		WithArgs("lisinopril").
		WillReturnRows(pgxmock.NewRows([]string{"one"}).AddRow(1))

	ok, err := s.Exists(context.Background(), "Lisinopril")
	require.NoError(t, err)
	assert.True(t, ok)

	mock.ExpectQuery(`SELECT 1 FROM drugs WHERE generic_key = \$1`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	ok, err = s.Exists(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_InsertVerifiedDrug_Duplicate(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO drugs").
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "drugs_generic_key_key"})

	err := s.InsertVerifiedDrug(context.Background(), testRecord("Lisinopril"))
	assert.ErrorIs(t, err, ErrDuplicate)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_InsertVerifiedDrug(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO drugs").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	rec := testRecord("Lisinopril")
	require.NoError(t, s.InsertVerifiedDrug(context.Background(), rec))
	assert.NotEmpty(t, rec.ID)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_UpdateDrug_Missing(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("UPDATE drugs SET").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	rec := testRecord("Ghost")
	rec.ID = "no-such-id"
	err := s.UpdateDrug(context.Background(), rec)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_RecentIngestLog(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT (.+) FROM ingestion_log ORDER BY created_at DESC").
		WithArgs(10).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "drug_name", "stage", "status", "confidence",
			"sources_used", "conflicts", "details", "created_at",
		}).AddRow(
			"log-1", "Lisinopril", "verification", "verified", 0.67,
			`["FDA","NIH/NLM"]`, "", "", now,
		))

	entries, err := s.RecentIngestLog(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "verification", entries[0].Stage)
	assert.Equal(t, []string{"FDA", "NIH/NLM"}, entries[0].SourcesUsed)
	assert.InDelta(t, 0.67, entries[0].Confidence, 0.0001)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_PutEmbedding(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO embeddings").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.PutEmbedding(context.Background(), "id-1", "text-embedding-3-small", []float32{0.1, 0.2}))
	require.NoError(t, mock.ExpectationsWereMet())
}
