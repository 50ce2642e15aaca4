package store

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medrex/supply/pkg/database"
	"github.com/medrex/supply/pkg/types"
)

func setupTestRepository(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewRepository(database.Wrap(db, nil, nil), nil, nil), mock
}

func sampleRecord(id string) types.Record {
	return types.Draft{
		Kind:    types.KindCommodity,
		Contact: types.Contact{Name: "Ada", Phone: "0300"},
		Items:   []types.LineItem{{SKU: "A", Price: 2.5, Qty: 2}},
	}.ToRecord(id, time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC))
}

func payloadOf(t *testing.T, rec types.Record) []byte {
	t.Helper()
	b, err := json.Marshal(rec)
	require.NoError(t, err)
	return b
}

func TestRepository_Insert(t *testing.T) {
	repo, mock := setupTestRepository(t)
	rec := sampleRecord("R-1")

	mock.ExpectExec("INSERT INTO orders").
		WithArgs("R-1", "commodity", "Placed", payloadOf(t, rec), time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Insert(context.Background(), rec))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_InsertRejectsBadTimestamp(t *testing.T) {
	repo, mock := setupTestRepository(t)
	rec := sampleRecord("R-1")
	rec.CreatedAt = "yesterday"

	err := repo.Insert(context.Background(), rec)
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_InsertError(t *testing.T) {
	repo, mock := setupTestRepository(t)

	mock.ExpectExec("INSERT INTO orders").WillReturnError(errors.New("duplicate key"))

	err := repo.Insert(context.Background(), sampleRecord("R-1"))
	assert.ErrorContains(t, err, "duplicate key")
}

func TestRepository_Get(t *testing.T) {
	repo, mock := setupTestRepository(t)
	rec := sampleRecord("R-1")

	mock.ExpectQuery(regexp.QuoteMeta("SELECT payload FROM orders WHERE id = $1")).
		WithArgs("R-1").
		WillReturnRows(sqlmock.NewRows([]string{"payload"}).AddRow(payloadOf(t, rec)))

	got, err := repo.Get(context.Background(), "R-1")
	require.NoError(t, err)
	assert.Equal(t, rec, *got)
}

func TestRepository_GetNotFound(t *testing.T) {
	repo, mock := setupTestRepository(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT payload FROM orders WHERE id = $1")).
		WithArgs("R-missing").
		WillReturnRows(sqlmock.NewRows([]string{"payload"}))

	_, err := repo.Get(context.Background(), "R-missing")
	assert.True(t, types.IsType(err, types.ErrorTypeNotFound))
}

func TestRepository_List(t *testing.T) {
	repo, mock := setupTestRepository(t)
	newer, older := sampleRecord("R-2"), sampleRecord("R-1")

	mock.ExpectQuery(regexp.QuoteMeta("SELECT payload FROM orders ORDER BY created_at DESC LIMIT $1")).
		WithArgs(200).
		WillReturnRows(sqlmock.NewRows([]string{"payload"}).
			AddRow(payloadOf(t, newer)).
			AddRow([]byte("{not json")).
			AddRow(payloadOf(t, older)))

	got, err := repo.List(context.Background(), 200)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "R-2", got[0].ID)
	assert.Equal(t, "R-1", got[1].ID)
}

func TestRepository_ListEmpty(t *testing.T) {
	repo, mock := setupTestRepository(t)

	mock.ExpectQuery("SELECT payload FROM orders").
		WillReturnRows(sqlmock.NewRows([]string{"payload"}))

	got, err := repo.List(context.Background(), 10)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestRepository_Ping(t *testing.T) {
	repo, mock := setupTestRepository(t)

	mock.ExpectPing()
	assert.NoError(t, repo.Ping(context.Background()))

	mock.ExpectPing().WillReturnError(errors.New("connection reset"))
	assert.Error(t, repo.Ping(context.Background()))
}
