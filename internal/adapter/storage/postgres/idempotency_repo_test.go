package postgres

import (
	"context"
	"testing"
	"time"

	"qrpay-gateway/internal/core/domain"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertIdempotency(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	rec := &domain.IdempotencyRecord{
		Key:           "transfer:user-001:key-1",
		LedgerEntryID: uuid.New(),
		Response:      []byte(`{"new_balance":100}`),
		CreatedAt:     time.Now().UTC().Truncate(time.Microsecond),
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO idempotency_records").
		WithArgs(rec.Key, rec.LedgerEntryID, rec.Response, rec.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	assert.NoError(t, insertIdempotency(context.Background(), tx, rec))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIdempotencyRepo_Get(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewIdempotencyRepo(mock)
	entryID := uuid.New()
	now := time.Now().UTC().Truncate(time.Microsecond)

	mock.ExpectQuery("SELECT .+ FROM idempotency_records WHERE key").
		WithArgs("transfer:user-001:key-1").
		WillReturnRows(pgxmock.NewRows([]string{"key", "ledger_entry_id", "response_json", "created_at"}).
			AddRow("transfer:user-001:key-1", entryID, []byte(`{"new_balance":100}`), now))

	result, err := repo.Get(context.Background(), "transfer:user-001:key-1")
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, entryID, result.LedgerEntryID)
	assert.Equal(t, []byte(`{"new_balance":100}`), result.Response)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIdempotencyRepo_Get_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewIdempotencyRepo(mock)

	mock.ExpectQuery("SELECT .+ FROM idempotency_records WHERE key").
		WithArgs("nonexistent-key").
		WillReturnRows(pgxmock.NewRows([]string{"key", "ledger_entry_id", "response_json", "created_at"}))

	result, err := repo.Get(context.Background(), "nonexistent-key")
	assert.NoError(t, err)
	assert.Nil(t, result)
	assert.NoError(t, mock.ExpectationsWereMet())
}
