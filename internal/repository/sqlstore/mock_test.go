package sqlstore

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"dctwin/internal/domain"
	"dctwin/internal/repository"
)

func setupMockStore(t *testing.T, dialect Dialect) (*Store, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewWithDB(db, dialect, zap.NewNop()), mock
}

func insertSite(ctx context.Context) func(tx repository.Tx) error {
	return func(tx repository.Tx) error {
		return tx.InsertSite(ctx, &domain.Site{ID: "S1", Name: "Site One"})
	}
}

func TestWithTx_RetriesSerializationFailure(t *testing.T) {
	s, mock := setupMockStore(t, DialectPostgres)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO sites \(id, name\) VALUES \(\$1, \$2\)`).
		WithArgs("S1", "Site One").
		WillReturnError(&pq.Error{Code: "40001", Message: "could not serialize access"})
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO sites`).
		WithArgs("S1", "Site One").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := s.WithTx(ctx, insertSite(ctx))

	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTx_GivesUpAfterMaxRetries(t *testing.T) {
	s, mock := setupMockStore(t, DialectPostgres)
	ctx := context.Background()

	for i := 0; i < maxSerializationRetries; i++ {
		mock.ExpectBegin()
		mock.ExpectExec(`INSERT INTO sites`).
			WillReturnError(&pq.Error{Code: "40P01", Message: "deadlock detected"})
		mock.ExpectRollback()
	}

	err := s.WithTx(ctx, insertSite(ctx))

	require.Error(t, err)
	var pqErr *pq.Error
	assert.True(t, errors.As(err, &pqErr))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTx_DoesNotRetryOtherErrors(t *testing.T) {
	s, mock := setupMockStore(t, DialectPostgres)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO sites`).
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key"})
	mock.ExpectRollback()

	err := s.WithTx(ctx, insertSite(ctx))

	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTx_CommitFailure(t *testing.T) {
	s, mock := setupMockStore(t, DialectSQLite)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO sites \(id, name\) VALUES \(\?, \?\)`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit().WillReturnError(errors.New("disk I/O error"))

	err := s.WithTx(ctx, insertSite(ctx))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to commit transaction")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIsSerializationFailure(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"serialization", &pq.Error{Code: "40001"}, true},
		{"deadlock", &pq.Error{Code: "40P01"}, true},
		{"wrapped", errors.Join(errors.New("ctx"), &pq.Error{Code: "40001"}), true},
		{"unique violation", &pq.Error{Code: "23505"}, false},
		{"plain", errors.New("nope"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isSerializationFailure(tt.err))
		})
	}
}
