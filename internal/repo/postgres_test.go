package repo

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wa-dashboard/internal/apperrors"
)

func newMockRepo(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return newRepository(db, postgres, logger, nil), mock
}

func TestPostgresListSetsOperatorScope(t *testing.T) {
	r, mock := newMockRepo(t)
	owner := "7b0c1f8e-0000-4000-8000-000000000001"
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectExec(`SELECT set_config('app.current_operator', $1, true)`).
		WithArgs(owner).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT id, profile_id, created_at, rule_text FROM bot_rules WHERE profile_id = $1 ORDER BY created_at DESC, id DESC`).
		WithArgs(owner).
		WillReturnRows(sqlmock.NewRows([]string{"id", "profile_id", "created_at", "rule_text"}).
			AddRow(2, owner, now, "Reply in French").
			AddRow(1, owner, now.Add(-time.Hour), "Never share prices"))
	mock.ExpectCommit()

	rows, err := r.BotRules().List(context.Background(), owner)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Reply in French", rows[0].Rule)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresDeleteForeignRowRollsBack(t *testing.T) {
	r, mock := newMockRepo(t)
	owner := "7b0c1f8e-0000-4000-8000-000000000002"

	mock.ExpectBegin()
	mock.ExpectExec(`SELECT set_config('app.current_operator', $1, true)`).
		WithArgs(owner).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`DELETE FROM coupons WHERE id = $1 AND user_id = $2`).
		WithArgs(int64(9), owner).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := r.Coupons().Delete(context.Background(), owner, 9)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreErrorKeepsDriverMessage(t *testing.T) {
	r, mock := newMockRepo(t)
	owner := "7b0c1f8e-0000-4000-8000-000000000003"

	mock.ExpectBegin()
	mock.ExpectExec(`SELECT set_config('app.current_operator', $1, true)`).
		WithArgs(owner).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT COUNT(*) FROM procedures WHERE profile_id = $1`).
		WithArgs(owner).
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	_, err := r.Procedures().Count(context.Background(), owner)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrStore)
	assert.Contains(t, err.Error(), assert.AnError.Error())
	assert.NoError(t, mock.ExpectationsWereMet())
}
