package queue

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestSelectFailedDecodesRetryCount(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	id := uuid.Must(uuid.NewV7())
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT file_uuid, retry_count FROM queues WHERE state = ? FOR UPDATE`)).
		WithArgs(Failed).
		WillReturnRows(sqlmock.NewRows([]string{"file_uuid", "retry_count"}).AddRow(id[:], 3))
	mock.ExpectRollback()

	tx, err := db.Begin()
	require.NoError(t, err)

	s := &Store{DB: db}
	got, err := s.SelectFailed(context.Background(), tx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, id, got[0].FileUUID)
	require.Equal(t, 3, got[0].RetryCount)
	require.NoError(t, tx.Rollback())
}

func TestResetToReadyTxBumpsRetryCountWhenRequested(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	id := uuid.Must(uuid.NewV7())
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE queues SET state = \?, bot_id = NULL, available_at = \(NOW\(\) \+ INTERVAL \? SECOND\), updated_at = NOW\(\), retry_count = retry_count \+ 1 WHERE file_uuid = \? AND state IN \(\?\)`).
		WithArgs(Ready, 12.5, id[:], Failed).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectRollback()

	tx, err := db.Begin()
	require.NoError(t, err)

	s := &Store{DB: db}
	n, err := s.ResetToReadyTx(context.Background(), tx, id, 12.5, true, Failed)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
	require.NoError(t, tx.Rollback())
}

func TestResetToReadyTxOmitsRetryClauseForUnstick(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	id := uuid.Must(uuid.NewV7())
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE queues SET state = \?, bot_id = NULL, available_at = \(NOW\(\) \+ INTERVAL \? SECOND\), updated_at = NOW\(\) WHERE file_uuid = \? AND state IN \(\?, \?\)`).
		WithArgs(Ready, 3.0, id[:], Claimed, Uploading).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectRollback()

	tx, err := db.Begin()
	require.NoError(t, err)

	s := &Store{DB: db}
	n, err := s.ResetToReadyTx(context.Background(), tx, id, 3.0, false, Claimed, Uploading)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
	require.NoError(t, tx.Rollback())
}
