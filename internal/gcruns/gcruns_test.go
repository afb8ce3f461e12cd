package gcruns

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func TestCountsEmpty(t *testing.T) {
	require.True(t, Counts{}.Empty())
	require.False(t, Counts{Unstick: 1}.Empty())
	require.False(t, Counts{Deleted: 1}.Empty())
}

func TestInsertTxWritesAllCounts(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO gc_runs (cnt_unstick, cnt_recommit, cnt_retry, cnt_deleted) VALUES (?, ?, ?, ?)`)).
		WithArgs(1, 2, 3, 4).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	tx, err := db.Begin()
	require.NoError(t, err)

	s := &Store{DB: db}
	require.NoError(t, s.InsertTx(context.Background(), tx, Counts{Unstick: 1, Recommit: 2, Retry: 3, Deleted: 4}))
	require.NoError(t, tx.Commit())
	require.NoError(t, mock.ExpectationsWereMet())
}
