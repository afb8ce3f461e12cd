package files

import (
	"context"
	"regexp"
	"testing"

	"time"

	"github.com/DATA-DOG/go-sqlmock"
	gomysql "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestInsertTxTreatsDuplicateKeyAsSuccess(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	id := uuid.Must(uuid.NewV7())

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO files (file_uuid, file_id, msg_id, bot_id) VALUES (?, ?, ?, ?)`)).
		WithArgs(id[:], "AgAC123", int64(42), int16(1)).
		WillReturnError(&gomysql.MySQLError{Number: 1062, Message: "Duplicate entry"})
	mock.ExpectCommit()

	tx, err := db.Begin()
	require.NoError(t, err)

	s := &Store{DB: db}
	require.NoError(t, s.InsertTx(context.Background(), tx, id, "AgAC123", 42, 1))
	require.NoError(t, tx.Commit())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertTxPropagatesOtherErrors(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	id := uuid.Must(uuid.NewV7())

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO files (file_uuid, file_id, msg_id, bot_id) VALUES (?, ?, ?, ?)`)).
		WithArgs(id[:], "AgAC123", int64(42), int16(1)).
		WillReturnError(&gomysql.MySQLError{Number: 1452, Message: "fk violation"})

	tx, err := db.Begin()
	require.NoError(t, err)

	s := &Store{DB: db}
	err = s.InsertTx(context.Background(), tx, id, "AgAC123", 42, 1)
	require.Error(t, err)
	_ = tx.Rollback()
}

func TestGetDecodesRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	id := uuid.Must(uuid.NewV7())
	rows := sqlmock.NewRows([]string{"file_uuid", "file_id", "msg_id", "bot_id", "created_at"}).
		AddRow(id[:], "AgAC123", int64(42), int16(1), time.Now())

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT file_uuid, file_id, msg_id, bot_id, created_at FROM files WHERE file_uuid = ?`)).
		WithArgs(id[:]).
		WillReturnRows(rows)

	s := &Store{DB: db}
	r, err := s.Get(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, id, r.FileUUID)
	require.Equal(t, "AgAC123", r.FileID)
}
