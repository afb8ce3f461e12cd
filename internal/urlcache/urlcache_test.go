package urlcache

import (
	"context"
	"database/sql"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestGetMissReturnsErrNoRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	id := uuid.Must(uuid.NewV7())
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT file_id, bot_token FROM url_caches WHERE file_uuid = ?`)).
		WithArgs(id[:]).
		WillReturnError(sql.ErrNoRows)

	s := &Store{DB: db}
	_, err = s.Get(context.Background(), id)
	require.ErrorIs(t, err, sql.ErrNoRows)
}

func TestInsertIgnoreUsesInsertIgnoreSyntax(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	id := uuid.Must(uuid.NewV7())
	mock.ExpectExec(regexp.QuoteMeta(`INSERT IGNORE INTO url_caches (file_uuid, file_id, bot_token) VALUES (?, ?, ?)`)).
		WithArgs(id[:], "AgAC123", "bot-token").
		WillReturnResult(sqlmock.NewResult(1, 1))

	s := &Store{DB: db}
	require.NoError(t, s.InsertIgnore(context.Background(), db, id, "AgAC123", "bot-token"))
	require.NoError(t, mock.ExpectationsWereMet())
}
