// Package files implements the write-once indexed-files table: once a
// row exists for a file_uuid, it is never mutated, and its existence
// is the single source of truth that an upload reached terminal
// success.
package files

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
)

// Row mirrors one files table row.
type Row struct {
	FileUUID  uuid.UUID
	FileID    string
	MsgID     int64
	BotID     int16
	CreatedAt time.Time
}

// Store is the files repository.
type Store struct {
	DB *sql.DB
}

// InsertTx inserts a new files row inside the caller's transaction. A
// duplicate-key error (the row already exists, e.g. from a previous
// commit attempt the sweeper is redoing) is treated as success, per
// spec §4.3 phase 2.
func (s *Store) InsertTx(ctx context.Context, tx *sql.Tx, id uuid.UUID, fileID string, msgID int64, botID int16) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO files (file_uuid, file_id, msg_id, bot_id) VALUES (?, ?, ?, ?)`,
		id[:], fileID, msgID, botID,
	)
	if err == nil {
		return nil
	}
	var mysqlErr *mysql.MySQLError
	if ok := asMySQLDuplicate(err, &mysqlErr); ok {
		return nil
	}
	return fmt.Errorf("files: insert %s: %w", id, err)
}

func asMySQLDuplicate(err error, target **mysql.MySQLError) bool {
	me, ok := err.(*mysql.MySQLError)
	if !ok {
		return false
	}
	*target = me
	return me.Number == 1062 // ER_DUP_ENTRY
}

// Get returns the files row for id, or sql.ErrNoRows if it doesn't
// exist yet (upload still in flight or never happened).
func (s *Store) Get(ctx context.Context, id uuid.UUID) (Row, error) {
	var r Row
	var raw []byte
	err := s.DB.QueryRowContext(ctx,
		`SELECT file_uuid, file_id, msg_id, bot_id, created_at FROM files WHERE file_uuid = ?`, id[:],
	).Scan(&raw, &r.FileID, &r.MsgID, &r.BotID, &r.CreatedAt)
	if err != nil {
		return Row{}, err
	}
	u, err := uuid.FromBytes(raw)
	if err != nil {
		return Row{}, fmt.Errorf("files: decode uuid: %w", err)
	}
	r.FileUUID = u
	return r, nil
}
