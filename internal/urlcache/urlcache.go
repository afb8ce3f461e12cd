// Package urlcache implements the L2 URL cache: the durable
// (file_id, bot_token) pair a resolver hit needs to re-materialize a
// download URL without going back to the files/bots tables. It is
// intentionally not TTL-bounded (see spec §4.4's freshness policy) —
// a stale file_id still yields a working path after a fresh getFile
// call.
package urlcache

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// Row mirrors one url_caches table row.
type Row struct {
	FileID   string
	BotToken string
}

// Store is the url_caches repository.
type Store struct {
	DB *sql.DB
}

// Get returns the cached (file_id, bot_token) pair for id, or
// sql.ErrNoRows on a miss.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (Row, error) {
	var r Row
	err := s.DB.QueryRowContext(ctx,
		`SELECT file_id, bot_token FROM url_caches WHERE file_uuid = ?`, id[:],
	).Scan(&r.FileID, &r.BotToken)
	return r, err
}

// InsertIgnore writes one L2 cache row. A pre-existing row is left
// untouched, matching the original's INSERT IGNORE semantics. The
// resolver's warm after an L3 (files-table) hit does not call it; it
// enqueues the same statement on the offload channel.
func (s *Store) InsertIgnore(ctx context.Context, db DBTX, id uuid.UUID, fileID, botToken string) error {
	_, err := db.ExecContext(ctx,
		`INSERT IGNORE INTO url_caches (file_uuid, file_id, bot_token) VALUES (?, ?, ?)`,
		id[:], fileID, botToken,
	)
	if err != nil {
		return fmt.Errorf("urlcache: insert ignore %s: %w", id, err)
	}
	return nil
}

// DBTX is satisfied by both *sql.DB and *sql.Tx, so InsertIgnore can
// run on a pooled connection or inside a caller's transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}
