// Package gcruns records one audit row per non-empty reconciliation
// sweep, per spec §3's audit log.
package gcruns

import (
	"context"
	"database/sql"
	"fmt"
)

// Counts is the per-phase row count a sweep touched.
type Counts struct {
	Unstick  int
	Recommit int
	Retry    int
	Deleted  int
}

// Empty reports whether the sweep touched nothing, in which case no
// audit row should be inserted.
func (c Counts) Empty() bool {
	return c.Unstick == 0 && c.Recommit == 0 && c.Retry == 0 && c.Deleted == 0
}

// Store is the gc_runs repository.
type Store struct {
	DB *sql.DB
}

// InsertTx records one audit row inside the sweep's transaction.
func (s *Store) InsertTx(ctx context.Context, tx *sql.Tx, c Counts) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO gc_runs (cnt_unstick, cnt_recommit, cnt_retry, cnt_deleted) VALUES (?, ?, ?, ?)`,
		c.Unstick, c.Recommit, c.Retry, c.Deleted,
	)
	if err != nil {
		return fmt.Errorf("gcruns: insert: %w", err)
	}
	return nil
}
