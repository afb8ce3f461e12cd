// Package queue implements the job state machine: the queues table and
// every CAS-guarded mutation on it. Every transition here takes the
// form "UPDATE queues SET state = ? WHERE file_uuid = ? AND state IN
// (...expected)" and reports rowcount, so a lost race with another
// worker or the sweeper is not an error — it means someone else already
// advanced the row and the caller must not proceed. This is the
// load-bearing idiom of the whole pipeline; keep it verbatim.
package queue

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// State is one of the six job-lifecycle codes.
type State int16

const (
	Ready     State = 0
	Claimed   State = 10
	Uploading State = 20
	Uploaded  State = 30
	Committed State = 40
	Failed    State = 100
)

// Row mirrors one queues table row.
type Row struct {
	FileUUID    uuid.UUID
	State       State
	FileID      sql.NullString
	MsgID       sql.NullInt64
	BotID       sql.NullInt16
	RetryCount  int
	CreatedAt   time.Time
	UpdatedAt   time.Time
	AvailableAt time.Time
}

// Store is the queues repository.
type Store struct {
	DB *sql.DB
}

// Enqueue inserts a brand-new queue row in state READY, created by the
// ingest handler after the upload is staged to the temp directory.
func (s *Store) Enqueue(ctx context.Context, id uuid.UUID) error {
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO queues (file_uuid, state) VALUES (?, ?)`,
		id[:], Ready,
	)
	if err != nil {
		return fmt.Errorf("queue: enqueue %s: %w", id, err)
	}
	return nil
}

// ClaimBatch runs the claim protocol (spec §4.2) in one transaction: it
// selects up to batchSize READY-and-eligible rows with FOR UPDATE SKIP
// LOCKED, then marks them CLAIMED under this bot's ownership. Two
// workers selecting concurrently never see the same candidate row.
func (s *Store) ClaimBatch(ctx context.Context, botID int16, batchSize int) ([]uuid.UUID, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("queue: claim begin: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		`SELECT file_uuid FROM queues
		 WHERE state = ? AND available_at <= NOW()
		 ORDER BY created_at ASC
		 LIMIT ?
		 FOR UPDATE SKIP LOCKED`,
		Ready, batchSize,
	)
	if err != nil {
		return nil, fmt.Errorf("queue: claim select: %w", err)
	}

	var ids []uuid.UUID
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			rows.Close()
			return nil, fmt.Errorf("queue: claim scan: %w", err)
		}
		id, err := uuid.FromBytes(raw)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("queue: claim decode uuid: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("queue: claim rows: %w", err)
	}
	rows.Close()

	if len(ids) == 0 {
		return nil, tx.Commit()
	}

	args := make([]any, 0, len(ids)+2)
	args = append(args, Claimed, botID)
	placeholders := ""
	for i, id := range ids {
		if i > 0 {
			placeholders += ", "
		}
		placeholders += "?"
		args = append(args, id[:])
	}
	query := fmt.Sprintf(
		`UPDATE queues SET state = ?, bot_id = ?, updated_at = NOW() WHERE file_uuid IN (%s)`,
		placeholders,
	)
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("queue: claim update: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("queue: claim commit: %w", err)
	}
	return ids, nil
}

// Transition performs a single CAS state change, guarded on the
// expected prior state(s). It returns the number of rows affected: 0
// means another actor already moved the row and the caller should stop.
func (s *Store) Transition(ctx context.Context, id uuid.UUID, to State, from ...State) (int64, error) {
	return transitionExec(ctx, s.DB, id, to, from...)
}

// TransitionTx is the same as Transition but runs inside a caller-owned
// transaction (used by the worker's commit step and the sweeper's
// phases, which need the state update in the same transaction as a
// sibling statement).
func (s *Store) TransitionTx(ctx context.Context, tx *sql.Tx, id uuid.UUID, to State, from ...State) (int64, error) {
	return transitionExec(ctx, tx, id, to, from...)
}

// TransitionToUploaded moves id from UPLOADING to UPLOADED, recording
// the upstream file_id/msg_id on the queue row itself. This is what
// lets the sweeper's recommit phase finish a commit a worker died
// before completing — without it, the row's upload result only ever
// lived in the dead worker's memory, per spec.md §3.
func (s *Store) TransitionToUploaded(ctx context.Context, id uuid.UUID, fileID string, msgID int64) (int64, error) {
	res, err := s.DB.ExecContext(ctx,
		`UPDATE queues SET state = ?, file_id = ?, msg_id = ?, updated_at = NOW() WHERE file_uuid = ? AND state = ?`,
		Uploaded, fileID, msgID, id[:], Uploading,
	)
	if err != nil {
		return 0, fmt.Errorf("queue: transition to uploaded %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("queue: transition to uploaded rows affected: %w", err)
	}
	return n, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func transitionExec(ctx context.Context, e execer, id uuid.UUID, to State, from ...State) (int64, error) {
	if len(from) == 0 {
		return 0, fmt.Errorf("queue: transition requires at least one expected prior state")
	}
	placeholders := ""
	args := make([]any, 0, len(from)+2)
	args = append(args, to, id[:])
	for i, f := range from {
		if i > 0 {
			placeholders += ", "
		}
		placeholders += "?"
		args = append(args, f)
	}
	query := fmt.Sprintf(
		`UPDATE queues SET state = ?, updated_at = NOW() WHERE file_uuid = ? AND state IN (%s)`,
		placeholders,
	)
	res, err := e.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("queue: transition %s -> %d: %w", id, to, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("queue: transition rows affected: %w", err)
	}
	return n, nil
}

// MarkFailed is the best-effort failure path: it moves a job from any
// of CLAIMED/UPLOADING/UPLOADED into FAILED. A rowcount of 0 is not an
// error; the job may already have been reclaimed by the sweeper.
func (s *Store) MarkFailed(ctx context.Context, id uuid.UUID) (int64, error) {
	return s.Transition(ctx, id, Failed, Claimed, Uploading, Uploaded)
}

// Delete removes the queue row outright, whatever its state. The
// sweeper's delete phase does not call it; it issues its own DELETE
// guarded on state COMMITTED.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := s.DB.ExecContext(ctx, `DELETE FROM queues WHERE file_uuid = ?`, id[:])
	if err != nil {
		return fmt.Errorf("queue: delete %s: %w", id, err)
	}
	return nil
}
