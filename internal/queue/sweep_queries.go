package queue

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// SelectStuck returns CLAIMED/UPLOADING rows whose updated_at is older
// than staleAfterSeconds.
func (s *Store) SelectStuck(ctx context.Context, tx *sql.Tx, staleAfterSeconds int) ([]uuid.UUID, error) {
	return selectByStateOlderThan(ctx, tx, staleAfterSeconds, Claimed, Uploading)
}

// UploadedOrphan is an UPLOADED row whose worker died between the
// upload succeeding and the files/queues commit landing. file_id and
// msg_id were already written onto the row by TransitionToUploaded, so
// the sweeper has everything it needs to finish the commit itself.
type UploadedOrphan struct {
	FileUUID uuid.UUID
	FileID   string
	MsgID    int64
	BotID    int16
}

// SelectUploadedOrphans returns UPLOADED rows whose updated_at is older
// than staleAfterSeconds, along with the upstream identifiers needed to
// recommit them.
func (s *Store) SelectUploadedOrphans(ctx context.Context, tx *sql.Tx, staleAfterSeconds int) ([]UploadedOrphan, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT file_uuid, file_id, msg_id, bot_id FROM queues
		 WHERE state = ? AND updated_at < (NOW() - INTERVAL ? SECOND)
		 FOR UPDATE`,
		Uploaded, staleAfterSeconds,
	)
	if err != nil {
		return nil, fmt.Errorf("queue: select uploaded orphans: %w", err)
	}
	defer rows.Close()

	var out []UploadedOrphan
	for rows.Next() {
		var raw []byte
		var fileID sql.NullString
		var msgID sql.NullInt64
		var botID sql.NullInt16
		if err := rows.Scan(&raw, &fileID, &msgID, &botID); err != nil {
			return nil, fmt.Errorf("queue: select uploaded orphans scan: %w", err)
		}
		id, err := uuid.FromBytes(raw)
		if err != nil {
			return nil, fmt.Errorf("queue: select uploaded orphans decode: %w", err)
		}
		out = append(out, UploadedOrphan{
			FileUUID: id,
			FileID:   fileID.String,
			MsgID:    msgID.Int64,
			BotID:    botID.Int16,
		})
	}
	return out, rows.Err()
}

// SelectFailed returns every FAILED row, for the backoff-retry phase.
func (s *Store) SelectFailed(ctx context.Context, tx *sql.Tx) ([]RowRetry, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT file_uuid, retry_count FROM queues WHERE state = ? FOR UPDATE`, Failed)
	if err != nil {
		return nil, fmt.Errorf("queue: select failed: %w", err)
	}
	defer rows.Close()

	var out []RowRetry
	for rows.Next() {
		var raw []byte
		var retryCount int
		if err := rows.Scan(&raw, &retryCount); err != nil {
			return nil, fmt.Errorf("queue: select failed scan: %w", err)
		}
		id, err := uuid.FromBytes(raw)
		if err != nil {
			return nil, fmt.Errorf("queue: select failed decode: %w", err)
		}
		out = append(out, RowRetry{FileUUID: id, RetryCount: retryCount})
	}
	return out, rows.Err()
}

// RowRetry pairs a job with its current retry_count.
type RowRetry struct {
	FileUUID   uuid.UUID
	RetryCount int
}

// SelectCommitted returns every COMMITTED queue row (delete candidates).
func (s *Store) SelectCommitted(ctx context.Context, tx *sql.Tx) ([]uuid.UUID, error) {
	return selectByStateOlderThan(ctx, tx, -1, Committed)
}

func selectByStateOlderThan(ctx context.Context, tx *sql.Tx, staleAfterSeconds int, states ...State) ([]uuid.UUID, error) {
	placeholders := ""
	args := make([]any, 0, len(states)+1)
	for i, st := range states {
		if i > 0 {
			placeholders += ", "
		}
		placeholders += "?"
		args = append(args, st)
	}
	query := fmt.Sprintf(`SELECT file_uuid FROM queues WHERE state IN (%s)`, placeholders)
	if staleAfterSeconds >= 0 {
		query += ` AND updated_at < (NOW() - INTERVAL ? SECOND)`
		args = append(args, staleAfterSeconds)
	}
	query += ` FOR UPDATE`

	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("queue: select: %w", err)
	}
	defer rows.Close()

	var out []uuid.UUID
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("queue: select scan: %w", err)
		}
		id, err := uuid.FromBytes(raw)
		if err != nil {
			return nil, fmt.Errorf("queue: select decode: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// ResetToReadyTx resets id to READY with the given available_at delay
// in seconds from now, clearing bot_id. Used by both the unstick and
// the backoff-retry phases; bumpRetry increments retry_count, which
// only the backoff-retry phase wants.
func (s *Store) ResetToReadyTx(ctx context.Context, tx *sql.Tx, id uuid.UUID, delaySeconds float64, bumpRetry bool, from ...State) (int64, error) {
	placeholders := ""
	for i := range from {
		if i > 0 {
			placeholders += ", "
		}
		placeholders += "?"
	}
	retryClause := ""
	if bumpRetry {
		retryClause = ", retry_count = retry_count + 1"
	}
	query := fmt.Sprintf(
		`UPDATE queues SET state = ?, bot_id = NULL, available_at = (NOW() + INTERVAL ? SECOND), updated_at = NOW()%s WHERE file_uuid = ? AND state IN (%s)`,
		retryClause, placeholders,
	)
	queryArgs := make([]any, 0, len(from)+3)
	queryArgs = append(queryArgs, Ready, delaySeconds, id[:])
	for _, f := range from {
		queryArgs = append(queryArgs, f)
	}
	res, err := tx.ExecContext(ctx, query, queryArgs...)
	if err != nil {
		return 0, fmt.Errorf("queue: reset to ready %s: %w", id, err)
	}
	return res.RowsAffected()
}
