// Package worker implements one worker identity: a single credential,
// a single destination chat, and the per-job processing pipeline
// described in spec §4.2. Within one Worker at most one job is in
// flight — jobs claimed in one batch are processed strictly in the
// order they were claimed (FIFO). Multiple Workers run in parallel with
// no coordination beyond the SKIP LOCKED claim query.
package worker

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nullstream/imgrelay/internal/bots"
	"github.com/nullstream/imgrelay/internal/errs"
	"github.com/nullstream/imgrelay/internal/files"
	"github.com/nullstream/imgrelay/internal/metrics"
	"github.com/nullstream/imgrelay/internal/queue"
	"github.com/nullstream/imgrelay/internal/telegram"
)

const (
	pollInterval   = 5 * time.Second
	maxFloodRetries = 5
)

// Worker owns exactly one upstream credential.
type Worker struct {
	BotID int16

	db      *sql.DB
	queues  *queue.Store
	filesDB *files.Store
	tg      *telegram.Client
	log     *zap.Logger
	metrics *metrics.Registry

	tempDir   string
	batchSize int
}

// New constructs a Worker bound to bot. tempDir is the shared staging
// directory ingest writes uploads into.
func New(bot bots.Bot, chatID int64, db *sql.DB, tempDir string, batchSize int, log *zap.Logger, m *metrics.Registry) *Worker {
	return &Worker{
		BotID:     bot.ID,
		db:        db,
		queues:    &queue.Store{DB: db},
		filesDB:   &files.Store{DB: db},
		tg:        telegram.New(bot.Token, chatID),
		log:       log.With(zap.Int16("bot_id", bot.ID)),
		metrics:   m,
		tempDir:   tempDir,
		batchSize: batchSize,
	}
}

// Run polls for claimable jobs and processes them until ctx is
// cancelled. It is the worker's entire public contract: there is no
// direct enqueue interface, only the shared queue table.
func (w *Worker) Run(ctx context.Context) {
	w.log.Info("worker started")
	for {
		select {
		case <-ctx.Done():
			w.log.Info("worker stopping")
			return
		default:
		}

		ids, err := w.queues.ClaimBatch(ctx, w.BotID, w.batchSize)
		if err != nil {
			w.log.Warn("claim batch failed", zap.Error(err))
			sleepOrDone(ctx, pollInterval)
			continue
		}
		if len(ids) == 0 {
			sleepOrDone(ctx, pollInterval)
			continue
		}
		w.metrics.JobsClaimed.WithLabelValues(botLabel(w.BotID)).Add(float64(len(ids)))

		for _, id := range ids {
			select {
			case <-ctx.Done():
				return
			default:
			}
			w.processJob(ctx, id)
		}
	}
}

func (w *Worker) processJob(ctx context.Context, id uuid.UUID) {
	log := w.log.With(zap.String("file_uuid", id.String()))
	path := filepath.Join(w.tempDir, id.String())

	n, err := w.queues.Transition(ctx, id, queue.Uploading, queue.Claimed)
	if err != nil {
		log.Error("transition to uploading failed", zap.Error(err))
		w.fail(ctx, id, log)
		return
	}
	if n == 0 {
		// Lost the race (e.g. sweeper unstuck it already); stop.
		return
	}

	msgID, fileID, err := w.sendWithRetry(ctx, path, id.String(), log)
	if err != nil {
		// Both classes are retried identically today via the sweeper's
		// backoff — the classification just gives a future dead-letter
		// state something to switch on.
		log.Warn("upload failed", zap.Error(err), zap.Bool("transient", errs.IsTransient(err)))
		w.fail(ctx, id, log)
		return
	}

	n, err = w.queues.TransitionToUploaded(ctx, id, fileID, msgID)
	if err != nil {
		log.Error("transition to uploaded failed", zap.Error(err))
		w.fail(ctx, id, log)
		return
	}
	if n == 0 {
		return
	}

	if err := w.commit(ctx, id, fileID, msgID); err != nil {
		log.Error("commit failed", zap.Error(err))
		w.fail(ctx, id, log)
		return
	}

	w.metrics.JobsCommitted.Inc()
	if err := os.Remove(path); err != nil {
		log.Warn("temp file delete failed", zap.Error(err))
	}
}

// sendWithRetry uploads path, retrying in place on RateLimited up to
// maxFloodRetries times, sleeping the advertised retry_after each time.
// Any other error fails the job outright.
func (w *Worker) sendWithRetry(ctx context.Context, path, caption string, log *zap.Logger) (msgID int64, fileID string, err error) {
	for attempt := 0; ; attempt++ {
		msgID, fileID, err = w.tg.SendDocument(ctx, path, caption)
		if err == nil {
			return msgID, fileID, nil
		}
		var rl *telegram.RateLimited
		if !errors.As(err, &rl) || attempt == maxFloodRetries {
			return 0, "", err
		}
		log.Info("rate limited, retrying", zap.Duration("retry_after", rl.RetryAfter), zap.Int("attempt", attempt+1))
		sleepOrDone(ctx, rl.RetryAfter)
	}
}

// commit performs the single source-of-truth transaction: insert into
// files and flip the queue row to COMMITTED, atomically.
func (w *Worker) commit(ctx context.Context, id uuid.UUID, fileID string, msgID int64) error {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := w.filesDB.InsertTx(ctx, tx, id, fileID, msgID, w.BotID); err != nil {
		return err
	}
	if _, err := w.queues.TransitionTx(ctx, tx, id, queue.Committed, queue.Uploaded); err != nil {
		return err
	}
	return tx.Commit()
}

func (w *Worker) fail(ctx context.Context, id uuid.UUID, log *zap.Logger) {
	if _, err := w.queues.MarkFailed(ctx, id); err != nil {
		log.Error("mark failed also failed", zap.Error(err))
		return
	}
	w.metrics.JobsFailed.WithLabelValues(botLabel(w.BotID)).Inc()
}

func botLabel(id int16) string {
	return strconv.Itoa(int(id))
}

func sleepOrDone(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
