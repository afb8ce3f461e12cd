// Package sweeper implements the reconciliation ("garbage collection")
// sweep described in spec §4.3: one long-running task, period
// configurable (3600s in production), running five ordered, idempotent
// phases inside a single transaction each tick. The sweep is
// self-healing by construction — every phase gates its mutation on the
// row's current expected state, so it is always safe to run
// concurrently with workers.
package sweeper

import (
	"context"
	"database/sql"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/nullstream/imgrelay/internal/files"
	"github.com/nullstream/imgrelay/internal/gcruns"
	"github.com/nullstream/imgrelay/internal/metrics"
	"github.com/nullstream/imgrelay/internal/queue"
)

const (
	staleAfterSeconds = 10 * 60 // CLAIMED/UPLOADING/UPLOADED overrun window
	backoffCapSeconds = 3000
)

// Sweeper runs the reconciliation sweep on a fixed interval.
type Sweeper struct {
	db      *sql.DB
	queues  *queue.Store
	filesDB *files.Store
	gcruns  *gcruns.Store
	log     *zap.Logger
	metrics *metrics.Registry

	interval time.Duration
	rng      *rand.Rand
}

// New constructs a Sweeper that ticks every interval.
func New(db *sql.DB, interval time.Duration, log *zap.Logger, m *metrics.Registry) *Sweeper {
	return &Sweeper{
		db:       db,
		queues:   &queue.Store{DB: db},
		filesDB:  &files.Store{DB: db},
		gcruns:   &gcruns.Store{DB: db},
		log:      log,
		metrics:  m,
		interval: interval,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Run ticks the sweep until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Tick(ctx); err != nil {
				s.log.Error("sweep failed", zap.Error(err))
			}
		}
	}
}

// Tick runs exactly one sweep. It is exported so tests (and an
// operator-triggered manual sweep) can drive it synchronously without
// waiting on the ticker.
func (s *Sweeper) Tick(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var c gcruns.Counts

	if err := s.unstick(ctx, tx, &c); err != nil {
		return err
	}
	if err := s.recommit(ctx, tx, &c); err != nil {
		return err
	}
	if err := s.retryFailed(ctx, tx, &c); err != nil {
		return err
	}
	if err := s.deleteCommitted(ctx, tx, &c); err != nil {
		return err
	}

	if !c.Empty() {
		if err := s.gcruns.InsertTx(ctx, tx, c); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	if !c.Empty() {
		s.metrics.SweepRuns.Inc()
		s.metrics.SweepActions.WithLabelValues("unstick").Add(float64(c.Unstick))
		s.metrics.SweepActions.WithLabelValues("recommit").Add(float64(c.Recommit))
		s.metrics.SweepActions.WithLabelValues("retry").Add(float64(c.Retry))
		s.metrics.SweepActions.WithLabelValues("deleted").Add(float64(c.Deleted))
		s.log.Info("sweep completed",
			zap.Int("unstick", c.Unstick), zap.Int("recommit", c.Recommit),
			zap.Int("retry", c.Retry), zap.Int("deleted", c.Deleted))
	}
	return nil
}

// phase 1: unstick CLAIMED/UPLOADING rows that overran their window.
func (s *Sweeper) unstick(ctx context.Context, tx *sql.Tx, c *gcruns.Counts) error {
	ids, err := s.queues.SelectStuck(ctx, tx, staleAfterSeconds)
	if err != nil {
		return err
	}
	for _, id := range ids {
		jitter := 1 + s.rng.Float64()*4 // uniform(1,5)
		n, err := s.queues.ResetToReadyTx(ctx, tx, id, jitter, false, queue.Claimed, queue.Uploading)
		if err != nil {
			return err
		}
		c.Unstick += int(n)
	}
	return nil
}

// phase 2: finish the commit for UPLOADED orphans whose worker died
// between the upload succeeding and the files/queues commit landing.
// file_id/msg_id were already persisted onto the queue row by
// TransitionToUploaded, so recommit can insert the files row and
// advance the state itself, without ever talking to the upstream
// again. Must tolerate the files row already existing — InsertTx
// treats duplicate-key as success — and still attempt the 30->40
// transition.
func (s *Sweeper) recommit(ctx context.Context, tx *sql.Tx, c *gcruns.Counts) error {
	orphans, err := s.queues.SelectUploadedOrphans(ctx, tx, staleAfterSeconds)
	if err != nil {
		return err
	}
	for _, o := range orphans {
		if o.FileID == "" {
			// Should not happen: a row only reaches UPLOADED once
			// TransitionToUploaded has written file_id/msg_id onto
			// it. Leave the row in UPLOADED rather than guess at
			// upstream identifiers we don't have; the unstick phase
			// only resets CLAIMED/UPLOADING rows, so no phase of the
			// sweep moves it.
			continue
		}
		if err := s.filesDB.InsertTx(ctx, tx, o.FileUUID, o.FileID, o.MsgID, o.BotID); err != nil {
			return err
		}
		n, err := s.queues.TransitionTx(ctx, tx, o.FileUUID, queue.Committed, queue.Uploaded)
		if err != nil {
			return err
		}
		c.Recommit += int(n)
	}
	return nil
}

// phase 3: retry FAILED jobs with exponential backoff, capped at 3000s
// plus uniform(1,5)s jitter.
func (s *Sweeper) retryFailed(ctx context.Context, tx *sql.Tx, c *gcruns.Counts) error {
	failed, err := s.queues.SelectFailed(ctx, tx)
	if err != nil {
		return err
	}
	for _, row := range failed {
		delay := backoffDelay(row.RetryCount, s.rng)
		n, err := s.queues.ResetToReadyTx(ctx, tx, row.FileUUID, delay, true, queue.Failed)
		if err != nil {
			return err
		}
		c.Retry += int(n)
	}
	return nil
}

// phase 4: delete COMMITTED rows — the queue is a work list, not a
// history.
func (s *Sweeper) deleteCommitted(ctx context.Context, tx *sql.Tx, c *gcruns.Counts) error {
	ids, err := s.queues.SelectCommitted(ctx, tx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, `DELETE FROM queues WHERE file_uuid = ? AND state = ?`, id[:], queue.Committed); err != nil {
			return err
		}
		c.Deleted++
	}
	return nil
}

// backoffDelay computes min(2^retryCount - 1, 3000) + uniform(1,5)
// seconds, per spec §4.3.
func backoffDelay(retryCount int, rng *rand.Rand) float64 {
	base := math.Min(math.Pow(2, float64(retryCount))-1, backoffCapSeconds)
	return base + 1 + rng.Float64()*4
}
