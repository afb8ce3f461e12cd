// Package offload implements the bounded, best-effort DB write-through
// queue described in spec §4.5. It generalizes perkeep's
// internal/chanworker (N goroutines draining a buffered channel) by
// fixing the drainer count to one and specializing the payload to a
// single parameterized SQL statement, executed in autocommit mode with
// a pooled connection. Enqueuing never blocks: if the channel is full,
// the item is dropped — a cache warm is a performance optimization, not
// a durable write.
package offload

import (
	"context"
	"database/sql"

	"go.uber.org/zap"

	"github.com/nullstream/imgrelay/internal/metrics"
)

// Item is one deferred write: a query and its positional arguments.
type Item struct {
	Query string
	Args  []any
}

// Queue is the bounded channel and its single drainer goroutine.
type Queue struct {
	db      *sql.DB
	log     *zap.Logger
	metrics *metrics.Registry
	items   chan Item
}

// New constructs a Queue with the given bounded capacity. Call Run to
// start the drainer.
func New(db *sql.DB, log *zap.Logger, m *metrics.Registry, capacity int) *Queue {
	return &Queue{
		db:      db,
		log:     log,
		metrics: m,
		items:   make(chan Item, capacity),
	}
}

// Enqueue attempts to add item without blocking. If the queue is full,
// the item is dropped and a metric is incremented; this is never an
// error condition for the caller.
func (q *Queue) Enqueue(item Item) {
	select {
	case q.items <- item:
	default:
		if q.metrics != nil {
			q.metrics.OffloadDropped.Inc()
		}
		q.log.Warn("offload queue full, dropping item", zap.String("query", item.Query))
	}
}

// Run drains the queue until ctx is cancelled. Each item runs in
// autocommit mode with a fresh connection from the pool; failures are
// logged and discarded, never fatal, never retried.
func (q *Queue) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case item, ok := <-q.items:
			if !ok {
				return
			}
			if _, err := q.db.ExecContext(ctx, item.Query, item.Args...); err != nil {
				q.log.Warn("offload write failed", zap.String("query", item.Query), zap.Error(err))
				continue
			}
			if q.metrics != nil {
				q.metrics.OffloadExecuted.Inc()
			}
		}
	}
}
