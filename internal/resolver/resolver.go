// Package resolver implements the three-tier URL resolution described
// in spec §4.4: given an external file_uuid, return a short-lived
// absolute download URL or ErrNotFound. L1 (Redis) short-circuits the
// common case; L2 (url_caches) avoids a bots-table join; L3 (files)
// is the durable fallback that also opportunistically warms L2 via the
// offload channel.
package resolver

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/nullstream/imgrelay/internal/bots"
	"github.com/nullstream/imgrelay/internal/files"
	"github.com/nullstream/imgrelay/internal/metrics"
	"github.com/nullstream/imgrelay/internal/offload"
	"github.com/nullstream/imgrelay/internal/telegram"
	"github.com/nullstream/imgrelay/internal/urlcache"
)

// ErrNotFound is returned when none of the three tiers can produce a
// download URL for the given file_uuid.
var ErrNotFound = errors.New("resolver: not found")

// FileGetter resolves a file_id to its current file_path on the
// upstream, for exactly the bot that owns it, and reports the
// credential it is bound to. One imgrelay worker's telegram.Client
// satisfies this for its own bot_id.
type FileGetter interface {
	GetFile(ctx context.Context, fileID string) (filePath string, err error)
	Token() string
}

// Resolver implements the three-tier lookup.
type Resolver struct {
	cache    *kvCache
	urlcache *urlcache.Store
	files    *files.Store
	bots     *bots.Store
	offload  *offload.Queue
	metrics  *metrics.Registry

	// clients maps bot_id to a live upstream client, so the resolver
	// calls getFile with the credential that actually owns the
	// message, matching the original Controller._api_get dispatch.
	clients map[int16]FileGetter
	// byToken is the reverse index clientForToken needs for the L2
	// path, where only the bot_token (not the bot_id) is stored.
	byToken map[string]FileGetter
}

// New constructs a Resolver. clients must contain an entry for every
// bot_id any worker may commit files under.
func New(rdb *redis.Client, db *sql.DB, off *offload.Queue, clients map[int16]FileGetter, m *metrics.Registry) *Resolver {
	byToken := make(map[string]FileGetter, len(clients))
	for _, c := range clients {
		byToken[c.Token()] = c
	}
	return &Resolver{
		cache:    &kvCache{rdb: rdb},
		urlcache: &urlcache.Store{DB: db},
		files:    &files.Store{DB: db},
		bots:     &bots.Store{DB: db},
		offload:  off,
		clients:  clients,
		byToken:  byToken,
		metrics:  m,
	}
}

// Resolve returns a short-lived download URL for id.
func (r *Resolver) Resolve(ctx context.Context, id uuid.UUID) (string, error) {
	key := id.String()

	if url, hit, err := r.cache.getURL(ctx, key); err != nil {
		return "", err
	} else if hit {
		r.hit("l1")
		return url, nil
	}

	if url, err := r.resolveL2(ctx, id, key); err != nil {
		if !errors.Is(err, ErrNotFound) {
			return "", err
		}
	} else {
		r.hit("l2")
		return url, nil
	}

	url, err := r.resolveL3(ctx, id, key)
	if err != nil {
		return "", err
	}
	r.hit("l3")
	return url, nil
}

func (r *Resolver) hit(tier string) {
	if r.metrics != nil {
		r.metrics.ResolverHits.WithLabelValues(tier).Inc()
	}
}

func (r *Resolver) resolveL2(ctx context.Context, id uuid.UUID, key string) (string, error) {
	row, err := r.urlcache.Get(ctx, id)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("resolver: l2 lookup: %w", err)
	}

	client, ok := r.clientForToken(row.BotToken)
	if !ok {
		return "", ErrNotFound
	}
	filePath, err := client.GetFile(ctx, row.FileID)
	if err != nil {
		return "", fmt.Errorf("resolver: l2 getFile: %w", err)
	}
	url := telegram.DownloadURL(row.BotToken, filePath)
	if err := r.cache.setURL(ctx, key, url); err != nil {
		return "", err
	}
	return url, nil
}

func (r *Resolver) resolveL3(ctx context.Context, id uuid.UUID, key string) (string, error) {
	row, err := r.files.Get(ctx, id)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("resolver: l3 lookup: %w", err)
	}

	token, err := r.tokenFor(ctx, row.BotID)
	if err != nil {
		return "", fmt.Errorf("resolver: l3 token lookup: %w", err)
	}

	client, ok := r.clients[row.BotID]
	if !ok {
		return "", ErrNotFound
	}
	filePath, err := client.GetFile(ctx, row.FileID)
	if err != nil {
		return "", fmt.Errorf("resolver: l3 getFile: %w", err)
	}
	url := telegram.DownloadURL(token, filePath)
	if err := r.cache.setURL(ctx, key, url); err != nil {
		return "", err
	}

	// Asynchronous, best-effort L2 warm: if the offload channel is
	// full, the write is dropped — L1 already hides the miss.
	r.offload.Enqueue(offloadItemForWarm(id, row.FileID, token))

	return url, nil
}

func offloadItemForWarm(id uuid.UUID, fileID, token string) offload.Item {
	return offload.Item{
		Query: `INSERT IGNORE INTO url_caches (file_uuid, file_id, bot_token) VALUES (?, ?, ?)`,
		Args:  []any{id[:], fileID, token},
	}
}

func (r *Resolver) tokenFor(ctx context.Context, botID int16) (string, error) {
	if token, hit, err := r.cache.getToken(ctx, botID); err != nil {
		return "", err
	} else if hit {
		return token, nil
	}
	token, err := r.bots.Token(ctx, botID)
	if err != nil {
		return "", err
	}
	if err := r.cache.setToken(ctx, botID, token); err != nil {
		return "", err
	}
	return token, nil
}

// clientForToken finds the live client whose credential matches token,
// for the L2 path where only the token (not the bot_id) is stored.
func (r *Resolver) clientForToken(token string) (FileGetter, bool) {
	c, ok := r.byToken[token]
	return c, ok
}
