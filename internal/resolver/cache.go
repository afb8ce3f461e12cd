package resolver

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	urlTTL = time.Hour // upstream paths are valid for at least one hour

	urlKeyPrefix = "url:"
	botKeyPrefix = "bot:"
)

// kvCache wraps the Redis client with the two logical entry kinds the
// resolver and credential lookup need.
type kvCache struct {
	rdb *redis.Client
}

func (c *kvCache) getURL(ctx context.Context, fileUUID string) (string, bool, error) {
	v, err := c.rdb.Get(ctx, urlKeyPrefix+fileUUID).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("resolver: redis get url: %w", err)
	}
	return v, true, nil
}

func (c *kvCache) setURL(ctx context.Context, fileUUID, url string) error {
	if err := c.rdb.Set(ctx, urlKeyPrefix+fileUUID, url, urlTTL).Err(); err != nil {
		return fmt.Errorf("resolver: redis set url: %w", err)
	}
	return nil
}

// getToken/setToken cache the bot_id -> token credential mapping with
// an effectively infinite TTL, since the mapping is immutable once
// created.
func (c *kvCache) getToken(ctx context.Context, botID int16) (string, bool, error) {
	v, err := c.rdb.Get(ctx, fmt.Sprintf("%s%d", botKeyPrefix, botID)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("resolver: redis get token: %w", err)
	}
	return v, true, nil
}

func (c *kvCache) setToken(ctx context.Context, botID int16, token string) error {
	if err := c.rdb.Set(ctx, fmt.Sprintf("%s%d", botKeyPrefix, botID), token, 0).Err(); err != nil {
		return fmt.Errorf("resolver: redis set token: %w", err)
	}
	return nil
}
