package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"roomchat-service/internal/models"
)

var ErrCacheMiss = errors.New("cache miss")

const historyTTL = 30 * time.Second

// HistoryCache is a read cache for room transcripts. Repopulation is
// conditional on the generation observed before the backing read: every
// Invalidate bumps the room's generation, so a writer that invalidated while
// a read was in flight always wins over the stale snapshot. Without that
// guard a history read racing an append could pin a transcript that is
// missing a message already delivered live.
type HistoryCache interface {
	Get(ctx context.Context, roomID int64) ([]models.ChatMessage, error)
	Generation(ctx context.Context, roomID int64) (int64, error)
	SetIfCurrent(ctx context.Context, roomID int64, msgs []models.ChatMessage, generation int64) error
	Invalidate(ctx context.Context, roomID int64) error
	Close() error
}

// RedisHistoryCache caches transcripts in redis with a short TTL.
type RedisHistoryCache struct {
	client *redis.Client
	prefix string
}

func NewRedisHistoryCache(addr string, db int, prefix string) (*RedisHistoryCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisHistoryCache{client: client, prefix: prefix}, nil
}

func (c *RedisHistoryCache) key(roomID int64) string {
	return fmt.Sprintf("%s:history:%d", c.prefix, roomID)
}

func (c *RedisHistoryCache) genKey(roomID int64) string {
	return fmt.Sprintf("%s:history:%d:gen", c.prefix, roomID)
}

func (c *RedisHistoryCache) Get(ctx context.Context, roomID int64) ([]models.ChatMessage, error) {
	data, err := c.client.Get(ctx, c.key(roomID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}

	var msgs []models.ChatMessage
	if err := json.Unmarshal(data, &msgs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached history: %w", err)
	}
	return msgs, nil
}

// Generation returns the room's current invalidation counter. A room that
// was never invalidated is at generation zero.
func (c *RedisHistoryCache) Generation(ctx context.Context, roomID int64) (int64, error) {
	gen, err := c.client.Get(ctx, c.genKey(roomID)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read cache generation: %w", err)
	}
	return gen, nil
}

// setIfCurrentScript stores the transcript only when the generation key still
// matches what the caller observed before its database read.
var setIfCurrentScript = redis.NewScript(`
local gen = tonumber(redis.call('GET', KEYS[1]) or '0')
if gen == tonumber(ARGV[1]) then
	redis.call('SET', KEYS[2], ARGV[2], 'PX', ARGV[3])
	return 1
end
return 0
`)

func (c *RedisHistoryCache) SetIfCurrent(ctx context.Context, roomID int64, msgs []models.ChatMessage, generation int64) error {
	data, err := json.Marshal(msgs)
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}

	err = setIfCurrentScript.Run(ctx, c.client,
		[]string{c.genKey(roomID), c.key(roomID)},
		generation, data, historyTTL.Milliseconds(),
	).Err()
	if err != nil {
		return fmt.Errorf("failed to set in redis: %w", err)
	}
	return nil
}

// Invalidate bumps the room's generation and drops the cached transcript in
// one transaction, fencing off any in-flight repopulation.
func (c *RedisHistoryCache) Invalidate(ctx context.Context, roomID int64) error {
	pipe := c.client.TxPipeline()
	pipe.Incr(ctx, c.genKey(roomID))
	pipe.Del(ctx, c.key(roomID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to invalidate history: %w", err)
	}
	return nil
}

func (c *RedisHistoryCache) Close() error {
	return c.client.Close()
}

// NoopHistoryCache is used when redis is not configured; every read misses.
type NoopHistoryCache struct{}

func (NoopHistoryCache) Get(ctx context.Context, roomID int64) ([]models.ChatMessage, error) {
	return nil, ErrCacheMiss
}

func (NoopHistoryCache) Generation(ctx context.Context, roomID int64) (int64, error) {
	return 0, nil
}

func (NoopHistoryCache) SetIfCurrent(ctx context.Context, roomID int64, msgs []models.ChatMessage, generation int64) error {
	return nil
}

func (NoopHistoryCache) Invalidate(ctx context.Context, roomID int64) error {
	return nil
}

func (NoopHistoryCache) Close() error {
	return nil
}
