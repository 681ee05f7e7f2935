package redis

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/JoeShih716/go-sls-ledger/internal/app/core/repository"
)

// ReplayCache 以 Redis 快取冪等紀錄，讓重送的請求不必再碰 store
// 快取只是捷徑，遺失或過期都會回到 store 內的冪等紀錄
type ReplayCache struct {
	client redis.Cmdable
	prefix string
	logger *slog.Logger
}

// NewReplayCache 建立 ReplayCache
func NewReplayCache(client redis.Cmdable, prefix string, logger *slog.Logger) *ReplayCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReplayCache{client: client, prefix: prefix, logger: logger}
}

// NewClient 依位址建立 go-redis client
func NewClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

func (c *ReplayCache) key(key string) string {
	return c.prefix + key
}

// Get 讀取冪等紀錄，未命中回傳 (nil, nil)
func (c *ReplayCache) Get(ctx context.Context, key string) (*repository.IdempotencyRecord, error) {
	val, err := c.client.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rec repository.IdempotencyRecord
	if err := json.Unmarshal(val, &rec); err != nil {
		c.logger.Warn("replay cache: drop undecodable entry", "key", key, "error", err)
		return nil, nil
	}
	c.logger.Debug("replay cache hit", "key", key, "transfer_id", rec.TransferID)
	return &rec, nil
}

// Set 寫入冪等紀錄
func (c *ReplayCache) Set(ctx context.Context, key string, rec repository.IdempotencyRecord, ttl time.Duration) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key(key), data, ttl).Err()
}

// Ping 檢查 Redis 是否可用
func (c *ReplayCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
