package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"paintstore/backend/internal/logging"
)

const moduleName = "cache"

// RedisCache treats every Redis failure as a miss: the loader still runs and
// its value is returned even when it cannot be stored.
type RedisCache struct {
	client     *redis.Client
	ttl        time.Duration
	versionKey string
	prefix     string
	logger     logrus.FieldLogger
}

func NewRedisClient(addr string, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

// NewRedisCache namespaces every key under prefix. The version counter lives
// at prefix:version and is folded into each key on read and write.
func NewRedisCache(client *redis.Client, prefix string, ttl time.Duration) *RedisCache {
	if prefix == "" {
		prefix = "paintstore"
	}
	return &RedisCache{client: client, ttl: ttl, prefix: prefix, versionKey: prefix + ":version", logger: logging.Discard()}
}

func (c *RedisCache) WithLogger(logger logrus.FieldLogger) *RedisCache {
	if logger != nil {
		c.logger = logger
	}
	return c
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) version(ctx context.Context) (int64, error) {
	ver, err := c.client.Get(ctx, c.versionKey).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return ver, err
}

func (c *RedisCache) FetchJSON(ctx context.Context, key string, dest any, loader func(context.Context) (any, error)) error {
	if loader == nil {
		return errLoaderRequired
	}
	ver, err := c.version(ctx)
	if err != nil {
		logging.LogError(c.logger, moduleName, "FetchJSON", "read version", key, err)
		return load(ctx, dest, loader)
	}
	fullKey := fmt.Sprintf("%s:%s:%d", c.prefix, key, ver)

	payload, err := c.client.Get(ctx, fullKey).Bytes()
	if err == nil {
		if err := json.Unmarshal(payload, dest); err == nil {
			return nil
		}
	} else if err != redis.Nil {
		logging.LogError(c.logger, moduleName, "FetchJSON", "read entry", fullKey, err)
		return load(ctx, dest, loader)
	}

	value, err := loader(ctx)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, fullKey, raw, c.ttl).Err(); err != nil {
		logging.LogError(c.logger, moduleName, "FetchJSON", "write entry", fullKey, err)
	}
	return json.Unmarshal(raw, dest)
}

func (c *RedisCache) Bump(ctx context.Context) error {
	return c.client.Incr(ctx, c.versionKey).Err()
}
