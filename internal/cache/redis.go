package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/petermazzocco/go-image-host/internal/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisCache implements Cache on a Redis server.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	log    *zap.Logger
}

// NewRedisCache connects to cfg.Addr and pings it.
func NewRedisCache(ctx context.Context, cfg config.RedisConfig, log *zap.Logger) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}

	return NewRedisCacheWithClient(client, cfg.Prefix, cfg.TTL, log), nil
}

func NewRedisCacheWithClient(client *redis.Client, prefix string, ttl time.Duration, log *zap.Logger) *RedisCache {
	if log == nil {
		log = zap.NewNop()
	}
	return &RedisCache{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		log:    log,
	}
}

func (r *RedisCache) GetJSON(ctx context.Context, key string, dst any) (bool, error) {
	value, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(value, dst); err != nil {
		return false, fmt.Errorf("decode cached %s: %w", key, err)
	}
	return true, nil
}

func (r *RedisCache) SetJSON(ctx context.Context, key string, v any) error {
	value, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.prefix+key, value, r.ttl).Err()
}

// InvalidateImagesList removes every cached listing page.
func (r *RedisCache) InvalidateImagesList(ctx context.Context) error {
	var deleted int
	iter := r.client.Scan(ctx, 0, r.prefix+imagesListKey+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := r.client.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
		deleted++
	}
	if err := iter.Err(); err != nil {
		return err
	}
	r.log.Debug("invalidated image lists", zap.Int("keys", deleted))
	return nil
}

func (r *RedisCache) InvalidateTagsList(ctx context.Context) error {
	return r.client.Del(ctx, r.prefix+tagsListKey).Err()
}

func (r *RedisCache) Close() error {
	return r.client.Close()
}
