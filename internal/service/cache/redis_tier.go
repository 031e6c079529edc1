package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "dashboard:cache:"

// RedisTier shares cached payloads between gateway replicas.
type RedisTier struct {
	client *redis.Client
}

func NewRedisTier(client *redis.Client) *RedisTier {
	return &RedisTier{client: client}
}

func (t *RedisTier) Get(ctx context.Context, key string) ([]byte, time.Duration, bool, error) {
	pipe := t.client.Pipeline()
	getCmd := pipe.Get(ctx, redisKeyPrefix+key)
	ttlCmd := pipe.PTTL(ctx, redisKeyPrefix+key)
	_, err := pipe.Exec(ctx)
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, 0, false, err
	}

	raw, err := getCmd.Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, 0, false, nil
	}
	if err != nil {
		return nil, 0, false, err
	}

	return raw, ttlCmd.Val(), true, nil
}

func (t *RedisTier) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return t.client.Set(ctx, redisKeyPrefix+key, value, ttl).Err()
}

func (t *RedisTier) DeletePrefix(ctx context.Context, prefix string) error {
	iter := t.client.Scan(ctx, 0, redisKeyPrefix+prefix+"*", 100).Iterator()
	keys := make([]string, 0)
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}

	return t.client.Del(ctx, keys...).Err()
}

func (t *RedisTier) Close() error {
	return t.client.Close()
}
