package agenda

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// ListaCache guarda listas serializadas com TTL curto. Um valor nil
// desativa a cache e todas as leituras vão ao repositório.
type ListaCache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

type redisCache struct {
	client *redis.Client
}

// NewRedisCache adapta um cliente Redis à interface ListaCache.
func NewRedisCache(client *redis.Client) ListaCache {
	return redisCache{client: client}
}

func (c redisCache) Get(ctx context.Context, key string) ([]byte, error) {
	return c.client.Get(ctx, key).Bytes()
}

func (c redisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

func (c redisCache) Del(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}
