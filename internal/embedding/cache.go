package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache is a read-through vector cache backed by Redis string keys.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, prefix: "pagemind:emb:", ttl: ttl}
}

// Key is sha256(model + "\x00" + text), hex-encoded under the cache prefix.
func (c *RedisCache) Key(model, text string) string {
	sum := sha256.Sum256([]byte(model + "\x00" + text))
	return c.prefix + hex.EncodeToString(sum[:])
}

func (c *RedisCache) Get(ctx context.Context, model, text string) ([]float32, bool, error) {
	raw, err := c.client.Get(ctx, c.Key(model, text)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var vec []float32
	if err := json.Unmarshal(raw, &vec); err != nil {
		return nil, false, err
	}
	return vec, true, nil
}

func (c *RedisCache) Set(ctx context.Context, model, text string, vec []float32) error {
	b, err := json.Marshal(vec)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.Key(model, text), b, c.ttl).Err()
}
