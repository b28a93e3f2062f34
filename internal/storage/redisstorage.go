package storage

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"LogFormatPump/internal/config"
)

// RedisStore хранит смещения в хеше: поле хранит путь файла, значение хранит смещение.
type RedisStore struct {
	client  redis.Cmdable
	key     string
	timeout time.Duration
}

func NewRedisStore(cfg *config.RedisConfig, key string) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("не удалось подключиться к Redis: %w", err)
	}
	return newRedisStore(rdb, key), nil
}

func newRedisStore(client redis.Cmdable, key string) *RedisStore {
	return &RedisStore{client: client, key: key, timeout: 5 * time.Second}
}

func (r *RedisStore) Load() (map[string]int64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	fields, err := r.client.HGetAll(ctx, r.key).Result()
	if err != nil {
		return nil, fmt.Errorf("hgetall %s: %w", r.key, err)
	}
	processed := make(map[string]int64, len(fields))
	for name, raw := range fields {
		off, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("offset of %s: %w", name, err)
		}
		processed[name] = off
	}
	return processed, nil
}

func (r *RedisStore) Save(data map[string]int64) error {
	if len(data) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	values := make([]any, 0, len(data)*2)
	for name, off := range data {
		values = append(values, name, off)
	}
	if err := r.client.HSet(ctx, r.key, values...).Err(); err != nil {
		return fmt.Errorf("hset %s: %w", r.key, err)
	}
	return nil
}
