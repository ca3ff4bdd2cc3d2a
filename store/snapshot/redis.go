package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"task-api/store"
)

const DefaultRedisKey = "task-api:snapshot"

// Redis keeps the JSON snapshot under a single key.
type Redis struct {
	rdb *redis.Client
	key string
}

func NewRedis(ctx context.Context, addr, key string) (*Redis, error) {
	if key == "" {
		key = DefaultRedisKey
	}
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
	})
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("could not connect to redis at %s: %w", addr, err)
	}
	return &Redis{rdb: rdb, key: key}, nil
}

func (r *Redis) Save(ctx context.Context, s *store.Store) error {
	b, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := r.rdb.Set(ctx, r.key, b, 0).Err(); err != nil {
		return fmt.Errorf("set %s: %w", r.key, err)
	}
	return nil
}

func (r *Redis) Load(ctx context.Context) (*store.Store, error) {
	val, err := r.rdb.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis key %s: %w", r.key, store.ErrNoSnapshot)
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", r.key, err)
	}
	s := store.New()
	if err := json.Unmarshal(val, s); err != nil {
		return nil, fmt.Errorf("decode %s: %w", r.key, err)
	}
	return s, nil
}

func (r *Redis) Close() error {
	return r.rdb.Close()
}
