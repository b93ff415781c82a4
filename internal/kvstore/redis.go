package kvstore

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

// RedisStore backs the Store contract with a Redis server. This is the
// production backend: SUNIONSTORE/SINTER do the set algebra server-side,
// and per-command atomicity is Redis's own.
type RedisStore struct {
	rdb *redis.Client
}

// RedisOptions configures the Redis connection.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisStore connects to Redis and verifies the connection with a ping.
func NewRedisStore(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, unavailable("ping", err)
	}
	return &RedisStore{rdb: rdb}, nil
}

func (r *RedisStore) GetRecord(ctx context.Context, key string) (map[string]string, error) {
	fields, err := r.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, unavailable("hgetall", err)
	}
	// HGETALL returns an empty map for a missing key.
	if len(fields) == 0 {
		return nil, ErrNotFound
	}
	return fields, nil
}

func (r *RedisStore) SetRecord(ctx context.Context, key string, fields map[string]string) error {
	if err := r.rdb.HSet(ctx, key, fields).Err(); err != nil {
		return unavailable("hset", err)
	}
	return nil
}

func (r *RedisStore) GetValue(ctx context.Context, key string) (string, error) {
	v, err := r.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", unavailable("get", err)
	}
	return v, nil
}

func (r *RedisStore) SetValue(ctx context.Context, key, value string) error {
	if err := r.rdb.Set(ctx, key, value, 0).Err(); err != nil {
		return unavailable("set", err)
	}
	return nil
}

func (r *RedisStore) AddToSet(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	if err := r.rdb.SAdd(ctx, key, members).Err(); err != nil {
		return unavailable("sadd", err)
	}
	return nil
}

func (r *RedisStore) UnionStore(ctx context.Context, dest string, srcs ...string) error {
	if err := r.rdb.SUnionStore(ctx, dest, srcs...).Err(); err != nil {
		return unavailable("sunionstore", err)
	}
	return nil
}

func (r *RedisStore) Intersect(ctx context.Context, keys ...string) ([]string, error) {
	members, err := r.rdb.SInter(ctx, keys...).Result()
	if err != nil {
		return nil, unavailable("sinter", err)
	}
	return members, nil
}

func (r *RedisStore) Union(ctx context.Context, keys ...string) ([]string, error) {
	members, err := r.rdb.SUnion(ctx, keys...).Result()
	if err != nil {
		return nil, unavailable("sunion", err)
	}
	return members, nil
}

func (r *RedisStore) Members(ctx context.Context, key string) ([]string, error) {
	members, err := r.rdb.SMembers(ctx, key).Result()
	if err != nil {
		return nil, unavailable("smembers", err)
	}
	return members, nil
}

func (r *RedisStore) Exists(ctx context.Context, key string) (bool, error) {
	n, err := r.rdb.Exists(ctx, key).Result()
	if err != nil {
		return false, unavailable("exists", err)
	}
	return n > 0, nil
}

func (r *RedisStore) Increment(ctx context.Context, key string) error {
	if err := r.rdb.Incr(ctx, key).Err(); err != nil {
		return unavailable("incr", err)
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := r.rdb.Del(ctx, keys...).Err(); err != nil {
		return unavailable("del", err)
	}
	return nil
}

func (r *RedisStore) Keys(ctx context.Context, pattern string) ([]string, error) {
	var out []string
	iter := r.rdb.Scan(ctx, 0, pattern, 512).Iterator()
	for iter.Next(ctx) {
		out = append(out, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, unavailable("scan", err)
	}
	return out, nil
}

func (r *RedisStore) Close() error {
	return r.rdb.Close()
}
