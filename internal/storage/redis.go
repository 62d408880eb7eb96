package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// RedisOptions configures a RedisStore.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// RedisStore keeps each resource kind in one redis hash named
// "<prefix>:<kind>".
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore connects to redis and verifies the connection.
func NewRedisStore(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", opts.Addr, err)
	}

	log.Info().Str("addr", opts.Addr).Msg("resource store connected to redis")
	return NewRedisStoreFromClient(client, opts.Prefix), nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "echorelay"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) hash(kind Kind) string {
	return s.prefix + ":" + string(kind)
}

func (s *RedisStore) Get(ctx context.Context, kind Kind, key string) ([]byte, error) {
	value, err := s.client.HGet(ctx, s.hash(kind), key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s/%s: %w", kind, key, err)
	}
	return value, nil
}

func (s *RedisStore) Set(ctx context.Context, kind Kind, key string, value []byte) error {
	if err := s.client.HSet(ctx, s.hash(kind), key, value).Err(); err != nil {
		return fmt.Errorf("failed to write %s/%s: %w", kind, key, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, kind Kind, key string) (bool, error) {
	n, err := s.client.HDel(ctx, s.hash(kind), key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to delete %s/%s: %w", kind, key, err)
	}
	return n > 0, nil
}

func (s *RedisStore) Exists(ctx context.Context, kind Kind, key string) (bool, error) {
	ok, err := s.client.HExists(ctx, s.hash(kind), key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check %s/%s: %w", kind, key, err)
	}
	return ok, nil
}

func (s *RedisStore) Keys(ctx context.Context, kind Kind) ([]string, error) {
	keys, err := s.client.HKeys(ctx, s.hash(kind)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", kind, err)
	}
	sort.Strings(keys)
	return keys, nil
}

// Close closes the redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
