package storage

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

type cacheKey struct {
	kind Kind
	key  string
}

// Cached is a Store that keeps recently read values in an LRU cache.
// Writes go through to the backing store and refresh the cache.
type Cached struct {
	Store
	cache *lru.Cache[cacheKey, []byte]
}

// NewCached wraps store with an LRU cache holding up to size values.
func NewCached(store Store, size int) (*Cached, error) {
	cache, err := lru.New[cacheKey, []byte](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource cache: %w", err)
	}
	return &Cached{Store: store, cache: cache}, nil
}

func (c *Cached) Get(ctx context.Context, kind Kind, key string) ([]byte, error) {
	k := cacheKey{kind, key}
	if v, ok := c.cache.Get(k); ok {
		return v, nil
	}
	v, err := c.Store.Get(ctx, kind, key)
	if err != nil {
		return nil, err
	}
	c.cache.Add(k, v)
	return v, nil
}

func (c *Cached) Set(ctx context.Context, kind Kind, key string, value []byte) error {
	k := cacheKey{kind, key}
	if err := c.Store.Set(ctx, kind, key, value); err != nil {
		c.cache.Remove(k)
		return err
	}
	c.cache.Add(k, value)
	return nil
}

func (c *Cached) Delete(ctx context.Context, kind Kind, key string) (bool, error) {
	c.cache.Remove(cacheKey{kind, key})
	return c.Store.Delete(ctx, kind, key)
}

func (c *Cached) Exists(ctx context.Context, kind Kind, key string) (bool, error) {
	if c.cache.Contains(cacheKey{kind, key}) {
		return true, nil
	}
	return c.Store.Exists(ctx, kind, key)
}

// Len returns the number of cached values.
func (c *Cached) Len() int {
	return c.cache.Len()
}
