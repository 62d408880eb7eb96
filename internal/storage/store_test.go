package storage

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSQLite(t *testing.T) Store {
	t.Helper()
	s, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newRedis(t *testing.T) Store {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := NewRedisStoreFromClient(client, "test")
	t.Cleanup(func() { s.Close() })
	return s
}

func newCachedSQLite(t *testing.T) Store {
	t.Helper()
	c, err := NewCached(newSQLite(t), 8)
	require.NoError(t, err)
	return c
}

var backends = map[string]func(t *testing.T) Store{
	"sqlite": newSQLite,
	"redis":  newRedis,
	"cached": newCachedSQLite,
}

func TestStoreContract(t *testing.T) {
	for name, open := range backends {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)

			_, err := s.Get(ctx, KindConfig, "missing")
			assert.ErrorIs(t, err, ErrNotFound)

			ok, err := s.Exists(ctx, KindConfig, "a")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, s.Set(ctx, KindConfig, "b", []byte(`{"v":2}`)))
			require.NoError(t, s.Set(ctx, KindConfig, "a", []byte(`{"v":1}`)))
			require.NoError(t, s.Set(ctx, KindDocument, "a", []byte(`{"doc":true}`)))

			got, err := s.Get(ctx, KindConfig, "a")
			require.NoError(t, err)
			assert.JSONEq(t, `{"v":1}`, string(got))

			require.NoError(t, s.Set(ctx, KindConfig, "a", []byte(`{"v":3}`)))
			got, err = s.Get(ctx, KindConfig, "a")
			require.NoError(t, err)
			assert.JSONEq(t, `{"v":3}`, string(got))

			keys, err := s.Keys(ctx, KindConfig)
			require.NoError(t, err)
			assert.Equal(t, []string{"a", "b"}, keys)

			ok, err = s.Exists(ctx, KindDocument, "a")
			require.NoError(t, err)
			assert.True(t, ok)

			deleted, err := s.Delete(ctx, KindConfig, "a")
			require.NoError(t, err)
			assert.True(t, deleted)
			deleted, err = s.Delete(ctx, KindConfig, "a")
			require.NoError(t, err)
			assert.False(t, deleted)

			_, err = s.Get(ctx, KindConfig, "a")
			assert.ErrorIs(t, err, ErrNotFound)

			_, err = s.Get(ctx, KindDocument, "a")
			assert.NoError(t, err, "kinds are separate namespaces")
		})
	}
}

func TestCachedServesRepeatReads(t *testing.T) {
	ctx := context.Background()
	backing := newSQLite(t)
	c, err := NewCached(backing, 4)
	require.NoError(t, err)

	require.NoError(t, c.Set(ctx, KindAccount, "OVR-1", []byte(`{}`)))
	assert.Equal(t, 1, c.Len())

	// A write that bypasses the cache is not observed until invalidated.
	require.NoError(t, backing.Set(ctx, KindAccount, "OVR-1", []byte(`{"x":1}`)))
	got, err := c.Get(ctx, KindAccount, "OVR-1")
	require.NoError(t, err)
	assert.Equal(t, `{}`, string(got))

	_, err = c.Delete(ctx, KindAccount, "OVR-1")
	require.NoError(t, err)
	assert.Zero(t, c.Len())
}

func TestOpenUnknownBackend(t *testing.T) {
	_, err := Open(context.Background(), Options{Backend: "mongo"})
	assert.Error(t, err)
}

func TestOpenRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	s, err := Open(context.Background(), Options{Backend: BackendRedis, RedisAddr: mr.Addr(), CacheSize: 16})
	require.NoError(t, err)
	defer s.Close()

	_, ok := s.(*Cached)
	assert.True(t, ok)
}
