// Package storage persists the relay's resources: accounts, the access
// control list, channel info, configs, documents, login settings and the
// symbol cache. Backends implement a flat per-kind key/value Store; the
// Resources type layers typed accessors on top.
package storage

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned when a key does not exist.
var ErrNotFound = errors.New("resource not found")

// Kind names a resource collection.
type Kind string

const (
	KindAccount       Kind = "accounts"
	KindAccessControl Kind = "access_control"
	KindChannelInfo   Kind = "channel_info"
	KindConfig        Kind = "configs"
	KindDocument      Kind = "documents"
	KindLoginSettings Kind = "login_settings"
	KindSymbolCache   Kind = "symbol_cache"
)

// Kinds lists every resource kind.
var Kinds = []Kind{
	KindAccount,
	KindAccessControl,
	KindChannelInfo,
	KindConfig,
	KindDocument,
	KindLoginSettings,
	KindSymbolCache,
}

// SingletonKey is the key used by kinds that hold a single resource.
const SingletonKey = "default"

// Store is a per-kind key/value backend. Implementations must be safe for
// concurrent use.
type Store interface {
	Get(ctx context.Context, kind Kind, key string) ([]byte, error)
	Set(ctx context.Context, kind Kind, key string, value []byte) error
	Delete(ctx context.Context, kind Kind, key string) (bool, error)
	Exists(ctx context.Context, kind Kind, key string) (bool, error)
	Keys(ctx context.Context, kind Kind) ([]string, error)
	Close() error
}

// Backend names a Store implementation.
type Backend string

const (
	BackendSQLite Backend = "sqlite"
	BackendRedis  Backend = "redis"
)

// Options selects and configures a backend.
type Options struct {
	Backend       Backend
	SQLitePath    string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string
	CacheSize     int
}

// Open creates the configured store, wrapped in a read cache when
// CacheSize is positive.
func Open(ctx context.Context, opts Options) (Store, error) {
	var (
		store Store
		err   error
	)
	switch opts.Backend {
	case BackendSQLite, "":
		store, err = NewSQLiteStore(opts.SQLitePath)
	case BackendRedis:
		store, err = NewRedisStore(ctx, RedisOptions{
			Addr:     opts.RedisAddr,
			Password: opts.RedisPassword,
			DB:       opts.RedisDB,
			Prefix:   opts.RedisPrefix,
		})
	default:
		return nil, fmt.Errorf("unknown storage backend %q", opts.Backend)
	}
	if err != nil {
		return nil, err
	}

	if opts.CacheSize > 0 {
		return NewCached(store, opts.CacheSize)
	}
	return store, nil
}
