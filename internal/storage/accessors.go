package storage

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/echorelay-project/echorelay/internal/protocol"
)

// Resources provides typed access to the resource kinds held in a Store.
// The access control list and symbol cache are memoized after the first
// read and refreshed whenever they are written through Resources.
type Resources struct {
	store   Store
	acl     atomic.Pointer[AccessControlList]
	symbols atomic.Pointer[SymbolCache]
}

// NewResources wraps store.
func NewResources(store Store) *Resources {
	return &Resources{store: store}
}

// Store returns the underlying store.
func (r *Resources) Store() Store {
	return r.store
}

// Close closes the underlying store.
func (r *Resources) Close() error {
	return r.store.Close()
}

func (r *Resources) getJSON(ctx context.Context, kind Kind, key string, dst any) error {
	data, err := r.store.Get(ctx, kind, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("failed to decode %s/%s: %w", kind, key, err)
	}
	return nil
}

func (r *Resources) setJSON(ctx context.Context, kind Kind, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s/%s: %w", kind, key, err)
	}
	return r.store.Set(ctx, kind, key, data)
}

// Account loads the account for id.
func (r *Resources) Account(ctx context.Context, id protocol.XPlatformID) (*Account, error) {
	var a Account
	if err := r.getJSON(ctx, KindAccount, id.String(), &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// SaveAccount stores a.
func (r *Resources) SaveAccount(ctx context.Context, a *Account) error {
	if !a.ID.Valid() {
		return fmt.Errorf("cannot save account with invalid id %s", a.ID)
	}
	return r.setJSON(ctx, KindAccount, a.ID.String(), a)
}

// DeleteAccount removes the account for id.
func (r *Resources) DeleteAccount(ctx context.Context, id protocol.XPlatformID) (bool, error) {
	return r.store.Delete(ctx, KindAccount, id.String())
}

// AccountIDs lists every stored account id.
func (r *Resources) AccountIDs(ctx context.Context) ([]protocol.XPlatformID, error) {
	keys, err := r.store.Keys(ctx, KindAccount)
	if err != nil {
		return nil, err
	}
	ids := make([]protocol.XPlatformID, 0, len(keys))
	for _, k := range keys {
		id, err := protocol.ParseXPlatformID(k)
		if err != nil {
			log.Warn().Str("key", k).Msg("skipping account with malformed key")
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// AccessControl returns the access control list.
func (r *Resources) AccessControl(ctx context.Context) (*AccessControlList, error) {
	if acl := r.acl.Load(); acl != nil {
		return acl, nil
	}
	var acl AccessControlList
	if err := r.getJSON(ctx, KindAccessControl, SingletonKey, &acl); err != nil {
		return nil, err
	}
	r.acl.Store(&acl)
	return &acl, nil
}

// SetAccessControl stores the access control list.
func (r *Resources) SetAccessControl(ctx context.Context, acl *AccessControlList) error {
	if err := r.setJSON(ctx, KindAccessControl, SingletonKey, acl); err != nil {
		return err
	}
	r.acl.Store(acl)
	return nil
}

// Authorized checks ip against the stored access control list. Without a
// list no address is authorized.
func (r *Resources) Authorized(ip netip.Addr) bool {
	acl, err := r.AccessControl(context.Background())
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			log.Error().Err(err).Msg("failed to load access control list")
		}
		return false
	}
	return acl.Authorized(ip)
}

// ChannelInfo returns the raw channel info document.
func (r *Resources) ChannelInfo(ctx context.Context) (protocol.RawJSON, error) {
	return r.store.Get(ctx, KindChannelInfo, SingletonKey)
}

// SetChannelInfo stores the channel info document.
func (r *Resources) SetChannelInfo(ctx context.Context, info *ChannelInfo) error {
	return r.setJSON(ctx, KindChannelInfo, SingletonKey, info)
}

// LoginSettings returns the raw login settings document.
func (r *Resources) LoginSettings(ctx context.Context) (protocol.RawJSON, error) {
	return r.store.Get(ctx, KindLoginSettings, SingletonKey)
}

// SetLoginSettings stores the login settings document.
func (r *Resources) SetLoginSettings(ctx context.Context, s *LoginSettings) error {
	return r.setJSON(ctx, KindLoginSettings, SingletonKey, s)
}

// ConfigKey is the storage key of a config resource.
func ConfigKey(typ, id string) string {
	return typ + ":" + id
}

// Config returns the config resource with the given type and id.
func (r *Resources) Config(ctx context.Context, typ, id string) (protocol.RawJSON, error) {
	return r.store.Get(ctx, KindConfig, ConfigKey(typ, id))
}

// SetConfig stores a config resource keyed by its "type" and "id" fields.
func (r *Resources) SetConfig(ctx context.Context, resource protocol.RawJSON) error {
	var ident struct {
		Type string `json:"type"`
		ID   string `json:"id"`
	}
	if err := json.Unmarshal(resource, &ident); err != nil {
		return fmt.Errorf("invalid config resource: %w", err)
	}
	if ident.Type == "" || ident.ID == "" {
		return fmt.Errorf("config resource requires type and id")
	}
	return r.store.Set(ctx, KindConfig, ConfigKey(ident.Type, ident.ID), resource)
}

// DocumentKey is the storage key of a document resource.
func DocumentKey(name, language string) string {
	return name + ":" + language
}

// Document returns the document with the given name and language.
func (r *Resources) Document(ctx context.Context, name, language string) (protocol.RawJSON, error) {
	return r.store.Get(ctx, KindDocument, DocumentKey(name, language))
}

// SetDocument stores a document keyed by its "type" and "lang" fields.
func (r *Resources) SetDocument(ctx context.Context, resource protocol.RawJSON) error {
	var ident struct {
		Type string `json:"type"`
		Lang string `json:"lang"`
	}
	if err := json.Unmarshal(resource, &ident); err != nil {
		return fmt.Errorf("invalid document resource: %w", err)
	}
	if ident.Type == "" || ident.Lang == "" {
		return fmt.Errorf("document resource requires type and lang")
	}
	return r.store.Set(ctx, KindDocument, DocumentKey(ident.Type, ident.Lang), resource)
}

// SymbolCache returns the symbol cache. A missing cache reads as empty.
func (r *Resources) SymbolCache(ctx context.Context) (*SymbolCache, error) {
	if c := r.symbols.Load(); c != nil {
		return c, nil
	}
	c := NewSymbolCache(nil)
	if err := r.getJSON(ctx, KindSymbolCache, SingletonKey, c); err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	r.symbols.Store(c)
	return c, nil
}

// SetSymbolCache stores the symbol cache.
func (r *Resources) SetSymbolCache(ctx context.Context, c *SymbolCache) error {
	if err := r.setJSON(ctx, KindSymbolCache, SingletonKey, c); err != nil {
		return err
	}
	r.symbols.Store(c)
	return nil
}

// Symbol resolves a name through the symbol cache.
func (r *Resources) Symbol(ctx context.Context, name string) (protocol.Symbol, bool) {
	c, err := r.SymbolCache(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to load symbol cache")
		return 0, false
	}
	return c.Symbol(name)
}

// SymbolName resolves a symbol back to its name through the symbol cache.
func (r *Resources) SymbolName(ctx context.Context, sym protocol.Symbol) (string, bool) {
	c, err := r.SymbolCache(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to load symbol cache")
		return "", false
	}
	return c.Name(sym)
}
