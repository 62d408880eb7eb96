package storage

import (
	"net/netip"
	"path"
	"strings"
	"sync"

	jsoniter "github.com/json-iterator/go"

	"github.com/echorelay-project/echorelay/internal/protocol"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// AccessControlList allows addresses matching an allow rule and no
// disallow rule. Rules are IP strings where '*' matches any run of
// characters, e.g. "192.168.*".
type AccessControlList struct {
	AllowRules    []string `json:"allow_rules"`
	DisallowRules []string `json:"disallow_rules"`
}

func matchAny(addr string, rules []string) bool {
	for _, rule := range rules {
		if ok, err := path.Match(strings.ToLower(rule), addr); err == nil && ok {
			return true
		}
	}
	return false
}

// Authorized reports whether ip may connect.
func (acl *AccessControlList) Authorized(ip netip.Addr) bool {
	addr := strings.ToLower(ip.Unmap().String())
	return matchAny(addr, acl.AllowRules) && !matchAny(addr, acl.DisallowRules)
}

// Channel describes one social channel offered to clients.
type Channel struct {
	ChannelUUID  string `json:"channeluuid"`
	Name         string `json:"name"`
	Description  string `json:"description"`
	Rules        string `json:"rules"`
	RulesVersion uint64 `json:"rules_version"`
	Link         string `json:"link"`
	Priority     uint64 `json:"priority"`
	Rad          bool   `json:"_rad"`
}

// ChannelInfo lists the social channels.
type ChannelInfo struct {
	Group []Channel `json:"group"`
}

// LoginEntry is a dated config entry announced at login.
type LoginEntry struct {
	ID        string `json:"id"`
	StartTime uint64 `json:"starttime"`
	EndTime   uint64 `json:"endtime"`
}

// LoginConfigData names the configs active at login.
type LoginConfigData struct {
	ActiveBattlePassSeason   *LoginEntry `json:"active_battle_pass_season,omitempty"`
	ActiveStoreEntry         *LoginEntry `json:"active_store_entry,omitempty"`
	ActiveStoreFeaturedEntry *LoginEntry `json:"active_store_featured_entry,omitempty"`
}

// LoginSettings is sent to every client after a successful login.
type LoginSettings struct {
	IAPUnlocked           bool             `json:"iap_unlocked"`
	RemoteLogSocial       bool             `json:"remote_log_social"`
	RemoteLogWarnings     bool             `json:"remote_log_warnings"`
	RemoteLogErrors       bool             `json:"remote_log_errors"`
	RemoteLogRichPresence bool             `json:"remote_log_rich_presence"`
	RemoteLogMetrics      bool             `json:"remote_log_metrics"`
	Environment           string           `json:"env"`
	MatchmakerQueueMode   string           `json:"matchmaker_queue_mode"`
	ConfigData            *LoginConfigData `json:"config_data,omitempty"`
}

// SymbolCache is a two-way lookup between symbol names and values.
type SymbolCache struct {
	mu      sync.RWMutex
	byName  map[string]protocol.Symbol
	byValue map[protocol.Symbol]string
}

// NewSymbolCache builds a cache from a name to symbol table.
func NewSymbolCache(names map[string]protocol.Symbol) *SymbolCache {
	c := &SymbolCache{
		byName:  make(map[string]protocol.Symbol, len(names)),
		byValue: make(map[protocol.Symbol]string, len(names)),
	}
	for name, sym := range names {
		c.Add(name, sym)
	}
	return c
}

// Add binds name and symbol, dropping any previous binding of either.
func (c *SymbolCache) Add(name string, sym protocol.Symbol) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if old, ok := c.byName[name]; ok {
		delete(c.byValue, old)
	}
	if old, ok := c.byValue[sym]; ok {
		delete(c.byName, old)
	}
	c.byName[name] = sym
	c.byValue[sym] = name
}

// Symbol returns the symbol bound to name.
func (c *SymbolCache) Symbol(name string) (protocol.Symbol, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.byName[name]
	return s, ok
}

// Name returns the name bound to sym.
func (c *SymbolCache) Name(sym protocol.Symbol) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n, ok := c.byValue[sym]
	return n, ok
}

// Len returns the number of bindings.
func (c *SymbolCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byName)
}

func (c *SymbolCache) MarshalJSON() ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return json.Marshal(c.byName)
}

func (c *SymbolCache) UnmarshalJSON(data []byte) error {
	var names map[string]protocol.Symbol
	if err := json.Unmarshal(data, &names); err != nil {
		return err
	}
	fresh := NewSymbolCache(names)
	c.mu.Lock()
	c.byName, c.byValue = fresh.byName, fresh.byValue
	c.mu.Unlock()
	return nil
}
