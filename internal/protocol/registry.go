package protocol

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrUnknownSymbol is returned in strict mode for unregistered symbols.
var ErrUnknownSymbol = errors.New("protocol: unknown message symbol")

// Constructor returns a zero value of a message type.
type Constructor func() Message

type registryEntry struct {
	name string
	ctor Constructor
}

// Registry maps message symbols to constructors and back to names.
// It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	bySymbol map[Symbol]registryEntry
	byName   map[string]Symbol
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		bySymbol: make(map[Symbol]registryEntry),
		byName:   make(map[string]Symbol),
	}
}

// Register adds a message type. Each symbol and each name may be bound only
// once.
func (r *Registry) Register(name string, ctor Constructor) error {
	if ctor == nil {
		return fmt.Errorf("failed to register %s: nil constructor", name)
	}
	symbol := ctor().Symbol()

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.bySymbol[symbol]; ok {
		return fmt.Errorf("failed to register %s: symbol %s already bound to %s", name, symbol, existing.name)
	}
	if existing, ok := r.byName[name]; ok {
		return fmt.Errorf("failed to register %s: name already bound to symbol %s", name, existing)
	}
	r.bySymbol[symbol] = registryEntry{name: name, ctor: ctor}
	r.byName[name] = symbol
	return nil
}

// MustRegister is Register that panics on conflict. It is meant for
// static tables built at startup.
func (r *Registry) MustRegister(name string, ctor Constructor) {
	if err := r.Register(name, ctor); err != nil {
		panic(err)
	}
}

// Unregister removes a message type. Unknown symbols are ignored.
func (r *Registry) Unregister(symbol Symbol) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry, ok := r.bySymbol[symbol]; ok {
		delete(r.byName, entry.name)
		delete(r.bySymbol, symbol)
	}
}

// CreateMessage returns a new message for symbol. Unknown symbols yield an
// UnimplementedMessage, or ErrUnknownSymbol when strict is set.
func (r *Registry) CreateMessage(symbol Symbol, strict bool) (Message, error) {
	r.mu.RLock()
	entry, ok := r.bySymbol[symbol]
	r.mu.RUnlock()

	if !ok {
		if strict {
			return nil, fmt.Errorf("%w: %s", ErrUnknownSymbol, symbol)
		}
		return &UnimplementedMessage{TypeSymbol: symbol}, nil
	}
	return entry.ctor(), nil
}

// Name returns the registered name for symbol.
func (r *Registry) Name(symbol Symbol) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.bySymbol[symbol]
	return entry.name, ok
}

// Lookup returns the symbol registered under name.
func (r *Registry) Lookup(name string) (Symbol, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byName[name]
	return s, ok
}

// Symbols returns every registered symbol in ascending order.
func (r *Registry) Symbols() []Symbol {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Symbol, 0, len(r.bySymbol))
	for s := range r.bySymbol {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Len returns the number of registered message types.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bySymbol)
}

// NameOf returns a printable name for m.
func (r *Registry) NameOf(m Message) string {
	if _, ok := m.(*UnimplementedMessage); ok {
		return "Unimplemented(" + m.Symbol().String() + ")"
	}
	if name, ok := r.Name(m.Symbol()); ok {
		return name
	}
	return m.Symbol().String()
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// NewCatalogueRegistry returns a fresh registry holding every known
// message type, for callers that register extra types of their own.
func NewCatalogueRegistry() *Registry {
	r := NewRegistry()
	registerCatalogue(r)
	return r
}

// DefaultRegistry returns the process-wide registry holding every known
// message type.
func DefaultRegistry() *Registry {
	defaultOnce.Do(func() {
		defaultRegistry = NewCatalogueRegistry()
	})
	return defaultRegistry
}
