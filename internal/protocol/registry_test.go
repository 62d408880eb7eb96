package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_RegisterAndCreate(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("LoginSuccess", func() Message { return &LoginSuccess{} }))

	m, err := r.CreateMessage(SymbolLoginSuccess, true)
	require.NoError(t, err)
	assert.IsType(t, &LoginSuccess{}, m)

	name, ok := r.Name(SymbolLoginSuccess)
	assert.True(t, ok)
	assert.Equal(t, "LoginSuccess", name)

	sym, ok := r.Lookup("LoginSuccess")
	assert.True(t, ok)
	assert.Equal(t, SymbolLoginSuccess, sym)
}

func TestRegistry_RejectsDuplicates(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("ConfigFailurev2", func() Message { return &ConfigFailurev2{} }))

	err := r.Register("DocumentFailure", func() Message { return &DocumentFailure{} })
	assert.Error(t, err)

	err = r.Register("ConfigFailurev2", func() Message { return &LoginSuccess{} })
	assert.Error(t, err)
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_Unregister(t *testing.T) {
	r := NewRegistry()
	r.MustRegister("LoginSuccess", func() Message { return &LoginSuccess{} })
	r.Unregister(SymbolLoginSuccess)
	r.Unregister(SymbolLoginSuccess)

	assert.Zero(t, r.Len())
	_, err := r.CreateMessage(SymbolLoginSuccess, true)
	assert.ErrorIs(t, err, ErrUnknownSymbol)

	m, err := r.CreateMessage(SymbolLoginSuccess, false)
	require.NoError(t, err)
	assert.IsType(t, &UnimplementedMessage{}, m)

	require.NoError(t, r.Register("LoginSuccess", func() Message { return &LoginSuccess{} }))
}

func TestDefaultRegistry_Catalogue(t *testing.T) {
	r := DefaultRegistry()
	assert.Greater(t, r.Len(), 50)

	for _, sym := range r.Symbols() {
		m, err := r.CreateMessage(sym, true)
		require.NoError(t, err)
		assert.Equal(t, sym, m.Symbol(), r.NameOf(m))
	}

	name, ok := r.Name(SymbolConfigFailurev2)
	assert.True(t, ok)
	assert.Equal(t, "ConfigFailurev2", name)
}
