package gameconfig

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/echorelay-project/echorelay/internal/network/networktest"
	"github.com/echorelay-project/echorelay/internal/protocol"
	"github.com/echorelay-project/echorelay/internal/storage"
)

func newConfigClient(t *testing.T) (*networktest.Client, *storage.Resources) {
	t.Helper()
	store, err := storage.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	resources := storage.NewResources(store)
	t.Cleanup(func() { resources.Close() })
	require.NoError(t, storage.EnsureDeployed(context.Background(), resources))

	h := networktest.New(t, nil)
	h.Handle("/config", NewService(resources))
	return h.Dial(t, "/config", ""), resources
}

func TestConfigRequestFound(t *testing.T) {
	c, resources := newConfigClient(t)
	ctx := context.Background()

	c.Send(&protocol.ConfigRequestv2{Info: protocol.ConfigIdentity{Type: "main_menu", ID: "main_menu"}})
	success := networktest.Expect[*protocol.ConfigSuccessv2](c)
	networktest.Expect[*protocol.TcpConnectionUnrequireEvent](c)

	sym, ok := resources.Symbol(ctx, "main_menu")
	require.True(t, ok)
	assert.Equal(t, sym, success.TypeSymbol)
	assert.Equal(t, sym, success.IDSymbol)

	stored, err := resources.Config(ctx, "main_menu", "main_menu")
	require.NoError(t, err)
	assert.JSONEq(t, string(stored), string(success.Resource))
}

func TestConfigRequestFailures(t *testing.T) {
	tests := []struct {
		name    string
		typ, id string
		reason  string
	}{
		{"unknown type symbol", "no_such_type", "main_menu", "Could not resolve symbol for type"},
		{"unknown id symbol", "main_menu", "no_such_id", "Could not resolve symbol for id"},
		{"missing resource", "main_menu", "echo_arena", "Could not find specified config data"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newConfigClient(t)
			c.Send(&protocol.ConfigRequestv2{Info: protocol.ConfigIdentity{Type: tt.typ, ID: tt.id}})

			failure := networktest.Expect[*protocol.ConfigFailurev2](c)
			assert.Equal(t, tt.typ, failure.Info.Type)
			assert.Equal(t, tt.id, failure.Info.ID)
			assert.EqualValues(t, 1, failure.Info.ErrorCode)
			assert.Contains(t, failure.Info.Error, tt.reason)
		})
	}
}
