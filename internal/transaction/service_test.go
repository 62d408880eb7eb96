package transaction

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/echorelay-project/echorelay/internal/network/networktest"
	"github.com/echorelay-project/echorelay/internal/protocol"
)

func TestReconcileIAP(t *testing.T) {
	svc, err := NewService()
	require.NoError(t, err)

	h := networktest.New(t, nil)
	h.Handle("/transaction", svc)
	c := h.Dial(t, "/transaction", "")

	user := protocol.XPlatformID{Platform: protocol.PlatformSTM, AccountID: 76561198000000000}
	c.Send(&protocol.ReconcileIAP{UserID: user})

	result := networktest.Expect[*protocol.ReconcileIAPResult](c)
	assert.Equal(t, user, result.UserID)
	assert.JSONEq(t, `{"balance":{"currency":{"echopoints":{"val":0}}},"transactionid":1}`, string(result.IAPData))
}
