package protocol

import "github.com/google/uuid"

// ReconcileIAP asks the relay to reconcile in-app purchases.
type ReconcileIAP struct {
	Session uuid.UUID
	UserID  XPlatformID
}

func (m *ReconcileIAP) Symbol() Symbol { return SymbolReconcileIAP }

func (m *ReconcileIAP) Encode(w *Writer) error {
	w.WriteGUID(m.Session).WriteXPlatformID(m.UserID)
	return nil
}

func (m *ReconcileIAP) Decode(r *Reader) error {
	m.Session = r.GUID()
	m.UserID = r.XPlatformID()
	return r.Err()
}

// IAPResult is the purchase state returned to a client.
type IAPResult struct {
	Balance IAPBalance `json:"balance"`
	TransID int64      `json:"transactionid"`
}

// IAPBalance holds currency balances.
type IAPBalance struct {
	Currency IAPCurrency `json:"currency"`
}

// IAPCurrency holds the premium currency balance.
type IAPCurrency struct {
	EchoPoints IAPEchoPoints `json:"echopoints"`
}

// IAPEchoPoints is the premium currency amount.
type IAPEchoPoints struct {
	Value int64 `json:"val"`
}

// ReconcileIAPResult answers ReconcileIAP.
type ReconcileIAPResult struct {
	UserID  XPlatformID
	IAPData RawJSON
}

func (m *ReconcileIAPResult) Symbol() Symbol { return SymbolReconcileIAPResult }

func (m *ReconcileIAPResult) Encode(w *Writer) error {
	w.WriteXPlatformID(m.UserID)
	return w.WriteJSON(m.IAPData, JSONPlain)
}

func (m *ReconcileIAPResult) Decode(r *Reader) error {
	m.UserID = r.XPlatformID()
	r.JSON(&m.IAPData, JSONPlain)
	return r.Err()
}
