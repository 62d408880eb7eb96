// Package session defines the per-peer session state carried by service
// connections.
package session

import (
	"fmt"

	"github.com/google/uuid"
)

// Kind identifies which variant a Data value holds.
type Kind int

const (
	KindNone Kind = iota
	KindLoginToken
	KindMatching
)

func (k Kind) String() string {
	switch k {
	case KindLoginToken:
		return "login_token"
	case KindMatching:
		return "matching"
	default:
		return "none"
	}
}

// Data is the session payload attached to a peer. A peer holds at most one
// variant at a time; the zero value is None.
type Data struct {
	kind     Kind
	token    uuid.UUID
	matching *Matching
}

// None returns an empty session payload.
func None() Data {
	return Data{}
}

// LoginToken returns a payload holding a login session token.
func LoginToken(token uuid.UUID) Data {
	return Data{kind: KindLoginToken, token: token}
}

// WithMatching returns a payload holding a matchmaking attempt.
func WithMatching(m *Matching) Data {
	if m == nil {
		return None()
	}
	return Data{kind: KindMatching, matching: m}
}

// Kind returns the held variant.
func (d Data) Kind() Kind {
	return d.kind
}

// IsNone reports whether no session is attached.
func (d Data) IsNone() bool {
	return d.kind == KindNone
}

// LoginToken returns the token if d holds one.
func (d Data) LoginToken() (uuid.UUID, bool) {
	if d.kind != KindLoginToken {
		return uuid.Nil, false
	}
	return d.token, true
}

// Matching returns the matchmaking attempt if d holds one.
func (d Data) Matching() (*Matching, bool) {
	if d.kind != KindMatching {
		return nil, false
	}
	return d.matching, true
}

func (d Data) String() string {
	switch d.kind {
	case KindLoginToken:
		return fmt.Sprintf("login_token(%s)", d.token)
	case KindMatching:
		return fmt.Sprintf("matching(%s)", d.matching.UserID)
	default:
		return "none"
	}
}
