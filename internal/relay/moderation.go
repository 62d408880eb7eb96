package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/echorelay-project/echorelay/internal/events"
	"github.com/echorelay-project/echorelay/internal/protocol"
	"github.com/echorelay-project/echorelay/internal/storage"
)

// ErrAccountNotFound is returned by moderation calls for unknown users.
var ErrAccountNotFound = errors.New("account not found")

// Account loads the account for a textual user id such as "OVR-ORG-123".
func (r *Relay) Account(ctx context.Context, userID string) (*storage.Account, error) {
	id, err := protocol.ParseXPlatformID(userID)
	if err != nil {
		return nil, err
	}
	account, err := r.resources.Account(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load account %s: %w", userID, err)
	}
	return account, nil
}

// Ban bans userID until the given time and kicks them from every game
// server before returning.
func (r *Relay) Ban(ctx context.Context, userID string, until time.Time) (*storage.Account, error) {
	if until.IsZero() || !until.After(time.Now()) {
		return nil, fmt.Errorf("ban end %s is not in the future", until.Format(time.RFC3339))
	}
	account, err := r.modify(ctx, userID, func(a *storage.Account) { a.Ban(until) })
	if err != nil {
		return nil, err
	}
	r.logger.Info().Str("user", userID).Time("until", until).Msg("account banned")
	r.emitSync(ctx, events.EventAccountBanned, events.AccountPayload{UserID: userID, Until: until.Unix()})
	return account, nil
}

// Unban lifts any ban on userID.
func (r *Relay) Unban(ctx context.Context, userID string) (*storage.Account, error) {
	account, err := r.modify(ctx, userID, func(a *storage.Account) { a.Ban(time.Time{}) })
	if err != nil {
		return nil, err
	}
	r.logger.Info().Str("user", userID).Msg("account unbanned")
	r.emitSync(ctx, events.EventAccountUnbanned, events.AccountPayload{UserID: userID})
	return account, nil
}

// SetModerator grants or revokes moderator rights.
func (r *Relay) SetModerator(ctx context.Context, userID string, moderator bool) (*storage.Account, error) {
	return r.modify(ctx, userID, func(a *storage.Account) { a.IsModerator = moderator })
}

func (r *Relay) modify(ctx context.Context, userID string, fn func(*storage.Account)) (*storage.Account, error) {
	account, err := r.Account(ctx, userID)
	if err != nil {
		return nil, err
	}
	fn(account)
	if err := r.resources.SaveAccount(ctx, account); err != nil {
		return nil, fmt.Errorf("failed to save account %s: %w", userID, err)
	}
	return account, nil
}

func (r *Relay) emitSync(ctx context.Context, t events.EventType, payload any) {
	if r.eventBus == nil {
		return
	}
	if err := r.eventBus.EmitSync(ctx, events.Event{Type: t, Source: "relay", Payload: payload}); err != nil {
		r.logger.Warn().Err(err).Str("event", string(t)).Msg("event handler failed")
	}
}
