package storage

import (
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/echorelay-project/echorelay/internal/protocol"
)

// lockCost is the bcrypt cost used for account locks.
var lockCost = bcrypt.DefaultCost

// AccountProfile holds the client-owned and server-owned profile documents
// exchanged with game clients.
type AccountProfile struct {
	Client protocol.Object `json:"client"`
	Server protocol.Object `json:"server"`
}

// Account is a stored player account.
type Account struct {
	ID          protocol.XPlatformID `json:"id"`
	Profile     AccountProfile       `json:"profile"`
	IsModerator bool                 `json:"is_moderator"`
	BannedUntil *time.Time           `json:"banned_until,omitempty"`
	LockHash    string               `json:"account_lock_hash,omitempty"`
}

// NewAccount creates an account with default client and server profiles.
// Onboarding is marked complete so new players land in the lobby.
func NewAccount(id protocol.XPlatformID, displayName string, now time.Time) (*Account, error) {
	if !id.Valid() {
		return nil, fmt.Errorf("cannot create account for invalid user id %s", id)
	}

	xpid := id.String()
	a := &Account{
		ID: id,
		Profile: AccountProfile{
			Client: protocol.Object{
				"xplatformid": xpid,
				"weapon":      "scout",
				"grenade":     "det",
				"weaponarm":   1,
				"npe": protocol.Object{
					"lobby":       protocol.Object{"completed": true},
					"firstmatch":  protocol.Object{"completed": true},
					"movement":    protocol.Object{"completed": true},
					"arenabasics": protocol.Object{"completed": true},
				},
				"customization": protocol.Object{
					"battlepass_season_poi_version": 0,
					"new_unlocks_poi_version":       0,
					"store_entry_poi_version":       0,
					"clear_new_unlocks_version":     0,
				},
				"social": protocol.Object{
					"community_values_version": 1,
					"setup_version":            1,
				},
				"newunlocks": []int64{},
			},
			Server: protocol.Object{
				"xplatformid":     xpid,
				"_version":        5,
				"publisher_lock":  "rad15_live",
				"purchasedcombat": 0,
				"createtime":      now.Unix(),
				"stats": protocol.Object{
					"arena":  protocol.Object{"Level": protocol.Object{"cnt": 1, "op": "add", "val": 1}},
					"combat": protocol.Object{"Level": protocol.Object{"cnt": 1, "op": "add", "val": 1}},
				},
				"loadout": protocol.Object{
					"number": 1,
					"instances": protocol.Object{
						"unified": protocol.Object{
							"slots": protocol.Object{
								"decal":            "decal_default",
								"decal_body":       "decal_default",
								"emote":            "emote_blink_smiley_a",
								"secondemote":      "emote_blink_smiley_a",
								"tint":             "tint_neutral_a_default",
								"tint_body":        "tint_neutral_a_default",
								"tint_alignment_a": "tint_blue_a_default",
								"tint_alignment_b": "tint_orange_a_default",
							},
						},
					},
				},
				"dev": protocol.Object{
					"disable_afk_timeout": true,
					"xplatformid":         xpid,
				},
			},
		},
	}
	a.SetDisplayName(displayName)
	return a, nil
}

// DisplayName returns the server profile display name.
func (a *Account) DisplayName() string {
	name, _ := a.Profile.Server["displayname"].(string)
	return name
}

// SetDisplayName updates the display name in both profiles.
func (a *Account) SetDisplayName(name string) {
	if a.Profile.Client == nil {
		a.Profile.Client = protocol.Object{}
	}
	if a.Profile.Server == nil {
		a.Profile.Server = protocol.Object{}
	}
	a.Profile.Client["displayname"] = name
	a.Profile.Server["displayname"] = name
}

// Touch records login or update timestamps on the server profile.
func (a *Account) Touch(now time.Time, fields ...string) {
	if a.Profile.Server == nil {
		a.Profile.Server = protocol.Object{}
	}
	for _, f := range fields {
		a.Profile.Server[f] = now.Unix()
	}
}

// Banned reports whether the account is banned at now.
func (a *Account) Banned(now time.Time) bool {
	return a.BannedUntil != nil && a.BannedUntil.After(now)
}

const banTimeLayout = "01/02/2006 @ 03:04:05 PM"

// BanMessage describes the active ban for display to the user.
func (a *Account) BanMessage() string {
	if a.BannedUntil == nil {
		return ""
	}
	return fmt.Sprintf("Banned until: %s (UTC)", a.BannedUntil.UTC().Format(banTimeLayout))
}

// Ban bans the account until the given time. A zero time lifts the ban.
func (a *Account) Ban(until time.Time) {
	if until.IsZero() {
		a.BannedUntil = nil
		return
	}
	u := until.UTC()
	a.BannedUntil = &u
}

// Authenticate checks lock against the account lock. An account without a
// lock adopts the supplied one, and an empty supplied lock leaves it open.
func (a *Account) Authenticate(lock string) (bool, error) {
	if a.LockHash == "" {
		if err := a.SetLock(lock); err != nil {
			return false, err
		}
		return true, nil
	}
	if lock == "" {
		return false, nil
	}

	err := bcrypt.CompareHashAndPassword([]byte(a.LockHash), []byte(lock))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to verify account lock: %w", err)
	}
	return true, nil
}

// SetLock replaces the account lock. An empty lock clears it.
func (a *Account) SetLock(lock string) error {
	if lock == "" {
		a.LockHash = ""
		return nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(lock), lockCost)
	if err != nil {
		return fmt.Errorf("failed to hash account lock: %w", err)
	}
	a.LockHash = string(hash)
	return nil
}

// Locked reports whether the account has a lock.
func (a *Account) Locked() bool {
	return a.LockHash != ""
}
