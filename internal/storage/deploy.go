package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/echorelay-project/echorelay/internal/protocol"
)

const placeholderLink = "https://en.wikipedia.org/wiki/Lone_Echo"

// DefaultSymbols are the config, level and game type names known without
// reading game binaries.
var DefaultSymbols = map[string]protocol.Symbol{
	"main_menu":                   1516004601999793531,
	"active_battle_pass_season":   8740945458790516606,
	"active_store_entry":          6474864185678376393,
	"active_store_featured_entry": 6145481310444124465,
	"eula":                        -3980269165643165007,
	"mpl_lobby_b2":                -3415139097788326908,
	"mpl_tutorial_lobby":          4363271643694206015,
	"mpl_arena_a":                 6300205991959903307,
	"mpl_tutorial_arena":          4363271690485661735,
	"mpl_combat_combustion":       4784809810443202620,
	"mpl_combat_dyson":            4891712358845785604,
	"mpl_combat_fission":          -2351820497221352492,
	"mpl_combat_gauss":            4891712363006409241,
	"social_2.0":                  301069346851901302,
	"social_2.0_private":          3485062872400698437,
	"social_2.0_npe":              1601406692177864215,
	"echo_arena":                  -3791849610740453517,
	"echo_arena_private":          691594351282457603,
	"echo_arena_tournament":       -3081978974147786912,
	"echo_arena_public_ai":        -3076694376331427079,
	"echo_arena_practice_ai":      -8607855738967935905,
	"echo_arena_private_ai":       -2341211041644966243,
	"echo_arena_first_match":      -1545408622389224342,
	"echo_arena_npe":              -2840452043221058453,
	"echo_combat":                 4421472114608583194,
	"echo_combat_private":         3727844164146657855,
	"echo_combat_tournament":      7729563559975407548,
	"echo_combat_public_ai":       4832867265306071705,
	"echo_combat_practice_ai":     2720675696233281171,
	"echo_combat_private_ai":      7060564080080586305,
	"echo_combat_first_match":     5171983837792427686,
	"echo_demo":                   5603003217554343217,
	"echo_demo_public":            3718950499098277919,
}

func defaultChannels() *ChannelInfo {
	rules := "1. Only use this channel for testing.\n2. Act responsibly.\n3. Act legally."
	return &ChannelInfo{Group: []Channel{
		{
			ChannelUUID:  "90DD4DB5-B5DD-4655-839E-FDBE5F4BC0BF",
			Name:         "THE PLAYGROUND",
			Description:  "Classic Echo VR social lobbies.",
			Rules:        rules,
			RulesVersion: 1,
			Link:         placeholderLink,
			Priority:     0,
			Rad:          true,
		},
		{
			ChannelUUID:  "DD9C48DF-C495-4EF3-B317-4FD6364F329D",
			Name:         "CASUAL MATURE GAMERS",
			Description:  "Casual lobbies for less competitive players.",
			Rules:        rules,
			RulesVersion: 1,
			Link:         placeholderLink,
			Priority:     1,
			Rad:          true,
		},
		{
			ChannelUUID:  "937CE604-5DC7-431F-812B-C7C25B4B37B6",
			Name:         "COMPETITIVE GAMERS",
			Description:  "Competitive lobbies for competitive players.",
			Rules:        rules,
			RulesVersion: 1,
			Link:         placeholderLink,
			Priority:     2,
			Rad:          true,
		},
		{
			ChannelUUID:  "EF663D3F-D947-484A-BA7E-8C5ED7FED1A6",
			Name:         "COMBAT PLAYERS",
			Description:  "Casual and competitive lobbies for Echo Combat players.",
			Rules:        rules,
			RulesVersion: 1,
			Link:         placeholderLink,
			Priority:     3,
			Rad:          true,
		},
	}}
}

func defaultLoginSettings() *LoginSettings {
	return &LoginSettings{
		RemoteLogMetrics:    true,
		Environment:         "live",
		MatchmakerQueueMode: "disabled",
		ConfigData:          &LoginConfigData{},
	}
}

func defaultMainMenu() protocol.Object {
	return protocol.Object{
		"type": "main_menu",
		"id":   "main_menu",
		"_ts":  0,
		"news": protocol.Object{
			"offseason": protocol.Object{"texture": "None", "link": placeholderLink},
			"sentiment": protocol.Object{"texture": "ui_mnu_news_latest", "link": placeholderLink},
		},
		"splash": protocol.Object{
			"offseason": protocol.Object{
				"texture": "ui_menu_splash_screen_poster_a_shutdown_clr",
				"link":    placeholderLink,
			},
		},
		"splash_version": 1,
		"help_link":      placeholderLink,
		"news_link":      placeholderLink,
		"discord_link":   placeholderLink,
	}
}

func defaultEULA() protocol.Object {
	return protocol.Object{
		"type":                        "eula",
		"lang":                        "en",
		"version":                     1,
		"version_ga":                  1,
		"text":                        "Warning: This is an unofficial server. By continuing, you indicate your connection is intentional, for legal personal research purposes.",
		"text_ga":                     "Unofficial server operators have visibility into game traffic, while players with authorized Game Admin roles may act as spectators or moderators to observe player interactions.",
		"mark_as_read_profile_key":    "legal|eula_version",
		"mark_as_read_profile_key_ga": "legal|game_admin_version",
		"link_cc":                     placeholderLink,
		"link_pp":                     placeholderLink,
		"link_vr":                     placeholderLink,
		"link_cp":                     placeholderLink,
		"link_ec":                     placeholderLink,
		"link_ea":                     placeholderLink,
		"link_ga":                     placeholderLink,
		"link_tc":                     placeholderLink,
	}
}

// Deployed reports whether defaults have been deployed, judged by the
// presence of an access control list.
func Deployed(ctx context.Context, r *Resources) (bool, error) {
	return r.store.Exists(ctx, KindAccessControl, SingletonKey)
}

// Deploy writes the default access control list, symbol cache, login
// settings, channel info, configs and documents. Accounts are kept.
func Deploy(ctx context.Context, r *Resources) error {
	steps := []struct {
		name string
		fn   func() error
	}{
		{"access control list", func() error {
			return r.SetAccessControl(ctx, &AccessControlList{AllowRules: []string{"*"}, DisallowRules: []string{}})
		}},
		{"symbol cache", func() error {
			return r.SetSymbolCache(ctx, NewSymbolCache(DefaultSymbols))
		}},
		{"login settings", func() error {
			return r.SetLoginSettings(ctx, defaultLoginSettings())
		}},
		{"channel info", func() error {
			return r.SetChannelInfo(ctx, defaultChannels())
		}},
		{"main menu config", func() error {
			data, err := json.Marshal(defaultMainMenu())
			if err != nil {
				return err
			}
			return r.SetConfig(ctx, data)
		}},
		{"eula document", func() error {
			data, err := json.Marshal(defaultEULA())
			if err != nil {
				return err
			}
			return r.SetDocument(ctx, data)
		}},
	}

	for _, step := range steps {
		if err := step.fn(); err != nil {
			return fmt.Errorf("failed to deploy %s: %w", step.name, err)
		}
	}
	log.Info().Msg("default resources deployed")
	return nil
}

// EnsureDeployed deploys defaults on first run.
func EnsureDeployed(ctx context.Context, r *Resources) error {
	ok, err := Deployed(ctx, r)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	if ok {
		return nil
	}
	return Deploy(ctx, r)
}
