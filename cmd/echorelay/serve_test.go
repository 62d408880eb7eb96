package main

import (
	"bytes"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/echorelay-project/echorelay/internal/config"
)

func parseServeFlags(t *testing.T, args ...string) (*cobra.Command, serveFlags) {
	t.Helper()
	var f serveFlags
	cmd := &cobra.Command{Use: "serve"}
	saved := flags
	t.Cleanup(func() { flags = saved })
	addServeFlags(cmd)
	require.NoError(t, cmd.ParseFlags(args))
	f = flags
	return cmd, f
}

func TestApplyFlagsOnlyTouchesChangedFlags(t *testing.T) {
	cmd, f := parseServeFlags(t, "--port", "6767", "--lowpingmatching")
	cfg := config.DefaultConfig()
	require.NoError(t, cfg.UpdateField("matching", "force_into_any_session", false))

	require.NoError(t, applyFlags(cmd, cfg, f))
	snap := cfg.Snapshot()
	assert.Equal(t, 6767, snap.Server.Port)
	assert.False(t, snap.Matching.FavorPopulationOverPing)
	assert.False(t, snap.Matching.ForceIntoAnySession, "unset flag must not override the file")
	assert.Equal(t, 3000, snap.Timers.StatsIntervalMS)
	assert.False(t, snap.Logging.Verbose)
}

func TestApplyFlagsVerbose(t *testing.T) {
	cmd, f := parseServeFlags(t, "-v", "--statsinterval", "500", "--outputconfig", "out/sc.json")
	cfg := config.DefaultConfig()

	require.NoError(t, applyFlags(cmd, cfg, f))
	snap := cfg.Snapshot()
	assert.True(t, snap.Logging.Verbose)
	assert.Equal(t, "debug", snap.Logging.Level)
	assert.Equal(t, 500, snap.Timers.StatsIntervalMS)
	assert.Equal(t, "out/sc.json", snap.Server.ServiceConfigOutput)
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	versionCmd.SetOut(&out)
	versionCmd.Run(versionCmd, nil)
	assert.Equal(t, "EchoRelay dev\n", out.String())
}
