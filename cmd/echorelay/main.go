// EchoRelay is a self-hosted backend for Echo VR: login, configuration,
// matchmaking, game server registry and transaction services over
// websockets, with an admin REST API and MQTT telemetry.
package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/echorelay-project/echorelay/internal/api"
	"github.com/echorelay-project/echorelay/internal/config"
	"github.com/echorelay-project/echorelay/internal/util"
)

const (
	AppName = "EchoRelay"
	Banner  = `
  _____     _         ____      _
 | ____|___| |__   __|  _ \ ___| | __ _ _   _
 |  _| / __| '_ \ / _ \ |_) / _ \ |/ _' | | | |
 | |__| (__| | | | (_) |  _ <  __/ | (_| | |_| |
 |_____\___|_| |_|\___/|_| \_\___|_|\__,_|\__, |
                                          |___/  v%s
`
)

// Version is set at build time.
var Version = "dev"

var configDir string

var rootCmd = &cobra.Command{
	Use:   "echorelay",
	Short: "Echo VR backend relay",
	Args:  cobra.NoArgs,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveCmd.RunE(cmd, args)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", AppName, Version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", config.DefaultConfigDir, "Directory holding echorelay.yaml")
	addServeFlags(rootCmd)
	rootCmd.AddCommand(serveCmd, setupCmd, tokenCmd, versionCmd)
}

func main() {
	api.Version = Version
	if _, err := util.InitLogger(util.DefaultLogConfig()); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("failed to execute")
	}
}
