package config

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// RunSetupWizard walks the operator through first-time configuration,
// reading answers from in and writing prompts to out.
func RunSetupWizard(cfg *Config, in io.Reader, out io.Writer) error {
	reader := bufio.NewReader(in)
	return runWizard(cfg, reader, out)
}

func runWizard(cfg *Config, reader *bufio.Reader, out io.Writer) error {
	fmt.Fprintln(out, "╔══════════════════════════════════════════════╗")
	fmt.Fprintln(out, "║          EchoRelay - First Run Setup         ║")
	fmt.Fprintln(out, "╚══════════════════════════════════════════════╝")
	fmt.Fprintln(out)

	cfg.mu.Lock()

	fmt.Fprintln(out, "── Listener ──")
	cfg.Server.Host = promptString(reader, out, "Bind address", cfg.Server.Host)
	cfg.Server.Port = promptInt(reader, out, "Port", cfg.Server.Port)
	cfg.Server.PublicHost = promptString(reader, out, "Public host for generated service config (blank to auto-detect)", cfg.Server.PublicHost)
	cfg.Server.ServiceConfigOutput = promptString(reader, out, "Write service config to (blank to skip)", cfg.Server.ServiceConfigOutput)

	fmt.Fprintln(out)
	fmt.Fprintln(out, "── Storage ──")
	cfg.Storage.Backend = promptString(reader, out, "Backend (sqlite/redis)", cfg.Storage.Backend)
	if cfg.Storage.Backend == "redis" {
		cfg.Storage.RedisAddr = promptString(reader, out, "Redis address", cfg.Storage.RedisAddr)
		cfg.Storage.RedisPassword = promptPassword(reader, out, "Redis password")
	} else {
		cfg.Storage.Path = promptString(reader, out, "Database file", cfg.Storage.Path)
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "── Game Servers ──")
	cfg.ServerDB.APIKey = promptString(reader, out, "Registration API key (blank for none)", cfg.ServerDB.APIKey)
	cfg.ServerDB.ValidateEndpoint = promptBool(reader, out, "Validate game server UDP endpoints", cfg.ServerDB.ValidateEndpoint)

	fmt.Fprintln(out)
	fmt.Fprintln(out, "── Matchmaking ──")
	cfg.Matching.ForceIntoAnySession = promptBool(reader, out, "Force players into any session when none match", cfg.Matching.ForceIntoAnySession)
	cfg.Matching.FavorPopulationOverPing = !promptBool(reader, out, "Prefer low ping over population", !cfg.Matching.FavorPopulationOverPing)

	fmt.Fprintln(out)
	fmt.Fprintln(out, "── Admin API ──")
	cfg.API.Enabled = promptBool(reader, out, "Enable admin API", cfg.API.Enabled)
	if cfg.API.Enabled {
		cfg.API.AuthDisabled = !promptBool(reader, out, "Require JWT authentication", !cfg.API.AuthDisabled)
		if !cfg.API.AuthDisabled {
			cfg.API.JWTSecret = promptPassword(reader, out, "JWT signing secret (32+ characters)")
		}
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "── MQTT Telemetry ──")
	cfg.MQTT.Enabled = promptBool(reader, out, "Enable MQTT telemetry", cfg.MQTT.Enabled)
	if cfg.MQTT.Enabled {
		cfg.MQTT.BrokerURL = promptString(reader, out, "Broker host", cfg.MQTT.BrokerURL)
		cfg.MQTT.Port = promptInt(reader, out, "Broker port", cfg.MQTT.Port)
	}

	cfg.mu.Unlock()

	result := Validate(cfg)
	if !result.IsValid() {
		fmt.Fprintln(out, "\n⚠ Configuration has errors:")
		for _, e := range result.Errors {
			fmt.Fprintf(out, "  - [%s] %s\n", e.Field, e.Message)
		}
		retry := promptString(reader, out, "Would you like to try again? (yes/no)", "yes")
		if strings.ToLower(retry) == "yes" {
			return runWizard(cfg, reader, out)
		}
		return fmt.Errorf("configuration validation failed")
	}

	for _, w := range result.Warnings {
		log.Warn().Str("field", w.Field).Msg(w.Message)
	}

	if err := cfg.Save(); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	fmt.Fprintln(out)
	fmt.Fprintf(out, "✓ Configuration saved to %s\n", cfg.Path())
	fmt.Fprintln(out)
	return nil
}

func promptString(reader *bufio.Reader, out io.Writer, prompt string, defaultVal string) string {
	if defaultVal != "" {
		fmt.Fprintf(out, "  %s [%s]: ", prompt, defaultVal)
	} else {
		fmt.Fprintf(out, "  %s: ", prompt)
	}

	input, _ := reader.ReadString('\n')
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}

func promptPassword(reader *bufio.Reader, out io.Writer, prompt string) string {
	fmt.Fprintf(out, "  %s: ", prompt)
	input, _ := reader.ReadString('\n')
	return strings.TrimSpace(input)
}

func promptInt(reader *bufio.Reader, out io.Writer, prompt string, defaultVal int) int {
	fmt.Fprintf(out, "  %s [%d]: ", prompt, defaultVal)

	input, _ := reader.ReadString('\n')
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}

	val, err := strconv.Atoi(input)
	if err != nil {
		fmt.Fprintf(out, "    Invalid number, using default: %d\n", defaultVal)
		return defaultVal
	}
	return val
}

func promptBool(reader *bufio.Reader, out io.Writer, prompt string, defaultVal bool) bool {
	defaultStr := "no"
	if defaultVal {
		defaultStr = "yes"
	}

	fmt.Fprintf(out, "  %s [%s]: ", prompt, defaultStr)

	input, _ := reader.ReadString('\n')
	input = strings.TrimSpace(strings.ToLower(input))

	if input == "" {
		return defaultVal
	}

	return input == "yes" || input == "y" || input == "true" || input == "1"
}
