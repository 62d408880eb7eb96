// Package config handles configuration loading, validation, and persistence
// for the relay.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

const (
	DefaultConfigDir  = "config"
	DefaultConfigFile = "echorelay.yaml"
	DefaultPort       = 777

	// EnvPrefix prefixes every environment override.
	EnvPrefix = "ECHORELAY_"
)

// Config is the root configuration structure.
type Config struct {
	mu      sync.RWMutex
	path    string
	created bool

	Server   ServerConfig   `yaml:"server"`
	Matching MatchingConfig `yaml:"matching"`
	Login    LoginConfig    `yaml:"login"`
	ServerDB ServerDBConfig `yaml:"serverdb"`
	Storage  StorageConfig  `yaml:"storage"`
	API      APIConfig      `yaml:"api"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Timers   TimerConfig    `yaml:"timers"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds the websocket listener settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// Public host written into the generated service config. Empty means
	// the detected public IP.
	PublicHost string `yaml:"public_host"`

	Paths ServicePaths `yaml:"paths"`

	TLSEnabled  bool   `yaml:"tls_enabled"`
	TLSCertFile string `yaml:"tls_cert_file"`
	TLSKeyFile  string `yaml:"tls_key_file"`

	StrictCodec          bool    `yaml:"strict_codec"`
	ConnectionsPerSecond int     `yaml:"connections_per_second"`
	MessagesPerSecond    float64 `yaml:"messages_per_second"`
	MessageBurst         int     `yaml:"message_burst"`
	ReadTimeoutSec       int     `yaml:"read_timeout_sec"`

	// Where to write the generated service config on startup.
	ServiceConfigOutput string `yaml:"service_config_output"`
}

// ServicePaths maps each service to its websocket path.
type ServicePaths struct {
	Login       string `yaml:"login"`
	Config      string `yaml:"config"`
	Matching    string `yaml:"matching"`
	ServerDB    string `yaml:"serverdb"`
	Transaction string `yaml:"transaction"`
}

// MatchingConfig tunes the matchmaker.
type MatchingConfig struct {
	ForceIntoAnySession     bool `yaml:"force_into_any_session"`
	FavorPopulationOverPing bool `yaml:"favor_population_over_ping"`
	MaxCandidates           int  `yaml:"max_candidates"`
}

// LoginConfig holds login session settings.
type LoginConfig struct {
	DisconnectGraceSec int `yaml:"disconnect_grace_sec"`
}

// ServerDBConfig holds game server registration settings.
type ServerDBConfig struct {
	APIKey            string `yaml:"api_key"`
	ValidateEndpoint  bool   `yaml:"validate_endpoint"`
	ValidateTimeoutMS int    `yaml:"validate_timeout_ms"`
}

// StorageConfig selects the resource backend.
type StorageConfig struct {
	Backend       string `yaml:"backend"`
	Path          string `yaml:"path"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	RedisPrefix   string `yaml:"redis_prefix"`
	CacheSize     int    `yaml:"cache_size"`
}

// APIConfig holds the admin API settings.
type APIConfig struct {
	Enabled        bool     `yaml:"enabled"`
	JWTSecret      string   `yaml:"jwt_secret"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	RateLimitRPS   int      `yaml:"rate_limit_rps"`
	AuthDisabled   bool     `yaml:"auth_disabled"`
}

// MQTTConfig holds MQTT telemetry settings.
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	BrokerURL   string `yaml:"broker_url"`
	Port        int    `yaml:"port"`
	UseTLS      bool   `yaml:"use_tls"`
	CAFile      string `yaml:"ca_file"`
	ClientID    string `yaml:"client_id"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"`
}

// TimerConfig holds periodic task intervals.
type TimerConfig struct {
	SessionPurgeIntervalSec  int `yaml:"session_purge_interval_sec"`
	StalePeerCheckSec        int `yaml:"stale_peer_check_sec"`
	StalePeerTimeoutSec      int `yaml:"stale_peer_timeout_sec"`
	PublicIPCheckIntervalSec int `yaml:"public_ip_check_interval_sec"`
	GeneralHealthIntervalSec int `yaml:"general_health_interval_sec"`
	StatsIntervalMS          int `yaml:"stats_interval_ms"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level         string `yaml:"level"`
	Directory     string `yaml:"directory"`
	RetentionDays int    `yaml:"retention_days"`
	// Verbose logs every packet sent and received.
	Verbose bool `yaml:"verbose"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: DefaultPort,
			Paths: ServicePaths{
				Login:       "/login",
				Config:      "/config",
				Matching:    "/matching",
				ServerDB:    "/serverdb",
				Transaction: "/transaction",
			},
			ConnectionsPerSecond: 20,
			MessagesPerSecond:    50,
			MessageBurst:         100,
			ReadTimeoutSec:       60,
		},
		Matching: MatchingConfig{
			ForceIntoAnySession:     true,
			FavorPopulationOverPing: true,
			MaxCandidates:           100,
		},
		Login: LoginConfig{
			DisconnectGraceSec: 60,
		},
		ServerDB: ServerDBConfig{
			ValidateEndpoint:  true,
			ValidateTimeoutMS: 3000,
		},
		Storage: StorageConfig{
			Backend:     "sqlite",
			Path:        filepath.Join("data", "echorelay.db"),
			RedisAddr:   "localhost:6379",
			RedisPrefix: "echorelay",
			CacheSize:   1024,
		},
		API: APIConfig{
			Enabled:      true,
			RateLimitRPS: 20,
			AuthDisabled: true,
		},
		MQTT: MQTTConfig{
			BrokerURL:   "localhost",
			Port:        1883,
			TopicPrefix: "echorelay",
		},
		Timers: TimerConfig{
			SessionPurgeIntervalSec:  60,
			StalePeerCheckSec:        30,
			StalePeerTimeoutSec:      120,
			PublicIPCheckIntervalSec: 1800,
			GeneralHealthIntervalSec: 60,
			StatsIntervalMS:          3000,
		},
		Logging: LoggingConfig{
			Level:         "info",
			Directory:     "logs",
			RetentionDays: 7,
		},
	}
}

// Load reads configuration from the YAML file in configDir, creating it
// with defaults if missing, then applies .env and ECHORELAY_* overrides.
// Overrides are never written back to the file.
func Load(configDir string) (*Config, error) {
	configPath := filepath.Join(configDir, DefaultConfigFile)

	cfg := DefaultConfig()
	cfg.path = configPath

	data, err := os.ReadFile(configPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		log.Info().Str("path", configPath).Msg("config file not found, creating default")
		cfg.created = true
		if saveErr := cfg.Save(); saveErr != nil {
			return nil, fmt.Errorf("failed to save default config: %w", saveErr)
		}
	case err != nil:
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
		}
		log.Info().Str("path", configPath).Msg("configuration loaded")

		// Persist fields added since the file was written.
		if saveErr := cfg.Save(); saveErr != nil {
			log.Warn().Err(saveErr).Msg("failed to re-save config with updated defaults")
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg("failed to load .env file")
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the current configuration to disk.
func (c *Config) Save() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(c.path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(c.path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	log.Debug().Str("path", c.path).Msg("configuration saved")
	return nil
}

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

type envBinding struct {
	key   string
	apply func(c *Config, v string) error
}

func envString(dst func(c *Config) *string) func(*Config, string) error {
	return func(c *Config, v string) error {
		*dst(c) = v
		return nil
	}
}

func envInt(dst func(c *Config) *int) func(*Config, string) error {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return err
		}
		*dst(c) = n
		return nil
	}
}

func envBool(dst func(c *Config) *bool) func(*Config, string) error {
	return func(c *Config, v string) error {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return err
		}
		*dst(c) = b
		return nil
	}
}

var envBindings = []envBinding{
	{"HOST", envString(func(c *Config) *string { return &c.Server.Host })},
	{"PORT", envInt(func(c *Config) *int { return &c.Server.Port })},
	{"PUBLIC_HOST", envString(func(c *Config) *string { return &c.Server.PublicHost })},
	{"SERVICE_CONFIG_OUTPUT", envString(func(c *Config) *string { return &c.Server.ServiceConfigOutput })},
	{"FORCE_MATCHING", envBool(func(c *Config) *bool { return &c.Matching.ForceIntoAnySession })},
	{"FAVOR_POPULATION", envBool(func(c *Config) *bool { return &c.Matching.FavorPopulationOverPing })},
	{"SERVERDB_API_KEY", envString(func(c *Config) *string { return &c.ServerDB.APIKey })},
	{"SERVERDB_VALIDATE", envBool(func(c *Config) *bool { return &c.ServerDB.ValidateEndpoint })},
	{"SERVERDB_VALIDATE_TIMEOUT_MS", envInt(func(c *Config) *int { return &c.ServerDB.ValidateTimeoutMS })},
	{"STORAGE_BACKEND", envString(func(c *Config) *string { return &c.Storage.Backend })},
	{"STORAGE_PATH", envString(func(c *Config) *string { return &c.Storage.Path })},
	{"REDIS_ADDR", envString(func(c *Config) *string { return &c.Storage.RedisAddr })},
	{"REDIS_PASSWORD", envString(func(c *Config) *string { return &c.Storage.RedisPassword })},
	{"REDIS_DB", envInt(func(c *Config) *int { return &c.Storage.RedisDB })},
	{"API_JWT_SECRET", envString(func(c *Config) *string { return &c.API.JWTSecret })},
	{"API_AUTH_DISABLED", envBool(func(c *Config) *bool { return &c.API.AuthDisabled })},
	{"MQTT_ENABLED", envBool(func(c *Config) *bool { return &c.MQTT.Enabled })},
	{"MQTT_BROKER", envString(func(c *Config) *string { return &c.MQTT.BrokerURL })},
	{"MQTT_USERNAME", envString(func(c *Config) *string { return &c.MQTT.Username })},
	{"MQTT_PASSWORD", envString(func(c *Config) *string { return &c.MQTT.Password })},
	{"LOG_LEVEL", envString(func(c *Config) *string { return &c.Logging.Level })},
	{"LOG_VERBOSE", envBool(func(c *Config) *bool { return &c.Logging.Verbose })},
}

// ApplyEnv overlays ECHORELAY_* variables found through lookup.
func (c *Config) ApplyEnv(lookup LookupFunc) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, b := range envBindings {
		v, ok := lookup(EnvPrefix + b.key)
		if !ok {
			continue
		}
		if err := b.apply(c, v); err != nil {
			return fmt.Errorf("failed to apply %s%s: %w", EnvPrefix, b.key, err)
		}
	}
	return nil
}

// Snapshot returns a detached copy of the configuration.
func (c *Config) Snapshot() *Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return &Config{
		path:     c.path,
		Server:   c.Server,
		Matching: c.Matching,
		Login:    c.Login,
		ServerDB: c.ServerDB,
		Storage:  c.Storage,
		API:      c.API,
		MQTT:     c.MQTT,
		Timers:   c.Timers,
		Logging:  c.Logging,
	}
}

// Restore replaces every section with the values held by snap.
func (c *Config) Restore(snap *Config) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Server = snap.Server
	c.Matching = snap.Matching
	c.Login = snap.Login
	c.ServerDB = snap.ServerDB
	c.Storage = snap.Storage
	c.API = snap.API
	c.MQTT = snap.MQTT
	c.Timers = snap.Timers
	c.Logging = snap.Logging
}

// GetMatching returns a copy of the matching configuration.
func (c *Config) GetMatching() MatchingConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Matching
}

// SetMatching updates the matching configuration.
func (c *Config) SetMatching(m MatchingConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Matching = m
}

// GetTimers returns a copy of the timer configuration.
func (c *Config) GetTimers() TimerConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Timers
}

// UpdateField sets one key of a section, e.g. ("matching",
// "max_candidates", 50). The value goes through the YAML encoding so it
// is typed the same way a file edit would be.
func (c *Config) UpdateField(section, key string, value interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	target, ok := c.sections()[section]
	if !ok {
		return fmt.Errorf("unknown config section %q", section)
	}

	data, err := yaml.Marshal(target)
	if err != nil {
		return fmt.Errorf("failed to marshal section %s: %w", section, err)
	}
	m := make(map[string]interface{})
	if err := yaml.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("failed to decode section %s: %w", section, err)
	}
	if _, ok := m[key]; !ok {
		return fmt.Errorf("unknown config key %s.%s", section, key)
	}
	m[key] = value

	updated, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to update field %s.%s: %w", section, key, err)
	}
	if err := yaml.Unmarshal(updated, target); err != nil {
		return fmt.Errorf("failed to update field %s.%s: %w", section, key, err)
	}
	return nil
}

// ParseValue decodes a scalar typed on a command line ("25", "true",
// "relay.example.net") into the value UpdateField expects.
func ParseValue(s string) interface{} {
	var v interface{}
	if err := yaml.Unmarshal([]byte(s), &v); err != nil || v == nil {
		return s
	}
	return v
}

func (c *Config) sections() map[string]interface{} {
	return map[string]interface{}{
		"server":   &c.Server,
		"matching": &c.Matching,
		"login":    &c.Login,
		"serverdb": &c.ServerDB,
		"storage":  &c.Storage,
		"api":      &c.API,
		"mqtt":     &c.MQTT,
		"timers":   &c.Timers,
		"logging":  &c.Logging,
	}
}

// Path returns the config file path.
func (c *Config) Path() string {
	return c.path
}

// IsFirstRun returns true if Load had to create the config file.
func (c *Config) IsFirstRun() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.created
}
