package config

import (
	"fmt"
	"net"
	"strings"

	"github.com/echorelay-project/echorelay/internal/storage"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation error [%s]: %s", e.Field, e.Message)
}

// ValidationResult holds the results of configuration validation.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
}

// IsValid returns true if there are no validation errors.
func (r *ValidationResult) IsValid() bool {
	return len(r.Errors) == 0
}

// AddError adds a validation error.
func (r *ValidationResult) AddError(field, message string) {
	r.Errors = append(r.Errors, ValidationError{Field: field, Message: message})
}

// AddWarning adds a validation warning.
func (r *ValidationResult) AddWarning(field, message string) {
	r.Warnings = append(r.Warnings, ValidationError{Field: field, Message: message})
}

// Validate checks every section of the configuration.
func Validate(cfg *Config) *ValidationResult {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	result := &ValidationResult{}

	validateServer(&cfg.Server, result)
	validateMatching(&cfg.Matching, result)
	validateServerDB(&cfg.ServerDB, result)
	validateStorage(&cfg.Storage, result)
	validateAPI(&cfg.API, result)
	validateMQTT(&cfg.MQTT, result)
	validateTimers(&cfg.Timers, result)

	return result
}

func validateServer(s *ServerConfig, result *ValidationResult) {
	validatePort(s.Port, "server.port", result)

	paths := map[string]string{
		"server.paths.login":       s.Paths.Login,
		"server.paths.config":      s.Paths.Config,
		"server.paths.matching":    s.Paths.Matching,
		"server.paths.serverdb":    s.Paths.ServerDB,
		"server.paths.transaction": s.Paths.Transaction,
	}
	seen := make(map[string]string, len(paths))
	for field, p := range paths {
		if !strings.HasPrefix(p, "/") || p == "/" {
			result.AddError(field, fmt.Sprintf("service path %q must start with / and name a resource", p))
			continue
		}
		if p == "/api" || strings.HasPrefix(p, "/api/") {
			result.AddError(field, "service paths may not live under /api")
		}
		if other, dup := seen[p]; dup {
			result.AddError(field, fmt.Sprintf("path %s is already used by %s", p, other))
		}
		seen[p] = field
	}

	if s.TLSEnabled {
		if strings.TrimSpace(s.TLSCertFile) == "" {
			result.AddError("server.tls_cert_file", "TLS certificate file is required when TLS is enabled")
		}
		if strings.TrimSpace(s.TLSKeyFile) == "" {
			result.AddError("server.tls_key_file", "TLS key file is required when TLS is enabled")
		}
	}

	if s.MessagesPerSecond <= 0 {
		result.AddWarning("server.messages_per_second", "per-peer message limit is disabled")
	}
}

func validateMatching(m *MatchingConfig, result *ValidationResult) {
	if m.MaxCandidates < 1 {
		result.AddError("matching.max_candidates", "must consider at least 1 candidate")
	}
	if m.MaxCandidates > 1000 {
		result.AddWarning("matching.max_candidates",
			fmt.Sprintf("probing %d game servers per request is excessive", m.MaxCandidates))
	}
}

func validateServerDB(s *ServerDBConfig, result *ValidationResult) {
	if strings.TrimSpace(s.APIKey) == "" {
		result.AddWarning("serverdb.api_key", "no API key set, any client may register game servers")
	}
	if s.ValidateEndpoint && s.ValidateTimeoutMS < 100 {
		result.AddError("serverdb.validate_timeout_ms", "validation timeout must be at least 100ms")
	}
}

func validateStorage(s *StorageConfig, result *ValidationResult) {
	switch storage.Backend(s.Backend) {
	case storage.BackendSQLite:
		if strings.TrimSpace(s.Path) == "" {
			result.AddError("storage.path", "database path is required for the sqlite backend")
		}
	case storage.BackendRedis:
		if _, _, err := net.SplitHostPort(s.RedisAddr); err != nil {
			result.AddError("storage.redis_addr", fmt.Sprintf("invalid redis address %q", s.RedisAddr))
		}
	default:
		result.AddError("storage.backend", fmt.Sprintf("unknown backend %q (expected sqlite or redis)", s.Backend))
	}
	if s.CacheSize < 0 {
		result.AddError("storage.cache_size", "cache size cannot be negative")
	}
}

func validateAPI(a *APIConfig, result *ValidationResult) {
	if !a.Enabled {
		return
	}
	if a.AuthDisabled {
		result.AddWarning("api.auth_disabled", "admin API accepts unauthenticated requests")
	} else if len(a.JWTSecret) < 32 {
		result.AddError("api.jwt_secret", "JWT secret must be at least 32 characters when auth is enabled")
	}
	if a.RateLimitRPS < 1 {
		result.AddWarning("api.rate_limit_rps",
			"rate limit is disabled (0 RPS), this may expose the API to abuse")
	}
}

func validateMQTT(m *MQTTConfig, result *ValidationResult) {
	if !m.Enabled {
		return
	}
	if strings.TrimSpace(m.BrokerURL) == "" {
		result.AddError("mqtt.broker_url", "MQTT broker URL is required when enabled")
	}
	if m.Port < 1 || m.Port > 65535 {
		result.AddError("mqtt.port", "invalid MQTT port")
	}
}

func validateTimers(t *TimerConfig, result *ValidationResult) {
	if t.SessionPurgeIntervalSec < 1 {
		result.AddError("timers.session_purge_interval_sec", "must be at least 1 second")
	}
	if t.StatsIntervalMS < 100 {
		result.AddWarning("timers.stats_interval_ms", "stats interval below 100ms will flood the log")
	}
	if t.StalePeerTimeoutSec > 0 && t.StalePeerTimeoutSec < t.StalePeerCheckSec {
		result.AddWarning("timers.stale_peer_timeout_sec", "timeout is shorter than the check interval")
	}
}

func validatePort(port int, field string, result *ValidationResult) {
	if port < 1 || port > 65535 {
		result.AddError(field, fmt.Sprintf("invalid port number: %d (must be 1-65535)", port))
		return
	}
	if port < 1024 {
		result.AddWarning(field,
			fmt.Sprintf("port %d is a privileged port, may require elevated permissions", port))
	}
}

// IsPortAvailable checks if a port is available for binding.
func IsPortAvailable(port int) bool {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return false
	}
	ln.Close()
	return true
}
