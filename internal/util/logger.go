// Package util provides logging, host metrics and TLS helpers shared by the
// relay's commands.
package util

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const logFilePrefix = "echorelay_"

// LogConfig holds configuration for the logging system.
type LogConfig struct {
	Level         string
	Directory     string
	RetentionDays int
	Console       bool
	// ConsoleOut overrides stdout for the console writer.
	ConsoleOut io.Writer
}

// DefaultLogConfig returns the default logging configuration.
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:         "info",
		Directory:     "logs",
		RetentionDays: 7,
		Console:       true,
	}
}

// LogFileName returns the name of the log file written on day t.
func LogFileName(t time.Time) string {
	return logFilePrefix + t.Format("2006-01-02") + ".log"
}

// InitLogger points the global zerolog logger at a dated JSON file and,
// optionally, a human-readable console. The returned closer flushes the
// file.
func InitLogger(cfg LogConfig) (io.Closer, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	if err := os.MkdirAll(cfg.Directory, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory %s: %w", cfg.Directory, err)
	}

	logFilePath := filepath.Join(cfg.Directory, LogFileName(time.Now()))
	logFile, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", logFilePath, err)
	}

	writers := []io.Writer{logFile}
	if cfg.Console {
		out := cfg.ConsoleOut
		if out == nil {
			out = os.Stdout
		}
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: "15:04:05",
		})
	}

	log.Logger = zerolog.New(zerolog.MultiLevelWriter(writers...)).
		With().
		Timestamp().
		Str("app", "echorelay").
		Logger()

	log.Info().
		Str("level", level.String()).
		Str("log_file", logFilePath).
		Msg("logger initialized")

	if cfg.RetentionDays > 0 {
		go CleanOldLogs(cfg.Directory, cfg.RetentionDays, time.Now())
	}

	return logFile, nil
}

// CleanOldLogs removes relay log files dated more than retentionDays before
// now and returns how many it removed.
func CleanOldLogs(directory string, retentionDays int, now time.Time) int {
	entries, err := os.ReadDir(directory)
	if err != nil {
		return 0
	}

	cutoff := now.AddDate(0, 0, -retentionDays)
	removed := 0
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, logFilePrefix) || filepath.Ext(name) != ".log" {
			continue
		}
		day, err := time.ParseInLocation("2006-01-02",
			strings.TrimSuffix(strings.TrimPrefix(name, logFilePrefix), ".log"), now.Location())
		if err != nil || !day.Before(cutoff) {
			continue
		}
		path := filepath.Join(directory, name)
		if err := os.Remove(path); err != nil {
			log.Warn().Err(err).Str("file", path).Msg("failed to remove old log file")
			continue
		}
		removed++
		log.Debug().Str("file", path).Msg("removed old log file")
	}
	return removed
}

// ComponentLogger creates a logger with a component name field.
func ComponentLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}
