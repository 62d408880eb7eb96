// Package scheduler runs the relay's periodic background tasks: login
// session purging, the peer statistics log and the daily summary.
package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/echorelay-project/echorelay/internal/config"
	"github.com/echorelay-project/echorelay/internal/events"
	"github.com/echorelay-project/echorelay/internal/util"
)

// DefaultDailyTime is when the daily summary and log cleanup run.
const DefaultDailyTime = "04:00"

// Target is the relay surface the scheduler drives.
type Target interface {
	PurgeSessions(ctx context.Context) error
	Stats() events.StatsPayload
	LogStats()
}

// Scheduler manages periodic background tasks.
type Scheduler struct {
	cfg       *config.Config
	target    Target
	dailyTime string
	now       func() time.Time

	mu    sync.Mutex
	peaks Peaks

	logger zerolog.Logger
}

// Peaks records the highest counts seen since the last daily summary.
type Peaks struct {
	Peers       int `json:"peers"`
	GameServers int `json:"game_servers"`
	Players     int `json:"players"`
}

// NewScheduler creates a new task scheduler.
func NewScheduler(cfg *config.Config, target Target) *Scheduler {
	return &Scheduler{
		cfg:       cfg,
		target:    target,
		dailyTime: DefaultDailyTime,
		now:       time.Now,
		logger:    log.With().Str("component", "scheduler").Logger(),
	}
}

// Start runs every task and blocks until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	timers := s.cfg.GetTimers()
	s.logger.Info().Msg("scheduler started")

	var wg sync.WaitGroup
	run := func(fn func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn(ctx)
		}()
	}

	run(func(ctx context.Context) {
		s.every(ctx, time.Duration(timers.SessionPurgeIntervalSec)*time.Second, func() {
			if err := s.target.PurgeSessions(ctx); err != nil {
				s.logger.Warn().Err(err).Msg("session purge failed")
			}
		})
	})
	if timers.StatsIntervalMS > 0 {
		run(func(ctx context.Context) {
			s.every(ctx, time.Duration(timers.StatsIntervalMS)*time.Millisecond, s.recordStats)
		})
	}
	run(s.runDailyLoop)

	wg.Wait()
	s.logger.Info().Msg("scheduler stopped")
}

func (s *Scheduler) every(ctx context.Context, interval time.Duration, fn func()) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}

// recordStats logs the peer statistics line and tracks peaks.
func (s *Scheduler) recordStats() {
	s.target.LogStats()
	stats := s.target.Stats()
	peers := 0
	for _, n := range stats.Peers {
		peers += n
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.peaks.Peers = max(s.peaks.Peers, peers)
	s.peaks.GameServers = max(s.peaks.GameServers, stats.GameServers)
	s.peaks.Players = max(s.peaks.Players, stats.Players)
}

// Peaks returns the peaks recorded since the last daily summary.
func (s *Scheduler) Peaks() Peaks {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peaks
}

func (s *Scheduler) runDailyLoop(ctx context.Context) {
	for {
		next := s.nextDailyRun()
		wait := next.Sub(s.now())
		if wait <= 0 {
			wait = 24 * time.Hour
		}
		s.logger.Debug().Time("next_run", next).Msg("daily summary scheduled")

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
			s.RunDaily()
		}
	}
}

// RunDaily logs the daily summary, resets the peaks and removes expired
// log files.
func (s *Scheduler) RunDaily() Peaks {
	s.mu.Lock()
	peaks := s.peaks
	s.peaks = Peaks{}
	s.mu.Unlock()

	stats := s.target.Stats()
	s.logger.Info().
		Int64("uptime_sec", stats.UptimeSec).
		Int("peak_peers", peaks.Peers).
		Int("peak_game_servers", peaks.GameServers).
		Int("peak_players", peaks.Players).
		Int("game_servers", stats.GameServers).
		Msg("daily stats collected")

	logging := s.cfg.Snapshot().Logging
	if logging.Directory != "" && logging.RetentionDays > 0 {
		if n := util.CleanOldLogs(logging.Directory, logging.RetentionDays, s.now()); n > 0 {
			s.logger.Info().Int("deleted_files", n).Msg("old log files removed")
		}
	}
	return peaks
}

// nextDailyRun returns the next occurrence of the daily time.
func (s *Scheduler) nextDailyRun() time.Time {
	hour, minute := 4, 0
	if parts := strings.Split(s.dailyTime, ":"); len(parts) >= 2 {
		fmt.Sscanf(parts[0], "%d", &hour)
		fmt.Sscanf(parts[1], "%d", &minute)
	}

	now := s.now()
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.Add(24 * time.Hour)
	}
	return next
}
