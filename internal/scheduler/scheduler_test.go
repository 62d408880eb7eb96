package scheduler

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/echorelay-project/echorelay/internal/config"
	"github.com/echorelay-project/echorelay/internal/events"
	"github.com/echorelay-project/echorelay/internal/util"
)

type fakeTarget struct {
	purges  atomic.Int32
	logs    atomic.Int32
	players atomic.Int32
}

func (f *fakeTarget) PurgeSessions(context.Context) error {
	f.purges.Add(1)
	return nil
}

func (f *fakeTarget) Stats() events.StatsPayload {
	return events.StatsPayload{
		UptimeSec:   60,
		Peers:       map[string]int{"login": 2, "matching": 1},
		GameServers: 4,
		Players:     int(f.players.Load()),
	}
}

func (f *fakeTarget) LogStats() { f.logs.Add(1) }

func TestStartRunsPeriodicTasks(t *testing.T) {
	cfg := config.DefaultConfig()
	require.NoError(t, cfg.UpdateField("timers", "stats_interval_ms", 10))
	require.NoError(t, cfg.UpdateField("timers", "session_purge_interval_sec", 1))

	target := &fakeTarget{}
	target.players.Store(7)
	s := NewScheduler(cfg, target)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return target.logs.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return target.purges.Load() >= 1 }, 3*time.Second, 20*time.Millisecond)
	assert.Equal(t, Peaks{Peers: 3, GameServers: 4, Players: 7}, s.Peaks())

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Start did not return after cancel")
	}
}

func TestRunDailyResetsPeaksAndCleansLogs(t *testing.T) {
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	require.NoError(t, cfg.UpdateField("logging", "directory", dir))
	require.NoError(t, cfg.UpdateField("logging", "retention_days", 2))

	now := time.Date(2026, 3, 10, 4, 0, 0, 0, time.UTC)
	old := filepath.Join(dir, util.LogFileName(now.AddDate(0, 0, -5)))
	fresh := filepath.Join(dir, util.LogFileName(now))
	require.NoError(t, os.WriteFile(old, []byte("x"), 0644))
	require.NoError(t, os.WriteFile(fresh, []byte("x"), 0644))

	target := &fakeTarget{}
	target.players.Store(3)
	s := NewScheduler(cfg, target)
	s.now = func() time.Time { return now }
	s.recordStats()

	peaks := s.RunDaily()
	assert.Equal(t, 3, peaks.Players)
	assert.Equal(t, Peaks{}, s.Peaks())
	assert.NoFileExists(t, old)
	assert.FileExists(t, fresh)
}

func TestNextDailyRun(t *testing.T) {
	s := NewScheduler(config.DefaultConfig(), &fakeTarget{})

	s.now = func() time.Time { return time.Date(2026, 3, 10, 1, 30, 0, 0, time.UTC) }
	assert.Equal(t, time.Date(2026, 3, 10, 4, 0, 0, 0, time.UTC), s.nextDailyRun())

	s.now = func() time.Time { return time.Date(2026, 3, 10, 4, 0, 0, 0, time.UTC) }
	assert.Equal(t, time.Date(2026, 3, 11, 4, 0, 0, 0, time.UTC), s.nextDailyRun())

	s.dailyTime = "23:15"
	assert.Equal(t, time.Date(2026, 3, 10, 23, 15, 0, 0, time.UTC), s.nextDailyRun())
}
