// Package health runs the relay's periodic checks: public address
// detection, host load, stale peer cleanup and the telemetry heartbeat.
package health

import (
	"context"
	"fmt"
	"net/netip"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/echorelay-project/echorelay/internal/events"
	"github.com/echorelay-project/echorelay/internal/util"
)

// PublicIPStore holds the address announced for game servers on private
// networks.
type PublicIPStore interface {
	PublicIP() netip.Addr
	SetPublicIP(ip netip.Addr)
}

// StaleCleaner closes peers idle for longer than timeout.
type StaleCleaner interface {
	Name() string
	CleanStale(timeout time.Duration) int
}

// StatsFunc reports a snapshot of the relay.
type StatsFunc func() events.StatsPayload

// Options configures check intervals and thresholds. Zero intervals
// disable the corresponding check.
type Options struct {
	PublicIPInterval  time.Duration
	HealthInterval    time.Duration
	HeartbeatInterval time.Duration
	StalePeerTimeout  time.Duration

	CPUWarnPercent    float64
	MemoryWarnPercent float64

	Resolver IPResolver
	Usage    func() (util.ResourceUsage, error)
}

// Report is the outcome of the most recent general health check.
type Report struct {
	CheckedAt    time.Time          `json:"checked_at"`
	Usage        util.ResourceUsage `json:"usage"`
	PublicIP     string             `json:"public_ip,omitempty"`
	StaleRemoved int                `json:"stale_removed"`
	Warnings     []string           `json:"warnings,omitempty"`
}

// Manager runs periodic health checks.
type Manager struct {
	opts     Options
	eventBus *events.EventBus
	ips      PublicIPStore
	stats    StatsFunc
	cleaners []StaleCleaner
	logger   zerolog.Logger

	mu   sync.RWMutex
	last Report
}

// NewManager creates a health check manager. ips, stats and eventBus may
// be nil.
func NewManager(opts Options, eventBus *events.EventBus, ips PublicIPStore, stats StatsFunc, cleaners ...StaleCleaner) *Manager {
	if opts.Resolver == nil {
		opts.Resolver = HTTPResolver(nil)
	}
	if opts.Usage == nil {
		opts.Usage = util.GetResourceUsage
	}
	if opts.CPUWarnPercent <= 0 {
		opts.CPUWarnPercent = 90
	}
	if opts.MemoryWarnPercent <= 0 {
		opts.MemoryWarnPercent = 90
	}
	return &Manager{
		opts:     opts,
		eventBus: eventBus,
		ips:      ips,
		stats:    stats,
		cleaners: cleaners,
		logger:   log.With().Str("component", "health").Logger(),
	}
}

// Start runs every enabled check immediately and then on its interval,
// blocking until ctx is done.
func (m *Manager) Start(ctx context.Context) {
	checks := []struct {
		name     string
		interval time.Duration
		fn       func(context.Context)
	}{
		{"public_ip", m.opts.PublicIPInterval, func(ctx context.Context) { m.CheckPublicIP(ctx) }},
		{"general_health", m.opts.HealthInterval, func(ctx context.Context) { m.CheckGeneralHealth(ctx) }},
		{"heartbeat", m.opts.HeartbeatInterval, m.Heartbeat},
	}

	var wg sync.WaitGroup
	started := 0
	for _, check := range checks {
		if check.interval <= 0 {
			continue
		}
		started++
		wg.Add(1)
		check := check
		go func() {
			defer wg.Done()
			ticker := time.NewTicker(check.interval)
			defer ticker.Stop()

			m.logger.Debug().Str("check", check.name).Msg("running initial health check")
			check.fn(ctx)

			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					check.fn(ctx)
				}
			}
		}()
	}

	m.logger.Info().Int("checks", started).Msg("health check manager started")
	<-ctx.Done()
	wg.Wait()
	m.logger.Info().Msg("health check manager stopped")
}

// CheckPublicIP resolves the public address and installs it when it
// changed.
func (m *Manager) CheckPublicIP(ctx context.Context) (netip.Addr, error) {
	ip, err := m.opts.Resolver(ctx)
	if err != nil {
		m.logger.Warn().Err(err).Msg("public IP check failed")
		return netip.Addr{}, err
	}
	if m.ips == nil {
		return ip, nil
	}

	current := m.ips.PublicIP()
	if current == ip {
		return ip, nil
	}
	m.ips.SetPublicIP(ip)

	if current.IsValid() {
		m.logger.Warn().
			Str("old_ip", current.String()).
			Str("new_ip", ip.String()).
			Msg("public IP changed")
	} else {
		m.logger.Info().Str("ip", ip.String()).Msg("public IP detected")
	}
	m.emit(ctx, events.EventPublicIPChanged, events.PublicIPPayload{
		Old: addrString(current),
		New: ip.String(),
	})
	return ip, nil
}

func addrString(a netip.Addr) string {
	if !a.IsValid() {
		return ""
	}
	return a.String()
}

// CheckGeneralHealth samples host load and closes stale peers.
func (m *Manager) CheckGeneralHealth(ctx context.Context) Report {
	report := Report{CheckedAt: time.Now()}
	if m.ips != nil {
		report.PublicIP = addrString(m.ips.PublicIP())
	}

	usage, err := m.opts.Usage()
	if err != nil {
		m.logger.Warn().Err(err).Msg("resource usage check failed")
	}
	report.Usage = usage

	if usage.CPUPercent >= m.opts.CPUWarnPercent {
		report.Warnings = append(report.Warnings, m.warn(ctx, "cpu",
			fmt.Sprintf("CPU usage at %.1f%%", usage.CPUPercent)))
	}
	if usage.MemoryPercent >= m.opts.MemoryWarnPercent {
		report.Warnings = append(report.Warnings, m.warn(ctx, "memory",
			fmt.Sprintf("memory usage at %.1f%% (%d MB used)", usage.MemoryPercent, usage.MemoryUsedMB)))
	}

	if m.opts.StalePeerTimeout > 0 {
		for _, c := range m.cleaners {
			if n := c.CleanStale(m.opts.StalePeerTimeout); n > 0 {
				report.StaleRemoved += n
				m.logger.Info().Str("service", c.Name()).Int("cleaned", n).Msg("closed stale peers")
			}
		}
	}

	m.mu.Lock()
	m.last = report
	m.mu.Unlock()
	return report
}

func (m *Manager) warn(ctx context.Context, check, message string) string {
	m.logger.Warn().Str("check", check).Msg(message)
	m.emit(ctx, events.EventHealthWarning, events.HealthPayload{
		Check:   check,
		Level:   "warning",
		Message: message,
	})
	return message
}

// LastReport returns the most recent general health report.
func (m *Manager) LastReport() Report {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.last
}

// Heartbeat publishes the current relay stats on the event bus.
func (m *Manager) Heartbeat(ctx context.Context) {
	if m.stats == nil {
		return
	}
	m.emit(ctx, events.EventHeartbeat, m.stats())
}

func (m *Manager) emit(ctx context.Context, t events.EventType, payload any) {
	if m.eventBus == nil {
		return
	}
	m.eventBus.Emit(ctx, events.Event{Type: t, Source: "health", Payload: payload})
}
