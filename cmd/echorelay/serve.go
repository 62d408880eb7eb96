package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/echorelay-project/echorelay/internal/api"
	"github.com/echorelay-project/echorelay/internal/cli"
	"github.com/echorelay-project/echorelay/internal/config"
	"github.com/echorelay-project/echorelay/internal/events"
	"github.com/echorelay-project/echorelay/internal/health"
	"github.com/echorelay-project/echorelay/internal/relay"
	"github.com/echorelay-project/echorelay/internal/scheduler"
	"github.com/echorelay-project/echorelay/internal/telemetry"
	"github.com/echorelay-project/echorelay/internal/util"
)

// serveFlags mirror the configuration fields most often overridden for a
// single run. They apply on top of the file and environment and are not saved.
type serveFlags struct {
	port            int
	forceMatching   bool
	lowPingMatching bool
	statsIntervalMS int
	verbose         bool
	outputConfig    string
	noConsole       bool
}

var flags serveFlags

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the relay",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd)
	},
}

func addServeFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.IntVarP(&flags.port, "port", "p", config.DefaultPort, "Port to listen on")
	f.BoolVar(&flags.forceMatching, "forcematching", true, "Force players into any session when none match their request")
	f.BoolVar(&flags.lowPingMatching, "lowpingmatching", false, "Prefer low ping over population when matching")
	f.IntVar(&flags.statsIntervalMS, "statsinterval", 3000, "Peer statistics log interval in milliseconds")
	f.BoolVarP(&flags.verbose, "verbose", "v", false, "Log every packet sent and received")
	f.StringVar(&flags.outputConfig, "outputconfig", "", "Write the game server service config to this path")
	f.BoolVar(&flags.noConsole, "noconsole", false, "Disable the interactive console")
}

func init() {
	addServeFlags(serveCmd)
}

// applyFlags copies explicitly set flags into cfg.
func applyFlags(cmd *cobra.Command, cfg *config.Config, f serveFlags) error {
	set := func(name, section, key string, value any) error {
		if !cmd.Flags().Changed(name) {
			return nil
		}
		return cfg.UpdateField(section, key, value)
	}
	for _, err := range []error{
		set("port", "server", "port", f.port),
		set("forcematching", "matching", "force_into_any_session", f.forceMatching),
		set("lowpingmatching", "matching", "favor_population_over_ping", !f.lowPingMatching),
		set("statsinterval", "timers", "stats_interval_ms", f.statsIntervalMS),
		set("verbose", "logging", "verbose", f.verbose),
		set("outputconfig", "server", "service_config_output", f.outputConfig),
	} {
		if err != nil {
			return err
		}
	}
	if f.verbose && cmd.Flags().Changed("verbose") {
		return cfg.UpdateField("logging", "level", "debug")
	}
	return nil
}

func serve(cmd *cobra.Command) error {
	fmt.Fprintf(cmd.OutOrStdout(), Banner, Version)
	fmt.Fprintln(cmd.OutOrStdout())

	log.Info().
		Str("version", Version).
		Str("platform", runtime.GOOS).
		Str("arch", runtime.GOARCH).
		Int("cpus", runtime.NumCPU()).
		Msg("starting EchoRelay")

	cfg, err := config.Load(configDir)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if cfg.IsFirstRun() && !flags.noConsole {
		log.Info().Msg("first run detected, launching setup wizard")
		if err := config.RunSetupWizard(cfg, os.Stdin, cmd.OutOrStdout()); err != nil {
			return fmt.Errorf("setup wizard failed: %w", err)
		}
	}
	if err := applyFlags(cmd, cfg, flags); err != nil {
		return err
	}

	snap := cfg.Snapshot()
	logCloser, err := util.InitLogger(util.LogConfig{
		Level:         snap.Logging.Level,
		Directory:     snap.Logging.Directory,
		RetentionDays: snap.Logging.RetentionDays,
		Console:       true,
	})
	if err != nil {
		log.Warn().Err(err).Msg("failed to reconfigure logger, using defaults")
	} else {
		defer logCloser.Close()
	}

	validation := config.Validate(cfg)
	for _, w := range validation.Warnings {
		log.Warn().Str("field", w.Field).Msg(w.Message)
	}
	if !validation.IsValid() {
		for _, e := range validation.Errors {
			log.Error().Str("field", e.Field).Msg(e.Message)
		}
		return fmt.Errorf("configuration validation failed, fix the errors above or run 'echorelay setup'")
	}

	sysInfo := util.GetSystemInfo()
	log.Info().
		Str("hostname", sysInfo.Hostname).
		Str("os", sysInfo.OS).
		Str("cpu", sysInfo.CPUModel).
		Int("cores", sysInfo.CPUCores).
		Uint64("memory_mb", sysInfo.TotalMemory).
		Msg("system information")

	if snap.Server.TLSEnabled {
		hosts := []string{"localhost", "127.0.0.1"}
		if snap.Server.PublicHost != "" {
			hosts = append(hosts, snap.Server.PublicHost)
		}
		created, err := util.EnsureSelfSignedCert(snap.Server.TLSCertFile, snap.Server.TLSKeyFile, hosts)
		if err != nil {
			return fmt.Errorf("failed to prepare TLS certificate: %w", err)
		}
		if created {
			log.Warn().Str("cert", snap.Server.TLSCertFile).Msg("generated a self-signed TLS certificate")
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eventBus := events.NewEventBus()

	r, err := relay.New(ctx, cfg, eventBus, relay.Options{})
	if err != nil {
		return fmt.Errorf("failed to create relay: %w", err)
	}

	timers := snap.Timers
	cleaners := make([]health.StaleCleaner, 0, len(r.Services()))
	for _, svc := range r.Services() {
		cleaners = append(cleaners, svc)
	}
	healthMgr := health.NewManager(health.Options{
		PublicIPInterval:  time.Duration(timers.PublicIPCheckIntervalSec) * time.Second,
		HealthInterval:    time.Duration(timers.StalePeerCheckSec) * time.Second,
		HeartbeatInterval: time.Duration(timers.GeneralHealthIntervalSec) * time.Second,
		StalePeerTimeout:  time.Duration(timers.StalePeerTimeoutSec) * time.Second,
	}, eventBus, r.Registry(), r.Stats, cleaners...)

	if snap.API.Enabled {
		api.NewServer(cfg, r, healthMgr).Mount()
	}

	var mqttClient *telemetry.Client
	if snap.MQTT.Enabled {
		mqttClient, err = telemetry.Dial(snap.MQTT)
		if err != nil {
			log.Warn().Err(err).Msg("failed to connect to MQTT broker, telemetry disabled")
		}
	}

	sched := scheduler.NewScheduler(cfg, r)

	var wg sync.WaitGroup
	errCh := make(chan error, 1)
	run := func(name string, fn func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Info().Msgf("starting %s", name)
			fn(ctx)
		}()
	}

	run("relay server", func(ctx context.Context) {
		if err := startWithRetry(ctx, "relay server", r.Start, 5); err != nil {
			errCh <- fmt.Errorf("relay server: %w", err)
		}
	})
	run("health check manager", healthMgr.Start)
	run("task scheduler", sched.Start)
	if mqttClient != nil {
		handler := telemetry.NewHandler(snap.MQTT.TopicPrefix, eventBus, mqttClient)
		run("MQTT telemetry", handler.Run)
	}
	if !flags.noConsole {
		run("interactive console", cli.NewCLI(cfg, r, os.Stdin, cmd.OutOrStdout()).Start)
	}

	if path := snap.Server.ServiceConfigOutput; path != "" {
		go func() {
			// The first public IP probe decides the advertised host.
			select {
			case <-ctx.Done():
				return
			case <-time.After(2 * time.Second):
			}
			if err := r.WriteServiceConfig(path); err != nil {
				log.Warn().Err(err).Msg("failed to write service config")
			}
		}()
	}

	shutdownCh := make(chan struct{})
	var shutdownOnce sync.Once
	eventBus.Subscribe(events.EventShutdown, "main.shutdown", func(context.Context, events.Event) error {
		shutdownOnce.Do(func() { close(shutdownCh) })
		return nil
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	case <-shutdownCh:
		log.Info().Msg("shutdown requested from console")
	case runErr = <-errCh:
		log.Error().Err(runErr).Msg("critical error, initiating shutdown")
	}

	log.Info().Msg("initiating graceful shutdown...")
	cancel()

	shutdownCtx, stop := context.WithTimeout(context.Background(), 30*time.Second)
	defer stop()
	if err := r.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("relay shutdown reported errors")
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		log.Info().Msg("all tasks stopped gracefully")
	case <-shutdownCtx.Done():
		log.Warn().Msg("shutdown timed out after 30 seconds, forcing exit")
	}

	eventBus.Stop()
	if mqttClient != nil {
		mqttClient.Close()
	}

	log.Info().Msg("EchoRelay stopped")
	return runErr
}

// startWithRetry retries startFn on bind errors at a fixed 3 second
// interval so a restarted relay can reclaim its port.
func startWithRetry(ctx context.Context, name string, startFn func(context.Context) error, maxRetries int) error {
	var lastErr error
	for i := 0; i <= maxRetries; i++ {
		if ctx.Err() != nil {
			return nil
		}
		lastErr = startFn(ctx)
		if lastErr == nil {
			return nil
		}
		if i < maxRetries {
			log.Warn().Err(lastErr).Str("component", name).Int("retry", i+1).Int("max", maxRetries).Msg("bind failed, retrying in 3s...")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(3 * time.Second):
			}
		}
	}
	return lastErr
}
