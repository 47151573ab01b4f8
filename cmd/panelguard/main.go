// PanelGuard - G90 alarm panel controller & API
//
// PanelGuard talks to a G90-family alarm panel on the local network,
// listens for its UDP push notifications, optionally stands in for the
// vendor cloud over TCP, journals every panel event to SQLite, exposes a
// REST API for remote management, and publishes real-time telemetry via
// MQTT.
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

	"github.com/panelguard-project/panelguard/internal/api"
	"github.com/panelguard-project/panelguard/internal/cli"
	"github.com/panelguard-project/panelguard/internal/cloud"
	"github.com/panelguard-project/panelguard/internal/config"
	"github.com/panelguard-project/panelguard/internal/db"
	"github.com/panelguard-project/panelguard/internal/events"
	"github.com/panelguard-project/panelguard/internal/history"
	"github.com/panelguard-project/panelguard/internal/local"
	"github.com/panelguard-project/panelguard/internal/notifications"
	"github.com/panelguard-project/panelguard/internal/telemetry"
	"github.com/panelguard-project/panelguard/internal/util"
)

const (
	AppName    = "PanelGuard"
	AppVersion = "1.0.0"
	Banner     = `
  ____                  _  ____                     _
 |  _ \ __ _ _ __   ___| |/ ___|_   _  __ _ _ __ __| |
 | |_) / _' | '_ \ / _ \ | |  _| | | |/ _' | '__/ _' |
 |  __/ (_| | | | |  __/ | |_| | |_| | (_| | | | (_| |
 |_|   \__,_|_| |_|\___|_|\____|\__,_|\__,_|_|  \__,_|  v%s
 G90 Alarm Panel Controller & API
`
)

func main() {
	fmt.Printf(Banner, AppVersion)
	fmt.Println()

	// Initialize logger with defaults first (reconfigured after config load)
	if err := util.InitLogger(util.DefaultLogConfig()); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	log.Info().
		Str("version", AppVersion).
		Str("platform", runtime.GOOS).
		Str("arch", runtime.GOARCH).
		Msg("starting PanelGuard")

	cfg, err := config.Load(config.DefaultConfigDir)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	// Re-initialize logger with config-based settings
	logCfg := util.LogConfig{
		Level:      cfg.Logging.Level,
		Directory:  cfg.Logging.Directory,
		MaxBackups: cfg.Logging.MaxBackups,
		Console:    true,
	}
	if err := util.InitLogger(logCfg); err != nil {
		log.Warn().Err(err).Msg("failed to reconfigure logger, using defaults")
	}

	validation := config.Validate(cfg)
	for _, w := range validation.Warnings {
		log.Warn().Str("field", w.Field).Msg(w.Message)
	}
	if !validation.IsValid() {
		for _, e := range validation.Errors {
			log.Error().Str("field", e.Field).Msg(e.Message)
		}
		if cfg.IsFirstRun() {
			log.Fatal().Str("path", cfg.Path()).
				Msg("first run detected: set panel.host to your alarm panel's IP address and restart")
		}
		log.Fatal().Msg("configuration validation failed, please fix the errors above")
	}

	sysInfo := util.GetSystemInfo()
	log.Info().
		Str("hostname", sysInfo.Hostname).
		Str("os", sysInfo.OS).
		Str("cpu", sysInfo.CPUModel).
		Int("cores", sysInfo.CPUCores).
		Uint64("memory_mb", sysInfo.TotalMemory).
		Msg("system information")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Core components
	eventBus := events.NewEventBus()

	panelCfg := cfg.GetPanel()
	transport := local.NewTransport(
		panelCfg.Host,
		panelCfg.Port,
		time.Duration(panelCfg.CommandTimeoutSec)*time.Second,
		panelCfg.CommandRetries,
	)
	panel := local.NewClient(transport)

	// Event journal
	database, err := db.NewDatabase(cfg.Journal.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open event database")
	}
	defer database.Close()

	journal, err := db.NewJournal(database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize event journal")
	}
	journal.Attach(eventBus)

	// Notification listener
	var notifyListener *notifications.Listener
	if cfg.Notifications.Enabled {
		panelHost := ""
		if cfg.Notifications.FilterPanelHost {
			panelHost = panelCfg.Host
		}
		notifyListener = notifications.NewListener(cfg.Notifications.Bind, panelHost, eventBus)
	}

	// Cloud relay
	var relay *cloud.Server
	if cfg.CloudRelay.Enabled {
		var opts []cloud.Option
		if cfg.CloudRelay.UpstreamHost != "" {
			upstream := fmt.Sprintf("%s:%d", cfg.CloudRelay.UpstreamHost, cfg.CloudRelay.UpstreamPort)
			opts = append(opts, cloud.WithUpstream(upstream))
		}
		relay = cloud.NewServer(cfg.CloudRelay.Bind, eventBus, opts...)
	}

	// History polling fallback
	var poller *history.Poller
	if cfg.History.Enabled {
		interval := time.Duration(cfg.History.PollIntervalSec) * time.Second
		poller = history.NewPoller(panel, eventBus, interval)
	}

	// MQTT telemetry
	var mqttHandler *telemetry.MQTTHandler
	if cfg.MQTT.Enabled {
		mqttHandler, err = telemetry.NewMQTTHandler(cfg, eventBus)
		if err != nil {
			log.Warn().Err(err).Msg("failed to initialize MQTT, telemetry disabled")
		}
	}

	// REST API
	var apiServer *api.Server
	if cfg.API.Enabled {
		apiServer = api.NewServer(cfg, eventBus, panel, journal)
		apiServer.SetRelay(relay)
	}

	// Interactive CLI
	cliHandler := cli.NewCLI(cfg, eventBus, panel, journal)

	// ---------------------------------------------------------------
	// Launch all concurrent tasks
	// ---------------------------------------------------------------
	var wg sync.WaitGroup
	errCh := make(chan error, 10)

	if notifyListener != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Info().Str("bind", cfg.Notifications.Bind).Msg("starting notification listener")
			if err := startWithRetry(ctx, "notification listener", notifyListener.Listen, 15); err != nil {
				log.Error().Err(err).Msg("notification listener failed after retries")
				errCh <- fmt.Errorf("notification listener: %w", err)
			}
		}()
	}

	if relay != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Info().Str("bind", cfg.CloudRelay.Bind).Msg("starting cloud relay")
			if err := startWithRetry(ctx, "cloud relay", relay.Serve, 15); err != nil {
				log.Warn().Err(err).Msg("cloud relay failed after retries (non-fatal)")
			}
		}()
	}

	if poller != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Info().Int("interval_sec", cfg.History.PollIntervalSec).Msg("starting history poller")
			if err := poller.Run(ctx); err != nil {
				log.Warn().Err(err).Msg("history poller stopped (non-fatal)")
			}
		}()
	}

	if mqttHandler != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Info().Msg("starting MQTT telemetry")
			if err := mqttHandler.Start(ctx); err != nil {
				log.Warn().Err(err).Msg("MQTT telemetry failed (non-fatal)")
			}
		}()
	}

	if apiServer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Info().Int("port", cfg.API.Port).Msg("starting REST API server")
			if err := startWithRetry(ctx, "API server", apiServer.Start, 15); err != nil {
				log.Warn().Err(err).Msg("API server failed after retries (non-fatal)")
			}
		}()
	}

	if cfg.Journal.RetentionDays > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			retention := time.Duration(cfg.Journal.RetentionDays) * 24 * time.Hour
			ticker := time.NewTicker(12 * time.Hour)
			defer ticker.Stop()
			for {
				if removed, err := journal.Prune(retention); err != nil {
					log.Warn().Err(err).Msg("journal prune failed")
				} else if removed > 0 {
					log.Info().Int64("removed", removed).Msg("journal pruned")
				}
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
				}
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info().Msg("starting interactive CLI")
		cliHandler.Start(ctx)
	}()

	// ---------------------------------------------------------------
	// Graceful shutdown handling
	// ---------------------------------------------------------------
	shutdownCh := make(chan struct{}, 1)
	eventBus.Subscribe(events.EventShutdown, "main.shutdown", func(ctx context.Context, event events.Event) error {
		select {
		case shutdownCh <- struct{}{}:
		default:
		}
		return nil
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	case <-shutdownCh:
		log.Info().Msg("shutdown requested")
	case err := <-errCh:
		log.Error().Err(err).Msg("critical error, initiating shutdown")
	}

	log.Info().Msg("initiating graceful shutdown...")

	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("all tasks stopped gracefully")
	case <-time.After(30 * time.Second):
		log.Warn().Msg("shutdown timed out after 30 seconds, forcing exit")
	}

	eventBus.Stop()

	if mqttHandler != nil {
		mqttHandler.PublishShutdown()
	}

	log.Info().Msg("PanelGuard stopped")
}

// startWithRetry attempts to start a listener/server with retry on bind
// errors, with a fixed 3-second interval between attempts. Returns nil on
// success, or the last error after all retries fail.
func startWithRetry(ctx context.Context, name string, startFn func(context.Context) error, maxRetries int) error {
	var lastErr error
	for i := 0; i <= maxRetries; i++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		lastErr = startFn(ctx)
		if lastErr == nil {
			return nil
		}
		if i < maxRetries {
			log.Warn().Err(lastErr).Str("component", name).Int("retry", i+1).Int("max", maxRetries).Msg("start failed, retrying in 3s...")
			time.Sleep(3 * time.Second)
		}
	}
	return lastErr
}
