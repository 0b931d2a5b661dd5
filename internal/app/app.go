// Package app wires configuration, storage, the detection pipeline and
// the web surface into one runnable application.
package app

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/lcalzada-xor/edgewatch/internal/adapters/source"
	"github.com/lcalzada-xor/edgewatch/internal/adapters/storage"
	"github.com/lcalzada-xor/edgewatch/internal/adapters/web"
	"github.com/lcalzada-xor/edgewatch/internal/config"
	"github.com/lcalzada-xor/edgewatch/internal/core/domain"
	"github.com/lcalzada-xor/edgewatch/internal/core/ports"
	"github.com/lcalzada-xor/edgewatch/internal/core/services/detection"
	"github.com/lcalzada-xor/edgewatch/internal/core/services/node"
	"github.com/lcalzada-xor/edgewatch/internal/core/services/protection"
	"github.com/lcalzada-xor/edgewatch/internal/queue"
	"github.com/lcalzada-xor/edgewatch/internal/telemetry"
)

// retentionSweepInterval is how often the background janitor re-applies
// the retention policy to the event store.
const retentionSweepInterval = 24 * time.Hour

// Application holds the core components of the system. It acts as the
// Facade for the entire node, orchestrating services and infrastructure.
type Application struct {
	Config    *config.Config
	Node      *node.SecurityNode
	WebServer *web.Server

	store     *storage.SQLiteAdapter
	queue     *queue.ThreatQueue
	source    ports.SampleSource
	synthetic *source.SyntheticSource // non-nil only in mock mode
	logger    *slog.Logger

	shutdownTracer func(context.Context) error
}

// New creates a new Application instance and bootstraps its components.
func New(cfg *config.Config) (*Application, error) {
	app := &Application{Config: cfg}

	if err := app.bootstrap(); err != nil {
		return nil, fmt.Errorf("application bootstrap failed: %w", err)
	}

	return app, nil
}

// bootstrap orchestrates the initialization sequence.
func (app *Application) bootstrap() error {
	// 1. Foundation & Infrastructure
	app.initLogging()
	telemetry.InitMetrics()

	shutdown, err := telemetry.InitTracer()
	if err != nil {
		return fmt.Errorf("tracer init failed: %w", err)
	}
	app.shutdownTracer = shutdown

	if err := app.initStorage(); err != nil {
		return err
	}

	// 2. Sample Source
	if err := app.initSource(); err != nil {
		return err
	}

	// 3. Detection & Protection Pipeline
	if err := app.initPipeline(); err != nil {
		return err
	}

	// 4. Web Surface
	app.initServer()

	if app.Config.MockMode {
		log.Println("Mock Mode Active: generating synthetic device activity")
	}

	return nil
}

func (app *Application) initLogging() {
	level := slog.LevelInfo
	if app.Config.Debug {
		level = slog.LevelDebug
	}
	app.logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(app.logger)
}

func (app *Application) initStorage() error {
	if err := os.MkdirAll(filepath.Dir(app.Config.DBPath), 0755); err != nil {
		return fmt.Errorf("failed to create DB directory: %w", err)
	}

	store, err := storage.NewSQLiteAdapter(app.Config.DBPath, app.logger)
	if err != nil {
		return fmt.Errorf("failed to init event storage: %w", err)
	}
	store.SetScrubRaw(app.Config.EnableDataProtect)
	app.store = store
	return nil
}

func (app *Application) initSource() error {
	switch {
	case app.Config.PcapPath != "":
		src, err := source.OpenPcap(app.Config.PcapPath)
		if err != nil {
			return fmt.Errorf("failed to open capture file: %w", err)
		}
		app.source = src
		log.Printf("Replaying capture file %s", app.Config.PcapPath)
	case app.Config.MockMode:
		app.synthetic = source.NewSyntheticSource(app.Config.Seed)
		app.source = app.synthetic
	default:
		// No live capture backend on this build. Fall back to the
		// synthetic generator so the pipeline still exercises end to end.
		log.Println("Warning: no capture source configured, using synthetic generator")
		app.synthetic = source.NewSyntheticSource(app.Config.Seed)
		app.source = app.synthetic
	}
	return nil
}

func (app *Application) initPipeline() error {
	q, err := queue.New(app.Config.QueueCapacity)
	if err != nil {
		return fmt.Errorf("failed to create threat queue: %w", err)
	}
	app.queue = q

	rules := []ports.Rule{
		detection.NewDDoSRule(int(app.Config.DetectionThreshold), 0, 0),
		detection.NewMITMRule(0),
		detection.NewFirmwareRule(app.Config.SuspiciousDomains),
		detection.NewCredentialRule(0, 0),
		detection.NewAnomalyRule(0),
	}
	registry, err := detection.NewRegistry(app.logger, rules...)
	if err != nil {
		return fmt.Errorf("failed to build rule registry: %w", err)
	}
	if !app.Config.EnableIDS {
		log.Println("Warning: intrusion detection disabled, all rules off")
		for _, name := range registry.Names() {
			if err := registry.SetEnabled(name, false); err != nil {
				return fmt.Errorf("failed to disable rule %s: %w", name, err)
			}
		}
	}

	tiers := domain.TiersForLevel(app.Config.ProtectionLevel)
	whitelist := domain.NewWhitelist(app.Config.DeviceWhitelist...)

	blocklist := protection.NewBlocklist(app.logger)
	blocklist.SetEnforcement(app.Config.EnableFirewall)

	engine := protection.NewEngine(q, blocklist, app.store, whitelist, tiers, app.logger)

	detector := detection.NewDetector(registry, app.source, q, app.store, app.logger, detection.Options{
		TickInterval:   time.Duration(app.Config.ScanInterval) * time.Second,
		AttackDuration: time.Duration(app.Config.AttackDuration) * time.Second,
		Tiers:          tiers,
	})

	app.Node = node.New(detector, engine, app.store, q, blocklist, app.logger)
	return nil
}

func (app *Application) initServer() {
	app.WebServer = web.NewServer(
		app.Config.Addr,
		app.Node,
		app.store,
		app.synthetic,
		app.Config.APITokenHash,
		app.Config.RetentionDays,
	)

	// Bridge the pipeline to the live WebSocket feed.
	app.Node.RegisterThreatCallback(app.WebServer.WSManager.BroadcastThreat)
	app.Node.RegisterProtectionCallback(app.WebServer.WSManager.BroadcastOutcome)
}

// Run starts the application components and manages their execution lifecycle.
func (app *Application) Run(ctx context.Context) error {
	slog.Info("Starting edgewatch components...")

	if err := app.Node.Start(ctx); err != nil {
		return fmt.Errorf("pipeline start failed: %w", err)
	}

	go app.runRetentionLoop(ctx)

	errChan := make(chan error, 1)
	go func() {
		if err := app.WebServer.Run(ctx); err != nil {
			errChan <- fmt.Errorf("web server error: %w", err)
		}
	}()

	slog.Info("edgewatch ready", "addr", app.Config.Addr, "protection_level", app.Config.ProtectionLevel)

	select {
	case <-ctx.Done():
		slog.Info("Termination signal received")
	case err := <-errChan:
		app.cleanup()
		return err
	}

	return app.cleanup()
}

// runRetentionLoop applies the retention policy once at startup and
// then daily.
func (app *Application) runRetentionLoop(ctx context.Context) {
	if _, _, err := app.store.Purge(app.Config.RetentionDays); err != nil {
		slog.Error("retention purge failed", "error", err)
	}

	ticker := time.NewTicker(retentionSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, _, err := app.store.Purge(app.Config.RetentionDays); err != nil {
				slog.Error("retention purge failed", "error", err)
			}
		}
	}
}

func (app *Application) cleanup() error {
	slog.Info("Cleaning up resources...")

	if err := app.Node.Stop(); err != nil {
		slog.Warn("pipeline stop reported errors", "error", err)
	}

	app.queue.Close()

	if app.source != nil {
		if err := app.source.Close(); err != nil {
			slog.Warn("sample source close failed", "error", err)
		}
	}

	if err := app.store.Close(); err != nil {
		slog.Warn("storage close failed", "error", err)
	}

	if app.shutdownTracer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := app.shutdownTracer(shutdownCtx); err != nil {
			slog.Warn("tracer shutdown failed", "error", err)
		}
	}

	return nil
}
