// virtfoo runs the virt-foo device control core on simulated hardware.
//
// It attaches one device, journals every counter mutation to SQLite,
// optionally mirrors the device onto MQTT and InfluxDB, and serves the
// control plane over HTTP until SIGINT or SIGTERM.
//
// Usage:
//
//	virtfoo                          run the daemon
//	virtfoo -mint-token operator     print a bearer token and exit
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/virtfoo-core/internal/api"
	"github.com/nerrad567/virtfoo-core/internal/auth"
	"github.com/nerrad567/virtfoo-core/internal/device"
	"github.com/nerrad567/virtfoo-core/internal/infrastructure/config"
	"github.com/nerrad567/virtfoo-core/internal/infrastructure/database"
	"github.com/nerrad567/virtfoo-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/virtfoo-core/internal/infrastructure/logging"
	"github.com/nerrad567/virtfoo-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/virtfoo-core/internal/sim"
	"github.com/nerrad567/virtfoo-core/migrations"
)

// Set at build time:
//
//	go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Journal pruning cadence.
const pruneInterval = time.Hour

func main() {
	mintRole := flag.String("mint-token", "", "print a bearer token for `role` (viewer or operator) and exit")
	subject := flag.String("subject", "cli", "subject of a minted token")
	flag.Parse()

	if *mintRole != "" {
		if err := mintToken(os.Stdout, config.PathFromEnv(), *mintRole, *subject); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run starts every component, blocks until ctx is cancelled, then tears
// down in reverse: API, device, MQTT, InfluxDB, database.
//
// Returns:
//   - error: nil on clean shutdown
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting virtfoo", "version", version, "commit", commit, "build_date", date)

	configPath := config.PathFromEnv()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded", "path", configPath, "level", cfg.Logging.Level)

	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	log.Info("database ready", "path", cfg.Database.Path)

	checks := map[string]api.HealthChecker{"database": db}

	deviceID := cfg.Device.ID
	if deviceID == "" {
		deviceID = uuid.NewString()
	}

	journal := device.NewSQLiteJournal(db.DB)
	observers := []device.Observer{
		device.NewJournalObserver(journal, deviceID, log.Component("journal")),
	}

	if cfg.InfluxDB.Enabled {
		influxClient, err := influxdb.Connect(ctx, cfg.InfluxDB, log.Component("influxdb"))
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		checks["influxdb"] = influxClient
		observers = append(observers, influxdb.NewCounterRecorder(influxClient, deviceID))
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	var bridge *mqtt.DeviceBridge
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT, log.Component("mqtt"))
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		checks["mqtt"] = mqttClient
		bridge = mqtt.NewDeviceBridge(mqttClient, deviceID, byte(cfg.MQTT.QoS), log.Component("mqtt")) //nolint:gosec // qos validated
		observers = append(observers, bridge)
	} else {
		log.Info("MQTT disabled")
	}

	plat := sim.NewPlatform(sim.Config{
		IRQ: cfg.Device.IRQ,
		Hardware: sim.HardwareConfig{
			ChipID:       cfg.Device.ChipID,
			MemSize:      cfg.Device.MemSize,
			DequeueDelay: cfg.DequeueDelay(),
		},
	})
	defer plat.Close()

	dev, err := device.Attach(ctx, plat, device.Options{
		ID:              deviceID,
		MonitorInterval: cfg.MonitorInterval(),
		QueueLimit:      cfg.Device.QueueLimit,
		ObserverBuffer:  cfg.Device.ObserverBuffer,
		Observers:       observers,
		Logger:          log.Component("device"),
	})
	if err != nil {
		return fmt.Errorf("attaching device: %w", err)
	}
	defer func() {
		log.Info("detaching device")
		dev.Detach()
	}()

	if bridge != nil {
		if err := bridge.ServeCommands(mqttClient, dev); err != nil {
			return fmt.Errorf("serving MQTT commands: %w", err)
		}
	}

	srv, err := api.New(api.Deps{
		Config:      cfg.API,
		WS:          cfg.WebSocket,
		Security:    cfg.Security,
		Logger:      log.Component("api"),
		Device:      dev,
		Journal:     journal,
		Interrupter: plat.Hardware(),
		Checks:      checks,
		Version:     version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	dev.AddObserver(srv.Hub())
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := srv.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	if err := healthCheck(ctx, checks); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	g, gctx := errgroup.WithContext(ctx)
	if retention := cfg.JournalRetention(); retention > 0 {
		g.Go(func() error {
			pruneJournal(gctx, journal, retention, log.Component("journal"))
			return nil
		})
	}

	log.Info("initialisation complete, waiting for shutdown signal", "device_id", deviceID)
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	if err := g.Wait(); err != nil {
		log.Error("background task failed", "error", err)
	}
	return nil
}

// healthCheck runs every check in parallel and returns the first failure.
func healthCheck(ctx context.Context, checks map[string]api.HealthChecker) error {
	g, gctx := errgroup.WithContext(ctx)
	for name, c := range checks {
		g.Go(func() error {
			if err := c.HealthCheck(gctx); err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// pruner is the part of the journal the retention loop needs.
type pruner interface {
	Prune(ctx context.Context, olderThan time.Duration) (int64, error)
}

// pruneJournal deletes expired journal rows now and then every pruneInterval
// until ctx is cancelled.
func pruneJournal(ctx context.Context, j pruner, retention time.Duration, log *logging.Logger) {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()

	for {
		n, err := j.Prune(ctx, retention)
		switch {
		case err != nil && !errors.Is(err, context.Canceled):
			log.Warn("pruning journal failed", "error", err)
		case n > 0:
			log.Info("pruned journal", "rows", n, "retention", retention.String())
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// mintToken prints a signed bearer token using the configured JWT secret.
func mintToken(w io.Writer, configPath, roleName, subject string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	role, err := auth.ParseRole(roleName)
	if err != nil {
		return err
	}
	issuer, err := auth.NewIssuer(cfg.Security.JWT.Secret, cfg.Security.JWT.Issuer, cfg.AccessTokenTTL())
	if err != nil {
		return fmt.Errorf("minting token: %w", err)
	}
	token, err := issuer.Issue(subject, role)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, token)
	return err
}
