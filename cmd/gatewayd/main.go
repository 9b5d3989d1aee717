// Gray Logic Gateway - inbound telemetry ingestion service
//
// This is the main entry point for the gateway service. It keeps a live
// connection to every configured message transport (MQTT broker, NATS
// server, Redis pub/sub), recovers from connection loss, and feeds
// arriving messages into the ingestion queue drained by the worker pool.
//
// Startup order: config, logging, database + migrations, gateway seed,
// InfluxDB (optional), metrics, queue, dispatcher, gateways, admin API.
// Shutdown runs in reverse.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/nerrad567/gray-logic-gateway/migrations"

	"github.com/nerrad567/gray-logic-gateway/internal/api"
	"github.com/nerrad567/gray-logic-gateway/internal/gateway"
	"github.com/nerrad567/gray-logic-gateway/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-gateway/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-gateway/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-gateway/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-gateway/internal/infrastructure/metrics"
	"github.com/nerrad567/gray-logic-gateway/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-gateway/internal/infrastructure/nats"
	"github.com/nerrad567/gray-logic-gateway/internal/infrastructure/redis"
	"github.com/nerrad567/gray-logic-gateway/internal/ingest"
	"github.com/nerrad567/gray-logic-gateway/internal/message"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// shutdownTimeout bounds stopping all gateway supervisors.
const shutdownTimeout = 15 * time.Second

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting Gray Logic Gateway",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Database
	db, err := database.Open(ctx, database.Config{
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
	log.Info("database connected", "path", cfg.Database.Path)

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	repo := gateway.NewSQLiteRepository(db.DB)
	seeded, err := seedGateways(ctx, repo, cfg.Gateways)
	if err != nil {
		return fmt.Errorf("seeding gateways: %w", err)
	}
	log.Info("gateway configuration seeded", "gateways", seeded)

	// InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Metrics and queue
	registry := metrics.New(version, cfg.Site.ID)

	queue, err := message.NewQueue(message.QueueConfig{
		Capacity:   cfg.Ingest.Capacity,
		Policy:     message.OverflowPolicy(cfg.Ingest.Policy),
		PutTimeout: cfg.Ingest.PutTimeout(),
		Logger:     log,
	}, registry.Registerer())
	if err != nil {
		return fmt.Errorf("creating ingestion queue: %w", err)
	}
	log.Info("ingestion queue created",
		"capacity", cfg.Ingest.Capacity,
		"policy", queue.Policy(),
	)

	// Ingest workers
	dispatcher, err := ingest.NewDispatcher(ingest.Options{
		Source:    queue,
		Processor: buildProcessor(cfg, influxClient, log),
		Logger:    log.With("component", "ingest"),
		Registry:  registry.Registerer(),
		Config: ingest.Config{
			Workers:      cfg.Ingest.Workers,
			DrainTimeout: cfg.Ingest.DrainTimeout(),
		},
	})
	if err != nil {
		return fmt.Errorf("creating ingest dispatcher: %w", err)
	}
	// The workers outlive the signal until the queue is closed below.
	ingestCtx, stopIngest := context.WithCancel(context.WithoutCancel(ctx))
	defer stopIngest()
	dispatchDone := make(chan error, 1)
	go func() { dispatchDone <- dispatcher.Run(ingestCtx) }()

	// Gateways
	gwMetrics, err := gateway.NewMetrics(registry.Registerer())
	if err != nil {
		return fmt.Errorf("registering gateway metrics: %w", err)
	}

	manager, err := gateway.NewManager(gateway.ManagerOptions{
		Repository: repo,
		Queue:      queue,
		Sink:       buildSink(repo, influxClient, log),
		Logger:     log.With("component", "gateway"),
		Metrics:    gwMetrics,
		Config: gateway.SupervisorConfig{
			ReconnectWait: cfg.Reconnect.Wait(),
			PollTick:      cfg.Reconnect.PollTick(),
		},
		Factories: map[message.NetworkType]gateway.Factory{
			message.NetworkMQTT:  mqtt.Factory,
			message.NetworkNATS:  nats.Factory,
			message.NetworkRedis: redis.Factory,
		},
	})
	if err != nil {
		return fmt.Errorf("creating gateway manager: %w", err)
	}

	// Shutdown order: gateways stop producing, the queue closes, the
	// workers drain.
	defer func() {
		log.Info("waiting for ingest workers to drain")
		select {
		case <-dispatchDone:
		case <-time.After(cfg.Ingest.DrainTimeout() + time.Second):
			log.Warn("ingest workers did not stop in time")
		}
	}()
	defer func() {
		log.Info("stopping gateways")
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if closeErr := manager.Close(stopCtx); closeErr != nil {
			log.Error("error stopping gateways", "error", closeErr)
		}
		queue.Close()
		stopIngest()
	}()

	// A gateway that fails its first connect stays in ERROR until an
	// administrator retries it; the service keeps running.
	if startErr := manager.StartAll(ctx); startErr != nil {
		log.Warn("some gateways failed to start", "error", startErr)
	}

	// Admin API
	checks := map[string]api.HealthChecker{"database": db}
	if influxClient != nil {
		checks["influxdb"] = influxClient
	}
	server, err := api.New(api.Deps{
		Config:     cfg.API,
		Logger:     log,
		Gateways:   manager,
		Queue:      queue,
		Dispatcher: dispatcher,
		Metrics:    registry.Handler(),
		Checks:     checks,
		Version:    version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := server.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses GRAYLOGIC_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("GRAYLOGIC_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// seedGateways writes the gateways listed in the config file to the
// store. Existing rows keep their persisted status.
func seedGateways(ctx context.Context, repo gateway.Repository, cfgs []config.GatewayConfig) (int, error) {
	for _, gc := range cfgs {
		gw, err := gatewayFromConfig(gc)
		if err != nil {
			return 0, err
		}
		if err := repo.Upsert(ctx, gw); err != nil {
			return 0, err
		}
	}
	return len(cfgs), nil
}

func gatewayFromConfig(gc config.GatewayConfig) (*gateway.Gateway, error) {
	nt, err := message.ParseNetworkType(gc.NetworkType)
	if err != nil {
		return nil, fmt.Errorf("gateway %d: %w", gc.ID, err)
	}

	gw := gateway.NewGateway(gc.ID, gc.Name, nt, gateway.Endpoint{
		URL:       gc.URL,
		ClientID:  gc.ClientID,
		Username:  gc.Username,
		Password:  gc.Password,
		Subscribe: gc.Subscribe,
		Publish:   gc.Publish,
		QoS:       byte(gc.QoS), //nolint:gosec // Validated to 0-2 by config
		Options:   gc.Options,
	})
	gw.Enabled = gc.IsEnabled()
	return gw, nil
}

// buildSink assembles the status sinks: log, SQLite and, when enabled,
// InfluxDB status history.
func buildSink(repo gateway.StatusWriter, influxClient *influxdb.Client, log *logging.Logger) gateway.StatusSink {
	sinks := gateway.MultiSink{
		gateway.LogSink{Logger: log.With("component", "gateway_status")},
		gateway.RepositorySink{Writer: repo, Logger: log},
	}
	if influxClient != nil {
		sinks = append(sinks, influxStatusSink(influxClient))
	}
	return sinks
}

// statusHistory is the InfluxDB side of the status sink.
type statusHistory interface {
	WriteGatewayStatus(s influxdb.StatusPoint)
}

func influxStatusSink(h statusHistory) gateway.StatusSink {
	return gateway.StatusSinkFunc(func(t gateway.Transition) {
		h.WriteGatewayStatus(influxdb.StatusPoint{
			GatewayID:   t.GatewayID,
			GatewayName: t.GatewayName,
			NetworkType: string(t.NetworkType),
			Status:      string(t.Status),
			Message:     t.Message,
			At:          t.At,
		})
	})
}

// buildProcessor returns the ingest processor chain. Messages are always
// logged; archiving needs InfluxDB with archive_messages set.
func buildProcessor(cfg *config.Config, influxClient *influxdb.Client, log *logging.Logger) ingest.Processor {
	chain := ingest.Chain{ingest.LogProcessor{Logger: log.With("component", "ingest")}}
	if influxClient != nil && cfg.InfluxDB.ArchiveMessages {
		chain = append(chain, ingest.ArchiveProcessor{Archive: influxClient})
	}
	return chain
}
