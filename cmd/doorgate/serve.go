package main

import (
	"context"
	"fmt"
	"os"

	"github.com/nerrad567/doorgate/internal/api"
	"github.com/nerrad567/doorgate/internal/audit"
	"github.com/nerrad567/doorgate/internal/gateway"
	"github.com/nerrad567/doorgate/internal/infrastructure/config"
	"github.com/nerrad567/doorgate/internal/infrastructure/database"
	"github.com/nerrad567/doorgate/internal/infrastructure/influxdb"
	"github.com/nerrad567/doorgate/internal/infrastructure/logging"
	"github.com/nerrad567/doorgate/internal/infrastructure/mqtt"
	"github.com/nerrad567/doorgate/internal/ingest"
	"github.com/nerrad567/doorgate/internal/logline"
	"github.com/nerrad567/doorgate/internal/metrics"
	"github.com/nerrad567/doorgate/internal/watch"
)

// watchDirPermissions is used when a watched directory has to be created.
const watchDirPermissions = 0o750

// run is the serve command, separated from cobra for testability.
//
// Components are created in dependency order and closed by defers in
// reverse: watcher, admin server, bus, InfluxDB mirror, then the writer and
// database.
func run(ctx context.Context, configPath string) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting doorgate",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version).With("site", cfg.Site.ID)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Build the codec before touching any external resource so a bad field
	// order fails fast.
	order, err := logline.ParseFieldOrder(cfg.Ingest.AccessFieldOrder)
	if err != nil {
		return fmt.Errorf("ingest: %w", err)
	}
	codec := logline.NewCodec(order)

	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
		WriteQueue:  cfg.Database.WriteQueue,
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

	gw, err := gateway.New(ctx, db, log)
	if err != nil {
		return fmt.Errorf("preparing gateway store: %w", err)
	}

	journal, err := audit.NewSQLiteRepository(ctx, db)
	if err != nil {
		return fmt.Errorf("preparing publish journal: %w", err)
	}

	m := metrics.New()

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
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

	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log)
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT connected")
		m.SetMQTTConnected(true)
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
		m.SetMQTTConnected(false)
	})
	m.SetMQTTConnected(mqttClient.IsConnected())
	log.Info("MQTT client started",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
		"connected", mqttClient.IsConnected(),
	)

	if cfg.Ingest.Enabled {
		topic := mqttClient.Topics().Logs()
		opts := []ingest.Option{
			ingest.WithLogger(log.With("component", "ingest")),
			ingest.WithRecorder(m),
		}
		if influxClient != nil {
			opts = append(opts, ingest.WithSink(influxClient))
		}
		proc := ingest.New(topic, codec, gw, opts...)

		if subErr := mqttClient.SubscribeOnConnect(topic, byte(cfg.Ingest.SubscribeQoS), proc.HandleMessage); subErr != nil {
			return fmt.Errorf("subscribing to %s: %w", topic, subErr)
		}
		log.Info("log ingestion enabled", "topic", topic, "field_order", string(order))
	} else {
		log.Info("log ingestion disabled")
	}

	if cfg.Admin.Enabled {
		checks := map[string]api.HealthChecker{
			"database": db,
			"mqtt":     mqttClient,
		}
		if influxClient != nil {
			checks["influxdb"] = influxClient
		}

		srv, srvErr := api.New(api.Deps{
			Config:  cfg.Admin,
			Logger:  log.With("component", "admin"),
			Events:  gw,
			Metrics: m.Handler(),
			Checks:  checks,
			Journal: journal,
			DB:      db,
			MQTT:    mqttClient,
			Version: version,
		})
		if srvErr != nil {
			return fmt.Errorf("creating admin server: %w", srvErr)
		}
		if startErr := srv.Start(ctx); startErr != nil {
			return fmt.Errorf("starting admin server: %w", startErr)
		}
		defer func() {
			if closeErr := srv.Close(); closeErr != nil {
				log.Error("error closing admin server", "error", closeErr)
			}
		}()
	}

	if cfg.Watch.Enabled {
		bridge, bridgeErr := newBridge(cfg, mqttClient, m, journal, log)
		if bridgeErr != nil {
			return bridgeErr
		}
		if startErr := bridge.Start(ctx); startErr != nil {
			return fmt.Errorf("starting watcher: %w", startErr)
		}
		defer func() {
			log.Info("stopping watcher")
			if stopErr := bridge.Stop(); stopErr != nil {
				log.Error("error stopping watcher", "error", stopErr)
			}
		}()
	} else {
		log.Info("watcher disabled")
	}

	if err := healthCheck(ctx, db, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	return nil
}

// newBridge builds the watch bridge from the configured rules. Missing
// directories are created so the watcher can be attached.
func newBridge(cfg *config.Config, pub watch.Publisher, m *metrics.Metrics, journal watch.Journal, log *logging.Logger) (*watch.Bridge, error) {
	rules := make([]watch.Rule, 0, len(cfg.Watch.Rules))
	for _, r := range cfg.Watch.Rules {
		if err := os.MkdirAll(r.Dir, watchDirPermissions); err != nil {
			return nil, fmt.Errorf("creating watch directory %s: %w", r.Dir, err)
		}
		rules = append(rules, watch.Rule{
			Dir:      r.Dir,
			Patterns: r.Patterns,
			Kind:     watch.Kind(r.Kind),
			Topic:    cfg.TopicForKind(r.Kind),
		})
	}

	bridge, err := watch.New(rules, pub,
		watch.WithWorkers(cfg.Watch.Workers),
		watch.WithQueueSize(cfg.Watch.QueueSize),
		watch.WithPublishRate(cfg.Watch.PublishRate),
		watch.WithScanOnStart(cfg.Watch.ScanOnStart),
		watch.WithSettle(cfg.Watch.Settle()),
		watch.WithLogger(log.With("component", "watch")),
		watch.WithRecorder(m),
		watch.WithJournal(journal),
	)
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	return bridge, nil
}

// healthCheck verifies the local dependencies at startup.
//
// The broker is not checked: with require_initial_connect off the client
// keeps retrying in the background and the gateway runs meanwhile.
func healthCheck(ctx context.Context, db *database.DB, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if influxClient != nil && !influxClient.IsConnected() {
		return fmt.Errorf("influxdb: %w", influxdb.ErrNotConnected)
	}
	return nil
}
