// Gray Logic Notify - notification fan-out service
//
// notifyd authenticates principals, tracks which live connections are
// subscribed to which entities, and pushes entity updates to them over
// WebSocket. Updates arrive through the HTTP API or as MQTT state messages.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/nerrad567/gray-logic-notify/internal/api"
	"github.com/nerrad567/gray-logic-notify/internal/auth"
	"github.com/nerrad567/gray-logic-notify/internal/delivery"
	"github.com/nerrad567/gray-logic-notify/internal/entity"
	"github.com/nerrad567/gray-logic-notify/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-notify/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-notify/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-notify/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-notify/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-notify/internal/lifecycle"
	"github.com/nerrad567/gray-logic-notify/internal/metrics"
	"github.com/nerrad567/gray-logic-notify/internal/store"
	"github.com/nerrad567/gray-logic-notify/internal/subscription"
	"github.com/nerrad567/gray-logic-notify/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// stores holds the keyed stores for each namespace.
type stores struct {
	credentials   store.ConditionalStore
	subscriptions store.Store
	entities      store.ConditionalStore
}

// run is the actual application logic, separated from main for testability.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting Gray Logic Notify",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, configPath, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)
	metrics.Init(version)

	var db *database.DB
	var st stores
	switch cfg.Storage.Driver {
	case config.StorageDriverSQLite:
		db, err = openDatabase(ctx, cfg.Database)
		if err != nil {
			return err
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
		log.Info("database ready", "path", cfg.Database.Path)

		st = stores{
			credentials:   store.NewSQLiteStore(db, store.NamespaceCredentials),
			subscriptions: store.NewSQLiteStore(db, store.NamespaceSubscriptions),
			entities:      store.NewSQLiteStore(db, store.NamespaceEntities),
		}
	default:
		log.Warn("using in-memory storage, all state is lost on restart")
		st = stores{
			credentials:   store.NewMemoryStore(),
			subscriptions: store.NewMemoryStore(),
			entities:      store.NewMemoryStore(),
		}
	}

	pw := cfg.Security.Password
	authService := auth.NewService(st.credentials,
		auth.WithParams(auth.Params{
			Iterations: pw.Iterations,
			KeyLength:  pw.KeyLength,
			SaltLength: pw.SaltLength,
			Digest:     pw.Digest,
		}),
		auth.WithMinPasswordLength(pw.MinLength),
		auth.WithTokenTTL(cfg.GetTokenTTL()),
		auth.WithLogger(log),
	)

	hub := api.NewHub(cfg.WebSocket, log)

	var channel subscription.Channel = hub
	if cfg.Delivery.Mode == config.DeliveryModeHTTP {
		channel = delivery.NewHTTPChannel(cfg.GetDeliveryTimeout(), cfg.Delivery.ManagementKey)
	}
	log.Info("delivery channel selected", "mode", cfg.Delivery.Mode)

	regOpts := subscription.Options{
		MaxConcurrency: cfg.Delivery.MaxConcurrency,
		Logger:         log,
	}

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
		regOpts.Recorder = influxClient
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	registry := subscription.NewRegistry(st.subscriptions, channel, regOpts)

	handler := lifecycle.NewHandler(
		buildIdentity(cfg.Identity, authService),
		registry,
		channel,
		lifecycle.Endpoints{
			LocalDomain:   cfg.Delivery.LocalDomain,
			LocalEndpoint: cfg.Delivery.LocalEndpoint,
			CloudMarker:   cfg.Delivery.CloudMarker,
		},
		log,
	)

	entities := entity.NewService(st.entities, registry, log)

	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = startIngest(cfg.MQTT, registry, log)
		if err != nil {
			return err
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			metrics.SetMQTTSource(nil)
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
	} else {
		log.Info("MQTT state ingest disabled")
	}

	deps := api.Deps{
		Config:    cfg.API,
		WS:        cfg.WebSocket,
		Security:  cfg.Security,
		Delivery:  cfg.Delivery,
		Stage:     cfg.Service.Stage,
		Logger:    log,
		Auth:      authService,
		Entities:  entities,
		Lifecycle: handler,
		Hub:       hub,
		Version:   version,
	}
	if db != nil {
		deps.Database = db
	}

	server, err := api.New(deps)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		log.Info("stopping API server")
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error stopping API server", "error", closeErr)
		}
	}()

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	return nil
}

// loadConfig reads the file named by GRAYLOGIC_CONFIG. Without the variable,
// the default path is used if it exists and built-in defaults otherwise.
func loadConfig() (*config.Config, string, error) {
	path := getConfigPath()
	if os.Getenv("GRAYLOGIC_CONFIG") == "" {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			cfg, err := config.Default()
			return cfg, "(defaults)", err
		}
	}
	cfg, err := config.Load(path)
	return cfg, path, err
}

func getConfigPath() string {
	if path := os.Getenv("GRAYLOGIC_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

func openDatabase(ctx context.Context, cfg config.DatabaseConfig) (*database.DB, error) {
	db, err := database.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Migrate(ctx, migrations.Source()); err != nil {
		db.Close() //nolint:errcheck // migration error takes precedence
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return db, nil
}

func buildIdentity(cfg config.IdentityConfig, authService *auth.Service) lifecycle.Identity {
	if cfg.Model == config.IdentityModelDevice {
		return lifecycle.DeviceIdentity{Header: cfg.DeviceHeader}
	}
	return lifecycle.UserIdentity{Auth: authService, Scopes: cfg.Scopes}
}

// startIngest connects to the broker and fans out every state message.
func startIngest(cfg config.MQTTConfig, registry *subscription.Registry, log *logging.Logger) (*mqtt.Client, error) {
	client, err := mqtt.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to MQTT: %w", err)
	}
	client.SetLogger(log)
	client.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	client.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	// #nosec G115 -- QoS validated to 0-2
	if err := client.Subscribe(cfg.StateTopic, byte(cfg.QoS), mqtt.NewStateHandler(registry, log)); err != nil {
		client.Close() //nolint:errcheck // subscribe error takes precedence
		return nil, fmt.Errorf("subscribing to %s: %w", cfg.StateTopic, err)
	}

	metrics.SetMQTTSource(func() metrics.MQTTCounts {
		s := client.Stats()
		return metrics.MQTTCounts{Received: s.Received, Failed: s.Failed, Panicked: s.Panicked}
	})

	log.Info("MQTT state ingest started",
		"broker", fmt.Sprintf("%s:%d", cfg.Broker.Host, cfg.Broker.Port),
		"client_id", cfg.Broker.ClientID,
		"topic", cfg.StateTopic,
	)
	return client, nil
}

func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if db != nil {
		if err := db.HealthCheck(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}

	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
