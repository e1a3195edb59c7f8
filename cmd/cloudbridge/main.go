// Gray Logic Cloud Bridge
//
// This is the main entry point for the Gray Logic cloud bridge: a local
// service that fronts a cloud-connected garage door actuator. It exposes the
// door over the local REST API, WebSocket stream, and MQTT bus, while all
// cloud traffic (function calls, variable polls) flows through a bounded
// asynchronous dispatcher with throttling and retry.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"

	_ "github.com/nerrad567/gray-logic-cloud/migrations"

	"github.com/nerrad567/gray-logic-cloud/internal/api"
	"github.com/nerrad567/gray-logic-cloud/internal/door"
	"github.com/nerrad567/gray-logic-cloud/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-cloud/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-cloud/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-cloud/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-cloud/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-cloud/internal/particle"
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

// statusFanoutBuffer sizes the door status relay channel. The publisher runs
// inside the dispatcher's synchronizer scope and must never block, so
// snapshots beyond the buffer are dropped (the next poll re-publishes).
const statusFanoutBuffer = 16

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Gray Logic cloud bridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
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
	log.Info("database connected", "path", cfg.Database.Path)

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

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
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
	} else {
		log.Info("InfluxDB disabled")
	}

	// Build the cloud call dispatcher
	loopSync := particle.NewLoopSync()
	dispatcher := buildDispatcher(cfg, loopSync, influxClient, log)
	defer func() {
		log.Info("draining cloud call workers")
		dispatcher.Close()
	}()

	// Load or bootstrap cloud credentials
	store := particle.NewSQLiteCredentialStore(db.DB, particle.DefaultCredentialRecord)
	if credErr := bootstrapCredentials(ctx, cfg, store, dispatcher, log); credErr != nil {
		return fmt.Errorf("bootstrapping credentials: %w", credErr)
	}

	// Connect to MQTT broker (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT, log)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
	} else {
		log.Info("MQTT disabled")
	}

	// Start the door controller (optional)
	var doorCtrl *door.Controller
	statusCh := make(chan door.Status, statusFanoutBuffer)
	if cfg.Door.Enabled {
		doorCtrl = buildDoorController(cfg, dispatcher, loopSync, statusCh, influxClient, log)
		log.Info("door controller initialised",
			"device", cfg.Door.DeviceName,
			"function", cfg.Door.FunctionName,
			"variable", cfg.Door.VariableName,
		)
	} else {
		log.Info("door controller disabled")
	}

	// Build the API server
	apiServer, err := buildAPIServer(cfg, dispatcher, doorCtrl, store, db, mqttClient, influxClient, log)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	// Relay door status snapshots to MQTT and WebSocket subscribers. The
	// controller's publisher only enqueues; blocking I/O happens here.
	go runStatusFanout(ctx, statusCh, mqttClient, apiServer.HubRef(), cfg.Door.DeviceName, log)

	// Accept door commands from the MQTT bus
	if mqttClient != nil && doorCtrl != nil {
		if subErr := subscribeDoorCommands(cfg, mqttClient, doorCtrl, log); subErr != nil {
			return fmt.Errorf("subscribing to door commands: %w", subErr)
		}
	}

	// Start the API server
	if startErr := apiServer.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()
	log.Info("API server started", "host", cfg.API.Host, "port", cfg.API.Port)

	// Start the door control loop
	if doorCtrl != nil {
		go func() {
			if runErr := doorCtrl.Run(ctx); runErr != nil {
				log.Error("door control loop stopped", "error", runErr)
			}
		}()
	}

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. API server
	// 2. MQTT
	// 3. Dispatcher (drain workers)
	// 4. InfluxDB (if enabled)
	// 5. Database

	log.Info("Gray Logic cloud bridge stopped")
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

// buildDispatcher assembles the cloud call dispatcher from configuration.
func buildDispatcher(cfg *config.Config, loopSync *particle.LoopSync, influxClient *influxdb.Client, log *logging.Logger) *particle.Dispatcher {
	throttle := particle.NewThrottle(particle.ThrottleConfig{
		Enabled:   cfg.Particle.Throttle.Enabled,
		Window:    cfg.Particle.Throttle.Window,
		CacheSize: cfg.Particle.Throttle.CacheSize,
	}, clock.New(), log)

	deps := particle.DispatcherDeps{
		Client:   particle.NewHTTPClient(cfg.Particle.RequestTimeout),
		Throttle: throttle,
		Sync:     loopSync,
		Clock:    clock.New(),
		Logger:   log,
	}
	if influxClient != nil {
		deps.Recorder = influxClient
	}

	return particle.NewDispatcher(particle.DispatcherConfig{
		BaseURL:     cfg.Particle.APIURL,
		RetryCount:  cfg.Particle.RetryCount,
		RetryDelay:  cfg.Particle.RetryDelay,
		MaxInFlight: cfg.Particle.MaxInFlight,
		NameLimit:   cfg.Particle.FunctionNameLimit,
		ArgLimit:    cfg.Particle.FunctionArgLimit,
		DataLimit:   cfg.Particle.VariableDataLimit,
	}, deps)
}

// bootstrapCredentials installs cloud credentials on the dispatcher.
//
// Credentials supplied via config or environment take precedence: they are
// verified against the cloud API and persisted. Otherwise any previously
// stored record is used. A bridge with no credentials still starts; cloud
// calls fail until credentials arrive via the REST API.
func bootstrapCredentials(ctx context.Context, cfg *config.Config, store particle.CredentialStore, dispatcher *particle.Dispatcher, log *logging.Logger) error {
	if cfg.Particle.AccessToken != "" || cfg.Particle.DeviceID != "" {
		creds := particle.Credentials{
			AccessToken: cfg.Particle.AccessToken,
			DeviceID:    cfg.Particle.DeviceID,
		}
		if err := creds.Validate(); err != nil {
			return fmt.Errorf("configured credentials: %w", err)
		}

		online, err := dispatcher.ValidateCredentials(ctx, creds)
		if err != nil {
			// The cloud may be unreachable at boot; install anyway so calls
			// recover once connectivity returns.
			log.Warn("could not verify configured credentials against cloud API",
				"device_id", creds.DeviceID,
				"token", creds.MaskedToken(),
				"error", err,
			)
		} else {
			log.Info("configured credentials verified",
				"device_id", creds.DeviceID,
				"token", creds.MaskedToken(),
				"online", online,
			)
		}

		if err := store.Save(ctx, creds); err != nil {
			return fmt.Errorf("persisting credentials: %w", err)
		}
		dispatcher.SetCredentials(creds)
		return nil
	}

	creds, err := store.Load(ctx)
	if err != nil {
		if errors.Is(err, particle.ErrNotConfigured) {
			log.Info("no cloud credentials configured; set them via the REST API")
			return nil
		}
		return fmt.Errorf("loading stored credentials: %w", err)
	}

	dispatcher.SetCredentials(creds)
	log.Info("stored credentials loaded",
		"device_id", creds.DeviceID,
		"token", creds.MaskedToken(),
	)
	return nil
}

// buildDoorController assembles the door controller. Status snapshots go to
// the fanout channel; the enqueue never blocks because the publisher runs
// inside the dispatcher's synchronizer scope.
func buildDoorController(cfg *config.Config, dispatcher *particle.Dispatcher, loopSync *particle.LoopSync, statusCh chan<- door.Status, influxClient *influxdb.Client, log *logging.Logger) *door.Controller {
	deps := door.Deps{
		Dispatcher: dispatcher,
		Sync:       loopSync,
		Clock:      clock.New(),
		Publisher:  &statusFanout{ch: statusCh},
		Logger:     log,
	}
	if influxClient != nil {
		deps.Recorder = influxClient
	}

	return door.NewController(door.Config{
		DeviceName:        cfg.Door.DeviceName,
		FunctionName:      cfg.Door.FunctionName,
		VariableName:      cfg.Door.VariableName,
		PollInterval:      cfg.Door.PollInterval,
		FastPollInterval:  cfg.Door.FastPollInterval,
		FastPollWindow:    cfg.Door.FastPollWindow,
		ObstructionWindow: cfg.Door.ObstructionWindow,
	}, deps)
}

// buildAPIServer assembles the REST/WebSocket server with its health probes.
func buildAPIServer(cfg *config.Config, dispatcher *particle.Dispatcher, doorCtrl *door.Controller, store particle.CredentialStore, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client, log *logging.Logger) (*api.Server, error) {
	subsystems := map[string]api.HealthChecker{
		"database": db,
	}
	if mqttClient != nil {
		subsystems["mqtt"] = mqttClient
	}
	if influxClient != nil {
		subsystems["influxdb"] = influxClient
	}

	deps := api.Deps{
		Config:     cfg.API,
		WS:         cfg.WebSocket,
		Security:   cfg.Security,
		Logger:     log,
		Dispatcher: dispatcher,
		Store:      store,
		Subsystems: subsystems,
		Version:    version,
	}
	if doorCtrl != nil {
		deps.Door = doorCtrl
	}

	return api.New(deps)
}

// statusFanout is the door.Publisher that decouples the control loop from
// blocking transports. PublishStatus drops rather than blocks; the next poll
// re-publishes the current state.
type statusFanout struct {
	ch chan<- door.Status
}

func (f *statusFanout) PublishStatus(s door.Status) {
	select {
	case f.ch <- s:
	default:
	}
}

// runStatusFanout relays door status snapshots to the MQTT state topic and
// the WebSocket hub until the context is cancelled.
func runStatusFanout(ctx context.Context, statusCh <-chan door.Status, mqttClient *mqtt.Client, hub *api.Hub, device string, log *logging.Logger) {
	topics := mqtt.Topics{}

	for {
		select {
		case <-ctx.Done():
			return
		case status := <-statusCh:
			hub.Broadcast(api.ChannelDoorState, status)

			if mqttClient == nil {
				continue
			}
			payload, err := json.Marshal(status)
			if err != nil {
				log.Error("failed to marshal door status", "error", err)
				continue
			}
			if pubErr := mqttClient.PublishRetained(topics.DoorState(device), payload); pubErr != nil {
				log.Warn("failed to publish door status", "error", pubErr)
			}
		}
	}
}

// doorAck is the payload published on the ack topic after a bus command.
type doorAck struct {
	Device    string `json:"device"`
	Command   string `json:"command"`
	Accepted  bool   `json:"accepted"`
	Error     string `json:"error,omitempty"`
	Timestamp string `json:"timestamp"`
}

// subscribeDoorCommands wires the MQTT command topic to the door controller.
// Each command is acknowledged on the ack topic; actual state changes arrive
// later on the state topic once polling confirms them.
func subscribeDoorCommands(cfg *config.Config, mqttClient *mqtt.Client, doorCtrl *door.Controller, log *logging.Logger) error {
	topics := mqtt.Topics{}
	qos := byte(cfg.MQTT.QoS)

	return mqttClient.Subscribe(topics.AllDoorCommands(), qos, func(topic string, payload []byte) error {
		device := mqtt.DeviceFromCommandTopic(topic)
		if device != cfg.Door.DeviceName {
			log.Debug("ignoring command for unknown device", "device", device)
			return nil
		}

		command := string(payload)
		err := doorCtrl.RequestTargetByName(command)
		if err != nil {
			log.Warn("door command rejected", "command", command, "error", err)
		} else {
			log.Info("door command accepted", "command", command)
		}

		ack := doorAck{
			Device:    device,
			Command:   command,
			Accepted:  err == nil,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}
		if err != nil {
			ack.Error = err.Error()
		}
		ackPayload, marshalErr := json.Marshal(ack)
		if marshalErr != nil {
			return fmt.Errorf("marshalling ack: %w", marshalErr)
		}
		return mqttClient.Publish(topics.DoorAck(device), ackPayload, qos, false)
	})
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check (may be nil if disabled)
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
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
