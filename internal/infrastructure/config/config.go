package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the Gray Logic cloud bridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site      SiteConfig      `yaml:"site"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Particle  ParticleConfig  `yaml:"particle"`
	Door      DoorConfig      `yaml:"door"`
	Security  SecurityConfig  `yaml:"security"`
}

// SiteConfig contains site-specific information.
type SiteConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings (seconds).
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings (seconds).
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// ParticleConfig contains cloud device API settings.
//
// Credentials may be supplied here or via GRAYLOGIC_PARTICLE_TOKEN and
// GRAYLOGIC_PARTICLE_DEVICE_ID. If present they are validated against the
// cloud API at startup and persisted to the credential store; when absent,
// previously stored credentials are used.
type ParticleConfig struct {
	// APIURL is the base URL of the cloud device API.
	APIURL string `yaml:"api_url"`

	// AccessToken is the API access token (exactly 40 characters).
	AccessToken string `yaml:"access_token"`

	// DeviceID is the target device identifier (exactly 24 characters).
	DeviceID string `yaml:"device_id"`

	// RequestTimeout bounds a single HTTP exchange with the cloud API.
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// RetryCount is the number of retries (beyond the first attempt) for
	// function calls that fail with a read timeout. Variable reads never retry.
	RetryCount int `yaml:"retry_count"`

	// RetryDelay is the fixed pause between retry attempts.
	RetryDelay time.Duration `yaml:"retry_delay"`

	// MaxInFlight bounds the number of concurrent cloud calls. Submissions
	// beyond this bound fail immediately rather than queueing.
	MaxInFlight int `yaml:"max_in_flight"`

	// FunctionNameLimit is the maximum length of a function or variable name.
	FunctionNameLimit int `yaml:"function_name_limit"`

	// FunctionArgLimit is the maximum length of a function argument.
	FunctionArgLimit int `yaml:"function_arg_limit"`

	// VariableDataLimit bounds the length of extracted variable values.
	VariableDataLimit int `yaml:"variable_data_limit"`

	// Throttle configures per-endpoint rate limiting.
	Throttle ThrottleConfig `yaml:"throttle"`
}

// ThrottleConfig contains per-endpoint rate limiting settings.
type ThrottleConfig struct {
	// Enabled turns throttling on. When false every call is allowed.
	Enabled bool `yaml:"enabled"`

	// Window is the minimum interval between two calls to the same endpoint.
	Window time.Duration `yaml:"window"`

	// CacheSize is the maximum number of tracked endpoints. Endpoints beyond
	// this bound are never throttled (best-effort escape hatch).
	CacheSize int `yaml:"cache_size"`
}

// DoorConfig contains door controller settings.
type DoorConfig struct {
	Enabled bool `yaml:"enabled"`

	// DeviceName is the door's address on the MQTT bus.
	DeviceName string `yaml:"device_name"`

	// FunctionName is the cloud function that commands the actuator.
	FunctionName string `yaml:"function_name"`

	// VariableName is the cloud variable reporting the observed door state.
	VariableName string `yaml:"variable_name"`

	// PollInterval is the background polling interval. It runs unconditionally
	// to catch externally triggered state changes.
	PollInterval time.Duration `yaml:"poll_interval"`

	// FastPollInterval is the accelerated polling interval while a command
	// result is pending.
	FastPollInterval time.Duration `yaml:"fast_poll_interval"`

	// FastPollWindow bounds how long accelerated polling stays active after a
	// command is dispatched, even without confirmation.
	FastPollWindow time.Duration `yaml:"fast_poll_window"`

	// ObstructionWindow is how long an in-flight command may go unconfirmed
	// before the door is declared obstructed.
	ObstructionWindow time.Duration `yaml:"obstruction_window"`
}

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`
}

// JWTConfig contains JWT token settings.
type JWTConfig struct {
	Secret string `yaml:"secret"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: GRAYLOGIC_SECTION_KEY
// For example: GRAYLOGIC_PARTICLE_TOKEN, GRAYLOGIC_MQTT_HOST
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default cloud call budgets. The throttle window and cache size mirror the
// cloud API's published request limits.
const (
	defaultRequestTimeout    = 8 * time.Second
	defaultRetryDelay        = 750 * time.Millisecond
	defaultThrottleWindow    = 10 * time.Second
	defaultThrottleCacheSize = 10
	defaultMaxInFlight       = 8
	defaultNameLimit         = 64
	defaultArgLimit          = 1024
	defaultDataLimit         = 1024

	defaultPollInterval      = 36 * time.Second
	defaultFastPollInterval  = 11 * time.Second
	defaultFastPollWindow    = 32 * time.Second
	defaultObstructionWindow = 32 * time.Second
)

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:   "site-001",
			Name: "Gray Logic",
		},
		Database: DatabaseConfig{
			Path:        "./data/cloudbridge.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Enabled: true,
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "graylogic-cloud",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8081,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Particle: ParticleConfig{
			APIURL:            "https://api.particle.io",
			RequestTimeout:    defaultRequestTimeout,
			RetryCount:        1,
			RetryDelay:        defaultRetryDelay,
			MaxInFlight:       defaultMaxInFlight,
			FunctionNameLimit: defaultNameLimit,
			FunctionArgLimit:  defaultArgLimit,
			VariableDataLimit: defaultDataLimit,
			Throttle: ThrottleConfig{
				Enabled:   true,
				Window:    defaultThrottleWindow,
				CacheSize: defaultThrottleCacheSize,
			},
		},
		Door: DoorConfig{
			Enabled:           true,
			DeviceName:        "garage-door",
			FunctionName:      "setDoor",
			VariableName:      "doorState",
			PollInterval:      defaultPollInterval,
			FastPollInterval:  defaultFastPollInterval,
			FastPollWindow:    defaultFastPollWindow,
			ObstructionWindow: defaultObstructionWindow,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("GRAYLOGIC_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if v := os.Getenv("GRAYLOGIC_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("GRAYLOGIC_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("GRAYLOGIC_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	if v := os.Getenv("GRAYLOGIC_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	if v := os.Getenv("GRAYLOGIC_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Cloud API credentials - preferred over storing them in config.yaml
	if v := os.Getenv("GRAYLOGIC_PARTICLE_TOKEN"); v != "" {
		cfg.Particle.AccessToken = v
	}
	if v := os.Getenv("GRAYLOGIC_PARTICLE_DEVICE_ID"); v != "" {
		cfg.Particle.DeviceID = v
	}

	if v := os.Getenv("GRAYLOGIC_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}
}

// minJWTSecretLength is the minimum length of the JWT signing secret.
// A forgeable token would let an attacker command a physical actuator,
// so weak secrets are rejected rather than warned about.
const minJWTSecretLength = 32

// Validate checks the configuration for errors and security issues.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.Particle.APIURL == "" {
		errs = append(errs, "particle.api_url is required")
	}
	if c.Particle.RequestTimeout <= 0 {
		errs = append(errs, "particle.request_timeout must be positive")
	}
	if c.Particle.RetryCount < 0 {
		errs = append(errs, "particle.retry_count must not be negative")
	}
	if c.Particle.MaxInFlight < 1 {
		errs = append(errs, "particle.max_in_flight must be at least 1")
	}
	if c.Particle.FunctionNameLimit < 1 || c.Particle.FunctionArgLimit < 1 || c.Particle.VariableDataLimit < 1 {
		errs = append(errs, "particle length limits must be positive")
	}
	if c.Particle.Throttle.Enabled {
		if c.Particle.Throttle.Window <= 0 {
			errs = append(errs, "particle.throttle.window must be positive when throttling is enabled")
		}
		if c.Particle.Throttle.CacheSize < 1 {
			errs = append(errs, "particle.throttle.cache_size must be at least 1")
		}
	}

	if c.Door.Enabled {
		if c.Door.DeviceName == "" {
			errs = append(errs, "door.device_name is required")
		}
		if c.Door.FunctionName == "" || c.Door.VariableName == "" {
			errs = append(errs, "door.function_name and door.variable_name are required")
		}
		if c.Door.PollInterval <= 0 || c.Door.FastPollInterval <= 0 {
			errs = append(errs, "door polling intervals must be positive")
		}
		if c.Door.FastPollWindow <= 0 || c.Door.ObstructionWindow <= 0 {
			errs = append(errs, "door.fast_poll_window and door.obstruction_window must be positive")
		}
	}

	if c.Security.JWT.Secret == "" {
		errs = append(errs, "security.jwt.secret is required (set GRAYLOGIC_JWT_SECRET environment variable)")
	} else if len(c.Security.JWT.Secret) < minJWTSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters for adequate security")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
