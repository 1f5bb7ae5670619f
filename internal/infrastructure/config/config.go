package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Gray Logic Notify.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Service   ServiceConfig   `yaml:"service"`
	Database  DatabaseConfig  `yaml:"database"`
	Storage   StorageConfig   `yaml:"storage"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Security  SecurityConfig  `yaml:"security"`
	Delivery  DeliveryConfig  `yaml:"delivery"`
	Identity  IdentityConfig  `yaml:"identity"`
}

// ServiceConfig identifies this deployment.
type ServiceConfig struct {
	Name string `yaml:"name"`
	// Stage is appended to delivery endpoints on cloud-hosted domains.
	Stage string `yaml:"stage"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// Storage drivers.
const (
	StorageDriverSQLite = "sqlite"
	StorageDriverMemory = "memory"
)

// StorageConfig selects the keyed store backing credentials, subscriptions and entities.
type StorageConfig struct {
	// Driver is "sqlite" (default) or "memory" (development only, lost on restart).
	Driver string `yaml:"driver"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`

	// StateTopic is the subscription filter for entity state messages.
	// The last topic level is the entity id.
	StateTopic string `yaml:"state_topic"`
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

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
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

// APITimeoutConfig contains HTTP timeout settings.
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
	SendBuffer     int    `yaml:"send_buffer"`
}

// InfluxDBConfig contains InfluxDB connection settings for delivery telemetry.
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

// SecurityConfig contains security settings.
type SecurityConfig struct {
	Password  PasswordConfig  `yaml:"password"`
	Token     TokenConfig     `yaml:"token"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// PasswordConfig contains the PBKDF2 parameters used for new credentials.
// Existing credentials keep the parameters they were created with.
type PasswordConfig struct {
	Iterations int    `yaml:"iterations"`
	Digest     string `yaml:"digest"`
	SaltLength int    `yaml:"salt_length"`
	KeyLength  int    `yaml:"key_length"`
	MinLength  int    `yaml:"min_length"`
}

// TokenConfig contains bearer token settings.
type TokenConfig struct {
	// TTL is the token lifetime in minutes.
	TTL int `yaml:"ttl"`
}

// RateLimitConfig contains rate limiting settings for the auth endpoints.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute"`
	Burst             int  `yaml:"burst"`
}

// Delivery modes.
const (
	DeliveryModeLocal = "local"
	DeliveryModeHTTP  = "http"
)

// DeliveryConfig controls how fan-out reaches live connections.
type DeliveryConfig struct {
	// Mode is "local" (deliver through this process's WebSocket hub) or
	// "http" (POST to {endpoint}/@connections/{id}).
	Mode string `yaml:"mode"`

	// LocalDomain is the routing domain that maps to LocalEndpoint.
	LocalDomain string `yaml:"local_domain"`

	// PublicDomain is the domain other instances reach this one on. It is
	// recorded with every new connection and required in http mode. Empty
	// means LocalDomain.
	PublicDomain string `yaml:"public_domain"`

	// LocalEndpoint is the delivery endpoint used for LocalDomain.
	LocalEndpoint string `yaml:"local_endpoint"`

	// CloudMarker is the domain substring that makes the stage part of the endpoint.
	CloudMarker string `yaml:"cloud_marker"`

	// Timeout bounds a single HTTP delivery attempt (seconds).
	Timeout int `yaml:"timeout"`

	// MaxConcurrency bounds concurrent deliveries within one fan-out. 0 means unbounded.
	MaxConcurrency int `yaml:"max_concurrency"`

	// ManagementKey, when set, is required in X-Management-Key on /@connections.
	ManagementKey string `yaml:"management_key"`
}

// Identity models for the WebSocket connection lifecycle.
const (
	IdentityModelUser   = "user"
	IdentityModelDevice = "device"
)

// IdentityConfig selects how a connecting client names the entity it subscribes to.
type IdentityConfig struct {
	Model        string   `yaml:"model"`
	DeviceHeader string   `yaml:"device_header"`
	Scopes       []string `yaml:"scopes"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: GRAYLOGIC_SECTION_KEY
// For example: GRAYLOGIC_DATABASE_PATH, GRAYLOGIC_API_PORT
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

// Default returns the built-in configuration with environment overrides applied.
// It is used when no config file exists (local development).
func Default() (*Config, error) {
	cfg := defaultConfig()
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:  "graylogic-notify",
			Stage: "dev",
		},
		Database: DatabaseConfig{
			Path:        "./data/notify.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Storage: StorageConfig{
			Driver: StorageDriverSQLite,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "graylogic-notify",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
			StateTopic: "notify/state/+",
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 3001,
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
			SendBuffer:     256,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Security: SecurityConfig{
			Password: PasswordConfig{
				Iterations: 10000,
				Digest:     "sha256",
				SaltLength: 64,
				KeyLength:  256,
				MinLength:  10,
			},
			Token: TokenConfig{
				TTL: 60,
			},
			RateLimit: RateLimitConfig{
				Enabled:           true,
				RequestsPerMinute: 30,
				Burst:             10,
			},
		},
		Delivery: DeliveryConfig{
			Mode:           DeliveryModeLocal,
			LocalDomain:    "localhost",
			LocalEndpoint:  "http://localhost:3001",
			CloudMarker:    "amazonaws.com",
			Timeout:        5,
			MaxConcurrency: 32,
		},
		Identity: IdentityConfig{
			Model:        IdentityModelUser,
			DeviceHeader: "X-Device-Id",
			Scopes:       []string{"self"},
		},
	}
}

// envPrefix starts every override variable: GRAYLOGIC_<SECTION>_<KEY>.
const envPrefix = "GRAYLOGIC_"

// envOverride binds one environment variable to a config field. Exactly one
// of str, num or flag is set.
type envOverride struct {
	key  string
	str  func(*Config) *string
	num  func(*Config) *int
	flag func(*Config) *bool
}

var envOverrides = []envOverride{
	{key: "SERVICE_STAGE", str: func(c *Config) *string { return &c.Service.Stage }},
	{key: "DATABASE_PATH", str: func(c *Config) *string { return &c.Database.Path }},
	{key: "STORAGE_DRIVER", str: func(c *Config) *string { return &c.Storage.Driver }},
	{key: "MQTT_ENABLED", flag: func(c *Config) *bool { return &c.MQTT.Enabled }},
	{key: "MQTT_HOST", str: func(c *Config) *string { return &c.MQTT.Broker.Host }},
	{key: "MQTT_PORT", num: func(c *Config) *int { return &c.MQTT.Broker.Port }},
	{key: "MQTT_USERNAME", str: func(c *Config) *string { return &c.MQTT.Auth.Username }},
	{key: "MQTT_PASSWORD", str: func(c *Config) *string { return &c.MQTT.Auth.Password }},
	{key: "API_HOST", str: func(c *Config) *string { return &c.API.Host }},
	{key: "API_PORT", num: func(c *Config) *int { return &c.API.Port }},
	{key: "INFLUXDB_ENABLED", flag: func(c *Config) *bool { return &c.InfluxDB.Enabled }},
	{key: "INFLUXDB_URL", str: func(c *Config) *string { return &c.InfluxDB.URL }},
	{key: "INFLUXDB_TOKEN", str: func(c *Config) *string { return &c.InfluxDB.Token }},
	{key: "LOGGING_LEVEL", str: func(c *Config) *string { return &c.Logging.Level }},
	{key: "DELIVERY_MODE", str: func(c *Config) *string { return &c.Delivery.Mode }},
	{key: "DELIVERY_PUBLIC_DOMAIN", str: func(c *Config) *string { return &c.Delivery.PublicDomain }},
	{key: "DELIVERY_MANAGEMENT_KEY", str: func(c *Config) *string { return &c.Delivery.ManagementKey }},
	{key: "IDENTITY_MODEL", str: func(c *Config) *string { return &c.Identity.Model }},
}

// applyEnvOverrides copies set environment variables over cfg. Values that
// do not parse as the field's type are ignored.
func applyEnvOverrides(cfg *Config) {
	for _, o := range envOverrides {
		v, ok := os.LookupEnv(envPrefix + o.key)
		if !ok || v == "" {
			continue
		}
		switch {
		case o.str != nil:
			*o.str(cfg) = v
		case o.num != nil:
			if n, err := strconv.Atoi(v); err == nil {
				*o.num(cfg) = n
			}
		case o.flag != nil:
			if b, err := strconv.ParseBool(v); err == nil {
				*o.flag(cfg) = b
			}
		}
	}
}

// minPBKDF2Iterations is the lowest iteration count accepted for new credentials.
const minPBKDF2Iterations = 10000

// problems collects validation failures so all of them are reported at once.
type problems []string

func (p *problems) addf(format string, args ...any) {
	*p = append(*p, fmt.Sprintf(format, args...))
}

// Validate reports every invalid or insecure setting in one error.
func (c *Config) Validate() error {
	var p problems

	switch c.Storage.Driver {
	case StorageDriverSQLite:
		if c.Database.Path == "" {
			p.addf("database.path is required for the sqlite storage driver")
		}
	case StorageDriverMemory:
	default:
		p.addf("storage.driver must be %q or %q", StorageDriverSQLite, StorageDriverMemory)
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		p.addf("mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Enabled && c.MQTT.StateTopic == "" {
		p.addf("mqtt.state_topic is required when mqtt is enabled")
	}
	if c.API.Port < 1 || c.API.Port > 65535 {
		p.addf("api.port must be between 1 and 65535")
	}

	c.Security.Password.validate(&p)
	if c.Security.Token.TTL <= 0 {
		p.addf("security.token.ttl must be positive")
	}

	switch c.Delivery.Mode {
	case DeliveryModeLocal, DeliveryModeHTTP:
	default:
		p.addf("delivery.mode must be %q or %q", DeliveryModeLocal, DeliveryModeHTTP)
	}
	if c.Delivery.Mode == DeliveryModeHTTP && c.Delivery.PublicDomain == "" {
		p.addf("delivery.public_domain is required when delivery.mode is http")
	}
	if c.Delivery.MaxConcurrency < 0 {
		p.addf("delivery.max_concurrency must not be negative")
	}

	switch c.Identity.Model {
	case IdentityModelUser:
		if len(c.Identity.Scopes) == 0 {
			p.addf("identity.scopes is required for the user identity model")
		}
	case IdentityModelDevice:
		if c.Identity.DeviceHeader == "" {
			p.addf("identity.device_header is required for the device identity model")
		}
	default:
		p.addf("identity.model must be %q or %q", IdentityModelUser, IdentityModelDevice)
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		p.addf("influxdb.url is required when influxdb is enabled")
	}

	if len(p) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(p, "; "))
	}
	return nil
}

func (pw PasswordConfig) validate(p *problems) {
	if pw.Iterations < minPBKDF2Iterations {
		p.addf("security.password.iterations must be at least %d", minPBKDF2Iterations)
	}
	if pw.Digest != "sha256" && pw.Digest != "sha512" {
		p.addf("security.password.digest must be sha256 or sha512")
	}
	if pw.SaltLength < 16 {
		p.addf("security.password.salt_length must be at least 16")
	}
	if pw.KeyLength < 32 {
		p.addf("security.password.key_length must be at least 32")
	}
	if pw.MinLength < 1 {
		p.addf("security.password.min_length must be positive")
	}
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

// GetTokenTTL returns the bearer token lifetime as a Duration.
func (c *Config) GetTokenTTL() time.Duration {
	return time.Duration(c.Security.Token.TTL) * time.Minute
}

// GetDeliveryTimeout returns the per-attempt HTTP delivery timeout as a Duration.
func (c *Config) GetDeliveryTimeout() time.Duration {
	return time.Duration(c.Delivery.Timeout) * time.Second
}
