package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	content := `
service:
  stage: "prod"
database:
  path: "/tmp/test.db"
  wal_mode: true
  busy_timeout: 5
mqtt:
  broker:
    host: "localhost"
    port: 1883
    client_id: "test-client"
  qos: 1
api:
  host: "0.0.0.0"
  port: 8080
delivery:
  mode: "http"
  public_domain: "notify-a.internal"
  max_concurrency: 8
identity:
  model: "device"
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Service.Stage != "prod" {
		t.Errorf("Service.Stage = %q, want %q", cfg.Service.Stage, "prod")
	}
	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/test.db")
	}
	if cfg.Delivery.Mode != DeliveryModeHTTP {
		t.Errorf("Delivery.Mode = %q, want %q", cfg.Delivery.Mode, DeliveryModeHTTP)
	}
	if cfg.Delivery.MaxConcurrency != 8 {
		t.Errorf("Delivery.MaxConcurrency = %d, want 8", cfg.Delivery.MaxConcurrency)
	}
	if cfg.Identity.Model != IdentityModelDevice {
		t.Errorf("Identity.Model = %q, want %q", cfg.Identity.Model, IdentityModelDevice)
	}
	// Unset fields keep their defaults.
	if cfg.Security.Password.Iterations != 10000 {
		t.Errorf("Security.Password.Iterations = %d, want 10000", cfg.Security.Password.Iterations)
	}
	if cfg.Identity.DeviceHeader != "X-Device-Id" {
		t.Errorf("Identity.DeviceHeader = %q, want %q", cfg.Identity.DeviceHeader, "X-Device-Id")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "invalid: [yaml: content"))
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	content := `
delivery:
  mode: "carrier-pigeon"
`
	_, err := Load(writeConfig(t, content))
	if err == nil {
		t.Fatal("Load() expected validation error for unknown delivery mode, got nil")
	}
	if !strings.Contains(err.Error(), "delivery.mode") {
		t.Errorf("Load() error = %v, want mention of delivery.mode", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults are valid", mutate: func(*Config) {}},
		{name: "memory storage without path", mutate: func(c *Config) {
			c.Storage.Driver = StorageDriverMemory
			c.Database.Path = ""
		}},
		{name: "sqlite storage without path", mutate: func(c *Config) { c.Database.Path = "" }, wantErr: true},
		{name: "unknown storage driver", mutate: func(c *Config) { c.Storage.Driver = "dynamo" }, wantErr: true},
		{name: "invalid QoS", mutate: func(c *Config) { c.MQTT.QoS = 3 }, wantErr: true},
		{name: "mqtt enabled without state topic", mutate: func(c *Config) {
			c.MQTT.Enabled = true
			c.MQTT.StateTopic = ""
		}, wantErr: true},
		{name: "mqtt disabled without state topic", mutate: func(c *Config) { c.MQTT.StateTopic = "" }},
		{name: "invalid port low", mutate: func(c *Config) { c.API.Port = 0 }, wantErr: true},
		{name: "invalid port high", mutate: func(c *Config) { c.API.Port = 70000 }, wantErr: true},
		{name: "too few iterations", mutate: func(c *Config) { c.Security.Password.Iterations = 1000 }, wantErr: true},
		{name: "unknown digest", mutate: func(c *Config) { c.Security.Password.Digest = "md5" }, wantErr: true},
		{name: "sha512 digest", mutate: func(c *Config) { c.Security.Password.Digest = "sha512" }},
		{name: "short salt", mutate: func(c *Config) { c.Security.Password.SaltLength = 8 }, wantErr: true},
		{name: "zero token ttl", mutate: func(c *Config) { c.Security.Token.TTL = 0 }, wantErr: true},
		{name: "http mode without public domain", mutate: func(c *Config) { c.Delivery.Mode = DeliveryModeHTTP }, wantErr: true},
		{name: "http mode with public domain", mutate: func(c *Config) {
			c.Delivery.Mode = DeliveryModeHTTP
			c.Delivery.PublicDomain = "notify-a.internal"
		}},
		{name: "negative concurrency", mutate: func(c *Config) { c.Delivery.MaxConcurrency = -1 }, wantErr: true},
		{name: "unbounded concurrency", mutate: func(c *Config) { c.Delivery.MaxConcurrency = 0 }},
		{name: "unknown identity model", mutate: func(c *Config) { c.Identity.Model = "group" }, wantErr: true},
		{name: "device model without header", mutate: func(c *Config) {
			c.Identity.Model = IdentityModelDevice
			c.Identity.DeviceHeader = ""
		}, wantErr: true},
		{name: "user model without scopes", mutate: func(c *Config) { c.Identity.Scopes = nil }, wantErr: true},
		{name: "influx enabled without url", mutate: func(c *Config) { c.InfluxDB.Enabled = true }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_ValidateCollectsAllErrors(t *testing.T) {
	cfg := defaultConfig()
	cfg.API.Port = 0
	cfg.Delivery.Mode = "smoke"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() expected error, got nil")
	}
	for _, want := range []string{"api.port", "delivery.mode"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Validate() error = %v, want mention of %s", err, want)
		}
	}
}

func TestConfig_GetTimeouts(t *testing.T) {
	cfg := &Config{
		API: APIConfig{
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 45,
				Idle:  60,
			},
		},
		Security: SecurityConfig{Token: TokenConfig{TTL: 60}},
		Delivery: DeliveryConfig{Timeout: 5},
	}

	if got := cfg.GetReadTimeout().Seconds(); got != 30 {
		t.Errorf("GetReadTimeout() = %v, want 30", got)
	}
	if got := cfg.GetWriteTimeout().Seconds(); got != 45 {
		t.Errorf("GetWriteTimeout() = %v, want 45", got)
	}
	if got := cfg.GetIdleTimeout().Seconds(); got != 60 {
		t.Errorf("GetIdleTimeout() = %v, want 60", got)
	}
	if got := cfg.GetTokenTTL(); got != time.Hour {
		t.Errorf("GetTokenTTL() = %v, want 1h", got)
	}
	if got := cfg.GetDeliveryTimeout(); got != 5*time.Second {
		t.Errorf("GetDeliveryTimeout() = %v, want 5s", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	tests := []struct {
		env   string
		value string
		check func(*Config) bool
	}{
		{"GRAYLOGIC_DATABASE_PATH", "/custom/path.db", func(c *Config) bool { return c.Database.Path == "/custom/path.db" }},
		{"GRAYLOGIC_MQTT_HOST", "mqtt.example.com", func(c *Config) bool { return c.MQTT.Broker.Host == "mqtt.example.com" }},
		{"GRAYLOGIC_MQTT_PORT", "8883", func(c *Config) bool { return c.MQTT.Broker.Port == 8883 }},
		{"GRAYLOGIC_MQTT_ENABLED", "true", func(c *Config) bool { return c.MQTT.Enabled }},
		{"GRAYLOGIC_MQTT_USERNAME", "testuser", func(c *Config) bool { return c.MQTT.Auth.Username == "testuser" }},
		{"GRAYLOGIC_MQTT_PASSWORD", "testpass", func(c *Config) bool { return c.MQTT.Auth.Password == "testpass" }},
		{"GRAYLOGIC_API_HOST", "192.168.1.1", func(c *Config) bool { return c.API.Host == "192.168.1.1" }},
		{"GRAYLOGIC_API_PORT", "9090", func(c *Config) bool { return c.API.Port == 9090 }},
		{"GRAYLOGIC_API_PORT", "not-a-port", func(c *Config) bool { return c.API.Port == 3001 }},
		{"GRAYLOGIC_INFLUXDB_ENABLED", "yes", func(c *Config) bool { return !c.InfluxDB.Enabled }},
		{"GRAYLOGIC_INFLUXDB_TOKEN", "secret-token", func(c *Config) bool { return c.InfluxDB.Token == "secret-token" }},
		{"GRAYLOGIC_LOGGING_LEVEL", "debug", func(c *Config) bool { return c.Logging.Level == "debug" }},
		{"GRAYLOGIC_DELIVERY_MODE", "http", func(c *Config) bool { return c.Delivery.Mode == DeliveryModeHTTP }},
		{"GRAYLOGIC_DELIVERY_MANAGEMENT_KEY", "mgmt", func(c *Config) bool { return c.Delivery.ManagementKey == "mgmt" }},
		{"GRAYLOGIC_IDENTITY_MODEL", "device", func(c *Config) bool { return c.Identity.Model == IdentityModelDevice }},
		{"GRAYLOGIC_SERVICE_STAGE", "", func(c *Config) bool { return c.Service.Stage == "dev" }},
	}

	for _, tt := range tests {
		t.Run(tt.env+"="+tt.value, func(t *testing.T) {
			t.Setenv(tt.env, tt.value)
			cfg := defaultConfig()
			applyEnvOverrides(cfg)
			if !tt.check(cfg) {
				t.Errorf("%s=%q not applied as expected", tt.env, tt.value)
			}
		})
	}
}

func TestEnvOverrides_OneTargetEach(t *testing.T) {
	seen := map[string]bool{}
	for _, o := range envOverrides {
		n := 0
		for _, set := range []bool{o.str != nil, o.num != nil, o.flag != nil} {
			if set {
				n++
			}
		}
		if n != 1 {
			t.Errorf("%s binds %d fields, want 1", o.key, n)
		}
		if seen[o.key] {
			t.Errorf("%s listed twice", o.key)
		}
		seen[o.key] = true
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Database.Path == "" {
		t.Error("defaultConfig should have non-empty Database.Path")
	}
	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("defaultConfig MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}
	if cfg.API.Port != 3001 {
		t.Errorf("defaultConfig API.Port = %d, want 3001", cfg.API.Port)
	}
	if cfg.Delivery.LocalEndpoint != "http://localhost:3001" {
		t.Errorf("defaultConfig Delivery.LocalEndpoint = %q", cfg.Delivery.LocalEndpoint)
	}
	if pw := cfg.Security.Password; pw.SaltLength != 64 || pw.KeyLength != 256 || pw.Digest != "sha256" {
		t.Errorf("defaultConfig Security.Password = %+v", pw)
	}
}
