package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// validJWTSecret meets the 32-character minimum requirement.
const validJWTSecret = "test-secret-key-at-least-32-chars!"

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
site:
  id: "test-site"
database:
  path: "/tmp/test.db"
particle:
  api_url: "https://api.particle.io"
  request_timeout: 4s
  retry_count: 2
  retry_delay: 500ms
  throttle:
    enabled: true
    window: 5s
    cache_size: 4
door:
  device_name: "garage-door"
  poll_interval: 20s
security:
  jwt:
    secret: "test-secret-key-at-least-32-chars!"
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Site.ID != "test-site" {
		t.Errorf("Site.ID = %q, want %q", cfg.Site.ID, "test-site")
	}
	if cfg.Particle.RequestTimeout != 4*time.Second {
		t.Errorf("Particle.RequestTimeout = %v, want 4s", cfg.Particle.RequestTimeout)
	}
	if cfg.Particle.RetryCount != 2 {
		t.Errorf("Particle.RetryCount = %d, want 2", cfg.Particle.RetryCount)
	}
	if cfg.Particle.Throttle.Window != 5*time.Second {
		t.Errorf("Particle.Throttle.Window = %v, want 5s", cfg.Particle.Throttle.Window)
	}
	if cfg.Door.PollInterval != 20*time.Second {
		t.Errorf("Door.PollInterval = %v, want 20s", cfg.Door.PollInterval)
	}
	// Defaults survive partial files
	if cfg.Door.FastPollInterval != 11*time.Second {
		t.Errorf("Door.FastPollInterval = %v, want default 11s", cfg.Door.FastPollInterval)
	}
	if cfg.Door.ObstructionWindow != 32*time.Second {
		t.Errorf("Door.ObstructionWindow = %v, want default 32s", cfg.Door.ObstructionWindow)
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

func TestLoad_EnvOverrides(t *testing.T) {
	content := `
security:
  jwt:
    secret: "test-secret-key-at-least-32-chars!"
`
	t.Setenv("GRAYLOGIC_PARTICLE_TOKEN", strings.Repeat("a", 40))
	t.Setenv("GRAYLOGIC_PARTICLE_DEVICE_ID", strings.Repeat("d", 24))
	t.Setenv("GRAYLOGIC_MQTT_HOST", "broker.local")

	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Particle.AccessToken != strings.Repeat("a", 40) {
		t.Errorf("Particle.AccessToken not overridden from environment")
	}
	if cfg.Particle.DeviceID != strings.Repeat("d", 24) {
		t.Errorf("Particle.DeviceID not overridden from environment")
	}
	if cfg.MQTT.Broker.Host != "broker.local" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "broker.local")
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		cfg := defaultConfig()
		cfg.Security.JWT.Secret = validJWTSecret
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid defaults with secret",
			mutate:  func(*Config) {},
			wantErr: false,
		},
		{
			name:    "missing site id",
			mutate:  func(c *Config) { c.Site.ID = "" },
			wantErr: true,
		},
		{
			name:    "missing jwt secret",
			mutate:  func(c *Config) { c.Security.JWT.Secret = "" },
			wantErr: true,
		},
		{
			name:    "short jwt secret",
			mutate:  func(c *Config) { c.Security.JWT.Secret = "too-short" },
			wantErr: true,
		},
		{
			name:    "invalid qos",
			mutate:  func(c *Config) { c.MQTT.QoS = 3 },
			wantErr: true,
		},
		{
			name:    "invalid api port",
			mutate:  func(c *Config) { c.API.Port = 0 },
			wantErr: true,
		},
		{
			name:    "zero request timeout",
			mutate:  func(c *Config) { c.Particle.RequestTimeout = 0 },
			wantErr: true,
		},
		{
			name:    "negative retry count",
			mutate:  func(c *Config) { c.Particle.RetryCount = -1 },
			wantErr: true,
		},
		{
			name:    "zero max in flight",
			mutate:  func(c *Config) { c.Particle.MaxInFlight = 0 },
			wantErr: true,
		},
		{
			name:    "throttle enabled with zero window",
			mutate:  func(c *Config) { c.Particle.Throttle.Window = 0 },
			wantErr: true,
		},
		{
			name: "throttle disabled ignores window",
			mutate: func(c *Config) {
				c.Particle.Throttle.Enabled = false
				c.Particle.Throttle.Window = 0
			},
			wantErr: false,
		},
		{
			name:    "door enabled without device name",
			mutate:  func(c *Config) { c.Door.DeviceName = "" },
			wantErr: true,
		},
		{
			name: "door disabled skips door validation",
			mutate: func(c *Config) {
				c.Door.Enabled = false
				c.Door.DeviceName = ""
			},
			wantErr: false,
		},
		{
			name:    "zero obstruction window",
			mutate:  func(c *Config) { c.Door.ObstructionWindow = 0 },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_TimeoutHelpers(t *testing.T) {
	cfg := defaultConfig()
	if got := cfg.GetReadTimeout(); got != 30*time.Second {
		t.Errorf("GetReadTimeout() = %v, want 30s", got)
	}
	if got := cfg.GetIdleTimeout(); got != 60*time.Second {
		t.Errorf("GetIdleTimeout() = %v, want 60s", got)
	}
}
