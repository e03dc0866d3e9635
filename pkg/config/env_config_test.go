// pkg/config/env_config_test.go
package config

import (
	"testing"
	"time"
)

func TestApplyEnvironmentOverrides(t *testing.T) {
	t.Setenv("DOGFIGHT_SERVER_ADDR", "testhost:9999")
	t.Setenv("DOGFIGHT_MAX_CLIENTS", "100")
	t.Setenv("DOGFIGHT_TICK_INTERVAL", "100ms")
	t.Setenv("DOGFIGHT_TURN_RATE", "12")
	t.Setenv("DOGFIGHT_RECORDER_ENABLED", "true")
	t.Setenv("DOGFIGHT_RECORDER_DSN", "file::memory:")
	t.Setenv("DOGFIGHT_LOG_LEVEL", "debug")

	cfg := DefaultConfig()
	if err := ApplyEnvironmentOverrides(cfg); err != nil {
		t.Fatalf("ApplyEnvironmentOverrides failed: %v", err)
	}

	if cfg.Network.ServerAddress != "testhost:9999" {
		t.Errorf("Expected ServerAddress 'testhost:9999', got '%s'", cfg.Network.ServerAddress)
	}
	if cfg.Network.MaxClients != 100 {
		t.Errorf("Expected MaxClients 100, got %d", cfg.Network.MaxClients)
	}
	if cfg.Simulation.TickInterval != 100*time.Millisecond {
		t.Errorf("Expected TickInterval 100ms, got %v", cfg.Simulation.TickInterval)
	}
	if cfg.Simulation.TurnRate != 12 {
		t.Errorf("Expected TurnRate 12, got %d", cfg.Simulation.TurnRate)
	}
	if !cfg.Recorder.Enabled || cfg.Recorder.DSN != "file::memory:" {
		t.Errorf("Recorder overrides not applied: %+v", cfg.Recorder)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Expected log level 'debug', got '%s'", cfg.Logging.Level)
	}
}

// Every tunable that has a toml key can also be set from the environment.
func TestApplyEnvironmentOverrides_RecorderBreakerHealth(t *testing.T) {
	t.Setenv("DOGFIGHT_COMMAND_TIMEOUT", "750ms")
	t.Setenv("DOGFIGHT_WEBSOCKET_PATH", "/feed")
	t.Setenv("DOGFIGHT_RECORDER_QUEUE_SIZE", "256")
	t.Setenv("DOGFIGHT_RECORDER_RESUME", "true")
	t.Setenv("DOGFIGHT_BREAKER_MAX_REQUESTS", "7")
	t.Setenv("DOGFIGHT_BREAKER_INTERVAL", "2m")
	t.Setenv("DOGFIGHT_BREAKER_TIMEOUT", "45s")
	t.Setenv("DOGFIGHT_BREAKER_MAX_FAILURES", "9")
	t.Setenv("DOGFIGHT_HEALTH_MAX_MEMORY_MB", "2048")
	t.Setenv("DOGFIGHT_HEALTH_STALL_TICKS", "20")

	cfg := DefaultConfig()
	if err := ApplyEnvironmentOverrides(cfg); err != nil {
		t.Fatalf("ApplyEnvironmentOverrides failed: %v", err)
	}

	if cfg.Network.CommandTimeout != 750*time.Millisecond {
		t.Errorf("CommandTimeout = %v, want 750ms", cfg.Network.CommandTimeout)
	}
	if cfg.Network.WebsocketPath != "/feed" {
		t.Errorf("WebsocketPath = %q, want /feed", cfg.Network.WebsocketPath)
	}
	if cfg.Recorder.QueueSize != 256 || !cfg.Recorder.Resume {
		t.Errorf("recorder overrides not applied: %+v", cfg.Recorder)
	}
	want := BreakerConfig{
		MaxRequests:            7,
		Interval:               2 * time.Minute,
		Timeout:                45 * time.Second,
		MaxConsecutiveFailures: 9,
	}
	if cfg.Breaker != want {
		t.Errorf("Breaker = %+v, want %+v", cfg.Breaker, want)
	}
	if cfg.Health.MaxMemoryMB != 2048 || cfg.Health.StallTicks != 20 {
		t.Errorf("health overrides not applied: %+v", cfg.Health)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("overridden config should validate: %v", err)
	}
}

func TestApplyEnvironmentOverrides_EmptyValuesIgnored(t *testing.T) {
	t.Setenv("DOGFIGHT_SERVER_ADDR", "")
	t.Setenv("DOGFIGHT_MAX_CLIENTS", "")

	cfg := DefaultConfig()
	if err := ApplyEnvironmentOverrides(cfg); err != nil {
		t.Fatalf("ApplyEnvironmentOverrides failed: %v", err)
	}
	if cfg.Network.ServerAddress != DefaultConfig().Network.ServerAddress {
		t.Errorf("empty variable replaced server address: %q", cfg.Network.ServerAddress)
	}
}

func TestApplyEnvironmentOverrides_InvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"invalid int", "DOGFIGHT_MAX_CLIENTS", "lots"},
		{"invalid int64", "DOGFIGHT_MAX_SPEED", "fast"},
		{"invalid bool", "DOGFIGHT_RECORDER_ENABLED", "maybe"},
		{"invalid duration", "DOGFIGHT_READ_TIMEOUT", "forever"},
		{"invalid command timeout", "DOGFIGHT_COMMAND_TIMEOUT", "soon"},
		{"negative uint32", "DOGFIGHT_BREAKER_MAX_REQUESTS", "-1"},
		{"uint32 overflow", "DOGFIGHT_BREAKER_MAX_FAILURES", "4294967296"},
		{"invalid memory limit", "DOGFIGHT_HEALTH_MAX_MEMORY_MB", "1GB"},
		{"invalid resume flag", "DOGFIGHT_RECORDER_RESUME", "later"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if err := ApplyEnvironmentOverrides(DefaultConfig()); err == nil {
				t.Errorf("expected error for %s=%q", tt.key, tt.value)
			}
		})
	}
}
