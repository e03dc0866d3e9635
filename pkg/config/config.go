// pkg/config/config.go
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/opd-ai/go-dogfight/pkg/physics"
)

// Recorder drivers
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config is the full server configuration, read from a TOML file and then
// adjusted by DOGFIGHT_* environment variables.
type Config struct {
	Simulation SimulationConfig `toml:"simulation"`
	Network    NetworkConfig    `toml:"network"`
	Recorder   RecorderConfig   `toml:"recorder"`
	Breaker    BreakerConfig    `toml:"breaker"`
	Health     HealthConfig     `toml:"health"`
	Logging    LoggingConfig    `toml:"logging"`
}

// SimulationConfig holds the tick interval and arena limits.
type SimulationConfig struct {
	TickInterval time.Duration `toml:"tick_interval"`
	MaxHeading   int64         `toml:"max_heading"`
	MaxSpeed     int64         `toml:"max_speed"`
	MaxCoord     int64         `toml:"max_coord"`
	TurnRate     int64         `toml:"turn_rate"`
	AccelDecel   int64         `toml:"accel_decel"`
	Scenario     string        `toml:"scenario"` // optional YAML file of initial fighters
}

// NetworkConfig contains network-related configuration. A state update is
// one frame of at most 65535 bytes, which fits roughly 600 fighters; above
// that the server stops sending updates and tells clients so.
type NetworkConfig struct {
	ServerAddress     string        `toml:"server_address"`
	MaxClients        int           `toml:"max_clients"`
	TicksPerState     int           `toml:"ticks_per_state"`
	CommandsPerSecond int           `toml:"commands_per_second"`
	ReadTimeout       time.Duration `toml:"read_timeout"`
	WriteTimeout      time.Duration `toml:"write_timeout"`
	CommandTimeout    time.Duration `toml:"command_timeout"`
	WebsocketPath     string        `toml:"websocket_path"`
}

// RecorderConfig selects where snapshots are persisted.
type RecorderConfig struct {
	Enabled   bool   `toml:"enabled"`
	Driver    string `toml:"driver"`
	DSN       string `toml:"dsn"`
	QueueSize int    `toml:"queue_size"`
	// Resume starts the simulation from the latest recorded tick instead
	// of the scenario.
	Resume bool `toml:"resume"`
}

// BreakerConfig tunes the circuit breakers around dialing and storage.
type BreakerConfig struct {
	MaxRequests            uint32        `toml:"max_requests"`
	Interval               time.Duration `toml:"interval"`
	Timeout                time.Duration `toml:"timeout"`
	MaxConsecutiveFailures uint32        `toml:"max_consecutive_failures"`
}

// HealthConfig contains the address of the health and viewer HTTP server.
type HealthConfig struct {
	Address     string `toml:"address"`
	MaxMemoryMB int64  `toml:"max_memory_mb"`
	// StallTicks is how many tick intervals may pass without progress
	// before the simulation is reported unhealthy.
	StallTicks int `toml:"stall_ticks"`
}

// LoggingConfig holds the log level name.
type LoggingConfig struct {
	Level string `toml:"level"`
}

// LoadConfig reads path on top of the defaults and applies environment
// overrides.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg := DefaultConfig()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := ApplyEnvironmentOverrides(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SaveConfig writes cfg to path as TOML.
func SaveConfig(cfg *Config, path string) error {
	if cfg == nil {
		return errors.New("config is nil")
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	limits := physics.DefaultLimits()
	return &Config{
		Simulation: SimulationConfig{
			TickInterval: time.Second,
			MaxHeading:   int64(limits.MaxHeading),
			MaxSpeed:     int64(limits.MaxSpeed),
			MaxCoord:     int64(limits.MaxCoord),
			TurnRate:     int64(limits.TurnRate),
			AccelDecel:   int64(limits.AccelDecel),
		},
		Network: NetworkConfig{
			ServerAddress:     "localhost:4566",
			MaxClients:        32,
			TicksPerState:     1,
			CommandsPerSecond: 20,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      10 * time.Second,
			CommandTimeout:    5 * time.Second,
			WebsocketPath:     "/ws",
		},
		Recorder: RecorderConfig{
			Enabled:   false,
			Driver:    DriverSQLite,
			DSN:       "dogfight.db",
			QueueSize: 64,
		},
		Breaker: BreakerConfig{
			MaxRequests:            3,
			Interval:               60 * time.Second,
			Timeout:                30 * time.Second,
			MaxConsecutiveFailures: 5,
		},
		Health: HealthConfig{
			Address:     "localhost:8080",
			MaxMemoryMB: 512,
			StallTicks:  5,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Validate checks that the configuration can start a server.
func (c *Config) Validate() error {
	var errs []error

	s := c.Simulation
	if s.TickInterval <= 0 {
		errs = append(errs, fmt.Errorf("simulation.tick_interval must be positive, got %s", s.TickInterval))
	}
	for name, v := range map[string]int64{
		"max_heading": s.MaxHeading,
		"max_speed":   s.MaxSpeed,
		"max_coord":   s.MaxCoord,
		"turn_rate":   s.TurnRate,
		"accel_decel": s.AccelDecel,
	} {
		if v < 0 || v > int64(^uint32(0)) {
			errs = append(errs, fmt.Errorf("simulation.%s out of range: %d", name, v))
		}
	}
	if s.MaxHeading > physics.FullCircle-1 {
		errs = append(errs, fmt.Errorf("simulation.max_heading must be at most %d, got %d", physics.FullCircle-1, s.MaxHeading))
	}
	if s.TurnRate >= physics.FullCircle {
		errs = append(errs, fmt.Errorf("simulation.turn_rate must be below %d, got %d", physics.FullCircle, s.TurnRate))
	}
	if s.MaxCoord == 0 {
		errs = append(errs, errors.New("simulation.max_coord must be positive"))
	}

	n := c.Network
	if n.ServerAddress == "" {
		errs = append(errs, errors.New("network.server_address is required"))
	}
	if n.MaxClients <= 0 {
		errs = append(errs, fmt.Errorf("network.max_clients must be positive, got %d", n.MaxClients))
	}
	if n.TicksPerState <= 0 {
		errs = append(errs, fmt.Errorf("network.ticks_per_state must be positive, got %d", n.TicksPerState))
	}
	if n.CommandsPerSecond <= 0 {
		errs = append(errs, fmt.Errorf("network.commands_per_second must be positive, got %d", n.CommandsPerSecond))
	}

	if c.Recorder.Enabled {
		switch c.Recorder.Driver {
		case DriverSQLite, DriverPostgres:
		default:
			errs = append(errs, fmt.Errorf("recorder.driver %q is not supported", c.Recorder.Driver))
		}
		if c.Recorder.DSN == "" {
			errs = append(errs, errors.New("recorder.dsn is required when the recorder is enabled"))
		}
	} else if c.Recorder.Resume {
		errs = append(errs, errors.New("recorder.resume needs the recorder enabled"))
	}

	return errors.Join(errs...)
}

// Limits converts the simulation section into kinematic limits. It
// assumes Validate has passed.
func (s SimulationConfig) Limits() physics.Limits {
	return physics.Limits{
		MaxHeading: uint32(s.MaxHeading),
		MaxSpeed:   uint32(s.MaxSpeed),
		MaxCoord:   uint32(s.MaxCoord),
		TurnRate:   uint32(s.TurnRate),
		AccelDecel: uint32(s.AccelDecel),
	}
}
