// pkg/config/env.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// EnvPrefix is prepended to every override variable.
const EnvPrefix = "DOGFIGHT_"

// ApplyEnvironmentOverrides replaces config values with any DOGFIGHT_*
// variables that are set. Malformed values are reported, not ignored.
func ApplyEnvironmentOverrides(cfg *Config) error {
	var err error
	set := func(e error) {
		if err == nil && e != nil {
			err = e
		}
	}

	set(overrideDuration("TICK_INTERVAL", &cfg.Simulation.TickInterval))
	set(overrideInt64("MAX_HEADING", &cfg.Simulation.MaxHeading))
	set(overrideInt64("MAX_SPEED", &cfg.Simulation.MaxSpeed))
	set(overrideInt64("MAX_COORD", &cfg.Simulation.MaxCoord))
	set(overrideInt64("TURN_RATE", &cfg.Simulation.TurnRate))
	set(overrideInt64("ACCEL_DECEL", &cfg.Simulation.AccelDecel))
	overrideString("SCENARIO", &cfg.Simulation.Scenario)

	overrideString("SERVER_ADDR", &cfg.Network.ServerAddress)
	set(overrideInt("MAX_CLIENTS", &cfg.Network.MaxClients))
	set(overrideInt("TICKS_PER_STATE", &cfg.Network.TicksPerState))
	set(overrideInt("COMMANDS_PER_SECOND", &cfg.Network.CommandsPerSecond))
	set(overrideDuration("READ_TIMEOUT", &cfg.Network.ReadTimeout))
	set(overrideDuration("WRITE_TIMEOUT", &cfg.Network.WriteTimeout))
	set(overrideDuration("COMMAND_TIMEOUT", &cfg.Network.CommandTimeout))
	overrideString("WEBSOCKET_PATH", &cfg.Network.WebsocketPath)

	set(overrideBool("RECORDER_ENABLED", &cfg.Recorder.Enabled))
	overrideString("RECORDER_DRIVER", &cfg.Recorder.Driver)
	overrideString("RECORDER_DSN", &cfg.Recorder.DSN)
	set(overrideInt("RECORDER_QUEUE_SIZE", &cfg.Recorder.QueueSize))
	set(overrideBool("RECORDER_RESUME", &cfg.Recorder.Resume))

	set(overrideUint32("BREAKER_MAX_REQUESTS", &cfg.Breaker.MaxRequests))
	set(overrideDuration("BREAKER_INTERVAL", &cfg.Breaker.Interval))
	set(overrideDuration("BREAKER_TIMEOUT", &cfg.Breaker.Timeout))
	set(overrideUint32("BREAKER_MAX_FAILURES", &cfg.Breaker.MaxConsecutiveFailures))

	overrideString("HEALTH_ADDR", &cfg.Health.Address)
	set(overrideInt64("HEALTH_MAX_MEMORY_MB", &cfg.Health.MaxMemoryMB))
	set(overrideInt("HEALTH_STALL_TICKS", &cfg.Health.StallTicks))
	overrideString("LOG_LEVEL", &cfg.Logging.Level)

	return err
}

func lookup(name string) (string, bool) {
	v, ok := os.LookupEnv(EnvPrefix + name)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

func overrideString(name string, dst *string) {
	if v, ok := lookup(name); ok {
		*dst = v
	}
}

func overrideInt(name string, dst *int) error {
	v, ok := lookup(name)
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
	}
	*dst = n
	return nil
}

func overrideInt64(name string, dst *int64) error {
	v, ok := lookup(name)
	if !ok {
		return nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
	}
	*dst = n
	return nil
}

func overrideUint32(name string, dst *uint32) error {
	v, ok := lookup(name)
	if !ok {
		return nil
	}
	n, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
	}
	*dst = uint32(n)
	return nil
}

func overrideBool(name string, dst *bool) error {
	v, ok := lookup(name)
	if !ok {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
	}
	*dst = b
	return nil
}

func overrideDuration(name string, dst *time.Duration) error {
	v, ok := lookup(name)
	if !ok {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
	}
	*dst = d
	return nil
}
