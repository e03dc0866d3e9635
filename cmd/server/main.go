// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/opd-ai/go-dogfight/pkg/breaker"
	"github.com/opd-ai/go-dogfight/pkg/config"
	"github.com/opd-ai/go-dogfight/pkg/engine"
	"github.com/opd-ai/go-dogfight/pkg/health"
	"github.com/opd-ai/go-dogfight/pkg/logging"
	"github.com/opd-ai/go-dogfight/pkg/network"
	"github.com/opd-ai/go-dogfight/pkg/recorder"
	"github.com/opd-ai/go-dogfight/pkg/scenario"
)

func main() {
	configPath := flag.String("config", "dogfight.toml", "Path to configuration file")
	createDefault := flag.Bool("default", false, "Create default configuration file")
	resume := flag.Bool("resume", false, "Continue from the latest recorded tick (needs the recorder)")
	flag.Parse()

	ctx := context.Background()

	if *createDefault {
		logger := logging.NewLogger()
		if err := config.SaveConfig(config.DefaultConfig(), *configPath); err != nil {
			logger.Error(ctx, "Failed to create default configuration", err,
				"config_path", *configPath,
			)
			os.Exit(1)
		}
		logger.Info(ctx, "Created default configuration file",
			"config_path", *configPath,
		)
		return
	}

	cfg, err := loadConfig(*configPath)
	logger := logging.NewLoggerWithLevel(cfg.Logging.Level)
	if err != nil {
		logger.Error(ctx, "Failed to load configuration", err, "config_path", *configPath)
		os.Exit(1)
	}
	if *resume {
		cfg.Recorder.Resume = true
	}
	if err := cfg.Validate(); err != nil {
		logger.Error(ctx, "Invalid configuration", err, "config_path", *configPath)
		os.Exit(1)
	}

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error(ctx, "Server failed", err)
		os.Exit(1)
	}
}

// freshEngine creates an empty engine and applies the configured scenario.
func freshEngine(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*engine.Engine, error) {
	e, err := engine.NewEngine(cfg.Simulation.Limits(), logger.With("component", "engine"))
	if err != nil {
		return nil, err
	}

	if cfg.Simulation.Scenario != "" {
		sc, err := scenario.Load(cfg.Simulation.Scenario)
		if err != nil {
			return nil, err
		}
		added, err := sc.Apply(e)
		if err != nil {
			logger.Warn(ctx, "Scenario entries rejected", "scenario", sc.Name, "error", err.Error())
		}
		logger.Info(ctx, "Scenario loaded", "scenario", sc.Name, "fighters", added)
	}
	return e, nil
}

// loadConfig returns the defaults with environment overrides when path
// does not exist. The returned config is never nil.
func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		cfg := config.DefaultConfig()
		return cfg, config.ApplyEnvironmentOverrides(cfg)
	}
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return config.DefaultConfig(), err
	}
	return cfg, nil
}

func run(ctx context.Context, cfg *config.Config, logger *logging.Logger) error {
	healthChecker := health.NewHealthChecker()

	var rec *recorder.Recorder
	if cfg.Recorder.Enabled {
		brk := breaker.New("recorder", cfg.Breaker, logger)
		var err error
		rec, err = recorder.Open(cfg.Recorder, brk, logger.With("component", "recorder"))
		if err != nil {
			return err
		}
		defer rec.Close()
		healthChecker.AddCheck(health.NewDatabaseHealthCheck(rec))
		logger.Info(ctx, "Recording snapshots", "driver", cfg.Recorder.Driver, "dsn", cfg.Recorder.DSN)
	}

	var e *engine.Engine
	if rec != nil && cfg.Recorder.Resume {
		var err error
		if e, err = resumeEngine(ctx, rec, cfg.Simulation.Limits(), logger); err != nil {
			return err
		}
	}
	if e == nil {
		var err error
		if e, err = freshEngine(ctx, cfg, logger); err != nil {
			return err
		}
	}
	if rec != nil {
		rec.Attach(e.EventBus)
	}

	server := network.NewServer(e, cfg.Network, logger.With("component", "network"))
	if err := server.Start(cfg.Network.ServerAddress); err != nil {
		return err
	}
	defer server.Stop()

	feed := network.NewFeed(e, cfg.Network, logger.With("component", "feed"))
	defer feed.Close()

	stallAfter := time.Duration(cfg.Health.StallTicks) * cfg.Simulation.TickInterval
	healthChecker.AddCheck(health.NewSimulationHealthCheck(e, stallAfter))
	healthChecker.AddCheck(health.NewNetworkHealthCheck(server))
	healthChecker.AddCheck(health.NewMemoryHealthCheck(cfg.Health.MaxMemoryMB, nil))

	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthChecker.LivenessHandler)
	mux.HandleFunc("/ready", healthChecker.ReadinessHandler)
	mux.Handle(cfg.Network.WebsocketPath, feed)

	httpServer := &http.Server{
		Addr:        cfg.Health.Address,
		Handler:     mux,
		ReadTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info(ctx, "Starting health check server", "address", cfg.Health.Address)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(ctx, "Health check server failed", err)
		}
	}()

	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := e.Run(runCtx, cfg.Simulation.TickInterval)
	logger.Info(ctx, "Shutting down server", "tick", e.CurrentTick())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "Health check server shutdown failed", err)
	}
	return err
}
