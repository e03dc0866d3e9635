package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/opd-ai/go-dogfight/pkg/config"
	"github.com/opd-ai/go-dogfight/pkg/engine"
	"github.com/opd-ai/go-dogfight/pkg/network"
	"github.com/opd-ai/go-dogfight/pkg/physics"
	"github.com/opd-ai/go-dogfight/pkg/recorder"
)

// TestHealthCheckIntegration tests the health check system with real server components
func TestHealthCheckIntegration(t *testing.T) {
	cfg := config.DefaultConfig()

	e, err := engine.NewEngine(physics.DefaultLimits(), nil)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}
	server := network.NewServer(e, cfg.Network, nil)

	rec, err := recorder.Open(config.RecorderConfig{Driver: config.DriverSQLite, DSN: ":memory:"}, nil, nil)
	if err != nil {
		t.Fatalf("Failed to open recorder: %v", err)
	}
	defer rec.Close()

	healthChecker := NewHealthChecker()
	healthChecker.AddCheck(NewSimulationHealthCheck(e, time.Minute))
	healthChecker.AddCheck(NewNetworkHealthCheck(server))
	healthChecker.AddCheck(NewDatabaseHealthCheck(rec))

	t.Run("health checks before server start", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()

		health := healthChecker.CheckHealth(ctx)

		if health.Checks["simulation"].Status != "healthy" {
			t.Errorf("Simulation should be healthy, got: %s", health.Checks["simulation"].Message)
		}

		// Network should be unhealthy (not listening yet)
		if health.Checks["network"].Status != "unhealthy" {
			t.Error("Network should be unhealthy before server start")
		}

		if health.Status != "unhealthy" {
			t.Error("Overall status should be unhealthy before server start")
		}
	})

	if err := server.Start("127.0.0.1:0"); err != nil {
		t.Fatalf("Failed to start test server: %v", err)
	}
	defer server.Stop()

	t.Run("health checks after server start", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()

		health := healthChecker.CheckHealth(ctx)

		for _, name := range []string{"simulation", "network", "recorder"} {
			if health.Checks[name].Status != "healthy" {
				t.Errorf("%s should be healthy after server start, got: %s", name, health.Checks[name].Message)
			}
		}

		if health.Status != "healthy" {
			t.Errorf("Overall status should be healthy after server start, got: %s", health.Status)
		}
	})

	t.Run("liveness endpoint", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/health", nil)
		w := httptest.NewRecorder()

		healthChecker.LivenessHandler(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("Expected status code %d, got %d", http.StatusOK, w.Code)
		}

		var response map[string]string
		if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}

		if response["status"] != "alive" {
			t.Errorf("Expected status 'alive', got %s", response["status"])
		}
	})

	t.Run("readiness endpoint", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/ready", nil)
		w := httptest.NewRecorder()

		healthChecker.ReadinessHandler(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("Expected status code %d, got %d", http.StatusOK, w.Code)
		}

		var response HealthStatus
		if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}

		if response.Status != "healthy" {
			t.Errorf("Expected status 'healthy', got %s", response.Status)
		}
	})

	t.Run("ended simulation is not ready", func(t *testing.T) {
		e.End()

		req := httptest.NewRequest("GET", "/ready", nil)
		w := httptest.NewRecorder()

		healthChecker.ReadinessHandler(w, req)

		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("Expected status code %d, got %d", http.StatusServiceUnavailable, w.Code)
		}
	})
}
