// Package health provides liveness and readiness endpoints for the dogfight
// server.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"runtime"
	"sort"
	"sync"
	"time"
)

// HealthCheck defines the interface for individual health checks.
type HealthCheck interface {
	// Name returns the unique name of this health check
	Name() string
	// Check performs the health check and returns an error if unhealthy
	Check(ctx context.Context) error
}

// HealthStatus represents the overall health status of the application.
type HealthStatus struct {
	Status string                     `json:"status"`
	Checks map[string]ComponentHealth `json:"checks"`
}

// ComponentHealth represents the health status of an individual component.
type ComponentHealth struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
)

// HealthChecker manages and executes health checks for the application.
type HealthChecker struct {
	checks map[string]HealthCheck
	mu     sync.RWMutex
}

// NewHealthChecker creates a new health checker instance.
func NewHealthChecker() *HealthChecker {
	return &HealthChecker{
		checks: make(map[string]HealthCheck),
	}
}

// AddCheck registers a health check, replacing any check with the same
// name.
func (hc *HealthChecker) AddCheck(check HealthCheck) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.checks[check.Name()] = check
}

// RemoveCheck removes a health check by name.
func (hc *HealthChecker) RemoveCheck(name string) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	delete(hc.checks, name)
}

// Names returns the registered check names in order.
func (hc *HealthChecker) Names() []string {
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	names := make([]string, 0, len(hc.checks))
	for name := range hc.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CheckHealth executes all registered health checks. The overall status is
// healthy only if every check passes.
func (hc *HealthChecker) CheckHealth(ctx context.Context) HealthStatus {
	hc.mu.RLock()
	defer hc.mu.RUnlock()

	status := HealthStatus{
		Status: StatusHealthy,
		Checks: make(map[string]ComponentHealth, len(hc.checks)),
	}

	for name, check := range hc.checks {
		if err := check.Check(ctx); err != nil {
			status.Status = StatusUnhealthy
			status.Checks[name] = ComponentHealth{
				Status:  StatusUnhealthy,
				Message: err.Error(),
			}
		} else {
			status.Checks[name] = ComponentHealth{
				Status: StatusHealthy,
			}
		}
	}

	return status
}

// LivenessHandler returns 200 as long as the process can serve HTTP.
func (hc *HealthChecker) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	response := map[string]string{"status": "alive"}
	json.NewEncoder(w).Encode(response)
}

// ReadinessHandler runs every check and returns 200 when all pass, 503
// otherwise.
func (hc *HealthChecker) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	health := hc.CheckHealth(ctx)

	w.Header().Set("Content-Type", "application/json")

	if health.Status == StatusHealthy {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	json.NewEncoder(w).Encode(health)
}

// Simulation is the part of the engine the simulation check observes.
type Simulation interface {
	CurrentTick() uint64
	IsEnded() bool
}

// SimulationHealthCheck fails when the simulation has ended or its tick
// counter has not moved for longer than the stall window.
type SimulationHealthCheck struct {
	sim        Simulation
	stallAfter time.Duration
	now        func() time.Time

	mu       sync.Mutex
	lastTick uint64
	lastMove time.Time
}

// NewSimulationHealthCheck creates a simulation check. A non-positive
// stallAfter disables stall detection.
func NewSimulationHealthCheck(sim Simulation, stallAfter time.Duration) *SimulationHealthCheck {
	return &SimulationHealthCheck{
		sim:        sim,
		stallAfter: stallAfter,
		now:        time.Now,
		lastTick:   sim.CurrentTick(),
		lastMove:   time.Now(),
	}
}

// Name returns the name of this health check.
func (s *SimulationHealthCheck) Name() string {
	return "simulation"
}

// Check verifies the simulation is still ticking.
func (s *SimulationHealthCheck) Check(ctx context.Context) error {
	if s.sim.IsEnded() {
		return errors.New("simulation has ended")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	tick := s.sim.CurrentTick()
	if tick != s.lastTick {
		s.lastTick = tick
		s.lastMove = now
		return nil
	}
	if s.stallAfter > 0 && now.Sub(s.lastMove) > s.stallAfter {
		return fmt.Errorf("simulation stalled at tick %d for %s", tick, now.Sub(s.lastMove).Round(time.Millisecond))
	}
	return nil
}

// Listener is anything that reports the address it accepts connections on.
type Listener interface {
	Addr() net.Addr
}

// NetworkHealthCheck implements HealthCheck for the client listener.
type NetworkHealthCheck struct {
	listener Listener
}

// NewNetworkHealthCheck creates a health check for network connectivity.
func NewNetworkHealthCheck(listener Listener) *NetworkHealthCheck {
	return &NetworkHealthCheck{listener: listener}
}

// Name returns the name of this health check.
func (n *NetworkHealthCheck) Name() string {
	return "network"
}

// Check verifies that the network listener is active.
func (n *NetworkHealthCheck) Check(ctx context.Context) error {
	if n.listener == nil || n.listener.Addr() == nil {
		return errors.New("network listener is not active")
	}
	return nil
}

// Pinger is implemented by the snapshot recorder.
type Pinger interface {
	Ping(ctx context.Context) error
}

// DatabaseHealthCheck pings the recorder database.
type DatabaseHealthCheck struct {
	db Pinger
}

func NewDatabaseHealthCheck(db Pinger) *DatabaseHealthCheck {
	return &DatabaseHealthCheck{db: db}
}

func (d *DatabaseHealthCheck) Name() string {
	return "recorder"
}

func (d *DatabaseHealthCheck) Check(ctx context.Context) error {
	if err := d.db.Ping(ctx); err != nil {
		return fmt.Errorf("recorder database unreachable: %w", err)
	}
	return nil
}

// MemoryHealthCheck implements HealthCheck for memory usage monitoring.
type MemoryHealthCheck struct {
	maxMemoryMB    int64
	getMemoryUsage func() int64
}

// NewMemoryHealthCheck creates a health check for memory usage. A nil
// getMemoryUsage reads the heap size from the runtime.
func NewMemoryHealthCheck(maxMemoryMB int64, getMemoryUsage func() int64) *MemoryHealthCheck {
	if getMemoryUsage == nil {
		getMemoryUsage = HeapAllocMB
	}
	return &MemoryHealthCheck{
		maxMemoryMB:    maxMemoryMB,
		getMemoryUsage: getMemoryUsage,
	}
}

// Name returns the name of this health check.
func (m *MemoryHealthCheck) Name() string {
	return "memory"
}

// Check verifies that memory usage is within acceptable limits.
func (m *MemoryHealthCheck) Check(ctx context.Context) error {
	currentMB := m.getMemoryUsage()
	if currentMB > m.maxMemoryMB {
		return fmt.Errorf("memory usage %dMB exceeds limit %dMB", currentMB, m.maxMemoryMB)
	}
	return nil
}

// HeapAllocMB returns the allocated heap in megabytes.
func HeapAllocMB() int64 {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return int64(m.Alloc / 1024 / 1024)
}
