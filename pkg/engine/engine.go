// pkg/engine/engine.go
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opd-ai/go-dogfight/pkg/entity"
	"github.com/opd-ai/go-dogfight/pkg/event"
	"github.com/opd-ai/go-dogfight/pkg/logging"
	"github.com/opd-ai/go-dogfight/pkg/physics"
	"github.com/opd-ai/go-dogfight/pkg/validation"
)

var (
	// ErrAlreadyRunning is returned by Run when another Run is active.
	ErrAlreadyRunning = errors.New("engine: tick loop already running")
	// ErrInvalidInterval is returned by Run for a non-positive interval.
	ErrInvalidInterval = errors.New("engine: tick interval must be positive")
)

// Engine owns the fighter registry and advances it one tick at a time.
// Tick, Snapshot and the direct setters serialize on EntityLock, so a
// snapshot is never taken halfway through a tick. Commands from other
// goroutines go through Submit and take effect at the next tick boundary.
type Engine struct {
	limits   physics.Limits
	model    *physics.Model
	gate     *validation.Gate
	registry *Registry

	EntityLock  sync.RWMutex
	currentTick uint64

	queue   commandQueue
	ended   atomic.Bool
	done    chan struct{}
	running atomic.Bool

	EventBus *event.Bus
	metrics  *engineMetrics
	logger   *logging.Logger
}

// NewEngine creates an empty engine bound to limits. A nil logger
// discards all output.
func NewEngine(limits physics.Limits, logger *logging.Logger) (*Engine, error) {
	if err := limits.Validate(); err != nil {
		return nil, fmt.Errorf("invalid limits: %w", err)
	}
	if logger == nil {
		logger = logging.Discard()
	}

	e := &Engine{
		limits:   limits,
		model:    physics.NewModel(limits),
		gate:     validation.NewGate(limits),
		registry: NewRegistry(),
		done:     make(chan struct{}),
		EventBus: event.NewEventBus(),
		logger:   logger.With("component", "engine"),
	}

	metrics, err := newEngineMetrics(e.FighterCount)
	if err != nil {
		e.logger.Warn(context.Background(), "metrics disabled", "reason", err.Error())
		metrics = noopEngineMetrics()
	}
	e.metrics = metrics
	return e, nil
}

// Limits returns the limits the engine was built with.
func (e *Engine) Limits() physics.Limits {
	return e.limits
}

// Gate returns the validation gate used for every mutation.
func (e *Engine) Gate() *validation.Gate {
	return e.gate
}

// AddFighter registers a copy of f. It returns false without changing
// anything if f is nil, any of its values is outside the limits, or the
// ID is already registered.
func (e *Engine) AddFighter(f *entity.Fighter) bool {
	if f == nil {
		e.publishFighter(nil, false)
		return false
	}

	stored, ok := e.validatedCopy(*f)
	if ok {
		e.EntityLock.Lock()
		ok = e.registry.Add(stored)
		e.EntityLock.Unlock()
	}

	e.publishFighter(f, ok)
	return ok
}

// GetFighter returns a copy of the fighter with the given ID.
func (e *Engine) GetFighter(id string) (entity.Fighter, bool) {
	e.EntityLock.RLock()
	defer e.EntityLock.RUnlock()

	f, ok := e.registry.Get(id)
	if !ok {
		return entity.Fighter{}, false
	}
	return *f, true
}

// FighterCount returns the number of registered fighters.
func (e *Engine) FighterCount() int {
	e.EntityLock.RLock()
	defer e.EntityLock.RUnlock()
	return e.registry.Len()
}

// SetInertialData applies the gate's SetInertialData to a registered
// fighter immediately. Use Submit while the tick loop is running.
func (e *Engine) SetInertialData(id string, heading, speed, x, y int) bool {
	return e.applyNow(Command{Kind: SetInertial, FighterID: id, Heading: heading, Speed: speed, X: x, Y: y})
}

// SetNewHeading applies the gate's SetNewHeading to a registered fighter
// immediately.
func (e *Engine) SetNewHeading(id string, desired int) bool {
	return e.applyNow(Command{Kind: SetHeading, FighterID: id, Heading: desired})
}

// Spawn registers a new fighter with the given inertial data. Nothing is
// registered if any value is out of range or the ID is taken.
func (e *Engine) Spawn(id string, heading, speed, x, y int) bool {
	return e.applyNow(Command{Kind: Spawn, FighterID: id, Heading: heading, Speed: speed, X: x, Y: y})
}

// validatedCopy rebuilds src through the gate so the copy satisfies the
// same bounds as a fighter created by Spawn.
func (e *Engine) validatedCopy(src entity.Fighter) (*entity.Fighter, bool) {
	f := entity.NewFighter(src.ID)
	if !e.gate.SetInertialData(f, int(src.CurrentHeading), int(src.CurrentSpeed), int(src.X), int(src.Y)) {
		return nil, false
	}
	if !e.gate.SetNewHeading(f, int(src.DesiredHeading)) {
		return nil, false
	}
	return f, true
}

func (e *Engine) applyNow(cmd Command) bool {
	e.EntityLock.Lock()
	ok := e.apply(cmd)
	tick := e.currentTick
	e.EntityLock.Unlock()

	e.publishCommand(context.Background(), cmd, tick, ok)
	return ok
}

// Submit queues cmd for the next tick boundary. The returned channel
// receives exactly one value once the command has been applied, or
// false if the tick loop stops first.
func (e *Engine) Submit(cmd Command) <-chan bool {
	return e.queue.push(cmd)
}

// PendingCommands returns the number of commands waiting for a tick.
func (e *Engine) PendingCommands() int {
	return e.queue.len()
}

// apply runs a single command through the gate. Caller holds EntityLock.
func (e *Engine) apply(cmd Command) bool {
	switch cmd.Kind {
	case SetHeading:
		f, ok := e.registry.Get(cmd.FighterID)
		if !ok {
			return false
		}
		return e.gate.SetNewHeading(f, cmd.Heading)
	case SetInertial:
		f, ok := e.registry.Get(cmd.FighterID)
		if !ok {
			return false
		}
		return e.gate.SetInertialData(f, cmd.Heading, cmd.Speed, cmd.X, cmd.Y)
	case Spawn:
		if _, exists := e.registry.Get(cmd.FighterID); exists {
			return false
		}
		f := entity.NewFighter(cmd.FighterID)
		if !e.gate.SetInertialData(f, cmd.Heading, cmd.Speed, cmd.X, cmd.Y) {
			return false
		}
		return e.registry.Add(f)
	default:
		return false
	}
}

type commandOutcome struct {
	pending pendingCommand
	ok      bool
}

// Tick applies queued commands and then moves every fighter exactly once.
func (e *Engine) Tick() {
	e.tick(context.Background())
}

func (e *Engine) tick(ctx context.Context) {
	start := time.Now()
	wantSnapshot := e.EventBus.HasSubscribers(event.TickCompleted)

	e.EntityLock.Lock()
	pending := e.queue.drain()
	outcomes := make([]commandOutcome, 0, len(pending))
	for _, p := range pending {
		outcomes = append(outcomes, commandOutcome{pending: p, ok: e.apply(p.cmd)})
	}

	e.registry.Each(func(f *entity.Fighter) {
		f.Move(e.model)
	})
	e.currentTick++
	tick := e.currentTick

	var snap *entity.Snapshot
	if wantSnapshot {
		snap = e.snapshotLocked()
	}
	e.EntityLock.Unlock()

	for _, o := range outcomes {
		o.pending.result <- o.ok
		// commands were applied before this tick's movement
		e.publishCommand(ctx, o.pending.cmd, tick-1, o.ok)
	}

	e.metrics.recordTick(ctx, time.Since(start))
	e.logger.Debug(ctx, "tick completed", "tick", tick, "commands", len(outcomes))

	if snap != nil {
		e.EventBus.Publish(event.NewTickEvent(e, snap))
	}
}

// CurrentTick returns the number of ticks completed.
func (e *Engine) CurrentTick() uint64 {
	e.EntityLock.RLock()
	defer e.EntityLock.RUnlock()
	return e.currentTick
}

// Snapshot returns a complete, ID-ordered copy of the current state.
func (e *Engine) Snapshot() *entity.Snapshot {
	e.EntityLock.RLock()
	defer e.EntityLock.RUnlock()
	return e.snapshotLocked()
}

func (e *Engine) snapshotLocked() *entity.Snapshot {
	return entity.NewSnapshot(e.currentTick, e.ended.Load(), e.registry.all())
}

// IsEnded reports whether End has been called.
func (e *Engine) IsEnded() bool {
	return e.ended.Load()
}

// End marks the simulation as finished and stops Run. Only the first call
// has any effect.
func (e *Engine) End() {
	if !e.ended.CompareAndSwap(false, true) {
		return
	}
	close(e.done)
	e.logger.Info(context.Background(), "simulation ended", "tick", e.CurrentTick())
	e.EventBus.Publish(event.NewLifecycleEvent(event.SimulationEnded, e, e.CurrentTick(), "ended"))
}

// Done is closed when the simulation ends.
func (e *Engine) Done() <-chan struct{} {
	return e.done
}

// Run ticks every interval until ctx is cancelled or End is called.
// Cancellation is only observed between ticks. Commands still queued when
// Run returns are resolved as rejected.
func (e *Engine) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return ErrInvalidInterval
	}
	if !e.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer e.running.Store(false)
	defer e.rejectPending(ctx)

	e.logger.Info(ctx, "simulation started", "interval", interval.String(), "fighters", e.FighterCount())
	e.EventBus.Publish(event.NewLifecycleEvent(event.SimulationStarted, e, e.CurrentTick(), interval.String()))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info(ctx, "tick loop stopped", "tick", e.CurrentTick(), "reason", ctx.Err().Error())
			return nil
		case <-e.done:
			return nil
		case <-ticker.C:
			if e.IsEnded() {
				return nil
			}
			e.tick(ctx)
		}
	}
}

func (e *Engine) rejectPending(ctx context.Context) {
	e.EntityLock.RLock()
	tick := e.currentTick
	e.EntityLock.RUnlock()

	for _, p := range e.queue.drain() {
		p.result <- false
		e.publishCommand(ctx, p.cmd, tick, false)
	}
}

func (e *Engine) publishFighter(f *entity.Fighter, added bool) {
	id := ""
	if f != nil {
		id = f.ID
	}
	t := event.FighterAdded
	if !added {
		t = event.FighterRejected
		e.logger.Debug(context.Background(), "fighter rejected", "fighter_id", id)
	}
	e.EventBus.Publish(event.NewFighterEvent(t, e, id))
}

func (e *Engine) publishCommand(ctx context.Context, cmd Command, tick uint64, ok bool) {
	e.metrics.recordCommand(ctx, ok)
	if !ok {
		e.logger.Debug(ctx, "command rejected", "kind", cmd.Kind.String(), "fighter_id", cmd.FighterID)
	}
	if cmd.Kind == Spawn {
		e.publishFighter(&entity.Fighter{ID: cmd.FighterID}, ok)
	}
	e.EventBus.Publish(event.NewCommandEvent(e, cmd.FighterID, cmd.Kind.String(), tick, ok))
}
