// pkg/event/payloads.go
package event

import "github.com/opd-ai/go-dogfight/pkg/entity"

// FighterEvent is published when a fighter is added or rejected.
type FighterEvent struct {
	BaseEvent
	FighterID string
}

// NewFighterEvent creates a new fighter event
func NewFighterEvent(eventType Type, source interface{}, fighterID string) *FighterEvent {
	return &FighterEvent{
		BaseEvent: BaseEvent{EventType: eventType, Source: source},
		FighterID: fighterID,
	}
}

// CommandEvent reports the outcome of a queued command.
type CommandEvent struct {
	BaseEvent
	FighterID string
	Kind      string
	Tick      uint64
}

// NewCommandEvent creates CommandApplied or CommandRejected depending on accepted.
func NewCommandEvent(source interface{}, fighterID, kind string, tick uint64, accepted bool) *CommandEvent {
	t := CommandRejected
	if accepted {
		t = CommandApplied
	}
	return &CommandEvent{
		BaseEvent: BaseEvent{EventType: t, Source: source},
		FighterID: fighterID,
		Kind:      kind,
		Tick:      tick,
	}
}

// Accepted reports whether the command was applied.
func (e *CommandEvent) Accepted() bool {
	return e.EventType == CommandApplied
}

// TickEvent is published after every completed tick. Snapshot is the
// state at the end of that tick and must not be modified by handlers.
type TickEvent struct {
	BaseEvent
	Tick     uint64
	Snapshot *entity.Snapshot
}

// NewTickEvent creates a new tick event
func NewTickEvent(source interface{}, snap *entity.Snapshot) *TickEvent {
	return &TickEvent{
		BaseEvent: BaseEvent{EventType: TickCompleted, Source: source},
		Tick:      snap.Tick,
		Snapshot:  snap,
	}
}

// LifecycleEvent marks the start or end of a simulation run, or a client
// joining or leaving.
type LifecycleEvent struct {
	BaseEvent
	Tick   uint64
	Detail string
}

// NewLifecycleEvent creates a new lifecycle event
func NewLifecycleEvent(eventType Type, source interface{}, tick uint64, detail string) *LifecycleEvent {
	return &LifecycleEvent{
		BaseEvent: BaseEvent{EventType: eventType, Source: source},
		Tick:      tick,
		Detail:    detail,
	}
}
