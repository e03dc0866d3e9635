// pkg/engine/commands.go
package engine

import (
	"sync"
)

// CommandKind selects what a queued command does.
type CommandKind int

const (
	// SetHeading changes only the desired heading.
	SetHeading CommandKind = iota
	// SetInertial overwrites heading, speed and position.
	SetInertial
	// Spawn registers a new fighter with the given inertial data.
	Spawn
)

// String returns the wire name of the kind.
func (k CommandKind) String() string {
	switch k {
	case SetHeading:
		return "set_heading"
	case SetInertial:
		return "set_inertial"
	case Spawn:
		return "spawn"
	default:
		return "unknown"
	}
}

// Command is an external request to change the simulation. Values are
// signed because they come straight off the wire; the gate rejects
// anything out of range. SetHeading uses only FighterID and Heading.
type Command struct {
	Kind      CommandKind
	FighterID string
	Heading   int
	Speed     int
	X         int
	Y         int
}

type pendingCommand struct {
	cmd    Command
	result chan bool
}

// commandQueue collects commands between ticks.
type commandQueue struct {
	mu      sync.Mutex
	pending []pendingCommand
}

func (q *commandQueue) push(cmd Command) <-chan bool {
	result := make(chan bool, 1)
	q.mu.Lock()
	q.pending = append(q.pending, pendingCommand{cmd: cmd, result: result})
	q.mu.Unlock()
	return result
}

// drain removes and returns everything queued so far, in arrival order.
func (q *commandQueue) drain() []pendingCommand {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.pending
	q.pending = nil
	return out
}

func (q *commandQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}
