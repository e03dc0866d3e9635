// pkg/physics/kinematics.go
package physics

import (
	"fmt"
	"math"
)

// Heading arithmetic is performed in the group Z/360.
const (
	FullCircle = 360
	HalfCircle = 180
)

// Limits bounds the kinematic state of every fighter in an arena.
// All values are supplied once when the engine is built.
type Limits struct {
	MaxHeading uint32 `json:"maxHeading"`
	MaxSpeed   uint32 `json:"maxSpeed"`
	MaxCoord   uint32 `json:"maxCoord"`
	TurnRate   uint32 `json:"turnRate"`
	AccelDecel uint32 `json:"accelDecel"`
}

// DefaultLimits returns the arena limits used when nothing is configured.
func DefaultLimits() Limits {
	return Limits{
		MaxHeading: 359,
		MaxSpeed:   838,
		MaxCoord:   375500,
		TurnRate:   10,
		AccelDecel: 5,
	}
}

// Validate reports whether the limits describe a usable arena.
func (l Limits) Validate() error {
	if l.MaxHeading >= FullCircle {
		return fmt.Errorf("max heading %d must be below %d", l.MaxHeading, FullCircle)
	}
	if l.TurnRate >= FullCircle {
		return fmt.Errorf("turn rate %d must be below %d", l.TurnRate, FullCircle)
	}
	if l.MaxCoord == 0 {
		return fmt.Errorf("max coordinate must be positive")
	}
	return nil
}

// State is the per-fighter input and output of a single tick.
type State struct {
	CurrentHeading uint32
	DesiredHeading uint32
	Speed          uint32
	X              uint32
	Y              uint32
}

// Model advances a single fighter by one tick. It holds no per-entity
// state and is safe to share between fighters.
type Model struct {
	limits Limits
}

// NewModel creates a kinematic model bound to the given limits.
func NewModel(limits Limits) *Model {
	return &Model{limits: limits}
}

// Limits returns the limits the model was built with.
func (m *Model) Limits() Limits {
	return m.limits
}

// Move computes the next tick's state. Heading and speed are updated
// first; the position update uses the new values.
func (m *Model) Move(s State) State {
	if s.DesiredHeading != s.CurrentHeading {
		s.CurrentHeading = m.turn(s.CurrentHeading, s.DesiredHeading)
		s.Speed = m.decelerate(s.Speed)
	} else {
		s.Speed = m.accelerate(s.Speed)
	}

	s.X = Clamp(int64(s.X)+XComponent(s.Speed, s.CurrentHeading), m.limits.MaxCoord)
	s.Y = Clamp(int64(s.Y)+YComponent(s.Speed, s.CurrentHeading), m.limits.MaxCoord)
	return s
}

// turn steps current toward desired by at most the turn rate.
//
// The right-turn branch compares (current + desired) mod 360 against the
// turn rate rather than the true clockwise distance. Observed behavior is
// kept as is until the intended rule is confirmed.
func (m *Model) turn(current, desired uint32) uint32 {
	rate := int64(m.limits.TurnRate)

	left := LeftTurn(current, desired)
	if left > HalfCircle {
		right := wrapHeading(int64(current) + int64(desired))
		if right <= uint32(rate) {
			return desired
		}
		return wrapHeading(int64(current) + rate)
	}

	if left <= uint32(rate) {
		return desired
	}
	return wrapHeading(int64(current) - rate)
}

func (m *Model) accelerate(speed uint32) uint32 {
	next := uint64(speed) + uint64(m.limits.AccelDecel)
	if next > uint64(m.limits.MaxSpeed) {
		return m.limits.MaxSpeed
	}
	return uint32(next)
}

func (m *Model) decelerate(speed uint32) uint32 {
	if speed < m.limits.AccelDecel {
		return 0
	}
	return speed - m.limits.AccelDecel
}

// LeftTurn returns the degrees a counterclockwise turn needs to get from
// current to desired.
func LeftTurn(current, desired uint32) uint32 {
	return wrapHeading(int64(current) - int64(desired))
}

// wrapHeading maps any signed degree value into [0, 359].
func wrapHeading(deg int64) uint32 {
	deg %= FullCircle
	if deg < 0 {
		deg += FullCircle
	}
	return uint32(deg)
}

// XComponent returns the east-west part of speed at heading, rounded half
// away from zero. Heading 0 is north and 90 is east.
func XComponent(speed, heading uint32) int64 {
	return int64(math.Round(float64(speed) * math.Sin(toRadians(heading))))
}

// YComponent returns the north-south part of speed at heading.
func YComponent(speed, heading uint32) int64 {
	return int64(math.Round(float64(speed) * math.Cos(toRadians(heading))))
}

func toRadians(deg uint32) float64 {
	return float64(deg) * math.Pi / HalfCircle
}

// Clamp saturates v into [0, max]. It never wraps.
func Clamp(v int64, max uint32) uint32 {
	if v < 0 {
		return 0
	}
	if v > int64(max) {
		return max
	}
	return uint32(v)
}
