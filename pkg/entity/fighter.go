// pkg/entity/fighter.go
package entity

import (
	"github.com/opd-ai/go-dogfight/pkg/physics"
)

// Fighter is a mobile arena entity. Its fields are only ever written by
// the validation gate and the simulation engine; both keep every value
// inside the configured limits.
type Fighter struct {
	ID             string `json:"id"`
	CurrentHeading uint32 `json:"currentHeading"`
	DesiredHeading uint32 `json:"desiredHeading"`
	CurrentSpeed   uint32 `json:"currentSpeed"`
	X              uint32 `json:"x"`
	Y              uint32 `json:"y"`
}

// NewFighter creates a fighter at the origin, heading north, at rest.
func NewFighter(id string) *Fighter {
	return &Fighter{ID: id}
}

// KinematicState returns the fighter's motion fields as a physics.State.
func (f *Fighter) KinematicState() physics.State {
	return physics.State{
		CurrentHeading: f.CurrentHeading,
		DesiredHeading: f.DesiredHeading,
		Speed:          f.CurrentSpeed,
		X:              f.X,
		Y:              f.Y,
	}
}

// Move advances the fighter by one tick using the given model.
func (f *Fighter) Move(m *physics.Model) {
	next := m.Move(f.KinematicState())
	f.CurrentHeading = next.CurrentHeading
	f.DesiredHeading = next.DesiredHeading
	f.CurrentSpeed = next.Speed
	f.X = next.X
	f.Y = next.Y
}

// Turning reports whether the fighter is still steering toward a new heading.
func (f *Fighter) Turning() bool {
	return f.CurrentHeading != f.DesiredHeading
}
