// pkg/validation/gate.go
package validation

import (
	"github.com/opd-ai/go-dogfight/pkg/entity"
	"github.com/opd-ai/go-dogfight/pkg/physics"
)

// Gate is the only sanctioned way to change a fighter's motion state from
// outside the engine. Every setter is all-or-nothing: on failure the
// fighter is left exactly as it was.
type Gate struct {
	limits physics.Limits
}

// NewGate creates a gate enforcing the given limits.
func NewGate(limits physics.Limits) *Gate {
	return &Gate{limits: limits}
}

// Limits returns the limits the gate enforces.
func (g *Gate) Limits() physics.Limits {
	return g.limits
}

// SetInertialData overwrites heading, speed and position. The desired
// heading is reset to the new current heading.
func (g *Gate) SetInertialData(f *entity.Fighter, heading, speed, x, y int) bool {
	if f == nil {
		return false
	}
	if !g.ValidHeading(heading) ||
		!within(speed, g.limits.MaxSpeed) ||
		!within(x, g.limits.MaxCoord) ||
		!within(y, g.limits.MaxCoord) {
		return false
	}

	f.CurrentHeading = uint32(heading)
	f.DesiredHeading = uint32(heading)
	f.CurrentSpeed = uint32(speed)
	f.X = uint32(x)
	f.Y = uint32(y)
	return true
}

// SetNewHeading overwrites only the desired heading.
func (g *Gate) SetNewHeading(f *entity.Fighter, desired int) bool {
	if f == nil || !g.ValidHeading(desired) {
		return false
	}
	f.DesiredHeading = uint32(desired)
	return true
}

// ValidHeading reports whether h is inside [0, MaxHeading].
func (g *Gate) ValidHeading(h int) bool {
	return within(h, g.limits.MaxHeading)
}

func within(v int, max uint32) bool {
	return v >= 0 && int64(v) <= int64(max)
}
