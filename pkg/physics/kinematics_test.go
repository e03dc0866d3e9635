package physics

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLimits() Limits {
	return Limits{
		MaxHeading: 359,
		MaxSpeed:   838,
		MaxCoord:   375500,
		TurnRate:   10,
		AccelDecel: 5,
	}
}

func TestModel_TurnTowardsDesiredHeading(t *testing.T) {
	m := NewModel(testLimits())
	s := State{CurrentHeading: 0, DesiredHeading: 90, Speed: 100, X: 1000, Y: 1000}

	s = m.Move(s)
	assert.Equal(t, uint32(10), s.CurrentHeading)
	assert.Equal(t, uint32(95), s.Speed)

	s = m.Move(s)
	assert.Equal(t, uint32(20), s.CurrentHeading)
	assert.Equal(t, uint32(90), s.Speed)
}

func TestModel_SnapsWithinTurnRate(t *testing.T) {
	m := NewModel(testLimits())
	s := State{CurrentHeading: 0, DesiredHeading: 5, Speed: 50, X: 1000, Y: 1000}

	s = m.Move(s)
	require.Equal(t, uint32(5), s.CurrentHeading)

	for i := 0; i < 5; i++ {
		s = m.Move(s)
		assert.Equal(t, uint32(5), s.CurrentHeading, "tick %d overturned", i+2)
	}
}

func TestModel_TurnBranches(t *testing.T) {
	tests := []struct {
		name    string
		current uint32
		desired uint32
		want    uint32
	}{
		{"left within rate snaps", 10, 5, 5},
		{"left beyond rate steps", 90, 0, 80},
		{"left across north wraps", 5, 300, 355},
		{"left to north from small heading", 8, 0, 0},
		{"right steps by rate", 0, 90, 10},
		{"right snaps on tie-break value", 0, 5, 5},
		{"right across north wraps", 355, 40, 5},
		{"right uses auxiliary sum", 100, 105, 110},
		{"half circle turns left", 180, 0, 170},
	}
	m := NewModel(testLimits())
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := m.Move(State{CurrentHeading: tc.current, DesiredHeading: tc.desired, X: 100, Y: 100})
			assert.Equal(t, tc.want, s.CurrentHeading)
		})
	}
}

func TestModel_StraightFlightAccelerates(t *testing.T) {
	m := NewModel(testLimits())
	s := State{CurrentHeading: 45, DesiredHeading: 45, Speed: 830, X: 1000, Y: 1000}

	s = m.Move(s)
	assert.Equal(t, uint32(45), s.CurrentHeading)
	assert.Equal(t, uint32(835), s.Speed)

	s = m.Move(s)
	assert.Equal(t, uint32(838), s.Speed, "speed must cap at max")

	s = m.Move(s)
	assert.Equal(t, uint32(838), s.Speed)
}

func TestModel_TurningDeceleratesToZero(t *testing.T) {
	m := NewModel(testLimits())
	s := State{CurrentHeading: 0, DesiredHeading: 180, Speed: 7, X: 1000, Y: 1000}

	s = m.Move(s)
	assert.Equal(t, uint32(2), s.Speed)

	s = m.Move(s)
	assert.Equal(t, uint32(0), s.Speed)
}

func TestModel_PositionSaturatesAtEdge(t *testing.T) {
	limits := testLimits()
	m := NewModel(limits)
	s := State{CurrentHeading: 90, DesiredHeading: 90, Speed: 10, X: limits.MaxCoord - 5, Y: 200}

	s = m.Move(s)
	s = m.Move(s)

	assert.Equal(t, limits.MaxCoord, s.X)
	assert.Equal(t, uint32(200), s.Y)
}

func TestModel_PositionSaturatesAtOrigin(t *testing.T) {
	m := NewModel(testLimits())
	s := State{CurrentHeading: 180, DesiredHeading: 180, Speed: 100, X: 50, Y: 3}

	s = m.Move(s)

	assert.Equal(t, uint32(0), s.Y)
	assert.Equal(t, uint32(50), s.X)
}

func TestModel_InvariantsHoldUnderRandomCommands(t *testing.T) {
	limits := testLimits()
	m := NewModel(limits)
	rng := rand.New(rand.NewPCG(7, 11))

	s := State{X: limits.MaxCoord / 2, Y: limits.MaxCoord / 2}
	for i := 0; i < 5000; i++ {
		if i%17 == 0 {
			s.DesiredHeading = uint32(rng.IntN(int(limits.MaxHeading) + 1))
		}
		s = m.Move(s)

		require.LessOrEqual(t, s.CurrentHeading, limits.MaxHeading)
		require.LessOrEqual(t, s.DesiredHeading, limits.MaxHeading)
		require.LessOrEqual(t, s.Speed, limits.MaxSpeed)
		require.LessOrEqual(t, s.X, limits.MaxCoord)
		require.LessOrEqual(t, s.Y, limits.MaxCoord)
	}
}

func TestSpeedComponents(t *testing.T) {
	tests := []struct {
		heading uint32
		wantX   int64
		wantY   int64
	}{
		{0, 0, 10},
		{90, 10, 0},
		{180, 0, -10},
		{270, -10, 0},
		{45, 7, 7},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.wantX, XComponent(10, tc.heading), "x at heading %d", tc.heading)
		assert.Equal(t, tc.wantY, YComponent(10, tc.heading), "y at heading %d", tc.heading)
	}
}

func TestLeftTurn(t *testing.T) {
	assert.Equal(t, uint32(270), LeftTurn(0, 90))
	assert.Equal(t, uint32(90), LeftTurn(90, 0))
	assert.Equal(t, uint32(0), LeftTurn(123, 123))
	assert.Equal(t, uint32(10), LeftTurn(5, 355))
}

func TestClamp(t *testing.T) {
	assert.Equal(t, uint32(0), Clamp(-15, 100))
	assert.Equal(t, uint32(100), Clamp(250, 100))
	assert.Equal(t, uint32(42), Clamp(42, 100))
}

func TestLimits_Validate(t *testing.T) {
	require.NoError(t, DefaultLimits().Validate())

	bad := DefaultLimits()
	bad.MaxHeading = 360
	assert.Error(t, bad.Validate())

	bad = DefaultLimits()
	bad.TurnRate = 400
	assert.Error(t, bad.Validate())

	bad = DefaultLimits()
	bad.MaxCoord = 0
	assert.Error(t, bad.Validate())
}
