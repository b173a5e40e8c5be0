// Package attack generates the per-step parameter and signal overrides of a
// fault or attack scenario.
//
// All randomness is drawn once in New from a generator owned by the State.
// Every per-step value is then a pure function of those draws and of the
// component values the caller passes in; a State is never mutated after
// construction.
package attack

import "fmt"

// ID selects a scenario.
type ID int

const (
	IDNominal ID = iota
	IDHeadingBias
	IDThrottleRollover
	IDAcousticGyro
	IDEMIWire
)

func (id ID) String() string {
	switch id {
	case IDNominal:
		return "nominal"
	case IDHeadingBias:
		return "heading-bias"
	case IDThrottleRollover:
		return "throttle-rollover"
	case IDAcousticGyro:
		return "acoustic-gyro"
	case IDEMIWire:
		return "emi-wire"
	default:
		return fmt.Sprintf("scenario(%d)", int(id))
	}
}

// Scenario is the sealed set of scenario variants built by New.
type Scenario interface {
	ID() ID
	isScenario()
}

// Nominal injects nothing beyond the nominal disturbance parameters.
type Nominal struct{}

// HeadingBias adds Level*Bias to the relayed heading measurement once the
// controller mode reaches the gate threshold.
type HeadingBias struct {
	Level float64 // rad
	Bias  float64 // in [-1, 1)
}

// ThrottleRollover replaces the relayed throttle command with a fixed PWM.
type ThrottleRollover struct {
	PWM float64
}

// AcousticGyro drives the gyro resonance model of the plant.
type AcousticGyro struct {
	Power        float64
	Distance     float64
	Frequency    float64 // rad/s
	Phase        float64 // rad
	Direction    float64 // rad
	Misalignment float64 // rad
}

// EMIWire places a current-carrying wire next to the magnetometer of the
// high-fidelity plant.
type EMIWire struct {
	Direction [3]float64
	Position  [3]float64
}

func (Nominal) ID() ID          { return IDNominal }
func (HeadingBias) ID() ID      { return IDHeadingBias }
func (ThrottleRollover) ID() ID { return IDThrottleRollover }
func (AcousticGyro) ID() ID     { return IDAcousticGyro }
func (EMIWire) ID() ID          { return IDEMIWire }

func (Nominal) isScenario()          {}
func (HeadingBias) isScenario()      {}
func (ThrottleRollover) isScenario() {}
func (AcousticGyro) isScenario()     {}
func (EMIWire) isScenario()          {}

// Nominal disturbance parameters, applied whenever the corresponding attack
// is inactive.
var (
	nominalAcoustic = AcousticGyro{
		Power:        0,
		Distance:     0.01,
		Frequency:    15000,
		Phase:        0,
		Direction:    0,
		Misalignment: 0,
	}
	nominalWire = EMIWire{
		Direction: [3]float64{0, 0, 1},
		Position:  [3]float64{0, 0, -0.01},
	}
)

var wireDirections = map[int][3]float64{
	1: {1, 0, 0},
	2: {-1, 0, 0},
	3: {0, 1, 0},
	4: {0, -1, 0},
	5: {0, 0, 1},
}

// WireDirection maps a wire direction code to a unit vector. Unknown codes
// point the wire down.
func WireDirection(code int) [3]float64 {
	if d, ok := wireDirections[code]; ok {
		return d
	}
	return [3]float64{0, 0, -1}
}
