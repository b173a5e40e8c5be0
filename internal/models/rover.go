package models

import (
	"math"

	"github.com/san-kum/cosim/internal/integrators"
)

// Rover state indices.
const (
	RoverX = iota
	RoverY
	RoverPsi
	RoverV
	// RoverGyroErr is the integrated gyro drift, rad.
	RoverGyroErr
	RoverStateDim
)

const (
	PWMNeutral = 1500.0
	PWMSpan    = 500.0
)

// Acoustic is the sound field driving the gyro: speaker power W at
// distance Dist, frequency Freq (rad/s), phase Phase, incidence Direction
// and sensor misalignment Epsilon. Zero power means no disturbance.
type Acoustic struct {
	Power, Dist, Freq float64
	Phase, Direction  float64
	Epsilon           float64
}

// Amplitude of the induced rate error in rad/s.
func (a Acoustic) Amplitude() float64 {
	if a.Power == 0 || a.Dist <= 0 {
		return 0
	}
	return 1e-3 * a.Power / (a.Dist * a.Dist)
}

// Drift is the rectified part of the resonance that the gyro integrates.
func (a Acoustic) Drift() float64 {
	return a.Amplitude() * (math.Cos(a.Direction)*math.Sin(a.Phase) + math.Sin(a.Epsilon))
}

// Ripple is the oscillating part seen on the rate output at time t.
func (a Acoustic) Ripple(t float64) float64 {
	return a.Amplitude() * math.Sin(a.Freq*t+a.Phase) * math.Cos(a.Direction)
}

// Rover is a kinematic bicycle driven by two PWM channels.
type Rover struct {
	Wheelbase float64
	MaxSteer  float64
	AccelGain float64
	Drag      float64
	Acoustic  Acoustic
}

func NewRover() *Rover {
	return &Rover{
		Wheelbase: 0.3,
		MaxSteer:  0.5,
		AccelGain: 2.0,
		Drag:      1.0,
	}
}

func (r *Rover) StateDim() int   { return RoverStateDim }
func (r *Rover) ControlDim() int { return 2 }

// NormalizePWM maps a pulse width onto [-1, 1] around neutral.
func NormalizePWM(pwm float64) float64 {
	return math.Max(-1, math.Min(1, (pwm-PWMNeutral)/PWMSpan))
}

// Derive takes u = {pwm_steering, pwm_throttle}.
func (r *Rover) Derive(x integrators.State, u []float64, t float64) integrators.State {
	steerPWM, throttlePWM := PWMNeutral, PWMNeutral
	if len(u) >= 2 {
		steerPWM, throttlePWM = u[0], u[1]
	}
	steer := r.MaxSteer * NormalizePWM(steerPWM)
	throttle := NormalizePWM(throttlePWM)

	psi, v := x[RoverPsi], x[RoverV]
	dx := make(integrators.State, RoverStateDim)
	dx[RoverX] = v * math.Cos(psi)
	dx[RoverY] = v * math.Sin(psi)
	dx[RoverPsi] = v / r.Wheelbase * math.Tan(steer)
	dx[RoverV] = r.AccelGain*throttle - r.Drag*v
	dx[RoverGyroErr] = r.Acoustic.Drift()
	return dx
}

// YawRate is the true heading rate at state x.
func (r *Rover) YawRate(x integrators.State, steerPWM float64) float64 {
	return x[RoverV] / r.Wheelbase * math.Tan(r.MaxSteer*NormalizePWM(steerPWM))
}

// WireField is the magnetic disturbance of a current-carrying wire as seen
// by the magnetometer at the origin: gain/|pos| along dir, zero when the
// wire is on top of the sensor.
func WireField(dir, pos [3]float64, gain float64) [3]float64 {
	d := math.Sqrt(pos[0]*pos[0] + pos[1]*pos[1] + pos[2]*pos[2])
	n := math.Sqrt(dir[0]*dir[0] + dir[1]*dir[1] + dir[2]*dir[2])
	if d == 0 || n == 0 {
		return [3]float64{}
	}
	k := gain / d / n
	return [3]float64{k * dir[0], k * dir[1], k * dir[2]}
}
