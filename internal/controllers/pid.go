package controllers

import "math"

// PID is a sampled PID law on an externally computed error. The first
// update only records the error, so the derivative term never sees a jump
// from zero.
type PID struct {
	Kp float64
	Ki float64
	Kd float64
	// Limit clamps the output and stops integration while saturated. Zero
	// means unlimited.
	Limit    float64
	integral float64
	prevErr  float64
	prevT    float64
	first    bool
}

func NewPID(kp, ki, kd, limit float64) *PID {
	return &PID{
		Kp:    kp,
		Ki:    ki,
		Kd:    kd,
		Limit: limit,
		first: true,
	}
}

func (p *PID) Reset() {
	p.integral = 0
	p.prevErr = 0
	p.prevT = 0
	p.first = true
}

func (p *PID) Update(err, t float64) float64 {
	if p.first {
		p.prevErr = err
		p.prevT = t
		p.first = false
		return p.clamp(p.Kp * err)
	}

	dt := t - p.prevT
	if dt <= 0 {
		return p.clamp(p.Kp*err + p.Ki*p.integral)
	}
	derivative := (err - p.prevErr) / dt
	p.prevErr = err
	p.prevT = t

	u := p.Kp*err + p.Ki*(p.integral+err*dt) + p.Kd*derivative
	if p.Limit <= 0 || math.Abs(u) < p.Limit {
		p.integral += err * dt
	}
	return p.clamp(u)
}

func (p *PID) clamp(u float64) float64 {
	if p.Limit <= 0 {
		return u
	}
	return math.Max(-p.Limit, math.Min(p.Limit, u))
}

// WrapAngle maps an angle in radians onto [-pi, pi).
func WrapAngle(a float64) float64 {
	a = math.Mod(a+math.Pi, 2*math.Pi)
	if a < 0 {
		a += 2 * math.Pi
	}
	return a - math.Pi
}
