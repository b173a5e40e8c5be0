package components

import (
	"math"

	"github.com/san-kum/cosim/internal/controllers"
	"github.com/san-kum/cosim/internal/fmi"
	"github.com/san-kum/cosim/internal/models"
)

// Controller modes, reported on output s.
const (
	ModeIdle = iota
	ModeRamp
	ModeCruise
	ModeTurn
	ModeReturn
)

// Controller drives the rover along a heading, turns once it has covered
// leg_length with a turn commanded, then holds the new heading.
type Controller struct {
	pid       *controllers.PID
	sample    sampler
	mode      int
	rampStart float64
	psiRef    float64
}

func NewController(Options) (*Controller, error) {
	return &Controller{}, nil
}

func (c *Controller) Variables() []VarSpec {
	mode := Output("s", ModeIdle)
	mode.Type = fmi.TypeInteger
	mode.Variability = fmi.VariabilityDiscrete
	return []VarSpec{
		Param("kp", 1.5),
		Param("ki", 0.05),
		Param("kd", 0.1),
		Param("kr", 0.2),
		Param("cruise_pwm", 1650),
		Param("start_delay", 0.5),
		Param("ramp_time", 1),
		Param("leg_length", 10),
		Param("heading", 0),
		Param("turn_angle", 90),
		Param("turn_tol", 0.05),
		Param("sample_interval", 0),
		Input("psi_gyro", 0),
		Input("r_gyro", 0),
		Input("x", 0),
		Input("y", 0),
		Input("turn", 0),
		Output("pwm_steering", models.PWMNeutral),
		Output("pwm_throttle", models.PWMNeutral),
		mode,
		Local("psi_ref", 0),
	}
}

func (c *Controller) Init(v *Vars, start float64) error {
	c.pid = controllers.NewPID(v.Get("kp"), v.Get("ki"), v.Get("kd"), 1)
	c.sample.reset(v.Get("sample_interval"), start)
	c.mode = ModeIdle
	c.psiRef = v.Get("heading") * math.Pi / 180
	v.Set("psi_ref", c.psiRef)
	v.Set("s", ModeIdle)
	return nil
}

func (c *Controller) DoStep(v *Vars, t, h float64) error {
	now := t + h
	if !c.sample.due(now, h) {
		return nil
	}

	throttle := v.Get("cruise_pwm")
	switch c.mode {
	case ModeIdle:
		if now < v.Get("start_delay") {
			v.Set("pwm_steering", models.PWMNeutral)
			v.Set("pwm_throttle", models.PWMNeutral)
			return nil
		}
		c.mode = ModeRamp
		c.rampStart = now
		throttle = models.PWMNeutral
	case ModeRamp:
		frac := 1.0
		if rt := v.Get("ramp_time"); rt > 0 {
			frac = math.Min(1, (now-c.rampStart)/rt)
		}
		throttle = models.PWMNeutral + (throttle-models.PWMNeutral)*frac
		if frac >= 1 {
			c.mode = ModeCruise
		}
	case ModeCruise:
		turn := v.Get("turn")
		if turn != 0 && math.Hypot(v.Get("x"), v.Get("y")) >= v.Get("leg_length") {
			c.psiRef = controllers.WrapAngle(c.psiRef + turn*v.Get("turn_angle")*math.Pi/180)
			c.mode = ModeTurn
		}
	case ModeTurn:
		if math.Abs(controllers.WrapAngle(c.psiRef-v.Get("psi_gyro"))) < v.Get("turn_tol") {
			c.mode = ModeReturn
		}
	}

	err := controllers.WrapAngle(c.psiRef - v.Get("psi_gyro"))
	u := c.pid.Update(err, now) - v.Get("kr")*v.Get("r_gyro")
	u = math.Max(-1, math.Min(1, u))

	v.Set("pwm_steering", models.PWMNeutral+models.PWMSpan*u)
	v.Set("pwm_throttle", throttle)
	v.Set("psi_ref", c.psiRef)
	v.Set("s", float64(c.mode))
	return nil
}
