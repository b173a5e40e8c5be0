package components

import (
	"fmt"
	"math"

	"github.com/san-kum/cosim/internal/integrators"
	"github.com/san-kum/cosim/internal/models"
)

// WirePrefix names the magnetometer disturbance parameters of the
// high-fidelity rover.
const WirePrefix = "rover_8d.emi"

func wireParam(field string, i int) string {
	return fmt.Sprintf("%s.%s[%d]", WirePrefix, field, i+1)
}

// Rover wraps the rover plant with its gyro and, at fidelity 2, a
// magnetometer exposed to a nearby wire.
type Rover struct {
	plant    *models.Rover
	integ    integrators.Integrator
	fidelity int
	x        integrators.State
	sample   sampler
}

func NewRover(opts Options) (*Rover, error) {
	integ, err := integrators.New(opts.Integrator)
	if err != nil {
		return nil, err
	}
	if opts.Fidelity > 2 {
		return nil, fmt.Errorf("rover: unsupported fidelity %d", opts.Fidelity)
	}
	return &Rover{plant: models.NewRover(), integ: integ, fidelity: opts.Fidelity}, nil
}

func (r *Rover) Variables() []VarSpec {
	p := models.NewRover()
	vars := []VarSpec{
		Param("wheelbase", p.Wheelbase),
		Param("max_steer", p.MaxSteer),
		Param("accel_gain", p.AccelGain),
		Param("drag", p.Drag),
		Param("heading", 0),
		Param("W", 0),
		Param("dist", 0.01),
		Param("w_ac", 15000),
		Param("phi_0", 0),
		Param("psi_ac", 0),
		Param("epsilon", 0),
		Param("sample_interval", 0),
		Param("max_dt", 0.01),
		Param("max_step", 0),
		Input("pwm_steering", models.PWMNeutral),
		Input("pwm_throttle", models.PWMNeutral),
		Output("x_meas", 0),
		Output("y_meas", 0),
		Output("psi_meas", 0),
		Output("r_meas", 0),
		Output("v_meas", 0),
	}
	if r.fidelity < 2 {
		return vars
	}
	for i, d := range [3]float64{0, 0, 1} {
		vars = append(vars, Param(wireParam("wire_dir", i), d))
	}
	for i, x := range [3]float64{0, 0, -0.01} {
		vars = append(vars, Param(wireParam("x_wire", i), x))
	}
	return append(vars,
		Param("earth_field", 0.5),
		Param("wire_gain", 0.01),
		Output("mx_meas", 0.5),
		Output("my_meas", 0),
		Output("psi_mag", 0),
	)
}

func (r *Rover) load(v *Vars) {
	r.plant.Wheelbase = v.Get("wheelbase")
	r.plant.MaxSteer = v.Get("max_steer")
	r.plant.AccelGain = v.Get("accel_gain")
	r.plant.Drag = v.Get("drag")
	r.plant.Acoustic = models.Acoustic{
		Power:     v.Get("W"),
		Dist:      v.Get("dist"),
		Freq:      v.Get("w_ac"),
		Phase:     v.Get("phi_0"),
		Direction: v.Get("psi_ac"),
		Epsilon:   v.Get("epsilon"),
	}
}

func (r *Rover) Init(v *Vars, start float64) error {
	if v.Get("wheelbase") <= 0 {
		return fmt.Errorf("rover: wheelbase must be positive")
	}
	r.load(v)
	r.x = make(integrators.State, models.RoverStateDim)
	r.x[models.RoverPsi] = v.Get("heading") * math.Pi / 180
	r.sample.reset(v.Get("sample_interval"), start)
	r.measure(v, start)
	return nil
}

func (r *Rover) DoStep(v *Vars, t, h float64) error {
	if limit := v.Get("max_step"); limit > 0 && h > limit*(1+1e-9) {
		return ErrDiscard
	}
	r.load(v)
	u := []float64{v.Get("pwm_steering"), v.Get("pwm_throttle")}
	next := integrators.Advance(r.integ, r.plant, r.x, u, t, h, v.Get("max_dt"))
	if !next.IsValid() {
		return fmt.Errorf("rover: state diverged at t=%g", t+h)
	}
	r.x = next
	if r.sample.due(t+h, h) {
		r.measure(v, t+h)
	}
	return nil
}

func (r *Rover) measure(v *Vars, t float64) {
	x := r.x
	psi := x[models.RoverPsi]
	v.Set("x_meas", x[models.RoverX])
	v.Set("y_meas", x[models.RoverY])
	v.Set("psi_meas", psi+x[models.RoverGyroErr])
	rate := r.plant.YawRate(x, v.Get("pwm_steering"))
	v.Set("r_meas", rate+r.plant.Acoustic.Drift()+r.plant.Acoustic.Ripple(t))
	v.Set("v_meas", x[models.RoverV])

	if r.fidelity < 2 {
		return
	}
	var dir, pos [3]float64
	for i := range dir {
		dir[i] = v.Get(wireParam("wire_dir", i))
		pos[i] = v.Get(wireParam("x_wire", i))
	}
	w := models.WireField(dir, pos, v.Get("wire_gain"))
	b := v.Get("earth_field")
	// Earth field points along world x; the sensor sees it rotated by -psi.
	mx := b*math.Cos(psi) + w[0]
	my := -b*math.Sin(psi) + w[1]
	v.Set("mx_meas", mx)
	v.Set("my_meas", my)
	v.Set("psi_mag", math.Atan2(-my, mx))
}
