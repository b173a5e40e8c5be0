package integrators

// RK4 is the classic fourth-order Runge-Kutta method. Stage buffers are
// reused between calls, so one RK4 belongs to one component.
type RK4 struct {
	k     [4]State
	stage State
}

func NewRK4() *RK4 {
	return &RK4{}
}

func (r *RK4) ensureScratch(n int) {
	if len(r.stage) == n {
		return
	}
	for i := range r.k {
		r.k[i] = make(State, n)
	}
	r.stage = make(State, n)
}

var rk4Nodes = [3]float64{0.5, 0.5, 1}

func (r *RK4) Step(sys System, x State, u []float64, t, dt float64) State {
	r.ensureScratch(len(x))

	copy(r.k[0], sys.Derive(x, u, t))
	for s, c := range rk4Nodes {
		h := c * dt
		for i := range x {
			r.stage[i] = x[i] + h*r.k[s][i]
		}
		copy(r.k[s+1], sys.Derive(r.stage, u, t+h))
	}

	next := make(State, len(x))
	dt6 := dt / 6
	for i := range x {
		next[i] = x[i] + dt6*(r.k[0][i]+2*r.k[1][i]+2*r.k[2][i]+r.k[3][i])
	}
	return next
}
