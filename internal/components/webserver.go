package components

// Webserver stands in for the remote operator: it commands a single turn
// of turn_cmd at turn_time.
type Webserver struct{}

func NewWebserver(Options) (*Webserver, error) { return &Webserver{}, nil }

func (w *Webserver) Variables() []VarSpec {
	return []VarSpec{
		Param("turn_time", 1),
		Param("turn_cmd", 1),
		Output("turn", 0),
	}
}

func (w *Webserver) Init(v *Vars, start float64) error {
	w.update(v, start)
	return nil
}

func (w *Webserver) DoStep(v *Vars, t, h float64) error {
	w.update(v, t+h)
	return nil
}

func (w *Webserver) update(v *Vars, t float64) {
	if t >= v.Get("turn_time")-1e-9 {
		v.Set("turn", v.Get("turn_cmd"))
	} else {
		v.Set("turn", 0)
	}
}
