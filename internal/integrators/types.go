// Package integrators advances the continuous state of the builtin
// components between communication points.
package integrators

import (
	"fmt"
	"math"
	"sort"
)

// State is a continuous state vector.
type State []float64

func (s State) Clone() State {
	c := make(State, len(s))
	copy(c, s)
	return c
}

// IsValid reports whether every entry is finite.
func (s State) IsValid() bool {
	for _, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// System is an ODE x' = f(x, u, t) with input u held constant over a step.
type System interface {
	Derive(x State, u []float64, t float64) State
}

type Integrator interface {
	Step(sys System, x State, u []float64, t, dt float64) State
}

var factories = map[string]func() Integrator{
	"euler": func() Integrator { return NewEuler() },
	"rk4":   func() Integrator { return NewRK4() },
	"rk45":  func() Integrator { return NewRK45() },
}

// New returns a fresh integrator by name. The empty name selects rk4.
func New(name string) (Integrator, error) {
	if name == "" {
		name = "rk4"
	}
	fn, ok := factories[name]
	if !ok {
		return nil, fmt.Errorf("unknown integrator: %s", name)
	}
	return fn(), nil
}

func Names() []string {
	names := make([]string, 0, len(factories))
	for n := range factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Advance integrates from t over h in substeps no longer than maxDt.
func Advance(integ Integrator, sys System, x State, u []float64, t, h, maxDt float64) State {
	n := 1
	if maxDt > 0 && h > maxDt {
		n = int(math.Ceil(h/maxDt - 1e-9))
	}
	dt := h / float64(n)
	for i := 0; i < n; i++ {
		x = integ.Step(sys, x, u, t+float64(i)*dt, dt)
	}
	return x
}
