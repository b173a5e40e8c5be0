// Package components holds the builtin co-simulation components: Go models
// served through fmi.Runtime so the master treats them exactly like
// compiled artifacts.
package components

import (
	"errors"
	"fmt"
	"sort"

	"github.com/san-kum/cosim/internal/fmi"
)

var ErrUnknownBuiltin = errors.New("components: unknown builtin")

type Options struct {
	Integrator string
	Fidelity   int
}

type Factory func(opts Options) (Model, error)

type Registry struct {
	factories map[string]Factory
}

// NewRegistry returns a registry with the rover, controller and webserver
// builtins.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	r.Register("rover", func(o Options) (Model, error) { return NewRover(o) })
	r.Register("controller", func(o Options) (Model, error) { return NewController(o) })
	r.Register("webserver", func(o Options) (Model, error) { return NewWebserver(o) })
	return r
}

func (r *Registry) Register(name string, f Factory) {
	r.factories[name] = f
}

// New builds a fresh instance of a builtin.
func (r *Registry) New(name string, opts Options) (*fmi.ModelDescription, fmi.Runtime, error) {
	f, ok := r.factories[name]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %q", ErrUnknownBuiltin, name)
	}
	m, err := f(opts)
	if err != nil {
		return nil, nil, fmt.Errorf("components: %s: %w", name, err)
	}
	return Description(name, m), NewNative(m), nil
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
