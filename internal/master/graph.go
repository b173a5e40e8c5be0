package master

import (
	"errors"
	"fmt"
	"strings"

	"github.com/san-kum/cosim/internal/fmi"
)

var (
	// ErrConfiguration indicates a malformed scenario, found before the first step.
	ErrConfiguration = errors.New("master: invalid configuration")

	// ErrCanceled indicates the run was stopped between steps by its context.
	ErrCanceled = errors.New("master: run canceled")
)

// ConfigurationError names the offending part of a scenario.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return "configuration: " + e.Reason
	}
	return fmt.Sprintf("configuration: %s: %s", e.Field, e.Reason)
}

func (e *ConfigurationError) Unwrap() error { return ErrConfiguration }

func configErr(field, format string, args ...any) error {
	return &ConfigurationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Port addresses one variable of one component.
type Port struct {
	Component string
	Variable  string
}

func (p Port) String() string { return p.Component + "." + p.Variable }

// ParsePort splits "component.variable". Only the first dot separates, so
// variable names may contain dots.
func ParsePort(s string) (Port, error) {
	i := strings.IndexByte(s, '.')
	if i <= 0 || i == len(s)-1 {
		return Port{}, configErr(s, "expected component.variable")
	}
	return Port{Component: s[:i], Variable: s[i+1:]}, nil
}

// Edge relays From to To once per communication step.
type Edge struct {
	From Port
	To   Port
}

func (e Edge) String() string { return e.From.String() + " -> " + e.To.String() }

func ParseEdge(from, to string) (Edge, error) {
	f, err := ParsePort(from)
	if err != nil {
		return Edge{}, err
	}
	t, err := ParsePort(to)
	if err != nil {
		return Edge{}, err
	}
	return Edge{From: f, To: t}, nil
}

// Member is one component in stepping order.
type Member struct {
	Name      string
	Component *fmi.Component
}

// Graph is a validated connection graph. Edges whose source variable does
// not exist on the source component are kept as fallback relays that feed
// the destination its last known value.
type Graph struct {
	Edges    []Edge
	Fallback []bool
}

// Validate checks every edge against the discovered component interfaces.
// Each problem is reported before any component is stepped.
func Validate(members []Member, edges []Edge) (*Graph, error) {
	byName := make(map[string]*fmi.Component, len(members))
	for i, m := range members {
		if m.Name == "" || m.Component == nil {
			return nil, configErr(fmt.Sprintf("components[%d]", i), "missing name or component")
		}
		if _, dup := byName[m.Name]; dup {
			return nil, configErr(m.Name, "duplicate component")
		}
		byName[m.Name] = m.Component
	}

	g := &Graph{}
	seen := make(map[Port]Edge, len(edges))
	for _, e := range edges {
		src, ok := byName[e.From.Component]
		if !ok {
			return nil, configErr(e.String(), "unknown source component %q", e.From.Component)
		}
		dst, ok := byName[e.To.Component]
		if !ok {
			return nil, configErr(e.String(), "unknown destination component %q", e.To.Component)
		}

		dv, ok := dst.Interface().Lookup(e.To.Variable)
		if !ok {
			return nil, configErr(e.String(), "destination %s has no variable %q", e.To.Component, e.To.Variable)
		}
		if grp := fmi.GroupOf(dv); grp != fmi.GroupInput {
			return nil, configErr(e.String(), "destination %s is a %s, not an input", e.To, grp)
		}
		if prev, dup := seen[e.To]; dup {
			return nil, configErr(e.String(), "destination already driven by %s", prev.From)
		}
		seen[e.To] = e

		fallback := !src.HasVariable(e.From.Variable)
		if !fallback {
			sv, _ := src.Interface().Lookup(e.From.Variable)
			switch grp := fmi.GroupOf(sv); grp {
			case fmi.GroupOutput, fmi.GroupLocal:
			default:
				return nil, configErr(e.String(), "source %s is a %s, not an output", e.From, grp)
			}
		}
		g.Edges = append(g.Edges, e)
		g.Fallback = append(g.Fallback, fallback)
	}
	return g, nil
}
