package master

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/san-kum/cosim/internal/attack"
	"github.com/san-kum/cosim/internal/fmi"
)

// Injector supplies attack overrides. *attack.State implements it.
type Injector interface {
	// Parameters is applied before every step. It must return the same
	// overrides on every call.
	Parameters() []attack.Override
	// Substitute may replace staged relay values for the coming step.
	Substitute(staged attack.Staged, read attack.Reader) []attack.Override
}

// Assignment sets one variable to a constant.
type Assignment struct {
	Port  Port
	Value float64
}

type Options struct {
	Start float64
	Stop  float64
	Step  float64

	// StopTimeDefined passes Stop to the components at setup. Components
	// may then refuse to step past it, so it is off by default.
	StopTimeDefined bool

	// LogVariables are sampled after every step. Empty means every output
	// of every component, in member order.
	LogVariables []Port

	// Discard handles discarded steps. Nil means FailOnDiscard.
	Discard DiscardPolicy

	// Initial values are written while a component is initializing.
	Initial []Assignment
	// Inputs are written before every step, ahead of the relay, so an edge
	// to the same port overrides them.
	Inputs []Assignment

	Attack    Injector
	Observers []Observer
	Logger    *slog.Logger
}

// Scheduler advances a fixed set of components through identical
// communication steps. Components are stepped one after another in member
// order and exchange values only between steps.
type Scheduler struct {
	members []Member
	byName  map[string]*fmi.Component
	graph   *Graph
	columns []Port
	steps   int
	opts    Options
}

// New validates the members, edges and options and fixes the log columns.
func New(members []Member, edges []Edge, opts Options) (*Scheduler, error) {
	if opts.Step <= 0 || math.IsNaN(opts.Step) || math.IsInf(opts.Step, 0) {
		return nil, configErr("step", "must be positive, got %g", opts.Step)
	}
	if !(opts.Stop > opts.Start) {
		return nil, configErr("stop", "must be after start (%g <= %g)", opts.Stop, opts.Start)
	}
	steps := StepCount(opts.Start, opts.Stop, opts.Step)
	if steps < 1 {
		return nil, configErr("step", "%g is longer than the run", opts.Step)
	}
	if len(members) == 0 {
		return nil, configErr("components", "no components")
	}

	graph, err := Validate(members, edges)
	if err != nil {
		return nil, err
	}
	if opts.Discard == nil {
		opts.Discard = FailOnDiscard{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	s := &Scheduler{
		members: members,
		byName:  make(map[string]*fmi.Component, len(members)),
		graph:   graph,
		steps:   steps,
		opts:    opts,
	}
	for _, m := range members {
		s.byName[m.Name] = m.Component
	}

	for _, as := range [][]Assignment{opts.Initial, opts.Inputs} {
		for _, a := range as {
			if err := s.checkPort(a.Port); err != nil {
				return nil, err
			}
		}
	}

	if len(opts.LogVariables) == 0 {
		for _, m := range members {
			for _, name := range m.Component.Interface().Names(fmi.GroupOutput) {
				s.columns = append(s.columns, Port{Component: m.Name, Variable: name})
			}
		}
	} else {
		for _, p := range opts.LogVariables {
			if err := s.checkPort(p); err != nil {
				return nil, err
			}
			s.columns = append(s.columns, p)
		}
	}
	return s, nil
}

func (s *Scheduler) checkPort(p Port) error {
	c, ok := s.byName[p.Component]
	if !ok {
		return configErr(p.String(), "unknown component %q", p.Component)
	}
	if !c.HasVariable(p.Variable) {
		return configErr(p.String(), "component %s has no variable %q", p.Component, p.Variable)
	}
	return nil
}

// StepCount is floor((stop-start)/step), tolerant of the representation
// error of decimal step sizes so that 0.3/0.1 counts as 3.
func StepCount(start, stop, step float64) int {
	return int(math.Floor((stop-start)/step + 1e-9))
}

func (s *Scheduler) Steps() int        { return s.steps }
func (s *Scheduler) Graph() *Graph     { return s.graph }
func (s *Scheduler) Members() []Member { return s.members }

// Columns returns the log column names as component.variable.
func (s *Scheduler) Columns() []string {
	names := make([]string, len(s.columns))
	for i, p := range s.columns {
		names[i] = p.String()
	}
	return names
}

// Observe adds an observer for sessions created afterwards.
func (s *Scheduler) Observe(o Observer) {
	s.opts.Observers = append(s.opts.Observers, o)
}

// Run drives a full session. Every component is terminated and freed before
// Run returns, whether the run completed, failed or panicked. On failure the
// rows logged so far are returned with the error.
func (s *Scheduler) Run(ctx context.Context) (log *RunLog, err error) {
	sess := s.NewSession()
	defer func() {
		if cerr := sess.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("master: teardown: %w", cerr))
		}
	}()

	if err := sess.Start(ctx); err != nil {
		return nil, err
	}
	for !sess.Done() {
		if _, err := sess.Step(ctx); err != nil {
			return sess.Log(), err
		}
	}
	return sess.Log(), nil
}

// RunError reports where a run stopped.
type RunError struct {
	Step      int
	Time      float64
	Component string
	Op        string
	Status    fmi.Status
	Err       error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("master: %s failed at step %d (t=%.6g) in component %s with status %s: %v",
		e.Op, e.Step, e.Time, e.Component, e.Status, e.Err)
}

func (e *RunError) Unwrap() error { return e.Err }

func statusOf(err error) fmi.Status {
	var se *fmi.StepError
	if errors.As(err, &se) {
		return se.Status
	}
	return fmi.StatusError
}
