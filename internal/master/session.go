package master

import (
	"context"
	"errors"
	"fmt"

	"github.com/san-kum/cosim/internal/attack"
	"github.com/san-kum/cosim/internal/fmi"
)

var (
	ErrNotStarted    = errors.New("master: session not started")
	ErrSessionDone   = errors.New("master: session already finished")
	ErrSessionClosed = errors.New("master: session closed")
)

// Session is one run advanced a step at a time. The caller owns it and must
// Close it; Scheduler.Run does both for the common case.
type Session struct {
	s   *Scheduler
	log *RunLog

	index   int
	started bool
	closed  bool
	failed  error

	params []attack.Override
	last   []float64
	staged map[Port]float64
	order  []Port
}

func (s *Scheduler) NewSession() *Session {
	return &Session{
		s:      s,
		log:    newRunLog(s.Columns(), s.steps),
		last:   make([]float64, len(s.graph.Edges)),
		staged: make(map[Port]float64, len(s.graph.Edges)),
	}
}

// Start brings every component to step mode in member order.
func (ss *Session) Start(ctx context.Context) error {
	if ss.closed {
		return ErrSessionClosed
	}
	if ss.started {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrCanceled, err)
	}

	o := ss.s.opts
	var stop *float64
	if o.StopTimeDefined {
		stop = &o.Stop
	}
	for _, m := range ss.s.members {
		if err := ss.initialize(m, stop); err != nil {
			return ss.fail(&RunError{
				Step:      0,
				Time:      o.Start,
				Component: m.Name,
				Op:        "initialize",
				Status:    statusOf(err),
				Err:       err,
			})
		}
	}

	// Fallback relays start from whatever the destination holds.
	for i, e := range ss.s.graph.Edges {
		if ss.s.graph.Fallback[i] {
			v, err := ss.s.byName[e.To.Component].Value(e.To.Variable)
			if err == nil {
				ss.last[i] = v
			}
			o.Logger.Warn("relay source missing, holding destination value",
				"edge", e.String(), "value", ss.last[i])
		}
	}

	if o.Attack != nil {
		for _, ov := range o.Attack.Parameters() {
			c, ok := ss.s.byName[ov.Component]
			if !ok || !c.HasVariable(ov.Variable) {
				o.Logger.Debug("attack parameter not present, skipping", "target", ov.String())
				continue
			}
			ss.params = append(ss.params, ov)
		}
	}

	ss.started = true
	return nil
}

func (ss *Session) initialize(m Member, stop *float64) error {
	c := m.Component
	if err := c.Instantiate(); err != nil {
		return err
	}
	if err := c.ConfigureExperiment(ss.s.opts.Start, stop); err != nil {
		return err
	}
	if err := c.EnterInitialization(); err != nil {
		return err
	}
	for _, a := range ss.s.opts.Initial {
		if a.Port.Component != m.Name {
			continue
		}
		if err := c.SetValue(a.Port.Variable, a.Value); err != nil {
			return err
		}
	}
	return c.ExitInitialization()
}

func (ss *Session) fail(err error) error {
	ss.failed = err
	return err
}

func (ss *Session) Done() bool { return ss.index >= ss.s.steps }

// Index is the number of completed steps.
func (ss *Session) Index() int { return ss.index }

func (ss *Session) Steps() int { return ss.s.steps }

// Time is the start time of the next step.
func (ss *Session) Time() float64 { return ss.timeAt(ss.index) }

func (ss *Session) Log() *RunLog { return ss.log }

func (ss *Session) Err() error { return ss.failed }

func (ss *Session) timeAt(k int) float64 {
	return ss.s.opts.Start + float64(k)*ss.s.opts.Step
}

// Step runs one communication step and returns the row it logged. The
// order within a step is fixed: attack parameters and constant inputs,
// relay staging from pre-step values, attack substitutions, writing the
// staged inputs, stepping every component, then sampling the log.
func (ss *Session) Step(ctx context.Context) (Row, error) {
	switch {
	case ss.closed:
		return Row{}, ErrSessionClosed
	case !ss.started:
		return Row{}, ErrNotStarted
	case ss.failed != nil:
		return Row{}, ss.failed
	case ss.Done():
		return Row{}, ErrSessionDone
	}

	k := ss.index
	t := ss.timeAt(k)
	if err := ctx.Err(); err != nil {
		return Row{}, fmt.Errorf("%w before step %d: %w", ErrCanceled, k, err)
	}

	o := ss.s.opts
	h := o.Step

	for _, p := range ss.params {
		if err := ss.s.byName[p.Component].SetValue(p.Variable, p.Value); err != nil {
			return Row{}, ss.fail(ss.runError(k, t, p.Component, "attack parameter", err))
		}
	}
	for _, a := range o.Inputs {
		if err := ss.s.byName[a.Port.Component].SetValue(a.Port.Variable, a.Value); err != nil {
			return Row{}, ss.fail(ss.runError(k, t, a.Port.Component, "input", err))
		}
	}

	if err := ss.stage(k, t); err != nil {
		return Row{}, ss.fail(err)
	}
	for _, p := range ss.order {
		if err := ss.s.byName[p.Component].SetValue(p.Variable, ss.staged[p]); err != nil {
			return Row{}, ss.fail(ss.runError(k, t, p.Component, "relay", err))
		}
	}

	for _, m := range ss.s.members {
		st, err := m.Component.Step(t, h)
		if err != nil {
			return Row{}, ss.fail(&RunError{Step: k, Time: t, Component: m.Name, Op: "step", Status: st, Err: err})
		}
		if st == fmi.StatusDiscard {
			if err := o.Discard.HandleDiscard(m.Component, t, h); err != nil {
				return Row{}, ss.fail(&RunError{Step: k, Time: t, Component: m.Name, Op: "step", Status: statusOf(err), Err: err})
			}
		}
	}

	row := Row{Step: k, Time: ss.timeAt(k + 1), Values: make([]float64, len(ss.s.columns))}
	for i, p := range ss.s.columns {
		v, err := ss.s.byName[p.Component].Value(p.Variable)
		if err != nil {
			return Row{}, ss.fail(ss.runError(k, t, p.Component, "sample", err))
		}
		row.Values[i] = v
	}
	ss.log.append(row)
	for _, obs := range o.Observers {
		obs.OnStep(row)
	}
	ss.index++
	return row, nil
}

// stage reads every relay source as it stands before the step, then lets
// the injector replace individual staged values.
func (ss *Session) stage(k int, t float64) error {
	clear(ss.staged)
	ss.order = ss.order[:0]

	g := ss.s.graph
	for i, e := range g.Edges {
		v := ss.last[i]
		if !g.Fallback[i] {
			var err error
			v, err = ss.s.byName[e.From.Component].Value(e.From.Variable)
			if err != nil {
				return ss.runError(k, t, e.From.Component, "relay", err)
			}
			ss.last[i] = v
		}
		ss.staged[e.To] = v
		ss.order = append(ss.order, e.To)
	}

	if ss.s.opts.Attack == nil {
		return nil
	}
	for _, ov := range ss.s.opts.Attack.Substitute(stagedView{ss}, readerView{ss}) {
		p := Port{Component: ov.Component, Variable: ov.Variable}
		c, ok := ss.s.byName[p.Component]
		if !ok || !c.HasVariable(p.Variable) {
			continue
		}
		if _, ok := ss.staged[p]; !ok {
			ss.order = append(ss.order, p)
		}
		ss.staged[p] = ov.Value
	}
	return nil
}

func (ss *Session) runError(k int, t float64, component, op string, err error) *RunError {
	return &RunError{Step: k, Time: t, Component: component, Op: op, Status: statusOf(err), Err: err}
}

// Close terminates and frees every component, last member first. It is
// safe to call more than once and after any failure.
func (ss *Session) Close() error {
	if ss.closed {
		return nil
	}
	ss.closed = true
	var errs []error
	for i := len(ss.s.members) - 1; i >= 0; i-- {
		m := ss.s.members[i]
		if err := m.Component.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing %s: %w", m.Name, err))
		}
	}
	return errors.Join(errs...)
}

type stagedView struct{ ss *Session }

func (v stagedView) Staged(component, variable string) (float64, bool) {
	x, ok := v.ss.staged[Port{Component: component, Variable: variable}]
	return x, ok
}

type readerView struct{ ss *Session }

func (v readerView) Read(component, variable string) (float64, bool) {
	c, ok := v.ss.s.byName[component]
	if !ok || !c.HasVariable(variable) {
		return 0, false
	}
	x, err := c.Value(variable)
	if err != nil {
		return 0, false
	}
	return x, true
}
