// Package driver turns a scenario into a finished, persisted run: it
// resolves every component, wires the scheduler and attack state, runs the
// loop and stores the output.
package driver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/san-kum/cosim/internal/artifact"
	"github.com/san-kum/cosim/internal/attack"
	"github.com/san-kum/cosim/internal/components"
	"github.com/san-kum/cosim/internal/config"
	"github.com/san-kum/cosim/internal/fmi"
	"github.com/san-kum/cosim/internal/master"
	"github.com/san-kum/cosim/internal/metrics"
	"github.com/san-kum/cosim/internal/storage"
)

// SampleInterval is the parameter a component uses to gate its discrete
// updates. The driver sets it just above the step so every communication
// point is sampled exactly once.
const SampleInterval = "sample_interval"

type Driver struct {
	Store    *storage.Store
	Cache    *artifact.Cache
	Registry *components.Registry
	Loader   Loader
	Logger   *slog.Logger
	// Observers are attached to every prepared run, after the metrics.
	Observers []master.Observer

	now func() time.Time
}

func New(store *storage.Store, cache *artifact.Cache, registry *components.Registry, logger *slog.Logger) *Driver {
	if logger == nil {
		logger = slog.Default()
	}
	if registry == nil {
		registry = components.NewRegistry()
	}
	return &Driver{
		Store:    store,
		Cache:    cache,
		Registry: registry,
		Loader:   FMULoader{},
		Logger:   logger,
		now:      time.Now,
	}
}

// Report is the outcome of one run. On failure Log holds the rows logged
// before the failing step and RunID is empty.
type Report struct {
	RunID    string
	Name     string
	Seed     int64
	Attack   attack.ID
	Log      *master.RunLog
	Metrics  map[string]float64
	Draws    map[string]float64
	Duration time.Duration
}

// Prepared is a scenario resolved into a ready scheduler. Nothing has been
// instantiated yet.
type Prepared struct {
	Scenario  *config.Scenario
	Scheduler *master.Scheduler
	Attack    *attack.State
	Metrics   metrics.Set
	Seed      int64
}

// Run prepares sc, runs it to completion and persists the result when a
// store is configured. A failed run persists nothing.
func (d *Driver) Run(ctx context.Context, sc *config.Scenario) (*Report, error) {
	p, err := d.Prepare(ctx, sc)
	if err != nil {
		return nil, err
	}
	began := d.now()
	log, err := p.Scheduler.Run(ctx)
	elapsed := d.now().Sub(began)
	if err != nil {
		d.Logger.Error("run failed", "scenario", sc.Name, "error", err)
		rep := d.report(p, log, elapsed)
		return rep, err
	}
	return d.Finish(p, log, elapsed)
}

// Finish persists a completed run of p.
func (d *Driver) Finish(p *Prepared, log *master.RunLog, elapsed time.Duration) (*Report, error) {
	rep := d.report(p, log, elapsed)
	d.Logger.Info("run complete",
		"scenario", rep.Name,
		"attack", rep.Attack.String(),
		"seed", rep.Seed,
		"steps", log.Len(),
		"elapsed", elapsed)
	if d.Store == nil {
		return rep, nil
	}
	runID, err := d.Store.Save(p.Scenario, log, storage.RunMetadata{
		Seed:        rep.Seed,
		Attack:      rep.Attack.String(),
		Components:  memberNames(p.Scheduler.Members()),
		Draws:       rep.Draws,
		Metrics:     rep.Metrics,
		DurationSec: elapsed.Seconds(),
	})
	if err != nil {
		return rep, fmt.Errorf("driver: saving run: %w", err)
	}
	rep.RunID = runID
	d.Logger.Info("run saved", "id", runID, "dir", d.Store.Dir())
	return rep, nil
}

func (d *Driver) report(p *Prepared, log *master.RunLog, elapsed time.Duration) *Report {
	draws := make(map[string]float64)
	for _, name := range p.Attack.DerivedNames() {
		draws[name], _ = p.Attack.Derived(name)
	}
	return &Report{
		Name:     p.Scenario.Name,
		Seed:     p.Seed,
		Attack:   p.Attack.ScenarioID(),
		Log:      log,
		Metrics:  p.Metrics.Values(),
		Draws:    draws,
		Duration: elapsed,
	}
}

func memberNames(members []master.Member) []string {
	names := make([]string, len(members))
	for i, m := range members {
		names[i] = m.Name
	}
	return names
}

// Prepare validates sc, resolves its components and builds the scheduler.
// The returned scheduler owns freshly constructed components; run it once.
func (d *Driver) Prepare(ctx context.Context, sc *config.Scenario) (*Prepared, error) {
	if err := sc.Validate(); err != nil {
		return nil, err
	}

	seed := d.now().UnixNano()
	if sc.Attack.Seed != nil {
		seed = *sc.Attack.Seed
	}
	atk, err := attack.New(sc.Attack.Config, seed)
	if err != nil {
		return nil, &config.ConfigurationError{Field: "attack", Reason: err.Error()}
	}

	members := make([]master.Member, 0, len(sc.Components))
	prepared := false
	defer func() {
		if !prepared {
			release(members)
		}
	}()
	for _, cc := range sc.Components {
		comp, err := d.resolve(ctx, sc, cc)
		if err != nil {
			return nil, fmt.Errorf("driver: component %s: %w", cc.Name, err)
		}
		members = append(members, master.Member{Name: cc.Name, Component: comp})
	}

	initial, inputs := assignments(sc, members)
	sched, err := master.New(members, sc.Edges(), master.Options{
		Start:           sc.Sim.Start,
		Stop:            sc.Sim.Stop,
		Step:            sc.Sim.Step,
		StopTimeDefined: sc.Sim.StopTime,
		LogVariables:    sc.LogPorts(),
		Discard:         sc.DiscardPolicy(),
		Initial:         initial,
		Inputs:          inputs,
		Attack:          atk,
		Logger:          d.Logger,
	})
	if err != nil {
		return nil, err
	}

	set := make(metrics.Set, 0, len(sc.Output.Metrics))
	for i, mc := range sc.Output.Metrics {
		m, err := metrics.New(mc.Kind, mc.Column, mc.Bound, sched.Columns())
		if err != nil {
			return nil, &config.ConfigurationError{Field: fmt.Sprintf("output.metrics[%d]", i), Reason: err.Error()}
		}
		set = append(set, m)
	}
	if len(set) > 0 {
		sched.Observe(set)
	}
	for _, o := range d.Observers {
		sched.Observe(o)
	}

	d.Logger.Debug("run prepared",
		"scenario", sc.Name,
		"components", len(members),
		"edges", len(sched.Graph().Edges),
		"steps", sched.Steps(),
		"attack", atk.ScenarioID().String(),
		"seed", seed)
	prepared = true
	return &Prepared{Scenario: sc, Scheduler: sched, Attack: atk, Metrics: set, Seed: seed}, nil
}

// release frees components that never made it into a scheduler.
func release(members []master.Member) {
	for _, m := range members {
		_ = m.Component.Close()
	}
}

func (d *Driver) resolve(ctx context.Context, sc *config.Scenario, cc config.ComponentConfig) (*fmi.Component, error) {
	if cc.Builtin != "" {
		md, rt, err := d.Registry.New(cc.Builtin, components.Options{Integrator: cc.Integrator, Fidelity: cc.Fidelity})
		if err != nil {
			return nil, err
		}
		return fmi.NewComponent(cc.Name, md, rt), nil
	}

	if d.Cache == nil {
		return nil, errors.New("driver: no artifact cache configured")
	}
	kind, err := artifact.ParseBuildKind(sc.Sim.Kind)
	if err != nil {
		return nil, err
	}
	art, err := d.Cache.Build(ctx, artifact.Request{
		ModelPath: cc.Model.Path,
		ClassName: cc.Model.Class,
		Kind:      kind,
		Options:   cc.Model.Options,
		Extra:     cc.Model.Extra,
	})
	if err != nil {
		return nil, err
	}
	md, rt, err := d.Loader.Load(ctx, art)
	if err != nil {
		return nil, err
	}
	return fmi.NewComponent(cc.Name, md, rt), nil
}

// assignments collects the values written during initialization and the
// constant inputs. Initial values go in increasing precedence: the sample
// interval, scenario-wide params, then per-component parameters.
func assignments(sc *config.Scenario, members []master.Member) (initial, inputs []master.Assignment) {
	for _, m := range members {
		port := func(v string) master.Port { return master.Port{Component: m.Name, Variable: v} }
		if m.Component.HasVariable(SampleInterval) {
			initial = append(initial, master.Assignment{Port: port(SampleInterval), Value: sc.Sim.Step + 1e-9})
		}
		for _, name := range sortedKeys(sc.Params) {
			if m.Component.HasVariable(name) {
				initial = append(initial, master.Assignment{Port: port(name), Value: sc.Params[name]})
			}
		}
		cc, _ := sc.Component(m.Name)
		for _, name := range sortedKeys(cc.Parameters) {
			initial = append(initial, master.Assignment{Port: port(name), Value: cc.Parameters[name]})
		}
		for _, name := range sortedKeys(cc.Inputs) {
			inputs = append(inputs, master.Assignment{Port: port(name), Value: cc.Inputs[name]})
		}
	}
	return initial, inputs
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
