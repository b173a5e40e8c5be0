package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/cosim/internal/artifact"
	"github.com/san-kum/cosim/internal/attack"
	"github.com/san-kum/cosim/internal/master"
)

const (
	DefaultStart           = 0.0
	DefaultStop            = 10.0
	DefaultStep            = 0.1
	DefaultMaxSubdivisions = 4
	DefaultDataDir         = "data"
	DefaultCacheDir        = "build"
)

const (
	DiscardFail      = "fail"
	DiscardSubdivide = "subdivide"
)

// ErrConfiguration is the error every scenario problem unwraps to.
var ErrConfiguration = master.ErrConfiguration

type ConfigurationError = master.ConfigurationError

type Scenario struct {
	Name        string            `yaml:"name"`
	Sim         SimConfig         `yaml:"sim"`
	Components  []ComponentConfig `yaml:"components"`
	Connections []Connection      `yaml:"connections,omitempty"`
	Attack      AttackConfig      `yaml:"attack"`
	// Params are written to every component that declares them.
	Params map[string]float64 `yaml:"params,omitempty"`
	Log    []string           `yaml:"log,omitempty"`
	Output OutputConfig       `yaml:"output"`
}

type SimConfig struct {
	Start float64 `yaml:"start"`
	Stop  float64 `yaml:"stop"`
	Step  float64 `yaml:"step"`
	Kind  string  `yaml:"kind"`
	// StopTime passes Stop to the components. Off by default because a
	// component given a stop time may refuse the last step.
	StopTime        bool   `yaml:"stop_time"`
	Discard         string `yaml:"discard"`
	MaxSubdivisions int    `yaml:"max_subdivisions"`
}

type ComponentConfig struct {
	Name       string             `yaml:"name"`
	Builtin    string             `yaml:"builtin,omitempty"`
	Integrator string             `yaml:"integrator,omitempty"`
	Fidelity   int                `yaml:"fidelity,omitempty"`
	Model      *ModelSource       `yaml:"model,omitempty"`
	Parameters map[string]float64 `yaml:"parameters,omitempty"`
	Inputs     map[string]float64 `yaml:"inputs,omitempty"`
}

type ModelSource struct {
	Path    string   `yaml:"path"`
	Class   string   `yaml:"class"`
	Options []string `yaml:"options,omitempty"`
	Extra   string   `yaml:"extra,omitempty"`
}

type Connection struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

type AttackConfig struct {
	attack.Config `yaml:",inline"`
	// Seed is drawn from the clock when unset and recorded with the run.
	Seed *int64 `yaml:"seed,omitempty"`
}

type OutputConfig struct {
	Dir     string         `yaml:"dir"`
	Cache   string         `yaml:"cache"`
	Metrics []MetricConfig `yaml:"metrics,omitempty"`
}

type MetricConfig struct {
	Kind   string  `yaml:"kind"`
	Column string  `yaml:"column"`
	Bound  float64 `yaml:"bound,omitempty"`
}

func DefaultScenario() *Scenario {
	return &Scenario{
		Name: "scenario",
		Sim: SimConfig{
			Start:           DefaultStart,
			Stop:            DefaultStop,
			Step:            DefaultStep,
			Kind:            string(artifact.KindCoSimulation),
			Discard:         DiscardFail,
			MaxSubdivisions: DefaultMaxSubdivisions,
		},
		Attack: AttackConfig{Config: attack.DefaultConfig()},
		Output: OutputConfig{
			Dir:   DefaultDataDir,
			Cache: DefaultCacheDir,
		},
	}
}

// Parse decodes a scenario document over the defaults and validates it.
func Parse(data []byte) (*Scenario, error) {
	s := DefaultScenario()
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, &ConfigurationError{Reason: err.Error()}
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

func Save(path string, s *Scenario) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Clone returns a deep copy.
func (s *Scenario) Clone() *Scenario {
	data, err := yaml.Marshal(s)
	if err != nil {
		panic(fmt.Sprintf("config: cloning scenario: %v", err))
	}
	c := &Scenario{}
	if err := yaml.Unmarshal(data, c); err != nil {
		panic(fmt.Sprintf("config: cloning scenario: %v", err))
	}
	return c
}

func invalid(field, format string, args ...any) error {
	return &ConfigurationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Validate checks everything that can be checked without loading a
// component. Graph checks against component interfaces happen in the
// scheduler, still before the first step.
func (s *Scenario) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return invalid("name", "must not be empty")
	}
	if s.Sim.Step <= 0 {
		return invalid("sim.step", "must be positive, got %g", s.Sim.Step)
	}
	if s.Sim.Stop <= s.Sim.Start {
		return invalid("sim.stop", "must be after sim.start")
	}
	if master.StepCount(s.Sim.Start, s.Sim.Stop, s.Sim.Step) < 1 {
		return invalid("sim.step", "longer than the run")
	}
	if _, err := artifact.ParseBuildKind(s.Sim.Kind); err != nil {
		return invalid("sim.kind", "%v", err)
	}
	switch s.Sim.Discard {
	case "", DiscardFail:
	case DiscardSubdivide:
		if s.Sim.MaxSubdivisions < 1 {
			return invalid("sim.max_subdivisions", "must be at least 1")
		}
	default:
		return invalid("sim.discard", "unknown policy %q", s.Sim.Discard)
	}

	if len(s.Components) == 0 {
		return invalid("components", "at least one component is required")
	}
	names := make(map[string]bool, len(s.Components))
	for i, c := range s.Components {
		field := fmt.Sprintf("components[%d]", i)
		if c.Name == "" || strings.Contains(c.Name, ".") {
			return invalid(field+".name", "must be non-empty and contain no dots, got %q", c.Name)
		}
		if names[c.Name] {
			return invalid(field+".name", "duplicate component %q", c.Name)
		}
		names[c.Name] = true
		switch {
		case c.Builtin != "" && c.Model != nil:
			return invalid(field, "builtin and model are mutually exclusive")
		case c.Builtin == "" && c.Model == nil:
			return invalid(field, "one of builtin or model is required")
		case c.Model != nil && (c.Model.Path == "" || c.Model.Class == ""):
			return invalid(field+".model", "path and class are required")
		}
	}

	for i, c := range s.Connections {
		e, err := master.ParseEdge(c.From, c.To)
		if err != nil {
			return invalid(fmt.Sprintf("connections[%d]", i), "%v", err)
		}
		for _, comp := range []string{e.From.Component, e.To.Component} {
			if !names[comp] {
				return invalid(fmt.Sprintf("connections[%d]", i), "unknown component %q", comp)
			}
		}
	}
	for i, l := range s.Log {
		p, err := master.ParsePort(l)
		if err != nil {
			return invalid(fmt.Sprintf("log[%d]", i), "%v", err)
		}
		if !names[p.Component] {
			return invalid(fmt.Sprintf("log[%d]", i), "unknown component %q", p.Component)
		}
	}

	if _, err := attack.New(s.Attack.Config, 0); err != nil {
		return invalid("attack", "%v", err)
	}
	for i, m := range s.Output.Metrics {
		if m.Column == "" {
			return invalid(fmt.Sprintf("output.metrics[%d]", i), "column is required")
		}
	}
	return nil
}

// Edges returns the parsed connection graph. Call after Validate.
func (s *Scenario) Edges() []master.Edge {
	edges := make([]master.Edge, 0, len(s.Connections))
	for _, c := range s.Connections {
		if e, err := master.ParseEdge(c.From, c.To); err == nil {
			edges = append(edges, e)
		}
	}
	return edges
}

// LogPorts returns the parsed log variables. Call after Validate.
func (s *Scenario) LogPorts() []master.Port {
	ports := make([]master.Port, 0, len(s.Log))
	for _, l := range s.Log {
		if p, err := master.ParsePort(l); err == nil {
			ports = append(ports, p)
		}
	}
	return ports
}

// DiscardPolicy maps the sim section onto a scheduler policy.
func (s *Scenario) DiscardPolicy() master.DiscardPolicy {
	if s.Sim.Discard == DiscardSubdivide {
		return master.Subdivide{MaxDepth: s.Sim.MaxSubdivisions}
	}
	return master.FailOnDiscard{}
}

func (s *Scenario) Component(name string) (ComponentConfig, bool) {
	for _, c := range s.Components {
		if c.Name == name {
			return c, true
		}
	}
	return ComponentConfig{}, false
}
