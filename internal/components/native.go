package components

import (
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/san-kum/cosim/internal/fmi"
)

// ErrDiscard is returned by a Model that refuses a step. The model must
// leave its state untouched when it does.
var ErrDiscard = errors.New("components: step discarded")

// VarSpec declares one variable of a builtin model.
type VarSpec struct {
	Name        string
	Causality   fmi.Causality
	Variability fmi.Variability
	Type        fmi.BaseType
	Start       float64
}

func Input(name string, start float64) VarSpec {
	return VarSpec{Name: name, Causality: fmi.CausalityInput, Variability: fmi.VariabilityContinuous, Start: start}
}

func Output(name string, start float64) VarSpec {
	return VarSpec{Name: name, Causality: fmi.CausalityOutput, Variability: fmi.VariabilityContinuous, Start: start}
}

func Param(name string, start float64) VarSpec {
	return VarSpec{Name: name, Causality: fmi.CausalityParameter, Variability: fmi.VariabilityParameter, Start: start}
}

func Local(name string, start float64) VarSpec {
	return VarSpec{Name: name, Causality: fmi.CausalityLocal, Variability: fmi.VariabilityContinuous, Start: start}
}

// Model is a component implemented in Go. It sees its variables through
// Vars and is stepped by Native with FMI semantics.
type Model interface {
	Variables() []VarSpec
	// Init runs when initialization mode is left, after start values and
	// parameters are in place.
	Init(v *Vars, start float64) error
	DoStep(v *Vars, t, h float64) error
}

// Vars is the value store of one Native instance, addressed by name.
type Vars struct {
	index  map[string]int
	values []float64
}

func newVars(specs []VarSpec) *Vars {
	v := &Vars{index: make(map[string]int, len(specs)), values: make([]float64, len(specs))}
	for i, s := range specs {
		v.index[s.Name] = i
		v.values[i] = s.Start
	}
	return v
}

// Get panics on an undeclared name; that is a bug in the model.
func (v *Vars) Get(name string) float64 {
	i, ok := v.index[name]
	if !ok {
		panic(fmt.Sprintf("components: undeclared variable %q", name))
	}
	return v.values[i]
}

func (v *Vars) Set(name string, x float64) {
	i, ok := v.index[name]
	if !ok {
		panic(fmt.Sprintf("components: undeclared variable %q", name))
	}
	v.values[i] = x
}

func (v *Vars) Has(name string) bool {
	_, ok := v.index[name]
	return ok
}

// Description derives the model description of a builtin. Value references
// are the declaration index plus one and the GUID is stable per name and
// variable list.
func Description(name string, m Model) *fmi.ModelDescription {
	specs := m.Variables()
	md := &fmi.ModelDescription{
		FMIVersion: "2.0",
		ModelName:  name,
		CoSimulation: &fmi.CoSimulation{
			ModelIdentifier:                        name,
			CanHandleVariableCommunicationStepSize: true,
		},
		Variables: make([]fmi.Variable, len(specs)),
	}
	seed := name
	for i, s := range specs {
		start := s.Start
		md.Variables[i] = fmi.Variable{
			Name:        s.Name,
			Ref:         fmi.ValueRef(i + 1),
			Causality:   s.Causality,
			Variability: s.Variability,
			Type:        s.Type,
			Start:       &start,
		}
		seed += "|" + s.Name
	}
	md.GUID = "{" + uuid.NewSHA1(uuid.NameSpaceOID, []byte(seed)).String() + "}"
	return md
}

// Native adapts a Model to fmi.Runtime so builtins go through the same
// lifecycle checks as loaded artifacts.
type Native struct {
	model       Model
	specs       []VarSpec
	vars        *Vars
	start       float64
	stop        float64
	stopDefined bool
	// Err holds the last model error for diagnostics.
	Err error
}

func NewNative(m Model) *Native {
	return &Native{model: m, specs: m.Variables()}
}

func (n *Native) Instantiate(instanceName string, loggingOn bool) fmi.Status {
	n.vars = newVars(n.specs)
	return fmi.StatusOK
}

func (n *Native) SetupExperiment(startTime, stopTime float64, stopTimeDefined bool) fmi.Status {
	n.start, n.stop, n.stopDefined = startTime, stopTime, stopTimeDefined
	return fmi.StatusOK
}

func (n *Native) EnterInitializationMode() fmi.Status { return fmi.StatusOK }

func (n *Native) ExitInitializationMode() fmi.Status {
	if err := n.model.Init(n.vars, n.start); err != nil {
		n.Err = err
		return fmi.StatusError
	}
	return fmi.StatusOK
}

func (n *Native) DoStep(currentTime, stepSize float64, noSetStatePrior bool) fmi.Status {
	if stepSize <= 0 {
		n.Err = fmt.Errorf("components: non-positive step %g", stepSize)
		return fmi.StatusError
	}
	if n.stopDefined && currentTime+stepSize > n.stop+1e-9*math.Max(1, math.Abs(n.stop)) {
		n.Err = fmt.Errorf("components: step to %g passes stop time %g", currentTime+stepSize, n.stop)
		return fmi.StatusError
	}
	err := n.model.DoStep(n.vars, currentTime, stepSize)
	switch {
	case err == nil:
		return fmi.StatusOK
	case errors.Is(err, ErrDiscard):
		return fmi.StatusDiscard
	default:
		n.Err = err
		return fmi.StatusError
	}
}

func (n *Native) Terminate() fmi.Status { return fmi.StatusOK }
func (n *Native) FreeInstance()         { n.vars = nil }

func (n *Native) lookup(ref fmi.ValueRef) (int, bool) {
	i := int(ref) - 1
	if n.vars == nil || i < 0 || i >= len(n.specs) {
		return 0, false
	}
	return i, true
}

func (n *Native) writable(i int) bool {
	s := n.specs[i]
	return s.Causality != fmi.CausalityOutput && s.Variability != fmi.VariabilityConstant
}

func (n *Native) get(refs []fmi.ValueRef, each func(k int, x float64)) fmi.Status {
	for k, ref := range refs {
		i, ok := n.lookup(ref)
		if !ok {
			return fmi.StatusError
		}
		each(k, n.vars.values[i])
	}
	return fmi.StatusOK
}

func (n *Native) set(refs []fmi.ValueRef, value func(k int) float64) fmi.Status {
	for k, ref := range refs {
		i, ok := n.lookup(ref)
		if !ok || !n.writable(i) {
			return fmi.StatusError
		}
		n.vars.values[i] = value(k)
	}
	return fmi.StatusOK
}

func (n *Native) GetReal(refs []fmi.ValueRef, out []float64) fmi.Status {
	return n.get(refs, func(k int, x float64) { out[k] = x })
}

func (n *Native) SetReal(refs []fmi.ValueRef, values []float64) fmi.Status {
	return n.set(refs, func(k int) float64 { return values[k] })
}

func (n *Native) GetInteger(refs []fmi.ValueRef, out []int32) fmi.Status {
	return n.get(refs, func(k int, x float64) { out[k] = int32(math.Round(x)) })
}

func (n *Native) SetInteger(refs []fmi.ValueRef, values []int32) fmi.Status {
	return n.set(refs, func(k int) float64 { return float64(values[k]) })
}

func (n *Native) GetBoolean(refs []fmi.ValueRef, out []bool) fmi.Status {
	return n.get(refs, func(k int, x float64) { out[k] = x != 0 })
}

func (n *Native) SetBoolean(refs []fmi.ValueRef, values []bool) fmi.Status {
	return n.set(refs, func(k int) float64 {
		if values[k] {
			return 1
		}
		return 0
	})
}

// sampler gates a discrete-time update to every interval seconds. A zero
// interval samples on every step.
type sampler struct {
	interval float64
	next     float64
}

func (s *sampler) reset(interval, start float64) {
	s.interval = interval
	s.next = start
}

func (s *sampler) due(t, h float64) bool {
	if s.interval <= 0 {
		return true
	}
	if t >= s.next-h/2 {
		s.next = t + s.interval
		return true
	}
	return false
}
