package master_test

import (
	"fmt"

	"github.com/san-kum/cosim/internal/attack"
	"github.com/san-kum/cosim/internal/fmi"
	"github.com/san-kum/cosim/internal/master"
)

// fakeModel is a scripted component runtime. It records every lifecycle
// call into a journal shared by all fakes and snapshots its inputs at each
// DoStep.
type fakeModel struct {
	name     string
	vars     []fmi.Variable
	refs     map[string]fmi.ValueRef
	vals     map[fmi.ValueRef]float64
	statuses map[int]fmi.Status
	onStep   func(m *fakeModel, t, h float64)
	journal  *[]string

	stepCalls int
	steps     []stepCall
	stopSet   bool
}

type stepCall struct {
	T, H   float64
	Inputs map[string]float64
}

type fakeVar struct {
	name  string
	c     fmi.Causality
	v     fmi.Variability
	start float64
}

func in(name string, start float64) fakeVar  { return fakeVar{name, fmi.CausalityInput, fmi.VariabilityContinuous, start} }
func out(name string, start float64) fakeVar { return fakeVar{name, fmi.CausalityOutput, fmi.VariabilityContinuous, start} }
func par(name string, start float64) fakeVar { return fakeVar{name, fmi.CausalityParameter, fmi.VariabilityParameter, start} }

func newFake(name string, journal *[]string, vars ...fakeVar) *fakeModel {
	m := &fakeModel{
		name:     name,
		refs:     make(map[string]fmi.ValueRef),
		vals:     make(map[fmi.ValueRef]float64),
		statuses: make(map[int]fmi.Status),
		journal:  journal,
	}
	for i, fv := range vars {
		ref := fmi.ValueRef(i + 1)
		start := fv.start
		m.vars = append(m.vars, fmi.Variable{
			Name:        fv.name,
			Ref:         ref,
			Causality:   fv.c,
			Variability: fv.v,
			Type:        fmi.TypeReal,
			Start:       &start,
		})
		m.refs[fv.name] = ref
		m.vals[ref] = fv.start
	}
	return m
}

func (m *fakeModel) component() *fmi.Component {
	md := &fmi.ModelDescription{FMIVersion: "2.0", ModelName: m.name, Variables: m.vars}
	return fmi.NewComponent(m.name, md, m)
}

func (m *fakeModel) member() master.Member {
	return master.Member{Name: m.name, Component: m.component()}
}

func (m *fakeModel) get(name string) float64    { return m.vals[m.refs[name]] }
func (m *fakeModel) set(name string, v float64) { m.vals[m.refs[name]] = v }
func (m *fakeModel) record(op string)           { *m.journal = append(*m.journal, m.name+":"+op) }

func (m *fakeModel) Instantiate(string, bool) fmi.Status {
	m.record("instantiate")
	return fmi.StatusOK
}

func (m *fakeModel) SetupExperiment(start, stop float64, defined bool) fmi.Status {
	m.record("setup")
	m.stopSet = defined
	return fmi.StatusOK
}

func (m *fakeModel) EnterInitializationMode() fmi.Status { m.record("enter"); return fmi.StatusOK }
func (m *fakeModel) ExitInitializationMode() fmi.Status  { m.record("exit"); return fmi.StatusOK }

func (m *fakeModel) DoStep(t, h float64, noSetStatePrior bool) fmi.Status {
	m.stepCalls++
	m.record(fmt.Sprintf("step%d", m.stepCalls))
	if st, ok := m.statuses[m.stepCalls]; ok && st != fmi.StatusOK {
		return st
	}
	inputs := make(map[string]float64)
	for _, v := range m.vars {
		if v.Causality == fmi.CausalityInput || v.Causality == fmi.CausalityParameter {
			inputs[v.Name] = m.vals[v.Ref]
		}
	}
	m.steps = append(m.steps, stepCall{T: t, H: h, Inputs: inputs})
	if m.onStep != nil {
		m.onStep(m, t, h)
	}
	return fmi.StatusOK
}

func (m *fakeModel) Terminate() fmi.Status { m.record("terminate"); return fmi.StatusOK }
func (m *fakeModel) FreeInstance()         { m.record("free") }

func (m *fakeModel) GetReal(refs []fmi.ValueRef, out []float64) fmi.Status {
	for i, r := range refs {
		out[i] = m.vals[r]
	}
	return fmi.StatusOK
}

func (m *fakeModel) SetReal(refs []fmi.ValueRef, v []float64) fmi.Status {
	for i, r := range refs {
		m.vals[r] = v[i]
	}
	return fmi.StatusOK
}

func (m *fakeModel) GetInteger(refs []fmi.ValueRef, out []int32) fmi.Status {
	for i, r := range refs {
		out[i] = int32(m.vals[r])
	}
	return fmi.StatusOK
}

func (m *fakeModel) SetInteger(refs []fmi.ValueRef, v []int32) fmi.Status {
	for i, r := range refs {
		m.vals[r] = float64(v[i])
	}
	return fmi.StatusOK
}

func (m *fakeModel) GetBoolean(refs []fmi.ValueRef, out []bool) fmi.Status {
	for i, r := range refs {
		out[i] = m.vals[r] != 0
	}
	return fmi.StatusOK
}

func (m *fakeModel) SetBoolean(refs []fmi.ValueRef, v []bool) fmi.Status {
	for i, r := range refs {
		m.vals[r] = 0
		if v[i] {
			m.vals[r] = 1
		}
	}
	return fmi.StatusOK
}

// scriptedInjector returns fixed parameters and a substitution computed from
// the staged and current values it is handed.
type scriptedInjector struct {
	params     []attack.Override
	substitute func(staged attack.Staged, read attack.Reader) []attack.Override
}

func (s scriptedInjector) Parameters() []attack.Override { return s.params }

func (s scriptedInjector) Substitute(staged attack.Staged, read attack.Reader) []attack.Override {
	if s.substitute == nil {
		return nil
	}
	return s.substitute(staged, read)
}

func count(journal []string, entry string) int {
	n := 0
	for _, e := range journal {
		if e == entry {
			n++
		}
	}
	return n
}
