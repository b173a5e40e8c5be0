package fmi

import (
	"reflect"
	"strings"
	"testing"
)

func TestClassify(t *testing.T) {
	vars := []Variable{
		{Name: "d", Causality: CausalityLocal},
		{Name: "c", Variability: VariabilityParameter},
		{Name: "b", Causality: CausalityOutput},
		{Name: "a", Causality: CausalityInput},
	}

	iface := Classify(vars)

	tests := []struct {
		group Group
		want  []string
	}{
		{GroupInput, []string{"a"}},
		{GroupOutput, []string{"b"}},
		{GroupParameter, []string{"c"}},
		{GroupLocal, []string{"d"}},
	}
	for _, tt := range tests {
		if got := iface.Names(tt.group); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("%s = %v, want %v", tt.group, got, tt.want)
		}
	}
}

func TestClassifyPrecedence(t *testing.T) {
	tests := []struct {
		name string
		v    Variable
		want Group
	}{
		{"input beats parameter variability", Variable{Causality: CausalityInput, Variability: VariabilityParameter}, GroupInput},
		{"output beats parameter variability", Variable{Causality: CausalityOutput, Variability: VariabilityParameter}, GroupOutput},
		{"parameter causality", Variable{Causality: CausalityParameter}, GroupParameter},
		{"local with parameter variability", Variable{Causality: CausalityLocal, Variability: VariabilityParameter}, GroupParameter},
		{"independent is local", Variable{Causality: CausalityOther, Variability: VariabilityContinuous}, GroupLocal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GroupOf(tt.v); got != tt.want {
				t.Errorf("GroupOf = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestClassifySorted(t *testing.T) {
	iface := Classify([]Variable{
		{Name: "zeta", Causality: CausalityOutput},
		{Name: "alpha", Causality: CausalityOutput},
		{Name: "mid", Causality: CausalityOutput},
	})
	want := []string{"alpha", "mid", "zeta"}
	if got := iface.Names(GroupOutput); !reflect.DeepEqual(got, want) {
		t.Errorf("outputs = %v, want %v", got, want)
	}
	if !iface.Has("mid") || iface.Has("nope") {
		t.Error("Has lookup mismatch")
	}
}

const sampleDescription = `<?xml version="1.0" encoding="UTF-8"?>
<fmiModelDescription fmiVersion="2.0" modelName="Rover" guid="{abc}">
  <CoSimulation modelIdentifier="Rover" canHandleVariableCommunicationStepSize="true"/>
  <ModelVariables>
    <ScalarVariable name="pwm_throttle" valueReference="0" causality="input" variability="continuous">
      <Real start="1500"/>
    </ScalarVariable>
    <ScalarVariable name="x_meas" valueReference="1" causality="output" variability="continuous">
      <Real/>
    </ScalarVariable>
    <ScalarVariable name="W" valueReference="2" causality="parameter" variability="fixed">
      <Real start="0"/>
    </ScalarVariable>
    <ScalarVariable name="s" valueReference="3" causality="local" variability="discrete">
      <Integer start="0"/>
    </ScalarVariable>
    <ScalarVariable name="armed" valueReference="4" causality="local" variability="discrete">
      <Boolean start="true"/>
    </ScalarVariable>
  </ModelVariables>
</fmiModelDescription>`

func TestParseModelDescription(t *testing.T) {
	md, err := ParseModelDescription(strings.NewReader(sampleDescription))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if md.ModelName != "Rover" || md.FMIVersion != "2.0" {
		t.Errorf("unexpected header: %+v", md)
	}
	if md.CoSimulation == nil || md.CoSimulation.ModelIdentifier != "Rover" {
		t.Fatal("missing co-simulation section")
	}
	if len(md.Variables) != 5 {
		t.Fatalf("expected 5 variables, got %d", len(md.Variables))
	}

	iface := md.Interface()
	if got := iface.Names(GroupInput); !reflect.DeepEqual(got, []string{"pwm_throttle"}) {
		t.Errorf("inputs = %v", got)
	}
	if got := iface.Names(GroupParameter); !reflect.DeepEqual(got, []string{"W"}) {
		t.Errorf("parameters = %v", got)
	}
	if got := iface.Names(GroupLocal); !reflect.DeepEqual(got, []string{"armed", "s"}) {
		t.Errorf("locals = %v", got)
	}

	v, _ := iface.Lookup("pwm_throttle")
	if v.Start == nil || *v.Start != 1500 {
		t.Error("start value not parsed")
	}
	s, _ := iface.Lookup("s")
	if s.Type != TypeInteger || s.Ref != 3 {
		t.Errorf("unexpected s: %+v", s)
	}
	armed, _ := iface.Lookup("armed")
	if armed.Start == nil || *armed.Start != 1 {
		t.Error("boolean start not parsed")
	}
}

func TestParseModelDescriptionUntyped(t *testing.T) {
	doc := `<fmiModelDescription fmiVersion="2.0"><ModelVariables>
<ScalarVariable name="bad" valueReference="0"/></ModelVariables></fmiModelDescription>`
	if _, err := ParseModelDescription(strings.NewReader(doc)); err == nil {
		t.Error("expected error for variable without type element")
	}
}
