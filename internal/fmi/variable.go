package fmi

import (
	"fmt"
	"sort"
)

type Causality int

const (
	CausalityOther Causality = iota
	CausalityInput
	CausalityOutput
	CausalityParameter
	CausalityLocal
)

func (c Causality) String() string {
	switch c {
	case CausalityInput:
		return "input"
	case CausalityOutput:
		return "output"
	case CausalityParameter:
		return "parameter"
	case CausalityLocal:
		return "local"
	default:
		return "other"
	}
}

// ParseCausality maps an FMI causality attribute. Values outside the known set
// (independent, calculatedParameter, empty) map to CausalityOther.
func ParseCausality(s string) Causality {
	switch s {
	case "input":
		return CausalityInput
	case "output":
		return CausalityOutput
	case "parameter":
		return CausalityParameter
	case "local":
		return CausalityLocal
	default:
		return CausalityOther
	}
}

type Variability int

const (
	VariabilityOther Variability = iota
	VariabilityConstant
	VariabilityParameter
	VariabilityDiscrete
	VariabilityContinuous
)

func (v Variability) String() string {
	switch v {
	case VariabilityConstant:
		return "constant"
	case VariabilityParameter:
		return "parameter"
	case VariabilityDiscrete:
		return "discrete"
	case VariabilityContinuous:
		return "continuous"
	default:
		return "other"
	}
}

func ParseVariability(s string) Variability {
	switch s {
	case "constant":
		return VariabilityConstant
	case "parameter", "fixed", "tunable":
		return VariabilityParameter
	case "discrete":
		return VariabilityDiscrete
	case "continuous":
		return VariabilityContinuous
	default:
		return VariabilityOther
	}
}

type BaseType int

const (
	TypeReal BaseType = iota
	TypeInteger
	TypeBoolean
	TypeString
	TypeEnumeration
)

func (t BaseType) String() string {
	switch t {
	case TypeReal:
		return "real"
	case TypeInteger:
		return "integer"
	case TypeBoolean:
		return "boolean"
	case TypeString:
		return "string"
	case TypeEnumeration:
		return "enumeration"
	default:
		return fmt.Sprintf("type(%d)", int(t))
	}
}

// ValueRef is the integer handle a runtime uses to address a variable.
type ValueRef uint32

// Variable describes one model variable. It is immutable once derived.
type Variable struct {
	Name        string
	Ref         ValueRef
	Causality   Causality
	Variability Variability
	Type        BaseType
	Start       *float64
}

// Group is the interface role assigned by Classify.
type Group int

const (
	GroupInput Group = iota
	GroupOutput
	GroupParameter
	GroupLocal
)

func (g Group) String() string {
	switch g {
	case GroupInput:
		return "input"
	case GroupOutput:
		return "output"
	case GroupParameter:
		return "parameter"
	default:
		return "local"
	}
}

// GroupOf applies the classification precedence: input, output, then
// parameter by variability or causality, then local.
func GroupOf(v Variable) Group {
	switch {
	case v.Causality == CausalityInput:
		return GroupInput
	case v.Causality == CausalityOutput:
		return GroupOutput
	case v.Variability == VariabilityParameter || v.Causality == CausalityParameter:
		return GroupParameter
	default:
		return GroupLocal
	}
}

// Interface is the discovered variable interface of one component.
type Interface struct {
	Inputs     []Variable
	Outputs    []Variable
	Parameters []Variable
	Locals     []Variable

	byName map[string]Variable
}

// Classify groups variables by role, each group sorted by name, and builds
// the name lookup used for every later access.
func Classify(vars []Variable) Interface {
	iface := Interface{byName: make(map[string]Variable, len(vars))}
	for _, v := range vars {
		iface.byName[v.Name] = v
		switch GroupOf(v) {
		case GroupInput:
			iface.Inputs = append(iface.Inputs, v)
		case GroupOutput:
			iface.Outputs = append(iface.Outputs, v)
		case GroupParameter:
			iface.Parameters = append(iface.Parameters, v)
		default:
			iface.Locals = append(iface.Locals, v)
		}
	}
	for _, g := range [][]Variable{iface.Inputs, iface.Outputs, iface.Parameters, iface.Locals} {
		sort.Slice(g, func(i, j int) bool { return g[i].Name < g[j].Name })
	}
	return iface
}

func (i Interface) Has(name string) bool {
	_, ok := i.byName[name]
	return ok
}

func (i Interface) Lookup(name string) (Variable, bool) {
	v, ok := i.byName[name]
	return v, ok
}

// Names returns the variable names of a group in their sorted order.
func (i Interface) Names(g Group) []string {
	var src []Variable
	switch g {
	case GroupInput:
		src = i.Inputs
	case GroupOutput:
		src = i.Outputs
	case GroupParameter:
		src = i.Parameters
	default:
		src = i.Locals
	}
	names := make([]string, len(src))
	for k, v := range src {
		names[k] = v.Name
	}
	return names
}

func (i Interface) Len() int { return len(i.byName) }
