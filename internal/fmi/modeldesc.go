package fmi

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
)

// ModelDescription is the subset of modelDescription.xml the orchestrator
// needs: identity, the co-simulation section and the variable list.
type ModelDescription struct {
	FMIVersion   string
	ModelName    string
	GUID         string
	CoSimulation *CoSimulation
	Variables    []Variable
}

type CoSimulation struct {
	ModelIdentifier                        string
	CanHandleVariableCommunicationStepSize bool
}

// Interface classifies the description's variables.
func (md *ModelDescription) Interface() Interface {
	return Classify(md.Variables)
}

type xmlModelDescription struct {
	XMLName      xml.Name       `xml:"fmiModelDescription"`
	FMIVersion   string         `xml:"fmiVersion,attr"`
	ModelName    string         `xml:"modelName,attr"`
	GUID         string         `xml:"guid,attr"`
	CoSimulation *xmlCoSim      `xml:"CoSimulation"`
	Variables    []xmlScalarVar `xml:"ModelVariables>ScalarVariable"`
}

type xmlCoSim struct {
	ModelIdentifier       string `xml:"modelIdentifier,attr"`
	CanHandleVariableStep bool   `xml:"canHandleVariableCommunicationStepSize,attr"`
}

type xmlScalarVar struct {
	Name           string      `xml:"name,attr"`
	ValueReference uint32      `xml:"valueReference,attr"`
	Causality      string      `xml:"causality,attr"`
	Variability    string      `xml:"variability,attr"`
	Real           *xmlTypeRef `xml:"Real"`
	Integer        *xmlTypeRef `xml:"Integer"`
	Boolean        *xmlTypeRef `xml:"Boolean"`
	String         *xmlTypeRef `xml:"String"`
	Enumeration    *xmlTypeRef `xml:"Enumeration"`
}

type xmlTypeRef struct {
	Start string `xml:"start,attr"`
}

// ParseModelDescription decodes a modelDescription.xml document.
func ParseModelDescription(r io.Reader) (*ModelDescription, error) {
	var raw xmlModelDescription
	if err := xml.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("fmi: decode model description: %w", err)
	}

	md := &ModelDescription{
		FMIVersion: raw.FMIVersion,
		ModelName:  raw.ModelName,
		GUID:       raw.GUID,
		Variables:  make([]Variable, 0, len(raw.Variables)),
	}
	if raw.CoSimulation != nil {
		md.CoSimulation = &CoSimulation{
			ModelIdentifier:                        raw.CoSimulation.ModelIdentifier,
			CanHandleVariableCommunicationStepSize: raw.CoSimulation.CanHandleVariableStep,
		}
	}

	for _, sv := range raw.Variables {
		v := Variable{
			Name:        sv.Name,
			Ref:         ValueRef(sv.ValueReference),
			Causality:   ParseCausality(sv.Causality),
			Variability: ParseVariability(sv.Variability),
		}
		var ref *xmlTypeRef
		switch {
		case sv.Real != nil:
			v.Type, ref = TypeReal, sv.Real
		case sv.Integer != nil:
			v.Type, ref = TypeInteger, sv.Integer
		case sv.Boolean != nil:
			v.Type, ref = TypeBoolean, sv.Boolean
		case sv.String != nil:
			v.Type = TypeString
		case sv.Enumeration != nil:
			v.Type, ref = TypeEnumeration, sv.Enumeration
		default:
			return nil, fmt.Errorf("fmi: variable %q has no type element", sv.Name)
		}
		if ref != nil && ref.Start != "" {
			if start, ok := parseStart(v.Type, ref.Start); ok {
				v.Start = &start
			}
		}
		md.Variables = append(md.Variables, v)
	}
	return md, nil
}

func parseStart(t BaseType, s string) (float64, bool) {
	if t == TypeBoolean {
		b, err := strconv.ParseBool(s)
		if err != nil {
			return 0, false
		}
		if b {
			return 1, true
		}
		return 0, true
	}
	f, err := strconv.ParseFloat(s, 64)
	return f, err == nil
}

// ReadModelDescription opens an .fmu archive and parses its model description.
func ReadModelDescription(fmuPath string) (*ModelDescription, error) {
	zr, err := zip.OpenReader(fmuPath)
	if err != nil {
		return nil, fmt.Errorf("fmi: open %s: %w", fmuPath, err)
	}
	defer zr.Close()

	for _, f := range zr.File {
		if f.Name != "modelDescription.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("fmi: open model description: %w", err)
		}
		defer rc.Close()
		return ParseModelDescription(rc)
	}
	return nil, fmt.Errorf("fmi: %s has no modelDescription.xml", fmuPath)
}
