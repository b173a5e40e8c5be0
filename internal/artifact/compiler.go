package artifact

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// BuildKind selects the FMU flavour the compiler emits.
type BuildKind string

const (
	KindCoSimulation  BuildKind = "cs"
	KindModelExchange BuildKind = "me"
)

// DefaultCompilerBin is the OpenModelica compiler executable.
const DefaultCompilerBin = "omc"

func ParseBuildKind(s string) (BuildKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "cs":
		return KindCoSimulation, nil
	case "me":
		return KindModelExchange, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownBuildKind, s)
	}
}

type CompileRequest struct {
	ModelPath string
	ClassName string
	Kind      BuildKind
	Options   []string
	// WorkDir is a private scratch directory; the artifact must be written
	// inside it and is moved into the cache by the caller.
	WorkDir string
	// OutputName is the artifact base name without extension.
	OutputName string
}

type CompileResult struct {
	ArtifactPath string
	Diagnostics  string
}

// Compiler turns a model source into a loadable component artifact.
type Compiler interface {
	Compile(ctx context.Context, req CompileRequest) (*CompileResult, error)
}

// OMCCompiler drives the OpenModelica compiler through a generated .mos
// script.
type OMCCompiler struct {
	Bin string
}

func NewOMCCompiler(bin string) *OMCCompiler {
	if bin == "" {
		bin = DefaultCompilerBin
	}
	return &OMCCompiler{Bin: bin}
}

func (c *OMCCompiler) Script(req CompileRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "loadModel(Modelica);\n")
	fmt.Fprintf(&b, "loadFile(%q);\n", filepath.ToSlash(req.ModelPath))
	for _, opt := range req.Options {
		fmt.Fprintf(&b, "%s;\n", opt)
	}
	fmt.Fprintf(&b, "buildModelFMU(%s, version=\"2.0\", fmuType=%q, fileNamePrefix=%q);\n",
		req.ClassName, string(req.Kind), req.OutputName)
	fmt.Fprintf(&b, "getErrorString();\n")
	return b.String()
}

func (c *OMCCompiler) Compile(ctx context.Context, req CompileRequest) (*CompileResult, error) {
	scriptPath := filepath.Join(req.WorkDir, "build.mos")
	if err := os.WriteFile(scriptPath, []byte(c.Script(req)), 0644); err != nil {
		return nil, fmt.Errorf("writing build script: %w", err)
	}

	cmd := exec.CommandContext(ctx, c.Bin, "build.mos")
	cmd.Dir = req.WorkDir
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	runErr := cmd.Run()
	res := &CompileResult{
		ArtifactPath: filepath.Join(req.WorkDir, req.OutputName+".fmu"),
		Diagnostics:  out.String(),
	}
	if runErr != nil {
		return res, fmt.Errorf("%s: %w", c.Bin, runErr)
	}
	if _, err := os.Stat(res.ArtifactPath); err != nil {
		return res, fmt.Errorf("%s produced no artifact at %s", c.Bin, res.ArtifactPath)
	}
	return res, nil
}
