package driver

import (
	"context"
	"errors"
	"fmt"

	"github.com/san-kum/cosim/internal/artifact"
	"github.com/san-kum/cosim/internal/fmi"
)

// ErrNoRuntime is returned when a compiled artifact has no runtime to
// execute it.
var ErrNoRuntime = errors.New("driver: no runtime for compiled artifact")

// Loader binds a compiled artifact to a runtime instance. A runtime that
// implements io.Closer is closed when its component is freed, which also
// happens when Prepare fails after loading it.
type Loader interface {
	Load(ctx context.Context, art *artifact.Artifact) (*fmi.ModelDescription, fmi.Runtime, error)
}

// FMULoader reads the artifact's model description. Executing the packaged
// binary needs a platform runtime, so it reports ErrNoRuntime once the
// description has been checked.
type FMULoader struct{}

func (FMULoader) Load(ctx context.Context, art *artifact.Artifact) (*fmi.ModelDescription, fmi.Runtime, error) {
	md, err := fmi.ReadModelDescription(art.Path)
	if err != nil {
		return nil, nil, err
	}
	if md.CoSimulation == nil {
		return md, nil, fmt.Errorf("driver: %s has no co-simulation interface", art.Path)
	}
	return md, nil, fmt.Errorf("%w: %s (%s)", ErrNoRuntime, md.ModelName, md.CoSimulation.ModelIdentifier)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context, art *artifact.Artifact) (*fmi.ModelDescription, fmi.Runtime, error)

func (f LoaderFunc) Load(ctx context.Context, art *artifact.Artifact) (*fmi.ModelDescription, fmi.Runtime, error) {
	return f(ctx, art)
}
