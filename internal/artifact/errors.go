package artifact

import (
	"errors"
	"fmt"
)

var (
	// ErrCacheBuildFailure indicates the external compiler did not produce an artifact.
	ErrCacheBuildFailure = errors.New("artifact: build failed")

	// ErrUnknownBuildKind indicates a build kind other than cs or me.
	ErrUnknownBuildKind = errors.New("artifact: unknown build kind")
)

// BuildError carries the compiler diagnostics and where they were logged.
type BuildError struct {
	Key         Key
	ClassName   string
	LogPath     string
	Diagnostics string
	Wrapped     error
}

func (e *BuildError) Error() string {
	msg := fmt.Sprintf("artifact: build %s (%s) failed", e.ClassName, e.Key)
	if e.Wrapped != nil {
		msg += ": " + e.Wrapped.Error()
	}
	if e.LogPath != "" {
		msg += " (see " + e.LogPath + ")"
	}
	return msg
}

func (e *BuildError) Unwrap() []error {
	if e.Wrapped == nil {
		return []error{ErrCacheBuildFailure}
	}
	return []error{ErrCacheBuildFailure, e.Wrapped}
}
