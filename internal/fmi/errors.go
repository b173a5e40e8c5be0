package fmi

import (
	"errors"
	"fmt"
)

var (
	// ErrLifecycleViolation indicates a call made in a state that does not permit it.
	ErrLifecycleViolation = errors.New("fmi: lifecycle violation")

	// ErrUnknownVariable indicates a name absent from the component's interface.
	ErrUnknownVariable = errors.New("fmi: unknown variable")

	// ErrStepDiscarded indicates the component rejected the proposed step.
	ErrStepDiscarded = errors.New("fmi: step discarded")

	// ErrStepError indicates a fatal failure inside the component.
	ErrStepError = errors.New("fmi: step error")

	// ErrOutOfRange indicates a value that does not fit the variable's type.
	ErrOutOfRange = errors.New("fmi: value out of range")
)

// LifecycleError records which operation was attempted in which state.
type LifecycleError struct {
	Component string
	Op        string
	State     State
}

func (e *LifecycleError) Error() string {
	return fmt.Sprintf("fmi: %s: %s not allowed in state %s", e.Component, e.Op, e.State)
}

func (e *LifecycleError) Unwrap() error { return ErrLifecycleViolation }

type VariableError struct {
	Component string
	Name      string
}

func (e *VariableError) Error() string {
	return fmt.Sprintf("fmi: %s: unknown variable %q", e.Component, e.Name)
}

func (e *VariableError) Unwrap() error { return ErrUnknownVariable }

// StepError carries the status a component returned from a runtime call.
type StepError struct {
	Component string
	Op        string
	Time      float64
	Status    Status
}

func (e *StepError) Error() string {
	return fmt.Sprintf("fmi: %s: %s at t=%.6g returned %s", e.Component, e.Op, e.Time, e.Status)
}

func (e *StepError) Unwrap() error {
	if e.Status == StatusDiscard {
		return ErrStepDiscarded
	}
	return ErrStepError
}
