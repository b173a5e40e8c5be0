package fmi

// Status is the result code of a runtime call.
type Status int

const (
	StatusOK Status = iota
	StatusWarning
	StatusDiscard
	StatusError
	StatusFatal
	StatusPending
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusWarning:
		return "warning"
	case StatusDiscard:
		return "discard"
	case StatusError:
		return "error"
	case StatusFatal:
		return "fatal"
	case StatusPending:
		return "pending"
	default:
		return "unknown"
	}
}

// Accepted reports whether the step was taken.
func (s Status) Accepted() bool {
	return s == StatusOK || s == StatusWarning
}

// Failed reports whether the status is unrecoverable. Asynchronous stepping is
// not supported, so Pending counts as a failure.
func (s Status) Failed() bool {
	return s == StatusError || s == StatusFatal || s == StatusPending
}

// Runtime is one loaded component instance as exposed by the external
// component runtime. Variables are addressed by value reference.
type Runtime interface {
	Instantiate(instanceName string, loggingOn bool) Status
	SetupExperiment(startTime float64, stopTime float64, stopTimeDefined bool) Status
	EnterInitializationMode() Status
	ExitInitializationMode() Status
	DoStep(currentTime, stepSize float64, noSetStatePrior bool) Status
	Terminate() Status
	FreeInstance()

	GetReal(refs []ValueRef, out []float64) Status
	SetReal(refs []ValueRef, values []float64) Status
	GetInteger(refs []ValueRef, out []int32) Status
	SetInteger(refs []ValueRef, values []int32) Status
	GetBoolean(refs []ValueRef, out []bool) Status
	SetBoolean(refs []ValueRef, values []bool) Status
}
