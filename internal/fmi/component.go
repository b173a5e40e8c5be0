package fmi

import (
	"errors"
	"fmt"
	"io"
	"math"
)

// State is a component's position in the co-simulation lifecycle.
type State int

const (
	StateCreated State = iota
	StateInstantiated
	StateExperimentConfigured
	StateInitializing
	StateStepMode
	StateTerminated
	StateFreed
	StateFaulted
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateInstantiated:
		return "instantiated"
	case StateExperimentConfigured:
		return "experiment-configured"
	case StateInitializing:
		return "initializing"
	case StateStepMode:
		return "step-mode"
	case StateTerminated:
		return "terminated"
	case StateFreed:
		return "freed"
	case StateFaulted:
		return "faulted"
	default:
		return "unknown"
	}
}

// Component owns one runtime instance and enforces the legal call order
// around it. Names are resolved through the interface discovered at load
// time and never change afterwards.
type Component struct {
	name      string
	rt        Runtime
	iface     Interface
	state     State
	time      float64
	allocated bool
	// stepping is set once the component reaches StepMode and cleared when
	// the runtime is terminated. It survives a fault.
	stepping  bool
	released  bool
	LoggingOn bool
}

// NewComponent wraps a loaded runtime. The runtime is not instantiated yet.
func NewComponent(name string, md *ModelDescription, rt Runtime) *Component {
	return &Component{
		name:  name,
		rt:    rt,
		iface: md.Interface(),
		state: StateCreated,
	}
}

func (c *Component) Name() string         { return c.name }
func (c *Component) State() State         { return c.state }
func (c *Component) Time() float64        { return c.time }
func (c *Component) Interface() Interface { return c.iface }

// HasVariable is the capability query used to resolve optional wiring once
// at setup instead of probing on every step.
func (c *Component) HasVariable(name string) bool { return c.iface.Has(name) }

func (c *Component) violation(op string) error {
	return &LifecycleError{Component: c.name, Op: op, State: c.state}
}

func (c *Component) fault(op string, st Status) error {
	c.state = StateFaulted
	return &StepError{Component: c.name, Op: op, Time: c.time, Status: st}
}

// Instantiate is a no-op once the component is past Created.
func (c *Component) Instantiate() error {
	switch c.state {
	case StateCreated:
	case StateFaulted:
		return c.violation("instantiate")
	default:
		return nil
	}
	if st := c.rt.Instantiate(c.name, c.LoggingOn); st.Failed() {
		return c.fault("instantiate", st)
	}
	c.allocated = true
	c.state = StateInstantiated
	return nil
}

// ConfigureExperiment sets up the experiment. A nil stopTime leaves the stop
// time undefined so the master may step for as long as it likes.
func (c *Component) ConfigureExperiment(startTime float64, stopTime *float64) error {
	if c.state != StateInstantiated {
		return c.violation("configure experiment")
	}
	stop, defined := 0.0, stopTime != nil
	if defined {
		stop = *stopTime
	}
	if st := c.rt.SetupExperiment(startTime, stop, defined); st.Failed() {
		return c.fault("setup experiment", st)
	}
	c.time = startTime
	c.state = StateExperimentConfigured
	return nil
}

func (c *Component) EnterInitialization() error {
	if c.state != StateExperimentConfigured {
		return c.violation("enter initialization")
	}
	if st := c.rt.EnterInitializationMode(); st.Failed() {
		return c.fault("enter initialization", st)
	}
	c.state = StateInitializing
	return nil
}

func (c *Component) ExitInitialization() error {
	if c.state != StateInitializing {
		return c.violation("exit initialization")
	}
	if st := c.rt.ExitInitializationMode(); st.Failed() {
		return c.fault("exit initialization", st)
	}
	c.stepping = true
	c.state = StateStepMode
	return nil
}

// Initialize drives the component from wherever it is up to StepMode.
// Calling it on a component already in StepMode does nothing.
func (c *Component) Initialize(startTime float64, stopTime *float64) error {
	if c.state == StateStepMode {
		return nil
	}
	if err := c.Instantiate(); err != nil {
		return err
	}
	if c.state == StateInstantiated {
		if err := c.ConfigureExperiment(startTime, stopTime); err != nil {
			return err
		}
	}
	if c.state == StateExperimentConfigured {
		if err := c.EnterInitialization(); err != nil {
			return err
		}
	}
	return c.ExitInitialization()
}

// Step performs one communication step from t with size h, telling the
// runtime that the master never rewinds.
func (c *Component) Step(t, h float64) (Status, error) {
	return c.StepHint(t, h, true)
}

// StepHint is Step with an explicit no-rewind hint. Ok and Warning advance
// the component time to t+h. Discard leaves time where it was and is returned
// without an error; deciding what to do about it is the caller's business.
func (c *Component) StepHint(t, h float64, noSetStatePrior bool) (Status, error) {
	if c.state != StateStepMode {
		return StatusError, c.violation("step")
	}
	st := c.rt.DoStep(t, h, noSetStatePrior)
	switch {
	case st.Accepted():
		c.time = t + h
		return st, nil
	case st == StatusDiscard:
		return st, nil
	default:
		c.time = t
		return st, c.fault("step", st)
	}
}

// Terminate is idempotent. A component that faulted after reaching StepMode
// is terminated through the runtime once but stays Faulted.
func (c *Component) Terminate() error {
	switch c.state {
	case StateTerminated, StateFreed:
		return nil
	case StateFaulted:
		if !c.stepping {
			return nil
		}
	case StateStepMode:
	default:
		return c.violation("terminate")
	}
	c.stepping = false
	st := c.rt.Terminate()
	if c.state != StateFaulted {
		c.state = StateTerminated
	}
	if st.Failed() {
		return &StepError{Component: c.name, Op: "terminate", Time: c.time, Status: st}
	}
	return nil
}

// Free releases the runtime instance. It is idempotent and allowed from every
// state except StepMode, which must be terminated first. A runtime that
// implements io.Closer is closed once here, even if it was never
// instantiated.
func (c *Component) Free() error {
	if c.state == StateStepMode {
		return c.violation("free")
	}
	if c.allocated {
		c.rt.FreeInstance()
		c.allocated = false
	}
	if c.state != StateFaulted {
		c.state = StateFreed
	}
	if c.released {
		return nil
	}
	c.released = true
	if cl, ok := c.rt.(io.Closer); ok {
		if err := cl.Close(); err != nil {
			return fmt.Errorf("fmi: %s: releasing runtime: %w", c.name, err)
		}
	}
	return nil
}

// Close terminates and frees the component. Free runs even when Terminate
// fails, so Close is safe to defer on every exit path.
func (c *Component) Close() error {
	var termErr error
	if c.stepping {
		termErr = c.Terminate()
	}
	return errors.Join(termErr, c.Free())
}

func (c *Component) resolve(name string) (Variable, error) {
	v, ok := c.iface.Lookup(name)
	if !ok {
		return Variable{}, &VariableError{Component: c.name, Name: name}
	}
	return v, nil
}

func (c *Component) checkAccess(op string) error {
	if !c.allocated || c.state == StateFaulted || c.state == StateFreed {
		return c.violation(op)
	}
	return nil
}

func (c *Component) GetReal(name string) (float64, error) {
	v, err := c.resolve(name)
	if err != nil {
		return 0, err
	}
	return c.getReal(v)
}

// GetRealOr returns def when the variable does not exist on this component.
func (c *Component) GetRealOr(name string, def float64) (float64, error) {
	v, ok := c.iface.Lookup(name)
	if !ok {
		return def, nil
	}
	return c.getReal(v)
}

func (c *Component) getReal(v Variable) (float64, error) {
	if err := c.checkAccess("get " + v.Name); err != nil {
		return 0, err
	}
	out := make([]float64, 1)
	if st := c.rt.GetReal([]ValueRef{v.Ref}, out); st.Failed() {
		return 0, c.fault("get "+v.Name, st)
	}
	return out[0], nil
}

func (c *Component) SetReal(name string, value float64) error {
	v, err := c.resolve(name)
	if err != nil {
		return err
	}
	if err := c.checkAccess("set " + name); err != nil {
		return err
	}
	if st := c.rt.SetReal([]ValueRef{v.Ref}, []float64{value}); st.Failed() {
		return c.fault("set "+name, st)
	}
	return nil
}

func (c *Component) GetInteger(name string) (int, error) {
	v, err := c.resolve(name)
	if err != nil {
		return 0, err
	}
	return c.getInteger(v)
}

func (c *Component) GetIntegerOr(name string, def int) (int, error) {
	v, ok := c.iface.Lookup(name)
	if !ok {
		return def, nil
	}
	return c.getInteger(v)
}

func (c *Component) getInteger(v Variable) (int, error) {
	if err := c.checkAccess("get " + v.Name); err != nil {
		return 0, err
	}
	out := make([]int32, 1)
	if st := c.rt.GetInteger([]ValueRef{v.Ref}, out); st.Failed() {
		return 0, c.fault("get "+v.Name, st)
	}
	return int(out[0]), nil
}

func (c *Component) SetInteger(name string, value int) error {
	v, err := c.resolve(name)
	if err != nil {
		return err
	}
	if value < math.MinInt32 || value > math.MaxInt32 {
		return fmt.Errorf("%w: %s: %s=%d does not fit a 32-bit integer", ErrOutOfRange, c.name, name, value)
	}
	if err := c.checkAccess("set " + name); err != nil {
		return err
	}
	if st := c.rt.SetInteger([]ValueRef{v.Ref}, []int32{int32(value)}); st.Failed() {
		return c.fault("set "+name, st)
	}
	return nil
}

func (c *Component) GetBoolean(name string) (bool, error) {
	v, err := c.resolve(name)
	if err != nil {
		return false, err
	}
	return c.getBoolean(v)
}

func (c *Component) GetBooleanOr(name string, def bool) (bool, error) {
	v, ok := c.iface.Lookup(name)
	if !ok {
		return def, nil
	}
	return c.getBoolean(v)
}

func (c *Component) getBoolean(v Variable) (bool, error) {
	if err := c.checkAccess("get " + v.Name); err != nil {
		return false, err
	}
	out := make([]bool, 1)
	if st := c.rt.GetBoolean([]ValueRef{v.Ref}, out); st.Failed() {
		return false, c.fault("get "+v.Name, st)
	}
	return out[0], nil
}

func (c *Component) SetBoolean(name string, value bool) error {
	v, err := c.resolve(name)
	if err != nil {
		return err
	}
	if err := c.checkAccess("set " + name); err != nil {
		return err
	}
	if st := c.rt.SetBoolean([]ValueRef{v.Ref}, []bool{value}); st.Failed() {
		return c.fault("set "+name, st)
	}
	return nil
}

// Value reads any numeric variable as float64, dispatching on its declared
// type. Booleans read as 0 or 1.
func (c *Component) Value(name string) (float64, error) {
	v, err := c.resolve(name)
	if err != nil {
		return 0, err
	}
	switch v.Type {
	case TypeReal:
		return c.getReal(v)
	case TypeInteger, TypeEnumeration:
		i, err := c.getInteger(v)
		return float64(i), err
	case TypeBoolean:
		b, err := c.getBoolean(v)
		if b {
			return 1, err
		}
		return 0, err
	default:
		return 0, fmt.Errorf("fmi: %s: variable %q has non-numeric type %s", c.name, name, v.Type)
	}
}

// SetValue writes a float64 into any numeric variable, converting to its
// declared type. Integers are truncated toward zero; values outside the
// 32-bit range are rejected.
func (c *Component) SetValue(name string, value float64) error {
	v, err := c.resolve(name)
	if err != nil {
		return err
	}
	switch v.Type {
	case TypeReal:
		return c.SetReal(name, value)
	case TypeInteger, TypeEnumeration:
		if math.IsNaN(value) || value < math.MinInt32 || value > math.MaxInt32 {
			return fmt.Errorf("%w: %s: %s=%g does not fit a 32-bit integer", ErrOutOfRange, c.name, name, value)
		}
		return c.SetInteger(name, int(value))
	case TypeBoolean:
		return c.SetBoolean(name, value != 0)
	default:
		return fmt.Errorf("fmi: %s: variable %q has non-numeric type %s", c.name, name, v.Type)
	}
}
