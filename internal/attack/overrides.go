package attack

import "fmt"

// Parameters returns the pre-step parameter injection for the plant. The
// disturbance parameters of every inactive attack are held at their nominal
// values. The result is the same on every call.
func (st *State) Parameters() []Override {
	plant := st.signals.Plant
	if plant == "" {
		return nil
	}

	acoustic := nominalAcoustic
	if s, ok := st.scenario.(AcousticGyro); ok {
		acoustic = s
	}
	out := []Override{
		{plant, "W", acoustic.Power},
		{plant, "dist", acoustic.Distance},
		{plant, "w_ac", acoustic.Frequency},
		{plant, "phi_0", acoustic.Phase},
		{plant, "psi_ac", acoustic.Direction},
		{plant, "epsilon", acoustic.Misalignment},
	}

	if st.signals.WirePrefix == "" {
		return out
	}
	wire := nominalWire
	if s, ok := st.scenario.(EMIWire); ok {
		wire = s
	}
	for i := 0; i < 3; i++ {
		out = append(out, Override{plant, fmt.Sprintf("%s.wire_dir[%d]", st.signals.WirePrefix, i+1), wire.Direction[i]})
	}
	for i := 0; i < 3; i++ {
		out = append(out, Override{plant, fmt.Sprintf("%s.x_wire[%d]", st.signals.WirePrefix, i+1), wire.Position[i]})
	}
	return out
}

// Substitute returns the signal substitutions for the coming step. Each one
// replaces a single staged input; everything else keeps its relayed value.
func (st *State) Substitute(staged Staged, read Reader) []Override {
	switch s := st.scenario.(type) {
	case Nominal, AcousticGyro, EMIWire:
		return nil

	case HeadingBias:
		modeComp, modeVar, _ := SplitSignal(st.signals.Mode)
		mode, ok := read.Read(modeComp, modeVar)
		if !ok || mode < st.signals.ModeThreshold {
			return nil
		}
		comp, variable, _ := SplitSignal(st.signals.HeadingTarget)
		base, ok := staged.Staged(comp, variable)
		if !ok {
			base = st.readSignal(read, st.signals.HeadingSource)
		}
		return []Override{{comp, variable, base + s.Level*s.Bias}}

	case ThrottleRollover:
		comp, variable, _ := SplitSignal(st.signals.Throttle)
		return []Override{{comp, variable, s.PWM}}

	default:
		panic(fmt.Sprintf("attack: unhandled scenario %T", s))
	}
}

func (st *State) readSignal(read Reader, signal string) float64 {
	comp, variable, err := SplitSignal(signal)
	if err != nil {
		return 0
	}
	v, _ := read.Read(comp, variable)
	return v
}
