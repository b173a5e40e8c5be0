package config

import (
	"sort"

	"github.com/san-kum/cosim/internal/attack"
)

// roverLoop is the closed rover loop on builtin components: the web
// server commands a turn, the controller steers on the gyro heading, and
// the rover reports its measurements back.
func roverLoop(name string, scenario attack.ID, stop float64) *Scenario {
	s := DefaultScenario()
	s.Name = name
	s.Sim.Stop = stop
	s.Sim.Step = 0.05
	s.Components = []ComponentConfig{
		{Name: "ctrl", Builtin: "controller", Parameters: map[string]float64{"leg_length": 5}},
		{Name: "rover", Builtin: "rover", Integrator: "rk4"},
		{Name: "web", Builtin: "webserver", Parameters: map[string]float64{"turn_time": 2, "turn_cmd": 1}},
	}
	s.Connections = []Connection{
		{From: "rover.psi_meas", To: "ctrl.psi_gyro"},
		{From: "rover.r_meas", To: "ctrl.r_gyro"},
		{From: "rover.x_meas", To: "ctrl.x"},
		{From: "rover.y_meas", To: "ctrl.y"},
		{From: "ctrl.pwm_steering", To: "rover.pwm_steering"},
		{From: "ctrl.pwm_throttle", To: "rover.pwm_throttle"},
		{From: "web.turn", To: "ctrl.turn"},
	}
	s.Params = map[string]float64{"heading": 0}
	s.Log = []string{
		"web.turn",
		"ctrl.pwm_steering",
		"ctrl.pwm_throttle",
		"ctrl.s",
		"rover.x_meas",
		"rover.y_meas",
		"rover.psi_meas",
		"rover.r_meas",
	}
	s.Output.Metrics = []MetricConfig{
		{Kind: "final", Column: "rover.x_meas"},
		{Kind: "final", Column: "rover.y_meas"},
		{Kind: "peak_abs", Column: "rover.psi_meas"},
		{Kind: "mean", Column: "ctrl.pwm_throttle"},
	}
	seed := int64(1)
	s.Attack.Seed = &seed
	s.Attack.Scenario = scenario
	return s
}

func withFidelity(s *Scenario, fidelity int) *Scenario {
	for i := range s.Components {
		if s.Components[i].Builtin == "rover" {
			s.Components[i].Fidelity = fidelity
		}
	}
	s.Log = append(s.Log, "rover.mx_meas", "rover.my_meas")
	return s
}

func openLoop() *Scenario {
	s := DefaultScenario()
	s.Name = "rover_open_loop"
	s.Sim.Stop = 5
	s.Components = []ComponentConfig{{
		Name:    "rover",
		Builtin: "rover",
		Inputs:  map[string]float64{"pwm_throttle": 1700, "pwm_steering": 1600},
	}}
	s.Log = []string{"rover.x_meas", "rover.y_meas", "rover.psi_meas"}
	return s
}

var Presets = map[string]map[string]*Scenario{
	"rover": {
		"nominal":           roverLoop("rover_nominal", attack.IDNominal, 20),
		"heading_bias":      roverLoop("rover_heading_bias", attack.IDHeadingBias, 20),
		"throttle_rollover": roverLoop("rover_throttle_rollover", attack.IDThrottleRollover, 10),
		"acoustic_gyro":     roverLoop("rover_acoustic_gyro", attack.IDAcousticGyro, 20),
		"emi_wire":          withFidelity(roverLoop("rover_emi_wire", attack.IDEMIWire, 20), 2),
		"open_loop":         openLoop(),
	},
}

// GetPreset returns a copy of the named preset, or nil.
func GetPreset(group, preset string) *Scenario {
	groupPresets, ok := Presets[group]
	if !ok {
		return nil
	}
	s, ok := groupPresets[preset]
	if !ok {
		return nil
	}
	return s.Clone()
}

func ListPresets(group string) []string {
	groupPresets, ok := Presets[group]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(groupPresets))
	for name := range groupPresets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func ListGroups() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
