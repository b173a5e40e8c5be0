package attack

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strings"
)

var (
	// ErrUnknownScenario indicates a scenario id outside the known variants.
	ErrUnknownScenario = errors.New("attack: unknown scenario")

	// ErrInvalidConfig indicates scenario parameters that cannot be used.
	ErrInvalidConfig = errors.New("attack: invalid configuration")
)

type HeadingBiasConfig struct {
	// EMIDisturbance is the peak heading disturbance in degrees.
	EMIDisturbance float64 `yaml:"emi_disturbance"`
}

type ThrottleConfig struct {
	PWMLevel float64 `yaml:"pwm_level"`
}

type AcousticConfig struct {
	Power        float64 `yaml:"power"`
	SpeakerDist  float64 `yaml:"speaker_dist"`
	DriveFreq    float64 `yaml:"drive_freq"`
	FreqRange    float64 `yaml:"freq_range"`
	Misalignment float64 `yaml:"misalignment"` // degrees
}

type EMIWireConfig struct {
	Direction    int     `yaml:"direction"`
	RelativeDist float64 `yaml:"relative_dist"`
}

// Signals names the component variables a scenario reads and overrides, as
// "component.variable".
type Signals struct {
	Mode          string  `yaml:"mode"`
	ModeThreshold float64 `yaml:"mode_threshold"`
	HeadingSource string  `yaml:"heading_source"`
	HeadingTarget string  `yaml:"heading_target"`
	Throttle      string  `yaml:"throttle"`
	Plant         string  `yaml:"plant"`
	WirePrefix    string  `yaml:"wire_prefix"`
}

// DefaultSignals returns the rover closed-loop wiring.
func DefaultSignals() Signals {
	return Signals{
		Mode:          "ctrl.s",
		ModeThreshold: 3,
		HeadingSource: "rover.psi_meas",
		HeadingTarget: "ctrl.psi_gyro",
		Throttle:      "rover.pwm_throttle",
		Plant:         "rover",
		WirePrefix:    "rover_8d.emi",
	}
}

type Config struct {
	Scenario    ID                `yaml:"scenario"`
	HeadingBias HeadingBiasConfig `yaml:"heading_bias"`
	Throttle    ThrottleConfig    `yaml:"throttle"`
	Acoustic    AcousticConfig    `yaml:"acoustic"`
	EMIWire     EMIWireConfig     `yaml:"emi_wire"`
	Signals     Signals           `yaml:"signals"`
}

func DefaultConfig() Config {
	return Config{
		Scenario:    IDNominal,
		HeadingBias: HeadingBiasConfig{EMIDisturbance: 10},
		Throttle:    ThrottleConfig{PWMLevel: 2000},
		Acoustic: AcousticConfig{
			Power:        1,
			SpeakerDist:  0.1,
			DriveFreq:    19500,
			FreqRange:    200,
			Misalignment: 5,
		},
		EMIWire: EMIWireConfig{Direction: 1, RelativeDist: 0.05},
		Signals: DefaultSignals(),
	}
}

// Override assigns Value to one component variable.
type Override struct {
	Component string
	Variable  string
	Value     float64
}

func (o Override) String() string {
	return fmt.Sprintf("%s.%s=%g", o.Component, o.Variable, o.Value)
}

// Staged exposes the relay values prepared for the coming step.
type Staged interface {
	Staged(component, variable string) (float64, bool)
}

// Reader exposes component values as of the end of the previous step.
type Reader interface {
	Read(component, variable string) (float64, bool)
}

// State is the immutable attack state of one run.
type State struct {
	scenario Scenario
	signals  Signals
	seed     int64
	draws    map[string]float64
	derived  map[string]float64
}

// New draws all scenario randomness from a generator seeded with seed.
func New(cfg Config, seed int64) (*State, error) {
	if cfg.Signals == (Signals{}) {
		cfg.Signals = DefaultSignals()
	}
	rng := rand.New(rand.NewSource(seed))
	st := &State{
		signals: cfg.Signals,
		seed:    seed,
		draws:   make(map[string]float64),
		derived: make(map[string]float64),
	}

	switch cfg.Scenario {
	case IDNominal:
		st.scenario = Nominal{}

	case IDHeadingBias:
		if err := st.requireSignals(cfg.Signals.Mode, cfg.Signals.HeadingTarget); err != nil {
			return nil, err
		}
		r := st.draw(rng, "bias")
		s := HeadingBias{
			Level: cfg.HeadingBias.EMIDisturbance / 180 * math.Pi,
			Bias:  2 * (r - 0.5),
		}
		st.derived["emi_atk_level"] = s.Level
		st.derived["bias"] = s.Bias
		st.scenario = s

	case IDThrottleRollover:
		if err := st.requireSignals(cfg.Signals.Throttle); err != nil {
			return nil, err
		}
		s := ThrottleRollover{PWM: cfg.Throttle.PWMLevel}
		st.derived["rollover_thr_pwm"] = s.PWM
		st.scenario = s

	case IDAcousticGyro:
		if cfg.Acoustic.SpeakerDist <= 0 {
			return nil, fmt.Errorf("%w: speaker_dist must be positive, got %g", ErrInvalidConfig, cfg.Acoustic.SpeakerDist)
		}
		a := cfg.Acoustic
		s := AcousticGyro{
			Power:    a.Power,
			Distance: a.SpeakerDist,
		}
		s.Frequency = (a.DriveFreq + a.FreqRange*(2*st.draw(rng, "freq")-1)) * 2 * math.Pi
		s.Misalignment = a.Misalignment * st.draw(rng, "misalignment") * math.Pi / 180
		s.Direction = st.draw(rng, "direction") * math.Pi / 2
		s.Phase = st.draw(rng, "phase")*2*math.Pi - math.Pi
		st.derived["gyro_atk_power"] = s.Power
		st.derived["speaker_dist"] = s.Distance
		st.derived["gyro_atk_freq"] = s.Frequency
		st.derived["gyro_misalignment"] = s.Misalignment
		st.derived["gyro_atk_dir"] = s.Direction
		st.derived["gyro_atk_phase"] = s.Phase
		st.scenario = s

	case IDEMIWire:
		if cfg.EMIWire.RelativeDist < 0 {
			return nil, fmt.Errorf("%w: wire relative_dist must not be negative", ErrInvalidConfig)
		}
		s := EMIWire{
			Direction: WireDirection(cfg.EMIWire.Direction),
			Position:  [3]float64{0, 0, -cfg.EMIWire.RelativeDist},
		}
		for i := 0; i < 3; i++ {
			st.derived[fmt.Sprintf("wire_dir[%d]", i+1)] = s.Direction[i]
			st.derived[fmt.Sprintf("x_wire[%d]", i+1)] = s.Position[i]
		}
		st.scenario = s

	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownScenario, int(cfg.Scenario))
	}
	return st, nil
}

func (st *State) draw(rng *rand.Rand, name string) float64 {
	v := rng.Float64()
	st.draws[name] = v
	return v
}

func (st *State) requireSignals(names ...string) error {
	for _, n := range names {
		if _, _, err := SplitSignal(n); err != nil {
			return err
		}
	}
	return nil
}

func (st *State) Scenario() Scenario { return st.scenario }
func (st *State) ScenarioID() ID     { return st.scenario.ID() }
func (st *State) Seed() int64        { return st.seed }
func (st *State) Signals() Signals   { return st.signals }

// Draw returns a raw uniform draw taken at construction.
func (st *State) Draw(name string) (float64, bool) {
	v, ok := st.draws[name]
	return v, ok
}

// Derived returns a parameter computed from the draws at construction.
func (st *State) Derived(name string) (float64, bool) {
	v, ok := st.derived[name]
	return v, ok
}

// DerivedNames lists the derived parameters in sorted order.
func (st *State) DerivedNames() []string {
	names := make([]string, 0, len(st.derived))
	for n := range st.derived {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// SplitSignal parses "component.variable". The variable part may itself
// contain dots.
func SplitSignal(s string) (component, variable string, err error) {
	i := strings.IndexByte(s, '.')
	if i <= 0 || i == len(s)-1 {
		return "", "", fmt.Errorf("%w: signal %q is not component.variable", ErrInvalidConfig, s)
	}
	return s[:i], s[i+1:], nil
}
