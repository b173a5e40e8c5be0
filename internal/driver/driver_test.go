package driver

import (
	"archive/zip"
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/san-kum/cosim/internal/artifact"
	"github.com/san-kum/cosim/internal/components"
	"github.com/san-kum/cosim/internal/config"
	"github.com/san-kum/cosim/internal/fmi"
	"github.com/san-kum/cosim/internal/master"
	"github.com/san-kum/cosim/internal/storage"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newDriver(t *testing.T) *Driver {
	t.Helper()
	return New(storage.New(filepath.Join(t.TempDir(), "data")), nil, nil, quietLogger())
}

func mean(t *testing.T, log *master.RunLog, column string) float64 {
	t.Helper()
	vals, err := log.Column(column)
	if err != nil {
		t.Fatal(err)
	}
	sum := 0.0
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

func TestRunPersists(t *testing.T) {
	d := newDriver(t)
	sc := config.GetPreset("rover", "nominal")
	sc.Sim.Stop = 2

	rep, err := d.Run(context.Background(), sc)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if rep.RunID == "" {
		t.Fatal("expected a run id")
	}
	if rep.Log.Len() != 40 {
		t.Errorf("expected 40 rows, got %d", rep.Log.Len())
	}
	if rep.Seed != 1 {
		t.Errorf("expected preset seed 1, got %d", rep.Seed)
	}
	if len(rep.Metrics) != len(sc.Output.Metrics) {
		t.Errorf("metrics = %v", rep.Metrics)
	}

	meta, err := d.Store.Load(rep.RunID)
	if err != nil {
		t.Fatal(err)
	}
	if meta.Attack != "nominal" || meta.Steps != 40 || len(meta.Components) != 3 {
		t.Errorf("metadata = %+v", meta)
	}
	if meta.Metrics["mean:ctrl.pwm_throttle"] != rep.Metrics["mean:ctrl.pwm_throttle"] {
		t.Error("metrics not persisted")
	}
	log, err := d.Store.LoadLog(rep.RunID)
	if err != nil {
		t.Fatal(err)
	}
	if log.Len() != 40 || log.Columns[0] != "web.turn" {
		t.Errorf("persisted log has %d rows, columns %v", log.Len(), log.Columns)
	}
}

func TestRunIsDeterministic(t *testing.T) {
	var logs []*master.RunLog
	for i := 0; i < 2; i++ {
		d := New(nil, nil, nil, quietLogger())
		rep, err := d.Run(context.Background(), config.GetPreset("rover", "acoustic_gyro"))
		if err != nil {
			t.Fatal(err)
		}
		logs = append(logs, rep.Log)
	}
	if logs[0].Len() != logs[1].Len() {
		t.Fatal("row counts differ")
	}
	for k := range logs[0].Rows {
		for j, v := range logs[0].Rows[k].Values {
			if logs[1].Rows[k].Values[j] != v {
				t.Fatalf("row %d column %s differs: %v vs %v", k, logs[0].Columns[j], v, logs[1].Rows[k].Values[j])
			}
		}
	}
}

func TestSeedFromClock(t *testing.T) {
	d := New(nil, nil, nil, quietLogger())
	at := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return at }
	sc := config.GetPreset("rover", "nominal")
	sc.Attack.Seed = nil
	sc.Sim.Stop = 0.5

	rep, err := d.Run(context.Background(), sc)
	if err != nil {
		t.Fatal(err)
	}
	if rep.Seed != at.UnixNano() {
		t.Errorf("seed = %d, want %d", rep.Seed, at.UnixNano())
	}
}

func TestHeadingBiasChangesTrajectory(t *testing.T) {
	d := New(nil, nil, nil, quietLogger())
	nominal, err := d.Run(context.Background(), config.GetPreset("rover", "nominal"))
	if err != nil {
		t.Fatal(err)
	}
	biased, err := d.Run(context.Background(), config.GetPreset("rover", "heading_bias"))
	if err != nil {
		t.Fatal(err)
	}
	if bias := biased.Draws["bias"]; bias == 0 {
		t.Fatal("expected a drawn bias")
	}
	a, _ := nominal.Log.Column("rover.psi_meas")
	b, _ := biased.Log.Column("rover.psi_meas")
	if math.Abs(a[len(a)-1]-b[len(b)-1]) < 1e-6 {
		t.Error("heading bias left the final heading unchanged")
	}
}

func TestThrottleRollover(t *testing.T) {
	d := New(nil, nil, nil, quietLogger())
	run := func(name string) *master.RunLog {
		sc := config.GetPreset("rover", name)
		sc.Log = append(sc.Log, "rover.v_meas")
		rep, err := d.Run(context.Background(), sc)
		if err != nil {
			t.Fatal(err)
		}
		return rep.Log
	}
	nominal := run("nominal")
	attacked := run("throttle_rollover")

	if mean(t, attacked, "rover.v_meas") <= mean(t, nominal, "rover.v_meas") {
		t.Error("rollover should drive the rover faster")
	}
	// The controller's own command is untouched; only the relayed input is.
	th, _ := attacked.Column("ctrl.pwm_throttle")
	if last := th[len(th)-1]; last != 1650 {
		t.Errorf("controller throttle = %f, want 1650", last)
	}
}

func TestOpenLoopWithParams(t *testing.T) {
	d := New(nil, nil, nil, quietLogger())
	sc := config.GetPreset("rover", "open_loop")
	sc.Params = map[string]float64{"heading": 90}

	rep, err := d.Run(context.Background(), sc)
	if err != nil {
		t.Fatal(err)
	}
	psi, _ := rep.Log.Column("rover.psi_meas")
	if math.Abs(psi[0]-math.Pi/2) > 0.05 {
		t.Errorf("heading param not applied, psi = %f", psi[0])
	}
	if psi[len(psi)-1] <= psi[0] {
		t.Error("constant steering input should turn the rover")
	}
	y, _ := rep.Log.Column("rover.y_meas")
	if y[len(y)-1] <= 0 {
		t.Error("constant throttle input should move the rover north")
	}
}

func TestFailedRunPersistsNothing(t *testing.T) {
	d := newDriver(t)
	sc := config.GetPreset("rover", "nominal")
	for i := range sc.Components {
		if sc.Components[i].Name == "rover" {
			sc.Components[i].Parameters = map[string]float64{"max_step": 0.01}
		}
	}

	rep, err := d.Run(context.Background(), sc)
	if !errors.Is(err, fmi.ErrStepDiscarded) {
		t.Fatalf("expected a discarded step, got %v", err)
	}
	var re *master.RunError
	if !errors.As(err, &re) || re.Component != "rover" || re.Step != 0 {
		t.Errorf("run error = %+v", re)
	}
	if rep == nil || rep.RunID != "" || rep.Log.Len() != 0 {
		t.Errorf("report = %+v", rep)
	}
	runs, err := d.Store.List()
	if err != nil || len(runs) != 0 {
		t.Errorf("failed run was persisted: %v %v", runs, err)
	}

	sc.Sim.Discard = config.DiscardSubdivide
	if _, err := d.Run(context.Background(), sc); err != nil {
		t.Errorf("subdivided run failed: %v", err)
	}
}

func TestPrepareRejectsUnloggedMetric(t *testing.T) {
	d := New(nil, nil, nil, quietLogger())
	sc := config.GetPreset("rover", "nominal")
	sc.Output.Metrics = append(sc.Output.Metrics, config.MetricConfig{Kind: "mean", Column: "rover.v_meas"})
	if _, err := d.Prepare(context.Background(), sc); !errors.Is(err, config.ErrConfiguration) {
		t.Errorf("expected configuration error, got %v", err)
	}
}

func TestPrepareRejectsUnknownParameter(t *testing.T) {
	d := New(nil, nil, nil, quietLogger())
	sc := config.GetPreset("rover", "nominal")
	sc.Components[0].Parameters["no_such_gain"] = 1
	if _, err := d.Prepare(context.Background(), sc); !errors.Is(err, config.ErrConfiguration) {
		t.Errorf("expected configuration error, got %v", err)
	}
}

func TestObserversSeeEveryRow(t *testing.T) {
	d := New(nil, nil, nil, quietLogger())
	rows := 0
	d.Observers = append(d.Observers, master.ObserverFunc(func(master.Row) { rows++ }))
	sc := config.GetPreset("rover", "open_loop")
	rep, err := d.Run(context.Background(), sc)
	if err != nil {
		t.Fatal(err)
	}
	if rows != rep.Log.Len() {
		t.Errorf("observer saw %d rows, log has %d", rows, rep.Log.Len())
	}
}

// zipCompiler writes a minimal artifact holding only a model description.
type zipCompiler struct{}

const tankDescription = `<?xml version="1.0"?>
<fmiModelDescription fmiVersion="2.0" modelName="Tank" guid="{t}">
  <CoSimulation modelIdentifier="Tank"/>
  <ModelVariables>
    <ScalarVariable name="level" valueReference="1" causality="output" variability="continuous">
      <Real/>
    </ScalarVariable>
  </ModelVariables>
</fmiModelDescription>`

func (zipCompiler) Compile(ctx context.Context, req artifact.CompileRequest) (*artifact.CompileResult, error) {
	path := filepath.Join(req.WorkDir, req.OutputName+".fmu")
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	zw := zip.NewWriter(f)
	w, err := zw.Create("modelDescription.xml")
	if err != nil {
		return nil, err
	}
	if _, err := io.WriteString(w, tankDescription); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return &artifact.CompileResult{ArtifactPath: path}, nil
}

func modelScenario(t *testing.T) *config.Scenario {
	t.Helper()
	dir := t.TempDir()
	model := filepath.Join(dir, "Tank.mo")
	if err := os.WriteFile(model, []byte("model Tank end Tank;"), 0644); err != nil {
		t.Fatal(err)
	}
	sc := config.DefaultScenario()
	sc.Name = "tank"
	sc.Sim.Stop = 1
	sc.Components = []config.ComponentConfig{{
		Name:  "tank",
		Model: &config.ModelSource{Path: model, Class: "Tank"},
	}}
	return sc
}

func TestModelWithoutRuntime(t *testing.T) {
	cache := artifact.New(t.TempDir(), zipCompiler{}, quietLogger())
	d := New(nil, cache, nil, quietLogger())
	if _, err := d.Run(context.Background(), modelScenario(t)); !errors.Is(err, ErrNoRuntime) {
		t.Errorf("expected ErrNoRuntime, got %v", err)
	}
}

func TestModelWithLoader(t *testing.T) {
	cache := artifact.New(t.TempDir(), zipCompiler{}, quietLogger())
	d := New(nil, cache, nil, quietLogger())
	var loaded string
	d.Loader = LoaderFunc(func(ctx context.Context, art *artifact.Artifact) (*fmi.ModelDescription, fmi.Runtime, error) {
		loaded = art.Path
		return components.NewRegistry().New("webserver", components.Options{})
	})

	sc := modelScenario(t)
	sc.Log = []string{"tank.turn"}
	rep, err := d.Run(context.Background(), sc)
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(loaded) != "Tank.fmu" {
		t.Errorf("loader got %q", loaded)
	}
	if rep.Log.Len() != 10 {
		t.Errorf("expected 10 rows, got %d", rep.Log.Len())
	}
}

type closingRuntime struct {
	fmi.Runtime
	closed int
}

func (r *closingRuntime) Close() error {
	r.closed++
	return nil
}

func TestPrepareReleasesLoadedRuntimeOnError(t *testing.T) {
	cache := artifact.New(t.TempDir(), zipCompiler{}, quietLogger())
	d := New(nil, cache, nil, quietLogger())
	var rt *closingRuntime
	d.Loader = LoaderFunc(func(ctx context.Context, art *artifact.Artifact) (*fmi.ModelDescription, fmi.Runtime, error) {
		md, inner, err := components.NewRegistry().New("webserver", components.Options{})
		if err != nil {
			return nil, nil, err
		}
		rt = &closingRuntime{Runtime: inner}
		return md, rt, nil
	})

	sc := modelScenario(t)
	sc.Log = []string{"tank.no_such_output"}
	if _, err := d.Prepare(context.Background(), sc); !errors.Is(err, master.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if rt == nil || rt.closed != 1 {
		t.Errorf("loaded runtime not released: %+v", rt)
	}
}

func TestRunReleasesLoadedRuntime(t *testing.T) {
	cache := artifact.New(t.TempDir(), zipCompiler{}, quietLogger())
	d := New(nil, cache, nil, quietLogger())
	var rt *closingRuntime
	d.Loader = LoaderFunc(func(ctx context.Context, art *artifact.Artifact) (*fmi.ModelDescription, fmi.Runtime, error) {
		md, inner, err := components.NewRegistry().New("webserver", components.Options{})
		if err != nil {
			return nil, nil, err
		}
		rt = &closingRuntime{Runtime: inner}
		return md, rt, nil
	})

	sc := modelScenario(t)
	sc.Log = []string{"tank.turn"}
	if _, err := d.Run(context.Background(), sc); err != nil {
		t.Fatal(err)
	}
	if rt.closed != 1 {
		t.Errorf("runtime closed %d times, want 1", rt.closed)
	}
}

func TestModelWithoutCache(t *testing.T) {
	d := New(nil, nil, nil, quietLogger())
	if _, err := d.Run(context.Background(), modelScenario(t)); err == nil {
		t.Error("expected an error without a cache")
	}
}
