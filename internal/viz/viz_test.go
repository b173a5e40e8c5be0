package viz

import (
	"context"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/san-kum/cosim/internal/components"
	"github.com/san-kum/cosim/internal/fmi"
	"github.com/san-kum/cosim/internal/master"
)

func newSession(t *testing.T) *master.Session {
	t.Helper()
	md, rt, err := components.NewRegistry().New("rover", components.Options{})
	if err != nil {
		t.Fatal(err)
	}
	members := []master.Member{{Name: "rover", Component: fmi.NewComponent("rover", md, rt)}}
	sched, err := master.New(members, nil, master.Options{
		Start: 0, Stop: 1, Step: 0.1,
		Inputs: []master.Assignment{
			{Port: master.Port{Component: "rover", Variable: "pwm_throttle"}, Value: 1700},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	ss := sched.NewSession()
	t.Cleanup(func() { ss.Close() })
	if err := ss.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	return ss
}

func key(s string) tea.KeyMsg {
	switch s {
	case " ":
		return tea.KeyMsg{Type: tea.KeySpace}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func update(m Model, msg tea.Msg) (Model, tea.Cmd) {
	next, cmd := m.Update(msg)
	return next.(Model), cmd
}

func TestModelRunsSessionToEnd(t *testing.T) {
	ss := newSession(t)
	m := NewModel(context.Background(), ss, Options{
		Title: "rover", Column: "rover.v_meas",
		TrailX: "rover.x_meas", TrailY: "rover.y_meas",
		StepsPerTick: 3,
	})
	if m.columns[m.selected] != "rover.v_meas" {
		t.Errorf("selected %q", m.columns[m.selected])
	}

	for i := 0; i < 10 && !m.Done(); i++ {
		m, _ = update(m, TickMsg{})
	}
	if !m.Done() || m.Err() != nil {
		t.Fatalf("done=%v err=%v", m.Done(), m.Err())
	}
	if ss.Log().Len() != 10 || len(m.xs) != 10 {
		t.Errorf("log %d rows, trail %d points", ss.Log().Len(), len(m.xs))
	}
	if m.xs[9] <= m.xs[0] {
		t.Errorf("rover did not move forward: %v", m.xs)
	}

	view := m.View()
	for _, want := range []string{"ROVER", "DONE", "rover.x_meas", "10/10"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestModelPauseAndSpeed(t *testing.T) {
	ss := newSession(t)
	m := NewModel(context.Background(), ss, Options{})

	m, _ = update(m, key(" "))
	m, _ = update(m, TickMsg{})
	if ss.Index() != 0 {
		t.Errorf("paused model stepped to %d", ss.Index())
	}

	m, _ = update(m, key(" "))
	m, _ = update(m, key("+"))
	if m.opts.StepsPerTick != 2 {
		t.Errorf("steps per tick %d", m.opts.StepsPerTick)
	}
	m, _ = update(m, TickMsg{})
	if ss.Index() != 2 {
		t.Errorf("index %d after one tick", ss.Index())
	}

	m, _ = update(m, key("-"))
	m, _ = update(m, key("-"))
	if m.opts.StepsPerTick != 1 {
		t.Errorf("steps per tick %d", m.opts.StepsPerTick)
	}
}

func TestModelCyclesColumns(t *testing.T) {
	m := NewModel(context.Background(), newSession(t), Options{})
	n := len(m.columns)
	if n == 0 {
		t.Fatal("no columns")
	}
	m, _ = update(m, key("tab"))
	if m.selected != 1%n {
		t.Errorf("selected %d", m.selected)
	}
	m, _ = update(m, key("h"))
	m, _ = update(m, key("h"))
	if m.selected != n-1 {
		t.Errorf("selected %d, want %d", m.selected, n-1)
	}
}

func TestModelQuits(t *testing.T) {
	m := NewModel(context.Background(), newSession(t), Options{})
	_, cmd := update(m, key("q"))
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q did not quit")
	}
}

func TestCanvasTrack(t *testing.T) {
	c := NewCanvas(10, 5)
	c.Track([]float64{0, 1, 2}, []float64{0, 0, 0})
	out := c.String()
	if strings.Count(out, "\n") != 5 {
		t.Errorf("expected 5 rows, got %q", out)
	}
	// A horizontal line at y=0 sits on the bottom dot row.
	last := []rune(strings.Split(out, "\n")[4])
	if last[0] == blank {
		t.Errorf("bottom-left cell empty: %q", out)
	}
	if first := []rune(strings.Split(out, "\n")[0]); first[0] != blank {
		t.Errorf("top-left cell set: %q", out)
	}
}

func TestSparklineChart(t *testing.T) {
	if got := SparklineChart(nil, 4); got != "────" {
		t.Errorf("empty sparkline %q", got)
	}
	if got := SparklineChart([]float64{1, 2, 3, 4, 5, 6}, 3); !strings.Contains(got, "█") {
		t.Errorf("expected a full bar in %q", got)
	}
}
