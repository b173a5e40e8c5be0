package viz

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/cosim/internal/master"
)

const (
	trackWidth      = 60
	trackHeight     = 20
	historyCapacity = 600
	maxStepsPerTick = 256
)

type TickMsg time.Time

type Options struct {
	Title string
	// Column is the logged column plotted first.
	Column string
	// TrailX and TrailY name the position columns drawn as a track. The
	// track is hidden unless both are logged.
	TrailX, TrailY string
	StepsPerTick   int
	FPS            int
}

// Model advances a started session from the Bubble Tea event loop. It does
// not own the session; the caller closes it after the program exits.
type Model struct {
	ctx     context.Context
	session *master.Session
	opts    Options

	columns  []string
	selected int
	xi, yi   int

	history [][]float64
	xs, ys  []float64
	latest  []float64
	t       float64

	running bool
	err     error
	bar     progress.Model
	canvas  *Canvas
}

func NewModel(ctx context.Context, session *master.Session, opts Options) Model {
	if opts.StepsPerTick <= 0 {
		opts.StepsPerTick = 1
	}
	if opts.FPS <= 0 {
		opts.FPS = 30
	}
	columns := session.Log().Columns
	m := Model{
		ctx:     ctx,
		session: session,
		opts:    opts,
		columns: columns,
		xi:      indexOf(columns, opts.TrailX),
		yi:      indexOf(columns, opts.TrailY),
		history: make([][]float64, len(columns)),
		latest:  make([]float64, len(columns)),
		t:       session.Time(),
		running: true,
		bar:     progress.New(progress.WithDefaultGradient(), progress.WithWidth(trackWidth)),
		canvas:  NewCanvas(trackWidth, trackHeight),
	}
	if i := indexOf(columns, opts.Column); i >= 0 {
		m.selected = i
	}
	for _, r := range session.Log().Rows {
		m.record(r)
	}
	return m
}

func indexOf(columns []string, name string) int {
	if name == "" {
		return -1
	}
	for i, c := range columns {
		if c == name {
			return i
		}
	}
	return -1
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(time.Second/time.Duration(m.opts.FPS), func(t time.Time) tea.Msg { return TickMsg(t) })
}

func (m Model) Init() tea.Cmd { return m.tick() }

// Update handles keys and advances the session on every tick.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case " ":
			m.running = !m.running
		case "tab", "right", "l":
			m.cycleColumn(1)
		case "shift+tab", "left", "h":
			m.cycleColumn(-1)
		case "+", "=":
			m.opts.StepsPerTick = min(maxStepsPerTick, m.opts.StepsPerTick*2)
		case "-", "_":
			m.opts.StepsPerTick = max(1, m.opts.StepsPerTick/2)
		}
	case tea.WindowSizeMsg:
		m.bar.Width = max(10, min(trackWidth, msg.Width-4))
	case TickMsg:
		if m.running && !m.finished() {
			m.advance()
		}
		if m.finished() {
			return m, tea.Quit
		}
		return m, m.tick()
	}
	return m, nil
}

func (m *Model) cycleColumn(dir int) {
	if len(m.columns) == 0 {
		return
	}
	m.selected = (m.selected + dir + len(m.columns)) % len(m.columns)
}

func (m *Model) advance() {
	for i := 0; i < m.opts.StepsPerTick && !m.session.Done(); i++ {
		row, err := m.session.Step(m.ctx)
		if err != nil {
			m.err = err
			return
		}
		m.record(row)
	}
}

func (m *Model) record(r master.Row) {
	m.t = r.Time
	copy(m.latest, r.Values)
	for i, v := range r.Values {
		h := append(m.history[i], v)
		if len(h) > historyCapacity {
			h = h[len(h)-historyCapacity:]
		}
		m.history[i] = h
	}
	if m.xi >= 0 && m.yi >= 0 {
		m.xs = append(m.xs, r.Values[m.xi])
		m.ys = append(m.ys, r.Values[m.yi])
	}
}

func (m Model) finished() bool { return m.err != nil || m.session.Done() }

// Done reports whether every step completed.
func (m Model) Done() bool { return m.err == nil && m.session.Done() }

func (m Model) Err() error { return m.err }

func (m Model) status() string {
	switch {
	case m.err != nil:
		return statusFailed.Render("FAILED")
	case m.session.Done():
		return statusRunning.Render("DONE")
	case !m.running:
		return statusPaused.Render("PAUSED")
	}
	return statusRunning.Render("RUNNING")
}

func (m Model) View() string {
	var s strings.Builder
	title := m.opts.Title
	if title == "" {
		title = "co-simulation"
	}
	s.WriteString(headerStyle.Render(strings.ToUpper(title)) + "\n")
	s.WriteString(fmt.Sprintf("%s  t=%.3fs  step %d/%d  x%d\n", m.status(), m.t,
		m.session.Index(), m.session.Steps(), m.opts.StepsPerTick))

	frac := 1.0
	if n := m.session.Steps(); n > 0 {
		frac = float64(m.session.Index()) / float64(n)
	}
	s.WriteString(m.bar.ViewAs(frac) + "\n\n")

	if len(m.columns) > 0 {
		if h := m.history[m.selected]; len(h) > 1 {
			chart := asciigraph.Plot(h, asciigraph.Height(8), asciigraph.Width(trackWidth),
				asciigraph.Caption(m.columns[m.selected]))
			s.WriteString(graphStyle.Render(chart) + "\n\n")
		}
	}

	var values strings.Builder
	for i, c := range m.columns {
		label := labelStyle.Render(c)
		if i == m.selected {
			label = selectedStyle.Render("> " + c)
		}
		values.WriteString(label + valueStyle.Render(fmt.Sprintf("%10.4f", m.latest[i])) +
			" " + SparklineChart(m.history[i], 16) + "\n")
	}
	panels := []string{panelStyle.Render(strings.TrimRight(values.String(), "\n"))}
	if len(m.xs) > 0 {
		m.canvas.Track(m.xs, m.ys)
		panels = append(panels, panelStyle.Render(m.canvas.String()))
	}
	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, panels...) + "\n")

	if m.err != nil {
		s.WriteString(statusFailed.Render(m.err.Error()) + "\n")
	}
	s.WriteString(keyHint.Render("SPC:pause  TAB/←→:column  +/-:speed  Q:quit"))
	return s.String()
}
