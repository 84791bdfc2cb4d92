package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/guptarohit/asciigraph"
	"github.com/san-kum/rocketmpc/internal/dynamo"
	"github.com/san-kum/rocketmpc/internal/sim"
	"github.com/san-kum/rocketmpc/internal/viz"
)

const (
	frameInterval = 33 * time.Millisecond
	maxSpeed      = 32
	historyLimit  = 400
)

// Options describes the mission shown by the live view. Start is called
// once on launch and again on every restart.
type Options struct {
	Name      string
	Waypoints []dynamo.State
	Floor     float64
	Start     func() (*sim.Session, error)
}

type Model struct {
	opts    Options
	session *sim.Session
	err     error

	paused bool
	speed  int

	path      []viz.Point
	altitudes []float64

	width  int
	height int
}

func NewLive(opts Options) *Model {
	m := &Model{opts: opts, speed: 1, width: 80, height: 30}
	m.restart()
	return m
}

type tickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(frameInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m *Model) Init() tea.Cmd { return tick() }

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	case tickMsg:
		if !m.paused {
			m.advance(context.Background())
		}
		return m, tick()
	}
	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c", "esc":
		return m, tea.Quit
	case " ", "p":
		m.paused = !m.paused
	case "r":
		m.restart()
		return m, tea.ClearScreen
	case "+", "=":
		m.speed = min(m.speed*2, maxSpeed)
	case "-", "_":
		m.speed = max(m.speed/2, 1)
	case "0":
		m.speed = 1
	}
	return m, nil
}

func (m *Model) restart() {
	m.path = m.path[:0]
	m.altitudes = m.altitudes[:0]
	m.session, m.err = m.opts.Start()
	if m.err == nil {
		m.record(m.session.State())
	}
}

// advance runs up to speed control cycles.
func (m *Model) advance(ctx context.Context) {
	if m.session == nil {
		return
	}
	for i := 0; i < m.speed && !m.session.Done(); i++ {
		if err := m.session.Step(ctx); err != nil {
			m.err = err
			return
		}
		m.record(m.session.State())
	}
}

func (m *Model) record(x dynamo.State) {
	m.path = append(m.path, viz.Point{X: x[dynamo.IdxX], Y: x[dynamo.IdxY]})
	m.altitudes = append(m.altitudes, x[dynamo.IdxY])
	if len(m.altitudes) > historyLimit {
		m.altitudes = m.altitudes[len(m.altitudes)-historyLimit:]
	}
}

func (m *Model) status() string {
	switch {
	case m.err != nil:
		return viz.StatusFailed.Render("● halted")
	case m.session != nil && m.session.Done():
		return viz.StatusRunning.Render("● complete")
	case m.paused:
		return viz.StatusPaused.Render("○ paused")
	}
	return viz.StatusRunning.Render("● flying")
}

func (m *Model) View() string {
	var b strings.Builder

	fmt.Fprintf(&b, "\n  %s  %s  %s\n", viz.Title.Render(m.opts.Name), m.status(), viz.Subtle.Render(fmt.Sprintf("x%d", m.speed)))
	if m.session == nil {
		fmt.Fprintf(&b, "\n  %s\n", viz.StatusFailed.Render(m.err.Error()))
		return b.String()
	}

	progress := 0.0
	if m.session.Steps() > 0 {
		progress = float64(m.session.StepIndex()) / float64(m.session.Steps())
	}
	fmt.Fprintf(&b, "  %s %s\n\n", viz.ProgressBar(progress, 36),
		viz.Subtle.Render(fmt.Sprintf("t=%.2fs  step %d/%d", m.session.Time(), m.session.StepIndex(), m.session.Steps())))

	b.WriteString(viz.Panel.Render(m.trajectory()) + "\n")

	if len(m.altitudes) > 1 {
		graph := asciigraph.Plot(m.altitudes,
			asciigraph.Height(6),
			asciigraph.Width(max(m.width-16, 20)),
			asciigraph.Caption("altitude"),
		)
		b.WriteString(graph + "\n\n")
	}

	x := m.session.State()
	labels := []string{"x", "y", "θ", "vx", "vy", "ω"}
	b.WriteString("  ")
	for i, label := range labels {
		b.WriteString(viz.MetricLabel.Render(label+"=") + viz.MetricValue.Render(fmt.Sprintf("%.2f", x[i])) + "  ")
	}
	b.WriteString("\n")

	wp := m.session.Waypoint()
	fmt.Fprintf(&b, "  %s %s\n",
		viz.MetricLabel.Render("waypoint"),
		viz.Waypoint.Render(fmt.Sprintf("%d/%d", wp+1, len(m.opts.Waypoints))))

	if m.err != nil {
		fmt.Fprintf(&b, "  %s\n", viz.StatusFailed.Render(m.err.Error()))
	}

	b.WriteString("\n" + viz.KeyHint.Render("  space pause  ±speed  r restart  q quit") + "\n")
	return b.String()
}

func (m *Model) trajectory() string {
	w := max(m.width-8, 20)
	h := max(m.height-22, 8)
	c := viz.NewCanvas(w, h)

	marks := viz.Points(m.opts.Waypoints)
	var floor []viz.Point
	if len(m.path) > 0 {
		floor = append(floor, viz.Point{X: m.path[0].X, Y: m.opts.Floor})
	}
	bounds := viz.FitBounds(0.1, m.path, marks, floor)
	c.HLine(bounds, m.opts.Floor)
	c.Markers(bounds, marks)
	c.Polyline(bounds, m.path)
	return strings.TrimRight(c.String(), "\n")
}

// Run opens the live view in the alternate screen and blocks until the
// user quits.
func Run(opts Options) error {
	p := tea.NewProgram(NewLive(opts), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
