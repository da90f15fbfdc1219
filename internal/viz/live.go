package viz

import (
	"errors"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/cablesim/internal/record"
	"github.com/san-kum/cablesim/internal/sim"
	"github.com/san-kum/cablesim/internal/stim"
)

const (
	width           = 48
	height          = 10
	historyCapacity = 600
	maxStepsFrame   = 256

	// profile axis in mV
	profileLo = -90.0
	profileHi = 60.0
)

var (
	canvasStyle = lipgloss.NewStyle().Padding(1, 2)
	statsStyle  = lipgloss.NewStyle().Border(lipgloss.NormalBorder(), false, false, false, true).BorderForeground(lipgloss.Color("240")).Padding(1, 2).Width(44)
	graphStyle  = lipgloss.NewStyle().Padding(1, 0)
)

type TickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(time.Second/60, func(t time.Time) tea.Msg { return TickMsg(t) })
}

// Model drives a simulator a few steps per frame and shows the recorded
// voltages next to the membrane potential along every segment.
type Model struct {
	sim           *sim.Simulator
	clamps        []*stim.IClamp
	run           sim.Config
	modelName     string
	stepsPerFrame int
	running       bool
	err           error
	canvas        *Canvas
	labels        []string
	history       map[string][]float64
	showHelp      bool
}

// NewModel initializes s at run.VInit. Clamps are the stimuli the arrow
// keys retune; they may be empty.
func NewModel(s *sim.Simulator, clamps []*stim.IClamp, run sim.Config, modelName string) (Model, error) {
	if !(run.Dt > 0) || !(run.TStop > 0) {
		return Model{}, fmt.Errorf("%w: dt %g tstop %g", sim.ErrInvalidConfig, run.Dt, run.TStop)
	}
	m := Model{
		sim:           s,
		clamps:        clamps,
		run:           run,
		modelName:     modelName,
		stepsPerFrame: 4,
		running:       true,
		canvas:        NewCanvas(width, height),
		history:       make(map[string][]float64),
	}
	for _, tr := range s.Traces() {
		if tr.Probe.Variable == record.Voltage {
			m.labels = append(m.labels, tr.Label)
		}
	}
	if err := m.reset(); err != nil {
		return Model{}, err
	}
	return m, nil
}

func (m Model) Init() tea.Cmd {
	return tick()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case " ":
			m.running = !m.running
		case "r":
			if err := m.reset(); err != nil {
				m.err = err
			}
		case "up", "k":
			m.scaleAmp(1.1)
		case "down", "j":
			m.scaleAmp(1 / 1.1)
		case "]":
			m.stepsPerFrame = min(m.stepsPerFrame*2, maxStepsFrame)
		case "[":
			m.stepsPerFrame = max(m.stepsPerFrame/2, 1)
		case "t":
			names := ThemeNames()
			for i, name := range names {
				if name == CurrentTheme.Name {
					SetTheme(names[(i+1)%len(names)])
					break
				}
			}
		case "?":
			m.showHelp = !m.showHelp
		}
	case TickMsg:
		if m.running {
			m.advance()
		}
		return m, tick()
	}
	return m, nil
}

func (m *Model) done() bool {
	return m.sim.Phase() == sim.Finished || m.sim.T()+1e-6*m.run.Dt >= m.run.TStop
}

// advance takes up to stepsPerFrame steps and pauses at tstop or on error.
func (m *Model) advance() {
	for range m.stepsPerFrame {
		if m.done() {
			m.running = false
			return
		}
		if err := m.sim.Step(m.run.Dt); err != nil {
			m.err = err
			m.running = false
			return
		}
		m.push()
	}
}

func (m *Model) push() {
	for _, tr := range m.sim.Traces() {
		hist, ok := m.history[tr.Label]
		if !ok {
			continue
		}
		_, y, _ := tr.Last()
		hist = append(hist, y)
		if len(hist) > historyCapacity {
			hist = hist[1:]
		}
		m.history[tr.Label] = hist
	}
}

func (m *Model) reset() error {
	if err := m.sim.Initialize(m.run.VInit); err != nil {
		return err
	}
	m.err = nil
	m.running = true
	for _, label := range m.labels {
		m.history[label] = m.history[label][:0]
	}
	m.push()
	return nil
}

func (m *Model) scaleAmp(factor float64) {
	for _, c := range m.clamps {
		c.Amp *= factor
	}
}

func (m Model) status() string {
	var div *sim.SimulationError
	switch {
	case errors.As(m.err, &div):
		return StatusFailed.Render(fmt.Sprintf("DIVERGED at %.3f ms", div.Time))
	case m.err != nil:
		return StatusFailed.Render("ERROR " + m.err.Error())
	case m.done():
		return StatusPaused.Render("FINISHED")
	case !m.running:
		return StatusPaused.Render("PAUSED")
	}
	return StatusRunning.Render("RUNNING")
}

func (m Model) chart() string {
	var series [][]float64
	for _, label := range m.labels {
		if h := m.history[label]; len(h) > 1 {
			series = append(series, h)
		}
	}
	if len(series) == 0 {
		return ""
	}
	return asciigraph.PlotMany(series,
		asciigraph.Height(10),
		asciigraph.Width(width),
		asciigraph.Precision(0),
		asciigraph.SeriesColors(SeriesColors(len(series))...),
		asciigraph.Caption("Vm (mV) "+strings.Join(m.labels, ", ")))
}

// View renders the TUI interface.
func (m Model) View() string {
	header := lipgloss.NewStyle().Foreground(CurrentTheme.Primary).Bold(true).MarginBottom(1)

	var left strings.Builder
	if chart := m.chart(); chart != "" {
		left.WriteString(graphStyle.Render(chart) + "\n")
	}
	m.canvas.Plot(m.sim.Voltages(), profileLo, profileHi)
	left.WriteString(m.canvas.String())
	left.WriteString(Subtle.Render(fmt.Sprintf("profile over %d segments, %g..%g mV", m.sim.Cable().Len(), profileLo, profileHi)))
	canvasView := canvasStyle.Render(left.String())

	var s strings.Builder
	s.WriteString(header.Render(strings.ToUpper(m.modelName)) + "\n")
	s.WriteString(m.status() + "\n\n")

	t := m.sim.T()
	s.WriteString(MetricLabel.Render("Time") + MetricValue.Render(fmt.Sprintf("%.3f ms", t)) + "\n")
	s.WriteString(MetricLabel.Render("Progress") + ProgressBar(t/m.run.TStop, 20) + "\n")
	s.WriteString(MetricLabel.Render("Steps") + MetricValue.Render(fmt.Sprintf("%d (x%d/frame)", m.sim.Steps(), m.stepsPerFrame)) + "\n")
	s.WriteString(MetricLabel.Render("Solver") + MetricValue.Render(m.sim.Solver()) + "\n")
	for i, c := range m.clamps {
		s.WriteString(MetricLabel.Render(fmt.Sprintf("IClamp %d", i)) + MetricValue.Render(fmt.Sprintf("%.4g nA", c.Amp)) + "\n")
	}

	s.WriteString("\nVOLTAGES\n")
	for _, label := range m.labels {
		h := m.history[label]
		if len(h) == 0 {
			continue
		}
		s.WriteString(MetricLabel.Render(label) + MetricValue.Render(fmt.Sprintf("%8.2f mV", h[len(h)-1])) + "\n")
		s.WriteString("  " + SparklineChart(h, 30) + "\n")
	}

	s.WriteString(KeyHint.Render("\n─────────────────────\nSP:Pause R:Reset Q:Quit\nT:Theme ↑↓:Amp [ ]:Speed ?:Help"))
	statsView := statsStyle.Render(s.String())
	mainView := lipgloss.JoinHorizontal(lipgloss.Top, canvasView, statsView)
	if m.showHelp {
		return GlassPanel.Render(`KEYBOARD SHORTCUTS

Space    Pause/Resume
R        Re-initialize at v_init
Q        Quit
Up/K     Stimulus amplitude +10%
Down/J   Stimulus amplitude -10%
]        Double steps per frame
[        Halve steps per frame
T        Cycle themes
?        Toggle this help`) + "\n\n" + mainView
	}
	return mainView
}

// Run shows the model full screen until the user quits.
func Run(m Model) error {
	_, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
	return err
}
