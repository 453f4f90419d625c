package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/NimbleMarkets/ntcharts/canvas/runes"
	"github.com/NimbleMarkets/ntcharts/linechart/streamlinechart"

	"github.com/willothy/khacks-0.3/pkg/robot"
	"github.com/willothy/khacks-0.3/pkg/walk"
)

type WalkCommand struct {
	Duration time.Duration `short:"d" long:"duration" description:"Stop after this long (0 runs until q)"`
	Endpoint string        `long:"endpoint" description:"Inference endpoint (default from config)"`
	VX       float64       `long:"vx" description:"Forward velocity command"`
	VY       float64       `long:"vy" description:"Lateral velocity command"`
	Yaw      float64       `long:"yaw" description:"Yaw rate command"`
	Radians  bool          `long:"radians" description:"Exchange joint angles with the policy in radians"`
}

const (
	headerHeight = 2 // title + blank line
	legendHeight = 3 // two legend rows + blank
	footerHeight = 7 // log box height
	maxLogs      = 5 // number of log messages to show
	borderSize   = 2 // chart border
)

// One color per canonical DOF, left leg warm, right leg cool
var dofColors = []string{
	"196", "208", "226", "214", "202",
	"46", "51", "33", "129", "201",
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	chartStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

type walkModel struct {
	loop     *walk.Loop
	dofs     []robot.DOF
	chart    *streamlinechart.Model
	width    int      // terminal width
	height   int      // terminal height
	logs     []string // last N log messages
	last     walk.Tick
	done     bool
	quitting bool
}

func (m *walkModel) addLog(msg string) {
	m.logs = append(m.logs, msg)
	if len(m.logs) > maxLogs {
		m.logs = m.logs[len(m.logs)-maxLogs:]
	}
}

// Messages from the loop
type tickMsg walk.Tick
type logMsg string
type doneMsg struct{ err error }

// The loop closes both channels when it ends; a closed channel yields no
// message and the wait is not renewed.
func waitForTick(loop *walk.Loop) tea.Cmd {
	return func() tea.Msg {
		t, ok := <-loop.TickUpdates()
		if !ok {
			return nil
		}
		return tickMsg(t)
	}
}

func waitForLog(loop *walk.Loop) tea.Cmd {
	return func() tea.Msg {
		line, ok := <-loop.Logs()
		if !ok {
			return nil
		}
		return logMsg(line)
	}
}

// chartSize calculates the size of the chart based on terminal dimensions
func (m *walkModel) chartSize() (width, height int) {
	if m.width == 0 || m.height == 0 {
		return 80, 20 // default size before we know terminal size
	}
	width = max(m.width-borderSize-2, 40)
	height = max(m.height-headerHeight-legendHeight-footerHeight-borderSize, 10)
	return width, height
}

func initialWalkModel(loop *walk.Loop) walkModel {
	chart := streamlinechart.New(80, 20,
		streamlinechart.WithYRange(-90, 90),
	)

	dofs := loop.Config().DOFSet
	for i, d := range dofs {
		style := lipgloss.NewStyle().Foreground(lipgloss.Color(dofColors[i%len(dofColors)]))
		chart.SetDataSetStyles(d.Name, runes.ThinLineStyle, style)
	}

	return walkModel{
		loop:  loop,
		dofs:  dofs,
		chart: &chart,
	}
}

func (m walkModel) Init() tea.Cmd {
	return tea.Batch(
		waitForTick(m.loop),
		waitForLog(m.loop),
	)
}

func (m walkModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		w, h := m.chartSize()
		m.chart.Resize(w, h)
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case tickMsg:
		m.last = walk.Tick(msg)
		// Skipped ticks have no fresh positions; the chart holds still
		if m.last.Positions != nil {
			for _, d := range m.dofs {
				m.chart.PushDataSet(d.Name, m.last.Positions[d.Name])
			}
			m.chart.DrawAll()
		}
		return m, waitForTick(m.loop)

	case logMsg:
		m.addLog(string(msg))
		return m, waitForLog(m.loop)

	case doneMsg:
		m.done = true
		if msg.err != nil && !errors.Is(msg.err, context.Canceled) {
			m.addLog("walk ended: " + msg.err.Error())
		}
		return m, nil
	}

	return m, nil
}

func (m walkModel) View() string {
	if m.quitting {
		return "Walk stopped.\n"
	}

	var sb strings.Builder

	// Header
	sb.WriteString(titleStyle.Render("Z-Bot Walk"))
	period := m.loop.Config().TickPeriod
	sb.WriteString(fmt.Sprintf(" - %.0f Hz  tick %d  skipped %d", float64(time.Second)/float64(period), m.loop.Ticks(), m.loop.Skipped()))
	if m.last.Latency > 0 {
		sb.WriteString(statusStyle.Render(fmt.Sprintf("  [%s]", m.last.Latency.Round(100*time.Microsecond))))
	}
	if m.done {
		sb.WriteString(statusStyle.Render("  finished"))
	}
	sb.WriteString("\n\n")

	// Chart
	sb.WriteString(chartStyle.Render(m.chart.View()))
	sb.WriteString("\n")

	// Legend
	sb.WriteString(renderLegend(m.dofs))
	sb.WriteString("\n")

	// Log box
	logStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Width(max(m.width-4, 20)).
		Foreground(lipgloss.Color("9")) // bright red

	var logLines string
	if len(m.logs) == 0 {
		logLines = statusStyle.Render("Press 'q' to quit")
	} else {
		logLines = strings.Join(m.logs, "\n")
	}
	sb.WriteString(logStyle.Render(logLines))
	sb.WriteString("\n")

	return sb.String()
}

func renderLegend(dofs []robot.DOF) string {
	var rows [2][]string
	for i, d := range dofs {
		colorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(dofColors[i%len(dofColors)])).Bold(true)
		item := colorStyle.Render("━━") + " " + d.Name
		row := 0
		if i >= (len(dofs)+1)/2 {
			row = 1
		}
		rows[row] = append(rows[row], item)
	}
	return strings.Join(rows[0], "  ") + "\n" + strings.Join(rows[1], "  ")
}

func (c *WalkCommand) Execute(args []string) error {
	ctx := context.Background()
	s := mustConnect(ctx, true)
	defer s.Close()

	cfg, err := s.cfg.WalkConfig()
	if err != nil {
		return err
	}
	if c.Duration > 0 {
		cfg.Duration = c.Duration
	}
	if c.Endpoint != "" {
		cfg.InferenceEndpoint = c.Endpoint
	}
	if c.VX != 0 || c.VY != 0 || c.Yaw != 0 {
		cfg.Command = [3]float64{c.VX, c.VY, c.Yaw}
	}
	if c.Radians {
		cfg.PolicyRadians = true
	}

	runner := walk.NewRunner(s.robot, nil, s.logger)
	loop, err := runner.Start(cfg)
	if err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() {
		runner.Wait()
		if st := runner.Status(); st.LastErr != "" {
			done <- errors.New(st.LastErr)
			return
		}
		done <- nil
	}()

	model := initialWalkModel(loop)
	p := tea.NewProgram(model, tea.WithAltScreen())
	go func() {
		p.Send(doneMsg{<-done})
	}()
	if err := display(runner, func() error {
		_, err := p.Run()
		return err
	}); err != nil {
		return err
	}
	fmt.Printf("Walk finished after %d ticks (%d skipped).\n", loop.Ticks(), loop.Skipped())
	return nil
}

// display runs the walk UI and stops the runner once it exits, however it
// exits, so the caller's session can turn the torque off.
func display(runner *walk.Runner, run func() error) error {
	uiErr := run()
	if err := runner.Stop(); err != nil && !errors.Is(err, walk.ErrNotRunning) {
		return err
	}
	if uiErr != nil {
		return fmt.Errorf("walk display: %w", uiErr)
	}
	return nil
}
