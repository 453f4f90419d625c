package main

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/hipsterbrown/feetech-servo/feetech"

	"github.com/willothy/khacks-0.3/pkg/kos/stsbus"
	"github.com/willothy/khacks-0.3/pkg/robot"
)

// A joint needs at least a quarter turn of recorded travel
const minTravel = stsbus.StepsPerRevolution / 4

const pollInterval = 100 * time.Millisecond

// readPosition reads one servo's raw encoder position.
type readPosition func(ctx context.Context, id int) (int, error)

// travel is the range recorded for one servo during calibration.
type travel struct {
	id     int
	limb   robot.Limb
	label  string
	zero   int
	cur    int
	lo, hi int
}

func newTravel(id, zero int) *travel {
	joint, _, _ := robot.Lookup(robot.ActuatorID(id))
	return &travel{
		id:    id,
		limb:  joint.Limb(),
		label: jointLabel(id),
		zero:  zero,
		cur:   zero,
		lo:    zero,
		hi:    zero,
	}
}

func (t *travel) observe(pos int) {
	t.cur = pos
	t.lo = min(t.lo, pos)
	t.hi = max(t.hi, pos)
}

func (t *travel) span() int { return t.hi - t.lo }

func (t *travel) done() bool { return t.span() > minTravel }

// calibrate records each servo's zero pose and range of motion.
func calibrate(b busInfo) (stsbus.Calibration, error) {
	ctx := context.Background()

	servos := make(map[int]*feetech.Servo, len(b.servos))
	for _, s := range b.servos {
		servos[s.ID] = feetech.NewServo(b.bus, s.ID, s.Model)
	}
	read := func(ctx context.Context, id int) (int, error) {
		return servos[id].Position(ctx)
	}

	// Torque off so the joints move by hand
	for _, servo := range servos {
		servo.Disable(ctx)
	}

	if err := confirm("Put the robot in its zero pose: arms down, legs straight."); err != nil {
		return nil, err
	}

	ids := make([]int, 0, len(servos))
	for id := range servos {
		ids = append(ids, id)
	}
	model, err := newCalibrationModel(ctx, ids, read)
	if err != nil {
		return nil, err
	}

	fmt.Println(subHeaderStyle.Render("Record range of motion"))
	fmt.Println("Move each joint to its minimum AND maximum positions.")
	fmt.Println()

	final, err := tea.NewProgram(model).Run()
	if err != nil {
		return nil, fmt.Errorf("calibration: %w", err)
	}
	cal := final.(calibrationModel).calibration()
	fmt.Printf("Calibrated %d servos.\n", len(cal))
	return cal, nil
}

// confirm shows prompt and waits for the user to continue.
func confirm(prompt string) error {
	fmt.Println(prompt)
	return huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("").
				Affirmative("Continue").
				Negative("").
				Value(new(bool)),
		),
	).Run()
}

type calibrationModel struct {
	read     readPosition
	travels  []*travel // sorted by actuator id, so limbs stay together
	quitting bool
}

type pollMsg time.Time

// newCalibrationModel takes the current position of every servo as its
// zero.
func newCalibrationModel(ctx context.Context, ids []int, read readPosition) (calibrationModel, error) {
	ids = slices.Clone(ids)
	slices.Sort(ids)

	m := calibrationModel{read: read}
	for _, id := range ids {
		pos, err := read(ctx, id)
		if err != nil {
			return m, fmt.Errorf("read servo %d: %w", id, err)
		}
		m.travels = append(m.travels, newTravel(id, pos))
	}
	return m, nil
}

func poll() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg {
		return pollMsg(t)
	})
}

func (m calibrationModel) Init() tea.Cmd {
	return poll()
}

func (m calibrationModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "enter", "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case pollMsg:
		ctx := context.Background()
		for _, t := range m.travels {
			// A missed read keeps the last position
			if pos, err := m.read(ctx, t.id); err == nil {
				t.observe(pos)
			}
		}
		return m, poll()
	}

	return m, nil
}

// calibration converts the recorded travel into bus calibration.
func (m calibrationModel) calibration() stsbus.Calibration {
	cal := make(stsbus.Calibration, len(m.travels))
	for _, t := range m.travels {
		cal[t.id] = stsbus.ServoCalibration{
			HomingOffset: t.zero,
			RangeMin:     t.lo,
			RangeMax:     t.hi,
		}
	}
	return cal
}

// remaining counts joints still short of minTravel.
func (m calibrationModel) remaining() int {
	n := 0
	for _, t := range m.travels {
		if !t.done() {
			n++
		}
	}
	return n
}

// byLimb groups the travels by limb in registry order. Servos outside the
// registry come last under limb 0.
func (m calibrationModel) byLimb() map[robot.Limb][]*travel {
	groups := make(map[robot.Limb][]*travel)
	for _, t := range m.travels {
		groups[t.limb] = append(groups[t.limb], t)
	}
	return groups
}

var (
	calHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Padding(0, 1)
	calJointStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("14")).Padding(0, 1)
	calCellStyle   = lipgloss.NewStyle().Padding(0, 1)
	calNowStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Padding(0, 1)
	calDoneStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Padding(0, 1)
	calShortStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Padding(0, 1)
)

func degrees(steps int) string {
	return fmt.Sprintf("%.0f°", float64(steps)*360/stsbus.StepsPerRevolution)
}

func renderLimb(travels []*travel) string {
	rows := make([][]string, 0, len(travels))
	for _, t := range travels {
		rows = append(rows, []string{
			fmt.Sprintf("%d %s", t.id, t.label),
			degrees(t.cur - t.zero),
			degrees(t.lo - t.zero),
			degrees(t.hi - t.zero),
			degrees(t.span()),
		})
	}

	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers("Joint", "Now", "Min", "Max", "Travel").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return calHeaderStyle
			case col == 0:
				return calJointStyle
			case col == 1:
				return calNowStyle
			case col == 4 && row >= 0 && row < len(travels):
				if travels[row].done() {
					return calDoneStyle
				}
				return calShortStyle
			}
			return calCellStyle
		}).
		Render()
}

func (m calibrationModel) View() string {
	if m.quitting {
		return ""
	}

	var sb strings.Builder
	groups := m.byLimb()
	for _, limb := range append(robot.Limbs(), 0) {
		travels := groups[limb]
		if len(travels) == 0 {
			continue
		}
		name := limb.String()
		if limb == 0 {
			name = "other"
		}
		sb.WriteString(subHeaderStyle.Render(name))
		sb.WriteString("\n")
		sb.WriteString(renderLimb(travels))
		sb.WriteString("\n")
	}

	sb.WriteString("\n")
	if n := m.remaining(); n > 0 {
		sb.WriteString(dimStyle.Render(fmt.Sprintf("%d joint(s) need more travel. Press Enter when done", n)))
	} else {
		sb.WriteString(successStyle.Render("All joints recorded. Press Enter to save"))
	}
	return sb.String()
}
