package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/hipsterbrown/feetech-servo/feetech"

	"github.com/gwillem/roarm/pkg/robot"
	"github.com/gwillem/roarm/pkg/teleop"
	"github.com/gwillem/roarm/pkg/transport"
	"github.com/gwillem/roarm/pkg/units"
)

var (
	headerStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	subHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
	successStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

type SetupCommand struct{}

func (c *SetupCommand) Execute(args []string) error {
	fmt.Println(headerStyle.Render("RoArm Setup"))
	fmt.Println(dimStyle.Render("━━━━━━━━━━━"))
	fmt.Println()

	config := &robot.Config{
		Follower: robot.DefaultArmConfig(),
		Leader:   robot.DefaultArmConfig(),
	}

	fmt.Println(subHeaderStyle.Render("━━━ Follower arm (RoArm-M3) ━━━"))
	fmt.Println()
	configureTransport(&config.Follower)

	fmt.Println()
	fmt.Println(subHeaderStyle.Render("━━━ Leader arm ━━━"))
	fmt.Println()

	leaderModel := chooseLeaderModel()
	if leaderModel == "so101" {
		config.Leader = robot.ArmConfig{Model: "so101"}
		config.Leader.Port = choosePort("leader")
		cal := captureSO101Ranges(config.Leader.Port)
		config.Leader.Joints = so101Specs(cal)
	} else {
		configureTransport(&config.Leader)
	}

	if err := config.Save(); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving config: %v\n", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println(dimStyle.Render("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━"))
	fmt.Println(successStyle.Render("Setup complete!"))
	fmt.Printf("Configuration saved to %s\n", robot.DefaultConfigFile)
	fmt.Println()
	fmt.Println("Calibrate the follower with: " + headerStyle.Render("roarm calibrate"))
	fmt.Println("Start teleoperation with:    " + headerStyle.Render("roarm teleoperate"))

	return nil
}

// configureTransport asks for serial or WiFi and fills exactly one of
// port/host.
func configureTransport(arm *robot.ArmConfig) {
	var kind string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Connection type").
				Options(
					huh.NewOption("Serial (USB)", "serial"),
					huh.NewOption("WiFi", "wifi"),
				).
				Value(&kind),
		),
	)
	if err := form.Run(); err != nil {
		fmt.Println()
		os.Exit(0)
	}

	if kind == "wifi" {
		var host string
		form := huh.NewForm(
			huh.NewGroup(
				huh.NewInput().
					Title("Firmware IP address").
					Placeholder("192.168.4.1").
					Value(&host),
			),
		)
		if err := form.Run(); err != nil {
			fmt.Println()
			os.Exit(0)
		}
		arm.Port = ""
		arm.Host = strings.TrimSpace(host)
		return
	}

	arm.Host = ""
	arm.Port = choosePort("arm")
}

func choosePort(role string) string {
	ports, err := transport.ListPorts()
	if err != nil || len(ports) == 0 {
		fmt.Println("No serial ports found. Connect the arm and try again.")
		os.Exit(1)
	}

	var options []huh.Option[string]
	for _, p := range ports {
		// Skip Bluetooth ports on macOS
		if strings.Contains(p, "Bluetooth") {
			continue
		}
		options = append(options, huh.NewOption(p, p))
	}

	var port string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title(fmt.Sprintf("Serial port for the %s", role)).
				Options(options...).
				Value(&port),
		),
	)
	if err := form.Run(); err != nil {
		fmt.Println()
		os.Exit(0)
	}
	return port
}

func chooseLeaderModel() string {
	var model string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Leader arm model").
				Description("The arm you move by hand").
				Options(
					huh.NewOption("RoArm-M3 (second arm, torque released)", robot.ModelRoArmM3),
					huh.NewOption("SO-101 (Feetech servos)", "so101"),
				).
				Value(&model),
		),
	)
	if err := form.Run(); err != nil {
		fmt.Println()
		os.Exit(0)
	}
	return model
}

// captureSO101Ranges records each servo's usable range by tracking raw
// positions while the user moves every joint end to end.
func captureSO101Ranges(port string) map[units.JointName]teleop.ServoCalibration {
	bus, err := feetech.NewBus(feetech.BusConfig{
		Port:     port,
		BaudRate: teleop.SO101BaudRate,
		Protocol: feetech.ProtocolSTS,
		Timeout:  100 * time.Millisecond,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening servo bus: %v\n", err)
		os.Exit(1)
	}
	defer bus.Close()

	joints := robot.AllJoints()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	found, err := bus.Scan(ctx, 1, 6)
	cancel()
	if err != nil || len(found) != len(joints) {
		fmt.Fprintf(os.Stderr, "Expected %d servos with IDs 1-%d on %s\n", len(joints), len(joints), port)
		os.Exit(1)
	}

	byID := make(map[int]feetech.FoundServo, len(found))
	for _, s := range found {
		byID[s.ID] = s
	}

	ctx = context.Background()
	servos := make(map[units.JointName]*feetech.Servo, len(joints))
	for i, name := range joints {
		s, ok := byID[i+1]
		if !ok {
			fmt.Fprintf(os.Stderr, "Servo ID %d not found on %s\n", i+1, port)
			os.Exit(1)
		}
		servo := feetech.NewServo(bus, s.ID, s.Model)
		servo.Disable(ctx)
		servos[name] = servo
	}

	cur := make(map[units.JointName]int)
	min := make(map[units.JointName]int)
	max := make(map[units.JointName]int)
	for _, name := range joints {
		pos, _ := servos[name].Position(ctx)
		cur[name], min[name], max[name] = pos, pos, pos
	}

	fmt.Println(subHeaderStyle.Render("Record range of motion"))
	fmt.Println("Move each joint to its minimum AND maximum positions.")
	fmt.Println()

	model := rangeModel{joints: joints, servos: servos, cur: cur, min: min, max: max}
	final, err := tea.NewProgram(model).Run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error running range capture: %v\n", err)
		os.Exit(1)
	}
	rm := final.(rangeModel)

	cal := make(map[units.JointName]teleop.ServoCalibration, len(joints))
	for i, name := range joints {
		cal[name] = teleop.ServoCalibration{
			ID:       i + 1,
			RangeMin: rm.min[name],
			RangeMax: rm.max[name],
		}
	}
	return cal
}

// so101Specs stores captured servo ranges as raw-family joint specs.
func so101Specs(cal map[units.JointName]teleop.ServoCalibration) []units.Spec {
	specs := make([]units.Spec, 0, len(cal))
	for _, name := range robot.AllJoints() {
		c, ok := cal[name]
		if !ok {
			continue
		}
		specs = append(specs, units.Spec{
			Name:        name,
			Family:      units.Raw,
			Min:         float64(c.RangeMin),
			Max:         float64(c.RangeMax),
			Center:      float64(c.RangeMin+c.RangeMax) / 2,
			TicksPerRev: units.DefaultTicksPerRev,
		})
	}
	return specs
}

// Range capture TUI

type rangeModel struct {
	joints   []units.JointName
	servos   map[units.JointName]*feetech.Servo
	cur      map[units.JointName]int
	min      map[units.JointName]int
	max      map[units.JointName]int
	quitting bool
}

type tickMsg time.Time

func (m rangeModel) Init() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m rangeModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "enter", "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case tickMsg:
		ctx := context.Background()
		for _, name := range m.joints {
			pos, err := m.servos[name].Position(ctx)
			if err != nil {
				continue
			}
			m.cur[name] = pos
			if pos < m.min[name] {
				m.min[name] = pos
			}
			if pos > m.max[name] {
				m.max[name] = pos
			}
		}
		return m, tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
			return tickMsg(t)
		})
	}

	return m, nil
}

func (m rangeModel) View() string {
	if m.quitting {
		return ""
	}

	var sb strings.Builder

	tableHeaderStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Padding(0, 1)
	tableJointStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("14")).Padding(0, 1)
	tableCellStyle := lipgloss.NewStyle().Padding(0, 1)
	tableRangeGoodStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Padding(0, 1)
	tableRangeLowStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Padding(0, 1)

	rows := make([][]string, 0, len(m.joints))
	ranges := make([]int, 0, len(m.joints))
	for _, name := range m.joints {
		size := m.max[name] - m.min[name]
		ranges = append(ranges, size)
		rows = append(rows, []string{
			string(name),
			fmt.Sprintf("%d", m.cur[name]),
			fmt.Sprintf("%d", m.min[name]),
			fmt.Sprintf("%d", m.max[name]),
			fmt.Sprintf("%d", size),
		})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers("Joint", "Current", "Min", "Max", "Range").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return tableHeaderStyle
			}
			switch col {
			case 0:
				return tableJointStyle
			case 4:
				if row >= 0 && row < len(ranges) && ranges[row] > 500 {
					return tableRangeGoodStyle
				}
				return tableRangeLowStyle
			default:
				return tableCellStyle
			}
		})

	sb.WriteString(t.Render())
	sb.WriteString("\n\n")
	sb.WriteString(dimStyle.Render("Press Enter when done"))

	return sb.String()
}
