package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/NimbleMarkets/ntcharts/canvas/runes"
	"github.com/NimbleMarkets/ntcharts/linechart/streamlinechart"

	"github.com/gwillem/roarm/pkg/event"
	"github.com/gwillem/roarm/pkg/robot"
	"github.com/gwillem/roarm/pkg/teleop"
	"github.com/gwillem/roarm/pkg/units"
)

type TeleoperateCommand struct {
	Hz        int `long:"hz" description:"Control loop frequency (overrides config)"`
	Threshold int `long:"failure-threshold" description:"Consecutive failures before stopping (overrides config)"`
}

const (
	headerHeight = 2 // title + blank line
	legendHeight = 2 // legend row + blank
	footerHeight = 7 // log box height
	maxLogs      = 5 // number of log messages to show
	borderSize   = 2 // chart border
)

// Joint colors - distinct colors for each joint
var jointColors = map[units.JointName]string{
	units.ShoulderPan:  "196", // red
	units.ShoulderLift: "208", // orange
	units.ElbowFlex:    "226", // yellow
	units.WristFlex:    "46",  // green
	units.WristRoll:    "51",  // cyan
	units.Gripper:      "201", // magenta
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	chartStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

type teleopModel struct {
	bridge     *teleop.Bridge
	sink       *event.ChannelSink
	chart      *streamlinechart.Model
	width      int
	height     int
	logs       []string
	quitting   bool
	lastAction robot.Action
}

func (m *teleopModel) addLog(msg string) {
	m.logs = append(m.logs, msg)
	if len(m.logs) > maxLogs {
		m.logs = m.logs[len(m.logs)-maxLogs:]
	}
}

// hasMovement checks whether any joint changed since the last snapshot, so
// the chart freezes while the arm is idle.
func (m *teleopModel) hasMovement(act robot.Action) bool {
	if m.lastAction == nil {
		return true
	}
	for key, v := range act {
		if last, ok := m.lastAction[key]; !ok || v != last {
			return true
		}
	}
	return false
}

type snapMsg teleop.Snapshot
type eventMsg event.Event

func waitForSnap(b *teleop.Bridge) tea.Cmd {
	return func() tea.Msg {
		return snapMsg(<-b.Snapshots())
	}
}

func waitForEvent(s *event.ChannelSink) tea.Cmd {
	return func() tea.Msg {
		return eventMsg(<-s.Events())
	}
}

func (m *teleopModel) chartSize() (width, height int) {
	if m.width == 0 || m.height == 0 {
		return 80, 20
	}
	width = m.width - borderSize - 2
	if width < 40 {
		width = 40
	}
	height = m.height - headerHeight - legendHeight - footerHeight - borderSize
	if height < 10 {
		height = 10
	}
	return width, height
}

func (m *teleopModel) resizeChart() {
	w, h := m.chartSize()
	m.chart.Resize(w, h)
}

func initialTeleopModel(b *teleop.Bridge, sink *event.ChannelSink) teleopModel {
	chart := streamlinechart.New(80, 20,
		streamlinechart.WithYRange(-100, 100),
	)

	for _, name := range robot.AllJoints() {
		color := jointColors[name]
		style := lipgloss.NewStyle().Foreground(lipgloss.Color(color))
		chart.SetDataSetStyles(string(name), runes.ThinLineStyle, style)
	}

	return teleopModel{
		bridge: b,
		sink:   sink,
		chart:  &chart,
	}
}

func (m teleopModel) Init() tea.Cmd {
	return tea.Batch(
		waitForSnap(m.bridge),
		waitForEvent(m.sink),
	)
}

func (m teleopModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resizeChart()
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			m.bridge.Stop()
			return m, tea.Quit
		}

	case snapMsg:
		snap := teleop.Snapshot(msg)
		if snap.Action != nil && m.hasMovement(snap.Action) {
			for key, pct := range snap.Action {
				name, ok := strings.CutSuffix(key, ".pos")
				if !ok {
					continue
				}
				m.chart.PushDataSet(name, pct)
			}
			m.chart.DrawAll()
			m.lastAction = snap.Action
		}
		return m, waitForSnap(m.bridge)

	case eventMsg:
		e := event.Event(msg)
		m.addLog(fmt.Sprintf("[%s] %s", e.Time.Format("15:04:05"), e.Message))
		if m.bridge.State() == teleop.Stopped && e.Level == event.Error {
			m.quitting = true
			return m, tea.Quit
		}
		return m, waitForEvent(m.sink)
	}

	return m, nil
}

func (m teleopModel) View() string {
	if m.quitting {
		return ""
	}

	var sb strings.Builder

	sb.WriteString(titleStyle.Render("RoArm Teleoperation"))
	sb.WriteString(statusStyle.Render(fmt.Sprintf("  %s  %d Hz", m.bridge.State(), int(time.Second/m.bridge.Period()))))
	sb.WriteString("\n\n")

	sb.WriteString(renderLegend())
	sb.WriteString("\n\n")

	sb.WriteString(chartStyle.Render(m.chart.View()))
	sb.WriteString("\n")

	logStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Width(m.width - 4).
		Foreground(lipgloss.Color("9"))

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

func renderLegend() string {
	var items []string
	for _, name := range robot.AllJoints() {
		color := jointColors[name]
		colorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(color)).Bold(true)
		item := colorStyle.Render("━━") + " " + string(name)
		items = append(items, item)
	}
	return strings.Join(items, "  ")
}

func (c *TeleoperateCommand) Execute(args []string) error {
	cfg, err := robot.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "No configuration found. Run 'roarm setup' first.")
		os.Exit(1)
	}

	sink := event.NewChannelSink(64)

	follower, err := robot.New(cfg.Follower, robot.WithSink(sink))
	if err != nil {
		log.Fatalf("Failed to create follower: %v", err)
	}

	var leader teleop.Leader
	if cfg.Leader.Model == "so101" {
		leader, err = teleop.NewSO101Leader(teleop.SO101ConfigFromArm(cfg.Leader))
	} else {
		leader, err = teleop.NewRoarmLeader(cfg.Leader, teleop.WithLeaderSink(sink))
	}
	if err != nil {
		log.Fatalf("Failed to create leader: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := leader.Connect(ctx); err != nil {
		log.Fatalf("Failed to connect leader: %v", err)
	}
	defer leader.Close()

	if err := follower.Connect(ctx); err != nil {
		log.Fatalf("Failed to connect follower: %v", err)
	}
	defer follower.Disconnect(context.Background())

	teleopCfg := teleop.Config{
		RateHz:           cfg.Teleop.RateHz,
		FailureThreshold: cfg.Teleop.FailureThreshold,
	}
	if c.Hz > 0 {
		teleopCfg.RateHz = c.Hz
	}
	if c.Threshold > 0 {
		teleopCfg.FailureThreshold = c.Threshold
	}

	bridge := teleop.New(leader, follower, teleopCfg, sink)

	go func() {
		if err := bridge.Start(ctx); err != nil && err != context.Canceled {
			log.Printf("Bridge error: %v", err)
		}
	}()

	p := tea.NewProgram(initialTeleopModel(bridge, sink), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		log.Fatalf("Error running program: %v", err)
	}

	bridge.Stop()
	return nil
}
