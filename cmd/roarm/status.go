package main

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/gwillem/roarm/pkg/robot"
	"github.com/gwillem/roarm/pkg/units"
)

type StatusCommand struct {
	Arm string `long:"arm" default:"follower" choice:"leader" choice:"follower" description:"Which arm to query"`
}

func (c *StatusCommand) Execute(args []string) error {
	cfg, err := robot.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "No configuration found. Run 'roarm setup' first.")
		os.Exit(1)
	}

	armCfg := cfg.Follower
	if c.Arm == "leader" {
		armCfg = cfg.Leader
	}

	r, err := robot.New(armCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	if err := r.Connect(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error connecting: %v\n", err)
		os.Exit(1)
	}
	defer r.Disconnect(ctx)

	obs, err := r.Observation(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading observation: %v\n", err)
		os.Exit(1)
	}

	conv := r.Converter()
	rows := make([][]string, 0, len(r.Joints()))
	for _, name := range r.Joints() {
		pos, ok := obs.Joints[name]
		if !ok && name == units.Gripper && obs.Gripper != nil {
			pos, ok = *obs.Gripper, true
		}
		if !ok {
			continue
		}
		spec, _ := conv.Spec(name)
		rows = append(rows, []string{
			string(name),
			fmt.Sprintf("%+.1f°", units.RadToDeg(pos)),
			fmt.Sprintf("%+.3f", pos),
			fmt.Sprintf("%+.0f%%", units.DegreesToPercent(spec, units.RadToDeg(pos))),
			fmt.Sprintf("%.0f°..%.0f°", spec.Min, spec.Max),
		})
	}

	cellStyle := lipgloss.NewStyle().Padding(0, 1)
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers("Joint", "Degrees", "Radians", "Percent", "Limits").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle.Padding(0, 1)
			}
			if col == 0 {
				return subHeaderStyle.Padding(0, 1)
			}
			return cellStyle
		})

	fmt.Println(t.Render())
	return nil
}
