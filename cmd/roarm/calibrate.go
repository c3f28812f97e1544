package main

import (
	"context"
	"fmt"
	"os"

	"github.com/gwillem/roarm/pkg/robot"
)

type CalibrateCommand struct {
	Arm string `long:"arm" default:"follower" choice:"leader" choice:"follower" description:"Which arm to calibrate"`
}

func (c *CalibrateCommand) Execute(args []string) error {
	cfg, err := robot.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "No configuration found. Run 'roarm setup' first.")
		os.Exit(1)
	}

	armCfg := &cfg.Follower
	if c.Arm == "leader" {
		armCfg = &cfg.Leader
	}
	if armCfg.Model != robot.ModelRoArmM3 && armCfg.Model != "" {
		fmt.Fprintf(os.Stderr, "Calibration applies to RoArm arms, not %q.\n", armCfg.Model)
		os.Exit(1)
	}

	fmt.Println(headerStyle.Render("RoArm Calibration"))
	fmt.Printf("Arm: %s  Transport: %s%s\n\n", c.Arm, armCfg.Port, armCfg.Host)
	fmt.Println("The arm will move to its reference pose. Clear the workspace.")
	fmt.Println()

	r, err := robot.New(*armCfg)
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

	offsets, err := r.Calibrate(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Calibration failed: %v\n", err)
		os.Exit(1)
	}

	armCfg.Calibration = offsets
	if err := cfg.Save(); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving config: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(successStyle.Render("Calibration complete."))
	for name, off := range offsets {
		fmt.Printf("  %-14s zero %+.2f°\n", name, off.Zero)
	}
	fmt.Printf("\nOffsets saved to %s\n", robot.DefaultConfigFile)
	return nil
}
