package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"

	"github.com/securewipe/securewipe/pkg/device"
)

// runDiscoverCmd lists block devices with their risk classification.
func runDiscoverCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("discover", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var jsonOut bool
	cmd.BoolVar(&jsonOut, "json", false, "Output devices as JSON")

	if err := cmd.Parse(args); err != nil {
		return 2
	}

	devices, err := device.Discover(context.Background(), device.ExecRunner{})
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	if jsonOut {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(devices); err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return 2
		}
		return 0
	}

	_, _ = fmt.Fprintf(stdout, "%-14s %-24s %-18s %-6s %12s  %-8s %s\n",
		"PATH", "MODEL", "SERIAL", "BUS", "BYTES", "RISK", "MOUNTPOINTS")
	for _, d := range devices {
		_, _ = fmt.Fprintf(stdout, "%-14s %-24s %-18s %-6s %12d  %-8s %v\n",
			d.Path, d.Model, d.Serial, d.Bus, d.CapacityBytes, d.Risk, d.Mountpoints)
	}
	return 0
}
