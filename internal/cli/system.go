package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/7c/centralmon/internal/display"
	"github.com/7c/centralmon/internal/wire"
	"github.com/spf13/cobra"
)

var systemCmd = &cobra.Command{
	Use:   "system [host]",
	Short: "show last-known system sample(s), optionally for one host",
	Args:  cobra.MaximumNArgs(1),
	Run:   runSystem,
}

func runSystem(cmd *cobra.Command, args []string) {
	c, err := newClient()
	if err != nil {
		exitError(err.Error())
	}
	defer c.Close()

	line := "system"
	if len(args) == 1 {
		line = "system " + args[0]
	}

	lines, err := c.Query(line)
	if err != nil {
		exitError(err.Error())
	}

	var summaries []wire.HostSummary
	for _, l := range lines {
		h, err := wire.DecodeHostSummary(l)
		if err != nil {
			exitError(err.Error())
		}
		summaries = append(summaries, h)
	}

	if jsonOutput {
		data, _ := json.Marshal(summaries)
		fmt.Println(string(data))
		return
	}

	for _, h := range summaries {
		printHostSummary(h)
	}
}

func printHostSummary(h wire.HostSummary) {
	if h.Error != "" {
		fmt.Printf("%s: %s\n", display.Bold(h.Host), display.Red(h.Error))
		return
	}

	s := h.Sample
	alarm := display.Green("clear")
	if h.Alarm != "" {
		alarm = display.Red(h.Alarm)
	}
	fmt.Fprintf(os.Stdout, "%s  %s/%s  cpus=%d cpu%%=%.1f procs=%d uptime=%dd mem=%d/%d swap=%d/%d  %s\n",
		display.Bold(h.Host), s.OS, s.Release, s.CPUs, s.CPUPercent, s.Procs, s.UptimeDays,
		s.MainUsed, s.MainTotal, s.SwapUsed, s.SwapTotal, alarm)
}
