package cli

import (
	"encoding/json"
	"fmt"

	"github.com/7c/centralmon/internal/display"
	"github.com/7c/centralmon/internal/wire"
	"github.com/spf13/cobra"
)

var processCmd = &cobra.Command{
	Use:   "process <host> <name>",
	Short: "show last-known process sample for one daemon on one host",
	Args:  cobra.ExactArgs(2),
	Run:   runProcess,
}

func runProcess(cmd *cobra.Command, args []string) {
	c, err := newClient()
	if err != nil {
		exitError(err.Error())
	}
	defer c.Close()

	line, err := c.QueryOne(fmt.Sprintf("process %s %s", args[0], args[1]))
	if err != nil {
		exitError(err.Error())
	}

	p, err := wire.DecodeProcessSummary(line)
	if err != nil {
		exitError(err.Error())
	}

	if jsonOutput {
		data, _ := json.Marshal(p)
		fmt.Println(string(data))
		return
	}

	if p.Error != "" {
		fmt.Printf("%s/%s: %s\n", display.Bold(args[0]), args[1], display.Red(p.Error))
		return
	}

	s := p.Sample
	alarm := display.Green("clear")
	if p.Alarm != "" {
		alarm = display.Red(p.Alarm)
	}
	fmt.Printf("%s/%s  started=%s procs=%d image=%d resident=%d  %s\n",
		display.Bold(p.Host), s.Name, s.Start, s.Procs, s.Image, s.Resident, alarm)
}
