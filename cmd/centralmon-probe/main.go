// Command centralmon-probe runs one diagnostic sample against the local
// collector and prints it to stdout, with no aggregator connection
// (original_source/centralmon.cpp standalone probe mode, supplemented
// per SPEC_FULL.md "SUPPLEMENTED FEATURES").
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/7c/centralmon/internal/collector"
	"github.com/7c/centralmon/internal/wire"
)

func main() {
	processName := flag.String("process", "", "sample a named process instead of system-level state")
	flag.Parse()

	coll := collector.New()

	if *processName != "" {
		p, err := coll.CollectProcess(*processName)
		if err != nil {
			fmt.Fprintf(os.Stderr, "centralmon-probe: %v\n", err)
			os.Exit(1)
		}
		fmt.Print(wire.EncodeProcessResponse(p))
		return
	}

	s, err := coll.CollectSystem()
	if err != nil {
		fmt.Fprintf(os.Stderr, "centralmon-probe: %v\n", err)
		os.Exit(1)
	}
	fmt.Print(wire.EncodeSystemResponse(s))
}
