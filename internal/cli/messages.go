package cli

import (
	"fmt"

	"github.com/7c/centralmon/internal/display"
	"github.com/7c/centralmon/internal/wire"
	"github.com/spf13/cobra"
)

var messagesCmd = &cobra.Command{
	Use:   "messages",
	Short: "stream every currently-live operator message, then exit",
	Args:  cobra.NoArgs,
	Run:   runMessages,
}

func runMessages(cmd *cobra.Command, args []string) {
	c, err := newClient()
	if err != nil {
		exitError(err.Error())
	}
	defer c.Close()

	lines, err := c.Query("messages")
	if err != nil {
		exitError(err.Error())
	}

	for _, l := range lines {
		m, err := wire.DecodeMessageLine(l)
		if err != nil {
			continue
		}
		fmt.Printf("%s [%s] %s\n", display.Bold(m.Type), m.App, m.Body)
	}
}
