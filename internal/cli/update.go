package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "force an immediate catalog threshold resync for every registered host",
	Args:  cobra.NoArgs,
	Run:   runUpdate,
}

func runUpdate(cmd *cobra.Command, args []string) {
	c, err := newClient()
	if err != nil {
		exitError(err.Error())
	}
	defer c.Close()

	reply, err := c.QueryOne("update")
	if err != nil {
		exitError(err.Error())
	}
	fmt.Print(reply)
}
