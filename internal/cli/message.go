package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var (
	messageType string
	messageApp  string
	messageDur  time.Duration
)

var messageCmd = &cobra.Command{
	Use:   "message <body...>",
	Short: "broadcast an operator message to every ctl client streaming \"messages\"",
	Args:  cobra.MinimumNArgs(1),
	Run:   runMessage,
}

func init() {
	messageCmd.Flags().StringVar(&messageType, "type", "info", "message type (e.g. info, warning)")
	messageCmd.Flags().StringVar(&messageApp, "app", "", "application the message concerns")
	messageCmd.Flags().DurationVar(&messageDur, "duration", time.Hour, "how long the message stays live")
}

func runMessage(cmd *cobra.Command, args []string) {
	c, err := newClient()
	if err != nil {
		exitError(err.Error())
	}
	defer c.Close()

	now := time.Now()
	body := strings.Join(args, " ")
	line := fmt.Sprintf("message %s;%s;%d;%d;%s",
		messageType, messageApp, now.Unix(), now.Add(messageDur).Unix(), body)

	reply, err := c.QueryOne(line)
	if err != nil {
		exitError(err.Error())
	}
	fmt.Print(reply)
}
