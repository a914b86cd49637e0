// Package cli implements centralmon-ctl: the query/control client for the
// aggregator's multiplexed port (§6). Each subcommand dials the
// aggregator, sends one request line, and renders the reply.
package cli

import (
	"fmt"
	"os"

	"github.com/7c/centralmon/internal/client"
	"github.com/7c/centralmon/internal/display"
	"github.com/spf13/cobra"
)

// Version is set at build time via ldflags.
var Version = "dev"

// addrFlag is the global --addr flag: the aggregator's "host:port".
var addrFlag string

// jsonOutput is the global flag for JSON output mode.
var jsonOutput bool

var rootCmd = &cobra.Command{
	Use:   "centralmon-ctl",
	Short: display.CBold + "centralmon-ctl" + display.CReset + " — fleet monitor query/control client",
}

// coloredHelpTemplate is the Cobra help template with ANSI colors.
var coloredHelpTemplate = `{{with .Long}}{{. | trimTrailingWhitespaces}}

{{end}}` +
	`{{if or .Runnable .HasSubCommands}}` + display.CYellow + `Usage:` + display.CReset + `{{end}}
{{if .Runnable}}  {{.UseLine}}{{end}}` +
	`{{if .HasAvailableSubCommands}}  {{.CommandPath}} [command]{{end}}

` +
	`{{if .HasAvailableSubCommands}}` + display.CYellow + `Available Commands:` + display.CReset + `{{range .Commands}}{{if (or .IsAvailableCommand (eq .Name "help"))}}
  ` + display.CCyan + `{{rpad .Name .NamePadding}}` + display.CReset + `  {{.Short}}{{end}}{{end}}

{{end}}` +
	`{{if .HasAvailableLocalFlags}}` + display.CYellow + `Flags:` + display.CReset + `
{{.LocalFlags.FlagUsages | trimTrailingWhitespaces}}

{{end}}` +
	`{{if .HasAvailableInheritedFlags}}` + display.CYellow + `Global Flags:` + display.CReset + `
{{.InheritedFlags.FlagUsages | trimTrailingWhitespaces}}

{{end}}` +
	`{{if .HasAvailableSubCommands}}Use "{{.CommandPath}} [command] --help" for more information about a command.
{{end}}`

// Execute sets up the root command, registers every query-verb subcommand,
// and runs cobra.
func Execute() {
	rootCmd.Version = Version
	rootCmd.PersistentFlags().StringVar(&addrFlag, "addr", "127.0.0.1:4636", "aggregator control-plane address")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	rootCmd.SetHelpTemplate(coloredHelpTemplate)

	rootCmd.AddCommand(systemCmd)
	rootCmd.AddCommand(processCmd)
	rootCmd.AddCommand(messageCmd)
	rootCmd.AddCommand(messagesCmd)
	rootCmd.AddCommand(updateCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newClient dials the aggregator at the global --addr.
func newClient() (*client.Client, error) {
	return client.Dial(addrFlag)
}

// exitError prints an error message and exits.
func exitError(msg string) {
	if jsonOutput {
		fmt.Fprintf(os.Stdout, "{\"error\":%q}\n", msg)
	} else {
		fmt.Fprintf(os.Stderr, "%s %s\n", display.Red("Error:"), msg)
	}
	os.Exit(1)
}
