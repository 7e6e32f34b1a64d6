// Package cli implements the tidehook command line interface.
package cli

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	verbose bool
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "tidehook",
	Short: "Source-control webhook dispatcher",
	Long: `Tidehook consumes inbound source-control webhooks from the queue,
resolves which projects own the repository, and fans each event out to
per-event handlers that schedule deploy and removal tasks.

Transient project-lookup failures are retried with exponential backoff
through a delayed re-delivery queue; one project's handler failure never
blocks another project's event.

Start the dispatcher:
  tidehook start`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./tidehook.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
}

// setupLogging configures zerolog based on verbosity.
func setupLogging() {
	output := zerolog.ConsoleWriter{Out: os.Stderr}

	if verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

// Version returns the version string.
func Version() string {
	return fmt.Sprintf("tidehook version %s", "0.1.0-dev")
}
