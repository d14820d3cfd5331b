// Package cmd provides the rbhcored CLI commands.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cea-hpc/robinhood-sub006/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "rbhcored",
	Short: "rbhcored - policy-driven filesystem management engine",
	Long: `rbhcored scans a filesystem's entry catalog, matches entries against
configured fileclasses and policy rules, and executes the resulting
actions -- either as a one-shot run or as a resident daemon driven by
usage and schedule triggers.

Configuration is loaded from rbhcored.yaml in the current directory,
$HOME/.rbhcored/, or /etc/rbhcored/.

Environment variables can override config values with the RBHCORED_ prefix.
Example: RBHCORED_DAEMON_ADMIN_ADDR=:9090

Commands:
  run       Run a single policy once
  start     Start the daemon (trigger loop + admin surface)
  stop      Stop a running daemon
  status    Show persisted policy and trigger status
  reset     Clear a policy's persisted summary variables
  version   Print version information`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./rbhcored.yaml)")
}

func initConfig() {
	config.InitViper(cfgFile)
}
