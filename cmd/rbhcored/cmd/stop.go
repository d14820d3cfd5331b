package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/cea-hpc/robinhood-sub006/internal/adapter/outbound/daemonstate"
	"github.com/cea-hpc/robinhood-sub006/internal/config"
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop a running daemon",
	Long: `Stop a running rbhcored daemon by reading its PID file and sending a
graceful-shutdown signal.

Examples:
  rbhcored stop`,
	RunE: runStop,
}

func init() {
	rootCmd.AddCommand(stopCmd)
}

func runStop(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	pidPath := pidFilePath(cfg.Daemon.StateDir)
	pid := daemonstate.ReadPIDFile(pidPath)
	if pid == 0 {
		return fmt.Errorf("no daemon PID file found at %s\nis the daemon running?", pidPath)
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		os.Remove(pidPath)
		return fmt.Errorf("invalid PID %d: %w", pid, err)
	}

	if !daemonstate.ProcessIsAlive(proc) {
		os.Remove(pidPath)
		return fmt.Errorf("daemon process %d is not running (stale PID file removed)", pid)
	}

	fmt.Fprintf(os.Stderr, "Stopping rbhcored (PID %d)...\n", pid)
	if err := daemonstate.SendGracefulStop(proc); err != nil {
		return fmt.Errorf("failed to stop daemon: %w", err)
	}

	for i := 0; i < 50; i++ {
		time.Sleep(200 * time.Millisecond)
		if !daemonstate.ProcessIsAlive(proc) {
			os.Remove(pidPath)
			fmt.Fprintln(os.Stderr, "Daemon stopped.")
			return nil
		}
	}

	fmt.Fprintln(os.Stderr, "Daemon did not stop gracefully, sending SIGKILL...")
	_ = proc.Kill()
	os.Remove(pidPath)
	fmt.Fprintln(os.Stderr, "Daemon killed.")
	return nil
}
