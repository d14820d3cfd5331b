package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/cea-hpc/robinhood-sub006/internal/adapter/inbound/adminhttp"
	"github.com/cea-hpc/robinhood-sub006/internal/adapter/outbound/catalog"
	"github.com/cea-hpc/robinhood-sub006/internal/adapter/outbound/daemonstate"
	"github.com/cea-hpc/robinhood-sub006/internal/config"
	"github.com/cea-hpc/robinhood-sub006/internal/service/runner"
	"github.com/cea-hpc/robinhood-sub006/internal/service/triggerloop"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the daemon (trigger loop + admin surface)",
	Long: `Start rbhcored as a resident daemon: build one Runner per configured
policy, drive them from the configured triggers' usage and schedule
checks, and serve the read-mostly admin HTTP surface (status, metrics,
manual run) at daemon.admin_addr.

The daemon writes its PID file to <daemon.state_dir>/rbhcored.pid and
stops cleanly on SIGINT/SIGTERM.

Examples:
  rbhcored start
  rbhcored start --config ./rbhcored.yaml`,
	RunE: runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)
}

func pidFilePath(stateDir string) string {
	if stateDir == "" {
		stateDir = "."
	}
	return filepath.Join(stateDir, "rbhcored.pid")
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	pidPath := pidFilePath(cfg.Daemon.StateDir)
	if existing := daemonstate.ReadPIDFile(pidPath); existing != 0 {
		if proc, err := os.FindProcess(existing); err == nil && daemonstate.ProcessIsAlive(proc) {
			return fmt.Errorf("rbhcored is already running (PID %d); stop it first", existing)
		}
	}
	if cfg.Daemon.StateDir != "" {
		if err := os.MkdirAll(cfg.Daemon.StateDir, 0755); err != nil {
			return fmt.Errorf("create state dir: %w", err)
		}
	}
	if err := daemonstate.WritePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLogLevel(cfg.Daemon.LogLevel)}))

	built, err := config.Build(cfg)
	if err != nil {
		return fmt.Errorf("build config: %w", err)
	}

	ctx := context.Background()
	gw, err := catalog.Open(ctx, catalog.Config{
		DSN:           cfg.Catalog.DSN,
		RetryDelayMin: cfg.Catalog.RetryDelayMin,
		RetryDelayMax: cfg.Catalog.RetryDelayMax,
		CommitEvery:   cfg.Catalog.CommitEvery,
	})
	if err != nil {
		return fmt.Errorf("open catalog: %w", err)
	}
	defer func() { _ = gw.Close() }()

	registry := prometheus.NewRegistry()
	runnerMetrics := runner.NewMetrics(registry)
	triggerMetrics := triggerloop.NewMetrics(registry)

	runners := make(map[string]*runner.Runner, len(built.Policies))
	for i, p := range built.Policies {
		pc := cfg.Policies[i]
		workers := cfg.Daemon.Workers
		if pc.NbThreads > 0 {
			workers = pc.NbThreads
		}
		rcfg := runner.Config{
			Workers:         workers,
			QueueDepth:      cfg.Daemon.QueueDepth,
			SuspendErrorPct: pc.FailurePolicy.SuspendErrorPct,
			SuspendErrorMin: pc.FailurePolicy.SuspendErrorMin,
		}
		chain := config.BuildSchedulerChain(pc.Scheduler)
		runners[p.Name] = runner.New(p, rcfg, runner.Deps{
			Catalog:     gw,
			Fileclasses: built.Fileclasses,
			Metrics:     runnerMetrics,
			Logger:      logger,
		}, chain)
	}

	loop := triggerloop.New(built.Triggers, triggerloop.Config{FSRootPath: "/"}, triggerloop.Deps{
		Catalog: gw,
		Runners: runners,
		Metrics: triggerMetrics,
		Logger:  logger,
	})

	startedAt := time.Now()
	admin := adminhttp.New(adminhttp.Deps{
		Catalog:   gw,
		Runners:   runners,
		Triggers:  loop,
		Registry:  registry,
		Logger:    logger,
		StartedAt: startedAt,
	})

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)

	var server *http.Server
	if cfg.Daemon.AdminAddr != "" {
		server = &http.Server{Addr: cfg.Daemon.AdminAddr, Handler: admin.Routes()}
		go func() {
			logger.Info("admin surface listening", "addr", cfg.Daemon.AdminAddr)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- fmt.Errorf("admin server: %w", err)
				return
			}
			errCh <- nil
		}()
	}

	go func() {
		errCh <- loop.Run(runCtx)
	}()

	sigCh := make(chan os.Signal, 1)
	notifySignals(sigCh)

	select {
	case sig := <-sigCh:
		logger.Info("received signal, shutting down", "signal", sig)
	case err := <-errCh:
		if err != nil {
			logger.Error("component exited unexpectedly", "error", err)
		}
	}

	cancel()
	if server != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = server.Shutdown(shutdownCtx)
	}

	logger.Info("rbhcored stopped")
	return nil
}

// notifySignals relays the daemon's graceful-shutdown signals to ch.
func notifySignals(ch chan<- os.Signal) {
	signal.Notify(ch, daemonstate.GracefulSignals()...)
}
