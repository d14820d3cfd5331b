package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/cea-hpc/robinhood-sub006/internal/adapter/outbound/catalog"
	"github.com/cea-hpc/robinhood-sub006/internal/adapter/outbound/memsched"
	"github.com/cea-hpc/robinhood-sub006/internal/config"
	"github.com/cea-hpc/robinhood-sub006/internal/domain/scheduler"
	"github.com/cea-hpc/robinhood-sub006/internal/service/runner"
	"github.com/cea-hpc/robinhood-sub006/internal/service/triggerloop"
)

var runFlags struct {
	policy          string
	target          string
	dryRun          bool
	checkOnly       bool
	force           bool
	ignorePolicies  bool
	once            bool
	noLimit         bool
	usagePct        float64
	maxActionCount  uint64
	maxActionVolume uint64
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a single policy once",
	Long: `Scan one configured policy's scope, resolve entries against its rules,
and execute the resulting actions, then exit.

Examples:
  rbhcored run --policy purge_old
  rbhcored run --policy purge_old --target user:1001 --dry-run
  rbhcored run --policy purge_old --usage-pct 85 --no-limit`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&runFlags.policy, "policy", "", "name of the policy to run (required)")
	runCmd.Flags().StringVar(&runFlags.target, "target", "", "narrow the scan to a target (class:<name>, user:<uid>, group:<gid>, fs:<glob>)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "log matched actions instead of executing them")
	runCmd.Flags().BoolVar(&runFlags.checkOnly, "check-only", false, "only count matches, never gate or execute")
	runCmd.Flags().BoolVar(&runFlags.force, "force", false, "ignore the policy's failure-rate safety threshold")
	runCmd.Flags().BoolVar(&runFlags.ignorePolicies, "ignore-policies", false, "recheck entries the policy's ignore list would normally skip")
	runCmd.Flags().BoolVar(&runFlags.once, "once", false, "accepted for CLI-surface compatibility; run is always single-shot")
	runCmd.Flags().BoolVar(&runFlags.noLimit, "no-limit", false, "ignore the policy's configured per-run/rate-limit scheduler chain")
	runCmd.Flags().Float64Var(&runFlags.usagePct, "usage-pct", 0, "cap this run's volume to usage-pct%% of the filesystem root's total capacity")
	runCmd.Flags().Uint64Var(&runFlags.maxActionCount, "max-action-count", 0, "override this run's maximum action count")
	runCmd.Flags().Uint64Var(&runFlags.maxActionVolume, "max-action-volume", 0, "override this run's maximum action volume, in bytes")
	_ = runCmd.MarkFlagRequired("policy")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	built, err := config.Build(cfg)
	if err != nil {
		return fmt.Errorf("build config: %w", err)
	}

	var policyCfg *config.PolicyConfig
	var policyIdx int
	for i := range cfg.Policies {
		if cfg.Policies[i].Name == runFlags.policy {
			policyCfg = &cfg.Policies[i]
			policyIdx = i
			break
		}
	}
	if policyCfg == nil {
		return fmt.Errorf("no policy named %q in configuration", runFlags.policy)
	}
	p := built.Policies[policyIdx]

	if runFlags.ignorePolicies {
		p.IgnoreExprs = nil
		p.IgnoredFileclasses = nil
	}

	targetFilter, err := parseTarget(runFlags.target)
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLogLevel(cfg.Daemon.LogLevel)}))

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

	runnerCfg := runner.Config{
		Workers:         cfg.Daemon.Workers,
		QueueDepth:      cfg.Daemon.QueueDepth,
		DBRequestLimit:  0,
		SuspendErrorPct: policyCfg.FailurePolicy.SuspendErrorPct,
		SuspendErrorMin: policyCfg.FailurePolicy.SuspendErrorMin,
		CheckOnly:       runFlags.checkOnly,
		DryRun:          runFlags.dryRun,
	}
	if policyCfg.NbThreads > 0 {
		runnerCfg.Workers = policyCfg.NbThreads
	}
	if runFlags.force {
		runnerCfg.SuspendErrorPct = 0
		runnerCfg.SuspendErrorMin = 0
	}

	var chain []scheduler.Scheduler
	if !runFlags.noLimit {
		chain = config.BuildSchedulerChain(policyCfg.Scheduler)
	}

	r := runner.New(p, runnerCfg, runner.Deps{Catalog: gw, Fileclasses: built.Fileclasses, Logger: logger}, chain)

	extra, err := usagePctCap(runFlags.usagePct)
	if err != nil {
		logger.Warn("usage-pct cap disabled", "error", err)
		extra = nil
	}
	if runFlags.maxActionCount > 0 || runFlags.maxActionVolume > 0 {
		extra = append(extra, memsched.NewMaxPerRun(memsched.MaxPerRunConfig{
			MaxCount:  runFlags.maxActionCount,
			MaxVolume: runFlags.maxActionVolume,
		}))
	}

	summary, err := r.Run(ctx, targetFilter, runner.TimeModifier{}, extra...)
	if err != nil {
		return fmt.Errorf("run %q: %w", runFlags.policy, err)
	}

	fmt.Printf("policy %q: %s (scanned=%d matched=%d skipped=%d succeeded=%d failed=%d volume=%d retries=%d)\n",
		summary.PolicyName, summary.Outcome, summary.Scanned, summary.Matched,
		summary.Skipped, summary.Succeeded, summary.Failed, summary.Volume, summary.Retries)

	if summary.Outcome != runner.Completed {
		os.Exit(1)
	}
	return nil
}

// usagePctCap builds an extra per-run volume cap sized to pct% of the
// filesystem root's total capacity, the same conversion the trigger
// loop applies to a percent-dimensioned watermark excess -- letting an
// operator manually simulate "run until usage-pct is reclaimed" without
// waiting for a configured trigger to fire.
func usagePctCap(pct float64) ([]scheduler.Scheduler, error) {
	if pct <= 0 {
		return nil, nil
	}
	probe := triggerloop.NewStatfsProbe()
	usage, err := probe.MeasureUsage("/")
	if err != nil {
		return nil, fmt.Errorf("measure filesystem usage: %w", err)
	}
	capBytes := uint64(pct / 100 * float64(usage.TotalBytes))
	return []scheduler.Scheduler{memsched.NewMaxPerRun(memsched.MaxPerRunConfig{MaxVolume: capBytes})}, nil
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
