package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cea-hpc/robinhood-sub006/internal/adapter/outbound/catalog"
	"github.com/cea-hpc/robinhood-sub006/internal/config"
)

var resetFlags struct {
	policy string
	force  bool
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear a policy's persisted summary variables",
	Long: `Remove the <policy>_start, _end, _status, _run_id and scan-counter
variables the last run (or the trigger that launched it) persisted to
the catalog, so the next run starts with no recorded history.

This does not touch the entry catalog itself, only the small
per-policy bookkeeping variables.

Examples:
  rbhcored reset --policy purge_old
  rbhcored reset --policy purge_old --force`,
	RunE: runReset,
}

func init() {
	resetCmd.Flags().StringVar(&resetFlags.policy, "policy", "", "name of the policy to clear (required)")
	resetCmd.Flags().BoolVar(&resetFlags.force, "force", false, "skip the confirmation prompt")
	_ = resetCmd.MarkFlagRequired("policy")
	rootCmd.AddCommand(resetCmd)
}

func runReset(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	found := false
	for _, p := range cfg.Policies {
		if p.Name == resetFlags.policy {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("no policy named %q in configuration", resetFlags.policy)
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

	sess, err := gw.OpenSession(ctx)
	if err != nil {
		return fmt.Errorf("open session: %w", err)
	}
	defer func() { _ = sess.CloseSession(ctx) }()

	prefix := resetFlags.policy + "_"
	vars, err := sess.ListVarsWithPrefix(ctx, prefix)
	if err != nil {
		return fmt.Errorf("read status: %w", err)
	}
	if len(vars) == 0 {
		fmt.Fprintf(os.Stderr, "Nothing to reset — policy %q has no recorded runs.\n", resetFlags.policy)
		return nil
	}

	fmt.Fprintf(os.Stderr, "This will remove %d persisted variable(s) for policy %q.\n", len(vars), resetFlags.policy)
	if !resetFlags.force {
		fmt.Fprint(os.Stderr, "Proceed? [y/N] ")
		var answer string
		fmt.Scanln(&answer) //nolint:errcheck // interactive prompt, error irrelevant
		if answer != "y" && answer != "Y" {
			fmt.Fprintln(os.Stderr, "Aborted.")
			return nil
		}
	}

	if err := sess.DeleteVarsWithPrefix(ctx, prefix); err != nil {
		return fmt.Errorf("reset %q: %w", resetFlags.policy, err)
	}

	fmt.Fprintf(os.Stderr, "Reset complete. Policy %q will start fresh on next run.\n", resetFlags.policy)
	return nil
}
