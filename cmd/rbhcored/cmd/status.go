package cmd

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/cea-hpc/robinhood-sub006/internal/adapter/outbound/catalog"
	"github.com/cea-hpc/robinhood-sub006/internal/config"
)

var statusFlags struct {
	policy string
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show a policy's persisted run and trigger status",
	Long: `Read back the summary variables the last run of a policy (or the
trigger that fired it) persisted to the catalog: start/end time,
outcome, and scan counters. Works without a running daemon.`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusFlags.policy, "policy", "", "name of the policy to inspect (required)")
	_ = statusCmd.MarkFlagRequired("policy")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	found := false
	for _, p := range cfg.Policies {
		if p.Name == statusFlags.policy {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("no policy named %q in configuration", statusFlags.policy)
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

	vars, err := sess.ListVarsWithPrefix(ctx, statusFlags.policy+"_")
	if err != nil {
		return fmt.Errorf("read status: %w", err)
	}
	if len(vars) == 0 {
		fmt.Printf("policy %q has no recorded runs\n", statusFlags.policy)
		return nil
	}

	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("%s: %s\n", k, vars[k])
	}
	return nil
}
