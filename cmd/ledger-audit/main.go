package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"loyalty-points-system/internal/adapters/storage/postgres"
	"loyalty-points-system/internal/config"
)

// errFindings makes the process exit non-zero when a check reports something.
var errFindings = errors.New("audit found inconsistencies")

func main() {
	var dsn string

	defaultDSN := os.Getenv("POSTGRES_DSN")
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}
	if cfg, err := config.Load(configPath); err == nil && defaultDSN == "" {
		defaultDSN = cfg.Postgres.DSN
	}

	rootCmd := &cobra.Command{
		Use:          "ledger-audit",
		Short:        "Read-only consistency checks over the ledger tables",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&dsn, "dsn", defaultDSN, "PostgreSQL DSN")

	withAuditor := func(run func(ctx context.Context, a *postgres.Auditor, out io.Writer) (int, error)) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			if dsn == "" {
				return errors.New("--dsn is required")
			}
			repo, err := postgres.NewRepository(cmd.Context(), dsn, false)
			if err != nil {
				return err
			}
			defer repo.Close()

			findings, err := run(cmd.Context(), repo.Auditor(), cmd.OutOrStdout())
			if err != nil {
				return err
			}
			if findings > 0 {
				return errFindings
			}
			color.New(color.FgGreen).Fprintln(cmd.OutOrStdout(), "no findings")
			return nil
		}
	}

	balancesCmd := &cobra.Command{
		Use:   "balances",
		Short: "Accounts whose balance differs from the sum of their applied transactions",
		RunE:  withAuditor(checkBalances),
	}

	poolsCmd := &cobra.Command{
		Use:   "pools",
		Short: "Events whose awarded counter disagrees with their award records",
		RunE:  withAuditor(checkPools),
	}

	var olderThan time.Duration
	pendingCmd := &cobra.Command{
		Use:   "pending",
		Short: "Redemption requests still unprocessed",
		RunE: withAuditor(func(ctx context.Context, a *postgres.Auditor, out io.Writer) (int, error) {
			return checkPending(ctx, a, out, olderThan)
		}),
	}
	pendingCmd.Flags().DurationVar(&olderThan, "older-than", 72*time.Hour, "Only report requests older than this")

	allCmd := &cobra.Command{
		Use:   "all",
		Short: "Run every check",
		RunE: withAuditor(func(ctx context.Context, a *postgres.Auditor, out io.Writer) (int, error) {
			total := 0
			for _, check := range []func(context.Context, *postgres.Auditor, io.Writer) (int, error){checkBalances, checkPools} {
				n, err := check(ctx, a, out)
				if err != nil {
					return total, err
				}
				total += n
			}
			n, err := checkPending(ctx, a, out, olderThan)
			return total + n, err
		}),
	}
	allCmd.Flags().DurationVar(&olderThan, "older-than", 72*time.Hour, "Only report redemption requests older than this")

	rootCmd.AddCommand(balancesCmd, poolsCmd, pendingCmd, allCmd)
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		color.New(color.FgRed).Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func checkBalances(ctx context.Context, a *postgres.Auditor, out io.Writer) (int, error) {
	drift, err := a.BalanceDrift(ctx)
	if err != nil {
		return 0, err
	}
	if len(drift) == 0 {
		return 0, nil
	}
	color.New(color.FgRed, color.Bold).Fprintf(out, "%d account(s) with balance drift\n", len(drift))
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ACCOUNT\tUTORID\tSTORED\tLEDGER\tDIFF")
	for _, d := range drift {
		fmt.Fprintf(w, "%d\t%s\t%d\t%d\t%+d\n", d.AccountID, d.UTORid, d.Stored, d.Ledger, d.Stored-d.Ledger)
	}
	return len(drift), w.Flush()
}

func checkPools(ctx context.Context, a *postgres.Auditor, out io.Writer) (int, error) {
	mismatches, err := a.PoolMismatches(ctx)
	if err != nil {
		return 0, err
	}
	if len(mismatches) == 0 {
		return 0, nil
	}
	color.New(color.FgRed, color.Bold).Fprintf(out, "%d event(s) with pool mismatch\n", len(mismatches))
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "EVENT\tNAME\tAWARDED\tRECORDED")
	for _, m := range mismatches {
		fmt.Fprintf(w, "%d\t%s\t%d\t%d\n", m.EventID, m.Name, m.Awarded, m.Recorded)
	}
	return len(mismatches), w.Flush()
}

func checkPending(ctx context.Context, a *postgres.Auditor, out io.Writer, olderThan time.Duration) (int, error) {
	pending, err := a.PendingRedemptions(ctx, olderThan)
	if err != nil {
		return 0, err
	}
	if len(pending) == 0 {
		return 0, nil
	}
	color.New(color.FgYellow, color.Bold).Fprintf(out, "%d redemption(s) pending longer than %s\n", len(pending), olderThan)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TRANSACTION\tACCOUNT\tAMOUNT\tREQUESTED AT")
	for _, p := range pending {
		fmt.Fprintf(w, "%d\t%d\t%d\t%s\n", p.TransactionID, p.AccountID, p.Amount, p.CreatedAt.Format(time.RFC3339))
	}
	return len(pending), w.Flush()
}
