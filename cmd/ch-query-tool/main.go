package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/fatih/color"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

func main() {
	var dsn string

	rootCmd := &cobra.Command{
		Use:          "ch-query-tool",
		Short:        "Query operator risk reports written by the anti-fraud analyzer",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&dsn, "dsn", "clickhouse://localhost:9000/default", "ClickHouse DSN")

	flaggedCmd := &cobra.Command{
		Use:   "flagged",
		Short: "List the most recent flagged purchases",
		RunE: func(cmd *cobra.Command, _ []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			conn, err := connect(dsn)
			if err != nil {
				return err
			}
			defer conn.Close()

			rows, err := conn.Query(cmd.Context(), `
				SELECT transaction_id, created_by, account_id, spent, reason, analyzed_at
				FROM operator_risk_reports
				WHERE flagged
				ORDER BY analyzed_at DESC
				LIMIT ?`, limit)
			if err != nil {
				return fmt.Errorf("query flagged reports: %w", err)
			}
			defer rows.Close()

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
			fmt.Fprintln(w, "TRANSACTION\tOPERATOR\tCUSTOMER\tSPENT\tREASON\tANALYZED AT")
			for rows.Next() {
				var (
					txID, operatorID, accountID int64
					spent                       decimal.Decimal
					reason                      string
					analyzedAt                  time.Time
				)
				if err := rows.Scan(&txID, &operatorID, &accountID, &spent, &reason, &analyzedAt); err != nil {
					return fmt.Errorf("scan flagged report: %w", err)
				}
				fmt.Fprintf(w, "%d\t%d\t%d\t%s\t%s\t%s\n",
					txID, operatorID, accountID, spent.StringFixed(2), color.RedString(reason), analyzedAt.Format(time.RFC3339))
			}
			if err := rows.Err(); err != nil {
				return err
			}
			return w.Flush()
		},
	}
	flaggedCmd.Flags().Int("limit", 20, "Number of reports to show")

	topOperatorsCmd := &cobra.Command{
		Use:   "top-operators",
		Short: "Rank operators by purchases entered and how many were flagged",
		RunE: func(cmd *cobra.Command, _ []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			since, _ := cmd.Flags().GetDuration("since")
			conn, err := connect(dsn)
			if err != nil {
				return err
			}
			defer conn.Close()

			rows, err := conn.Query(cmd.Context(), `
				SELECT created_by, count() AS purchases, countIf(flagged) AS flagged, sum(spent) AS spent
				FROM operator_risk_reports
				WHERE analyzed_at >= ?
				GROUP BY created_by
				ORDER BY flagged DESC, purchases DESC
				LIMIT ?`, time.Now().Add(-since), limit)
			if err != nil {
				return fmt.Errorf("query top operators: %w", err)
			}
			defer rows.Close()

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
			fmt.Fprintln(w, "OPERATOR\tPURCHASES\tFLAGGED\tTOTAL SPENT")
			for rows.Next() {
				var (
					operatorID         int64
					purchases, flagged uint64
					spent              decimal.Decimal
				)
				if err := rows.Scan(&operatorID, &purchases, &flagged, &spent); err != nil {
					return fmt.Errorf("scan operator row: %w", err)
				}
				flaggedCell := fmt.Sprint(flagged)
				if flagged > 0 {
					flaggedCell = color.YellowString(flaggedCell)
				}
				fmt.Fprintf(w, "%d\t%d\t%s\t%s\n", operatorID, purchases, flaggedCell, spent.StringFixed(2))
			}
			if err := rows.Err(); err != nil {
				return err
			}
			return w.Flush()
		},
	}
	topOperatorsCmd.Flags().Int("limit", 10, "Number of operators to show")
	topOperatorsCmd.Flags().Duration("since", 24*time.Hour, "Only count reports newer than this")

	rootCmd.AddCommand(flaggedCmd, topOperatorsCmd)
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func connect(dsn string) (clickhouse.Conn, error) {
	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open clickhouse: %w", err)
	}
	return conn, nil
}
