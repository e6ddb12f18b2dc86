package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/appfactory-ai/assetgen/pkg/config"
	"github.com/appfactory-ai/assetgen/pkg/history"
)

func newHistoryCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Browse the generation history log",
	}

	openTracker := func() (*history.SQLiteTracker, *config.Config, error) {
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, nil, err
		}
		tr, err := history.New(cfg.History.DBPath)
		if err != nil {
			return nil, nil, err
		}
		return tr, cfg, nil
	}

	var limit int
	recentCmd := &cobra.Command{
		Use:   "recent",
		Short: "Show the most recent generation attempts",
		RunE: func(cmd *cobra.Command, args []string) error {
			tr, _, err := openTracker()
			if err != nil {
				return err
			}
			defer func() { _ = tr.Close() }()

			recs, err := tr.Recent(context.Background(), limit)
			if err != nil {
				return err
			}
			if len(recs) == 0 {
				fmt.Println("No history recorded.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tOUTCOME\tCATEGORY\tCOST\tLATENCY\tPROMPT")
			for _, r := range recs {
				fmt.Fprintf(w, "%s\t%s\t%s\t$%.3f\t%dms\t%s\n",
					r.CreatedAt.Format("2006-01-02T15:04:05"), r.Outcome, r.Category,
					r.Cost, r.LatencyMs, truncate(r.Prompt, 60))
			}
			return w.Flush()
		},
	}
	recentCmd.Flags().IntVar(&limit, "limit", 20, "number of rows to show")

	var month string
	summaryCmd := &cobra.Command{
		Use:   "summary",
		Short: "Aggregate generation spend by category for one month",
		RunE: func(cmd *cobra.Command, args []string) error {
			tr, _, err := openTracker()
			if err != nil {
				return err
			}
			defer func() { _ = tr.Close() }()

			if month == "" {
				month = time.Now().UTC().Format("2006-01")
			}
			rows, err := tr.MonthlySummary(context.Background(), month)
			if err != nil {
				return err
			}
			if len(rows) == 0 {
				fmt.Printf("No generations recorded for %s.\n", month)
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "MONTH\tCATEGORY\tGENERATIONS\tTOTAL COST")
			for _, s := range rows {
				fmt.Fprintf(w, "%s\t%s\t%d\t$%.3f\n", s.Month, s.Category, s.Generations, s.TotalCost)
			}
			return w.Flush()
		},
	}
	summaryCmd.Flags().StringVar(&month, "month", "", "month to summarize as YYYY-MM (default current)")

	var retentionDays int
	pruneCmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete history rows past the retention period",
		RunE: func(cmd *cobra.Command, args []string) error {
			tr, cfg, err := openTracker()
			if err != nil {
				return err
			}
			defer func() { _ = tr.Close() }()

			days := retentionDays
			if days == 0 {
				days = cfg.History.RetentionDays
			}
			removed, err := tr.Prune(context.Background(), days)
			if err != nil {
				return err
			}
			fmt.Printf("Removed %d records older than %d days.\n", removed, days)
			return nil
		},
	}
	pruneCmd.Flags().IntVar(&retentionDays, "retention-days", 0, "override configured retention period")

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "assetgen.yaml", "path to config file")
	cmd.AddCommand(recentCmd, summaryCmd, pruneCmd)
	return cmd
}

// truncate shortens s to at most n runes, never splitting a multi-byte
// character.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-3]) + "..."
}
