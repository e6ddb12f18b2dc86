package main

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/appfactory-ai/assetgen/pkg/config"
	"github.com/appfactory-ai/assetgen/pkg/store"
)

func newCacheCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and maintain the asset cache",
	}

	openStore := func() (*store.Store, *config.Config, error) {
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, nil, err
		}
		st, err := store.New(cfg.Cache.RootDir, cfg.Cache.MaxBytes,
			time.Duration(cfg.Cache.MaxAgeDays)*24*time.Hour)
		if err != nil {
			return nil, nil, err
		}
		return st, cfg, nil
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List cached assets",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, _, err := openStore()
			if err != nil {
				return err
			}

			entries := st.Entries()
			if len(entries) == 0 {
				fmt.Println("Cache is empty.")
				return nil
			}
			sort.Slice(entries, func(i, j int) bool {
				return entries[i].LastAccessedAt.After(entries[j].LastAccessedAt)
			})

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "KEY\tCATEGORY\tSIZE\tHITS\tSAVED\tLAST ACCESS")
			for _, e := range entries {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t$%.2f\t%s\n",
					e.Key, e.Category, humanize.Bytes(uint64(e.ByteSize)),
					e.AccessCount, e.CostSaved, humanize.Time(e.LastAccessedAt))
			}
			return w.Flush()
		},
	}

	cleanupCmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Run one eviction pass",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, cfg, err := openStore()
			if err != nil {
				return err
			}

			report := st.RunEviction(cfg.Cache.EvictFraction)
			fmt.Printf("Removed %d entries (%d expired, %d orphaned, %d low-usage), freed %s.\n",
				report.Removed(), report.Expired, report.Orphaned, report.LowUsage,
				humanize.Bytes(uint64(report.FreedBytes)))
			if report.Failed > 0 {
				fmt.Printf("%d removals failed and will be retried next pass.\n", report.Failed)
			}
			return nil
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every cached asset",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, _, err := openStore()
			if err != nil {
				return err
			}
			if err := st.Clear(); err != nil {
				return err
			}
			fmt.Println("Cache cleared.")
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "assetgen.yaml", "path to config file")
	cmd.AddCommand(listCmd, cleanupCmd, clearCmd)
	return cmd
}
