package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/appfactory-ai/assetgen/pkg/config"
	"github.com/appfactory-ai/assetgen/pkg/pipeline"
	"github.com/appfactory-ai/assetgen/pkg/store"
)

func newStatsCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show cache hit rates and cost savings",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			st, err := store.New(cfg.Cache.RootDir, cfg.Cache.MaxBytes,
				time.Duration(cfg.Cache.MaxAgeDays)*24*time.Hour)
			if err != nil {
				return err
			}

			snap := pipeline.LoadMetrics(st.StatsPath()).Snapshot()

			fmt.Printf("Requests:    %d\n", snap.Requests)
			fmt.Printf("Cache hits:  %d (%.1f%%)\n", snap.ExactHits+snap.SimilarHits, snap.HitRate()*100)
			fmt.Printf("Misses:      %d\n", snap.Misses)
			fmt.Printf("Saved:       $%.2f\n", snap.TotalCostSaved)
			fmt.Printf("Entries:     %d (%s)\n", st.Len(), humanize.Bytes(uint64(st.TotalBytes())))
			if lc := st.LastCleanup(); !lc.IsZero() {
				fmt.Printf("Last clean:  %s\n", humanize.Time(lc))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "assetgen.yaml", "path to config file")
	return cmd
}
