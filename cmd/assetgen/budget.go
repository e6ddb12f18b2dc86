package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/appfactory-ai/assetgen/pkg/config"
	"github.com/appfactory-ai/assetgen/pkg/ledger"
	"github.com/appfactory-ai/assetgen/pkg/store"
)

func newBudgetCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "budget",
		Short: "Show the monthly generation budget",
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show spend against the monthly limit",
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
			led, err := ledger.New(st.LedgerPath(), cfg.Budget.Limit())
			if err != nil {
				return err
			}
			if err := led.RolloverIfNeeded(); err != nil {
				return err
			}

			snap := led.Snapshot()
			fmt.Printf("Month:       %s\n", snap.MonthID)
			fmt.Printf("Budget:      $%.2f\n", snap.Budget)
			fmt.Printf("Spent:       $%.2f (%d generations)\n", snap.Spent, snap.Generations)
			fmt.Printf("Remaining:   $%.2f\n", snap.Remaining)
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "assetgen.yaml", "path to config file")
	cmd.AddCommand(statusCmd)
	return cmd
}
