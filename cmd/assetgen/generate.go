package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/appfactory-ai/assetgen/pkg/config"
	"github.com/appfactory-ai/assetgen/pkg/history"
	"github.com/appfactory-ai/assetgen/pkg/ledger"
	"github.com/appfactory-ai/assetgen/pkg/models"
	"github.com/appfactory-ai/assetgen/pkg/pipeline"
	"github.com/appfactory-ai/assetgen/pkg/provider"
	"github.com/appfactory-ai/assetgen/pkg/store"
)

func newGenerateCmd() *cobra.Command {
	var (
		configPath string
		category   string
		width      int
		height     int
		styleKVs   []string
		outPath    string
		verbose    bool
	)

	cmd := &cobra.Command{
		Use:   "generate <prompt>",
		Short: "Generate an asset, serving from cache when possible",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			logger := zap.NewNop()
			if verbose {
				logger, err = zap.NewDevelopment()
				if err != nil {
					return fmt.Errorf("init logger: %w", err)
				}
				defer func() { _ = logger.Sync() }()
			}

			style, err := parseStyle(styleKVs)
			if err != nil {
				return err
			}

			p, cleanup, err := buildPipeline(cfg, logger)
			if err != nil {
				return err
			}
			defer cleanup()

			res, err := p.GetOrGenerate(context.Background(), models.Request{
				Prompt:   args[0],
				Category: category,
				Style:    style,
				Width:    width,
				Height:   height,
			})
			if err != nil && res.Outcome != models.OutcomeGenerated {
				return err
			}

			switch res.Outcome {
			case models.OutcomeBudgetDenied:
				return fmt.Errorf("monthly budget exhausted, generation denied (key %s)", res.Key)
			case models.OutcomeGenerated:
				if err != nil {
					fmt.Fprintf(os.Stderr, "warning: asset generated but not cached: %v\n", err)
				}
			}

			if outPath == "" {
				outPath = res.Key + ".png"
			}
			if err := os.WriteFile(outPath, res.Bytes, 0o644); err != nil {
				return fmt.Errorf("write output: %w", err)
			}

			fmt.Printf("Outcome: %s\nKey:     %s\nCost:    $%.3f\nFile:    %s\n",
				res.Outcome, res.Key, res.Cost, outPath)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "assetgen.yaml", "path to config file")
	cmd.Flags().StringVar(&category, "category", "general", "asset category (icon, screenshot, banner, ...)")
	cmd.Flags().IntVar(&width, "width", 1024, "target width in pixels")
	cmd.Flags().IntVar(&height, "height", 1024, "target height in pixels")
	cmd.Flags().StringArrayVar(&styleKVs, "style", nil, "style attribute as key=value (repeatable)")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "output file (default <key>.png)")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log pipeline activity")
	return cmd
}

func parseStyle(kvs []string) (map[string]string, error) {
	if len(kvs) == 0 {
		return nil, nil
	}
	style := make(map[string]string, len(kvs))
	for _, kv := range kvs {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid style attribute %q, want key=value", kv)
		}
		style[k] = v
	}
	return style, nil
}

// buildPipeline wires the full request path from configuration. The
// returned cleanup closes the history database.
func buildPipeline(cfg *config.Config, logger *zap.Logger) (*pipeline.Pipeline, func(), error) {
	st, err := store.New(cfg.Cache.RootDir, cfg.Cache.MaxBytes,
		time.Duration(cfg.Cache.MaxAgeDays)*24*time.Hour, store.WithLogger(logger))
	if err != nil {
		return nil, nil, fmt.Errorf("init store: %w", err)
	}

	led, err := ledger.New(st.LedgerPath(), cfg.Budget.Limit())
	if err != nil {
		return nil, nil, fmt.Errorf("init ledger: %w", err)
	}

	client := provider.NewClient(cfg.Provider, cfg.Budget.UnitCostDefault,
		cfg.Mode.DryRun, provider.WithLogger(logger))

	hist, err := history.New(cfg.History.DBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("init history: %w", err)
	}

	p := pipeline.New(st, led, client, pipeline.Options{
		SimilarityThreshold: cfg.Cache.SimilarityThreshold,
		UnitCostDefault:     cfg.Budget.UnitCostDefault,
		CleanupThreshold:    cfg.Cache.CleanupThreshold,
		EvictFraction:       cfg.Cache.EvictFraction,
	}, pipeline.WithHistory(hist), pipeline.WithLogger(logger))

	cleanup := func() { _ = hist.Close() }
	return p, cleanup, nil
}
