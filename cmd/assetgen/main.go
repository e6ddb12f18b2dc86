package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:     "assetgen",
		Short:   "Assetgen — budget-governed image generation cache",
		Version: version,
	}

	root.AddCommand(
		newGenerateCmd(),
		newStatsCmd(),
		newCacheCmd(),
		newBudgetCmd(),
		newHistoryCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
