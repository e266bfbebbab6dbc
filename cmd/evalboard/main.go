package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	var configPath string

	root := &cobra.Command{
		Use:           "evalboard",
		Short:         "evalboard: cached experiment reports and side-by-side comparisons",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file (optional)")

	root.AddCommand(
		newLoadCmd(&configPath),
		newReportsCmd(&configPath),
		newCompareCmd(&configPath),
		newCacheCmd(&configPath),
		newWarmCmd(&configPath),
		newHistoryCmd(&configPath),
		newServeCmd(&configPath),
		newMCPCmd(&configPath),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
