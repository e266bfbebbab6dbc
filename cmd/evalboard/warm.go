package main

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/sourcegraph/conc/pool"
	"github.com/spf13/cobra"
)

func newWarmCmd(configPath *string) *cobra.Command {
	var concurrency int

	cmd := &cobra.Command{
		Use:   "warm [SIGNATURE...]",
		Short: "Preload reports into the cache",
		Long:  "Preload the given signatures, or the filters listed under warm.filters in the config.",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			keys := parseKeyArgs(args)
			if len(keys) == 0 {
				keys = a.cfg.Warm.Filters
			}
			if len(keys) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Nothing to warm.")
				return nil
			}
			if len(keys) > a.store.Capacity() {
				a.log.Warn("more filters than cache capacity, the oldest will be evicted",
					"filters", len(keys), "capacity", a.store.Capacity())
			}
			if concurrency <= 0 {
				concurrency = a.cfg.Warm.Concurrency
			}

			ctx := context.Background()
			var loaded atomic.Int32
			p := pool.New().WithErrors().WithMaxGoroutines(concurrency)
			for _, k := range keys {
				p.Go(func() error {
					if _, err := a.coord.LoadReport(ctx, k, a.fetcher.Fetch); err != nil {
						a.log.WithFilter(k.Signature()).WithError(err).Warn("warm failed")
						return fmt.Errorf("%s: %w", k.String(), err)
					}
					loaded.Add(1)
					return nil
				})
			}
			err = p.Wait()

			fmt.Fprintf(cmd.OutOrStdout(), "Warmed %d of %d reports (cache capacity %d).\n",
				loaded.Load(), len(keys), a.store.Capacity())
			return err
		},
	}

	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "parallel fetches (defaults to warm.concurrency)")
	return cmd
}

