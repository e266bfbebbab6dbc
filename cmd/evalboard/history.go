package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/evalboard/evalboard/pkg/apperrors"
	"github.com/evalboard/evalboard/pkg/models"
)

func newHistoryCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect the log of report fetches",
	}

	// withHistory opens the app and fails when the history log is disabled.
	withHistory := func(fn func(a *app) error) error {
		a, err := openApp(*configPath)
		if err != nil {
			return err
		}
		defer a.Close()
		if a.history == nil {
			return apperrors.Unavailable("fetch history (history.enabled is false)")
		}
		return fn(a)
	}

	var (
		tracker string
		subject string
		outcome string
		since   string
		limit   int
	)
	searchCmd := &cobra.Command{
		Use:   "search",
		Short: "Search fetch attempts",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := models.HistoryQueryOpts{
				ExperimentTracker: tracker,
				Subject:           subject,
				Outcome:           models.FetchOutcome(outcome),
				Limit:             limit,
			}
			if since != "" {
				t, err := time.Parse("2006-01-02", since)
				if err != nil {
					return fmt.Errorf("invalid --since date (use YYYY-MM-DD): %w", err)
				}
				opts.Since = t
			}

			return withHistory(func(a *app) error {
				records, err := a.history.Query(context.Background(), opts)
				if err != nil {
					return err
				}
				if len(records) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No fetch history found.")
					return nil
				}
				rows := make([][]string, 0, len(records))
				for _, r := range records {
					cached := "no"
					if r.Persisted {
						cached = "yes"
					}
					rows = append(rows, []string{
						r.CreatedAt.Format("2006-01-02T15:04:05"),
						r.Signature,
						string(r.Outcome),
						fmt.Sprintf("%d", r.Rows),
						fmt.Sprintf("%d", r.LatencyMs),
						cached,
						r.Error,
					})
				}
				return renderRows(cmd.OutOrStdout(),
					[]string{"Time", "Signature", "Outcome", "Rows", "Latency ms", "Cached", "Error"}, rows)
			})
		},
	}
	searchCmd.Flags().StringVarP(&tracker, "tracker", "t", "", "filter by experiment tracker")
	searchCmd.Flags().StringVarP(&subject, "subject", "s", "", "filter by subject")
	searchCmd.Flags().StringVar(&outcome, "outcome", "", "filter by outcome (success or error)")
	searchCmd.Flags().StringVar(&since, "since", "", "start date (YYYY-MM-DD)")
	searchCmd.Flags().IntVarP(&limit, "limit", "n", 50, "maximum number of records")

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show fetch successes and failures per tracker and day",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHistory(func(a *app) error {
				stats, err := a.history.Stats(context.Background())
				if err != nil {
					return err
				}
				if len(stats) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No fetch history found.")
					return nil
				}
				rows := make([][]string, 0, len(stats))
				for _, s := range stats {
					rows = append(rows, []string{
						s.Day,
						s.ExperimentTracker,
						fmt.Sprintf("%d", s.Successes),
						fmt.Sprintf("%d", s.Failures),
						fmt.Sprintf("%.0f", s.AvgLatencyMs),
					})
				}
				return renderRows(cmd.OutOrStdout(),
					[]string{"Day", "Tracker", "Successes", "Failures", "Avg latency ms"}, rows)
			})
		},
	}

	cleanupCmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete fetch records older than the retention period",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHistory(func(a *app) error {
				n, err := a.history.Cleanup(context.Background())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d fetch records older than %d days.\n", n, a.cfg.History.RetentionDays)
				return nil
			})
		},
	}

	cmd.AddCommand(searchCmd, statsCmd, cleanupCmd)
	return cmd
}
