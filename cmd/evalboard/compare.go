package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/evalboard/evalboard/pkg/apperrors"
	"github.com/evalboard/evalboard/pkg/compare"
	"github.com/evalboard/evalboard/pkg/models"
)

func newCompareCmd(configPath *string) *cobra.Command {
	var fetchMissing bool

	cmd := &cobra.Command{
		Use:   "compare",
		Short: "Compare 2 to 4 cached reports side by side",
		Long: "Compare cached reports given as signatures (tracker|subject|grade|type|view).\n" +
			"A difficulty a report has no row for is shown as '-', never as zero.",
	}
	cmd.PersistentFlags().BoolVar(&fetchMissing, "load", false, "fetch reports that are not cached yet")

	// run opens the app, optionally loads the selection and hands the
	// engine to fn.
	run := func(args []string, fn func(ctx context.Context, e *compare.Engine, keys []models.FilterKey) error) error {
		keys := parseKeyArgs(args)
		if len(keys) < compare.MinReports || len(keys) > compare.MaxReports {
			return apperrors.InvalidComparison(fmt.Sprintf("select %d to %d reports, got %d",
				compare.MinReports, compare.MaxReports, len(keys)))
		}

		a, err := openApp(*configPath)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := context.Background()
		if fetchMissing {
			g, gctx := errgroup.WithContext(ctx)
			for _, k := range keys {
				g.Go(func() error {
					_, err := a.coord.LoadReport(gctx, k, a.fetcher.Fetch)
					return err
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}
		}
		return fn(ctx, compare.NewEngine(a.store), keys)
	}

	var metric string
	latencyCmd := &cobra.Command{
		Use:   "latency SIGNATURE SIGNATURE [SIGNATURE...]",
		Short: "Compare median and p90 latency in seconds per difficulty",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := compare.ParseMetric(metric)
			if err != nil {
				return err
			}
			return run(args, func(ctx context.Context, e *compare.Engine, keys []models.FilterKey) error {
				t, err := e.Latency(ctx, keys, m)
				if err != nil {
					return err
				}
				return printLatency(cmd.OutOrStdout(), t)
			})
		},
	}
	latencyCmd.Flags().StringVarP(&metric, "metric", "m", "ttft", "latency metric (ttft or total_generation)")

	successCmd := &cobra.Command{
		Use:   "success SIGNATURE SIGNATURE [SIGNATURE...]",
		Short: "Compare questions above threshold per difficulty",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(args, func(ctx context.Context, e *compare.Engine, keys []models.FilterKey) error {
				t, err := e.SuccessRate(ctx, keys)
				if err != nil {
					return err
				}
				return printSuccess(cmd.OutOrStdout(), t)
			})
		},
	}

	var difficulty string
	histogramCmd := &cobra.Command{
		Use:   "histogram SIGNATURE SIGNATURE [SIGNATURE...]",
		Short: "Show score distributions for one difficulty",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, ok := models.ParseDifficulty(difficulty)
			if !ok {
				return apperrors.InvalidRequest("difficulty must be Easy, Medium, or Hard")
			}
			return run(args, func(ctx context.Context, e *compare.Engine, keys []models.FilterKey) error {
				h, err := e.Histogram(ctx, keys, d)
				if err != nil {
					return err
				}
				return printHistogram(cmd.OutOrStdout(), h)
			})
		},
	}
	histogramCmd.Flags().StringVarP(&difficulty, "difficulty", "d", "Easy", "difficulty tier (Easy, Medium, Hard)")

	summaryCmd := &cobra.Command{
		Use:   "summary SIGNATURE SIGNATURE [SIGNATURE...]",
		Short: "Compare experiment-level summaries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(args, func(ctx context.Context, e *compare.Engine, keys []models.FilterKey) error {
				cols, err := e.Summary(ctx, keys)
				if err != nil {
					return err
				}
				return printSummary(cmd.OutOrStdout(), cols)
			})
		},
	}

	cmd.AddCommand(latencyCmd, successCmd, histogramCmd, summaryCmd)
	return cmd
}

func printLatency(w io.Writer, t *compare.LatencyTable) error {
	fmt.Fprintf(w, "Latency (%s), median / p90 seconds\n\n", t.Metric)
	rows := make([][]string, 0, len(t.Rows))
	for _, r := range t.Rows {
		row := []string{string(r.Difficulty)}
		for _, c := range r.Cells {
			if c == nil {
				row = append(row, absentCell)
				continue
			}
			row = append(row, fmt.Sprintf("%.2f / %.2f", c.MedianSec, c.P90Sec))
		}
		rows = append(rows, row)
	}
	return renderRows(w, reportHeaders("Difficulty", t.Reports), rows)
}

func printSuccess(w io.Writer, t *compare.SuccessRateTable) error {
	fmt.Fprint(w, "Questions above threshold\n\n")
	rows := make([][]string, 0, len(t.Rows))
	for _, r := range t.Rows {
		row := []string{string(r.Difficulty)}
		for _, c := range r.Cells {
			if c == nil {
				row = append(row, absentCell)
				continue
			}
			row = append(row, fmt.Sprintf("%d/%d (%s)", c.QuestionsAboveThreshold, c.TotalQuestions, pct(c.Percentage)))
		}
		rows = append(rows, row)
	}
	return renderRows(w, reportHeaders("Difficulty", t.Reports), rows)
}

func printHistogram(w io.Writer, h *compare.Histogram) error {
	fmt.Fprintf(w, "Score distribution (%s)\n\n", h.Difficulty)
	keys := make([]models.FilterKey, len(h.Series))
	for i, s := range h.Series {
		keys[i] = s.Report
	}

	rows := make([][]string, 0, compare.BucketCount+2)
	for i := 0; i < compare.BucketCount; i++ {
		row := []string{fmt.Sprintf("%.1f-%.1f", float64(i)/10, float64(i+1)/10)}
		for _, s := range h.Series {
			row = append(row, fmt.Sprintf("%d", s.Buckets[i]))
		}
		rows = append(rows, row)
	}
	samples := []string{"Samples"}
	mean := []string{"Mean"}
	for _, s := range h.Series {
		samples = append(samples, fmt.Sprintf("%d", s.SampleCount))
		if s.Mean == nil {
			mean = append(mean, absentCell)
		} else {
			mean = append(mean, fmt.Sprintf("%.3f", *s.Mean))
		}
	}
	rows = append(rows, samples, mean)
	return renderRows(w, reportHeaders("Bucket", keys), rows)
}

func printSummary(w io.Writer, cols []compare.SummaryColumn) error {
	keys := make([]models.FilterKey, len(cols))
	for i, c := range cols {
		keys[i] = c.Report
	}
	field := func(name string, f func(c compare.SummaryColumn) string) []string {
		row := []string{name}
		for _, c := range cols {
			row = append(row, f(c))
		}
		return row
	}
	rows := [][]string{
		field("Provider", func(c compare.SummaryColumn) string { return c.Provider }),
		field("Method", func(c compare.SummaryColumn) string { return c.Method }),
		field("Model", func(c compare.SummaryColumn) string { return c.Model }),
		field("Questions", func(c compare.SummaryColumn) string { return fmt.Sprintf("%d", c.TotalQuestions) }),
		field("Above threshold", func(c compare.SummaryColumn) string { return fmt.Sprintf("%d", c.QuestionsAboveThreshold) }),
		field("Success rate", func(c compare.SummaryColumn) string { return pct(c.SuccessRate) }),
		field("Avg TTFT (s)", func(c compare.SummaryColumn) string { return fmt.Sprintf("%.2f", c.AvgTTFTSec) }),
		field("Avg generation (s)", func(c compare.SummaryColumn) string { return fmt.Sprintf("%.2f", c.AvgTotalGenerationSec) }),
	}
	return renderRows(w, reportHeaders("", keys), rows)
}
