package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/evalboard/evalboard/pkg/models"
)

// filterFlags binds the filter fields of a report request to flags.
type filterFlags struct {
	tracker      string
	subject      string
	gradeLevel   string
	questionType string
	viewMode     string
}

func (f *filterFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.tracker, "tracker", "t", "", "experiment tracker (required)")
	cmd.Flags().StringVarP(&f.subject, "subject", "s", "", "subject (required)")
	cmd.Flags().StringVar(&f.gradeLevel, "grade", "", "grade level filter")
	cmd.Flags().StringVar(&f.questionType, "type", "", "question type filter")
	cmd.Flags().StringVar(&f.viewMode, "view", "", "view mode (standard or attachment_filtered)")
}

func (f *filterFlags) key() models.FilterKey {
	return models.FilterKey{
		ExperimentTracker: f.tracker,
		Subject:           f.subject,
		GradeLevel:        f.gradeLevel,
		QuestionType:      f.questionType,
		ViewMode:          models.ViewMode(f.viewMode),
	}
}

// parseKeyArgs reads report keys given as signatures (tracker|subject|grade|type|view).
func parseKeyArgs(args []string) []models.FilterKey {
	keys := make([]models.FilterKey, 0, len(args))
	for _, a := range args {
		keys = append(keys, models.ParseSignature(a))
	}
	return keys
}

func newLoadCmd(configPath *string) *cobra.Command {
	var (
		filter  filterFlags
		refresh bool
	)

	cmd := &cobra.Command{
		Use:   "load",
		Short: "Fetch an experiment report, using the cache when possible",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := context.Background()
			key := filter.key()

			load := a.coord.LoadReport
			if refresh {
				load = a.coord.Reload
			}
			report, err := load(ctx, key, a.fetcher.Fetch)
			if err != nil {
				return err
			}
			return printReport(cmd.OutOrStdout(), report)
		},
	}

	filter.bind(cmd)
	cmd.Flags().BoolVar(&refresh, "refresh", false, "fetch even if the report is cached")
	return cmd
}

func printReport(w io.Writer, r *models.CachedReport) error {
	s := r.Summary
	fmt.Fprintf(w, "Report:    %s\n", r.FilterKey.String())
	fmt.Fprintf(w, "Signature: %s\n", r.FilterKey.Signature())
	fmt.Fprintf(w, "Fetched:   %s\n", r.FetchedAt.Format("2006-01-02T15:04:05"))
	if meta := strings.TrimSpace(strings.Join([]string{s.Provider, s.Method, s.Model}, " ")); meta != "" {
		fmt.Fprintf(w, "Model:     %s\n", meta)
	}
	fmt.Fprintf(w, "Questions: %d (%d above threshold, %s)\n\n",
		s.TotalQuestions, s.QuestionsAboveThreshold, pct(s.SuccessRate))

	if len(r.ReportRows) == 0 {
		fmt.Fprintln(w, "No difficulty rows.")
		return nil
	}
	rows := make([][]string, 0, len(r.ReportRows))
	for _, row := range r.ReportRows {
		rows = append(rows, []string{
			row.Difficulty,
			fmt.Sprintf("%d", row.TotalQuestions),
			fmt.Sprintf("%d", row.QuestionsAboveThreshold),
			pct(row.PercentageAbove),
			fmt.Sprintf("%.0f / %.0f", row.TTFT.Median, row.TTFT.P90),
			fmt.Sprintf("%.0f / %.0f", row.TotalGeneration.Median, row.TotalGeneration.P90),
		})
	}
	return renderRows(w,
		[]string{"Difficulty", "Total", "Above", "Pct", "TTFT p50/p90 ms", "Gen p50/p90 ms"}, rows)
}
