package mcp

import (
	"fmt"
	"strings"

	"github.com/evalboard/evalboard/pkg/compare"
	"github.com/evalboard/evalboard/pkg/models"
)

const absent = "n/a"

// formatReportList formats cached reports as a text table.
func formatReportList(reports []models.CachedReport) string {
	if len(reports) == 0 {
		return "No cached reports."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-40s %-20s %5s %8s %8s\n",
		"Signature", "Fetched", "Rows", "Samples", "Success")
	b.WriteString(strings.Repeat("-", 85) + "\n")
	for _, r := range reports {
		fmt.Fprintf(&b, "%-40s %-20s %5d %8d %7.1f%%\n",
			r.FilterKey.Signature(),
			r.FetchedAt.Format("2006-01-02 15:04:05"),
			len(r.ReportRows), len(r.ScoreSamples), r.Summary.SuccessRate)
	}
	return b.String()
}

// formatReport formats one cached report's rows and summary.
func formatReport(r models.CachedReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Report %s (fetched %s)\n", r.FilterKey.String(), r.FetchedAt.Format("2006-01-02 15:04:05"))
	s := r.Summary
	if s.Provider != "" || s.Model != "" {
		fmt.Fprintf(&b, "  Provider: %s  Method: %s  Model: %s\n", s.Provider, s.Method, s.Model)
	}
	fmt.Fprintf(&b, "  Questions: %d  Above threshold: %d  Success rate: %.1f%%\n\n",
		s.TotalQuestions, s.QuestionsAboveThreshold, s.SuccessRate)

	if len(r.ReportRows) == 0 {
		b.WriteString("No difficulty rows.\n")
		return b.String()
	}
	fmt.Fprintf(&b, "%-10s %8s %8s %8s %12s %12s\n",
		"Difficulty", "Total", "Above", "Pct", "TTFT p50 ms", "Gen p50 ms")
	b.WriteString(strings.Repeat("-", 63) + "\n")
	for _, row := range r.ReportRows {
		fmt.Fprintf(&b, "%-10s %8d %8d %7.1f%% %12.0f %12.0f\n",
			row.Difficulty, row.TotalQuestions, row.QuestionsAboveThreshold,
			row.PercentageAbove, row.TTFT.Median, row.TotalGeneration.Median)
	}
	return b.String()
}

func reportHeader(b *strings.Builder, first string, reports []models.FilterKey, width int) {
	fmt.Fprintf(b, "%-10s", first)
	for _, k := range reports {
		fmt.Fprintf(b, " %*s", width, truncate(k.ExperimentTracker, width))
	}
	b.WriteString("\n")
	b.WriteString(strings.Repeat("-", 10+len(reports)*(width+1)) + "\n")
}

// formatLatencyTable formats a latency comparison in seconds.
func formatLatencyTable(t *compare.LatencyTable) string {
	const width = 18
	var b strings.Builder
	fmt.Fprintf(&b, "Latency (%s), median / p90 seconds\n", t.Metric)
	reportHeader(&b, "Difficulty", t.Reports, width)
	for _, row := range t.Rows {
		fmt.Fprintf(&b, "%-10s", row.Difficulty)
		for _, c := range row.Cells {
			cell := absent
			if c != nil {
				cell = fmt.Sprintf("%.2f / %.2f", c.MedianSec, c.P90Sec)
			}
			fmt.Fprintf(&b, " %*s", width, cell)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// formatSuccessTable formats a success-rate comparison.
func formatSuccessTable(t *compare.SuccessRateTable) string {
	const width = 18
	var b strings.Builder
	b.WriteString("Questions above threshold\n")
	reportHeader(&b, "Difficulty", t.Reports, width)
	for _, row := range t.Rows {
		fmt.Fprintf(&b, "%-10s", row.Difficulty)
		for _, c := range row.Cells {
			cell := absent
			if c != nil {
				cell = fmt.Sprintf("%d/%d (%.1f%%)", c.QuestionsAboveThreshold, c.TotalQuestions, c.Percentage)
			}
			fmt.Fprintf(&b, " %*s", width, cell)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// formatHistogram formats bucket counts, one column per report.
func formatHistogram(h *compare.Histogram) string {
	const width = 12
	var b strings.Builder
	fmt.Fprintf(&b, "Score distribution (%s)\n", h.Difficulty)
	keys := make([]models.FilterKey, len(h.Series))
	for i, s := range h.Series {
		keys[i] = s.Report
	}
	reportHeader(&b, "Bucket", keys, width)
	for i := 0; i < compare.BucketCount; i++ {
		fmt.Fprintf(&b, "%-10s", fmt.Sprintf("%.1f-%.1f", float64(i)/10, float64(i+1)/10))
		for _, s := range h.Series {
			fmt.Fprintf(&b, " %*d", width, s.Buckets[i])
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "%-10s", "Mean")
	for _, s := range h.Series {
		cell := absent
		if s.Mean != nil {
			cell = fmt.Sprintf("%.3f", *s.Mean)
		}
		fmt.Fprintf(&b, " %*s", width, cell)
	}
	b.WriteString("\n")
	return b.String()
}

// formatCacheStats formats cache stats as text.
func formatCacheStats(stats models.CacheStats) string {
	total := stats.Hits + stats.Misses
	hitRate := float64(0)
	if total > 0 {
		hitRate = float64(stats.Hits) / float64(total) * 100
	}
	return fmt.Sprintf("Report Cache Statistics\n"+
		"  Entries:   %d/%d\n"+
		"  Hits:      %d\n"+
		"  Misses:    %d\n"+
		"  Evictions: %d\n"+
		"  Hit Rate:  %.1f%%\n",
		stats.Entries, stats.Capacity, stats.Hits, stats.Misses, stats.Evictions, hitRate)
}

// formatFetchRecords formats fetch history records as a text table.
func formatFetchRecords(records []models.FetchRecord) string {
	if len(records) == 0 {
		return "No fetch history found."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-20s %-36s %-8s %8s %8s  %s\n",
		"Time", "Signature", "Outcome", "Rows", "Ms", "Error")
	b.WriteString(strings.Repeat("-", 100) + "\n")
	for _, r := range records {
		fmt.Fprintf(&b, "%-20s %-36s %-8s %8d %8d  %s\n",
			r.CreatedAt.Format("2006-01-02 15:04:05"),
			truncate(r.Signature, 36), r.Outcome, r.Rows, r.LatencyMs, r.Error)
	}
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
