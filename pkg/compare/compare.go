// Package compare builds side-by-side views of 2 to 4 cached reports.
//
// Every builder is a pure function of its inputs. A report that has no row
// for a difficulty produces a nil cell, never a zero-valued one: "no data"
// and "zero questions" are different answers.
package compare

import (
	"fmt"
	"math"

	"github.com/evalboard/evalboard/pkg/apperrors"
	"github.com/evalboard/evalboard/pkg/models"
)

const (
	MinReports = 2
	MaxReports = 4
)

// Metric selects a latency family.
type Metric string

const (
	MetricTTFT            Metric = "ttft"
	MetricTotalGeneration Metric = "total_generation"
)

// ParseMetric accepts the metric names used by the CLI and API.
func ParseMetric(s string) (Metric, error) {
	switch s {
	case "ttft", "TTFT":
		return MetricTTFT, nil
	case "total_generation", "total", "TotalGeneration":
		return MetricTotalGeneration, nil
	}
	return "", apperrors.InvalidComparison(fmt.Sprintf("unknown latency metric %q", s))
}

// LatencyCell holds one metric's median and p90 in seconds.
type LatencyCell struct {
	MedianSec float64 `json:"median_sec"`
	P90Sec    float64 `json:"p90_sec"`
}

// LatencyRow is one difficulty across all compared reports. Cells are
// indexed like LatencyTable.Reports; nil means the report has no row.
type LatencyRow struct {
	Difficulty models.Difficulty `json:"difficulty"`
	Cells      []*LatencyCell    `json:"cells"`
}

// LatencyTable is the latency comparison for one metric.
type LatencyTable struct {
	Metric  Metric             `json:"metric"`
	Reports []models.FilterKey `json:"reports"`
	Rows    []LatencyRow       `json:"rows"`
}

// SuccessCell is a row's threshold counts exactly as the server reported them.
type SuccessCell struct {
	QuestionsAboveThreshold int     `json:"questions_above_threshold"`
	TotalQuestions          int     `json:"total_questions"`
	Percentage              float64 `json:"percentage"`
}

// SuccessRow is one difficulty across all compared reports.
type SuccessRow struct {
	Difficulty models.Difficulty `json:"difficulty"`
	Cells      []*SuccessCell    `json:"cells"`
}

// SuccessRateTable is the success-rate comparison.
type SuccessRateTable struct {
	Reports []models.FilterKey `json:"reports"`
	Rows    []SuccessRow       `json:"rows"`
}

// BuildLatencyComparison aligns the chosen latency metric by difficulty.
func BuildLatencyComparison(reports []models.CachedReport, metric Metric) (*LatencyTable, error) {
	if err := checkCount(reports); err != nil {
		return nil, err
	}
	pick, err := metricSelector(metric)
	if err != nil {
		return nil, err
	}

	t := &LatencyTable{Metric: metric, Reports: keysOf(reports)}
	for _, d := range models.Difficulties {
		row := LatencyRow{Difficulty: d, Cells: make([]*LatencyCell, len(reports))}
		for i, r := range reports {
			rr, ok := r.Row(d)
			if !ok {
				continue
			}
			stats := pick(rr)
			row.Cells[i] = &LatencyCell{
				MedianSec: msToSeconds(stats.Median),
				P90Sec:    msToSeconds(stats.P90),
			}
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

// BuildSuccessRateComparison aligns threshold counts by difficulty.
func BuildSuccessRateComparison(reports []models.CachedReport) (*SuccessRateTable, error) {
	if err := checkCount(reports); err != nil {
		return nil, err
	}

	t := &SuccessRateTable{Reports: keysOf(reports)}
	for _, d := range models.Difficulties {
		row := SuccessRow{Difficulty: d, Cells: make([]*SuccessCell, len(reports))}
		for i, r := range reports {
			rr, ok := r.Row(d)
			if !ok {
				continue
			}
			row.Cells[i] = &SuccessCell{
				QuestionsAboveThreshold: rr.QuestionsAboveThreshold,
				TotalQuestions:          rr.TotalQuestions,
				Percentage:              rr.PercentageAbove,
			}
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

// SummaryColumn is one report's experiment-level figures.
type SummaryColumn struct {
	Report                  models.FilterKey `json:"report"`
	Provider                string           `json:"provider,omitempty"`
	Method                  string           `json:"method,omitempty"`
	Model                   string           `json:"model,omitempty"`
	TotalQuestions          int              `json:"total_questions"`
	QuestionsAboveThreshold int              `json:"questions_above_threshold"`
	SuccessRate             float64          `json:"success_rate"`
	AvgTTFTSec              float64          `json:"avg_ttft_sec"`
	AvgTotalGenerationSec   float64          `json:"avg_total_generation_sec"`
}

// BuildSummaryComparison lays the experiment summaries side by side.
func BuildSummaryComparison(reports []models.CachedReport) ([]SummaryColumn, error) {
	if err := checkCount(reports); err != nil {
		return nil, err
	}
	cols := make([]SummaryColumn, 0, len(reports))
	for _, r := range reports {
		s := r.Summary
		cols = append(cols, SummaryColumn{
			Report:                  r.FilterKey,
			Provider:                s.Provider,
			Method:                  s.Method,
			Model:                   s.Model,
			TotalQuestions:          s.TotalQuestions,
			QuestionsAboveThreshold: s.QuestionsAboveThreshold,
			SuccessRate:             s.SuccessRate,
			AvgTTFTSec:              msToSeconds(s.AvgTTFTMs),
			AvgTotalGenerationSec:   msToSeconds(s.AvgTotalGenerationMs),
		})
	}
	return cols, nil
}

func metricSelector(m Metric) (func(models.ReportRow) models.LatencyStats, error) {
	switch m {
	case MetricTTFT:
		return func(r models.ReportRow) models.LatencyStats { return r.TTFT }, nil
	case MetricTotalGeneration:
		return func(r models.ReportRow) models.LatencyStats { return r.TotalGeneration }, nil
	}
	return nil, apperrors.InvalidComparison(fmt.Sprintf("unknown latency metric %q", m))
}

func checkCount(reports []models.CachedReport) error {
	if len(reports) < MinReports || len(reports) > MaxReports {
		return apperrors.InvalidComparison(
			fmt.Sprintf("compare needs %d to %d reports, got %d", MinReports, MaxReports, len(reports)))
	}
	return nil
}

func keysOf(reports []models.CachedReport) []models.FilterKey {
	keys := make([]models.FilterKey, len(reports))
	for i, r := range reports {
		keys[i] = r.FilterKey
	}
	return keys
}

// msToSeconds converts milliseconds to seconds rounded to 2 decimals.
func msToSeconds(ms float64) float64 {
	return round2(ms / 1000)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
