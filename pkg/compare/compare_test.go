package compare

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/evalboard/evalboard/pkg/apperrors"
	"github.com/evalboard/evalboard/pkg/models"
	"github.com/evalboard/evalboard/pkg/reportcache"
	"github.com/evalboard/evalboard/pkg/storage"
)

var fetchedAt = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func row(d string, above, total int, ttftMedian, ttftP90 float64) models.ReportRow {
	return models.ReportRow{
		Difficulty:              d,
		TotalQuestions:          total,
		QuestionsAboveThreshold: above,
		PercentageAbove:         float64(above) * 100 / float64(total),
		TTFT:                    models.LatencyStats{Median: ttftMedian, P90: ttftP90},
		TotalGeneration:         models.LatencyStats{Median: ttftMedian * 5, P90: ttftP90 * 5},
	}
}

// scenario returns exp-A with Easy/Medium/Hard rows and exp-B without Hard.
func scenario() (models.CachedReport, models.CachedReport) {
	a := models.CachedReport{
		FilterKey: models.FilterKey{ExperimentTracker: "exp-A", Subject: "ela"},
		ReportRows: []models.ReportRow{
			row("Easy", 80, 100, 1200, 2100),
			row("Medium", 60, 100, 1500, 2600),
			row("Hard", 40, 50, 1800, 3333),
		},
		FetchedAt: fetchedAt,
	}
	b := models.CachedReport{
		FilterKey: models.FilterKey{ExperimentTracker: "exp-B", Subject: "ela"},
		ReportRows: []models.ReportRow{
			row("easy", 80, 100, 1200, 2000),
			row("MEDIUM", 60, 100, 1500, 2400),
		},
		FetchedAt: fetchedAt,
	}
	return a, b
}

func TestBuildLatencyComparisonScenario(t *testing.T) {
	a, b := scenario()
	table, err := BuildLatencyComparison([]models.CachedReport{a, b}, MetricTTFT)
	if err != nil {
		t.Fatal(err)
	}

	want := []LatencyRow{
		{Difficulty: models.DifficultyEasy, Cells: []*LatencyCell{{MedianSec: 1.2, P90Sec: 2.1}, {MedianSec: 1.2, P90Sec: 2}}},
		{Difficulty: models.DifficultyMedium, Cells: []*LatencyCell{{MedianSec: 1.5, P90Sec: 2.6}, {MedianSec: 1.5, P90Sec: 2.4}}},
		{Difficulty: models.DifficultyHard, Cells: []*LatencyCell{{MedianSec: 1.8, P90Sec: 3.33}, nil}},
	}
	if diff := cmp.Diff(want, table.Rows); diff != "" {
		t.Errorf("latency rows mismatch (-want +got):\n%s", diff)
	}
	if table.Reports[1].ExperimentTracker != "exp-B" {
		t.Errorf("columns out of order: %+v", table.Reports)
	}
}

func TestBuildLatencyComparisonTotalGeneration(t *testing.T) {
	a, b := scenario()
	table, err := BuildLatencyComparison([]models.CachedReport{a, b}, MetricTotalGeneration)
	if err != nil {
		t.Fatal(err)
	}
	if got := table.Rows[0].Cells[0].MedianSec; got != 6 {
		t.Errorf("expected 6s total-generation median, got %v", got)
	}
}

func TestBuildSuccessRateAbsentNotZero(t *testing.T) {
	a, b := scenario()
	table, err := BuildSuccessRateComparison([]models.CachedReport{a, b})
	if err != nil {
		t.Fatal(err)
	}

	hard := table.Rows[2]
	if hard.Difficulty != models.DifficultyHard {
		t.Fatalf("expected Hard row last, got %s", hard.Difficulty)
	}
	if hard.Cells[1] != nil {
		t.Errorf("expected absent cell for exp-B Hard, got %+v", *hard.Cells[1])
	}
	if want := (SuccessCell{QuestionsAboveThreshold: 40, TotalQuestions: 50, Percentage: 80}); *hard.Cells[0] != want {
		t.Errorf("exp-A Hard = %+v, want %+v", *hard.Cells[0], want)
	}
}

func TestSuccessRateUsesReportedPercentage(t *testing.T) {
	a, b := scenario()
	// The server's rounding is kept even when it disagrees with the counts.
	a.ReportRows[0].PercentageAbove = 79.9
	table, _ := BuildSuccessRateComparison([]models.CachedReport{a, b})
	if got := table.Rows[0].Cells[0].Percentage; got != 79.9 {
		t.Errorf("expected reported 79.9, got %v", got)
	}
}

func TestZeroTotalRowIsPresent(t *testing.T) {
	a, b := scenario()
	b.ReportRows = append(b.ReportRows, models.ReportRow{Difficulty: "Hard"})
	table, _ := BuildSuccessRateComparison([]models.CachedReport{a, b})
	cell := table.Rows[2].Cells[1]
	if cell == nil {
		t.Fatal("a zero-question row is data, not absence")
	}
	if cell.TotalQuestions != 0 {
		t.Errorf("unexpected cell %+v", *cell)
	}
}

func TestReportCountBounds(t *testing.T) {
	a, _ := scenario()
	for _, n := range []int{0, 1, 5} {
		reports := make([]models.CachedReport, n)
		for i := range reports {
			reports[i] = a
		}
		if _, err := BuildSuccessRateComparison(reports); !apperrors.IsCode(err, apperrors.CodeInvalidComparison) {
			t.Errorf("n=%d: expected INVALID_COMPARISON, got %v", n, err)
		}
		if _, err := BuildLatencyComparison(reports, MetricTTFT); !apperrors.IsCode(err, apperrors.CodeInvalidComparison) {
			t.Errorf("n=%d: expected INVALID_COMPARISON, got %v", n, err)
		}
		if _, err := BuildScoreHistogram(reports, models.DifficultyEasy); !apperrors.IsCode(err, apperrors.CodeInvalidComparison) {
			t.Errorf("n=%d: expected INVALID_COMPARISON, got %v", n, err)
		}
	}
}

func TestUnknownMetric(t *testing.T) {
	a, b := scenario()
	if _, err := BuildLatencyComparison([]models.CachedReport{a, b}, "p99"); err == nil {
		t.Error("expected error for unknown metric")
	}
	if _, err := ParseMetric("TTFT"); err != nil {
		t.Errorf("ParseMetric(TTFT): %v", err)
	}
}

func TestBuildSummaryComparison(t *testing.T) {
	a, b := scenario()
	a.Summary = models.ReportSummary{Provider: "openai", TotalQuestions: 250, SuccessRate: 72, AvgTTFTMs: 1456, AvgTotalGenerationMs: 7234}
	cols, err := BuildSummaryComparison([]models.CachedReport{a, b})
	if err != nil {
		t.Fatal(err)
	}
	if cols[0].AvgTTFTSec != 1.46 || cols[0].AvgTotalGenerationSec != 7.23 {
		t.Errorf("unexpected converted latencies: %+v", cols[0])
	}
	if cols[0].Provider != "openai" || cols[1].Report.ExperimentTracker != "exp-B" {
		t.Errorf("unexpected columns: %+v", cols)
	}
}

func TestMsToSecondsRounding(t *testing.T) {
	tests := []struct {
		ms   float64
		want float64
	}{
		{1200, 1.2},
		{1234, 1.23},
		{1235.5, 1.24},
		{0, 0},
		{999, 1},
	}
	for _, tt := range tests {
		if got := msToSeconds(tt.ms); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("msToSeconds(%v) = %v, want %v", tt.ms, got, tt.want)
		}
	}
}

func TestEngineSelect(t *testing.T) {
	store := reportcache.New(storage.NewMemory())
	ctx := context.Background()
	a, b := scenario()
	_ = store.Put(ctx, a)
	_ = store.Put(ctx, b)

	e := NewEngine(store)
	table, err := e.SuccessRate(ctx, []models.FilterKey{b.FilterKey, a.FilterKey})
	if err != nil {
		t.Fatal(err)
	}
	if table.Reports[0].ExperimentTracker != "exp-B" {
		t.Errorf("expected selection order preserved, got %+v", table.Reports)
	}

	missing := models.FilterKey{ExperimentTracker: "exp-Z", Subject: "ela"}
	if _, err := e.Select(ctx, []models.FilterKey{a.FilterKey, missing}); !apperrors.IsCode(err, apperrors.CodeNotFound) {
		t.Errorf("expected NOT_FOUND, got %v", err)
	}
	if _, err := e.Select(ctx, []models.FilterKey{a.FilterKey, a.FilterKey}); !apperrors.IsCode(err, apperrors.CodeInvalidComparison) {
		t.Errorf("expected INVALID_COMPARISON for duplicate selection, got %v", err)
	}
	if _, err := e.Latency(ctx, []models.FilterKey{a.FilterKey}, MetricTTFT); !apperrors.IsCode(err, apperrors.CodeInvalidComparison) {
		t.Errorf("expected INVALID_COMPARISON for single selection, got %v", err)
	}

	if s := store.Stats(ctx); s.Entries != 2 {
		t.Errorf("engine must not modify the store, entries = %d", s.Entries)
	}
}

func TestEngineLeavesHitCountersAlone(t *testing.T) {
	store := reportcache.New(storage.NewMemory())
	ctx := context.Background()
	a, b := scenario()
	_ = store.Put(ctx, a)
	_ = store.Put(ctx, b)

	e := NewEngine(store)
	if _, err := e.Latency(ctx, []models.FilterKey{a.FilterKey, b.FilterKey}, MetricTTFT); err != nil {
		t.Fatal(err)
	}
	missing := models.FilterKey{ExperimentTracker: "exp-Z", Subject: "ela"}
	_, _ = e.Select(ctx, []models.FilterKey{a.FilterKey, missing})

	s := store.Stats(ctx)
	if s.Hits != 0 || s.Misses != 0 {
		t.Errorf("comparison reads must not count as lookups, hits=%d misses=%d", s.Hits, s.Misses)
	}
}
