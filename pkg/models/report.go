package models

import (
	"strings"
	"time"
)

// Difficulty is a question-difficulty tier.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "Easy"
	DifficultyMedium Difficulty = "Medium"
	DifficultyHard   Difficulty = "Hard"
)

// Difficulties lists the tiers in display order.
var Difficulties = []Difficulty{DifficultyEasy, DifficultyMedium, DifficultyHard}

// Matches reports whether a raw difficulty label names this tier,
// ignoring case and surrounding whitespace.
func (d Difficulty) Matches(label string) bool {
	return strings.EqualFold(strings.TrimSpace(label), string(d))
}

// ParseDifficulty maps a label to a known tier.
func ParseDifficulty(label string) (Difficulty, bool) {
	for _, d := range Difficulties {
		if d.Matches(label) {
			return d, true
		}
	}
	return "", false
}

// LatencyStats holds latency percentiles in milliseconds.
type LatencyStats struct {
	P10    float64 `json:"p10_ms"`
	Median float64 `json:"median_ms"`
	Avg    float64 `json:"avg_ms"`
	P90    float64 `json:"p90_ms"`
	P95    float64 `json:"p95_ms"`
}

// ReportRow is the per-difficulty metric record of an experiment report.
type ReportRow struct {
	Difficulty              string       `json:"difficulty"`
	TotalQuestions          int          `json:"total_questions"`
	QuestionsAboveThreshold int          `json:"questions_above_threshold"`
	PercentageAbove         float64      `json:"percentage_above_threshold"`
	TTFT                    LatencyStats `json:"ttft"`
	TotalGeneration         LatencyStats `json:"total_generation"`
}

// ReportSummary aggregates a whole experiment.
type ReportSummary struct {
	TotalQuestions          int     `json:"total_questions"`
	QuestionsAboveThreshold int     `json:"questions_above_threshold"`
	SuccessRate             float64 `json:"success_rate"`
	Provider                string  `json:"provider,omitempty"`
	Method                  string  `json:"method,omitempty"`
	Model                   string  `json:"model,omitempty"`
	AvgTTFTMs               float64 `json:"avg_ttft_ms"`
	AvgTotalGenerationMs    float64 `json:"avg_total_generation_ms"`
}

// ScoreSample is one graded question.
type ScoreSample struct {
	QuestionID string  `json:"question_id"`
	RecipeID   string  `json:"recipe_id"`
	Difficulty string  `json:"difficulty"`
	Score      float64 `json:"score"`
}

// ReportData is what the report endpoint returns for one filter.
type ReportData struct {
	ReportRows   []ReportRow   `json:"reportRows"`
	Summary      ReportSummary `json:"summary"`
	ScoreSamples []ScoreSample `json:"scoreSamples"`
}

// CachedReport is a fetched report as held by the report cache.
type CachedReport struct {
	FilterKey    FilterKey     `json:"filter_key"`
	ReportRows   []ReportRow   `json:"report_rows"`
	Summary      ReportSummary `json:"summary"`
	ScoreSamples []ScoreSample `json:"score_samples"`
	FetchedAt    time.Time     `json:"fetched_at"`
}

// NewCachedReport builds a report from fetched data. The slices are copied.
func NewCachedReport(key FilterKey, data ReportData, fetchedAt time.Time) CachedReport {
	return CachedReport{
		FilterKey:    key.Normalize(),
		ReportRows:   append([]ReportRow(nil), data.ReportRows...),
		Summary:      data.Summary,
		ScoreSamples: append([]ScoreSample(nil), data.ScoreSamples...),
		FetchedAt:    fetchedAt,
	}
}

// Clone returns a copy that shares no slices with r.
func (r CachedReport) Clone() CachedReport {
	r.ReportRows = append([]ReportRow(nil), r.ReportRows...)
	r.ScoreSamples = append([]ScoreSample(nil), r.ScoreSamples...)
	return r
}

// Row returns the row for a difficulty tier, if the report has one.
func (r CachedReport) Row(d Difficulty) (ReportRow, bool) {
	for _, row := range r.ReportRows {
		if d.Matches(row.Difficulty) {
			return row, true
		}
	}
	return ReportRow{}, false
}
