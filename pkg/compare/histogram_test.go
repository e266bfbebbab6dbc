package compare

import (
	"math"
	"testing"

	"github.com/evalboard/evalboard/pkg/models"
)

func TestBucketIndexBoundaries(t *testing.T) {
	tests := []struct {
		score float64
		want  int
		ok    bool
	}{
		{0, 0, true},
		{0.05, 0, true},
		{0.1, 1, true},
		{0.3, 3, true},
		{0.7, 7, true},
		{0.99, 9, true},
		{1.0, 9, true},
		{math.Nextafter(0.3, 0), 2, true},
		{-0.01, 0, false},
		{1.01, 0, false},
		{math.NaN(), 0, false},
	}
	for _, tt := range tests {
		got, ok := BucketIndex(tt.score)
		if ok != tt.ok || (ok && got != tt.want) {
			t.Errorf("BucketIndex(%v) = %d, %v; want %d, %v", tt.score, got, ok, tt.want, tt.ok)
		}
	}
}

func TestBucketIndexEveryBoundary(t *testing.T) {
	for i := range BucketCount {
		score := float64(i) / 10
		if got, _ := BucketIndex(score); got != i {
			t.Errorf("BucketIndex(%v) = %d, want %d", score, got, i)
		}
	}
}

func TestBuildScoreHistogram(t *testing.T) {
	a := models.CachedReport{
		FilterKey: models.FilterKey{ExperimentTracker: "exp-A", Subject: "ela"},
		ScoreSamples: []models.ScoreSample{
			{QuestionID: "q1", Difficulty: "Easy", Score: 1.0},
			{QuestionID: "q2", Difficulty: "easy", Score: 0.3},
			{QuestionID: "q3", Difficulty: "Easy", Score: 0.5},
			{QuestionID: "q4", Difficulty: "Hard", Score: 0.1},
			{QuestionID: "q5", Difficulty: "Easy", Score: 1.7},
		},
	}
	b := models.CachedReport{
		FilterKey: models.FilterKey{ExperimentTracker: "exp-B", Subject: "ela"},
		ScoreSamples: []models.ScoreSample{
			{QuestionID: "q1", Difficulty: "Hard", Score: 0.2},
		},
	}

	h, err := BuildScoreHistogram([]models.CachedReport{a, b}, models.DifficultyEasy)
	if err != nil {
		t.Fatal(err)
	}

	sa := h.Series[0]
	if sa.Buckets[9] != 1 || sa.Buckets[3] != 1 || sa.Buckets[5] != 1 || sa.Buckets[2] != 0 {
		t.Errorf("unexpected buckets for exp-A: %v", sa.Buckets)
	}
	if sa.SampleCount != 3 || sa.Skipped != 1 {
		t.Errorf("expected 3 counted and 1 skipped, got %d/%d", sa.SampleCount, sa.Skipped)
	}
	if sa.Mean == nil || math.Abs(*sa.Mean-0.6) > 1e-9 {
		t.Errorf("expected mean 0.6, got %v", sa.Mean)
	}

	sb := h.Series[1]
	if sb.Mean != nil {
		t.Errorf("expected absent mean for exp-B Easy, got %v", *sb.Mean)
	}
	if sb.SampleCount != 0 || sb.Buckets != [BucketCount]int{} {
		t.Errorf("expected empty series for exp-B, got %+v", sb)
	}
}
