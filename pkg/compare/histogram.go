package compare

import (
	"math"

	"github.com/evalboard/evalboard/pkg/models"
)

// BucketCount is the number of fixed-width score buckets over [0,1].
const BucketCount = 10

// HistogramSeries is one report's score distribution for a difficulty.
type HistogramSeries struct {
	Report      models.FilterKey `json:"report"`
	Buckets     [BucketCount]int `json:"buckets"`
	SampleCount int              `json:"sample_count"`
	// Mean is nil when the report has no samples for the difficulty.
	Mean *float64 `json:"mean,omitempty"`
	// Skipped counts samples whose score is NaN or outside [0,1].
	Skipped int `json:"skipped,omitempty"`
}

// Histogram is the per-report score distribution for one difficulty.
type Histogram struct {
	Difficulty models.Difficulty `json:"difficulty"`
	Series     []HistogramSeries `json:"series"`
}

// BucketIndex returns the bucket for a score in [0,1]. Bucket i covers
// [i/10, (i+1)/10) and the last bucket also includes 1.0.
func BucketIndex(score float64) (int, bool) {
	if math.IsNaN(score) || score < 0 || score > 1 {
		return 0, false
	}
	idx := int(math.Floor(score * BucketCount))
	// score*10 can round across a boundary; compare against the boundary
	// values themselves.
	if idx < BucketCount-1 && score >= float64(idx+1)/BucketCount {
		idx++
	} else if idx > 0 && idx < BucketCount && score < float64(idx)/BucketCount {
		idx--
	}
	if idx >= BucketCount {
		idx = BucketCount - 1
	}
	return idx, true
}

// BuildScoreHistogram buckets each report's samples for difficulty d.
func BuildScoreHistogram(reports []models.CachedReport, d models.Difficulty) (*Histogram, error) {
	if err := checkCount(reports); err != nil {
		return nil, err
	}

	h := &Histogram{Difficulty: d, Series: make([]HistogramSeries, 0, len(reports))}
	for _, r := range reports {
		s := HistogramSeries{Report: r.FilterKey}
		var sum float64
		for _, sample := range r.ScoreSamples {
			if !d.Matches(sample.Difficulty) {
				continue
			}
			idx, ok := BucketIndex(sample.Score)
			if !ok {
				s.Skipped++
				continue
			}
			s.Buckets[idx]++
			s.SampleCount++
			sum += sample.Score
		}
		if s.SampleCount > 0 {
			mean := sum / float64(s.SampleCount)
			s.Mean = &mean
		}
		h.Series = append(h.Series, s)
	}
	return h, nil
}
