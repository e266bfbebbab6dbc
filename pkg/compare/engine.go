package compare

import (
	"context"

	"github.com/evalboard/evalboard/pkg/apperrors"
	"github.com/evalboard/evalboard/pkg/models"
	"github.com/evalboard/evalboard/pkg/reportcache"
)

// Engine resolves comparison selections against the report cache. It never
// writes to the cache.
type Engine struct {
	store *reportcache.Store
}

// NewEngine creates an Engine reading from store.
func NewEngine(store *reportcache.Store) *Engine {
	return &Engine{store: store}
}

// Select returns the cached reports for keys, in order.
func (e *Engine) Select(ctx context.Context, keys []models.FilterKey) ([]models.CachedReport, error) {
	if len(keys) < MinReports || len(keys) > MaxReports {
		return nil, apperrors.InvalidComparison("select 2 to 4 cached reports to compare")
	}
	seen := make(map[string]bool, len(keys))
	out := make([]models.CachedReport, 0, len(keys))
	for _, k := range keys {
		sig := k.Signature()
		if seen[sig] {
			return nil, apperrors.InvalidComparison("report " + k.String() + " selected twice")
		}
		seen[sig] = true

		r, ok := e.store.Peek(ctx, k)
		if !ok {
			return nil, apperrors.NotFound("cached report " + k.String())
		}
		out = append(out, r)
	}
	return out, nil
}

// Latency selects keys and builds a latency comparison.
func (e *Engine) Latency(ctx context.Context, keys []models.FilterKey, metric Metric) (*LatencyTable, error) {
	reports, err := e.Select(ctx, keys)
	if err != nil {
		return nil, err
	}
	return BuildLatencyComparison(reports, metric)
}

// SuccessRate selects keys and builds a success-rate comparison.
func (e *Engine) SuccessRate(ctx context.Context, keys []models.FilterKey) (*SuccessRateTable, error) {
	reports, err := e.Select(ctx, keys)
	if err != nil {
		return nil, err
	}
	return BuildSuccessRateComparison(reports)
}

// Histogram selects keys and builds a score histogram for d.
func (e *Engine) Histogram(ctx context.Context, keys []models.FilterKey, d models.Difficulty) (*Histogram, error) {
	reports, err := e.Select(ctx, keys)
	if err != nil {
		return nil, err
	}
	return BuildScoreHistogram(reports, d)
}

// Summary selects keys and builds a summary comparison.
func (e *Engine) Summary(ctx context.Context, keys []models.FilterKey) ([]SummaryColumn, error) {
	reports, err := e.Select(ctx, keys)
	if err != nil {
		return nil, err
	}
	return BuildSummaryComparison(reports)
}
