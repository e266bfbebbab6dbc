// Package coordinator is the single entry point for loading experiment
// reports: cache hits are served from the report cache, misses go to the
// report-fetch collaborator once per filter key no matter how many callers
// ask concurrently.
package coordinator

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/evalboard/evalboard/pkg/apperrors"
	"github.com/evalboard/evalboard/pkg/logger"
	"github.com/evalboard/evalboard/pkg/models"
	"github.com/evalboard/evalboard/pkg/reportcache"
)

// FetchFunc retrieves a report from the backend.
type FetchFunc func(ctx context.Context, key models.FilterKey) (*models.ReportData, error)

// Recorder receives one record per fetch attempt.
type Recorder interface {
	Record(ctx context.Context, rec models.FetchRecord) error
}

// Coordinator serves reports from the cache and deduplicates backend fetches.
type Coordinator struct {
	store    *reportcache.Store
	log      *logger.Logger
	recorder Recorder
	now      func() time.Time
	group    singleflight.Group

	mu          sync.Mutex
	generations map[string]uint64
	closed      bool
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.log = l
		}
	}
}

// WithRecorder sets the fetch history recorder.
func WithRecorder(r Recorder) Option {
	return func(c *Coordinator) { c.recorder = r }
}

// WithClock overrides the clock used to stamp FetchedAt.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// New creates a Coordinator that owns writes to store.
func New(store *reportcache.Store, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:       store,
		log:         logger.Discard(),
		now:         time.Now,
		generations: make(map[string]uint64),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Store returns the underlying report cache for read-only consumers.
func (c *Coordinator) Store() *reportcache.Store { return c.store }

// LoadReport returns the report for key. A cached report is returned without
// calling fetch. On a miss fetch is called at most once per key across all
// concurrent callers, and a successful result is written to the cache.
func (c *Coordinator) LoadReport(ctx context.Context, key models.FilterKey, fetch FetchFunc) (*models.CachedReport, error) {
	key, err := validate(key)
	if err != nil {
		return nil, err
	}
	if c.isClosed() {
		return nil, apperrors.Unavailable("report coordinator")
	}

	if r, ok := c.store.Get(ctx, key); ok {
		return &r, nil
	}
	return c.flight(ctx, key, fetch, true)
}

// Reload fetches key even when it is cached and replaces the cached entry.
// A reload joins an in-flight fetch for the same key if one is running.
func (c *Coordinator) Reload(ctx context.Context, key models.FilterKey, fetch FetchFunc) (*models.CachedReport, error) {
	key, err := validate(key)
	if err != nil {
		return nil, err
	}
	if c.isClosed() {
		return nil, apperrors.Unavailable("report coordinator")
	}
	return c.flight(ctx, key, fetch, false)
}

// Delete removes key from the cache. A fetch for key that is still in
// flight will deliver its result to its callers but will not be cached.
func (c *Coordinator) Delete(ctx context.Context, key models.FilterKey) error {
	sig := key.Signature()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.generations[sig]++
	c.group.Forget(sig)
	return c.store.Delete(ctx, key)
}

// Close stops the coordinator from caching results. Fetches already in flight
// still resolve for their callers.
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *Coordinator) flight(ctx context.Context, key models.FilterKey, fetch FetchFunc, useCache bool) (*models.CachedReport, error) {
	if fetch == nil {
		return nil, apperrors.FetchFailed(key.Signature(), errors.New("no report fetcher configured"))
	}
	sig := key.Signature()
	gen := c.generation(sig)

	// The shared fetch must outlive any one caller's context.
	fetchCtx := context.WithoutCancel(ctx)

	ch := c.group.DoChan(sig, func() (any, error) {
		if useCache {
			if r, ok := c.store.Get(fetchCtx, key); ok {
				return &r, nil
			}
		}
		return c.fetchAndStore(fetchCtx, key, fetch, gen)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		r := res.Val.(*models.CachedReport).Clone()
		return &r, nil
	}
}

func (c *Coordinator) fetchAndStore(ctx context.Context, key models.FilterKey, fetch FetchFunc, gen uint64) (*models.CachedReport, error) {
	sig := key.Signature()
	log := c.log.WithFilter(sig)

	start := time.Now()
	data, err := fetch(ctx, key)
	latency := time.Since(start)
	if err == nil && data == nil {
		err = errors.New("empty report response")
	}

	rec := models.FetchRecord{
		Signature:         sig,
		ExperimentTracker: key.ExperimentTracker,
		Subject:           key.Subject,
		LatencyMs:         latency.Milliseconds(),
		CreatedAt:         start.UTC(),
	}

	if err != nil {
		log.WithError(err).Warn("report fetch failed", "latency_ms", rec.LatencyMs)
		rec.Outcome = models.FetchErrored
		rec.Error = err.Error()
		c.record(ctx, rec)
		return nil, apperrors.FetchFailed(sig, err)
	}

	report := models.NewCachedReport(key, *data, c.now().UTC())
	rec.Outcome = models.FetchSucceeded
	rec.Rows = len(report.ReportRows)
	rec.Samples = len(report.ScoreSamples)

	persisted, err := c.persist(ctx, sig, gen, report)
	switch {
	case err != nil:
		log.WithError(err).Warn("caching fetched report failed")
	case !persisted:
		log.Debug("fetch superseded, result not cached")
	}
	rec.Persisted = persisted

	log.Debug("report fetched", "rows", rec.Rows, "samples", rec.Samples, "latency_ms", rec.LatencyMs)
	c.record(ctx, rec)
	return &report, nil
}

func (c *Coordinator) record(ctx context.Context, rec models.FetchRecord) {
	if c.recorder == nil {
		return
	}
	if err := c.recorder.Record(ctx, rec); err != nil {
		c.log.WithError(err).Warn("recording fetch history failed")
	}
}

func (c *Coordinator) generation(sig string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generations[sig]
}

// persist writes report unless the coordinator was closed or key was
// deleted since the fetch started. The check and the write happen under
// c.mu so a concurrent Delete either runs first and wins or runs after the
// write and removes it.
func (c *Coordinator) persist(ctx context.Context, sig string, gen uint64, report models.CachedReport) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.generations[sig] != gen {
		return false, nil
	}
	if err := c.store.Put(ctx, report); err != nil {
		return false, err
	}
	return true, nil
}

func (c *Coordinator) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func validate(key models.FilterKey) (models.FilterKey, error) {
	key = key.Normalize()
	if key.ExperimentTracker == "" {
		return key, apperrors.InvalidFilter("experiment tracker is required")
	}
	if key.Subject == "" {
		return key, apperrors.InvalidFilter("subject is required")
	}
	switch key.ViewMode {
	case "", models.ViewAttachmentFiltered:
	default:
		return key, apperrors.InvalidFilter("unknown view mode " + string(key.ViewMode))
	}
	return key, nil
}
