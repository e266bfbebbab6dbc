// Package reportcache is the capacity-bounded, durable store of fetched
// experiment reports.
//
// The whole cache lives under one well-known key of a storage.Backend as a
// JSON envelope. Every operation reads and writes through the backend, so
// the backend value is the only copy of the cache state.
package reportcache

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/evalboard/evalboard/pkg/apperrors"
	"github.com/evalboard/evalboard/pkg/logger"
	"github.com/evalboard/evalboard/pkg/models"
	"github.com/evalboard/evalboard/pkg/storage"
)

const (
	// DefaultCapacity is the number of reports kept before eviction.
	DefaultCapacity = 10
	// DefaultKey is the backend key holding the serialized cache.
	DefaultKey = "experimentReportCache"

	envelopeVersion = 1
)

type envelope struct {
	Version int                   `json:"version"`
	Reports []models.CachedReport `json:"reports"`
}

// Store holds at most capacity reports, evicting the oldest-inserted first.
type Store struct {
	mu       sync.Mutex
	backend  storage.Backend
	key      string
	capacity int
	log      *logger.Logger

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

// Option configures a Store.
type Option func(*Store)

// WithCapacity overrides DefaultCapacity. Values below 1 are ignored.
func WithCapacity(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.capacity = n
		}
	}
}

// WithKey overrides DefaultKey.
func WithKey(key string) Option {
	return func(s *Store) {
		if key != "" {
			s.key = key
		}
	}
}

// WithLogger sets the logger used for corruption warnings.
func WithLogger(l *logger.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

// New creates a Store persisting through backend.
func New(backend storage.Backend, opts ...Option) *Store {
	s := &Store{
		backend:  backend,
		key:      DefaultKey,
		capacity: DefaultCapacity,
		log:      logger.Discard(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Capacity returns the maximum number of stored reports.
func (s *Store) Capacity() int { return s.capacity }

// Get returns the report stored under key. A missing entry, a backend
// error, or unreadable persisted data all count as a miss.
func (s *Store) Get(ctx context.Context, key models.FilterKey) (models.CachedReport, bool) {
	r, ok := s.Peek(ctx, key)
	if ok {
		s.hits.Add(1)
	} else {
		s.misses.Add(1)
	}
	return r, ok
}

// Peek is Get without touching the hit and miss counters. Readers that only
// display or compare cached reports use it so Stats reflects fetch decisions.
func (s *Store) Peek(ctx context.Context, key models.FilterKey) (models.CachedReport, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sig := key.Signature()
	for _, r := range s.load(ctx) {
		if r.FilterKey.Signature() == sig {
			return r.Clone(), true
		}
	}
	return models.CachedReport{}, false
}

// Put inserts report, replacing any entry with the same filter key. The
// replaced entry's position is dropped and report becomes the newest
// insertion. When the store exceeds its capacity the oldest-inserted
// entries are evicted. A report without a tracker or subject is rejected
// with INVALID_FILTER and nothing is written.
func (s *Store) Put(ctx context.Context, report models.CachedReport) error {
	report = report.Clone()
	report.FilterKey = report.FilterKey.Normalize()
	if !complete(report.FilterKey) {
		return apperrors.InvalidFilter("experiment tracker and subject are required")
	}
	sig := report.FilterKey.Signature()

	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.load(ctx)
	next := make([]models.CachedReport, 0, len(current)+1)
	for _, r := range current {
		if r.FilterKey.Signature() != sig {
			next = append(next, r)
		}
	}
	next = append(next, report)

	if over := len(next) - s.capacity; over > 0 {
		for _, r := range next[:over] {
			s.log.Debug("evicting cached report", "filter", r.FilterKey.Signature())
		}
		s.evictions.Add(int64(over))
		next = next[over:]
	}

	return s.save(ctx, next)
}

// Delete removes the entry for key if present.
func (s *Store) Delete(ctx context.Context, key models.FilterKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.load(ctx)
	sig := key.Signature()
	next := current[:0:0]
	for _, r := range current {
		if r.FilterKey.Signature() != sig {
			next = append(next, r)
		}
	}
	if len(next) == len(current) {
		return nil
	}
	return s.save(ctx, next)
}

// List returns all reports, most recently fetched first. Reports with the
// same fetch time are ordered newest insertion first.
func (s *Store) List(ctx context.Context) []models.CachedReport {
	s.mu.Lock()
	defer s.mu.Unlock()

	reports := s.load(ctx)
	out := make([]models.CachedReport, 0, len(reports))
	for i := len(reports) - 1; i >= 0; i-- {
		out = append(out, reports[i].Clone())
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].FetchedAt.After(out[j].FetchedAt)
	})
	return out
}

// Clear removes every entry.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(ctx, nil)
}

// Stats returns cache metrics.
func (s *Store) Stats(ctx context.Context) models.CacheStats {
	s.mu.Lock()
	n := len(s.load(ctx))
	s.mu.Unlock()

	return models.CacheStats{
		Entries:   int64(n),
		Capacity:  s.capacity,
		Hits:      s.hits.Load(),
		Misses:    s.misses.Load(),
		Evictions: s.evictions.Load(),
	}
}

// load reads the persisted reports in insertion order. Callers hold s.mu.
func (s *Store) load(ctx context.Context) []models.CachedReport {
	raw, ok, err := s.backend.Get(ctx, s.key)
	if err != nil {
		s.log.WithError(err).Warn("report cache read failed, treating as empty")
		return nil
	}
	if !ok || raw == "" {
		return nil
	}

	reports, dropped, err := decode(raw)
	if err != nil {
		s.log.WithError(apperrors.CacheCorrupt(err)).Warn("discarding unreadable report cache")
		return nil
	}
	if dropped > 0 {
		err := fmt.Errorf("%d entries have an incomplete filter key", dropped)
		s.log.WithError(apperrors.CacheCorrupt(err)).Warn("skipping unreadable cached reports")
	}
	return reports
}

// save persists reports in insertion order. Callers hold s.mu.
func (s *Store) save(ctx context.Context, reports []models.CachedReport) error {
	if reports == nil {
		reports = []models.CachedReport{}
	}
	data, err := json.Marshal(envelope{Version: envelopeVersion, Reports: reports})
	if err != nil {
		return fmt.Errorf("encode report cache: %w", err)
	}
	if err := s.backend.Set(ctx, s.key, string(data)); err != nil {
		return fmt.Errorf("persist report cache: %w", err)
	}
	return nil
}

// decode parses the envelope. Entries without a tracker or subject are
// dropped and counted; the rest are kept in order.
func decode(raw string) ([]models.CachedReport, int, error) {
	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return nil, 0, err
	}
	if env.Version != envelopeVersion {
		return nil, 0, fmt.Errorf("unsupported cache version %d", env.Version)
	}
	reports := env.Reports[:0]
	dropped := 0
	for _, r := range env.Reports {
		if !complete(r.FilterKey) {
			dropped++
			continue
		}
		reports = append(reports, r)
	}
	return reports, dropped, nil
}

func complete(k models.FilterKey) bool {
	k = k.Normalize()
	return k.ExperimentTracker != "" && k.Subject != ""
}
