package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/evalboard/evalboard/pkg/models"
)

func tempCfg(t *testing.T) models.HistoryConfig {
	t.Helper()
	return models.HistoryConfig{
		Enabled:       true,
		DBPath:        filepath.Join(t.TempDir(), "history_test.db"),
		RetentionDays: 30,
	}
}

func mustNew(t *testing.T, cfg models.HistoryConfig) *Log {
	t.Helper()
	l, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func sampleRecord(tracker string, outcome models.FetchOutcome, at time.Time) models.FetchRecord {
	rec := models.FetchRecord{
		Signature:         tracker + "|ela|||",
		ExperimentTracker: tracker,
		Subject:           "ela",
		Outcome:           outcome,
		Rows:              3,
		Samples:           120,
		LatencyMs:         850,
		Persisted:         outcome == models.FetchSucceeded,
		CreatedAt:         at,
	}
	if outcome == models.FetchErrored {
		rec.Error = "report endpoint returned 502"
		rec.Rows, rec.Samples = 0, 0
	}
	return rec
}

func TestRecordAndQuery(t *testing.T) {
	l := mustNew(t, tempCfg(t))
	ctx := context.Background()
	now := time.Now().UTC()

	if err := l.Record(ctx, sampleRecord("exp-A", models.FetchSucceeded, now)); err != nil {
		t.Fatalf("Record: %v", err)
	}
	_ = l.Record(ctx, sampleRecord("exp-B", models.FetchErrored, now.Add(time.Second)))

	all, err := l.Query(ctx, models.HistoryQueryOpts{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 records, got %d", len(all))
	}
	if all[0].ExperimentTracker != "exp-B" {
		t.Errorf("expected newest first, got %s", all[0].ExperimentTracker)
	}
	if all[0].Error == "" || all[0].Persisted {
		t.Errorf("unexpected failure record: %+v", all[0])
	}
	if !all[1].Persisted || all[1].Samples != 120 {
		t.Errorf("unexpected success record: %+v", all[1])
	}

	failed, err := l.Query(ctx, models.HistoryQueryOpts{Outcome: models.FetchErrored})
	if err != nil {
		t.Fatal(err)
	}
	if len(failed) != 1 || failed[0].ExperimentTracker != "exp-B" {
		t.Errorf("unexpected outcome filter result: %+v", failed)
	}

	byTracker, _ := l.Query(ctx, models.HistoryQueryOpts{ExperimentTracker: "exp-A"})
	if len(byTracker) != 1 {
		t.Errorf("expected 1 record for exp-A, got %d", len(byTracker))
	}
}

func TestQueryLimit(t *testing.T) {
	l := mustNew(t, tempCfg(t))
	ctx := context.Background()
	now := time.Now().UTC()

	for i := range 5 {
		_ = l.Record(ctx, sampleRecord("exp-A", models.FetchSucceeded, now.Add(time.Duration(i)*time.Second)))
	}

	got, err := l.Query(ctx, models.HistoryQueryOpts{Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Errorf("expected 2 records, got %d", len(got))
	}
}

func TestStats(t *testing.T) {
	l := mustNew(t, tempCfg(t))
	ctx := context.Background()
	now := time.Now().UTC()

	_ = l.Record(ctx, sampleRecord("exp-A", models.FetchSucceeded, now))
	_ = l.Record(ctx, sampleRecord("exp-A", models.FetchSucceeded, now))
	_ = l.Record(ctx, sampleRecord("exp-A", models.FetchErrored, now))

	stats, err := l.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(stats) != 1 {
		t.Fatalf("expected 1 stat row, got %d", len(stats))
	}
	if stats[0].Successes != 2 || stats[0].Failures != 1 {
		t.Errorf("unexpected stat: %+v", stats[0])
	}
	if stats[0].AvgLatencyMs != 850 {
		t.Errorf("expected avg latency 850, got %v", stats[0].AvgLatencyMs)
	}
}

func TestCleanup(t *testing.T) {
	l := mustNew(t, tempCfg(t))
	ctx := context.Background()
	now := time.Now().UTC()

	_ = l.Record(ctx, sampleRecord("exp-old", models.FetchSucceeded, now.AddDate(0, 0, -60)))
	_ = l.Record(ctx, sampleRecord("exp-new", models.FetchSucceeded, now))

	deleted, err := l.Cleanup(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if deleted != 1 {
		t.Errorf("expected 1 deleted, got %d", deleted)
	}

	left, _ := l.Query(ctx, models.HistoryQueryOpts{})
	if len(left) != 1 || left[0].ExperimentTracker != "exp-new" {
		t.Errorf("unexpected remaining records: %+v", left)
	}
}

func TestCleanupDisabled(t *testing.T) {
	cfg := tempCfg(t)
	cfg.RetentionDays = 0
	l := mustNew(t, cfg)
	ctx := context.Background()

	_ = l.Record(ctx, sampleRecord("exp-old", models.FetchSucceeded, time.Now().UTC().AddDate(-1, 0, 0)))
	deleted, err := l.Cleanup(ctx)
	if err != nil || deleted != 0 {
		t.Errorf("expected nothing deleted, got %d, %v", deleted, err)
	}
}

func TestNilLogRecordIsNoop(t *testing.T) {
	var l *Log
	if err := l.Record(context.Background(), models.FetchRecord{}); err != nil {
		t.Errorf("expected nil error, got %v", err)
	}
}
