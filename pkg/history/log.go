// Package history keeps a SQLite log of report fetch attempts.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/evalboard/evalboard/pkg/models"
)

// Log writes and queries fetch records.
type Log struct {
	db   *sql.DB
	cfg  models.HistoryConfig
	done chan struct{}
	wg   sync.WaitGroup
}

// New opens the history database and starts the retention loop.
func New(cfg models.HistoryConfig) (*Log, error) {
	db, err := sql.Open("sqlite", cfg.DBPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate history db: %w", err)
	}

	l := &Log{
		db:   db,
		cfg:  cfg,
		done: make(chan struct{}),
	}

	l.wg.Add(1)
	go l.retentionLoop()

	return l, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS fetch_history (
		id                 INTEGER PRIMARY KEY AUTOINCREMENT,
		signature          TEXT NOT NULL,
		experiment_tracker TEXT NOT NULL,
		subject            TEXT NOT NULL,
		outcome            TEXT NOT NULL,
		error              TEXT,
		rows               INTEGER NOT NULL DEFAULT 0,
		samples            INTEGER NOT NULL DEFAULT 0,
		latency_ms         INTEGER NOT NULL DEFAULT 0,
		persisted          INTEGER NOT NULL DEFAULT 0,
		created_at         DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_history_tracker ON fetch_history(experiment_tracker)`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_history_created ON fetch_history(created_at)`)
	return err
}

// Record inserts a fetch record.
func (l *Log) Record(ctx context.Context, rec models.FetchRecord) error {
	if l == nil || l.db == nil {
		return nil
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO fetch_history
		(signature, experiment_tracker, subject, outcome, error, rows, samples, latency_ms, persisted, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Signature, rec.ExperimentTracker, rec.Subject, string(rec.Outcome), rec.Error,
		rec.Rows, rec.Samples, rec.LatencyMs, rec.Persisted, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("record fetch: %w", err)
	}
	return nil
}

// Query returns fetch records matching opts, newest first.
func (l *Log) Query(ctx context.Context, opts models.HistoryQueryOpts) ([]models.FetchRecord, error) {
	q := `SELECT id, signature, experiment_tracker, subject, outcome, error,
		rows, samples, latency_ms, persisted, created_at
		FROM fetch_history WHERE 1=1`
	var args []any

	if opts.ExperimentTracker != "" {
		q += " AND experiment_tracker = ?"
		args = append(args, opts.ExperimentTracker)
	}
	if opts.Subject != "" {
		q += " AND subject = ?"
		args = append(args, opts.Subject)
	}
	if opts.Outcome != "" {
		q += " AND outcome = ?"
		args = append(args, string(opts.Outcome))
	}
	if !opts.Since.IsZero() {
		q += " AND created_at >= ?"
		args = append(args, opts.Since)
	}

	q += " ORDER BY created_at DESC, id DESC"

	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	q += " LIMIT ?"
	args = append(args, limit)

	rows, err := l.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var records []models.FetchRecord
	for rows.Next() {
		var r models.FetchRecord
		var outcome string
		var errText sql.NullString
		if err := rows.Scan(
			&r.ID, &r.Signature, &r.ExperimentTracker, &r.Subject, &outcome, &errText,
			&r.Rows, &r.Samples, &r.LatencyMs, &r.Persisted, &r.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		r.Outcome = models.FetchOutcome(outcome)
		r.Error = errText.String
		records = append(records, r)
	}
	return records, rows.Err()
}

// Stats returns success/failure counts grouped by tracker and day.
func (l *Log) Stats(ctx context.Context) ([]models.HistoryStat, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT experiment_tracker, date(created_at) AS day,
			SUM(CASE WHEN outcome = 'success' THEN 1 ELSE 0 END),
			SUM(CASE WHEN outcome = 'success' THEN 0 ELSE 1 END),
			AVG(latency_ms)
		 FROM fetch_history GROUP BY experiment_tracker, day
		 ORDER BY day DESC, experiment_tracker`)
	if err != nil {
		return nil, fmt.Errorf("history stats: %w", err)
	}
	defer rows.Close()

	var stats []models.HistoryStat
	for rows.Next() {
		var s models.HistoryStat
		var day sql.NullString
		if err := rows.Scan(&s.ExperimentTracker, &day, &s.Successes, &s.Failures, &s.AvgLatencyMs); err != nil {
			return nil, fmt.Errorf("scan history stat: %w", err)
		}
		s.Day = day.String
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// Cleanup deletes records older than the retention period. A retention of
// zero days keeps everything.
func (l *Log) Cleanup(ctx context.Context) (int64, error) {
	if l.cfg.RetentionDays <= 0 {
		return 0, nil
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -l.cfg.RetentionDays)
	res, err := l.db.ExecContext(ctx,
		`DELETE FROM fetch_history WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("history cleanup: %w", err)
	}
	return res.RowsAffected()
}

// Close stops the retention goroutine and closes the database.
func (l *Log) Close() error {
	close(l.done)
	l.wg.Wait()
	return l.db.Close()
}

func (l *Log) retentionLoop() {
	defer l.wg.Done()
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			_, _ = l.Cleanup(context.Background())
		}
	}
}
