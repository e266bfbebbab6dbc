package models

import "time"

// FetchOutcome classifies a report fetch attempt.
type FetchOutcome string

const (
	FetchSucceeded FetchOutcome = "success"
	FetchErrored   FetchOutcome = "error"
)

// FetchRecord is one logged call to the report endpoint.
type FetchRecord struct {
	ID                int64        `json:"id"`
	Signature         string       `json:"signature"`
	ExperimentTracker string       `json:"experiment_tracker"`
	Subject           string       `json:"subject"`
	Outcome           FetchOutcome `json:"outcome"`
	Error             string       `json:"error,omitempty"`
	Rows              int          `json:"rows"`
	Samples           int          `json:"samples"`
	LatencyMs         int64        `json:"latency_ms"`
	Persisted         bool         `json:"persisted"`
	CreatedAt         time.Time    `json:"created_at"`
}

// HistoryConfig controls the fetch history log.
type HistoryConfig struct {
	Enabled       bool   `yaml:"enabled" envconfig:"EVALBOARD_HISTORY_ENABLED"`
	DBPath        string `yaml:"db_path" envconfig:"EVALBOARD_HISTORY_DB_PATH"`
	RetentionDays int    `yaml:"retention_days" envconfig:"EVALBOARD_HISTORY_RETENTION_DAYS"`
}

// HistoryQueryOpts filters fetch history queries.
type HistoryQueryOpts struct {
	ExperimentTracker string
	Subject           string
	Outcome           FetchOutcome
	Since             time.Time
	Limit             int
}

// HistoryStat aggregates fetch attempts for a tracker/day combination.
type HistoryStat struct {
	ExperimentTracker string  `json:"experiment_tracker"`
	Day               string  `json:"day"`
	Successes         int     `json:"successes"`
	Failures          int     `json:"failures"`
	AvgLatencyMs      float64 `json:"avg_latency_ms"`
}
