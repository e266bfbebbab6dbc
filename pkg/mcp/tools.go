package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/evalboard/evalboard/pkg/apperrors"
	"github.com/evalboard/evalboard/pkg/compare"
	"github.com/evalboard/evalboard/pkg/models"
)

// Tool argument structs.

type signatureArgs struct {
	Signature string `json:"signature"`
}

type compareArgs struct {
	Reports    []string `json:"reports"`
	Metric     string   `json:"metric"`
	Difficulty string   `json:"difficulty"`
}

type historyArgs struct {
	ExperimentTracker string `json:"experiment_tracker"`
	Outcome           string `json:"outcome"`
	Since             string `json:"since"`
}

// toolHandler is a function that handles a tool call.
type toolHandler func(ctx context.Context, s *Server, args json.RawMessage) ToolCallResult

// toolHandlers maps tool names to their handlers.
var toolHandlers = map[string]toolHandler{
	"evalboard_reports":         handleReports,
	"evalboard_report":          handleReport,
	"evalboard_compare_latency": handleCompareLatency,
	"evalboard_compare_success": handleCompareSuccess,
	"evalboard_histogram":       handleHistogram,
	"evalboard_cache_stats":     handleCacheStats,
	"evalboard_fetch_history":   handleFetchHistory,
}

var reportsProperty = map[string]any{
	"type":        "array",
	"items":       map[string]any{"type": "string"},
	"minItems":    compare.MinReports,
	"maxItems":    compare.MaxReports,
	"description": "Cached report signatures (tracker|subject|grade|type|view) to compare",
}

// allTools is the list of tool definitions exposed via tools/list.
var allTools = []ToolDefinition{
	{
		Name:        "evalboard_reports",
		Description: "List cached experiment reports, most recently fetched first.",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
	},
	{
		Name:        "evalboard_report",
		Description: "Show the per-difficulty rows and summary of one cached report.",
		InputSchema: map[string]any{
			"type":     "object",
			"required": []string{"signature"},
			"properties": map[string]any{
				"signature": map[string]any{
					"type":        "string",
					"description": "Report signature, e.g. exp-A|ela|||",
				},
			},
		},
	},
	{
		Name:        "evalboard_compare_latency",
		Description: "Compare median and p90 latency in seconds per difficulty across 2 to 4 cached reports.",
		InputSchema: map[string]any{
			"type":     "object",
			"required": []string{"reports"},
			"properties": map[string]any{
				"reports": reportsProperty,
				"metric": map[string]any{
					"type":        "string",
					"enum":        []string{"ttft", "total_generation"},
					"description": "Latency metric (optional, defaults to ttft)",
				},
			},
		},
	},
	{
		Name:        "evalboard_compare_success",
		Description: "Compare questions above threshold per difficulty across 2 to 4 cached reports.",
		InputSchema: map[string]any{
			"type":     "object",
			"required": []string{"reports"},
			"properties": map[string]any{
				"reports": reportsProperty,
			},
		},
	},
	{
		Name:        "evalboard_histogram",
		Description: "Show the score distribution in 10 buckets for one difficulty across 2 to 4 cached reports.",
		InputSchema: map[string]any{
			"type":     "object",
			"required": []string{"reports", "difficulty"},
			"properties": map[string]any{
				"reports": reportsProperty,
				"difficulty": map[string]any{
					"type":        "string",
					"enum":        []string{"Easy", "Medium", "Hard"},
					"description": "Difficulty tier",
				},
			},
		},
	},
	{
		Name:        "evalboard_cache_stats",
		Description: "Show report cache statistics (entries, capacity, hits, misses, evictions).",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
	},
	{
		Name:        "evalboard_fetch_history",
		Description: "Search the log of report fetch attempts with optional filters.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"experiment_tracker": map[string]any{
					"type":        "string",
					"description": "Filter by experiment tracker (optional)",
				},
				"outcome": map[string]any{
					"type":        "string",
					"enum":        []string{"success", "error"},
					"description": "Filter by outcome (optional)",
				},
				"since": map[string]any{
					"type":        "string",
					"description": "Start date in YYYY-MM-DD format (optional)",
				},
			},
		},
	},
}

func textResult(text string) ToolCallResult {
	return ToolCallResult{
		Content: []ContentBlock{{Type: "text", Text: text}},
	}
}

func errorResult(text string) ToolCallResult {
	return ToolCallResult{
		Content: []ContentBlock{{Type: "text", Text: text}},
		IsError: true,
	}
}

// appErrorResult renders domain errors with their code so clients can tell an
// invalid selection from a missing report.
func appErrorResult(prefix string, err error) ToolCallResult {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return errorResult(prefix + ": [" + appErr.Code + "] " + appErr.Message)
	}
	return errorResult(prefix + ": " + err.Error())
}

func decodeArgs(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}

func parseKeys(sigs []string) []models.FilterKey {
	keys := make([]models.FilterKey, 0, len(sigs))
	for _, sig := range sigs {
		keys = append(keys, models.ParseSignature(sig))
	}
	return keys
}

func handleReports(ctx context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	return textResult(formatReportList(s.store.List(ctx)))
}

func handleReport(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	var args signatureArgs
	if err := decodeArgs(rawArgs, &args); err != nil {
		return errorResult("Invalid arguments: " + err.Error())
	}
	if args.Signature == "" {
		return errorResult("signature is required")
	}
	r, ok := s.store.Peek(ctx, models.ParseSignature(args.Signature))
	if !ok {
		return errorResult("Report not cached: " + args.Signature)
	}
	return textResult(formatReport(r))
}

func handleCompareLatency(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	var args compareArgs
	if err := decodeArgs(rawArgs, &args); err != nil {
		return errorResult("Invalid arguments: " + err.Error())
	}
	metric := compare.MetricTTFT
	if args.Metric != "" {
		m, err := compare.ParseMetric(args.Metric)
		if err != nil {
			return appErrorResult("Error comparing latency", err)
		}
		metric = m
	}
	table, err := s.engine.Latency(ctx, parseKeys(args.Reports), metric)
	if err != nil {
		return appErrorResult("Error comparing latency", err)
	}
	return textResult(formatLatencyTable(table))
}

func handleCompareSuccess(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	var args compareArgs
	if err := decodeArgs(rawArgs, &args); err != nil {
		return errorResult("Invalid arguments: " + err.Error())
	}
	table, err := s.engine.SuccessRate(ctx, parseKeys(args.Reports))
	if err != nil {
		return appErrorResult("Error comparing success rates", err)
	}
	return textResult(formatSuccessTable(table))
}

func handleHistogram(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	var args compareArgs
	if err := decodeArgs(rawArgs, &args); err != nil {
		return errorResult("Invalid arguments: " + err.Error())
	}
	d, ok := models.ParseDifficulty(args.Difficulty)
	if !ok {
		return errorResult("difficulty must be Easy, Medium, or Hard")
	}
	h, err := s.engine.Histogram(ctx, parseKeys(args.Reports), d)
	if err != nil {
		return appErrorResult("Error building histogram", err)
	}
	return textResult(formatHistogram(h))
}

func handleCacheStats(ctx context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	return textResult(formatCacheStats(s.store.Stats(ctx)))
}

func handleFetchHistory(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	if s.history == nil {
		return textResult("Fetch history is not configured.")
	}
	var args historyArgs
	if err := decodeArgs(rawArgs, &args); err != nil {
		return errorResult("Invalid arguments: " + err.Error())
	}

	opts := models.HistoryQueryOpts{
		ExperimentTracker: args.ExperimentTracker,
		Outcome:           models.FetchOutcome(args.Outcome),
		Limit:             50,
	}
	if args.Since != "" {
		t, err := time.Parse("2006-01-02", args.Since)
		if err != nil {
			return errorResult("Invalid since date (use YYYY-MM-DD): " + err.Error())
		}
		opts.Since = t
	}

	records, err := s.history.Query(ctx, opts)
	if err != nil {
		return errorResult("Error searching fetch history: " + err.Error())
	}
	return textResult(formatFetchRecords(records))
}
