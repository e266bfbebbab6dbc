package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/evalboard/evalboard/pkg/apperrors"
	"github.com/evalboard/evalboard/pkg/compare"
	"github.com/evalboard/evalboard/pkg/coordinator"
	"github.com/evalboard/evalboard/pkg/models"
	"github.com/evalboard/evalboard/pkg/reportcache"
	"github.com/evalboard/evalboard/pkg/storage"
)

type fakeFetcher struct {
	calls atomic.Int32
	fail  bool
}

func (f *fakeFetcher) Fetch(_ context.Context, key models.FilterKey) (*models.ReportData, error) {
	f.calls.Add(1)
	if f.fail {
		return nil, errors.New("upstream returned 500")
	}
	return &models.ReportData{
		ReportRows: []models.ReportRow{{
			Difficulty: "Easy", TotalQuestions: 10, QuestionsAboveThreshold: 7, PercentageAbove: 70,
			TTFT: models.LatencyStats{Median: 1500, P90: 2500},
		}},
		Summary: models.ReportSummary{TotalQuestions: 10, QuestionsAboveThreshold: 7, SuccessRate: 70},
		ScoreSamples: []models.ScoreSample{
			{QuestionID: key.ExperimentTracker + "-q1", Difficulty: "Easy", Score: 0.8},
		},
	}, nil
}

func newTestServer(t *testing.T) (*httptest.Server, *fakeFetcher) {
	t.Helper()
	f := &fakeFetcher{}
	coord := coordinator.New(reportcache.New(storage.NewMemory()))
	t.Cleanup(coord.Close)
	ts := httptest.NewServer(New(":0", coord, f.Fetch, nil))
	t.Cleanup(ts.Close)
	return ts, f
}

func doJSON(t *testing.T, method, u, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, u, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func load(t *testing.T, ts *httptest.Server, tracker string) {
	t.Helper()
	resp := doJSON(t, http.MethodPost, ts.URL+"/api/reports/load",
		`{"experiment_tracker":"`+tracker+`","subject":"ela"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("load %s: status %d", tracker, resp.StatusCode)
	}
}

func TestLoadCachesReport(t *testing.T) {
	ts, f := newTestServer(t)

	load(t, ts, "exp-A")
	load(t, ts, "exp-A")
	if got := f.calls.Load(); got != 1 {
		t.Errorf("expected 1 fetch, got %d", got)
	}

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/reports/load?refresh=1",
		`{"experiment_tracker":"exp-A","subject":"ela"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("reload: status %d", resp.StatusCode)
	}
	if got := f.calls.Load(); got != 2 {
		t.Errorf("expected refresh to fetch again, got %d calls", got)
	}

	list := decode[struct {
		Reports []models.CachedReport `json:"reports"`
	}](t, doJSON(t, http.MethodGet, ts.URL+"/api/reports", ""))
	if len(list.Reports) != 1 {
		t.Errorf("expected 1 cached report, got %d", len(list.Reports))
	}
}

func TestLoadInvalidFilter(t *testing.T) {
	ts, f := newTestServer(t)

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/reports/load", `{"experiment_tracker":"exp-A"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
	body := decode[apperrors.ErrorResponse](t, resp)
	if body.Code != apperrors.CodeInvalidFilter {
		t.Errorf("expected %s, got %s", apperrors.CodeInvalidFilter, body.Code)
	}
	if f.calls.Load() != 0 {
		t.Error("invalid filter must not reach the fetcher")
	}
}

func TestLoadFetchFailed(t *testing.T) {
	ts, f := newTestServer(t)
	f.fail = true

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/reports/load",
		`{"experiment_tracker":"exp-A","subject":"ela"}`)
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("expected 502, got %d", resp.StatusCode)
	}
	body := decode[apperrors.ErrorResponse](t, resp)
	if body.Code != apperrors.CodeFetchFailed {
		t.Errorf("expected %s, got %s", apperrors.CodeFetchFailed, body.Code)
	}
}

func TestGetAndDeleteReport(t *testing.T) {
	ts, _ := newTestServer(t)
	load(t, ts, "exp-A")

	u := ts.URL + "/api/reports/" + url.PathEscape("exp-A|ela|||")
	resp := doJSON(t, http.MethodGet, u, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get: status %d", resp.StatusCode)
	}
	report := decode[models.CachedReport](t, resp)
	if report.FilterKey.ExperimentTracker != "exp-A" || len(report.ReportRows) != 1 {
		t.Errorf("unexpected report: %+v", report)
	}

	if resp := doJSON(t, http.MethodDelete, u, ""); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete: status %d", resp.StatusCode)
	}
	if resp := doJSON(t, http.MethodGet, u, ""); resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 after delete, got %d", resp.StatusCode)
	}
}

func TestCompareLatency(t *testing.T) {
	ts, _ := newTestServer(t)
	load(t, ts, "exp-A")
	load(t, ts, "exp-B")

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/compare/latency", `{
		"reports": [
			{"experiment_tracker":"exp-A","subject":"ela"},
			{"experiment_tracker":"exp-B","subject":"ela"}
		],
		"metric": "ttft"
	}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	table := decode[compare.LatencyTable](t, resp)
	if len(table.Reports) != 2 {
		t.Fatalf("expected 2 reports, got %d", len(table.Reports))
	}
	for _, row := range table.Rows {
		if row.Difficulty != models.DifficultyEasy {
			continue
		}
		for i, c := range row.Cells {
			if c == nil || c.MedianSec != 1.5 || c.P90Sec != 2.5 {
				t.Errorf("report %d: unexpected cell %+v", i, c)
			}
		}
	}
}

func TestCompareRejectsSingleReport(t *testing.T) {
	ts, _ := newTestServer(t)
	load(t, ts, "exp-A")

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/compare/success",
		`{"reports":[{"experiment_tracker":"exp-A","subject":"ela"}]}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
	body := decode[apperrors.ErrorResponse](t, resp)
	if body.Code != apperrors.CodeInvalidComparison {
		t.Errorf("expected %s, got %s", apperrors.CodeInvalidComparison, body.Code)
	}
}

func TestCompareHistogramNeedsDifficulty(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/compare/histogram", `{"reports":[]}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
}

func TestCompareUnknownKind(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/compare/radar", `{"reports":[]}`)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}
}

func TestCacheStats(t *testing.T) {
	ts, _ := newTestServer(t)
	load(t, ts, "exp-A")

	stats := decode[models.CacheStats](t, doJSON(t, http.MethodGet, ts.URL+"/api/cache/stats", ""))
	if stats.Entries != 1 || stats.Capacity != 10 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}
