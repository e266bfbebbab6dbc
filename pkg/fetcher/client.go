// Package fetcher calls the experiment report endpoint.
package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/evalboard/evalboard/pkg/models"
)

// Options configures a Client.
type Options struct {
	BaseURL           string
	Path              string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
	MinTotalQuestions int
	HTTPClient        *http.Client
}

// Client fetches reports over HTTP.
type Client struct {
	base    *url.URL
	opts    Options
	http    *http.Client
	limiter *rate.Limiter
}

// reportResponse is the endpoint body. Error is set instead of the payload
// when the server could not build the report.
type reportResponse struct {
	models.ReportData
	Error string `json:"error,omitempty"`
}

// New creates a Client. A zero RequestsPerSecond disables throttling.
func New(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("report endpoint base URL is required")
	}
	base, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid report endpoint URL: %w", err)
	}
	if opts.Path == "" {
		opts.Path = "/api/experiment-report"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	burst := opts.Burst
	if burst < 1 {
		burst = 1
	}

	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: opts.Timeout}
	}

	return &Client{
		base:    base,
		opts:    opts,
		http:    hc,
		limiter: rate.NewLimiter(limit, burst),
	}, nil
}

// Fetch retrieves the report for key. It matches coordinator.FetchFunc.
func (c *Client) Fetch(ctx context.Context, key models.FilterKey) (*models.ReportData, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.requestURL(key), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("report request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var out reportResponse
	decodeErr := json.Unmarshal(body, &out)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if decodeErr == nil && out.Error != "" {
			return nil, fmt.Errorf("report endpoint returned %d: %s", resp.StatusCode, out.Error)
		}
		return nil, fmt.Errorf("report endpoint returned %d", resp.StatusCode)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("decode report: %w", decodeErr)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("report endpoint: %s", out.Error)
	}
	return &out.ReportData, nil
}

// requestURL builds the endpoint URL. Optional filters are omitted when
// empty so the server sees them as null.
func (c *Client) requestURL(key models.FilterKey) string {
	key = key.Normalize()
	u := *c.base
	u.Path = strings.TrimSuffix(u.Path, "/") + c.opts.Path

	q := u.Query()
	q.Set("experiment_tracker", key.ExperimentTracker)
	q.Set("subject", key.Subject)
	if key.GradeLevel != "" {
		q.Set("grade_level", key.GradeLevel)
	}
	if key.QuestionType != "" {
		q.Set("question_type", key.QuestionType)
	}
	if key.ViewMode != "" {
		q.Set("view_mode", string(key.ViewMode))
	}
	if c.opts.MinTotalQuestions > 0 {
		q.Set("min_total_questions", strconv.Itoa(c.opts.MinTotalQuestions))
	}
	u.RawQuery = q.Encode()
	return u.String()
}
