// Package api serves the report cache and comparisons as JSON over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/evalboard/evalboard/pkg/apperrors"
	"github.com/evalboard/evalboard/pkg/compare"
	"github.com/evalboard/evalboard/pkg/coordinator"
	"github.com/evalboard/evalboard/pkg/logger"
	"github.com/evalboard/evalboard/pkg/models"
)

const maxBodyBytes = 1 << 20

// Server is the dashboard API.
type Server struct {
	listen string
	coord  *coordinator.Coordinator
	engine *compare.Engine
	fetch  coordinator.FetchFunc
	log    *logger.Logger
	mux    *http.ServeMux
}

// New creates a Server. fetch is used for cache misses and reloads.
func New(listen string, coord *coordinator.Coordinator, fetch coordinator.FetchFunc, log *logger.Logger) *Server {
	if log == nil {
		log = logger.Discard()
	}
	s := &Server{
		listen: listen,
		coord:  coord,
		engine: compare.NewEngine(coord.Store()),
		fetch:  fetch,
		log:    log,
		mux:    http.NewServeMux(),
	}
	s.mux.HandleFunc("GET /api/reports", s.handleListReports)
	s.mux.HandleFunc("GET /api/reports/{signature}", s.handleGetReport)
	s.mux.HandleFunc("DELETE /api/reports/{signature}", s.handleDeleteReport)
	s.mux.HandleFunc("POST /api/reports/load", s.handleLoadReport)
	s.mux.HandleFunc("POST /api/compare/{kind}", s.handleCompare)
	s.mux.HandleFunc("GET /api/cache/stats", s.handleCacheStats)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// ListenAndServe starts the API server with graceful shutdown support.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.listen,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("evalboard api listening", "addr", s.listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// compareRequest is the body of the compare endpoints.
type compareRequest struct {
	Reports    []models.FilterKey `json:"reports"`
	Metric     string             `json:"metric,omitempty"`
	Difficulty string             `json:"difficulty,omitempty"`
}

func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"reports": s.coord.Store().List(r.Context())})
}

func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	key := models.ParseSignature(r.PathValue("signature"))
	report, ok := s.coord.Store().Peek(r.Context(), key)
	if !ok {
		apperrors.WriteError(w, apperrors.NotFound("cached report "+key.String()))
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleDeleteReport(w http.ResponseWriter, r *http.Request) {
	key := models.ParseSignature(r.PathValue("signature"))
	if err := s.coord.Delete(r.Context(), key); err != nil {
		s.log.WithFilter(key.Signature()).WithError(err).Error("delete cached report")
		apperrors.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLoadReport(w http.ResponseWriter, r *http.Request) {
	var key models.FilterKey
	if err := decodeBody(w, r, &key); err != nil {
		apperrors.WriteError(w, err)
		return
	}

	load := s.coord.LoadReport
	if r.URL.Query().Get("refresh") == "1" {
		load = s.coord.Reload
	}
	report, err := load(r.Context(), key, s.fetch)
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	var req compareRequest
	if err := decodeBody(w, r, &req); err != nil {
		apperrors.WriteError(w, err)
		return
	}

	ctx := r.Context()
	var (
		result any
		err    error
	)
	switch r.PathValue("kind") {
	case "latency":
		metric := compare.MetricTTFT
		if req.Metric != "" {
			if metric, err = compare.ParseMetric(req.Metric); err != nil {
				break
			}
		}
		result, err = s.engine.Latency(ctx, req.Reports, metric)
	case "success":
		result, err = s.engine.SuccessRate(ctx, req.Reports)
	case "histogram":
		d, ok := models.ParseDifficulty(req.Difficulty)
		if !ok {
			err = apperrors.InvalidRequest("difficulty must be Easy, Medium, or Hard")
			break
		}
		result, err = s.engine.Histogram(ctx, req.Reports, d)
	case "summary":
		result, err = s.engine.Summary(ctx, req.Reports)
	default:
		err = apperrors.NotFound("comparison " + r.PathValue("kind"))
	}
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.coord.Store().Stats(r.Context()))
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return apperrors.InvalidRequest("invalid JSON body: " + err.Error())
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
