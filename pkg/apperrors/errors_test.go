package apperrors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *AppError
		want string
	}{
		{
			name: "without wrapped error",
			err:  InvalidFilter("subject is required"),
			want: "INVALID_FILTER: subject is required",
		},
		{
			name: "with wrapped error",
			err:  Wrap(CodeInternal, "something failed", errors.New("underlying")),
			want: "INTERNAL_ERROR: something failed: underlying",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAppError_HTTPStatus(t *testing.T) {
	tests := []struct {
		code   string
		status int
	}{
		{CodeInvalidFilter, http.StatusBadRequest},
		{CodeInvalidComparison, http.StatusBadRequest},
		{CodeInvalidRequest, http.StatusBadRequest},
		{CodeNotFound, http.StatusNotFound},
		{CodeFetchFailed, http.StatusBadGateway},
		{CodeUnavailable, http.StatusServiceUnavailable},
		{CodeCacheCorrupt, http.StatusInternalServerError},
		{CodeInternal, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			if got := New(tt.code, "x").HTTPStatus(); got != tt.status {
				t.Errorf("HTTPStatus() = %d, want %d", got, tt.status)
			}
		})
	}
}

func TestFetchFailedUnwraps(t *testing.T) {
	cause := errors.New("connection refused")
	err := fmt.Errorf("load: %w", FetchFailed("exp-A|ela|||", cause))

	if !IsCode(err, CodeFetchFailed) {
		t.Error("expected FETCH_FAILED through wrapping")
	}
	if !errors.Is(err, cause) {
		t.Error("expected cause to be reachable with errors.Is")
	}
	if IsCode(err, CodeInvalidFilter) {
		t.Error("unexpected INVALID_FILTER match")
	}
	if IsCode(cause, CodeFetchFailed) {
		t.Error("plain error should not match any code")
	}
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, NotFound("report"))

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
	var body ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Code != CodeNotFound || body.Error != "report not found" {
		t.Errorf("unexpected body: %+v", body)
	}

	rec = httptest.NewRecorder()
	WriteError(rec, errors.New("secret database path"))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Error != "internal server error" {
		t.Errorf("internal details leaked: %+v", body)
	}
}
