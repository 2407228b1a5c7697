package errors

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"licensegate/internal/ledger"
)

func TestErrorToProblem(t *testing.T) {
	handler := NewErrorHandler(slog.New(slog.NewTextHandler(io.Discard, nil)))
	req := httptest.NewRequest(http.MethodPost, "/admin/device/revoke", nil)

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantType   string
	}{
		{"company exists", ledger.ErrCompanyExists, http.StatusConflict, TypeCompanyExists},
		{"unknown company", ledger.ErrUnknownCompany, http.StatusNotFound, TypeUnknownCompany},
		{"unknown device", ledger.ErrUnknownDevice, http.StatusNotFound, TypeUnknownDevice},
		{"transient store", ledger.ErrTransientStore, http.StatusServiceUnavailable, TypeTransientStore},
		{"wrapped sentinel", fmt.Errorf("revoke: %w", ledger.ErrUnknownDevice), http.StatusNotFound, TypeUnknownDevice},
		{"deadline exceeded", context.DeadlineExceeded, http.StatusGatewayTimeout, TypeTimeout},
		{"cancelled", context.Canceled, http.StatusGatewayTimeout, TypeTimeout},
		{"anything else", fmt.Errorf("disk on fire"), http.StatusInternalServerError, TypeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			problem := handler.ErrorToProblem(tt.err, req)
			assert.Equal(t, tt.wantStatus, problem.Status)
			assert.Equal(t, tt.wantType, problem.Type)
			assert.Equal(t, "/admin/device/revoke", problem.Instance)
		})
	}

	t.Run("internal errors leak no detail", func(t *testing.T) {
		problem := handler.ErrorToProblem(fmt.Errorf("pq: password authentication failed for user admin"), req)
		assert.NotContains(t, problem.Detail, "password")
	})

	t.Run("transient store is flagged retryable", func(t *testing.T) {
		problem := handler.ErrorToProblem(ledger.ErrTransientStore, req)
		assert.Equal(t, true, problem.Extensions["retryable"])
	})

	t.Run("problem details pass through unchanged", func(t *testing.T) {
		original := NewProblemDetails(http.StatusTeapot, "/errors/teapot", "Teapot", "short and stout", "/x")
		problem := handler.ErrorToProblem(original, req)
		assert.Equal(t, original, problem)
	})
}

func TestHandleError(t *testing.T) {
	handler := NewErrorHandler(slog.New(slog.NewTextHandler(io.Discard, nil)))

	req := httptest.NewRequest(http.MethodPost, "/admin/company", nil)
	rec := httptest.NewRecorder()
	handler.HandleError(rec, req, ledger.ErrCompanyExists)

	assert.Equal(t, http.StatusConflict, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, TypeCompanyExists, body["type"])
	assert.Equal(t, float64(http.StatusConflict), body["status"])
	assert.Contains(t, body, "trace_id")
}

func TestProblemDetailsMarshal(t *testing.T) {
	problem := NewProblemDetails(http.StatusBadRequest, TypeValidation, "Malformed Request", "company_key is required", "/admin/company").
		WithExtension("trace_id", "abc-123")

	data, err := json.Marshal(problem)
	require.NoError(t, err)

	var body map[string]any
	require.NoError(t, json.Unmarshal(data, &body))
	assert.Equal(t, TypeValidation, body["type"])
	assert.Equal(t, "company_key is required", body["detail"])
	assert.Equal(t, "abc-123", body["trace_id"])
}
