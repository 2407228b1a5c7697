package errors

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	"licensegate/internal/infrastructure"
	"licensegate/internal/ledger"
)

// ErrorHandler provides centralized error handling for admin responses.
// The check path never goes through here: its negative outcomes are
// normal results, not errors.
type ErrorHandler struct {
	logger *slog.Logger
}

// NewErrorHandler creates a new error handler
func NewErrorHandler(logger *slog.Logger) *ErrorHandler {
	return &ErrorHandler{
		logger: logger.With(slog.String("component", "error_handler")),
	}
}

// HandleError converts any error to RFC 7807 format and responds
func (h *ErrorHandler) HandleError(w http.ResponseWriter, r *http.Request, err error) {
	if err == nil {
		return
	}

	traceID := infrastructure.GetTraceID(r.Context())

	h.logger.ErrorContext(r.Context(), "request failed",
		slog.String("error", err.Error()),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
	)

	problem := h.ErrorToProblem(err, r)
	problem.WithExtension("trace_id", traceID)

	render.Render(w, r, problem)
}

// ErrorToProblem converts an error to RFC 7807 Problem Details. Ledger
// sentinels map to distinct problem types so admin clients can tell
// "company already exists" from "unauthorized"; everything unknown
// collapses to an internal error with no detail leaked.
func (h *ErrorHandler) ErrorToProblem(err error, r *http.Request) *ProblemDetails {
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return NewProblemDetails(
			http.StatusGatewayTimeout,
			TypeTimeout,
			"Request Timeout",
			"The request took too long to process and was cancelled",
			r.URL.Path,
		)

	case errors.Is(err, ledger.ErrCompanyExists):
		return NewProblemDetails(
			http.StatusConflict,
			TypeCompanyExists,
			"Company Already Exists",
			"A company with this key has already been created",
			r.URL.Path,
		)

	case errors.Is(err, ledger.ErrUnknownCompany):
		return NewProblemDetails(
			http.StatusNotFound,
			TypeUnknownCompany,
			"Unknown Company",
			"No company exists for the given company_key",
			r.URL.Path,
		)

	case errors.Is(err, ledger.ErrUnknownDevice):
		return NewProblemDetails(
			http.StatusNotFound,
			TypeUnknownDevice,
			"Unknown Device",
			"No device exists for the given company_key and device_id",
			r.URL.Path,
		)

	case errors.Is(err, ledger.ErrTransientStore):
		return NewProblemDetails(
			http.StatusServiceUnavailable,
			TypeTransientStore,
			"Storage Temporarily Unavailable",
			"The request hit storage contention; it is safe to retry",
			r.URL.Path,
		).WithExtension("retryable", true)
	}

	var problem *ProblemDetails
	if errors.As(err, &problem) {
		return problem
	}

	return NewProblemDetails(
		http.StatusInternalServerError,
		TypeInternal,
		"Internal Server Error",
		"An unexpected error occurred",
		r.URL.Path,
	)
}

// Unauthorized builds the problem returned for a bad or missing admin
// credential.
func Unauthorized(instance string) *ProblemDetails {
	return NewProblemDetails(
		http.StatusUnauthorized,
		TypeUnauthorized,
		"Unauthorized",
		"A valid X-Admin-Token header is required",
		instance,
	)
}

// MalformedRequest builds the problem returned for an unparseable or
// invalid request body, before the ledger is ever invoked.
func MalformedRequest(detail, instance string) *ProblemDetails {
	return NewProblemDetails(
		http.StatusBadRequest,
		TypeValidation,
		"Malformed Request",
		detail,
		instance,
	)
}
