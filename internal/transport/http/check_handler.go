package http

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	apierrors "licensegate/internal/errors"
	"licensegate/internal/infrastructure"
	"licensegate/internal/ledger"
)

// validate is the shared request validator instance.
var validate = validator.New()

// CheckHandler serves the unauthenticated, high-frequency check surface.
type CheckHandler struct {
	ledger  LedgerService
	metrics *infrastructure.Metrics
	logger  *slog.Logger
}

// NewCheckHandler creates a new check handler
func NewCheckHandler(l LedgerService, metrics *infrastructure.Metrics, logger *slog.Logger) *CheckHandler {
	return &CheckHandler{
		ledger:  l,
		metrics: metrics,
		logger:  logger.With(slog.String("handler", "check")),
	}
}

// CheckRequest is the client check-in payload.
type CheckRequest struct {
	CompanyKey string `json:"company_key" validate:"required,max=255"`
	DeviceID   string `json:"device_id" validate:"required,max=255"`
	Hostname   string `json:"hostname,omitempty" validate:"max=255"`
}

// Bind implements the render.Binder interface.
func (c *CheckRequest) Bind(r *http.Request) error {
	c.CompanyKey = strings.TrimSpace(c.CompanyKey)
	c.DeviceID = strings.TrimSpace(c.DeviceID)
	c.Hostname = strings.TrimSpace(c.Hostname)

	if err := validate.Struct(c); err != nil {
		return errors.New("company_key and device_id are required")
	}
	return nil
}

// CheckResponse is the boolean-style answer the client acts on. Status
// is either "authorized" or "not_authorized"; the negative reasons are
// deliberately indistinguishable.
type CheckResponse struct {
	Authorized bool   `json:"authorized"`
	Status     string `json:"status"`
	Message    string `json:"message"`
}

// Check handles POST /api/check.
func (h *CheckHandler) Check(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()
	tracer := otel.Tracer("check-handler")

	ctx, span := tracer.Start(ctx, "check_handler.check",
		trace.WithAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.route", "/api/check"),
		),
	)
	defer span.End()

	data := &CheckRequest{}
	if err := render.Bind(r, data); err != nil {
		span.RecordError(err)
		h.metrics.ChecksTotal.WithLabelValues("malformed").Inc()

		problem := apierrors.MalformedRequest(err.Error(), r.URL.Path)
		problem.WithExtension("trace_id", infrastructure.GetTraceID(ctx))
		render.Render(w, r, problem)
		return
	}

	result, err := h.ledger.Check(ctx, data.CompanyKey, data.DeviceID, data.Hostname)
	if err != nil {
		span.RecordError(err)
		h.metrics.ChecksTotal.WithLabelValues("error").Inc()
		if errors.Is(err, ledger.ErrTransientStore) {
			h.metrics.StoreContentions.Inc()
		}

		h.logger.ErrorContext(ctx, "check failed",
			slog.String("company_key", data.CompanyKey),
			slog.String("device_id", data.DeviceID),
			slog.String("error", err.Error()),
			slog.Duration("latency", time.Since(start)))

		// Transient store errors are the only retryable kind; everything
		// else is an opaque 503 too, since the anonymous caller has no
		// use for the distinction.
		problem := apierrors.NewProblemDetails(
			http.StatusServiceUnavailable,
			apierrors.TypeServiceDown,
			"Service Temporarily Unavailable",
			"Unable to answer the check right now; retry shortly",
			r.URL.Path,
		).WithExtension("trace_id", infrastructure.GetTraceID(ctx))
		render.Render(w, r, problem)
		return
	}

	span.SetAttributes(
		attribute.Bool("check.authorized", result.Authorized()),
		attribute.Int64("request.latency_ms", time.Since(start).Milliseconds()),
	)
	h.metrics.ChecksTotal.WithLabelValues(string(result)).Inc()

	h.logger.DebugContext(ctx, "check completed",
		slog.String("company_key", data.CompanyKey),
		slog.String("device_id", data.DeviceID),
		slog.String("result", string(result)),
		slog.Duration("latency", time.Since(start)))

	if result.Authorized() {
		render.JSON(w, r, CheckResponse{
			Authorized: true,
			Status:     "authorized",
			Message:    "OK",
		})
		return
	}

	// One undifferentiated negative for revoked, unknown and blocked.
	render.JSON(w, r, CheckResponse{
		Authorized: false,
		Status:     "not_authorized",
		Message:    "Device is not authorized",
	})
}
