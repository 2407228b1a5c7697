package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	apierrors "licensegate/internal/errors"
	"licensegate/internal/infrastructure"
	"licensegate/internal/ledger"
)

// AdminHandler maps the admin directives onto ledger calls. The caller
// is already authenticated by the AdminAuth middleware; nothing here
// re-checks the credential.
type AdminHandler struct {
	ledger  LedgerService
	errorsH *apierrors.ErrorHandler
	metrics *infrastructure.Metrics
	logger  *slog.Logger
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(l LedgerService, errorsH *apierrors.ErrorHandler, metrics *infrastructure.Metrics, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		ledger:  l,
		errorsH: errorsH,
		metrics: metrics,
		logger:  logger.With(slog.String("handler", "admin")),
	}
}

// Routes returns a chi router for the admin endpoints.
func (h *AdminHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/company", h.CreateCompany)
	r.Post("/company/status", h.SetCompanyStatus)
	r.Post("/device/authorize", h.AuthorizeDevice)
	r.Post("/device/revoke", h.RevokeDevice)
	r.Get("/devices", h.ListDevices)

	return r
}

// CreateCompanyRequest is the create-company payload.
type CreateCompanyRequest struct {
	CompanyKey string `json:"company_key" validate:"required,max=255"`
	Name       string `json:"name,omitempty" validate:"max=255"`
}

// Bind implements the render.Binder interface.
func (c *CreateCompanyRequest) Bind(r *http.Request) error {
	c.CompanyKey = strings.TrimSpace(c.CompanyKey)
	c.Name = strings.TrimSpace(c.Name)

	if err := validate.Struct(c); err != nil {
		return errors.New("company_key is required")
	}
	return nil
}

// CompanyStatusRequest flips a company between active and blocked.
type CompanyStatusRequest struct {
	CompanyKey string `json:"company_key" validate:"required,max=255"`
	Status     string `json:"status" validate:"required"`
}

// Bind implements the render.Binder interface.
func (c *CompanyStatusRequest) Bind(r *http.Request) error {
	c.CompanyKey = strings.TrimSpace(c.CompanyKey)
	c.Status = strings.ToLower(strings.TrimSpace(c.Status))

	if err := validate.Struct(c); err != nil {
		return errors.New("company_key and status are required")
	}
	if !ledger.CompanyStatus(c.Status).Valid() {
		return fmt.Errorf("status must be %q or %q", ledger.CompanyActive, ledger.CompanyBlocked)
	}
	return nil
}

// DeviceRequest addresses a single device by its composite key.
type DeviceRequest struct {
	CompanyKey string `json:"company_key" validate:"required,max=255"`
	DeviceID   string `json:"device_id" validate:"required,max=255"`
}

// Bind implements the render.Binder interface.
func (d *DeviceRequest) Bind(r *http.Request) error {
	d.CompanyKey = strings.TrimSpace(d.CompanyKey)
	d.DeviceID = strings.TrimSpace(d.DeviceID)

	if err := validate.Struct(d); err != nil {
		return errors.New("company_key and device_id are required")
	}
	return nil
}

// DeviceListResponse wraps the ordered device summaries for a company.
type DeviceListResponse struct {
	CompanyKey string           `json:"company_key"`
	Devices    []*ledger.Device `json:"devices"`
}

// CreateCompany handles POST /admin/company.
func (h *AdminHandler) CreateCompany(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.startSpan(r, "create_company")
	defer span.End()

	data := &CreateCompanyRequest{}
	if err := render.Bind(r, data); err != nil {
		h.malformed(w, r, span, "create_company", err)
		return
	}

	company, err := h.ledger.CreateCompany(ctx, data.CompanyKey, data.Name)
	if err != nil {
		h.fail(w, r.WithContext(ctx), span, "create_company", err)
		return
	}

	h.metrics.AdminOpsTotal.WithLabelValues("create_company", "ok").Inc()
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, company)
}

// SetCompanyStatus handles POST /admin/company/status.
func (h *AdminHandler) SetCompanyStatus(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.startSpan(r, "set_company_status")
	defer span.End()

	data := &CompanyStatusRequest{}
	if err := render.Bind(r, data); err != nil {
		h.malformed(w, r, span, "set_company_status", err)
		return
	}

	company, err := h.ledger.SetCompanyStatus(ctx, data.CompanyKey, ledger.CompanyStatus(data.Status))
	if err != nil {
		h.fail(w, r.WithContext(ctx), span, "set_company_status", err)
		return
	}

	h.metrics.AdminOpsTotal.WithLabelValues("set_company_status", "ok").Inc()
	render.JSON(w, r, company)
}

// AuthorizeDevice handles POST /admin/device/authorize.
func (h *AdminHandler) AuthorizeDevice(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.startSpan(r, "authorize_device")
	defer span.End()

	data := &DeviceRequest{}
	if err := render.Bind(r, data); err != nil {
		h.malformed(w, r, span, "authorize_device", err)
		return
	}

	device, err := h.ledger.AuthorizeDevice(ctx, data.CompanyKey, data.DeviceID)
	if err != nil {
		h.fail(w, r.WithContext(ctx), span, "authorize_device", err)
		return
	}

	span.SetAttributes(attribute.String("device.status", string(device.Status)))
	h.metrics.AdminOpsTotal.WithLabelValues("authorize_device", "ok").Inc()
	render.JSON(w, r, device)
}

// RevokeDevice handles POST /admin/device/revoke.
func (h *AdminHandler) RevokeDevice(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.startSpan(r, "revoke_device")
	defer span.End()

	data := &DeviceRequest{}
	if err := render.Bind(r, data); err != nil {
		h.malformed(w, r, span, "revoke_device", err)
		return
	}

	device, err := h.ledger.RevokeDevice(ctx, data.CompanyKey, data.DeviceID)
	if err != nil {
		h.fail(w, r.WithContext(ctx), span, "revoke_device", err)
		return
	}

	span.SetAttributes(attribute.String("device.status", string(device.Status)))
	h.metrics.AdminOpsTotal.WithLabelValues("revoke_device", "ok").Inc()
	render.JSON(w, r, device)
}

// ListDevices handles GET /admin/devices?company_key=...
func (h *AdminHandler) ListDevices(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.startSpan(r, "list_devices")
	defer span.End()

	companyKey := strings.TrimSpace(r.URL.Query().Get("company_key"))
	if companyKey == "" {
		h.malformed(w, r, span, "list_devices", errors.New("company_key query parameter is required"))
		return
	}

	devices, err := h.ledger.ListDevices(ctx, companyKey)
	if err != nil {
		h.fail(w, r.WithContext(ctx), span, "list_devices", err)
		return
	}

	span.SetAttributes(attribute.Int("devices.count", len(devices)))
	h.metrics.AdminOpsTotal.WithLabelValues("list_devices", "ok").Inc()
	render.JSON(w, r, DeviceListResponse{
		CompanyKey: companyKey,
		Devices:    devices,
	})
}

// startSpan opens the handler span and stamps the common attributes.
func (h *AdminHandler) startSpan(r *http.Request, operation string) (context.Context, trace.Span) {
	tracer := otel.Tracer("admin-handler")
	return tracer.Start(r.Context(), "admin_handler."+operation,
		trace.WithAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.route", r.URL.Path),
			attribute.String("operation", operation),
		),
	)
}

// malformed rejects a request that failed binding or validation.
func (h *AdminHandler) malformed(w http.ResponseWriter, r *http.Request, span trace.Span, operation string, err error) {
	span.RecordError(err)
	h.metrics.AdminOpsTotal.WithLabelValues(operation, "malformed").Inc()

	h.logger.WarnContext(r.Context(), "malformed admin request",
		slog.String("operation", operation),
		slog.String("error", err.Error()))

	problem := apierrors.MalformedRequest(err.Error(), r.URL.Path)
	problem.WithExtension("trace_id", infrastructure.GetTraceID(r.Context()))
	render.Render(w, r, problem)
}

// fail surfaces a ledger error through the centralized problem mapping.
func (h *AdminHandler) fail(w http.ResponseWriter, r *http.Request, span trace.Span, operation string, err error) {
	span.RecordError(err)
	h.metrics.AdminOpsTotal.WithLabelValues(operation, "error").Inc()
	if errors.Is(err, ledger.ErrTransientStore) {
		h.metrics.StoreContentions.Inc()
	}

	h.errorsH.HandleError(w, r, err)
}
