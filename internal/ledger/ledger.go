package ledger

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Ledger enforces every state-transition rule over companies and
// devices. All mutations flow through it; the HTTP boundary never
// touches the store directly.
type Ledger struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

// New creates a ledger backed by the given store.
func New(store Store, logger *slog.Logger) *Ledger {
	return &Ledger{
		store:  store,
		logger: logger.With(slog.String("component", "ledger")),
		now:    time.Now,
	}
}

// CreateCompany persists a new company account. The key is immutable
// once assigned. A duplicate key fails with ErrCompanyExists and leaves
// the original company untouched; creation is deliberately not
// idempotent so an admin typo cannot silently alias two tenants.
func (l *Ledger) CreateCompany(ctx context.Context, companyKey, name string) (*Company, error) {
	if name == "" {
		name = companyKey
	}
	company := &Company{
		Key:       companyKey,
		Name:      name,
		Status:    CompanyActive,
		CreatedAt: l.now().UTC(),
	}
	if err := l.store.CreateCompany(ctx, company); err != nil {
		return nil, err
	}

	l.logger.InfoContext(ctx, "company created",
		slog.String("company_key", company.Key),
		slog.String("name", company.Name))
	return company, nil
}

// SetCompanyStatus flips a company between active and blocked. A blocked
// company fails every device check regardless of device status.
// Idempotent: re-applying the current status is not an error.
func (l *Ledger) SetCompanyStatus(ctx context.Context, companyKey string, status CompanyStatus) (*Company, error) {
	company, err := l.store.SetCompanyStatus(ctx, companyKey, status)
	if err != nil {
		return nil, err
	}

	l.logger.InfoContext(ctx, "company status updated",
		slog.String("company_key", companyKey),
		slog.String("status", string(status)))
	return company, nil
}

// AuthorizeDevice grants the device access under the company. If the
// device does not exist it is created authorized; if it does, its status
// is overwritten to authorized with a fresh authorized_at. revoked_at is
// left as-is so the last revocation stays auditable. Idempotent.
func (l *Ledger) AuthorizeDevice(ctx context.Context, companyKey, deviceID string) (*Device, error) {
	now := l.now().UTC()
	device, err := l.store.MutateDevice(ctx, companyKey, deviceID, func(_ *Company, d *Device) (*Device, error) {
		if d == nil {
			d = &Device{
				CompanyKey: companyKey,
				DeviceID:   deviceID,
				CreatedAt:  now,
			}
		}
		d.Status = DeviceAuthorized
		d.AuthorizedAt = &now
		return d, nil
	})
	if err != nil {
		return nil, err
	}

	l.logger.InfoContext(ctx, "device authorized",
		slog.String("company_key", companyKey),
		slog.String("device_id", deviceID))
	return device, nil
}

// RevokeDevice withdraws the device's authorization. The device must
// already exist: revocation of a never-created device is ErrUnknownDevice
// rather than a silent no-op, so admins learn about stale inventories.
// Re-revoking an already revoked device only refreshes revoked_at.
func (l *Ledger) RevokeDevice(ctx context.Context, companyKey, deviceID string) (*Device, error) {
	now := l.now().UTC()
	device, err := l.store.MutateDevice(ctx, companyKey, deviceID, func(_ *Company, d *Device) (*Device, error) {
		if d == nil {
			return nil, ErrUnknownDevice
		}
		d.Status = DeviceRevoked
		d.RevokedAt = &now
		return d, nil
	})
	if err != nil {
		return nil, err
	}

	l.logger.InfoContext(ctx, "device revoked",
		slog.String("company_key", companyKey),
		slog.String("device_id", deviceID))
	return device, nil
}

// Check reports the device's current authorization status. Every outcome
// is a normal result: a missing company or device is not an error here.
// Only an authorized outcome writes anything: last_check_at (and the
// reported hostname, if any) are committed in the same atomic
// read-modify-write that observed the authorized status, so the recorded
// check-in can never belong to a device that was already revoked.
func (l *Ledger) Check(ctx context.Context, companyKey, deviceID, hostname string) (CheckResult, error) {
	result := CheckUnknownDevice
	_, err := l.store.MutateDevice(ctx, companyKey, deviceID, func(c *Company, d *Device) (*Device, error) {
		switch {
		case d == nil:
			result = CheckUnknownDevice
			return nil, nil
		case c.Status == CompanyBlocked:
			result = CheckCompanyBlocked
			return nil, nil
		case d.Status != DeviceAuthorized:
			result = CheckRevoked
			return nil, nil
		}

		now := l.now().UTC()
		d.LastCheckAt = &now
		if hostname != "" {
			d.Hostname = hostname
		}
		result = CheckAuthorized
		return d, nil
	})
	if err != nil {
		if errors.Is(err, ErrUnknownCompany) {
			return CheckUnknownCompany, nil
		}
		return "", err
	}

	return result, nil
}

// ListDevices returns every device owned by the company, ordered by
// device_id for deterministic output.
func (l *Ledger) ListDevices(ctx context.Context, companyKey string) ([]*Device, error) {
	return l.store.ListDevices(ctx, companyKey)
}
