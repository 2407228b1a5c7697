package http

import (
	"context"

	"licensegate/internal/ledger"
)

// LedgerService is the slice of the ledger the handlers depend on.
// *ledger.Ledger satisfies it; tests substitute a mock.
type LedgerService interface {
	CreateCompany(ctx context.Context, companyKey, name string) (*ledger.Company, error)
	SetCompanyStatus(ctx context.Context, companyKey string, status ledger.CompanyStatus) (*ledger.Company, error)
	AuthorizeDevice(ctx context.Context, companyKey, deviceID string) (*ledger.Device, error)
	RevokeDevice(ctx context.Context, companyKey, deviceID string) (*ledger.Device, error)
	Check(ctx context.Context, companyKey, deviceID, hostname string) (ledger.CheckResult, error)
	ListDevices(ctx context.Context, companyKey string) ([]*ledger.Device, error)
}
