package http

import (
	"context"
	"io"
	"log/slog"

	"github.com/stretchr/testify/mock"

	"licensegate/internal/infrastructure"
	"licensegate/internal/ledger"
)

// testMetrics is shared by every handler test. Collectors register on
// the default Prometheus registry, so NewMetrics must run at most once
// per test binary.
var testMetrics = infrastructure.NewMetrics()

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// MockLedgerService is a testify mock of LedgerService.
type MockLedgerService struct {
	mock.Mock
}

func (m *MockLedgerService) CreateCompany(ctx context.Context, companyKey, name string) (*ledger.Company, error) {
	args := m.Called(ctx, companyKey, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.Company), args.Error(1)
}

func (m *MockLedgerService) SetCompanyStatus(ctx context.Context, companyKey string, status ledger.CompanyStatus) (*ledger.Company, error) {
	args := m.Called(ctx, companyKey, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.Company), args.Error(1)
}

func (m *MockLedgerService) AuthorizeDevice(ctx context.Context, companyKey, deviceID string) (*ledger.Device, error) {
	args := m.Called(ctx, companyKey, deviceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.Device), args.Error(1)
}

func (m *MockLedgerService) RevokeDevice(ctx context.Context, companyKey, deviceID string) (*ledger.Device, error) {
	args := m.Called(ctx, companyKey, deviceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.Device), args.Error(1)
}

func (m *MockLedgerService) Check(ctx context.Context, companyKey, deviceID, hostname string) (ledger.CheckResult, error) {
	args := m.Called(ctx, companyKey, deviceID, hostname)
	return args.Get(0).(ledger.CheckResult), args.Error(1)
}

func (m *MockLedgerService) ListDevices(ctx context.Context, companyKey string) ([]*ledger.Device, error) {
	args := m.Called(ctx, companyKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*ledger.Device), args.Error(1)
}

// compile-time interface check
var _ LedgerService = (*MockLedgerService)(nil)
