package ledger

import "context"

// Store is the durability contract the ledger builds on. Companies are
// keyed by company_key, devices by the composite (company_key, device_id).
//
// Implementations must back every successful write with a durable medium
// that survives process restart, and must resolve racing writes on the
// same key to exactly one of the writes by commit order. Contention must
// fail fast with ErrTransientStore rather than retry unboundedly.
type Store interface {
	// CreateCompany persists a new company. Returns ErrCompanyExists if
	// the key is already taken; the existing row is left untouched.
	CreateCompany(ctx context.Context, company *Company) error

	// GetCompany returns the company for the key, or ErrUnknownCompany.
	GetCompany(ctx context.Context, companyKey string) (*Company, error)

	// SetCompanyStatus updates the administrative status of a company.
	// Returns ErrUnknownCompany if the key was never created.
	SetCompanyStatus(ctx context.Context, companyKey string, status CompanyStatus) (*Company, error)

	// MutateDevice runs fn as one atomic read-modify-write on the device
	// row for (companyKey, deviceID). fn receives the current row, or nil
	// if the device does not exist, and returns the replacement row to
	// commit; returning (nil, nil) commits nothing. Any error from fn
	// aborts the mutation and leaves the row exactly as it was.
	//
	// The company row is read inside the same transaction so fn can
	// trust its existence check. No rows outside the composite key are
	// locked; mutations on different devices proceed in parallel.
	MutateDevice(ctx context.Context, companyKey, deviceID string, fn DeviceMutator) (*Device, error)

	// ListDevices returns a consistent snapshot of every device owned by
	// the company, ordered by device_id. A company with no devices yields
	// an empty slice, an unknown company ErrUnknownCompany.
	ListDevices(ctx context.Context, companyKey string) ([]*Device, error)

	// Ping verifies the backing medium is reachable.
	Ping(ctx context.Context) error

	// Close releases the underlying connections.
	Close() error
}

// DeviceMutator transforms the current device row into its replacement.
// company is never nil; device is nil when the row does not exist yet.
type DeviceMutator func(company *Company, device *Device) (*Device, error)
