package ledger

import "errors"

// Sentinel errors returned by ledger operations and the store.
// The HTTP boundary maps each to a distinct problem response on admin
// paths; the check path never surfaces them to the caller.
var (
	// ErrCompanyExists is returned by CreateCompany when the key is taken.
	ErrCompanyExists = errors.New("company already exists")

	// ErrUnknownCompany is returned when an operation references a
	// company that was never created.
	ErrUnknownCompany = errors.New("unknown company")

	// ErrUnknownDevice is returned when an operation references a device
	// that was never created for that company.
	ErrUnknownDevice = errors.New("unknown device")

	// ErrTransientStore indicates storage-layer contention or
	// unavailability. It is the only error a caller should retry.
	ErrTransientStore = errors.New("transient store error")
)
