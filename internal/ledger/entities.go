package ledger

import "time"

// CompanyStatus is the administrative state of a company account.
type CompanyStatus string

const (
	CompanyActive  CompanyStatus = "active"
	CompanyBlocked CompanyStatus = "blocked"
)

// Valid reports whether s is a recognized company status.
func (s CompanyStatus) Valid() bool {
	return s == CompanyActive || s == CompanyBlocked
}

// DeviceStatus is the authorization state of a device within its company.
type DeviceStatus string

const (
	DeviceAuthorized DeviceStatus = "authorized"
	DeviceRevoked    DeviceStatus = "revoked"
)

// Company is a tenant account owning zero or more devices.
// The key is assigned at creation and never changes.
type Company struct {
	Key       string        `json:"company_key"`
	Name      string        `json:"name"`
	Status    CompanyStatus `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
}

// Device is a client installation identified uniquely within its company
// by the composite key (company_key, device_id).
type Device struct {
	CompanyKey   string       `json:"company_key"`
	DeviceID     string       `json:"device_id"`
	Hostname     string       `json:"hostname,omitempty"`
	Status       DeviceStatus `json:"status"`
	AuthorizedAt *time.Time   `json:"authorized_at,omitempty"`
	RevokedAt    *time.Time   `json:"revoked_at,omitempty"`
	LastCheckAt  *time.Time   `json:"last_check_at,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
}

// CheckResult is the outcome of a device check. All values are normal
// outcomes, never transport errors; the boundary collapses everything
// except CheckAuthorized into one undifferentiated negative signal.
type CheckResult string

const (
	CheckAuthorized     CheckResult = "authorized"
	CheckRevoked        CheckResult = "revoked"
	CheckCompanyBlocked CheckResult = "company_blocked"
	CheckUnknownCompany CheckResult = "unknown_company"
	CheckUnknownDevice  CheckResult = "unknown_device"
)

// Authorized reports whether the result grants access.
func (r CheckResult) Authorized() bool {
	return r == CheckAuthorized
}
