package gormstore

import (
	"time"

	"licensegate/internal/ledger"
)

// companyModel is the GORM-specific struct for the 'companies' table.
type companyModel struct {
	CompanyKey string    `gorm:"type:varchar(255);primaryKey"`
	Name       string    `gorm:"type:varchar(255);not null"`
	Status     string    `gorm:"type:varchar(32);not null;default:active"`
	CreatedAt  time.Time `gorm:"not null"`
}

func (companyModel) TableName() string {
	return "companies"
}

// deviceModel is the GORM-specific struct for the 'devices' table. The
// composite primary key (company_key, device_id) carries the global
// uniqueness invariant down to the schema.
type deviceModel struct {
	CompanyKey   string     `gorm:"type:varchar(255);primaryKey"`
	DeviceID     string     `gorm:"type:varchar(255);primaryKey"`
	Hostname     string     `gorm:"type:varchar(255)"`
	Status       string     `gorm:"type:varchar(32);not null"`
	AuthorizedAt *time.Time
	RevokedAt    *time.Time
	LastCheckAt  *time.Time
	CreatedAt    time.Time `gorm:"not null"`
}

func (deviceModel) TableName() string {
	return "devices"
}

// --- Mapper Functions ---

func toCompanyDomain(data *companyModel) *ledger.Company {
	if data == nil {
		return nil
	}

	return &ledger.Company{
		Key:       data.CompanyKey,
		Name:      data.Name,
		Status:    ledger.CompanyStatus(data.Status),
		CreatedAt: data.CreatedAt,
	}
}

func fromCompanyDomain(data *ledger.Company) *companyModel {
	if data == nil {
		return nil
	}

	return &companyModel{
		CompanyKey: data.Key,
		Name:       data.Name,
		Status:     string(data.Status),
		CreatedAt:  data.CreatedAt,
	}
}

func toDeviceDomain(data *deviceModel) *ledger.Device {
	if data == nil {
		return nil
	}

	return &ledger.Device{
		CompanyKey:   data.CompanyKey,
		DeviceID:     data.DeviceID,
		Hostname:     data.Hostname,
		Status:       ledger.DeviceStatus(data.Status),
		AuthorizedAt: data.AuthorizedAt,
		RevokedAt:    data.RevokedAt,
		LastCheckAt:  data.LastCheckAt,
		CreatedAt:    data.CreatedAt,
	}
}

func fromDeviceDomain(data *ledger.Device) *deviceModel {
	if data == nil {
		return nil
	}

	return &deviceModel{
		CompanyKey:   data.CompanyKey,
		DeviceID:     data.DeviceID,
		Hostname:     data.Hostname,
		Status:       string(data.Status),
		AuthorizedAt: data.AuthorizedAt,
		RevokedAt:    data.RevokedAt,
		LastCheckAt:  data.LastCheckAt,
		CreatedAt:    data.CreatedAt,
	}
}
