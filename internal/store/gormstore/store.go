package gormstore

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/pkg/errors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"licensegate/internal/ledger"
)

// Driver names accepted by Open.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config selects the backing database.
type Config struct {
	Driver string
	DSN    string
}

// Store implements ledger.Store on GORM.
type Store struct {
	db       *gorm.DB
	rowLocks bool // SELECT ... FOR UPDATE supported by the dialect
	logger   *slog.Logger
}

// Open connects to the configured database, applies schema migrations
// and returns a ready store.
func Open(cfg Config, logger *slog.Logger) (*Store, error) {
	var dialector gorm.Dialector
	rowLocks := false

	switch cfg.Driver {
	case DriverSQLite:
		// Immediate write transactions make the read-modify-write in
		// MutateDevice take the database write lock up front instead of
		// failing on upgrade mid-transaction.
		dialector = sqlite.Open(withSQLiteOptions(cfg.DSN))
	case DriverPostgres:
		dialector = postgres.Open(cfg.DSN)
		rowLocks = true
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}

	if cfg.Driver == DriverSQLite {
		// WAL survives restarts and lets checks read while an admin
		// transaction writes.
		if err := db.Exec("PRAGMA journal_mode=WAL").Error; err != nil {
			return nil, errors.Wrap(err, "failed to enable WAL mode")
		}
	}

	if err := db.AutoMigrate(&companyModel{}, &deviceModel{}); err != nil {
		return nil, errors.Wrap(err, "failed to migrate schema")
	}

	return &Store{
		db:       db,
		rowLocks: rowLocks,
		logger:   logger.With(slog.String("component", "store"), slog.String("driver", cfg.Driver)),
	}, nil
}

// withSQLiteOptions appends the connection options every deployment
// needs: immediate transactions and a bounded busy timeout so contended
// writes fail fast instead of spinning.
func withSQLiteOptions(dsn string) string {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_txlock=immediate&_pragma=busy_timeout(5000)"
}

// CreateCompany inserts the company row. The primary key on company_key
// turns a duplicate create into ledger.ErrCompanyExists without touching
// the existing row.
func (s *Store) CreateCompany(ctx context.Context, company *ledger.Company) error {
	if err := s.db.WithContext(ctx).Create(fromCompanyDomain(company)).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ledger.ErrCompanyExists
		}
		return s.translate(ctx, err, "failed to create company")
	}
	return nil
}

// GetCompany loads a single company by key.
func (s *Store) GetCompany(ctx context.Context, companyKey string) (*ledger.Company, error) {
	var companyM companyModel
	if err := s.db.WithContext(ctx).
		Where("company_key = ?", companyKey).
		First(&companyM).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ledger.ErrUnknownCompany
		}
		return nil, s.translate(ctx, err, "failed to load company")
	}
	return toCompanyDomain(&companyM), nil
}

// SetCompanyStatus updates the status column in place.
func (s *Store) SetCompanyStatus(ctx context.Context, companyKey string, status ledger.CompanyStatus) (*ledger.Company, error) {
	var companyM companyModel
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Where("company_key = ?", companyKey)
		if s.rowLocks {
			q = q.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		if err := q.First(&companyM).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ledger.ErrUnknownCompany
			}
			return errors.Wrap(err, "failed to load company")
		}

		companyM.Status = string(status)
		return errors.Wrap(tx.Model(&companyModel{}).
			Where("company_key = ?", companyKey).
			Update("status", companyM.Status).Error,
			"failed to update company status")
	})
	if err != nil {
		return nil, s.translate(ctx, err, "failed to set company status")
	}
	return toCompanyDomain(&companyM), nil
}

// MutateDevice runs fn inside one transaction holding the device row.
// The company row is read first in the same transaction, so fn's
// referential-integrity check cannot race a concurrent device write.
func (s *Store) MutateDevice(ctx context.Context, companyKey, deviceID string, fn ledger.DeviceMutator) (*ledger.Device, error) {
	var out *ledger.Device
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var companyM companyModel
		if err := tx.Where("company_key = ?", companyKey).First(&companyM).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ledger.ErrUnknownCompany
			}
			return errors.Wrap(err, "failed to load company")
		}

		var current *ledger.Device
		var deviceM deviceModel
		q := tx.Where("company_key = ? AND device_id = ?", companyKey, deviceID)
		if s.rowLocks {
			q = q.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		switch err := q.First(&deviceM).Error; {
		case err == nil:
			current = toDeviceDomain(&deviceM)
		case errors.Is(err, gorm.ErrRecordNotFound):
			current = nil
		default:
			return errors.Wrap(err, "failed to load device")
		}

		next, err := fn(toCompanyDomain(&companyM), current)
		if err != nil {
			return err
		}
		if next == nil {
			out = current
			return nil
		}

		out = next
		if current == nil {
			if err := tx.Create(fromDeviceDomain(next)).Error; err != nil {
				// Row locking cannot cover a row that does not exist yet,
				// so a racing writer may commit the same key between our
				// read and this insert. The loser's duplicate-key failure
				// is contention, not a terminal error.
				if errors.Is(err, gorm.ErrDuplicatedKey) {
					return ledger.ErrTransientStore
				}
				return errors.Wrap(err, "failed to create device")
			}
			return nil
		}
		return errors.Wrap(tx.Model(&deviceModel{}).
			Where("company_key = ? AND device_id = ?", companyKey, deviceID).
			Updates(map[string]any{
				"hostname":      next.Hostname,
				"status":        string(next.Status),
				"authorized_at": next.AuthorizedAt,
				"revoked_at":    next.RevokedAt,
				"last_check_at": next.LastCheckAt,
			}).Error, "failed to update device")
	})
	if err != nil {
		return nil, s.translate(ctx, err, "device mutation failed")
	}
	return out, nil
}

// ListDevices returns the company's devices from one snapshot read.
func (s *Store) ListDevices(ctx context.Context, companyKey string) ([]*ledger.Device, error) {
	var deviceModels []*deviceModel
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var companyM companyModel
		if err := tx.Where("company_key = ?", companyKey).First(&companyM).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ledger.ErrUnknownCompany
			}
			return errors.Wrap(err, "failed to load company")
		}

		return errors.Wrap(tx.
			Where("company_key = ?", companyKey).
			Order("device_id ASC").
			Find(&deviceModels).Error, "failed to list devices")
	})
	if err != nil {
		return nil, s.translate(ctx, err, "failed to list devices")
	}

	devices := make([]*ledger.Device, 0, len(deviceModels))
	for _, deviceM := range deviceModels {
		devices = append(devices, toDeviceDomain(deviceM))
	}
	return devices, nil
}

// Ping verifies the underlying connection.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return errors.Wrap(err, "failed to access connection pool")
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return errors.Wrap(err, "failed to access connection pool")
	}
	return sqlDB.Close()
}

// translate maps database failures onto the ledger's error taxonomy.
// Ledger sentinels pass through untouched; contention and lost
// connections become ErrTransientStore so callers know a retry is safe.
func (s *Store) translate(ctx context.Context, err error, msg string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ledger.ErrCompanyExists),
		errors.Is(err, ledger.ErrUnknownCompany),
		errors.Is(err, ledger.ErrUnknownDevice),
		errors.Is(err, ledger.ErrTransientStore):
		return err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	}

	if isContention(err) {
		s.logger.WarnContext(ctx, "store contention",
			slog.String("error", err.Error()))
		return ledger.ErrTransientStore
	}

	s.logger.ErrorContext(ctx, msg,
		slog.String("error", err.Error()))
	return errors.Wrap(err, msg)
}

// isContention reports whether the failure is worth retrying: lock
// timeouts on SQLite, serialization or deadlock aborts on PostgreSQL.
func isContention(err error) bool {
	errMsg := strings.ToLower(err.Error())
	return strings.Contains(errMsg, "database is locked") || // SQLITE_BUSY
		strings.Contains(errMsg, "database table is locked") ||
		strings.Contains(errMsg, "sqlite_busy") ||
		strings.Contains(errMsg, "40001") || // serialization_failure
		strings.Contains(errMsg, "40p01") || // deadlock_detected
		strings.Contains(errMsg, "55p03") || // lock_not_available
		strings.Contains(errMsg, "connection refused") ||
		strings.Contains(errMsg, "connection reset")
}

// compile-time interface check
var _ ledger.Store = (*Store)(nil)

// Stats exposes pool statistics for health reporting.
func (s *Store) Stats() (open int, inUse int, waitDuration time.Duration) {
	sqlDB, err := s.db.DB()
	if err != nil {
		return 0, 0, 0
	}
	stats := sqlDB.Stats()
	return stats.OpenConnections, stats.InUse, stats.WaitDuration
}
