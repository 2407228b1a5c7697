package gormstore

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"licensegate/internal/ledger"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(Config{
		Driver: DriverSQLite,
		DSN:    filepath.Join(t.TempDir(), "ledger.db"),
	}, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func seedCompany(t *testing.T, store *Store, key string) {
	t.Helper()
	err := store.CreateCompany(context.Background(), &ledger.Company{
		Key:       key,
		Name:      key,
		Status:    ledger.CompanyActive,
		CreatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
}

func TestOpen(t *testing.T) {
	t.Run("rejects unknown driver", func(t *testing.T) {
		_, err := Open(Config{Driver: "oracle", DSN: "x"}, testLogger())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported storage driver")
	})

	t.Run("sqlite store pings", func(t *testing.T) {
		store := openTestStore(t)
		require.NoError(t, store.Ping(context.Background()))
	})
}

func TestCreateAndGetCompany(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	t.Run("round trip", func(t *testing.T) {
		created := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
		err := store.CreateCompany(ctx, &ledger.Company{
			Key:       "acai-001",
			Name:      "Acai Systems",
			Status:    ledger.CompanyActive,
			CreatedAt: created,
		})
		require.NoError(t, err)

		company, err := store.GetCompany(ctx, "acai-001")
		require.NoError(t, err)
		assert.Equal(t, "acai-001", company.Key)
		assert.Equal(t, "Acai Systems", company.Name)
		assert.Equal(t, ledger.CompanyActive, company.Status)
		assert.True(t, company.CreatedAt.Equal(created))
	})

	t.Run("duplicate key", func(t *testing.T) {
		err := store.CreateCompany(ctx, &ledger.Company{
			Key:    "acai-001",
			Name:   "Impostor",
			Status: ledger.CompanyActive,
		})
		require.ErrorIs(t, err, ledger.ErrCompanyExists)

		company, err := store.GetCompany(ctx, "acai-001")
		require.NoError(t, err)
		assert.Equal(t, "Acai Systems", company.Name, "original row untouched")
	})

	t.Run("unknown key", func(t *testing.T) {
		_, err := store.GetCompany(ctx, "ghost")
		require.ErrorIs(t, err, ledger.ErrUnknownCompany)
	})
}

func TestSetCompanyStatus(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	seedCompany(t, store, "acai-001")

	company, err := store.SetCompanyStatus(ctx, "acai-001", ledger.CompanyBlocked)
	require.NoError(t, err)
	assert.Equal(t, ledger.CompanyBlocked, company.Status)

	company, err = store.GetCompany(ctx, "acai-001")
	require.NoError(t, err)
	assert.Equal(t, ledger.CompanyBlocked, company.Status)

	_, err = store.SetCompanyStatus(ctx, "ghost", ledger.CompanyBlocked)
	require.ErrorIs(t, err, ledger.ErrUnknownCompany)
}

func TestMutateDevice(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown company aborts before fn runs", func(t *testing.T) {
		store := openTestStore(t)

		called := false
		_, err := store.MutateDevice(ctx, "ghost", "dev-1", func(*ledger.Company, *ledger.Device) (*ledger.Device, error) {
			called = true
			return nil, nil
		})
		require.ErrorIs(t, err, ledger.ErrUnknownCompany)
		assert.False(t, called)
	})

	t.Run("creates missing device", func(t *testing.T) {
		store := openTestStore(t)
		seedCompany(t, store, "acai-001")

		now := time.Now().UTC().Truncate(time.Second)
		device, err := store.MutateDevice(ctx, "acai-001", "dev-1", func(company *ledger.Company, d *ledger.Device) (*ledger.Device, error) {
			require.NotNil(t, company)
			assert.Equal(t, "acai-001", company.Key)
			require.Nil(t, d)
			return &ledger.Device{
				CompanyKey:   "acai-001",
				DeviceID:     "dev-1",
				Status:       ledger.DeviceAuthorized,
				AuthorizedAt: &now,
				CreatedAt:    now,
			}, nil
		})
		require.NoError(t, err)
		assert.Equal(t, ledger.DeviceAuthorized, device.Status)

		devices, err := store.ListDevices(ctx, "acai-001")
		require.NoError(t, err)
		require.Len(t, devices, 1)
		assert.Equal(t, "dev-1", devices[0].DeviceID)
		require.NotNil(t, devices[0].AuthorizedAt)
		assert.True(t, devices[0].AuthorizedAt.Equal(now))
	})

	t.Run("updates existing device", func(t *testing.T) {
		store := openTestStore(t)
		seedCompany(t, store, "acai-001")
		authorizeDevice(t, store, "acai-001", "dev-1")

		now := time.Now().UTC().Truncate(time.Second)
		_, err := store.MutateDevice(ctx, "acai-001", "dev-1", func(_ *ledger.Company, d *ledger.Device) (*ledger.Device, error) {
			require.NotNil(t, d)
			d.Status = ledger.DeviceRevoked
			d.RevokedAt = &now
			d.Hostname = "host-b"
			return d, nil
		})
		require.NoError(t, err)

		devices, err := store.ListDevices(ctx, "acai-001")
		require.NoError(t, err)
		require.Len(t, devices, 1)
		assert.Equal(t, ledger.DeviceRevoked, devices[0].Status)
		assert.Equal(t, "host-b", devices[0].Hostname)
		require.NotNil(t, devices[0].RevokedAt)
	})

	t.Run("nil replacement commits nothing", func(t *testing.T) {
		store := openTestStore(t)
		seedCompany(t, store, "acai-001")
		authorizeDevice(t, store, "acai-001", "dev-1")

		device, err := store.MutateDevice(ctx, "acai-001", "dev-1", func(_ *ledger.Company, d *ledger.Device) (*ledger.Device, error) {
			return nil, nil
		})
		require.NoError(t, err)
		require.NotNil(t, device, "read-only mutation still returns the row")
		assert.Equal(t, ledger.DeviceAuthorized, device.Status)
	})

	t.Run("insert losing a create race is transient", func(t *testing.T) {
		store := openTestStore(t)
		seedCompany(t, store, "acai-001")
		authorizeDevice(t, store, "acai-001", "dev-1")

		// Steer the create path onto a key another writer already
		// committed: the duplicate-key failure on insert must surface as
		// retryable contention, never as a terminal error.
		now := time.Now().UTC()
		_, err := store.MutateDevice(ctx, "acai-001", "dev-other", func(_ *ledger.Company, d *ledger.Device) (*ledger.Device, error) {
			require.Nil(t, d)
			return &ledger.Device{
				CompanyKey:   "acai-001",
				DeviceID:     "dev-1",
				Status:       ledger.DeviceAuthorized,
				AuthorizedAt: &now,
				CreatedAt:    now,
			}, nil
		})
		require.ErrorIs(t, err, ledger.ErrTransientStore)
	})

	t.Run("fn error rolls the row back", func(t *testing.T) {
		store := openTestStore(t)
		seedCompany(t, store, "acai-001")
		authorizeDevice(t, store, "acai-001", "dev-1")

		boom := fmt.Errorf("mutation rejected")
		_, err := store.MutateDevice(ctx, "acai-001", "dev-1", func(_ *ledger.Company, d *ledger.Device) (*ledger.Device, error) {
			d.Status = ledger.DeviceRevoked
			return d, boom
		})
		require.Error(t, err)

		devices, err := store.ListDevices(ctx, "acai-001")
		require.NoError(t, err)
		require.Len(t, devices, 1)
		assert.Equal(t, ledger.DeviceAuthorized, devices[0].Status)
	})
}

func authorizeDevice(t *testing.T, store *Store, companyKey, deviceID string) {
	t.Helper()
	now := time.Now().UTC()
	_, err := store.MutateDevice(context.Background(), companyKey, deviceID, func(_ *ledger.Company, d *ledger.Device) (*ledger.Device, error) {
		if d == nil {
			d = &ledger.Device{CompanyKey: companyKey, DeviceID: deviceID, CreatedAt: now}
		}
		d.Status = ledger.DeviceAuthorized
		d.AuthorizedAt = &now
		return d, nil
	})
	require.NoError(t, err)
}

func TestListDevices(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	seedCompany(t, store, "acai-001")
	seedCompany(t, store, "birch-002")

	t.Run("empty company", func(t *testing.T) {
		devices, err := store.ListDevices(ctx, "acai-001")
		require.NoError(t, err)
		assert.Empty(t, devices)
	})

	t.Run("unknown company", func(t *testing.T) {
		_, err := store.ListDevices(ctx, "ghost")
		require.ErrorIs(t, err, ledger.ErrUnknownCompany)
	})

	t.Run("ordered by device_id and scoped to the company", func(t *testing.T) {
		for _, id := range []string{"dev-c", "dev-a", "dev-b"} {
			authorizeDevice(t, store, "acai-001", id)
		}
		authorizeDevice(t, store, "birch-002", "dev-z")

		devices, err := store.ListDevices(ctx, "acai-001")
		require.NoError(t, err)
		require.Len(t, devices, 3)
		assert.Equal(t, "dev-a", devices[0].DeviceID)
		assert.Equal(t, "dev-b", devices[1].DeviceID)
		assert.Equal(t, "dev-c", devices[2].DeviceID)
	})
}

func TestDurabilityAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "ledger.db")

	store, err := Open(Config{Driver: DriverSQLite, DSN: dsn}, testLogger())
	require.NoError(t, err)
	seedCompany(t, store, "acai-001")
	authorizeDevice(t, store, "acai-001", "dev-1")
	require.NoError(t, store.Close())

	reopened, err := Open(Config{Driver: DriverSQLite, DSN: dsn}, testLogger())
	require.NoError(t, err)
	defer reopened.Close()

	company, err := reopened.GetCompany(ctx, "acai-001")
	require.NoError(t, err)
	assert.Equal(t, ledger.CompanyActive, company.Status)

	devices, err := reopened.ListDevices(ctx, "acai-001")
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, ledger.DeviceAuthorized, devices[0].Status)
}

func TestConcurrentMutations(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	seedCompany(t, store, "acai-001")
	authorizeDevice(t, store, "acai-001", "dev-1")

	statuses := []ledger.DeviceStatus{ledger.DeviceAuthorized, ledger.DeviceRevoked}
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			now := time.Now().UTC()
			_, err := store.MutateDevice(ctx, "acai-001", "dev-1", func(_ *ledger.Company, d *ledger.Device) (*ledger.Device, error) {
				d.Status = statuses[i%2]
				if d.Status == ledger.DeviceAuthorized {
					d.AuthorizedAt = &now
				} else {
					d.RevokedAt = &now
				}
				return d, nil
			})
			// Contention is an acceptable outcome under load; anything
			// else is a real failure.
			if err != nil {
				assert.ErrorIs(t, err, ledger.ErrTransientStore)
			}
		}(i)
	}
	wg.Wait()

	devices, err := store.ListDevices(ctx, "acai-001")
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Contains(t, statuses, devices[0].Status)
}

func TestIsContention(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"sqlite busy", fmt.Errorf("database is locked (5) (SQLITE_BUSY)"), true},
		{"serialization failure", fmt.Errorf("ERROR: could not serialize access (SQLSTATE 40001)"), true},
		{"deadlock", fmt.Errorf("ERROR: deadlock detected (SQLSTATE 40P01)"), true},
		{"lock not available", fmt.Errorf("ERROR: could not obtain lock (SQLSTATE 55P03)"), true},
		{"connection refused", fmt.Errorf("dial tcp 127.0.0.1:5432: connect: connection refused"), true},
		{"constraint violation", fmt.Errorf("UNIQUE constraint failed: companies.company_key"), false},
		{"plain query error", fmt.Errorf("no such table: devices"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isContention(tt.err))
		})
	}
}
