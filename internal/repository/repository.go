// Package repository persists the latest license bytes, cached passphrases,
// and device registration marks in a local SQLite database.
package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/paperbound/lcp-client/internal/license"
	"github.com/paperbound/lcp-client/pkg/config"
	pkgerrors "github.com/paperbound/lcp-client/pkg/errors"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// LicenseRecord stores the most recent raw bytes seen for a license.
type LicenseRecord struct {
	ID               string `gorm:"primaryKey;size:64"`
	Provider         string `gorm:"index"`
	LicenseUpdated   time.Time
	Raw              []byte
	DeviceRegistered bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// PassphraseRecord caches a passphrase accepted for a license.
type PassphraseRecord struct {
	LicenseID  string `gorm:"primaryKey;size:64"`
	Provider   string `gorm:"index"`
	Passphrase string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type Repository struct {
	db *gorm.DB
}

// New opens the configured database and runs migrations.
func New(cfg config.DBConfig) (*Repository, error) {
	if !strings.EqualFold(cfg.Driver, "sqlite") {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "only the sqlite driver is supported")
	}
	db, err := gorm.Open(sqlite.Open(cfg.DSN), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeRepository, err, "open database")
	}
	return NewWithDB(db)
}

// NewWithDB wraps an already-open GORM handle, running migrations.
func NewWithDB(db *gorm.DB) (*Repository, error) {
	if err := db.AutoMigrate(&LicenseRecord{}, &PassphraseRecord{}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeRepository, err, "migrate schema")
	}
	return &Repository{db: db}, nil
}

// Close releases the underlying database handle.
func (r *Repository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeRepository, err, "resolve database handle")
	}
	return sqlDB.Close()
}

// AddLicense persists the latest license bytes. The write is idempotent: a
// payload older than the stored one is ignored, so the invariant that a
// replacement carries a strictly newer updated timestamp holds locally.
func (r *Repository) AddLicense(ctx context.Context, lic *license.Document) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing LicenseRecord
		err := tx.First(&existing, "id = ?", lic.UUID).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			record := LicenseRecord{
				ID:             lic.UUID,
				Provider:       lic.Provider,
				LicenseUpdated: lic.UpdatedAt(),
				Raw:            lic.Raw(),
			}
			if err := tx.Create(&record).Error; err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeRepository, err, "insert license")
			}
			return nil
		case err != nil:
			return pkgerrors.Wrap(pkgerrors.CodeRepository, err, "lookup license")
		}
		if !lic.UpdatedAt().After(existing.LicenseUpdated) {
			return nil
		}
		updates := map[string]any{
			"provider":        lic.Provider,
			"license_updated": lic.UpdatedAt(),
			"raw":             lic.Raw(),
		}
		if err := tx.Model(&LicenseRecord{}).Where("id = ?", lic.UUID).Updates(updates).Error; err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeRepository, err, "update license")
		}
		return nil
	})
}

// License returns the stored record for a license id.
func (r *Repository) License(ctx context.Context, licenseID string) (*LicenseRecord, error) {
	var record LicenseRecord
	if err := r.db.WithContext(ctx).First(&record, "id = ?", licenseID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeRepository, err, "lookup license")
	}
	return &record, nil
}

// PassphrasesForLicense implements the passphrase store lookup by license.
func (r *Repository) PassphrasesForLicense(ctx context.Context, licenseID string) ([]string, error) {
	return r.passphrases(ctx, "license_id = ?", licenseID)
}

// PassphrasesForProvider implements the passphrase store lookup by provider.
func (r *Repository) PassphrasesForProvider(ctx context.Context, provider string) ([]string, error) {
	return r.passphrases(ctx, "provider = ?", provider)
}

func (r *Repository) passphrases(ctx context.Context, query string, arg any) ([]string, error) {
	var rows []PassphraseRecord
	if err := r.db.WithContext(ctx).Where(query, arg).Order("updated_at DESC").Find(&rows).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeRepository, err, "list passphrases")
	}
	out := make([]string, len(rows))
	for i, row := range rows {
		out[i] = row.Passphrase
	}
	return out, nil
}

// SavePassphrase stores an accepted passphrase for later silent unlocks.
func (r *Repository) SavePassphrase(ctx context.Context, licenseID, provider, passphrase string) error {
	record := PassphraseRecord{
		LicenseID:  licenseID,
		Provider:   provider,
		Passphrase: passphrase,
	}
	err := r.db.WithContext(ctx).Save(&record).Error
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeRepository, err, "save passphrase")
	}
	return nil
}

// IsDeviceRegistered reports whether this device already activated the
// license.
func (r *Repository) IsDeviceRegistered(ctx context.Context, licenseID string) (bool, error) {
	record, err := r.License(ctx, licenseID)
	if err != nil {
		return false, err
	}
	return record != nil && record.DeviceRegistered, nil
}

// SetDeviceRegistered marks the license as activated on this device.
func (r *Repository) SetDeviceRegistered(ctx context.Context, licenseID string) error {
	err := r.db.WithContext(ctx).
		Model(&LicenseRecord{}).
		Where("id = ?", licenseID).
		Update("device_registered", true).Error
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeRepository, err, "mark device registered")
	}
	return nil
}
