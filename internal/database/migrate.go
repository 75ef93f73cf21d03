package database

import (
	"fmt"
	"log"
	"time"

	"github.com/pipetrax/fieldsyncgo/internal/models"
	"gorm.io/gorm"
)

// SchemaMigration records which schema versions have been applied, so
// collections and indexes can be added in later releases without touching
// the data already queued on the device.
type SchemaMigration struct {
	Version   int       `gorm:"primaryKey"`
	AppliedAt time.Time `gorm:"not null"`
}

// TableName specifies the table name
func (SchemaMigration) TableName() string {
	return "schema_migrations"
}

type migrationStep struct {
	version int
	name    string
	apply   func(tx *gorm.DB) error
}

// Schema versions. Append only — never edit an applied step.
var migrationSteps = []migrationStep{
	{
		version: 1,
		name:    "pending reports and attachments",
		apply: func(tx *gorm.DB) error {
			return tx.AutoMigrate(
				&models.PendingReport{},
				&models.Attachment{},
			)
		},
	},
	{
		version: 2,
		name:    "chainage cache",
		apply: func(tx *gorm.DB) error {
			return tx.AutoMigrate(&models.ChainageCacheEntry{})
		},
	},
	{
		version: 3,
		name:    "cached sessions",
		apply: func(tx *gorm.DB) error {
			return tx.AutoMigrate(&models.CachedSession{})
		},
	},
}

// Migrate applies all pending schema versions. Safe to call on every start:
// versions already recorded in schema_migrations are skipped.
func (db *DB) Migrate() error {
	if err := db.DB.AutoMigrate(&SchemaMigration{}); err != nil {
		return fmt.Errorf("failed to prepare schema_migrations: %w", err)
	}

	var applied []SchemaMigration
	if err := db.DB.Find(&applied).Error; err != nil {
		return fmt.Errorf("failed to read applied migrations: %w", err)
	}

	appliedVersions := make(map[int]bool, len(applied))
	for _, m := range applied {
		appliedVersions[m.Version] = true
	}

	for _, step := range migrationSteps {
		if appliedVersions[step.version] {
			continue
		}

		log.Printf("🚀 Applying schema v%d: %s", step.version, step.name)

		err := db.DB.Transaction(func(tx *gorm.DB) error {
			if err := step.apply(tx); err != nil {
				return err
			}
			return tx.Create(&SchemaMigration{
				Version:   step.version,
				AppliedAt: time.Now().UTC(),
			}).Error
		})
		if err != nil {
			return fmt.Errorf("schema v%d (%s) failed: %w", step.version, step.name, err)
		}
	}

	log.Println("✅ Schema synchronized successfully")
	return nil
}
