package database

import (
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const migrationClearOrphanedAwardRefs = "2026-08-20_clear_orphaned_award_refs"

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationClearOrphanedAwardRefs, apply: clearOrphanedAwardRefs},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// clearOrphanedAwardRefs nulls ledger references to guests or houses that no
// longer exist. Ledger entries survive their subject's removal with the
// reference cleared.
func clearOrphanedAwardRefs(db *gorm.DB) error {
	if err := db.Exec("UPDATE point_awards SET guest_id = NULL WHERE guest_id IS NOT NULL AND guest_id NOT IN (SELECT id FROM guests);").Error; err != nil {
		return err
	}
	return db.Exec("UPDATE point_awards SET house_id = NULL WHERE house_id IS NOT NULL AND house_id NOT IN (SELECT id FROM houses);").Error
}
