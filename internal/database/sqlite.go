package database

import (
	"fmt"

	"github.com/fenwicklabs/gala/internal/crossword"
	"github.com/fenwicklabs/gala/internal/party"
	"github.com/fenwicklabs/gala/internal/scoring"
	"github.com/fenwicklabs/gala/internal/voting"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// defaultHouseNames seed the four fixed houses on first boot.
var defaultHouseNames = [party.HouseCount]string{"Emberfall", "Galecrest", "Hollowmere", "Thornwood"}

// Open establishes a SQLite connection, performs schema migrations, and
// seeds the fixed reference rows (four houses, the voting status singleton).
func Open(path string, logger *zap.Logger) (*gorm.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	// WAL keeps reads flowing during writes; the busy timeout retries
	// briefly instead of failing on a locked database.
	if err := db.Exec("PRAGMA foreign_keys = ON; PRAGMA journal_mode = WAL; PRAGMA synchronous = NORMAL; PRAGMA busy_timeout = 10000;").Error; err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(
		&party.House{},
		&party.Guest{},
		&scoring.PointAward{},
		&voting.Status{},
		&voting.Vote{},
		&crossword.Completion{},
		&crossword.GuestState{},
		&migrationRecord{},
	); err != nil {
		return nil, err
	}

	if err := Seed(db); err != nil {
		return nil, err
	}

	if err := applyMigrations(db, logger); err != nil {
		return nil, err
	}

	if logger != nil {
		logger.Info("database initialized", zap.String("path", path))
	}

	return db, nil
}

// Seed inserts the four houses and the closed voting-status singleton when
// absent. It is idempotent and refuses a database with a wrong house count.
func Seed(db *gorm.DB) error {
	return db.Transaction(func(tx *gorm.DB) error {
		var houseCount int64
		if err := tx.Model(&party.House{}).Count(&houseCount).Error; err != nil {
			return err
		}
		switch houseCount {
		case 0:
			for _, name := range defaultHouseNames {
				if err := tx.Create(&party.House{Name: name}).Error; err != nil {
					return err
				}
			}
		case party.HouseCount:
			// Already seeded.
		default:
			return fmt.Errorf("expected exactly %d houses, found %d", party.HouseCount, houseCount)
		}

		var statusCount int64
		if err := tx.Model(&voting.Status{}).Count(&statusCount).Error; err != nil {
			return err
		}
		if statusCount == 0 {
			return tx.Create(&voting.Status{ID: 1, Open: false}).Error
		}
		return nil
	})
}
