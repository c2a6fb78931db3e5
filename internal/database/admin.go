package database

import (
	"github.com/fenwicklabs/gala/internal/crossword"
	"github.com/fenwicklabs/gala/internal/party"
	"github.com/fenwicklabs/gala/internal/scoring"
	"github.com/fenwicklabs/gala/internal/voting"
	"gorm.io/gorm"
)

// ResetEvent wipes all event state back to the pre-gathering fixture:
// guests become unregistered placeholders, scores zero out, and the ledger,
// ballots, and crossword progress are cleared. Houses persist.
func ResetEvent(db *gorm.DB) error {
	return db.Transaction(func(tx *gorm.DB) error {
		for _, model := range []interface{}{
			&scoring.PointAward{},
			&voting.Vote{},
			&crossword.Completion{},
			&crossword.GuestState{},
		} {
			if err := tx.Where("1 = 1").Delete(model).Error; err != nil {
				return err
			}
		}

		if err := tx.Model(&voting.Status{}).Where("id = ?", 1).Updates(map[string]interface{}{
			"is_open":   false,
			"opened_at": nil,
			"closed_at": nil,
		}).Error; err != nil {
			return err
		}

		if err := tx.Model(&party.Guest{}).Where("1 = 1").Updates(map[string]interface{}{
			"is_active":      false,
			"personal_score": 0,
			"house_id":       nil,
			"registered_at":  nil,
			"character":      nil,
		}).Error; err != nil {
			return err
		}

		return tx.Model(&party.House{}).Where("1 = 1").Update("score", 0).Error
	})
}

// ClearBallots removes all cast ballots without touching the session state.
func ClearBallots(db *gorm.DB) error {
	return db.Where("1 = 1").Delete(&voting.Vote{}).Error
}
