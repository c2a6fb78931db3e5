package scoring

import (
	"context"
	"errors"

	"github.com/fenwicklabs/gala/internal/party"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Aggregator derives current scores from the ledger. The cached score
// columns on guests and houses are an optimization; everything here is
// recomputable from point_awards alone.
type Aggregator struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewAggregator constructs the score aggregator.
func NewAggregator(db *gorm.DB, logger *zap.Logger) (*Aggregator, error) {
	if db == nil {
		return nil, errMissingDatabase
	}
	if logger == nil {
		logger = noOpLogger
	}
	return &Aggregator{db: db, logger: logger}, nil
}

// GuestScore returns the sum of all awards targeting the guest.
func (a *Aggregator) GuestScore(ctx context.Context, guestID uint) (int, error) {
	var count int64
	if err := a.db.WithContext(ctx).Model(&party.Guest{}).Where("id = ?", guestID).Count(&count).Error; err != nil {
		return 0, err
	}
	if count == 0 {
		return 0, ErrInvalidSubject
	}
	return a.sumGuestAwards(ctx, guestID)
}

// HouseScore returns the house's direct awards (crossword bonuses included,
// since they are written to the ledger as house awards) plus the derived
// scores of all active guests currently assigned to the house.
func (a *Aggregator) HouseScore(ctx context.Context, houseID uint) (int, error) {
	var count int64
	if err := a.db.WithContext(ctx).Model(&party.House{}).Where("id = ?", houseID).Count(&count).Error; err != nil {
		return 0, err
	}
	if count == 0 {
		return 0, ErrInvalidSubject
	}

	var direct int
	err := a.db.WithContext(ctx).Model(&PointAward{}).
		Where("house_id = ?", houseID).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&direct).Error
	if err != nil {
		return 0, err
	}

	var members int
	err = a.db.WithContext(ctx).Model(&PointAward{}).
		Joins("JOIN guests ON point_awards.guest_id = guests.id").
		Where("guests.house_id = ? AND guests.is_active = ?", houseID, true).
		Select("COALESCE(SUM(point_awards.amount), 0)").
		Scan(&members).Error
	if err != nil {
		return 0, err
	}

	return direct + members, nil
}

// Reconcile recomputes the cached score columns from the ledger and repairs
// any drift. It returns the number of rows corrected.
func (a *Aggregator) Reconcile(ctx context.Context) (int, error) {
	repaired := 0
	txErr := a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var guests []party.Guest
		if err := tx.Find(&guests).Error; err != nil {
			return err
		}
		for _, guest := range guests {
			var derived int
			err := tx.Model(&PointAward{}).
				Where("guest_id = ?", guest.ID).
				Select("COALESCE(SUM(amount), 0)").
				Scan(&derived).Error
			if err != nil {
				return err
			}
			if derived == guest.PersonalScore {
				continue
			}
			if err := tx.Model(&party.Guest{}).Where("id = ?", guest.ID).
				Update("personal_score", derived).Error; err != nil {
				return err
			}
			repaired++
		}

		var houses []party.House
		if err := tx.Find(&houses).Error; err != nil {
			return err
		}
		for _, house := range houses {
			var direct int
			err := tx.Model(&PointAward{}).
				Where("house_id = ?", house.ID).
				Select("COALESCE(SUM(amount), 0)").
				Scan(&direct).Error
			if err != nil {
				return err
			}
			var members int
			err = tx.Model(&PointAward{}).
				Joins("JOIN guests ON point_awards.guest_id = guests.id").
				Where("guests.house_id = ? AND guests.is_active = ?", house.ID, true).
				Select("COALESCE(SUM(point_awards.amount), 0)").
				Scan(&members).Error
			if err != nil {
				return err
			}
			derived := direct + members
			if derived == house.Score {
				continue
			}
			if err := tx.Model(&party.House{}).Where("id = ?", house.ID).
				Update("score", derived).Error; err != nil {
				return err
			}
			repaired++
		}
		return nil
	})
	if txErr != nil {
		return 0, txErr
	}
	if repaired > 0 {
		a.logger.Warn("score cache reconciled", zap.Int("rows_repaired", repaired))
	}
	return repaired, nil
}

func (a *Aggregator) sumGuestAwards(ctx context.Context, guestID uint) (int, error) {
	var total int
	err := a.db.WithContext(ctx).Model(&PointAward{}).
		Where("guest_id = ?", guestID).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&total).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, err
	}
	return total, nil
}
