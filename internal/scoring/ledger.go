package scoring

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/fenwicklabs/gala/internal/party"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrInvalidSubject indicates the award targets neither exactly one guest
	// nor exactly one house, or the referenced entity does not exist.
	ErrInvalidSubject = errors.New("scoring: invalid award subject")
	// ErrInvalidReason indicates an empty award reason.
	ErrInvalidReason = errors.New("scoring: award reason is required")
	// ErrZeroAmount indicates a zero-amount award under the strict policy.
	ErrZeroAmount = errors.New("scoring: zero-amount award rejected by policy")

	errMissingDatabase = errors.New("database handle is required")
	noOpLogger         = zap.NewNop()
)

// LedgerConfig describes the dependencies of the point ledger.
type LedgerConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
	// RejectZeroAwards makes zero-amount awards a caller error. Off by
	// default; stricter deployments enable it via configuration.
	RejectZeroAwards bool
}

// Ledger is the append-only point award log. Every award is written inside a
// transaction that also keeps the cached guest/house score columns in step;
// the ledger rows remain the single source of truth.
type Ledger struct {
	db         *gorm.DB
	clock      func() time.Time
	logger     *zap.Logger
	rejectZero bool
}

// NewLedger constructs the point ledger.
func NewLedger(cfg LedgerConfig) (*Ledger, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Ledger{
		db:         cfg.Database,
		clock:      clock,
		logger:     logger,
		rejectZero: cfg.RejectZeroAwards,
	}, nil
}

// Award appends a point award for the subject and adjusts the cached scores
// in the same transaction. The ledger entry is immutable once written.
func (l *Ledger) Award(ctx context.Context, subject AwardSubject, amount int, reason string) (PointAward, error) {
	var award PointAward
	txErr := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		award, err = l.AwardInTx(tx, subject, amount, reason)
		return err
	})
	if txErr != nil {
		return PointAward{}, txErr
	}

	l.logger.Info("points awarded",
		zap.String("subject", subject.String()),
		zap.Int("amount", amount),
		zap.String("reason", reason))
	return award, nil
}

// AwardInTx appends an award inside an existing transaction. Collaborators
// that must award points atomically with their own writes (the crossword
// tracker) compose through this entry point.
func (l *Ledger) AwardInTx(tx *gorm.DB, subject AwardSubject, amount int, reason string) (PointAward, error) {
	if strings.TrimSpace(reason) == "" {
		return PointAward{}, ErrInvalidReason
	}
	if amount == 0 && l.rejectZero {
		return PointAward{}, ErrZeroAmount
	}
	if subject.IsZero() {
		return PointAward{}, ErrInvalidSubject
	}

	award := PointAward{
		Amount:    amount,
		Reason:    reason,
		AwardedAt: l.clock().UTC(),
	}

	switch subject.Kind() {
	case SubjectGuest:
		var guest party.Guest
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", subject.ID()).
			Take(&guest).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return PointAward{}, ErrInvalidSubject
		}
		if err != nil {
			return PointAward{}, err
		}
		if err := tx.Model(&party.Guest{}).
			Where("id = ?", guest.ID).
			Update("personal_score", gorm.Expr("personal_score + ?", amount)).Error; err != nil {
			return PointAward{}, err
		}
		if guest.HouseID != nil {
			if err := bumpHouseScore(tx, *guest.HouseID, amount); err != nil {
				return PointAward{}, err
			}
		}
		guestID := subject.ID()
		award.GuestID = &guestID

	case SubjectHouse:
		var count int64
		if err := tx.Model(&party.House{}).Where("id = ?", subject.ID()).Count(&count).Error; err != nil {
			return PointAward{}, err
		}
		if count == 0 {
			return PointAward{}, ErrInvalidSubject
		}
		if err := bumpHouseScore(tx, subject.ID(), amount); err != nil {
			return PointAward{}, err
		}
		houseID := subject.ID()
		award.HouseID = &houseID
	}

	if err := tx.Create(&award).Error; err != nil {
		return PointAward{}, err
	}
	return award, nil
}

// History returns the subject's awards ordered by time ascending.
func (l *Ledger) History(ctx context.Context, subject AwardSubject) ([]PointAward, error) {
	if subject.IsZero() {
		return nil, ErrInvalidSubject
	}

	query := l.db.WithContext(ctx).Model(&PointAward{})
	switch subject.Kind() {
	case SubjectGuest:
		query = query.Where("guest_id = ?", subject.ID())
	case SubjectHouse:
		query = query.Where("house_id = ?", subject.ID())
	}

	var awards []PointAward
	err := query.Order("awarded_at ASC, id ASC").Find(&awards).Error
	return awards, err
}

// Log returns every award joined with subject names, newest first.
func (l *Ledger) Log(ctx context.Context) ([]AwardLogEntry, error) {
	var entries []AwardLogEntry
	err := l.db.WithContext(ctx).
		Table("point_awards").
		Select("point_awards.id, guests.name AS guest_name, houses.name AS house_name, point_awards.amount, point_awards.reason, point_awards.awarded_at").
		Joins("LEFT JOIN guests ON point_awards.guest_id = guests.id").
		Joins("LEFT JOIN houses ON point_awards.house_id = houses.id").
		Order("point_awards.awarded_at DESC, point_awards.id DESC").
		Scan(&entries).Error
	return entries, err
}

func bumpHouseScore(tx *gorm.DB, houseID uint, amount int) error {
	return tx.Model(&party.House{}).
		Where("id = ?", houseID).
		Update("score", gorm.Expr("score + ?", amount)).Error
}
