package party

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrGuestNotFound indicates the guest id does not reference a known guest.
	ErrGuestNotFound = errors.New("party: guest not found")
	// ErrHouseNotFound indicates the house id does not reference a known house.
	ErrHouseNotFound = errors.New("party: house not found")
	// ErrGuestAlreadyActive indicates the placeholder guest was already registered.
	ErrGuestAlreadyActive = errors.New("party: guest already active")

	errMissingDatabase    = errors.New("database handle is required")
	errMissingTokenIssuer = errors.New("token issuer is required")
	noOpLogger            = zap.NewNop()
)

// TokenIssuer mints session tokens for freshly registered guests.
type TokenIssuer interface {
	Issue(guestID uint) (string, error)
}

// ServiceConfig describes the dependencies of the guest registry service.
type ServiceConfig struct {
	Database *gorm.DB
	Tokens   TokenIssuer
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service manages guest activation and house membership.
type Service struct {
	db     *gorm.DB
	tokens TokenIssuer
	clock  func() time.Time
	logger *zap.Logger
}

// NewService constructs the guest registry service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	if cfg.Tokens == nil {
		return nil, errMissingTokenIssuer
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{db: cfg.Database, tokens: cfg.Tokens, clock: clock, logger: logger}, nil
}

// Register activates a pre-populated unregistered guest: assigns the house,
// sets the character label and registration time, and issues a session token.
func (s *Service) Register(ctx context.Context, guestID, houseID uint, character string) (Guest, string, error) {
	var registered Guest
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var guest Guest
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", guestID).
			Take(&guest).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrGuestNotFound
		}
		if err != nil {
			return err
		}
		if guest.Active {
			return ErrGuestAlreadyActive
		}

		if err := houseExists(tx, houseID); err != nil {
			return err
		}

		now := s.clock().UTC()
		trimmed := strings.TrimSpace(character)
		updates := map[string]interface{}{
			"house_id":      houseID,
			"is_active":     true,
			"registered_at": now,
		}
		if trimmed != "" {
			updates["character"] = trimmed
		}
		if err := tx.Model(&Guest{}).Where("id = ?", guestID).Updates(updates).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", guestID).Take(&registered).Error
	})
	if txErr != nil {
		return Guest{}, "", txErr
	}

	token, err := s.tokens.Issue(registered.ID)
	if err != nil {
		return Guest{}, "", err
	}

	s.logger.Info("guest registered",
		zap.Uint("guest_id", registered.ID),
		zap.Uint("house_id", houseID))
	return registered, token, nil
}

// Reregister reactivates a guest, optionally moving them to a new house or
// relabeling their character, and issues a fresh session token.
func (s *Service) Reregister(ctx context.Context, guestID uint, houseID *uint, character *string) (Guest, string, error) {
	var updated Guest
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var guest Guest
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", guestID).
			Take(&guest).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrGuestNotFound
		}
		if err != nil {
			return err
		}

		updates := map[string]interface{}{
			"is_active":     true,
			"registered_at": s.clock().UTC(),
		}
		if houseID != nil {
			if err := houseExists(tx, *houseID); err != nil {
				return err
			}
			updates["house_id"] = *houseID
		}
		if character != nil {
			updates["character"] = strings.TrimSpace(*character)
		}
		if err := tx.Model(&Guest{}).Where("id = ?", guestID).Updates(updates).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", guestID).Take(&updated).Error
	})
	if txErr != nil {
		return Guest{}, "", txErr
	}

	token, err := s.tokens.Issue(updated.ID)
	if err != nil {
		return Guest{}, "", err
	}

	s.logger.Info("guest reregistered", zap.Uint("guest_id", updated.ID))
	return updated, token, nil
}

// Unregister deactivates a guest. Ledger entries referencing the guest are
// kept; only the active flag changes.
func (s *Service) Unregister(ctx context.Context, guestID uint) error {
	result := s.db.WithContext(ctx).
		Model(&Guest{}).
		Where("id = ?", guestID).
		Update("is_active", false)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrGuestNotFound
	}
	return nil
}

// GuestDetails returns an active guest together with their house.
func (s *Service) GuestDetails(ctx context.Context, guestID uint) (Guest, House, error) {
	var guest Guest
	err := s.db.WithContext(ctx).
		Where("id = ? AND is_active = ?", guestID, true).
		Take(&guest).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Guest{}, House{}, ErrGuestNotFound
	}
	if err != nil {
		return Guest{}, House{}, err
	}
	if guest.HouseID == nil {
		return Guest{}, House{}, ErrHouseNotFound
	}

	var house House
	err = s.db.WithContext(ctx).Where("id = ?", *guest.HouseID).Take(&house).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Guest{}, House{}, ErrHouseNotFound
	}
	if err != nil {
		return Guest{}, House{}, err
	}
	return guest, house, nil
}

// ActiveGuests returns all registered guests.
func (s *Service) ActiveGuests(ctx context.Context) ([]Guest, error) {
	var guests []Guest
	err := s.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("id ASC").
		Find(&guests).Error
	return guests, err
}

// UnregisteredGuests returns the remaining placeholder guests.
func (s *Service) UnregisteredGuests(ctx context.Context) ([]Guest, error) {
	var guests []Guest
	err := s.db.WithContext(ctx).
		Where("is_active = ?", false).
		Order("name ASC").
		Find(&guests).Error
	return guests, err
}

// Houses returns the four houses ordered by name.
func (s *Service) Houses(ctx context.Context) ([]House, error) {
	var houses []House
	err := s.db.WithContext(ctx).Order("name ASC").Find(&houses).Error
	return houses, err
}

func houseExists(tx *gorm.DB, houseID uint) error {
	var count int64
	if err := tx.Model(&House{}).Where("id = ?", houseID).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return ErrHouseNotFound
	}
	return nil
}
