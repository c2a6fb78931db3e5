package crossword

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fenwicklabs/gala/internal/party"
	"github.com/fenwicklabs/gala/internal/scoring"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrInvalidWordIndex indicates a word index outside [0, WordCount).
	ErrInvalidWordIndex = errors.New("crossword: word index out of range")
	// ErrAlreadyCompleted indicates the house already completed that word.
	ErrAlreadyCompleted = errors.New("crossword: word already completed by house")
	// ErrUnknownHouse indicates the house id does not reference a known house.
	ErrUnknownHouse = errors.New("crossword: house not found")
	// ErrUnknownGuest indicates the guest is missing, inactive, or houseless.
	ErrUnknownGuest = errors.New("crossword: guest not found or not assigned")
	// ErrMalformedState indicates the serialized puzzle blob cannot be parsed.
	ErrMalformedState = errors.New("crossword: malformed puzzle state")

	errMissingDatabase = errors.New("database handle is required")
	errMissingLedger   = errors.New("point ledger is required")
	noOpLogger         = zap.NewNop()
)

// TrackerConfig describes the dependencies of the completion tracker.
type TrackerConfig struct {
	Database *gorm.DB
	Ledger   *scoring.Ledger
	Clock    func() time.Time
	Logger   *zap.Logger
	// WordBonus is awarded to the house on its first completion of a word.
	WordBonus int
	// PuzzleBonus is awarded once when a house completes all words. Zero
	// disables the extra bonus.
	PuzzleBonus int
}

// Tracker records per-house crossword word completions and feeds the
// resulting bonus awards into the point ledger. The completion insert and
// the award share one transaction, so a racing duplicate produces exactly
// one completion and exactly one bonus.
type Tracker struct {
	db          *gorm.DB
	ledger      *scoring.Ledger
	clock       func() time.Time
	logger      *zap.Logger
	wordBonus   int
	puzzleBonus int
}

// NewTracker constructs the completion tracker.
func NewTracker(cfg TrackerConfig) (*Tracker, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	if cfg.Ledger == nil {
		return nil, errMissingLedger
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Tracker{
		db:          cfg.Database,
		ledger:      cfg.Ledger,
		clock:       clock,
		logger:      logger,
		wordBonus:   cfg.WordBonus,
		puzzleBonus: cfg.PuzzleBonus,
	}, nil
}

// RecordCompletion persists the house's first completion of the word and
// awards the configured bonus. A repeat completion fails with
// ErrAlreadyCompleted and leaves the ledger untouched.
func (t *Tracker) RecordCompletion(ctx context.Context, houseID uint, wordIndex int) (Completion, error) {
	var completion Completion
	txErr := t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		completion, err = t.recordInTx(tx, houseID, wordIndex)
		return err
	})
	if txErr != nil {
		return Completion{}, txErr
	}

	t.logger.Info("crossword word completed",
		zap.Uint("house_id", houseID),
		zap.Int("word_index", wordIndex))
	return completion, nil
}

// Progress returns each house's completion flags keyed by house id.
func (t *Tracker) Progress(ctx context.Context) (map[uint][WordCount]bool, error) {
	var completions []Completion
	if err := t.db.WithContext(ctx).Find(&completions).Error; err != nil {
		return nil, err
	}

	progress := make(map[uint][WordCount]bool)
	var houses []party.House
	if err := t.db.WithContext(ctx).Find(&houses).Error; err != nil {
		return nil, err
	}
	for _, house := range houses {
		progress[house.ID] = [WordCount]bool{}
	}
	for _, completion := range completions {
		if completion.WordIndex < 0 || completion.WordIndex >= WordCount {
			continue
		}
		flags := progress[completion.HouseID]
		flags[completion.WordIndex] = true
		progress[completion.HouseID] = flags
	}
	return progress, nil
}

// GuestStateOf returns the guest's stored puzzle blob, initializing an empty
// one on first access.
func (t *Tracker) GuestStateOf(ctx context.Context, guestID uint) (GuestState, error) {
	var state GuestState
	err := t.db.WithContext(ctx).Where("guest_id = ?", guestID).Take(&state).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		state = GuestState{
			GuestID:   guestID,
			State:     emptyStateBlob(),
			UpdatedAt: t.clock().UTC(),
		}
		if err := t.db.WithContext(ctx).Create(&state).Error; err != nil {
			return GuestState{}, err
		}
		return state, nil
	}
	if err != nil {
		return GuestState{}, err
	}
	return state, nil
}

// SyncGuestState replaces the guest's puzzle blob and records any words the
// blob newly marks complete for the guest's house. Words another guest of
// the same house completed first are absorbed silently.
func (t *Tracker) SyncGuestState(ctx context.Context, guestID uint, raw string) error {
	var incoming stateEnvelope
	if err := json.Unmarshal([]byte(raw), &incoming); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedState, err)
	}

	txErr := t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var guest party.Guest
		err := tx.Where("id = ? AND is_active = ?", guestID, true).Take(&guest).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrUnknownGuest
		}
		if err != nil {
			return err
		}
		if guest.HouseID == nil {
			return ErrUnknownGuest
		}

		previous := stateEnvelope{}
		var stored GuestState
		err = tx.Where("guest_id = ?", guestID).Take(&stored).Error
		if err == nil {
			// A stored blob that fails to parse counts as all-incomplete
			// rather than blocking the sync.
			_ = json.Unmarshal([]byte(stored.State), &previous)
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		for wordIndex := 0; wordIndex < WordCount; wordIndex++ {
			if previous.Completions[wordIndex] || !incoming.Completions[wordIndex] {
				continue
			}
			if _, err := t.recordInTx(tx, *guest.HouseID, wordIndex); err != nil {
				if errors.Is(err, ErrAlreadyCompleted) {
					continue
				}
				return err
			}
		}

		now := t.clock().UTC()
		if stored.ID != 0 {
			return tx.Model(&GuestState{}).
				Where("id = ?", stored.ID).
				Updates(map[string]interface{}{"state": raw, "updated_at": now}).Error
		}
		return tx.Create(&GuestState{GuestID: guestID, State: raw, UpdatedAt: now}).Error
	})
	if txErr != nil {
		return txErr
	}

	t.logger.Debug("crossword state synced", zap.Uint("guest_id", guestID))
	return nil
}

func (t *Tracker) recordInTx(tx *gorm.DB, houseID uint, wordIndex int) (Completion, error) {
	if wordIndex < 0 || wordIndex >= WordCount {
		return Completion{}, ErrInvalidWordIndex
	}

	var count int64
	if err := tx.Model(&party.House{}).Where("id = ?", houseID).Count(&count).Error; err != nil {
		return Completion{}, err
	}
	if count == 0 {
		return Completion{}, ErrUnknownHouse
	}

	completion := Completion{
		HouseID:     houseID,
		WordIndex:   wordIndex,
		CompletedAt: t.clock().UTC(),
	}
	if err := tx.Create(&completion).Error; err != nil {
		if isUniqueViolation(err) {
			return Completion{}, ErrAlreadyCompleted
		}
		return Completion{}, err
	}

	reason := fmt.Sprintf("Crossword word %d completed by house", wordIndex)
	if _, err := t.ledger.AwardInTx(tx, scoring.HouseSubject(houseID), t.wordBonus, reason); err != nil {
		return Completion{}, err
	}

	if t.puzzleBonus > 0 {
		var solved int64
		if err := tx.Model(&Completion{}).Where("house_id = ?", houseID).Count(&solved).Error; err != nil {
			return Completion{}, err
		}
		if solved == WordCount {
			bonus := scoring.HouseSubject(houseID)
			if _, err := t.ledger.AwardInTx(tx, bonus, t.puzzleBonus, "Crossword completion bonus"); err != nil {
				return Completion{}, err
			}
		}
	}

	return completion, nil
}

func emptyStateBlob() string {
	blob, _ := json.Marshal(struct {
		Filled      [][3]interface{} `json:"filled"`
		Completions [WordCount]bool  `json:"completions"`
	}{Filled: [][3]interface{}{}})
	return string(blob)
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
