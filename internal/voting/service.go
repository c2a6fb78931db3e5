package voting

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
	// ErrAlreadyOpen indicates the session is open: either an open on an
	// already-open session, or a tally attempted before closing.
	ErrAlreadyOpen = errors.New("voting: session already open")
	// ErrAlreadyClosed indicates a close on an already-closed session.
	ErrAlreadyClosed = errors.New("voting: session already closed")
	// ErrSessionClosed indicates a ballot cast while the session is closed.
	ErrSessionClosed = errors.New("voting: session is closed")
	// ErrNeverOpened indicates a tally before any session has completed.
	ErrNeverOpened = errors.New("voting: no session has been opened yet")
	// ErrDuplicateBallot indicates the voter has already cast a ballot.
	ErrDuplicateBallot = errors.New("voting: ballot already cast")
	// ErrSelfVote indicates a ballot choice equals the voter.
	ErrSelfVote = errors.New("voting: cannot vote for yourself")
	// ErrDuplicateChoice indicates the three choices are not pairwise distinct.
	ErrDuplicateChoice = errors.New("voting: choices must be distinct")
	// ErrUnknownGuest indicates the voter or a choice is not an active guest.
	ErrUnknownGuest = errors.New("voting: unknown or inactive guest")

	errMissingDatabase = errors.New("database handle is required")
	errMissingStatus   = errors.New("voting status row is missing")
	noOpLogger         = zap.NewNop()
)

// ServiceConfig describes the dependencies of the voting service.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service owns the voting-session state machine, the ballot store, and the
// tally entry point. All writes are transactional; the per-voter uniqueness
// is enforced by the votes unique index rather than a check-then-insert.
type Service struct {
	db     *gorm.DB
	clock  func() time.Time
	logger *zap.Logger
}

// NewService constructs the voting service.
func NewService(cfg ServiceConfig) (*Service, error) {
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
	return &Service{db: cfg.Database, clock: clock, logger: logger}, nil
}

// OpenSession transitions the singleton status from closed to open. Opening
// starts a fresh round: ballots from any previous round are deleted in the
// same transaction, since the schema keeps at most one round of ballots.
func (s *Service) OpenSession(ctx context.Context) error {
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.clock().UTC()
		result := tx.Model(&Status{}).
			Where("id = ? AND is_open = ?", statusRowID, false).
			Updates(map[string]interface{}{
				"is_open":   true,
				"opened_at": now,
				"closed_at": nil,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return s.guardFailure(tx, ErrAlreadyOpen)
		}
		return tx.Where("1 = 1").Delete(&Vote{}).Error
	})
	if txErr != nil {
		return txErr
	}
	s.logger.Info("voting session opened")
	return nil
}

// CloseSession transitions the singleton status from open to closed. Cast
// ballots are kept for the tally.
func (s *Service) CloseSession(ctx context.Context) error {
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&Status{}).
			Where("id = ? AND is_open = ?", statusRowID, true).
			Updates(map[string]interface{}{
				"is_open":   false,
				"closed_at": s.clock().UTC(),
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return s.guardFailure(tx, ErrAlreadyClosed)
		}
		return nil
	})
	if txErr != nil {
		return txErr
	}
	s.logger.Info("voting session closed")
	return nil
}

// Cast stores the voter's ranked ballot. The session check, guest checks,
// and the insert share one transaction, so a cast racing a close either
// fully lands under open semantics or fully fails.
func (s *Service) Cast(ctx context.Context, voterID, first, second, third uint) (Vote, error) {
	if first == voterID || second == voterID || third == voterID {
		return Vote{}, ErrSelfVote
	}
	if first == second || first == third || second == third {
		return Vote{}, ErrDuplicateChoice
	}

	ballot := Vote{
		VoterID:        voterID,
		FirstChoiceID:  first,
		SecondChoiceID: second,
		ThirdChoiceID:  third,
	}
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		status, err := s.statusRow(tx, true)
		if err != nil {
			return err
		}
		if !status.Open {
			return ErrSessionClosed
		}

		var known int64
		err = tx.Model(&party.Guest{}).
			Where("id IN ? AND is_active = ?", []uint{voterID, first, second, third}, true).
			Count(&known).Error
		if err != nil {
			return err
		}
		if known != 4 {
			return ErrUnknownGuest
		}

		ballot.SubmittedAt = s.clock().UTC()
		if err := tx.Create(&ballot).Error; err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicateBallot
			}
			return err
		}
		return nil
	})
	if txErr != nil {
		return Vote{}, txErr
	}

	s.logger.Info("ballot cast", zap.Uint("voter_id", voterID))
	return ballot, nil
}

// Tally runs ranked-choice elimination over the stored ballots. It refuses
// to run while the session is open or before any session has completed.
func (s *Service) Tally(ctx context.Context) (Result, error) {
	status, err := s.statusRow(s.db.WithContext(ctx), false)
	if err != nil {
		return Result{}, err
	}
	if status.Open {
		return Result{}, ErrAlreadyOpen
	}
	if status.OpenedAt == nil {
		return Result{}, ErrNeverOpened
	}

	var ballots []Vote
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&ballots).Error; err != nil {
		return Result{}, err
	}
	return ComputeTally(ballots), nil
}

// HasVoted reports whether the voter has a ballot in the current round.
func (s *Service) HasVoted(ctx context.Context, voterID uint) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&Vote{}).
		Where("voter_id = ?", voterID).
		Count(&count).Error
	return count > 0, err
}

// BallotOf returns the voter's own ballot, if one exists.
func (s *Service) BallotOf(ctx context.Context, voterID uint) (Vote, bool, error) {
	var ballot Vote
	err := s.db.WithContext(ctx).Where("voter_id = ?", voterID).Take(&ballot).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Vote{}, false, nil
	}
	if err != nil {
		return Vote{}, false, err
	}
	return ballot, true, nil
}

// Stats returns the number of ballots cast and the number of active guests.
func (s *Service) Stats(ctx context.Context) (int64, int64, error) {
	var ballots int64
	if err := s.db.WithContext(ctx).Model(&Vote{}).Count(&ballots).Error; err != nil {
		return 0, 0, err
	}
	var guests int64
	err := s.db.WithContext(ctx).Model(&party.Guest{}).
		Where("is_active = ?", true).
		Count(&guests).Error
	return ballots, guests, err
}

// Current returns the singleton session status.
func (s *Service) Current(ctx context.Context) (Status, error) {
	return s.statusRow(s.db.WithContext(ctx), false)
}

func (s *Service) statusRow(tx *gorm.DB, forUpdate bool) (Status, error) {
	var status Status
	query := tx
	if forUpdate {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	err := query.Where("id = ?", statusRowID).Take(&status).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Status{}, errMissingStatus
	}
	if err != nil {
		return Status{}, err
	}
	return status, nil
}

// guardFailure distinguishes a lost state-machine guard from a missing
// singleton row.
func (s *Service) guardFailure(tx *gorm.DB, guardErr error) error {
	var count int64
	if err := tx.Model(&Status{}).Where("id = ?", statusRowID).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return errMissingStatus
	}
	return guardErr
}

// isUniqueViolation translates storage-layer uniqueness failures so racing
// casts surface as duplicate ballots instead of raw driver errors.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
