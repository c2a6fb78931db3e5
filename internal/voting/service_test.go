package voting

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/fenwicklabs/gala/internal/party"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&party.House{}, &party.Guest{}, &Status{}, &Vote{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	if err := db.Create(&Status{ID: statusRowID}).Error; err != nil {
		t.Fatalf("failed to seed status row: %v", err)
	}

	service, err := NewService(ServiceConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to build service: %v", err)
	}
	return service, db
}

func seedActiveGuests(t *testing.T, db *gorm.DB, count int) []party.Guest {
	t.Helper()
	houseID := uint(1)
	guests := make([]party.Guest, 0, count)
	for i := 0; i < count; i++ {
		guest := party.Guest{Name: fmt.Sprintf("Guest %d", i+1), HouseID: &houseID, Active: true}
		if err := db.Create(&guest).Error; err != nil {
			t.Fatalf("failed to seed guest: %v", err)
		}
		guests = append(guests, guest)
	}
	return guests
}

func TestOpenSessionGuards(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()

	if err := service.OpenSession(ctx); err != nil {
		t.Fatalf("unexpected open error: %v", err)
	}
	if err := service.OpenSession(ctx); !errors.Is(err, ErrAlreadyOpen) {
		t.Fatalf("expected ErrAlreadyOpen, got %v", err)
	}

	status, err := service.Current(ctx)
	if err != nil {
		t.Fatalf("unexpected status error: %v", err)
	}
	if !status.Open || status.OpenedAt == nil {
		t.Fatalf("expected an open session with a timestamp, got %#v", status)
	}
}

func TestCloseSessionGuards(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()

	if err := service.CloseSession(ctx); !errors.Is(err, ErrAlreadyClosed) {
		t.Fatalf("expected ErrAlreadyClosed before any open, got %v", err)
	}
	if err := service.OpenSession(ctx); err != nil {
		t.Fatalf("unexpected open error: %v", err)
	}
	if err := service.CloseSession(ctx); err != nil {
		t.Fatalf("unexpected close error: %v", err)
	}
	if err := service.CloseSession(ctx); !errors.Is(err, ErrAlreadyClosed) {
		t.Fatalf("expected ErrAlreadyClosed, got %v", err)
	}

	status, err := service.Current(ctx)
	if err != nil {
		t.Fatalf("unexpected status error: %v", err)
	}
	if status.Open || status.ClosedAt == nil {
		t.Fatalf("expected a closed session with a timestamp, got %#v", status)
	}
}

func TestCastValidation(t *testing.T) {
	service, db := newTestService(t)
	ctx := context.Background()
	guests := seedActiveGuests(t, db, 4)
	ids := []uint{guests[0].ID, guests[1].ID, guests[2].ID, guests[3].ID}

	tests := []struct {
		name    string
		open    bool
		voter   uint
		choices [3]uint
		wantErr error
	}{
		{name: "self-vote", open: true, voter: ids[0], choices: [3]uint{ids[0], ids[1], ids[2]}, wantErr: ErrSelfVote},
		{name: "duplicate-choice", open: true, voter: ids[0], choices: [3]uint{ids[1], ids[1], ids[2]}, wantErr: ErrDuplicateChoice},
		{name: "session-closed", open: false, voter: ids[0], choices: [3]uint{ids[1], ids[2], ids[3]}, wantErr: ErrSessionClosed},
		{name: "unknown-choice", open: true, voter: ids[0], choices: [3]uint{ids[1], ids[2], 999}, wantErr: ErrUnknownGuest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := db.Model(&Status{}).Where("id = ?", statusRowID).Update("is_open", tt.open).Error; err != nil {
				t.Fatalf("failed to force session state: %v", err)
			}
			if _, err := service.Cast(ctx, tt.voter, tt.choices[0], tt.choices[1], tt.choices[2]); !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestCastRejectsInactiveVoter(t *testing.T) {
	service, db := newTestService(t)
	ctx := context.Background()
	guests := seedActiveGuests(t, db, 4)

	if err := service.OpenSession(ctx); err != nil {
		t.Fatalf("unexpected open error: %v", err)
	}
	if err := db.Model(&party.Guest{}).Where("id = ?", guests[0].ID).Update("is_active", false).Error; err != nil {
		t.Fatalf("failed to deactivate guest: %v", err)
	}

	_, err := service.Cast(ctx, guests[0].ID, guests[1].ID, guests[2].ID, guests[3].ID)
	if !errors.Is(err, ErrUnknownGuest) {
		t.Fatalf("expected ErrUnknownGuest, got %v", err)
	}
}

func TestCastRejectsSecondBallot(t *testing.T) {
	service, db := newTestService(t)
	ctx := context.Background()
	guests := seedActiveGuests(t, db, 4)

	if err := service.OpenSession(ctx); err != nil {
		t.Fatalf("unexpected open error: %v", err)
	}
	if _, err := service.Cast(ctx, guests[0].ID, guests[1].ID, guests[2].ID, guests[3].ID); err != nil {
		t.Fatalf("unexpected cast error: %v", err)
	}

	_, err := service.Cast(ctx, guests[0].ID, guests[3].ID, guests[2].ID, guests[1].ID)
	if !errors.Is(err, ErrDuplicateBallot) {
		t.Fatalf("expected ErrDuplicateBallot, got %v", err)
	}

	voted, err := service.HasVoted(ctx, guests[0].ID)
	if err != nil {
		t.Fatalf("unexpected has-voted error: %v", err)
	}
	if !voted {
		t.Fatalf("expected the first ballot to stand")
	}

	ballot, found, err := service.BallotOf(ctx, guests[0].ID)
	if err != nil {
		t.Fatalf("unexpected ballot lookup error: %v", err)
	}
	if !found || ballot.FirstChoiceID != guests[1].ID {
		t.Fatalf("expected the original ballot to survive, got %#v", ballot)
	}
}

func TestConcurrentDuplicateCast(t *testing.T) {
	service, db := newTestService(t)
	ctx := context.Background()
	guests := seedActiveGuests(t, db, 4)

	if err := service.OpenSession(ctx); err != nil {
		t.Fatalf("unexpected open error: %v", err)
	}

	const attempts = 8
	results := make([]error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			_, results[slot] = service.Cast(ctx, guests[0].ID, guests[1].ID, guests[2].ID, guests[3].ID)
		}(i)
	}
	wg.Wait()

	var succeeded, duplicated int
	for _, err := range results {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, ErrDuplicateBallot):
			duplicated++
		default:
			t.Fatalf("unexpected cast error: %v", err)
		}
	}
	if succeeded != 1 || duplicated != attempts-1 {
		t.Fatalf("expected exactly one winner, got %d successes and %d duplicates", succeeded, duplicated)
	}

	var count int64
	if err := db.Model(&Vote{}).Count(&count).Error; err != nil {
		t.Fatalf("failed to count ballots: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected a single stored ballot, got %d", count)
	}
}

func TestReopenClearsBallots(t *testing.T) {
	service, db := newTestService(t)
	ctx := context.Background()
	guests := seedActiveGuests(t, db, 4)

	if err := service.OpenSession(ctx); err != nil {
		t.Fatalf("unexpected open error: %v", err)
	}
	if _, err := service.Cast(ctx, guests[0].ID, guests[1].ID, guests[2].ID, guests[3].ID); err != nil {
		t.Fatalf("unexpected cast error: %v", err)
	}
	if err := service.CloseSession(ctx); err != nil {
		t.Fatalf("unexpected close error: %v", err)
	}
	if err := service.OpenSession(ctx); err != nil {
		t.Fatalf("unexpected reopen error: %v", err)
	}

	var count int64
	if err := db.Model(&Vote{}).Count(&count).Error; err != nil {
		t.Fatalf("failed to count ballots: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected reopening to clear ballots, got %d", count)
	}

	status, err := service.Current(ctx)
	if err != nil {
		t.Fatalf("unexpected status error: %v", err)
	}
	if status.ClosedAt != nil {
		t.Fatalf("expected closed_at to reset on reopen, got %v", status.ClosedAt)
	}
}

func TestTallyGuards(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()

	if _, err := service.Tally(ctx); !errors.Is(err, ErrNeverOpened) {
		t.Fatalf("expected ErrNeverOpened, got %v", err)
	}
	if err := service.OpenSession(ctx); err != nil {
		t.Fatalf("unexpected open error: %v", err)
	}
	if _, err := service.Tally(ctx); !errors.Is(err, ErrAlreadyOpen) {
		t.Fatalf("expected ErrAlreadyOpen while the session is open, got %v", err)
	}
}

func TestTallyProducesWinner(t *testing.T) {
	service, db := newTestService(t)
	ctx := context.Background()
	guests := seedActiveGuests(t, db, 4)
	ids := []uint{guests[0].ID, guests[1].ID, guests[2].ID, guests[3].ID}

	if err := service.OpenSession(ctx); err != nil {
		t.Fatalf("unexpected open error: %v", err)
	}
	ballots := [][4]uint{
		{ids[0], ids[1], ids[2], ids[3]},
		{ids[1], ids[0], ids[2], ids[3]},
		{ids[2], ids[0], ids[1], ids[3]},
		{ids[3], ids[2], ids[0], ids[1]},
	}
	for _, cast := range ballots {
		if _, err := service.Cast(ctx, cast[0], cast[1], cast[2], cast[3]); err != nil {
			t.Fatalf("unexpected cast error: %v", err)
		}
	}
	if err := service.CloseSession(ctx); err != nil {
		t.Fatalf("unexpected close error: %v", err)
	}

	result, err := service.Tally(ctx)
	if err != nil {
		t.Fatalf("unexpected tally error: %v", err)
	}
	if result.WinnerID == nil || *result.WinnerID != ids[0] {
		t.Fatalf("expected guest %d to win, got %v", ids[0], result.WinnerID)
	}

	ballotCount, guestCount, err := service.Stats(ctx)
	if err != nil {
		t.Fatalf("unexpected stats error: %v", err)
	}
	if ballotCount != 4 || guestCount != 4 {
		t.Fatalf("expected 4 ballots and 4 active guests, got %d and %d", ballotCount, guestCount)
	}
}
