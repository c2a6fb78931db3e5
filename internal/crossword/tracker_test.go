package crossword

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/fenwicklabs/gala/internal/party"
	"github.com/fenwicklabs/gala/internal/scoring"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func newTestTracker(t *testing.T, puzzleBonus int) (*Tracker, *gorm.DB) {
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
	models := []interface{}{&party.House{}, &party.Guest{}, &scoring.PointAward{}, &Completion{}, &GuestState{}}
	if err := db.AutoMigrate(models...); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	for _, name := range []string{"Emberfall", "Galecrest", "Hollowmere", "Thornwood"} {
		if err := db.Create(&party.House{Name: name}).Error; err != nil {
			t.Fatalf("failed to seed house: %v", err)
		}
	}

	ledger, err := scoring.NewLedger(scoring.LedgerConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to build ledger: %v", err)
	}
	tracker, err := NewTracker(TrackerConfig{
		Database:    db,
		Ledger:      ledger,
		WordBonus:   5,
		PuzzleBonus: puzzleBonus,
	})
	if err != nil {
		t.Fatalf("failed to build tracker: %v", err)
	}
	return tracker, db
}

func houseScoreOf(t *testing.T, db *gorm.DB, houseID uint) int {
	t.Helper()
	var house party.House
	if err := db.Where("id = ?", houseID).Take(&house).Error; err != nil {
		t.Fatalf("failed to reload house: %v", err)
	}
	return house.Score
}

func TestRecordCompletionAwardsWordBonus(t *testing.T) {
	tracker, db := newTestTracker(t, 15)
	ctx := context.Background()

	completion, err := tracker.RecordCompletion(ctx, 1, 3)
	if err != nil {
		t.Fatalf("unexpected completion error: %v", err)
	}
	if completion.HouseID != 1 || completion.WordIndex != 3 {
		t.Fatalf("unexpected completion: %#v", completion)
	}
	if completion.CompletedAt.IsZero() {
		t.Fatalf("expected completion timestamp")
	}
	if score := houseScoreOf(t, db, 1); score != 5 {
		t.Fatalf("expected house score 5 after the word bonus, got %d", score)
	}
}

func TestRecordCompletionValidation(t *testing.T) {
	tracker, _ := newTestTracker(t, 15)
	ctx := context.Background()

	tests := []struct {
		name      string
		houseID   uint
		wordIndex int
		wantErr   error
	}{
		{name: "index-too-high", houseID: 1, wordIndex: WordCount, wantErr: ErrInvalidWordIndex},
		{name: "index-negative", houseID: 1, wordIndex: -1, wantErr: ErrInvalidWordIndex},
		{name: "unknown-house", houseID: 42, wordIndex: 0, wantErr: ErrUnknownHouse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tracker.RecordCompletion(ctx, tt.houseID, tt.wordIndex); !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}

	// The last valid index is accepted.
	if _, err := tracker.RecordCompletion(ctx, 1, WordCount-1); err != nil {
		t.Fatalf("unexpected completion error for last index: %v", err)
	}
}

func TestRecordCompletionRejectsDuplicate(t *testing.T) {
	tracker, db := newTestTracker(t, 15)
	ctx := context.Background()

	if _, err := tracker.RecordCompletion(ctx, 2, 0); err != nil {
		t.Fatalf("unexpected completion error: %v", err)
	}
	if _, err := tracker.RecordCompletion(ctx, 2, 0); !errors.Is(err, ErrAlreadyCompleted) {
		t.Fatalf("expected ErrAlreadyCompleted, got %v", err)
	}

	var completions int64
	if err := db.Model(&Completion{}).Count(&completions).Error; err != nil {
		t.Fatalf("failed to count completions: %v", err)
	}
	if completions != 1 {
		t.Fatalf("expected a single completion, got %d", completions)
	}

	var awards int64
	if err := db.Model(&scoring.PointAward{}).Count(&awards).Error; err != nil {
		t.Fatalf("failed to count awards: %v", err)
	}
	if awards != 1 {
		t.Fatalf("expected a single bonus award, got %d", awards)
	}
	if score := houseScoreOf(t, db, 2); score != 5 {
		t.Fatalf("expected the duplicate to leave the score at 5, got %d", score)
	}
}

func TestPuzzleBonusAwardedExactlyOnce(t *testing.T) {
	tracker, db := newTestTracker(t, 15)
	ctx := context.Background()

	for wordIndex := 0; wordIndex < WordCount; wordIndex++ {
		if _, err := tracker.RecordCompletion(ctx, 3, wordIndex); err != nil {
			t.Fatalf("unexpected completion error for word %d: %v", wordIndex, err)
		}
	}

	// 7 word bonuses of 5 plus one puzzle bonus of 15.
	if score := houseScoreOf(t, db, 3); score != WordCount*5+15 {
		t.Fatalf("expected house score %d, got %d", WordCount*5+15, score)
	}

	var bonuses int64
	err := db.Model(&scoring.PointAward{}).
		Where("reason = ?", "Crossword completion bonus").
		Count(&bonuses).Error
	if err != nil {
		t.Fatalf("failed to count puzzle bonuses: %v", err)
	}
	if bonuses != 1 {
		t.Fatalf("expected exactly one puzzle bonus, got %d", bonuses)
	}
}

func TestPuzzleBonusDisabledWhenZero(t *testing.T) {
	tracker, db := newTestTracker(t, 0)
	ctx := context.Background()

	for wordIndex := 0; wordIndex < WordCount; wordIndex++ {
		if _, err := tracker.RecordCompletion(ctx, 4, wordIndex); err != nil {
			t.Fatalf("unexpected completion error for word %d: %v", wordIndex, err)
		}
	}
	if score := houseScoreOf(t, db, 4); score != WordCount*5 {
		t.Fatalf("expected only word bonuses, got %d", score)
	}
}

func TestProgressReportsPerHouseFlags(t *testing.T) {
	tracker, _ := newTestTracker(t, 15)
	ctx := context.Background()

	if _, err := tracker.RecordCompletion(ctx, 1, 0); err != nil {
		t.Fatalf("unexpected completion error: %v", err)
	}
	if _, err := tracker.RecordCompletion(ctx, 1, 6); err != nil {
		t.Fatalf("unexpected completion error: %v", err)
	}
	if _, err := tracker.RecordCompletion(ctx, 2, 1); err != nil {
		t.Fatalf("unexpected completion error: %v", err)
	}

	progress, err := tracker.Progress(ctx)
	if err != nil {
		t.Fatalf("unexpected progress error: %v", err)
	}
	if len(progress) != 4 {
		t.Fatalf("expected all 4 houses present, got %d", len(progress))
	}
	if flags := progress[1]; !flags[0] || !flags[6] || flags[1] {
		t.Fatalf("unexpected flags for house 1: %v", flags)
	}
	if flags := progress[2]; !flags[1] || flags[0] {
		t.Fatalf("unexpected flags for house 2: %v", flags)
	}
	if flags := progress[3]; flags != ([WordCount]bool{}) {
		t.Fatalf("expected house 3 untouched, got %v", flags)
	}
}

func TestGuestStateInitializesOnFirstAccess(t *testing.T) {
	tracker, db := newTestTracker(t, 15)
	ctx := context.Background()
	houseID := uint(1)
	guest := party.Guest{Name: "Avery", HouseID: &houseID, Active: true}
	if err := db.Create(&guest).Error; err != nil {
		t.Fatalf("failed to seed guest: %v", err)
	}

	state, err := tracker.GuestStateOf(ctx, guest.ID)
	if err != nil {
		t.Fatalf("unexpected state error: %v", err)
	}
	if state.State != emptyStateBlob() {
		t.Fatalf("expected the empty blob, got %q", state.State)
	}

	again, err := tracker.GuestStateOf(ctx, guest.ID)
	if err != nil {
		t.Fatalf("unexpected state error: %v", err)
	}
	if again.ID != state.ID {
		t.Fatalf("expected the stored row to be reused")
	}
}

func TestSyncGuestStateRecordsNewWords(t *testing.T) {
	tracker, db := newTestTracker(t, 15)
	ctx := context.Background()
	houseID := uint(2)
	guest := party.Guest{Name: "Briar", HouseID: &houseID, Active: true}
	if err := db.Create(&guest).Error; err != nil {
		t.Fatalf("failed to seed guest: %v", err)
	}

	blob := `{"filled":[],"completions":[true,false,true,false,false,false,false]}`
	if err := tracker.SyncGuestState(ctx, guest.ID, blob); err != nil {
		t.Fatalf("unexpected sync error: %v", err)
	}

	var completions int64
	if err := db.Model(&Completion{}).Where("house_id = ?", houseID).Count(&completions).Error; err != nil {
		t.Fatalf("failed to count completions: %v", err)
	}
	if completions != 2 {
		t.Fatalf("expected 2 completions, got %d", completions)
	}
	if score := houseScoreOf(t, db, houseID); score != 10 {
		t.Fatalf("expected 2 word bonuses, got score %d", score)
	}

	stored, err := tracker.GuestStateOf(ctx, guest.ID)
	if err != nil {
		t.Fatalf("unexpected state error: %v", err)
	}
	if stored.State != blob {
		t.Fatalf("expected the blob to be stored verbatim, got %q", stored.State)
	}

	// Syncing the same blob again adds nothing.
	if err := tracker.SyncGuestState(ctx, guest.ID, blob); err != nil {
		t.Fatalf("unexpected repeat sync error: %v", err)
	}
	if score := houseScoreOf(t, db, houseID); score != 10 {
		t.Fatalf("expected the repeat sync to award nothing, got score %d", score)
	}
}

func TestSyncGuestStateAbsorbsHousemateCompletions(t *testing.T) {
	tracker, db := newTestTracker(t, 15)
	ctx := context.Background()
	houseID := uint(3)
	first := party.Guest{Name: "Casper", HouseID: &houseID, Active: true}
	second := party.Guest{Name: "Dorian", HouseID: &houseID, Active: true}
	for _, guest := range []*party.Guest{&first, &second} {
		if err := db.Create(guest).Error; err != nil {
			t.Fatalf("failed to seed guest: %v", err)
		}
	}

	blob := `{"filled":[],"completions":[true,false,false,false,false,false,false]}`
	if err := tracker.SyncGuestState(ctx, first.ID, blob); err != nil {
		t.Fatalf("unexpected sync error: %v", err)
	}
	// The housemate reports the same word; the duplicate is absorbed and the
	// blob still lands.
	if err := tracker.SyncGuestState(ctx, second.ID, blob); err != nil {
		t.Fatalf("unexpected housemate sync error: %v", err)
	}

	var completions int64
	if err := db.Model(&Completion{}).Where("house_id = ?", houseID).Count(&completions).Error; err != nil {
		t.Fatalf("failed to count completions: %v", err)
	}
	if completions != 1 {
		t.Fatalf("expected a single completion for the house, got %d", completions)
	}
	if score := houseScoreOf(t, db, houseID); score != 5 {
		t.Fatalf("expected a single word bonus, got score %d", score)
	}
}

func TestSyncGuestStateValidation(t *testing.T) {
	tracker, db := newTestTracker(t, 15)
	ctx := context.Background()
	houseID := uint(1)
	active := party.Guest{Name: "Elowen", HouseID: &houseID, Active: true}
	houseless := party.Guest{Name: "Fern", Active: true}
	inactive := party.Guest{Name: "Ash", HouseID: &houseID, Active: false}
	for _, guest := range []*party.Guest{&active, &houseless, &inactive} {
		if err := db.Create(guest).Error; err != nil {
			t.Fatalf("failed to seed guest: %v", err)
		}
	}
	blob := `{"filled":[],"completions":[false,false,false,false,false,false,false]}`

	if err := tracker.SyncGuestState(ctx, active.ID, "{not json"); !errors.Is(err, ErrMalformedState) {
		t.Fatalf("expected ErrMalformedState, got %v", err)
	}
	if err := tracker.SyncGuestState(ctx, houseless.ID, blob); !errors.Is(err, ErrUnknownGuest) {
		t.Fatalf("expected ErrUnknownGuest for a houseless guest, got %v", err)
	}
	if err := tracker.SyncGuestState(ctx, inactive.ID, blob); !errors.Is(err, ErrUnknownGuest) {
		t.Fatalf("expected ErrUnknownGuest for an inactive guest, got %v", err)
	}
	if err := tracker.SyncGuestState(ctx, 999, blob); !errors.Is(err, ErrUnknownGuest) {
		t.Fatalf("expected ErrUnknownGuest for a missing guest, got %v", err)
	}
}
