package crossword

import "time"

// WordCount is the number of words in the shared puzzle. Word indexes run
// from 0 to WordCount-1 inclusive.
const WordCount = 7

// Completion marks a house's first solve of one puzzle word. The composite
// unique index makes concurrent duplicate completions a storage-level
// conflict instead of a race.
type Completion struct {
	ID          uint      `gorm:"column:id;primaryKey"`
	HouseID     uint      `gorm:"column:house_id;not null;uniqueIndex:idx_house_word"`
	WordIndex   int       `gorm:"column:word_index;not null;uniqueIndex:idx_house_word"`
	CompletedAt time.Time `gorm:"column:completed_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Completion) TableName() string {
	return "house_crossword_completions"
}

// GuestState holds a guest's serialized puzzle progress. The blob is opaque
// to the tracker except for the per-word completion flags it carries.
type GuestState struct {
	ID        uint      `gorm:"column:id;primaryKey"`
	GuestID   uint      `gorm:"column:guest_id;not null;uniqueIndex"`
	State     string    `gorm:"column:state;type:text;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (GuestState) TableName() string {
	return "crossword_states"
}

// stateEnvelope extracts only the completion flags from the opaque blob.
// The grid contents stay uninterpreted.
type stateEnvelope struct {
	Completions [WordCount]bool `json:"completions"`
}
