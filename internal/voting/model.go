package voting

import "time"

// statusRowID pins the voting status to a single row.
const statusRowID = 1

// Status is the singleton voting-session row. Transitions are guarded
// single-row updates so they stay atomic across processes.
type Status struct {
	ID       uint       `gorm:"column:id;primaryKey"`
	Open     bool       `gorm:"column:is_open;not null;default:false"`
	OpenedAt *time.Time `gorm:"column:opened_at"`
	ClosedAt *time.Time `gorm:"column:closed_at"`
}

// TableName provides the explicit table binding for GORM.
func (Status) TableName() string {
	return "voting_status"
}

// Vote is one guest's ranked-choice ballot: three pairwise-distinct picks,
// none of them the voter. A ballot is immutable once cast; the unique index
// on voter_id enforces one ballot per voter at the storage layer.
type Vote struct {
	ID             uint      `gorm:"column:id;primaryKey"`
	VoterID        uint      `gorm:"column:voter_id;not null;uniqueIndex"`
	FirstChoiceID  uint      `gorm:"column:first_choice_id;not null"`
	SecondChoiceID uint      `gorm:"column:second_choice_id;not null"`
	ThirdChoiceID  uint      `gorm:"column:third_choice_id;not null"`
	SubmittedAt    time.Time `gorm:"column:submitted_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Vote) TableName() string {
	return "votes"
}

// choices lists the ballot's picks in rank order.
func (v Vote) choices() [3]uint {
	return [3]uint{v.FirstChoiceID, v.SecondChoiceID, v.ThirdChoiceID}
}
