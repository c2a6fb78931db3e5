package party

import "time"

// HouseCount is the fixed number of houses seeded for the event.
const HouseCount = 4

// House is one of the four fixed teams guests belong to. The score column
// is a cached aggregate; the point ledger remains the source of truth.
type House struct {
	ID    uint   `gorm:"column:id;primaryKey"`
	Name  string `gorm:"column:name;size:190;not null;uniqueIndex"`
	Score int    `gorm:"column:score;not null;default:0"`
}

// TableName provides the explicit table binding for GORM.
func (House) TableName() string {
	return "houses"
}

// Guest models a participant. Guests are pre-populated as unregistered
// placeholders (no house, inactive) and activated at registration time.
type Guest struct {
	ID            uint       `gorm:"column:id;primaryKey"`
	Name          string     `gorm:"column:name;size:190;not null"`
	HouseID       *uint      `gorm:"column:house_id;index"`
	PersonalScore int        `gorm:"column:personal_score;not null;default:0"`
	Active        bool       `gorm:"column:is_active;not null;default:false"`
	RegisteredAt  *time.Time `gorm:"column:registered_at"`
	Character     *string    `gorm:"column:character;size:190"`
}

// TableName provides the explicit table binding for GORM.
func (Guest) TableName() string {
	return "guests"
}
