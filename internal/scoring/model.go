package scoring

import "time"

// PointAward is one immutable entry in the append-only point ledger. Entries
// are never updated or deleted; when a referenced guest or house is removed
// the reference column is cleared and the entry survives.
type PointAward struct {
	ID        uint      `gorm:"column:id;primaryKey"`
	GuestID   *uint     `gorm:"column:guest_id;index"`
	HouseID   *uint     `gorm:"column:house_id;index"`
	Amount    int       `gorm:"column:amount;not null"`
	Reason    string    `gorm:"column:reason;size:512;not null"`
	AwardedAt time.Time `gorm:"column:awarded_at;not null;index"`
}

// TableName provides the explicit table binding for GORM.
func (PointAward) TableName() string {
	return "point_awards"
}

// Subject reconstructs the tagged variant from the persisted column pair.
func (a PointAward) Subject() AwardSubject {
	switch {
	case a.GuestID != nil && a.HouseID == nil:
		return GuestSubject(*a.GuestID)
	case a.HouseID != nil && a.GuestID == nil:
		return HouseSubject(*a.HouseID)
	default:
		return AwardSubject{}
	}
}

// AwardLogEntry is a ledger row joined with the subject's display name, used
// by the admin award log.
type AwardLogEntry struct {
	ID        uint      `gorm:"column:id"`
	GuestName *string   `gorm:"column:guest_name"`
	HouseName *string   `gorm:"column:house_name"`
	Amount    int       `gorm:"column:amount"`
	Reason    string    `gorm:"column:reason"`
	AwardedAt time.Time `gorm:"column:awarded_at"`
}
