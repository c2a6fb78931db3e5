package scoring

import "fmt"

// SubjectKind discriminates the two legal targets of a point award.
type SubjectKind int

const (
	// SubjectGuest targets a single guest's personal score.
	SubjectGuest SubjectKind = iota + 1
	// SubjectHouse targets a house directly.
	SubjectHouse
)

// AwardSubject is a tagged variant: exactly one of guest or house. The zero
// value is invalid; construction goes through GuestSubject or HouseSubject.
type AwardSubject struct {
	kind SubjectKind
	id   uint
}

// GuestSubject builds a subject targeting the given guest.
func GuestSubject(guestID uint) AwardSubject {
	return AwardSubject{kind: SubjectGuest, id: guestID}
}

// HouseSubject builds a subject targeting the given house.
func HouseSubject(houseID uint) AwardSubject {
	return AwardSubject{kind: SubjectHouse, id: houseID}
}

// Kind reports which variant the subject holds.
func (s AwardSubject) Kind() SubjectKind {
	return s.kind
}

// ID returns the targeted entity identifier.
func (s AwardSubject) ID() uint {
	return s.id
}

// IsZero reports whether the subject was never constructed properly.
func (s AwardSubject) IsZero() bool {
	return s.kind != SubjectGuest && s.kind != SubjectHouse
}

// String renders the subject for log fields.
func (s AwardSubject) String() string {
	switch s.kind {
	case SubjectGuest:
		return fmt.Sprintf("guest/%d", s.id)
	case SubjectHouse:
		return fmt.Sprintf("house/%d", s.id)
	default:
		return "invalid"
	}
}
