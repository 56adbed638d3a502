package domain

import "time"

// QuotaWindow is the rolling interval consumption is counted over
const QuotaWindow = 24 * time.Hour

// EventKind tags a recorded message with the quota class it consumed
type EventKind int

const (
	KindNone EventKind = iota
	KindDrawing
	KindVision
	KindAudio
	KindText
)

// ChargeableKinds are the kinds counted against the shared daily ceiling
var ChargeableKinds = []EventKind{KindDrawing, KindVision, KindAudio, KindText}

// String returns the storage name of the kind
func (k EventKind) String() string {
	switch k {
	case KindDrawing:
		return "drawing"
	case KindVision:
		return "vision"
	case KindAudio:
		return "audio"
	case KindText:
		return "text"
	default:
		return "none"
	}
}

// Chargeable reports whether events of this kind consume quota
func (k EventKind) Chargeable() bool {
	return k != KindNone
}

// QuotaClass says which limits a command is checked against
type QuotaClass int

const (
	QuotaNone QuotaClass = iota
	QuotaShared
	QuotaPerUser
)

// ChecksPerUser reports whether the per-user gate applies
func (c QuotaClass) ChecksPerUser() bool {
	return c == QuotaPerUser
}

// ChecksShared reports whether the shared gate applies
func (c QuotaClass) ChecksShared() bool {
	return c == QuotaShared || c == QuotaPerUser
}

// Subject is whom a window count is computed for
type Subject struct {
	UserID string
}

// GlobalSubject counts events system-wide
var GlobalSubject = Subject{}

// IsGlobal reports whether the subject is system-wide
func (s Subject) IsGlobal() bool {
	return s.UserID == ""
}

// UserSubject returns the subject for a single user
func UserSubject(userID string) Subject {
	return Subject{UserID: userID}
}

// QuotaEvent is one append-only entry of the message log
type QuotaEvent struct {
	ID        string
	UserID    string
	ChatID    string
	Kind      EventKind
	Command   string
	Cost      float64
	Text      string
	CreatedAt time.Time
}

// User holds the per-user cap
type User struct {
	UserID    string
	Username  string
	FirstName string
	LastName  string
	IsBot     bool
	Cap       int
	CreatedAt time.Time
}

// DisplayName formats the user for reports
func (u *User) DisplayName() string {
	if u.Username != "" {
		return u.Username
	}
	name := u.FirstName
	if u.LastName != "" {
		name += " " + u.LastName
	}
	if name == "" {
		return u.UserID
	}
	return name
}

// UserCount is one row of a leaderboard
type UserCount struct {
	Name  string
	Count int
}

// Limits summarizes a user's consumption of one kind
type Limits struct {
	Username string
	Last24h  int
	AllTime  int
	Cap      int
}
