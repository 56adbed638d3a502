package repo

import (
	"context"
	"errors"
	"time"

	"github.com/goldchat/matiebot/internal/biz/domain"
)

// ErrUserNotFound is returned when a user record does not exist
var ErrUserNotFound = errors.New("user not found")

// QuotaRepo is the quota store interface
// Responsible for users, per-user caps and the append-only event log (SQLite)
type QuotaRepo interface {
	// EnsureUserExists creates the user with the default cap if unseen
	EnsureUserExists(ctx context.Context, user domain.User) error

	// RecordEvent appends one event to the log
	RecordEvent(ctx context.Context, event *domain.QuotaEvent) error

	// CountInWindow counts events of the given kinds for subject newer than now-window
	CountInWindow(ctx context.Context, subject domain.Subject, kinds []domain.EventKind, window time.Duration) (int, error)

	// GetCap returns the user's cap; ok is false if the user is not provisioned
	GetCap(ctx context.Context, userID string) (cap int, ok bool, err error)

	// SetCap overrides the cap for a username (leading @ ignored)
	SetCap(ctx context.Context, username string, cap int) (bool, error)

	// SetCapAll overrides the cap for every user
	SetCapAll(ctx context.Context, cap int) (bool, error)

	// Limits reports a user's consumption of kind
	Limits(ctx context.Context, username string, kind domain.EventKind, window time.Duration) (*domain.Limits, error)

	// TopUsers ranks senders by event count; window 0 means all time.
	// KindNone ranks every event regardless of kind.
	TopUsers(ctx context.Context, kind domain.EventKind, window time.Duration, limit int) ([]domain.UserCount, error)

	// UserCount returns the number of known users
	UserCount(ctx context.Context) (int, error)

	// RawQuery runs an arbitrary statement and renders the rows as text
	RawQuery(ctx context.Context, query string) (string, error)

	// PruneBefore deletes events older than before
	PruneBefore(ctx context.Context, before time.Time) (int64, error)

	Close() error
}
