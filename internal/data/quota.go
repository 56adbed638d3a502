package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/goldchat/matiebot/internal/biz/domain"
	"github.com/goldchat/matiebot/internal/biz/repo"

	_ "modernc.org/sqlite"
)

// quotaRepo implements the QuotaRepo repository
type quotaRepo struct {
	db         *sql.DB
	defaultCap int
	now        func() time.Time
}

// NewQuotaRepo opens (or creates) the quota database
func NewQuotaRepo(dbPath string, defaultCap int) (repo.QuotaRepo, error) {
	return newQuotaRepo(dbPath, defaultCap)
}

func newQuotaRepo(dbPath string, defaultCap int) (*quotaRepo, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL UNIQUE,
			username TEXT NOT NULL DEFAULT '',
			first_name TEXT NOT NULL DEFAULT '',
			last_name TEXT NOT NULL DEFAULT '',
			is_bot INTEGER NOT NULL DEFAULT 0,
			cap INTEGER NOT NULL,
			created_at INTEGER NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create users table: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL DEFAULT '',
			chat_id TEXT NOT NULL DEFAULT '',
			kind INTEGER NOT NULL DEFAULT 0,
			command TEXT NOT NULL DEFAULT '',
			cost REAL NOT NULL DEFAULT 0,
			text TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create messages table: %w", err)
	}

	for _, stmt := range []string{
		`CREATE INDEX IF NOT EXISTS idx_messages_created_at ON messages(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_user_created ON messages(user_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_users_username ON users(username)`,
	} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create index: %w", err)
		}
	}

	return &quotaRepo{db: db, defaultCap: defaultCap, now: time.Now}, nil
}

// EnsureUserExists creates the user with the default cap; known users get their names refreshed
func (r *quotaRepo) EnsureUserExists(ctx context.Context, user domain.User) error {
	if user.UserID == "" {
		return nil
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, user_id, username, first_name, last_name, is_bot, cap, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			username = excluded.username,
			first_name = excluded.first_name,
			last_name = excluded.last_name
	`, uuid.NewString(), user.UserID, user.Username, user.FirstName, user.LastName,
		boolToInt(user.IsBot), r.defaultCap, r.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to ensure user: %w", err)
	}
	return nil
}

// RecordEvent appends an event
func (r *quotaRepo) RecordEvent(ctx context.Context, event *domain.QuotaEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = r.now()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO messages (id, user_id, chat_id, kind, command, cost, text, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, event.ID, event.UserID, event.ChatID, int(event.Kind), event.Command, event.Cost,
		strings.Trim(event.Text, " \r\n\t"), event.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}
	return nil
}

// CountInWindow counts events newer than now-window
func (r *quotaRepo) CountInWindow(ctx context.Context, subject domain.Subject, kinds []domain.EventKind, window time.Duration) (int, error) {
	if len(kinds) == 0 {
		return 0, nil
	}

	placeholders := make([]string, len(kinds))
	args := make([]any, 0, len(kinds)+2)
	args = append(args, r.now().Add(-window).UnixMilli())
	for i, k := range kinds {
		placeholders[i] = "?"
		args = append(args, int(k))
	}

	query := `SELECT COUNT(*) FROM messages WHERE created_at > ? AND kind IN (` + strings.Join(placeholders, ",") + `)`
	if !subject.IsGlobal() {
		query += ` AND user_id = ?`
		args = append(args, subject.UserID)
	}

	var count int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return count, nil
}

// GetCap returns the user's cap
func (r *quotaRepo) GetCap(ctx context.Context, userID string) (int, bool, error) {
	var limit int
	err := r.db.QueryRowContext(ctx, `SELECT cap FROM users WHERE user_id = ?`, userID).Scan(&limit)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to get cap: %w", err)
	}
	return limit, true, nil
}

// SetCap overrides the cap of every user with username
func (r *quotaRepo) SetCap(ctx context.Context, username string, limit int) (bool, error) {
	result, err := r.db.ExecContext(ctx, `UPDATE users SET cap = ? WHERE username = ?`, limit, normalizeUsername(username))
	if err != nil {
		return false, fmt.Errorf("failed to set cap: %w", err)
	}
	n, _ := result.RowsAffected()
	return n > 0, nil
}

// SetCapAll overrides the cap of all users
func (r *quotaRepo) SetCapAll(ctx context.Context, limit int) (bool, error) {
	result, err := r.db.ExecContext(ctx, `UPDATE users SET cap = ?`, limit)
	if err != nil {
		return false, fmt.Errorf("failed to set cap: %w", err)
	}
	n, _ := result.RowsAffected()
	return n > 0, nil
}

// Limits reports a user's consumption of kind
func (r *quotaRepo) Limits(ctx context.Context, username string, kind domain.EventKind, window time.Duration) (*domain.Limits, error) {
	username = normalizeUsername(username)
	if username == "" {
		return nil, repo.ErrUserNotFound
	}

	var userID string
	limits := &domain.Limits{Username: username}
	err := r.db.QueryRowContext(ctx, `SELECT user_id, cap FROM users WHERE username = ? LIMIT 1`, username).Scan(&userID, &limits.Cap)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repo.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	err = r.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN created_at > ? THEN 1 ELSE 0 END), 0)
		FROM messages
		WHERE user_id = ? AND kind = ?
	`, r.now().Add(-window).UnixMilli(), userID, int(kind)).Scan(&limits.AllTime, &limits.Last24h)
	if err != nil {
		return nil, fmt.Errorf("failed to count user events: %w", err)
	}
	return limits, nil
}

// TopUsers ranks senders by number of events
func (r *quotaRepo) TopUsers(ctx context.Context, kind domain.EventKind, window time.Duration, limit int) ([]domain.UserCount, error) {
	query := `
		SELECT
			COALESCE(NULLIF(TRIM(u.first_name || ' ' || u.last_name), ''), NULLIF(u.username, ''), m.user_id) AS name,
			COUNT(*) AS cnt
		FROM messages m
		LEFT JOIN users u ON u.user_id = m.user_id
		WHERE m.user_id != ''`
	var args []any
	if kind != domain.KindNone {
		query += ` AND m.kind = ?`
		args = append(args, int(kind))
	}
	if window > 0 {
		query += ` AND m.created_at > ?`
		args = append(args, r.now().Add(-window).UnixMilli())
	}
	query += ` GROUP BY m.user_id ORDER BY cnt DESC, name ASC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query top users: %w", err)
	}
	defer rows.Close()

	var result []domain.UserCount
	for rows.Next() {
		var uc domain.UserCount
		if err := rows.Scan(&uc.Name, &uc.Count); err != nil {
			return nil, fmt.Errorf("failed to scan top user: %w", err)
		}
		result = append(result, uc)
	}
	return result, rows.Err()
}

// UserCount returns the number of known users
func (r *quotaRepo) UserCount(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return n, nil
}

// RawQuery runs query and renders each row as pipe-separated values
func (r *quotaRepo) RawQuery(ctx context.Context, query string) (string, error) {
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return "", err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return "", err
	}

	var lines []string
	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return "", err
		}
		fields := make([]string, len(values))
		for i, v := range values {
			switch val := v.(type) {
			case nil:
				fields[i] = "NULL"
			case []byte:
				fields[i] = string(val)
			default:
				fields[i] = fmt.Sprint(val)
			}
		}
		lines = append(lines, strings.Join(fields, " | "))
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	return strings.Join(lines, "\n"), nil
}

// PruneBefore deletes events older than before
func (r *quotaRepo) PruneBefore(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM messages WHERE created_at < ?`, before.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to prune events: %w", err)
	}
	return result.RowsAffected()
}

// Close closes the database
func (r *quotaRepo) Close() error {
	return r.db.Close()
}

func normalizeUsername(username string) string {
	return strings.TrimPrefix(strings.TrimSpace(username), "@")
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
