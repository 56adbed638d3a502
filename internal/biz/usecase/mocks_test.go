package usecase

import (
	"bytes"
	"context"
	"io"
	"sync"
	"time"

	"github.com/goldchat/matiebot/internal/biz/domain"
	"github.com/goldchat/matiebot/internal/biz/repo"
)

// Mock implementations

type mockQuotaRepo struct {
	mu         sync.Mutex
	defaultCap int
	users      map[string]*domain.User
	events     []domain.QuotaEvent
	now        time.Time
}

func newMockQuotaRepo(defaultCap int) *mockQuotaRepo {
	return &mockQuotaRepo{
		defaultCap: defaultCap,
		users:      make(map[string]*domain.User),
		now:        time.Now(),
	}
}

func (m *mockQuotaRepo) seed(userID string, kind domain.EventKind, n int, age time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := 0; i < n; i++ {
		m.events = append(m.events, domain.QuotaEvent{UserID: userID, Kind: kind, CreatedAt: m.now.Add(-age)})
	}
}

func (m *mockQuotaRepo) recorded() []domain.QuotaEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.QuotaEvent, 0, len(m.events))
	for _, e := range m.events {
		if e.ChatID != "" {
			out = append(out, e)
		}
	}
	return out
}

func (m *mockQuotaRepo) EnsureUserExists(ctx context.Context, user domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[user.UserID]; !ok {
		user.Cap = m.defaultCap
		m.users[user.UserID] = &user
	}
	return nil
}

func (m *mockQuotaRepo) RecordEvent(ctx context.Context, event *domain.QuotaEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := *event
	if e.CreatedAt.IsZero() {
		e.CreatedAt = m.now
	}
	m.events = append(m.events, e)
	return nil
}

func (m *mockQuotaRepo) CountInWindow(ctx context.Context, subject domain.Subject, kinds []domain.EventKind, window time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.events {
		if !subject.IsGlobal() && e.UserID != subject.UserID {
			continue
		}
		if m.now.Sub(e.CreatedAt) >= window {
			continue
		}
		for _, k := range kinds {
			if e.Kind == k {
				n++
				break
			}
		}
	}
	return n, nil
}

func (m *mockQuotaRepo) GetCap(ctx context.Context, userID string) (int, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return 0, false, nil
	}
	return u.Cap, true, nil
}

func (m *mockQuotaRepo) SetCap(ctx context.Context, username string, cap int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == username {
			u.Cap = cap
			return true, nil
		}
	}
	return false, nil
}

func (m *mockQuotaRepo) SetCapAll(ctx context.Context, cap int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		u.Cap = cap
	}
	return len(m.users) > 0, nil
}

func (m *mockQuotaRepo) Limits(ctx context.Context, username string, kind domain.EventKind, window time.Duration) (*domain.Limits, error) {
	return nil, repo.ErrUserNotFound
}

func (m *mockQuotaRepo) TopUsers(ctx context.Context, kind domain.EventKind, window time.Duration, limit int) ([]domain.UserCount, error) {
	return nil, nil
}

func (m *mockQuotaRepo) UserCount(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.users), nil
}

func (m *mockQuotaRepo) RawQuery(ctx context.Context, query string) (string, error) {
	return "", nil
}

func (m *mockQuotaRepo) PruneBefore(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}

func (m *mockQuotaRepo) Close() error {
	return nil
}

type sentText struct {
	ChatID  string
	ReplyTo string
	Text    string
}

type mockReplier struct {
	mu     sync.Mutex
	texts  []sentText
	images [][]string
}

func (m *mockReplier) ReplyText(ctx context.Context, msg *domain.InboundMessage, text string, formatted bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.texts = append(m.texts, sentText{ChatID: msg.ChatID, ReplyTo: msg.ID, Text: text})
	return nil
}

func (m *mockReplier) SendText(ctx context.Context, chatID, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.texts = append(m.texts, sentText{ChatID: chatID, Text: text})
	return nil
}

func (m *mockReplier) ReplyImages(ctx context.Context, msg *domain.InboundMessage, urls []string, caption string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.images = append(m.images, urls)
	return nil
}

func (m *mockReplier) ReplyAudio(ctx context.Context, msg *domain.InboundMessage, name string, audio io.Reader) error {
	return nil
}

func (m *mockReplier) Download(ctx context.Context, att domain.Attachment) ([]byte, error) {
	return []byte("file:" + att.FileID), nil
}

func (m *mockReplier) sent() []sentText {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]sentText, len(m.texts))
	copy(out, m.texts)
	return out
}

type mockBackend struct {
	mu      sync.Mutex
	calls   [][]domain.Turn
	replies []string
	errs    []error
}

func (m *mockBackend) Chat(ctx context.Context, model string, turns []domain.Turn) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := len(m.calls)
	m.calls = append(m.calls, turns)
	if i < len(m.errs) && m.errs[i] != nil {
		return "", m.errs[i]
	}
	if i < len(m.replies) {
		return m.replies[i], nil
	}
	return "ok", nil
}

func (m *mockBackend) GenerateImage(ctx context.Context, req repo.ImageRequest) ([]repo.GeneratedImage, error) {
	return nil, nil
}

func (m *mockBackend) ImageVariation(ctx context.Context, png []byte, n int) ([]string, error) {
	return nil, nil
}

func (m *mockBackend) ImageEdit(ctx context.Context, png []byte, prompt string) ([]string, error) {
	return nil, nil
}

func (m *mockBackend) Moderate(ctx context.Context, text string) (map[string]float64, error) {
	return nil, nil
}

func (m *mockBackend) Transcribe(ctx context.Context, name string, audio []byte) (string, error) {
	return "", nil
}

func (m *mockBackend) Speak(ctx context.Context, text, voice string) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(nil)), nil
}

func (m *mockBackend) DescribeImage(ctx context.Context, model, prompt, imageURL string) (string, error) {
	return "", nil
}

func (m *mockBackend) ListModels(ctx context.Context) ([]string, error) {
	return nil, nil
}
