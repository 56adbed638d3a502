package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/goldchat/matiebot/internal/biz/domain"
	"github.com/goldchat/matiebot/internal/biz/repo"
	"github.com/goldchat/matiebot/internal/biz/usecase"
	"github.com/goldchat/matiebot/internal/data"
)

const (
	adminID  = "1"
	goldChat = "-100"
	userID   = "7"
)

type sentText struct {
	ChatID    string
	Text      string
	Formatted bool
}

type sentImages struct {
	URLs    []string
	Caption string
}

type stubReplier struct {
	mu     sync.Mutex
	texts  []sentText
	images []sentImages
	audio  []string
	files  map[string][]byte
}

func (m *stubReplier) ReplyText(ctx context.Context, msg *domain.InboundMessage, text string, formatted bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.texts = append(m.texts, sentText{ChatID: msg.ChatID, Text: text, Formatted: formatted})
	return nil
}

func (m *stubReplier) SendText(ctx context.Context, chatID, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.texts = append(m.texts, sentText{ChatID: chatID, Text: text})
	return nil
}

func (m *stubReplier) ReplyImages(ctx context.Context, msg *domain.InboundMessage, urls []string, caption string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.images = append(m.images, sentImages{URLs: urls, Caption: caption})
	return nil
}

func (m *stubReplier) ReplyAudio(ctx context.Context, msg *domain.InboundMessage, name string, audio io.Reader) error {
	b, err := io.ReadAll(audio)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audio = append(m.audio, name+":"+string(b))
	return nil
}

func (m *stubReplier) Download(ctx context.Context, att domain.Attachment) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.files[att.FileID]
	if !ok {
		return nil, fmt.Errorf("file %s not found", att.FileID)
	}
	return b, nil
}

func (m *stubReplier) lastText() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.texts) == 0 {
		return ""
	}
	return m.texts[len(m.texts)-1].Text
}

type stubBackend struct {
	mu sync.Mutex

	chatCalls [][]domain.Turn
	chatReply string

	imageReqs []repo.ImageRequest
	imageFn   func(req repo.ImageRequest) ([]repo.GeneratedImage, error)

	variations []int
	edits      []string

	scores      map[string]float64
	models      []string
	transcribed []string
	spoken      []string

	describePrompts []string
	describeURLs    []string
	description     string
}

func (m *stubBackend) Chat(ctx context.Context, model string, turns []domain.Turn) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chatCalls = append(m.chatCalls, turns)
	if m.chatReply == "" {
		return "ok", nil
	}
	return m.chatReply, nil
}

func (m *stubBackend) GenerateImage(ctx context.Context, req repo.ImageRequest) ([]repo.GeneratedImage, error) {
	m.mu.Lock()
	m.imageReqs = append(m.imageReqs, req)
	fn := m.imageFn
	m.mu.Unlock()
	if fn != nil {
		return fn(req)
	}
	return []repo.GeneratedImage{{URL: "https://img/" + string(req.Size) + "/" + req.Prompt}}, nil
}

func (m *stubBackend) ImageVariation(ctx context.Context, png []byte, n int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.variations = append(m.variations, n)
	urls := make([]string, n)
	for i := range urls {
		urls[i] = fmt.Sprintf("https://img/var/%d", i)
	}
	return urls, nil
}

func (m *stubBackend) ImageEdit(ctx context.Context, png []byte, prompt string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.edits = append(m.edits, prompt)
	return []string{"https://img/edit"}, nil
}

func (m *stubBackend) Moderate(ctx context.Context, text string) (map[string]float64, error) {
	return m.scores, nil
}

func (m *stubBackend) Transcribe(ctx context.Context, name string, audio []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transcribed = append(m.transcribed, name+":"+string(audio))
	return "hello from voice", nil
}

func (m *stubBackend) Speak(ctx context.Context, text, voice string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.spoken = append(m.spoken, voice+":"+text)
	return io.NopCloser(bytes.NewReader([]byte("mp3"))), nil
}

func (m *stubBackend) DescribeImage(ctx context.Context, model, prompt, imageURL string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.describePrompts = append(m.describePrompts, prompt)
	m.describeURLs = append(m.describeURLs, imageURL)
	if m.description == "" {
		return "a description", nil
	}
	return m.description, nil
}

func (m *stubBackend) ListModels(ctx context.Context) ([]string, error) {
	return m.models, nil
}

func (m *stubBackend) promptsSent() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.imageReqs))
	for i, r := range m.imageReqs {
		out[i] = r.Prompt
	}
	return out
}

// fixture wires the command catalog over a temp sqlite store
type fixture struct {
	quota    repo.QuotaRepo
	backend  *stubBackend
	replier  *stubReplier
	settings *usecase.Settings
	conv     *usecase.ConversationUsecase
	chatLog  *usecase.ChatLog
	cmds     *Commands
	quit     chan struct{}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	quota, err := data.NewQuotaRepo(filepath.Join(t.TempDir(), "matie.db"), 20)
	require.NoError(t, err)
	t.Cleanup(func() { _ = quota.Close() })

	f := &fixture{
		quota:    quota,
		backend:  &stubBackend{},
		replier:  &stubReplier{files: make(map[string][]byte)},
		settings: usecase.NewSettings("gpt-4o", "alloy", "vivid"),
		chatLog:  usecase.NewChatLog(100),
		quit:     make(chan struct{}),
	}
	f.conv = usecase.NewConversationUsecase(f.backend, f.settings, usecase.ConversationConfig{
		DefaultPrompt: "default prompt",
		ResetNotice:   "reset",
	}, zap.NewNop())

	f.cmds = NewCommands(CommandDeps{
		Principals:   domain.Principals{Admins: []string{adminID}, GoldChat: goldChat},
		BotName:      "Матье",
		BotAltName:   "Matie",
		Quota:        quota,
		Backend:      f.backend,
		Replier:      f.replier,
		Conversation: f.conv,
		Settings:     f.settings,
		ChatLog:      f.chatLog,
		Prompts: Prompts{
			Jailbreak:      "jailbreak prompt",
			JailbreakReply: "Ок, буду лить базу",
			Summary:        "summary prompt",
			DrawLiteral:    "AS-IS: ",
		},
		StartedAt: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		Quit:      func() { close(f.quit) },
	}, zap.NewNop())
	f.cmds.now = func() time.Time { return time.Date(2024, 5, 4, 1, 0, 0, 0, time.UTC) }
	f.cmds.quitDelay = time.Millisecond

	return f
}

func userMsg(text string) *domain.InboundMessage {
	return &domain.InboundMessage{ID: "10", ChatID: goldChat, UserID: userID, Username: "bob", FirstName: "Bob", Text: text}
}

func adminMsg(text string) *domain.InboundMessage {
	return &domain.InboundMessage{ID: "11", ChatID: goldChat, UserID: adminID, Username: "root", Text: text}
}

func request(msg *domain.InboundMessage, arg string) *domain.Request {
	return &domain.Request{Msg: msg, Arg: arg}
}
