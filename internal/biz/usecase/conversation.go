package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/goldchat/matiebot/internal/biz/domain"
	"github.com/goldchat/matiebot/internal/biz/repo"
)

// ConversationConfig configures the shared dialogue
type ConversationConfig struct {
	DefaultPrompt string
	ResetNotice   string // Sent back instead of an answer when the context overflowed
}

// ConversationUsecase owns the single process-wide conversation context.
// Access is serialized: one exchange with the backend at a time.
type ConversationUsecase struct {
	mu       sync.Mutex
	conv     *domain.ConversationContext
	backend  repo.BackendRepo
	settings *Settings
	cfg      ConversationConfig
	logger   *zap.Logger
}

// NewConversationUsecase creates a new conversation usecase
func NewConversationUsecase(backend repo.BackendRepo, settings *Settings, cfg ConversationConfig, logger *zap.Logger) *ConversationUsecase {
	return &ConversationUsecase{
		backend:  backend,
		settings: settings,
		cfg:      cfg,
		logger:   logger.Named("conversation"),
	}
}

// Ask appends text as a user turn and returns the assistant reply.
// On context overflow the context is replaced with a fresh default one and
// the reset notice is returned; text is not resubmitted.
func (uc *ConversationUsecase) Ask(ctx context.Context, text string) (string, error) {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	if !uc.conv.Initialized() {
		uc.conv = domain.NewConversationContext(uc.cfg.DefaultPrompt)
	}

	mark := len(uc.conv.Turns)
	uc.conv.Append(domain.RoleUser, text)

	reply, err := uc.backend.Chat(ctx, uc.settings.Model(), uc.conv.Snapshot())
	if errors.Is(err, repo.ErrContextTooLong) {
		uc.logger.Info("context overflow, starting a new context", zap.Int("turns", mark))
		uc.conv = domain.NewConversationContext(uc.cfg.DefaultPrompt)
		return uc.cfg.ResetNotice, nil
	}
	if err != nil {
		uc.conv.Truncate(mark)
		return "", fmt.Errorf("chat: %w", err)
	}

	uc.conv.Append(domain.RoleAssistant, reply)
	return reply, nil
}

// NewContext discards the history and starts over with prompt.
// An empty prompt starts a context without a system message.
func (uc *ConversationUsecase) NewContext(prompt string) {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	uc.conv = domain.NewConversationContext(prompt)
	uc.logger.Debug("new context", zap.Int("prompt_len", len(prompt)))
}

// Snapshot returns a copy of the current turns; nil if uninitialized
func (uc *ConversationUsecase) Snapshot() []domain.Turn {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	if !uc.conv.Initialized() {
		return nil
	}
	return uc.conv.Snapshot()
}
