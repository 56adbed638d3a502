package data

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/goldchat/matiebot/internal/biz/domain"
	"github.com/goldchat/matiebot/internal/biz/repo"
	"github.com/goldchat/matiebot/internal/infra/telegram"
)

// telegramRepo implements the Replier over the Telegram client
type telegramRepo struct {
	client *telegram.Client
}

// NewTelegramRepo creates a Telegram replier
func NewTelegramRepo(client *telegram.Client) repo.Replier {
	return &telegramRepo{client: client}
}

func (r *telegramRepo) ReplyText(ctx context.Context, msg *domain.InboundMessage, text string, formatted bool) error {
	chatID, replyTo, err := telegramRef(msg)
	if err != nil {
		return err
	}
	return r.client.SendText(ctx, chatID, replyTo, text, formatted)
}

func (r *telegramRepo) SendText(ctx context.Context, chatID, text string) error {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat id %q: %w", chatID, err)
	}
	return r.client.SendText(ctx, id, 0, text, false)
}

func (r *telegramRepo) ReplyImages(ctx context.Context, msg *domain.InboundMessage, urls []string, caption string) error {
	chatID, replyTo, err := telegramRef(msg)
	if err != nil {
		return err
	}
	return r.client.SendPhotos(ctx, chatID, replyTo, urls, caption)
}

func (r *telegramRepo) ReplyAudio(ctx context.Context, msg *domain.InboundMessage, name string, audio io.Reader) error {
	chatID, replyTo, err := telegramRef(msg)
	if err != nil {
		return err
	}
	return r.client.SendAudio(ctx, chatID, replyTo, name, audio)
}

func (r *telegramRepo) Download(ctx context.Context, att domain.Attachment) ([]byte, error) {
	return r.client.Download(ctx, att.FileID)
}

// telegramRef parses the numeric chat and message ids of msg
func telegramRef(msg *domain.InboundMessage) (int64, int, error) {
	chatID, err := strconv.ParseInt(msg.ChatID, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid chat id %q: %w", msg.ChatID, err)
	}
	replyTo := 0
	if msg.ID != "" {
		if replyTo, err = strconv.Atoi(msg.ID); err != nil {
			return 0, 0, fmt.Errorf("invalid message id %q: %w", msg.ID, err)
		}
	}
	return chatID, replyTo, nil
}
