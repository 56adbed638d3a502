package server

import (
	"context"
	"strconv"

	"github.com/mymmrac/telego"
	"go.uber.org/zap"

	"github.com/goldchat/matiebot/internal/biz/domain"
)

// UpdateSource opens the Telegram update stream
type UpdateSource interface {
	Start(ctx context.Context) (<-chan telego.Update, error)
}

// TelegramServer receives Telegram updates and submits messages to the bot
type TelegramServer struct {
	source UpdateSource
	bot    MessageSubmitter
	logger *zap.Logger
}

// NewTelegramServer creates a new Telegram server
func NewTelegramServer(source UpdateSource, bot MessageSubmitter, logger *zap.Logger) *TelegramServer {
	return &TelegramServer{
		source: source,
		bot:    bot,
		logger: logger.Named("telegram-server"),
	}
}

// Run consumes updates until ctx is cancelled.
// The loop only converts and submits; it never waits on a command.
func (s *TelegramServer) Run(ctx context.Context) error {
	updates, err := s.source.Start(ctx)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil {
				continue
			}
			msg := convertTelegram(update.Message)
			s.logger.Debug("received",
				zap.String("chat_id", msg.ChatID),
				zap.String("user_id", msg.UserID),
				zap.String("text", truncate(msg.Text, 50)))
			_ = s.bot.HandleMessage(msg)
		}
	}
}

// convertTelegram maps a Telegram message; captions stand in for missing text
func convertTelegram(m *telego.Message) *domain.InboundMessage {
	in := &domain.InboundMessage{
		ID:     strconv.Itoa(m.MessageID),
		ChatID: strconv.FormatInt(m.Chat.ID, 10),
		Text:   m.Text,
	}
	if in.Text == "" {
		in.Text = m.Caption
	}

	if m.From != nil {
		in.UserID = strconv.FormatInt(m.From.ID, 10)
		in.Username = m.From.Username
		in.FirstName = m.From.FirstName
		in.LastName = m.From.LastName
		in.IsBot = m.From.IsBot
	}

	for _, p := range m.Photo {
		in.Attachments = append(in.Attachments, domain.Attachment{
			Kind:   domain.AttachmentPhoto,
			FileID: p.FileID,
			Width:  p.Width,
		})
	}
	if m.Voice != nil {
		in.Attachments = append(in.Attachments, domain.Attachment{
			Kind:     domain.AttachmentVoice,
			FileID:   m.Voice.FileID,
			MimeType: m.Voice.MimeType,
		})
	}
	if m.Audio != nil {
		in.Attachments = append(in.Attachments, domain.Attachment{
			Kind:     domain.AttachmentAudio,
			FileID:   m.Audio.FileID,
			FileName: m.Audio.FileName,
			MimeType: m.Audio.MimeType,
		})
	}
	if m.Document != nil {
		in.Attachments = append(in.Attachments, domain.Attachment{
			Kind:     domain.AttachmentDocument,
			FileID:   m.Document.FileID,
			FileName: m.Document.FileName,
			MimeType: m.Document.MimeType,
		})
	}

	if m.ReplyToMessage != nil {
		in.ReplyTo = convertTelegram(m.ReplyToMessage)
	}
	return in
}
