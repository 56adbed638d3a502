package server

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/goldchat/matiebot/internal/biz/domain"
	"github.com/goldchat/matiebot/internal/infra/feishu"
)

// seenTTL is how long a delivered message id is remembered for deduplication
const seenTTL = 5 * time.Minute

// MessageSubmitter accepts inbound messages for processing
type MessageSubmitter interface {
	HandleMessage(msg *domain.InboundMessage) error
}

// FeishuClient is the part of the Feishu client the server uses
type FeishuClient interface {
	OnMessage(handler feishu.MessageHandler)
	Start(ctx context.Context) error
	GetMessage(ctx context.Context, msgID string) (*feishu.Message, error)
	MemberName(ctx context.Context, chatID, openID string) (string, error)
}

// FeishuServer receives Feishu messages and submits them to the bot
type FeishuServer struct {
	client FeishuClient
	bot    MessageSubmitter
	logger *zap.Logger
	ctx    context.Context

	// Message deduplication cache
	seenMsgsMu sync.Mutex
	seenMsgs   map[string]time.Time // msgID -> first delivery
	now        func() time.Time
}

// NewFeishuServer creates a new Feishu server
func NewFeishuServer(client FeishuClient, bot MessageSubmitter, logger *zap.Logger) *FeishuServer {
	return &FeishuServer{
		client:   client,
		bot:      bot,
		logger:   logger.Named("feishu-server"),
		ctx:      context.Background(),
		seenMsgs: make(map[string]time.Time),
		now:      time.Now,
	}
}

// Run receives messages until ctx is cancelled
func (s *FeishuServer) Run(ctx context.Context) error {
	s.ctx = ctx
	s.client.OnMessage(s.handleMessage)

	errCh := make(chan error, 1)
	go func() { errCh <- s.client.Start(ctx) }()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// handleMessage converts a Feishu message and submits it
func (s *FeishuServer) handleMessage(msg *feishu.Message) {
	if !s.markSeen(msg.MsgID) {
		s.logger.Debug("duplicate message ignored", zap.String("msg_id", msg.MsgID))
		return
	}

	s.logger.Debug("received",
		zap.String("type", msg.MsgType),
		zap.String("chat_id", msg.ChatID),
		zap.String("text", truncate(msg.Content, 50)))

	inbound := s.toInbound(s.ctx, msg)
	_ = s.bot.HandleMessage(inbound)
}

// toInbound builds the domain message, resolving the sender's name and the replied-to message
func (s *FeishuServer) toInbound(ctx context.Context, msg *feishu.Message) *domain.InboundMessage {
	in := convertFeishu(msg)

	if msg.SenderID != "" && !msg.IsBot {
		name, err := s.client.MemberName(ctx, msg.ChatID, msg.SenderID)
		if err != nil {
			s.logger.Debug("member lookup failed", zap.String("open_id", msg.SenderID), zap.Error(err))
		}
		in.FirstName = name
	}

	if msg.ParentID != "" {
		parent, err := s.client.GetMessage(ctx, msg.ParentID)
		if err != nil {
			s.logger.Warn("failed to load replied message", zap.String("msg_id", msg.ParentID), zap.Error(err))
		} else {
			in.ReplyTo = convertFeishu(parent)
		}
	}
	return in
}

// convertFeishu maps the message fields that need no API calls
func convertFeishu(msg *feishu.Message) *domain.InboundMessage {
	in := &domain.InboundMessage{
		ID:     msg.MsgID,
		ChatID: msg.ChatID,
		UserID: msg.SenderID,
		IsBot:  msg.IsBot,
		Text:   msg.Content,
	}
	for _, res := range msg.Resources {
		att := domain.Attachment{
			FileID:    res.Key,
			MessageID: msg.MsgID,
			FileName:  res.FileName,
		}
		switch res.Type {
		case "image":
			att.Kind = domain.AttachmentPhoto
		case "audio":
			att.Kind = domain.AttachmentVoice
		default:
			att.Kind = domain.AttachmentDocument
		}
		in.Attachments = append(in.Attachments, att)
	}
	return in
}

// markSeen records msgID and reports whether it is new.
// Feishu redelivers events it considers unacknowledged.
func (s *FeishuServer) markSeen(msgID string) bool {
	s.seenMsgsMu.Lock()
	defer s.seenMsgsMu.Unlock()

	now := s.now()
	cutoff := now.Add(-seenTTL)
	for id, ts := range s.seenMsgs {
		if ts.Before(cutoff) {
			delete(s.seenMsgs, id)
		}
	}

	if _, exists := s.seenMsgs[msgID]; exists {
		return false
	}
	s.seenMsgs[msgID] = now
	return true
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
