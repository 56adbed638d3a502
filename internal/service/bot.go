package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/goldchat/matiebot/internal/biz/domain"
)

// MessageHandler processes one inbound message to completion
type MessageHandler interface {
	HandleMessage(ctx context.Context, msg *domain.InboundMessage)
}

// BotService hands inbound messages from the transport to the worker pool
type BotService struct {
	handler MessageHandler
	pool    *WorkerPool
	logger  *zap.Logger
}

// NewBotService creates a new bot service
func NewBotService(handler MessageHandler, pool *WorkerPool, logger *zap.Logger) *BotService {
	return &BotService{
		handler: handler,
		pool:    pool,
		logger:  logger.Named("bot"),
	}
}

// HandleMessage schedules msg without blocking the caller.
// A saturated or closed pool drops the message.
func (s *BotService) HandleMessage(msg *domain.InboundMessage) error {
	err := s.pool.Submit(func(ctx context.Context) {
		s.handler.HandleMessage(ctx, msg)
	})
	if err != nil {
		s.logger.Warn("message dropped",
			zap.String("chat_id", msg.ChatID),
			zap.String("msg_id", msg.ID),
			zap.Error(err))
		return fmt.Errorf("failed to schedule message %s: %w", msg.ID, err)
	}
	return nil
}
