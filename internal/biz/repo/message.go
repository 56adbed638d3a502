package repo

import (
	"context"
	"io"

	"github.com/goldchat/matiebot/internal/biz/domain"
)

// Replier is the transport's outbound side
type Replier interface {
	// ReplyText answers msg. Formatted text is sent as markup first and
	// falls back to plain text if the transport rejects it.
	ReplyText(ctx context.Context, msg *domain.InboundMessage, text string, formatted bool) error

	// SendText posts plain text to a chat without a reply reference
	SendText(ctx context.Context, chatID, text string) error

	// ReplyImages answers msg with one or more images given by URL
	ReplyImages(ctx context.Context, msg *domain.InboundMessage, urls []string, caption string) error

	// ReplyAudio answers msg with an audio file
	ReplyAudio(ctx context.Context, msg *domain.InboundMessage, name string, audio io.Reader) error

	// Download fetches the bytes behind an attachment reference
	Download(ctx context.Context, att domain.Attachment) ([]byte, error)
}
