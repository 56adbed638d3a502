package data

import (
	"context"
	"fmt"
	"io"

	"github.com/goldchat/matiebot/internal/biz/domain"
	"github.com/goldchat/matiebot/internal/biz/repo"
	"github.com/goldchat/matiebot/internal/infra/feishu"
)

// FeishuAPI is the part of the Feishu client the replier uses
type FeishuAPI interface {
	SendText(ctx context.Context, receiveIDType, receiveID, text string) error
	ReplyText(ctx context.Context, msgID, text string, markdown bool) error
	ReplyImageURL(ctx context.Context, msgID, url string) error
	ReplyFile(ctx context.Context, msgID, name string, r io.Reader) error
	Download(ctx context.Context, msgID string, res feishu.Resource) ([]byte, error)
}

// feishuRepo implements the Replier over the Feishu client
type feishuRepo struct {
	client FeishuAPI
}

// NewFeishuRepo creates a Feishu replier
func NewFeishuRepo(client FeishuAPI) repo.Replier {
	return &feishuRepo{client: client}
}

func (r *feishuRepo) ReplyText(ctx context.Context, msg *domain.InboundMessage, text string, formatted bool) error {
	if msg.ID == "" {
		return r.SendText(ctx, msg.ChatID, text)
	}
	return r.client.ReplyText(ctx, msg.ID, text, formatted)
}

// SendText posts to a chat, or directly to a user when id is an open_id or union_id
func (r *feishuRepo) SendText(ctx context.Context, id, text string) error {
	return r.client.SendText(ctx, feishu.ReceiveIDType(id), id, text)
}

// ReplyImages replies with each image in turn; Feishu has no albums
func (r *feishuRepo) ReplyImages(ctx context.Context, msg *domain.InboundMessage, urls []string, caption string) error {
	var lastErr error
	sent := 0
	for _, url := range urls {
		if err := r.client.ReplyImageURL(ctx, msg.ID, url); err != nil {
			lastErr = err
			continue
		}
		sent++
	}
	if sent == 0 && lastErr != nil {
		return lastErr
	}
	if caption != "" {
		return r.client.ReplyText(ctx, msg.ID, caption, false)
	}
	return nil
}

func (r *feishuRepo) ReplyAudio(ctx context.Context, msg *domain.InboundMessage, name string, audio io.Reader) error {
	return r.client.ReplyFile(ctx, msg.ID, name, audio)
}

func (r *feishuRepo) Download(ctx context.Context, att domain.Attachment) ([]byte, error) {
	if att.MessageID == "" {
		return nil, fmt.Errorf("attachment %s has no message reference", att.FileID)
	}
	return r.client.Download(ctx, att.MessageID, feishu.Resource{
		Type:     feishuResourceType(att.Kind),
		Key:      att.FileID,
		FileName: att.FileName,
	})
}

func feishuResourceType(kind domain.AttachmentKind) string {
	switch kind {
	case domain.AttachmentPhoto:
		return "image"
	case domain.AttachmentAudio, domain.AttachmentVoice:
		return "audio"
	default:
		return "file"
	}
}
