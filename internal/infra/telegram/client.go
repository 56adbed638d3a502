package telegram

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"time"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	"go.uber.org/zap"
)

// maxMediaGroup is the largest album the Bot API accepts
const maxMediaGroup = 10

// Client is the Telegram Bot API client
type Client struct {
	bot    *telego.Bot
	self   *telego.User
	logger *zap.Logger

	// retryDelay is waited before the single retry of a failed send
	retryDelay func() time.Duration
}

// NewClient creates a new Telegram client
func NewClient(token string, logger *zap.Logger) (*Client, error) {
	logger = logger.Named("telegram")
	bot, err := telego.NewBot(token, telego.WithLogger(logger.Sugar()))
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	return &Client{
		bot:    bot,
		logger: logger,
		retryDelay: func() time.Duration {
			return time.Second + time.Duration(rand.Int64N(int64(time.Second)))
		},
	}, nil
}

// Start identifies the bot and opens the long-polling update stream.
// The channel closes when ctx is cancelled.
func (c *Client) Start(ctx context.Context) (<-chan telego.Update, error) {
	me, err := c.bot.GetMe(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get bot info: %w", err)
	}
	c.self = me
	c.logger.Info("started", zap.String("username", me.Username), zap.Int64("id", me.ID))

	updates, err := c.bot.UpdatesViaLongPolling(ctx, &telego.GetUpdatesParams{
		AllowedUpdates: []string{"message"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start long polling: %w", err)
	}
	return updates, nil
}

// Self returns the bot user after Start
func (c *Client) Self() *telego.User {
	return c.self
}

// SendText sends text to a chat, optionally as a reply.
// Markdown is tried first and plain text used if Telegram rejects it;
// the whole send is retried once after a short delay.
func (c *Client) SendText(ctx context.Context, chatID int64, replyTo int, text string, markdown bool) error {
	return c.withRetry(ctx, func() error {
		params := &telego.SendMessageParams{
			ChatID:          tu.ID(chatID),
			Text:            text,
			ReplyParameters: replyParams(replyTo),
		}
		if markdown {
			params.ParseMode = telego.ModeMarkdown
			_, err := c.bot.SendMessage(ctx, params)
			if err == nil {
				return nil
			}
			c.logger.Debug("markdown rejected, sending plain", zap.Int64("chat_id", chatID), zap.Error(err))
			params.ParseMode = ""
		}
		_, err := c.bot.SendMessage(ctx, params)
		return err
	})
}

// SendPhotos sends images by URL as a single photo or an album
func (c *Client) SendPhotos(ctx context.Context, chatID int64, replyTo int, urls []string, caption string) error {
	if len(urls) == 0 {
		return nil
	}
	if len(urls) > maxMediaGroup {
		urls = urls[:maxMediaGroup]
	}

	return c.withRetry(ctx, func() error {
		if len(urls) == 1 {
			_, err := c.bot.SendPhoto(ctx, &telego.SendPhotoParams{
				ChatID:          tu.ID(chatID),
				Photo:           tu.FileFromURL(urls[0]),
				Caption:         caption,
				ReplyParameters: replyParams(replyTo),
			})
			return err
		}

		media := make([]telego.InputMedia, 0, len(urls))
		for i, url := range urls {
			photo := tu.MediaPhoto(tu.FileFromURL(url))
			if i == 0 && caption != "" {
				photo = photo.WithCaption(caption)
			}
			media = append(media, photo)
		}
		_, err := c.bot.SendMediaGroup(ctx, &telego.SendMediaGroupParams{
			ChatID:          tu.ID(chatID),
			Media:           media,
			ReplyParameters: replyParams(replyTo),
		})
		return err
	})
}

// SendAudio uploads an audio file as a reply
func (c *Client) SendAudio(ctx context.Context, chatID int64, replyTo int, name string, audio io.Reader) error {
	_, err := c.bot.SendAudio(ctx, &telego.SendAudioParams{
		ChatID:          tu.ID(chatID),
		Audio:           tu.File(tu.NameReader(audio, name)),
		ReplyParameters: replyParams(replyTo),
	})
	if err != nil {
		return fmt.Errorf("send audio: %w", err)
	}
	return nil
}

// Download fetches a file by its Telegram file id
func (c *Client) Download(ctx context.Context, fileID string) ([]byte, error) {
	file, err := c.bot.GetFile(ctx, &telego.GetFileParams{FileID: fileID})
	if err != nil {
		return nil, fmt.Errorf("get file: %w", err)
	}
	data, err := tu.DownloadFile(c.bot.FileDownloadURL(file.FilePath))
	if err != nil {
		return nil, fmt.Errorf("download file: %w", err)
	}
	return data, nil
}

// withRetry runs fn and retries it once after retryDelay
func (c *Client) withRetry(ctx context.Context, fn func() error) error {
	err := fn()
	if err == nil {
		return nil
	}
	c.logger.Debug("send failed, retrying once", zap.Error(err))

	select {
	case <-ctx.Done():
		return err
	case <-time.After(c.retryDelay()):
	}
	return fn()
}

func replyParams(messageID int) *telego.ReplyParameters {
	if messageID == 0 {
		return nil
	}
	return &telego.ReplyParameters{MessageID: messageID, AllowSendingWithoutReply: true}
}
