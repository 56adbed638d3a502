package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// DefaultTimeout bounds every HTTP round-trip to the API
const DefaultTimeout = 5 * time.Minute

const (
	chatTemperature = 0.9
	chatMaxTokens   = 1024
)

// Config configures the API client
type Config struct {
	APIKey  string
	BaseURL string // Empty uses the public endpoint
	Timeout time.Duration
}

// Message is one chat message
type Message struct {
	Role    string
	Content string
}

// Image is one generated image
type Image struct {
	URL           string
	RevisedPrompt string
}

// ImageParams describes an image generation call
type ImageParams struct {
	Prompt  string
	Size    string
	Quality string
	Style   string
	N       int
}

// Image sizes accepted by GenerateImage
const (
	SizeSquare    = openai.CreateImageSize1024x1024
	SizeLandscape = openai.CreateImageSize1792x1024
	SizePortrait  = openai.CreateImageSize1024x1792

	QualityHD       = openai.CreateImageQualityHD
	QualityStandard = openai.CreateImageQualityStandard
)

// Client wraps the OpenAI-compatible API
type Client struct {
	api    *openai.Client
	logger *zap.Logger
}

// NewClient creates a new API client
func NewClient(cfg Config, logger *zap.Logger) *Client {
	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	config.HTTPClient = &http.Client{Timeout: timeout}

	return &Client{
		api:    openai.NewClientWithConfig(config),
		logger: logger.Named("openai"),
	}
}

// Chat sends messages and returns the first choice
func (c *Client) Chat(ctx context.Context, model string, messages []Message) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       model,
		Temperature: chatTemperature,
		MaxTokens:   chatMaxTokens,
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	start := time.Now()
	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response choices")
	}

	c.logger.Debug("chat completion",
		zap.String("model", model),
		zap.Int("messages", len(messages)),
		zap.Int("total_tokens", resp.Usage.TotalTokens),
		zap.Duration("took", time.Since(start)))
	return resp.Choices[0].Message.Content, nil
}

// DescribeImage asks a vision-capable model about an image
func (c *Client) DescribeImage(ctx context.Context, model, prompt, imageURL string) (string, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     model,
		MaxTokens: chatMaxTokens,
		Messages: []openai.ChatCompletionMessage{{
			Role: openai.ChatMessageRoleUser,
			MultiContent: []openai.ChatMessagePart{
				{Type: openai.ChatMessagePartTypeText, Text: prompt},
				{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{
					URL:    imageURL,
					Detail: openai.ImageURLDetailHigh,
				}},
			},
		}},
	})
	if err != nil {
		return "", fmt.Errorf("vision completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// GenerateImage creates images with DALL-E 3
func (c *Client) GenerateImage(ctx context.Context, p ImageParams) ([]Image, error) {
	n := p.N
	if n <= 0 {
		n = 1
	}
	resp, err := c.api.CreateImage(ctx, openai.ImageRequest{
		Prompt:         p.Prompt,
		Model:          openai.CreateImageModelDallE3,
		N:              n,
		Size:           p.Size,
		Quality:        p.Quality,
		Style:          p.Style,
		ResponseFormat: openai.CreateImageResponseFormatURL,
	})
	if err != nil {
		return nil, fmt.Errorf("create image: %w", err)
	}

	images := make([]Image, 0, len(resp.Data))
	for _, d := range resp.Data {
		images = append(images, Image{URL: d.URL, RevisedPrompt: d.RevisedPrompt})
	}
	return images, nil
}

// ImageVariation creates n variations of a PNG image
func (c *Client) ImageVariation(ctx context.Context, png []byte, n int) ([]string, error) {
	f, cleanup, err := tempPNG(png)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	resp, err := c.api.CreateVariImage(ctx, openai.ImageVariRequest{
		Image:          f,
		Model:          openai.CreateImageModelDallE2,
		N:              n,
		Size:           openai.CreateImageSize1024x1024,
		ResponseFormat: openai.CreateImageResponseFormatURL,
	})
	if err != nil {
		return nil, fmt.Errorf("create image variation: %w", err)
	}
	return imageURLs(resp), nil
}

// ImageEdit fills transparent areas of a PNG image guided by prompt
func (c *Client) ImageEdit(ctx context.Context, png []byte, prompt string) ([]string, error) {
	f, cleanup, err := tempPNG(png)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	resp, err := c.api.CreateEditImage(ctx, openai.ImageEditRequest{
		Image:          f,
		Prompt:         prompt,
		Model:          openai.CreateImageModelDallE2,
		N:              1,
		Size:           openai.CreateImageSize1024x1024,
		ResponseFormat: openai.CreateImageResponseFormatURL,
	})
	if err != nil {
		return nil, fmt.Errorf("create image edit: %w", err)
	}
	return imageURLs(resp), nil
}

// Moderate returns the category scores for text
func (c *Client) Moderate(ctx context.Context, text string) (map[string]float64, error) {
	resp, err := c.api.Moderations(ctx, openai.ModerationRequest{Input: text})
	if err != nil {
		return nil, fmt.Errorf("moderation: %w", err)
	}
	if len(resp.Results) == 0 {
		return nil, fmt.Errorf("no moderation results")
	}

	raw, err := json.Marshal(resp.Results[0].CategoryScores)
	if err != nil {
		return nil, fmt.Errorf("encode scores: %w", err)
	}
	scores := make(map[string]float64)
	if err := json.Unmarshal(raw, &scores); err != nil {
		return nil, fmt.Errorf("decode scores: %w", err)
	}
	return scores, nil
}

// Transcribe converts speech to text with Whisper
func (c *Client) Transcribe(ctx context.Context, name string, audio []byte) (string, error) {
	resp, err := c.api.CreateTranscription(ctx, openai.AudioRequest{
		Model:    openai.Whisper1,
		FilePath: name,
		Reader:   bytes.NewReader(audio),
		Format:   openai.AudioResponseFormatText,
	})
	if err != nil {
		return "", fmt.Errorf("transcription: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}

// Speak converts text to mp3 speech; the caller closes the reader
func (c *Client) Speak(ctx context.Context, text, voice string) (io.ReadCloser, error) {
	resp, err := c.api.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.TTSModel1HD,
		Input:          text,
		Voice:          openai.SpeechVoice(voice),
		ResponseFormat: openai.SpeechResponseFormatMp3,
	})
	if err != nil {
		return nil, fmt.Errorf("speech: %w", err)
	}
	return resp, nil
}

// ListModels lists the model identifiers visible to the key
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	resp, err := c.api.ListModels(ctx)
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	ids := make([]string, 0, len(resp.Models))
	for _, m := range resp.Models {
		ids = append(ids, m.ID)
	}
	return ids, nil
}

// IsContextLengthError reports whether err means the prompt no longer fits the model
func IsContextLengthError(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if code, ok := apiErr.Code.(string); ok && code == "context_length_exceeded" {
			return true
		}
		return strings.Contains(apiErr.Message, "maximum context length")
	}
	return err != nil && strings.Contains(err.Error(), "maximum context length")
}

// IsQuotaError reports whether err means the account ran out of quota
func IsQuotaError(err error) bool {
	var apiErr *openai.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	if code, ok := apiErr.Code.(string); ok && code == "insufficient_quota" {
		return true
	}
	return apiErr.Type == "insufficient_quota"
}

func imageURLs(resp openai.ImageResponse) []string {
	urls := make([]string, 0, len(resp.Data))
	for _, d := range resp.Data {
		urls = append(urls, d.URL)
	}
	return urls
}

// tempPNG writes png to a temp file; the multipart upload needs a named *os.File
func tempPNG(png []byte) (*os.File, func(), error) {
	f, err := os.CreateTemp("", "matie-*.png")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	cleanup := func() {
		f.Close()
		os.Remove(f.Name())
	}
	if _, err := f.Write(png); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("failed to write temp file: %w", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("failed to rewind temp file: %w", err)
	}
	return f, cleanup, nil
}
