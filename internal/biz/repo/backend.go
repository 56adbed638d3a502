package repo

import (
	"context"
	"errors"
	"io"

	"github.com/goldchat/matiebot/internal/biz/domain"
)

var (
	// ErrContextTooLong is returned when the conversation exceeds the model's context window
	ErrContextTooLong = errors.New("context length exceeded")

	// ErrQuotaExceeded is returned when the backend account is out of quota
	ErrQuotaExceeded = errors.New("backend quota exceeded")
)

// ImageSize represents the orientation of a generated image
type ImageSize string

const (
	ImageSquare    ImageSize = "square"
	ImageLandscape ImageSize = "landscape"
	ImagePortrait  ImageSize = "portrait"
)

// ImageRequest describes one image generation call
type ImageRequest struct {
	Prompt string
	Size   ImageSize
	HD     bool
	Style  string
	N      int
}

// GeneratedImage is one result of an image generation call
type GeneratedImage struct {
	URL           string
	RevisedPrompt string
}

// BackendRepo is the AI backend interface
type BackendRepo interface {
	// Chat sends the conversation and returns the assistant reply.
	// Returns ErrContextTooLong when the history no longer fits.
	Chat(ctx context.Context, model string, turns []domain.Turn) (string, error)

	// GenerateImage creates images from a prompt
	GenerateImage(ctx context.Context, req ImageRequest) ([]GeneratedImage, error)

	// ImageVariation creates n variations of a PNG image
	ImageVariation(ctx context.Context, png []byte, n int) ([]string, error)

	// ImageEdit fills the transparent area of a PNG image guided by prompt
	ImageEdit(ctx context.Context, png []byte, prompt string) ([]string, error)

	// Moderate returns category scores for text
	Moderate(ctx context.Context, text string) (map[string]float64, error)

	// Transcribe converts speech to text
	Transcribe(ctx context.Context, name string, audio []byte) (string, error)

	// Speak converts text to speech; the caller closes the reader
	Speak(ctx context.Context, text, voice string) (io.ReadCloser, error)

	// DescribeImage asks a vision model about an image URL
	DescribeImage(ctx context.Context, model, prompt, imageURL string) (string, error)

	// ListModels lists model identifiers available to the account
	ListModels(ctx context.Context) ([]string, error)
}
