package data

import (
	"context"
	"fmt"
	"io"

	"github.com/goldchat/matiebot/internal/biz/domain"
	"github.com/goldchat/matiebot/internal/biz/repo"
	"github.com/goldchat/matiebot/internal/infra/openai"
)

// backendRepo implements the AI backend repository over the OpenAI client
type backendRepo struct {
	client *openai.Client
}

// NewBackendRepo creates a backend repository
func NewBackendRepo(client *openai.Client) repo.BackendRepo {
	return &backendRepo{client: client}
}

// Chat sends the conversation, mapping overflow and quota errors to sentinels
func (r *backendRepo) Chat(ctx context.Context, model string, turns []domain.Turn) (string, error) {
	messages := make([]openai.Message, 0, len(turns))
	for _, t := range turns {
		messages = append(messages, openai.Message{Role: string(t.Role), Content: t.Content})
	}
	reply, err := r.client.Chat(ctx, model, messages)
	return reply, classify(err)
}

// GenerateImage creates images
func (r *backendRepo) GenerateImage(ctx context.Context, req repo.ImageRequest) ([]repo.GeneratedImage, error) {
	params := openai.ImageParams{
		Prompt:  req.Prompt,
		Size:    imageSize(req.Size),
		Quality: openai.QualityStandard,
		Style:   req.Style,
		N:       req.N,
	}
	if req.HD {
		params.Quality = openai.QualityHD
	}

	images, err := r.client.GenerateImage(ctx, params)
	if err != nil {
		return nil, classify(err)
	}
	result := make([]repo.GeneratedImage, 0, len(images))
	for _, img := range images {
		result = append(result, repo.GeneratedImage{URL: img.URL, RevisedPrompt: img.RevisedPrompt})
	}
	return result, nil
}

func (r *backendRepo) ImageVariation(ctx context.Context, png []byte, n int) ([]string, error) {
	urls, err := r.client.ImageVariation(ctx, png, n)
	return urls, classify(err)
}

func (r *backendRepo) ImageEdit(ctx context.Context, png []byte, prompt string) ([]string, error) {
	urls, err := r.client.ImageEdit(ctx, png, prompt)
	return urls, classify(err)
}

func (r *backendRepo) Moderate(ctx context.Context, text string) (map[string]float64, error) {
	scores, err := r.client.Moderate(ctx, text)
	return scores, classify(err)
}

func (r *backendRepo) Transcribe(ctx context.Context, name string, audio []byte) (string, error) {
	text, err := r.client.Transcribe(ctx, name, audio)
	return text, classify(err)
}

func (r *backendRepo) Speak(ctx context.Context, text, voice string) (io.ReadCloser, error) {
	audio, err := r.client.Speak(ctx, text, voice)
	return audio, classify(err)
}

func (r *backendRepo) DescribeImage(ctx context.Context, model, prompt, imageURL string) (string, error) {
	text, err := r.client.DescribeImage(ctx, model, prompt, imageURL)
	return text, classify(err)
}

func (r *backendRepo) ListModels(ctx context.Context) ([]string, error) {
	models, err := r.client.ListModels(ctx)
	return models, classify(err)
}

// classify wraps API errors with the repository sentinels, keeping the original text
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case openai.IsContextLengthError(err):
		return fmt.Errorf("%w: %w", repo.ErrContextTooLong, err)
	case openai.IsQuotaError(err):
		return fmt.Errorf("%w: %w", repo.ErrQuotaExceeded, err)
	default:
		return err
	}
}

func imageSize(size repo.ImageSize) string {
	switch size {
	case repo.ImageLandscape:
		return openai.SizeLandscape
	case repo.ImagePortrait:
		return openai.SizePortrait
	default:
		return openai.SizeSquare
	}
}
