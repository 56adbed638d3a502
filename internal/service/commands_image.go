package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/goldchat/matiebot/internal/biz/domain"
	"github.com/goldchat/matiebot/internal/biz/repo"
)

const (
	// hdMarker in a !draw prompt requests HD quality
	hdMarker = ", HD"

	defaultVisionPrompt = "Describe the image"
	visionCost          = 0.01

	maxOldVariations     = 3
	defaultOldVariations = 3
)

var (
	urlPattern = regexp.MustCompile(`https?://[^ \n\r]+`)
	pngMagic   = []byte("\x89PNG\r\n\x1a\n")
)

// drawVariant is one image generation of a fan-out
type drawVariant struct {
	prompt string
	size   repo.ImageSize
	hd     bool
}

// cost is the backend's price of one DALL-E 3 image in dollars
func (v drawVariant) cost() float64 {
	price := 0.04
	if v.size != repo.ImageSquare {
		price = 0.08
	}
	if v.hd {
		price += 0.04
	}
	return price
}

func (c *Commands) setStyle(ctx context.Context, req *domain.Request) (domain.Result, error) {
	style := strings.ToLower(req.Arg)
	if style != "vivid" && style != "natural" {
		return domain.Result{}, c.reply(ctx, req, "Must be one of these: vivid or natural")
	}
	c.deps.Settings.SetStyle(style)
	return domain.Result{}, c.reply(ctx, req, "Done.")
}

// draw generates the prompt as given and with the literal prefix in parallel.
// Admins also get a landscape rendition.
func (c *Commands) draw(ctx context.Context, req *domain.Request) (domain.Result, error) {
	prompt := req.Arg
	hd := strings.Contains(prompt, hdMarker)
	if hd {
		prompt = strings.TrimSpace(strings.ReplaceAll(prompt, hdMarker, ""))
	}
	if prompt == "" {
		return domain.Result{}, c.reply(ctx, req, "syntax: !draw <prompt>")
	}

	variants := []drawVariant{
		{prompt: prompt, size: repo.ImageSquare, hd: hd},
		{prompt: c.deps.Prompts.DrawLiteral + prompt, size: repo.ImageSquare, hd: hd},
	}
	if c.isAdmin(req.Msg) {
		variants = append(variants, drawVariant{prompt: prompt, size: repo.ImageLandscape, hd: hd})
	}

	images, cost, lastErr := c.drawAll(ctx, variants)
	if len(images) == 0 {
		return domain.Result{}, c.replyPlain(ctx, req, "FAILED: "+errorText(lastErr))
	}

	var caption string
	if c.deps.Settings.ShowRevisedPrompt() {
		caption = images[0].RevisedPrompt
	}
	return domain.Result{EstimatedCost: cost}, c.deps.Replier.ReplyImages(ctx, req.Msg, imageURLs(images), caption)
}

// vary describes the replied photo and draws the description twice
func (c *Commands) vary(ctx context.Context, req *domain.Request) (domain.Result, error) {
	att, ok := findAttachment(req.Msg, domain.AttachmentPhoto)
	if !ok {
		return domain.Result{}, c.reply(ctx, req, "Не вижу картинку, сделай реплай на мессадж с картинкой.")
	}

	imageURL, err := c.dataURL(ctx, att)
	if err != nil {
		return domain.Result{}, err
	}

	prompt := req.Arg
	if prompt == "" {
		prompt = defaultVisionPrompt
	}
	description, err := c.deps.Backend.DescribeImage(ctx, c.deps.Settings.Model(), prompt, imageURL)
	if err != nil {
		return domain.Result{}, err
	}

	variants := []drawVariant{
		{prompt: description, size: repo.ImageSquare},
		{prompt: description, size: repo.ImageSquare},
	}
	images, cost, lastErr := c.drawAll(ctx, variants)
	cost += visionCost
	if len(images) == 0 {
		return domain.Result{EstimatedCost: visionCost}, c.replyPlain(ctx, req, errorText(lastErr))
	}
	return domain.Result{EstimatedCost: cost}, c.deps.Replier.ReplyImages(ctx, req.Msg, imageURLs(images), "")
}

// drawAll runs the variants concurrently. Successes keep variant order;
// failures only keep the last error seen.
func (c *Commands) drawAll(ctx context.Context, variants []drawVariant) ([]repo.GeneratedImage, float64, error) {
	var (
		g       errgroup.Group
		mu      sync.Mutex
		results = make([]*repo.GeneratedImage, len(variants))
		lastErr error
		cost    float64
	)

	style := c.deps.Settings.Style()
	for i, v := range variants {
		g.Go(func() error {
			images, err := c.deps.Backend.GenerateImage(ctx, repo.ImageRequest{
				Prompt: v.prompt,
				Size:   v.size,
				HD:     v.hd,
				Style:  style,
				N:      1,
			})
			if err == nil && (len(images) == 0 || images[0].URL == "") {
				err = errors.New("no image returned")
			}

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				c.logger.Warn("image generation failed", zap.Int("variant", i), zap.Error(err))
				lastErr = err
				return nil
			}
			results[i] = &images[0]
			cost += v.cost()
			return nil
		})
	}
	_ = g.Wait()

	var images []repo.GeneratedImage
	for _, r := range results {
		if r != nil {
			images = append(images, *r)
		}
	}
	return images, cost, lastErr
}

func (c *Commands) vision(ctx context.Context, req *domain.Request) (domain.Result, error) {
	prompt := req.Arg
	var imageURL string

	if url := urlPattern.FindString(prompt); url != "" {
		imageURL = url
		prompt = strings.TrimSpace(strings.Replace(prompt, url, "", 1))
	} else if att, ok := findAttachment(req.Msg, domain.AttachmentPhoto); ok {
		var err error
		imageURL, err = c.dataURL(ctx, att)
		if err != nil {
			return domain.Result{}, err
		}
	} else {
		return domain.Result{}, c.reply(ctx, req, "Не вижу картинку, либо гони урл либо реплай на мессадж с картинкой.")
	}

	if prompt == "" {
		prompt = defaultVisionPrompt
	}
	answer, err := c.deps.Backend.DescribeImage(ctx, c.deps.Settings.Model(), prompt, imageURL)
	if err != nil {
		return domain.Result{}, err
	}
	return domain.Result{EstimatedCost: visionCost}, c.reply(ctx, req, answer)
}

// oldVary asks for DALL-E 2 variations of a replied PNG
func (c *Commands) oldVary(ctx context.Context, req *domain.Request) (domain.Result, error) {
	att, ok := findAttachment(req.Msg, domain.AttachmentPhoto, domain.AttachmentDocument)
	if !ok {
		return domain.Result{}, c.reply(ctx, req, "не вижу картинку, сделай на нее реплай и позови еще раз.")
	}

	n := defaultOldVariations
	if fields := strings.Fields(req.Arg); len(fields) > 0 {
		if v, err := strconv.Atoi(fields[0]); err == nil {
			n = min(max(v, 1), maxOldVariations)
		}
	}

	png, err := c.downloadPNG(ctx, att)
	if err != nil {
		return domain.Result{}, err
	}
	if png == nil {
		return domain.Result{}, c.reply(ctx, req, "Нужен PNG, пришли картинку файлом.")
	}

	urls, err := c.deps.Backend.ImageVariation(ctx, png, n)
	if err != nil {
		return domain.Result{}, err
	}
	return domain.Result{EstimatedCost: 0.02 * float64(len(urls))}, c.replyURLs(ctx, req, urls)
}

// fill edits the transparent area of a replied PNG document
func (c *Commands) fill(ctx context.Context, req *domain.Request) (domain.Result, error) {
	att, ok := findAttachment(req.Msg, domain.AttachmentDocument)
	if !ok {
		return domain.Result{}, c.reply(ctx, req, "не вижу png file, пришли файлом")
	}
	if req.Arg == "" {
		return domain.Result{}, c.reply(ctx, req, "syntax: !fill <prompt>")
	}

	png, err := c.downloadPNG(ctx, att)
	if err != nil {
		return domain.Result{}, err
	}
	if png == nil {
		return domain.Result{}, c.reply(ctx, req, "не вижу png file, пришли файлом")
	}

	urls, err := c.deps.Backend.ImageEdit(ctx, png, req.Arg)
	if err != nil {
		return domain.Result{}, err
	}
	return domain.Result{EstimatedCost: 0.02 * float64(len(urls))}, c.replyURLs(ctx, req, urls)
}

// downloadPNG returns nil data when the attachment is not a PNG
func (c *Commands) downloadPNG(ctx context.Context, att domain.Attachment) ([]byte, error) {
	data, err := c.deps.Replier.Download(ctx, att)
	if err != nil {
		return nil, err
	}
	if !bytes.HasPrefix(data, pngMagic) {
		return nil, nil
	}
	return data, nil
}

// dataURL downloads an attachment and inlines it for the vision endpoint
func (c *Commands) dataURL(ctx context.Context, att domain.Attachment) (string, error) {
	data, err := c.deps.Replier.Download(ctx, att)
	if err != nil {
		return "", err
	}
	mime := att.MimeType
	if mime == "" {
		mime = "image/jpeg"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

func (c *Commands) replyURLs(ctx context.Context, req *domain.Request, urls []string) error {
	var valid []string
	for _, u := range urls {
		if strings.HasPrefix(strings.ToLower(u), "http") {
			valid = append(valid, u)
		}
	}
	if len(valid) == 0 {
		return c.replyPlain(ctx, req, "FAILED: no image returned")
	}
	return c.deps.Replier.ReplyImages(ctx, req.Msg, valid, "")
}

func imageURLs(images []repo.GeneratedImage) []string {
	urls := make([]string, len(images))
	for i, img := range images {
		urls[i] = img.URL
	}
	return urls
}

func errorText(err error) string {
	if err == nil {
		return "error"
	}
	return err.Error()
}
