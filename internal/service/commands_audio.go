package service

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/goldchat/matiebot/internal/biz/domain"
)

// ttsCostPerChar is the backend's speech price in dollars per input character
const ttsCostPerChar = 0.030 / 1000

var voices = map[string]bool{
	"alloy": true, "echo": true, "fable": true, "nova": true, "onyx": true, "shimmer": true,
}

func (c *Commands) setVoice(ctx context.Context, req *domain.Request) (domain.Result, error) {
	voice := strings.ToLower(req.Arg)
	if !voices[voice] {
		return domain.Result{}, c.reply(ctx, req, "Must be one of these: alloy, echo, fable, onyx, nova, and shimmer.")
	}
	c.deps.Settings.SetVoice(voice)
	return domain.Result{}, c.reply(ctx, req, "Done.")
}

func (c *Commands) tts(ctx context.Context, req *domain.Request) (domain.Result, error) {
	text := argOrReply(req)
	if text == "" {
		return domain.Result{}, c.reply(ctx, req, "Нечего озвучивать, напиши текст или сделай реплай.")
	}

	audio, err := c.deps.Backend.Speak(ctx, text, c.deps.Settings.Voice())
	if err != nil {
		return domain.Result{}, err
	}
	defer audio.Close()

	if err := c.deps.Replier.ReplyAudio(ctx, req.Msg, "generated_voice.mp3", audio); err != nil {
		return domain.Result{}, err
	}
	return domain.Result{EstimatedCost: float64(utf8.RuneCountInString(text)) * ttsCostPerChar}, nil
}

func (c *Commands) stt(ctx context.Context, req *domain.Request) (domain.Result, error) {
	att, ok := findAttachment(req.Msg, domain.AttachmentVoice, domain.AttachmentAudio)
	if !ok {
		return domain.Result{}, c.reply(ctx, req, "Не вижу войса/аудио файла, сделай на них реплай.")
	}

	data, err := c.deps.Replier.Download(ctx, att)
	if err != nil {
		return domain.Result{}, err
	}

	text, err := c.deps.Backend.Transcribe(ctx, audioFileName(att), data)
	if err != nil {
		return domain.Result{}, err
	}
	return domain.Result{}, c.replyPlain(ctx, req, text)
}

// audioFileName picks a name whose extension the transcription endpoint accepts
func audioFileName(att domain.Attachment) string {
	if att.FileName != "" {
		return att.FileName
	}
	if att.Kind == domain.AttachmentVoice {
		return "voice.ogg"
	}
	return "audio.mp3"
}
