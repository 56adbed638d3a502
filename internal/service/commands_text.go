package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/goldchat/matiebot/internal/biz/domain"
)

const (
	// summaryLines is how much chat history !summary sends
	summaryLines = 100

	// moderationThreshold hides negligible category scores
	moderationThreshold = 0.0099

	tokenizerModel = "gpt-4"
)

func (c *Commands) converse(ctx context.Context, req *domain.Request) (domain.Result, error) {
	text := req.Arg
	if quoted := strings.TrimSpace(req.Msg.ReplyText()); quoted != "" {
		text += ":\n\n" + quoted
	}

	answer, err := c.deps.Conversation.Ask(ctx, text)
	if err != nil {
		return domain.Result{}, err
	}
	return domain.Result{}, c.reply(ctx, req, answer)
}

func (c *Commands) jailbreak(ctx context.Context, req *domain.Request) (domain.Result, error) {
	c.deps.Conversation.NewContext(c.deps.Prompts.Jailbreak)
	return domain.Result{}, c.reply(ctx, req, c.deps.Prompts.JailbreakReply)
}

// summary runs a one-off conversation over the chat log; the shared context is untouched
func (c *Commands) summary(ctx context.Context, req *domain.Request) (domain.Result, error) {
	prompt := req.Arg
	if prompt == "" {
		prompt = c.deps.Prompts.Summary
	}

	transcript := c.deps.ChatLog.Transcript(summaryLines)
	if transcript == "" {
		return domain.Result{}, c.reply(ctx, req, "Пока нечего анализировать.")
	}

	conv := domain.NewConversationContext(prompt)
	conv.Append(domain.RoleUser, transcript)
	answer, err := c.deps.Backend.Chat(ctx, c.deps.Settings.Model(), conv.Snapshot())
	if err != nil {
		return domain.Result{}, err
	}
	return domain.Result{}, c.reply(ctx, req, answer)
}

// complete sends a single user turn; the shared context is untouched
func (c *Commands) complete(ctx context.Context, req *domain.Request) (domain.Result, error) {
	text := argOrReply(req)
	if text == "" {
		return domain.Result{}, c.reply(ctx, req, "syntax: !complete <text>")
	}

	answer, err := c.deps.Backend.Chat(ctx, c.deps.Settings.Model(), []domain.Turn{{Role: domain.RoleUser, Content: text}})
	if err != nil {
		return domain.Result{}, err
	}
	return domain.Result{}, c.reply(ctx, req, answer)
}

func (c *Commands) analyze(ctx context.Context, req *domain.Request) (domain.Result, error) {
	text := argOrReply(req)
	if text == "" {
		return domain.Result{}, c.reply(ctx, req, "syntax: !analyze <text>")
	}

	scores, err := c.deps.Backend.Moderate(ctx, text)
	if err != nil {
		return domain.Result{}, err
	}
	return domain.Result{}, c.replyPlain(ctx, req, formatModeration(scores))
}

// formatModeration lists the notable categories, highest score first
func formatModeration(scores map[string]float64) string {
	type score struct {
		category string
		value    float64
	}
	var notable []score
	for k, v := range scores {
		if v >= moderationThreshold {
			notable = append(notable, score{k, v})
		}
	}
	if len(notable) == 0 {
		return "обычный текст, ничего необычного"
	}

	sort.Slice(notable, func(i, j int) bool {
		if notable[i].value != notable[j].value {
			return notable[i].value > notable[j].value
		}
		return notable[i].category < notable[j].category
	})

	var b strings.Builder
	b.WriteString("Анализ:\n")
	for _, s := range notable {
		fmt.Fprintf(&b, " %s: %.2f\n", s.category, s.value)
	}
	return b.String()
}

func (c *Commands) tokens(ctx context.Context, req *domain.Request) (domain.Result, error) {
	text := argOrReply(req)
	if text == "" {
		return domain.Result{}, nil
	}

	n, err := c.tokenizers.count(tokenizerModel, text)
	if err != nil {
		return domain.Result{}, err
	}
	return domain.Result{}, c.reply(ctx, req, fmt.Sprintf("%d tokens.", n))
}

// tokenizerCache loads each model's encoding once
type tokenizerCache struct {
	mu    sync.Mutex
	byKey map[string]*tiktoken.Tiktoken
}

func (tc *tokenizerCache) count(model, text string) (int, error) {
	tc.mu.Lock()
	enc, ok := tc.byKey[model]
	if !ok {
		var err error
		enc, err = tiktoken.EncodingForModel(model)
		if err != nil {
			tc.mu.Unlock()
			return 0, fmt.Errorf("failed to load tokenizer for %s: %w", model, err)
		}
		if tc.byKey == nil {
			tc.byKey = make(map[string]*tiktoken.Tiktoken)
		}
		tc.byKey[model] = enc
	}
	tc.mu.Unlock()

	return len(enc.Encode(text, nil, nil)), nil
}
