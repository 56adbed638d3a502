package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/goldchat/matiebot/internal/biz/domain"
	"github.com/goldchat/matiebot/internal/biz/repo"
	"github.com/goldchat/matiebot/internal/biz/usecase"
)

// Prompts are the configurable texts the command actions use
type Prompts struct {
	Jailbreak      string
	JailbreakReply string
	Summary        string
	DrawLiteral    string
}

// CommandDeps are the collaborators the command actions close over
type CommandDeps struct {
	Principals   domain.Principals
	BotName      string
	BotAltName   string
	Quota        repo.QuotaRepo
	Backend      repo.BackendRepo
	Replier      repo.Replier
	Conversation *usecase.ConversationUsecase
	Settings     *usecase.Settings
	ChatLog      *usecase.ChatLog
	Prompts      Prompts
	StartedAt    time.Time

	// Quit stops the process; invoked shortly after !quit replies
	Quit func()
}

// Commands builds and serves the bot's command catalog
type Commands struct {
	deps       CommandDeps
	admins     domain.PrincipalSet
	goldChat   domain.PrincipalSet
	logger     *zap.Logger
	now        func() time.Time
	quitDelay  time.Duration
	catalog    []domain.Command
	tokenizers tokenizerCache
}

// NewCommands creates the command catalog
func NewCommands(deps CommandDeps, logger *zap.Logger) *Commands {
	c := &Commands{
		deps:      deps,
		admins:    deps.Principals.AdminsSet(),
		goldChat:  deps.Principals.AdminsAndGoldChat(),
		logger:    logger.Named("commands"),
		now:       time.Now,
		quitDelay: time.Second,
	}
	c.catalog = c.build()
	return c
}

// Catalog returns the commands in match order
func (c *Commands) Catalog() []domain.Command {
	out := make([]domain.Command, len(c.catalog))
	copy(out, c.catalog)
	return out
}

// Table builds the command table; a trigger collision is a startup error
func (c *Commands) Table() (*usecase.CommandTable, error) {
	return usecase.NewCommandTable(c.catalog...)
}

// build lists every command. Order matters: the first match wins.
func (c *Commands) build() []domain.Command {
	return []domain.Command{
		{Name: "!users", Allowed: c.goldChat, Action: c.users,
			Description: "Number of known users"},
		{Name: "!stats", AltName: "!daystats", Allowed: c.goldChat, Action: c.dayStats,
			Description: "Top senders for the last 24 hours"},
		{Name: "!globalstats", Allowed: c.goldChat, Action: c.globalStats,
			Description: "Top senders of all time"},
		{Name: "!ping", Action: c.ping},
		{Name: "!uptime", Action: c.uptime},
		{Name: "!quit", Allowed: c.admins, Action: c.quit},
		{Name: "!models", Action: c.models,
			Description: "List backend models, optionally filtered"},
		{Name: "!get_model", Action: c.getModel},
		{Name: "!set_model", Allowed: c.goldChat, Action: c.setModel},
		{Name: c.deps.BotName, AltName: c.deps.BotAltName, Allowed: c.goldChat,
			Quota: domain.QuotaShared, Kind: domain.KindText, Action: c.converse,
			Description: "Talk to the bot"},
		{Name: "!baza", AltName: "!база", Allowed: c.goldChat, Action: c.jailbreak},
		{Name: "!summary", Allowed: c.goldChat,
			Quota: domain.QuotaShared, Kind: domain.KindText, Action: c.summary,
			Description: "Summarize the recent chat history"},
		{Name: "!analyze", Allowed: c.goldChat,
			Quota: domain.QuotaShared, Kind: domain.KindText, Action: c.analyze,
			Description: "Moderation scores for a text"},
		{Name: "!complete", Allowed: c.goldChat,
			Quota: domain.QuotaShared, Kind: domain.KindText, Action: c.complete,
			Description: "One-shot completion without the conversation context"},
		{Name: "!tts_set_voice", Allowed: c.goldChat, Action: c.setVoice},
		{Name: "!tts", Allowed: c.goldChat,
			Quota: domain.QuotaShared, Kind: domain.KindAudio, Action: c.tts,
			Description: "Text-to-speech using OpenAI"},
		{Name: "!stt", Allowed: c.goldChat,
			Quota: domain.QuotaShared, Kind: domain.KindAudio, Action: c.stt,
			Description: "Speech-to-text using OpenAI"},
		{Name: "!vision", AltName: "!describe", Allowed: c.goldChat,
			Quota: domain.QuotaPerUser, Kind: domain.KindVision, Action: c.vision,
			Description: "Describe an image by URL or reply"},
		{Name: "!draw_set_style", Allowed: c.goldChat, Action: c.setStyle},
		{Name: "!draw", Allowed: c.goldChat,
			Quota: domain.QuotaPerUser, Kind: domain.KindDrawing, Action: c.draw,
			Description: "Generate images using DallE-3."},
		{Name: "!set_dalle3_cap", AltName: "!set_limit", Allowed: c.goldChat, Action: c.setCap},
		{Name: "!show_revised_prompt", Allowed: c.goldChat, Action: c.showRevisedPrompt},
		{Name: "!limits", Allowed: c.goldChat, Action: c.limits,
			Description: "Drawing usage and cap of a user"},
		{Name: "!vary", Allowed: c.goldChat,
			Quota: domain.QuotaPerUser, Kind: domain.KindDrawing, Action: c.vary,
			Description: "Redraw a replied photo from its description"},
		{Name: "!old_vary", Allowed: c.goldChat,
			Quota: domain.QuotaPerUser, Kind: domain.KindDrawing, Action: c.oldVary},
		{Name: "!fill", Allowed: c.goldChat,
			Quota: domain.QuotaPerUser, Kind: domain.KindDrawing, Action: c.fill},
		{Name: "!context", AltName: "!reset", Allowed: c.goldChat, Action: c.resetContext,
			Description: "Start a new conversation with an optional system prompt"},
		{Name: "!dalle", Allowed: c.goldChat, Action: c.drawingStats},
		{Name: "!tokens", Allowed: c.goldChat, Action: c.tokens,
			Description: "Count tokens of a text"},
		{Name: "!sql", Allowed: c.goldChat, Action: c.sql},
		{Name: "!help", AltName: "!commands", Allowed: c.goldChat, Action: c.help},
	}
}

// reply answers the request with markup
func (c *Commands) reply(ctx context.Context, req *domain.Request, text string) error {
	return c.deps.Replier.ReplyText(ctx, req.Msg, text, true)
}

// replyPlain answers the request without markup
func (c *Commands) replyPlain(ctx context.Context, req *domain.Request, text string) error {
	return c.deps.Replier.ReplyText(ctx, req.Msg, text, false)
}

// isAdmin reports whether the sender is a bot admin
func (c *Commands) isAdmin(msg *domain.InboundMessage) bool {
	return c.admins.Contains(msg.UserID)
}

// argOrReply returns the argument, or the replied-to text when the argument is empty
func argOrReply(req *domain.Request) string {
	if req.Arg != "" {
		return req.Arg
	}
	return strings.TrimSpace(req.Msg.ReplyText())
}

// findAttachment looks at the message itself, then at the replied-to message
func findAttachment(msg *domain.InboundMessage, kinds ...domain.AttachmentKind) (domain.Attachment, bool) {
	if att, ok := msg.FindAttachment(kinds...); ok {
		return att, true
	}
	if msg.ReplyTo == nil {
		return domain.Attachment{}, false
	}
	return msg.ReplyTo.FindAttachment(kinds...)
}

func (c *Commands) help(ctx context.Context, req *domain.Request) (domain.Result, error) {
	cmds := c.Catalog()
	sort.SliceStable(cmds, func(i, j int) bool { return cmds[i].Name < cmds[j].Name })

	var b strings.Builder
	b.WriteString("Commands:\n\n")
	for _, cmd := range cmds {
		fmt.Fprintf(&b, "`%s`", cmd.Name)
		if cmd.AltName != "" {
			fmt.Fprintf(&b, " (or `%s`)", cmd.AltName)
		}
		if cmd.Description != "" {
			b.WriteString(" - " + cmd.Description)
		}
		b.WriteString("\n")
	}
	return domain.Result{}, c.reply(ctx, req, b.String())
}
