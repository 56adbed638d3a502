package usecase

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"go.uber.org/zap"

	"github.com/goldchat/matiebot/internal/biz/domain"
	"github.com/goldchat/matiebot/internal/biz/repo"
)

// DispatcherTexts are the user-visible gate replies
type DispatcherTexts struct {
	AccessDenied   string
	NotProvisioned string
	UserQuota      string // Formatted with the user's cap
	SharedQuota    string // Formatted with the daily shared ceiling
	BackendQuota   string // The model provider refused for billing reasons
}

// DefaultDispatcherTexts returns the built-in gate replies
func DefaultDispatcherTexts() DispatcherTexts {
	return DispatcherTexts{
		AccessDenied:   "вы кто такие? я вас не знаю. Access denied.",
		NotProvisioned: "Не могу найти тебя в базе, попробуй ещё раз.",
		UserQuota:      "Харэ, не больше %d запросов в Dall-3 на рыло за 24 часа.",
		SharedQuota:    "Харэ, не больше %d запросов в ChatGPT за 24 часа.",
		BackendQuota:   "Деньги на OpenAI кончились, админы уже в курсе.",
	}
}

// DispatcherConfig configures gating and fallback
type DispatcherConfig struct {
	DailySharedQuota  int
	Privileged        domain.PrincipalSet // Echo sources and panic recipients
	AggregationChatID string
	Texts             DispatcherTexts
}

// Dispatcher routes each inbound message to at most one command
type Dispatcher struct {
	table   *CommandTable
	quota   repo.QuotaRepo
	replier repo.Replier
	chatLog *ChatLog
	cfg     DispatcherConfig
	logger  *zap.Logger
}

// NewDispatcher creates a new dispatcher
func NewDispatcher(
	table *CommandTable,
	quota repo.QuotaRepo,
	replier repo.Replier,
	chatLog *ChatLog,
	cfg DispatcherConfig,
	logger *zap.Logger,
) *Dispatcher {
	return &Dispatcher{
		table:   table,
		quota:   quota,
		replier: replier,
		chatLog: chatLog,
		cfg:     cfg,
		logger:  logger.Named("dispatcher"),
	}
}

// panicError wraps a value recovered from a command action
type panicError struct {
	command string
	value   any
	stack   []byte
}

func (e *panicError) Error() string {
	return fmt.Sprintf("panic in %s: %v\n%s", e.command, e.value, e.stack)
}

// HandleMessage matches, gates, runs and records one message.
// Every message is recorded exactly once.
func (d *Dispatcher) HandleMessage(ctx context.Context, msg *domain.InboundMessage) {
	if msg.HasUser() {
		if err := d.quota.EnsureUserExists(ctx, msg.Sender()); err != nil {
			d.logger.Warn("failed to ensure user", zap.String("user_id", msg.UserID), zap.Error(err))
		}
	}

	cmd, arg, ok := d.table.Match(msg.Text)
	if !ok {
		d.fallback(ctx, msg)
		return
	}

	log := d.logger.With(zap.String("command", cmd.Name), zap.String("chat_id", msg.ChatID), zap.String("user_id", msg.UserID))

	denial, err := d.gate(ctx, &cmd, msg)
	if err != nil {
		log.Error("gate check failed", zap.Error(err))
		d.reply(ctx, msg, err.Error())
		d.record(ctx, msg, cmd.Name, domain.KindNone, 0)
		return
	}
	if denial != "" {
		log.Info("denied", zap.String("reason", denial))
		d.reply(ctx, msg, denial)
		d.record(ctx, msg, cmd.Name, domain.KindNone, 0)
		return
	}

	log.Debug("running command", zap.Int("arg_len", len(arg)))
	res, err := d.run(ctx, &cmd, &domain.Request{Msg: msg, Arg: arg})

	var pe *panicError
	switch {
	case errors.As(err, &pe):
		log.Error("command panicked", zap.Any("panic", pe.value), zap.ByteString("stack", pe.stack))
		d.notifyAdmins(ctx, err.Error())
		res.EstimatedCost = 0
	case errors.Is(err, repo.ErrQuotaExceeded):
		log.Error("backend quota exhausted", zap.Error(err))
		d.reply(ctx, msg, d.cfg.Texts.BackendQuota)
		d.notifyAdmins(ctx, fmt.Sprintf("%s: %v", cmd.Name, err))
		res.EstimatedCost = 0
	case err != nil:
		log.Warn("command failed", zap.Error(err))
		d.reply(ctx, msg, err.Error())
		res.EstimatedCost = 0
	}

	d.record(ctx, msg, cmd.Name, cmd.Kind, res.EstimatedCost)
}

// gate applies the allow-list, per-user and shared checks in that order.
// A non-empty string is the denial reply.
func (d *Dispatcher) gate(ctx context.Context, cmd *domain.Command, msg *domain.InboundMessage) (string, error) {
	if !cmd.Allowed.Admits(msg.ChatID, msg.UserID) {
		return d.cfg.Texts.AccessDenied, nil
	}

	if cmd.Quota.ChecksPerUser() {
		if !msg.HasUser() {
			return d.cfg.Texts.NotProvisioned, nil
		}
		limit, ok, err := d.quota.GetCap(ctx, msg.UserID)
		if err != nil {
			return "", fmt.Errorf("get cap: %w", err)
		}
		if !ok {
			return d.cfg.Texts.NotProvisioned, nil
		}
		used, err := d.quota.CountInWindow(ctx, domain.UserSubject(msg.UserID), []domain.EventKind{cmd.Kind}, domain.QuotaWindow)
		if err != nil {
			return "", fmt.Errorf("count user events: %w", err)
		}
		if used >= limit {
			return fmt.Sprintf(d.cfg.Texts.UserQuota, limit), nil
		}
	}

	if cmd.Quota.ChecksShared() {
		used, err := d.quota.CountInWindow(ctx, domain.GlobalSubject, domain.ChargeableKinds, domain.QuotaWindow)
		if err != nil {
			return "", fmt.Errorf("count shared events: %w", err)
		}
		if used >= d.cfg.DailySharedQuota {
			return fmt.Sprintf(d.cfg.Texts.SharedQuota, d.cfg.DailySharedQuota), nil
		}
	}

	return "", nil
}

// run invokes the action, converting a panic into a *panicError
func (d *Dispatcher) run(ctx context.Context, cmd *domain.Command, req *domain.Request) (res domain.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{command: cmd.Name, value: r, stack: debug.Stack()}
		}
	}()
	return cmd.Action(ctx, req)
}

// fallback handles messages no command claimed
func (d *Dispatcher) fallback(ctx context.Context, msg *domain.InboundMessage) {
	d.record(ctx, msg, "", domain.KindNone, 0)

	if msg.Text == "" {
		return
	}

	if d.isPrivileged(msg) && d.cfg.AggregationChatID != "" && msg.ChatID != d.cfg.AggregationChatID {
		if err := d.replier.SendText(ctx, d.cfg.AggregationChatID, msg.Text); err != nil {
			d.logger.Warn("failed to mirror message", zap.String("chat_id", msg.ChatID), zap.Error(err))
		}
	}

	if d.chatLog != nil {
		d.chatLog.Append(fmt.Sprintf("[%s]: %s", msg.DisplayName(), msg.Text))
	}
}

func (d *Dispatcher) isPrivileged(msg *domain.InboundMessage) bool {
	return d.cfg.Privileged.Contains(msg.ChatID) || d.cfg.Privileged.Contains(msg.UserID)
}

// notifyAdmins sends text to every privileged principal; failures are ignored
func (d *Dispatcher) notifyAdmins(ctx context.Context, text string) {
	for _, id := range d.cfg.Privileged.IDs() {
		if err := d.replier.SendText(ctx, id, text); err != nil {
			d.logger.Debug("failed to notify admin", zap.String("admin", id), zap.Error(err))
		}
	}
}

func (d *Dispatcher) reply(ctx context.Context, msg *domain.InboundMessage, text string) {
	if err := d.replier.ReplyText(ctx, msg, text, false); err != nil {
		d.logger.Warn("failed to reply", zap.String("chat_id", msg.ChatID), zap.Error(err))
	}
}

func (d *Dispatcher) record(ctx context.Context, msg *domain.InboundMessage, command string, kind domain.EventKind, cost float64) {
	event := &domain.QuotaEvent{
		UserID:  msg.UserID,
		ChatID:  msg.ChatID,
		Kind:    kind,
		Command: command,
		Cost:    cost,
		Text:    msg.Text,
	}
	if err := d.quota.RecordEvent(ctx, event); err != nil {
		d.logger.Error("failed to record event", zap.String("chat_id", msg.ChatID), zap.Error(err))
	}
}
