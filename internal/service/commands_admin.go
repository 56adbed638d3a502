package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/goldchat/matiebot/internal/biz/domain"
	"github.com/goldchat/matiebot/internal/biz/repo"
)

const notAllowedReply = "Куда ты лезешь?"

func (c *Commands) users(ctx context.Context, req *domain.Request) (domain.Result, error) {
	n, err := c.deps.Quota.UserCount(ctx)
	if err != nil {
		return domain.Result{}, err
	}
	return domain.Result{}, c.reply(ctx, req, fmt.Sprintf("У меня в базе %d юзеров", n))
}

func (c *Commands) dayStats(ctx context.Context, req *domain.Request) (domain.Result, error) {
	text, err := topSendersReport(ctx, c.deps.Quota, domain.QuotaWindow)
	if err != nil {
		return domain.Result{}, err
	}
	return domain.Result{}, c.reply(ctx, req, text)
}

func (c *Commands) globalStats(ctx context.Context, req *domain.Request) (domain.Result, error) {
	text, err := topSendersReport(ctx, c.deps.Quota, 0)
	if err != nil {
		return domain.Result{}, err
	}
	return domain.Result{}, c.reply(ctx, req, text)
}

func (c *Commands) drawingStats(ctx context.Context, req *domain.Request) (domain.Result, error) {
	text, err := drawingReport(ctx, c.deps.Quota)
	if err != nil {
		return domain.Result{}, err
	}
	return domain.Result{}, c.reply(ctx, req, text)
}

func (c *Commands) ping(ctx context.Context, req *domain.Request) (domain.Result, error) {
	return domain.Result{}, c.reply(ctx, req, "pong!")
}

func (c *Commands) uptime(ctx context.Context, req *domain.Request) (domain.Result, error) {
	days := c.now().Sub(c.deps.StartedAt).Hours() / 24
	return domain.Result{}, c.reply(ctx, req, fmt.Sprintf("%.0f дней.", days))
}

func (c *Commands) quit(ctx context.Context, req *domain.Request) (domain.Result, error) {
	c.logger.Warn("quit requested", zap.String("user_id", req.Msg.UserID))
	err := c.reply(ctx, req, "OK :(")
	if c.deps.Quit != nil {
		time.AfterFunc(c.quitDelay, c.deps.Quit)
	}
	return domain.Result{}, err
}

func (c *Commands) models(ctx context.Context, req *domain.Request) (domain.Result, error) {
	models, err := c.deps.Backend.ListModels(ctx)
	if err != nil {
		return domain.Result{}, err
	}

	var text string
	if req.Arg != "" {
		filter := strings.ToLower(req.Arg)
		var matched []string
		for _, m := range models {
			if strings.Contains(strings.ToLower(m), filter) {
				matched = append(matched, m)
			}
		}
		text = "\n" + strings.Join(matched, "\n")
	} else {
		text = strings.Join(models, ", ")
	}
	return domain.Result{}, c.replyPlain(ctx, req, "Models: "+text)
}

func (c *Commands) getModel(ctx context.Context, req *domain.Request) (domain.Result, error) {
	return domain.Result{}, c.reply(ctx, req, "Current model: "+c.deps.Settings.Model())
}

func (c *Commands) setModel(ctx context.Context, req *domain.Request) (domain.Result, error) {
	model := strings.ToLower(req.Arg)
	if model == "" {
		return domain.Result{}, c.reply(ctx, req, "syntax: !set_model <model>")
	}
	c.deps.Settings.SetModel(model)
	c.deps.Conversation.NewContext("")
	c.logger.Info("model changed", zap.String("model", model))
	return domain.Result{}, c.reply(ctx, req, "Default model is set to "+model)
}

func (c *Commands) resetContext(ctx context.Context, req *domain.Request) (domain.Result, error) {
	c.deps.Conversation.NewContext(req.Arg)
	return domain.Result{}, c.reply(ctx, req, "Ok 🫡")
}

func (c *Commands) setCap(ctx context.Context, req *domain.Request) (domain.Result, error) {
	if !c.isAdmin(req.Msg) {
		return domain.Result{}, c.reply(ctx, req, notAllowedReply)
	}

	parts := strings.Fields(req.Arg)
	var (
		ok  bool
		err error
	)
	switch len(parts) {
	case 1:
		capValue, convErr := strconv.Atoi(parts[0])
		if convErr != nil {
			return domain.Result{}, c.reply(ctx, req, "syntax: !set_dalle3_cap [user] <newcap>")
		}
		ok, err = c.deps.Quota.SetCapAll(ctx, capValue)
	case 2:
		capValue, convErr := strconv.Atoi(parts[1])
		if convErr != nil {
			return domain.Result{}, c.reply(ctx, req, "syntax: !set_dalle3_cap [user] <newcap>")
		}
		ok, err = c.deps.Quota.SetCap(ctx, parts[0], capValue)
	default:
		return domain.Result{}, c.reply(ctx, req, "syntax: !set_dalle3_cap [user] <newcap>")
	}
	if err != nil {
		return domain.Result{}, err
	}

	if !ok {
		return domain.Result{}, c.reply(ctx, req, "User not found")
	}
	return domain.Result{}, c.reply(ctx, req, "Done")
}

func (c *Commands) showRevisedPrompt(ctx context.Context, req *domain.Request) (domain.Result, error) {
	show := !(req.Arg == "0" || strings.EqualFold(req.Arg, "false"))
	c.deps.Settings.SetShowRevisedPrompt(show)
	return domain.Result{}, c.reply(ctx, req, "Done.")
}

func (c *Commands) limits(ctx context.Context, req *domain.Request) (domain.Result, error) {
	username := req.Arg
	if username == "" {
		username = req.Msg.Username
	}

	l, err := c.deps.Quota.Limits(ctx, username, domain.KindDrawing, domain.QuotaWindow)
	if errors.Is(err, repo.ErrUserNotFound) {
		return domain.Result{}, c.reply(ctx, req, fmt.Sprintf("Пользователь '%s' не найден", username))
	}
	if err != nil {
		return domain.Result{}, err
	}
	return domain.Result{}, c.reply(ctx, req, limitsReport(l))
}

func (c *Commands) sql(ctx context.Context, req *domain.Request) (domain.Result, error) {
	if !c.isAdmin(req.Msg) {
		return domain.Result{}, c.reply(ctx, req, notAllowedReply)
	}

	c.logger.Info("raw query", zap.String("user_id", req.Msg.UserID), zap.String("query", req.Arg))
	text, err := c.deps.Quota.RawQuery(ctx, req.Arg)
	if err != nil {
		return domain.Result{}, err
	}
	return domain.Result{}, c.replyPlain(ctx, req, "Result:\n\n"+text)
}
