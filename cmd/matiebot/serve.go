package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/goldchat/matiebot/internal/biz/repo"
	"github.com/goldchat/matiebot/internal/biz/usecase"
	"github.com/goldchat/matiebot/internal/conf"
	"github.com/goldchat/matiebot/internal/data"
	"github.com/goldchat/matiebot/internal/infra/feishu"
	"github.com/goldchat/matiebot/internal/infra/openai"
	"github.com/goldchat/matiebot/internal/infra/telegram"
	"github.com/goldchat/matiebot/internal/server"
	"github.com/goldchat/matiebot/internal/service"
)

const (
	defaultVoice = "alloy"
	defaultStyle = "vivid"

	shutdownTimeout = 30 * time.Second
)

// transportServer delivers inbound messages until ctx ends
type transportServer interface {
	Run(ctx context.Context) error
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	openaiClient := openai.NewClient(openai.Config{
		APIKey:  cfg.OpenAI.APIKey,
		BaseURL: cfg.OpenAI.BaseURL,
		Timeout: cfg.OpenAI.Timeout,
	}, logger)

	repos, err := data.NewRepositories(openaiClient, cfg.Quota.DBPath, cfg.Quota.DefaultUserCap)
	if err != nil {
		return fmt.Errorf("failed to create repositories: %w", err)
	}
	defer repos.Close()
	logger.Info("quota store opened", zap.String("path", cfg.Quota.DBPath))

	// Transport decides the replier; the server is bound once the bot service exists
	var newServer func(bot server.MessageSubmitter) transportServer
	switch cfg.Transport {
	case conf.TransportFeishu:
		client := feishu.NewClient(cfg.Feishu.AppID, cfg.Feishu.AppSecret, logger)
		repos.Replier = data.NewFeishuRepo(client)
		newServer = func(bot server.MessageSubmitter) transportServer {
			return server.NewFeishuServer(client, bot, logger)
		}
	default:
		client, err := telegram.NewClient(cfg.Telegram.Token, logger)
		if err != nil {
			return fmt.Errorf("failed to create telegram client: %w", err)
		}
		repos.Replier = data.NewTelegramRepo(client)
		newServer = func(bot server.MessageSubmitter) transportServer {
			return server.NewTelegramServer(client, bot, logger)
		}
	}

	dispatcher, err := buildDispatcher(repos, stop)
	if err != nil {
		return err
	}

	pool := service.NewWorkerPool(cfg.Bot.Workers, logger)
	bot := service.NewBotService(dispatcher, pool, logger)

	scheduler := service.NewScheduler(logger,
		service.StatsJob(cfg.Schedule.Stats, repos.Quota, repos.Replier, cfg.Bot.AggregationChatID),
		service.PruneJob(cfg.Schedule.Prune, repos.Quota, cfg.Schedule.Retention(), time.Now, logger),
	)
	scheduler.Start()
	defer scheduler.Stop()

	logger.Info("starting bot",
		zap.String("transport", cfg.Transport),
		zap.String("name", cfg.Bot.Name),
		zap.String("model", cfg.OpenAI.Model),
		zap.Int("workers", cfg.Bot.Workers),
		zap.Strings("jobs", scheduler.Jobs()))

	runErr := newServer(bot).Run(ctx)

	logger.Info("shutting down")
	if !pool.Shutdown(shutdownTimeout) {
		logger.Warn("in-flight commands cancelled after timeout", zap.Duration("timeout", shutdownTimeout))
	}
	return runErr
}

// buildDispatcher assembles the command catalog and the gate in front of it
func buildDispatcher(repos *data.Repositories, quit func()) (*usecase.Dispatcher, error) {
	settings := usecase.NewSettings(cfg.OpenAI.Model, defaultVoice, defaultStyle)
	conversation := usecase.NewConversationUsecase(repos.Backend, settings, cfg.ToConversationConfig(), logger)
	chatLog := usecase.NewChatLog(cfg.Bot.ChatLogCapacity)

	messages := cfg.Messages
	commands := service.NewCommands(service.CommandDeps{
		Principals:   cfg.Principals(),
		BotName:      cfg.Bot.Name,
		BotAltName:   cfg.Bot.AltName,
		Quota:        repos.Quota,
		Backend:      repos.Backend,
		Replier:      repos.Replier,
		Conversation: conversation,
		Settings:     settings,
		ChatLog:      chatLog,
		Prompts: service.Prompts{
			Jailbreak:      messages.Conversation.JailbreakPrompt,
			JailbreakReply: messages.Conversation.JailbreakReply,
			Summary:        messages.Conversation.SummaryPrompt,
			DrawLiteral:    messages.Draw.LiteralPrefix,
		},
		StartedAt: time.Now(),
		Quit:      quit,
	}, logger)

	table, err := commands.Table()
	if err != nil {
		return nil, fmt.Errorf("failed to build command table: %w", err)
	}

	return usecase.NewDispatcher(table, repos.Quota, repos.Replier, chatLog, cfg.ToDispatcherConfig(), logger), nil
}

// openStore opens the quota store for the offline subcommands
func openStore() (repo.QuotaRepo, error) {
	if err := cfg.ValidateStore(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	quota, err := data.NewQuotaRepo(cfg.Quota.DBPath, cfg.Quota.DefaultUserCap)
	if err != nil {
		return nil, fmt.Errorf("failed to open quota store: %w", err)
	}
	return quota, nil
}
