package main

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/goldchat/matiebot/internal/conf"
)

var version = "dev"

var (
	verbose bool
	logger  *zap.Logger
	cfg     *conf.Config
)

var rootCmd = &cobra.Command{
	Use:   "matiebot",
	Short: "Group chat bot with per-user and shared daily quotas",
	Long: `matiebot answers commands in a Telegram or Feishu group chat.

Run without arguments to serve the configured transport. The other
subcommands administer the quota store offline.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to load .env: %w", err)
		}

		var err error
		cfg, err = conf.LoadFromEnv()
		if err != nil {
			return err
		}

		config := zap.NewProductionConfig()
		if verbose || cfg.Verbose {
			config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		logger, err = config.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Connect to the chat transport and answer commands",
	RunE:  runServe,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.Version = version

	pruneCmd.Flags().DurationVar(&pruneOlderThan, "older-than", 30*24*time.Hour, "Delete events older than this")

	rootCmd.AddCommand(serveCmd, limitsCmd, setCapCmd, pruneCmd, mcpCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
