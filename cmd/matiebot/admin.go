package main

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/goldchat/matiebot/internal/biz/domain"
	"github.com/goldchat/matiebot/internal/biz/repo"
	"github.com/goldchat/matiebot/internal/mcp"
)

var pruneOlderThan time.Duration

var limitsCmd = &cobra.Command{
	Use:   "limits <username>",
	Short: "Show a user's drawing usage and cap",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		quota, err := openStore()
		if err != nil {
			return err
		}
		defer quota.Close()

		l, err := quota.Limits(cmd.Context(), args[0], domain.KindDrawing, domain.QuotaWindow)
		if errors.Is(err, repo.ErrUserNotFound) {
			return fmt.Errorf("user %q not found", args[0])
		}
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d in the last 24h, %d all time, cap %d\n",
			l.Username, l.Last24h, l.AllTime, l.Cap)
		return nil
	},
}

var setCapCmd = &cobra.Command{
	Use:   "set-cap [username] <cap>",
	Short: "Set the daily drawing cap for one user, or for everyone",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		capValue, err := strconv.Atoi(args[len(args)-1])
		if err != nil || capValue < 0 {
			return fmt.Errorf("invalid cap %q", args[len(args)-1])
		}

		quota, err := openStore()
		if err != nil {
			return err
		}
		defer quota.Close()

		var updated bool
		if len(args) == 2 {
			updated, err = quota.SetCap(cmd.Context(), args[0], capValue)
		} else {
			updated, err = quota.SetCapAll(cmd.Context(), capValue)
		}
		if err != nil {
			return err
		}
		if !updated {
			return errors.New("no matching users")
		}

		fmt.Fprintln(cmd.OutOrStdout(), "Done")
		return nil
	},
}

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete quota events older than the retention period",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if pruneOlderThan < domain.QuotaWindow {
			return fmt.Errorf("--older-than must be at least %s to keep the quota window intact", domain.QuotaWindow)
		}

		quota, err := openStore()
		if err != nil {
			return err
		}
		defer quota.Close()

		n, err := quota.PruneBefore(cmd.Context(), time.Now().Add(-pruneOlderThan))
		if err != nil {
			return err
		}

		logger.Info("pruned quota events", zap.Int64("deleted", n), zap.Duration("older_than", pruneOlderThan))
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d events\n", n)
		return nil
	},
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve quota administration tools over MCP stdio",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		quota, err := openStore()
		if err != nil {
			return err
		}
		defer quota.Close()

		return mcp.NewAdminServer(quota, version, logger).Run(cmd.Context())
	},
}
