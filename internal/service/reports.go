package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goldchat/matiebot/internal/biz/domain"
	"github.com/goldchat/matiebot/internal/biz/repo"
)

// topLimit is how many users the leaderboards show
const topLimit = 10

// topSendersReport renders the most active senders within window (0 = all time)
func topSendersReport(ctx context.Context, quota repo.QuotaRepo, window time.Duration) (string, error) {
	top, err := quota.TopUsers(ctx, domain.KindNone, window, topLimit)
	if err != nil {
		return "", fmt.Errorf("failed to load top senders: %w", err)
	}

	header := "Стата по флудерам за всё время:"
	if window > 0 {
		header = "Стата по флудерам за 24 часа:"
	}

	lines := make([]string, 0, len(top))
	for i, u := range top {
		lines = append(lines, fmt.Sprintf("%d) %s - %d", i+1, u.Name, u.Count))
	}
	return header + "\n\n" + strings.Join(lines, "\n"), nil
}

// drawingReport renders all-time drawing usage per user
func drawingReport(ctx context.Context, quota repo.QuotaRepo) (string, error) {
	top, err := quota.TopUsers(ctx, domain.KindDrawing, 0, topLimit)
	if err != nil {
		return "", fmt.Errorf("failed to load drawing stats: %w", err)
	}

	var b strings.Builder
	b.WriteString("Статистка использования Dall-E 3 по юзерам:\n\n")
	for i, u := range top {
		fmt.Fprintf(&b, "%d) `%s` - %d запросов\n", i+1, u.Name, u.Count)
	}
	return b.String(), nil
}

// limitsReport renders a user's drawing usage against their cap
func limitsReport(l *domain.Limits) string {
	return fmt.Sprintf("Пользователь `%s` послал `%d` запроса(ов) в Dalle-3 за 24 часа. Лимит: `%d`. За всё время: `%d`.",
		l.Username, l.Last24h, l.Cap, l.AllTime)
}
