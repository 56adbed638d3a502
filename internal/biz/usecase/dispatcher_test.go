package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/goldchat/matiebot/internal/biz/domain"
	"github.com/goldchat/matiebot/internal/biz/repo"
)

const (
	adminID  = "1"
	goldChat = "-100"
	userID   = "7"
	userChat = "7"
)

type dispatcherFixture struct {
	quota    *mockQuotaRepo
	replier  *mockReplier
	chatLog  *ChatLog
	d        *Dispatcher
	runs     map[string]*int32
	lastArgs map[string]string
}

func newDispatcherFixture(t *testing.T, sharedQuota, userCap int, cmds ...domain.Command) *dispatcherFixture {
	t.Helper()

	f := &dispatcherFixture{
		quota:    newMockQuotaRepo(userCap),
		replier:  &mockReplier{},
		chatLog:  NewChatLog(10),
		runs:     make(map[string]*int32),
		lastArgs: make(map[string]string),
	}

	wrapped := make([]domain.Command, len(cmds))
	for i, cmd := range cmds {
		var counter int32
		f.runs[cmd.Name] = &counter
		name, action := cmd.Name, cmd.Action
		cmd.Action = func(ctx context.Context, req *domain.Request) (domain.Result, error) {
			atomic.AddInt32(&counter, 1)
			f.lastArgs[name] = req.Arg
			return action(ctx, req)
		}
		wrapped[i] = cmd
	}

	table, err := NewCommandTable(wrapped...)
	require.NoError(t, err)

	f.d = NewDispatcher(table, f.quota, f.replier, f.chatLog, DispatcherConfig{
		DailySharedQuota:  sharedQuota,
		Privileged:        domain.NewPrincipalSet([]string{adminID}),
		AggregationChatID: goldChat,
		Texts:             DefaultDispatcherTexts(),
	}, zap.NewNop())
	return f
}

func (f *dispatcherFixture) ran(name string) int {
	return int(atomic.LoadInt32(f.runs[name]))
}

func costAction(cost float64) domain.Action {
	return func(ctx context.Context, req *domain.Request) (domain.Result, error) {
		return domain.Result{EstimatedCost: cost}, nil
	}
}

func userMsg(text string) *domain.InboundMessage {
	return &domain.InboundMessage{ID: "m1", ChatID: userChat, UserID: userID, FirstName: "Ann", Text: text}
}

func TestDispatcher_OnlyFirstMatchRuns(t *testing.T) {
	f := newDispatcherFixture(t, 100, 10,
		domain.Command{Name: "!draw", Trigger: domain.TriggerPrefix, Action: noop},
		domain.Command{Name: "draw", Trigger: domain.TriggerSubstring, Action: noop},
		domain.Command{Name: "!dr", Trigger: domain.TriggerPrefix, Action: noop},
	)

	f.d.HandleMessage(context.Background(), userMsg("!draw   hello, world"))

	assert.Equal(t, 1, f.ran("!draw"))
	assert.Equal(t, 0, f.ran("draw"))
	assert.Equal(t, 0, f.ran("!dr"))
	assert.Equal(t, "hello, world", f.lastArgs["!draw"])
	assert.Len(t, f.quota.recorded(), 1)
}

func TestDispatcher_AllowListDenies(t *testing.T) {
	f := newDispatcherFixture(t, 100, 10,
		domain.Command{
			Name:    "!sql",
			Trigger: domain.TriggerPrefix,
			Allowed: domain.Principals{Admins: []string{adminID}, GoldChat: goldChat}.AdminsAndGoldChat(),
			Quota:   domain.QuotaShared,
			Kind:    domain.KindText,
			Action:  noop,
		},
	)
	ctx := context.Background()

	f.d.HandleMessage(ctx, userMsg("!sql select 1"))

	assert.Equal(t, 0, f.ran("!sql"))
	sent := f.replier.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "вы кто такие? я вас не знаю. Access denied.", sent[0].Text)
	assert.Equal(t, "m1", sent[0].ReplyTo)

	events := f.quota.recorded()
	require.Len(t, events, 1)
	assert.Equal(t, domain.KindNone, events[0].Kind)

	// Allowed via the chat, and via the user from another chat
	f.d.HandleMessage(ctx, &domain.InboundMessage{ChatID: goldChat, UserID: userID, Text: "!sql select 1"})
	f.d.HandleMessage(ctx, &domain.InboundMessage{ChatID: "999", UserID: adminID, Text: "!sql select 1"})
	assert.Equal(t, 2, f.ran("!sql"))
}

func TestDispatcher_PerUserQuotaBoundary(t *testing.T) {
	tests := []struct {
		name    string
		seeded  int
		allowed bool
	}{
		{"below cap", 2, true},
		{"at cap", 3, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newDispatcherFixture(t, 100, 3,
				domain.Command{Name: "!draw", Trigger: domain.TriggerPrefix, Quota: domain.QuotaPerUser, Kind: domain.KindDrawing, Action: costAction(0.04)},
			)
			f.quota.seed(userID, domain.KindDrawing, tt.seeded, time.Hour)
			// Old and other-kind events do not count
			f.quota.seed(userID, domain.KindDrawing, 5, 25*time.Hour)
			f.quota.seed(userID, domain.KindText, 5, time.Hour)

			f.d.HandleMessage(context.Background(), userMsg("!draw a cat"))

			if tt.allowed {
				assert.Equal(t, 1, f.ran("!draw"))
				assert.Empty(t, f.replier.sent())
				return
			}
			assert.Equal(t, 0, f.ran("!draw"))
			sent := f.replier.sent()
			require.Len(t, sent, 1)
			assert.Contains(t, sent[0].Text, "3")
			assert.Contains(t, sent[0].Text, "Dall-3")
		})
	}
}

func TestDispatcher_SharedQuotaBoundary(t *testing.T) {
	tests := []struct {
		name    string
		seeded  int
		allowed bool
	}{
		{"below ceiling", 4, true},
		{"at ceiling", 5, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newDispatcherFixture(t, 5, 100,
				domain.Command{Name: "matie", Trigger: domain.TriggerSubstring, Quota: domain.QuotaShared, Kind: domain.KindText, Action: noop},
				domain.Command{Name: "!ping", Trigger: domain.TriggerPrefix, Action: noop},
			)
			f.quota.seed("someone-else", domain.KindVision, tt.seeded, time.Hour)
			f.quota.seed("someone-else", domain.KindNone, 50, time.Hour)

			f.d.HandleMessage(context.Background(), userMsg("hey matie"))
			f.d.HandleMessage(context.Background(), userMsg("!ping"))

			assert.Equal(t, 1, f.ran("!ping"), "unmetered commands are never gated")
			if tt.allowed {
				assert.Equal(t, 1, f.ran("matie"))
				return
			}
			assert.Equal(t, 0, f.ran("matie"))
			sent := f.replier.sent()
			require.Len(t, sent, 1)
			assert.Contains(t, sent[0].Text, "5")
		})
	}
}

func TestDispatcher_PerUserCheckedBeforeShared(t *testing.T) {
	f := newDispatcherFixture(t, 1, 1,
		domain.Command{Name: "!vision", Trigger: domain.TriggerPrefix, Quota: domain.QuotaPerUser, Kind: domain.KindVision, Action: noop},
	)
	f.quota.seed(userID, domain.KindVision, 1, time.Minute)

	f.d.HandleMessage(context.Background(), userMsg("!vision"))

	sent := f.replier.sent()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].Text, "Dall-3")
}

func TestDispatcher_UnprovisionedUserDenied(t *testing.T) {
	f := newDispatcherFixture(t, 10, 10,
		domain.Command{Name: "!draw", Trigger: domain.TriggerPrefix, Quota: domain.QuotaPerUser, Kind: domain.KindDrawing, Action: noop},
	)

	f.d.HandleMessage(context.Background(), &domain.InboundMessage{ChatID: "-5", Text: "!draw a cat"})

	assert.Equal(t, 0, f.ran("!draw"))
	require.Len(t, f.replier.sent(), 1)
}

func TestDispatcher_RecordsCommandCost(t *testing.T) {
	f := newDispatcherFixture(t, 10, 10,
		domain.Command{Name: "!draw", Trigger: domain.TriggerPrefix, Quota: domain.QuotaPerUser, Kind: domain.KindDrawing, Action: costAction(0.08)},
	)

	f.d.HandleMessage(context.Background(), userMsg("!draw a cat"))

	events := f.quota.recorded()
	require.Len(t, events, 1)
	assert.Equal(t, domain.KindDrawing, events[0].Kind)
	assert.Equal(t, 0.08, events[0].Cost)
	assert.Equal(t, "!draw", events[0].Command)
	assert.Equal(t, userID, events[0].UserID)
}

func TestDispatcher_ActionErrorIsRepliedAndRecorded(t *testing.T) {
	f := newDispatcherFixture(t, 10, 10,
		domain.Command{Name: "!tts", Trigger: domain.TriggerPrefix, Quota: domain.QuotaShared, Kind: domain.KindAudio,
			Action: func(ctx context.Context, req *domain.Request) (domain.Result, error) {
				return domain.Result{EstimatedCost: 1}, errors.New("backend said no")
			}},
	)

	f.d.HandleMessage(context.Background(), userMsg("!tts hi"))

	sent := f.replier.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "backend said no", sent[0].Text)

	events := f.quota.recorded()
	require.Len(t, events, 1)
	assert.Zero(t, events[0].Cost)
}

func TestDispatcher_BackendQuotaNotifiesAdmins(t *testing.T) {
	f := newDispatcherFixture(t, 10, 10,
		domain.Command{Name: "!draw", Trigger: domain.TriggerPrefix, Quota: domain.QuotaShared, Kind: domain.KindDrawing,
			Action: func(ctx context.Context, req *domain.Request) (domain.Result, error) {
				return domain.Result{EstimatedCost: 1}, fmt.Errorf("%w: insufficient_quota", repo.ErrQuotaExceeded)
			}},
	)

	f.d.HandleMessage(context.Background(), userMsg("!draw a cat"))

	sent := f.replier.sent()
	require.Len(t, sent, 2)
	assert.Equal(t, DefaultDispatcherTexts().BackendQuota, sent[0].Text)
	assert.Equal(t, adminID, sent[1].ChatID)
	assert.Contains(t, sent[1].Text, "insufficient_quota")

	events := f.quota.recorded()
	require.Len(t, events, 1)
	assert.Zero(t, events[0].Cost)
}

func TestDispatcher_PanicNotifiesAdmins(t *testing.T) {
	f := newDispatcherFixture(t, 10, 10,
		domain.Command{Name: "!boom", Trigger: domain.TriggerPrefix,
			Action: func(ctx context.Context, req *domain.Request) (domain.Result, error) {
				panic("kaboom")
			}},
	)

	require.NotPanics(t, func() {
		f.d.HandleMessage(context.Background(), userMsg("!boom"))
	})

	sent := f.replier.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, adminID, sent[0].ChatID)
	assert.True(t, strings.Contains(sent[0].Text, "kaboom"))

	events := f.quota.recorded()
	require.Len(t, events, 1)
	assert.Zero(t, events[0].Cost)
}

func TestDispatcher_FallbackEcho(t *testing.T) {
	f := newDispatcherFixture(t, 10, 10,
		domain.Command{Name: "!ping", Trigger: domain.TriggerPrefix, Action: noop},
	)
	ctx := context.Background()

	f.d.HandleMessage(ctx, &domain.InboundMessage{ChatID: adminID, UserID: adminID, FirstName: "Boss", Text: "just chatting"})
	f.d.HandleMessage(ctx, userMsg("also chatting"))

	sent := f.replier.sent()
	require.Len(t, sent, 1, "only privileged senders are mirrored")
	assert.Equal(t, goldChat, sent[0].ChatID)
	assert.Equal(t, "just chatting", sent[0].Text)

	assert.Equal(t, []string{"[Boss]: just chatting", "[Ann]: also chatting"}, f.chatLog.Last(0))

	events := f.quota.recorded()
	require.Len(t, events, 2)
	for _, e := range events {
		assert.Equal(t, domain.KindNone, e.Kind)
		assert.Zero(t, e.Cost)
	}
}

func TestDispatcher_FallbackNotMirroredIntoAggregationChat(t *testing.T) {
	f := newDispatcherFixture(t, 10, 10)

	f.d.HandleMessage(context.Background(), &domain.InboundMessage{ChatID: goldChat, UserID: adminID, FirstName: "Boss", Text: "hello everyone"})

	assert.Empty(t, f.replier.sent())
	assert.Equal(t, []string{"[Boss]: hello everyone"}, f.chatLog.Last(0))
}

func TestDispatcher_AttachmentOnlyIsRecordedNotHandled(t *testing.T) {
	f := newDispatcherFixture(t, 10, 10,
		domain.Command{Name: "!ping", Trigger: domain.TriggerPrefix, Action: noop},
	)

	f.d.HandleMessage(context.Background(), &domain.InboundMessage{
		ChatID: adminID, UserID: adminID,
		Attachments: []domain.Attachment{{Kind: domain.AttachmentPhoto, FileID: "f"}},
	})

	assert.Equal(t, 0, f.ran("!ping"))
	assert.Empty(t, f.replier.sent())
	assert.Zero(t, f.chatLog.Len())
	assert.Len(t, f.quota.recorded(), 1)
}

func TestDispatcher_EnsuresUserOnFirstMessage(t *testing.T) {
	f := newDispatcherFixture(t, 10, 20)

	f.d.HandleMessage(context.Background(), userMsg("hello"))

	limit, ok, err := f.quota.GetCap(context.Background(), userID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 20, limit)
}
