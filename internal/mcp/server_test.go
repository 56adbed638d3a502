package mcp

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/goldchat/matiebot/internal/biz/domain"
	"github.com/goldchat/matiebot/internal/biz/repo"
	"github.com/goldchat/matiebot/internal/data"
)

func newSession(t *testing.T) (*mcp.ClientSession, repo.QuotaRepo) {
	t.Helper()

	quota, err := data.NewQuotaRepo(filepath.Join(t.TempDir(), "quota.db"), 20)
	require.NoError(t, err)
	t.Cleanup(func() { quota.Close() })

	ctx := context.Background()
	srv := NewAdminServer(quota, "test", zap.NewNop())
	serverTransport, clientTransport := mcp.NewInMemoryTransports()

	ss, err := srv.Server().Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ss.Close() })

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0"}, nil)
	cs, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { cs.Close() })

	return cs, quota
}

func callTool[Out any](t *testing.T, cs *mcp.ClientSession, name string, args map[string]any) Out {
	t.Helper()

	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	require.NoError(t, err)
	require.False(t, res.IsError, "tool %s returned an error result", name)

	raw, err := json.Marshal(res.StructuredContent)
	require.NoError(t, err)
	var out Out
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func seed(t *testing.T, quota repo.QuotaRepo) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, quota.EnsureUserExists(ctx, domain.User{UserID: "1", Username: "alice"}))
	require.NoError(t, quota.EnsureUserExists(ctx, domain.User{UserID: "2", Username: "bob"}))
	for i := 0; i < 3; i++ {
		require.NoError(t, quota.RecordEvent(ctx, &domain.QuotaEvent{UserID: "1", ChatID: "-100", Kind: domain.KindDrawing}))
	}
	require.NoError(t, quota.RecordEvent(ctx, &domain.QuotaEvent{UserID: "2", ChatID: "-100", Kind: domain.KindText}))
	require.NoError(t, quota.RecordEvent(ctx, &domain.QuotaEvent{UserID: "2", ChatID: "-100", Kind: domain.KindNone}))
}

func TestAdminServer_ListsTools(t *testing.T) {
	cs, _ := newSession(t)

	res, err := cs.ListTools(context.Background(), nil)
	require.NoError(t, err)

	var names []string
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{"quota_limits", "quota_top_users", "set_user_cap", "bot_user_count"}, names)
}

func TestAdminServer_Limits(t *testing.T) {
	cs, quota := newSession(t)
	seed(t, quota)

	out := callTool[LimitsOutput](t, cs, "quota_limits", map[string]any{"username": "@alice"})
	assert.Empty(t, out.Error)
	assert.Equal(t, 3, out.Last24h)
	assert.Equal(t, 3, out.AllTime)
	assert.Equal(t, 20, out.Cap)

	missing := callTool[LimitsOutput](t, cs, "quota_limits", map[string]any{"username": "carol"})
	assert.Equal(t, "user not found", missing.Error)

	empty := callTool[LimitsOutput](t, cs, "quota_limits", map[string]any{"username": " "})
	assert.Equal(t, "username is required", empty.Error)
}

func TestAdminServer_TopUsers(t *testing.T) {
	cs, quota := newSession(t)
	seed(t, quota)

	all := callTool[TopUsersOutput](t, cs, "quota_top_users", map[string]any{})
	assert.Equal(t, []UserCount{{Name: "alice", Count: 3}, {Name: "bob", Count: 2}}, all.Users)

	drawing := callTool[TopUsersOutput](t, cs, "quota_top_users", map[string]any{"kind": "drawing", "window_hours": 24})
	assert.Equal(t, []UserCount{{Name: "alice", Count: 3}}, drawing.Users)

	limited := callTool[TopUsersOutput](t, cs, "quota_top_users", map[string]any{"limit": 1})
	assert.Len(t, limited.Users, 1)

	bad := callTool[TopUsersOutput](t, cs, "quota_top_users", map[string]any{"kind": "video"})
	assert.Equal(t, "unknown kind: video", bad.Error)
}

func TestAdminServer_SetCap(t *testing.T) {
	cs, quota := newSession(t)
	seed(t, quota)
	ctx := context.Background()

	out := callTool[SetCapOutput](t, cs, "set_user_cap", map[string]any{"username": "alice", "cap": 5})
	assert.True(t, out.Success)
	capValue, ok, err := quota.GetCap(ctx, "1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 5, capValue)

	out = callTool[SetCapOutput](t, cs, "set_user_cap", map[string]any{"cap": 7})
	assert.True(t, out.Success)
	capValue, _, err = quota.GetCap(ctx, "2")
	require.NoError(t, err)
	assert.Equal(t, 7, capValue)

	missing := callTool[SetCapOutput](t, cs, "set_user_cap", map[string]any{"username": "carol", "cap": 1})
	assert.False(t, missing.Success)
	assert.Equal(t, "user not found", missing.Error)

	negative := callTool[SetCapOutput](t, cs, "set_user_cap", map[string]any{"username": "alice", "cap": -1})
	assert.Equal(t, "cap must not be negative", negative.Error)
}

func TestAdminServer_UserCount(t *testing.T) {
	cs, quota := newSession(t)
	seed(t, quota)

	out := callTool[UserCountOutput](t, cs, "bot_user_count", map[string]any{})
	assert.Equal(t, 2, out.Count)
}

func TestParseKind(t *testing.T) {
	kind, ok := parseKind(" Vision ")
	assert.True(t, ok)
	assert.Equal(t, domain.KindVision, kind)

	kind, ok = parseKind("")
	assert.True(t, ok)
	assert.Equal(t, domain.KindNone, kind)

	_, ok = parseKind("video")
	assert.False(t, ok)
}
