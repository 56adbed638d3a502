package mcp

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/goldchat/matiebot/internal/biz/domain"
	"github.com/goldchat/matiebot/internal/biz/repo"
)

const defaultTopLimit = 10

// AdminServer exposes quota administration as MCP tools over stdio
type AdminServer struct {
	server *mcp.Server
	quota  repo.QuotaRepo
	logger *zap.Logger
}

// NewAdminServer creates the server and registers its tools
func NewAdminServer(quota repo.QuotaRepo, version string, logger *zap.Logger) *AdminServer {
	s := &AdminServer{
		server: mcp.NewServer(&mcp.Implementation{
			Name:    "matiebot-admin",
			Version: version,
		}, nil),
		quota:  quota,
		logger: logger.Named("mcp"),
	}
	s.registerTools()
	return s
}

// Server returns the underlying MCP server
func (s *AdminServer) Server() *mcp.Server {
	return s.server
}

// Run serves requests on stdin/stdout until the client disconnects or ctx ends
func (s *AdminServer) Run(ctx context.Context) error {
	s.logger.Info("serving admin tools on stdio")
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

func (s *AdminServer) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "quota_limits",
		Description: "Show how many drawing requests a user made in the last 24 hours and all time, and their cap.",
	}, s.handleLimits)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "quota_top_users",
		Description: "Rank users by number of recorded messages. Optionally filter by kind (drawing, vision, audio, text) and restrict to the last N hours.",
	}, s.handleTopUsers)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "set_user_cap",
		Description: "Set the daily drawing cap for one user, or for every user when username is omitted.",
	}, s.handleSetCap)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "bot_user_count",
		Description: "Count the users the bot has seen.",
	}, s.handleUserCount)
}

// LimitsInput selects the user to report on
type LimitsInput struct {
	Username string `json:"username" jsonschema:"Telegram or Feishu username, with or without a leading @"`
}

// LimitsOutput is a user's drawing consumption
type LimitsOutput struct {
	Username string `json:"username,omitempty"`
	Last24h  int    `json:"last_24h"`
	AllTime  int    `json:"all_time"`
	Cap      int    `json:"cap"`
	Error    string `json:"error,omitempty"`
}

func (s *AdminServer) handleLimits(ctx context.Context, req *mcp.CallToolRequest, input LimitsInput) (*mcp.CallToolResult, LimitsOutput, error) {
	username := strings.TrimSpace(input.Username)
	if username == "" {
		return nil, LimitsOutput{Error: "username is required"}, nil
	}

	l, err := s.quota.Limits(ctx, username, domain.KindDrawing, domain.QuotaWindow)
	if errors.Is(err, repo.ErrUserNotFound) {
		return nil, LimitsOutput{Error: "user not found"}, nil
	}
	if err != nil {
		return nil, LimitsOutput{}, err
	}

	return nil, LimitsOutput{
		Username: l.Username,
		Last24h:  l.Last24h,
		AllTime:  l.AllTime,
		Cap:      l.Cap,
	}, nil
}

// TopUsersInput filters the leaderboard
type TopUsersInput struct {
	Kind        string `json:"kind,omitempty" jsonschema:"Event kind to count: drawing, vision, audio or text. Empty counts every message"`
	WindowHours int    `json:"window_hours,omitempty" jsonschema:"Only count the last N hours. 0 counts all time"`
	Limit       int    `json:"limit,omitempty" jsonschema:"Maximum number of users to return (default 10)"`
}

// UserCount is one leaderboard row
type UserCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// TopUsersOutput is the leaderboard
type TopUsersOutput struct {
	Users []UserCount `json:"users"`
	Error string      `json:"error,omitempty"`
}

func (s *AdminServer) handleTopUsers(ctx context.Context, req *mcp.CallToolRequest, input TopUsersInput) (*mcp.CallToolResult, TopUsersOutput, error) {
	kind, ok := parseKind(input.Kind)
	if !ok {
		return nil, TopUsersOutput{Users: []UserCount{}, Error: "unknown kind: " + input.Kind}, nil
	}
	if input.WindowHours < 0 {
		return nil, TopUsersOutput{Users: []UserCount{}, Error: "window_hours must not be negative"}, nil
	}

	limit := input.Limit
	if limit <= 0 {
		limit = defaultTopLimit
	}

	top, err := s.quota.TopUsers(ctx, kind, time.Duration(input.WindowHours)*time.Hour, limit)
	if err != nil {
		return nil, TopUsersOutput{}, err
	}

	users := make([]UserCount, 0, len(top))
	for _, u := range top {
		users = append(users, UserCount{Name: u.Name, Count: u.Count})
	}
	return nil, TopUsersOutput{Users: users}, nil
}

// SetCapInput names the user and the new cap
type SetCapInput struct {
	Username string `json:"username,omitempty" jsonschema:"User to change. Omit to change every user"`
	Cap      int    `json:"cap" jsonschema:"New daily drawing cap"`
}

// SetCapOutput reports whether any user was updated
type SetCapOutput struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

func (s *AdminServer) handleSetCap(ctx context.Context, req *mcp.CallToolRequest, input SetCapInput) (*mcp.CallToolResult, SetCapOutput, error) {
	if input.Cap < 0 {
		return nil, SetCapOutput{Error: "cap must not be negative"}, nil
	}

	var (
		updated bool
		err     error
	)
	if username := strings.TrimSpace(input.Username); username != "" {
		updated, err = s.quota.SetCap(ctx, username, input.Cap)
	} else {
		updated, err = s.quota.SetCapAll(ctx, input.Cap)
	}
	if err != nil {
		return nil, SetCapOutput{}, err
	}
	if !updated {
		return nil, SetCapOutput{Error: "user not found"}, nil
	}

	s.logger.Info("cap changed via mcp", zap.String("username", input.Username), zap.Int("cap", input.Cap))
	return nil, SetCapOutput{Success: true}, nil
}

// UserCountInput is empty - no input needed
type UserCountInput struct{}

// UserCountOutput is the number of known users
type UserCountOutput struct {
	Count int `json:"count"`
}

func (s *AdminServer) handleUserCount(ctx context.Context, req *mcp.CallToolRequest, input UserCountInput) (*mcp.CallToolResult, UserCountOutput, error) {
	n, err := s.quota.UserCount(ctx)
	if err != nil {
		return nil, UserCountOutput{}, err
	}
	return nil, UserCountOutput{Count: n}, nil
}

func parseKind(name string) (domain.EventKind, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "all":
		return domain.KindNone, true
	case "drawing":
		return domain.KindDrawing, true
	case "vision":
		return domain.KindVision, true
	case "audio":
		return domain.KindAudio, true
	case "text":
		return domain.KindText, true
	default:
		return domain.KindNone, false
	}
}
