package data

import (
	"github.com/goldchat/matiebot/internal/biz/repo"
	"github.com/goldchat/matiebot/internal/infra/openai"
)

// Repositories contains all repositories
type Repositories struct {
	Quota   repo.QuotaRepo
	Backend repo.BackendRepo
	Replier repo.Replier // Set once the transport is known
}

// NewRepositories opens the quota store and wraps the backend client
func NewRepositories(openaiClient *openai.Client, dbPath string, defaultCap int) (*Repositories, error) {
	quotaRepo, err := NewQuotaRepo(dbPath, defaultCap)
	if err != nil {
		return nil, err
	}

	return &Repositories{
		Quota:   quotaRepo,
		Backend: NewBackendRepo(openaiClient),
	}, nil
}

// Close releases the underlying stores
func (r *Repositories) Close() error {
	return r.Quota.Close()
}
