package credential

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/ethanbaker/agentlink/pkg/credential"
)

type botKey struct {
	appID, userID, teamID, botID, botUserID string
}

func keyOf(bot *credential.BotCredential) botKey {
	return botKey{bot.AppID, bot.UserID, bot.TeamID, bot.BotID, bot.BotUserID}
}

// InMemoryStore provides an in-memory implementation of credential.Store for
// tests and deployments without a database
type InMemoryStore struct {
	agents map[string]*credential.AgentCredential
	bots   map[botKey]*credential.BotCredential
	mutex  sync.RWMutex
}

// NewInMemoryStore creates a new in-memory credential store
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		agents: make(map[string]*credential.AgentCredential),
		bots:   make(map[botKey]*credential.BotCredential),
	}
}

func copyAgent(agent *credential.AgentCredential) *credential.AgentCredential {
	c := *agent
	c.Scopes = slices.Clone(agent.Scopes)
	c.Data = maps.Clone(agent.Data)
	return &c
}

func copyBot(bot *credential.BotCredential) *credential.BotCredential {
	c := *bot
	c.BotScopes = slices.Clone(bot.BotScopes)
	c.UserScopes = slices.Clone(bot.UserScopes)
	return &c
}

// CreateAgent stores a copy of agent
func (s *InMemoryStore) CreateAgent(_ context.Context, agent *credential.AgentCredential) error {
	if agent.ID == "" {
		return fmt.Errorf("id cannot be empty")
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.agents[agent.ID]; exists {
		return fmt.Errorf("agent with id '%s' already exists", agent.ID)
	}
	s.agents[agent.ID] = copyAgent(agent)
	return nil
}

// GetAgent returns a copy of the agent with id
func (s *InMemoryStore) GetAgent(_ context.Context, id string) (*credential.AgentCredential, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	agent, exists := s.agents[id]
	if !exists {
		return nil, credential.ErrNotFound
	}
	return copyAgent(agent), nil
}

// UpdateAgentTokens replaces the token fields of an agent
func (s *InMemoryStore) UpdateAgentTokens(_ context.Context, id, accessToken, refreshToken string, expiresAt *time.Time) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	agent, exists := s.agents[id]
	if !exists {
		return credential.ErrNotFound
	}
	agent.AccessToken = accessToken
	agent.RefreshToken = refreshToken
	agent.ExpiresAt = expiresAt
	agent.UpdatedAt = time.Now().UTC()
	return nil
}

// ListAgentsExpiringBefore returns agents with an expiry at or before the cutoff
func (s *InMemoryStore) ListAgentsExpiringBefore(_ context.Context, before time.Time) ([]*credential.AgentCredential, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var agents []*credential.AgentCredential
	for _, agent := range s.agents {
		if agent.ExpiresAt != nil && !agent.ExpiresAt.After(before) {
			agents = append(agents, copyAgent(agent))
		}
	}
	slices.SortFunc(agents, func(a, b *credential.AgentCredential) int {
		return a.ExpiresAt.Compare(*b.ExpiresAt)
	})
	return agents, nil
}

// UpsertBot inserts bot or refreshes the existing row with the same key
func (s *InMemoryStore) UpsertBot(_ context.Context, bot *credential.BotCredential) (*credential.BotCredential, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	key := keyOf(bot)
	existing, exists := s.bots[key]
	if !exists {
		s.bots[key] = copyBot(bot)
		return copyBot(bot), nil
	}

	updated := copyBot(bot)
	updated.ID = existing.ID
	updated.InstalledAt = existing.InstalledAt
	updated.EnterpriseID = existing.EnterpriseID
	s.bots[key] = updated
	return copyBot(updated), nil
}

// FindBots returns the workspace's installations, newest first
func (s *InMemoryStore) FindBots(_ context.Context, teamID, enterpriseID string) ([]*credential.BotCredential, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var bots []*credential.BotCredential
	for _, bot := range s.bots {
		if bot.TeamID == teamID && bot.EnterpriseID == enterpriseID {
			bots = append(bots, copyBot(bot))
		}
	}
	slices.SortFunc(bots, func(a, b *credential.BotCredential) int {
		return b.InstalledAt.Compare(a.InstalledAt)
	})
	return bots, nil
}

// FindEnterpriseBots returns the org-wide installs of an enterprise, newest first
func (s *InMemoryStore) FindEnterpriseBots(_ context.Context, enterpriseID string) ([]*credential.BotCredential, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var bots []*credential.BotCredential
	for _, bot := range s.bots {
		if bot.IsEnterpriseInstall && bot.EnterpriseID == enterpriseID {
			bots = append(bots, copyBot(bot))
		}
	}
	slices.SortFunc(bots, func(a, b *credential.BotCredential) int {
		return b.InstalledAt.Compare(a.InstalledAt)
	})
	return bots, nil
}

// Ping always succeeds
func (s *InMemoryStore) Ping(context.Context) error {
	return nil
}
