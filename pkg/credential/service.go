package credential

import (
	"context"
	"errors"
	"fmt"
	"log"
	"maps"
	"slices"
	"time"

	"github.com/ethanbaker/agentlink/pkg/provider"
	"github.com/google/uuid"
)

// RefreshSkew treats tokens that expire this soon as already expired
const RefreshSkew = 60 * time.Second

// Refresher performs refresh-token grants. *provider.Registry implements it
type Refresher interface {
	Refresh(ctx context.Context, id provider.ID, refreshToken string) (*provider.RefreshedToken, error)
}

// Service is the credential store used by the flow coordinator and dispatcher
type Service struct {
	store     Store
	refresher Refresher
	now       func() time.Time
}

// NewService creates a credential service
func NewService(store Store, refresher Refresher) *Service {
	return &Service{store: store, refresher: refresher, now: time.Now}
}

// WithClock replaces the service's clock
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// SaveAgentCredential inserts a new agent for userID. Each completed flow creates its own row
func (s *Service) SaveAgentCredential(ctx context.Context, userID string, providerID provider.ID, token *provider.ExchangedToken) (*AgentCredential, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id cannot be empty")
	}
	if token == nil || token.AccessToken == "" {
		return nil, fmt.Errorf("access token cannot be empty")
	}

	now := s.now().UTC()
	agent := &AgentCredential{
		ID:           uuid.NewString(),
		UserID:       userID,
		Name:         DefaultAgentName,
		Provider:     providerID,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenURI:     token.TokenURI,
		IDToken:      token.IDToken,
		Scopes:       slices.Clone(token.Scopes),
		Data:         maps.Clone(token.Data),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if !token.Expiry.IsZero() {
		expiry := token.Expiry.UTC()
		agent.ExpiresAt = &expiry
	}
	if agent.Data == nil {
		agent.Data = map[string]any{}
	}

	if err := s.store.CreateAgent(ctx, agent); err != nil {
		return nil, fmt.Errorf("failed to save agent credential: %w", err)
	}
	return agent, nil
}

// UpsertBotCredential stores the installation in token for agent. Reinstalling
// into the same workspace refreshes the existing row
func (s *Service) UpsertBotCredential(ctx context.Context, agent *AgentCredential, token *provider.ExchangedToken) (*BotCredential, error) {
	if agent == nil || agent.ID == "" {
		return nil, fmt.Errorf("bot must be linked to an agent")
	}
	if token == nil || token.Installation == nil {
		return nil, fmt.Errorf("exchange did not produce an installation")
	}

	install := token.Installation
	now := s.now().UTC()
	bot := &BotCredential{
		ID:                   uuid.NewString(),
		AgentID:              agent.ID,
		AppID:                install.AppID,
		UserID:               install.UserID,
		TeamID:               install.TeamID,
		TeamName:             install.TeamName,
		EnterpriseID:         install.EnterpriseID,
		EnterpriseName:       install.EnterpriseName,
		EnterpriseURL:        install.EnterpriseURL,
		AccessToken:          token.AccessToken,
		BotID:                install.BotID,
		BotUserID:            install.BotUserID,
		BotScopes:            slices.Clone(install.BotScopes),
		BotRefreshToken:      install.BotRefreshToken,
		AccessTokenExpiresAt: install.BotTokenExpiresAt,
		UserToken:            install.UserToken,
		UserScopes:           slices.Clone(install.UserScopes),
		UserRefreshToken:     install.UserRefreshToken,
		UserTokenExpiresAt:   install.UserTokenExpiresAt,
		IsEnterpriseInstall:  install.IsEnterpriseInstall,
		TokenType:            install.TokenType,
		InstalledAt:          now,
		UpdatedAt:            now,
	}
	if hook := install.IncomingWebhook; hook != nil {
		bot.IncomingWebhookURL = hook.URL
		bot.IncomingWebhookChannel = hook.Channel
		bot.IncomingWebhookChannelID = hook.ChannelID
		bot.IncomingWebhookConfigurationURL = hook.ConfigurationURL
	}

	stored, err := s.store.UpsertBot(ctx, bot)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert bot credential: %w", err)
	}
	return stored, nil
}

// FindBotByWorkspace resolves the bot for an inbound event. A bot installed
// by userID wins over other installs in the same workspace. Workspaces
// without their own install fall back to an org-wide enterprise install
func (s *Service) FindBotByWorkspace(ctx context.Context, teamID, enterpriseID, userID string) (*BotCredential, error) {
	bots, err := s.store.FindBots(ctx, teamID, enterpriseID)
	if err != nil {
		return nil, fmt.Errorf("failed to find bot: %w", err)
	}
	if found := pickBot(bots, userID); found != nil {
		return found, nil
	}

	if enterpriseID == "" {
		return nil, ErrNotInstalled
	}

	bots, err = s.store.FindEnterpriseBots(ctx, enterpriseID)
	if err != nil {
		return nil, fmt.Errorf("failed to find enterprise bot: %w", err)
	}
	if found := pickBot(bots, userID); found != nil {
		return found, nil
	}
	return nil, ErrNotInstalled
}

// pickBot prefers the installer's bot, then the newest. Bots without a token are skipped
func pickBot(bots []*BotCredential, userID string) *BotCredential {
	var found *BotCredential
	for _, bot := range bots {
		if bot.AccessToken == "" {
			continue
		}
		if userID != "" && bot.UserID == userID {
			return bot
		}
		if found == nil {
			found = bot
		}
	}
	return found
}

// GetAgent returns the agent with id
func (s *Service) GetAgent(ctx context.Context, id string) (*AgentCredential, error) {
	agent, err := s.store.GetAgent(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get agent %s: %w", id, err)
	}
	return agent, nil
}

// RefreshIfExpired returns agent unchanged while its token is valid, and
// otherwise refreshes and persists new tokens
func (s *Service) RefreshIfExpired(ctx context.Context, agent *AgentCredential) (*AgentCredential, error) {
	if !agent.Expired(s.now(), RefreshSkew) {
		return agent, nil
	}
	return s.refresh(ctx, agent)
}

func (s *Service) refresh(ctx context.Context, agent *AgentCredential) (*AgentCredential, error) {
	if agent.RefreshToken == "" {
		return nil, &RefreshError{AgentID: agent.ID, Err: errors.New("no refresh token stored")}
	}

	refreshed, err := s.refresher.Refresh(ctx, agent.Provider, agent.RefreshToken)
	if err != nil {
		return nil, &RefreshError{AgentID: agent.ID, Err: err}
	}

	var expiresAt *time.Time
	if !refreshed.Expiry.IsZero() {
		expiry := refreshed.Expiry.UTC()
		expiresAt = &expiry
	}
	refreshToken := refreshed.RefreshToken
	if refreshToken == "" {
		refreshToken = agent.RefreshToken
	}

	if err := s.store.UpdateAgentTokens(ctx, agent.ID, refreshed.AccessToken, refreshToken, expiresAt); err != nil {
		return nil, &RefreshError{AgentID: agent.ID, Err: err}
	}

	updated := *agent
	updated.AccessToken = refreshed.AccessToken
	updated.RefreshToken = refreshToken
	updated.ExpiresAt = expiresAt
	updated.UpdatedAt = s.now().UTC()

	log.Printf("[CREDENTIAL]: Refreshed %s credential %s\n", agent.Provider, agent.ID)
	return &updated, nil
}

// RefreshExpiring refreshes every agent whose token expires within window.
// It returns the number refreshed and the joined refresh failures
func (s *Service) RefreshExpiring(ctx context.Context, window time.Duration) (int, error) {
	agents, err := s.store.ListAgentsExpiringBefore(ctx, s.now().Add(window))
	if err != nil {
		return 0, fmt.Errorf("failed to list expiring credentials: %w", err)
	}

	var errs []error
	refreshed := 0
	for _, agent := range agents {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if agent.RefreshToken == "" {
			continue
		}

		if _, err := s.refresh(ctx, agent); err != nil {
			errs = append(errs, err)
			continue
		}
		refreshed++
	}

	return refreshed, errors.Join(errs...)
}
