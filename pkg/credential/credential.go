// Package credential persists the tokens produced by completed OAuth flows
package credential

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethanbaker/agentlink/pkg/provider"
)

// DefaultAgentName is used when an agent is created without a name
const DefaultAgentName = "AI assistant"

var (
	// ErrNotFound is returned by stores when a record does not exist
	ErrNotFound = errors.New("credential not found")

	// ErrNotInstalled means no usable bot exists for a workspace
	ErrNotInstalled = errors.New("app is not installed for this workspace")
)

// RefreshError marks a credential that could not be refreshed and is unusable
// until the user authorizes again
type RefreshError struct {
	AgentID string
	Err     error
}

func (e *RefreshError) Error() string {
	return fmt.Sprintf("failed to refresh credential %s: %v", e.AgentID, e.Err)
}

func (e *RefreshError) Unwrap() error {
	return e.Err
}

// AgentCredential binds one user to one provider account
type AgentCredential struct {
	ID           string
	UserID       string
	Name         string
	Provider     provider.ID
	AccessToken  string
	RefreshToken string
	TokenURI     string
	IDToken      string
	Scopes       []string
	ExpiresAt    *time.Time
	Data         map[string]any
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Expired reports whether the access token expires within skew of now.
// Tokens without an expiry never expire
func (a *AgentCredential) Expired(now time.Time, skew time.Duration) bool {
	return a.ExpiresAt != nil && !a.ExpiresAt.After(now.Add(skew))
}

// BotCredential is a chat-app installation in one workspace
type BotCredential struct {
	ID      string
	AgentID string

	AppID          string
	UserID         string
	TeamID         string
	TeamName       string
	EnterpriseID   string
	EnterpriseName string
	EnterpriseURL  string

	AccessToken          string
	BotID                string
	BotUserID            string
	BotScopes            []string
	BotRefreshToken      string
	AccessTokenExpiresAt *time.Time

	UserToken          string
	UserScopes         []string
	UserRefreshToken   string
	UserTokenExpiresAt *time.Time

	IncomingWebhookURL              string
	IncomingWebhookChannel          string
	IncomingWebhookChannelID        string
	IncomingWebhookConfigurationURL string

	IsEnterpriseInstall bool
	TokenType           string
	InstalledAt         time.Time
	UpdatedAt           time.Time
}

// Store is implemented by the gorm and in-memory credential stores
type Store interface {
	CreateAgent(ctx context.Context, agent *AgentCredential) error
	GetAgent(ctx context.Context, id string) (*AgentCredential, error)
	UpdateAgentTokens(ctx context.Context, id, accessToken, refreshToken string, expiresAt *time.Time) error
	ListAgentsExpiringBefore(ctx context.Context, before time.Time) ([]*AgentCredential, error)

	// UpsertBot inserts or refreshes the row for the bot's composite
	// installation key and returns the stored row
	UpsertBot(ctx context.Context, bot *BotCredential) (*BotCredential, error)

	// FindBots returns the bots of a workspace, most recently installed first
	FindBots(ctx context.Context, teamID, enterpriseID string) ([]*BotCredential, error)

	// FindEnterpriseBots returns the org-wide installs of an enterprise, most recently installed first
	FindEnterpriseBots(ctx context.Context, enterpriseID string) ([]*BotCredential, error)
}
