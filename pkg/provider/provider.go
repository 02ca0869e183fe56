// Package provider holds the static registry of OAuth providers and one
// exchange strategy per provider family
package provider

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ID identifies a thirdparty provider
type ID string

const (
	Gmail          ID = "gmail"
	GoogleCalendar ID = "google-calendar"
	GoogleDocument ID = "google-document"
	GoogleDrive    ID = "google-drive"
	GoogleSheet    ID = "google-sheet"
	GoogleForm     ID = "google-form"
	Slack          ID = "slack"
	Salesforce     ID = "salesforce"
)

// Family groups providers that share authorize/exchange semantics
type Family string

const (
	FamilyGoogle     Family = "google"
	FamilySlack      Family = "slack"
	FamilySalesforce Family = "salesforce"
)

var (
	// ErrUnknownProvider is returned for ids missing from the registry or disabled
	ErrUnknownProvider = errors.New("unknown provider")

	// ErrMissingClientCredentials is returned when a family has no client id or secret configured
	ErrMissingClientCredentials = errors.New("missing oauth client credentials")
)

// ExchangeError is an upstream failure while talking to a provider's token endpoint
type ExchangeError struct {
	Provider ID
	Detail   string // provider supplied error string, if any
	Err      error
}

func (e *ExchangeError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s exchange failed: %s", e.Provider, e.Detail)
	}
	return fmt.Sprintf("%s exchange failed: %v", e.Provider, e.Err)
}

func (e *ExchangeError) Unwrap() error {
	return e.Err
}

// Config is a registry entry. It is never mutated after the registry is built
type Config struct {
	ID         ID       `json:"id" yaml:"id"`
	Name       string   `json:"name" yaml:"name"`
	Family     Family   `json:"family" yaml:"family"`
	AuthURL    string   `json:"auth_url" yaml:"auth_url"`
	TokenURL   string   `json:"token_url" yaml:"token_url"`
	Scopes     []string `json:"scopes" yaml:"scopes"`
	UserScopes []string `json:"user_scopes,omitempty" yaml:"user_scopes"`
	IsChatApp  bool     `json:"is_chat_app" yaml:"is_chat_app"`
	IsActive   bool     `json:"is_active" yaml:"is_active"`
}

// ClientCredentials are the OAuth client id/secret registered with a provider
type ClientCredentials struct {
	ClientID     string
	ClientSecret string
}

func (c ClientCredentials) complete() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

// IncomingWebhook is the webhook descriptor Slack returns when the
// incoming-webhook scope was granted
type IncomingWebhook struct {
	URL              string
	Channel          string
	ChannelID        string
	ConfigurationURL string
}

// Installation is the workspace level payload of a chat-app exchange
type Installation struct {
	AppID               string
	TeamID              string
	TeamName            string
	EnterpriseID        string
	EnterpriseName      string
	EnterpriseURL       string
	IsEnterpriseInstall bool

	BotID             string
	BotUserID         string
	BotScopes         []string
	BotRefreshToken   string
	BotTokenExpiresAt *time.Time
	TokenType         string

	UserID             string
	UserToken          string
	UserScopes         []string
	UserRefreshToken   string
	UserTokenExpiresAt *time.Time

	IncomingWebhook *IncomingWebhook
}

// ExchangedToken is the result of a code exchange. Installation is only set
// for chat-app providers
type ExchangedToken struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	TokenURI     string
	IDToken      string
	Expiry       time.Time
	Scopes       []string
	Data         map[string]any

	Installation *Installation
}

// RefreshedToken is the result of a refresh-token grant
type RefreshedToken struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
}

// Strategy implements the authorize / exchange / refresh steps of one provider family
type Strategy interface {
	AuthorizeURL(cfg Config, state, loginHint string) (string, error)
	Exchange(ctx context.Context, cfg Config, code string) (*ExchangedToken, error)
	Refresh(ctx context.Context, cfg Config, refreshToken string) (*RefreshedToken, error)
}
