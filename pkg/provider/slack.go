package provider

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/slack-go/slack"
)

const slackAuthorizeURL = "https://slack.com/oauth/v2/authorize"

// SlackStrategy handles the Slack app install flow
type SlackStrategy struct {
	creds       ClientCredentials
	redirectURI string
	client      *http.Client
	now         func() time.Time
}

// NewSlackStrategy creates the slack family strategy
func NewSlackStrategy(creds ClientCredentials, redirectURI string, client *http.Client) *SlackStrategy {
	return &SlackStrategy{creds: creds, redirectURI: redirectURI, client: client, now: time.Now}
}

func (s *SlackStrategy) AuthorizeURL(cfg Config, state, _ string) (string, error) {
	if !s.creds.complete() {
		return "", ErrMissingClientCredentials
	}

	base := cfg.AuthURL
	if base == "" {
		base = slackAuthorizeURL
	}

	query := url.Values{}
	query.Set("client_id", s.creds.ClientID)
	query.Set("scope", strings.Join(cfg.Scopes, ","))
	if len(cfg.UserScopes) > 0 {
		query.Set("user_scope", strings.Join(cfg.UserScopes, ","))
	}
	query.Set("redirect_uri", s.redirectURI)
	query.Set("state", state)

	return base + "?" + query.Encode(), nil
}

func (s *SlackStrategy) Exchange(ctx context.Context, cfg Config, code string) (*ExchangedToken, error) {
	if !s.creds.complete() {
		return nil, ErrMissingClientCredentials
	}

	resp, err := slack.GetOAuthV2ResponseContext(ctx, s.client, s.creds.ClientID, s.creds.ClientSecret, code, s.redirectURI)
	if err != nil {
		return nil, &ExchangeError{Provider: cfg.ID, Detail: err.Error(), Err: err}
	}

	now := s.now()
	install := &Installation{
		AppID:               resp.AppID,
		TeamID:              resp.Team.ID,
		TeamName:            resp.Team.Name,
		EnterpriseID:        resp.Enterprise.ID,
		EnterpriseName:      resp.Enterprise.Name,
		IsEnterpriseInstall: resp.IsEnterpriseInstall,
		BotUserID:           resp.BotUserID,
		BotScopes:           splitScopes(resp.Scope),
		BotRefreshToken:     resp.RefreshToken,
		BotTokenExpiresAt:   expiryFromSeconds(now, resp.ExpiresIn),
		TokenType:           resp.TokenType,
		UserID:              resp.AuthedUser.ID,
		UserToken:           resp.AuthedUser.AccessToken,
		UserScopes:          splitScopes(resp.AuthedUser.Scope),
		UserRefreshToken:    resp.AuthedUser.RefreshToken,
		UserTokenExpiresAt:  expiryFromSeconds(now, resp.AuthedUser.ExpiresIn),
	}
	if resp.IncomingWebhook.URL != "" {
		install.IncomingWebhook = &IncomingWebhook{
			URL:              resp.IncomingWebhook.URL,
			Channel:          resp.IncomingWebhook.Channel,
			ChannelID:        resp.IncomingWebhook.ChannelID,
			ConfigurationURL: resp.IncomingWebhook.ConfigurationURL,
		}
	}

	// oauth.v2.access does not return the bot id, auth.test with the new token does
	identity, err := slack.New(resp.AccessToken, slack.OptionHTTPClient(s.client)).AuthTestContext(ctx)
	if err != nil {
		return nil, &ExchangeError{Provider: cfg.ID, Detail: err.Error(), Err: err}
	}
	install.BotID = identity.BotID
	if install.BotUserID == "" {
		install.BotUserID = identity.UserID
	}
	if install.IsEnterpriseInstall {
		install.EnterpriseURL = identity.URL
	}

	exchanged := &ExchangedToken{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		TokenType:    resp.TokenType,
		TokenURI:     cfg.TokenURL,
		Scopes:       install.BotScopes,
		Data:         map[string]any{"team_id": install.TeamID},
		Installation: install,
	}
	if install.BotTokenExpiresAt != nil {
		exchanged.Expiry = *install.BotTokenExpiresAt
	}

	return exchanged, nil
}

// Refresh rotates a bot token when token rotation is enabled on the app
func (s *SlackStrategy) Refresh(ctx context.Context, cfg Config, refreshToken string) (*RefreshedToken, error) {
	if !s.creds.complete() {
		return nil, ErrMissingClientCredentials
	}

	resp, err := slack.RefreshOAuthV2TokenContext(ctx, s.client, s.creds.ClientID, s.creds.ClientSecret, refreshToken)
	if err != nil {
		return nil, &ExchangeError{Provider: cfg.ID, Detail: err.Error(), Err: err}
	}

	refreshed := &RefreshedToken{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
	}
	if expiry := expiryFromSeconds(s.now(), resp.ExpiresIn); expiry != nil {
		refreshed.Expiry = *expiry
	}
	if refreshed.RefreshToken == "" {
		refreshed.RefreshToken = refreshToken
	}
	return refreshed, nil
}
