package provider

import (
	"context"
	"net/http"

	"golang.org/x/oauth2"
)

// SalesforceStrategy handles the Salesforce connected-app flow
type SalesforceStrategy struct {
	flow codeFlow
}

// NewSalesforceStrategy creates the salesforce family strategy
func NewSalesforceStrategy(creds ClientCredentials, redirectURI string, client *http.Client) *SalesforceStrategy {
	return &SalesforceStrategy{flow: codeFlow{creds: creds, redirectURI: redirectURI, client: client}}
}

func (s *SalesforceStrategy) AuthorizeURL(cfg Config, state, loginHint string) (string, error) {
	conf, err := s.flow.config(cfg)
	if err != nil {
		return "", err
	}

	var opts []oauth2.AuthCodeOption
	if loginHint != "" {
		opts = append(opts, oauth2.SetAuthURLParam("login_hint", loginHint))
	}
	return conf.AuthCodeURL(state, opts...), nil
}

func (s *SalesforceStrategy) Exchange(ctx context.Context, cfg Config, code string) (*ExchangedToken, error) {
	token, err := s.flow.exchange(ctx, cfg, code)
	if err != nil {
		return nil, err
	}

	scopes := splitScopes(extraString(token, "scope"))
	if len(scopes) == 0 {
		scopes = cfg.Scopes
	}

	data := map[string]any{}
	for _, key := range []string{"instance_url", "id", "issued_at"} {
		if value := extraString(token, key); value != "" {
			data[key] = value
		}
	}

	return &ExchangedToken{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenType:    token.TokenType,
		TokenURI:     cfg.TokenURL,
		IDToken:      extraString(token, "id_token"),
		Expiry:       token.Expiry,
		Scopes:       scopes,
		Data:         data,
	}, nil
}

func (s *SalesforceStrategy) Refresh(ctx context.Context, cfg Config, refreshToken string) (*RefreshedToken, error) {
	return s.flow.refresh(ctx, cfg, refreshToken)
}
