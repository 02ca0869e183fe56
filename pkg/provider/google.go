package provider

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"slices"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	googleoauth2 "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"
)

// GoogleStrategy handles every Google Workspace provider
type GoogleStrategy struct {
	flow codeFlow

	// tokenInfoEndpoint overrides the Google API base path, used by tests
	tokenInfoEndpoint string
}

// NewGoogleStrategy creates the google family strategy
func NewGoogleStrategy(creds ClientCredentials, redirectURI string, client *http.Client) *GoogleStrategy {
	return &GoogleStrategy{flow: codeFlow{creds: creds, redirectURI: redirectURI, client: client}}
}

// WithTokenInfoEndpoint points tokeninfo lookups at another base URL
func (g *GoogleStrategy) WithTokenInfoEndpoint(endpoint string) *GoogleStrategy {
	g.tokenInfoEndpoint = endpoint
	return g
}

// GoogleCredentialsFromFile reads the client id and secret from a downloaded
// client_secret.json
func GoogleCredentialsFromFile(path string) (ClientCredentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ClientCredentials{}, fmt.Errorf("failed to read google client secrets: %w", err)
	}

	conf, err := google.ConfigFromJSON(data)
	if err != nil {
		return ClientCredentials{}, fmt.Errorf("failed to parse google client secrets: %w", err)
	}

	return ClientCredentials{ClientID: conf.ClientID, ClientSecret: conf.ClientSecret}, nil
}

func (g *GoogleStrategy) AuthorizeURL(cfg Config, state, loginHint string) (string, error) {
	conf, err := g.flow.config(cfg)
	if err != nil {
		return "", err
	}

	opts := []oauth2.AuthCodeOption{
		oauth2.AccessTypeOffline,
		oauth2.ApprovalForce,
		oauth2.SetAuthURLParam("include_granted_scopes", "true"),
	}
	if loginHint != "" {
		opts = append(opts, oauth2.SetAuthURLParam("login_hint", loginHint))
	}

	return conf.AuthCodeURL(state, opts...), nil
}

func (g *GoogleStrategy) Exchange(ctx context.Context, cfg Config, code string) (*ExchangedToken, error) {
	token, err := g.flow.exchange(ctx, cfg, code)
	if err != nil {
		return nil, err
	}

	exchanged := &ExchangedToken{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenType:    token.TokenType,
		TokenURI:     cfg.TokenURL,
		IDToken:      extraString(token, "id_token"),
		Expiry:       token.Expiry,
		Scopes:       splitScopes(extraString(token, "scope")),
		Data:         map[string]any{},
	}

	if len(exchanged.Scopes) == 0 {
		g.resolveTokenInfo(ctx, cfg, exchanged)
	}

	return exchanged, nil
}

// resolveTokenInfo fills granted scopes and account email from tokeninfo.
// Lookup failures fall back to the requested scopes
func (g *GoogleStrategy) resolveTokenInfo(ctx context.Context, cfg Config, token *ExchangedToken) {
	opts := []option.ClientOption{option.WithHTTPClient(g.flow.client)}
	if g.tokenInfoEndpoint != "" {
		opts = append(opts, option.WithEndpoint(g.tokenInfoEndpoint))
	}

	info, err := func() (*googleoauth2.Tokeninfo, error) {
		svc, err := googleoauth2.NewService(ctx, opts...)
		if err != nil {
			return nil, err
		}
		return svc.Tokeninfo().AccessToken(token.AccessToken).Context(ctx).Do()
	}()
	if err != nil {
		log.Printf("[PROVIDER]: Warning: tokeninfo lookup for %s failed: %v\n", cfg.ID, err)
		token.Scopes = slices.Clone(cfg.Scopes)
		return
	}

	token.Scopes = splitScopes(info.Scope)
	if len(token.Scopes) == 0 {
		token.Scopes = slices.Clone(cfg.Scopes)
	}
	if info.Email != "" {
		token.Data["email"] = info.Email
	}
}

func (g *GoogleStrategy) Refresh(ctx context.Context, cfg Config, refreshToken string) (*RefreshedToken, error) {
	return g.flow.refresh(ctx, cfg, refreshToken)
}
