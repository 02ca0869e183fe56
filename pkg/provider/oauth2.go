package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// codeFlow is the authorization-code plumbing shared by the families that
// speak plain RFC 6749 through golang.org/x/oauth2
type codeFlow struct {
	creds       ClientCredentials
	redirectURI string
	client      *http.Client
}

func (f codeFlow) config(cfg Config) (*oauth2.Config, error) {
	if !f.creds.complete() {
		return nil, fmt.Errorf("%w for %s", ErrMissingClientCredentials, cfg.Family)
	}

	return &oauth2.Config{
		ClientID:     f.creds.ClientID,
		ClientSecret: f.creds.ClientSecret,
		RedirectURL:  f.redirectURI,
		Scopes:       cfg.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   cfg.AuthURL,
			TokenURL:  cfg.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}, nil
}

// withClient makes the oauth2 package use the bounded client
func (f codeFlow) withClient(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, f.client)
}

func (f codeFlow) exchange(ctx context.Context, cfg Config, code string) (*oauth2.Token, error) {
	conf, err := f.config(cfg)
	if err != nil {
		return nil, err
	}

	token, err := conf.Exchange(f.withClient(ctx), code)
	if err != nil {
		return nil, exchangeError(cfg.ID, err)
	}
	return token, nil
}

func (f codeFlow) refresh(ctx context.Context, cfg Config, refreshToken string) (*RefreshedToken, error) {
	conf, err := f.config(cfg)
	if err != nil {
		return nil, err
	}

	// An empty access token is never valid, so the source always hits the token endpoint
	token, err := conf.TokenSource(f.withClient(ctx), &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, exchangeError(cfg.ID, err)
	}

	refreshed := &RefreshedToken{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		Expiry:       token.Expiry,
	}
	if refreshed.RefreshToken == "" {
		refreshed.RefreshToken = refreshToken
	}
	return refreshed, nil
}

// exchangeError keeps the provider's error code when the token endpoint sent one
func exchangeError(id ID, err error) *ExchangeError {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) && retrieveErr.ErrorCode != "" {
		return &ExchangeError{Provider: id, Detail: retrieveErr.ErrorCode, Err: err}
	}
	return &ExchangeError{Provider: id, Err: err}
}

func extraString(token *oauth2.Token, key string) string {
	if value, ok := token.Extra(key).(string); ok {
		return value
	}
	return ""
}

// splitScopes accepts space or comma separated scope strings
func splitScopes(raw string) []string {
	return strings.FieldsFunc(raw, func(r rune) bool {
		return r == ' ' || r == ','
	})
}

func expiryFromSeconds(now time.Time, seconds int) *time.Time {
	if seconds <= 0 {
		return nil
	}
	expiry := now.Add(time.Duration(seconds) * time.Second).UTC()
	return &expiry
}
