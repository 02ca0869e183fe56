// Package providertest provides a scriptable provider strategy for tests
package providertest

import (
	"context"
	"net/url"
	"strings"
	"sync"

	"github.com/ethanbaker/agentlink/pkg/provider"
)

// Strategy records calls and answers them from its func fields. A nil func
// returns a zero token
type Strategy struct {
	ExchangeFunc func(ctx context.Context, cfg provider.Config, code string) (*provider.ExchangedToken, error)
	RefreshFunc  func(ctx context.Context, cfg provider.Config, refreshToken string) (*provider.RefreshedToken, error)

	mu        sync.Mutex
	exchanged []string
	refreshed []string
}

// AuthorizeURL returns a deterministic URL carrying the state and scopes
func (s *Strategy) AuthorizeURL(cfg provider.Config, state, loginHint string) (string, error) {
	query := url.Values{}
	query.Set("client_id", "test-client")
	query.Set("scope", strings.Join(cfg.Scopes, " "))
	query.Set("state", state)
	if loginHint != "" {
		query.Set("login_hint", loginHint)
	}
	return cfg.AuthURL + "?" + query.Encode(), nil
}

func (s *Strategy) Exchange(ctx context.Context, cfg provider.Config, code string) (*provider.ExchangedToken, error) {
	s.mu.Lock()
	s.exchanged = append(s.exchanged, code)
	s.mu.Unlock()

	if s.ExchangeFunc != nil {
		return s.ExchangeFunc(ctx, cfg, code)
	}
	return &provider.ExchangedToken{}, nil
}

func (s *Strategy) Refresh(ctx context.Context, cfg provider.Config, refreshToken string) (*provider.RefreshedToken, error) {
	s.mu.Lock()
	s.refreshed = append(s.refreshed, refreshToken)
	s.mu.Unlock()

	if s.RefreshFunc != nil {
		return s.RefreshFunc(ctx, cfg, refreshToken)
	}
	return &provider.RefreshedToken{}, nil
}

// Exchanged returns the codes passed to Exchange
func (s *Strategy) Exchanged() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.exchanged...)
}

// Refreshed returns the refresh tokens passed to Refresh
func (s *Strategy) Refreshed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.refreshed...)
}

// Registry builds a registry over the default configs where every family uses strategy
func Registry(strategy provider.Strategy) *provider.Registry {
	registry, err := provider.NewRegistry(provider.DefaultConfigs(""), map[provider.Family]provider.Strategy{
		provider.FamilyGoogle:     strategy,
		provider.FamilySlack:      strategy,
		provider.FamilySalesforce: strategy,
	}, 0)
	if err != nil {
		panic(err)
	}
	return registry
}
