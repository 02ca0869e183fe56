package provider

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultHTTPTimeout bounds every outbound call made by a strategy
const DefaultHTTPTimeout = 10 * time.Second

// DefaultSalesforceLoginURL is the production login domain
const DefaultSalesforceLoginURL = "https://login.salesforce.com"

// Registry is the immutable set of provider configs and their strategies
type Registry struct {
	configs    map[ID]Config
	strategies map[ID]Strategy
	order      []ID
	timeout    time.Duration
}

// NewRegistry builds a registry from configs. Every config's family must have a strategy
func NewRegistry(configs []Config, strategies map[Family]Strategy, timeout time.Duration) (*Registry, error) {
	if timeout <= 0 {
		timeout = DefaultHTTPTimeout
	}

	r := &Registry{
		configs:    make(map[ID]Config, len(configs)),
		strategies: make(map[ID]Strategy, len(configs)),
		timeout:    timeout,
	}

	for _, cfg := range configs {
		if cfg.ID == "" {
			return nil, fmt.Errorf("provider config is missing an id")
		}
		if _, exists := r.configs[cfg.ID]; exists {
			return nil, fmt.Errorf("duplicate provider config %q", cfg.ID)
		}

		strategy, ok := strategies[cfg.Family]
		if !ok || strategy == nil {
			return nil, fmt.Errorf("provider %q has no strategy for family %q", cfg.ID, cfg.Family)
		}

		cfg.Scopes = slices.Clone(cfg.Scopes)
		cfg.UserScopes = slices.Clone(cfg.UserScopes)

		r.configs[cfg.ID] = cfg
		r.strategies[cfg.ID] = strategy
		r.order = append(r.order, cfg.ID)
	}

	return r, nil
}

// Get returns the config for id. Unknown and inactive ids are both ErrUnknownProvider
func (r *Registry) Get(id ID) (Config, error) {
	cfg, ok := r.configs[id]
	if !ok || !cfg.IsActive {
		return Config{}, fmt.Errorf("%w: %q", ErrUnknownProvider, id)
	}

	cfg.Scopes = slices.Clone(cfg.Scopes)
	cfg.UserScopes = slices.Clone(cfg.UserScopes)
	return cfg, nil
}

// List returns the active configs in registration order
func (r *Registry) List() []Config {
	list := make([]Config, 0, len(r.order))
	for _, id := range r.order {
		if cfg, err := r.Get(id); err == nil {
			list = append(list, cfg)
		}
	}
	return list
}

// AuthorizeURL builds the consent URL the user is redirected to
func (r *Registry) AuthorizeURL(id ID, state, loginHint string) (string, error) {
	cfg, err := r.Get(id)
	if err != nil {
		return "", err
	}
	return r.strategies[id].AuthorizeURL(cfg, state, loginHint)
}

// ExchangeCode trades an authorization code for tokens under the registry timeout
func (r *Registry) ExchangeCode(ctx context.Context, id ID, code string) (*ExchangedToken, error) {
	cfg, err := r.Get(id)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	return r.strategies[id].Exchange(ctx, cfg, code)
}

// Refresh performs a refresh-token grant under the registry timeout
func (r *Registry) Refresh(ctx context.Context, id ID, refreshToken string) (*RefreshedToken, error) {
	cfg, err := r.Get(id)
	if err != nil {
		return nil, err
	}
	if refreshToken == "" {
		return nil, &ExchangeError{Provider: id, Detail: "no refresh token"}
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	return r.strategies[id].Refresh(ctx, cfg, refreshToken)
}

// Settings are the deployment values the default strategies are built from
type Settings struct {
	RedirectURI string
	HTTPTimeout time.Duration

	Google     ClientCredentials
	Slack      ClientCredentials
	Salesforce ClientCredentials

	SalesforceLoginURL string

	// HTTPClient replaces the timeout-bounded default client when set
	HTTPClient *http.Client
}

func (s Settings) client() *http.Client {
	if s.HTTPClient != nil {
		return s.HTTPClient
	}

	timeout := s.HTTPTimeout
	if timeout <= 0 {
		timeout = DefaultHTTPTimeout
	}
	return &http.Client{Timeout: timeout}
}

// Build creates the production registry: default configs, an optional yaml
// overlay at overlayPath, and the strategies for each family
func Build(settings Settings, overlayPath string) (*Registry, error) {
	configs := DefaultConfigs(settings.SalesforceLoginURL)

	if overlayPath != "" {
		overlay, err := LoadOverlay(overlayPath)
		if err != nil {
			return nil, err
		}
		if configs, err = overlay.Apply(configs); err != nil {
			return nil, err
		}
	}

	client := settings.client()
	strategies := map[Family]Strategy{
		FamilyGoogle:     NewGoogleStrategy(settings.Google, settings.RedirectURI, client),
		FamilySlack:      NewSlackStrategy(settings.Slack, settings.RedirectURI, client),
		FamilySalesforce: NewSalesforceStrategy(settings.Salesforce, settings.RedirectURI, client),
	}

	return NewRegistry(configs, strategies, settings.HTTPTimeout)
}

// DefaultConfigs returns the built-in provider table
func DefaultConfigs(salesforceLoginURL string) []Config {
	if salesforceLoginURL == "" {
		salesforceLoginURL = DefaultSalesforceLoginURL
	}

	google := func(id ID, name string, scopes ...string) Config {
		return Config{
			ID:       id,
			Name:     name,
			Family:   FamilyGoogle,
			AuthURL:  "https://accounts.google.com/o/oauth2/auth",
			TokenURL: "https://oauth2.googleapis.com/token",
			Scopes:   scopes,
			IsActive: true,
		}
	}

	return []Config{
		google(Gmail, "Gmail", "https://mail.google.com/"),
		google(GoogleCalendar, "Google Calendar", "https://www.googleapis.com/auth/calendar.events"),
		google(GoogleDocument, "Google Docs", "https://www.googleapis.com/auth/documents"),
		google(GoogleDrive, "Google Drive", "https://www.googleapis.com/auth/drive"),
		google(GoogleSheet, "Google Sheets", "https://www.googleapis.com/auth/spreadsheets"),
		google(GoogleForm, "Google Forms", "https://www.googleapis.com/auth/forms.body", "https://www.googleapis.com/auth/forms.responses.readonly"),
		{
			ID:         Slack,
			Name:       "Slack",
			Family:     FamilySlack,
			AuthURL:    "https://slack.com/oauth/v2/authorize",
			TokenURL:   "https://slack.com/api/oauth.v2.access",
			Scopes:     []string{"chat:write", "channels:history", "app_mentions:read"},
			UserScopes: []string{"search:read"},
			IsChatApp:  true,
			IsActive:   true,
		},
		{
			ID:       Salesforce,
			Name:     "Salesforce",
			Family:   FamilySalesforce,
			AuthURL:  salesforceLoginURL + "/services/oauth2/authorize",
			TokenURL: salesforceLoginURL + "/services/oauth2/token",
			Scopes:   []string{"api", "refresh_token"},
			IsActive: true,
		},
	}
}

// Overlay is the yaml document read from PROVIDERS_CONFIG_PATH
type Overlay struct {
	Providers []OverlayEntry `yaml:"providers"`
}

// OverlayEntry overrides fields of one provider. Unset fields keep their default
type OverlayEntry struct {
	ID         ID       `yaml:"id"`
	Name       *string  `yaml:"name"`
	AuthURL    *string  `yaml:"auth_url"`
	TokenURL   *string  `yaml:"token_url"`
	Scopes     []string `yaml:"scopes"`
	UserScopes []string `yaml:"user_scopes"`
	IsActive   *bool    `yaml:"is_active"`
}

// LoadOverlay reads and parses an overlay file
func LoadOverlay(path string) (*Overlay, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read provider overlay: %w", err)
	}
	return ParseOverlay(data)
}

// ParseOverlay parses an overlay document
func ParseOverlay(data []byte) (*Overlay, error) {
	var overlay Overlay
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return nil, fmt.Errorf("failed to parse provider overlay: %w", err)
	}
	return &overlay, nil
}

// Apply returns a copy of configs with the overlay entries applied. An entry
// naming an id that is not in configs is an error
func (o *Overlay) Apply(configs []Config) ([]Config, error) {
	out := slices.Clone(configs)

	for _, entry := range o.Providers {
		idx := slices.IndexFunc(out, func(c Config) bool { return c.ID == entry.ID })
		if idx < 0 {
			return nil, fmt.Errorf("%w: overlay entry %q", ErrUnknownProvider, entry.ID)
		}

		cfg := &out[idx]
		if entry.Name != nil {
			cfg.Name = *entry.Name
		}
		if entry.AuthURL != nil {
			cfg.AuthURL = *entry.AuthURL
		}
		if entry.TokenURL != nil {
			cfg.TokenURL = *entry.TokenURL
		}
		if entry.Scopes != nil {
			cfg.Scopes = slices.Clone(entry.Scopes)
		}
		if entry.UserScopes != nil {
			cfg.UserScopes = slices.Clone(entry.UserScopes)
		}
		if entry.IsActive != nil {
			cfg.IsActive = *entry.IsActive
		}
	}

	return out, nil
}
