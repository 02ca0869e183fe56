package provider_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ethanbaker/agentlink/pkg/provider"
	"github.com/ethanbaker/agentlink/pkg/provider/providertest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryGet(t *testing.T) {
	registry := providertest.Registry(&providertest.Strategy{})

	tests := []struct {
		id       provider.ID
		family   provider.Family
		chatApp  bool
		hasScope string
	}{
		{provider.Gmail, provider.FamilyGoogle, false, "https://mail.google.com/"},
		{provider.GoogleCalendar, provider.FamilyGoogle, false, "https://www.googleapis.com/auth/calendar.events"},
		{provider.GoogleDrive, provider.FamilyGoogle, false, "https://www.googleapis.com/auth/drive"},
		{provider.Slack, provider.FamilySlack, true, "chat:write"},
		{provider.Salesforce, provider.FamilySalesforce, false, "api"},
	}

	for _, tt := range tests {
		t.Run(string(tt.id), func(t *testing.T) {
			cfg, err := registry.Get(tt.id)
			require.NoError(t, err)
			assert.Equal(t, tt.family, cfg.Family)
			assert.Equal(t, tt.chatApp, cfg.IsChatApp)
			assert.Contains(t, cfg.Scopes, tt.hasScope)
		})
	}

	_, err := registry.Get("myspace")
	assert.ErrorIs(t, err, provider.ErrUnknownProvider)
}

func TestRegistryIsReadOnly(t *testing.T) {
	registry := providertest.Registry(&providertest.Strategy{})

	cfg, err := registry.Get(provider.Gmail)
	require.NoError(t, err)
	cfg.Scopes[0] = "mutated"

	again, err := registry.Get(provider.Gmail)
	require.NoError(t, err)
	assert.Equal(t, "https://mail.google.com/", again.Scopes[0])
}

func TestNewRegistryValidation(t *testing.T) {
	strategy := &providertest.Strategy{}

	_, err := provider.NewRegistry([]provider.Config{
		{ID: provider.Gmail, Family: provider.FamilyGoogle},
		{ID: provider.Gmail, Family: provider.FamilyGoogle},
	}, map[provider.Family]provider.Strategy{provider.FamilyGoogle: strategy}, 0)
	assert.Error(t, err)

	_, err = provider.NewRegistry([]provider.Config{
		{ID: provider.Slack, Family: provider.FamilySlack},
	}, map[provider.Family]provider.Strategy{provider.FamilyGoogle: strategy}, 0)
	assert.Error(t, err)

	_, err = provider.NewRegistry([]provider.Config{{Family: provider.FamilyGoogle}},
		map[provider.Family]provider.Strategy{provider.FamilyGoogle: strategy}, 0)
	assert.Error(t, err)
}

func TestOverlay(t *testing.T) {
	overlay, err := provider.ParseOverlay([]byte(`
providers:
  - id: gmail
    scopes:
      - https://www.googleapis.com/auth/gmail.readonly
  - id: salesforce
    is_active: false
  - id: slack
    name: Slack Assistant
`))
	require.NoError(t, err)

	configs, err := overlay.Apply(provider.DefaultConfigs(""))
	require.NoError(t, err)

	registry, err := provider.NewRegistry(configs, map[provider.Family]provider.Strategy{
		provider.FamilyGoogle:     &providertest.Strategy{},
		provider.FamilySlack:      &providertest.Strategy{},
		provider.FamilySalesforce: &providertest.Strategy{},
	}, 0)
	require.NoError(t, err)

	gmail, err := registry.Get(provider.Gmail)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://www.googleapis.com/auth/gmail.readonly"}, gmail.Scopes)

	slack, err := registry.Get(provider.Slack)
	require.NoError(t, err)
	assert.Equal(t, "Slack Assistant", slack.Name)
	assert.Equal(t, []string{"search:read"}, slack.UserScopes, "unset fields keep their default")

	_, err = registry.Get(provider.Salesforce)
	assert.ErrorIs(t, err, provider.ErrUnknownProvider, "inactive providers are not resolvable")

	for _, cfg := range registry.List() {
		assert.NotEqual(t, provider.Salesforce, cfg.ID)
	}

	t.Run("unknown id", func(t *testing.T) {
		overlay, err := provider.ParseOverlay([]byte("providers:\n  - id: myspace\n    is_active: true\n"))
		require.NoError(t, err)

		_, err = overlay.Apply(provider.DefaultConfigs(""))
		assert.ErrorIs(t, err, provider.ErrUnknownProvider)
	})

	t.Run("malformed", func(t *testing.T) {
		_, err := provider.ParseOverlay([]byte("providers: [\n"))
		assert.Error(t, err)
	})
}

func TestBuild(t *testing.T) {
	path := filepath.Join(t.TempDir(), "providers.yaml")
	require.NoError(t, os.WriteFile(path, []byte("providers:\n  - id: google-form\n    is_active: false\n"), 0o600))

	registry, err := provider.Build(provider.Settings{
		RedirectURI:        "http://localhost:8080/api/oauth/callback",
		Google:             provider.ClientCredentials{ClientID: "gid", ClientSecret: "gsecret"},
		SalesforceLoginURL: "https://test.salesforce.com",
	}, path)
	require.NoError(t, err)

	_, err = registry.Get(provider.GoogleForm)
	assert.ErrorIs(t, err, provider.ErrUnknownProvider)

	sf, err := registry.Get(provider.Salesforce)
	require.NoError(t, err)
	assert.Equal(t, "https://test.salesforce.com/services/oauth2/authorize", sf.AuthURL)

	_, err = registry.AuthorizeURL(provider.Slack, "state", "")
	assert.ErrorIs(t, err, provider.ErrMissingClientCredentials)

	_, err = provider.Build(provider.Settings{}, filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
