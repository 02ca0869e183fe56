package credential

import (
	"time"

	"github.com/ethanbaker/agentlink/pkg/credential"
	"github.com/ethanbaker/agentlink/pkg/provider"
)

// AgentModel represents the database model for agent credentials
type AgentModel struct {
	ID        string    `json:"id" gorm:"column:id;primaryKey;size:36"`
	CreatedAt time.Time `json:"created_at" gorm:"column:created_at"`
	UpdatedAt time.Time `json:"updated_at" gorm:"column:updated_at"`

	UserID       string         `json:"user_id" gorm:"column:user_id;not null;size:255;index"`
	Name         string         `json:"name" gorm:"column:name;not null;size:255"`
	Provider     string         `json:"provider" gorm:"column:provider;not null;size:64"`
	AccessToken  string         `json:"-" gorm:"column:access_token;type:text;not null"`
	RefreshToken string         `json:"-" gorm:"column:refresh_token;type:text"`
	TokenURI     string         `json:"token_uri" gorm:"column:token_uri;size:500"`
	IDToken      string         `json:"-" gorm:"column:id_token;type:text"`
	Scopes       []string       `json:"scopes" gorm:"column:scopes;serializer:json"`
	ExpiresAt    *time.Time     `json:"expires_at" gorm:"column:expires_at;index"`
	Data         map[string]any `json:"data" gorm:"column:data;serializer:json"`
}

// TableName sets the table name for GORM
func (AgentModel) TableName() string {
	return "agent_credentials"
}

// BotModel represents the database model for chat-app installations.
// Empty enterprise ids are stored as "" so the composite unique key also covers non-enterprise installs
type BotModel struct {
	ID        string    `json:"id" gorm:"column:id;primaryKey;size:36"`
	CreatedAt time.Time `json:"installed_at" gorm:"column:installed_at"`
	UpdatedAt time.Time `json:"updated_at" gorm:"column:updated_at"`

	AgentID string      `json:"agent_id" gorm:"column:agent_id;not null;size:36;index"`
	Agent   *AgentModel `json:"-" gorm:"foreignKey:AgentID;references:ID;constraint:OnDelete:CASCADE"`

	AppID          string `json:"app_id" gorm:"column:app_id;not null;size:32;uniqueIndex:idx_bot_installation"`
	UserID         string `json:"user_id" gorm:"column:user_id;not null;size:32;uniqueIndex:idx_bot_installation"`
	TeamID         string `json:"team_id" gorm:"column:team_id;not null;size:32;uniqueIndex:idx_bot_installation;index:idx_bot_workspace"`
	TeamName       string `json:"team_name" gorm:"column:team_name;size:255"`
	EnterpriseID   string `json:"enterprise_id" gorm:"column:enterprise_id;not null;default:'';size:32;index:idx_bot_workspace"`
	EnterpriseName string `json:"enterprise_name" gorm:"column:enterprise_name;size:255"`
	EnterpriseURL  string `json:"enterprise_url" gorm:"column:enterprise_url;size:255"`

	AccessToken          string     `json:"-" gorm:"column:access_token;type:text;not null"`
	BotID                string     `json:"bot_id" gorm:"column:bot_id;not null;size:32;uniqueIndex:idx_bot_installation"`
	BotUserID            string     `json:"bot_user_id" gorm:"column:bot_user_id;not null;size:32;uniqueIndex:idx_bot_installation"`
	BotScopes            []string   `json:"bot_scopes" gorm:"column:bot_scopes;serializer:json"`
	BotRefreshToken      string     `json:"-" gorm:"column:bot_refresh_token;type:text"`
	AccessTokenExpiresAt *time.Time `json:"access_token_expires_at" gorm:"column:access_token_expires_at"`

	UserToken          string     `json:"-" gorm:"column:user_token;type:text"`
	UserScopes         []string   `json:"user_scopes" gorm:"column:user_scopes;serializer:json"`
	UserRefreshToken   string     `json:"-" gorm:"column:user_refresh_token;type:text"`
	UserTokenExpiresAt *time.Time `json:"user_token_expires_at" gorm:"column:user_token_expires_at"`

	IncomingWebhookURL              string `json:"incoming_webhook_url" gorm:"column:incoming_webhook_url;size:500"`
	IncomingWebhookChannel          string `json:"incoming_webhook_channel" gorm:"column:incoming_webhook_channel;size:255"`
	IncomingWebhookChannelID        string `json:"incoming_webhook_channel_id" gorm:"column:incoming_webhook_channel_id;size:32"`
	IncomingWebhookConfigurationURL string `json:"incoming_webhook_configuration_url" gorm:"column:incoming_webhook_configuration_url;size:500"`

	IsEnterpriseInstall bool   `json:"is_enterprise_install" gorm:"column:is_enterprise_install;default:false"`
	TokenType           string `json:"token_type" gorm:"column:token_type;size:32"`
}

// TableName sets the table name for GORM
func (BotModel) TableName() string {
	return "bot_credentials"
}

// botUpdateColumns are refreshed when a reinstall hits an existing row.
// id, installed_at and enterprise_id are kept, agent_id follows the latest install
var botUpdateColumns = []string{
	"agent_id", "team_name", "enterprise_name", "enterprise_url",
	"access_token", "bot_scopes", "bot_refresh_token", "access_token_expires_at",
	"user_token", "user_scopes", "user_refresh_token", "user_token_expires_at",
	"incoming_webhook_url", "incoming_webhook_channel", "incoming_webhook_channel_id", "incoming_webhook_configuration_url",
	"is_enterprise_install", "token_type", "updated_at",
}

func agentToModel(agent *credential.AgentCredential) *AgentModel {
	return &AgentModel{
		ID:           agent.ID,
		CreatedAt:    agent.CreatedAt,
		UpdatedAt:    agent.UpdatedAt,
		UserID:       agent.UserID,
		Name:         agent.Name,
		Provider:     string(agent.Provider),
		AccessToken:  agent.AccessToken,
		RefreshToken: agent.RefreshToken,
		TokenURI:     agent.TokenURI,
		IDToken:      agent.IDToken,
		Scopes:       agent.Scopes,
		ExpiresAt:    agent.ExpiresAt,
		Data:         agent.Data,
	}
}

func (m *AgentModel) toCredential() *credential.AgentCredential {
	return &credential.AgentCredential{
		ID:           m.ID,
		UserID:       m.UserID,
		Name:         m.Name,
		Provider:     provider.ID(m.Provider),
		AccessToken:  m.AccessToken,
		RefreshToken: m.RefreshToken,
		TokenURI:     m.TokenURI,
		IDToken:      m.IDToken,
		Scopes:       m.Scopes,
		ExpiresAt:    m.ExpiresAt,
		Data:         m.Data,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func botToModel(bot *credential.BotCredential) *BotModel {
	return &BotModel{
		ID:                              bot.ID,
		CreatedAt:                       bot.InstalledAt,
		UpdatedAt:                       bot.UpdatedAt,
		AgentID:                         bot.AgentID,
		AppID:                           bot.AppID,
		UserID:                          bot.UserID,
		TeamID:                          bot.TeamID,
		TeamName:                        bot.TeamName,
		EnterpriseID:                    bot.EnterpriseID,
		EnterpriseName:                  bot.EnterpriseName,
		EnterpriseURL:                   bot.EnterpriseURL,
		AccessToken:                     bot.AccessToken,
		BotID:                           bot.BotID,
		BotUserID:                       bot.BotUserID,
		BotScopes:                       bot.BotScopes,
		BotRefreshToken:                 bot.BotRefreshToken,
		AccessTokenExpiresAt:            bot.AccessTokenExpiresAt,
		UserToken:                       bot.UserToken,
		UserScopes:                      bot.UserScopes,
		UserRefreshToken:                bot.UserRefreshToken,
		UserTokenExpiresAt:              bot.UserTokenExpiresAt,
		IncomingWebhookURL:              bot.IncomingWebhookURL,
		IncomingWebhookChannel:          bot.IncomingWebhookChannel,
		IncomingWebhookChannelID:        bot.IncomingWebhookChannelID,
		IncomingWebhookConfigurationURL: bot.IncomingWebhookConfigurationURL,
		IsEnterpriseInstall:             bot.IsEnterpriseInstall,
		TokenType:                       bot.TokenType,
	}
}

func (m *BotModel) toCredential() *credential.BotCredential {
	return &credential.BotCredential{
		ID:                              m.ID,
		AgentID:                         m.AgentID,
		AppID:                           m.AppID,
		UserID:                          m.UserID,
		TeamID:                          m.TeamID,
		TeamName:                        m.TeamName,
		EnterpriseID:                    m.EnterpriseID,
		EnterpriseName:                  m.EnterpriseName,
		EnterpriseURL:                   m.EnterpriseURL,
		AccessToken:                     m.AccessToken,
		BotID:                           m.BotID,
		BotUserID:                       m.BotUserID,
		BotScopes:                       m.BotScopes,
		BotRefreshToken:                 m.BotRefreshToken,
		AccessTokenExpiresAt:            m.AccessTokenExpiresAt,
		UserToken:                       m.UserToken,
		UserScopes:                      m.UserScopes,
		UserRefreshToken:                m.UserRefreshToken,
		UserTokenExpiresAt:              m.UserTokenExpiresAt,
		IncomingWebhookURL:              m.IncomingWebhookURL,
		IncomingWebhookChannel:          m.IncomingWebhookChannel,
		IncomingWebhookChannelID:        m.IncomingWebhookChannelID,
		IncomingWebhookConfigurationURL: m.IncomingWebhookConfigurationURL,
		IsEnterpriseInstall:             m.IsEnterpriseInstall,
		TokenType:                       m.TokenType,
		InstalledAt:                     m.CreatedAt,
		UpdatedAt:                       m.UpdatedAt,
	}
}
