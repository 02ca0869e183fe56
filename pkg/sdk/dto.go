package sdk

import (
	"time"

	"github.com/ethanbaker/agentlink/pkg/credential"
)

/** OAuth Module DTOs */

// ConnectResponse carries the provider consent URL when a JSON begin is requested
type ConnectResponse struct {
	URL   string `json:"url"`
	State string `json:"state"`
}

// AgentView is an agent credential as exposed over the API. Tokens are never included
type AgentView struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id"`
	Name      string         `json:"name"`
	Provider  string         `json:"provider"`
	Scopes    []string       `json:"scopes"`
	ExpiresAt *time.Time     `json:"expires_at,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// BotView is a chat-app installation as exposed over the API
type BotView struct {
	ID             string    `json:"id"`
	AgentID        string    `json:"agent_id"`
	AppID          string    `json:"app_id"`
	TeamID         string    `json:"team_id"`
	TeamName       string    `json:"team_name,omitempty"`
	EnterpriseID   string    `json:"enterprise_id,omitempty"`
	EnterpriseName string    `json:"enterprise_name,omitempty"`
	BotID          string    `json:"bot_id"`
	BotUserID      string    `json:"bot_user_id"`
	BotScopes      []string  `json:"bot_scopes"`
	InstalledAt    time.Time `json:"installed_at"`
}

func NewAgentView(agent *credential.AgentCredential) *AgentView {
	scopes := agent.Scopes
	if scopes == nil {
		scopes = []string{}
	}

	return &AgentView{
		ID:        agent.ID,
		UserID:    agent.UserID,
		Name:      agent.Name,
		Provider:  string(agent.Provider),
		Scopes:    scopes,
		ExpiresAt: agent.ExpiresAt,
		Data:      agent.Data,
		CreatedAt: agent.CreatedAt,
		UpdatedAt: agent.UpdatedAt,
	}
}

func NewBotView(bot *credential.BotCredential) *BotView {
	scopes := bot.BotScopes
	if scopes == nil {
		scopes = []string{}
	}

	return &BotView{
		ID:             bot.ID,
		AgentID:        bot.AgentID,
		AppID:          bot.AppID,
		TeamID:         bot.TeamID,
		TeamName:       bot.TeamName,
		EnterpriseID:   bot.EnterpriseID,
		EnterpriseName: bot.EnterpriseName,
		BotID:          bot.BotID,
		BotUserID:      bot.BotUserID,
		BotScopes:      scopes,
		InstalledAt:    bot.InstalledAt,
	}
}

/** Agent Module DTOs */

// QueryRequest asks an agent a question synchronously
type QueryRequest struct {
	Input string `json:"input" binding:"required"`
}

// QueryResponse is the agent's answer
type QueryResponse struct {
	Output string `json:"output"`
}

// HealthStatus is returned by the health module
type HealthStatus struct {
	Status    string   `json:"status"`
	Database  string   `json:"database"`
	Providers []string `json:"providers"`
}
