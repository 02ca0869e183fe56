// Package flow drives the authorization-code flow from begin to persisted credential
package flow

import (
	"context"
	"errors"
	"time"

	"github.com/ethanbaker/agentlink/pkg/credential"
	"github.com/ethanbaker/agentlink/pkg/provider"
)

// State is the position of one flow instance
type State string

const (
	StateIdle      State = "IDLE"
	StatePending   State = "PENDING"
	StateExchanged State = "EXCHANGED"
	StatePersisted State = "PERSISTED"
	StateRejected  State = "REJECTED"
	StateFailed    State = "FAILED"
)

// ErrFlowNotFound is returned by flow stores for missing or expired records
var ErrFlowNotFound = errors.New("pending flow not found")

// PendingFlow correlates an issued state with the user who started the flow
type PendingFlow struct {
	State     string      `json:"state"`
	Provider  provider.ID `json:"provider"`
	UserID    string      `json:"user_id"`
	UserEmail string      `json:"user_email,omitempty"`
	AgentID   string      `json:"agent_id,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}

// Store keeps pending flows keyed by state until the callback takes them
type Store interface {
	Put(ctx context.Context, flow *PendingFlow, ttl time.Duration) error

	// Take returns and deletes the flow in one step
	Take(ctx context.Context, state string) (*PendingFlow, error)
}

// User is the authenticated caller of Begin
type User struct {
	ID    string
	Email string
}

type BeginRequest struct {
	Provider provider.ID
	User     User
	AgentID  string // install target, required for chat-app providers
}

type BeginResult struct {
	URL       string
	State     string
	FlowState State
}

type CallbackRequest struct {
	State string
	Code  string
	Error string

	// RememberedState is the state this browser was handed at begin
	RememberedState string
}

// Outcome is a persisted flow. Exactly one of Agent and Bot is set
type Outcome struct {
	FlowState State
	Provider  provider.ID
	Agent     *credential.AgentCredential
	Bot       *credential.BotCredential
}

// Ledger issues and consumes state tokens
type Ledger interface {
	Issue(ctx context.Context, provider string) (string, error)
	Consume(ctx context.Context, token string) bool
	TTL() time.Duration
}

// Registry resolves providers and talks to them
type Registry interface {
	Get(id provider.ID) (provider.Config, error)
	AuthorizeURL(id provider.ID, state, loginHint string) (string, error)
	ExchangeCode(ctx context.Context, id provider.ID, code string) (*provider.ExchangedToken, error)
}

// Credentials persists the result of a flow
type Credentials interface {
	SaveAgentCredential(ctx context.Context, userID string, providerID provider.ID, token *provider.ExchangedToken) (*credential.AgentCredential, error)
	UpsertBotCredential(ctx context.Context, agent *credential.AgentCredential, token *provider.ExchangedToken) (*credential.BotCredential, error)
	GetAgent(ctx context.Context, id string) (*credential.AgentCredential, error)
}
