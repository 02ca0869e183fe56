package flow

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/ethanbaker/agentlink/pkg/credential"
	"github.com/ethanbaker/agentlink/pkg/provider"
)

// Coordinator runs begin and callback for every provider
type Coordinator struct {
	ledger      Ledger
	registry    Registry
	flows       Store
	credentials Credentials
	now         func() time.Time
}

// NewCoordinator creates a coordinator over its collaborators
func NewCoordinator(ledger Ledger, registry Registry, flows Store, credentials Credentials) *Coordinator {
	return &Coordinator{
		ledger:      ledger,
		registry:    registry,
		flows:       flows,
		credentials: credentials,
		now:         time.Now,
	}
}

// Begin issues a state for the user and returns the provider consent URL
func (c *Coordinator) Begin(ctx context.Context, req BeginRequest) (*BeginResult, error) {
	if req.User.ID == "" {
		return nil, ErrUnauthenticated
	}

	cfg, err := c.registry.Get(req.Provider)
	if err != nil {
		return nil, configurationError(err)
	}

	if cfg.IsChatApp {
		if req.AgentID == "" {
			return nil, &InvalidRequestError{Reason: "missing agent id"}
		}
		agent, err := c.credentials.GetAgent(ctx, req.AgentID)
		if errors.Is(err, credential.ErrNotFound) {
			return nil, ErrUnknownAgent
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load agent %s: %w", req.AgentID, err)
		}
		if agent.UserID != req.User.ID {
			return nil, ErrUnknownAgent
		}
	}

	state, err := c.ledger.Issue(ctx, string(cfg.ID))
	if err != nil {
		return nil, fmt.Errorf("failed to issue state: %w", err)
	}

	url, err := c.registry.AuthorizeURL(cfg.ID, state, req.User.Email)
	if err != nil {
		return nil, configurationError(err)
	}

	pending := &PendingFlow{
		State:     state,
		Provider:  cfg.ID,
		UserID:    req.User.ID,
		UserEmail: req.User.Email,
		AgentID:   req.AgentID,
		CreatedAt: c.now().UTC(),
	}
	if err := c.flows.Put(ctx, pending, c.ledger.TTL()); err != nil {
		return nil, fmt.Errorf("failed to store pending flow: %w", err)
	}

	log.Printf("[FLOW]: %s -> %s provider=%s user=%s\n", StateIdle, StatePending, cfg.ID, req.User.ID)
	return &BeginResult{URL: url, State: state, FlowState: StatePending}, nil
}

// Callback validates the provider redirect, exchanges the code and persists the credential
func (c *Coordinator) Callback(ctx context.Context, req CallbackRequest) (*Outcome, error) {
	if req.Error != "" {
		log.Printf("[FLOW]: %s -> %s provider error=%s\n", StatePending, StateFailed, req.Error)
		if req.Error == CodeAccessDenied || req.Error == CodeAdminPolicyEnforced {
			return nil, &ProviderDeniedError{Code: req.Error}
		}
		return nil, &InvalidRequestError{Reason: req.Error}
	}
	if req.Code == "" {
		log.Printf("[FLOW]: %s -> %s missing code\n", StatePending, StateFailed)
		return nil, &InvalidRequestError{Reason: "missing code"}
	}

	if req.State == "" || subtle.ConstantTimeCompare([]byte(req.State), []byte(req.RememberedState)) != 1 {
		log.Printf("[FLOW]: %s -> %s state does not match this browser\n", StatePending, StateRejected)
		return nil, ErrInvalidState
	}
	if !c.ledger.Consume(ctx, req.State) {
		log.Printf("[FLOW]: %s -> %s state is unknown, used or expired\n", StatePending, StateRejected)
		return nil, ErrInvalidState
	}

	pending, err := c.flows.Take(ctx, req.State)
	if err != nil {
		log.Printf("[FLOW]: %s -> %s no pending flow: %v\n", StatePending, StateRejected, err)
		return nil, ErrInvalidState
	}

	cfg, err := c.registry.Get(pending.Provider)
	if err != nil {
		log.Printf("[FLOW]: %s -> %s provider=%s: %v\n", StatePending, StateFailed, pending.Provider, err)
		return nil, configurationError(err)
	}

	token, err := c.registry.ExchangeCode(ctx, cfg.ID, req.Code)
	if err != nil {
		log.Printf("[FLOW]: %s -> %s provider=%s exchange: %v\n", StatePending, StateFailed, cfg.ID, err)
		return nil, exchangeFailure(cfg.ID, err)
	}
	log.Printf("[FLOW]: %s -> %s provider=%s user=%s\n", StatePending, StateExchanged, cfg.ID, pending.UserID)

	outcome := &Outcome{FlowState: StatePersisted, Provider: cfg.ID}
	if cfg.IsChatApp {
		agent, err := c.installTarget(ctx, pending)
		if err != nil {
			log.Printf("[FLOW]: %s -> %s provider=%s: %v\n", StateExchanged, StateFailed, cfg.ID, err)
			return nil, err
		}

		outcome.Bot, err = c.credentials.UpsertBotCredential(ctx, agent, token)
		if err != nil {
			log.Printf("[FLOW]: %s -> %s provider=%s: %v\n", StateExchanged, StateFailed, cfg.ID, err)
			return nil, err
		}
	} else {
		outcome.Agent, err = c.credentials.SaveAgentCredential(ctx, pending.UserID, cfg.ID, token)
		if err != nil {
			log.Printf("[FLOW]: %s -> %s provider=%s: %v\n", StateExchanged, StateFailed, cfg.ID, err)
			return nil, err
		}
	}

	log.Printf("[FLOW]: %s -> %s provider=%s user=%s\n", StateExchanged, StatePersisted, cfg.ID, pending.UserID)
	return outcome, nil
}

func (c *Coordinator) installTarget(ctx context.Context, pending *PendingFlow) (*credential.AgentCredential, error) {
	if pending.AgentID == "" {
		return nil, configurationError(errors.New("chat-app flow has no install target"))
	}

	agent, err := c.credentials.GetAgent(ctx, pending.AgentID)
	if err != nil {
		return nil, configurationError(err)
	}
	if agent.UserID != pending.UserID {
		return nil, configurationError(ErrUnknownAgent)
	}
	return agent, nil
}

func exchangeFailure(id provider.ID, err error) error {
	if errors.Is(err, provider.ErrMissingClientCredentials) || errors.Is(err, provider.ErrUnknownProvider) {
		return configurationError(err)
	}

	upstream := &UpstreamExchangeError{Provider: id, Err: err}
	var exchangeErr *provider.ExchangeError
	if errors.As(err, &exchangeErr) {
		upstream.Detail = exchangeErr.Detail
	}
	return upstream
}
