package flow

import (
	"errors"
	"fmt"

	"github.com/ethanbaker/agentlink/pkg/provider"
)

// Provider error codes that are reported as a denial rather than a bad request
const (
	CodeAccessDenied        = "access_denied"
	CodeAdminPolicyEnforced = "admin_policy_enforced"
)

var (
	// ErrConfiguration wraps failures caused by deployment configuration:
	// unknown providers, missing client secrets or an unresolvable install target
	ErrConfiguration = errors.New("configuration error")

	// ErrInvalidState is the CSRF failure: forged, replayed, expired or unknown state
	ErrInvalidState = errors.New("invalid state parameter")

	// ErrUnauthenticated is returned when a flow is started without a user
	ErrUnauthenticated = errors.New("authentication required")

	// ErrUnknownAgent is returned when an install target is missing or owned by someone else
	ErrUnknownAgent = errors.New("unknown agent")
)

func configurationError(err error) error {
	return fmt.Errorf("%w: %w", ErrConfiguration, err)
}

// UpstreamExchangeError is a failed code exchange with the provider
type UpstreamExchangeError struct {
	Provider provider.ID
	Detail   string
	Err      error
}

func (e *UpstreamExchangeError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("failed to exchange code with %s: %s", e.Provider, e.Detail)
	}
	return fmt.Sprintf("failed to exchange code with %s: %v", e.Provider, e.Err)
}

func (e *UpstreamExchangeError) Unwrap() error {
	return e.Err
}

// ProviderDeniedError is an access_denied or admin_policy_enforced redirect
type ProviderDeniedError struct {
	Code string
}

func (e *ProviderDeniedError) Error() string {
	return "provider denied authorization: " + e.Code
}

// AccessDenied reports whether the user declined consent
func (e *ProviderDeniedError) AccessDenied() bool {
	return e.Code == CodeAccessDenied
}

// InvalidRequestError is any other provider error or a malformed callback
type InvalidRequestError struct {
	Reason string
}

func (e *InvalidRequestError) Error() string {
	return fmt.Sprintf("Invalid request with error: %s.", e.Reason)
}
