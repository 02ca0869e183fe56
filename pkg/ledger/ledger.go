// Package ledger issues and consumes the single-use anti-forgery state tokens
// that are round-tripped through OAuth redirects
package ledger

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"time"
)

// DefaultTTL is how long an issued state stays consumable
const DefaultTTL = 3000 * time.Second

// tokenBytes is the entropy of a state token (256 bits)
const tokenBytes = 32

// ErrEmptyProvider is returned when a state is issued without a provider
var ErrEmptyProvider = errors.New("provider cannot be empty")

// AuthState is one issued state token. Records are never deleted
type AuthState struct {
	Token     string    `json:"token"`
	Provider  string    `json:"provider"`
	IsUsed    bool      `json:"is_used"`
	CreatedAt time.Time `json:"created_at"`
}

// Store persists state records. MarkUsed must be an atomic check-and-set: it
// flips is_used only for an unused record created after issuedAfter and
// reports whether it did
type Store interface {
	Insert(ctx context.Context, state *AuthState) error
	MarkUsed(ctx context.Context, token string, issuedAfter time.Time) (bool, error)
}

// Ledger issues tokens and consumes them at most once within the TTL
type Ledger struct {
	store Store
	ttl   time.Duration
	now   func() time.Time
}

// Option customises a Ledger
type Option func(*Ledger)

// WithTTL overrides DefaultTTL
func WithTTL(ttl time.Duration) Option {
	return func(l *Ledger) {
		if ttl > 0 {
			l.ttl = ttl
		}
	}
}

// WithClock overrides the time source, used by tests
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		l.now = now
	}
}

// New creates a ledger backed by store
func New(store Store, opts ...Option) *Ledger {
	l := &Ledger{
		store: store,
		ttl:   DefaultTTL,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// TTL returns the configured time-to-live
func (l *Ledger) TTL() time.Duration {
	return l.ttl
}

// Issue generates a new random token for provider and persists it unused
func (l *Ledger) Issue(ctx context.Context, provider string) (string, error) {
	if provider == "" {
		return "", ErrEmptyProvider
	}

	token, err := newToken()
	if err != nil {
		return "", fmt.Errorf("failed to generate state token: %w", err)
	}

	state := &AuthState{
		Token:     token,
		Provider:  provider,
		IsUsed:    false,
		CreatedAt: l.now().UTC(),
	}
	if err := l.store.Insert(ctx, state); err != nil {
		return "", fmt.Errorf("failed to persist state token: %w", err)
	}

	return token, nil
}

// Consume marks token used and reports whether it was valid. It fails closed:
// unknown, already used, expired tokens and store errors all yield false
func (l *Ledger) Consume(ctx context.Context, token string) bool {
	if token == "" {
		return false
	}

	// A record created at exactly now-ttl is already expired
	issuedAfter := l.now().UTC().Add(-l.ttl)

	ok, err := l.store.MarkUsed(ctx, token, issuedAfter)
	if err != nil {
		log.Printf("[LEDGER]: Failed to consume state token: %v", err)
		return false
	}
	return ok
}

func newToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
