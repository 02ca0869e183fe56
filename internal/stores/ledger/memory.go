package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethanbaker/agentlink/pkg/ledger"
)

// InMemoryStore is a process-local state store, used when no database is configured and in tests
type InMemoryStore struct {
	states map[string]ledger.AuthState
	mutex  sync.Mutex
}

// NewInMemoryStore creates an empty in-memory state store
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{states: make(map[string]ledger.AuthState)}
}

// Insert stores a copy of state
func (s *InMemoryStore) Insert(_ context.Context, state *ledger.AuthState) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.states[state.Token]; exists {
		return fmt.Errorf("state already exists")
	}
	s.states[state.Token] = *state
	return nil
}

// MarkUsed performs the check-and-set under the store lock
func (s *InMemoryStore) MarkUsed(_ context.Context, token string, issuedAfter time.Time) (bool, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	state, exists := s.states[token]
	if !exists || state.IsUsed || !state.CreatedAt.After(issuedAfter) {
		return false, nil
	}

	state.IsUsed = true
	s.states[token] = state
	return true, nil
}

// Get returns a copy of the stored record for token
func (s *InMemoryStore) Get(_ context.Context, token string) (*ledger.AuthState, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	state, exists := s.states[token]
	if !exists {
		return nil, fmt.Errorf("state not found")
	}
	return &state, nil
}
