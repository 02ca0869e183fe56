package flow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethanbaker/agentlink/pkg/flow"
)

type entry struct {
	flow      flow.PendingFlow
	expiresAt time.Time
}

// InMemoryStore keeps pending flows in process memory, used when REDIS_URL is unset
type InMemoryStore struct {
	flows map[string]entry
	mutex sync.Mutex
	now   func() time.Time
}

// NewInMemoryStore creates an empty pending flow store
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{flows: make(map[string]entry), now: time.Now}
}

// Put stores the flow until ttl elapses
func (s *InMemoryStore) Put(_ context.Context, pending *flow.PendingFlow, ttl time.Duration) error {
	if pending.State == "" {
		return fmt.Errorf("state cannot be empty")
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	now := s.now()
	s.sweep(now)
	s.flows[pending.State] = entry{flow: *pending, expiresAt: now.Add(ttl)}
	return nil
}

// Take returns and removes the flow for state
func (s *InMemoryStore) Take(_ context.Context, state string) (*flow.PendingFlow, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	e, exists := s.flows[state]
	if !exists {
		return nil, flow.ErrFlowNotFound
	}
	delete(s.flows, state)

	if !s.now().Before(e.expiresAt) {
		return nil, flow.ErrFlowNotFound
	}
	return &e.flow, nil
}

// sweep drops expired entries. Callers hold the lock
func (s *InMemoryStore) sweep(now time.Time) {
	for state, e := range s.flows {
		if !now.Before(e.expiresAt) {
			delete(s.flows, state)
		}
	}
}

// Len returns the number of stored flows, expired ones included
func (s *InMemoryStore) Len() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return len(s.flows)
}
