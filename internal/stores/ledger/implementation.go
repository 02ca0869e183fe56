package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/ethanbaker/agentlink/pkg/ledger"
	"gorm.io/gorm"
)

// Store persists state tokens with GORM
type Store struct {
	db *gorm.DB
}

// NewStore creates a state store on an open database and migrates its table
func NewStore(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&StateModel{}); err != nil {
		return nil, fmt.Errorf("failed to migrate auth_states: %w", err)
	}
	return &Store{db: db}, nil
}

// Insert stores a new state record
func (s *Store) Insert(ctx context.Context, state *ledger.AuthState) error {
	model := &StateModel{
		Token:     state.Token,
		Provider:  state.Provider,
		IsUsed:    state.IsUsed,
		CreatedAt: state.CreatedAt,
	}

	if err := s.db.WithContext(ctx).Create(model).Error; err != nil {
		return fmt.Errorf("failed to create state: %w", err)
	}
	return nil
}

// MarkUsed flips is_used in a single conditional update so two racing
// callbacks cannot both see the token as unused
func (s *Store) MarkUsed(ctx context.Context, token string, issuedAfter time.Time) (bool, error) {
	result := s.db.WithContext(ctx).
		Model(&StateModel{}).
		Where("token = ? AND is_used = ? AND created_at > ?", token, false, issuedAfter).
		Update("is_used", true)
	if result.Error != nil {
		return false, fmt.Errorf("failed to mark state used: %w", result.Error)
	}

	return result.RowsAffected == 1, nil
}

// Get returns the stored record for token
func (s *Store) Get(ctx context.Context, token string) (*ledger.AuthState, error) {
	var model StateModel
	if err := s.db.WithContext(ctx).Where("token = ?", token).First(&model).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("state not found")
		}
		return nil, fmt.Errorf("failed to get state: %w", err)
	}

	return &ledger.AuthState{
		Token:     model.Token,
		Provider:  model.Provider,
		IsUsed:    model.IsUsed,
		CreatedAt: model.CreatedAt,
	}, nil
}
