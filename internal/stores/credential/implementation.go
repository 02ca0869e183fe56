package credential

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethanbaker/agentlink/pkg/credential"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store handles storage and retrieval of agent and bot credentials using GORM
type Store struct {
	db *gorm.DB
}

// NewStore creates a credential store on an open database and migrates its tables
func NewStore(db *gorm.DB) (*Store, error) {
	store := &Store{db: db}

	if err := store.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate tables: %w", err)
	}

	return store, nil
}

// migrate creates or updates the required database tables
func (s *Store) migrate() error {
	return s.db.AutoMigrate(&AgentModel{}, &BotModel{})
}

// CreateAgent inserts a new agent credential
func (s *Store) CreateAgent(ctx context.Context, agent *credential.AgentCredential) error {
	if agent.ID == "" {
		return fmt.Errorf("id cannot be empty")
	}

	if err := s.db.WithContext(ctx).Create(agentToModel(agent)).Error; err != nil {
		return fmt.Errorf("failed to create agent: %w", err)
	}
	return nil
}

// GetAgent retrieves an agent credential by id
func (s *Store) GetAgent(ctx context.Context, id string) (*credential.AgentCredential, error) {
	var model AgentModel
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, credential.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get agent: %w", err)
	}
	return model.toCredential(), nil
}

// UpdateAgentTokens replaces the token columns after a refresh
func (s *Store) UpdateAgentTokens(ctx context.Context, id, accessToken, refreshToken string, expiresAt *time.Time) error {
	result := s.db.WithContext(ctx).
		Model(&AgentModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"access_token":  accessToken,
			"refresh_token": refreshToken,
			"expires_at":    expiresAt,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update agent tokens: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return credential.ErrNotFound
	}
	return nil
}

// ListAgentsExpiringBefore returns agents with an expiry at or before the cutoff
func (s *Store) ListAgentsExpiringBefore(ctx context.Context, before time.Time) ([]*credential.AgentCredential, error) {
	var models []AgentModel
	if err := s.db.WithContext(ctx).
		Where("expires_at IS NOT NULL AND expires_at <= ?", before.UTC()).
		Order("expires_at").
		Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}

	agents := make([]*credential.AgentCredential, 0, len(models))
	for i := range models {
		agents = append(agents, models[i].toCredential())
	}
	return agents, nil
}

// UpsertBot inserts the installation or, when the composite key already
// exists, refreshes its token and metadata columns in the same statement
func (s *Store) UpsertBot(ctx context.Context, bot *credential.BotCredential) (*credential.BotCredential, error) {
	model := botToModel(bot)

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "app_id"}, {Name: "user_id"}, {Name: "team_id"}, {Name: "bot_id"}, {Name: "bot_user_id"},
		},
		DoUpdates: clause.AssignmentColumns(botUpdateColumns),
	}).Create(model).Error
	if err != nil {
		return nil, fmt.Errorf("failed to upsert bot: %w", err)
	}

	// On conflict the stored row keeps its original id, so read it back by key
	var stored BotModel
	if err := s.db.WithContext(ctx).
		Where("app_id = ? AND user_id = ? AND team_id = ? AND bot_id = ? AND bot_user_id = ?",
			bot.AppID, bot.UserID, bot.TeamID, bot.BotID, bot.BotUserID).
		First(&stored).Error; err != nil {
		return nil, fmt.Errorf("failed to read upserted bot: %w", err)
	}
	return stored.toCredential(), nil
}

// FindBots returns the workspace's installations, newest first
func (s *Store) FindBots(ctx context.Context, teamID, enterpriseID string) ([]*credential.BotCredential, error) {
	var models []BotModel
	if err := s.db.WithContext(ctx).
		Where("team_id = ? AND enterprise_id = ?", teamID, enterpriseID).
		Order("installed_at DESC").
		Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to find bots: %w", err)
	}

	bots := make([]*credential.BotCredential, 0, len(models))
	for i := range models {
		bots = append(bots, models[i].toCredential())
	}
	return bots, nil
}

// FindEnterpriseBots returns the org-wide installs of an enterprise, newest first
func (s *Store) FindEnterpriseBots(ctx context.Context, enterpriseID string) ([]*credential.BotCredential, error) {
	var models []BotModel
	if err := s.db.WithContext(ctx).
		Where("enterprise_id = ? AND is_enterprise_install = ?", enterpriseID, true).
		Order("installed_at DESC").
		Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to find enterprise bots: %w", err)
	}

	bots := make([]*credential.BotCredential, 0, len(models))
	for i := range models {
		bots = append(bots, models[i].toCredential())
	}
	return bots, nil
}

// Ping checks the database connection, used by the health module
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
