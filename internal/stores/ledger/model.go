package ledger

import (
	"time"
)

// StateModel represents the database model for issued OAuth state tokens
type StateModel struct {
	Token     string    `gorm:"column:token;primaryKey;size:64"`
	Provider  string    `gorm:"column:provider;not null;size:50"`
	IsUsed    bool      `gorm:"column:is_used;not null;default:false"`
	CreatedAt time.Time `gorm:"column:created_at;not null;index"`
}

// TableName sets the table name for GORM
func (StateModel) TableName() string {
	return "auth_states"
}
