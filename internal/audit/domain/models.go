package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type ActorType string

const (
	ActorTypeUser   ActorType = "user"
	ActorTypeSystem ActorType = "system"
)

// AuditLog records who changed what on which store.
type AuditLog struct {
	ID            snowflake.ID      `gorm:"primaryKey" json:"id"`
	StoreID       *snowflake.ID     `gorm:"index" json:"store_id,omitempty"`
	ActorType     string            `gorm:"type:text;not null" json:"actor_type"`
	ActorID       *string           `gorm:"type:text" json:"actor_id,omitempty"`
	Action        string            `gorm:"type:text;not null;index" json:"action"`
	TargetType    string            `gorm:"type:text;not null" json:"target_type"`
	TargetID      *string           `gorm:"type:text;index" json:"target_id,omitempty"`
	Metadata      datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`
	CorrelationID *string           `gorm:"type:text" json:"correlation_id,omitempty"`
	CreatedAt     time.Time         `gorm:"not null;index" json:"created_at"`
}

// TableName sets the database table name.
func (AuditLog) TableName() string { return "audit_logs" }

type AuditCursor struct {
	ID        snowflake.ID
	CreatedAt time.Time
}

type ListFilter struct {
	StoreID    snowflake.ID
	Action     string
	TargetType string
	TargetID   string
	ActorType  string
	ActorID    string
	StartAt    *time.Time
	EndAt      *time.Time
	Cursor     *AuditCursor
	Limit      int
}
