// Package model contains GORM model definitions shared across packages.
// All models are driver-agnostic: they work with both PostgreSQL and SQLite.
package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Company represents a tenant. Each company owns a dedicated analytics
// schema in the warehouse Postgres, derived from its numeric schema key.
type Company struct {
	ID        string    `gorm:"type:text;primaryKey"`
	Name      string    `gorm:"type:text;not null"`
	Slug      string    `gorm:"type:text;not null;uniqueIndex"`
	SchemaKey int64     `gorm:"not null;uniqueIndex;autoIncrement:false"`
	Status    string    `gorm:"type:text;not null;default:'active'"`
	CreatedAt time.Time `gorm:"not null"`
}

// BeforeCreate generates a UUID primary key if not set.
func (c *Company) BeforeCreate(_ *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	return nil
}

// AnalyticsSchema returns the tenant's warehouse schema name.
func (c *Company) AnalyticsSchema() string {
	return fmt.Sprintf("analytics_company_%d", c.SchemaKey)
}

// StringSlice is a []string that GORM serialises as JSON for both SQLite
// and PostgreSQL TEXT columns.
type StringSlice []string

// User is the GORM model for the users table.
type User struct {
	ID            string      `gorm:"type:text;primaryKey"`
	CompanyID     *string     `gorm:"type:text;index"`
	Email         string      `gorm:"type:text;not null;uniqueIndex"`
	Name          string      `gorm:"type:text;not null;default:''"`
	PasswordHash  string      `gorm:"type:text;not null;default:''"`
	Roles         StringSlice `gorm:"type:text;not null;default:'[]';serializer:json"`
	DeactivatedAt *time.Time
	CreatedAt     time.Time `gorm:"not null"`
	UpdatedAt     time.Time `gorm:"not null"`
}

// BeforeCreate generates a UUID primary key if not set.
func (u *User) BeforeCreate(_ *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	return nil
}

// RefreshToken is the GORM model for the refresh_tokens table.
type RefreshToken struct {
	ID        string    `gorm:"type:text;primaryKey"`
	UserID    string    `gorm:"type:text;not null;index"`
	TokenHash string    `gorm:"type:text;not null;uniqueIndex"`
	ExpiresAt time.Time `gorm:"not null"`
	RevokedAt *time.Time
	CreatedAt time.Time `gorm:"not null"`
}

// BeforeCreate generates a UUID primary key if not set.
func (rt *RefreshToken) BeforeCreate(_ *gorm.DB) error {
	if rt.ID == "" {
		rt.ID = uuid.New().String()
	}
	return nil
}

// Connection statuses.
const (
	ConnectionStatusConnected = "connected"
	ConnectionStatusError     = "error"
	ConnectionStatusRevoked   = "revoked"
)

// Connection is one company+source pair holding the OAuth credential
// record for a connector. Tokens are mutated on every refresh and are
// never shared across tenants.
type Connection struct {
	ID           string  `gorm:"type:text;primaryKey"`
	CompanyID    string  `gorm:"type:text;not null;index:idx_connections_company_source,unique"`
	Source       string  `gorm:"type:text;not null;index:idx_connections_company_source,unique"`
	AccountID    string  `gorm:"type:text;not null;default:''"`
	AccessToken  string  `gorm:"type:text;not null;default:''"`
	RefreshToken string  `gorm:"type:text;not null;default:''"`
	TokenExpiry  *time.Time
	Status       string  `gorm:"type:text;not null;default:'connected'"`
	LastSyncedAt *time.Time
	LastError    string    `gorm:"type:text;not null;default:''"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time `gorm:"not null"`
}

// BeforeCreate generates a UUID primary key if not set.
func (c *Connection) BeforeCreate(_ *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	return nil
}

// SyncRun records the accounting for one end-to-end connector sync.
type SyncRun struct {
	ID            string      `gorm:"type:text;primaryKey"`
	ConnectionID  string      `gorm:"type:text;not null;index"`
	CompanyID     string      `gorm:"type:text;not null;index"`
	Source        string      `gorm:"type:text;not null"`
	Success       bool        `gorm:"not null"`
	RecordsSynced int         `gorm:"not null"`
	TablesCreated StringSlice `gorm:"type:text;not null;default:'[]';serializer:json"`
	TransformErr  string      `gorm:"type:text;not null;default:''"`
	Error         string      `gorm:"type:text;not null;default:''"`
	StartedAt     time.Time   `gorm:"not null"`
	FinishedAt    time.Time   `gorm:"not null"`
}

// BeforeCreate generates a UUID primary key if not set.
func (sr *SyncRun) BeforeCreate(_ *gorm.DB) error {
	if sr.ID == "" {
		sr.ID = uuid.New().String()
	}
	return nil
}

// ChatMessage is one message in the AI assistant conversation.
type ChatMessage struct {
	ID        string    `gorm:"type:text;primaryKey"`
	CompanyID string    `gorm:"type:text;not null;index"`
	UserID    string    `gorm:"type:text;not null;default:''"`
	SessionID string    `gorm:"type:text;not null;default:'';index"`
	Role      string    `gorm:"type:text;not null"` // "user" or "assistant"
	Content   string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"not null"`
}

// BeforeCreate generates a UUID primary key if not set.
func (m *ChatMessage) BeforeCreate(_ *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return nil
}

// SQL model layers and statuses.
const (
	LayerStaging      = "stg"
	LayerIntermediate = "int"
	LayerCore         = "core"

	SQLModelStatusDraft    = "draft"
	SQLModelStatusDeployed = "deployed"
)

// SQLModel is a user-managed SQL transformation deployed into the tenant's
// analytics schema (staging → intermediate → core registry).
type SQLModel struct {
	ID         string  `gorm:"type:text;primaryKey"`
	CompanyID  string  `gorm:"type:text;not null;index:idx_sql_models_company_name,unique"`
	Name       string  `gorm:"type:text;not null;index:idx_sql_models_company_name,unique"`
	Layer      string  `gorm:"type:text;not null"`
	SQL        string  `gorm:"column:sql;type:text;not null"`
	Status     string  `gorm:"type:text;not null;default:'draft'"`
	DeployedAt *time.Time
	CreatedAt  time.Time `gorm:"not null"`
	UpdatedAt  time.Time `gorm:"not null"`
}

// BeforeCreate generates a UUID primary key if not set.
func (m *SQLModel) BeforeCreate(_ *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return nil
}
