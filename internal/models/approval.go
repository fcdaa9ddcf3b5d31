package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Approval is one administrative decision about a server. Rows are
// append-only; history survives even when a later decision supersedes it.
type Approval struct {
	ID                string         `json:"id" gorm:"primaryKey;size:36"`
	ServerID          string         `json:"server_id" gorm:"size:36;index;not null"`
	ServerCanonicalID string         `json:"server_canonical_id" gorm:"column:server_canonical_id;size:63;not null"`
	Actor             string         `json:"actor" gorm:"size:255;not null"`
	Action            ApprovalAction `json:"action" gorm:"not null"`
	Reason            string         `json:"reason" gorm:"type:text;not null"`
	Notes             string         `json:"notes,omitempty" gorm:"type:text"`
	Timestamp         time.Time      `json:"timestamp" gorm:"index:idx_mcp_approvals_timestamp,sort:desc"`
	ExpiresAt         *time.Time     `json:"expires_at,omitempty"`
	ScanID            *string        `json:"scan_id,omitempty" gorm:"size:36"`
}

// TableName sets the table name
func (Approval) TableName() string {
	return "mcp_approvals"
}

// BeforeCreate assigns a v4 UUID when none is set
func (a *Approval) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}

// Expired reports whether the approval had an expiry that has passed.
func (a *Approval) Expired(now time.Time) bool {
	return a.ExpiresAt != nil && a.ExpiresAt.Before(now)
}
