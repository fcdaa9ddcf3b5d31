package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AuditEvent is one allow/deny record for a single tool invocation. Events
// reference servers by canonical id snapshot so the trail survives server
// deletion.
type AuditEvent struct {
	ID                string    `json:"id" gorm:"primaryKey;size:36"`
	Timestamp         time.Time `json:"timestamp" gorm:"index:idx_mcp_audit_events_timestamp,sort:desc"`
	Actor             string    `json:"actor" gorm:"size:255;index"`
	ActorEmail        string    `json:"actor_email,omitempty" gorm:"size:320"`
	Team              string    `json:"team,omitempty" gorm:"size:255;index"`
	ServerCanonicalID string    `json:"server_canonical_id" gorm:"column:server_canonical_id;size:63;index;not null"`
	ToolName          string    `json:"tool_name" gorm:"size:255"`
	Decision          Decision  `json:"decision" gorm:"index;not null"`
	Reason            string    `json:"reason,omitempty" gorm:"type:text"`
	LatencyMs         float64   `json:"latency_ms"`
	RequestSize       int64     `json:"request_size"`
	ResponseSize      int64     `json:"response_size"`
	TraceID           string    `json:"trace_id,omitempty" gorm:"size:64"`
	SourceIP          string    `json:"source_ip,omitempty" gorm:"size:45"`
	UserAgent         string    `json:"user_agent,omitempty" gorm:"size:512"`
	ServerRiskScore   *float64  `json:"server_risk_score,omitempty"`
}

// TableName sets the table name
func (AuditEvent) TableName() string {
	return "mcp_audit_events"
}

// BeforeCreate assigns a v4 UUID when none is set
func (e *AuditEvent) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	return nil
}

// AuditFilter narrows an audit query. Zero values mean "any".
type AuditFilter struct {
	StartDate         *time.Time `json:"start_date,omitempty" form:"start_date" time_format:"2006-01-02T15:04:05Z07:00"`
	EndDate           *time.Time `json:"end_date,omitempty" form:"end_date" time_format:"2006-01-02T15:04:05Z07:00"`
	Team              string     `json:"team,omitempty" form:"team"`
	ServerCanonicalID string     `json:"server_canonical_id,omitempty" form:"server_canonical_id"`
	ToolName          string     `json:"tool_name,omitempty" form:"tool_name"`
	Decision          string     `json:"decision,omitempty" form:"decision"`
	Actor             string     `json:"actor,omitempty" form:"actor"`
	Limit             int        `json:"limit,omitempty" form:"limit"`
	Offset            int        `json:"offset,omitempty" form:"offset"`
}

// AuditQueryMaxLimit caps a single audit page.
const AuditQueryMaxLimit = 1000

// Normalize clamps pagination to sane bounds
func (f *AuditFilter) Normalize() {
	if f.Limit <= 0 {
		f.Limit = 100
	}
	if f.Limit > AuditQueryMaxLimit {
		f.Limit = AuditQueryMaxLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
}

// AuditStats aggregates events over a filter window.
type AuditStats struct {
	Total         int64            `json:"total"`
	ByDecision    map[string]int64 `json:"by_decision"`
	TopServers    []AuditBucket    `json:"top_servers"`
	TopTeams      []AuditBucket    `json:"top_teams"`
	MeanLatencyMs float64          `json:"mean_latency_ms"`
}

// AuditBucket is one aggregation row in the stats response.
type AuditBucket struct {
	Key   string `json:"key"`
	Count int64  `json:"count"`
}
