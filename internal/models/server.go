package models

import (
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CanonicalIDMaxLength bounds a canonical id to the path-segment limit so it
// can always be embedded in workload names and URLs.
const CanonicalIDMaxLength = 63

var canonicalIDPattern = regexp.MustCompile(`(?i)^[a-z0-9][a-z0-9\-_/]*[a-z0-9]$`)

// ValidateCanonicalID checks the canonical id format. Canonical ids are
// normalized to lowercase before storage, so validation is case-insensitive.
func ValidateCanonicalID(id string) error {
	if id == "" {
		return fmt.Errorf("canonical id must not be empty")
	}
	if len(id) > CanonicalIDMaxLength {
		return fmt.Errorf("canonical id exceeds %d characters", CanonicalIDMaxLength)
	}
	if !canonicalIDPattern.MatchString(id) {
		return fmt.Errorf("canonical id %q must match %s", id, canonicalIDPattern.String())
	}
	return nil
}

// Server is a registered MCP tool-server and the root entity of the registry.
// Its Scans and Approvals are owned exclusively and removed with it.
type Server struct {
	ID              string       `json:"id" gorm:"primaryKey;size:36"`
	CanonicalID     string       `json:"canonical_id" gorm:"column:canonical_id;size:63;uniqueIndex;not null"`
	Name            string       `json:"name" gorm:"size:255;not null"`
	Description     string       `json:"description,omitempty" gorm:"type:text"`
	OwnerTeam       string       `json:"owner_team" gorm:"size:255;index"`
	SourceType      SourceType   `json:"source_type" gorm:"not null"`
	SourceURL       string       `json:"source_url,omitempty" gorm:"size:2048"`
	Version         string       `json:"version" gorm:"size:128"`
	Status          ServerStatus `json:"status" gorm:"index;not null;default:0"`
	DeclaredTools   StringArray  `json:"declared_tools" gorm:"type:text"`
	MCPConfig       JSONMap      `json:"mcp_config,omitempty" gorm:"column:mcp_config;type:text"`
	TestEndpoint    string       `json:"test_endpoint,omitempty" gorm:"size:2048"`
	Tags            StringArray  `json:"tags" gorm:"type:text"`
	CreatedBy       string       `json:"created_by" gorm:"size:255;not null"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
	LatestScanID    *string      `json:"latest_scan_id,omitempty" gorm:"size:36"`
	LatestRiskScore *float64     `json:"latest_risk_score,omitempty"`

	Scans     []Scan     `json:"-" gorm:"foreignKey:ServerID;constraint:OnDelete:CASCADE"`
	Approvals []Approval `json:"-" gorm:"foreignKey:ServerID;constraint:OnDelete:CASCADE"`
}

// TableName sets the table name
func (Server) TableName() string {
	return "mcp_servers"
}

// BeforeCreate assigns a v4 UUID when none is set
func (s *Server) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

// serverTransitions is the permitted (from -> to) set of the lifecycle state
// machine. Triggers outside this table must be rejected with an invalid-state
// error, whatever the caller's role.
var serverTransitions = map[ServerStatus][]ServerStatus{
	StatusDraft:           {StatusPendingScan, StatusDenied},
	StatusPendingScan:     {StatusScanning, StatusScannedFail, StatusDenied},
	StatusScanning:        {StatusScannedPass, StatusScannedFail, StatusDenied},
	StatusScannedPass:     {StatusPendingScan, StatusPendingApproval, StatusApproved, StatusDenied},
	StatusScannedFail:     {StatusPendingScan, StatusApproved, StatusDenied},
	StatusPendingApproval: {StatusApproved, StatusDenied},
	StatusApproved:        {StatusDraft, StatusSuspended, StatusDeprecated, StatusDenied},
	StatusSuspended:       {StatusApproved, StatusDeprecated, StatusDenied},
	StatusDenied:          {StatusPendingScan},
	StatusDeprecated:      {},
}

// CanTransition reports whether the state machine permits from -> to.
func CanTransition(from, to ServerStatus) bool {
	for _, next := range serverTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CanSubmitForScan reports whether a scan may be requested from the current
// status.
func (s *Server) CanSubmitForScan() bool {
	switch s.Status {
	case StatusDraft, StatusScannedPass, StatusScannedFail, StatusDenied:
		return true
	default:
		return false
	}
}

// RemoteURL returns the server's reachable MCP endpoint from its transport
// config, or "" for servers that only run locally. Both the "url" and the
// older "endpoint" key are honored.
func (s *Server) RemoteURL() string {
	for _, key := range []string{"url", "endpoint"} {
		if value, ok := s.MCPConfig[key].(string); ok && value != "" {
			return value
		}
	}
	return ""
}

// MaterialChange reports whether an update to the given fields invalidates a
// prior approval. Version, source URL, declared tools, and transport config
// all change what was actually reviewed.
func (s *Server) MaterialChange(version, sourceURL string, declaredTools StringArray, mcpConfig JSONMap) bool {
	if s.Version != version || s.SourceURL != sourceURL {
		return true
	}
	if len(s.DeclaredTools) != len(declaredTools) {
		return true
	}
	for i, tool := range s.DeclaredTools {
		if declaredTools[i] != tool {
			return true
		}
	}
	return !equalJSONMaps(s.MCPConfig, mcpConfig)
}

func equalJSONMaps(a, b JSONMap) bool {
	if len(a) == 0 && len(b) == 0 {
		return true
	}
	if len(a) != len(b) {
		return false
	}
	av, err := a.Value()
	if err != nil {
		return false
	}
	bv, err := b.Value()
	if err != nil {
		return false
	}
	return av == bv
}
