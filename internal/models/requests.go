package models

import (
	"encoding/json"
	"time"
)

// RegisterServerRequest is the payload for creating a server registration.
type RegisterServerRequest struct {
	CanonicalID   string      `json:"canonical_id" binding:"required,canonical_id"`
	Name          string      `json:"name" binding:"required,max=255"`
	Description   string      `json:"description,omitempty" binding:"omitempty,max=5000"`
	OwnerTeam     string      `json:"owner_team,omitempty" binding:"omitempty,max=255"`
	SourceType    SourceType  `json:"source_type"`
	SourceURL     string      `json:"source_url,omitempty" binding:"omitempty,max=2048"`
	Version       string      `json:"version" binding:"required,max=128"`
	DeclaredTools StringArray `json:"declared_tools,omitempty"`
	MCPConfig     JSONMap     `json:"mcp_config,omitempty"`
	TestEndpoint  string      `json:"test_endpoint,omitempty" binding:"omitempty,max=2048"`
	Tags          StringArray `json:"tags,omitempty"`
}

// UpdateServerRequest mutates a registration. Nil fields are left untouched;
// the canonical id can never change.
type UpdateServerRequest struct {
	Name          *string      `json:"name,omitempty" binding:"omitempty,max=255"`
	Description   *string      `json:"description,omitempty" binding:"omitempty,max=5000"`
	OwnerTeam     *string      `json:"owner_team,omitempty" binding:"omitempty,max=255"`
	SourceURL     *string      `json:"source_url,omitempty" binding:"omitempty,max=2048"`
	Version       *string      `json:"version,omitempty" binding:"omitempty,max=128"`
	DeclaredTools *StringArray `json:"declared_tools,omitempty"`
	MCPConfig     *JSONMap     `json:"mcp_config,omitempty"`
	TestEndpoint  *string      `json:"test_endpoint,omitempty" binding:"omitempty,max=2048"`
	Tags          *StringArray `json:"tags,omitempty"`
}

// ApproveRequest carries an approval decision. Approving a server that
// failed its scan additionally requires OverrideReason.
type ApproveRequest struct {
	Reason         string     `json:"reason" binding:"required"`
	Notes          string     `json:"notes,omitempty"`
	OverrideReason string     `json:"override_reason,omitempty"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
}

// DecisionRequest carries the reason for deny, suspend, reinstate,
// deprecate, and request-approval operations.
type DecisionRequest struct {
	Reason string `json:"reason" binding:"required"`
	Notes  string `json:"notes,omitempty"`
}

// UploadScanRequest submits the output of a locally executed scanner run for
// a LocalDeclared server.
type UploadScanRequest struct {
	ScanOutput     json.RawMessage `json:"scan_output" binding:"required"`
	ScannerVersion string          `json:"scanner_version,omitempty"`
	ScannedAt      *time.Time      `json:"scanned_at,omitempty"`
}

// ListServersRequest narrows a server listing.
type ListServersRequest struct {
	Status    string `form:"status"`
	OwnerTeam string `form:"owner_team"`
	Tag       string `form:"tag"`
	Query     string `form:"q"`
	Limit     int    `form:"limit"`
	Offset    int    `form:"offset"`
}

// PageRequest is limit/offset pagination for sub-resource listings.
type PageRequest struct {
	Limit  int `form:"limit"`
	Offset int `form:"offset"`
}

// PolicyCheckRequest asks for a dry-run admission decision.
type PolicyCheckRequest struct {
	PrincipalID       string   `json:"principal_id,omitempty"`
	Team              string   `json:"team,omitempty"`
	Roles             []string `json:"roles,omitempty"`
	ServerCanonicalID string   `json:"server_canonical_id" binding:"required"`
	ToolName          string   `json:"tool_name" binding:"required"`
}
