package models

import "time"

// AuditQueryResponse is one page of audit events plus the total match count.
type AuditQueryResponse struct {
	Events []AuditEvent `json:"events"`
	Total  int64        `json:"total"`
	Limit  int          `json:"limit"`
	Offset int          `json:"offset"`
}

// PolicyCheckResponse reports a dry-run decision.
type PolicyCheckResponse struct {
	Decision        Decision `json:"decision"`
	Reason          string   `json:"reason,omitempty"`
	ServerRiskScore *float64 `json:"server_risk_score,omitempty"`
}

// CatalogServer is the public projection of an Approved server offered to
// MCP clients browsing the catalog. ProxyURL and IsLocal are filled by the
// catalog handler, which knows the adapter mount point.
type CatalogServer struct {
	CanonicalID   string      `json:"canonical_id"`
	Name          string      `json:"name"`
	Description   string      `json:"description,omitempty"`
	OwnerTeam     string      `json:"owner_team,omitempty"`
	Version       string      `json:"version"`
	DeclaredTools StringArray `json:"declared_tools"`
	Tags          StringArray `json:"tags"`
	RiskScore     *float64    `json:"risk_score,omitempty"`
	ProxyURL      string      `json:"proxy_url,omitempty"`
	IsLocal       bool        `json:"is_local"`
	Note          string      `json:"note,omitempty"`
}

// CatalogView projects a server into its catalog form.
func (s *Server) CatalogView() CatalogServer {
	return CatalogServer{
		CanonicalID:   s.CanonicalID,
		Name:          s.Name,
		Description:   s.Description,
		OwnerTeam:     s.OwnerTeam,
		Version:       s.Version,
		DeclaredTools: s.DeclaredTools,
		Tags:          s.Tags,
		RiskScore:     s.LatestRiskScore,
	}
}

// ScanWatchEvent is one frame of the scan progress stream.
type ScanWatchEvent struct {
	ScanID       string     `json:"scan_id"`
	ServerID     string     `json:"server_id"`
	Status       ScanStatus `json:"status"`
	RiskScore    *float64   `json:"risk_score,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	ObservedAt   time.Time  `json:"observed_at"`
}
