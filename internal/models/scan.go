package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Scan records one security-analysis run over a server. Rows are written by
// the orchestrator or by a local-scan upload and never change once terminal.
type Scan struct {
	ID              string     `json:"id" gorm:"primaryKey;size:36"`
	ServerID        string     `json:"server_id" gorm:"size:36;index;not null"`
	ScannerVersion  string     `json:"scanner_version,omitempty" gorm:"size:128"`
	Status          ScanStatus `json:"status" gorm:"index;not null;default:0"`
	RiskScore       *float64   `json:"risk_score,omitempty"`
	Summary         string     `json:"summary,omitempty" gorm:"type:text"`
	ReportJSON      string     `json:"report_json,omitempty" gorm:"column:report_json;type:text"`
	Issues          IssueList  `json:"issues" gorm:"type:text"`
	DiscoveredTools ToolList   `json:"discovered_tools" gorm:"type:text"`
	JobName         string     `json:"job_name,omitempty" gorm:"size:253"`
	ErrorMessage    string     `json:"error_message,omitempty" gorm:"type:text"`
	StartedAt       time.Time  `json:"started_at" gorm:"index:idx_mcp_scans_started_at,sort:desc"`
	FinishedAt      *time.Time `json:"finished_at,omitempty"`
	TriggeredBy     string     `json:"triggered_by" gorm:"size:255"`
}

// TableName sets the table name
func (Scan) TableName() string {
	return "mcp_scans"
}

// BeforeCreate assigns a v4 UUID when none is set
func (s *Scan) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

// ScanIssue is one finding inside a scan report.
type ScanIssue struct {
	Code           string   `json:"code,omitempty"`
	Severity       Severity `json:"severity"`
	Message        string   `json:"message"`
	AffectedEntity string   `json:"affected_entity,omitempty"`
	Remediation    string   `json:"remediation,omitempty"`
}

// ToolLabels grades a discovered tool on the scanner's behavioral axes. Each
// value is a confidence in the unit interval.
type ToolLabels struct {
	IsPublicSink     float64 `json:"is_public_sink"`
	Destructive      float64 `json:"destructive"`
	UntrustedContent float64 `json:"untrusted_content"`
	PrivateData      float64 `json:"private_data"`
}

// DiscoveredTool is a tool the scanner observed on the server, which may
// differ from what the server declared at registration.
type DiscoveredTool struct {
	Name            string     `json:"name"`
	Description     string     `json:"description,omitempty"`
	DescriptionHash string     `json:"description_hash,omitempty"`
	Labels          ToolLabels `json:"labels"`
}
