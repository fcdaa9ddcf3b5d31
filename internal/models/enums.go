package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Enumerations in this file are persisted by their integer ordinal. The
// declaration order is part of the storage contract: new values must be
// appended at the end, never inserted or reordered.

// ServerStatus is the lifecycle state of a registered MCP server.
type ServerStatus int

const (
	StatusDraft ServerStatus = iota
	StatusPendingScan
	StatusScanning
	StatusScannedPass
	StatusScannedFail
	StatusPendingApproval
	StatusApproved
	StatusDenied
	StatusDeprecated
	StatusSuspended
)

var serverStatusNames = []string{
	"Draft",
	"PendingScan",
	"Scanning",
	"ScannedPass",
	"ScannedFail",
	"PendingApproval",
	"Approved",
	"Denied",
	"Deprecated",
	"Suspended",
}

// String returns the wire name of the status
func (s ServerStatus) String() string {
	if s < 0 || int(s) >= len(serverStatusNames) {
		return fmt.Sprintf("ServerStatus(%d)", int(s))
	}
	return serverStatusNames[s]
}

// Valid reports whether the status is one of the declared values
func (s ServerStatus) Valid() bool {
	return s >= 0 && int(s) < len(serverStatusNames)
}

// ParseServerStatus resolves a wire name to a status
func ParseServerStatus(name string) (ServerStatus, error) {
	for i, n := range serverStatusNames {
		if strings.EqualFold(n, name) {
			return ServerStatus(i), nil
		}
	}
	return 0, fmt.Errorf("unknown server status %q", name)
}

// MarshalJSON encodes the status as its wire name
func (s ServerStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON accepts either the wire name or the integer ordinal
func (s *ServerStatus) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		parsed, perr := ParseServerStatus(name)
		if perr != nil {
			return perr
		}
		*s = parsed
		return nil
	}
	var ordinal int
	if err := json.Unmarshal(data, &ordinal); err != nil {
		return fmt.Errorf("invalid server status: %s", string(data))
	}
	*s = ServerStatus(ordinal)
	if !s.Valid() {
		return fmt.Errorf("unknown server status ordinal %d", ordinal)
	}
	return nil
}

// ScanStatus is the execution state of a single security scan.
type ScanStatus int

const (
	ScanPending ScanStatus = iota
	ScanRunning
	ScanCompleted
	ScanFailed
	ScanCancelled
	ScanTimedOut
)

var scanStatusNames = []string{
	"Pending",
	"Running",
	"Completed",
	"Failed",
	"Cancelled",
	"TimedOut",
}

// String returns the wire name of the status
func (s ScanStatus) String() string {
	if s < 0 || int(s) >= len(scanStatusNames) {
		return fmt.Sprintf("ScanStatus(%d)", int(s))
	}
	return scanStatusNames[s]
}

// Valid reports whether the status is one of the declared values
func (s ScanStatus) Valid() bool {
	return s >= 0 && int(s) < len(scanStatusNames)
}

// Terminal reports whether the scan has finished executing. A terminal scan
// must carry a finishedAt timestamp; a non-terminal one must not.
func (s ScanStatus) Terminal() bool {
	switch s {
	case ScanCompleted, ScanFailed, ScanCancelled, ScanTimedOut:
		return true
	default:
		return false
	}
}

// ParseScanStatus resolves a wire name to a status
func ParseScanStatus(name string) (ScanStatus, error) {
	for i, n := range scanStatusNames {
		if strings.EqualFold(n, name) {
			return ScanStatus(i), nil
		}
	}
	return 0, fmt.Errorf("unknown scan status %q", name)
}

// MarshalJSON encodes the status as its wire name
func (s ScanStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON accepts either the wire name or the integer ordinal
func (s *ScanStatus) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		parsed, perr := ParseScanStatus(name)
		if perr != nil {
			return perr
		}
		*s = parsed
		return nil
	}
	var ordinal int
	if err := json.Unmarshal(data, &ordinal); err != nil {
		return fmt.Errorf("invalid scan status: %s", string(data))
	}
	*s = ScanStatus(ordinal)
	if !s.Valid() {
		return fmt.Errorf("unknown scan status ordinal %d", ordinal)
	}
	return nil
}

// SourceType says where a server's code or artifact comes from, which in turn
// selects the scan strategy.
type SourceType int

const (
	SourceExternalRepo SourceType = iota
	SourceInternalRepo
	SourceLocalDeclared
	SourceContainerImage
	SourcePackageArtifact
)

var sourceTypeNames = []string{
	"ExternalRepo",
	"InternalRepo",
	"LocalDeclared",
	"ContainerImage",
	"PackageArtifact",
}

// String returns the wire name of the source type
func (t SourceType) String() string {
	if t < 0 || int(t) >= len(sourceTypeNames) {
		return fmt.Sprintf("SourceType(%d)", int(t))
	}
	return sourceTypeNames[t]
}

// Valid reports whether the source type is one of the declared values
func (t SourceType) Valid() bool {
	return t >= 0 && int(t) < len(sourceTypeNames)
}

// ParseSourceType resolves a wire name to a source type
func ParseSourceType(name string) (SourceType, error) {
	for i, n := range sourceTypeNames {
		if strings.EqualFold(n, name) {
			return SourceType(i), nil
		}
	}
	return 0, fmt.Errorf("unknown source type %q", name)
}

// MarshalJSON encodes the source type as its wire name
func (t SourceType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON accepts either the wire name or the integer ordinal
func (t *SourceType) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		parsed, perr := ParseSourceType(name)
		if perr != nil {
			return perr
		}
		*t = parsed
		return nil
	}
	var ordinal int
	if err := json.Unmarshal(data, &ordinal); err != nil {
		return fmt.Errorf("invalid source type: %s", string(data))
	}
	*t = SourceType(ordinal)
	if !t.Valid() {
		return fmt.Errorf("unknown source type ordinal %d", ordinal)
	}
	return nil
}

// ApprovalAction is the administrative decision recorded against a server.
type ApprovalAction int

const (
	ActionApproved ApprovalAction = iota
	ActionDenied
	ActionDeprecated
	ActionSuspended
	ActionReinstated
	ActionRevoked
)

var approvalActionNames = []string{
	"Approved",
	"Denied",
	"Deprecated",
	"Suspended",
	"Reinstated",
	"Revoked",
}

// String returns the wire name of the action
func (a ApprovalAction) String() string {
	if a < 0 || int(a) >= len(approvalActionNames) {
		return fmt.Sprintf("ApprovalAction(%d)", int(a))
	}
	return approvalActionNames[a]
}

// Valid reports whether the action is one of the declared values
func (a ApprovalAction) Valid() bool {
	return a >= 0 && int(a) < len(approvalActionNames)
}

// ParseApprovalAction resolves a wire name to an action
func ParseApprovalAction(name string) (ApprovalAction, error) {
	for i, n := range approvalActionNames {
		if strings.EqualFold(n, name) {
			return ApprovalAction(i), nil
		}
	}
	return 0, fmt.Errorf("unknown approval action %q", name)
}

// MarshalJSON encodes the action as its wire name
func (a ApprovalAction) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON accepts either the wire name or the integer ordinal
func (a *ApprovalAction) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		parsed, perr := ParseApprovalAction(name)
		if perr != nil {
			return perr
		}
		*a = parsed
		return nil
	}
	var ordinal int
	if err := json.Unmarshal(data, &ordinal); err != nil {
		return fmt.Errorf("invalid approval action: %s", string(data))
	}
	*a = ApprovalAction(ordinal)
	if !a.Valid() {
		return fmt.Errorf("unknown approval action ordinal %d", ordinal)
	}
	return nil
}

// Decision is the verdict attached to a single tool invocation.
type Decision int

const (
	DecisionAllowed Decision = iota
	DecisionDeniedServerNotApproved
	DecisionDeniedToolDenylisted
	DecisionDeniedTeamNotAuthorized
	DecisionDeniedHighRisk
	DecisionDeniedRateLimited
	DecisionDeniedPayloadTooLarge
	DecisionTimedOut
	DecisionError
)

var decisionNames = []string{
	"Allowed",
	"DeniedServerNotApproved",
	"DeniedToolDenylisted",
	"DeniedTeamNotAuthorized",
	"DeniedHighRisk",
	"DeniedRateLimited",
	"DeniedPayloadTooLarge",
	"TimedOut",
	"Error",
}

// String returns the wire name of the decision
func (d Decision) String() string {
	if d < 0 || int(d) >= len(decisionNames) {
		return fmt.Sprintf("Decision(%d)", int(d))
	}
	return decisionNames[d]
}

// Valid reports whether the decision is one of the declared values
func (d Decision) Valid() bool {
	return d >= 0 && int(d) < len(decisionNames)
}

// Allowed reports whether the decision permits the call to proceed
func (d Decision) Allowed() bool {
	return d == DecisionAllowed
}

// ParseDecision resolves a wire name to a decision
func ParseDecision(name string) (Decision, error) {
	for i, n := range decisionNames {
		if strings.EqualFold(n, name) {
			return Decision(i), nil
		}
	}
	return 0, fmt.Errorf("unknown decision %q", name)
}

// MarshalJSON encodes the decision as its wire name
func (d Decision) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON accepts either the wire name or the integer ordinal
func (d *Decision) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		parsed, perr := ParseDecision(name)
		if perr != nil {
			return perr
		}
		*d = parsed
		return nil
	}
	var ordinal int
	if err := json.Unmarshal(data, &ordinal); err != nil {
		return fmt.Errorf("invalid decision: %s", string(data))
	}
	*d = Decision(ordinal)
	if !d.Valid() {
		return fmt.Errorf("unknown decision ordinal %d", ordinal)
	}
	return nil
}

// Severity grades a scan issue. Severities travel inside the issues JSON
// column, so they stay strings rather than ordinals.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// ParseSeverity maps arbitrary scanner vocabulary onto the known grades.
// Unknown values degrade to info rather than failing the whole report.
func ParseSeverity(raw string) Severity {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "critical", "crit", "fatal":
		return SeverityCritical
	case "error", "high", "err":
		return SeverityError
	case "warning", "warn", "medium":
		return SeverityWarning
	default:
		return SeverityInfo
	}
}
