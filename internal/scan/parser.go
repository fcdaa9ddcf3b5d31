// Package scan runs security analysis over registered servers. The
// orchestrator launches scanner workloads through a scheduler backend, the
// reconciler drives running scans to a terminal state, and the parser turns
// scanner output into persisted results.
package scan

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/vantagesec/mcpwarden/internal/models"
)

// ErrUnparsableReport is returned when scanner output contains no decodable
// JSON report.
var ErrUnparsableReport = errors.New("unparsable scan report")

// report is the scanner's output document. Scanners ship independently of the
// registry, so the decoder tolerates unknown fields and absent sections.
type report struct {
	RiskScore      *float64      `json:"risk_score"`
	ScannerVersion string        `json:"scanner_version"`
	Summary        string        `json:"summary"`
	Issues         []reportIssue `json:"issues"`
	Tools          []reportTool  `json:"tools"`
}

type reportIssue struct {
	Code           string `json:"code"`
	Severity       string `json:"severity"`
	Message        string `json:"message"`
	AffectedEntity string `json:"affected_entity"`
	Remediation    string `json:"remediation"`
}

type reportTool struct {
	Name            string            `json:"name"`
	Description     string            `json:"description"`
	DescriptionHash string            `json:"description_hash"`
	Labels          models.ToolLabels `json:"labels"`
}

// Result is a parsed scan report, normalized and ready to persist.
type Result struct {
	RiskScore       float64
	ScannerVersion  string
	Summary         string
	Issues          models.IssueList
	DiscoveredTools models.ToolList

	// Raw is the input the result was parsed from, kept verbatim for audit.
	Raw string
}

// ParseReport decodes scanner output into a Result. Workload logs can carry
// progress lines before the report, so decoding starts at the first opening
// brace and ignores anything after the document.
//
// A missing risk_score defaults to 0. Scores above 1.0 are taken to be on the
// scanner's 0-100 scale and divided by 100 once, then clamped to the unit
// interval. Unknown issue severities degrade to info instead of failing the
// report.
func ParseReport(raw string) (*Result, error) {
	start := strings.IndexByte(raw, '{')
	if start < 0 {
		return nil, fmt.Errorf("%w: no JSON document in %d bytes of output", ErrUnparsableReport, len(raw))
	}

	var doc report
	dec := json.NewDecoder(strings.NewReader(raw[start:]))
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnparsableReport, err)
	}

	result := &Result{
		ScannerVersion:  doc.ScannerVersion,
		Summary:         doc.Summary,
		Issues:          make(models.IssueList, 0, len(doc.Issues)),
		DiscoveredTools: make(models.ToolList, 0, len(doc.Tools)),
		Raw:             raw,
	}

	if doc.RiskScore != nil {
		result.RiskScore = normalizeRiskScore(*doc.RiskScore)
	}

	for _, issue := range doc.Issues {
		if strings.TrimSpace(issue.Message) == "" {
			continue
		}
		result.Issues = append(result.Issues, models.ScanIssue{
			Code:           issue.Code,
			Severity:       models.ParseSeverity(issue.Severity),
			Message:        issue.Message,
			AffectedEntity: issue.AffectedEntity,
			Remediation:    issue.Remediation,
		})
	}

	for _, tool := range doc.Tools {
		if strings.TrimSpace(tool.Name) == "" {
			continue
		}
		result.DiscoveredTools = append(result.DiscoveredTools, models.DiscoveredTool{
			Name:            tool.Name,
			Description:     tool.Description,
			DescriptionHash: tool.DescriptionHash,
			Labels:          clampLabels(tool.Labels),
		})
	}

	return result, nil
}

// normalizeRiskScore maps a raw scanner score onto the unit interval. The
// 0-100 rescale happens at most once, before clamping, so 250 becomes 1.0
// rather than 0.025.
func normalizeRiskScore(score float64) float64 {
	if score > 1.0 {
		score = score / 100.0
	}
	return clampUnit(score)
}

// clampLabels bounds every behavioral confidence to the unit interval.
func clampLabels(labels models.ToolLabels) models.ToolLabels {
	return models.ToolLabels{
		IsPublicSink:     clampUnit(labels.IsPublicSink),
		Destructive:      clampUnit(labels.Destructive),
		UntrustedContent: clampUnit(labels.UntrustedContent),
		PrivateData:      clampUnit(labels.PrivateData),
	}
}

func clampUnit(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
