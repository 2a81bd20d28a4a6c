package models

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

const (
	ReportTypeSummary  = "SCAN_SUMMARY"
	ReportTypeProtocol = "PROTOCOL_DETAILED"

	ReportFormatJSON = "json"
	ReportFormatYAML = "yaml"
	ReportFormatTXT  = "txt"
	ReportFormatCSV  = "csv"
)

var (
	allowedReportTypes   = map[string]bool{ReportTypeSummary: true, ReportTypeProtocol: true}
	allowedReportFormats = map[string]bool{ReportFormatJSON: true, ReportFormatYAML: true, ReportFormatTXT: true, ReportFormatCSV: true}

	filenameSanitizer = regexp.MustCompile(`[^\w\-.]+`)
)

func IsReportFormat(f string) bool { return allowedReportFormats[f] }

type Report struct {
	ID              string           `json:"report_id" yaml:"report_id"`
	Type            string           `json:"report_type" yaml:"report_type"`
	GeneratedAt     time.Time        `json:"timestamp" yaml:"timestamp"`
	Metadata        ReportMetadata   `json:"metadata" yaml:"metadata"`
	Summary         *ReportSummary   `json:"scan_statistics,omitempty" yaml:"scan_statistics,omitempty"`
	Protocols       []ProtocolEntry  `json:"protocols,omitempty" yaml:"protocols,omitempty"`
	Protocol        *ProtocolSection `json:"protocol_info,omitempty" yaml:"protocol_info,omitempty"`
	Recommendations []string         `json:"recommendations" yaml:"recommendations"`
}

type ReportMetadata struct {
	ToolName    string `json:"tool_name" yaml:"tool_name"`
	ToolVersion string `json:"tool_version" yaml:"tool_version"`
	Target      string `json:"target" yaml:"target"`
}

type ReportSummary struct {
	TotalProtocols        int               `json:"total_protocols_scanned" yaml:"total_protocols_scanned"`
	FailedProtocols       int               `json:"failed_protocols" yaml:"failed_protocols"`
	CriticalRiskProtocols int               `json:"critical_risk_protocols" yaml:"critical_risk_protocols"`
	HighRiskProtocols     int               `json:"high_risk_protocols" yaml:"high_risk_protocols"`
	ByLevel               map[RiskLevel]int `json:"protocols_by_level" yaml:"protocols_by_level"`
	TotalFindings         int               `json:"total_vulnerabilities_found" yaml:"total_vulnerabilities_found"`
	CriticalFindings      int               `json:"critical_vulnerabilities" yaml:"critical_vulnerabilities"`
	HighFindings          int               `json:"high_vulnerabilities" yaml:"high_vulnerabilities"`
	MediumFindings        int               `json:"medium_vulnerabilities" yaml:"medium_vulnerabilities"`
	HighestScore          float64           `json:"highest_score" yaml:"highest_score"`
}

type ProtocolEntry struct {
	Name       string    `json:"name" yaml:"name"`
	ScanID     string    `json:"scan_id" yaml:"scan_id"`
	Score      float64   `json:"overall_score" yaml:"overall_score"`
	Level      RiskLevel `json:"risk_level" yaml:"risk_level"`
	Family     string    `json:"amm_type" yaml:"amm_type"`
	Confidence int       `json:"v2_confidence" yaml:"v2_confidence"`
	Findings   int       `json:"vulnerabilities" yaml:"vulnerabilities"`
	Critical   int       `json:"critical" yaml:"critical"`
	Error      string    `json:"error,omitempty" yaml:"error,omitempty"`
}

type ProtocolSection struct {
	ScanID       string              `json:"scan_id" yaml:"scan_id"`
	Protocol     ProtocolMetadata    `json:"protocol" yaml:"protocol"`
	SourcePath   string              `json:"source_path" yaml:"source_path"`
	SourceDigest string              `json:"source_digest,omitempty" yaml:"source_digest,omitempty"`
	Fingerprint  *FingerprintResult  `json:"fingerprint" yaml:"fingerprint"`
	Risk         *RiskAssessment     `json:"risk_assessment" yaml:"risk_assessment"`
	Summary      ScanSummary         `json:"scan_summary" yaml:"scan_summary"`
	Findings     []ClassifiedFinding `json:"vulnerabilities" yaml:"vulnerabilities"`
}

func (r *Report) Validate() error {
	var problems []string
	if !allowedReportTypes[r.Type] {
		problems = append(problems, fmt.Sprintf("invalid report type: %s", r.Type))
	}
	if r.Type == ReportTypeSummary && r.Summary == nil {
		problems = append(problems, "summary report requires scan statistics")
	}
	if r.Type == ReportTypeProtocol && r.Protocol == nil {
		problems = append(problems, "protocol report requires protocol section")
	}
	if r.GeneratedAt.IsZero() {
		problems = append(problems, "generation time is required")
	}
	if len(problems) > 0 {
		return fmt.Errorf("report validation failed:\n  - %s", strings.Join(problems, "\n  - "))
	}
	return nil
}

// FileName follows scan_summary_<ts>.<ext> and protocol_<name>_<ts>.<ext>.
func (r *Report) FileName(format string) string {
	ts := r.GeneratedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	stamp := ts.Format("20060102_150405")
	if format == "" {
		format = ReportFormatJSON
	}
	if r.Type == ReportTypeProtocol && r.Protocol != nil {
		name := strings.ToLower(strings.ReplaceAll(r.Protocol.Protocol.DisplayName(), " ", "_"))
		name = filenameSanitizer.ReplaceAllString(name, "_")
		return fmt.Sprintf("protocol_%s_%s.%s", name, stamp, format)
	}
	return fmt.Sprintf("scan_summary_%s.%s", stamp, format)
}
