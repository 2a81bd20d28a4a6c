package models

import "time"

type ScanPhase string

const (
	PhaseStart       ScanPhase = "START"
	PhaseFingerprint ScanPhase = "FINGERPRINT"
	PhaseScan        ScanPhase = "SCAN"
	PhaseSkipScan    ScanPhase = "SKIP_SCAN"
	PhaseScore       ScanPhase = "SCORE"
	PhaseSummarize   ScanPhase = "SUMMARIZE"
	PhaseDone        ScanPhase = "DONE"
	PhaseError       ScanPhase = "ERROR"
)

const (
	ScanStatusRunning = "running"
	ScanStatusDone    = "done"
	ScanStatusError   = "error"
)

type ScanSummary struct {
	TotalFindings    int       `json:"total_vulnerabilities" yaml:"total_vulnerabilities"`
	CriticalFindings int       `json:"critical_count" yaml:"critical_count"`
	HighFindings     int       `json:"high_count" yaml:"high_count"`
	MediumFindings   int       `json:"medium_count" yaml:"medium_count"`
	Confidence       int       `json:"v2_confidence" yaml:"v2_confidence"`
	Family           Family    `json:"amm_type" yaml:"amm_type"`
	FilesFound       int       `json:"v2_files_found" yaml:"v2_files_found"`
	SourceFiles      int       `json:"source_files" yaml:"source_files"`
	Timestamp        time.Time `json:"scan_timestamp" yaml:"scan_timestamp"`
}

type ScanResult struct {
	ScanID       string             `json:"scan_id" yaml:"scan_id"`
	Protocol     ProtocolMetadata   `json:"protocol" yaml:"protocol"`
	SourcePath   string             `json:"source_path" yaml:"source_path"`
	SourceDigest string             `json:"source_digest,omitempty" yaml:"source_digest,omitempty"`
	Status       string             `json:"status" yaml:"status"`
	Phase        ScanPhase          `json:"phase" yaml:"phase"`
	Fingerprint  *FingerprintResult `json:"fingerprint" yaml:"fingerprint"`
	Findings     []Finding          `json:"vulnerabilities" yaml:"vulnerabilities"`
	Risk         *RiskAssessment    `json:"risk_assessment" yaml:"risk_assessment"`
	Summary      ScanSummary        `json:"scan_summary" yaml:"scan_summary"`
	Error        string             `json:"error,omitempty" yaml:"error,omitempty"`
	StartTime    time.Time          `json:"start_time" yaml:"start_time"`
	EndTime      time.Time          `json:"end_time" yaml:"end_time"`
}

// Score returns the overall risk score, or 0 when no assessment exists.
func (r *ScanResult) Score() float64 {
	if r == nil || r.Risk == nil {
		return 0
	}
	return r.Risk.OverallScore
}

func (r *ScanResult) Level() RiskLevel {
	if r == nil || r.Risk == nil {
		return RiskLevelMinimal
	}
	return r.Risk.Level
}

func (r *ScanResult) Failed() bool { return r != nil && r.Status == ScanStatusError }

func (r *ScanResult) Duration() time.Duration {
	if r.EndTime.IsZero() {
		return 0
	}
	return r.EndTime.Sub(r.StartTime)
}

type ScanStats struct {
	TotalScans       int64 `json:"total_scans"`
	CompletedScans   int64 `json:"completed_scans"`
	FailedScans      int64 `json:"failed_scans"`
	SkippedTargets   int64 `json:"skipped_targets"`
	GatedScans       int64 `json:"gated_scans"`
	ActiveScans      int   `json:"active_scans"`
	TotalFindings    int64 `json:"total_findings"`
	CriticalFindings int64 `json:"critical_findings"`
}
