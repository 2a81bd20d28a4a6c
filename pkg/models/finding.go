package models

import (
	"fmt"
	"strings"
)

type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
)

// Rank orders severities for sorting; unknown severities rank 0.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityHigh:
		return 2
	case SeverityMedium:
		return 1
	default:
		return 0
	}
}

func (s Severity) String() string { return string(s) }

func ParseSeverity(s string) (Severity, error) {
	switch Severity(strings.ToUpper(strings.TrimSpace(s))) {
	case SeverityCritical:
		return SeverityCritical, nil
	case SeverityHigh:
		return SeverityHigh, nil
	case SeverityMedium:
		return SeverityMedium, nil
	}
	return "", fmt.Errorf("invalid severity: %s", s)
}

type Finding struct {
	File        string   `json:"file" yaml:"file"`
	Line        int      `json:"line" yaml:"line"`
	Severity    Severity `json:"severity" yaml:"severity"`
	SignatureID string   `json:"signature_id" yaml:"signature_id"`
	Pattern     string   `json:"pattern" yaml:"pattern"`
	MatchedText string   `json:"matched_text" yaml:"matched_text"`
	LineContent string   `json:"line_content" yaml:"line_content"`
}

func (f Finding) Location() string {
	return fmt.Sprintf("%s:%d", f.File, f.Line)
}

func (f Finding) IsHighImpact() bool {
	return f.Severity == SeverityCritical || f.Severity == SeverityHigh
}

type FindingStats struct {
	Total    int `json:"total" yaml:"total"`
	Critical int `json:"critical" yaml:"critical"`
	High     int `json:"high" yaml:"high"`
	Medium   int `json:"medium" yaml:"medium"`
}

func CountFindings(findings []Finding) FindingStats {
	stats := FindingStats{Total: len(findings)}
	for _, f := range findings {
		switch f.Severity {
		case SeverityCritical:
			stats.Critical++
		case SeverityHigh:
			stats.High++
		case SeverityMedium:
			stats.Medium++
		}
	}
	return stats
}

// VulnerabilityProfile is the human-facing description attached to a finding
// at presentation time. It never feeds the risk score.
type VulnerabilityProfile struct {
	Archetype         string   `json:"vulnerability_type" yaml:"vulnerability_type"`
	Name              string   `json:"name" yaml:"name"`
	Type              string   `json:"type" yaml:"type"`
	ExploitScenario   string   `json:"exploit_scenario" yaml:"exploit_scenario"`
	AffectedContracts []string `json:"affected_contracts" yaml:"affected_contracts"`
	Impact            string   `json:"impact" yaml:"impact"`
	AffectedPools     []string `json:"affected_pools" yaml:"affected_pools"`
	Address           string   `json:"address,omitempty" yaml:"address,omitempty"`
}

type ClassifiedFinding struct {
	Finding `json:",inline" yaml:",inline"`
	Profile VulnerabilityProfile `json:"profile" yaml:"profile"`
}
