package models

type RiskLevel string

const (
	RiskLevelCritical RiskLevel = "CRITICAL"
	RiskLevelHigh     RiskLevel = "HIGH"
	RiskLevelMedium   RiskLevel = "MEDIUM"
	RiskLevelLow      RiskLevel = "LOW"
	RiskLevelMinimal  RiskLevel = "MINIMAL"
)

const (
	RiskThresholdCritical = 80.0
	RiskThresholdHigh     = 60.0
	RiskThresholdMedium   = 40.0
	RiskThresholdLow      = 20.0
)

// RiskLevelFromScore maps a clamped score onto a level. Lower bounds are
// inclusive.
func RiskLevelFromScore(score float64) RiskLevel {
	switch {
	case score >= RiskThresholdCritical:
		return RiskLevelCritical
	case score >= RiskThresholdHigh:
		return RiskLevelHigh
	case score >= RiskThresholdMedium:
		return RiskLevelMedium
	case score >= RiskThresholdLow:
		return RiskLevelLow
	default:
		return RiskLevelMinimal
	}
}

func (l RiskLevel) Rank() int {
	switch l {
	case RiskLevelCritical:
		return 4
	case RiskLevelHigh:
		return 3
	case RiskLevelMedium:
		return 2
	case RiskLevelLow:
		return 1
	default:
		return 0
	}
}

func (l RiskLevel) AtLeast(other RiskLevel) bool { return l.Rank() >= other.Rank() }

type RiskAssessment struct {
	OverallScore     float64   `json:"overall_score" yaml:"overall_score"`
	Level            RiskLevel `json:"risk_level" yaml:"risk_level"`
	Factors          []string  `json:"risk_factors" yaml:"risk_factors"`
	TotalFindings    int       `json:"vulnerability_count" yaml:"vulnerability_count"`
	CriticalFindings int       `json:"critical_vulnerabilities" yaml:"critical_vulnerabilities"`
	HighFindings     int       `json:"high_vulnerabilities" yaml:"high_vulnerabilities"`
	MediumFindings   int       `json:"medium_vulnerabilities" yaml:"medium_vulnerabilities"`
}
