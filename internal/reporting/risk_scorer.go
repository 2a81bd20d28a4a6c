package reporting

import (
	"fmt"
	"math"

	"github.com/bl4ck0w1/forkhound/pkg/models"
)

const (
	maxRiskScore = 100.0

	veryNewAgeDays       = 30
	relativelyNewAgeDays = 90
	veryNewScore         = 15.0
	relativelyNewScore   = 8.0

	noAuditScore     = 12.0
	singleAuditScore = 6.0

	ammUsageConfidence = 50
	ammUsageScore      = 10.0
	familyUsageScore   = 5.0

	highTVL          = 1_000_000.0
	moderateTVL      = 100_000.0
	highTVLScore     = 15.0
	moderateTVLScore = 8.0
)

type severityWeight struct {
	severity   models.Severity
	weight     float64
	multiplier float64
}

// RiskScorer combines findings, fingerprint and protocol metadata into a
// clamped 0-100 score. It holds no mutable state.
type RiskScorer struct {
	severityWeights []severityWeight
}

func NewRiskScorer() *RiskScorer {
	return &RiskScorer{
		severityWeights: []severityWeight{
			{models.SeverityCritical, 10, 2.0},
			{models.SeverityHigh, 6, 1.5},
			{models.SeverityMedium, 3, 1.0},
		},
	}
}

func (rs *RiskScorer) Assess(protocol models.ProtocolMetadata, findings []models.Finding, fp *models.FingerprintResult) models.RiskAssessment {
	if fp == nil {
		fp = models.EmptyFingerprint()
	}
	factors := make([]string, 0, 8)

	score := rs.findingScore(findings, &factors)
	score += maturityScore(protocol, &factors)
	score += fingerprintScore(fp, &factors)
	score += economicScore(protocol, &factors)

	if math.IsNaN(score) || score < 0 {
		score = 0
	}
	if score > maxRiskScore {
		score = maxRiskScore
	}

	stats := models.CountFindings(findings)
	return models.RiskAssessment{
		OverallScore:     score,
		Level:            models.RiskLevelFromScore(score),
		Factors:          factors,
		TotalFindings:    stats.Total,
		CriticalFindings: stats.Critical,
		HighFindings:     stats.High,
		MediumFindings:   stats.Medium,
	}
}

func (rs *RiskScorer) findingScore(findings []models.Finding, factors *[]string) float64 {
	counts := make(map[models.Severity]int, len(rs.severityWeights))
	for _, f := range findings {
		counts[f.Severity]++
	}
	score := 0.0
	for _, sw := range rs.severityWeights {
		n := counts[sw.severity]
		if n == 0 {
			continue
		}
		score += float64(n) * sw.weight * sw.multiplier
		*factors = append(*factors, fmt.Sprintf("%d %s vulnerabilities found", n, sw.severity))
	}
	return score
}

func maturityScore(p models.ProtocolMetadata, factors *[]string) float64 {
	score := 0.0
	switch {
	case p.AgeDays < veryNewAgeDays:
		score += veryNewScore
		*factors = append(*factors, "Protocol is very new (< 30 days)")
	case p.AgeDays < relativelyNewAgeDays:
		score += relativelyNewScore
		*factors = append(*factors, "Protocol is relatively new (< 90 days)")
	}

	switch p.Audits {
	case 0:
		score += noAuditScore
		*factors = append(*factors, "No security audits conducted")
	case 1:
		score += singleAuditScore
		*factors = append(*factors, "Only 1 security audit conducted")
	}
	return score
}

func fingerprintScore(fp *models.FingerprintResult, factors *[]string) float64 {
	score := 0.0
	if fp.Confidence > ammUsageConfidence {
		score += ammUsageScore
		*factors = append(*factors, "Uses forked AMM for critical operations")
	}
	if fp.Family != "" && fp.Family != models.FamilyUnknown {
		score += familyUsageScore
		*factors = append(*factors, fmt.Sprintf("Uses %s specifically", fp.Family.Label()))
	}
	return score
}

func economicScore(p models.ProtocolMetadata, factors *[]string) float64 {
	tvl := p.TVL
	if math.IsNaN(tvl) {
		tvl = 0
	}
	switch {
	case tvl > highTVL:
		*factors = append(*factors, "High TVL - significant user funds at risk")
		return highTVLScore
	case tvl > moderateTVL:
		*factors = append(*factors, "Moderate TVL - user funds at risk")
		return moderateTVLScore
	}
	return 0
}
