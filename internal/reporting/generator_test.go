package reporting

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bl4ck0w1/forkhound/pkg/models"
)

func sampleResults() []*models.ScanResult {
	critical := &models.ScanResult{
		ScanID:   "scan_alpha",
		Protocol: models.ProtocolMetadata{Name: "Alpha Swap", TVL: 12_000_000},
		Status:   models.ScanStatusDone,
		Fingerprint: &models.FingerprintResult{
			Family:     models.FamilyPancakeSwap,
			Confidence: 100,
		},
		Findings: []models.Finding{
			{File: "a.sol", Line: 3, Severity: models.SeverityCritical, Pattern: `reserve0\s*/\s*reserve1`, MatchedText: "reserve0 / reserve1"},
			{File: "a.sol", Line: 9, Severity: models.SeverityMedium, Pattern: `IUniswapV2Pair.*balanceOf`},
		},
		Risk: &models.RiskAssessment{OverallScore: 85, Level: models.RiskLevelCritical},
	}
	low := &models.ScanResult{
		ScanID:   "scan_beta",
		Protocol: models.ProtocolMetadata{Name: "Beta"},
		Status:   models.ScanStatusDone,
		Risk:     &models.RiskAssessment{OverallScore: 22, Level: models.RiskLevelLow},
	}
	failed := &models.ScanResult{
		ScanID:   "scan_gamma",
		Protocol: models.ProtocolMetadata{Name: "Gamma"},
		Status:   models.ScanStatusError,
		Error:    "boom",
	}
	return []*models.ScanResult{critical, low, failed}
}

func newTestGenerator(t *testing.T, formats ...string) *ReportGenerator {
	t.Helper()
	rg, err := NewReportGenerator(ReportConfig{OutputDir: t.TempDir(), Formats: formats, ToolVersion: "test"}, nil)
	if err != nil {
		t.Fatalf("NewReportGenerator() error = %v", err)
	}
	rg.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	return rg
}

func TestNewReportGeneratorRejectsUnknownFormat(t *testing.T) {
	if _, err := NewReportGenerator(ReportConfig{OutputDir: t.TempDir(), Formats: []string{"pdf"}}, nil); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestBuildSummary(t *testing.T) {
	rg := newTestGenerator(t)
	report := rg.BuildSummary(sampleResults())
	s := report.Summary
	if s.TotalProtocols != 3 || s.FailedProtocols != 1 || s.CriticalRiskProtocols != 1 {
		t.Errorf("unexpected summary counts: %+v", s)
	}
	if s.TotalFindings != 2 || s.CriticalFindings != 1 || s.MediumFindings != 1 {
		t.Errorf("unexpected finding counts: %+v", s)
	}
	if s.HighestScore != 85 {
		t.Errorf("HighestScore = %v, want 85", s.HighestScore)
	}
	if s.ByLevel[models.RiskLevelMinimal] != 1 {
		t.Errorf("failed scan should count as MINIMAL, got %v", s.ByLevel)
	}
	if report.Protocols[0].Family != "PancakeSwap" || report.Protocols[2].Error != "boom" {
		t.Errorf("unexpected protocol entries: %+v", report.Protocols)
	}
	if err := report.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestGenerateAllWritesHighRiskProtocolsOnly(t *testing.T) {
	rg := newTestGenerator(t, models.ReportFormatJSON, models.ReportFormatTXT)
	generated, err := rg.GenerateAll(sampleResults())
	if err != nil {
		t.Fatalf("GenerateAll() error = %v", err)
	}
	if len(generated) != 4 {
		t.Fatalf("generated %d reports, want 4 (summary and alpha in two formats)", len(generated))
	}
	var protocolReports int
	for _, g := range generated {
		if _, err := os.Stat(g.Path); err != nil {
			t.Errorf("report %s not written: %v", g.Path, err)
		}
		if g.Type == models.ReportTypeProtocol {
			protocolReports++
			if g.Protocol != "Alpha Swap" {
				t.Errorf("unexpected protocol report for %s", g.Protocol)
			}
			if !strings.HasPrefix(filepath.Base(g.Path), "protocol_alpha_swap_20240501_120000") {
				t.Errorf("unexpected file name %s", g.Path)
			}
		}
	}
	if protocolReports != 2 {
		t.Errorf("protocol reports = %d, want 2", protocolReports)
	}
}

func TestProtocolReportClassifiesFindings(t *testing.T) {
	rg := newTestGenerator(t)
	path, err := rg.ExportReport(rg.BuildProtocolReport(sampleResults()[0]), models.ReportFormatJSON)
	if err != nil {
		t.Fatalf("ExportReport() error = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var decoded struct {
		Protocol struct {
			Findings []struct {
				Severity string `json:"severity"`
				Profile  struct {
					Archetype string `json:"vulnerability_type"`
				} `json:"profile"`
			} `json:"vulnerabilities"`
		} `json:"protocol_info"`
		Recommendations []string `json:"recommendations"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(decoded.Protocol.Findings) != 2 {
		t.Fatalf("findings = %d, want 2", len(decoded.Protocol.Findings))
	}
	if got := decoded.Protocol.Findings[0].Profile.Archetype; got != ArchetypePriceManipulation {
		t.Errorf("archetype = %s, want %s", got, ArchetypePriceManipulation)
	}
	if len(decoded.Recommendations) < 3 {
		t.Errorf("expected archetype recommendations, got %v", decoded.Recommendations)
	}
}

func TestExportCompressedAndCleanup(t *testing.T) {
	dir := t.TempDir()
	rg, err := NewReportGenerator(ReportConfig{OutputDir: dir, CompressReports: true}, nil)
	if err != nil {
		t.Fatalf("NewReportGenerator() error = %v", err)
	}
	path, err := rg.ExportReport(rg.BuildSummary(sampleResults()), models.ReportFormatCSV)
	if err != nil {
		t.Fatalf("ExportReport() error = %v", err)
	}
	if !strings.HasSuffix(path, ".csv.gz") {
		t.Errorf("path = %s, want .csv.gz suffix", path)
	}
	if _, err := os.Stat(strings.TrimSuffix(path, ".gz")); !os.IsNotExist(err) {
		t.Errorf("uncompressed report should be removed")
	}

	old := time.Now().Add(-48 * time.Hour)
	if err := os.Chtimes(path, old, old); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	removed, err := rg.CleanupOldReports(24 * time.Hour)
	if err != nil {
		t.Fatalf("CleanupOldReports() error = %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
}

func TestPresenterLimitsFindings(t *testing.T) {
	r := sampleResults()[0]
	for i := 0; i < 15; i++ {
		r.Findings = append(r.Findings, models.Finding{File: "b.sol", Line: i + 1, Severity: models.SeverityHigh, Pattern: `function.*view.*getReserves`, LineContent: "function f() view"})
	}
	var buf bytes.Buffer
	p := NewPresenter(nil, nil)
	if err := p.PrintAnalysis(&buf, []*models.ScanResult{r}); err != nil {
		t.Fatalf("PrintAnalysis() error = %v", err)
	}
	out := buf.String()
	if strings.Contains(out, "[11]") {
		t.Error("more than ten findings rendered")
	}
	if !strings.Contains(out, "[10] HIGH Direct Reserves Price Oracle") {
		t.Errorf("missing tenth finding in output:\n%s", out)
	}
	if !strings.Contains(out, "and 6 more") {
		t.Errorf("missing remainder line in output:\n%s", out)
	}
	if strings.Contains(out, "MEDIUM") {
		t.Error("medium findings should not be rendered")
	}
}

func TestPrintSummaryTable(t *testing.T) {
	var buf bytes.Buffer
	if err := NewPresenter(nil, nil).PrintSummaryTable(&buf, sampleResults()); err != nil {
		t.Fatalf("PrintSummaryTable() error = %v", err)
	}
	out := buf.String()
	for _, want := range []string{"Alpha Swap", "PancakeSwap", "error: boom", "UNKNOWN"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary table missing %q:\n%s", want, out)
		}
	}
}
