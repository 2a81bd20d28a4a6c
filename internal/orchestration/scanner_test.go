package orchestration

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/bl4ck0w1/forkhound/pkg/models"
	"github.com/bl4ck0w1/forkhound/pkg/utils"
	"github.com/sirupsen/logrus"
)

const oracleSource = `pragma solidity ^0.6.12;
import "./interfaces/IUniswapV2Pair.sol";

contract SpotOracle {
    function spotPrice(address pair) external view returns (uint) { (uint112 a, uint112 b,) = IUniswapV2Pair(pair).getReserves(); return a; }
}
`

const plainSource = `pragma solidity ^0.8.19;
contract Vault {
    function share(uint reserve0, uint reserve1) external pure returns (uint) { return reserve0 / reserve1; }
}
`

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	return root
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func newTestScanner(metrics *utils.MetricsCollector) *Scanner {
	return NewScanner(ScanConfig{MaxConcurrentScans: 2, FileWorkers: 2}, metrics, quietLogger())
}

func TestScanProtocolFlagsNewUnauditedFork(t *testing.T) {
	root := writeTree(t, map[string]string{"contracts/SpotOracle.sol": oracleSource})
	meta := models.ProtocolMetadata{Name: "Fresh Fork", AgeDays: 10, Audits: 0, TVL: 2_000_000}

	got := newTestScanner(nil).ScanProtocol(context.Background(), meta, root)

	if got.Failed() {
		t.Fatalf("scan failed: %s", got.Error)
	}
	if got.Phase != models.PhaseDone || got.Status != models.ScanStatusDone {
		t.Errorf("Phase = %s, Status = %s", got.Phase, got.Status)
	}
	if got.Fingerprint.Family != models.FamilyUniswapV2 || got.Fingerprint.Confidence != 85 {
		t.Errorf("fingerprint = %s/%d, want Uniswap V2/85", got.Fingerprint.Family, got.Fingerprint.Confidence)
	}
	if got.Summary.CriticalFindings == 0 {
		t.Errorf("expected at least one CRITICAL finding, got %+v", got.Findings)
	}
	if !got.Level().AtLeast(models.RiskLevelHigh) {
		t.Errorf("Level = %s (%.1f), want at least HIGH", got.Level(), got.Score())
	}
	if got.SourceDigest == "" {
		t.Error("SourceDigest should be recorded")
	}
	if got.Summary.FilesFound != 1 || got.Summary.SourceFiles != 1 {
		t.Errorf("Summary = %+v", got.Summary)
	}
}

func TestScanProtocolGatesPatternScan(t *testing.T) {
	root := writeTree(t, map[string]string{"Vault.sol": plainSource})

	s := newTestScanner(nil)
	got := s.ScanProtocol(context.Background(), models.ProtocolMetadata{Name: "Vault"}, root)

	if got.Failed() {
		t.Fatalf("scan failed: %s", got.Error)
	}
	if got.Fingerprint.Confidence != 0 || got.Fingerprint.Family != models.FamilyUnknown {
		t.Errorf("fingerprint = %+v, want unknown/0", got.Fingerprint)
	}
	if got.Findings == nil || len(got.Findings) != 0 {
		t.Errorf("Findings = %#v, want empty non-nil slice", got.Findings)
	}
	if got.Risk == nil || got.Risk.TotalFindings != 0 {
		t.Errorf("Risk = %+v, want assessment without findings", got.Risk)
	}
	if s.Stats().GatedScans != 1 {
		t.Errorf("GatedScans = %d, want 1", s.Stats().GatedScans)
	}
}

func TestScanProtocolRecordsErrors(t *testing.T) {
	got := newTestScanner(nil).ScanProtocol(context.Background(), models.ProtocolMetadata{Name: "Gone"}, filepath.Join(t.TempDir(), "missing"))
	if !got.Failed() || got.Phase != models.PhaseError {
		t.Fatalf("Status = %s, Phase = %s, want error", got.Status, got.Phase)
	}
	if got.Error == "" {
		t.Error("Error message should be recorded")
	}
	if got.Score() != 0 || got.Findings != nil {
		t.Errorf("errored result should carry no score or findings: %+v", got)
	}
}

func TestScanProtocolCancelled(t *testing.T) {
	root := writeTree(t, map[string]string{"SpotOracle.sol": oracleSource})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := newTestScanner(nil)
	got := s.ScanProtocol(ctx, models.ProtocolMetadata{Name: "Cancelled"}, root)
	if !got.Failed() {
		t.Fatalf("expected cancelled scan to fail, got %+v", got)
	}
	if len(s.ActiveScans()) != 0 {
		t.Error("cancelled scan still registered as active")
	}
}

func TestBatchScanSkipsAndSorts(t *testing.T) {
	risky := writeTree(t, map[string]string{
		"contracts/SpotOracle.sol":   oracleSource,
		"contracts/IPancakePair.sol": "interface IPancakePair { function getReserves() external view; }",
	})
	calm := writeTree(t, map[string]string{"Vault.sol": plainSource})

	targets := []Target{
		{Protocol: models.ProtocolMetadata{Name: "Calm", AgeDays: 400, Audits: 3}, SourcePath: calm},
		{Protocol: models.ProtocolMetadata{Name: "No Repo"}, SourcePath: ""},
		{Protocol: models.ProtocolMetadata{Name: "Risky", AgeDays: 5, TVL: 500_000}, SourcePath: risky},
	}

	s := newTestScanner(nil)
	results := s.BatchScan(context.Background(), targets)

	if len(results) != 2 {
		t.Fatalf("BatchScan() returned %d results, want 2", len(results))
	}
	if results[0].Protocol.Name != "Risky" || results[1].Protocol.Name != "Calm" {
		t.Errorf("order = [%s %s], want [Risky Calm]", results[0].Protocol.Name, results[1].Protocol.Name)
	}
	if results[0].Score() < results[1].Score() {
		t.Errorf("results not sorted descending: %.1f < %.1f", results[0].Score(), results[1].Score())
	}
	stats := s.Stats()
	if stats.SkippedTargets != 1 || stats.TotalScans != 2 || stats.CompletedScans != 2 {
		t.Errorf("Stats() = %+v", stats)
	}
}

func TestBatchScanIsolatesFailures(t *testing.T) {
	ok := writeTree(t, map[string]string{"SpotOracle.sol": oracleSource})
	file := filepath.Join(t.TempDir(), "not-a-dir.sol")
	if err := os.WriteFile(file, []byte(oracleSource), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	results := newTestScanner(nil).BatchScan(context.Background(), []Target{
		{Protocol: models.ProtocolMetadata{Name: "File"}, SourcePath: file},
		{Protocol: models.ProtocolMetadata{Name: "Ok"}, SourcePath: ok},
	})
	if len(results) != 1 || results[0].Protocol.Name != "Ok" || results[0].Failed() {
		t.Fatalf("unexpected results: %+v", results)
	}
}

func TestScanProtocolIdempotent(t *testing.T) {
	root := writeTree(t, map[string]string{"a/SpotOracle.sol": oracleSource, "b/Vault.sol": plainSource})
	meta := models.ProtocolMetadata{Name: "Stable", AgeDays: 45, Audits: 1, TVL: 50_000}
	s := newTestScanner(nil)

	first := s.ScanProtocol(context.Background(), meta, root)
	second := s.ScanProtocol(context.Background(), meta, root)

	if !reflect.DeepEqual(first.Findings, second.Findings) {
		t.Error("findings differ between runs")
	}
	if !reflect.DeepEqual(first.Risk, second.Risk) || first.SourceDigest != second.SourceDigest {
		t.Error("risk or digest differ between runs")
	}
	if first.ScanID == second.ScanID {
		t.Error("scan ids should be unique per run")
	}
}

func TestCancelScanUnknown(t *testing.T) {
	err := newTestScanner(nil).CancelScan("scan_missing")
	if !errors.Is(err, ErrScanNotFound) {
		t.Errorf("CancelScan() error = %v, want ErrScanNotFound", err)
	}
}

func TestSortByRiskStable(t *testing.T) {
	mk := func(name string, score float64, withRisk bool) *models.ScanResult {
		r := &models.ScanResult{Protocol: models.ProtocolMetadata{Name: name}}
		if withRisk {
			r.Risk = &models.RiskAssessment{OverallScore: score}
		}
		return r
	}
	results := []*models.ScanResult{mk("a", 10, true), mk("b", 0, false), mk("c", 40, true), mk("d", 10, true), mk("e", 0, true)}
	SortByRisk(results)

	var order []string
	for _, r := range results {
		order = append(order, r.Protocol.Name)
	}
	if want := []string{"c", "a", "d", "b", "e"}; !reflect.DeepEqual(order, want) {
		t.Errorf("order = %v, want %v", order, want)
	}
}

func TestScanMetricsRecorded(t *testing.T) {
	root := writeTree(t, map[string]string{"SpotOracle.sol": oracleSource})
	metrics := utils.NewMetricsCollector(false)
	newTestScanner(metrics).ScanProtocol(context.Background(), models.ProtocolMetadata{Name: "Metered"}, root)

	families, err := metrics.GetRegistry().Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	seen := map[string]bool{}
	for _, mf := range families {
		seen[mf.GetName()] = true
	}
	for _, name := range []string{metricScans, metricFindings, metricDuration, metricRisk} {
		if !seen[name] {
			t.Errorf("metric %s not exported", name)
		}
	}
}
