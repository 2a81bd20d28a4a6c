package reporting

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bl4ck0w1/forkhound/internal/reporting/formatters"
	"github.com/bl4ck0w1/forkhound/pkg/models"
	"github.com/bl4ck0w1/forkhound/pkg/utils"
	"github.com/sirupsen/logrus"
)

type Formatter interface {
	Format(report *models.Report) ([]byte, error)
	FileExtension() string
}

type ReportConfig struct {
	OutputDir       string        `yaml:"output_dir" json:"output_dir"`
	Formats         []string      `yaml:"formats" json:"formats"`
	CompressReports bool          `yaml:"compress_reports" json:"compress_reports"`
	MaxReportAge    time.Duration `yaml:"max_report_age" json:"max_report_age"`
	ToolVersion     string        `yaml:"tool_version" json:"tool_version"`
}

type GeneratedReport struct {
	Type     string `json:"type"`
	Format   string `json:"format"`
	Path     string `json:"path"`
	Protocol string `json:"protocol,omitempty"`
}

type ReportFile struct {
	Name    string    `json:"name"`
	Path    string    `json:"path"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

type ReportGenerator struct {
	formatters map[string]Formatter
	classifier *Classifier
	logger     *logrus.Logger
	mu         sync.RWMutex
	config     ReportConfig
	now        func() time.Time
}

func NewReportGenerator(config ReportConfig, logger *logrus.Logger) (*ReportGenerator, error) {
	if logger == nil {
		logger = logrus.New()
	}
	if config.OutputDir == "" {
		config.OutputDir = "./reports"
	}
	if len(config.Formats) == 0 {
		config.Formats = []string{models.ReportFormatJSON}
	}
	if err := utils.EnsureDir(config.OutputDir); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	rg := &ReportGenerator{
		formatters: make(map[string]Formatter),
		classifier: NewClassifier(logger),
		logger:     logger,
		config:     config,
		now:        time.Now,
	}
	rg.RegisterFormatter(models.ReportFormatJSON, &formatters.JSONFormatter{})
	rg.RegisterFormatter(models.ReportFormatYAML, &formatters.YAMLFormatter{})
	rg.RegisterFormatter(models.ReportFormatTXT, &formatters.TXTFormatter{})
	rg.RegisterFormatter(models.ReportFormatCSV, &formatters.CSVFormatter{})

	for _, f := range config.Formats {
		if _, ok := rg.formatters[f]; !ok {
			return nil, fmt.Errorf("unsupported report format: %s", f)
		}
	}
	return rg, nil
}

func (rg *ReportGenerator) RegisterFormatter(name string, formatter Formatter) {
	rg.mu.Lock()
	defer rg.mu.Unlock()
	rg.formatters[name] = formatter
}

func (rg *ReportGenerator) SupportedFormats() []string {
	rg.mu.RLock()
	defer rg.mu.RUnlock()
	names := make([]string, 0, len(rg.formatters))
	for k := range rg.formatters {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func (rg *ReportGenerator) metadata(target string) models.ReportMetadata {
	return models.ReportMetadata{ToolName: "forkhound", ToolVersion: rg.config.ToolVersion, Target: target}
}

func (rg *ReportGenerator) BuildSummary(results []*models.ScanResult) *models.Report {
	now := rg.now()
	summary := &models.ReportSummary{ByLevel: map[models.RiskLevel]int{}}
	entries := make([]models.ProtocolEntry, 0, len(results))

	for _, r := range results {
		summary.TotalProtocols++
		if r.Failed() {
			summary.FailedProtocols++
		}
		level := r.Level()
		summary.ByLevel[level]++
		switch level {
		case models.RiskLevelCritical:
			summary.CriticalRiskProtocols++
		case models.RiskLevelHigh:
			summary.HighRiskProtocols++
		}
		stats := models.CountFindings(r.Findings)
		summary.TotalFindings += stats.Total
		summary.CriticalFindings += stats.Critical
		summary.HighFindings += stats.High
		summary.MediumFindings += stats.Medium
		if r.Score() > summary.HighestScore {
			summary.HighestScore = r.Score()
		}

		entry := models.ProtocolEntry{
			Name:     r.Protocol.DisplayName(),
			ScanID:   r.ScanID,
			Score:    r.Score(),
			Level:    level,
			Findings: stats.Total,
			Critical: stats.Critical,
			Error:    r.Error,
		}
		if r.Fingerprint != nil {
			entry.Family = r.Fingerprint.Family.Label()
			entry.Confidence = r.Fingerprint.Confidence
		}
		entries = append(entries, entry)
	}

	recs := []string{
		"Review critical vulnerabilities in protocol reports",
		"Check individual protocol details for specific issues",
	}
	if summary.FailedProtocols > 0 {
		recs = append(recs, fmt.Sprintf("Re-run the %d failed protocol scans", summary.FailedProtocols))
	}

	return &models.Report{
		ID:              "summary_" + now.Format("20060102_150405"),
		Type:            models.ReportTypeSummary,
		GeneratedAt:     now,
		Metadata:        rg.metadata(fmt.Sprintf("%d protocols", len(results))),
		Summary:         summary,
		Protocols:       entries,
		Recommendations: recs,
	}
}

func (rg *ReportGenerator) BuildProtocolReport(result *models.ScanResult) *models.Report {
	now := rg.now()
	classified := rg.classifier.ClassifyAll(result.Findings)
	return &models.Report{
		ID:          "protocol_" + result.ScanID,
		Type:        models.ReportTypeProtocol,
		GeneratedAt: now,
		Metadata:    rg.metadata(result.Protocol.DisplayName()),
		Protocol: &models.ProtocolSection{
			ScanID:       result.ScanID,
			Protocol:     result.Protocol,
			SourcePath:   result.SourcePath,
			SourceDigest: result.SourceDigest,
			Fingerprint:  result.Fingerprint,
			Risk:         result.Risk,
			Summary:      result.Summary,
			Findings:     classified,
		},
		Recommendations: protocolRecommendations(result, classified),
	}
}

func protocolRecommendations(result *models.ScanResult, classified []models.ClassifiedFinding) []string {
	recs := []string{
		"Review all critical vulnerabilities",
		"Consider security audit for production deployment",
	}
	seen := map[string]bool{}
	for _, cf := range classified {
		if seen[cf.Profile.Archetype] {
			continue
		}
		seen[cf.Profile.Archetype] = true
		switch cf.Profile.Archetype {
		case ArchetypeDirectReservesOracle, ArchetypeReservesManipulation:
			recs = append(recs, "Replace spot reserve reads with a time-weighted average price oracle")
		case ArchetypeTokenDivisionOracle:
			recs = append(recs, "Derive token prices from an external oracle instead of pair ratios")
		case ArchetypeBalanceManipulation:
			recs = append(recs, "Avoid valuing positions from raw pool balances that can be donated to")
		case ArchetypePriceManipulation:
			recs = append(recs, "Bound AMM-derived prices with slippage and deviation checks")
		}
	}
	if result.Fingerprint != nil && result.Fingerprint.LegacyCompiler {
		recs = append(recs, "Upgrade contracts compiled with pre-0.8 Solidity or audit arithmetic for overflow")
	}
	return recs
}

// GenerateAll writes the batch summary and a detailed report for every
// CRITICAL or HIGH risk protocol, once per configured format.
func (rg *ReportGenerator) GenerateAll(results []*models.ScanResult) ([]GeneratedReport, error) {
	rg.mu.RLock()
	formats := append([]string(nil), rg.config.Formats...)
	rg.mu.RUnlock()

	var generated []GeneratedReport
	summary := rg.BuildSummary(results)
	for _, format := range formats {
		path, err := rg.ExportReport(summary, format)
		if err != nil {
			return generated, err
		}
		generated = append(generated, GeneratedReport{Type: summary.Type, Format: format, Path: path})
	}

	for _, r := range results {
		if r.Failed() || !r.Level().AtLeast(models.RiskLevelHigh) {
			continue
		}
		report := rg.BuildProtocolReport(r)
		for _, format := range formats {
			path, err := rg.ExportReport(report, format)
			if err != nil {
				rg.logger.WithFields(logrus.Fields{"protocol": r.Protocol.DisplayName(), "error": err}).Error("Failed to export protocol report")
				continue
			}
			generated = append(generated, GeneratedReport{Type: report.Type, Format: format, Path: path, Protocol: r.Protocol.DisplayName()})
		}
	}

	rg.logger.Infof("Generated %d reports in %s", len(generated), rg.config.OutputDir)
	return generated, nil
}

func (rg *ReportGenerator) ExportReport(report *models.Report, format string) (string, error) {
	if err := report.Validate(); err != nil {
		return "", err
	}
	rg.mu.RLock()
	formatter, exists := rg.formatters[format]
	outputDir := rg.config.OutputDir
	compress := rg.config.CompressReports
	rg.mu.RUnlock()
	if !exists {
		return "", fmt.Errorf("unsupported report format: %s", format)
	}

	data, err := formatter.Format(report)
	if err != nil {
		return "", fmt.Errorf("failed to format report: %w", err)
	}

	outPath := filepath.Join(outputDir, report.FileName(formatter.FileExtension()))
	if err := utils.SafeWriteFile(outPath, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}

	if compress {
		compressedPath, cerr := compressReport(outPath)
		if cerr != nil {
			rg.logger.Warnf("Failed to compress report: %v", cerr)
		} else {
			_ = os.Remove(outPath)
			outPath = compressedPath
		}
	}

	rg.logger.Debugf("Report exported to %s", outPath)
	return outPath, nil
}

func compressReport(path string) (string, error) {
	src, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer src.Close()

	dstPath := path + ".gz"
	dst, err := os.Create(dstPath)
	if err != nil {
		return "", err
	}
	defer func() { _ = dst.Close() }()

	gw := gzip.NewWriter(dst)
	gw.Name = filepath.Base(path)
	gw.ModTime = time.Now()

	_, copyErr := io.Copy(gw, src)
	closeErr := gw.Close()
	if copyErr != nil {
		return "", copyErr
	}
	return dstPath, closeErr
}

func (rg *ReportGenerator) ListReports() ([]ReportFile, error) {
	rg.mu.RLock()
	dir := rg.config.OutputDir
	rg.mu.RUnlock()

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read output directory: %w", err)
	}
	var files []ReportFile
	for _, e := range entries {
		if e.IsDir() || !isReportFile(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, ReportFile{
			Name:    e.Name(),
			Path:    filepath.Join(dir, e.Name()),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].ModTime.After(files[j].ModTime) })
	return files, nil
}

func isReportFile(name string) bool {
	return strings.HasPrefix(name, "scan_summary_") || strings.HasPrefix(name, "protocol_")
}

// CleanupOldReports removes report files older than maxAge and returns how
// many were deleted.
func (rg *ReportGenerator) CleanupOldReports(maxAge time.Duration) (int, error) {
	if maxAge <= 0 {
		return 0, nil
	}
	files, err := rg.ListReports()
	if err != nil {
		return 0, err
	}
	cutoff := rg.now().Add(-maxAge)
	removed := 0
	for _, f := range files {
		if !f.ModTime.Before(cutoff) {
			continue
		}
		if err := os.Remove(f.Path); err != nil {
			rg.logger.Warnf("Failed to remove old report %s: %v", f.Name, err)
			continue
		}
		removed++
	}
	return removed, nil
}

func (rg *ReportGenerator) GetReportStats() (map[string]interface{}, error) {
	files, err := rg.ListReports()
	if err != nil {
		return nil, err
	}
	formatCounts := make(map[string]int)
	var total int64
	for _, f := range files {
		name := strings.TrimSuffix(f.Name, ".gz")
		if ext := filepath.Ext(name); ext != "" {
			formatCounts[ext[1:]]++
		}
		total += f.Size
	}
	return map[string]interface{}{
		"total_reports": len(files),
		"output_dir":    rg.config.OutputDir,
		"formats":       formatCounts,
		"total_size":    utils.HumanizeBytes(total),
	}, nil
}
