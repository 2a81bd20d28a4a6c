package orchestration

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bl4ck0w1/forkhound/internal/detection"
	"github.com/bl4ck0w1/forkhound/internal/fingerprint"
	"github.com/bl4ck0w1/forkhound/internal/reporting"
	"github.com/bl4ck0w1/forkhound/internal/sourcetree"
	"github.com/bl4ck0w1/forkhound/pkg/models"
	"github.com/bl4ck0w1/forkhound/pkg/utils"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// ScanGate is the fingerprint confidence a tree must exceed before the
// pattern scanner runs.
const ScanGate = 30

const (
	metricScans    = "forkhound_protocol_scans_total"
	metricFindings = "forkhound_findings_total"
	metricDuration = "forkhound_scan_duration_seconds"
	metricRisk     = "forkhound_risk_score"
)

var ErrScanNotFound = errors.New("scan not found")

type ScanConfig struct {
	MaxConcurrentScans int           `yaml:"max_concurrent_scans" json:"max_concurrent_scans"`
	FileWorkers        int           `yaml:"file_workers" json:"file_workers"`
	DefaultTimeout     time.Duration `yaml:"default_timeout" json:"default_timeout"`
	Excludes           []string      `yaml:"excludes" json:"excludes"`
}

func DefaultScanConfig() ScanConfig {
	return ScanConfig{
		MaxConcurrentScans: runtime.GOMAXPROCS(0),
		FileWorkers:        runtime.GOMAXPROCS(0),
		DefaultTimeout:     10 * time.Minute,
		Excludes:           sourcetree.DefaultExcludes,
	}
}

// Target pairs protocol metadata with the local checkout to scan.
type Target struct {
	Protocol   models.ProtocolMetadata `yaml:"protocol" json:"protocol"`
	SourcePath string                  `yaml:"source_path" json:"source_path"`
}

type ScanContext struct {
	ScanID     string
	Protocol   string
	StartTime  time.Time
	CancelFunc context.CancelFunc

	phase atomic.Value
}

func (sc *ScanContext) Phase() models.ScanPhase {
	if p, ok := sc.phase.Load().(models.ScanPhase); ok {
		return p
	}
	return models.PhaseStart
}

type Scanner struct {
	matcher  *fingerprint.Matcher
	patterns *detection.PatternMatcher
	scorer   *reporting.RiskScorer
	metrics  *utils.MetricsCollector
	logger   *logrus.Logger

	mu          sync.RWMutex
	activeScans map[string]*ScanContext
	scanConfig  ScanConfig

	totalScans     atomic.Int64
	completedScans atomic.Int64
	failedScans    atomic.Int64
	skippedTargets atomic.Int64
	gatedScans     atomic.Int64
	totalFindings  atomic.Int64
	criticalFound  atomic.Int64
}

// NewScanner wires the fingerprint matcher, pattern scanner and risk scorer.
// metrics may be nil.
func NewScanner(config ScanConfig, metrics *utils.MetricsCollector, logger *logrus.Logger) *Scanner {
	if logger == nil {
		logger = logrus.New()
	}
	defaults := DefaultScanConfig()
	if config.MaxConcurrentScans <= 0 {
		config.MaxConcurrentScans = defaults.MaxConcurrentScans
	}
	if config.FileWorkers <= 0 {
		config.FileWorkers = defaults.FileWorkers
	}
	if config.Excludes == nil {
		config.Excludes = defaults.Excludes
	}

	s := &Scanner{
		matcher:     fingerprint.NewMatcher(logger, config.FileWorkers),
		patterns:    detection.NewPatternMatcher(logger, config.FileWorkers),
		scorer:      reporting.NewRiskScorer(),
		metrics:     metrics,
		logger:      logger,
		activeScans: make(map[string]*ScanContext),
		scanConfig:  config,
	}
	s.registerMetrics()
	return s
}

func (s *Scanner) registerMetrics() {
	if s.metrics == nil {
		return
	}
	for _, err := range []error{
		s.metrics.RegisterCounter(metricScans, "Protocol scans by terminal status", "status"),
		s.metrics.RegisterCounter(metricFindings, "Findings reported by severity", "severity"),
		s.metrics.RegisterHistogram(metricDuration, "Wall time of a single protocol scan", nil),
		s.metrics.RegisterGauge(metricRisk, "Latest overall risk score per protocol", "protocol"),
	} {
		if err != nil {
			s.logger.Warnf("Failed to register scan metric: %v", err)
		}
	}
}

// ScanProtocol runs fingerprint, gated pattern scan, scoring and summary for
// one source tree. It never returns nil; failures are recorded on the result.
func (s *Scanner) ScanProtocol(ctx context.Context, protocol models.ProtocolMetadata, sourcePath string) (result *models.ScanResult) {
	s.mu.RLock()
	cfg := s.scanConfig
	s.mu.RUnlock()

	start := time.Now()
	result = &models.ScanResult{
		ScanID:     generateScanID(protocol.DisplayName(), start),
		Protocol:   protocol,
		SourcePath: sourcePath,
		Status:     models.ScanStatusRunning,
		Phase:      models.PhaseStart,
		StartTime:  start,
	}

	var (
		scanCtx context.Context
		cancel  context.CancelFunc
	)
	if cfg.DefaultTimeout > 0 {
		scanCtx, cancel = context.WithTimeout(ctx, cfg.DefaultTimeout)
	} else {
		scanCtx, cancel = context.WithCancel(ctx)
	}
	sc := &ScanContext{ScanID: result.ScanID, Protocol: protocol.DisplayName(), StartTime: start, CancelFunc: cancel}
	sc.phase.Store(models.PhaseStart)

	s.mu.Lock()
	s.activeScans[sc.ScanID] = sc
	s.mu.Unlock()
	s.totalScans.Add(1)

	logger := s.logger.WithFields(logrus.Fields{"scan_id": result.ScanID, "protocol": protocol.DisplayName()})
	logger.Infof("Starting scan of %s", sourcePath)

	defer func() {
		if r := recover(); r != nil {
			s.fail(result, fmt.Errorf("panic during %s: %v", result.Phase, r))
		}
		cancel()
		s.mu.Lock()
		delete(s.activeScans, sc.ScanID)
		s.mu.Unlock()
		result.EndTime = time.Now()
		s.record(result)

		if result.Failed() {
			logger.WithField("error", result.Error).Error("Scan failed")
			return
		}
		logger.WithFields(logrus.Fields{
			"score":    result.Score(),
			"level":    result.Level(),
			"findings": len(result.Findings),
			"duration": result.Duration().Round(time.Millisecond),
		}).Info("Scan completed")
	}()

	if err := s.execute(scanCtx, sc, result, cfg); err != nil {
		s.fail(result, err)
	}
	return result
}

func (s *Scanner) execute(ctx context.Context, sc *ScanContext, result *models.ScanResult, cfg ScanConfig) error {
	advance := func(p models.ScanPhase) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		result.Phase = p
		sc.phase.Store(p)
		return nil
	}

	if err := advance(models.PhaseFingerprint); err != nil {
		return err
	}
	tree, err := sourcetree.Walk(ctx, result.SourcePath, sourcetree.Options{
		Extensions: []string{sourcetree.SolidityExtension},
		Excludes:   cfg.Excludes,
	}, s.logger)
	if err != nil {
		return fmt.Errorf("walk source tree: %w", err)
	}
	result.SourceDigest = tree.Digest()

	fp, err := s.matcher.Fingerprint(ctx, tree.Files)
	if err != nil {
		return err
	}
	result.Fingerprint = fp

	findings := []models.Finding{}
	if fp.Confidence > ScanGate {
		if err := advance(models.PhaseScan); err != nil {
			return err
		}
		findings, err = s.patterns.Scan(ctx, tree.Files)
		if err != nil {
			return err
		}
	} else {
		if err := advance(models.PhaseSkipScan); err != nil {
			return err
		}
		s.gatedScans.Add(1)
		s.logger.WithField("scan_id", result.ScanID).Debugf("Confidence %d does not exceed gate %d, skipping pattern scan", fp.Confidence, ScanGate)
	}
	result.Findings = findings

	if err := advance(models.PhaseScore); err != nil {
		return err
	}
	risk := s.scorer.Assess(result.Protocol, findings, fp)
	result.Risk = &risk

	if err := advance(models.PhaseSummarize); err != nil {
		return err
	}
	stats := models.CountFindings(findings)
	result.Summary = models.ScanSummary{
		TotalFindings:    stats.Total,
		CriticalFindings: stats.Critical,
		HighFindings:     stats.High,
		MediumFindings:   stats.Medium,
		Confidence:       fp.Confidence,
		Family:           fp.Family,
		FilesFound:       len(fp.Files),
		SourceFiles:      tree.Len(),
		Timestamp:        time.Now(),
	}

	result.Phase = models.PhaseDone
	sc.phase.Store(models.PhaseDone)
	result.Status = models.ScanStatusDone
	return nil
}

// fail converts a result into an error-tagged one. Partial findings and
// scores are dropped so an errored result never ranks above a clean one.
func (s *Scanner) fail(result *models.ScanResult, err error) {
	result.Status = models.ScanStatusError
	result.Phase = models.PhaseError
	result.Error = err.Error()
	result.Findings = nil
	result.Risk = nil
}

func (s *Scanner) record(result *models.ScanResult) {
	if result.Failed() {
		s.failedScans.Add(1)
	} else {
		s.completedScans.Add(1)
	}
	stats := models.CountFindings(result.Findings)
	s.totalFindings.Add(int64(stats.Total))
	s.criticalFound.Add(int64(stats.Critical))

	if s.metrics == nil {
		return
	}
	s.metrics.IncCounter(metricScans, 1, prometheus.Labels{"status": result.Status})
	for sev, n := range map[models.Severity]int{
		models.SeverityCritical: stats.Critical,
		models.SeverityHigh:     stats.High,
		models.SeverityMedium:   stats.Medium,
	} {
		if n > 0 {
			s.metrics.IncCounter(metricFindings, float64(n), prometheus.Labels{"severity": string(sev)})
		}
	}
	s.metrics.ObserveHistogram(metricDuration, result.Duration().Seconds(), prometheus.Labels{})
	s.metrics.SetGauge(metricRisk, result.Score(), prometheus.Labels{"protocol": result.Protocol.DisplayName()})
}

// BatchScan scans every target with a usable source path and returns the
// results sorted by descending risk score. Targets without one are skipped.
func (s *Scanner) BatchScan(ctx context.Context, targets []Target) []*models.ScanResult {
	valid := make([]Target, 0, len(targets))
	for _, t := range targets {
		if t.SourcePath == "" {
			s.skip(t, "no source path")
			continue
		}
		info, err := os.Stat(t.SourcePath)
		if err != nil {
			s.skip(t, err.Error())
			continue
		}
		if !info.IsDir() {
			s.skip(t, "source path is not a directory")
			continue
		}
		valid = append(valid, t)
	}

	s.mu.RLock()
	limit := s.scanConfig.MaxConcurrentScans
	s.mu.RUnlock()

	results := make([]*models.ScanResult, len(valid))
	var g errgroup.Group
	g.SetLimit(limit)
	for i, t := range valid {
		i, t := i, t
		g.Go(func() error {
			results[i] = s.ScanProtocol(ctx, t.Protocol, t.SourcePath)
			return nil
		})
	}
	_ = g.Wait()

	SortByRisk(results)
	s.logger.Infof("Batch complete: %d scanned, %d skipped", len(results), len(targets)-len(valid))
	return results
}

func (s *Scanner) skip(t Target, reason string) {
	s.skippedTargets.Add(1)
	s.logger.WithFields(logrus.Fields{
		"protocol": t.Protocol.DisplayName(),
		"path":     t.SourcePath,
		"reason":   reason,
	}).Warn("Skipping target")
}

// SortByRisk orders results by descending overall score, keeping input order
// among equal scores. A missing assessment sorts as 0.
func SortByRisk(results []*models.ScanResult) {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score() > results[j].Score()
	})
}

func (s *Scanner) CancelScan(scanID string) error {
	s.mu.RLock()
	sc, exists := s.activeScans[scanID]
	s.mu.RUnlock()
	if !exists {
		return fmt.Errorf("%w: %s", ErrScanNotFound, scanID)
	}
	sc.CancelFunc()
	s.logger.Infof("Scan cancelled: %s", scanID)
	return nil
}

func (s *Scanner) ActiveScans() []*ScanContext {
	s.mu.RLock()
	defer s.mu.RUnlock()

	scans := make([]*ScanContext, 0, len(s.activeScans))
	for _, scan := range s.activeScans {
		scans = append(scans, scan)
	}
	sort.Slice(scans, func(i, j int) bool { return scans[i].StartTime.Before(scans[j].StartTime) })
	return scans
}

func (s *Scanner) Stats() models.ScanStats {
	s.mu.RLock()
	active := len(s.activeScans)
	s.mu.RUnlock()
	return models.ScanStats{
		TotalScans:       s.totalScans.Load(),
		CompletedScans:   s.completedScans.Load(),
		FailedScans:      s.failedScans.Load(),
		SkippedTargets:   s.skippedTargets.Load(),
		GatedScans:       s.gatedScans.Load(),
		ActiveScans:      active,
		TotalFindings:    s.totalFindings.Load(),
		CriticalFindings: s.criticalFound.Load(),
	}
}

func (s *Scanner) UpdateConfig(config ScanConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if config.MaxConcurrentScans > 0 {
		s.scanConfig.MaxConcurrentScans = config.MaxConcurrentScans
	}
	if config.Excludes != nil {
		s.scanConfig.Excludes = config.Excludes
	}
	s.scanConfig.DefaultTimeout = config.DefaultTimeout
}

func generateScanID(name string, at time.Time) string {
	return fmt.Sprintf("scan_%s_%s_%s", utils.Slugify(name), at.Format("20060102_150405"), utils.GenerateShortID())
}
