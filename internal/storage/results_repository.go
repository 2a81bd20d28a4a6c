package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/bl4ck0w1/forkhound/pkg/models"
	"github.com/bl4ck0w1/forkhound/pkg/utils"
	"github.com/sirupsen/logrus"
)

const indexFile = "index.json"

// IndexEntry is the lightweight record kept per stored scan so queries do
// not need to load full results.
type IndexEntry struct {
	ScanID    string           `json:"scan_id"`
	Protocol  string           `json:"protocol"`
	Status    string           `json:"status"`
	Level     models.RiskLevel `json:"risk_level"`
	Score     float64          `json:"overall_score"`
	Findings  int              `json:"vulnerabilities"`
	Digest    string           `json:"source_digest,omitempty"`
	StartTime time.Time        `json:"start_time"`
	File      string           `json:"file"`
}

type cachedResult struct {
	result   *models.ScanResult
	cachedAt time.Time
}

type ResultsRepository struct {
	storage  *LocalStorage
	logger   *logrus.Logger
	mu       sync.RWMutex
	cache    map[string]cachedResult
	cacheTTL time.Duration
	index    map[string]IndexEntry
}

func NewResultsRepository(storage *LocalStorage, cacheTTL time.Duration, logger *logrus.Logger) *ResultsRepository {
	if logger == nil {
		logger = logrus.New()
	}

	rr := &ResultsRepository{
		storage:  storage,
		logger:   logger,
		cache:    make(map[string]cachedResult),
		cacheTTL: cacheTTL,
		index:    make(map[string]IndexEntry),
	}

	if err := rr.loadIndex(); err != nil {
		logger.Warnf("Failed to load results index: %v", err)
	}
	return rr
}

func (rr *ResultsRepository) Store(ctx context.Context, result *models.ScanResult) error {
	if err := validateResult(result); err != nil {
		return fmt.Errorf("invalid result: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	rr.mu.Lock()
	defer rr.mu.Unlock()

	file, err := rr.storage.SaveResult(result)
	if err != nil {
		return fmt.Errorf("failed to save result: %w", err)
	}

	rr.cache[result.ScanID] = cachedResult{result: result, cachedAt: time.Now()}
	rr.index[result.ScanID] = IndexEntry{
		ScanID:    result.ScanID,
		Protocol:  result.Protocol.DisplayName(),
		Status:    result.Status,
		Level:     result.Level(),
		Score:     result.Score(),
		Findings:  len(result.Findings),
		Digest:    result.SourceDigest,
		StartTime: result.StartTime,
		File:      file,
	}

	if err := rr.saveIndex(); err != nil {
		rr.logger.Warnf("Failed to save index: %v", err)
	}
	return nil
}

// StoreAll stores every result, logging and skipping the ones that fail.
func (rr *ResultsRepository) StoreAll(ctx context.Context, results []*models.ScanResult) int {
	stored := 0
	for _, r := range results {
		if err := rr.Store(ctx, r); err != nil {
			rr.logger.WithFields(logrus.Fields{"scan_id": r.ScanID, "error": err}).Warn("Failed to store scan result")
			continue
		}
		stored++
	}
	return stored
}

func (rr *ResultsRepository) FindByScanID(ctx context.Context, scanID string) (*models.ScanResult, error) {
	rr.mu.RLock()
	cached, hit := rr.cache[scanID]
	_, indexed := rr.index[scanID]
	rr.mu.RUnlock()

	if hit && (rr.cacheTTL <= 0 || time.Since(cached.cachedAt) < rr.cacheTTL) {
		return cached.result, nil
	}
	if !indexed {
		return nil, fmt.Errorf("scan %s: %w", scanID, ErrNotFound)
	}

	r, err := rr.storage.LoadResult(scanID)
	if err != nil {
		return nil, err
	}
	rr.mu.Lock()
	rr.cache[scanID] = cachedResult{result: r, cachedAt: time.Now()}
	rr.mu.Unlock()
	return r, nil
}

// List returns index entries newest first.
func (rr *ResultsRepository) List(ctx context.Context) []IndexEntry {
	return rr.filter(func(IndexEntry) bool { return true })
}

func (rr *ResultsRepository) FindByProtocol(ctx context.Context, protocol string) []IndexEntry {
	return rr.filter(func(e IndexEntry) bool { return e.Protocol == protocol })
}

func (rr *ResultsRepository) FindByLevel(ctx context.Context, level models.RiskLevel) []IndexEntry {
	return rr.filter(func(e IndexEntry) bool { return e.Status == models.ScanStatusDone && e.Level == level })
}

func (rr *ResultsRepository) FindByTimeRange(ctx context.Context, startTime, endTime time.Time) []IndexEntry {
	return rr.filter(func(e IndexEntry) bool {
		return !e.StartTime.Before(startTime) && !e.StartTime.After(endTime)
	})
}

// LatestByProtocol returns the newest successful scan per protocol.
func (rr *ResultsRepository) LatestByProtocol(ctx context.Context) map[string]IndexEntry {
	latest := make(map[string]IndexEntry)
	for _, e := range rr.filter(func(e IndexEntry) bool { return e.Status == models.ScanStatusDone }) {
		if _, seen := latest[e.Protocol]; !seen {
			latest[e.Protocol] = e
		}
	}
	return latest
}

// Unchanged reports whether the newest successful scan of protocol was taken
// over a tree with the same content digest.
func (rr *ResultsRepository) Unchanged(protocol, digest string) bool {
	if digest == "" {
		return false
	}
	for _, e := range rr.FindByProtocol(context.Background(), protocol) {
		if e.Status == models.ScanStatusDone {
			return e.Digest == digest
		}
	}
	return false
}

func (rr *ResultsRepository) filter(keep func(IndexEntry) bool) []IndexEntry {
	rr.mu.RLock()
	defer rr.mu.RUnlock()

	out := make([]IndexEntry, 0, len(rr.index))
	for _, e := range rr.index {
		if keep(e) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].ScanID < out[j].ScanID
		}
		return out[i].StartTime.After(out[j].StartTime)
	})
	return out
}

func (rr *ResultsRepository) DeleteByScanID(ctx context.Context, scanID string) error {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	if _, exists := rr.index[scanID]; !exists {
		return fmt.Errorf("scan %s: %w", scanID, ErrNotFound)
	}
	delete(rr.cache, scanID)
	if err := rr.storage.DeleteResult(scanID); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	delete(rr.index, scanID)

	if err := rr.saveIndex(); err != nil {
		return fmt.Errorf("failed to save index: %w", err)
	}
	return nil
}

// Prune drops index entries whose result files no longer exist, for example
// after retention cleanup.
func (rr *ResultsRepository) Prune(ctx context.Context) (int, error) {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	pruned := 0
	for id, e := range rr.index {
		if !utils.FileExists(filepath.Join(rr.storage.BaseDir(), resultsDir, e.File)) {
			delete(rr.index, id)
			delete(rr.cache, id)
			pruned++
		}
	}
	if pruned == 0 {
		return 0, nil
	}
	return pruned, rr.saveIndex()
}

func (rr *ResultsRepository) GetStats(ctx context.Context) map[string]interface{} {
	rr.mu.RLock()
	defer rr.mu.RUnlock()

	statusCounts := make(map[string]int)
	levelCounts := make(map[models.RiskLevel]int)
	protocols := make(map[string]struct{})
	for _, e := range rr.index {
		statusCounts[e.Status]++
		if e.Status == models.ScanStatusDone {
			levelCounts[e.Level]++
		}
		protocols[e.Protocol] = struct{}{}
	}

	return map[string]interface{}{
		"total_scans":       len(rr.index),
		"protocols":         len(protocols),
		"cached_results":    len(rr.cache),
		"cache_ttl":         rr.cacheTTL.String(),
		"results_by_status": statusCounts,
		"results_by_level":  levelCounts,
	}
}

func validateResult(result *models.ScanResult) error {
	if result == nil {
		return fmt.Errorf("result is nil")
	}
	if result.ScanID == "" {
		return fmt.Errorf("scan ID is required")
	}
	if result.StartTime.IsZero() {
		return fmt.Errorf("start time is required")
	}
	if result.Status == "" || result.Status == models.ScanStatusRunning {
		return fmt.Errorf("result must be in a terminal status, got %q", result.Status)
	}
	return nil
}

func (rr *ResultsRepository) indexPath() string {
	return filepath.Join(rr.storage.BaseDir(), indexFile)
}

func (rr *ResultsRepository) loadIndex() error {
	var entries []IndexEntry
	if err := utils.ReadFileJSON(rr.indexPath(), &entries); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	for _, e := range entries {
		rr.index[e.ScanID] = e
	}
	return nil
}

func (rr *ResultsRepository) saveIndex() error {
	entries := make([]IndexEntry, 0, len(rr.index))
	for _, e := range rr.index {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ScanID < entries[j].ScanID })
	return utils.WriteFileJSON(rr.indexPath(), entries)
}
