package storage

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bl4ck0w1/forkhound/pkg/models"
	"github.com/bl4ck0w1/forkhound/pkg/utils"
	"github.com/sirupsen/logrus"
)

var ErrNotFound = errors.New("not found")

const (
	resultsDir   = "results"
	protocolsDir = "protocols"
	tempDir      = "temp"

	resultExt = ".json"
	gzipExt   = ".gz"
)

// LocalStorage persists scan results as one JSON document per scan under
// <base>/results, optionally gzip-compressed.
type LocalStorage struct {
	baseDir     string
	logger      *logrus.Logger
	mu          sync.RWMutex
	compression bool
	retention   time.Duration
}

func NewLocalStorage(baseDir string, compression bool, retention time.Duration, logger *logrus.Logger) (*LocalStorage, error) {
	if logger == nil {
		logger = logrus.New()
	}

	for _, dir := range []string{resultsDir, protocolsDir, tempDir} {
		if err := os.MkdirAll(filepath.Join(baseDir, dir), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create %s directory: %w", dir, err)
		}
	}

	return &LocalStorage{
		baseDir:     baseDir,
		logger:      logger,
		compression: compression,
		retention:   retention,
	}, nil
}

func (ls *LocalStorage) BaseDir() string { return ls.baseDir }

func (ls *LocalStorage) resultPath(scanID string, compressed bool) string {
	name := scanID + resultExt
	if compressed {
		name += gzipExt
	}
	return filepath.Join(ls.baseDir, resultsDir, name)
}

// SaveResult writes the result atomically and returns the file name used.
func (ls *LocalStorage) SaveResult(result *models.ScanResult) (string, error) {
	if result.ScanID == "" || strings.ContainsAny(result.ScanID, `/\`) {
		return "", fmt.Errorf("invalid scan id: %q", result.ScanID)
	}

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode result: %w", err)
	}

	ls.mu.Lock()
	defer ls.mu.Unlock()

	path := ls.resultPath(result.ScanID, ls.compression)
	if ls.compression {
		if data, err = compress(data); err != nil {
			ls.logger.Warnf("Failed to compress result, storing plain JSON: %v", err)
			path = ls.resultPath(result.ScanID, false)
		}
	}
	if err := utils.SafeWriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write result: %w", err)
	}

	ls.logger.Debugf("Result saved to %s", path)
	return filepath.Base(path), nil
}

func (ls *LocalStorage) LoadResult(scanID string) (*models.ScanResult, error) {
	ls.mu.RLock()
	defer ls.mu.RUnlock()

	for _, compressed := range []bool{false, true} {
		path := ls.resultPath(scanID, compressed)
		r, err := readResultFile(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load result %s: %w", scanID, err)
		}
		return r, nil
	}
	return nil, fmt.Errorf("result %s: %w", scanID, ErrNotFound)
}

func (ls *LocalStorage) ListResults() ([]*models.ScanResult, error) {
	ls.mu.RLock()
	defer ls.mu.RUnlock()

	entries, err := os.ReadDir(filepath.Join(ls.baseDir, resultsDir))
	if err != nil {
		return nil, fmt.Errorf("read results directory: %w", err)
	}

	results := make([]*models.ScanResult, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !isResultFile(e.Name()) {
			continue
		}
		path := filepath.Join(ls.baseDir, resultsDir, e.Name())
		r, err := readResultFile(path)
		if err != nil {
			ls.logger.Warnf("Failed to parse result %s: %v", path, err)
			continue
		}
		results = append(results, r)
	}
	sort.Slice(results, func(i, j int) bool { return results[i].StartTime.After(results[j].StartTime) })
	return results, nil
}

func (ls *LocalStorage) DeleteResult(scanID string) error {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	removed := false
	for _, compressed := range []bool{false, true} {
		err := os.Remove(ls.resultPath(scanID, compressed))
		switch {
		case err == nil:
			removed = true
		case !errors.Is(err, os.ErrNotExist):
			return fmt.Errorf("delete result %s: %w", scanID, err)
		}
	}
	if !removed {
		return fmt.Errorf("result %s: %w", scanID, ErrNotFound)
	}
	return nil
}

func isResultFile(name string) bool {
	name = strings.ToLower(name)
	return strings.HasSuffix(name, resultExt) || strings.HasSuffix(name, resultExt+gzipExt)
}

func readResultFile(path string) (*models.ScanResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, gzipExt) {
		gzr, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("gzip reader: %w", err)
		}
		defer gzr.Close()
		r = gzr
	}

	var result models.ScanResult
	if err := json.NewDecoder(r).Decode(&result); err != nil {
		return nil, fmt.Errorf("unmarshal result: %w", err)
	}
	return &result, nil
}

func compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	gzw, err := gzip.NewWriterLevel(&buf, gzip.DefaultCompression)
	if err != nil {
		return nil, fmt.Errorf("gzip writer: %w", err)
	}
	if _, err := gzw.Write(data); err != nil {
		return nil, fmt.Errorf("gzip write: %w", err)
	}
	if err := gzw.Close(); err != nil {
		return nil, fmt.Errorf("close gzip: %w", err)
	}
	return buf.Bytes(), nil
}

func (ls *LocalStorage) GetStorageStats() (map[string]interface{}, error) {
	ls.mu.RLock()
	defer ls.mu.RUnlock()

	totalSize, err := calculateDirectorySize(ls.baseDir)
	if err != nil {
		return nil, fmt.Errorf("calculate dir size: %w", err)
	}

	fileCounts := make(map[string]int)
	for _, dir := range []string{resultsDir, protocolsDir} {
		fileCounts[dir], _ = countFiles(filepath.Join(ls.baseDir, dir))
	}

	return map[string]interface{}{
		"base_dir":            ls.baseDir,
		"total_size_bytes":    totalSize,
		"total_size_human":    utils.HumanizeBytes(totalSize),
		"file_counts":         fileCounts,
		"compression_enabled": ls.compression,
		"retention_period":    ls.retention.String(),
	}, nil
}

func calculateDirectorySize(path string) (int64, error) {
	var size int64
	err := filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	return size, err
}

func countFiles(path string) (int, error) {
	count := 0
	err := filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			count++
		}
		return nil
	})
	return count, err
}

// CleanupExpired removes results older than the retention period and stale
// temp files. It returns the number of results removed.
func (ls *LocalStorage) CleanupExpired() int {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	if ls.retention <= 0 {
		return 0
	}
	now := time.Now()
	removed := ls.cleanupDirectory(filepath.Join(ls.baseDir, resultsDir), now.Add(-ls.retention))
	ls.cleanupDirectory(filepath.Join(ls.baseDir, tempDir), now.Add(-24*time.Hour))
	return removed
}

func (ls *LocalStorage) cleanupDirectory(path string, cutoffTime time.Time) int {
	removed := 0
	err := filepath.Walk(path, func(p string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if !info.IsDir() && info.ModTime().Before(cutoffTime) {
			if err := os.Remove(p); err != nil {
				ls.logger.Warnf("Failed to remove old file %s: %v", p, err)
			} else {
				removed++
				ls.logger.Debugf("Removed old file: %s", p)
			}
		}
		return nil
	})
	if err != nil {
		ls.logger.Warnf("Failed to cleanup directory %s: %v", path, err)
	}
	return removed
}
