package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bl4ck0w1/forkhound/internal/orchestration"
	"github.com/bl4ck0w1/forkhound/internal/storage"
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

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func newTestServer(t *testing.T) (*Server, *storage.ResultsRepository) {
	t.Helper()
	logger := quietLogger()
	metrics := utils.NewMetricsCollector(false)
	scanner := orchestration.NewScanner(orchestration.ScanConfig{MaxConcurrentScans: 2, FileWorkers: 2}, metrics, logger)

	ls, err := storage.NewLocalStorage(t.TempDir(), false, 0, logger)
	if err != nil {
		t.Fatalf("NewLocalStorage() error = %v", err)
	}
	repo := storage.NewResultsRepository(ls, 0, logger)
	return NewServer(DefaultConfig(), scanner, repo, metrics, logger, "test"), repo
}

func sourceTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	path := filepath.Join(root, "contracts", "SpotOracle.sol")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(oracleSource), 0o644); err != nil {
		t.Fatal(err)
	}
	return root
}

func do(t *testing.T, h http.Handler, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t)
	rec := do(t, s.Router(), http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" || body["version"] != "test" {
		t.Errorf("body = %v", body)
	}
}

func TestRunScansStoresResults(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Router()
	payload, _ := json.Marshal(map[string]interface{}{
		"targets": []map[string]interface{}{
			{"protocol": map[string]interface{}{"name": "Fresh Fork", "tvl": "2000000", "audits": 0}, "source_path": sourceTree(t)},
			{"protocol": map[string]interface{}{"name": "Ghost"}, "source_path": filepath.Join(t.TempDir(), "missing")},
		},
	})

	rec := do(t, h, http.MethodPost, "/scans", payload)
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /scans status = %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Scanned int                  `json:"scanned"`
		Skipped int                  `json:"skipped"`
		Stored  int                  `json:"stored"`
		Results []*models.ScanResult `json:"results"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Scanned != 1 || resp.Skipped != 1 || resp.Stored != 1 {
		t.Fatalf("resp = %+v", resp)
	}
	scanID := resp.Results[0].ScanID
	if resp.Results[0].Risk == nil || resp.Results[0].Risk.Level != models.RiskLevelCritical && resp.Results[0].Risk.Level != models.RiskLevelHigh {
		t.Errorf("risk = %+v", resp.Results[0].Risk)
	}

	rec = do(t, h, http.MethodGet, "/results", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), scanID) {
		t.Errorf("GET /results = %d %s", rec.Code, rec.Body.String())
	}

	rec = do(t, h, http.MethodGet, "/results?protocol=Nobody", nil)
	if !strings.Contains(rec.Body.String(), `"count":0`) {
		t.Errorf("filtered list = %s", rec.Body.String())
	}

	rec = do(t, h, http.MethodGet, "/results/"+scanID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /results/{id} status = %d", rec.Code)
	}
	var got models.ScanResult
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if got.Protocol.Name != "Fresh Fork" || got.Protocol.TVL != 2_000_000 {
		t.Errorf("protocol = %+v", got.Protocol)
	}

	rec = do(t, h, http.MethodGet, "/metrics", nil)
	if !strings.Contains(rec.Body.String(), "forkhound_protocol_scans_total") {
		t.Error("metrics endpoint does not expose scan counter")
	}
}

func TestRequestErrors(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Router()
	tests := []struct {
		name   string
		method string
		path   string
		body   []byte
		want   int
	}{
		{"unknown scan", http.MethodGet, "/results/scan_nope", nil, http.StatusNotFound},
		{"bad json", http.MethodPost, "/scans", []byte(`{"targets":`), http.StatusBadRequest},
		{"no targets", http.MethodPost, "/scans", []byte(`{"targets":[]}`), http.StatusBadRequest},
		{"wrong method", http.MethodDelete, "/scans", nil, http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := do(t, h, tt.method, tt.path, tt.body); rec.Code != tt.want {
				t.Errorf("%s %s = %d, want %d", tt.method, tt.path, rec.Code, tt.want)
			}
		})
	}
}
