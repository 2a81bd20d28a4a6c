package fingerprint

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/bl4ck0w1/forkhound/pkg/models"
)

func writeSource(t *testing.T, root, rel, content string) string {
	t.Helper()
	path := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestFingerprintEmptyTree(t *testing.T) {
	root := t.TempDir()
	writeSource(t, root, "contracts/Token.sol", "contract Token { function transfer() external {} }")

	got, err := NewMatcher(nil, 2).FingerprintDirectory(context.Background(), root)
	if err != nil {
		t.Fatalf("FingerprintDirectory() error = %v", err)
	}
	if got.Confidence != 0 {
		t.Errorf("Confidence = %d, want 0", got.Confidence)
	}
	if got.Family != models.FamilyUnknown {
		t.Errorf("Family = %q, want %q", got.Family, models.FamilyUnknown)
	}
	if len(got.Files) != 0 || len(got.Interfaces) != 0 {
		t.Errorf("Files = %v, Interfaces = %v, want none", got.Files, got.Interfaces)
	}
}

func TestFingerprintSingleUniswapFile(t *testing.T) {
	root := t.TempDir()
	writeSource(t, root, "contracts/Oracle.sol", `pragma solidity ^0.5.16;
import "./IUniswapV2Pair.sol";
contract Oracle {
    function price(address pair) external view returns (uint) {
        (uint r0, uint r1,) = IUniswapV2Pair(pair).getReserves();
        return r0 / r1;
    }
}`)

	got, err := NewMatcher(nil, 2).FingerprintDirectory(context.Background(), root)
	if err != nil {
		t.Fatalf("FingerprintDirectory() error = %v", err)
	}
	if got.Family != models.FamilyUniswapV2 {
		t.Errorf("Family = %q, want %q", got.Family, models.FamilyUniswapV2)
	}
	if got.Confidence != 85 {
		t.Errorf("Confidence = %d, want 85", got.Confidence)
	}
	if len(got.RiskyCalls) != 1 || got.RiskyCalls[0] != "getReserves()" {
		t.Errorf("RiskyCalls = %v, want [getReserves()]", got.RiskyCalls)
	}
	if !got.LegacyCompiler {
		t.Error("LegacyCompiler = false, want true for ^0.5.16")
	}
}

func TestFingerprintManyFiles(t *testing.T) {
	root := t.TempDir()
	writeSource(t, root, "a/A.sol", "IPancakePair p;")
	writeSource(t, root, "b/B.sol", "IUniswapV2Pair p;")
	writeSource(t, root, "c/C.sol", "IJoePair p;")
	writeSource(t, root, "tests/D.sol", "IPangolinPair p;")

	got, err := NewMatcher(nil, 4).FingerprintDirectory(context.Background(), root)
	if err != nil {
		t.Fatalf("FingerprintDirectory() error = %v", err)
	}
	if got.Confidence != 100 {
		t.Errorf("Confidence = %d, want 100", got.Confidence)
	}
	if len(got.Files) != 3 {
		t.Errorf("Files = %v, want 3 entries", got.Files)
	}
	// a/A.sol is discovered first
	if got.Family != models.FamilyPancakeSwap {
		t.Errorf("Family = %q, want %q", got.Family, models.FamilyPancakeSwap)
	}
	for _, iface := range got.Interfaces {
		if iface == "IPangolinPair" {
			t.Error("Interfaces includes IPangolinPair from an excluded test directory")
		}
	}
}

func TestFingerprintGenericFork(t *testing.T) {
	root := t.TempDir()
	writeSource(t, root, "Router.sol", "IUniswapV2Router02 router; IUniswapV2Factory factory;")

	got, err := NewMatcher(nil, 1).FingerprintDirectory(context.Background(), root)
	if err != nil {
		t.Fatalf("FingerprintDirectory() error = %v", err)
	}
	if got.Family != models.FamilyGeneric {
		t.Errorf("Family = %q, want %q", got.Family, models.FamilyGeneric)
	}
	if got.Confidence != 55 {
		t.Errorf("Confidence = %d, want 55", got.Confidence)
	}
}

func TestFingerprintUnreadableFileSkipped(t *testing.T) {
	root := t.TempDir()
	good := writeSource(t, root, "Good.sol", "IUniswapV2Pair pair;")
	missing := filepath.Join(root, "Gone.sol")

	got, err := NewMatcher(nil, 2).Fingerprint(context.Background(), []string{missing, good})
	if err != nil {
		t.Fatalf("Fingerprint() error = %v", err)
	}
	if len(got.Files) != 1 || got.Files[0] != good {
		t.Errorf("Files = %v, want [%s]", got.Files, good)
	}
	if got.Confidence != 85 {
		t.Errorf("Confidence = %d, want 85", got.Confidence)
	}
}

func TestConfidenceMonotonic(t *testing.T) {
	root := t.TempDir()
	path := writeSource(t, root, "Pair.sol", "")
	m := NewMatcher(nil, 1)

	prev := -1
	content := ""
	for _, iface := range append([]string{""}, KnownInterfaces()...) {
		content += iface + ";\n"
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
		got, err := m.Fingerprint(context.Background(), []string{path})
		if err != nil {
			t.Fatalf("Fingerprint() error = %v", err)
		}
		if got.Confidence < prev {
			t.Errorf("Confidence dropped from %d to %d after adding %s", prev, got.Confidence, iface)
		}
		prev = got.Confidence
	}
}

func TestResolveFamily(t *testing.T) {
	tests := []struct {
		name       string
		interfaces []string
		want       models.Family
	}{
		{"none", nil, models.FamilyUnknown},
		{"first mapped wins", []string{"IUniswapV2Factory", "IJoePair", "IUniswapV2Pair"}, models.FamilyTraderJoe},
		{"only generic", []string{"IUniswapV2Router02"}, models.FamilyGeneric},
		{"spooky", []string{"ISpookySwapPair"}, models.FamilySpookySwap},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResolveFamily(tt.interfaces); got != tt.want {
				t.Errorf("ResolveFamily(%v) = %q, want %q", tt.interfaces, got, tt.want)
			}
		})
	}
}

func TestConfidence(t *testing.T) {
	tests := []struct {
		any    bool
		files  int
		family models.Family
		want   int
	}{
		{false, 0, models.FamilyUnknown, 0},
		{true, 1, models.FamilyGeneric, 55},
		{true, 2, models.FamilySushiSwap, 85},
		{true, 3, models.FamilyGeneric, 70},
		{true, 10, models.FamilyQuickSwap, 100},
	}
	for _, tt := range tests {
		if got := Confidence(tt.any, tt.files, tt.family); got != tt.want {
			t.Errorf("Confidence(%v, %d, %q) = %d, want %d", tt.any, tt.files, tt.family, got, tt.want)
		}
	}
}

func TestAdmitsLegacyCompiler(t *testing.T) {
	tests := []struct {
		pragmas []string
		want    bool
	}{
		{[]string{"^0.8.20"}, false},
		{[]string{"^0.5.16"}, true},
		{[]string{">=0.6.0 <0.8.0"}, true},
		{[]string{">= 0.8.0"}, false},
		{[]string{"=0.6.12"}, true},
		{[]string{"not a version"}, false},
		{nil, false},
	}
	for _, tt := range tests {
		if got := AdmitsLegacyCompiler(tt.pragmas, nil); got != tt.want {
			t.Errorf("AdmitsLegacyCompiler(%v) = %v, want %v", tt.pragmas, got, tt.want)
		}
	}
}
