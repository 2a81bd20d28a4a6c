package commands

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/bl4ck0w1/forkhound/internal/orchestration"
	"github.com/bl4ck0w1/forkhound/pkg/models"
	"github.com/spf13/cobra"
)

func TestParseValueForKey(t *testing.T) {
	tests := []struct {
		key  string
		raw  string
		want interface{}
	}{
		{"metrics.enabled", "true", true},
		{"scan.file_workers", "16", 16},
		{"discovery.min_tvl", "2500.5", 2500.5},
		{"scan.default_timeout", "90s", "1m30s"},
		{"reporting.formats", "json, csv", []string{"json", "csv"}},
		{"reporting.formats", "txt", []string{"txt"}},
		{"api.addr", "0.0.0.0:9001", "0.0.0.0:9001"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.raw, func(t *testing.T) {
			if got := parseValueForKey(tt.key, tt.raw); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("parseValueForKey() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestSetNested(t *testing.T) {
	m := map[string]interface{}{"scan": map[string]interface{}{"file_workers": 8}}
	setNested(m, []string{"scan", "max_concurrent_scans"}, 2)
	setNested(m, []string{"api", "addr"}, ":9001")

	scan := m["scan"].(map[string]interface{})
	if scan["file_workers"] != 8 || scan["max_concurrent_scans"] != 2 {
		t.Errorf("scan = %v", scan)
	}
	if m["api"].(map[string]interface{})["addr"] != ":9001" {
		t.Errorf("api = %v", m["api"])
	}
}

func TestMergeProtocols(t *testing.T) {
	base := []models.ProtocolMetadata{{ID: "pancakeswap", Name: "PancakeSwap"}}
	extra := []models.ProtocolMetadata{
		{ID: "pancakeswap", Name: "PancakeSwap (registry)"},
		{Name: "Nova Swap"},
		{Name: "nova swap"},
	}
	got := mergeProtocols(base, extra)
	if len(got) != 2 || got[0].Name != "PancakeSwap" || got[1].Name != "Nova Swap" {
		t.Errorf("mergeProtocols() = %+v", got)
	}
}

func TestLoadManifest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "targets.yaml")
	content := `targets:
  - protocol: {name: Nova Swap, tvl: "250000", audits: 0, age_days: 12}
    source_path: ./repos/nova
  - protocol: {name: Orbit}
    source_path: ./repos/orbit
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	targets, err := loadManifest(path)
	if err != nil {
		t.Fatalf("loadManifest() error = %v", err)
	}
	if len(targets) != 2 {
		t.Fatalf("targets = %d, want 2", len(targets))
	}
	if targets[0].Protocol.TVL != 250000 || targets[0].Protocol.AgeDays != 12 || targets[0].SourcePath != "./repos/nova" {
		t.Errorf("first target = %+v", targets[0])
	}

	empty := filepath.Join(t.TempDir(), "empty.yaml")
	_ = os.WriteFile(empty, []byte("targets: []\n"), 0o644)
	if _, err := loadManifest(empty); err == nil {
		t.Error("empty manifest should be rejected")
	}
}

func TestProfilePathRejectsSeparators(t *testing.T) {
	if _, err := profilePath("../evil"); err == nil {
		t.Error("profilePath() accepted a path separator")
	}
}

func TestScanTargetsSkipsPathlessManifestEntries(t *testing.T) {
	scanner := orchestration.NewScanner(orchestration.ScanConfig{MaxConcurrentScans: 1, FileWorkers: 1}, nil, nil)
	pathless := []orchestration.Target{{Protocol: models.ProtocolMetadata{Name: "Nova Swap"}}}

	if got := scanTargets(context.Background(), scanner, pathless, true); len(got) != 0 {
		t.Errorf("manifest scan returned %d results, want 0", len(got))
	}

	missing := []orchestration.Target{{
		Protocol:   models.ProtocolMetadata{Name: "Orbit"},
		SourcePath: filepath.Join(t.TempDir(), "does-not-exist"),
	}}
	got := scanTargets(context.Background(), scanner, missing, false)
	if len(got) != 1 || !got[0].Failed() {
		t.Errorf("positional scan of a missing path = %+v, want one failed result", got)
	}
}

func TestCompletionCommand(t *testing.T) {
	tests := []struct {
		shell   string
		wantErr bool
	}{
		{"bash", false},
		{"zsh", false},
		{"fish", false},
		{"powershell", false},
		{"tcsh", true},
	}
	for _, tt := range tests {
		t.Run(tt.shell, func(t *testing.T) {
			root := &cobra.Command{Use: "forkhound"}
			root.AddCommand(NewCompletionCommand())
			var out bytes.Buffer
			root.SetOut(&out)
			root.SetErr(io.Discard)
			root.SetArgs([]string{"completion", tt.shell})

			err := root.Execute()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Execute() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && !strings.Contains(out.String(), "forkhound") {
				t.Errorf("%s script does not mention forkhound", tt.shell)
			}
		})
	}
}

func TestVersionCommand(t *testing.T) {
	for _, tt := range []struct {
		args []string
		want string
	}{
		{[]string{"--short"}, "1.2.3\n"},
		{nil, "scan gate"},
	} {
		cmd := NewVersionCommand("1.2.3", "abc", "2024-01-01")
		var out bytes.Buffer
		cmd.SetOut(&out)
		cmd.SetArgs(tt.args)
		if err := cmd.Execute(); err != nil {
			t.Fatalf("Execute(%v) error = %v", tt.args, err)
		}
		if !strings.Contains(out.String(), tt.want) {
			t.Errorf("Execute(%v) output = %q, want it to contain %q", tt.args, out.String(), tt.want)
		}
	}
}
