package models

import (
	"encoding/json"
	"math"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func TestProtocolMetadataCoercion(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  ProtocolMetadata
	}{
		{
			name:  "well formed",
			input: `{"name":"Alpha","tvl":1500.5,"audits":2,"age_days":12,"repository":"https://github.com/a/b"}`,
			want:  ProtocolMetadata{Name: "Alpha", TVL: 1500.5, Audits: 2, AgeDays: 12, Repository: "https://github.com/a/b"},
		},
		{
			name:  "numbers as strings",
			input: `{"name":"Beta","tvl":"2500","age_days":"7","audits":"3"}`,
			want:  ProtocolMetadata{Name: "Beta", TVL: 2500, AgeDays: 7, Audits: 1},
		},
		{
			name:  "audits string zero",
			input: `{"name":"Gamma","audits":"0"}`,
			want:  ProtocolMetadata{Name: "Gamma"},
		},
		{
			name:  "garbage becomes zero",
			input: `{"name":"Delta","tvl":true,"audits":null,"age_days":"soon"}`,
			want:  ProtocolMetadata{Name: "Delta"},
		},
		{
			name:  "list repository takes first",
			input: `{"name":"Eps","github":["", "eps/core", "eps/periphery"]}`,
			want:  ProtocolMetadata{Name: "Eps", Repository: "eps/core"},
		},
		{
			name:  "negative audits clamp",
			input: `{"name":"Zeta","audits":-4}`,
			want:  ProtocolMetadata{Name: "Zeta"},
		},
		{
			name:  "huge counts saturate",
			input: `{"name":"Eta","age_days":1e30,"audits":1e30}`,
			want:  ProtocolMetadata{Name: "Eta", AgeDays: math.MaxInt32, Audits: math.MaxInt32},
		},
		{
			name:  "negative age clamps",
			input: `{"name":"Theta","age_days":-12}`,
			want:  ProtocolMetadata{Name: "Theta"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got ProtocolMetadata
			if err := json.Unmarshal([]byte(tt.input), &got); err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestProtocolMetadataYAML(t *testing.T) {
	var got ProtocolMetadata
	if err := yaml.Unmarshal([]byte("name: Orbit\ntvl: \"12000\"\naudits: 0\n"), &got); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if got.Name != "Orbit" || got.TVL != 12000 || got.Audits != 0 {
		t.Errorf("got %+v", got)
	}
}

func TestCoerceFloatRejectsNonFinite(t *testing.T) {
	for _, v := range []interface{}{"NaN", "Inf", "-Inf", "abc", nil} {
		if got := CoerceFloat(v); got != 0 {
			t.Errorf("CoerceFloat(%v) = %v, want 0", v, got)
		}
	}
}

func TestRiskLevelFromScore(t *testing.T) {
	tests := []struct {
		score float64
		want  RiskLevel
	}{
		{100, RiskLevelCritical},
		{80, RiskLevelCritical},
		{79.9, RiskLevelHigh},
		{60, RiskLevelHigh},
		{40, RiskLevelMedium},
		{20, RiskLevelLow},
		{19.99, RiskLevelMinimal},
		{0, RiskLevelMinimal},
	}
	for _, tt := range tests {
		if got := RiskLevelFromScore(tt.score); got != tt.want {
			t.Errorf("RiskLevelFromScore(%v) = %s, want %s", tt.score, got, tt.want)
		}
	}
}

func TestParseSeverity(t *testing.T) {
	if s, err := ParseSeverity(" high "); err != nil || s != SeverityHigh {
		t.Errorf("ParseSeverity(high) = %s, %v", s, err)
	}
	if _, err := ParseSeverity("LOW"); err == nil {
		t.Error("ParseSeverity(LOW) should fail")
	}
}

func TestConfigRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("DefaultConfig().Validate() error = %v", err)
	}
	cfg.Scan.DefaultTimeout = 90 * time.Second
	cfg.Reporting.Formats = []string{"json", "csv"}

	for _, name := range []string{"profile.yaml", "profile.json"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			if err := cfg.Save(path); err != nil {
				t.Fatalf("Save() error = %v", err)
			}
			loaded := &Config{}
			if err := loaded.Load(path); err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if loaded.Scan.DefaultTimeout != 90*time.Second || len(loaded.Reporting.Formats) != 2 {
				t.Errorf("loaded = %+v", loaded)
			}
		})
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Global.LogLevel = "loud"
	cfg.Reporting.Formats = []string{"pdf"}
	cfg.Scan.FileWorkers = 0
	cfg.Discovery.MinTVL = 5e7

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() should fail")
	}
	for _, want := range []string{"global.log_level", `"pdf"`, "scan.file_workers", "min_tvl"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %s", err, want)
		}
	}
}
