package models

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Global      GlobalConfig      `yaml:"global" json:"global" mapstructure:"global"`
	Scan        ScanConfig        `yaml:"scan" json:"scan" mapstructure:"scan"`
	Discovery   DiscoveryConfig   `yaml:"discovery" json:"discovery" mapstructure:"discovery"`
	Acquisition AcquisitionConfig `yaml:"acquisition" json:"acquisition" mapstructure:"acquisition"`
	Reporting   ReportingConfig   `yaml:"reporting" json:"reporting" mapstructure:"reporting"`
	Storage     StorageConfig     `yaml:"storage" json:"storage" mapstructure:"storage"`
	API         APIConfig         `yaml:"api" json:"api" mapstructure:"api"`
	Metrics     MetricsConfig     `yaml:"metrics" json:"metrics" mapstructure:"metrics"`
}

type GlobalConfig struct {
	LogLevel  string `yaml:"log_level" json:"log_level" mapstructure:"log_level"`
	LogFormat string `yaml:"log_format" json:"log_format" mapstructure:"log_format"`
	LogFile   string `yaml:"log_file" json:"log_file" mapstructure:"log_file"`
	DataDir   string `yaml:"data_dir" json:"data_dir" mapstructure:"data_dir"`
	ReposDir  string `yaml:"repos_dir" json:"repos_dir" mapstructure:"repos_dir"`
}

type ScanConfig struct {
	MaxConcurrentScans int           `yaml:"max_concurrent_scans" json:"max_concurrent_scans" mapstructure:"max_concurrent_scans"`
	FileWorkers        int           `yaml:"file_workers" json:"file_workers" mapstructure:"file_workers"`
	DefaultTimeout     time.Duration `yaml:"default_timeout" json:"default_timeout" mapstructure:"default_timeout"`
	Excludes           []string      `yaml:"excludes" json:"excludes" mapstructure:"excludes"`
}

type DiscoveryConfig struct {
	RegistryURL      string        `yaml:"registry_url" json:"registry_url" mapstructure:"registry_url"`
	RequestDelay     time.Duration `yaml:"request_delay" json:"request_delay" mapstructure:"request_delay"`
	HourlyBudget     int           `yaml:"hourly_budget" json:"hourly_budget" mapstructure:"hourly_budget"`
	Retries          int           `yaml:"retries" json:"retries" mapstructure:"retries"`
	RetryDelay       time.Duration `yaml:"retry_delay" json:"retry_delay" mapstructure:"retry_delay"`
	RateLimitBackoff time.Duration `yaml:"rate_limit_backoff" json:"rate_limit_backoff" mapstructure:"rate_limit_backoff"`
	MaxAgeDays       int           `yaml:"max_age_days" json:"max_age_days" mapstructure:"max_age_days"`
	MaxAudits        int           `yaml:"max_audits" json:"max_audits" mapstructure:"max_audits"`
	MinTVL           float64       `yaml:"min_tvl" json:"min_tvl" mapstructure:"min_tvl"`
	MaxTVL           float64       `yaml:"max_tvl" json:"max_tvl" mapstructure:"max_tvl"`
	TargetsFile      string        `yaml:"targets_file" json:"targets_file" mapstructure:"targets_file"`
}

type AcquisitionConfig struct {
	GithubToken   string        `yaml:"github_token,omitempty" json:"github_token,omitempty" mapstructure:"github_token"`
	CloneTimeout  time.Duration `yaml:"clone_timeout" json:"clone_timeout" mapstructure:"clone_timeout"`
	PullTimeout   time.Duration `yaml:"pull_timeout" json:"pull_timeout" mapstructure:"pull_timeout"`
	MaxConcurrent int           `yaml:"max_concurrent" json:"max_concurrent" mapstructure:"max_concurrent"`
	Delay         time.Duration `yaml:"delay" json:"delay" mapstructure:"delay"`
	AllowedHosts  []string      `yaml:"allowed_hosts" json:"allowed_hosts" mapstructure:"allowed_hosts"`
}

type ReportingConfig struct {
	OutputDir    string        `yaml:"output_dir" json:"output_dir" mapstructure:"output_dir"`
	Formats      []string      `yaml:"formats" json:"formats" mapstructure:"formats"`
	Compress     bool          `yaml:"compress" json:"compress" mapstructure:"compress"`
	MaxReportAge time.Duration `yaml:"max_report_age" json:"max_report_age" mapstructure:"max_report_age"`
}

type StorageConfig struct {
	Compression bool          `yaml:"compression" json:"compression" mapstructure:"compression"`
	Retention   time.Duration `yaml:"retention" json:"retention" mapstructure:"retention"`
	CacheTTL    time.Duration `yaml:"cache_ttl" json:"cache_ttl" mapstructure:"cache_ttl"`
}

type APIConfig struct {
	Addr         string        `yaml:"addr" json:"addr" mapstructure:"addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout" mapstructure:"write_timeout"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled" mapstructure:"enabled"`
	Addr    string `yaml:"addr" json:"addr" mapstructure:"addr"`
}

func DefaultConfig() *Config {
	return &Config{
		Global: GlobalConfig{
			LogLevel:  "info",
			LogFormat: "text",
			DataDir:   "./data",
			ReposDir:  "./data/protocols/repos",
		},
		Scan: ScanConfig{
			MaxConcurrentScans: 4,
			FileWorkers:        8,
			DefaultTimeout:     10 * time.Minute,
			Excludes:           []string{"node_modules", "test"},
		},
		Discovery: DiscoveryConfig{
			RegistryURL:      "https://api.llama.fi",
			RequestDelay:     2 * time.Second,
			HourlyBudget:     4500,
			Retries:          3,
			RetryDelay:       5 * time.Second,
			RateLimitBackoff: time.Minute,
			MaxAgeDays:       90,
			MaxAudits:        1,
			MinTVL:           1000,
			MaxTVL:           10_000_000,
		},
		Acquisition: AcquisitionConfig{
			CloneTimeout:  5 * time.Minute,
			PullTimeout:   3 * time.Minute,
			MaxConcurrent: 2,
			Delay:         time.Second,
			AllowedHosts:  []string{"github.com", "gitlab.com", "bitbucket.org"},
		},
		Reporting: ReportingConfig{
			OutputDir:    "./reports",
			Formats:      []string{"json"},
			MaxReportAge: 30 * 24 * time.Hour,
		},
		Storage: StorageConfig{
			Compression: false,
			Retention:   90 * 24 * time.Hour,
			CacheTTL:    10 * time.Minute,
		},
		API: APIConfig{
			Addr:         "127.0.0.1:9001",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Minute,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    "127.0.0.1:9090",
		},
	}
}

func (c *Config) Validate() error {
	var errs []string

	switch strings.ToLower(c.Global.LogLevel) {
	case "trace", "debug", "info", "warn", "warning", "error", "fatal", "panic":
	default:
		errs = append(errs, "global.log_level must be one of trace|debug|info|warn|error|fatal|panic")
	}
	switch strings.ToLower(c.Global.LogFormat) {
	case "", "text", "json":
	default:
		errs = append(errs, "global.log_format must be text or json")
	}
	if c.Global.DataDir == "" {
		errs = append(errs, "global.data_dir must not be empty")
	}

	if c.Scan.MaxConcurrentScans <= 0 {
		errs = append(errs, "scan.max_concurrent_scans must be > 0")
	}
	if c.Scan.FileWorkers <= 0 {
		errs = append(errs, "scan.file_workers must be > 0")
	}
	if c.Scan.DefaultTimeout < 0 {
		errs = append(errs, "scan.default_timeout must be >= 0")
	}

	if c.Discovery.HourlyBudget <= 0 {
		errs = append(errs, "discovery.hourly_budget must be > 0")
	}
	if c.Discovery.Retries < 0 {
		errs = append(errs, "discovery.retries must be >= 0")
	}
	if c.Discovery.RequestDelay < 0 || c.Discovery.RetryDelay < 0 || c.Discovery.RateLimitBackoff < 0 {
		errs = append(errs, "discovery delays must be >= 0")
	}
	if c.Discovery.MaxTVL > 0 && c.Discovery.MinTVL > c.Discovery.MaxTVL {
		errs = append(errs, "discovery.min_tvl must be <= max_tvl")
	}

	if c.Acquisition.CloneTimeout <= 0 || c.Acquisition.PullTimeout <= 0 {
		errs = append(errs, "acquisition.{clone_timeout,pull_timeout} must be > 0")
	}
	if c.Acquisition.MaxConcurrent <= 0 {
		errs = append(errs, "acquisition.max_concurrent must be > 0")
	}
	if len(c.Acquisition.AllowedHosts) == 0 {
		errs = append(errs, "acquisition.allowed_hosts must not be empty")
	}

	if c.Reporting.OutputDir == "" {
		errs = append(errs, "reporting.output_dir must not be empty")
	}
	if len(c.Reporting.Formats) == 0 {
		errs = append(errs, "reporting.formats must include at least one format")
	}
	for _, f := range c.Reporting.Formats {
		if !IsReportFormat(f) {
			errs = append(errs, fmt.Sprintf("reporting.format %q is not supported", f))
		}
	}

	if c.Storage.Retention < 0 {
		errs = append(errs, "storage.retention must be >= 0")
	}

	if c.API.Addr == "" {
		errs = append(errs, "api.addr must not be empty")
	}
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		errs = append(errs, "metrics.addr must be set when metrics are enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func (c *Config) Save(path string) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}

	var (
		data []byte
		err  error
	)
	if strings.ToLower(filepath.Ext(path)) == ".json" {
		data, err = json.MarshalIndent(c, "", "  ")
	} else {
		data, err = yaml.Marshal(c)
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write temp config: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("atomically write config: %w", err)
	}
	return nil
}

func (c *Config) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := json.Unmarshal(data, c); err != nil {
			return fmt.Errorf("parse json: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("parse yaml: %w", err)
		}
	}

	return c.Validate()
}
