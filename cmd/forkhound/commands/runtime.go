package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/bl4ck0w1/forkhound/internal/acquisition"
	"github.com/bl4ck0w1/forkhound/internal/discovery"
	"github.com/bl4ck0w1/forkhound/internal/orchestration"
	"github.com/bl4ck0w1/forkhound/internal/reporting"
	"github.com/bl4ck0w1/forkhound/internal/storage"
	"github.com/bl4ck0w1/forkhound/pkg/models"
	"github.com/bl4ck0w1/forkhound/pkg/utils"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Version is stamped by main for reports and the API.
var Version = "dev"

func loadConfig() (*models.Config, error) {
	cfg := models.DefaultConfig()
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// signalContext is cancelled on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigChan:
			logrus.Info("Received interrupt signal, shutting down gracefully...")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()
	return ctx, cancel
}

func newMetrics(cfg *models.Config) *utils.MetricsCollector {
	return utils.NewMetricsCollector(cfg.Metrics.Enabled)
}

// startMetrics serves /metrics in the background when enabled.
func startMetrics(ctx context.Context, cfg *models.Config, metrics *utils.MetricsCollector) {
	if !cfg.Metrics.Enabled {
		return
	}
	go func() {
		if err := metrics.StartServerWithContext(ctx, cfg.Metrics.Addr); err != nil {
			logrus.Warnf("Metrics server stopped: %v", err)
		}
	}()
	logrus.Infof("Metrics exposed on http://%s/metrics", cfg.Metrics.Addr)
}

func newScanner(cfg *models.Config, metrics *utils.MetricsCollector) *orchestration.Scanner {
	return orchestration.NewScanner(orchestration.ScanConfig{
		MaxConcurrentScans: cfg.Scan.MaxConcurrentScans,
		FileWorkers:        cfg.Scan.FileWorkers,
		DefaultTimeout:     cfg.Scan.DefaultTimeout,
		Excludes:           cfg.Scan.Excludes,
	}, metrics, logrus.StandardLogger())
}

type stores struct {
	local     *storage.LocalStorage
	results   *storage.ResultsRepository
	protocols *storage.ProtocolStore
}

func openStores(cfg *models.Config) (*stores, error) {
	logger := logrus.StandardLogger()
	local, err := storage.NewLocalStorage(cfg.Global.DataDir, cfg.Storage.Compression, cfg.Storage.Retention, logger)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	protocols, err := storage.NewProtocolStore(local, logger)
	if err != nil {
		return nil, fmt.Errorf("open protocol database: %w", err)
	}
	return &stores{
		local:     local,
		results:   storage.NewResultsRepository(local, cfg.Storage.CacheTTL, logger),
		protocols: protocols,
	}, nil
}

func newReportGenerator(cfg *models.Config, outputDir string, formats []string, compress bool) (*reporting.ReportGenerator, error) {
	if outputDir == "" {
		outputDir = cfg.Reporting.OutputDir
	}
	if len(formats) == 0 {
		formats = cfg.Reporting.Formats
	}
	return reporting.NewReportGenerator(reporting.ReportConfig{
		OutputDir:       outputDir,
		Formats:         formats,
		CompressReports: compress || cfg.Reporting.Compress,
		MaxReportAge:    cfg.Reporting.MaxReportAge,
		ToolVersion:     Version,
	}, logrus.StandardLogger())
}

func newDiscoveryClient(cfg *models.Config) *discovery.Client {
	return discovery.NewClient(discovery.ClientConfig{
		BaseURL:          cfg.Discovery.RegistryURL,
		RequestInterval:  cfg.Discovery.RequestDelay,
		HourlyBudget:     cfg.Discovery.HourlyBudget,
		Retries:          cfg.Discovery.Retries,
		RetryDelay:       cfg.Discovery.RetryDelay,
		RateLimitBackoff: cfg.Discovery.RateLimitBackoff,
		UserAgent:        "forkhound/" + Version,
	}, logrus.StandardLogger())
}

func discoveryFilter(cfg *models.Config) discovery.Filter {
	return discovery.Filter{
		MaxAgeDays:        cfg.Discovery.MaxAgeDays,
		MaxAudits:         cfg.Discovery.MaxAudits,
		MinTVL:            cfg.Discovery.MinTVL,
		MaxTVL:            cfg.Discovery.MaxTVL,
		RequireRepository: true,
	}
}

func newCloner(cfg *models.Config) *acquisition.Cloner {
	reposDir := cfg.Global.ReposDir
	if reposDir == "" {
		reposDir = filepath.Join(cfg.Global.DataDir, "protocols", "repos")
	}
	return acquisition.NewCloner(acquisition.Config{
		ReposDir:      reposDir,
		Token:         cfg.Acquisition.GithubToken,
		AllowedHosts:  cfg.Acquisition.AllowedHosts,
		CloneTimeout:  cfg.Acquisition.CloneTimeout,
		PullTimeout:   cfg.Acquisition.PullTimeout,
		MaxConcurrent: cfg.Acquisition.MaxConcurrent,
		Spacing:       cfg.Acquisition.Delay,
	}, logrus.StandardLogger())
}

// presentResults prints the console analysis and batch table.
func presentResults(results []*models.ScanResult) {
	p := reporting.NewPresenter(nil, nil)
	if err := p.PrintAnalysis(os.Stdout, results); err != nil {
		logrus.Warnf("Failed to print analysis: %v", err)
	}
	if err := p.PrintSummaryTable(os.Stdout, results); err != nil {
		logrus.Warnf("Failed to print summary: %v", err)
	}
}

// finishResults persists results and writes reports. Both steps log and
// continue on failure so a scan is never lost to a reporting problem.
func finishResults(ctx context.Context, cfg *models.Config, results []*models.ScanResult, save bool, gen *reporting.ReportGenerator) {
	if save {
		st, err := openStores(cfg)
		if err != nil {
			logrus.Warnf("Results not saved: %v", err)
		} else {
			for _, r := range results {
				if !r.Failed() && st.results.Unchanged(r.Protocol.DisplayName(), r.SourceDigest) {
					logrus.WithField("protocol", r.Protocol.DisplayName()).Info("Source tree unchanged since the previous scan")
				}
			}
			n := st.results.StoreAll(ctx, results)
			logrus.Infof("Saved %d/%d scan results to %s", n, len(results), st.local.BaseDir())
		}
	}

	if gen == nil {
		return
	}
	reports, err := gen.GenerateAll(results)
	if err != nil {
		logrus.Warnf("Report generation incomplete: %v", err)
	}
	for _, r := range reports {
		logrus.Infof("Generated %s report (%s): %s", r.Type, r.Format, r.Path)
	}
}
