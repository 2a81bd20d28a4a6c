package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bl4ck0w1/forkhound/internal/orchestration"
	"github.com/bl4ck0w1/forkhound/internal/reporting"
	"github.com/bl4ck0w1/forkhound/pkg/models"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func NewScanCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan [path]",
		Short: "Scan local protocol source trees",
		Long: `Fingerprint a local Solidity source tree, scan it for AMM price-oracle
and reserve-manipulation patterns and score the protocol.

Scan a single tree with metadata flags:
  forkhound scan ./repos/nova --name "Nova Swap" --tvl 250000 --audits 0 --age-days 12

or a batch described by a manifest:
  forkhound scan --targets targets.yaml

Manifest format:
  targets:
    - protocol: {name: Nova Swap, tvl: 250000, audits: 0, age_days: 12}
      source_path: ./repos/nova`,
		Args: cobra.MaximumNArgs(1),
		RunE: runScan,
	}

	cmd.Flags().String("name", "", "Protocol name (defaults to the directory name)")
	cmd.Flags().Float64("tvl", 0, "Value at risk in USD")
	cmd.Flags().Int("audits", 0, "Number of audits")
	cmd.Flags().Int("age-days", 0, "Protocol age in days")
	cmd.Flags().String("repository", "", "Repository URL recorded with the result")
	cmd.Flags().StringP("targets", "t", "", "YAML manifest of targets to scan as a batch")
	addReportFlags(cmd)
	return cmd
}

type targetManifest struct {
	Targets []orchestration.Target `yaml:"targets"`
}

func loadManifest(path string) ([]orchestration.Target, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m targetManifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	if len(m.Targets) == 0 {
		return nil, fmt.Errorf("manifest %s lists no targets", path)
	}
	return m.Targets, nil
}

// scanTargets scans a single positional path directly. Manifest targets always
// go through the batch so entries without a source path are skipped.
func scanTargets(ctx context.Context, scanner *orchestration.Scanner, targets []orchestration.Target, batch bool) []*models.ScanResult {
	if !batch && len(targets) == 1 {
		t := targets[0]
		logrus.Infof("Scanning %s at %s", t.Protocol.DisplayName(), t.SourcePath)
		return []*models.ScanResult{scanner.ScanProtocol(ctx, t.Protocol, t.SourcePath)}
	}
	logrus.Infof("Scanning %d targets", len(targets))
	return scanner.BatchScan(ctx, targets)
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	manifest, _ := cmd.Flags().GetString("targets")
	var targets []orchestration.Target
	switch {
	case manifest != "":
		if targets, err = loadManifest(manifest); err != nil {
			return err
		}
	case len(args) == 1:
		name, _ := cmd.Flags().GetString("name")
		tvl, _ := cmd.Flags().GetFloat64("tvl")
		audits, _ := cmd.Flags().GetInt("audits")
		age, _ := cmd.Flags().GetInt("age-days")
		repo, _ := cmd.Flags().GetString("repository")
		if name == "" {
			name = dirName(args[0])
		}
		targets = []orchestration.Target{{
			Protocol:   models.ProtocolMetadata{Name: name, TVL: tvl, Audits: audits, AgeDays: age, Repository: repo},
			SourcePath: args[0],
		}}
	default:
		return fmt.Errorf("a source path or --targets manifest is required")
	}

	ctx, cancel := signalContext()
	defer cancel()

	metrics := newMetrics(cfg)
	startMetrics(ctx, cfg, metrics)
	scanner := newScanner(cfg, metrics)

	results := scanTargets(ctx, scanner, targets, manifest != "")
	if len(results) == 0 {
		return fmt.Errorf("no scannable targets")
	}

	presentResults(results)

	gen, err := reportGeneratorFromFlags(cmd, cfg)
	if err != nil {
		return err
	}
	noSave, _ := cmd.Flags().GetBool("no-save")
	finishResults(ctx, cfg, results, !noSave, gen)

	if len(results) == 1 && results[0].Failed() {
		return fmt.Errorf("scan failed: %s", results[0].Error)
	}
	return nil
}

// reportGeneratorFromFlags returns nil when --no-reports is set.
func reportGeneratorFromFlags(cmd *cobra.Command, cfg *models.Config) (*reporting.ReportGenerator, error) {
	if noReports, _ := cmd.Flags().GetBool("no-reports"); noReports {
		return nil, nil
	}
	outputDir, _ := cmd.Flags().GetString("output-dir")
	formats, _ := cmd.Flags().GetStringSlice("formats")
	compress, _ := cmd.Flags().GetBool("compress")
	return newReportGenerator(cfg, outputDir, formats, compress)
}

func addReportFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("output-dir", "o", "", "Report output directory (defaults to reporting.output_dir)")
	cmd.Flags().StringSliceP("formats", "f", nil, "Report formats (json, yaml, txt, csv)")
	cmd.Flags().Bool("compress", false, "Gzip report files")
	cmd.Flags().Bool("no-save", false, "Do not persist scan results")
	cmd.Flags().Bool("no-reports", false, "Do not write report files")
}

func dirName(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Base(path)
	}
	return filepath.Base(abs)
}
