package commands

import (
	"fmt"
	"time"

	"github.com/bl4ck0w1/forkhound/internal/discovery"
	"github.com/bl4ck0w1/forkhound/pkg/models"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func NewHuntCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hunt",
		Short: "Run the full pipeline against known and discovered forks",
		Long: `Collect targets (the curated V2 fork list, a targets file and optionally
registry discovery), clone or update their repositories, scan every tree,
print the ranked analysis and write reports.`,
		Args: cobra.NoArgs,
		RunE: runHunt,
	}

	cmd.Flags().String("targets-file", "", "YAML target list replacing the curated forks (defaults to discovery.targets_file)")
	cmd.Flags().Bool("discover", false, "Add high-risk protocols discovered from the registry")
	cmd.Flags().Int("limit", 0, "Maximum number of targets to hunt (0 = all)")
	addReportFlags(cmd)
	return cmd
}

func collectTargets(cmd *cobra.Command, cfg *models.Config) ([]models.ProtocolMetadata, error) {
	file, _ := cmd.Flags().GetString("targets-file")
	if file == "" {
		file = cfg.Discovery.TargetsFile
	}

	var protocols []models.ProtocolMetadata
	if file != "" {
		loaded, err := discovery.LoadTargets(file)
		if err != nil {
			return nil, err
		}
		logrus.Infof("Loaded %d targets from %s", len(loaded), file)
		protocols = loaded
	} else {
		protocols = discovery.CuratedForks()
		logrus.Infof("Using %d curated V2 fork targets", len(protocols))
	}

	if discover, _ := cmd.Flags().GetBool("discover"); discover {
		found, total, err := newDiscoveryClient(cfg).Discover(cmd.Context(), discoveryFilter(cfg), time.Now())
		if err != nil {
			logrus.Warnf("Registry discovery failed, continuing with known targets: %v", err)
		} else {
			logrus.Infof("Registry discovery kept %d of %d protocols", len(found), total)
			protocols = mergeProtocols(protocols, found)
		}
	}

	if limit, _ := cmd.Flags().GetInt("limit"); limit > 0 && len(protocols) > limit {
		protocols = protocols[:limit]
	}
	return protocols, nil
}

// mergeProtocols appends extra protocols whose key is not already present.
func mergeProtocols(base, extra []models.ProtocolMetadata) []models.ProtocolMetadata {
	seen := make(map[string]bool, len(base))
	for _, p := range base {
		seen[p.Key()] = true
	}
	for _, p := range extra {
		if !seen[p.Key()] {
			seen[p.Key()] = true
			base = append(base, p)
		}
	}
	return base
}

func runHunt(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()
	cmd.SetContext(ctx)

	protocols, err := collectTargets(cmd, cfg)
	if err != nil {
		return err
	}
	if len(protocols) == 0 {
		return fmt.Errorf("no targets to hunt")
	}

	st, err := openStores(cfg)
	if err != nil {
		return err
	}
	if added, updated, err := st.protocols.Upsert(protocols); err != nil {
		logrus.Warnf("Failed to update protocol database: %v", err)
	} else {
		logrus.Infof("Protocol database: %d added, %d updated", added, updated)
	}

	logrus.Infof("Acquiring %d repositories", len(protocols))
	targets := newCloner(cfg).SyncAll(ctx, protocols)

	metrics := newMetrics(cfg)
	startMetrics(ctx, cfg, metrics)
	results := newScanner(cfg, metrics).BatchScan(ctx, targets)
	if len(results) == 0 {
		return fmt.Errorf("no repositories could be acquired")
	}

	presentResults(results)

	gen, err := reportGeneratorFromFlags(cmd, cfg)
	if err != nil {
		return err
	}
	noSave, _ := cmd.Flags().GetBool("no-save")
	finishResults(ctx, cfg, results, !noSave, gen)
	return nil
}
