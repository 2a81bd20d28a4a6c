package commands

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/bl4ck0w1/forkhound/pkg/models"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func NewDiscoverCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Find young, lightly audited protocols in the registry",
		Long: `Query the DeFi Llama protocol registry and keep protocols that are young,
lightly audited, inside the TVL band and publish a repository. Matches are
stored in the protocol database and optionally cloned.`,
		Args: cobra.NoArgs,
		RunE: runDiscover,
	}

	cmd.Flags().Int("max-age", 0, "Maximum protocol age in days (defaults to discovery.max_age_days)")
	cmd.Flags().Int("max-audits", -1, "Maximum number of audits (defaults to discovery.max_audits)")
	cmd.Flags().Float64("min-tvl", 0, "Minimum TVL in USD (defaults to discovery.min_tvl)")
	cmd.Flags().Float64("max-tvl", 0, "Maximum TVL in USD (defaults to discovery.max_tvl)")
	cmd.Flags().Bool("clone", false, "Clone or update the repositories of matching protocols")
	cmd.Flags().Bool("stored", false, "List high-risk protocols from the local database instead of querying the registry")
	return cmd
}

func runDiscover(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	f := discoveryFilter(cfg)
	if v, _ := cmd.Flags().GetInt("max-age"); v > 0 {
		f.MaxAgeDays = v
	}
	if v, _ := cmd.Flags().GetInt("max-audits"); v >= 0 {
		f.MaxAudits = v
	}
	if v, _ := cmd.Flags().GetFloat64("min-tvl"); v > 0 {
		f.MinTVL = v
	}
	if v, _ := cmd.Flags().GetFloat64("max-tvl"); v > 0 {
		f.MaxTVL = v
	}

	st, err := openStores(cfg)
	if err != nil {
		return err
	}

	if stored, _ := cmd.Flags().GetBool("stored"); stored {
		printProtocols(st.protocols.HighRisk(f))
		return nil
	}

	ctx, cancel := signalContext()
	defer cancel()

	found, total, err := newDiscoveryClient(cfg).Discover(ctx, f, time.Now())
	if err != nil {
		return fmt.Errorf("registry discovery: %w", err)
	}
	logrus.Infof("Kept %d of %d registry protocols", len(found), total)

	added, updated, err := st.protocols.Upsert(found)
	if err != nil {
		logrus.Warnf("Failed to update protocol database: %v", err)
	} else {
		logrus.Infof("Protocol database: %d added, %d updated (%d total)", added, updated, st.protocols.Len())
	}

	printProtocols(found)

	if clone, _ := cmd.Flags().GetBool("clone"); clone && len(found) > 0 {
		targets := newCloner(cfg).SyncAll(ctx, found)
		for _, t := range targets {
			if t.SourcePath != "" {
				fmt.Printf("  %s -> %s\n", t.Protocol.DisplayName(), t.SourcePath)
			}
		}
	}
	return nil
}

func printProtocols(protocols []models.ProtocolMetadata) {
	if len(protocols) == 0 {
		fmt.Println("No protocols matched.")
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tCHAIN\tTVL\tAUDITS\tAGE(d)\tREPOSITORY")
	for _, p := range protocols {
		fmt.Fprintf(w, "%s\t%s\t%.0f\t%d\t%d\t%s\n", p.DisplayName(), p.Chain, p.TVL, p.Audits, p.AgeDays, p.Repository)
	}
	_ = w.Flush()
}
