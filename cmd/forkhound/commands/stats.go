package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/bl4ck0w1/forkhound/pkg/models"
	"github.com/spf13/cobra"
)

func NewStatsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show scan history statistics",
		Long:  `Show statistics about stored scans, the latest risk level per protocol and the protocol database.`,
		RunE:  runStats,
	}
}

func runStats(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := openStores(cfg)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	entries := st.results.List(ctx)
	latest := st.results.LatestByProtocol(ctx)
	levels := map[models.RiskLevel]int{}
	for _, e := range latest {
		levels[e.Level]++
	}
	failed := 0
	for _, e := range entries {
		if e.Status == models.ScanStatusError {
			failed++
		}
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "Scan Statistics:\t")
	fmt.Fprintf(w, "  Stored scans:\t%d\n", len(entries))
	fmt.Fprintf(w, "  Failed scans:\t%d\n", failed)
	fmt.Fprintf(w, "  Protocols scanned:\t%d\n", len(latest))
	fmt.Fprintf(w, "  Known protocols:\t%d\n", st.protocols.Len())
	if len(entries) > 0 {
		fmt.Fprintf(w, "  Last scan:\t%s\n", entries[0].StartTime.Format("2006-01-02 15:04:05"))
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Latest risk level per protocol:\t")
	for _, l := range []models.RiskLevel{models.RiskLevelCritical, models.RiskLevelHigh, models.RiskLevelMedium, models.RiskLevelLow, models.RiskLevelMinimal} {
		fmt.Fprintf(w, "  %s:\t%d\n", l, levels[l])
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Engine:\t")
	fmt.Fprintf(w, "  Max concurrent scans:\t%d\n", cfg.Scan.MaxConcurrentScans)
	fmt.Fprintf(w, "  File workers:\t%d\n", cfg.Scan.FileWorkers)
	fmt.Fprintf(w, "  Per-protocol timeout:\t%s\n", cfg.Scan.DefaultTimeout)
	return w.Flush()
}
