package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/bl4ck0w1/forkhound/internal/storage"
	"github.com/bl4ck0w1/forkhound/pkg/models"
	"github.com/bl4ck0w1/forkhound/pkg/utils"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func NewOutputCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "output",
		Short: "Manage stored results and reports",
		Long: `Manage stored scan results and report files: list them, view a result in
the terminal, regenerate reports and clean up old data.`,
	}
	cmd.AddCommand(newOutputListCommand())
	cmd.AddCommand(newOutputViewCommand())
	cmd.AddCommand(newOutputGenerateCommand())
	cmd.AddCommand(newOutputCleanupCommand())
	cmd.AddCommand(newOutputStatsCommand())
	return cmd
}

func newOutputListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored scan results",
		RunE:  runOutputList,
	}
	cmd.Flags().String("protocol", "", "Only results for this protocol")
	cmd.Flags().String("level", "", "Only results at this risk level (CRITICAL, HIGH, MEDIUM, LOW, MINIMAL)")
	cmd.Flags().Bool("latest", false, "Only the latest successful result per protocol")
	cmd.Flags().String("since", "", "Only results started within this window (e.g. 24h, 7d)")
	cmd.Flags().Bool("reports", false, "List report files instead of results")
	return cmd
}

func newOutputViewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "view <scan-id>",
		Short: "View a stored scan result",
		Args:  cobra.ExactArgs(1),
		RunE:  runOutputView,
	}
	cmd.Flags().Bool("json", false, "Print the raw result as JSON")
	return cmd
}

func newOutputGenerateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate <scan-id>...",
		Short: "Generate reports for stored scans",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runOutputGenerate,
	}
	cmd.Flags().StringP("output-dir", "o", "", "Report output directory (defaults to reporting.output_dir)")
	cmd.Flags().StringSliceP("formats", "f", nil, "Report formats (json, yaml, txt, csv)")
	cmd.Flags().Bool("compress", false, "Gzip report files")
	return cmd
}

func newOutputCleanupCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete old reports and expired results",
		RunE:  runOutputCleanup,
	}
	cmd.Flags().String("older-than", "", "Delete reports older than this (e.g. 720h, 30d; defaults to reporting.max_report_age)")
	return cmd
}

func newOutputStatsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show result and report statistics",
		RunE:  runOutputStats,
	}
}

func runOutputList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if reports, _ := cmd.Flags().GetBool("reports"); reports {
		rg, err := newReportGenerator(cfg, "", nil, false)
		if err != nil {
			return err
		}
		files, err := rg.ListReports()
		if err != nil {
			return err
		}
		if len(files) == 0 {
			fmt.Println("No reports found.")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tSIZE\tMODIFIED")
		for _, f := range files {
			fmt.Fprintf(w, "%s\t%s\t%s\n", f.Name, utils.HumanizeBytes(f.Size), f.ModTime.Format("2006-01-02 15:04"))
		}
		return w.Flush()
	}

	st, err := openStores(cfg)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	protocol, _ := cmd.Flags().GetString("protocol")
	level, _ := cmd.Flags().GetString("level")
	latest, _ := cmd.Flags().GetBool("latest")
	since, _ := cmd.Flags().GetString("since")

	var entries []storage.IndexEntry
	switch {
	case since != "":
		window, err := utils.ParseDurationExtended(since)
		if err != nil {
			return fmt.Errorf("invalid --since value: %w", err)
		}
		now := time.Now()
		entries = st.results.FindByTimeRange(ctx, now.Add(-window), now)
	case latest:
		for _, e := range st.results.LatestByProtocol(ctx) {
			entries = append(entries, e)
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].Score > entries[j].Score })
	case protocol != "":
		entries = st.results.FindByProtocol(ctx, protocol)
	case level != "":
		entries = st.results.FindByLevel(ctx, models.RiskLevel(strings.ToUpper(level)))
	default:
		entries = st.results.List(ctx)
	}

	if len(entries) == 0 {
		fmt.Println("No stored results.")
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SCAN ID\tPROTOCOL\tSTATUS\tLEVEL\tSCORE\tFINDINGS\tSTARTED")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.1f\t%d\t%s\n",
			e.ScanID, e.Protocol, e.Status, e.Level, e.Score, e.Findings, e.StartTime.Format("2006-01-02 15:04"))
	}
	return w.Flush()
}

func runOutputView(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := openStores(cfg)
	if err != nil {
		return err
	}
	result, err := st.results.FindByScanID(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to load scan results: %w", err)
	}

	if raw, _ := cmd.Flags().GetBool("json"); raw {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
	presentResults([]*models.ScanResult{result})
	return nil
}

func runOutputGenerate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := openStores(cfg)
	if err != nil {
		return err
	}

	results := make([]*models.ScanResult, 0, len(args))
	for _, id := range args {
		r, err := st.results.FindByScanID(cmd.Context(), id)
		if err != nil {
			return fmt.Errorf("failed to load scan %s: %w", id, err)
		}
		results = append(results, r)
	}

	outputDir, _ := cmd.Flags().GetString("output-dir")
	formats, _ := cmd.Flags().GetStringSlice("formats")
	compress, _ := cmd.Flags().GetBool("compress")
	rg, err := newReportGenerator(cfg, outputDir, formats, compress)
	if err != nil {
		return err
	}
	reports, err := rg.GenerateAll(results)
	for _, r := range reports {
		logrus.Infof("Generated %s report (%s): %s", r.Type, r.Format, r.Path)
	}
	return err
}

func runOutputCleanup(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	maxAge := cfg.Reporting.MaxReportAge
	if s, _ := cmd.Flags().GetString("older-than"); s != "" {
		if maxAge, err = utils.ParseDurationExtended(s); err != nil {
			return fmt.Errorf("invalid --older-than: %w", err)
		}
	}

	rg, err := newReportGenerator(cfg, "", nil, false)
	if err != nil {
		return err
	}
	removed, err := rg.CleanupOldReports(maxAge)
	if err != nil {
		return err
	}
	logrus.Infof("Removed %d reports older than %s", removed, utils.HumanizeDuration(maxAge))

	st, err := openStores(cfg)
	if err != nil {
		return err
	}
	expired := st.local.CleanupExpired()
	pruned, err := st.results.Prune(cmd.Context())
	if err != nil {
		return err
	}
	logrus.Infof("Removed %d expired result files, pruned %d index entries", expired, pruned)
	return nil
}

type statSection struct {
	title string
	stats map[string]interface{}
}

func runOutputStats(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := openStores(cfg)
	if err != nil {
		return err
	}
	rg, err := newReportGenerator(cfg, "", nil, false)
	if err != nil {
		return err
	}

	sections := []statSection{{"RESULTS", st.results.GetStats(cmd.Context())}}
	if s, err := st.local.GetStorageStats(); err == nil {
		sections = append(sections, statSection{"STORAGE", s})
	}
	if s, err := rg.GetReportStats(); err == nil {
		sections = append(sections, statSection{"REPORTS", s})
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	for _, sec := range sections {
		fmt.Fprintf(w, "%s:\t\n", sec.title)
		keys := make([]string, 0, len(sec.stats))
		for k := range sec.stats {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(w, "  %s:\t%v\n", k, formatStat(sec.stats[k]))
		}
		fmt.Fprintln(w)
	}
	return w.Flush()
}

func formatStat(v interface{}) interface{} {
	switch x := v.(type) {
	case time.Time:
		if x.IsZero() {
			return "-"
		}
		return x.Format(time.RFC3339)
	case time.Duration:
		return utils.HumanizeDuration(x)
	}
	return v
}
