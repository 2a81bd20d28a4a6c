package commands

import (
	"fmt"
	"runtime"
	"text/tabwriter"

	"github.com/bl4ck0w1/forkhound/internal/detection"
	"github.com/bl4ck0w1/forkhound/internal/fingerprint"
	"github.com/bl4ck0w1/forkhound/internal/orchestration"
	"github.com/spf13/cobra"
)

func NewVersionCommand(version, commit, buildDate string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the forkhound build and detection engine versions",
		RunE: func(cmd *cobra.Command, args []string) error {
			if short, _ := cmd.Flags().GetBool("short"); short {
				fmt.Fprintln(cmd.OutOrStdout(), version)
				return nil
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "forkhound\t%s\n", version)
			fmt.Fprintf(w, "commit\t%s\n", commit)
			fmt.Fprintf(w, "built\t%s\n", buildDate)
			fmt.Fprintf(w, "go\t%s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
			fmt.Fprintf(w, "known interfaces\t%d\n", len(fingerprint.KnownInterfaces()))
			fmt.Fprintf(w, "signatures\t%d\n", len(detection.DefaultTaxonomy().Signatures()))
			fmt.Fprintf(w, "scan gate\tconfidence > %d\n", orchestration.ScanGate)
			return w.Flush()
		},
	}
	cmd.Flags().Bool("short", false, "Print only the version number")
	return cmd
}
