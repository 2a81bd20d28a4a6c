package formatters

import (
	"bytes"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/bl4ck0w1/forkhound/pkg/models"
)

type TXTFormatter struct{}

func (f *TXTFormatter) FileExtension() string { return models.ReportFormatTXT }

func (f *TXTFormatter) Format(report *models.Report) ([]byte, error) {
	var buf bytes.Buffer
	rule := strings.Repeat("=", 72)

	fmt.Fprintln(&buf, rule)
	fmt.Fprintf(&buf, "%s %s - %s\n", report.Metadata.ToolName, report.Metadata.ToolVersion, report.Type)
	fmt.Fprintf(&buf, "Generated: %s\n", report.GeneratedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintln(&buf, rule)

	if s := report.Summary; s != nil {
		tw := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
		fmt.Fprintf(tw, "Protocols scanned:\t%d\n", s.TotalProtocols)
		fmt.Fprintf(tw, "Failed scans:\t%d\n", s.FailedProtocols)
		fmt.Fprintf(tw, "Critical risk protocols:\t%d\n", s.CriticalRiskProtocols)
		fmt.Fprintf(tw, "High risk protocols:\t%d\n", s.HighRiskProtocols)
		fmt.Fprintf(tw, "Vulnerabilities:\t%d (critical %d, high %d, medium %d)\n", s.TotalFindings, s.CriticalFindings, s.HighFindings, s.MediumFindings)
		_ = tw.Flush()
	}

	if len(report.Protocols) > 0 {
		fmt.Fprintln(&buf)
		tw := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "PROTOCOL\tSCORE\tLEVEL\tAMM\tCONF\tVULNS\tERROR")
		for _, p := range report.Protocols {
			fmt.Fprintf(tw, "%s\t%.1f\t%s\t%s\t%d\t%d\t%s\n", p.Name, p.Score, p.Level, p.Family, p.Confidence, p.Findings, p.Error)
		}
		_ = tw.Flush()
	}

	if p := report.Protocol; p != nil {
		fmt.Fprintf(&buf, "Protocol: %s\n", p.Protocol.DisplayName())
		if p.Protocol.Repository != "" {
			fmt.Fprintf(&buf, "Repository: %s\n", p.Protocol.Repository)
		}
		if p.Risk != nil {
			fmt.Fprintf(&buf, "Risk: %.1f (%s)\n", p.Risk.OverallScore, p.Risk.Level)
			for _, factor := range p.Risk.Factors {
				fmt.Fprintf(&buf, "  - %s\n", factor)
			}
		}
		if p.Fingerprint != nil {
			fmt.Fprintf(&buf, "AMM: %s (confidence %d)\n", p.Fingerprint.Family.Label(), p.Fingerprint.Confidence)
		}
		for i, cf := range p.Findings {
			fmt.Fprintf(&buf, "\n#%d [%s] %s\n", i+1, cf.Severity, cf.Location())
			fmt.Fprintf(&buf, "    %s (%s)\n", cf.Profile.Name, cf.Profile.Type)
			fmt.Fprintf(&buf, "    Exploit: %s\n", cf.Profile.ExploitScenario)
			if cf.LineContent != "" {
				fmt.Fprintf(&buf, "    Code: %s\n", cf.LineContent)
			}
		}
	}

	if len(report.Recommendations) > 0 {
		fmt.Fprintln(&buf)
		fmt.Fprintln(&buf, "Recommendations:")
		for _, r := range report.Recommendations {
			fmt.Fprintf(&buf, "  * %s\n", r)
		}
	}
	return buf.Bytes(), nil
}
