package reporting

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/bl4ck0w1/forkhound/pkg/models"
)

const maxConsoleFindings = 10

type findingView struct {
	Index   int
	Finding models.ClassifiedFinding
}

// Presenter renders scan results for terminal output.
type Presenter struct {
	classifier *Classifier
	templates  *TemplateManager
}

func NewPresenter(classifier *Classifier, templates *TemplateManager) *Presenter {
	if classifier == nil {
		classifier = NewClassifier(nil)
	}
	if templates == nil {
		templates = NewTemplateManager()
	}
	return &Presenter{classifier: classifier, templates: templates}
}

// PrintAnalysis writes a detailed block per protocol with at most ten
// CRITICAL or HIGH findings each.
func (p *Presenter) PrintAnalysis(w io.Writer, results []*models.ScanResult) error {
	rule := strings.Repeat("=", 80)
	for _, r := range results {
		fmt.Fprintln(w, rule)
		fmt.Fprintf(w, "%s\n", r.Protocol.DisplayName())
		if r.Failed() {
			fmt.Fprintf(w, "  scan failed: %s\n", r.Error)
			continue
		}
		fmt.Fprintf(w, "  Risk:   %.1f (%s)\n", r.Score(), r.Level())
		if fp := r.Fingerprint; fp != nil {
			fmt.Fprintf(w, "  AMM:    %s (confidence %d%%)\n", fp.Family.Label(), fp.Confidence)
		}
		if r.Protocol.TVL > 0 {
			fmt.Fprintf(w, "  TVL:    $%s\n", formatUSD(r.Protocol.TVL))
		}
		stats := models.CountFindings(r.Findings)
		fmt.Fprintf(w, "  Vulns:  %d (critical %d, high %d, medium %d)\n", stats.Total, stats.Critical, stats.High, stats.Medium)

		shown := 0
		for _, f := range r.Findings {
			if shown == maxConsoleFindings {
				break
			}
			if !f.IsHighImpact() {
				continue
			}
			shown++
			view := findingView{Index: shown, Finding: p.classifier.Classify(f)}
			if err := p.templates.Render(w, TemplateFindingDetail, view); err != nil {
				return err
			}
		}
		if remaining := stats.Critical + stats.High - shown; remaining > 0 {
			fmt.Fprintf(w, "\n  ... and %d more high-impact findings in the protocol report\n", remaining)
		}
	}
	return nil
}

func (p *Presenter) PrintSummaryTable(w io.Writer, results []*models.ScanResult) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PROTOCOL\tSCORE\tLEVEL\tAMM\tCONF\tCRIT\tHIGH\tMED\tSTATUS")
	for _, r := range results {
		stats := models.CountFindings(r.Findings)
		family, conf := models.FamilyUnknown.Label(), 0
		if r.Fingerprint != nil {
			family, conf = r.Fingerprint.Family.Label(), r.Fingerprint.Confidence
		}
		status := string(r.Status)
		if r.Failed() {
			status = "error: " + r.Error
		}
		fmt.Fprintf(tw, "%s\t%.1f\t%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
			r.Protocol.DisplayName(), r.Score(), r.Level(), family, conf,
			stats.Critical, stats.High, stats.Medium, status)
	}
	return tw.Flush()
}

func formatUSD(v float64) string {
	switch {
	case v >= 1e9:
		return fmt.Sprintf("%.2fB", v/1e9)
	case v >= 1e6:
		return fmt.Sprintf("%.2fM", v/1e6)
	case v >= 1e3:
		return fmt.Sprintf("%.1fK", v/1e3)
	}
	return fmt.Sprintf("%.0f", v)
}
