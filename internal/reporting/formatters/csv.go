package formatters

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"

	"github.com/bl4ck0w1/forkhound/pkg/models"
)

type CSVFormatter struct{}

func (f *CSVFormatter) FileExtension() string { return models.ReportFormatCSV }

// Format writes one row per protocol for summaries and one row per finding
// for protocol reports.
func (f *CSVFormatter) Format(report *models.Report) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	var rows [][]string
	switch report.Type {
	case models.ReportTypeProtocol:
		rows = append(rows, []string{"protocol", "file", "line", "severity", "signature", "vulnerability_type", "name", "impact", "pools", "line_content"})
		if report.Protocol != nil {
			name := report.Protocol.Protocol.DisplayName()
			for _, cf := range report.Protocol.Findings {
				rows = append(rows, []string{
					name,
					cf.File,
					strconv.Itoa(cf.Line),
					string(cf.Severity),
					cf.SignatureID,
					cf.Profile.Archetype,
					cf.Profile.Name,
					cf.Profile.Impact,
					strings.Join(cf.Profile.AffectedPools, ";"),
					cf.LineContent,
				})
			}
		}
	default:
		rows = append(rows, []string{"protocol", "scan_id", "overall_score", "risk_level", "amm_type", "v2_confidence", "vulnerabilities", "critical", "error"})
		for _, p := range report.Protocols {
			rows = append(rows, []string{
				p.Name,
				p.ScanID,
				strconv.FormatFloat(p.Score, 'f', 1, 64),
				string(p.Level),
				p.Family,
				strconv.Itoa(p.Confidence),
				strconv.Itoa(p.Findings),
				strconv.Itoa(p.Critical),
				p.Error,
			})
		}
	}

	if err := w.WriteAll(rows); err != nil {
		return nil, fmt.Errorf("write csv report: %w", err)
	}
	return buf.Bytes(), nil
}
