package detection

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"runtime"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/bl4ck0w1/forkhound/internal/sourcetree"
	"github.com/bl4ck0w1/forkhound/pkg/models"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const MaxMatchLength = 100

type PatternMatcher struct {
	taxonomy *Taxonomy
	logger   *logrus.Logger
	workers  int
}

func NewPatternMatcher(logger *logrus.Logger, workers int) *PatternMatcher {
	if logger == nil {
		logger = logrus.New()
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &PatternMatcher{
		taxonomy: DefaultTaxonomy(),
		logger:   logger,
		workers:  workers,
	}
}

func (pm *PatternMatcher) ScanDirectory(ctx context.Context, root string) ([]models.Finding, error) {
	tree, err := sourcetree.Walk(ctx, root, sourcetree.DefaultOptions(), pm.logger)
	if err != nil {
		return nil, err
	}
	return pm.Scan(ctx, tree.Files)
}

// Scan matches every signature against every file and returns findings
// ordered by severity, keeping file order within a severity.
func (pm *PatternMatcher) Scan(ctx context.Context, files []string) ([]models.Finding, error) {
	perFile := make([][]models.Finding, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(pm.workers)
	for i, path := range files {
		i, path := i, path
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			content, err := os.ReadFile(path)
			if err != nil {
				pm.logger.WithFields(logrus.Fields{"file": path, "error": err}).Warn("Skipping unreadable source file")
				return nil
			}
			perFile[i] = pm.MatchContent(path, content)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("pattern scan: %w", err)
	}

	findings := make([]models.Finding, 0)
	for _, fs := range perFile {
		findings = append(findings, fs...)
	}
	SortBySeverity(findings)
	return findings, nil
}

// MatchContent returns the findings for one file in signature order.
func (pm *PatternMatcher) MatchContent(path string, content []byte) []models.Finding {
	var findings []models.Finding
	var lines []string

	for _, sig := range pm.taxonomy.signatures {
		locs := sig.re.FindAllIndex(content, -1)
		if len(locs) == 0 {
			continue
		}
		if lines == nil {
			lines = strings.Split(string(content), "\n")
		}
		for _, loc := range locs {
			idx := bytes.Count(content[:loc[0]], []byte("\n"))
			lineContent := ""
			if idx < len(lines) {
				lineContent = strings.TrimSpace(lines[idx])
			}
			findings = append(findings, models.Finding{
				File:        path,
				Line:        idx + 1,
				Severity:    sig.Severity,
				SignatureID: sig.ID,
				Pattern:     sig.Pattern,
				MatchedText: truncate(string(content[loc[0]:loc[1]]), MaxMatchLength),
				LineContent: lineContent,
			})
		}
	}
	return findings
}

func SortBySeverity(findings []models.Finding) {
	sort.SliceStable(findings, func(i, j int) bool {
		return findings[i].Severity.Rank() > findings[j].Severity.Rank()
	})
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
