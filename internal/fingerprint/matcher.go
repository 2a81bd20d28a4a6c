package fingerprint

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"runtime"

	"github.com/bl4ck0w1/forkhound/internal/sourcetree"
	"github.com/bl4ck0w1/forkhound/pkg/models"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	interfaceBonus   = 40
	manyFilesBonus   = 30
	fewFilesBonus    = 15
	manyFilesCutoff  = 3
	namedFamilyBonus = 30
	maxConfidence    = 100
)

type familyEntry struct {
	iface  string
	family models.Family
}

// knownInterfaces is checked by plain substring containment, in this order.
// Router and factory interfaces are shared by every V2 fork and name no
// family.
var knownInterfaces = []familyEntry{
	{"IUniswapV2Pair", models.FamilyUniswapV2},
	{"IPancakePair", models.FamilyPancakeSwap},
	{"IJoePair", models.FamilyTraderJoe},
	{"ISushiSwapPair", models.FamilySushiSwap},
	{"IQuickSwapPair", models.FamilyQuickSwap},
	{"ISpookySwapPair", models.FamilySpookySwap},
	{"IPangolinPair", models.FamilyPangolin},
	{"IUniswapV2Router02", ""},
	{"IUniswapV2Factory", ""},
}

var riskyCallSites = []string{
	"getReserves()",
	"token0()",
	"token1()",
	"balanceOf(0x",
}

var familyByInterface = func() map[string]models.Family {
	m := make(map[string]models.Family, len(knownInterfaces))
	for _, e := range knownInterfaces {
		if e.family != "" {
			m[e.iface] = e.family
		}
	}
	return m
}()

type fileIndicators struct {
	path       string
	read       bool
	interfaces []string
	riskyCalls []string
	pragmas    []string
}

type Matcher struct {
	logger  *logrus.Logger
	workers int
}

func NewMatcher(logger *logrus.Logger, workers int) *Matcher {
	if logger == nil {
		logger = logrus.New()
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Matcher{logger: logger, workers: workers}
}

// FingerprintDirectory walks root with the default exclusion rule and
// fingerprints the result.
func (m *Matcher) FingerprintDirectory(ctx context.Context, root string) (*models.FingerprintResult, error) {
	tree, err := sourcetree.Walk(ctx, root, sourcetree.DefaultOptions(), m.logger)
	if err != nil {
		return nil, err
	}
	return m.Fingerprint(ctx, tree.Files)
}

func (m *Matcher) Fingerprint(ctx context.Context, files []string) (*models.FingerprintResult, error) {
	indicators := make([]fileIndicators, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.workers)
	for i, path := range files {
		i, path := i, path
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			content, err := os.ReadFile(path)
			if err != nil {
				m.logger.WithFields(logrus.Fields{"file": path, "error": err}).Warn("Skipping unreadable source file")
				indicators[i] = fileIndicators{path: path}
				return nil
			}
			indicators[i] = analyzeContent(path, content)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("fingerprint: %w", err)
	}

	result := models.EmptyFingerprint()
	seenIface := map[string]bool{}
	seenCall := map[string]bool{}
	seenPragma := map[string]bool{}
	for _, ind := range indicators {
		if !ind.read {
			continue
		}
		if len(ind.interfaces) > 0 {
			result.Files = append(result.Files, ind.path)
		}
		for _, iface := range ind.interfaces {
			if !seenIface[iface] {
				seenIface[iface] = true
				result.Interfaces = append(result.Interfaces, iface)
			}
		}
		for _, call := range ind.riskyCalls {
			if !seenCall[call] {
				seenCall[call] = true
				result.RiskyCalls = append(result.RiskyCalls, call)
			}
		}
		for _, p := range ind.pragmas {
			if !seenPragma[p] {
				seenPragma[p] = true
				result.Pragmas = append(result.Pragmas, p)
			}
		}
	}

	result.Family = ResolveFamily(result.Interfaces)
	result.Confidence = Confidence(len(result.Interfaces) > 0, len(result.Files), result.Family)
	result.LegacyCompiler = AdmitsLegacyCompiler(result.Pragmas, m.logger)

	m.logger.WithFields(logrus.Fields{
		"family":     result.Family,
		"confidence": result.Confidence,
		"files":      len(result.Files),
		"scanned":    len(files),
	}).Debug("Fingerprint complete")

	return result, nil
}

func analyzeContent(path string, content []byte) fileIndicators {
	ind := fileIndicators{path: path, read: true}
	for _, e := range knownInterfaces {
		if bytes.Contains(content, []byte(e.iface)) {
			ind.interfaces = append(ind.interfaces, e.iface)
		}
	}
	for _, call := range riskyCallSites {
		if bytes.Contains(content, []byte(call)) {
			ind.riskyCalls = append(ind.riskyCalls, call)
		}
	}
	ind.pragmas = extractPragmas(content)
	return ind
}

// ResolveFamily returns the family of the first interface, in discovery
// order, that maps to one. Matches that map to no family yield the generic
// label; no matches yield unknown.
func ResolveFamily(interfaces []string) models.Family {
	if len(interfaces) == 0 {
		return models.FamilyUnknown
	}
	for _, iface := range interfaces {
		if fam, ok := familyByInterface[iface]; ok {
			return fam
		}
	}
	return models.FamilyGeneric
}

func Confidence(anyInterface bool, fileCount int, family models.Family) int {
	score := 0
	if anyInterface {
		score += interfaceBonus
	}
	switch {
	case fileCount >= manyFilesCutoff:
		score += manyFilesBonus
	case fileCount >= 1:
		score += fewFilesBonus
	}
	if family.IsNamed() {
		score += namedFamilyBonus
	}
	if score > maxConfidence {
		score = maxConfidence
	}
	return score
}

func KnownInterfaces() []string {
	out := make([]string, len(knownInterfaces))
	for i, e := range knownInterfaces {
		out[i] = e.iface
	}
	return out
}
