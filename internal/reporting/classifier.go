package reporting

import (
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/bl4ck0w1/forkhound/pkg/models"
	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
)

const (
	ArchetypeDirectReservesOracle = "direct_reserves_oracle"
	ArchetypeReservesManipulation = "reserves_manipulation"
	ArchetypeTokenDivisionOracle  = "token_division_oracle"
	ArchetypeBalanceManipulation  = "balance_manipulation"
	ArchetypePriceManipulation    = "amm_price_manipulation"

	defaultPool = "Primary AMM Pool"
)

var archetypes = map[string]models.VulnerabilityProfile{
	ArchetypeDirectReservesOracle: {
		Name:              "Direct Reserves Price Oracle",
		Type:              "CRITICAL - Oracle Manipulation",
		ExploitScenario:   "Flash loan to manipulate pool reserves and exploit price-dependent functions",
		AffectedContracts: []string{"Price Oracles", "Lending Protocols", "Yield Farms"},
		Impact:            "HIGH - Fund theft through price manipulation",
	},
	ArchetypeReservesManipulation: {
		Name:              "Reserves-Based Price Calculation",
		Type:              "CRITICAL - Economic Attack",
		ExploitScenario:   "Large swaps to manipulate spot prices for arbitrage or collateral exploitation",
		AffectedContracts: []string{"AMM Pairs", "Router Contracts", "Price Feeds"},
		Impact:            "HIGH - Economic exploitation",
	},
	ArchetypeTokenDivisionOracle: {
		Name:              "Manual Token Price Calculation",
		Type:              "CRITICAL - Price Oracle",
		ExploitScenario:   "Manipulate token ratios to create false pricing for DeFi operations",
		AffectedContracts: []string{"Custom Oracles", "Price Calculators", "Swap Functions"},
		Impact:            "HIGH - Direct price manipulation",
	},
	ArchetypeBalanceManipulation: {
		Name:              "Raw Balance Manipulation",
		Type:              "HIGH - Economic Attack",
		ExploitScenario:   "Temporarily inflate pool balances to manipulate derived values",
		AffectedContracts: []string{"Liquidity Pools", "Balance Checks", "Value Calculations"},
		Impact:            "MEDIUM-HIGH - Economic attacks",
	},
	ArchetypePriceManipulation: {
		Name:              "AMM Price Manipulation",
		Type:              "CRITICAL - DeFi Exploit",
		ExploitScenario:   "Standard AMM price manipulation through large swaps",
		AffectedContracts: []string{"AMM Contracts", "Price Feeds"},
		Impact:            "HIGH - Economic loss",
	},
}

var (
	pairAssignment = regexp.MustCompile(`(\w+)[Pp]air\s*=\s*[^;]+`)
	pairInterface  = regexp.MustCompile(`IPancakePair|IUniswapV2Pair|IJoePair`)
	pairLookup     = regexp.MustCompile(`(?:pairFor|getPair)\([^)]+\)`)
	hexAddress     = regexp.MustCompile(`0x[a-fA-F0-9]{40}`)
)

// Classifier attaches a descriptive archetype to findings for presentation.
type Classifier struct {
	logger *logrus.Logger
}

func NewClassifier(logger *logrus.Logger) *Classifier {
	if logger == nil {
		logger = logrus.New()
	}
	return &Classifier{logger: logger}
}

func Archetype(f models.Finding) string {
	switch {
	case strings.Contains(f.Pattern, "getReserves"):
		if strings.Contains(f.LineContent, "view") || strings.Contains(f.LineContent, "returns") {
			return ArchetypeDirectReservesOracle
		}
		return ArchetypeReservesManipulation
	case strings.Contains(f.Pattern, "token0") && strings.Contains(f.Pattern, "token1") && strings.Contains(f.MatchedText, "/"):
		return ArchetypeTokenDivisionOracle
	case strings.Contains(f.Pattern, "balanceOf") && strings.Contains(f.MatchedText, "0x"):
		return ArchetypeBalanceManipulation
	}
	return ArchetypePriceManipulation
}

// Classify reads the finding's file to locate affected pools. A file that
// cannot be read still yields a profile.
func (c *Classifier) Classify(f models.Finding) models.ClassifiedFinding {
	content, err := os.ReadFile(f.File)
	if err != nil {
		c.logger.WithFields(logrus.Fields{"file": f.File, "error": err}).Debug("Classifying without file content")
		content = nil
	}
	return models.ClassifiedFinding{Finding: f, Profile: Profile(f, content)}
}

func (c *Classifier) ClassifyAll(findings []models.Finding) []models.ClassifiedFinding {
	out := make([]models.ClassifiedFinding, len(findings))
	for i, f := range findings {
		out[i] = c.Classify(f)
	}
	return out
}

func Profile(f models.Finding, content []byte) models.VulnerabilityProfile {
	kind := Archetype(f)
	p := archetypes[kind]
	p.Archetype = kind
	p.AffectedContracts = append([]string(nil), p.AffectedContracts...)
	p.AffectedPools = ExtractPools(content)
	if kind == ArchetypeBalanceManipulation {
		if addr := hexAddress.FindString(f.MatchedText); common.IsHexAddress(addr) {
			p.Address = common.HexToAddress(addr).Hex()
		}
	}
	return p
}

// ExtractPools lists pair references found in a source file.
func ExtractPools(content []byte) []string {
	if len(content) == 0 {
		return []string{defaultPool}
	}
	seen := map[string]struct{}{}
	for _, m := range pairAssignment.FindAllSubmatch(content, -1) {
		seen[string(m[1])+"Pair"] = struct{}{}
	}
	for _, m := range pairInterface.FindAll(content, -1) {
		seen[string(m)] = struct{}{}
	}
	for _, m := range pairLookup.FindAll(content, -1) {
		seen[string(m)] = struct{}{}
	}
	if len(seen) == 0 {
		return []string{defaultPool}
	}
	pools := make([]string, 0, len(seen))
	for p := range seen {
		pools = append(pools, p)
	}
	sort.Strings(pools)
	return pools
}
