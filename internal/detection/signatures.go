package detection

import (
	"regexp"

	"github.com/bl4ck0w1/forkhound/pkg/models"
)

type Signature struct {
	ID          string
	Severity    models.Severity
	Pattern     string
	Description string
	re          *regexp.Regexp
}

// Taxonomy is the fixed severity-ordered signature table. It is built once
// and never modified.
type Taxonomy struct {
	signatures []Signature
}

func (t *Taxonomy) Signatures() []Signature {
	out := make([]Signature, len(t.signatures))
	copy(out, t.signatures)
	return out
}

func (t *Taxonomy) Lookup(id string) (Signature, bool) {
	for _, s := range t.signatures {
		if s.ID == id {
			return s, true
		}
	}
	return Signature{}, false
}

// Patterns are matched case-insensitively over whole-file text. Dot does
// not cross newlines; the negated classes do.
var defaultTaxonomy = mustTaxonomy([]Signature{
	{
		ID:          "reserves-assignment",
		Severity:    models.SeverityCritical,
		Pattern:     `getReserves\s*\(\s*\)[^}]*?=[^}]*?reserve`,
		Description: "reserve accessor result assigned and used within the same block",
	},
	{
		ID:          "reserves-in-view",
		Severity:    models.SeverityCritical,
		Pattern:     `function.*view.*getReserves`,
		Description: "reserve accessor read inside a view function",
	},
	{
		ID:          "token-division",
		Severity:    models.SeverityHigh,
		Pattern:     `token0\s*\(\s*\)[^/]*/[^}]*token1\s*\(\s*\)`,
		Description: "token0 and token1 accessors combined by division",
	},
	{
		ID:          "reserve-division",
		Severity:    models.SeverityHigh,
		Pattern:     `reserve0\s*/\s*reserve1`,
		Description: "raw division of reserve fields",
	},
	{
		ID:          "balance-literal-address",
		Severity:    models.SeverityMedium,
		Pattern:     `balanceOf\s*\(\s*0x[a-fA-F0-9]{40}\s*\)`,
		Description: "balance query against a hard-coded address",
	},
	{
		ID:          "pair-balance-query",
		Severity:    models.SeverityMedium,
		Pattern:     `IUniswapV2Pair.*balanceOf`,
		Description: "pair interface used next to a balance query",
	},
})

func mustTaxonomy(sigs []Signature) *Taxonomy {
	for i := range sigs {
		sigs[i].re = regexp.MustCompile(`(?i)` + sigs[i].Pattern)
	}
	return &Taxonomy{signatures: sigs}
}

func DefaultTaxonomy() *Taxonomy { return defaultTaxonomy }
