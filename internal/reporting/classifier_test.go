package reporting

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/bl4ck0w1/forkhound/pkg/models"
)

func TestArchetype(t *testing.T) {
	tests := []struct {
		name    string
		finding models.Finding
		want    string
	}{
		{
			"reserves in view",
			models.Finding{Pattern: `function.*view.*getReserves`, LineContent: "function spot() external view returns (uint) {"},
			ArchetypeDirectReservesOracle,
		},
		{
			"reserves assignment",
			models.Finding{Pattern: `getReserves\s*\(\s*\)[^}]*?=[^}]*?reserve`, LineContent: "pair.getReserves();"},
			ArchetypeReservesManipulation,
		},
		{
			"token division",
			models.Finding{Pattern: `token0\s*\(\s*\)[^/]*/[^}]*token1\s*\(\s*\)`, MatchedText: "token0() / token1()"},
			ArchetypeTokenDivisionOracle,
		},
		{
			"literal address",
			models.Finding{Pattern: `balanceOf\s*\(\s*0x[a-fA-F0-9]{40}\s*\)`, MatchedText: "balanceOf(0xabc)"},
			ArchetypeBalanceManipulation,
		},
		{
			"pair balance without address",
			models.Finding{Pattern: `IUniswapV2Pair.*balanceOf`, MatchedText: "IUniswapV2Pair(p).balanceOf"},
			ArchetypePriceManipulation,
		},
		{
			"reserve division",
			models.Finding{Pattern: `reserve0\s*/\s*reserve1`, MatchedText: "reserve0 / reserve1"},
			ArchetypePriceManipulation,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Archetype(tt.finding); got != tt.want {
				t.Errorf("Archetype() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestProfileChecksumsAddress(t *testing.T) {
	f := models.Finding{
		Pattern:     `balanceOf\s*\(\s*0x[a-fA-F0-9]{40}\s*\)`,
		MatchedText: "balanceOf(0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed)",
	}
	p := Profile(f, nil)
	if p.Address != "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed" {
		t.Errorf("Address = %s, want EIP-55 checksum form", p.Address)
	}
	if p.Name != "Raw Balance Manipulation" {
		t.Errorf("Name = %s, want Raw Balance Manipulation", p.Name)
	}
	if !reflect.DeepEqual(p.AffectedPools, []string{"Primary AMM Pool"}) {
		t.Errorf("AffectedPools = %v, want default pool", p.AffectedPools)
	}
}

func TestExtractPools(t *testing.T) {
	src := []byte(`
IUniswapV2Pair public lpPair = IUniswapV2Pair(factory.getPair(tokenA, WETH));
address wbnbPair = pairFor(factory, a, b);
IPancakePair other;
`)
	got := ExtractPools(src)
	want := []string{"IPancakePair", "IUniswapV2Pair", "getPair(tokenA, WETH)", "lpPair", "pairFor(factory, a, b)", "wbnbPair"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ExtractPools() = %q, want %q", got, want)
	}
}

func TestClassifierReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Oracle.sol")
	if err := os.WriteFile(path, []byte("IJoePair pair;\nuint p = reserve0 / reserve1;\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	f := models.Finding{File: path, Line: 2, Severity: models.SeverityHigh, Pattern: `reserve0\s*/\s*reserve1`}
	got := NewClassifier(nil).Classify(f)
	if !reflect.DeepEqual(got.Profile.AffectedPools, []string{"IJoePair"}) {
		t.Errorf("AffectedPools = %v, want [IJoePair]", got.Profile.AffectedPools)
	}
	if got.Finding != f {
		t.Errorf("Classify() altered the finding: %+v", got.Finding)
	}
}
