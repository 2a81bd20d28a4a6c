package discovery

import (
	"fmt"
	"os"

	"github.com/bl4ck0w1/forkhound/pkg/models"
	"gopkg.in/yaml.v3"
)

const TypeUniswapV2Fork = "uniswap_v2_fork"

var curatedForks = []models.ProtocolMetadata{
	{
		ID:           "pancakeswap",
		Name:         "PancakeSwap",
		Repository:   "https://github.com/pancakeswap/pancake-swap-core",
		Type:         TypeUniswapV2Fork,
		RiskPriority: "HIGH",
		Chain:        "BSC",
		Description:  "BSC Uniswap V2 fork - large TVL, custom modifications",
	},
	{
		ID:           "quickswap",
		Name:         "QuickSwap",
		Repository:   "https://github.com/QuickSwap/QuickSwap-core",
		Type:         TypeUniswapV2Fork,
		RiskPriority: "HIGH",
		Chain:        "Polygon",
		Description:  "Polygon Uniswap V2 fork - cross-chain deployment",
	},
	{
		ID:           "trader-joe",
		Name:         "Trader Joe",
		Repository:   "https://github.com/traderjoe-xyz/joe-core",
		Type:         TypeUniswapV2Fork,
		RiskPriority: "HIGH",
		Chain:        "Avalanche",
		Description:  "Avalanche Uniswap V2 fork - custom features",
	},
	{
		ID:           "sushiswap",
		Name:         "SushiSwap",
		Repository:   "https://github.com/sushiswap/sushiswap",
		Type:         TypeUniswapV2Fork,
		RiskPriority: "MEDIUM",
		Chain:        "Ethereum",
		Description:  "Original Uniswap V2 fork with governance token",
	},
	{
		ID:           "spookyswap",
		Name:         "SpookySwap",
		Repository:   "https://github.com/spookyswap/spookyswap-core",
		Type:         TypeUniswapV2Fork,
		RiskPriority: "MEDIUM",
		Chain:        "Fantom",
		Description:  "Fantom Uniswap V2 fork - cross-chain",
	},
}

// CuratedForks returns the built-in list of V2 forks with public repositories.
func CuratedForks() []models.ProtocolMetadata {
	out := make([]models.ProtocolMetadata, len(curatedForks))
	copy(out, curatedForks)
	return out
}

type targetFile struct {
	Targets []models.ProtocolMetadata `yaml:"targets"`
}

// LoadTargets reads a YAML target list of the form `targets: [...]`. Entries
// use the same loose field names as registry records.
func LoadTargets(path string) ([]models.ProtocolMetadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read targets file: %w", err)
	}
	var tf targetFile
	if err := yaml.Unmarshal(data, &tf); err != nil {
		return nil, fmt.Errorf("parse targets file %s: %w", path, err)
	}
	for i := range tf.Targets {
		tf.Targets[i].Repository = normalizeRepository(tf.Targets[i].Repository)
		if tf.Targets[i].Type == "" {
			tf.Targets[i].Type = TypeUniswapV2Fork
		}
	}
	return tf.Targets, nil
}
