package models

type Family string

const (
	FamilyUnknown     Family = "unknown"
	FamilyGeneric     Family = "generic"
	FamilyUniswapV2   Family = "Uniswap V2"
	FamilyPancakeSwap Family = "PancakeSwap"
	FamilyTraderJoe   Family = "Trader Joe"
	FamilySushiSwap   Family = "SushiSwap"
	FamilyQuickSwap   Family = "QuickSwap"
	FamilySpookySwap  Family = "SpookySwap"
	FamilyPangolin    Family = "Pangolin"
)

// IsNamed reports whether the family is a recognised AMM family rather than
// the generic fork label or no match at all.
func (f Family) IsNamed() bool {
	return f != "" && f != FamilyUnknown && f != FamilyGeneric
}

func (f Family) Label() string {
	switch f {
	case FamilyGeneric:
		return "Generic V2 Fork"
	case FamilyUnknown, "":
		return "UNKNOWN"
	}
	return string(f)
}

type FingerprintResult struct {
	Family         Family   `json:"family" yaml:"family"`
	Interfaces     []string `json:"interfaces" yaml:"interfaces"`
	Files          []string `json:"files" yaml:"files"`
	RiskyCalls     []string `json:"risky_calls" yaml:"risky_calls"`
	Confidence     int      `json:"confidence" yaml:"confidence"`
	Pragmas        []string `json:"pragmas,omitempty" yaml:"pragmas,omitempty"`
	LegacyCompiler bool     `json:"legacy_compiler" yaml:"legacy_compiler"`
}

func EmptyFingerprint() *FingerprintResult {
	return &FingerprintResult{
		Family:     FamilyUnknown,
		Interfaces: []string{},
		Files:      []string{},
		RiskyCalls: []string{},
	}
}
