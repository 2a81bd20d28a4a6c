package models

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ProtocolMetadata describes a protocol fed into scoring. Numeric fields that
// arrive missing or wrongly typed decode as zero.
type ProtocolMetadata struct {
	ID           string    `json:"id" yaml:"id"`
	Name         string    `json:"name" yaml:"name"`
	Repository   string    `json:"repository" yaml:"repository"`
	TVL          float64   `json:"tvl" yaml:"tvl"`
	Audits       int       `json:"audits" yaml:"audits"`
	AgeDays      int       `json:"age_days" yaml:"age_days"`
	Chain        string    `json:"chain,omitempty" yaml:"chain,omitempty"`
	Category     string    `json:"category,omitempty" yaml:"category,omitempty"`
	Type         string    `json:"type,omitempty" yaml:"type,omitempty"`
	RiskPriority string    `json:"risk_priority,omitempty" yaml:"risk_priority,omitempty"`
	Description  string    `json:"description,omitempty" yaml:"description,omitempty"`
	DiscoveredAt time.Time `json:"discovered_at,omitempty" yaml:"discovered_at,omitempty"`
}

func (p ProtocolMetadata) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	if p.ID != "" {
		return p.ID
	}
	return "unknown"
}

func (p ProtocolMetadata) Key() string {
	if p.ID != "" {
		return p.ID
	}
	return strings.ToLower(strings.TrimSpace(p.Name))
}

func (p *ProtocolMetadata) UnmarshalJSON(data []byte) error {
	raw := map[string]interface{}{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode protocol metadata: %w", err)
	}
	*p = ProtocolMetadataFromMap(raw)
	return nil
}

func (p *ProtocolMetadata) UnmarshalYAML(node *yaml.Node) error {
	raw := map[string]interface{}{}
	if err := node.Decode(&raw); err != nil {
		return fmt.Errorf("decode protocol metadata: %w", err)
	}
	*p = ProtocolMetadataFromMap(raw)
	return nil
}

// ProtocolMetadataFromMap builds metadata from loosely typed input such as a
// registry record or a hand-written manifest.
func ProtocolMetadataFromMap(raw map[string]interface{}) ProtocolMetadata {
	p := ProtocolMetadata{
		ID:           stringField(raw, "id", "slug"),
		Name:         stringField(raw, "name"),
		Repository:   repositoryField(raw, "repository", "github", "github_url"),
		TVL:          floatField(raw, "tvl", "value_at_risk"),
		Audits:       auditsField(raw["audits"]),
		AgeDays:      clampCount(floatField(raw, "age_days")),
		Chain:        stringField(raw, "chain"),
		Category:     stringField(raw, "category"),
		Type:         stringField(raw, "type"),
		RiskPriority: stringField(raw, "risk_priority"),
		Description:  stringField(raw, "description"),
	}
	if ts := stringField(raw, "discovered_at"); ts != "" {
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			p.DiscoveredAt = t
		}
	}
	if t, ok := raw["discovered_at"].(time.Time); ok {
		p.DiscoveredAt = t
	}
	return p
}

func stringField(raw map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		switch v := raw[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case fmt.Stringer:
			return v.String()
		case float64, int, int64:
			return fmt.Sprint(v)
		}
	}
	return ""
}

func repositoryField(raw map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		switch v := raw[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case []interface{}:
			for _, item := range v {
				if s, ok := item.(string); ok && s != "" {
					return s
				}
			}
		case []string:
			for _, s := range v {
				if s != "" {
					return s
				}
			}
		}
	}
	return ""
}

func floatField(raw map[string]interface{}, keys ...string) float64 {
	for _, k := range keys {
		if v, ok := raw[k]; ok && v != nil {
			return CoerceFloat(v)
		}
	}
	return 0
}

// CoerceFloat converts loosely typed numbers to float64. Anything that is not
// a finite number becomes 0.
func CoerceFloat(v interface{}) float64 {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case int32:
		f = float64(n)
	case uint64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0
		}
		f = parsed
	default:
		return 0
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// registry convention: audits reported as a string is "0" for none and any
// other value for at least one
func auditsField(v interface{}) int {
	switch a := v.(type) {
	case nil:
		return 0
	case string:
		if strings.TrimSpace(a) == "" || strings.TrimSpace(a) == "0" {
			return 0
		}
		return 1
	case bool:
		return 0
	default:
		return clampCount(CoerceFloat(a))
	}
}

// clampCount truncates f into [0, math.MaxInt32].
func clampCount(f float64) int {
	switch {
	case f <= 0:
		return 0
	case f >= math.MaxInt32:
		return math.MaxInt32
	}
	return int(f)
}
