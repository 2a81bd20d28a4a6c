package discovery

import (
	"context"
	"strings"
	"time"

	"github.com/bl4ck0w1/forkhound/pkg/models"
)

// Filter holds the high-risk selection thresholds for registry protocols.
type Filter struct {
	MaxAgeDays        int     `yaml:"max_age_days" json:"max_age_days" mapstructure:"max_age_days"`
	MaxAudits         int     `yaml:"max_audits" json:"max_audits" mapstructure:"max_audits"`
	MinTVL            float64 `yaml:"min_tvl" json:"min_tvl" mapstructure:"min_tvl"`
	MaxTVL            float64 `yaml:"max_tvl" json:"max_tvl" mapstructure:"max_tvl"`
	RequireRepository bool    `yaml:"require_repository" json:"require_repository" mapstructure:"require_repository"`
}

func DefaultFilter() Filter {
	return Filter{
		MaxAgeDays:        90,
		MaxAudits:         1,
		MinTVL:            1000,
		MaxTVL:            10_000_000,
		RequireRepository: true,
	}
}

// Match reports whether p is young, lightly audited, inside the TVL band and
// (optionally) has a repository.
func (f Filter) Match(p models.ProtocolMetadata) bool {
	if p.AgeDays > f.MaxAgeDays {
		return false
	}
	if p.Audits > f.MaxAudits {
		return false
	}
	if p.TVL < f.MinTVL || p.TVL > f.MaxTVL {
		return false
	}
	if f.RequireRepository && p.Repository == "" {
		return false
	}
	return true
}

// Normalize converts a registry record into protocol metadata. The age is
// derived from listedAt (unix seconds); a missing or unusable listing time
// counts as a brand new protocol.
func Normalize(raw map[string]interface{}, now time.Time) models.ProtocolMetadata {
	p := models.ProtocolMetadataFromMap(raw)
	p.AgeDays = ageDays(raw["listedAt"], now)
	p.Repository = normalizeRepository(p.Repository)
	if p.DiscoveredAt.IsZero() {
		p.DiscoveredAt = now
	}
	return p
}

func ageDays(listedAt interface{}, now time.Time) int {
	secs := models.CoerceFloat(listedAt)
	if secs <= 0 {
		return 0
	}
	listed := time.Unix(int64(secs), 0)
	if listed.After(now) {
		return 0
	}
	return int(now.Sub(listed).Hours() / 24)
}

// normalizeRepository expands registry shorthand ("owner/repo" or a bare
// organisation) into a github URL.
func normalizeRepository(repo string) string {
	repo = strings.TrimSpace(repo)
	if repo == "" || strings.Contains(repo, "://") || strings.HasPrefix(repo, "git@") {
		return repo
	}
	repo = strings.TrimPrefix(repo, "github.com/")
	return "https://github.com/" + strings.Trim(repo, "/")
}

// Discover fetches the registry and returns the protocols passing f.
func (c *Client) Discover(ctx context.Context, f Filter, now time.Time) ([]models.ProtocolMetadata, int, error) {
	records, err := c.FetchProtocols(ctx)
	if err != nil {
		return nil, 0, err
	}
	return Select(records, f, now), len(records), nil
}

// Select normalizes records and keeps those passing f, in registry order.
func Select(records []map[string]interface{}, f Filter, now time.Time) []models.ProtocolMetadata {
	out := make([]models.ProtocolMetadata, 0)
	for _, raw := range records {
		p := Normalize(raw, now)
		if f.Match(p) {
			out = append(out, p)
		}
	}
	return out
}
