package fingerprint

import (
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/sirupsen/logrus"
)

var (
	pragmaPattern   = regexp.MustCompile(`pragma\s+solidity\s+([^;]+);`)
	operatorSpacing = regexp.MustCompile(`([<>=^~]+)\s+`)

	// newest release of each pre-0.8 minor line
	legacyCompilers = []*semver.Version{
		semver.MustParse("0.4.26"),
		semver.MustParse("0.5.17"),
		semver.MustParse("0.6.12"),
		semver.MustParse("0.7.6"),
	}
)

func extractPragmas(content []byte) []string {
	var out []string
	for _, m := range pragmaPattern.FindAllSubmatch(content, -1) {
		c := strings.Join(strings.Fields(string(m[1])), " ")
		if c != "" {
			out = append(out, c)
		}
	}
	return out
}

// normalizeConstraint rewrites a solidity version pragma into the
// comma-separated form semver constraints expect.
func normalizeConstraint(pragma string) string {
	alternatives := strings.Split(pragma, "||")
	for i, alt := range alternatives {
		alt = operatorSpacing.ReplaceAllString(strings.TrimSpace(alt), "$1")
		alternatives[i] = strings.Join(strings.Fields(alt), ", ")
	}
	return strings.Join(alternatives, " || ")
}

// AdmitsLegacyCompiler reports whether any pragma accepts a compiler older
// than 0.8.0, which lacks checked arithmetic.
func AdmitsLegacyCompiler(pragmas []string, logger *logrus.Logger) bool {
	for _, p := range pragmas {
		c, err := semver.NewConstraint(normalizeConstraint(p))
		if err != nil {
			if logger != nil {
				logger.WithFields(logrus.Fields{"pragma": p, "error": err}).Debug("Unparseable solidity pragma")
			}
			continue
		}
		for _, v := range legacyCompilers {
			if c.Check(v) {
				return true
			}
		}
	}
	return false
}
