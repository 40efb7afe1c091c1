// Package version implements the semantic-version parsing collaborator on
// top of github.com/Masterminds/semver.
package version

import (
	"fmt"
	"regexp"

	"github.com/Masterminds/semver/v3"

	"github.com/relcut/relcut/pkg/api"
)

// compactPre matches versions written without a prerelease separator,
// e.g. "1.9.0rc1". The dashed form "1.9.0-rc1" is already valid semver.
var compactPre = regexp.MustCompile(`^(\d+\.\d+\.\d+)([A-Za-z][0-9A-Za-z.]*)$`)

// Parser decomposes raw version strings into base and prerelease parts.
// The zero value is ready to use.
type Parser struct{}

var _ api.VersionParser = Parser{}

// Parse decomposes raw into api.Version. Compact prerelease forms are
// normalized first, so "1.9.0rc1" yields base "1.9.0" and prerelease "rc1".
// Malformed input returns an api.ParseError.
func (Parser) Parse(raw string) (api.Version, error) {
	if raw == "" {
		return api.Version{}, api.NewParseError(raw, "empty version string")
	}

	normalized := raw
	if m := compactPre.FindStringSubmatch(raw); m != nil {
		normalized = m[1] + "-" + m[2]
	}

	v, err := semver.StrictNewVersion(normalized)
	if err != nil {
		return api.Version{}, api.NewParseError(raw, err.Error())
	}

	return api.Version{
		Base:       fmt.Sprintf("%d.%d.%d", v.Major(), v.Minor(), v.Patch()),
		Prerelease: v.Prerelease(),
	}, nil
}
