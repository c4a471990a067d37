package envelope

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// DevVersion is reported when the build version is not valid semver.
const DevVersion = "0.0.0-dev"

// NormalizeVersion returns v in canonical semver form ("v1.2" becomes
// "1.2.0"). Build versions that do not parse, such as "dev", map to
// DevVersion.
func NormalizeVersion(v string) string {
	parsed, err := semver.NewVersion(v)
	if err != nil {
		return DevVersion
	}
	return parsed.String()
}

// CheckCompatible verifies that version satisfies the caret range of
// supported (for example "^1.0").
func CheckCompatible(supported, version string) error {
	constraint, err := semver.NewConstraint("^" + supported)
	if err != nil {
		return fmt.Errorf("invalid supported version %q: %w", supported, err)
	}

	v, err := semver.NewVersion(version)
	if err != nil {
		return fmt.Errorf("invalid version %q: %w", version, err)
	}

	if !constraint.Check(v) {
		return fmt.Errorf("version %s is not compatible with %s", version, supported)
	}
	return nil
}
