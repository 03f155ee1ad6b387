package book

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// SupportedMdBook is the range of mdBook versions whose render context layout
// this package understands.
const SupportedMdBook = "~0.4"

// CheckVersion reports whether the mdBook version that produced the render
// context is in the supported range. An unparsable version is an error.
func CheckVersion(version string) (bool, error) {
	constraint, err := semver.NewConstraint(SupportedMdBook)
	if err != nil {
		return false, fmt.Errorf("invalid version constraint: %w", err)
	}
	v, err := semver.NewVersion(version)
	if err != nil {
		return false, fmt.Errorf("invalid mdBook version %q: %w", version, err)
	}
	return constraint.Check(v), nil
}
