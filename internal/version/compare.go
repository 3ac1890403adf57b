package version

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// CheckRequirement checks that buildVersion satisfies a semver constraint
// such as ">= 1.2" or "~1.4.0". Returns nil if satisfied, error with details if not.
//
// Rules:
//   - An empty constraint is always satisfied
//   - A development build ("main") satisfies every constraint
//   - A leading "v" on the build version is ignored
//
// Examples:
//   - Build 1.2.0, constraint ">= 1.2" -> OK
//   - Build 1.1.9, constraint ">= 1.2" -> ERROR
//   - Build main, constraint ">= 9.0" -> OK (dev build, skip check)
func CheckRequirement(buildVersion, constraint string) error {
	constraint = strings.TrimSpace(constraint)
	if constraint == "" || IsDevelopment(buildVersion) {
		return nil
	}

	requirement, err := semver.NewConstraint(constraint)
	if err != nil {
		return fmt.Errorf("invalid version constraint '%s': %w", constraint, err)
	}

	build, err := semver.NewVersion(strings.TrimPrefix(buildVersion, "v"))
	if err != nil {
		return fmt.Errorf("invalid build version '%s': %w", buildVersion, err)
	}

	if !requirement.Check(build) {
		return fmt.Errorf("version %s does not satisfy '%s'", build.String(), constraint)
	}

	return nil
}

// Info is the parsed form of a build version.
type Info struct {
	Version     string `json:"version"`
	Major       uint64 `json:"major"`
	Minor       uint64 `json:"minor"`
	Patch       uint64 `json:"patch"`
	Development bool   `json:"development"`
}

// Parse splits a build version into its components. Development builds and
// unparseable versions are reported as development with zero components.
func Parse(buildVersion string) Info {
	info := Info{Version: buildVersion, Major: 0, Minor: 0, Patch: 0, Development: true}
	if IsDevelopment(buildVersion) {
		return info
	}

	parsed, err := semver.NewVersion(strings.TrimPrefix(buildVersion, "v"))
	if err != nil {
		return info
	}

	info.Major = parsed.Major()
	info.Minor = parsed.Minor()
	info.Patch = parsed.Patch()
	info.Development = false

	return info
}
