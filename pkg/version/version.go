// Package version parses and compares "major.minor" software versions as
// reported by device managers.
package version

import (
	"fmt"
	"strconv"
	"strings"
)

// Current is the software version reported by nodes built from this module.
const Current = "1.0"

// SoftwareVersion is a parsed "major.minor" version.
type SoftwareVersion struct {
	Major uint16
	Minor uint16
}

// Parse parses a "major.minor" version string.
func Parse(s string) (SoftwareVersion, error) {
	majorStr, minorStr, found := strings.Cut(s, ".")
	if !found || strings.Contains(minorStr, ".") {
		return SoftwareVersion{}, fmt.Errorf("invalid version %q: expected major.minor", s)
	}

	major, err := strconv.ParseUint(majorStr, 10, 16)
	if err != nil {
		return SoftwareVersion{}, fmt.Errorf("invalid version %q: bad major component", s)
	}

	minor, err := strconv.ParseUint(minorStr, 10, 16)
	if err != nil {
		return SoftwareVersion{}, fmt.Errorf("invalid version %q: bad minor component", s)
	}

	return SoftwareVersion{Major: uint16(major), Minor: uint16(minor)}, nil
}

// String returns the version as "major.minor".
func (v SoftwareVersion) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// Compatible returns true if the other version has the same major version.
func (v SoftwareVersion) Compatible(other SoftwareVersion) bool {
	return v.Major == other.Major
}

// Less reports whether v is older than other.
func (v SoftwareVersion) Less(other SoftwareVersion) bool {
	if v.Major != other.Major {
		return v.Major < other.Major
	}
	return v.Minor < other.Minor
}
