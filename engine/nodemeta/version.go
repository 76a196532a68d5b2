package nodemeta

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Version is a NodeMetamodel's semver triple plus an optional free-form
// label, used to disambiguate same-triple revisions (e.g. a prompt tweak
// that does not warrant a patch bump).
type Version struct {
	semver *semver.Version
	label  string
}

// ParseVersion parses "major.minor.patch" or "major.minor.patch-label".
func ParseVersion(s string) (*Version, error) {
	core, label, _ := strings.Cut(s, "-")
	sv, err := semver.NewVersion(core)
	if err != nil {
		return nil, fmt.Errorf("nodemeta: invalid version %q: %w", s, err)
	}
	return &Version{semver: sv, label: label}, nil
}

// NewVersion builds a Version from explicit components.
func NewVersion(major, minor, patch uint64, label string) *Version {
	sv := semver.New(major, minor, patch, "", "")
	return &Version{semver: sv, label: label}
}

func (v *Version) Major() uint64 { return v.semver.Major() }
func (v *Version) Minor() uint64 { return v.semver.Minor() }
func (v *Version) Patch() uint64 { return v.semver.Patch() }
func (v *Version) Label() string { return v.label }

// String renders "major.minor.patch" or "major.minor.patch-label".
func (v *Version) String() string {
	triple := strconv.FormatUint(v.Major(), 10) + "." +
		strconv.FormatUint(v.Minor(), 10) + "." +
		strconv.FormatUint(v.Patch(), 10)
	if v.label == "" {
		return triple
	}
	return triple + "-" + v.label
}

// sameTriple reports whether major.minor.patch match, ignoring label.
func (v *Version) sameTriple(other *Version) bool {
	return v.Major() == other.Major() && v.Minor() == other.Minor() && v.Patch() == other.Patch()
}

// BumpError is returned by ValidateBump when next is not a legal successor
// of prev under this engine's version-bump policy.
type BumpError struct {
	Prev, Next string
	Reason     string
}

func (e *BumpError) Error() string {
	return fmt.Sprintf("nodemeta: invalid version bump %s -> %s: %s", e.Prev, e.Next, e.Reason)
}

// ValidateBump enforces: a major bump resets minor and patch to zero; a
// minor bump (same major) resets patch to zero; a patch bump (same
// major.minor) must increment patch by exactly one; and a same-triple
// "bump" is only legal when the label differs (a same-triple, same-label
// pair is not a new version at all).
func ValidateBump(prev, next *Version) error {
	switch {
	case next.Major() > prev.Major():
		if next.Minor() != 0 || next.Patch() != 0 {
			return &BumpError{prev.String(), next.String(), "a major bump must reset minor and patch to 0"}
		}
		return nil
	case next.Major() < prev.Major():
		return &BumpError{prev.String(), next.String(), "version may not regress major"}
	case next.Minor() > prev.Minor():
		if next.Patch() != 0 {
			return &BumpError{prev.String(), next.String(), "a minor bump must reset patch to 0"}
		}
		return nil
	case next.Minor() < prev.Minor():
		return &BumpError{prev.String(), next.String(), "version may not regress minor"}
	case next.Patch() == prev.Patch()+1:
		return nil
	case next.Patch() == prev.Patch():
		if next.Label() == prev.Label() {
			return &BumpError{prev.String(), next.String(), "same major.minor.patch requires a different label"}
		}
		return nil
	default:
		return &BumpError{prev.String(), next.String(), "patch must increment by exactly one"}
	}
}
