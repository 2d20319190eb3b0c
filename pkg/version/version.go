// SPDX-License-Identifier: MPL-2.0

package version

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// ErrInvalidVersion is the sentinel error wrapped by ParseError.
var ErrInvalidVersion = errors.New("invalid version")

type (
	// Version is a four-component semantic version. The zero value is 0.0.0.
	Version struct {
		Major int
		Minor int
		Patch int
		Build int
	}

	// ParseError describes a string that could not be parsed as a Version.
	ParseError struct {
		Input  string
		Reason string
	}
)

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid version %q: %s", e.Input, e.Reason)
}

// Unwrap returns ErrInvalidVersion for errors.Is() compatibility.
func (e *ParseError) Unwrap() error { return ErrInvalidVersion }

// New constructs a Version. Negative components are rejected.
func New(major, minor, patch, build int) (Version, error) {
	v := Version{Major: major, Minor: minor, Patch: patch, Build: build}
	if major < 0 || minor < 0 || patch < 0 || build < 0 {
		return Version{}, &ParseError{Input: v.String(), Reason: "components must be non-negative"}
	}
	return v, nil
}

// Parse parses "1", "1.2", "1.2.3" or "1.2.3.4", optionally prefixed with "v".
// Missing components default to zero.
func Parse(s string) (Version, error) {
	raw := strings.TrimPrefix(strings.TrimSpace(s), "v")
	if raw == "" {
		return Version{}, &ParseError{Input: s, Reason: "empty"}
	}

	parts := strings.Split(raw, ".")
	if len(parts) > 4 {
		return Version{}, &ParseError{Input: s, Reason: "more than four components"}
	}

	var comps [4]int
	for i, p := range parts {
		n, err := parseComponent(p)
		if err != nil {
			return Version{}, &ParseError{Input: s, Reason: err.Error()}
		}
		comps[i] = n
	}

	return Version{Major: comps[0], Minor: comps[1], Patch: comps[2], Build: comps[3]}, nil
}

// MustParse is like Parse but panics on error.
func MustParse(s string) Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

func parseComponent(p string) (int, error) {
	if p == "" {
		return 0, errors.New("empty component")
	}
	for _, c := range p {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("non-numeric component %q", p)
		}
	}
	n, err := strconv.Atoi(p)
	if err != nil {
		return 0, fmt.Errorf("component %q out of range", p)
	}
	return n, nil
}

// Compare returns -1, 0 or +1 comparing a and b component-wise.
func Compare(a, b Version) int {
	if c := cmp.Compare(a.Major, b.Major); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Minor, b.Minor); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Patch, b.Patch); c != 0 {
		return c
	}
	return cmp.Compare(a.Build, b.Build)
}

// Compare returns -1, 0 or +1 comparing v with other.
func (v Version) Compare(other Version) int { return Compare(v, other) }

// Less reports whether v sorts before other.
func (v Version) Less(other Version) bool { return Compare(v, other) < 0 }

// Encode renders major.minor.patch, appending .build only when it is non-zero.
func (v Version) Encode() string {
	if v.Build == 0 {
		return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
	}
	return fmt.Sprintf("%d.%d.%d.%d", v.Major, v.Minor, v.Patch, v.Build)
}

// String implements fmt.Stringer.
func (v Version) String() string { return v.Encode() }

// MarshalText implements encoding.TextMarshaler.
func (v Version) MarshalText() ([]byte, error) { return []byte(v.Encode()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (v *Version) UnmarshalText(b []byte) error {
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// Sort orders vs ascending in place.
func Sort(vs []Version) {
	slices.SortFunc(vs, Compare)
}

// Max returns the highest version and false when vs is empty.
func Max(vs ...Version) (Version, bool) {
	if len(vs) == 0 {
		return Version{}, false
	}
	return slices.MaxFunc(vs, Compare), true
}
