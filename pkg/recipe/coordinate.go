// SPDX-License-Identifier: MPL-2.0

package recipe

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/invowk/buckle/pkg/version"
)

var (
	// ErrInvalidIdentifier is the sentinel error wrapped by InvalidIdentifierError.
	ErrInvalidIdentifier = errors.New("invalid identifier")

	// ErrInvalidCoordinate is returned when a coordinate string is malformed.
	ErrInvalidCoordinate = errors.New("invalid coordinate")

	identifierPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{3,29}$`)
)

type (
	// Identifier is a validated name segment: 3 to 29 characters drawn from
	// letters, digits, '-' and '_'.
	Identifier string

	// InvalidIdentifierError is returned when a string is not a valid Identifier.
	InvalidIdentifierError struct {
		Value string
	}

	// Coordinate identifies a package. Source is optional and empty when absent.
	Coordinate struct {
		Source Identifier
		Org    Identifier
		Name   Identifier
	}

	// Dependency pairs a coordinate with the requirement placed on it.
	Dependency struct {
		Coordinate  Coordinate
		Requirement version.Requirement
	}
)

// Error implements the error interface.
func (e *InvalidIdentifierError) Error() string {
	return fmt.Sprintf("invalid identifier %q (must be 3-29 characters of letters, digits, '-' or '_')", e.Value)
}

// Unwrap returns ErrInvalidIdentifier for errors.Is() compatibility.
func (e *InvalidIdentifierError) Unwrap() error { return ErrInvalidIdentifier }

// NewIdentifier validates s and returns it as an Identifier.
func NewIdentifier(s string) (Identifier, error) {
	if !identifierPattern.MatchString(s) {
		return "", &InvalidIdentifierError{Value: s}
	}
	return Identifier(s), nil
}

// IsValid reports whether the identifier satisfies the naming rules.
func (i Identifier) IsValid() bool { return identifierPattern.MatchString(string(i)) }

// String implements fmt.Stringer.
func (i Identifier) String() string { return string(i) }

// NewCoordinate validates each segment. Pass an empty source for none.
func NewCoordinate(source, org, name string) (Coordinate, error) {
	var c Coordinate
	if source != "" {
		id, err := NewIdentifier(source)
		if err != nil {
			return Coordinate{}, fmt.Errorf("source: %w", err)
		}
		c.Source = id
	}
	o, err := NewIdentifier(org)
	if err != nil {
		return Coordinate{}, fmt.Errorf("organization: %w", err)
	}
	n, err := NewIdentifier(name)
	if err != nil {
		return Coordinate{}, fmt.Errorf("name: %w", err)
	}
	c.Org, c.Name = o, n
	return c, nil
}

// MustCoordinate is like ParseCoordinate but panics on error.
func MustCoordinate(s string) Coordinate {
	c, err := ParseCoordinate(s)
	if err != nil {
		panic(err)
	}
	return c
}

// ParseCoordinate parses "org/name" or "source+org/name".
func ParseCoordinate(s string) (Coordinate, error) {
	source := ""
	rest := s
	if before, after, found := strings.Cut(s, "+"); found {
		source, rest = before, after
		if source == "" {
			return Coordinate{}, fmt.Errorf("%w %q: empty source", ErrInvalidCoordinate, s)
		}
	}
	org, name, found := strings.Cut(rest, "/")
	if !found {
		return Coordinate{}, fmt.Errorf("%w %q: expected org/name", ErrInvalidCoordinate, s)
	}
	c, err := NewCoordinate(source, org, name)
	if err != nil {
		return Coordinate{}, fmt.Errorf("%w %q: %w", ErrInvalidCoordinate, s, err)
	}
	return c, nil
}

// Encode renders "source+org/name", or "org/name" without a source.
func (c Coordinate) Encode() string {
	if c.Source == "" {
		return string(c.Org) + "/" + string(c.Name)
	}
	return string(c.Source) + "+" + string(c.Org) + "/" + string(c.Name)
}

// String implements fmt.Stringer.
func (c Coordinate) String() string { return c.Encode() }

// Compare orders coordinates by their encoded form.
func (c Coordinate) Compare(other Coordinate) int {
	return strings.Compare(c.Encode(), other.Encode())
}

// Less reports whether c sorts before other.
func (c Coordinate) Less(other Coordinate) bool { return c.Compare(other) < 0 }

// MarshalText implements encoding.TextMarshaler.
func (c Coordinate) MarshalText() ([]byte, error) { return []byte(c.Encode()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Coordinate) UnmarshalText(b []byte) error {
	parsed, err := ParseCoordinate(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Encode renders "coordinate@requirement".
func (d Dependency) Encode() string {
	return d.Coordinate.Encode() + "@" + d.Requirement.Encode()
}

// ParseDependency parses "coordinate[@requirement]". A missing requirement
// means any version.
func ParseDependency(s string) (Dependency, error) {
	coordPart, reqPart, hasReq := strings.Cut(s, "@")
	c, err := ParseCoordinate(coordPart)
	if err != nil {
		return Dependency{}, err
	}
	if !hasReq {
		return Dependency{Coordinate: c, Requirement: version.Any{}}, nil
	}
	req, ok := version.ParseRequirement(reqPart)
	if !ok {
		return Dependency{}, fmt.Errorf("%w %q", ErrInvalidRequirement, reqPart)
	}
	return Dependency{Coordinate: c, Requirement: req}, nil
}
