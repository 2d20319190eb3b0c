// SPDX-License-Identifier: MPL-2.0

package version

import (
	"slices"
	"strconv"
	"strings"
)

// Direction selects which side of a Bounded requirement is open.
type Direction int

const (
	// Above accepts versions greater than or equal to the bound.
	Above Direction = iota
	// Below accepts versions less than or equal to the bound.
	Below
)

type (
	// Requirement is a predicate over versions. The set of implementations is
	// closed: Any, Exact, Bounded, Range and Wildcard.
	Requirement interface {
		// Satisfies reports whether v is acceptable.
		Satisfies(v Version) bool
		// Encode renders the canonical textual form accepted by ParseRequirement.
		Encode() string
		// Hints returns concrete versions worth trying first. Open-ended
		// requirements return nil.
		Hints() []Version

		sealed()
	}

	// Any accepts every version.
	Any struct{}

	// Exact accepts a finite, non-empty set of versions. The zero Exact
	// accepts nothing and has no textual form; build one with NewExact.
	Exact struct {
		versions []Version
	}

	// Bounded accepts every version on one side of Bound, inclusive.
	Bounded struct {
		Bound     Version
		Direction Direction
	}

	// Range accepts versions between Min and Max, inclusive.
	Range struct {
		Min Version
		Max Version
	}

	// Wildcard fixes a prefix of the version components and accepts any value
	// for the rest. The zero Wildcard fixes nothing and equals Any.
	Wildcard struct {
		parts [4]int
		n     int
	}
)

// NewExact builds an Exact requirement from one or more versions. Duplicates
// are collapsed and the set is kept sorted.
func NewExact(v Version, more ...Version) Exact {
	set := append([]Version{v}, more...)
	Sort(set)
	return Exact{versions: slices.Compact(set)}
}

// NewRange builds a Range. It returns false when min > max.
func NewRange(minV, maxV Version) (Range, bool) {
	if Compare(minV, maxV) > 0 {
		return Range{}, false
	}
	return Range{Min: minV, Max: maxV}, true
}

// AtLeast is shorthand for a Bounded requirement open above.
func AtLeast(v Version) Bounded { return Bounded{Bound: v, Direction: Above} }

// AtMost is shorthand for a Bounded requirement open below.
func AtMost(v Version) Bounded { return Bounded{Bound: v, Direction: Below} }

// NewWildcard fixes the leading components given in parts. With no parts it
// returns Any, which is what "*" means. More than four parts are truncated.
func NewWildcard(parts ...int) Requirement {
	if len(parts) == 0 {
		return Any{}
	}
	var w Wildcard
	w.n = copy(w.parts[:], parts)
	return w
}

func (Any) sealed()      {}
func (Exact) sealed()    {}
func (Bounded) sealed()  {}
func (Range) sealed()    {}
func (Wildcard) sealed() {}

// Satisfies implements Requirement.
func (Any) Satisfies(Version) bool { return true }

// Encode implements Requirement.
func (Any) Encode() string { return "*" }

// Hints implements Requirement.
func (Any) Hints() []Version { return nil }

// Versions returns a copy of the accepted versions in ascending order.
func (e Exact) Versions() []Version { return slices.Clone(e.versions) }

// Satisfies implements Requirement.
func (e Exact) Satisfies(v Version) bool {
	_, found := slices.BinarySearchFunc(e.versions, v, Compare)
	return found
}

// Encode implements Requirement.
func (e Exact) Encode() string {
	if len(e.versions) == 1 {
		return "=" + e.versions[0].Encode()
	}
	encoded := make([]string, len(e.versions))
	for i, v := range e.versions {
		encoded[i] = v.Encode()
	}
	return "[" + strings.Join(encoded, ", ") + "]"
}

// Hints implements Requirement.
func (e Exact) Hints() []Version { return e.Versions() }

// Satisfies implements Requirement.
func (b Bounded) Satisfies(v Version) bool {
	if b.Direction == Below {
		return Compare(b.Bound, v) >= 0
	}
	return Compare(b.Bound, v) <= 0
}

// Encode implements Requirement.
func (b Bounded) Encode() string {
	if b.Direction == Below {
		return "<=" + b.Bound.Encode()
	}
	return ">=" + b.Bound.Encode()
}

// Hints implements Requirement.
func (Bounded) Hints() []Version { return nil }

// Satisfies implements Requirement.
func (r Range) Satisfies(v Version) bool {
	return Compare(r.Min, v) <= 0 && Compare(v, r.Max) <= 0
}

// Encode implements Requirement.
func (r Range) Encode() string { return r.Min.Encode() + "-" + r.Max.Encode() }

// Hints implements Requirement.
func (r Range) Hints() []Version {
	if Compare(r.Min, r.Max) == 0 {
		return []Version{r.Min}
	}
	return []Version{r.Min, r.Max}
}

// Parts returns the fixed leading components.
func (w Wildcard) Parts() []int { return slices.Clone(w.parts[:w.n]) }

// Satisfies implements Requirement.
func (w Wildcard) Satisfies(v Version) bool {
	comps := [4]int{v.Major, v.Minor, v.Patch, v.Build}
	for i := range w.n {
		if comps[i] != w.parts[i] {
			return false
		}
	}
	return true
}

// Encode implements Requirement.
func (w Wildcard) Encode() string {
	var sb strings.Builder
	for i := range w.n {
		sb.WriteString(strconv.Itoa(w.parts[i]))
		sb.WriteByte('.')
	}
	sb.WriteByte('*')
	return sb.String()
}

// Hints implements Requirement.
func (Wildcard) Hints() []Version { return nil }

// Equal reports whether a and b are the same variant with the same data. A
// Wildcard with no fixed parts counts as Any.
func Equal(a, b Requirement) bool {
	a, b = canonical(a), canonical(b)
	switch x := a.(type) {
	case Any:
		_, ok := b.(Any)
		return ok
	case Exact:
		y, ok := b.(Exact)
		return ok && slices.Equal(x.versions, y.versions)
	case Bounded:
		y, ok := b.(Bounded)
		return ok && x == y
	case Range:
		y, ok := b.(Range)
		return ok && x == y
	case Wildcard:
		y, ok := b.(Wildcard)
		return ok && x == y
	default:
		return false
	}
}

func canonical(r Requirement) Requirement {
	if w, ok := r.(Wildcard); ok && w.n == 0 {
		return Any{}
	}
	return r
}
