// SPDX-License-Identifier: MPL-2.0

package recipe

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/invowk/buckle/pkg/version"
)

const testSHA = "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08"

func TestNewIdentifier(t *testing.T) {
	t.Parallel()

	valid := []string{"abc", "boost", "my_lib-2", strings.Repeat("a", 29)}
	for _, s := range valid {
		if _, err := NewIdentifier(s); err != nil {
			t.Errorf("NewIdentifier(%q) unexpected error: %v", s, err)
		}
	}

	invalid := []string{"", "ab", strings.Repeat("a", 30), "has space", "dot.ted", "slash/ed", "plus+"}
	for _, s := range invalid {
		_, err := NewIdentifier(s)
		if !errors.Is(err, ErrInvalidIdentifier) {
			t.Errorf("NewIdentifier(%q) error = %v, want ErrInvalidIdentifier", s, err)
		}
		var idErr *InvalidIdentifierError
		if !errors.As(err, &idErr) || idErr.Value != s {
			t.Errorf("NewIdentifier(%q) should return *InvalidIdentifierError carrying the input", s)
		}
	}
}

func TestParseCoordinate(t *testing.T) {
	t.Parallel()

	c, err := ParseCoordinate("github+madler/zlib")
	if err != nil {
		t.Fatalf("ParseCoordinate: %v", err)
	}
	want := Coordinate{Source: "github", Org: "madler", Name: "zlib"}
	if c != want {
		t.Errorf("ParseCoordinate = %+v, want %+v", c, want)
	}
	if c.Encode() != "github+madler/zlib" {
		t.Errorf("Encode() = %q", c.Encode())
	}

	plain := MustCoordinate("boost/asio")
	if plain.Source != "" || plain.Encode() != "boost/asio" {
		t.Errorf("plain coordinate = %+v / %q", plain, plain.Encode())
	}
	if !plain.Less(c) || c.Less(plain) || c.Less(c) {
		t.Errorf("Less is not a strict order over %q and %q", plain, c)
	}

	for _, bad := range []string{"", "zlib", "+org/name", "org/", "a/b", "src+org", "org/name/extra"} {
		if _, err := ParseCoordinate(bad); !errors.Is(err, ErrInvalidCoordinate) {
			t.Errorf("ParseCoordinate(%q) error = %v, want ErrInvalidCoordinate", bad, err)
		}
	}
}

func TestParseDependency(t *testing.T) {
	t.Parallel()

	d, err := ParseDependency("boost/asio@>=1.80")
	if err != nil {
		t.Fatalf("ParseDependency: %v", err)
	}
	if d.Encode() != "boost/asio@>=1.80.0" {
		t.Errorf("Encode() = %q", d.Encode())
	}

	d, err = ParseDependency("boost/asio")
	if err != nil {
		t.Fatalf("ParseDependency without requirement: %v", err)
	}
	if _, ok := d.Requirement.(version.Any); !ok {
		t.Errorf("missing requirement should default to Any, got %T", d.Requirement)
	}

	if _, err := ParseDependency("boost/asio@nope"); !errors.Is(err, ErrInvalidRequirement) {
		t.Errorf("error = %v, want ErrInvalidRequirement", err)
	}
}

func TestDependencyGroup_CopyOnWrite(t *testing.T) {
	t.Parallel()

	foo := MustCoordinate("acme/foo")
	bar := MustCoordinate("acme/bar")
	one := version.MustParseRequirement("1.*")

	empty := DependencyGroup{}
	g1 := empty.Add(foo, one)
	if !empty.IsEmpty() {
		t.Fatal("Add mutated the receiver")
	}
	if g1.Len() != 1 {
		t.Fatalf("g1.Len() = %d, want 1", g1.Len())
	}

	same := g1.Add(foo, version.NewWildcard(1))
	if reflect.ValueOf(same.reqs).Pointer() != reflect.ValueOf(g1.reqs).Pointer() {
		t.Error("adding an equal requirement should return the receiver unchanged")
	}

	g2 := g1.Add(bar, version.Any{})
	if g1.Len() != 1 || g2.Len() != 2 {
		t.Errorf("lengths after Add: g1=%d g2=%d", g1.Len(), g2.Len())
	}

	unchanged := g2.Remove(MustCoordinate("acme/baz"))
	if reflect.ValueOf(unchanged.reqs).Pointer() != reflect.ValueOf(g2.reqs).Pointer() {
		t.Error("removing an absent coordinate should return the receiver unchanged")
	}

	g3 := g2.Remove(foo)
	if g2.Len() != 2 || g3.Len() != 1 {
		t.Errorf("lengths after Remove: g2=%d g3=%d", g2.Len(), g3.Len())
	}
	if _, ok := g3.Requirement(foo); ok {
		t.Error("foo should be gone from g3")
	}
}

func TestDependencyGroup_SortedAndUnion(t *testing.T) {
	t.Parallel()

	a := NewGroup(
		Dependency{Coordinate: MustCoordinate("zed/zzz"), Requirement: version.Any{}},
		Dependency{Coordinate: MustCoordinate("acme/foo"), Requirement: version.MustParseRequirement("1.*")},
	)
	b := NewGroup(Dependency{Coordinate: MustCoordinate("acme/foo"), Requirement: version.MustParseRequirement("=2")})

	u := a.Union(b)
	deps := u.Dependencies()
	if len(deps) != 2 {
		t.Fatalf("Union has %d entries, want 2", len(deps))
	}
	if deps[0].Coordinate.Encode() != "acme/foo" || deps[1].Coordinate.Encode() != "zed/zzz" {
		t.Errorf("Dependencies not sorted: %v", deps)
	}
	if deps[0].Requirement.Encode() != "=2.0.0" {
		t.Errorf("Union should prefer the right-hand requirement, got %s", deps[0].Requirement.Encode())
	}
	if !a.Equal(a.Union(DependencyGroup{})) {
		t.Error("union with an empty group should be equal")
	}
}

func TestDependencyGroup_IsSatisfiedBy(t *testing.T) {
	t.Parallel()

	foo := MustCoordinate("acme/foo")
	g := NewGroup(Dependency{Coordinate: foo, Requirement: version.MustParseRequirement(">=1.2")})

	if !g.IsSatisfiedBy(map[Coordinate]version.Version{foo: version.MustParse("1.3")}) {
		t.Error("1.3 should satisfy >=1.2")
	}
	if g.IsSatisfiedBy(map[Coordinate]version.Version{foo: version.MustParse("1.1")}) {
		t.Error("1.1 should not satisfy >=1.2")
	}
	if g.IsSatisfiedBy(nil) {
		t.Error("a missing coordinate should not satisfy the group")
	}
	if !(DependencyGroup{}).IsSatisfiedBy(nil) {
		t.Error("an empty group is satisfied by anything")
	}
}

func TestRemoteFile_Validate(t *testing.T) {
	t.Parallel()

	ok := RemoteFile{URL: "https://example.com/zlib.zip", SHA256: testSHA}
	if err := ok.Validate(); err != nil {
		t.Errorf("Validate() unexpected error: %v", err)
	}

	bad := []RemoteFile{
		{URL: "ftp://example.com/x.zip", SHA256: testSHA},
		{URL: "https:///x.zip", SHA256: testSHA},
		{URL: "https://example.com/x.zip", SHA256: "abc"},
		{URL: "https://example.com/x.zip", SHA256: strings.ToUpper(testSHA)},
	}
	for _, f := range bad {
		if err := f.Validate(); !errors.Is(err, ErrInvalidRemoteFile) {
			t.Errorf("Validate(%+v) error = %v, want ErrInvalidRemoteFile", f, err)
		}
	}

	escape := RemoteArchive{RemoteFile: ok, SubPath: "../etc"}
	if err := escape.Validate(); !errors.Is(err, ErrInvalidRemoteFile) {
		t.Errorf("escaping sub path error = %v, want ErrInvalidRemoteFile", err)
	}
}

func TestRecipe_Latest(t *testing.T) {
	t.Parallel()

	r := Recipe{
		Name: "foo",
		Versions: map[version.Version]RecipeVersion{
			version.MustParse("1.0"): {Target: "a"},
			version.MustParse("1.5"): {Target: "b"},
			version.MustParse("2.0"): {Target: "c"},
		},
	}

	v, rv, ok := r.Latest(version.MustParseRequirement("1.*"))
	if !ok || v != version.MustParse("1.5") || rv.Target != "b" {
		t.Errorf("Latest(1.*) = %v %q %v", v, rv.Target, ok)
	}
	if _, _, ok := r.Latest(version.MustParseRequirement("=3")); ok {
		t.Error("Latest(=3) should find nothing")
	}
	if got := r.SortedVersions(); len(got) != 3 || got[2] != version.MustParse("2.0") {
		t.Errorf("SortedVersions() = %v", got)
	}
}

func TestNewLocks(t *testing.T) {
	t.Parallel()

	foo := MustCoordinate("acme/foo")
	bar := MustCoordinate("acme/bar")
	root := NewGroup(Dependency{Coordinate: foo, Requirement: version.MustParseRequirement("1.*")})

	complete := map[Coordinate]ResolvedDependency{
		foo: {Version: version.MustParse("1.1"), Requires: []TransitiveRef{{Coordinate: bar}}},
		bar: {Version: version.MustParse("0.3")},
	}
	locks, err := NewLocks(root, complete)
	if err != nil {
		t.Fatalf("NewLocks: %v", err)
	}
	if locks.Len() != 2 || locks.Versions()[bar] != version.MustParse("0.3") {
		t.Errorf("unexpected locks: %v", locks.Versions())
	}

	missingBar := map[Coordinate]ResolvedDependency{foo: complete[foo]}
	_, err = NewLocks(root, missingBar)
	var incomplete *IncompleteLockError
	if !errors.As(err, &incomplete) || len(incomplete.Missing) != 1 || incomplete.Missing[0] != bar {
		t.Errorf("NewLocks with missing transitive: %v", err)
	}

	wrongVersion := map[Coordinate]ResolvedDependency{foo: {Version: version.MustParse("2.0")}}
	if _, err := NewLocks(root, wrongVersion); !errors.Is(err, ErrIncompleteLock) {
		t.Errorf("NewLocks with unsatisfied root: %v", err)
	}

	defer func() {
		if recover() == nil {
			t.Error("MustNewLocks should panic on incomplete input")
		}
	}()
	MustNewLocks(root, nil)
}
