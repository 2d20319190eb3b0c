// SPDX-License-Identifier: MPL-2.0

package version

import (
	"strconv"
	"unicode"
)

type tokenKind int

const (
	tokNumber tokenKind = iota
	tokDot
	tokEq
	tokGe
	tokLe
	tokLBracket
	tokRBracket
	tokComma
	tokDash
	tokStar
)

type token struct {
	kind tokenKind
	num  int
}

// tokenize splits s into requirement tokens, skipping whitespace. It returns
// false on any character outside the requirement alphabet.
func tokenize(s string) ([]token, bool) {
	var toks []token
	rs := []rune(s)
	for i := 0; i < len(rs); i++ {
		r := rs[i]
		switch {
		case unicode.IsSpace(r):
		case r >= '0' && r <= '9':
			j := i
			for j < len(rs) && rs[j] >= '0' && rs[j] <= '9' {
				j++
			}
			n, err := strconv.Atoi(string(rs[i:j]))
			if err != nil {
				return nil, false
			}
			toks = append(toks, token{kind: tokNumber, num: n})
			i = j - 1
		case r == '.':
			toks = append(toks, token{kind: tokDot})
		case r == '=':
			toks = append(toks, token{kind: tokEq})
		case (r == '>' || r == '<') && i+1 < len(rs) && rs[i+1] == '=':
			kind := tokGe
			if r == '<' {
				kind = tokLe
			}
			toks = append(toks, token{kind: kind})
			i++
		case r == '[':
			toks = append(toks, token{kind: tokLBracket})
		case r == ']':
			toks = append(toks, token{kind: tokRBracket})
		case r == ',':
			toks = append(toks, token{kind: tokComma})
		case r == '-':
			toks = append(toks, token{kind: tokDash})
		case r == '*':
			toks = append(toks, token{kind: tokStar})
		default:
			return nil, false
		}
	}
	return toks, true
}

// parser is a cursor over a token slice. Every rule returns the position
// after what it consumed, or ok=false without side effects.
type parser struct {
	toks []token
}

func (p parser) at(pos int, kind tokenKind) bool {
	return pos < len(p.toks) && p.toks[pos].kind == kind
}

// numbers consumes NUM (DOT NUM)* up to max numbers.
func (p parser) numbers(pos, maxN int) ([]int, int) {
	if !p.at(pos, tokNumber) {
		return nil, pos
	}
	nums := []int{p.toks[pos].num}
	pos++
	for len(nums) < maxN && p.at(pos, tokDot) && p.at(pos+1, tokNumber) {
		nums = append(nums, p.toks[pos+1].num)
		pos += 2
	}
	return nums, pos
}

func (p parser) version(pos int) (Version, int, bool) {
	nums, next := p.numbers(pos, 4)
	if len(nums) == 0 {
		return Version{}, pos, false
	}
	var comps [4]int
	copy(comps[:], nums)
	return Version{Major: comps[0], Minor: comps[1], Patch: comps[2], Build: comps[3]}, next, true
}

func (p parser) wildcard(pos int) (Requirement, int, bool) {
	if p.at(pos, tokStar) {
		return Any{}, pos + 1, true
	}
	nums, next := p.numbers(pos, 4)
	if len(nums) == 0 || !p.at(next, tokDot) || !p.at(next+1, tokStar) {
		return nil, pos, false
	}
	return NewWildcard(nums...), next + 2, true
}

func (p parser) exact(pos int) (Requirement, int, bool) {
	if p.at(pos, tokLBracket) {
		var set []Version
		cur := pos + 1
		for {
			v, next, ok := p.version(cur)
			if !ok {
				return nil, pos, false
			}
			set = append(set, v)
			cur = next
			if p.at(cur, tokComma) {
				cur++
				continue
			}
			if p.at(cur, tokRBracket) {
				return NewExact(set[0], set[1:]...), cur + 1, true
			}
			return nil, pos, false
		}
	}
	cur := pos
	if p.at(cur, tokEq) {
		cur++
	}
	v, next, ok := p.version(cur)
	if !ok {
		return nil, pos, false
	}
	return NewExact(v), next, true
}

func (p parser) bounded(pos int) (Requirement, int, bool) {
	var dir Direction
	switch {
	case p.at(pos, tokGe):
		dir = Above
	case p.at(pos, tokLe):
		dir = Below
	default:
		return nil, pos, false
	}
	v, next, ok := p.version(pos + 1)
	if !ok {
		return nil, pos, false
	}
	return Bounded{Bound: v, Direction: dir}, next, true
}

func (p parser) rangeReq(pos int) (Requirement, int, bool) {
	lo, next, ok := p.version(pos)
	if !ok || !p.at(next, tokDash) {
		return nil, pos, false
	}
	hi, end, ok := p.version(next + 1)
	if !ok {
		return nil, pos, false
	}
	r, ok := NewRange(lo, hi)
	if !ok {
		return nil, pos, false
	}
	return r, end, true
}

// ParseRequirement parses a requirement string. It never panics; the boolean
// is false when s is not a well-formed requirement. Among the alternatives the
// one consuming the most input wins, and it must consume all of it.
func ParseRequirement(s string) (Requirement, bool) {
	toks, ok := tokenize(s)
	if !ok || len(toks) == 0 {
		return nil, false
	}

	p := parser{toks: toks}
	rules := []func(int) (Requirement, int, bool){
		p.wildcard,
		p.exact,
		p.bounded,
		p.rangeReq,
	}

	var best Requirement
	bestEnd := -1
	for _, rule := range rules {
		r, end, ok := rule(0)
		if ok && end > bestEnd {
			best, bestEnd = r, end
		}
	}
	if best == nil || bestEnd != len(toks) {
		return nil, false
	}
	return best, true
}

// MustParseRequirement is like ParseRequirement but panics when s is invalid.
func MustParseRequirement(s string) Requirement {
	r, ok := ParseRequirement(s)
	if !ok {
		panic("invalid version requirement: " + strconv.Quote(s))
	}
	return r
}
