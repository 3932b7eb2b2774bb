// Package fieldpattern implements the glob-style field-path pattern
// language used to select keyable leaf values from a record schema:
// exact names, `*` single-component wildcards, `**` zero-or-more-component
// wildcards, and `{a,b,...}` name sets.
package fieldpattern

import (
	"fmt"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/rpcpool/bagz-index/bagzerrors"
	"github.com/rpcpool/bagz-index/recordschema"
)

// parseCache memoizes ParsePattern by the xxhash of the raw pattern string,
// so a pattern string parsed more than once in a process skips the
// brace-depth split and matcher construction after the first time.
var (
	parseCacheMu sync.RWMutex
	parseCache   = map[uint64]*Pattern{}
)

// matcher is one component of a parsed Pattern.
type matcher interface {
	// match reports whether this matcher accepts the component at path[0],
	// and if so, whether it is a DoubleWildcard (which may also match zero
	// components, handled by the caller).
	match(component string) bool
	isDoubleWildcard() bool
}

type exactMatcher struct{ name string }

func (m exactMatcher) match(c string) bool  { return c == m.name }
func (exactMatcher) isDoubleWildcard() bool { return false }

type wildcardMatcher struct{}

func (wildcardMatcher) match(string) bool     { return true }
func (wildcardMatcher) isDoubleWildcard() bool { return false }

type doubleWildcardMatcher struct{}

func (doubleWildcardMatcher) match(string) bool     { return true }
func (doubleWildcardMatcher) isDoubleWildcard() bool { return true }

type setMatcher struct{ names map[string]struct{} }

func (m setMatcher) match(c string) bool {
	_, ok := m.names[c]
	return ok
}
func (setMatcher) isDoubleWildcard() bool { return false }

// Pattern is a parsed sequence of matchers, one per dot-separated pattern
// component.
type Pattern struct {
	matchers []matcher
}

// ParsePattern splits pattern on "." at brace-depth zero and builds a
// matcher for each component. Successful results are memoized by the
// pattern's xxhash.
func ParsePattern(pattern string) (*Pattern, error) {
	key := xxhash.Sum64String(pattern)

	parseCacheMu.RLock()
	if p, ok := parseCache[key]; ok {
		parseCacheMu.RUnlock()
		return p, nil
	}
	parseCacheMu.RUnlock()

	components, err := splitAtBraceDepthZero(pattern)
	if err != nil {
		return nil, err
	}
	p := &Pattern{matchers: make([]matcher, 0, len(components))}
	for _, c := range components {
		m, err := parseComponent(c)
		if err != nil {
			return nil, err
		}
		p.matchers = append(p.matchers, m)
	}

	parseCacheMu.Lock()
	parseCache[key] = p
	parseCacheMu.Unlock()
	return p, nil
}

func splitAtBraceDepthZero(pattern string) ([]string, error) {
	var components []string
	var current strings.Builder
	depth := 0
	for _, r := range pattern {
		switch r {
		case '{':
			depth++
			current.WriteRune(r)
		case '}':
			depth--
			if depth < 0 {
				return nil, fmt.Errorf("fieldpattern: unbalanced '}' in pattern %q", pattern)
			}
			current.WriteRune(r)
		case '.':
			if depth == 0 {
				components = append(components, current.String())
				current.Reset()
				continue
			}
			current.WriteRune(r)
		default:
			current.WriteRune(r)
		}
	}
	if depth != 0 {
		return nil, fmt.Errorf("fieldpattern: unbalanced '{' in pattern %q", pattern)
	}
	components = append(components, current.String())
	return components, nil
}

func parseComponent(c string) (matcher, error) {
	switch {
	case c == "**":
		return doubleWildcardMatcher{}, nil
	case c == "*":
		return wildcardMatcher{}, nil
	case strings.HasPrefix(c, "{") && strings.HasSuffix(c, "}"):
		inner := c[1 : len(c)-1]
		names := make(map[string]struct{})
		for _, name := range strings.Split(inner, ",") {
			names[strings.TrimSpace(name)] = struct{}{}
		}
		return setMatcher{names: names}, nil
	default:
		return exactMatcher{name: c}, nil
	}
}

// Matches reports whether p matches the full path p against the component
// sequence path, per the spec's match semantics: End conditions: if pattern
// is exhausted, success iff path is exhausted; if path is exhausted with
// pattern remaining, success iff every remaining matcher is DoubleWildcard.
func (p *Pattern) Matches(path []string) bool {
	return matchFrom(p.matchers, path)
}

func matchFrom(matchers []matcher, path []string) bool {
	if len(matchers) == 0 {
		return len(path) == 0
	}
	head := matchers[0]
	if head.isDoubleWildcard() {
		// Zero or more components: try every split point.
		for consumed := 0; consumed <= len(path); consumed++ {
			if matchFrom(matchers[1:], path[consumed:]) {
				return true
			}
		}
		return false
	}
	if len(path) == 0 {
		return false
	}
	if !head.match(path[0]) {
		return false
	}
	return matchFrom(matchers[1:], path[1:])
}

// MatchIterative is a work-list based equivalent of Matches that bounds
// stack depth against pathological deeply-nested `**` patterns without
// changing match semantics. Matches and ExpandPattern do not call it.
func MatchIterative(p *Pattern, path []string) bool {
	type state struct {
		matcherIdx, pathIdx int
	}
	seen := make(map[state]struct{})
	stack := []state{{0, 0}}
	for len(stack) > 0 {
		s := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, visited := seen[s]; visited {
			continue
		}
		seen[s] = struct{}{}

		if s.matcherIdx == len(p.matchers) {
			if s.pathIdx == len(path) {
				return true
			}
			continue
		}
		m := p.matchers[s.matcherIdx]
		if m.isDoubleWildcard() {
			for consumed := s.pathIdx; consumed <= len(path); consumed++ {
				stack = append(stack, state{s.matcherIdx + 1, consumed})
			}
			continue
		}
		if s.pathIdx >= len(path) {
			continue
		}
		if m.match(path[s.pathIdx]) {
			stack = append(stack, state{s.matcherIdx + 1, s.pathIdx + 1})
		}
	}
	return false
}

// ExpandPattern enumerates every field path in desc (depth-first, including
// interior message fields) and retains those p matches.
func ExpandPattern(desc *recordschema.Descriptor, p *Pattern) [][]string {
	var matches [][]string
	var walk func(d *recordschema.Descriptor, prefix []string)
	walk = func(d *recordschema.Descriptor, prefix []string) {
		for _, f := range d.Fields {
			path := append(append([]string(nil), prefix...), f.Name)
			if p.Matches(path) {
				matches = append(matches, path)
			}
			if f.Kind == recordschema.KindMessage && f.Message != nil {
				walk(f.Message, path)
			}
		}
	}
	walk(desc, nil)
	return matches
}

// ExpandKeyFields computes the union of matches from keyPatterns minus the
// union of matches from excludePatterns, per spec §4.G.
func ExpandKeyFields(desc *recordschema.Descriptor, keyPatterns, excludePatterns []string) ([][]string, error) {
	selected := make(map[string][]string)
	var order []string
	for _, raw := range keyPatterns {
		p, err := ParsePattern(raw)
		if err != nil {
			return nil, err
		}
		for _, path := range ExpandPattern(desc, p) {
			k := strings.Join(path, ".")
			if _, ok := selected[k]; !ok {
				order = append(order, k)
				selected[k] = path
			}
		}
	}
	if len(selected) == 0 {
		return nil, fmt.Errorf("%w: no key-field pattern matched the schema", bagzerrors.ErrPathNotFound)
	}
	for _, raw := range excludePatterns {
		p, err := ParsePattern(raw)
		if err != nil {
			return nil, err
		}
		for _, path := range ExpandPattern(desc, p) {
			delete(selected, strings.Join(path, "."))
		}
	}

	out := make([][]string, 0, len(selected))
	for _, k := range order {
		if path, ok := selected[k]; ok {
			out = append(out, path)
		}
	}
	return out, nil
}

// Project descends msg component by component along path, yielding every
// leaf value reachable: repeated fields expand cross-product (each element
// is an independent descent); absent fields yield nothing.
func Project(msg recordschema.Message, path []string) []any {
	if len(path) == 0 {
		return nil
	}
	name := path[0]
	rest := path[1:]

	if len(rest) == 0 {
		if v, ok := msg.Get(name); ok {
			return []any{v}
		}
		if vs, ok := msg.GetRepeatedScalar(name); ok {
			return vs
		}
		return nil
	}

	if subs, ok := msg.GetRepeated(name); ok {
		var out []any
		for _, sub := range subs {
			out = append(out, Project(sub, rest)...)
		}
		return out
	}
	return nil
}
