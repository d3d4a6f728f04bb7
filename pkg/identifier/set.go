package identifier

import (
	"fmt"
)

// Set is a compiled pair of include and exclude rule lists over qualified
// names. An empty include list means "include everything". Exclusion always
// wins: a name matched by any exclude rule is out, regardless of how
// specifically an include names it.
type Set struct {
	includes []*rule
	excludes []*rule
}

// New compiles include and exclude rule strings. It fails with a ConfigError
// when a rule is malformed or when one rule in a list is already covered by
// a broader rule in the same list.
func New(includes, excludes []string) (*Set, error) {
	s := &Set{}
	var err error
	if s.includes, err = compileList(includes); err != nil {
		return nil, err
	}
	if s.excludes, err = compileList(excludes); err != nil {
		return nil, err
	}
	return s, nil
}

// compileList parses a rule list and rejects redundant pairs
func compileList(raws []string) ([]*rule, error) {
	rules := make([]*rule, 0, len(raws))
	for _, raw := range raws {
		r, err := parseRule(raw)
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	for _, narrow := range rules {
		for _, broad := range rules {
			if narrow == broad {
				continue
			}
			if broad.implies(narrow) {
				return nil, &ConfigError{
					Message: fmt.Sprintf("redundant rule %q is already covered by %q", narrow.raw, broad.raw),
				}
			}
		}
	}
	return rules, nil
}

// mostSpecific returns the highest-specificity matching rule, or nil
func mostSpecific(rules []*rule, match func(*rule) bool) *rule {
	var best *rule
	for _, r := range rules {
		if !match(r) {
			continue
		}
		if best == nil || r.specificity() > best.specificity() {
			best = r
		}
	}
	return best
}

// IncludesType decides whether a type with the given qualified name is
// included. Naming a type in the includes by member reference seeds the
// type itself.
func (s *Set) IncludesType(name string) bool {
	if excluded := mostSpecific(s.excludes, func(r *rule) bool { return r.matchesType(name, false) }); excluded != nil {
		excluded.used = true
		return false
	}
	if len(s.includes) == 0 {
		return true
	}
	if included := mostSpecific(s.includes, func(r *rule) bool { return r.matchesType(name, true) }); included != nil {
		included.used = true
		return true
	}
	return false
}

// IncludesMember decides whether a member of a type is included. When the
// includes name the type only through member references, its unlisted
// members are out; otherwise every member not hit by an exclude rule is
// kept, including members of types pulled in purely by reachability.
func (s *Set) IncludesMember(typeName, member string) bool {
	if excluded := mostSpecific(s.excludes, func(r *rule) bool { return r.matchesMember(typeName, member) }); excluded != nil {
		excluded.used = true
		return false
	}
	if len(s.includes) == 0 {
		return true
	}

	memberListed := false
	for _, r := range s.includes {
		if r.kind != kindMember || r.typeName != typeName {
			continue
		}
		memberListed = true
		if r.member == member {
			r.used = true
			return true
		}
	}

	if included := mostSpecific(s.includes, func(r *rule) bool {
		return r.kind != kindMember && r.matchesMember(typeName, member)
	}); included != nil {
		included.used = true
		return true
	}

	// the type is named only by member references; unlisted members are out
	if memberListed {
		return false
	}
	return true
}

// IncludesEverything reports whether the set is the trivial "keep it all"
// configuration: no excludes, and includes either empty or just *. A lone *
// include is marked used, since callers take a fast path that skips matching.
func (s *Set) IncludesEverything() bool {
	if len(s.excludes) > 0 {
		return false
	}
	if len(s.includes) == 0 {
		return true
	}
	if len(s.includes) == 1 && s.includes[0].kind == kindAll {
		s.includes[0].used = true
		return true
	}
	return false
}

// UnusedIncludes returns the include rules that never fired, in rule order
func (s *Set) UnusedIncludes() []string {
	return unused(s.includes)
}

// UnusedExcludes returns the exclude rules that never fired, in rule order
func (s *Set) UnusedExcludes() []string {
	return unused(s.excludes)
}

func unused(rules []*rule) []string {
	var raws []string
	for _, r := range rules {
		if !r.used {
			raws = append(raws, r.raw)
		}
	}
	return raws
}
