package identifier

import (
	"fmt"
	"strings"
)

// ConfigError reports a malformed or redundant rule string
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return e.Message
}

// ruleKind discriminates the rule grammar forms
type ruleKind int

const (
	kindAll     ruleKind = iota // *
	kindPackage                 // pkg.sub.*
	kindType                    // pkg.Type
	kindMember                  // pkg.Type#member
)

// rule is one parsed include or exclude entry
type rule struct {
	raw      string
	kind     ruleKind
	pkg      string // package prefix for kindPackage
	typeName string // qualified type for kindType and kindMember
	member   string // member name for kindMember
	used     bool
}

// parseRule validates and compiles a single rule string
func parseRule(raw string) (*rule, error) {
	if raw == "" {
		return nil, &ConfigError{Message: "empty rule"}
	}
	if strings.ContainsAny(raw, " \t") {
		return nil, &ConfigError{Message: fmt.Sprintf("rule %q contains whitespace", raw)}
	}

	if raw == "*" {
		return &rule{raw: raw, kind: kindAll}, nil
	}

	if strings.Contains(raw, "*") {
		if !strings.HasSuffix(raw, ".*") || strings.Count(raw, "*") != 1 {
			return nil, &ConfigError{Message: fmt.Sprintf("invalid wildcard in rule %q", raw)}
		}
		pkg := strings.TrimSuffix(raw, ".*")
		if pkg == "" || strings.Contains(pkg, "#") {
			return nil, &ConfigError{Message: fmt.Sprintf("invalid package wildcard %q", raw)}
		}
		return &rule{raw: raw, kind: kindPackage, pkg: pkg}, nil
	}

	if i := strings.IndexByte(raw, '#'); i >= 0 {
		typeName, member := raw[:i], raw[i+1:]
		if typeName == "" || member == "" || strings.Contains(member, "#") || strings.Contains(member, ".") {
			return nil, &ConfigError{Message: fmt.Sprintf("invalid member rule %q", raw)}
		}
		return &rule{raw: raw, kind: kindMember, typeName: typeName, member: member}, nil
	}

	return &rule{raw: raw, kind: kindType, typeName: raw}, nil
}

// specificity orders rules for tie-breaking: member rules beat type rules,
// type rules beat package wildcards, and all of these beat *
func (r *rule) specificity() int {
	switch r.kind {
	case kindMember:
		return 3000 + len(r.typeName)
	case kindType:
		return 2000 + len(r.typeName)
	case kindPackage:
		return 1000 + len(r.pkg)
	default:
		return 0
	}
}

// inPackage reports whether a qualified name lies in pkg or a descendant
func inPackage(name, pkg string) bool {
	return name == pkg || strings.HasPrefix(name, pkg+".")
}

// matchesType reports whether the rule selects a type. A member rule selects
// its enclosing type only when seeding is true; used when deciding inclusion
// roots, where naming a member pulls its type in.
func (r *rule) matchesType(name string, seeding bool) bool {
	switch r.kind {
	case kindAll:
		return true
	case kindPackage:
		return inPackage(name, r.pkg)
	case kindType:
		return name == r.typeName
	case kindMember:
		return seeding && name == r.typeName
	}
	return false
}

// matchesMember reports whether the rule selects a member of a type
func (r *rule) matchesMember(typeName, member string) bool {
	switch r.kind {
	case kindAll:
		return true
	case kindPackage:
		return inPackage(typeName, r.pkg)
	case kindType:
		return typeName == r.typeName
	case kindMember:
		return typeName == r.typeName && member == r.member
	}
	return false
}

// implies reports whether every name this rule matches is also matched by
// the receiver; used to reject redundant configuration
func (r *rule) implies(other *rule) bool {
	switch r.kind {
	case kindAll:
		return true
	case kindPackage:
		switch other.kind {
		case kindPackage:
			return inPackage(other.pkg, r.pkg)
		case kindType, kindMember:
			return inPackage(other.typeName, r.pkg)
		}
	case kindType:
		return other.kind == kindMember && other.typeName == r.typeName
	}
	return false
}
