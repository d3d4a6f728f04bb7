// Package identifier evaluates inclusion and exclusion rules over qualified
// schema names. Rules match everything (*), package subtrees (pkg.*), exact
// types, or single members (pkg.Type#member); each rule tracks whether it
// ever fired so dead configuration can be reported.
package identifier
