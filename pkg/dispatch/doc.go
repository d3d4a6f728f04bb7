// Package dispatch routes each generated-eligible type to at most one
// target backend. Targets claim types in configuration order; a type claimed
// by an earlier target is never offered to a later one, and leftovers are
// silently skipped.
package dispatch
