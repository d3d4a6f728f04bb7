// Package pruner tree-shakes a linked schema: it seeds the types matched by
// the configured roots, follows type references transitively, and rebuilds a
// new schema containing only what survived. The input schema is never
// mutated.
package pruner
