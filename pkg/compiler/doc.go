// Package compiler wires the pipeline end to end: source sets, loading,
// linking, tree shaking, and target dispatch. It is the programmatic entry
// point the CLI drives.
package compiler
