// Package location defines the immutable file coordinates used in
// diagnostics across the compiler pipeline.
package location
