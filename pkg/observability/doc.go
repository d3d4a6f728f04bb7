// Package observability provides the structured logger that the compiler
// pipeline reports progress and diagnostics through.
package observability
