// Package linker binds every type reference across a set of parsed files and
// validates the resulting schema. Errors are accumulated and reported as one
// aggregate so a single run surfaces all problems.
package linker
