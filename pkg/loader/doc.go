// Package loader drives the source set and the parser to build the full set
// of files a compilation needs: every .proto under the source path, the
// transitive closure of their imports across the source and proto paths, and
// the implicitly injected descriptor definitions that option resolution
// relies on.
package loader
