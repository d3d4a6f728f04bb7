// Package source presents a uniform read interface over an ordered list of
// search roots: filesystem directories, zip archives, and single .proto
// files. Earlier roots shadow later ones, and enumeration order is
// deterministic so compiler output is stable across runs.
package source
