package location

import (
	"fmt"
	"strings"
)

// Location identifies a position inside a source tree. Base names the search
// root the file was found under (a directory, an archive, or empty for
// synthetic sources) and Path is the forward-slash path relative to Base.
// Line and Column are 1-based and -1 when unknown.
type Location struct {
	Base   string
	Path   string
	Line   int
	Column int
}

// New creates a Location for a whole file, with no line or column.
func New(base, path string) Location {
	return Location{
		Base:   base,
		Path:   toSlash(path),
		Line:   -1,
		Column: -1,
	}
}

// At returns a copy of the location pointing at a line and column.
func (l Location) At(line, column int) Location {
	l.Line = line
	l.Column = column
	return l
}

// WithPath returns a copy of the location with a different relative path.
func (l Location) WithPath(path string) Location {
	l.Path = toSlash(path)
	return l
}

// IsZero reports whether the location is the zero value.
func (l Location) IsZero() bool {
	return l == Location{}
}

// String renders the location the way it appears in diagnostics,
// e.g. "proto/a.proto:12:3".
func (l Location) String() string {
	var sb strings.Builder
	if l.Base != "" {
		sb.WriteString(l.Base)
		sb.WriteString("/")
	}
	sb.WriteString(l.Path)
	if l.Line != -1 {
		fmt.Fprintf(&sb, ":%d", l.Line)
		if l.Column != -1 {
			fmt.Fprintf(&sb, ":%d", l.Column)
		}
	}
	return sb.String()
}

// toSlash normalizes separators so archive and directory roots agree.
func toSlash(path string) string {
	return strings.ReplaceAll(path, "\\", "/")
}
