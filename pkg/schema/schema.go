package schema

import (
	"strings"
)

// Schema is the linked compilation unit: every loaded file plus a flat arena
// of all declarations, indexed by qualified name. The arena is
// declaration-ordered, which keeps downstream iteration deterministic.
type Schema struct {
	files []*ProtoFile
	arena []Type
	index map[string]int
	// fileOf maps arena index to the file the declaration came from
	fileOf []*ProtoFile
}

// NewSchema creates an empty schema over a set of files
func NewSchema(files []*ProtoFile) *Schema {
	return &Schema{
		files: files,
		index: make(map[string]int),
	}
}

// Files returns the files of the compilation unit, in load order
func (s *Schema) Files() []*ProtoFile {
	return s.files
}

// Register inserts a declaration into the arena under its qualified name.
// It returns the arena index and false if the name was already taken.
func (s *Schema) Register(t Type, file *ProtoFile) (int, bool) {
	name := t.QualifiedName()
	if _, exists := s.index[name]; exists {
		return -1, false
	}
	idx := len(s.arena)
	s.arena = append(s.arena, t)
	s.fileOf = append(s.fileOf, file)
	s.index[name] = idx
	return idx, true
}

// Lookup returns the declaration with the given qualified name
func (s *Schema) Lookup(name string) (Type, bool) {
	idx, ok := s.index[name]
	if !ok {
		return nil, false
	}
	return s.arena[idx], true
}

// IndexOf returns the arena index of a qualified name
func (s *Schema) IndexOf(name string) (int, bool) {
	idx, ok := s.index[name]
	return idx, ok
}

// TypeAt returns the declaration at an arena index
func (s *Schema) TypeAt(idx int) Type {
	return s.arena[idx]
}

// FileOf returns the file that declared the arena entry
func (s *Schema) FileOf(idx int) *ProtoFile {
	return s.fileOf[idx]
}

// Len returns the number of declarations in the arena
func (s *Schema) Len() int {
	return len(s.arena)
}

// Types returns every declaration in arena (declaration) order
func (s *Schema) Types() []Type {
	return s.arena
}

// Resolve returns the declaration a reference is bound to, or nil for scalar
// and unresolved references
func (s *Schema) Resolve(ref TypeRef) Type {
	if ref.IsScalar() || ref.Index < 0 || ref.Index >= len(s.arena) {
		return nil
	}
	return s.arena[ref.Index]
}

// Join combines a scope and a simple name into a qualified name
func Join(scope, name string) string {
	if scope == "" {
		return name
	}
	return scope + "." + name
}

// Member renders the qualified member form "pkg.Type#member"
func Member(typeName, member string) string {
	return typeName + "#" + member
}

// SplitMember splits "pkg.Type#member" into its type and member parts.
// The member part is empty for plain type names.
func SplitMember(name string) (string, string) {
	if i := strings.IndexByte(name, '#'); i >= 0 {
		return name[:i], name[i+1:]
	}
	return name, ""
}
