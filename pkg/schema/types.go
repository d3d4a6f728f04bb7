package schema

import (
	"github.com/platinummonkey/sprocket/pkg/location"
)

// Syntax represents the declared protobuf syntax version of a file
type Syntax string

const (
	SyntaxProto2 Syntax = "proto2"
	SyntaxProto3 Syntax = "proto3"
)

// Label represents the cardinality of a field
type Label int

const (
	LabelOptional Label = iota
	LabelRequired
	LabelRepeated
	LabelOneOf
)

func (l Label) String() string {
	return []string{"optional", "required", "repeated", "oneof"}[l]
}

// TypeKind discriminates the variants of Type
type TypeKind int

const (
	KindMessage TypeKind = iota
	KindEnum
	KindService
)

func (k TypeKind) String() string {
	return []string{"message", "enum", "service"}[k]
}

// Type is a named declaration in a schema: a message, an enum, or a service.
// Before linking only the simple name is set; the linker assigns qualified
// names and arena positions.
type Type interface {
	Kind() TypeKind
	QualifiedName() string
	Position() location.Location
}

// TagRange is an inclusive range of field tags
type TagRange struct {
	Start int32
	End   int32
}

// Contains reports whether a tag falls inside the range
func (r TagRange) Contains(tag int32) bool {
	return tag >= r.Start && tag <= r.End
}

// MessageType represents a message declaration
type MessageType struct {
	Name          string // simple name as declared
	Qualified     string // fully qualified name, assigned by the linker
	Fields        []*Field
	OneOfs        []*OneOf
	Nested        []Type
	Extends       []*Extend
	ReservedTags  []TagRange
	ReservedNames []string
	// ExtensionRanges are the tag ranges this message accepts extensions in
	ExtensionRanges []TagRange
	Options         []*Option
	Documentation   string
	Pos             location.Location
}

// Kind returns KindMessage
func (m *MessageType) Kind() TypeKind { return KindMessage }

// QualifiedName returns the fully qualified name assigned during linking
func (m *MessageType) QualifiedName() string { return m.Qualified }

// Position returns the location the declaration began at
func (m *MessageType) Position() location.Location { return m.Pos }

// AllFields returns declared fields plus every oneof member, in tag-space
// order of declaration. Extension fields are not included.
func (m *MessageType) AllFields() []*Field {
	fields := make([]*Field, 0, len(m.Fields))
	fields = append(fields, m.Fields...)
	for _, oneOf := range m.OneOfs {
		fields = append(fields, oneOf.Fields...)
	}
	return fields
}

// ReservesTag reports whether a tag is inside one of the reserved ranges
func (m *MessageType) ReservesTag(tag int32) bool {
	for _, r := range m.ReservedTags {
		if r.Contains(tag) {
			return true
		}
	}
	return false
}

// ReservesName reports whether a field name is reserved
func (m *MessageType) ReservesName(name string) bool {
	for _, n := range m.ReservedNames {
		if n == name {
			return true
		}
	}
	return false
}

// AcceptsExtension reports whether a tag is inside a declared extensions range
func (m *MessageType) AcceptsExtension(tag int32) bool {
	for _, r := range m.ExtensionRanges {
		if r.Contains(tag) {
			return true
		}
	}
	return false
}

// OneOf represents a oneof group inside a message
type OneOf struct {
	Name          string
	Fields        []*Field
	Options       []*Option
	Documentation string
	Pos           location.Location
}

// Field represents a message field, a oneof member, or an extension field
type Field struct {
	Name  string
	Tag   int32
	Label Label
	Type  TypeRef
	// MapKey and MapValue are set for map<K, V> fields until the linker
	// desugars them into a synthetic entry message.
	MapKey   *TypeRef
	MapValue *TypeRef
	Default  string
	Packed   *bool
	Options  []*Option
	// IsExtension marks fields declared inside an extend block; Extendee
	// names the message being extended.
	IsExtension   bool
	Extendee      TypeRef
	Documentation string
	Pos           location.Location
}

// IsMap reports whether the field was declared with map<K, V> syntax
func (f *Field) IsMap() bool {
	return f.MapKey != nil && f.MapValue != nil
}

// Extend represents an extend block targeting another message
type Extend struct {
	Extendee      TypeRef
	Fields        []*Field
	Documentation string
	Pos           location.Location
}

// EnumConstant represents a single enum value
type EnumConstant struct {
	Name          string
	Tag           int32
	Options       []*Option
	Documentation string
	Pos           location.Location
}

// EnumType represents an enum declaration
type EnumType struct {
	Name          string
	Qualified     string
	Constants     []*EnumConstant
	Options       []*Option
	Documentation string
	Pos           location.Location
}

// Kind returns KindEnum
func (e *EnumType) Kind() TypeKind { return KindEnum }

// QualifiedName returns the fully qualified name assigned during linking
func (e *EnumType) QualifiedName() string { return e.Qualified }

// Position returns the location the declaration began at
func (e *EnumType) Position() location.Location { return e.Pos }

// Constant returns the constant with the given name, or nil
func (e *EnumType) Constant(name string) *EnumConstant {
	for _, c := range e.Constants {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// Rpc represents a single rpc declaration inside a service
type Rpc struct {
	Name              string
	Request           TypeRef
	Response          TypeRef
	RequestStreaming  bool
	ResponseStreaming bool
	Options           []*Option
	Documentation     string
	Pos               location.Location
}

// ServiceType represents a service declaration
type ServiceType struct {
	Name          string
	Qualified     string
	Rpcs          []*Rpc
	Options       []*Option
	Documentation string
	Pos           location.Location
}

// Kind returns KindService
func (s *ServiceType) Kind() TypeKind { return KindService }

// QualifiedName returns the fully qualified name assigned during linking
func (s *ServiceType) QualifiedName() string { return s.Qualified }

// Position returns the location the declaration began at
func (s *ServiceType) Position() location.Location { return s.Pos }

// OptionValueKind describes the literal form of an option value
type OptionValueKind int

const (
	OptionIdentifier OptionValueKind = iota
	OptionString
	OptionNumber
	OptionAggregate
)

// Option represents an option assignment. Unrecognized options are retained
// uninterpreted; Value holds the raw literal with string quotes stripped.
type Option struct {
	Name  string
	Value string
	Kind  OptionValueKind
	Pos   location.Location
}

// FindOption returns the option with the given name from a list, or nil
func FindOption(options []*Option, name string) *Option {
	for _, o := range options {
		if o.Name == name {
			return o
		}
	}
	return nil
}

// Import represents a single import statement
type Import struct {
	Path   string
	Public bool
	Pos    location.Location
}

// ProtoFile represents one parsed .proto file. After linking, every TypeRef
// reachable from it resolves into the owning Schema's arena.
type ProtoFile struct {
	Pos           location.Location
	PackageName   string
	Syntax        Syntax
	Imports       []*Import
	Types         []Type // top-level messages and enums, declaration order
	Services      []*ServiceType
	Extends       []*Extend
	Options       []*Option
	Documentation string
}

// ImportPaths returns the paths of all imports, in declaration order
func (f *ProtoFile) ImportPaths() []string {
	paths := make([]string, len(f.Imports))
	for i, imp := range f.Imports {
		paths[i] = imp.Path
	}
	return paths
}
