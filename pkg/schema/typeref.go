package schema

// ScalarType enumerates the protobuf built-in field types
type ScalarType int

const (
	ScalarNone ScalarType = iota
	ScalarDouble
	ScalarFloat
	ScalarInt32
	ScalarInt64
	ScalarUint32
	ScalarUint64
	ScalarSint32
	ScalarSint64
	ScalarFixed32
	ScalarFixed64
	ScalarSfixed32
	ScalarSfixed64
	ScalarBool
	ScalarString
	ScalarBytes
)

var scalarNames = map[string]ScalarType{
	"double":   ScalarDouble,
	"float":    ScalarFloat,
	"int32":    ScalarInt32,
	"int64":    ScalarInt64,
	"uint32":   ScalarUint32,
	"uint64":   ScalarUint64,
	"sint32":   ScalarSint32,
	"sint64":   ScalarSint64,
	"fixed32":  ScalarFixed32,
	"fixed64":  ScalarFixed64,
	"sfixed32": ScalarSfixed32,
	"sfixed64": ScalarSfixed64,
	"bool":     ScalarBool,
	"string":   ScalarString,
	"bytes":    ScalarBytes,
}

// ScalarFromName maps a type name to its scalar kind, if it is one
func ScalarFromName(name string) (ScalarType, bool) {
	s, ok := scalarNames[name]
	return s, ok
}

func (s ScalarType) String() string {
	for name, scalar := range scalarNames {
		if scalar == s {
			return name
		}
	}
	return "<none>"
}

// TypeRef names a field, rpc, or extendee type. Before linking only Name (or
// Scalar) is set; the linker fills Index with the arena position of the
// resolved declaration. The arena-index representation keeps the schema graph
// free of owning cycles even for self-referential messages.
type TypeRef struct {
	Scalar ScalarType
	Name   string // as written in source; a leading dot marks an absolute name
	Index  int    // arena index once resolved, -1 otherwise
}

// ScalarRef creates a reference to a built-in type
func ScalarRef(s ScalarType) TypeRef {
	return TypeRef{Scalar: s, Index: -1}
}

// NamedRef creates an unresolved reference to a named type
func NamedRef(name string) TypeRef {
	return TypeRef{Name: name, Index: -1}
}

// IsScalar reports whether the reference names a built-in type
func (r TypeRef) IsScalar() bool {
	return r.Scalar != ScalarNone
}

// Resolved reports whether the reference has been bound to an arena entry
func (r TypeRef) Resolved() bool {
	return r.IsScalar() || r.Index >= 0
}

func (r TypeRef) String() string {
	if r.IsScalar() {
		return r.Scalar.String()
	}
	return r.Name
}
