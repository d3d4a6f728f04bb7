package linker

import (
	"fmt"
	"strings"

	"github.com/platinummonkey/sprocket/pkg/location"
	"github.com/platinummonkey/sprocket/pkg/schema"
)

// reservedRangeStart and reservedRangeEnd bound the protobuf implementation
// reserved tag range
const (
	reservedRangeStart = 19000
	reservedRangeEnd   = 19999
)

// messageUnit pairs a message with its declaring file for the resolution pass
type messageUnit struct {
	msg  *schema.MessageType
	file *schema.ProtoFile
}

// serviceUnit pairs a service with its declaring file
type serviceUnit struct {
	svc  *schema.ServiceType
	file *schema.ProtoFile
}

// enumUnit pairs an enum with its declaring file
type enumUnit struct {
	enum *schema.EnumType
	file *schema.ProtoFile
}

// extendUnit pairs an extend block with its declaring file and scope
type extendUnit struct {
	ext   *schema.Extend
	file  *schema.ProtoFile
	scope string
}

// linker carries the state of one link run
type linker struct {
	schema   *schema.Schema
	errors   []error
	messages []messageUnit
	enums    []enumUnit
	services []serviceUnit
	extends  []extendUnit
	// byPath maps import paths to their loaded files
	byPath map[string]*schema.ProtoFile
	// visible maps each file to the set of files it may reference
	visible map[*schema.ProtoFile]map[*schema.ProtoFile]bool
	// extensions collects resolved extension fields per extendee arena index
	extensions map[int][]*schema.Field
}

// Link resolves every reference across the files and validates the schema.
// All errors found are returned together as a *LinkFailure.
func Link(files []*schema.ProtoFile) (*schema.Schema, error) {
	l := &linker{
		schema:     schema.NewSchema(files),
		byPath:     make(map[string]*schema.ProtoFile),
		visible:    make(map[*schema.ProtoFile]map[*schema.ProtoFile]bool),
		extensions: make(map[int][]*schema.Field),
	}

	l.indexDeclarations(files)
	l.computeVisibility(files)
	l.checkImportCycles(files)
	l.resolveReferences()
	l.validate()

	if len(l.errors) > 0 {
		return nil, &LinkFailure{Errors: l.errors}
	}
	return l.schema, nil
}

// errorf records a validation error without aborting the pass
func (l *linker) errorf(loc location.Location, format string, args ...interface{}) {
	l.errors = append(l.errors, &ValidationError{
		Location: loc,
		Message:  fmt.Sprintf(format, args...),
	})
}

// indexDeclarations is pass A: assign qualified names and fill the arena
func (l *linker) indexDeclarations(files []*schema.ProtoFile) {
	for _, file := range files {
		l.byPath[file.Pos.Path] = file
		for _, t := range file.Types {
			l.register(t, file.PackageName, file)
		}
		for _, svc := range file.Services {
			svc.Qualified = schema.Join(file.PackageName, svc.Name)
			l.insert(svc, file)
		}
		for _, ext := range file.Extends {
			l.extends = append(l.extends, extendUnit{ext: ext, file: file, scope: file.PackageName})
		}
	}
}

// register walks a type and its nested declarations, qualifying names
func (l *linker) register(t schema.Type, scope string, file *schema.ProtoFile) {
	switch decl := t.(type) {
	case *schema.MessageType:
		decl.Qualified = schema.Join(scope, decl.Name)
		l.insert(decl, file)
		l.messages = append(l.messages, messageUnit{msg: decl, file: file})
		for _, nested := range decl.Nested {
			l.register(nested, decl.Qualified, file)
		}
		for _, ext := range decl.Extends {
			l.extends = append(l.extends, extendUnit{ext: ext, file: file, scope: decl.Qualified})
		}
	case *schema.EnumType:
		decl.Qualified = schema.Join(scope, decl.Name)
		l.insert(decl, file)
		l.enums = append(l.enums, enumUnit{enum: decl, file: file})
	}
}

// insert adds a declaration to the arena, reporting name collisions
func (l *linker) insert(t schema.Type, file *schema.ProtoFile) {
	if _, ok := l.schema.Register(t, file); !ok {
		first, _ := l.schema.Lookup(t.QualifiedName())
		l.errors = append(l.errors, &DuplicateTypeError{
			Name:   t.QualifiedName(),
			First:  first.Position(),
			Second: t.Position(),
		})
		return
	}
	if svc, ok := t.(*schema.ServiceType); ok {
		l.services = append(l.services, serviceUnit{svc: svc, file: file})
	}
}

// computeVisibility determines, per file, which files its references may
// land in: the file itself, its direct imports, and the transitive closure
// of public imports reachable through them.
func (l *linker) computeVisibility(files []*schema.ProtoFile) {
	for _, file := range files {
		seen := map[*schema.ProtoFile]bool{file: true}
		for _, imp := range file.Imports {
			imported, ok := l.byPath[imp.Path]
			if !ok {
				continue
			}
			l.addVisible(imported, seen)
		}
		l.visible[file] = seen
	}
}

// addVisible marks a file and its public re-exports as visible
func (l *linker) addVisible(file *schema.ProtoFile, seen map[*schema.ProtoFile]bool) {
	if seen[file] {
		return
	}
	seen[file] = true
	for _, imp := range file.Imports {
		if !imp.Public {
			continue
		}
		if imported, ok := l.byPath[imp.Path]; ok {
			l.addVisible(imported, seen)
		}
	}
}

// checkImportCycles rejects cycles in the non-public import graph
func (l *linker) checkImportCycles(files []*schema.ProtoFile) {
	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[*schema.ProtoFile]int)

	var visit func(file *schema.ProtoFile, trail []string) bool
	visit = func(file *schema.ProtoFile, trail []string) bool {
		switch state[file] {
		case visiting:
			l.errors = append(l.errors, &ValidationError{
				Location: file.Pos,
				Message:  fmt.Sprintf("import cycle: %s", strings.Join(append(trail, file.Pos.Path), " -> ")),
			})
			return false
		case done:
			return true
		}
		state[file] = visiting
		for _, imp := range file.Imports {
			if imp.Public {
				continue
			}
			if imported, ok := l.byPath[imp.Path]; ok {
				if !visit(imported, append(trail, file.Pos.Path)) {
					break
				}
			}
		}
		state[file] = done
		return true
	}

	for _, file := range files {
		visit(file, nil)
	}
}

// resolveReferences is pass B: bind every TypeRef to an arena index
func (l *linker) resolveReferences() {
	// desugaring appends synthetic entry messages to l.messages; the index
	// loop picks them up so their key/value fields resolve too
	for i := 0; i < len(l.messages); i++ {
		unit := l.messages[i]
		l.desugarMapFields(unit)
		for _, field := range unit.msg.AllFields() {
			l.resolveFieldType(field, unit.msg.Qualified, unit.file)
		}
	}

	for _, unit := range l.services {
		for _, rpc := range unit.svc.Rpcs {
			l.resolveRef(&rpc.Request, unit.svc.Qualified, unit.file, rpc.Pos)
			l.resolveRef(&rpc.Response, unit.svc.Qualified, unit.file, rpc.Pos)
			if t := l.schema.Resolve(rpc.Request); t != nil && t.Kind() != schema.KindMessage {
				l.errors = append(l.errors, &ValidationError{
					Location: rpc.Pos,
					Message:  fmt.Sprintf("rpc %s request type %s is not a message", rpc.Name, rpc.Request.Name),
				})
			}
			if t := l.schema.Resolve(rpc.Response); t != nil && t.Kind() != schema.KindMessage {
				l.errors = append(l.errors, &ValidationError{
					Location: rpc.Pos,
					Message:  fmt.Sprintf("rpc %s response type %s is not a message", rpc.Name, rpc.Response.Name),
				})
			}
		}
	}

	for _, unit := range l.extends {
		l.resolveExtend(unit)
	}
}

// resolveFieldType binds one field's declared type
func (l *linker) resolveFieldType(field *schema.Field, scope string, file *schema.ProtoFile) {
	if field.Type.IsScalar() || field.Type.Resolved() {
		return
	}
	l.resolveRef(&field.Type, scope, file, field.Pos)
	if t := l.schema.Resolve(field.Type); t != nil && t.Kind() == schema.KindService {
		l.errors = append(l.errors, &ValidationError{
			Location: field.Pos,
			Message:  fmt.Sprintf("field %s references service %s as a type", field.Name, field.Type.Name),
		})
	}
}

// resolveRef resolves a named reference using proto scoping rules: search
// from the innermost enclosing scope outward, honoring import visibility.
// A leading dot anchors the name at the root.
func (l *linker) resolveRef(ref *schema.TypeRef, scope string, file *schema.ProtoFile, from location.Location) {
	if ref.IsScalar() || ref.Resolved() {
		return
	}

	name := ref.Name
	if strings.HasPrefix(name, ".") {
		if idx, ok := l.lookupVisible(name[1:], file); ok {
			ref.Index = idx
			return
		}
		l.errors = append(l.errors, &UnresolvedReferenceError{Name: name, From: from})
		return
	}

	for s := scope; ; s = parentScope(s) {
		if idx, ok := l.lookupVisible(schema.Join(s, name), file); ok {
			ref.Index = idx
			return
		}
		if s == "" {
			break
		}
	}

	l.errors = append(l.errors, &UnresolvedReferenceError{Name: name, From: from})
}

// lookupVisible finds a qualified name if its declaring file is visible
func (l *linker) lookupVisible(name string, file *schema.ProtoFile) (int, bool) {
	idx, ok := l.schema.IndexOf(name)
	if !ok {
		return -1, false
	}
	declaring := l.schema.FileOf(idx)
	if declaring != file && !l.visible[file][declaring] {
		return -1, false
	}
	return idx, true
}

// parentScope trims the last path segment of a scope
func parentScope(scope string) string {
	if i := strings.LastIndexByte(scope, '.'); i >= 0 {
		return scope[:i]
	}
	return ""
}

// resolveExtend binds an extend block's extendee and fields, and records the
// extension fields against their target for tag validation
func (l *linker) resolveExtend(unit extendUnit) {
	l.resolveRef(&unit.ext.Extendee, unit.scope, unit.file, unit.ext.Pos)
	target := l.schema.Resolve(unit.ext.Extendee)
	targetMsg, isMessage := target.(*schema.MessageType)
	if target != nil && !isMessage {
		l.errors = append(l.errors, &ValidationError{
			Location: unit.ext.Pos,
			Message:  fmt.Sprintf("extendee %s is not a message", unit.ext.Extendee.Name),
		})
	}

	for _, field := range unit.ext.Fields {
		field.Extendee = unit.ext.Extendee
		l.resolveFieldType(field, unit.scope, unit.file)
		if targetMsg == nil {
			continue
		}
		if !targetMsg.AcceptsExtension(field.Tag) {
			l.errors = append(l.errors, &ValidationError{
				Location: field.Pos,
				Message: fmt.Sprintf("extension field %s tag %d is outside the extension ranges of %s",
					field.Name, field.Tag, targetMsg.Qualified),
			})
			continue
		}
		l.extensions[unit.ext.Extendee.Index] = append(l.extensions[unit.ext.Extendee.Index], field)
	}
}

// desugarMapFields replaces map<K, V> fields with synthetic entry messages
func (l *linker) desugarMapFields(unit messageUnit) {
	for _, oneOf := range unit.msg.OneOfs {
		for _, field := range oneOf.Fields {
			if field.IsMap() {
				l.errorf(field.Pos, "map field %s is not allowed inside a oneof", field.Name)
			}
		}
	}

	for _, field := range unit.msg.Fields {
		if !field.IsMap() {
			continue
		}

		switch field.MapKey.Scalar {
		case schema.ScalarNone, schema.ScalarDouble, schema.ScalarFloat, schema.ScalarBytes:
			l.errorf(field.Pos, "map field %s key type %s is not an integral or string type", field.Name, field.MapKey)
			continue
		}

		entry := &schema.MessageType{
			Name:      upperCamel(field.Name) + "Entry",
			Qualified: schema.Join(unit.msg.Qualified, upperCamel(field.Name)+"Entry"),
			Fields: []*schema.Field{
				{Name: "key", Tag: 1, Label: schema.LabelOptional, Type: *field.MapKey, Pos: field.Pos},
				{Name: "value", Tag: 2, Label: schema.LabelOptional, Type: *field.MapValue, Pos: field.Pos},
			},
			Options: []*schema.Option{
				{Name: "map_entry", Value: "true", Kind: schema.OptionIdentifier, Pos: field.Pos},
			},
			Pos: field.Pos,
		}
		l.insert(entry, unit.file)
		l.messages = append(l.messages, messageUnit{msg: entry, file: unit.file})
		unit.msg.Nested = append(unit.msg.Nested, entry)

		idx, _ := l.schema.IndexOf(entry.Qualified)
		field.Type = schema.TypeRef{Name: entry.Qualified, Index: idx}
		field.Label = schema.LabelRepeated
	}
}

// upperCamel converts snake_case to UpperCamelCase, the naming protoc uses
// for synthetic map entry messages
func upperCamel(name string) string {
	var sb strings.Builder
	upper := true
	for _, r := range name {
		if r == '_' {
			upper = true
			continue
		}
		if upper {
			sb.WriteString(strings.ToUpper(string(r)))
			upper = false
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
