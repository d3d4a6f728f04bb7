package descriptor

import (
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/descriptorpb"

	"github.com/platinummonkey/sprocket/pkg/dispatch"
	"github.com/platinummonkey/sprocket/pkg/observability"
	"github.com/platinummonkey/sprocket/pkg/schema"
	"github.com/platinummonkey/sprocket/pkg/source"
)

// Target emits claimed types as a serialized FileDescriptorSet
type Target struct {
	out      string
	elements []string
	handler  *handler
}

// New creates a descriptor target writing to the given output path
func New(out string, elements []string) *Target {
	return &Target{
		out:      out,
		elements: elements,
	}
}

// Name identifies the target in logs and errors
func (t *Target) Name() string { return "descriptor" }

// Out returns the configured output path
func (t *Target) Out() string { return t.out }

// Elements returns the rule strings selecting this target's types
func (t *Target) Elements() []string { return t.elements }

// NewHandler creates the handler for one dispatch run
func (t *Target) NewHandler(s *schema.Schema, fs source.Filesystem, logger *observability.Logger) (dispatch.Handler, error) {
	t.handler = &handler{
		schema:  s,
		files:   make(map[*schema.ProtoFile]*descriptorpb.FileDescriptorProto),
		emitted: make(map[string]bool),
	}
	return t.handler, nil
}

// Bytes serializes everything the handler collected during dispatch
func (t *Target) Bytes() ([]byte, error) {
	if t.handler == nil {
		return nil, fmt.Errorf("descriptor target has not been dispatched")
	}
	set := &descriptorpb.FileDescriptorSet{
		File: t.handler.order,
	}
	return proto.Marshal(set)
}

// handler accumulates claimed types grouped by their declaring file
type handler struct {
	schema  *schema.Schema
	files   map[*schema.ProtoFile]*descriptorpb.FileDescriptorProto
	order   []*descriptorpb.FileDescriptorProto
	emitted map[string]bool
}

// Handle adds one claimed type to its file's descriptor. Types nested inside
// an already-emitted message were serialized with their parent and are
// skipped.
func (h *handler) Handle(t schema.Type) error {
	if h.emitted[t.QualifiedName()] {
		return nil
	}

	idx, ok := h.schema.IndexOf(t.QualifiedName())
	if !ok {
		return &dispatch.GenerationError{
			Target:  "descriptor",
			Type:    t.QualifiedName(),
			Message: "type is not in the schema arena",
		}
	}
	file := h.schema.FileOf(idx)
	fd := h.fileDescriptor(file)

	switch decl := t.(type) {
	case *schema.MessageType:
		fd.MessageType = append(fd.MessageType, h.message(decl))
	case *schema.EnumType:
		fd.EnumType = append(fd.EnumType, h.enum(decl))
		h.emitted[decl.Qualified] = true
	case *schema.ServiceType:
		fd.Service = append(fd.Service, h.service(decl))
		h.emitted[decl.Qualified] = true
	}
	return nil
}

// fileDescriptor returns the descriptor for a file, creating it on first use
func (h *handler) fileDescriptor(file *schema.ProtoFile) *descriptorpb.FileDescriptorProto {
	if fd, ok := h.files[file]; ok {
		return fd
	}

	fd := &descriptorpb.FileDescriptorProto{
		Name:       proto.String(file.Pos.Path),
		Syntax:     proto.String(string(file.Syntax)),
		Dependency: file.ImportPaths(),
	}
	if file.PackageName != "" {
		fd.Package = proto.String(file.PackageName)
	}
	for i, imp := range file.Imports {
		if imp.Public {
			fd.PublicDependency = append(fd.PublicDependency, int32(i))
		}
	}
	if opts := h.fileOptions(file); opts != nil {
		fd.Options = opts
	}

	h.files[file] = fd
	h.order = append(h.order, fd)
	return fd
}

// fileOptions converts the well-known file options
func (h *handler) fileOptions(file *schema.ProtoFile) *descriptorpb.FileOptions {
	var opts *descriptorpb.FileOptions
	ensure := func() *descriptorpb.FileOptions {
		if opts == nil {
			opts = &descriptorpb.FileOptions{}
		}
		return opts
	}
	if o := schema.FindOption(file.Options, "java_package"); o != nil {
		ensure().JavaPackage = proto.String(o.Value)
	}
	if o := schema.FindOption(file.Options, "go_package"); o != nil {
		ensure().GoPackage = proto.String(o.Value)
	}
	if o := schema.FindOption(file.Options, "java_multiple_files"); o != nil {
		ensure().JavaMultipleFiles = proto.Bool(o.Value == "true")
	}
	return opts
}

// message converts a message and its nested declarations
func (h *handler) message(msg *schema.MessageType) *descriptorpb.DescriptorProto {
	h.emitted[msg.Qualified] = true

	dp := &descriptorpb.DescriptorProto{
		Name: proto.String(msg.Name),
	}

	for _, field := range msg.Fields {
		dp.Field = append(dp.Field, h.field(field, -1))
	}
	for oneOfIdx, oneOf := range msg.OneOfs {
		dp.OneofDecl = append(dp.OneofDecl, &descriptorpb.OneofDescriptorProto{
			Name: proto.String(oneOf.Name),
		})
		for _, field := range oneOf.Fields {
			dp.Field = append(dp.Field, h.field(field, int32(oneOfIdx)))
		}
	}

	for _, nested := range msg.Nested {
		switch decl := nested.(type) {
		case *schema.MessageType:
			dp.NestedType = append(dp.NestedType, h.message(decl))
		case *schema.EnumType:
			dp.EnumType = append(dp.EnumType, h.enum(decl))
			h.emitted[decl.Qualified] = true
		}
	}

	for _, r := range msg.ReservedTags {
		dp.ReservedRange = append(dp.ReservedRange, &descriptorpb.DescriptorProto_ReservedRange{
			Start: proto.Int32(r.Start),
			End:   proto.Int32(r.End + 1), // descriptor ranges are end-exclusive
		})
	}
	dp.ReservedName = append(dp.ReservedName, msg.ReservedNames...)
	for _, r := range msg.ExtensionRanges {
		dp.ExtensionRange = append(dp.ExtensionRange, &descriptorpb.DescriptorProto_ExtensionRange{
			Start: proto.Int32(r.Start),
			End:   proto.Int32(r.End + 1),
		})
	}

	if o := schema.FindOption(msg.Options, "map_entry"); o != nil && o.Value == "true" {
		dp.Options = &descriptorpb.MessageOptions{MapEntry: proto.Bool(true)}
	}

	return dp
}

// field converts one field; oneOfIdx is -1 outside a oneof
func (h *handler) field(field *schema.Field, oneOfIdx int32) *descriptorpb.FieldDescriptorProto {
	fd := &descriptorpb.FieldDescriptorProto{
		Name:   proto.String(field.Name),
		Number: proto.Int32(field.Tag),
		Label:  fieldLabel(field.Label).Enum(),
	}

	if field.Type.IsScalar() {
		fd.Type = scalarType(field.Type.Scalar).Enum()
	} else if target := h.schema.Resolve(field.Type); target != nil {
		if target.Kind() == schema.KindEnum {
			fd.Type = descriptorpb.FieldDescriptorProto_TYPE_ENUM.Enum()
		} else {
			fd.Type = descriptorpb.FieldDescriptorProto_TYPE_MESSAGE.Enum()
		}
		fd.TypeName = proto.String("." + target.QualifiedName())
	}

	if oneOfIdx >= 0 {
		fd.OneofIndex = proto.Int32(oneOfIdx)
	}
	if field.Default != "" {
		fd.DefaultValue = proto.String(field.Default)
	}
	if field.Packed != nil {
		fd.Options = &descriptorpb.FieldOptions{Packed: proto.Bool(*field.Packed)}
	}
	if field.IsExtension {
		if extendee := h.schema.Resolve(field.Extendee); extendee != nil {
			fd.Extendee = proto.String("." + extendee.QualifiedName())
		}
	}
	return fd
}

// enum converts an enum declaration
func (h *handler) enum(enum *schema.EnumType) *descriptorpb.EnumDescriptorProto {
	ed := &descriptorpb.EnumDescriptorProto{
		Name: proto.String(enum.Name),
	}
	for _, constant := range enum.Constants {
		ed.Value = append(ed.Value, &descriptorpb.EnumValueDescriptorProto{
			Name:   proto.String(constant.Name),
			Number: proto.Int32(constant.Tag),
		})
	}
	if o := schema.FindOption(enum.Options, "allow_alias"); o != nil && o.Value == "true" {
		ed.Options = &descriptorpb.EnumOptions{AllowAlias: proto.Bool(true)}
	}
	return ed
}

// service converts a service declaration
func (h *handler) service(svc *schema.ServiceType) *descriptorpb.ServiceDescriptorProto {
	sd := &descriptorpb.ServiceDescriptorProto{
		Name: proto.String(svc.Name),
	}
	for _, rpc := range svc.Rpcs {
		method := &descriptorpb.MethodDescriptorProto{
			Name: proto.String(rpc.Name),
		}
		if req := h.schema.Resolve(rpc.Request); req != nil {
			method.InputType = proto.String("." + req.QualifiedName())
		}
		if resp := h.schema.Resolve(rpc.Response); resp != nil {
			method.OutputType = proto.String("." + resp.QualifiedName())
		}
		if rpc.RequestStreaming {
			method.ClientStreaming = proto.Bool(true)
		}
		if rpc.ResponseStreaming {
			method.ServerStreaming = proto.Bool(true)
		}
		sd.Method = append(sd.Method, method)
	}
	return sd
}

// fieldLabel maps the schema label to the descriptor label
func fieldLabel(label schema.Label) descriptorpb.FieldDescriptorProto_Label {
	switch label {
	case schema.LabelRequired:
		return descriptorpb.FieldDescriptorProto_LABEL_REQUIRED
	case schema.LabelRepeated:
		return descriptorpb.FieldDescriptorProto_LABEL_REPEATED
	default:
		return descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL
	}
}

// scalarType maps a schema scalar to the descriptor field type
func scalarType(scalar schema.ScalarType) descriptorpb.FieldDescriptorProto_Type {
	switch scalar {
	case schema.ScalarDouble:
		return descriptorpb.FieldDescriptorProto_TYPE_DOUBLE
	case schema.ScalarFloat:
		return descriptorpb.FieldDescriptorProto_TYPE_FLOAT
	case schema.ScalarInt64:
		return descriptorpb.FieldDescriptorProto_TYPE_INT64
	case schema.ScalarUint64:
		return descriptorpb.FieldDescriptorProto_TYPE_UINT64
	case schema.ScalarInt32:
		return descriptorpb.FieldDescriptorProto_TYPE_INT32
	case schema.ScalarFixed64:
		return descriptorpb.FieldDescriptorProto_TYPE_FIXED64
	case schema.ScalarFixed32:
		return descriptorpb.FieldDescriptorProto_TYPE_FIXED32
	case schema.ScalarBool:
		return descriptorpb.FieldDescriptorProto_TYPE_BOOL
	case schema.ScalarString:
		return descriptorpb.FieldDescriptorProto_TYPE_STRING
	case schema.ScalarBytes:
		return descriptorpb.FieldDescriptorProto_TYPE_BYTES
	case schema.ScalarUint32:
		return descriptorpb.FieldDescriptorProto_TYPE_UINT32
	case schema.ScalarSfixed32:
		return descriptorpb.FieldDescriptorProto_TYPE_SFIXED32
	case schema.ScalarSfixed64:
		return descriptorpb.FieldDescriptorProto_TYPE_SFIXED64
	case schema.ScalarSint32:
		return descriptorpb.FieldDescriptorProto_TYPE_SINT32
	default:
		return descriptorpb.FieldDescriptorProto_TYPE_SINT64
	}
}
