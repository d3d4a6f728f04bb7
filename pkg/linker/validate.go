package linker

import (
	"strconv"
	"strings"

	"github.com/platinummonkey/sprocket/pkg/schema"
)

// validate runs the structural checks after references are bound
func (l *linker) validate() {
	for _, unit := range l.messages {
		l.validateMessage(unit)
	}
	for _, unit := range l.enums {
		l.validateEnum(unit)
	}
	l.validateOptions()
}

// validateMessage checks tag uniqueness, reserved ranges, and oneof rules
func (l *linker) validateMessage(unit messageUnit) {
	msg := unit.msg
	tags := make(map[int32]*schema.Field)
	names := make(map[string]*schema.Field)

	checkField := func(field *schema.Field) {
		if field.Tag <= 0 {
			l.errorf(field.Pos, "field %s tag %d must be positive", field.Name, field.Tag)
			return
		}
		if field.Tag >= reservedRangeStart && field.Tag <= reservedRangeEnd {
			l.errorf(field.Pos, "field %s tag %d is inside the reserved range %d-%d",
				field.Name, field.Tag, reservedRangeStart, reservedRangeEnd)
		}
		if msg.ReservesTag(field.Tag) {
			l.errorf(field.Pos, "field %s uses reserved tag %d", field.Name, field.Tag)
		}
		if msg.ReservesName(field.Name) {
			l.errorf(field.Pos, "field name %q is reserved", field.Name)
		}
		if prev, ok := tags[field.Tag]; ok {
			l.errorf(field.Pos, "tag %d is already used by field %s", field.Tag, prev.Name)
		} else {
			tags[field.Tag] = field
		}
		if prev, ok := names[field.Name]; ok && prev != field {
			l.errorf(field.Pos, "field name %q is already used", field.Name)
		} else {
			names[field.Name] = field
		}
	}

	for _, field := range msg.Fields {
		checkField(field)
	}
	for _, oneOf := range msg.OneOfs {
		if len(oneOf.Fields) == 0 {
			l.errorf(oneOf.Pos, "oneof %s has no members", oneOf.Name)
		}
		for _, field := range oneOf.Fields {
			if field.Label != schema.LabelOneOf {
				l.errorf(field.Pos, "oneof member %s must be singular", field.Name)
				continue
			}
			checkField(field)
		}
	}

	// Extension fields share the target's tag space
	if idx, ok := l.schema.IndexOf(msg.Qualified); ok {
		extTags := make(map[int32]*schema.Field)
		for _, field := range l.extensions[idx] {
			if prev, ok := tags[field.Tag]; ok {
				l.errorf(field.Pos, "extension field %s tag %d collides with field %s of %s",
					field.Name, field.Tag, prev.Name, msg.Qualified)
				continue
			}
			if prev, ok := extTags[field.Tag]; ok {
				l.errorf(field.Pos, "extension field %s tag %d collides with extension %s",
					field.Name, field.Tag, prev.Name)
				continue
			}
			extTags[field.Tag] = field
		}
	}
}

// validateEnum checks proto3 zero constants and tag aliasing
func (l *linker) validateEnum(unit enumUnit) {
	enum := unit.enum
	if len(enum.Constants) == 0 {
		l.errorf(enum.Pos, "enum %s has no constants", enum.Qualified)
		return
	}

	if unit.file.Syntax == schema.SyntaxProto3 && enum.Constants[0].Tag != 0 {
		l.errorf(enum.Pos, "proto3 enum %s must declare a zero constant first", enum.Qualified)
	}

	allowAlias := false
	if opt := schema.FindOption(enum.Options, "allow_alias"); opt != nil && opt.Value == "true" {
		allowAlias = true
	}

	tags := make(map[int32]*schema.EnumConstant)
	names := make(map[string]bool)
	for _, constant := range enum.Constants {
		if names[constant.Name] {
			l.errorf(constant.Pos, "enum constant %s is declared twice", constant.Name)
		}
		names[constant.Name] = true
		if prev, ok := tags[constant.Tag]; ok && !allowAlias {
			l.errorf(constant.Pos, "enum constant %s reuses tag %d of %s without allow_alias",
				constant.Name, constant.Tag, prev.Name)
			continue
		}
		tags[constant.Tag] = constant
	}
}

// optionsPackage is the package the descriptor option messages live in
const optionsPackage = "google.protobuf"

// validateOptions type-checks option values against the descriptor option
// messages when those are part of the schema. Custom (parenthesized) options
// and options on unknown fields are retained uninterpreted.
func (l *linker) validateOptions() {
	for _, file := range l.schema.Files() {
		l.checkOptionList(file.Options, "FileOptions")
	}
	for _, unit := range l.messages {
		l.checkOptionList(unit.msg.Options, "MessageOptions")
		for _, field := range unit.msg.AllFields() {
			l.checkOptionList(field.Options, "FieldOptions")
		}
	}
	for _, unit := range l.enums {
		l.checkOptionList(unit.enum.Options, "EnumOptions")
		for _, constant := range unit.enum.Constants {
			l.checkOptionList(constant.Options, "EnumValueOptions")
		}
	}
	for _, unit := range l.services {
		l.checkOptionList(unit.svc.Options, "ServiceOptions")
		for _, rpc := range unit.svc.Rpcs {
			l.checkOptionList(rpc.Options, "MethodOptions")
		}
	}
}

// checkOptionList type-checks each option against a descriptor options message
func (l *linker) checkOptionList(options []*schema.Option, optionsType string) {
	if len(options) == 0 {
		return
	}
	decl, ok := l.schema.Lookup(schema.Join(optionsPackage, optionsType))
	if !ok {
		return
	}
	optionsMsg, ok := decl.(*schema.MessageType)
	if !ok {
		return
	}

	for _, opt := range options {
		if strings.HasPrefix(opt.Name, "(") {
			// custom option, retained uninterpreted
			continue
		}
		name := opt.Name
		if i := strings.IndexByte(name, '.'); i >= 0 {
			name = name[:i]
		}
		var field *schema.Field
		for _, f := range optionsMsg.AllFields() {
			if f.Name == name {
				field = f
				break
			}
		}
		if field == nil {
			// unknown option, retained uninterpreted
			continue
		}
		l.checkOptionValue(opt, field)
	}
}

// checkOptionValue verifies an option literal against the declared field type
func (l *linker) checkOptionValue(opt *schema.Option, field *schema.Field) {
	if field.Type.IsScalar() {
		switch field.Type.Scalar {
		case schema.ScalarBool:
			if opt.Kind != schema.OptionIdentifier || (opt.Value != "true" && opt.Value != "false") {
				l.errorf(opt.Pos, "option %s expects true or false, got %q", opt.Name, opt.Value)
			}
		case schema.ScalarString, schema.ScalarBytes:
			if opt.Kind != schema.OptionString {
				l.errorf(opt.Pos, "option %s expects a string, got %q", opt.Name, opt.Value)
			}
		case schema.ScalarDouble, schema.ScalarFloat:
			if opt.Kind != schema.OptionNumber {
				l.errorf(opt.Pos, "option %s expects a number, got %q", opt.Name, opt.Value)
			}
		default:
			if opt.Kind != schema.OptionNumber {
				l.errorf(opt.Pos, "option %s expects an integer, got %q", opt.Name, opt.Value)
				return
			}
			if _, err := strconv.ParseInt(opt.Value, 0, 64); err != nil {
				l.errorf(opt.Pos, "option %s expects an integer, got %q", opt.Name, opt.Value)
			}
		}
		return
	}

	switch target := l.schema.Resolve(field.Type).(type) {
	case *schema.EnumType:
		if opt.Kind != schema.OptionIdentifier || target.Constant(opt.Value) == nil {
			l.errorf(opt.Pos, "option %s expects a constant of %s, got %q", opt.Name, target.Qualified, opt.Value)
		}
	case *schema.MessageType:
		if opt.Kind != schema.OptionAggregate {
			l.errorf(opt.Pos, "option %s expects a %s aggregate, got %q", opt.Name, target.Qualified, opt.Value)
		}
	}
}
