package protobuf

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/platinummonkey/sprocket/pkg/location"
	"github.com/platinummonkey/sprocket/pkg/schema"
)

// Parser consumes one .proto source text and produces a syntactically
// complete schema.ProtoFile. It reads tokens with a single token of
// lookahead; comments preceding a declaration become its documentation.
type Parser struct {
	scanner *Scanner
	loc     location.Location
	current Token
	next    Token
	pending []string // leading comments awaiting the next declaration
}

// Parse parses one .proto source text located at loc
func Parse(loc location.Location, text string) (*schema.ProtoFile, error) {
	return ParseReader(loc, strings.NewReader(text))
}

// ParseReader parses one .proto source stream located at loc
func ParseReader(loc location.Location, r io.Reader) (*schema.ProtoFile, error) {
	p := &Parser{
		scanner: NewScanner(r),
		loc:     loc,
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	return p.parseFile()
}

// advance moves to the next token
func (p *Parser) advance() error {
	p.current = p.next
	tok, err := p.scanner.Scan()
	if err != nil {
		return p.errorAt(tok, "%s", err)
	}
	p.next = tok
	return nil
}

// errorAt builds a ParseError pointing at a token
func (p *Parser) errorAt(tok Token, format string, args ...interface{}) error {
	return &ParseError{
		Location: p.loc.At(tok.Line, tok.Column),
		Message:  fmt.Sprintf(format, args...),
	}
}

// pos returns the location of a token within the parsed file
func (p *Parser) pos(tok Token) location.Location {
	return p.loc.At(tok.Line, tok.Column)
}

// collectComments buffers consecutive comment tokens as pending documentation
func (p *Parser) collectComments() error {
	for p.current.Type == TokenComment {
		p.pending = append(p.pending, p.current.Text)
		if err := p.advance(); err != nil {
			return err
		}
	}
	return nil
}

// takeDoc drains the pending comments into one documentation string
func (p *Parser) takeDoc() string {
	if len(p.pending) == 0 {
		return ""
	}
	doc := strings.Join(p.pending, "\n")
	p.pending = p.pending[:0]
	return doc
}

// expectPunctuation consumes the given punctuation or fails
func (p *Parser) expectPunctuation(text string) error {
	if p.current.Type != TokenPunctuation || p.current.Text != text {
		return p.errorAt(p.current, "expected %q but got %q", text, p.current.Text)
	}
	return p.advance()
}

// expectIdentifier consumes and returns an identifier token
func (p *Parser) expectIdentifier() (string, error) {
	if p.current.Type != TokenIdentifier {
		return "", p.errorAt(p.current, "expected identifier but got %q", p.current.Text)
	}
	name := p.current.Text
	return name, p.advance()
}

// isPunct reports whether the current token is the given punctuation
func (p *Parser) isPunct(text string) bool {
	return p.current.Type == TokenPunctuation && p.current.Text == text
}

// isKeyword reports whether the current token is the given identifier
func (p *Parser) isKeyword(text string) bool {
	return p.current.Type == TokenIdentifier && p.current.Text == text
}

// parseFile parses top-level statements until EOF
func (p *Parser) parseFile() (*schema.ProtoFile, error) {
	file := &schema.ProtoFile{
		Pos:    p.loc,
		Syntax: schema.SyntaxProto2,
	}
	syntaxDeclared := false

	for {
		if err := p.collectComments(); err != nil {
			return nil, err
		}
		if p.current.Type == TokenEOF {
			break
		}
		if p.isPunct(";") {
			if err := p.advance(); err != nil {
				return nil, err
			}
			continue
		}
		if p.current.Type != TokenIdentifier {
			return nil, p.errorAt(p.current, "unexpected token %q", p.current.Text)
		}

		switch p.current.Text {
		case "syntax":
			if syntaxDeclared {
				return nil, p.errorAt(p.current, "multiple syntax statements")
			}
			syntaxDeclared = true
			file.Documentation = joinDoc(file.Documentation, p.takeDoc())
			syntax, err := p.parseSyntax()
			if err != nil {
				return nil, err
			}
			file.Syntax = syntax
		case "package":
			if file.PackageName != "" {
				return nil, p.errorAt(p.current, "multiple package statements")
			}
			file.Documentation = joinDoc(file.Documentation, p.takeDoc())
			name, err := p.parsePackage()
			if err != nil {
				return nil, err
			}
			file.PackageName = name
		case "import":
			p.takeDoc()
			imp, err := p.parseImport()
			if err != nil {
				return nil, err
			}
			file.Imports = append(file.Imports, imp)
		case "option":
			p.takeDoc()
			opt, err := p.parseOptionStatement()
			if err != nil {
				return nil, err
			}
			file.Options = append(file.Options, opt)
		case "message":
			msg, err := p.parseMessage()
			if err != nil {
				return nil, err
			}
			file.Types = append(file.Types, msg)
		case "enum":
			enum, err := p.parseEnum()
			if err != nil {
				return nil, err
			}
			file.Types = append(file.Types, enum)
		case "service":
			svc, err := p.parseService()
			if err != nil {
				return nil, err
			}
			file.Services = append(file.Services, svc)
		case "extend":
			ext, err := p.parseExtend()
			if err != nil {
				return nil, err
			}
			file.Extends = append(file.Extends, ext)
		default:
			return nil, p.errorAt(p.current, "unexpected token %q", p.current.Text)
		}
	}

	return file, nil
}

// parseSyntax parses a syntax statement and validates the version
func (p *Parser) parseSyntax() (schema.Syntax, error) {
	if err := p.advance(); err != nil { // consume "syntax"
		return "", err
	}
	if err := p.expectPunctuation("="); err != nil {
		return "", err
	}
	if p.current.Type != TokenString {
		return "", p.errorAt(p.current, "expected string but got %q", p.current.Text)
	}
	value := p.current.Text
	if value != string(schema.SyntaxProto2) && value != string(schema.SyntaxProto3) {
		return "", p.errorAt(p.current, "unsupported syntax %q, expected \"proto2\" or \"proto3\"", value)
	}
	if err := p.advance(); err != nil {
		return "", err
	}
	if err := p.expectPunctuation(";"); err != nil {
		return "", err
	}
	return schema.Syntax(value), nil
}

// parsePackage parses a package statement
func (p *Parser) parsePackage() (string, error) {
	if err := p.advance(); err != nil { // consume "package"
		return "", err
	}
	name, err := p.expectIdentifier()
	if err != nil {
		return "", err
	}
	if err := p.expectPunctuation(";"); err != nil {
		return "", err
	}
	return name, nil
}

// parseImport parses an import statement
func (p *Parser) parseImport() (*schema.Import, error) {
	pos := p.pos(p.current)
	if err := p.advance(); err != nil { // consume "import"
		return nil, err
	}

	imp := &schema.Import{Pos: pos}
	if p.isKeyword("public") {
		imp.Public = true
		if err := p.advance(); err != nil {
			return nil, err
		}
	} else if p.isKeyword("weak") {
		// weak imports are accepted and treated as regular imports
		if err := p.advance(); err != nil {
			return nil, err
		}
	}

	if p.current.Type != TokenString {
		return nil, p.errorAt(p.current, "expected import path string but got %q", p.current.Text)
	}
	imp.Path = p.current.Text
	if err := p.advance(); err != nil {
		return nil, err
	}
	if err := p.expectPunctuation(";"); err != nil {
		return nil, err
	}
	return imp, nil
}

// parseOptionName parses an option name, including parenthesized custom
// option names like (my.custom).field
func (p *Parser) parseOptionName() (string, error) {
	var sb strings.Builder
	if p.isPunct("(") {
		if err := p.advance(); err != nil {
			return "", err
		}
		name, err := p.parseTypeName()
		if err != nil {
			return "", err
		}
		if err := p.expectPunctuation(")"); err != nil {
			return "", err
		}
		sb.WriteString("(")
		sb.WriteString(name)
		sb.WriteString(")")
	} else {
		name, err := p.expectIdentifier()
		if err != nil {
			return "", err
		}
		sb.WriteString(name)
	}
	for p.isPunct(".") {
		if err := p.advance(); err != nil {
			return "", err
		}
		part, err := p.expectIdentifier()
		if err != nil {
			return "", err
		}
		sb.WriteString(".")
		sb.WriteString(part)
	}
	return sb.String(), nil
}

// parseConstant parses an option or default value
func (p *Parser) parseConstant() (string, schema.OptionValueKind, error) {
	switch {
	case p.current.Type == TokenString:
		// Adjacent string literals concatenate
		var sb strings.Builder
		for p.current.Type == TokenString {
			sb.WriteString(p.current.Text)
			if err := p.advance(); err != nil {
				return "", 0, err
			}
		}
		return sb.String(), schema.OptionString, nil
	case p.current.Type == TokenIdentifier:
		value := p.current.Text
		return value, schema.OptionIdentifier, p.advance()
	case p.current.Type == TokenNumber:
		value := p.current.Text
		return value, schema.OptionNumber, p.advance()
	case p.isPunct("-") || p.isPunct("+"):
		sign := p.current.Text
		if err := p.advance(); err != nil {
			return "", 0, err
		}
		if p.current.Type != TokenNumber && !(p.current.Type == TokenIdentifier && (p.current.Text == "inf" || p.current.Text == "nan")) {
			return "", 0, p.errorAt(p.current, "expected number after %q", sign)
		}
		value := sign + p.current.Text
		return value, schema.OptionNumber, p.advance()
	case p.isPunct("{"):
		value, err := p.parseAggregate()
		return value, schema.OptionAggregate, err
	default:
		return "", 0, p.errorAt(p.current, "expected option value but got %q", p.current.Text)
	}
}

// parseAggregate captures a braced aggregate value as raw text
func (p *Parser) parseAggregate() (string, error) {
	if err := p.expectPunctuation("{"); err != nil {
		return "", err
	}
	var parts []string
	depth := 1
	for depth > 0 {
		if p.current.Type == TokenEOF {
			return "", p.errorAt(p.current, "unterminated aggregate option value")
		}
		if p.isPunct("{") {
			depth++
		} else if p.isPunct("}") {
			depth--
			if depth == 0 {
				if err := p.advance(); err != nil {
					return "", err
				}
				break
			}
		}
		if p.current.Type == TokenString {
			parts = append(parts, strconv.Quote(p.current.Text))
		} else {
			parts = append(parts, p.current.Text)
		}
		if err := p.advance(); err != nil {
			return "", err
		}
	}
	return strings.Join(parts, " "), nil
}

// parseOptionStatement parses "option name = value;"
func (p *Parser) parseOptionStatement() (*schema.Option, error) {
	pos := p.pos(p.current)
	if err := p.advance(); err != nil { // consume "option"
		return nil, err
	}
	name, err := p.parseOptionName()
	if err != nil {
		return nil, err
	}
	if err := p.expectPunctuation("="); err != nil {
		return nil, err
	}
	value, kind, err := p.parseConstant()
	if err != nil {
		return nil, err
	}
	if err := p.expectPunctuation(";"); err != nil {
		return nil, err
	}
	return &schema.Option{Name: name, Value: value, Kind: kind, Pos: pos}, nil
}

// parseTypeName parses a possibly dotted, possibly absolute type name
func (p *Parser) parseTypeName() (string, error) {
	var prefix string
	if p.isPunct(".") {
		prefix = "."
		if err := p.advance(); err != nil {
			return "", err
		}
	}
	name, err := p.expectIdentifier()
	if err != nil {
		return "", err
	}
	return prefix + name, nil
}

// parseInt parses an integer literal, with an optional leading minus
func (p *Parser) parseInt() (int32, error) {
	negative := false
	if p.isPunct("-") {
		negative = true
		if err := p.advance(); err != nil {
			return 0, err
		}
	}
	if p.current.Type != TokenNumber {
		return 0, p.errorAt(p.current, "expected integer but got %q", p.current.Text)
	}
	value, err := strconv.ParseInt(p.current.Text, 0, 64)
	if err != nil {
		return 0, p.errorAt(p.current, "invalid integer %q", p.current.Text)
	}
	if negative {
		value = -value
	}
	if value < -2147483648 || value > 2147483647 {
		return 0, p.errorAt(p.current, "integer %d out of range", value)
	}
	return int32(value), p.advance()
}

// parseMessage parses a message declaration and its body
func (p *Parser) parseMessage() (*schema.MessageType, error) {
	pos := p.pos(p.current)
	doc := p.takeDoc()
	if err := p.advance(); err != nil { // consume "message"
		return nil, err
	}
	name, err := p.expectIdentifier()
	if err != nil {
		return nil, err
	}
	if err := p.expectPunctuation("{"); err != nil {
		return nil, err
	}

	msg := &schema.MessageType{
		Name:          name,
		Documentation: doc,
		Pos:           pos,
	}
	if err := p.parseMessageBody(msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// parseMessageBody parses declarations until the closing brace
func (p *Parser) parseMessageBody(msg *schema.MessageType) error {
	for {
		if err := p.collectComments(); err != nil {
			return err
		}
		if p.current.Type == TokenEOF {
			return p.errorAt(p.current, "unexpected end of file in message %s", msg.Name)
		}
		if p.isPunct("}") {
			p.pending = p.pending[:0]
			return p.advance()
		}
		if p.isPunct(";") {
			if err := p.advance(); err != nil {
				return err
			}
			continue
		}
		if p.isPunct(".") {
			// a field whose type is an absolute name such as ".pkg.Type"
			field, err := p.parseField(false)
			if err != nil {
				return err
			}
			msg.Fields = append(msg.Fields, field)
			continue
		}
		if p.current.Type != TokenIdentifier {
			return p.errorAt(p.current, "unexpected token %q in message %s", p.current.Text, msg.Name)
		}

		switch p.current.Text {
		case "option":
			p.takeDoc()
			opt, err := p.parseOptionStatement()
			if err != nil {
				return err
			}
			msg.Options = append(msg.Options, opt)
		case "message":
			nested, err := p.parseMessage()
			if err != nil {
				return err
			}
			msg.Nested = append(msg.Nested, nested)
		case "enum":
			nested, err := p.parseEnum()
			if err != nil {
				return err
			}
			msg.Nested = append(msg.Nested, nested)
		case "oneof":
			oneOf, err := p.parseOneOf()
			if err != nil {
				return err
			}
			msg.OneOfs = append(msg.OneOfs, oneOf)
		case "reserved":
			p.takeDoc()
			if err := p.parseReserved(msg); err != nil {
				return err
			}
		case "extensions":
			p.takeDoc()
			ranges, err := p.parseExtensionRanges()
			if err != nil {
				return err
			}
			msg.ExtensionRanges = append(msg.ExtensionRanges, ranges...)
		case "extend":
			ext, err := p.parseExtend()
			if err != nil {
				return err
			}
			msg.Extends = append(msg.Extends, ext)
		case "group":
			return p.errorAt(p.current, "group fields are not supported")
		default:
			field, err := p.parseField(false)
			if err != nil {
				return err
			}
			msg.Fields = append(msg.Fields, field)
		}
	}
}

// parseField parses one field declaration. Inside a oneof no label keyword
// is permitted and members default to the oneof label.
func (p *Parser) parseField(inOneOf bool) (*schema.Field, error) {
	pos := p.pos(p.current)
	doc := p.takeDoc()

	field := &schema.Field{
		Label:         schema.LabelOptional,
		Documentation: doc,
		Pos:           pos,
	}
	if inOneOf {
		field.Label = schema.LabelOneOf
	}

	switch p.current.Text {
	case "optional", "required", "repeated":
		if inOneOf {
			return nil, p.errorAt(p.current, "oneof members may not declare a label")
		}
		switch p.current.Text {
		case "required":
			field.Label = schema.LabelRequired
		case "repeated":
			field.Label = schema.LabelRepeated
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
	case "map":
		if p.next.Type == TokenPunctuation && p.next.Text == "<" {
			return p.parseMapField(field)
		}
	}
	if p.isKeyword("group") {
		return nil, p.errorAt(p.current, "group fields are not supported")
	}

	typeName, err := p.parseTypeName()
	if err != nil {
		return nil, err
	}
	field.Type = typeRefFor(typeName)

	return p.finishField(field)
}

// parseMapField parses "map<K, V> name = tag [options];"
func (p *Parser) parseMapField(field *schema.Field) (*schema.Field, error) {
	if err := p.advance(); err != nil { // consume "map"
		return nil, err
	}
	if err := p.expectPunctuation("<"); err != nil {
		return nil, err
	}
	keyName, err := p.parseTypeName()
	if err != nil {
		return nil, err
	}
	if err := p.expectPunctuation(","); err != nil {
		return nil, err
	}
	valueName, err := p.parseTypeName()
	if err != nil {
		return nil, err
	}
	if err := p.expectPunctuation(">"); err != nil {
		return nil, err
	}

	key := typeRefFor(keyName)
	value := typeRefFor(valueName)
	field.MapKey = &key
	field.MapValue = &value
	field.Label = schema.LabelRepeated

	return p.finishField(field)
}

// finishField parses the name, tag, and bracket options of a field
func (p *Parser) finishField(field *schema.Field) (*schema.Field, error) {
	name, err := p.expectIdentifier()
	if err != nil {
		return nil, err
	}
	field.Name = name

	if err := p.expectPunctuation("="); err != nil {
		return nil, err
	}
	tag, err := p.parseInt()
	if err != nil {
		return nil, err
	}
	field.Tag = tag

	if p.isPunct("[") {
		if err := p.parseFieldOptions(field); err != nil {
			return nil, err
		}
	}
	if err := p.expectPunctuation(";"); err != nil {
		return nil, err
	}
	return field, nil
}

// parseFieldOptions parses "[name = value, ...]" and folds the well-known
// default and packed options into the field itself
func (p *Parser) parseFieldOptions(field *schema.Field) error {
	if err := p.expectPunctuation("["); err != nil {
		return err
	}
	for {
		pos := p.pos(p.current)
		name, err := p.parseOptionName()
		if err != nil {
			return err
		}
		if err := p.expectPunctuation("="); err != nil {
			return err
		}
		value, kind, err := p.parseConstant()
		if err != nil {
			return err
		}

		switch name {
		case "default":
			field.Default = value
		case "packed":
			packed := value == "true"
			field.Packed = &packed
		default:
			field.Options = append(field.Options, &schema.Option{Name: name, Value: value, Kind: kind, Pos: pos})
		}

		if p.isPunct(",") {
			if err := p.advance(); err != nil {
				return err
			}
			continue
		}
		break
	}
	return p.expectPunctuation("]")
}

// parseOneOf parses a oneof group
func (p *Parser) parseOneOf() (*schema.OneOf, error) {
	pos := p.pos(p.current)
	doc := p.takeDoc()
	if err := p.advance(); err != nil { // consume "oneof"
		return nil, err
	}
	name, err := p.expectIdentifier()
	if err != nil {
		return nil, err
	}
	if err := p.expectPunctuation("{"); err != nil {
		return nil, err
	}

	oneOf := &schema.OneOf{
		Name:          name,
		Documentation: doc,
		Pos:           pos,
	}
	for {
		if err := p.collectComments(); err != nil {
			return nil, err
		}
		if p.current.Type == TokenEOF {
			return nil, p.errorAt(p.current, "unexpected end of file in oneof %s", name)
		}
		if p.isPunct("}") {
			p.pending = p.pending[:0]
			return oneOf, p.advance()
		}
		if p.isPunct(";") {
			if err := p.advance(); err != nil {
				return nil, err
			}
			continue
		}
		if p.isKeyword("option") {
			p.takeDoc()
			opt, err := p.parseOptionStatement()
			if err != nil {
				return nil, err
			}
			oneOf.Options = append(oneOf.Options, opt)
			continue
		}
		field, err := p.parseField(true)
		if err != nil {
			return nil, err
		}
		oneOf.Fields = append(oneOf.Fields, field)
	}
}

// parseReserved parses reserved tag ranges or reserved names
func (p *Parser) parseReserved(msg *schema.MessageType) error {
	if err := p.advance(); err != nil { // consume "reserved"
		return err
	}

	if p.current.Type == TokenString {
		for {
			msg.ReservedNames = append(msg.ReservedNames, p.current.Text)
			if err := p.advance(); err != nil {
				return err
			}
			if p.isPunct(",") {
				if err := p.advance(); err != nil {
					return err
				}
				continue
			}
			break
		}
		return p.expectPunctuation(";")
	}

	ranges, err := p.parseTagRanges()
	if err != nil {
		return err
	}
	msg.ReservedTags = append(msg.ReservedTags, ranges...)
	return p.expectPunctuation(";")
}

// parseExtensionRanges parses "extensions 100 to 199, 500;" style ranges
func (p *Parser) parseExtensionRanges() ([]schema.TagRange, error) {
	if err := p.advance(); err != nil { // consume "extensions"
		return nil, err
	}
	ranges, err := p.parseTagRanges()
	if err != nil {
		return nil, err
	}
	return ranges, p.expectPunctuation(";")
}

// maxTag is the largest valid field tag, used for "to max" ranges
const maxTag = 536870911 // 2^29 - 1

// parseTagRanges parses a comma-separated list of tags and tag ranges
func (p *Parser) parseTagRanges() ([]schema.TagRange, error) {
	var ranges []schema.TagRange
	for {
		start, err := p.parseInt()
		if err != nil {
			return nil, err
		}
		end := start
		if p.isKeyword("to") {
			if err := p.advance(); err != nil {
				return nil, err
			}
			if p.isKeyword("max") {
				end = maxTag
				if err := p.advance(); err != nil {
					return nil, err
				}
			} else {
				end, err = p.parseInt()
				if err != nil {
					return nil, err
				}
			}
		}
		ranges = append(ranges, schema.TagRange{Start: start, End: end})

		if p.isPunct(",") {
			if err := p.advance(); err != nil {
				return nil, err
			}
			continue
		}
		return ranges, nil
	}
}

// parseEnum parses an enum declaration
func (p *Parser) parseEnum() (*schema.EnumType, error) {
	pos := p.pos(p.current)
	doc := p.takeDoc()
	if err := p.advance(); err != nil { // consume "enum"
		return nil, err
	}
	name, err := p.expectIdentifier()
	if err != nil {
		return nil, err
	}
	if err := p.expectPunctuation("{"); err != nil {
		return nil, err
	}

	enum := &schema.EnumType{
		Name:          name,
		Documentation: doc,
		Pos:           pos,
	}
	for {
		if err := p.collectComments(); err != nil {
			return nil, err
		}
		if p.current.Type == TokenEOF {
			return nil, p.errorAt(p.current, "unexpected end of file in enum %s", name)
		}
		if p.isPunct("}") {
			p.pending = p.pending[:0]
			return enum, p.advance()
		}
		if p.isPunct(";") {
			if err := p.advance(); err != nil {
				return nil, err
			}
			continue
		}
		if p.isKeyword("option") {
			p.takeDoc()
			opt, err := p.parseOptionStatement()
			if err != nil {
				return nil, err
			}
			enum.Options = append(enum.Options, opt)
			continue
		}
		if p.isKeyword("reserved") {
			// Reserved statements inside enums are accepted and skipped
			p.takeDoc()
			var scratch schema.MessageType
			if err := p.parseReserved(&scratch); err != nil {
				return nil, err
			}
			continue
		}
		constant, err := p.parseEnumConstant()
		if err != nil {
			return nil, err
		}
		enum.Constants = append(enum.Constants, constant)
	}
}

// parseEnumConstant parses "NAME = tag [options];"
func (p *Parser) parseEnumConstant() (*schema.EnumConstant, error) {
	pos := p.pos(p.current)
	doc := p.takeDoc()

	name, err := p.expectIdentifier()
	if err != nil {
		return nil, err
	}
	if err := p.expectPunctuation("="); err != nil {
		return nil, err
	}
	tag, err := p.parseInt()
	if err != nil {
		return nil, err
	}

	constant := &schema.EnumConstant{
		Name:          name,
		Tag:           tag,
		Documentation: doc,
		Pos:           pos,
	}

	if p.isPunct("[") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		for {
			optPos := p.pos(p.current)
			optName, err := p.parseOptionName()
			if err != nil {
				return nil, err
			}
			if err := p.expectPunctuation("="); err != nil {
				return nil, err
			}
			value, kind, err := p.parseConstant()
			if err != nil {
				return nil, err
			}
			constant.Options = append(constant.Options, &schema.Option{Name: optName, Value: value, Kind: kind, Pos: optPos})
			if p.isPunct(",") {
				if err := p.advance(); err != nil {
					return nil, err
				}
				continue
			}
			break
		}
		if err := p.expectPunctuation("]"); err != nil {
			return nil, err
		}
	}

	return constant, p.expectPunctuation(";")
}

// parseService parses a service declaration
func (p *Parser) parseService() (*schema.ServiceType, error) {
	pos := p.pos(p.current)
	doc := p.takeDoc()
	if err := p.advance(); err != nil { // consume "service"
		return nil, err
	}
	name, err := p.expectIdentifier()
	if err != nil {
		return nil, err
	}
	if err := p.expectPunctuation("{"); err != nil {
		return nil, err
	}

	svc := &schema.ServiceType{
		Name:          name,
		Documentation: doc,
		Pos:           pos,
	}
	for {
		if err := p.collectComments(); err != nil {
			return nil, err
		}
		if p.current.Type == TokenEOF {
			return nil, p.errorAt(p.current, "unexpected end of file in service %s", name)
		}
		if p.isPunct("}") {
			p.pending = p.pending[:0]
			return svc, p.advance()
		}
		if p.isPunct(";") {
			if err := p.advance(); err != nil {
				return nil, err
			}
			continue
		}
		if p.isKeyword("option") {
			p.takeDoc()
			opt, err := p.parseOptionStatement()
			if err != nil {
				return nil, err
			}
			svc.Options = append(svc.Options, opt)
			continue
		}
		if p.isKeyword("rpc") {
			rpc, err := p.parseRpc()
			if err != nil {
				return nil, err
			}
			svc.Rpcs = append(svc.Rpcs, rpc)
			continue
		}
		return nil, p.errorAt(p.current, "unexpected token %q in service %s", p.current.Text, name)
	}
}

// parseRpc parses "rpc Name (stream? Req) returns (stream? Resp)" with an
// optional option body
func (p *Parser) parseRpc() (*schema.Rpc, error) {
	pos := p.pos(p.current)
	doc := p.takeDoc()
	if err := p.advance(); err != nil { // consume "rpc"
		return nil, err
	}
	name, err := p.expectIdentifier()
	if err != nil {
		return nil, err
	}

	rpc := &schema.Rpc{
		Name:          name,
		Documentation: doc,
		Pos:           pos,
	}

	parseSide := func() (bool, schema.TypeRef, error) {
		if err := p.expectPunctuation("("); err != nil {
			return false, schema.TypeRef{}, err
		}
		streaming := false
		if p.isKeyword("stream") && !(p.next.Type == TokenPunctuation && p.next.Text == ")") {
			streaming = true
			if err := p.advance(); err != nil {
				return false, schema.TypeRef{}, err
			}
		}
		typeName, err := p.parseTypeName()
		if err != nil {
			return false, schema.TypeRef{}, err
		}
		if err := p.expectPunctuation(")"); err != nil {
			return false, schema.TypeRef{}, err
		}
		return streaming, schema.NamedRef(typeName), nil
	}

	streaming, ref, err := parseSide()
	if err != nil {
		return nil, err
	}
	rpc.RequestStreaming = streaming
	rpc.Request = ref

	if !p.isKeyword("returns") {
		return nil, p.errorAt(p.current, "expected \"returns\" but got %q", p.current.Text)
	}
	if err := p.advance(); err != nil {
		return nil, err
	}

	streaming, ref, err = parseSide()
	if err != nil {
		return nil, err
	}
	rpc.ResponseStreaming = streaming
	rpc.Response = ref

	if p.isPunct("{") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		for {
			if err := p.collectComments(); err != nil {
				return nil, err
			}
			if p.current.Type == TokenEOF {
				return nil, p.errorAt(p.current, "unexpected end of file in rpc %s", name)
			}
			if p.isPunct("}") {
				if err := p.advance(); err != nil {
					return nil, err
				}
				break
			}
			if p.isPunct(";") {
				if err := p.advance(); err != nil {
					return nil, err
				}
				continue
			}
			if !p.isKeyword("option") {
				return nil, p.errorAt(p.current, "unexpected token %q in rpc %s", p.current.Text, name)
			}
			opt, err := p.parseOptionStatement()
			if err != nil {
				return nil, err
			}
			rpc.Options = append(rpc.Options, opt)
		}
		return rpc, nil
	}

	return rpc, p.expectPunctuation(";")
}

// parseExtend parses an extend block
func (p *Parser) parseExtend() (*schema.Extend, error) {
	pos := p.pos(p.current)
	doc := p.takeDoc()
	if err := p.advance(); err != nil { // consume "extend"
		return nil, err
	}
	extendee, err := p.parseTypeName()
	if err != nil {
		return nil, err
	}
	if err := p.expectPunctuation("{"); err != nil {
		return nil, err
	}

	ext := &schema.Extend{
		Extendee:      schema.NamedRef(extendee),
		Documentation: doc,
		Pos:           pos,
	}
	for {
		if err := p.collectComments(); err != nil {
			return nil, err
		}
		if p.current.Type == TokenEOF {
			return nil, p.errorAt(p.current, "unexpected end of file in extend %s", extendee)
		}
		if p.isPunct("}") {
			p.pending = p.pending[:0]
			return ext, p.advance()
		}
		if p.isPunct(";") {
			if err := p.advance(); err != nil {
				return nil, err
			}
			continue
		}
		field, err := p.parseField(false)
		if err != nil {
			return nil, err
		}
		field.IsExtension = true
		field.Extendee = schema.NamedRef(extendee)
		ext.Fields = append(ext.Fields, field)
	}
}

// typeRefFor builds a TypeRef, recognizing the scalar built-ins
func typeRefFor(name string) schema.TypeRef {
	if scalar, ok := schema.ScalarFromName(name); ok {
		return schema.ScalarRef(scalar)
	}
	return schema.NamedRef(name)
}

// joinDoc merges two documentation fragments
func joinDoc(a, b string) string {
	if a == "" {
		return b
	}
	if b == "" {
		return a
	}
	return a + "\n" + b
}
