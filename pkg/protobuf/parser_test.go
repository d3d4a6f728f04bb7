package protobuf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/sprocket/pkg/location"
	"github.com/platinummonkey/sprocket/pkg/schema"
)

func parseText(t *testing.T, text string) *schema.ProtoFile {
	t.Helper()
	file, err := Parse(location.New("proto", "test.proto"), text)
	require.NoError(t, err)
	return file
}

func TestParseBasicFile(t *testing.T) {
	file := parseText(t, `syntax = "proto3";
package example;

import "common/common.proto";
import public "shared.proto";

option java_package = "com.example";

message Test {
  string id = 1;
  int32 count = 2;
}`)

	assert.Equal(t, schema.SyntaxProto3, file.Syntax)
	assert.Equal(t, "example", file.PackageName)

	require.Len(t, file.Imports, 2)
	assert.Equal(t, "common/common.proto", file.Imports[0].Path)
	assert.False(t, file.Imports[0].Public)
	assert.Equal(t, "shared.proto", file.Imports[1].Path)
	assert.True(t, file.Imports[1].Public)

	require.Len(t, file.Options, 1)
	assert.Equal(t, "java_package", file.Options[0].Name)
	assert.Equal(t, "com.example", file.Options[0].Value)
	assert.Equal(t, schema.OptionString, file.Options[0].Kind)

	require.Len(t, file.Types, 1)
	msg, ok := file.Types[0].(*schema.MessageType)
	require.True(t, ok)
	assert.Equal(t, "Test", msg.Name)
	require.Len(t, msg.Fields, 2)
	assert.Equal(t, "id", msg.Fields[0].Name)
	assert.Equal(t, int32(1), msg.Fields[0].Tag)
	assert.Equal(t, schema.ScalarString, msg.Fields[0].Type.Scalar)
	assert.Equal(t, "count", msg.Fields[1].Name)
	assert.Equal(t, schema.ScalarInt32, msg.Fields[1].Type.Scalar)
}

func TestParseDefaultSyntaxIsProto2(t *testing.T) {
	file := parseText(t, `message M {}`)
	assert.Equal(t, schema.SyntaxProto2, file.Syntax)
}

func TestParseFieldLabels(t *testing.T) {
	file := parseText(t, `syntax = "proto2";
message M {
  optional string a = 1;
  required int32 b = 2;
  repeated q.N c = 3 [packed = true];
  optional int32 d = 4 [default = 42];
}`)

	msg := file.Types[0].(*schema.MessageType)
	require.Len(t, msg.Fields, 4)
	assert.Equal(t, schema.LabelOptional, msg.Fields[0].Label)
	assert.Equal(t, schema.LabelRequired, msg.Fields[1].Label)
	assert.Equal(t, schema.LabelRepeated, msg.Fields[2].Label)
	assert.Equal(t, "q.N", msg.Fields[2].Type.Name)
	require.NotNil(t, msg.Fields[2].Packed)
	assert.True(t, *msg.Fields[2].Packed)
	assert.Equal(t, "42", msg.Fields[3].Default)
}

func TestParseAbsoluteTypeName(t *testing.T) {
	file := parseText(t, `syntax = "proto3";
message M {
  .q.N n = 1;
}`)
	msg := file.Types[0].(*schema.MessageType)
	assert.Equal(t, ".q.N", msg.Fields[0].Type.Name)
}

func TestParseMapField(t *testing.T) {
	file := parseText(t, `syntax = "proto3";
message M {
  map<string, int64> counts = 1;
}`)

	msg := file.Types[0].(*schema.MessageType)
	field := msg.Fields[0]
	assert.True(t, field.IsMap())
	assert.Equal(t, schema.ScalarString, field.MapKey.Scalar)
	assert.Equal(t, schema.ScalarInt64, field.MapValue.Scalar)
	assert.Equal(t, schema.LabelRepeated, field.Label)
}

func TestParseOneOf(t *testing.T) {
	file := parseText(t, `syntax = "proto3";
message M {
  oneof choice {
    string name = 1;
    int32 id = 2;
  }
  bool other = 3;
}`)

	msg := file.Types[0].(*schema.MessageType)
	require.Len(t, msg.OneOfs, 1)
	oneOf := msg.OneOfs[0]
	assert.Equal(t, "choice", oneOf.Name)
	require.Len(t, oneOf.Fields, 2)
	assert.Equal(t, schema.LabelOneOf, oneOf.Fields[0].Label)
	assert.Equal(t, schema.LabelOneOf, oneOf.Fields[1].Label)
	require.Len(t, msg.Fields, 1)
	assert.Equal(t, "other", msg.Fields[0].Name)
}

func TestParseNestedTypes(t *testing.T) {
	file := parseText(t, `syntax = "proto3";
message Outer {
  message Inner {
    string s = 1;
  }
  enum Kind {
    KIND_UNSPECIFIED = 0;
  }
  Inner inner = 1;
  Kind kind = 2;
}`)

	msg := file.Types[0].(*schema.MessageType)
	require.Len(t, msg.Nested, 2)
	inner, ok := msg.Nested[0].(*schema.MessageType)
	require.True(t, ok)
	assert.Equal(t, "Inner", inner.Name)
	kind, ok := msg.Nested[1].(*schema.EnumType)
	require.True(t, ok)
	assert.Equal(t, "Kind", kind.Name)
}

func TestParseReservedAndExtensions(t *testing.T) {
	file := parseText(t, `syntax = "proto2";
message M {
  reserved 2, 15, 9 to 11;
  reserved "foo", "bar";
  extensions 100 to 199;
  extensions 500 to max;
  optional string a = 1;
}`)

	msg := file.Types[0].(*schema.MessageType)
	assert.Equal(t, []schema.TagRange{{Start: 2, End: 2}, {Start: 15, End: 15}, {Start: 9, End: 11}}, msg.ReservedTags)
	assert.Equal(t, []string{"foo", "bar"}, msg.ReservedNames)
	require.Len(t, msg.ExtensionRanges, 2)
	assert.Equal(t, schema.TagRange{Start: 100, End: 199}, msg.ExtensionRanges[0])
	assert.Equal(t, int32(536870911), msg.ExtensionRanges[1].End)
}

func TestParseExtend(t *testing.T) {
	file := parseText(t, `syntax = "proto2";
extend google.protobuf.FileOptions {
  optional string my_option = 50001;
}`)

	require.Len(t, file.Extends, 1)
	ext := file.Extends[0]
	assert.Equal(t, "google.protobuf.FileOptions", ext.Extendee.Name)
	require.Len(t, ext.Fields, 1)
	assert.True(t, ext.Fields[0].IsExtension)
	assert.Equal(t, "google.protobuf.FileOptions", ext.Fields[0].Extendee.Name)
	assert.Equal(t, int32(50001), ext.Fields[0].Tag)
}

func TestParseEnum(t *testing.T) {
	file := parseText(t, `syntax = "proto2";
enum Status {
  option allow_alias = true;
  UNKNOWN = 0;
  ACTIVE = 1;
  RUNNING = 1;
  NEGATIVE = -2 [deprecated = true];
}`)

	enum := file.Types[0].(*schema.EnumType)
	require.Len(t, enum.Constants, 4)
	assert.Equal(t, int32(0), enum.Constants[0].Tag)
	assert.Equal(t, int32(-2), enum.Constants[3].Tag)
	require.Len(t, enum.Constants[3].Options, 1)
	assert.Equal(t, "deprecated", enum.Constants[3].Options[0].Name)
	require.Len(t, enum.Options, 1)
	assert.Equal(t, "allow_alias", enum.Options[0].Name)
	assert.Equal(t, "true", enum.Options[0].Value)
}

func TestParseService(t *testing.T) {
	file := parseText(t, `syntax = "proto3";
service Search {
  rpc Lookup (Request) returns (Response);
  rpc Feed (stream Request) returns (stream Response) {
    option deprecated = true;
  }
}`)

	require.Len(t, file.Services, 1)
	svc := file.Services[0]
	assert.Equal(t, "Search", svc.Name)
	require.Len(t, svc.Rpcs, 2)

	lookup := svc.Rpcs[0]
	assert.Equal(t, "Request", lookup.Request.Name)
	assert.Equal(t, "Response", lookup.Response.Name)
	assert.False(t, lookup.RequestStreaming)
	assert.False(t, lookup.ResponseStreaming)

	feed := svc.Rpcs[1]
	assert.True(t, feed.RequestStreaming)
	assert.True(t, feed.ResponseStreaming)
	require.Len(t, feed.Options, 1)
	assert.Equal(t, "deprecated", feed.Options[0].Name)
}

func TestParseDocumentation(t *testing.T) {
	file := parseText(t, `syntax = "proto3";
package p;

// A test entity.
// Spans two lines.
message M {
  // Unique identifier.
  string id = 1;
}

/* Block style. */
enum E {
  E_UNSPECIFIED = 0;
}`)

	msg := file.Types[0].(*schema.MessageType)
	assert.Equal(t, "A test entity.\nSpans two lines.", msg.Documentation)
	assert.Equal(t, "Unique identifier.", msg.Fields[0].Documentation)
	enum := file.Types[1].(*schema.EnumType)
	assert.Equal(t, "Block style.", enum.Documentation)
}

func TestParseCustomOption(t *testing.T) {
	file := parseText(t, `syntax = "proto3";
option (my.custom).feature = true;
message M {
  string s = 1 [(validate.rules).string = { min_len: 1 }];
}`)

	require.Len(t, file.Options, 1)
	assert.Equal(t, "(my.custom).feature", file.Options[0].Name)

	msg := file.Types[0].(*schema.MessageType)
	require.Len(t, msg.Fields[0].Options, 1)
	opt := msg.Fields[0].Options[0]
	assert.Equal(t, "(validate.rules).string", opt.Name)
	assert.Equal(t, schema.OptionAggregate, opt.Kind)
	assert.Contains(t, opt.Value, "min_len")
}

func TestParseErrors(t *testing.T) {
	testCases := []struct {
		name    string
		content string
		message string
	}{
		{
			name:    "bad syntax version",
			content: `syntax = "proto4";`,
			message: "unsupported syntax",
		},
		{
			name:    "missing semicolon",
			content: "package p\nmessage M {}",
			message: "expected \";\"",
		},
		{
			name:    "unexpected token",
			content: `syntax = "proto3"; banana M {}`,
			message: "unexpected token",
		},
		{
			name:    "group field",
			content: "syntax = \"proto2\";\nmessage M { optional group G = 1 { } }",
			message: "group fields are not supported",
		},
		{
			name:    "truncated message",
			content: `syntax = "proto3"; message M {`,
			message: "unexpected end of file",
		},
		{
			name:    "oneof member with label",
			content: "syntax = \"proto3\";\nmessage M { oneof o { repeated string s = 1; } }",
			message: "may not declare a label",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(location.New("proto", "bad.proto"), tc.content)
			require.Error(t, err)
			var parseErr *ParseError
			require.ErrorAs(t, err, &parseErr)
			assert.Contains(t, parseErr.Error(), tc.message)
			assert.Equal(t, "bad.proto", parseErr.Location.Path)
		})
	}
}

func TestParseErrorLocation(t *testing.T) {
	_, err := Parse(location.New("proto", "bad.proto"), "syntax = \"proto3\";\nmessage M {\n  !\n}")
	require.Error(t, err)
	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Equal(t, 3, parseErr.Location.Line)
}
