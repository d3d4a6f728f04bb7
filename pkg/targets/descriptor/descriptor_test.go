package descriptor

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/descriptorpb"

	"github.com/platinummonkey/sprocket/pkg/linker"
	"github.com/platinummonkey/sprocket/pkg/location"
	"github.com/platinummonkey/sprocket/pkg/observability"
	"github.com/platinummonkey/sprocket/pkg/protobuf"
	"github.com/platinummonkey/sprocket/pkg/schema"
	"github.com/platinummonkey/sprocket/pkg/source"
)

func compile(t *testing.T, text string) *schema.Schema {
	t.Helper()
	file, err := protobuf.Parse(location.New("proto", "a.proto"), text)
	require.NoError(t, err)
	s, err := linker.Link([]*schema.ProtoFile{file})
	require.NoError(t, err)
	return s
}

func emit(t *testing.T, s *schema.Schema) *descriptorpb.FileDescriptorSet {
	t.Helper()
	target := New("out.pb", []string{"*"})
	handler, err := target.NewHandler(s, source.NewFilesystem(afero.NewMemMapFs()), observability.NewLogger(observability.ErrorLevel, nil))
	require.NoError(t, err)

	for idx, typ := range s.Types() {
		if s.FileOf(idx).Pos.Path != "a.proto" {
			continue
		}
		require.NoError(t, handler.Handle(typ))
	}

	data, err := target.Bytes()
	require.NoError(t, err)

	set := &descriptorpb.FileDescriptorSet{}
	require.NoError(t, proto.Unmarshal(data, set))
	return set
}

func TestEmitMessage(t *testing.T) {
	set := emit(t, compile(t, `syntax = "proto3";
package p;
option java_package = "com.example.p";
message M {
  string name = 1;
  repeated int64 values = 2;
  M next = 3;
}`))

	require.Len(t, set.File, 1)
	fd := set.File[0]
	assert.Equal(t, "a.proto", fd.GetName())
	assert.Equal(t, "p", fd.GetPackage())
	assert.Equal(t, "proto3", fd.GetSyntax())
	assert.Equal(t, "com.example.p", fd.GetOptions().GetJavaPackage())

	require.Len(t, fd.MessageType, 1)
	msg := fd.MessageType[0]
	assert.Equal(t, "M", msg.GetName())
	require.Len(t, msg.Field, 3)

	assert.Equal(t, descriptorpb.FieldDescriptorProto_TYPE_STRING, msg.Field[0].GetType())
	assert.Equal(t, descriptorpb.FieldDescriptorProto_LABEL_REPEATED, msg.Field[1].GetLabel())
	assert.Equal(t, descriptorpb.FieldDescriptorProto_TYPE_INT64, msg.Field[1].GetType())
	assert.Equal(t, descriptorpb.FieldDescriptorProto_TYPE_MESSAGE, msg.Field[2].GetType())
	assert.Equal(t, ".p.M", msg.Field[2].GetTypeName())
}

func TestEmitNestedAndOneOf(t *testing.T) {
	set := emit(t, compile(t, `syntax = "proto3";
package p;
message Outer {
  message Inner { string s = 1; }
  oneof choice {
    string name = 1;
    Inner inner = 2;
  }
}`))

	msg := set.File[0].MessageType[0]
	require.Len(t, msg.NestedType, 1)
	assert.Equal(t, "Inner", msg.NestedType[0].GetName())

	require.Len(t, msg.OneofDecl, 1)
	assert.Equal(t, "choice", msg.OneofDecl[0].GetName())
	require.Len(t, msg.Field, 2)
	assert.Equal(t, int32(0), msg.Field[0].GetOneofIndex())
	assert.Equal(t, int32(0), msg.Field[1].GetOneofIndex())
}

func TestEmitNestedNotDuplicated(t *testing.T) {
	// dispatching Outer then Outer.Inner must not emit Inner twice
	set := emit(t, compile(t, `syntax = "proto3";
package p;
message Outer {
  message Inner { string s = 1; }
  Inner i = 1;
}`))

	fd := set.File[0]
	require.Len(t, fd.MessageType, 1)
	require.Len(t, fd.MessageType[0].NestedType, 1)
}

func TestEmitMap(t *testing.T) {
	set := emit(t, compile(t, `syntax = "proto3";
package p;
message M {
  map<string, int32> counts = 1;
}`))

	msg := set.File[0].MessageType[0]
	require.Len(t, msg.NestedType, 1)
	entry := msg.NestedType[0]
	assert.Equal(t, "CountsEntry", entry.GetName())
	assert.True(t, entry.GetOptions().GetMapEntry())
	require.Len(t, entry.Field, 2)

	field := msg.Field[0]
	assert.Equal(t, descriptorpb.FieldDescriptorProto_LABEL_REPEATED, field.GetLabel())
	assert.Equal(t, ".p.M.CountsEntry", field.GetTypeName())
}

func TestEmitEnumAndService(t *testing.T) {
	set := emit(t, compile(t, `syntax = "proto3";
package p;
enum Status {
  STATUS_UNSPECIFIED = 0;
  STATUS_OK = 1;
}
message Req {}
service Svc {
  rpc Stream (Req) returns (stream Req);
}`))

	fd := set.File[0]
	require.Len(t, fd.EnumType, 1)
	enum := fd.EnumType[0]
	assert.Equal(t, "Status", enum.GetName())
	require.Len(t, enum.Value, 2)
	assert.Equal(t, int32(0), enum.Value[0].GetNumber())

	require.Len(t, fd.Service, 1)
	method := fd.Service[0].Method[0]
	assert.Equal(t, ".p.Req", method.GetInputType())
	assert.False(t, method.GetClientStreaming())
	assert.True(t, method.GetServerStreaming())
}

func TestEmitReservedAndExtensions(t *testing.T) {
	set := emit(t, compile(t, `syntax = "proto2";
package p;
message M {
  reserved 5 to 10;
  reserved "old";
  extensions 100 to 199;
  optional string s = 1;
}`))

	msg := set.File[0].MessageType[0]
	require.Len(t, msg.ReservedRange, 1)
	assert.Equal(t, int32(5), msg.ReservedRange[0].GetStart())
	assert.Equal(t, int32(11), msg.ReservedRange[0].GetEnd())
	assert.Equal(t, []string{"old"}, msg.ReservedName)
	require.Len(t, msg.ExtensionRange, 1)
	assert.Equal(t, int32(200), msg.ExtensionRange[0].GetEnd())
}

func TestBytesBeforeDispatch(t *testing.T) {
	target := New("out.pb", nil)
	_, err := target.Bytes()
	assert.Error(t, err)
}
