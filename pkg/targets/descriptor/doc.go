// Package descriptor implements the built-in target that serializes the
// claimed schema types into a google.protobuf.FileDescriptorSet, the same
// container protoc emits with -o.
package descriptor
