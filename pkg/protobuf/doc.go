// Package protobuf lexes and parses .proto source text into the schema
// model. The parser is a hand-written recursive descent with one token of
// lookahead; leading comments are attached to the following declaration as
// documentation and unknown options are retained uninterpreted.
package protobuf
