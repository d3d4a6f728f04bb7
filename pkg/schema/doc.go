// Package schema defines the object model shared by the whole pipeline: the
// parsed representation of .proto files, the declarations they contain, and
// the linked Schema arena that cross-file type references resolve into.
package schema
