package linker

import (
	"fmt"
	"strings"

	"github.com/platinummonkey/sprocket/pkg/location"
)

// DuplicateTypeError reports two declarations sharing a qualified name
type DuplicateTypeError struct {
	Name   string
	First  location.Location
	Second location.Location
}

func (e *DuplicateTypeError) Error() string {
	return fmt.Sprintf("%s: duplicate type %s, first declared at %s", e.Second, e.Name, e.First)
}

// UnresolvedReferenceError reports a name that could not be bound to any
// visible declaration
type UnresolvedReferenceError struct {
	Name string
	From location.Location
}

func (e *UnresolvedReferenceError) Error() string {
	return fmt.Sprintf("%s: unable to resolve %s", e.From, e.Name)
}

// ValidationError reports a structural schema violation: tag collisions,
// reserved violations, map and oneof constraints, extension range
// mismatches, or option type mismatches
type ValidationError struct {
	Location location.Location
	Message  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Location, e.Message)
}

// LinkFailure aggregates every error found during a link pass
type LinkFailure struct {
	Errors []error
}

func (e *LinkFailure) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "linking failed with %d error(s):", len(e.Errors))
	for _, err := range e.Errors {
		sb.WriteString("\n  ")
		sb.WriteString(err.Error())
	}
	return sb.String()
}

// Unwrap exposes the bundled errors to errors.Is and errors.As
func (e *LinkFailure) Unwrap() []error {
	return e.Errors
}
