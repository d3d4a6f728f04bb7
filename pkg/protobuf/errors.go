package protobuf

import (
	"fmt"

	"github.com/platinummonkey/sprocket/pkg/location"
)

// ParseError reports malformed .proto syntax at a source location
type ParseError struct {
	Location location.Location
	Message  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %s", e.Location, e.Message)
}
