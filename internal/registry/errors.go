// file: internal/registry/errors.go
package registry

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// ErrRegistryFrozen is returned by Register once serving has started.
var ErrRegistryFrozen = errors.New("registry is frozen: registration is only allowed before serving starts")

// DuplicateNameError is returned when a tool name or resource URI template is
// registered twice. The original registration is left in place.
type DuplicateNameError struct {
	Kind string
	Name string
}

// Error implements the error interface.
func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("%s %q is already registered", e.Kind, e.Name)
}
