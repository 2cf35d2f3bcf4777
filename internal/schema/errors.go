// file: internal/schema/errors.go
package schema

import (
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ErrorCode defines schema error codes.
type ErrorCode int

// Defined schema error codes.
const (
	ErrSchemaNotFound ErrorCode = iota + 1000
	ErrSchemaInvalid
	ErrSchemaCompileFailed
	ErrValidationFailed
	ErrInvalidJSONFormat
)

// SchemaError reports the first violation found while validating a value.
// Field is a dotted path into the value ("" for the value itself).
type SchemaError struct {
	Field   string
	Reason  string
	Keyword string
}

// Error implements the error interface.
func (e *SchemaError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return e.Field + ": " + e.Reason
}

// DefinitionError is returned when a schema document itself cannot be used.
type DefinitionError struct {
	Code    ErrorCode
	Message string
	Cause   error
	Context map[string]interface{}
}

// Error implements the error interface.
func (e *DefinitionError) Error() string {
	base := fmt.Sprintf("[%d] %s", e.Code, e.Message)
	if e.Cause != nil {
		base += fmt.Sprintf(": %v", e.Cause)
	}
	return base
}

// Unwrap returns the underlying error.
func (e *DefinitionError) Unwrap() error {
	return e.Cause
}

// WithContext adds context information to the error.
func (e *DefinitionError) WithContext(key string, value interface{}) *DefinitionError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// NewDefinitionError creates a new DefinitionError.
func NewDefinitionError(code ErrorCode, message string, cause error) *DefinitionError {
	var wrapped error
	if cause != nil {
		wrapped = errors.WithStack(cause)
	}
	return &DefinitionError{
		Code:    code,
		Message: message,
		Cause:   wrapped,
		Context: map[string]interface{}{
			"timestamp": time.Now().UTC(),
		},
	}
}

// convertValidationError reduces a jsonschema error tree to its first leaf.
func convertValidationError(valErr *jsonschema.ValidationError) *SchemaError {
	leaf := valErr
	for len(leaf.Causes) > 0 {
		leaf = leaf.Causes[0]
	}
	return &SchemaError{
		Field:   pointerToField(leaf.InstanceLocation),
		Reason:  leaf.Message,
		Keyword: lastSegment(leaf.KeywordLocation),
	}
}

// pointerToField turns a JSON pointer such as "/a/0/b" into "a.0.b".
func pointerToField(ptr string) string {
	ptr = strings.TrimPrefix(ptr, "/")
	if ptr == "" {
		return ""
	}
	parts := strings.Split(ptr, "/")
	for i, p := range parts {
		p = strings.ReplaceAll(p, "~1", "/")
		parts[i] = strings.ReplaceAll(p, "~0", "~")
	}
	return strings.Join(parts, ".")
}

func lastSegment(loc string) string {
	if i := strings.LastIndexByte(loc, '/'); i >= 0 {
		return loc[i+1:]
	}
	return loc
}
