// Package mcperrors defines the protocol-level error types of the dispatcher and
// maps them onto JSON-RPC error objects.
package mcperrors

// file: internal/mcp/mcp_errors/errors.go

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/dkoosis/mcpserve/internal/transport"
)

// ErrorCode is the JSON-RPC code an error is reported with.
type ErrorCode int

// Error codes. The first five are JSON-RPC standard codes; the rest sit in the
// implementation-defined server range (-32000 to -32099).
const (
	ErrParseError     ErrorCode = transport.JSONRPCParseError
	ErrInvalidRequest ErrorCode = transport.JSONRPCInvalidRequest
	ErrMethodNotFound ErrorCode = transport.JSONRPCMethodNotFound
	ErrInvalidParams  ErrorCode = transport.JSONRPCInvalidParams
	ErrInternalError  ErrorCode = transport.JSONRPCInternalError

	ErrRequestSequence  ErrorCode = -32001
	ErrResourceNotFound ErrorCode = -32002
)

// BaseError is the common base for protocol error types.
type BaseError struct {
	// Code is the JSON-RPC code sent to the caller.
	Code ErrorCode
	// Message is sent to the caller verbatim, so it must not carry internal detail.
	Message string
	// Cause is the underlying error, kept for logs only.
	Cause error
	// Context holds extra key-value details. Only a small set of keys is
	// ever forwarded to the caller.
	Context map[string]interface{}
}

// Error implements the standard Go error interface.
func (e *BaseError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("MCPError (Code: %d): %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("MCPError (Code: %d): %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *BaseError) Unwrap() error {
	return e.Cause
}

func (e *BaseError) base() *BaseError { return e }

// AsBaseError finds the protocol error in err's chain. The specific error
// types embed BaseError, so a plain errors.As on *BaseError would miss them.
func AsBaseError(err error) (*BaseError, bool) {
	var carrier interface{ base() *BaseError }
	if errors.As(err, &carrier) {
		return carrier.base(), true
	}
	return nil, false
}

// WithContext adds a key-value pair to the error's context map.
func (e *BaseError) WithContext(key string, value interface{}) *BaseError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// --- Specific Error Type Structs ---.

// ParseError is a message that is not valid JSON.
type ParseError struct{ BaseError }

// InvalidRequestError is valid JSON that is not a valid JSON-RPC message.
type InvalidRequestError struct{ BaseError }

// MethodNotFoundError is a request for a method the server does not serve.
type MethodNotFoundError struct{ BaseError }

// InvalidParamsError is a request whose params cannot be used.
type InvalidParamsError struct{ BaseError }

// UnknownToolError is a tools/call naming a tool that is not registered.
type UnknownToolError struct{ BaseError }

// ResourceNotFoundError is a resources/read whose URI matches no template.
type ResourceNotFoundError struct{ BaseError }

// ResourceError is a failure reported by a resource handler.
type ResourceError struct{ BaseError }

// InternalError is a generic internal server error.
type InternalError struct{ BaseError }

// RequestSequenceError is a request that is not valid in the current state.
type RequestSequenceError struct{ BaseError }

func newBase(code ErrorCode, message string, cause error, context map[string]interface{}) BaseError {
	var wrapped error
	if cause != nil {
		wrapped = errors.WithStack(cause)
	}
	return BaseError{Code: code, Message: message, Cause: wrapped, Context: context}
}

// --- Constructor Functions ---.

// NewParseError creates a JSON parse error (-32700).
func NewParseError(message string, cause error, context map[string]interface{}) error {
	return &ParseError{newBase(ErrParseError, message, cause, context)}
}

// NewInvalidRequestError creates an invalid request structure error (-32600).
func NewInvalidRequestError(message string, cause error, context map[string]interface{}) error {
	return &InvalidRequestError{newBase(ErrInvalidRequest, message, cause, context)}
}

// NewMethodNotFoundError creates a method-not-found error (-32601).
func NewMethodNotFoundError(method string) error {
	return &MethodNotFoundError{newBase(ErrMethodNotFound, "Method not found: "+method, nil,
		map[string]interface{}{"method": method})}
}

// NewInvalidParamsError creates an invalid parameters error (-32602).
func NewInvalidParamsError(message string, cause error, context map[string]interface{}) error {
	return &InvalidParamsError{newBase(ErrInvalidParams, message, cause, context)}
}

// NewUnknownToolError reports a call to an unregistered tool (-32602).
func NewUnknownToolError(name string) error {
	return &UnknownToolError{newBase(ErrInvalidParams, "Unknown tool: "+name, nil,
		map[string]interface{}{"toolName": name})}
}

// NewResourceNotFoundError reports a read of an unmatched URI (-32002).
func NewResourceNotFoundError(uri string) error {
	return &ResourceNotFoundError{newBase(ErrResourceNotFound, "Resource not found: "+uri, nil,
		map[string]interface{}{"uri": uri})}
}

// NewResourceError creates a resource handler failure. The message reaches the
// caller; code defaults to -32603 when zero.
func NewResourceError(code ErrorCode, message string, cause error, context map[string]interface{}) error {
	if code == 0 {
		code = ErrInternalError
	}
	return &ResourceError{newBase(code, message, cause, context)}
}

// NewInternalError creates a generic internal server error (-32603).
func NewInternalError(message string, cause error, context map[string]interface{}) error {
	return &InternalError{newBase(ErrInternalError, message, cause, context)}
}

// NewRequestSequenceError reports a request sent in the wrong connection state.
func NewRequestSequenceError(message string, context map[string]interface{}) error {
	return &RequestSequenceError{newBase(ErrRequestSequence, message, nil, context)}
}

// --- JSON-RPC Error Mapping ---.

// safeContextKeys lists the context entries that may be sent to the caller.
var safeContextKeys = map[string]bool{
	"uri":      true,
	"toolName": true,
	"method":   true,
	"state":    true,
	"field":    true,
}

// MapToJSONRPC translates an error into JSON-RPC components. Errors that are
// not protocol errors become a generic internal error without their detail.
func MapToJSONRPC(err error) (code int, message string, data map[string]interface{}) {
	baseErr, ok := AsBaseError(err)
	if !ok {
		return transport.MapErrorToJSONRPC(err)
	}

	code = int(baseErr.Code)
	message = baseErr.Message
	if message == "" {
		message = "Internal error"
	}

	for k, v := range baseErr.Context {
		if !safeContextKeys[k] {
			continue
		}
		if data == nil {
			data = make(map[string]interface{})
		}
		data[k] = v
	}
	return code, message, data
}

// Code returns the JSON-RPC code err would be reported with.
func Code(err error) int {
	code, _, _ := MapToJSONRPC(err)
	return code
}
