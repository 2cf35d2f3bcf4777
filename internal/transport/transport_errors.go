package transport

// file: internal/transport/transport_errors.go

import (
	"fmt"
	"io"

	"github.com/cockroachdb/errors"
)

// ErrorCode identifies a transport failure. Values sit above the JSON-RPC
// range so they are never confused with wire codes.
type ErrorCode int

const (
	ErrGeneric ErrorCode = iota + 1000
	// ErrInvalidMessage marks a line that cannot be framed or encoded.
	ErrInvalidMessage
	// ErrMessageTooLarge marks a line longer than the configured limit.
	ErrMessageTooLarge
	ErrTransportClosed
	ErrReadTimeout
	ErrWriteTimeout
	// ErrJSONParseFailed marks a line that is not syntactically valid JSON.
	ErrJSONParseFailed
)

// ErrorType groups codes by how the serve loop reacts to them.
type ErrorType int

const (
	ErrorTypeGeneric ErrorType = iota
	ErrorTypeMessageSize
	ErrorTypeParse
	ErrorTypeTimeout
	ErrorTypeClosed
)

// previewLimit caps how much of an offending line is kept on an Error.
const previewLimit = 100

// Error is returned by Transport implementations. Size and MaxSize are set
// only for ErrMessageTooLarge; Preview holds the head of the offending line
// when one exists.
type Error struct {
	Type    ErrorType
	Code    ErrorCode
	Message string
	Cause   error
	Size    int
	MaxSize int
	Preview string
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("transport error %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("transport error %d: %s: %v", e.Code, e.Message, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches another *Error with the same type and code, so sentinel-style
// comparisons work through wrapping.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && e.Type == t.Type && e.Code == t.Code
}

// NewError builds a generic transport error. A non-nil cause gets a stack.
func NewError(code ErrorCode, message string, cause error) *Error {
	if cause != nil {
		cause = errors.WithStack(cause)
	}
	return &Error{Type: ErrorTypeGeneric, Code: code, Message: message, Cause: cause}
}

func newTyped(typ ErrorType, code ErrorCode, message string, cause error) *Error {
	e := NewError(code, message, cause)
	e.Type = typ
	return e
}

// NewMessageSizeError reports a line of size bytes against a limit of maxSize.
func NewMessageSizeError(size, maxSize int, head []byte) *Error {
	e := newTyped(ErrorTypeMessageSize, ErrMessageTooLarge,
		fmt.Sprintf("message of %d bytes exceeds limit of %d bytes", size, maxSize), nil)
	e.Size = size
	e.MaxSize = maxSize
	e.Preview = preview(head)
	return e
}

// NewParseError reports a line that failed JSON syntax checking.
func NewParseError(line []byte, cause error) *Error {
	e := newTyped(ErrorTypeParse, ErrJSONParseFailed, "message is not valid JSON", cause)
	e.Size = len(line)
	e.Preview = preview(line)
	return e
}

// NewTimeoutError reports that op ("read" or "write") was abandoned because
// its context ended.
func NewTimeoutError(op string, cause error) *Error {
	code := ErrReadTimeout
	if op == "write" {
		code = ErrWriteTimeout
	}
	return newTyped(ErrorTypeTimeout, code, op+" interrupted", cause)
}

// NewClosedError reports op attempted after Close.
func NewClosedError(op string) *Error {
	return newTyped(ErrorTypeClosed, ErrTransportClosed, op+" on closed transport", nil)
}

// NewEOFError reports that the client closed its input stream.
func NewEOFError() *Error {
	return newTyped(ErrorTypeClosed, ErrTransportClosed, "input stream ended", io.EOF)
}

// JSON-RPC 2.0 codes the serve loop answers with for transport failures.
const (
	JSONRPCParseError     = -32700
	JSONRPCInvalidRequest = -32600
	JSONRPCMethodNotFound = -32601
	JSONRPCInvalidParams  = -32602
	JSONRPCInternalError  = -32603
)

// MapErrorToJSONRPC converts err into the code, message and optional data of
// a JSON-RPC error object. Anything that is not a transport error maps to a
// bare internal error so its text never reaches the client.
func MapErrorToJSONRPC(err error) (code int, message string, data map[string]interface{}) {
	var te *Error
	if !errors.As(err, &te) {
		return JSONRPCInternalError, "Internal error", nil
	}
	switch te.Code {
	case ErrJSONParseFailed:
		return JSONRPCParseError, "Parse error", nil
	case ErrInvalidMessage:
		return JSONRPCInvalidRequest, "Invalid Request", nil
	case ErrMessageTooLarge:
		detail := fmt.Sprintf("Message size (%d bytes) exceeds limit (%d bytes).", te.Size, te.MaxSize)
		return JSONRPCInvalidRequest, "Invalid Request", map[string]interface{}{"detail": detail}
	}
	return JSONRPCInternalError, "Internal error", nil
}

// IsClosedError reports whether err means the stream is finished.
func IsClosedError(err error) bool {
	var te *Error
	if errors.As(err, &te) && te.Type == ErrorTypeClosed {
		return true
	}
	return errors.Is(err, io.EOF)
}

// IsRecoverable reports whether the offending line was consumed and reading
// can continue.
func IsRecoverable(err error) bool {
	var te *Error
	if !errors.As(err, &te) {
		return false
	}
	return te.Code == ErrMessageTooLarge || te.Code == ErrJSONParseFailed || te.Code == ErrInvalidMessage
}
