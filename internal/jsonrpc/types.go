// Package jsonrpc implements the JSON-RPC 2.0 envelopes the server reads and writes.
// file: internal/jsonrpc/types.go
package jsonrpc

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/errors"
)

const (
	// Version is the JSON-RPC version string.
	Version = "2.0"
)

// NullID is the id sent when a request's id cannot be recovered.
var NullID = json.RawMessage("null")

// Error represents a JSON-RPC 2.0 error object.
type Error struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Error returns the error message, implementing the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("JSON-RPC error %d: %s", e.Code, e.Message)
}

// Kind classifies a decoded message.
type Kind int

// Message kinds.
const (
	KindRequest Kind = iota + 1
	KindNotification
	KindResponse
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindRequest:
		return "request"
	case KindNotification:
		return "notification"
	case KindResponse:
		return "response"
	default:
		return "unknown"
	}
}

// Message is any decoded JSON-RPC message.
type Message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`

	kind Kind
}

// Kind reports how the message was classified by Decode.
func (m *Message) Kind() Kind { return m.kind }

// IsRequest returns true if the message is a request.
func (m *Message) IsRequest() bool { return m.kind == KindRequest }

// IsNotification returns true if the message is a notification.
func (m *Message) IsNotification() bool { return m.kind == KindNotification }

// IsResponse returns true if the message is a response.
func (m *Message) IsResponse() bool { return m.kind == KindResponse }

// IDString renders the id for logs.
func (m *Message) IDString() string {
	if len(m.ID) == 0 {
		return ""
	}
	return string(m.ID)
}

// ParseParams decodes params into dst. Absent or null params leave dst untouched.
func (m *Message) ParseParams(dst interface{}) error {
	if len(m.Params) == 0 || bytes.Equal(m.Params, []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(m.Params, dst); err != nil {
		return errors.Wrapf(err, "failed to unmarshal params for method '%s'", m.Method)
	}
	return nil
}

// Response represents a JSON-RPC response message. The id is always present
// on the wire, as null when unknown.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Notification represents a JSON-RPC notification message.
type Notification struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

func normalizeID(id json.RawMessage) json.RawMessage {
	if len(id) == 0 {
		return NullID
	}
	return id
}

// NewResponse creates a success response carrying result.
func NewResponse(id json.RawMessage, result interface{}) (*Response, error) {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to marshal result of type %T", result)
	}
	return &Response{JSONRPC: Version, ID: normalizeID(id), Result: resultJSON}, nil
}

// NewErrorResponse creates an error response.
func NewErrorResponse(id json.RawMessage, code int, message string, data interface{}) *Response {
	if m, ok := data.(map[string]interface{}); ok && len(m) == 0 {
		data = nil
	}
	return &Response{
		JSONRPC: Version,
		ID:      normalizeID(id),
		Error:   &Error{Code: code, Message: message, Data: data},
	}
}

// NewNotification creates a notification.
func NewNotification(method string, params interface{}) (*Notification, error) {
	var paramsJSON json.RawMessage
	if params != nil {
		var err error
		paramsJSON, err = json.Marshal(params)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to marshal params for notification '%s'", method)
		}
	}
	return &Notification{JSONRPC: Version, Method: method, Params: paramsJSON}, nil
}
