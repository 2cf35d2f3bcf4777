// file: internal/jsonrpc/decode.go
package jsonrpc

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/cockroachdb/errors"
	mcperrors "github.com/dkoosis/mcpserve/internal/mcp/mcp_errors"
)

// Decode parses one framed message and classifies it.
//
// On failure the error is a protocol error (parse error for invalid JSON,
// invalid request for anything structurally wrong). The returned message is
// then either nil or carries only the id, when a valid id could be recovered,
// so the caller can still correlate its error response.
func Decode(data []byte) (*Message, error) {
	trimmed := bytes.TrimSpace(data)
	if !json.Valid(trimmed) {
		return nil, mcperrors.NewParseError("Parse error", errors.New("message is not valid JSON"), nil)
	}
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, mcperrors.NewInvalidRequestError("Invalid Request: message must be a JSON object", nil, nil)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return nil, mcperrors.NewParseError("Parse error", err, nil)
	}

	msg := &Message{}
	rawID, hasID := fields["id"]
	if hasID {
		if !validID(rawID) {
			return nil, invalid("id must be a string, number or null")
		}
		msg.ID = rawID
	}

	partial := func(reason string) (*Message, error) {
		if hasID && !isNull(rawID) {
			return &Message{ID: rawID}, invalid(reason)
		}
		return nil, invalid(reason)
	}

	rawVersion, ok := fields["jsonrpc"]
	if !ok {
		return partial(`missing "jsonrpc" member`)
	}
	if err := json.Unmarshal(rawVersion, &msg.JSONRPC); err != nil || msg.JSONRPC != Version {
		return partial(`"jsonrpc" must be "2.0"`)
	}

	rawMethod, hasMethod := fields["method"]
	if hasMethod {
		if err := json.Unmarshal(rawMethod, &msg.Method); err != nil {
			return partial("method must be a string")
		}
		if msg.Method == "" {
			return partial("method must not be empty")
		}
		if strings.HasPrefix(msg.Method, "rpc.") {
			return partial(`method names starting with "rpc." are reserved`)
		}
	}

	if rawParams, ok := fields["params"]; ok && !isNull(rawParams) {
		switch firstByte(rawParams) {
		case '{', '[':
			msg.Params = rawParams
		default:
			return partial("params must be an object or array")
		}
	}

	switch {
	case hasMethod && hasID:
		if isNull(rawID) {
			return nil, invalid("request id must not be null")
		}
		msg.kind = KindRequest
	case hasMethod:
		msg.kind = KindNotification
	case hasID:
		msg.Result = fields["result"]
		if rawErr, ok := fields["error"]; ok && !isNull(rawErr) {
			var e Error
			if err := json.Unmarshal(rawErr, &e); err != nil {
				return partial("error must be an object")
			}
			msg.Error = &e
		}
		if msg.Result == nil && msg.Error == nil {
			return partial(`response must contain "result" or "error"`)
		}
		msg.kind = KindResponse
	default:
		return nil, invalid(`message must contain "method" or "id"`)
	}
	return msg, nil
}

func invalid(reason string) error {
	return mcperrors.NewInvalidRequestError("Invalid Request: "+reason, nil, nil)
}

func validID(raw json.RawMessage) bool {
	switch c := firstByte(raw); {
	case c == '"', c == '-', c >= '0' && c <= '9':
		return true
	default:
		return isNull(raw)
	}
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func firstByte(raw json.RawMessage) byte {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return 0
	}
	return trimmed[0]
}
