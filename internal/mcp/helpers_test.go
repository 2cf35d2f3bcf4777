// file: internal/mcp/helpers_test.go
package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/dkoosis/mcpserve/internal/jsonrpc"
	mcptypes "github.com/dkoosis/mcpserve/internal/mcp_types"
	"github.com/dkoosis/mcpserve/internal/value"
	"github.com/stretchr/testify/require"
)

const echoSchema = `{"type":"object","properties":{"text":{"type":"string"}},"required":["text"]}`

// wireMessage is any message the server writes.
type wireMessage struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	Result  json.RawMessage `json:"result"`
	Error   *jsonrpc.Error  `json:"error"`
}

// callResult is the decoded result of a tools/call.
type callResult struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	IsError bool `json:"isError"`
}

func newTestServer(t *testing.T, opts Options) *Server {
	t.Helper()
	if opts.Name == "" {
		opts.Name = "test-server"
		opts.Version = "1.2.3"
	}
	return NewServer(opts)
}

func echoTool() mcptypes.Tool {
	return mcptypes.Tool{Name: "echo", Description: "Echo text", InputSchema: json.RawMessage(echoSchema)}
}

func echoHandler(_ context.Context, args value.Object) (*mcptypes.CallToolResult, error) {
	text, _ := args.String("text")
	return mcptypes.NewToolResultText(text), nil
}

// runSession feeds lines to Serve and returns every message written.
func runSession(t *testing.T, s *Server, lines ...string) []wireMessage {
	t.Helper()
	in := strings.NewReader(strings.Join(lines, "\n") + "\n")
	var out bytes.Buffer
	require.NoError(t, s.Serve(context.Background(), in, &out))
	return decodeOutput(t, out.Bytes())
}

func decodeOutput(t *testing.T, data []byte) []wireMessage {
	t.Helper()
	var msgs []wireMessage
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		var m wireMessage
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &m), "line: %s", scanner.Text())
		msgs = append(msgs, m)
	}
	require.NoError(t, scanner.Err())
	return msgs
}

func request(id interface{}, method string, params interface{}) string {
	m := map[string]interface{}{"jsonrpc": "2.0", "id": id, "method": method}
	if params != nil {
		m["params"] = params
	}
	b, _ := json.Marshal(m)
	return string(b)
}

func notification(method string) string {
	return `{"jsonrpc":"2.0","method":"` + method + `"}`
}

func decodeCall(t *testing.T, m wireMessage) callResult {
	t.Helper()
	require.Nil(t, m.Error, "unexpected protocol error: %+v", m.Error)
	var res callResult
	require.NoError(t, json.Unmarshal(m.Result, &res))
	return res
}
