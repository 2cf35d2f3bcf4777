// file: internal/mcp/dispatcher_test.go
package mcp

import (
	"context"
	"encoding/json"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dkoosis/mcpserve/internal/logging"
	mcperrors "github.com/dkoosis/mcpserve/internal/mcp/mcp_errors"
	mcptypes "github.com/dkoosis/mcpserve/internal/mcp_types"
	"github.com/dkoosis/mcpserve/internal/metrics"
	"github.com/dkoosis/mcpserve/internal/ratelimit"
	"github.com/dkoosis/mcpserve/internal/value"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitializeAndPing(t *testing.T) {
	s := newTestServer(t, Options{Instructions: "Call echo."})
	require.NoError(t, s.RegisterTool(echoTool(), echoHandler))

	msgs := runSession(t, s,
		request(1, "initialize", map[string]interface{}{
			"protocolVersion": "2025-06-18",
			"clientInfo":      map[string]string{"name": "client", "version": "0"},
		}),
		notification("notifications/initialized"),
		request("p", "ping", nil),
	)
	require.Len(t, msgs, 2)

	var init mcptypes.InitializeResult
	require.NoError(t, json.Unmarshal(msgs[0].Result, &init))
	assert.Equal(t, mcptypes.ProtocolVersion, init.ProtocolVersion)
	assert.Equal(t, "test-server", init.ServerInfo.Name)
	assert.Equal(t, "1.2.3", init.ServerInfo.Version)
	assert.Equal(t, "Call echo.", init.Instructions)
	assert.NotNil(t, init.Capabilities.Tools)
	assert.Nil(t, init.Capabilities.Resources, "no resources registered")

	assert.JSONEq(t, `"p"`, string(msgs[1].ID))
	assert.JSONEq(t, `{}`, string(msgs[1].Result))
}

func TestEchoScenario(t *testing.T) {
	s := newTestServer(t, Options{})
	require.NoError(t, s.RegisterTool(echoTool(), echoHandler))

	msgs := runSession(t, s,
		request(1, "tools/call", map[string]interface{}{"name": "echo", "arguments": map[string]string{"text": "hi"}}),
		request(2, "tools/call", map[string]interface{}{"name": "echo", "arguments": map[string]string{}}),
		request(3, "tools/call", map[string]interface{}{"name": "echo", "arguments": map[string]interface{}{"text": "x", "extra": true}}),
		request(4, "tools/call", map[string]interface{}{"name": "echo", "arguments": map[string]interface{}{"text": 1}}),
	)
	require.Len(t, msgs, 4)

	assert.JSONEq(t, `{"content":[{"type":"text","text":"hi"}]}`, string(msgs[0].Result))

	res := decodeCall(t, msgs[1])
	assert.True(t, res.IsError)
	require.Len(t, res.Content, 1)
	assert.Equal(t, "Invalid arguments: text: required property is missing", res.Content[0].Text)

	res = decodeCall(t, msgs[2])
	assert.False(t, res.IsError, "undeclared properties are allowed")
	assert.Equal(t, "x", res.Content[0].Text)

	res = decodeCall(t, msgs[3])
	assert.True(t, res.IsError)
	assert.Equal(t, "Invalid arguments: text: expected string, got number", res.Content[0].Text)
}

func TestUnknownToolNeverInvokesHandler(t *testing.T) {
	var calls atomic.Int32
	s := newTestServer(t, Options{})
	require.NoError(t, s.RegisterTool(echoTool(), func(ctx context.Context, args value.Object) (*mcptypes.CallToolResult, error) {
		calls.Add(1)
		return echoHandler(ctx, args)
	}))

	msgs := runSession(t, s, request(9, "tools/call", map[string]interface{}{"name": "nope", "arguments": map[string]string{}}))
	require.Len(t, msgs, 1)
	require.NotNil(t, msgs[0].Error)
	assert.Equal(t, int(mcperrors.ErrInvalidParams), msgs[0].Error.Code)
	assert.Equal(t, "Unknown tool: nope", msgs[0].Error.Message)
	assert.JSONEq(t, `9`, string(msgs[0].ID))
	assert.Equal(t, int32(0), calls.Load())
}

func TestToolOutcomes(t *testing.T) {
	s := newTestServer(t, Options{})
	tool := func(name string) mcptypes.Tool { return mcptypes.Tool{Name: name} }
	require.NoError(t, s.RegisterTool(tool("panics"), func(_ context.Context, _ value.Object) (*mcptypes.CallToolResult, error) {
		panic("boom")
	}))
	require.NoError(t, s.RegisterTool(tool("fails"), func(_ context.Context, _ value.Object) (*mcptypes.CallToolResult, error) {
		return nil, errors.New("database password is hunter2")
	}))
	require.NoError(t, s.RegisterTool(tool("denies"), func(_ context.Context, _ value.Object) (*mcptypes.CallToolResult, error) {
		return nil, mcptypes.NewToolError("Access denied")
	}))
	require.NoError(t, s.RegisterTool(tool("reports"), func(_ context.Context, _ value.Object) (*mcptypes.CallToolResult, error) {
		return mcptypes.NewToolResultError("file not found"), nil
	}))
	require.NoError(t, s.RegisterTool(tool("empty"), func(_ context.Context, _ value.Object) (*mcptypes.CallToolResult, error) {
		return nil, nil
	}))

	call := func(id int, name string) string {
		return request(id, "tools/call", map[string]interface{}{"name": name})
	}
	msgs := runSession(t, s, call(1, "panics"), call(2, "fails"), call(3, "denies"), call(4, "reports"), call(5, "empty"), request(6, "ping", nil))
	require.Len(t, msgs, 6)

	for i, want := range []string{toolFaultMessage, toolFaultMessage, "Access denied", "file not found"} {
		res := decodeCall(t, msgs[i])
		assert.True(t, res.IsError, "message %d", i)
		require.Len(t, res.Content, 1)
		assert.Equal(t, want, res.Content[0].Text)
	}
	assert.JSONEq(t, `{"content":[]}`, string(msgs[4].Result))
	assert.JSONEq(t, `{}`, string(msgs[5].Result), "loop survives handler faults")
}

func TestToolsListOrderAndPagination(t *testing.T) {
	s := newTestServer(t, Options{})
	msgs := runSession(t, s, request(1, "tools/list", nil))
	assert.JSONEq(t, `{"tools":[]}`, string(msgs[0].Result))

	s = newTestServer(t, Options{PageSize: 1})
	require.NoError(t, s.RegisterTool(echoTool(), echoHandler))
	require.NoError(t, s.RegisterTool(mcptypes.Tool{Name: "read_file"}, echoHandler))

	msgs = runSession(t, s,
		request(1, "tools/list", nil),
		request(2, "tools/list", map[string]string{"cursor": "1"}),
		request(3, "tools/list", map[string]string{"cursor": "zebra"}),
		request(4, "tools/list", map[string]string{"cursor": "5"}),
	)
	require.Len(t, msgs, 4)

	var page mcptypes.ListToolsResult
	require.NoError(t, json.Unmarshal(msgs[0].Result, &page))
	require.Len(t, page.Tools, 1)
	assert.Equal(t, "echo", page.Tools[0].Name)
	assert.JSONEq(t, echoSchema, string(page.Tools[0].InputSchema))
	assert.Equal(t, "1", page.NextCursor)

	page = mcptypes.ListToolsResult{}
	require.NoError(t, json.Unmarshal(msgs[1].Result, &page))
	require.Len(t, page.Tools, 1)
	assert.Equal(t, "read_file", page.Tools[0].Name)
	assert.JSONEq(t, `{"type":"object"}`, string(page.Tools[0].InputSchema))
	assert.Empty(t, page.NextCursor)

	for _, m := range msgs[2:] {
		require.NotNil(t, m.Error)
		assert.Equal(t, int(mcperrors.ErrInvalidParams), m.Error.Code)
	}
}

func TestPaginate(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}
	page, next, err := paginate(items, "", 2)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, page)
	assert.Equal(t, "2", next)

	page, next, err = paginate(items, "4", 2)
	require.NoError(t, err)
	assert.Equal(t, []int{5}, page)
	assert.Empty(t, next)

	page, next, err = paginate(items, "5", 2)
	require.NoError(t, err)
	assert.Empty(t, page)
	assert.Empty(t, next)

	_, _, err = paginate(items, "-1", 2)
	assert.Error(t, err)
}

func TestResources(t *testing.T) {
	s := newTestServer(t, Options{})
	var gotVars atomic.Value
	require.NoError(t, s.RegisterResource(
		mcptypes.Resource{URITemplate: "file:///{path}", Name: "File", MimeType: "text/plain"},
		func(_ context.Context, uri string, vars map[string]string) ([]mcptypes.ResourceContents, error) {
			gotVars.Store(vars)
			if vars["path"] == "missing.txt" {
				return nil, errors.Newf("File not found: %s", uri)
			}
			if vars["path"] == "locked" {
				return nil, mcperrors.NewResourceError(-32010, "Resource locked", nil, nil)
			}
			if vars["path"] == "crash" {
				panic("nil map")
			}
			return []mcptypes.ResourceContents{{MimeType: "text/plain", Text: "contents of " + vars["path"]}}, nil
		}))
	require.NoError(t, s.RegisterResource(
		mcptypes.Resource{URITemplate: "config://main", Name: "Config"},
		func(_ context.Context, uri string, _ map[string]string) ([]mcptypes.ResourceContents, error) {
			return []mcptypes.ResourceContents{{URI: uri, Text: "k: v"}}, nil
		}))

	read := func(id int, uri string) string {
		return request(id, "resources/read", map[string]string{"uri": uri})
	}
	msgs := runSession(t, s,
		request(1, "resources/list", nil),
		request(2, "resources/templates/list", nil),
		read(3, "file:///a/b.txt"),
		read(4, "http://x"),
		read(5, "file:///missing.txt"),
		read(6, "file:///locked"),
		read(7, "file:///crash"),
		request(8, "resources/read", map[string]string{}),
		read(9, "config://main"),
	)
	require.Len(t, msgs, 9)

	assert.JSONEq(t, `{"resources":[{"uri":"config://main","name":"Config"}]}`, string(msgs[0].Result))
	assert.JSONEq(t, `{"resourceTemplates":[{"uriTemplate":"file:///{path}","name":"File","mimeType":"text/plain"}]}`, string(msgs[1].Result))

	assert.JSONEq(t, `{"contents":[{"uri":"file:///a/b.txt","mimeType":"text/plain","text":"contents of a/b.txt"}]}`, string(msgs[2].Result))
	assert.Equal(t, map[string]string{"path": "crash"}, gotVars.Load(), "last handler call saw its own bindings")

	require.NotNil(t, msgs[3].Error)
	assert.Equal(t, int(mcperrors.ErrResourceNotFound), msgs[3].Error.Code)
	assert.Equal(t, "Resource not found: http://x", msgs[3].Error.Message)

	require.NotNil(t, msgs[4].Error)
	assert.Equal(t, int(mcperrors.ErrInternalError), msgs[4].Error.Code)
	assert.Equal(t, "File not found: file:///missing.txt", msgs[4].Error.Message)

	require.NotNil(t, msgs[5].Error)
	assert.Equal(t, -32010, msgs[5].Error.Code)
	assert.Equal(t, "Resource locked", msgs[5].Error.Message)

	require.NotNil(t, msgs[6].Error)
	assert.Equal(t, int(mcperrors.ErrInternalError), msgs[6].Error.Code)
	assert.Equal(t, resourceFaultMessage, msgs[6].Error.Message)

	require.NotNil(t, msgs[7].Error)
	assert.Equal(t, int(mcperrors.ErrInvalidParams), msgs[7].Error.Code)

	assert.JSONEq(t, `{"contents":[{"uri":"config://main","text":"k: v"}]}`, string(msgs[8].Result))

	for i, m := range msgs {
		assert.JSONEq(t, strconv.Itoa(i+1), string(m.ID), "response %d keeps its id", i)
	}
}

func TestUnknownMethodAndNotifications(t *testing.T) {
	s := newTestServer(t, Options{})
	msgs := runSession(t, s,
		notification("notifications/cancelled"),
		notification("notifications/unknown"),
		request("abc", "foo/bar", nil),
		`{"jsonrpc":"2.0","id":77,"result":{}}`,
	)
	require.Len(t, msgs, 1, "notifications and peer responses are never answered")
	require.NotNil(t, msgs[0].Error)
	assert.Equal(t, int(mcperrors.ErrMethodNotFound), msgs[0].Error.Code)
	assert.Equal(t, "Method not found: foo/bar", msgs[0].Error.Message)
	assert.JSONEq(t, `"abc"`, string(msgs[0].ID))
}

func TestToolTimeout(t *testing.T) {
	s := newTestServer(t, Options{ToolTimeout: 20 * time.Millisecond})
	require.NoError(t, s.RegisterTool(mcptypes.Tool{Name: "slow"}, func(ctx context.Context, _ value.Object) (*mcptypes.CallToolResult, error) {
		<-ctx.Done()
		time.Sleep(10 * time.Millisecond)
		return mcptypes.NewToolResultText("late"), nil
	}))

	msgs := runSession(t, s, request(1, "tools/call", map[string]string{"name": "slow"}))
	res := decodeCall(t, msgs[0])
	assert.True(t, res.IsError)
	assert.Equal(t, toolFaultMessage, res.Content[0].Text)
}

func TestRateLimitAndMiddleware(t *testing.T) {
	var seen []string
	audit := func(next mcptypes.ToolHandler) mcptypes.ToolHandler {
		return func(ctx context.Context, args value.Object) (*mcptypes.CallToolResult, error) {
			seen = append(seen, mcptypes.ToolNameFromContext(ctx))
			return next(ctx, args)
		}
	}
	collector := metrics.NewMetricsCollector(4)
	s := newTestServer(t, Options{
		RateLimit:      ratelimit.Config{Enabled: true, RequestsPerSecond: 0.001, Burst: 1},
		ToolMiddleware: []mcptypes.ToolMiddleware{audit},
		Metrics:        collector,
	})
	require.NoError(t, s.RegisterTool(echoTool(), echoHandler))

	args := map[string]interface{}{"name": "echo", "arguments": map[string]string{"text": "hi"}}
	msgs := runSession(t, s, request(1, "tools/call", args), request(2, "tools/call", args))
	require.Len(t, msgs, 2)

	assert.False(t, decodeCall(t, msgs[0]).IsError)
	limited := decodeCall(t, msgs[1])
	assert.True(t, limited.IsError)
	assert.Equal(t, ratelimit.LimitedMessage, limited.Content[0].Text)
	assert.Equal(t, []string{"echo"}, seen, "throttled calls stop before application middleware")

	snap := collector.GetCurrentMetrics()
	assert.Equal(t, 2, snap.TotalRequests)
	assert.Equal(t, 2, snap.ToolCalls)
	assert.Equal(t, 1, snap.FailedTools)
}

func TestCapabilities(t *testing.T) {
	s := newTestServer(t, Options{})
	assert.Equal(t, mcptypes.ServerCapabilities{Logging: &mcptypes.LoggingCapability{}}, s.Capabilities())

	require.NoError(t, s.RegisterResource(mcptypes.Resource{URITemplate: "a://b", Name: "B"},
		func(_ context.Context, _ string, _ map[string]string) ([]mcptypes.ResourceContents, error) {
			return nil, nil
		}))
	caps := s.Capabilities()
	assert.Nil(t, caps.Tools)
	require.NotNil(t, caps.Resources)
	assert.True(t, caps.Resources.Subscribe)
	assert.Nil(t, caps.Prompts)

	require.NoError(t, s.RegisterPrompt(greetPrompt(), greetHandler))
	assert.NotNil(t, s.Capabilities().Prompts)
}

func TestResourceSubscriptions(t *testing.T) {
	s := newTestServer(t, Options{})
	require.NoError(t, s.RegisterResource(mcptypes.Resource{URITemplate: "file:///{path}", Name: "File"},
		func(_ context.Context, uri string, _ map[string]string) ([]mcptypes.ResourceContents, error) {
			return []mcptypes.ResourceContents{{URI: uri, Text: "x"}}, nil
		}))

	uri := func(u string) map[string]string { return map[string]string{"uri": u} }
	msgs := runSession(t, s,
		request(1, "resources/subscribe", uri("file:///a.txt")),
		request(2, "resources/subscribe", uri("file:///b.txt")),
		request(3, "resources/subscribe", uri("http://elsewhere")),
		request(4, "resources/subscribe", map[string]string{}),
		request(5, "resources/unsubscribe", uri("file:///b.txt")),
		request(6, "resources/unsubscribe", uri("file:///never.txt")),
	)
	require.Len(t, msgs, 6)

	assert.JSONEq(t, `{}`, string(msgs[0].Result))
	assert.JSONEq(t, `{}`, string(msgs[1].Result))
	require.NotNil(t, msgs[2].Error)
	assert.Equal(t, int(mcperrors.ErrResourceNotFound), msgs[2].Error.Code)
	require.NotNil(t, msgs[3].Error)
	assert.Equal(t, int(mcperrors.ErrInvalidParams), msgs[3].Error.Code)
	assert.JSONEq(t, `{}`, string(msgs[4].Result))
	assert.JSONEq(t, `{}`, string(msgs[5].Result), "unsubscribing an unknown uri is not an error")

	d := s.Dispatcher()
	assert.True(t, d.IsSubscribed("file:///a.txt"))
	assert.False(t, d.IsSubscribed("file:///b.txt"))
	assert.False(t, d.IsSubscribed("http://elsewhere"))
}

func TestSubscriptionLimit(t *testing.T) {
	subs := newSubscriptions()
	for i := 0; i < maxSubscriptions; i++ {
		require.True(t, subs.add("mem://"+strconv.Itoa(i)))
	}
	assert.False(t, subs.add("mem://overflow"))
	assert.True(t, subs.add("mem://0"), "re-adding a known uri always succeeds")
	subs.remove("mem://0")
	assert.True(t, subs.add("mem://overflow"))
}

func TestSetLogLevel(t *testing.T) {
	prev := logging.GetLevel()
	t.Cleanup(func() { logging.SetLevel(prev) })

	s := newTestServer(t, Options{})
	msgs := runSession(t, s,
		request(1, "logging/setLevel", map[string]string{"level": "critical"}),
		request(2, "logging/setLevel", map[string]string{"level": "loud"}),
		request(3, "logging/setLevel", nil),
	)
	require.Len(t, msgs, 3)

	assert.JSONEq(t, `{}`, string(msgs[0].Result))
	assert.Equal(t, logging.LevelError, logging.GetLevel())
	for _, m := range msgs[1:] {
		require.NotNil(t, m.Error)
		assert.Equal(t, int(mcperrors.ErrInvalidParams), m.Error.Code)
	}
	assert.Equal(t, logging.LevelError, logging.GetLevel(), "rejected levels leave the level unchanged")
	assert.NotNil(t, s.Capabilities().Logging)
}

func TestNotificationToRequestMethodRunsNothing(t *testing.T) {
	var calls atomic.Int32
	s := newTestServer(t, Options{})
	require.NoError(t, s.RegisterTool(mcptypes.Tool{Name: "touch"}, func(context.Context, value.Object) (*mcptypes.CallToolResult, error) {
		calls.Add(1)
		return mcptypes.NewToolResultText("touched"), nil
	}))

	msgs := runSession(t, s,
		`{"jsonrpc":"2.0","method":"tools/call","params":{"name":"touch"}}`,
		request(1, "ping", nil),
	)
	require.Len(t, msgs, 1)
	assert.JSONEq(t, `1`, string(msgs[0].ID))
	assert.Equal(t, int32(0), calls.Load())
}

func TestMetricLabelsStayBounded(t *testing.T) {
	collector := metrics.NewMetricsCollector(4)
	s := newTestServer(t, Options{Metrics: collector})
	require.NoError(t, s.RegisterTool(echoTool(), echoHandler))

	var lines []string
	for i := 0; i < 50; i++ {
		lines = append(lines,
			request(i, "junk/"+strconv.Itoa(i), nil),
			request(i, "tools/call", map[string]string{"name": "ghost" + strconv.Itoa(i)}))
	}
	lines = append(lines, request("ok", "tools/call",
		map[string]interface{}{"name": "echo", "arguments": map[string]string{"text": "hi"}}))
	require.Len(t, runSession(t, s, lines...), 101)

	requests, err := testutil.GatherAndCount(collector.Registry(), "mcpserve_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 3, requests, "unknown/protocol_error, tools/call/protocol_error, tools/call/ok")

	toolCalls, err := testutil.GatherAndCount(collector.Registry(), "mcpserve_tool_calls_total")
	require.NoError(t, err)
	assert.Equal(t, 2, toolCalls, "unknown/protocol_error, echo/ok")
}
