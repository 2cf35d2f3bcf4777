// Package mcp implements the server core: it routes decoded JSON-RPC messages
// to the tool and resource registries and runs the stdio message loop.
// file: internal/mcp/dispatcher.go
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/dkoosis/mcpserve/internal/jsonrpc"
	"github.com/dkoosis/mcpserve/internal/logging"
	mcperrors "github.com/dkoosis/mcpserve/internal/mcp/mcp_errors"
	"github.com/dkoosis/mcpserve/internal/mcp/router"
	mcptypes "github.com/dkoosis/mcpserve/internal/mcp_types"
	"github.com/dkoosis/mcpserve/internal/metrics"
	"github.com/dkoosis/mcpserve/internal/registry"
)

// Method names handled by the dispatcher.
const (
	MethodInitialize             = "initialize"
	MethodInitialized            = "notifications/initialized"
	MethodCancelled              = "notifications/cancelled"
	MethodPing                   = "ping"
	MethodToolsList              = "tools/list"
	MethodToolsCall              = "tools/call"
	MethodResourcesList          = "resources/list"
	MethodResourcesTemplatesList = "resources/templates/list"
	MethodResourcesRead          = "resources/read"
	MethodResourcesSubscribe     = "resources/subscribe"
	MethodResourcesUnsubscribe   = "resources/unsubscribe"
	MethodPromptsList            = "prompts/list"
	MethodPromptsGet             = "prompts/get"
	MethodCompletionComplete     = "completion/complete"
	MethodLoggingSetLevel        = "logging/setLevel"

	// MethodResourceUpdated tells a subscribed caller that a resource changed.
	MethodResourceUpdated = "notifications/resources/updated"

	// MethodServerReady is the startup announcement sent before the first read.
	MethodServerReady = "notifications/server/ready"
)

// defaultInputSchema is reported for tools registered without a schema.
var defaultInputSchema = json.RawMessage(`{"type":"object"}`)

// Dispatcher turns decoded requests into responses. It never lets a handler
// fault escape: every request gets exactly one response.
type Dispatcher struct {
	info         mcptypes.Implementation
	instructions string
	pageSize     int

	tools     *registry.ToolRegistry
	resources *registry.ResourceRegistry
	prompts   *registry.PromptRegistry
	subs      *subscriptions
	toolChain *mcptypes.Chain
	router    router.Router
	metrics   *metrics.Collector
	logger    logging.Logger
}

// dispatcherConfig carries what NewServer hands the dispatcher.
type dispatcherConfig struct {
	info         mcptypes.Implementation
	instructions string
	pageSize     int
	tools        *registry.ToolRegistry
	resources    *registry.ResourceRegistry
	prompts      *registry.PromptRegistry
	toolChain    *mcptypes.Chain
	metrics      *metrics.Collector
	logger       logging.Logger
}

func newDispatcher(cfg dispatcherConfig) *Dispatcher {
	if cfg.pageSize <= 0 {
		cfg.pageSize = 50
	}
	if cfg.toolChain == nil {
		cfg.toolChain = mcptypes.NewChain()
	}
	if cfg.prompts == nil {
		cfg.prompts = registry.NewPromptRegistry(cfg.logger)
	}
	d := &Dispatcher{
		info:         cfg.info,
		instructions: cfg.instructions,
		pageSize:     cfg.pageSize,
		tools:        cfg.tools,
		resources:    cfg.resources,
		prompts:      cfg.prompts,
		subs:         newSubscriptions(),
		toolChain:    cfg.toolChain,
		metrics:      cfg.metrics,
		logger:       cfg.logger.WithField("component", "dispatcher"),
		router:       router.NewRouter(cfg.logger),
	}
	d.registerRoutes()
	return d
}

func (d *Dispatcher) registerRoutes() {
	routes := []router.Route{
		{Method: MethodInitialize, Handler: d.handleInitialize},
		{Method: MethodInitialized, NotificationHandler: d.handleInitialized},
		{Method: MethodCancelled, NotificationHandler: d.handleCancelled},
		{Method: MethodPing, Handler: d.handlePing},
		{Method: MethodToolsList, Handler: d.handleToolsList},
		{Method: MethodToolsCall, Handler: d.handleToolCall},
		{Method: MethodResourcesList, Handler: d.handleResourcesList},
		{Method: MethodResourcesTemplatesList, Handler: d.handleResourceTemplatesList},
		{Method: MethodResourcesRead, Handler: d.handleResourceRead},
		{Method: MethodResourcesSubscribe, Handler: d.handleResourceSubscribe},
		{Method: MethodResourcesUnsubscribe, Handler: d.handleResourceUnsubscribe},
		{Method: MethodPromptsList, Handler: d.handlePromptsList},
		{Method: MethodPromptsGet, Handler: d.handlePromptGet},
		{Method: MethodCompletionComplete, Handler: d.handleComplete},
		{Method: MethodLoggingSetLevel, Handler: d.handleSetLevel},
	}
	for _, route := range routes {
		if err := d.router.AddRoute(route); err != nil {
			panic(fmt.Sprintf("mcp: invalid built-in route %q: %v", route.Method, err))
		}
	}
}

// Capabilities reports what the server offers, derived from the registries.
// Log level control is always offered.
func (d *Dispatcher) Capabilities() mcptypes.ServerCapabilities {
	caps := mcptypes.ServerCapabilities{Logging: &mcptypes.LoggingCapability{}}
	if d.tools.Len() > 0 {
		caps.Tools = &mcptypes.ToolsCapability{}
	}
	if d.resources.Len() > 0 {
		caps.Resources = &mcptypes.ResourcesCapability{Subscribe: true}
	}
	if d.prompts.Len() > 0 {
		caps.Prompts = &mcptypes.PromptsCapability{}
	}
	if d.prompts.Completer() != nil {
		caps.Completions = &mcptypes.CompletionsCapability{}
	}
	return caps
}

// Dispatch handles one decoded message. It returns nil for notifications and
// for responses sent by the peer, which are never answered.
func (d *Dispatcher) Dispatch(ctx context.Context, msg *jsonrpc.Message) *jsonrpc.Response {
	switch {
	case msg.IsResponse():
		d.logger.Debug("Ignoring response message from peer.", "id", msg.IDString())
		return nil
	case msg.IsNotification():
		d.dispatchNotification(ctx, msg)
		return nil
	}

	ctx = logging.ContextWithRequestID(ctx, msg.IDString())
	log := d.logger.WithContext(ctx)
	start := time.Now()

	result, err := d.route(ctx, msg)

	outcome := metrics.OutcomeOK
	var resp *jsonrpc.Response
	if err == nil {
		resp, err = jsonrpc.NewResponse(msg.ID, result)
		if err != nil {
			log.Error("Failed to encode result.", "method", msg.Method, "error", fmt.Sprintf("%+v", err))
			err = mcperrors.NewInternalError("Internal error", err, nil)
		}
	}
	if err != nil {
		outcome = metrics.OutcomeProtocolError
		resp = d.errorResponse(ctx, msg.ID, msg.Method, err)
	}

	d.metrics.RecordRequest(d.methodLabel(msg.Method), outcome, time.Since(start))
	log.Debug("Request handled.", "method", msg.Method, "outcome", outcome, "duration", time.Since(start))
	return resp
}

// methodLabel is the metrics label for method.
func (d *Dispatcher) methodLabel(method string) string {
	if d.router.HasRoute(method) {
		return method
	}
	return metrics.UnknownLabel
}

// route runs the router and converts a panic into an internal error.
func (d *Dispatcher) route(ctx context.Context, msg *jsonrpc.Message) (result interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = mcperrors.NewInternalError("Internal error", newPanicError(r), map[string]interface{}{"method": msg.Method})
		}
	}()
	return d.router.Route(ctx, msg.Method, msg.Params, false)
}

func (d *Dispatcher) dispatchNotification(ctx context.Context, msg *jsonrpc.Message) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("Notification handler panicked.", "method", msg.Method, "error", fmt.Sprintf("%+v", newPanicError(r)))
		}
	}()
	if _, err := d.router.Route(ctx, msg.Method, msg.Params, true); err != nil {
		d.logger.Debug("Notification not handled.", "method", msg.Method, "error", err)
	}
}

// errorResponse builds the response for a request that failed with err. Only
// protocol errors carry their own message; anything else is reported as a
// generic internal error.
func (d *Dispatcher) errorResponse(ctx context.Context, id json.RawMessage, method string, err error) *jsonrpc.Response {
	code, message, data := mcperrors.MapToJSONRPC(err)
	log := d.logger.WithContext(ctx)
	if code == int(mcperrors.ErrInternalError) {
		log.Error("Request failed.", "method", method, "code", code, "error", fmt.Sprintf("%+v", err))
		d.metrics.RecordError("dispatcher", message)
	} else {
		log.Debug("Request rejected.", "method", method, "code", code, "message", message)
	}
	return jsonrpc.NewErrorResponse(id, code, message, data)
}

// --- Lifecycle ---.

func (d *Dispatcher) handleInitialize(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var req struct {
		ProtocolVersion string                  `json:"protocolVersion"`
		ClientInfo      mcptypes.Implementation `json:"clientInfo"`
	}
	if err := parseParams(params, &req); err != nil {
		return nil, err
	}
	d.logger.WithContext(ctx).Info("Client initializing.",
		"clientName", req.ClientInfo.Name,
		"clientVersion", req.ClientInfo.Version,
		"requestedProtocolVersion", req.ProtocolVersion)

	return mcptypes.InitializeResult{
		ProtocolVersion: mcptypes.ProtocolVersion,
		ServerInfo:      d.info,
		Capabilities:    d.Capabilities(),
		Instructions:    d.instructions,
	}, nil
}

func (d *Dispatcher) handleInitialized(_ context.Context, _ json.RawMessage) error {
	d.logger.Info("Client reported initialization complete.")
	return nil
}

func (d *Dispatcher) handleCancelled(_ context.Context, params json.RawMessage) error {
	d.logger.Debug("Ignoring cancellation notice; requests are handled sequentially.", "params", string(params))
	return nil
}

func (d *Dispatcher) handlePing(_ context.Context, _ json.RawMessage) (interface{}, error) {
	return struct{}{}, nil
}

// handleSetLevel changes the level of the process's structured logs.
func (d *Dispatcher) handleSetLevel(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var req mcptypes.SetLevelParams
	if err := parseParams(params, &req); err != nil {
		return nil, err
	}
	lvl, ok := logging.ParseProtocolLevel(req.Level)
	if !ok {
		return nil, mcperrors.NewInvalidParamsError(fmt.Sprintf("Invalid log level: %q", req.Level), nil, nil)
	}
	logging.SetLevel(lvl)
	d.logger.WithContext(ctx).Info("Log level changed by client.", "requested", req.Level, "level", lvl.String())
	return struct{}{}, nil
}

// --- Listing ---.

func (d *Dispatcher) handleToolsList(_ context.Context, params json.RawMessage) (interface{}, error) {
	var req mcptypes.PaginatedParams
	if err := parseParams(params, &req); err != nil {
		return nil, err
	}
	tools, next, err := paginate(d.tools.List(), req.Cursor, d.pageSize)
	if err != nil {
		return nil, err
	}
	for i := range tools {
		if len(tools[i].InputSchema) == 0 {
			tools[i].InputSchema = defaultInputSchema
		}
	}
	return mcptypes.ListToolsResult{Tools: tools, NextCursor: next}, nil
}

func (d *Dispatcher) handleResourcesList(_ context.Context, params json.RawMessage) (interface{}, error) {
	var req mcptypes.PaginatedParams
	if err := parseParams(params, &req); err != nil {
		return nil, err
	}
	page, next, err := paginate(d.resources.Concrete(), req.Cursor, d.pageSize)
	if err != nil {
		return nil, err
	}
	listed := make([]mcptypes.ListedResource, 0, len(page))
	for _, r := range page {
		listed = append(listed, mcptypes.ListedResource{
			URI:         r.URITemplate,
			Name:        r.Name,
			Description: r.Description,
			MimeType:    r.MimeType,
		})
	}
	return mcptypes.ListResourcesResult{Resources: listed, NextCursor: next}, nil
}

func (d *Dispatcher) handleResourceTemplatesList(_ context.Context, params json.RawMessage) (interface{}, error) {
	var req mcptypes.PaginatedParams
	if err := parseParams(params, &req); err != nil {
		return nil, err
	}
	page, next, err := paginate(d.resources.Templates(), req.Cursor, d.pageSize)
	if err != nil {
		return nil, err
	}
	listed := make([]mcptypes.ListedTemplate, 0, len(page))
	for _, r := range page {
		listed = append(listed, mcptypes.ListedTemplate{
			URITemplate: r.URITemplate,
			Name:        r.Name,
			Description: r.Description,
			MimeType:    r.MimeType,
		})
	}
	return mcptypes.ListResourceTemplatesResult{ResourceTemplates: listed, NextCursor: next}, nil
}

// paginate returns the page of items starting at cursor, a decimal offset.
// next is empty when no items remain after the page.
func paginate[T any](items []T, cursor string, size int) (page []T, next string, err error) {
	offset := 0
	if cursor != "" {
		offset, err = strconv.Atoi(cursor)
		if err != nil || offset < 0 || offset > len(items) {
			return nil, "", mcperrors.NewInvalidParamsError("Invalid cursor: "+cursor, err, nil)
		}
	}
	end := offset + size
	if end >= len(items) {
		end = len(items)
	} else {
		next = strconv.Itoa(end)
	}
	page = make([]T, end-offset)
	copy(page, items[offset:end])
	return page, next, nil
}

// parseParams decodes params into dst; absent or null params leave dst untouched.
func parseParams(params json.RawMessage, dst interface{}) error {
	msg := jsonrpc.Message{Params: params}
	if err := msg.ParseParams(dst); err != nil {
		return mcperrors.NewInvalidParamsError("Invalid params", err, nil)
	}
	return nil
}
