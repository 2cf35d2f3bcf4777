// file: internal/mcp/handlers_tools.go
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/cockroachdb/errors"
	mcperrors "github.com/dkoosis/mcpserve/internal/mcp/mcp_errors"
	mcptypes "github.com/dkoosis/mcpserve/internal/mcp_types"
	"github.com/dkoosis/mcpserve/internal/metrics"
	"github.com/dkoosis/mcpserve/internal/ratelimit"
	"github.com/dkoosis/mcpserve/internal/schema"
	"github.com/dkoosis/mcpserve/internal/value"
)

// Texts of the error results produced by the dispatcher itself.
const (
	toolFaultMessage      = "Internal error while executing tool"
	invalidArgumentsLabel = "Invalid arguments: "
)

// errToolTimeout is returned when a tool exceeds the configured timeout.
var errToolTimeout = errors.New("tool call timed out")

// panicError carries a recovered panic and the stack where it happened.
type panicError struct {
	value interface{}
	stack []byte
}

func newPanicError(v interface{}) *panicError {
	return &panicError{value: v, stack: debug.Stack()}
}

func (e *panicError) Error() string {
	return fmt.Sprintf("panic: %v", e.value)
}

// Format prints the stack with %+v.
func (e *panicError) Format(s fmt.State, verb rune) {
	if verb == 'v' && s.Flag('+') {
		fmt.Fprintf(s, "panic: %v\n%s", e.value, e.stack)
		return
	}
	fmt.Fprint(s, e.Error())
}

// recoverMiddleware turns a handler panic into an error.
func recoverMiddleware(next mcptypes.ToolHandler) mcptypes.ToolHandler {
	return func(ctx context.Context, args value.Object) (res *mcptypes.CallToolResult, err error) {
		defer func() {
			if r := recover(); r != nil {
				res, err = nil, newPanicError(r)
			}
		}()
		return next(ctx, args)
	}
}

// timeoutMiddleware bounds a tool call. The handler keeps running in the
// background after a timeout, but its context is cancelled and its result is
// discarded.
func timeoutMiddleware(timeout time.Duration) mcptypes.ToolMiddleware {
	return func(next mcptypes.ToolHandler) mcptypes.ToolHandler {
		if timeout <= 0 {
			return next
		}
		return func(ctx context.Context, args value.Object) (*mcptypes.CallToolResult, error) {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			type outcome struct {
				res *mcptypes.CallToolResult
				err error
			}
			done := make(chan outcome, 1)
			go func() {
				res, err := recoverMiddleware(next)(ctx, args)
				done <- outcome{res, err}
			}()

			select {
			case o := <-done:
				return o.res, o.err
			case <-ctx.Done():
				return nil, errors.Wrapf(errToolTimeout, "after %s: %v", timeout, ctx.Err())
			}
		}
	}
}

// buildToolChain assembles the policies every tool call passes through,
// outermost first: rate limit, application middleware, timeout, recover.
func buildToolChain(limiter *ratelimit.Limiter, timeout time.Duration, extra []mcptypes.ToolMiddleware) *mcptypes.Chain {
	chain := mcptypes.NewChain(limiter.Middleware())
	for _, m := range extra {
		chain.Use(m)
	}
	return chain.Use(timeoutMiddleware(timeout)).Use(recoverMiddleware)
}

func (d *Dispatcher) handleToolCall(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var req mcptypes.CallToolParams
	if err := parseParams(params, &req); err != nil {
		return nil, err
	}
	if req.Name == "" {
		return nil, mcperrors.NewInvalidParamsError("Invalid params: missing tool name", nil, nil)
	}
	log := d.logger.WithContext(ctx).WithField("tool", req.Name)

	entry, ok := d.tools.Lookup(req.Name)
	if !ok {
		log.Warn("Call to unknown tool.")
		d.metrics.RecordToolCall(metrics.UnknownLabel, metrics.OutcomeProtocolError)
		return nil, mcperrors.NewUnknownToolError(req.Name)
	}

	args, err := decodeArguments(req.Arguments)
	if err != nil {
		return nil, mcperrors.NewInvalidParamsError("Invalid params: arguments are not valid JSON", err, nil)
	}
	if err := d.tools.ValidateArguments(ctx, req.Name, args); err != nil {
		var schemaErr *schema.SchemaError
		if errors.As(err, &schemaErr) {
			log.Info("Tool arguments rejected.", "field", schemaErr.Field, "reason", schemaErr.Reason)
			d.metrics.RecordToolCall(req.Name, metrics.OutcomeToolError)
			return mcptypes.NewToolResultError(invalidArgumentsLabel + schemaErr.Error()), nil
		}
		return nil, errors.Wrapf(err, "validating arguments of tool %q", req.Name)
	}
	obj, _ := args.AsObject()

	start := time.Now()
	handler := d.toolChain.Then(entry.Handler)
	res, err := handler(mcptypes.ContextWithToolName(ctx, req.Name), obj)
	res, outcome := d.toolOutcome(ctx, req.Name, res, err)
	d.metrics.RecordToolCall(req.Name, outcome)
	log.Info("Tool call completed.", "outcome", outcome, "duration", time.Since(start))
	return res, nil
}

// toolOutcome maps a handler's return values to the result sent to the
// caller. Only ToolError messages reach the caller; other failures are logged
// and replaced by a generic message.
func (d *Dispatcher) toolOutcome(ctx context.Context, name string, res *mcptypes.CallToolResult, err error) (*mcptypes.CallToolResult, string) {
	if err == nil {
		if res == nil {
			res = &mcptypes.CallToolResult{}
		}
		if res.Content == nil {
			res.Content = []mcptypes.Content{}
		}
		if res.IsError {
			return res, metrics.OutcomeToolError
		}
		return res, metrics.OutcomeOK
	}

	var toolErr *mcptypes.ToolError
	switch {
	case errors.As(err, &toolErr):
		return mcptypes.NewToolResultError(toolErr.Message), metrics.OutcomeToolError
	case errors.Is(err, ratelimit.ErrRateLimited):
		d.logger.WithContext(ctx).Warn("Tool call rate limited.", "tool", name)
		return mcptypes.NewToolResultError(ratelimit.LimitedMessage), metrics.OutcomeRateLimited
	default:
		d.logger.WithContext(ctx).Error("Tool handler failed.", "tool", name, "error", fmt.Sprintf("%+v", err))
		d.metrics.RecordError("tool:"+name, err.Error())
		return mcptypes.NewToolResultError(toolFaultMessage), metrics.OutcomeFault
	}
}

// decodeArguments parses the raw arguments. Absent or null arguments are an
// empty object.
func decodeArguments(raw json.RawMessage) (value.Value, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return value.FromObject(value.Object{}), nil
	}
	return value.Parse(raw)
}
