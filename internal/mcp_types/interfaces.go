// file: internal/mcp_types/interfaces.go
package mcptypes

import (
	"context"

	"github.com/dkoosis/mcpserve/internal/value"
)

// ToolHandler executes a tool with arguments that already passed schema
// validation. A non-nil result with IsError set is a reported domain failure.
// Returning a *ToolError is an explicit domain failure too; any other error is
// treated as an internal fault.
type ToolHandler func(ctx context.Context, args value.Object) (*CallToolResult, error)

// ResourceHandler reads the resource named by uri. vars holds the values bound
// to the template's placeholders.
type ResourceHandler func(ctx context.Context, uri string, vars map[string]string) ([]ResourceContents, error)

// ToolMiddleware wraps a ToolHandler with a cross-cutting policy.
type ToolMiddleware func(next ToolHandler) ToolHandler

// Chain composes tool middleware around a final handler.
type Chain struct {
	middlewares []ToolMiddleware
}

// NewChain returns a chain applying middlewares outermost first.
func NewChain(middlewares ...ToolMiddleware) *Chain {
	return &Chain{middlewares: middlewares}
}

// Use appends a middleware; it runs inside the ones added before it.
func (c *Chain) Use(m ToolMiddleware) *Chain {
	c.middlewares = append(c.middlewares, m)
	return c
}

// Then wraps final with every middleware in the chain.
func (c *Chain) Then(final ToolHandler) ToolHandler {
	h := final
	for i := len(c.middlewares) - 1; i >= 0; i-- {
		h = c.middlewares[i](h)
	}
	return h
}

// ToolError is an explicit domain failure returned by a tool handler. Its
// message is shown to the caller as an error result.
type ToolError struct {
	Message string
}

// Error implements the error interface.
func (e *ToolError) Error() string {
	return e.Message
}

// NewToolError returns a ToolError with the given message.
func NewToolError(message string) *ToolError {
	return &ToolError{Message: message}
}

type toolNameKey struct{}

// ContextWithToolName records the name of the tool being called.
func ContextWithToolName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, toolNameKey{}, name)
}

// ToolNameFromContext returns the tool name set by ContextWithToolName.
func ToolNameFromContext(ctx context.Context) string {
	name, _ := ctx.Value(toolNameKey{}).(string)
	return name
}
