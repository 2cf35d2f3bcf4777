// Package router maps JSON-RPC method names to handler functions.
// file: internal/mcp/router/router.go
package router

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/dkoosis/mcpserve/internal/logging"
	mcperrors "github.com/dkoosis/mcpserve/internal/mcp/mcp_errors"
)

// Handler handles a request and returns a value to be encoded as the result.
type Handler func(ctx context.Context, params json.RawMessage) (interface{}, error)

// NotificationHandler handles a notification; no response is ever sent.
type NotificationHandler func(ctx context.Context, params json.RawMessage) error

// Route binds a method name to its handlers. A method may accept requests,
// notifications, or both.
type Route struct {
	Method              string
	Handler             Handler
	NotificationHandler NotificationHandler
}

// Router dispatches a method call to the registered route.
type Router interface {
	AddRoute(route Route) error
	Route(ctx context.Context, method string, params json.RawMessage, isNotification bool) (interface{}, error)
	HasRoute(method string) bool
	GetRoutes() []string
}

type router struct {
	routes map[string]Route
	mu     sync.RWMutex
	logger logging.Logger
}

// NewRouter creates a new Router instance.
func NewRouter(logger logging.Logger) Router {
	logger = logging.OrNoop(logger)
	return &router{
		routes: make(map[string]Route),
		logger: logger.WithField("component", "mcp_router"),
	}
}

// AddRoute registers a new route. Returns an error if the method is already registered.
func (r *router) AddRoute(route Route) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if route.Method == "" {
		return errors.New("cannot register route with empty method name")
	}
	if route.Handler == nil && route.NotificationHandler == nil {
		return errors.Newf("route for method '%s' must have a Handler or a NotificationHandler", route.Method)
	}
	if _, exists := r.routes[route.Method]; exists {
		r.logger.Warn("Attempted to register duplicate route.", "method", route.Method)
		return errors.Newf("route for method '%s' already registered", route.Method)
	}

	r.routes[route.Method] = route
	r.logger.Debug("Registered route.", "method", route.Method)
	return nil
}

// Route executes the handler for method. Unknown methods yield a
// MethodNotFound protocol error. A notification for a method that only takes
// requests is dropped without running anything.
func (r *router) Route(ctx context.Context, method string, params json.RawMessage, isNotification bool) (interface{}, error) {
	r.mu.RLock()
	route, exists := r.routes[method]
	r.mu.RUnlock()

	if !exists {
		return nil, mcperrors.NewMethodNotFoundError(method)
	}

	if isNotification {
		if route.NotificationHandler == nil {
			r.logger.Debug("Dropping notification sent to a request-only method.", "method", method)
			return nil, nil
		}
		return nil, route.NotificationHandler(ctx, params)
	}

	if route.Handler == nil {
		return nil, mcperrors.NewMethodNotFoundError(method)
	}
	return route.Handler(ctx, params)
}

// HasRoute reports whether method is registered.
func (r *router) HasRoute(method string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.routes[method]
	return ok
}

// GetRoutes returns the registered method names, sorted.
func (r *router) GetRoutes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	methods := make([]string, 0, len(r.routes))
	for method := range r.routes {
		methods = append(methods, method)
	}
	sort.Strings(methods)
	return methods
}
