// Package registry holds the tools, resources and prompts a server exposes.
// The registries are filled during setup and frozen before the server starts
// reading requests; reads are safe for concurrent use.
package registry

// file: internal/registry/tools.go

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/dkoosis/mcpserve/internal/logging"
	mcptypes "github.com/dkoosis/mcpserve/internal/mcp_types"
	"github.com/dkoosis/mcpserve/internal/schema"
	"github.com/dkoosis/mcpserve/internal/value"
)

// ToolEntry is a registered tool and its handler.
type ToolEntry struct {
	Tool    mcptypes.Tool
	Handler mcptypes.ToolHandler
}

// ToolRegistry maps tool names to descriptors and handlers.
type ToolRegistry struct {
	mu        sync.RWMutex
	entries   map[string]ToolEntry
	order     []string
	frozen    bool
	validator *schema.Validator
	logger    logging.Logger
}

// NewToolRegistry creates an empty registry.
func NewToolRegistry(logger logging.Logger) *ToolRegistry {
	logger = logging.OrNoop(logger)
	return &ToolRegistry{
		entries:   make(map[string]ToolEntry),
		validator: schema.NewValidator(logger),
		logger:    logger.WithField("component", "tool_registry"),
	}
}

// Register adds a tool. It fails with *DuplicateNameError if the name is
// taken, and rejects invalid names, nil handlers and unusable schemas.
func (r *ToolRegistry) Register(tool mcptypes.Tool, handler mcptypes.ToolHandler) error {
	if err := schema.ValidateName(schema.EntityTypeTool, tool.Name); err != nil {
		return errors.Wrap(err, "register tool")
	}
	if handler == nil {
		return errors.Newf("register tool %q: handler must not be nil", tool.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return errors.Wrapf(ErrRegistryFrozen, "register tool %q", tool.Name)
	}
	if _, exists := r.entries[tool.Name]; exists {
		r.logger.Warn("Attempted to register duplicate tool.", "tool", tool.Name)
		return &DuplicateNameError{Kind: "tool", Name: tool.Name}
	}
	if err := r.validator.Register(tool.Name, tool.InputSchema); err != nil {
		return errors.Wrapf(err, "register tool %q", tool.Name)
	}

	r.entries[tool.Name] = ToolEntry{Tool: tool, Handler: handler}
	r.order = append(r.order, tool.Name)
	r.logger.Debug("Registered tool.", "tool", tool.Name)
	return nil
}

// Lookup returns the entry registered under name.
func (r *ToolRegistry) Lookup(name string) (ToolEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[name]
	return entry, ok
}

// List returns the descriptors in registration order.
func (r *ToolRegistry) List() []mcptypes.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tools := make([]mcptypes.Tool, 0, len(r.order))
	for _, name := range r.order {
		tools = append(tools, r.entries[name].Tool)
	}
	return tools
}

// Len returns the number of registered tools.
func (r *ToolRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// ValidateArguments checks args against the input schema of the named tool.
// Violations are returned as *schema.SchemaError.
func (r *ToolRegistry) ValidateArguments(ctx context.Context, name string, args value.Value) error {
	return r.validator.Validate(ctx, name, args)
}

// Freeze makes the registry read-only.
func (r *ToolRegistry) Freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}
