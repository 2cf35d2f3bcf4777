// file: internal/registry/resources.go
package registry

import (
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/dkoosis/mcpserve/internal/logging"
	mcptypes "github.com/dkoosis/mcpserve/internal/mcp_types"
	"github.com/dkoosis/mcpserve/internal/schema"
)

// ResourceEntry is a registered resource and its handler.
type ResourceEntry struct {
	Resource mcptypes.Resource
	Handler  mcptypes.ResourceHandler

	template *uriTemplate
}

// IsTemplate reports whether the entry's URI template has placeholders.
func (e ResourceEntry) IsTemplate() bool {
	return e.template != nil && !e.template.isConcrete()
}

// Variables returns the placeholder names in template order.
func (e ResourceEntry) Variables() []string {
	if e.template == nil {
		return nil
	}
	return append([]string(nil), e.template.vars...)
}

// ResourceMatch is the outcome of a successful Resolve.
type ResourceMatch struct {
	ResourceEntry
	URI  string
	Vars map[string]string
}

// ResourceRegistry maps URI templates to descriptors and handlers.
//
// Resolve tries entries in registration order and the first match wins, so a
// concrete URI registered after a template that also covers it is shadowed.
type ResourceRegistry struct {
	mu      sync.RWMutex
	entries []ResourceEntry
	index   map[string]int
	frozen  bool
	logger  logging.Logger
}

// NewResourceRegistry creates an empty registry.
func NewResourceRegistry(logger logging.Logger) *ResourceRegistry {
	logger = logging.OrNoop(logger)
	return &ResourceRegistry{
		index:  make(map[string]int),
		logger: logger.WithField("component", "resource_registry"),
	}
}

// Register adds a resource keyed on its URI template. It fails with
// *DuplicateNameError if the template is taken, and rejects malformed templates.
func (r *ResourceRegistry) Register(resource mcptypes.Resource, handler mcptypes.ResourceHandler) error {
	if handler == nil {
		return errors.Newf("register resource %q: handler must not be nil", resource.URITemplate)
	}
	if err := schema.ValidateName(schema.EntityTypeResource, resource.Name); err != nil {
		return errors.Wrapf(err, "register resource %q", resource.URITemplate)
	}
	tmpl, err := parseTemplate(resource.URITemplate)
	if err != nil {
		return errors.Wrap(err, "register resource")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return errors.Wrapf(ErrRegistryFrozen, "register resource %q", resource.URITemplate)
	}
	if _, exists := r.index[resource.URITemplate]; exists {
		r.logger.Warn("Attempted to register duplicate resource.", "uriTemplate", resource.URITemplate)
		return &DuplicateNameError{Kind: "resource", Name: resource.URITemplate}
	}

	r.index[resource.URITemplate] = len(r.entries)
	r.entries = append(r.entries, ResourceEntry{Resource: resource, Handler: handler, template: tmpl})
	r.logger.Debug("Registered resource.", "uriTemplate", resource.URITemplate, "variables", tmpl.vars)
	return nil
}

// Resolve finds the resource that serves uri and binds its placeholders.
func (r *ResourceRegistry) Resolve(uri string) (ResourceMatch, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, entry := range r.entries {
		if vars, ok := entry.template.match(uri); ok {
			return ResourceMatch{ResourceEntry: entry, URI: uri, Vars: vars}, true
		}
	}
	return ResourceMatch{}, false
}

// List returns every descriptor in registration order.
func (r *ResourceRegistry) List() []mcptypes.Resource {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]mcptypes.Resource, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.Resource)
	}
	return out
}

// Concrete returns the descriptors without placeholders, in registration order.
func (r *ResourceRegistry) Concrete() []mcptypes.Resource {
	return r.filter(false)
}

// Templates returns the descriptors with placeholders, in registration order.
func (r *ResourceRegistry) Templates() []mcptypes.Resource {
	return r.filter(true)
}

func (r *ResourceRegistry) filter(templated bool) []mcptypes.Resource {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]mcptypes.Resource, 0, len(r.entries))
	for _, e := range r.entries {
		if e.IsTemplate() == templated {
			out = append(out, e.Resource)
		}
	}
	return out
}

// Len returns the number of registered resources.
func (r *ResourceRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Freeze makes the registry read-only.
func (r *ResourceRegistry) Freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}
