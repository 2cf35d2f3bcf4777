// file: internal/registry/prompts.go
package registry

import (
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/dkoosis/mcpserve/internal/logging"
	mcptypes "github.com/dkoosis/mcpserve/internal/mcp_types"
	"github.com/dkoosis/mcpserve/internal/schema"
)

// PromptEntry is a registered prompt and its handler.
type PromptEntry struct {
	Prompt  mcptypes.Prompt
	Handler mcptypes.PromptHandler
}

// MissingArguments returns the required arguments absent from args, in
// declaration order.
func (e PromptEntry) MissingArguments(args map[string]string) []string {
	var missing []string
	for _, a := range e.Prompt.Arguments {
		if _, ok := args[a.Name]; a.Required && !ok {
			missing = append(missing, a.Name)
		}
	}
	return missing
}

// PromptRegistry maps prompt names to descriptors and handlers. It also
// holds the server's optional argument completer.
type PromptRegistry struct {
	mu        sync.RWMutex
	entries   map[string]PromptEntry
	order     []string
	completer mcptypes.CompletionHandler
	frozen    bool
	logger    logging.Logger
}

// NewPromptRegistry creates an empty registry.
func NewPromptRegistry(logger logging.Logger) *PromptRegistry {
	logger = logging.OrNoop(logger)
	return &PromptRegistry{
		entries: make(map[string]PromptEntry),
		logger:  logger.WithField("component", "prompt_registry"),
	}
}

// Register adds a prompt. It fails with *DuplicateNameError if the name is
// taken, and rejects invalid names, unnamed or repeated arguments and nil
// handlers.
func (r *PromptRegistry) Register(prompt mcptypes.Prompt, handler mcptypes.PromptHandler) error {
	if err := schema.ValidateName(schema.EntityTypePrompt, prompt.Name); err != nil {
		return errors.Wrap(err, "register prompt")
	}
	if handler == nil {
		return errors.Newf("register prompt %q: handler must not be nil", prompt.Name)
	}
	seen := make(map[string]bool, len(prompt.Arguments))
	for _, a := range prompt.Arguments {
		if a.Name == "" || seen[a.Name] {
			return errors.Newf("register prompt %q: argument names must be non-empty and unique", prompt.Name)
		}
		seen[a.Name] = true
	}
	if prompt.Arguments == nil {
		prompt.Arguments = []mcptypes.PromptArgument{}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return errors.Wrapf(ErrRegistryFrozen, "register prompt %q", prompt.Name)
	}
	if _, exists := r.entries[prompt.Name]; exists {
		r.logger.Warn("Attempted to register duplicate prompt.", "prompt", prompt.Name)
		return &DuplicateNameError{Kind: "prompt", Name: prompt.Name}
	}

	r.entries[prompt.Name] = PromptEntry{Prompt: prompt, Handler: handler}
	r.order = append(r.order, prompt.Name)
	r.logger.Debug("Registered prompt.", "prompt", prompt.Name, "arguments", len(prompt.Arguments))
	return nil
}

// SetCompleter installs the handler for completion requests. A nil handler
// removes it.
func (r *PromptRegistry) SetCompleter(h mcptypes.CompletionHandler) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return errors.Wrap(ErrRegistryFrozen, "set completion handler")
	}
	r.completer = h
	return nil
}

// Completer returns the completion handler, or nil if none is set.
func (r *PromptRegistry) Completer() mcptypes.CompletionHandler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.completer
}

// Lookup returns the entry registered under name.
func (r *PromptRegistry) Lookup(name string) (PromptEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[name]
	return entry, ok
}

// List returns the descriptors in registration order.
func (r *PromptRegistry) List() []mcptypes.Prompt {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]mcptypes.Prompt, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.entries[name].Prompt)
	}
	return out
}

// Len returns the number of registered prompts.
func (r *PromptRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Freeze makes the registry read-only.
func (r *PromptRegistry) Freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}
