// file: internal/mcp/handlers_resources.go
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	mcperrors "github.com/dkoosis/mcpserve/internal/mcp/mcp_errors"
	mcptypes "github.com/dkoosis/mcpserve/internal/mcp_types"
	"github.com/dkoosis/mcpserve/internal/metrics"
	"github.com/dkoosis/mcpserve/internal/registry"
)

const resourceFaultMessage = "Internal error while reading resource"

func (d *Dispatcher) handleResourceRead(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var req mcptypes.ReadResourceParams
	if err := parseParams(params, &req); err != nil {
		return nil, err
	}
	if req.URI == "" {
		return nil, mcperrors.NewInvalidParamsError("Invalid params: missing uri", nil, nil)
	}
	log := d.logger.WithContext(ctx).WithField("uri", req.URI)

	match, ok := d.resources.Resolve(req.URI)
	if !ok {
		log.Warn("No resource matches URI.")
		return nil, mcperrors.NewResourceNotFoundError(req.URI)
	}

	start := time.Now()
	contents, err := readResource(ctx, match)
	if err != nil {
		d.metrics.RecordResourceRead(match.Resource.URITemplate, metrics.OutcomeFault)
		if _, isProtocol := mcperrors.AsBaseError(err); isProtocol {
			log.Info("Resource read failed.", "template", match.Resource.URITemplate, "error", err)
			return nil, err
		}
		if pe, isPanic := err.(*panicError); isPanic {
			return nil, mcperrors.NewInternalError(resourceFaultMessage, pe, map[string]interface{}{"uri": req.URI})
		}
		log.Info("Resource handler returned an error.", "template", match.Resource.URITemplate, "error", err)
		return nil, mcperrors.NewResourceError(0, err.Error(), err, map[string]interface{}{"uri": req.URI})
	}

	for i := range contents {
		if contents[i].URI == "" {
			contents[i].URI = req.URI
		}
	}
	if contents == nil {
		contents = []mcptypes.ResourceContents{}
	}
	d.metrics.RecordResourceRead(match.Resource.URITemplate, metrics.OutcomeOK)
	log.Info("Resource read completed.", "template", match.Resource.URITemplate, "items", len(contents), "duration", time.Since(start))
	return mcptypes.ReadResourceResult{Contents: contents}, nil
}

// readResource calls the handler, converting a panic into *panicError.
func readResource(ctx context.Context, match registry.ResourceMatch) ([]mcptypes.ResourceContents, error) {
	return callGuarded(func() ([]mcptypes.ResourceContents, error) {
		return match.Handler(ctx, match.URI, match.Vars)
	})
}

// maxSubscriptions bounds the subscription set of one server.
const maxSubscriptions = 1024

// subscriptions is the set of resource URIs the caller asked to hear about.
type subscriptions struct {
	mu   sync.RWMutex
	uris map[string]struct{}
}

func newSubscriptions() *subscriptions {
	return &subscriptions{uris: make(map[string]struct{})}
}

// add records uri and reports false when the set is full.
func (s *subscriptions) add(uri string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.uris[uri]; ok {
		return true
	}
	if len(s.uris) >= maxSubscriptions {
		return false
	}
	s.uris[uri] = struct{}{}
	return true
}

func (s *subscriptions) remove(uri string) {
	s.mu.Lock()
	delete(s.uris, uri)
	s.mu.Unlock()
}

func (s *subscriptions) has(uri string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.uris[uri]
	return ok
}

// handleResourceSubscribe records interest in a URI that some registered
// resource serves.
func (d *Dispatcher) handleResourceSubscribe(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var req mcptypes.SubscribeParams
	if err := parseParams(params, &req); err != nil {
		return nil, err
	}
	if req.URI == "" {
		return nil, mcperrors.NewInvalidParamsError("Invalid params: missing uri", nil, nil)
	}
	if _, ok := d.resources.Resolve(req.URI); !ok {
		return nil, mcperrors.NewResourceNotFoundError(req.URI)
	}
	if !d.subs.add(req.URI) {
		return nil, mcperrors.NewInvalidParamsError(
			fmt.Sprintf("Subscription limit of %d reached", maxSubscriptions), nil, map[string]interface{}{"uri": req.URI})
	}
	d.logger.WithContext(ctx).Debug("Resource subscribed.", "uri", req.URI)
	return struct{}{}, nil
}

// handleResourceUnsubscribe forgets a URI. Unknown URIs are not an error.
func (d *Dispatcher) handleResourceUnsubscribe(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var req mcptypes.SubscribeParams
	if err := parseParams(params, &req); err != nil {
		return nil, err
	}
	if req.URI == "" {
		return nil, mcperrors.NewInvalidParamsError("Invalid params: missing uri", nil, nil)
	}
	d.subs.remove(req.URI)
	d.logger.WithContext(ctx).Debug("Resource unsubscribed.", "uri", req.URI)
	return struct{}{}, nil
}

// IsSubscribed reports whether the caller subscribed to uri.
func (d *Dispatcher) IsSubscribed(uri string) bool {
	return d.subs.has(uri)
}
