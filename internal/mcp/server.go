// file: internal/mcp/server.go
package mcp

import (
	"context"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dkoosis/mcpserve/internal/config"
	"github.com/dkoosis/mcpserve/internal/jsonrpc"
	"github.com/dkoosis/mcpserve/internal/logging"
	mcptypes "github.com/dkoosis/mcpserve/internal/mcp_types"
	"github.com/dkoosis/mcpserve/internal/metrics"
	"github.com/dkoosis/mcpserve/internal/ratelimit"
	"github.com/dkoosis/mcpserve/internal/registry"
	"github.com/dkoosis/mcpserve/internal/transport"
)

// ErrAlreadyServing is returned by Serve when the server is already running.
var ErrAlreadyServing = errors.New("server is already serving")

// Options configures a Server.
type Options struct {
	// Name and Version identify the server to the caller.
	Name    string
	Version string
	// Instructions is optional guidance for the caller, sent with initialize
	// and the ready announcement.
	Instructions string

	// PageSize bounds list results. Zero means 50.
	PageSize int
	// ToolTimeout bounds a tool call. Zero disables the timeout.
	ToolTimeout time.Duration
	// Announce sends a ready notification before the first read.
	Announce bool
	// MaxMessageSize bounds one incoming message. Zero means 1 MiB.
	MaxMessageSize int

	RateLimit ratelimit.Config
	// ToolMiddleware wraps every tool handler, after rate limiting.
	ToolMiddleware []mcptypes.ToolMiddleware
	// Metrics receives request statistics. May be nil.
	Metrics *metrics.Collector
	Logger  logging.Logger
}

// OptionsFromConfig maps application configuration onto server options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Name:           cfg.Server.Name,
		Version:        cfg.Server.Version,
		Instructions:   cfg.Server.Instructions,
		PageSize:       cfg.Server.PageSize,
		ToolTimeout:    cfg.Server.ToolTimeout,
		Announce:       cfg.Server.Announce,
		MaxMessageSize: cfg.Transport.MaxMessageSize,
		RateLimit: ratelimit.Config{
			Enabled:           cfg.RateLimit.Enabled,
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		},
	}
}

// Server exposes registered tools, resources and prompts over a message stream.
// Register everything first, then call Serve; registration fails once
// serving has started.
type Server struct {
	opts       Options
	tools      *registry.ToolRegistry
	resources  *registry.ResourceRegistry
	prompts    *registry.PromptRegistry
	dispatcher *Dispatcher
	logger     logging.Logger

	serveMu sync.Mutex
	active  atomic.Pointer[loop]
}

// NewServer creates a server with empty registries.
func NewServer(opts Options) *Server {
	logger := logging.OrNoop(opts.Logger)
	if opts.MaxMessageSize <= 0 {
		opts.MaxMessageSize = transport.DefaultMaxMessageSize
	}

	tools := registry.NewToolRegistry(logger)
	resources := registry.NewResourceRegistry(logger)
	prompts := registry.NewPromptRegistry(logger)
	s := &Server{
		opts:      opts,
		tools:     tools,
		resources: resources,
		prompts:   prompts,
		logger:    logger.WithField("component", "mcp_server"),
	}
	s.dispatcher = newDispatcher(dispatcherConfig{
		info:         mcptypes.Implementation{Name: opts.Name, Version: opts.Version},
		instructions: opts.Instructions,
		pageSize:     opts.PageSize,
		tools:        tools,
		resources:    resources,
		prompts:      prompts,
		toolChain:    buildToolChain(ratelimit.New(opts.RateLimit), opts.ToolTimeout, opts.ToolMiddleware),
		metrics:      opts.Metrics,
		logger:       logger,
	})
	return s
}

// RegisterTool adds a tool. Names must be unique.
func (s *Server) RegisterTool(tool mcptypes.Tool, handler mcptypes.ToolHandler) error {
	return s.tools.Register(tool, handler)
}

// RegisterResource adds a resource or resource template. Templates must be unique.
func (s *Server) RegisterResource(resource mcptypes.Resource, handler mcptypes.ResourceHandler) error {
	return s.resources.Register(resource, handler)
}

// RegisterPrompt adds a prompt. Names must be unique.
func (s *Server) RegisterPrompt(prompt mcptypes.Prompt, handler mcptypes.PromptHandler) error {
	return s.prompts.Register(prompt, handler)
}

// SetCompletionHandler installs the handler for completion/complete. Without
// one the method answers MethodNotFound.
func (s *Server) SetCompletionHandler(h mcptypes.CompletionHandler) error {
	return s.prompts.SetCompleter(h)
}

// Prompts returns the registered prompt descriptors in registration order.
func (s *Server) Prompts() []mcptypes.Prompt {
	return s.prompts.List()
}

// NotifyResourceUpdated tells the caller that uri changed, if the caller
// subscribed to it and the server is serving. It is safe to call from any
// goroutine.
func (s *Server) NotifyResourceUpdated(ctx context.Context, uri string) error {
	l := s.active.Load()
	if l == nil || !s.dispatcher.IsSubscribed(uri) {
		return nil
	}
	note, err := jsonrpc.NewNotification(MethodResourceUpdated, mcptypes.ResourceUpdatedParams{URI: uri})
	if err != nil {
		return errors.Wrap(err, "failed to build resource update notification")
	}
	return l.write(ctx, note)
}

// Tools returns the registered tool descriptors in registration order.
func (s *Server) Tools() []mcptypes.Tool {
	return s.tools.List()
}

// Resources returns the registered resource descriptors in registration order.
func (s *Server) Resources() []mcptypes.Resource {
	return s.resources.List()
}

// Capabilities reports what the server offers.
func (s *Server) Capabilities() mcptypes.ServerCapabilities {
	return s.dispatcher.Capabilities()
}

// Dispatcher returns the server's dispatcher.
func (s *Server) Dispatcher() *Dispatcher {
	return s.dispatcher
}

// Serve runs the message loop over r and w using newline-delimited JSON.
// It returns nil when r reaches end of stream or ctx is cancelled, and a
// *transport.Error when reading or writing fails.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	var closer io.Closer
	if c, ok := r.(io.Closer); ok {
		closer = c
	}
	t := transport.NewNDJSONTransport(r, w, closer, transport.Options{MaxMessageSize: s.opts.MaxMessageSize}, s.logger)
	return s.ServeTransport(ctx, t)
}

// ServeStdio runs the message loop over the process's standard streams.
func (s *Server) ServeStdio(ctx context.Context) error {
	s.logger.Info("Serving on stdio.", "name", s.opts.Name, "version", s.opts.Version)
	return s.Serve(ctx, os.Stdin, os.Stdout)
}

// ServeTransport runs the message loop over an established transport. The
// registries are frozen for the rest of the server's life.
func (s *Server) ServeTransport(ctx context.Context, t transport.Transport) error {
	if !s.serveMu.TryLock() {
		return ErrAlreadyServing
	}
	defer s.serveMu.Unlock()

	s.tools.Freeze()
	s.resources.Freeze()
	s.prompts.Freeze()
	s.logger.Info("Registries frozen.",
		"tools", s.tools.Len(), "resources", s.resources.Len(), "prompts", s.prompts.Len())

	l := newLoop(s, t)
	s.active.Store(l)
	defer s.active.Store(nil)
	return l.run(ctx)
}
