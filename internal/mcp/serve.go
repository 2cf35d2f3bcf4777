// file: internal/mcp/serve.go
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/dkoosis/mcpserve/internal/fsm"
	"github.com/dkoosis/mcpserve/internal/jsonrpc"
	"github.com/dkoosis/mcpserve/internal/logging"
	mcperrors "github.com/dkoosis/mcpserve/internal/mcp/mcp_errors"
	mcptypes "github.com/dkoosis/mcpserve/internal/mcp_types"
	"github.com/dkoosis/mcpserve/internal/transport"
)

// loop is one run of the read/dispatch/write cycle. Requests are handled
// strictly in order: a response is written before the next message is read.
type loop struct {
	server    *Server
	transport transport.Transport
	logger    logging.Logger
	closeOnce sync.Once
}

func newLoop(s *Server, t transport.Transport) *loop {
	return &loop{server: s, transport: t, logger: s.logger.WithField("component", "serve_loop")}
}

func (l *loop) run(ctx context.Context) error {
	state, err := fsm.NewLoopMachine(l.logger, l.onClosed)
	if err != nil {
		return err
	}
	defer state.Close(ctx, nil)

	if l.server.opts.Announce {
		if err := l.announce(ctx); err != nil {
			state.Close(ctx, err)
			return err
		}
	}
	if err := state.Fire(ctx, fsm.EventStart); err != nil {
		return err
	}
	l.logger.Info("Server processing loop started.")

	for {
		data, readErr := l.transport.ReadMessage(ctx)
		if readErr != nil {
			switch {
			case ctx.Err() != nil:
				l.logger.Info("Context cancelled, stopping server loop.", "reason", ctx.Err())
				state.Close(ctx, ctx.Err())
				return nil
			case transport.IsClosedError(readErr):
				l.logger.Info("Input stream closed, stopping server loop.")
				_ = state.Fire(ctx, fsm.EventEOF)
				return nil
			case transport.IsRecoverable(readErr):
				l.server.dispatcher.metrics.RecordDecodeError()
				code, message, data := mcperrors.MapToJSONRPC(readErr)
				l.logger.Warn("Rejected unreadable message.", "code", code, "error", readErr)
				if err := l.cycle(ctx, state, jsonrpc.NewErrorResponse(nil, code, message, data)); err != nil {
					return l.stopped(ctx, err)
				}
				continue
			default:
				l.logger.Error("Transport read failed, stopping server loop.", "error", fmt.Sprintf("%+v", readErr))
				state.Close(ctx, readErr)
				return readErr
			}
		}

		if err := l.cycle(ctx, state, l.handle(ctx, data)); err != nil {
			return l.stopped(ctx, err)
		}
	}
}

// stopped filters the error ending the loop: failures caused by ctx
// cancellation are a clean shutdown.
func (l *loop) stopped(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		l.logger.Info("Context cancelled, stopping server loop.", "reason", ctx.Err())
		return nil
	}
	return err
}

// cycle walks the state machine through dispatching and writing for one
// message. resp may be nil when nothing is to be written.
func (l *loop) cycle(ctx context.Context, state *fsm.LoopMachine, resp *jsonrpc.Response) error {
	if err := state.Fire(ctx, fsm.EventReceived); err != nil {
		return err
	}
	if err := state.Fire(ctx, fsm.EventDispatched); err != nil {
		return err
	}
	if resp != nil {
		if err := l.write(ctx, resp); err != nil {
			l.logger.Error("Transport write failed, stopping server loop.", "error", fmt.Sprintf("%+v", err))
			state.Close(ctx, err)
			return err
		}
	}
	return state.Fire(ctx, fsm.EventWritten)
}

// handle decodes and dispatches one message.
func (l *loop) handle(ctx context.Context, data []byte) *jsonrpc.Response {
	msg, err := jsonrpc.Decode(data)
	if err != nil {
		l.server.dispatcher.metrics.RecordDecodeError()
		var id json.RawMessage
		if msg != nil {
			id = msg.ID
		}
		code, message, detail := mcperrors.MapToJSONRPC(err)
		l.logger.Warn("Rejected undecodable message.", "code", code, "error", err, "id", string(id))
		return jsonrpc.NewErrorResponse(id, code, message, detail)
	}
	return l.server.dispatcher.Dispatch(ctx, msg)
}

// write encodes v and sends it. A response that cannot be encoded is
// replaced by a bare internal error for the same id; only the transport can
// end the loop.
func (l *loop) write(ctx context.Context, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		resp, isResponse := v.(*jsonrpc.Response)
		if !isResponse {
			return transport.NewError(transport.ErrInvalidMessage, "failed to encode outgoing message", err)
		}
		l.logger.Error("Failed to encode response, sending internal error instead.",
			"id", string(resp.ID), "error", fmt.Sprintf("%+v", err))
		l.server.dispatcher.metrics.RecordError("serve_loop", err.Error())
		fallback := jsonrpc.NewErrorResponse(resp.ID, int(mcperrors.ErrInternalError), "Internal error", nil)
		if payload, err = json.Marshal(fallback); err != nil {
			return transport.NewError(transport.ErrInvalidMessage, "failed to encode outgoing message", err)
		}
	}
	return l.transport.WriteMessage(ctx, payload)
}

// announce writes the ready notification before the first read.
func (l *loop) announce(ctx context.Context) error {
	note, err := jsonrpc.NewNotification(MethodServerReady, mcptypes.ReadyNotification{
		ProtocolVersion: mcptypes.ProtocolVersion,
		ServerInfo:      l.server.dispatcher.info,
		Capabilities:    l.server.dispatcher.Capabilities(),
		Instructions:    l.server.dispatcher.instructions,
	})
	if err != nil {
		return errors.Wrap(err, "failed to build ready notification")
	}
	return l.write(ctx, note)
}

// onClosed releases the transport when the loop reaches its terminal state.
func (l *loop) onClosed(_ context.Context, _ fsm.Event, cause interface{}) error {
	var err error
	l.closeOnce.Do(func() {
		l.logger.Info("Server loop closed.", "cause", cause)
		err = l.transport.Close()
	})
	return err
}
