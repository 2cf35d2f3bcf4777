// file: internal/mcp/handlers_prompts.go
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	mcperrors "github.com/dkoosis/mcpserve/internal/mcp/mcp_errors"
	mcptypes "github.com/dkoosis/mcpserve/internal/mcp_types"
)

// Texts of the errors sent when a prompt or completion handler faults.
const (
	promptFaultMessage     = "Internal error while getting prompt"
	completionFaultMessage = "Internal error while completing argument"
)

func (d *Dispatcher) handlePromptsList(_ context.Context, params json.RawMessage) (interface{}, error) {
	var req mcptypes.PaginatedParams
	if err := parseParams(params, &req); err != nil {
		return nil, err
	}
	page, next, err := paginate(d.prompts.List(), req.Cursor, d.pageSize)
	if err != nil {
		return nil, err
	}
	return mcptypes.ListPromptsResult{Prompts: page, NextCursor: next}, nil
}

func (d *Dispatcher) handlePromptGet(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var req mcptypes.GetPromptParams
	if err := parseParams(params, &req); err != nil {
		return nil, err
	}
	if req.Name == "" {
		return nil, mcperrors.NewInvalidParamsError("Invalid params: missing prompt name", nil, nil)
	}
	log := d.logger.WithContext(ctx).WithField("prompt", req.Name)

	entry, ok := d.prompts.Lookup(req.Name)
	if !ok {
		log.Warn("Request for unknown prompt.")
		return nil, mcperrors.NewInvalidParamsError("Unknown prompt: "+req.Name, nil, nil)
	}
	if missing := entry.MissingArguments(req.Arguments); len(missing) > 0 {
		return nil, mcperrors.NewInvalidParamsError(
			"Invalid params: missing required argument "+strings.Join(missing, ", "), nil, nil)
	}
	if req.Arguments == nil {
		req.Arguments = map[string]string{}
	}

	res, err := callGuarded(func() (*mcptypes.GetPromptResult, error) {
		return entry.Handler(ctx, req.Arguments)
	})
	if err != nil {
		return nil, handlerFault(promptFaultMessage, err)
	}
	if res == nil {
		res = &mcptypes.GetPromptResult{}
	}
	if res.Messages == nil {
		res.Messages = []mcptypes.PromptMessage{}
	}
	log.Info("Prompt rendered.", "messages", len(res.Messages))
	return res, nil
}

func (d *Dispatcher) handleComplete(ctx context.Context, params json.RawMessage) (interface{}, error) {
	complete := d.prompts.Completer()
	if complete == nil {
		return nil, mcperrors.NewMethodNotFoundError(MethodCompletionComplete)
	}

	var req mcptypes.CompleteParams
	if err := parseParams(params, &req); err != nil {
		return nil, err
	}
	switch req.Ref.Type {
	case mcptypes.RefPrompt:
		if _, ok := d.prompts.Lookup(req.Ref.Name); !ok {
			return nil, mcperrors.NewInvalidParamsError("Unknown prompt: "+req.Ref.Name, nil, nil)
		}
	case mcptypes.RefResource:
		if req.Ref.URI == "" {
			req.Ref.URI = req.Ref.Name
		}
		if req.Ref.URI == "" {
			return nil, mcperrors.NewInvalidParamsError("Invalid params: missing reference uri", nil, nil)
		}
	default:
		return nil, mcperrors.NewInvalidParamsError(
			fmt.Sprintf("Invalid params: unknown reference type %q", req.Ref.Type), nil, nil)
	}
	if req.Argument.Name == "" {
		return nil, mcperrors.NewInvalidParamsError("Invalid params: missing argument name", nil, nil)
	}

	c, err := callGuarded(func() (*mcptypes.Completion, error) {
		return complete(ctx, req.Ref, req.Argument)
	})
	if err != nil {
		return nil, handlerFault(completionFaultMessage, err)
	}
	return mcptypes.CompleteResult{Completion: capCompletion(c)}, nil
}

// capCompletion normalises a handler's completion: never nil values and at
// most MaxCompletionValues of them.
func capCompletion(c *mcptypes.Completion) mcptypes.Completion {
	if c == nil {
		return mcptypes.Completion{Values: []string{}}
	}
	out := *c
	if out.Values == nil {
		out.Values = []string{}
	}
	if n := len(out.Values); n > mcptypes.MaxCompletionValues {
		out.Values = out.Values[:mcptypes.MaxCompletionValues]
		out.HasMore = true
		if out.Total < n {
			out.Total = n
		}
	}
	return out
}

// callGuarded runs fn, converting a panic into *panicError.
func callGuarded[T any](fn func() (T, error)) (res T, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero T
			res, err = zero, newPanicError(r)
		}
	}()
	return fn()
}

// handlerFault maps a prompt or completion handler failure to a protocol
// error. Protocol errors pass through; anything else is replaced by
// faultMessage and its detail kept as the cause for the request log.
func handlerFault(faultMessage string, err error) error {
	if _, isProtocol := mcperrors.AsBaseError(err); isProtocol {
		return err
	}
	return mcperrors.NewInternalError(faultMessage, err, nil)
}
