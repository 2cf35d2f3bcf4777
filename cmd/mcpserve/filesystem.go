// file: cmd/mcpserve/filesystem.go
package main

import (
	"context"
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/dkoosis/mcpserve/internal/logging"
	"github.com/dkoosis/mcpserve/internal/mcp"
	mcperrors "github.com/dkoosis/mcpserve/internal/mcp/mcp_errors"
	mcptypes "github.com/dkoosis/mcpserve/internal/mcp_types"
	"github.com/dkoosis/mcpserve/internal/value"
)

const (
	pathSchema = `{"type":"object","properties":{"path":{"type":"string"}},"required":["path"]}`
	echoSchema = `{"type":"object","properties":{"text":{"type":"string"}},"required":["text"]}`

	accessDenied  = "Access denied"
	fileURIScheme = "file:///"
)

// errOutsideRoot marks a path that escapes the served directory.
var errOutsideRoot = errors.New("path escapes root directory")

// fileSystem serves the files below root.
type fileSystem struct {
	root   string
	logger logging.Logger
}

func newFileSystem(root string, logger logging.Logger) (*fileSystem, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to resolve root directory %q", root)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, errors.Wrapf(err, "root directory %q is not accessible", abs)
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return nil, errors.Wrapf(err, "root directory %q is not accessible", resolved)
	}
	if !info.IsDir() {
		return nil, errors.Newf("root %q is not a directory", resolved)
	}
	return &fileSystem{root: resolved, logger: logger.WithField("component", "filesystem")}, nil
}

func (f *fileSystem) register(server *mcp.Server) error {
	tools := []struct {
		tool    mcptypes.Tool
		handler mcptypes.ToolHandler
	}{
		{mcptypes.Tool{Name: "echo", Description: "Echo the given text", InputSchema: json.RawMessage(echoSchema)}, f.echo},
		{mcptypes.Tool{
			Name:        "read_file",
			Description: "Read the contents of a file",
			InputSchema: json.RawMessage(pathSchema),
			Annotations: &mcptypes.ToolAnnotations{ReadOnlyHint: true},
		}, f.readFile},
		{mcptypes.Tool{
			Name:        "list_directory",
			Description: "List the entries of a directory",
			InputSchema: json.RawMessage(pathSchema),
			Annotations: &mcptypes.ToolAnnotations{ReadOnlyHint: true},
		}, f.listDirectory},
	}
	for _, t := range tools {
		if err := server.RegisterTool(t.tool, t.handler); err != nil {
			return err
		}
	}
	if err := server.RegisterResource(mcptypes.Resource{
		URITemplate: fileURIScheme + "{path}",
		Name:        "File",
		Description: "A file from the filesystem",
		MimeType:    "text/plain",
	}, f.readResource); err != nil {
		return err
	}
	if err := server.RegisterPrompt(mcptypes.Prompt{
		Name:        "summarize_file",
		Description: "Ask for a summary of a file",
		Arguments: []mcptypes.PromptArgument{
			{Name: "path", Description: "File to summarize, relative to the root", Required: true},
		},
	}, f.summarizePrompt); err != nil {
		return err
	}
	return server.SetCompletionHandler(f.completePath)
}

// resolve maps a path relative to root onto the filesystem, rejecting
// anything that leaves root, through ".." or a symlink. A missing target
// yields an fs.ErrNotExist error.
func (f *fileSystem) resolve(rel string) (string, error) {
	joined := filepath.Join(f.root, filepath.FromSlash(rel))
	if !f.contains(joined) {
		return "", errOutsideRoot
	}
	resolved, err := filepath.EvalSymlinks(joined)
	if err != nil {
		return "", err
	}
	if !f.contains(resolved) {
		return "", errOutsideRoot
	}
	return resolved, nil
}

func (f *fileSystem) contains(path string) bool {
	rel, err := filepath.Rel(f.root, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

func (f *fileSystem) echo(_ context.Context, args value.Object) (*mcptypes.CallToolResult, error) {
	text, _ := args.String("text")
	return mcptypes.NewToolResultText(text), nil
}

func (f *fileSystem) readFile(_ context.Context, args value.Object) (*mcptypes.CallToolResult, error) {
	rel, _ := args.String("path")
	path, err := f.resolve(rel)
	if err == nil {
		var data []byte
		// #nosec G304 -- path is confined to root by resolve.
		data, err = os.ReadFile(path)
		if err == nil {
			return mcptypes.NewToolResultText(string(data)), nil
		}
	}
	return nil, f.toolError(rel, "File not found: ", err)
}

func (f *fileSystem) listDirectory(_ context.Context, args value.Object) (*mcptypes.CallToolResult, error) {
	rel, _ := args.String("path")
	path, err := f.resolve(rel)
	if err == nil {
		var entries []fs.DirEntry
		entries, err = os.ReadDir(path)
		if err == nil {
			return mcptypes.NewToolResultText(formatListing(entries)), nil
		}
	}
	return nil, f.toolError(rel, "Directory not found: ", err)
}

// toolError converts a filesystem failure into the message shown to the client.
func (f *fileSystem) toolError(rel, notFoundPrefix string, err error) error {
	switch {
	case errors.Is(err, errOutsideRoot):
		f.logger.Warn("Rejected path outside root.", "path", rel)
		return mcptypes.NewToolError(accessDenied)
	case errors.Is(err, fs.ErrNotExist):
		return mcptypes.NewToolError(notFoundPrefix + rel)
	default:
		// Other I/O failures stay internal; the client sees a generic fault.
		return errors.Wrapf(err, "filesystem access failed for %q", rel)
	}
}

func formatListing(entries []fs.DirEntry) string {
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			lines = append(lines, "[dir]  "+e.Name())
		} else {
			lines = append(lines, "[file] "+e.Name())
		}
	}
	return strings.Join(lines, "\n")
}

func (f *fileSystem) readResource(_ context.Context, uri string, vars map[string]string) ([]mcptypes.ResourceContents, error) {
	path, err := f.resolve(vars["path"])
	if err == nil {
		var data []byte
		// #nosec G304 -- path is confined to root by resolve.
		data, err = os.ReadFile(path)
		if err == nil {
			return []mcptypes.ResourceContents{{URI: uri, MimeType: "text/plain", Text: string(data)}}, nil
		}
	}
	if errors.Is(err, errOutsideRoot) {
		f.logger.Warn("Rejected resource outside root.", "uri", uri)
		return nil, errors.New(accessDenied)
	}
	return nil, errors.Newf("File not found: %s", uri)
}

func (f *fileSystem) summarizePrompt(_ context.Context, args map[string]string) (*mcptypes.GetPromptResult, error) {
	rel := args["path"]
	path, err := f.resolve(rel)
	if err == nil {
		var data []byte
		// #nosec G304 -- path is confined to root by resolve.
		data, err = os.ReadFile(path)
		if err == nil {
			return &mcptypes.GetPromptResult{
				Description: "Summary of " + rel,
				Messages: []mcptypes.PromptMessage{{
					Role:    "user",
					Content: mcptypes.NewTextContent("Summarize the following file (" + rel + "):\n\n" + string(data)),
				}},
			}, nil
		}
	}
	switch {
	case errors.Is(err, errOutsideRoot):
		f.logger.Warn("Rejected prompt path outside root.", "path", rel)
		return nil, mcperrors.NewInvalidParamsError(accessDenied, nil, nil)
	case errors.Is(err, fs.ErrNotExist):
		return nil, mcperrors.NewInvalidParamsError("File not found: "+rel, nil, nil)
	}
	return nil, errors.Wrapf(err, "filesystem access failed for %q", rel)
}

// completePath suggests entries below root whose relative path starts with
// the typed value. Only the "path" argument is completed.
func (f *fileSystem) completePath(_ context.Context, _ mcptypes.CompletionRef, arg mcptypes.CompletionArgument) (*mcptypes.Completion, error) {
	if arg.Name != "path" {
		return nil, nil
	}
	dirPart, prefix := "", arg.Value
	if i := strings.LastIndex(arg.Value, "/"); i >= 0 {
		dirPart, prefix = arg.Value[:i+1], arg.Value[i+1:]
	}
	dir, err := f.resolve(dirPart)
	if err != nil {
		return nil, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil
	}
	values := []string{}
	for _, e := range entries {
		if !strings.HasPrefix(e.Name(), prefix) {
			continue
		}
		name := dirPart + e.Name()
		if e.IsDir() {
			name += "/"
		}
		values = append(values, name)
	}
	sort.Strings(values)
	return &mcptypes.Completion{Values: values}, nil
}
