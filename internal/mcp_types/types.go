// Package mcptypes defines the protocol data structures and handler contracts
// shared by the registries, the dispatcher and applications that register tools.
// file: internal/mcp_types/types.go
package mcptypes

import (
	"bytes"
	"encoding/json"
)

// ProtocolVersion is the protocol revision this server speaks.
const ProtocolVersion = "2025-06-18"

// Implementation describes the name and version of a server.
type Implementation struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ServerCapabilities describes features supported by the server.
type ServerCapabilities struct {
	Tools       *ToolsCapability       `json:"tools,omitempty"`
	Resources   *ResourcesCapability   `json:"resources,omitempty"`
	Prompts     *PromptsCapability     `json:"prompts,omitempty"`
	Logging     *LoggingCapability     `json:"logging,omitempty"`
	Completions *CompletionsCapability `json:"completions,omitempty"`
}

// ToolsCapability indicates server support for tools.
type ToolsCapability struct {
	ListChanged bool `json:"listChanged"`
}

// ResourcesCapability indicates server support for resources.
type ResourcesCapability struct {
	ListChanged bool `json:"listChanged"`
	Subscribe   bool `json:"subscribe"`
}

// PromptsCapability indicates server support for prompts.
type PromptsCapability struct {
	ListChanged bool `json:"listChanged"`
}

// LoggingCapability indicates that the caller may adjust the log level.
type LoggingCapability struct{}

// CompletionsCapability indicates server support for argument completion.
type CompletionsCapability struct{}

// InitializeResult is the result of an 'initialize' request.
type InitializeResult struct {
	ProtocolVersion string             `json:"protocolVersion"`
	ServerInfo      Implementation     `json:"serverInfo"`
	Capabilities    ServerCapabilities `json:"capabilities"`
	Instructions    string             `json:"instructions,omitempty"`
}

// ReadyNotification is the payload of the startup announcement.
type ReadyNotification struct {
	ProtocolVersion string             `json:"protocolVersion"`
	ServerInfo      Implementation     `json:"serverInfo"`
	Capabilities    ServerCapabilities `json:"capabilities"`
	Instructions    string             `json:"instructions,omitempty"`
}

// Tool describes a callable tool. It is immutable once registered.
type Tool struct {
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	InputSchema json.RawMessage  `json:"inputSchema"`
	Annotations *ToolAnnotations `json:"annotations,omitempty"`
}

// ToolAnnotations carries optional hints about a tool's behaviour.
type ToolAnnotations struct {
	Title           string `json:"title,omitempty"`
	ReadOnlyHint    bool   `json:"readOnlyHint,omitempty"`
	IdempotentHint  bool   `json:"idempotentHint,omitempty"`
	OpenWorldHint   bool   `json:"openWorldHint,omitempty"`
	DestructiveHint bool   `json:"destructiveHint,omitempty"`
}

// ListToolsResult is the result of a 'tools/list' request.
type ListToolsResult struct {
	Tools      []Tool `json:"tools"`
	NextCursor string `json:"nextCursor,omitempty"`
}

// CallToolParams are the parameters of a 'tools/call' request.
type CallToolParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// CallToolResult is the result of a tool call. IsError marks a domain
// failure reported by the tool rather than a protocol error.
type CallToolResult struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError,omitempty"`
}

// NewToolResultText returns a successful result with one text item.
func NewToolResultText(text string) *CallToolResult {
	return &CallToolResult{Content: []Content{NewTextContent(text)}}
}

// NewToolResultError returns a failed result with one text item.
func NewToolResultError(text string) *CallToolResult {
	return &CallToolResult{Content: []Content{NewTextContent(text)}, IsError: true}
}

// Resource describes a readable resource. URITemplate may contain
// {placeholder} segments; without any it names a single concrete URI.
type Resource struct {
	URITemplate string
	Name        string
	Description string
	MimeType    string
}

// ListedResource is a concrete resource as reported by 'resources/list'.
type ListedResource struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// ListedTemplate is a templated resource as reported by 'resources/templates/list'.
type ListedTemplate struct {
	URITemplate string `json:"uriTemplate"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// ListResourcesResult is the result of a 'resources/list' request.
type ListResourcesResult struct {
	Resources  []ListedResource `json:"resources"`
	NextCursor string           `json:"nextCursor,omitempty"`
}

// ListResourceTemplatesResult is the result of a 'resources/templates/list' request.
type ListResourceTemplatesResult struct {
	ResourceTemplates []ListedTemplate `json:"resourceTemplates"`
	NextCursor        string           `json:"nextCursor,omitempty"`
}

// PaginatedParams are the optional parameters of the list methods.
type PaginatedParams struct {
	Cursor string `json:"cursor,omitempty"`
}

// ReadResourceParams are the parameters of a 'resources/read' request.
type ReadResourceParams struct {
	URI string `json:"uri"`
}

// SubscribeParams are the parameters of 'resources/subscribe' and
// 'resources/unsubscribe'.
type SubscribeParams struct {
	URI string `json:"uri"`
}

// ResourceUpdatedParams is the payload of 'notifications/resources/updated'.
type ResourceUpdatedParams struct {
	URI string `json:"uri"`
}

// SetLevelParams are the parameters of 'logging/setLevel'.
type SetLevelParams struct {
	Level string `json:"level"`
}

// ReadResourceResult is the result of a 'resources/read' request.
type ReadResourceResult struct {
	Contents []ResourceContents `json:"contents"`
}

// ResourceContents is one entry returned by a resource read. Exactly one of
// Text or Blob (base64) is sent; Blob wins when set.
type ResourceContents struct {
	URI      string
	MimeType string
	Text     string
	Blob     string
}

type textContents struct {
	URI      string `json:"uri"`
	MimeType string `json:"mimeType,omitempty"`
	Text     string `json:"text"`
}

type blobContents struct {
	URI      string `json:"uri"`
	MimeType string `json:"mimeType,omitempty"`
	Blob     string `json:"blob"`
}

// MarshalJSON implements json.Marshaler.
func (r ResourceContents) MarshalJSON() ([]byte, error) {
	if r.Blob != "" {
		return json.Marshal(blobContents{URI: r.URI, MimeType: r.MimeType, Blob: r.Blob})
	}
	return json.Marshal(textContents{URI: r.URI, MimeType: r.MimeType, Text: r.Text})
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *ResourceContents) UnmarshalJSON(data []byte) error {
	var aux struct {
		URI      string `json:"uri"`
		MimeType string `json:"mimeType"`
		Text     string `json:"text"`
		Blob     string `json:"blob"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*r = ResourceContents{URI: aux.URI, MimeType: aux.MimeType, Text: aux.Text, Blob: aux.Blob}
	return nil
}

// --- Content Types ---.

// Content is an item in a tool result.
type Content interface {
	GetType() string
}

// TextContent is a text content item.
type TextContent struct {
	Text string
}

// NewTextContent returns a text content item.
func NewTextContent(text string) TextContent {
	return TextContent{Text: text}
}

// GetType returns "text".
func (t TextContent) GetType() string {
	return "text"
}

// MarshalJSON implements json.Marshaler.
func (t TextContent) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}{Type: "text", Text: t.Text})
}

// RawContent is any other content item (image, audio, embedded resource),
// forwarded to the caller byte for byte.
type RawContent json.RawMessage

// GetType returns the item's "type" member, or "" if it has none.
func (r RawContent) GetType() string {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(r, &head); err != nil {
		return ""
	}
	return head.Type
}

// MarshalJSON implements json.Marshaler.
func (r RawContent) MarshalJSON() ([]byte, error) {
	if len(bytes.TrimSpace(r)) == 0 {
		return []byte("null"), nil
	}
	return r, nil
}
