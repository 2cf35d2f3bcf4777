// file: internal/mcp_types/prompts.go
package mcptypes

import "context"

// Prompt describes a prompt template the caller can fetch by name.
type Prompt struct {
	Name        string           `json:"name"`
	Title       string           `json:"title,omitempty"`
	Description string           `json:"description,omitempty"`
	Arguments   []PromptArgument `json:"arguments"`
}

// PromptArgument is one named input of a prompt.
type PromptArgument struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required"`
}

// PromptMessage is one message of a rendered prompt. Role is "user" or
// "assistant".
type PromptMessage struct {
	Role    string  `json:"role"`
	Content Content `json:"content"`
}

// GetPromptResult is the result of a 'prompts/get' request.
type GetPromptResult struct {
	Description string          `json:"description,omitempty"`
	Messages    []PromptMessage `json:"messages"`
}

// ListPromptsResult is the result of a 'prompts/list' request.
type ListPromptsResult struct {
	Prompts    []Prompt `json:"prompts"`
	NextCursor string   `json:"nextCursor,omitempty"`
}

// GetPromptParams are the parameters of a 'prompts/get' request.
type GetPromptParams struct {
	Name      string            `json:"name"`
	Arguments map[string]string `json:"arguments,omitempty"`
}

// PromptHandler renders a prompt. Required arguments are present in args.
type PromptHandler func(ctx context.Context, args map[string]string) (*GetPromptResult, error)

// Completion reference types.
const (
	RefPrompt   = "ref/prompt"
	RefResource = "ref/resource"
)

// CompletionRef names what is being completed: a prompt by Name or a
// resource template by URI.
type CompletionRef struct {
	Type string `json:"type"`
	Name string `json:"name,omitempty"`
	URI  string `json:"uri,omitempty"`
}

// CompletionArgument is the argument being typed and its partial value.
type CompletionArgument struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// CompleteParams are the parameters of a 'completion/complete' request.
type CompleteParams struct {
	Ref      CompletionRef      `json:"ref"`
	Argument CompletionArgument `json:"argument"`
}

// Completion holds suggested values. At most MaxCompletionValues are sent.
type Completion struct {
	Values  []string `json:"values"`
	Total   int      `json:"total,omitempty"`
	HasMore bool     `json:"hasMore"`
}

// MaxCompletionValues caps the values in one completion result.
const MaxCompletionValues = 100

// CompleteResult is the result of a 'completion/complete' request.
type CompleteResult struct {
	Completion Completion `json:"completion"`
}

// CompletionHandler suggests values for an argument of a prompt or resource
// template.
type CompletionHandler func(ctx context.Context, ref CompletionRef, arg CompletionArgument) (*Completion, error)
