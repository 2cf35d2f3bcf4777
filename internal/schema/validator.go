// Package schema validates tool arguments against the JSON schemas tools declare.
// file: internal/schema/validator.go
//
// Validation runs in two passes. A native pass enforces the object shape that
// every tool schema relies on: the required list and the primitive type of each
// declared property, reporting the first violation. Declared properties are
// checked in sorted name order so the reported violation is deterministic.
// Properties the schema does not declare are accepted unchanged. A second pass
// hands the value to santhosh-tekuri/jsonschema for every other keyword
// (enum, pattern, minimum, items and so on).
package schema

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/dkoosis/mcpserve/internal/logging"
	"github.com/dkoosis/mcpserve/internal/value"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// defaultSchema is used for tools that declare no input schema.
var defaultSchema = json.RawMessage(`{"type":"object"}`)

// Compiled is a tool input schema ready for validation.
type Compiled struct {
	name       string
	raw        json.RawMessage
	required   []string
	properties map[string][]string
	propOrder  []string
	checked    *jsonschema.Schema
}

// Raw returns the schema document as registered.
func (c *Compiled) Raw() json.RawMessage {
	return c.raw
}

// Compile parses and compiles a schema document. Documents that are not JSON
// objects, whose type is not "object", or that fail to compile are rejected.
func Compile(name string, raw json.RawMessage) (*Compiled, error) {
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		raw = defaultSchema
	}

	doc, err := decodeDocument(raw)
	if err != nil {
		return nil, NewDefinitionError(ErrSchemaInvalid, "Schema is not a JSON object", err).
			WithContext("schema", name).
			WithContext("dataPreview", calculatePreview(raw))
	}

	c := &Compiled{name: name, raw: raw, properties: map[string][]string{}}
	if err := c.readShape(doc); err != nil {
		return nil, NewDefinitionError(ErrSchemaInvalid, err.Error(), nil).WithContext("schema", name)
	}

	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	compiler.AssertFormat = true

	resourceID := "mcp://schemas/" + url.PathEscape(name) + ".json"
	if err := compiler.AddResource(resourceID, bytes.NewReader(raw)); err != nil {
		return nil, NewDefinitionError(ErrSchemaCompileFailed, "Failed to add schema resource", errors.Wrap(err, "compiler.AddResource failed")).
			WithContext("schema", name)
	}
	checked, err := compiler.Compile(resourceID)
	if err != nil {
		return nil, NewDefinitionError(ErrSchemaCompileFailed, "Failed to compile schema", errors.Wrap(err, "compiler.Compile failed")).
			WithContext("schema", name)
	}
	c.checked = checked
	return c, nil
}

func decodeDocument(raw json.RawMessage) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, errors.Wrap(err, "decode schema")
	}
	if doc == nil {
		return nil, errors.New("schema document is null")
	}
	return doc, nil
}

// readShape extracts the parts of the document the native pass enforces.
func (c *Compiled) readShape(doc map[string]any) error {
	if t, ok := doc["type"]; ok {
		types, err := typeNames(t)
		if err != nil {
			return errors.Wrap(err, "schema type")
		}
		if !contains(types, "object") {
			return errors.Newf("schema type must be object, got %v", types)
		}
	}

	if props, ok := doc["properties"]; ok {
		m, ok := props.(map[string]any)
		if !ok {
			return errors.New("schema properties must be an object")
		}
		for name, p := range m {
			prop, ok := p.(map[string]any)
			if !ok {
				return errors.Newf("property %q must be a schema object", name)
			}
			var types []string
			if t, ok := prop["type"]; ok {
				var err error
				if types, err = typeNames(t); err != nil {
					return errors.Wrapf(err, "property %q", name)
				}
			}
			c.properties[name] = types
			c.propOrder = append(c.propOrder, name)
		}
		sort.Strings(c.propOrder)
	}

	if req, ok := doc["required"]; ok {
		list, ok := req.([]any)
		if !ok {
			return errors.New("schema required must be an array of strings")
		}
		for _, r := range list {
			s, ok := r.(string)
			if !ok {
				return errors.New("schema required must be an array of strings")
			}
			c.required = append(c.required, s)
		}
	}
	return nil
}

var knownTypes = map[string]bool{
	"string": true, "number": true, "integer": true, "boolean": true,
	"object": true, "array": true, "null": true,
}

func typeNames(t any) ([]string, error) {
	var names []string
	switch tv := t.(type) {
	case string:
		names = []string{tv}
	case []any:
		for _, item := range tv {
			s, ok := item.(string)
			if !ok {
				return nil, errors.New("type list must contain strings")
			}
			names = append(names, s)
		}
	default:
		return nil, errors.New("type must be a string or a list of strings")
	}
	for _, n := range names {
		if !knownTypes[n] {
			return nil, errors.Newf("unknown type %q", n)
		}
	}
	return names, nil
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

// Validate checks v against the schema and returns the first violation as a
// *SchemaError, or nil.
func (c *Compiled) Validate(v value.Value) error {
	obj, ok := v.AsObject()
	if !ok {
		return &SchemaError{Reason: fmt.Sprintf("expected object, got %s", v.Kind()), Keyword: "type"}
	}

	for _, name := range c.required {
		if _, present := obj[name]; !present {
			return &SchemaError{Field: name, Reason: "required property is missing", Keyword: "required"}
		}
	}

	for _, name := range c.propOrder {
		item, present := obj[name]
		types := c.properties[name]
		if !present || len(types) == 0 {
			continue
		}
		if !matchesAny(item, types) {
			return &SchemaError{
				Field:   name,
				Reason:  fmt.Sprintf("expected %s, got %s", joinTypes(types), item.Kind()),
				Keyword: "type",
			}
		}
	}

	if c.checked == nil {
		return nil
	}
	if err := c.checked.Validate(obj.Interface()); err != nil {
		var valErr *jsonschema.ValidationError
		if errors.As(err, &valErr) {
			return convertValidationError(valErr)
		}
		return errors.Wrap(err, "schema validation failed unexpectedly")
	}
	return nil
}

func matchesAny(v value.Value, types []string) bool {
	for _, t := range types {
		if matchesType(v, t) {
			return true
		}
	}
	return false
}

func matchesType(v value.Value, t string) bool {
	switch t {
	case "integer":
		return v.IsInteger()
	default:
		return v.Kind().String() == t
	}
}

func joinTypes(types []string) string {
	if len(types) == 1 {
		return types[0]
	}
	return fmt.Sprintf("one of %v", types)
}

// Validate compiles schema and validates v against it in one step.
func Validate(raw json.RawMessage, v value.Value) error {
	c, err := Compile("inline", raw)
	if err != nil {
		return err
	}
	return c.Validate(v)
}

// Validator holds the compiled input schema of every registered tool.
type Validator struct {
	mu      sync.RWMutex
	schemas map[string]*Compiled
	logger  logging.Logger
}

// NewValidator creates an empty Validator.
func NewValidator(logger logging.Logger) *Validator {
	logger = logging.OrNoop(logger)
	return &Validator{
		schemas: make(map[string]*Compiled),
		logger:  logger.WithField("component", "schema_validator"),
	}
}

// Register compiles and stores the schema for name, replacing any previous one.
func (v *Validator) Register(name string, raw json.RawMessage) error {
	compiled, err := Compile(name, raw)
	if err != nil {
		v.logger.Warn("Rejected tool input schema.", "tool", name, "error", err)
		return err
	}
	v.mu.Lock()
	v.schemas[name] = compiled
	v.mu.Unlock()
	v.logger.Debug("Compiled tool input schema.", "tool", name, "required", len(compiled.required), "properties", len(compiled.propOrder))
	return nil
}

// HasSchema reports whether a schema is registered under name.
func (v *Validator) HasSchema(name string) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	_, ok := v.schemas[name]
	return ok
}

// Validate validates args against the schema registered under name.
func (v *Validator) Validate(_ context.Context, name string, args value.Value) error {
	v.mu.RLock()
	compiled, ok := v.schemas[name]
	v.mu.RUnlock()
	if !ok {
		return NewDefinitionError(ErrSchemaNotFound, fmt.Sprintf("No schema registered for '%s'", name), nil)
	}
	if err := compiled.Validate(args); err != nil {
		v.logger.Debug("Argument validation failed.", "tool", name, "error", err)
		return err
	}
	return nil
}
