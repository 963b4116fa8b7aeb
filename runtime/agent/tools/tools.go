// Package tools exposes the shared tool metadata types consumed by the
// registry, the capability adapters, and the oracle implementations. A tool is
// a named capability the oracle may request; its Spec declares the argument
// schema the registry validates against and the authorization scope checked at
// dispatch time.
package tools

import (
	"fmt"
	"sort"
)

// Ident is the strong type for tool identifiers (e.g., "create_calendar_event").
// Use this type when referencing tools in maps or APIs to avoid accidental
// mixing with free-form strings.
type Ident string

// String returns the identifier as a plain string.
func (i Ident) String() string { return string(i) }

// ParamType enumerates the argument value types supported by tool schemas.
type ParamType string

const (
	// ParamString accepts JSON strings.
	ParamString ParamType = "string"
	// ParamNumber accepts JSON numbers, integral or not.
	ParamNumber ParamType = "number"
	// ParamInteger accepts whole JSON numbers.
	ParamInteger ParamType = "integer"
	// ParamBoolean accepts JSON booleans.
	ParamBoolean ParamType = "boolean"
)

type (
	// Param describes a single tool argument. The registry compiles the full
	// parameter set into a JSON schema; oracle adapters forward the same schema
	// to model providers so the model sees exactly what the registry enforces.
	Param struct {
		// Type constrains the argument value.
		Type ParamType
		// Description provides human-readable context surfaced to the model.
		Description string
		// Required marks arguments that must be present after validation.
		Required bool
		// Default is applied by ValidateArgs when the argument is absent.
		// Must be nil for required parameters.
		Default any
		// Enum optionally restricts string arguments to a fixed value set.
		Enum []string
	}

	// Spec declares a tool: its identifier, the capability family that executes
	// it, the authorization scope a session must hold, and the argument schema.
	Spec struct {
		// Name is the unique tool identifier.
		Name Ident
		// Description provides human-readable context for the oracle.
		Description string
		// Family identifies the capability adapter that executes the tool
		// (e.g., "calendar", "tasks", "repohost").
		Family string
		// Scope is the authorization scope required to dispatch the tool
		// (e.g., "calendar:write"). Checked before any adapter is called.
		Scope string
		// Params maps argument names to their declarations.
		Params map[string]Param
	}
)

// Validate reports whether the spec is well formed: non-empty name, family and
// scope, known parameter types, and no defaults on required parameters.
func (s Spec) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("tool spec: name is required")
	}
	if s.Family == "" {
		return fmt.Errorf("tool %q: capability family is required", s.Name)
	}
	if s.Scope == "" {
		return fmt.Errorf("tool %q: authorization scope is required", s.Name)
	}
	for name, p := range s.Params {
		switch p.Type {
		case ParamString, ParamNumber, ParamInteger, ParamBoolean:
		default:
			return fmt.Errorf("tool %q: parameter %q has unknown type %q", s.Name, name, p.Type)
		}
		if p.Required && p.Default != nil {
			return fmt.Errorf("tool %q: parameter %q is required and cannot carry a default", s.Name, name)
		}
		if len(p.Enum) > 0 && p.Type != ParamString {
			return fmt.Errorf("tool %q: parameter %q declares an enum but is not a string", s.Name, name)
		}
	}
	return nil
}

// JSONSchema renders the argument schema as a JSON-schema object document.
// Unknown keys are rejected (additionalProperties: false) so misdispatched
// arguments fail validation instead of being silently dropped.
func (s Spec) JSONSchema() map[string]any {
	properties := make(map[string]any, len(s.Params))
	required := make([]string, 0, len(s.Params))
	for name, p := range s.Params {
		prop := map[string]any{"type": string(p.Type)}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		if len(p.Enum) > 0 {
			vals := make([]any, len(p.Enum))
			for i, v := range p.Enum {
				vals[i] = v
			}
			prop["enum"] = vals
		}
		if p.Default != nil {
			prop["default"] = p.Default
		}
		properties[name] = prop
		if p.Required {
			required = append(required, name)
		}
	}
	sort.Strings(required)
	schema := map[string]any{
		"type":                 "object",
		"properties":           properties,
		"additionalProperties": false,
	}
	if len(required) > 0 {
		req := make([]any, len(required))
		for i, r := range required {
			req[i] = r
		}
		schema["required"] = req
	}
	return schema
}
