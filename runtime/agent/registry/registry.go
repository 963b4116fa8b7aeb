// Package registry provides the static tool catalog consulted by the
// orchestration loop before any dispatch. Registration happens once at process
// start; after Freeze the registry is read-only and safe for concurrent use by
// any number of sessions without locking on the read path.
//
// Argument validation compiles each tool's declared parameter set into a JSON
// schema (github.com/santhosh-tekuri/jsonschema) at registration time, so
// per-call validation is a pure, idempotent check against a compiled schema.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"goa.design/aide/runtime/agent/toolerrors"
	"goa.design/aide/runtime/agent/tools"
)

var (
	// ErrDuplicateTool indicates a tool name was registered twice.
	ErrDuplicateTool = errors.New("duplicate tool")
	// ErrUnknownTool indicates a tool name not present in the registry.
	ErrUnknownTool = errors.New("unknown tool")
	// ErrFrozen indicates a registration attempt after Freeze.
	ErrFrozen = errors.New("registry is frozen")
)

type (
	// Registry maps tool names to their specs and compiled argument schemas.
	// Register all tools during startup, call Freeze, then share the registry
	// across sessions.
	Registry struct {
		mu      sync.RWMutex
		frozen  bool
		entries map[tools.Ident]*entry
	}

	entry struct {
		spec   tools.Spec
		schema *jsonschema.Schema
	}
)

// New returns an empty Registry.
func New() *Registry {
	return &Registry{entries: make(map[tools.Ident]*entry)}
}

// Register adds a tool spec to the registry. It fails with ErrDuplicateTool if
// the name is already taken, with ErrFrozen after Freeze, and with a
// compilation error if the argument schema is malformed.
func (r *Registry) Register(spec tools.Spec) error {
	if err := spec.Validate(); err != nil {
		return err
	}
	schema, err := compileSchema(spec)
	if err != nil {
		return fmt.Errorf("tool %q: %w", spec.Name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return ErrFrozen
	}
	if _, dup := r.entries[spec.Name]; dup {
		return fmt.Errorf("%w: %s", ErrDuplicateTool, spec.Name)
	}
	r.entries[spec.Name] = &entry{spec: spec, schema: schema}
	return nil
}

// MustRegister registers the specs and panics on error. Intended for process
// startup where a malformed tool spec is a programming error.
func (r *Registry) MustRegister(specs ...tools.Spec) {
	for _, s := range specs {
		if err := r.Register(s); err != nil {
			panic(err)
		}
	}
}

// Freeze transitions the registry to read-only. Idempotent.
func (r *Registry) Freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

// Resolve returns the spec registered under name, or an error wrapping
// ErrUnknownTool when absent.
func (r *Registry) Resolve(name tools.Ident) (tools.Spec, error) {
	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		return tools.Spec{}, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	return e.spec, nil
}

// Specs returns all registered specs ordered by name. The slice is a copy;
// callers may retain it.
func (r *Registry) Specs() []tools.Spec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]tools.Spec, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.spec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ValidateArgs checks the arguments against the tool's compiled schema and
// returns the normalized argument map with defaults applied. Unknown keys are
// rejected rather than dropped. Validation failures are reported as a
// *toolerrors.ToolError with KindInvalidArguments (KindUnknownTool when the
// tool itself is absent).
//
// ValidateArgs is idempotent: re-validating a returned argument map always
// succeeds and returns an equal map.
func (r *Registry) ValidateArgs(name tools.Ident, args map[string]any) (map[string]any, error) {
	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		return nil, toolerrors.Newf(toolerrors.KindUnknownTool, "tool %q is not registered", name)
	}

	normalized, err := normalize(args)
	if err != nil {
		return nil, toolerrors.Wrap(toolerrors.KindInvalidArguments, fmt.Sprintf("tool %q: arguments are not JSON-representable", name), err)
	}
	if err := e.schema.Validate(normalized); err != nil {
		return nil, toolerrors.Wrap(toolerrors.KindInvalidArguments, fmt.Sprintf("tool %q: %v", name, err), err)
	}
	out, ok := normalized.(map[string]any)
	if !ok {
		out = make(map[string]any)
	}
	for pname, p := range e.spec.Params {
		if p.Default == nil {
			continue
		}
		if _, present := out[pname]; !present {
			dv, derr := normalize(p.Default)
			if derr != nil {
				return nil, toolerrors.Wrap(toolerrors.KindInvalidArguments, fmt.Sprintf("tool %q: default for %q", name, pname), derr)
			}
			out[pname] = dv
		}
	}
	return out, nil
}

// compileSchema renders the spec's parameter set into a JSON schema document
// and compiles it.
func compileSchema(spec tools.Spec) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(spec.JSONSchema())
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("schema.json", doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	schema, err := c.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}

// normalize converts an argument value to its canonical JSON representation
// (map[string]any with float64 numbers) so schema validation sees the same
// shapes regardless of how callers constructed the map. A nil map normalizes
// to an empty object.
func normalize(v any) (any, error) {
	if v == nil {
		return map[string]any{}, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	if out == nil {
		return map[string]any{}, nil
	}
	return out, nil
}
