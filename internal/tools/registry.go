// Package tools maps assistant function names to service operations.
//
// The Table is built once at startup from the configured adapters. Each turn
// binds it to the caller's customer profile, yielding a Registry the run
// driver resolves tool calls against.
package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Definition describes a tool the way the assistant declares it.
type Definition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Call is one invocation: raw arguments plus the turn's customer.
type Call struct {
	Args     json.RawMessage
	Customer Customer
}

// Handler runs a tool. Failures are returned, never panicked.
type Handler func(ctx context.Context, call Call) (any, error)

// Func is a resolved tool with the customer already bound.
type Func func(ctx context.Context, args json.RawMessage) (any, error)

type entry struct {
	def     Definition
	schema  *gojsonschema.Schema
	handler Handler
}

type Table struct {
	entries map[string]*entry
	names   []string
}

func newTable() *Table {
	return &Table{entries: map[string]*entry{}}
}

// Register adds a tool. The parameter schema is compiled up front.
func (t *Table) Register(def Definition, h Handler) error {
	if def.Name == "" {
		return fmt.Errorf("tool without name")
	}
	if _, dup := t.entries[def.Name]; dup {
		return fmt.Errorf("tool %s registered twice", def.Name)
	}
	if def.Parameters == nil {
		def.Parameters = object(nil, nil)
	}
	schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(def.Parameters))
	if err != nil {
		return fmt.Errorf("tool %s: compile schema: %w", def.Name, err)
	}
	t.entries[def.Name] = &entry{def: def, schema: schema, handler: h}
	t.names = append(t.names, def.Name)
	return nil
}

func (t *Table) mustRegister(def Definition, h Handler) {
	if err := t.Register(def, h); err != nil {
		panic(err)
	}
}

// Definitions returns the tools in registration order.
func (t *Table) Definitions() []Definition {
	out := make([]Definition, 0, len(t.names))
	for _, n := range t.names {
		out = append(out, t.entries[n].def)
	}
	return out
}

func (t *Table) Names() []string {
	return append([]string(nil), t.names...)
}

// Bind returns the per-turn view of the table.
func (t *Table) Bind(c Customer) *Registry {
	return &Registry{table: t, customer: c}
}

type Registry struct {
	table    *Table
	customer Customer
}

// Lookup resolves name. A miss is reported with ok=false, not an error.
func (r *Registry) Lookup(name string) (Func, bool) {
	e, ok := r.table.entries[name]
	if !ok {
		return nil, false
	}
	return func(ctx context.Context, args json.RawMessage) (any, error) {
		args = normalize(args)
		if err := e.validate(args); err != nil {
			return nil, err
		}
		return e.handler(ctx, Call{Args: args, Customer: r.customer})
	}, true
}

func normalize(args json.RawMessage) json.RawMessage {
	if len(bytes.TrimSpace(args)) == 0 {
		return json.RawMessage("{}")
	}
	return args
}

func (e *entry) validate(args json.RawMessage) error {
	res, err := e.schema.Validate(gojsonschema.NewBytesLoader(args))
	if err != nil {
		return fmt.Errorf("invalid arguments for %s: %w", e.def.Name, err)
	}
	if res.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(res.Errors()))
	for _, d := range res.Errors() {
		msgs = append(msgs, d.String())
	}
	return fmt.Errorf("invalid arguments for %s: %s", e.def.Name, strings.Join(msgs, "; "))
}

// typed decodes validated arguments into A before calling fn.
func typed[A any](fn func(ctx context.Context, args A, c Customer) (any, error)) Handler {
	return func(ctx context.Context, call Call) (any, error) {
		var args A
		if err := json.Unmarshal(call.Args, &args); err != nil {
			return nil, fmt.Errorf("decode arguments: %w", err)
		}
		return fn(ctx, args, call.Customer)
	}
}

func object(required []string, props map[string]any) map[string]any {
	if props == nil {
		props = map[string]any{}
	}
	o := map[string]any{"type": "object", "properties": props}
	if len(required) > 0 {
		o["required"] = required
	}
	return o
}

func str(desc string) map[string]any {
	return map[string]any{"type": "string", "description": desc}
}

// profileField accepts whatever a stored profile holds for the key,
// including null for fields the customer never filled in.
func profileField(desc string) map[string]any {
	return map[string]any{"type": []string{"string", "number", "null"}, "description": desc}
}

func integer(desc string) map[string]any {
	return map[string]any{"type": "integer", "description": desc}
}

func boolean(desc string) map[string]any {
	return map[string]any{"type": "boolean", "description": desc}
}
