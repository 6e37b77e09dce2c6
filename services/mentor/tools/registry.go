// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package tools provides the capability registry the mentor agent draws on:
// named handlers over the academic database, validated at construction and
// rendered into the model's capability preamble.
package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// =============================================================================
// Capability Types
// =============================================================================

// Handler executes one capability invocation.
//
// Description:
//
//	Receives the argument object the model supplied. Returns the result
//	value to be serialized back into the conversation, or an error when
//	the capability itself failed. Handlers must not panic.
type Handler func(ctx context.Context, args map[string]any) (any, error)

// ParamSpec describes one parameter of a capability.
type ParamSpec struct {
	// Name is the argument key the model must use.
	Name string

	// Type is a human-readable type hint ("string", "int").
	Type string

	// Description explains the parameter to the model.
	Description string

	// Required marks parameters the capability cannot run without.
	Required bool
}

// Spec describes one capability for registration and for the model-facing
// catalog text.
type Spec struct {
	// Name is the unique capability name the model invokes.
	Name string

	// Description explains what the capability does.
	Description string

	// Params lists accepted parameters, required ones first by convention.
	Params []ParamSpec
}

// =============================================================================
// Registry
// =============================================================================

// Registry maps capability names to handlers.
//
// Description:
//
//	All capabilities are registered at startup and the registry is
//	read-only afterwards. Lookup of an unregistered name is a normal
//	condition the invoker reports back to the model, never a panic.
//
// Thread Safety: Safe for concurrent use. Registration is expected at
// startup, but the mutex makes late registration safe too.
type Registry struct {
	mu       sync.RWMutex
	specs    map[string]Spec
	handlers map[string]Handler
}

// NewRegistry creates an empty capability registry.
func NewRegistry() *Registry {
	return &Registry{
		specs:    make(map[string]Spec),
		handlers: make(map[string]Handler),
	}
}

// Register adds a capability to the registry.
//
// Description:
//
//	Validates the spec and handler before accepting them. Duplicate
//	names are rejected so a misconfigured startup fails loudly instead
//	of silently shadowing a capability.
//
// Inputs:
//   - spec: Capability description. Name must be non-empty.
//   - handler: The function to invoke. Must not be nil.
//
// Outputs:
//   - error: Non-nil on empty name, nil handler, or duplicate name.
func (r *Registry) Register(spec Spec, handler Handler) error {
	if spec.Name == "" {
		return fmt.Errorf("tools: capability name must not be empty")
	}
	if handler == nil {
		return fmt.Errorf("tools: handler for %q must not be nil", spec.Name)
	}
	for i, p := range spec.Params {
		if p.Name == "" {
			return fmt.Errorf("tools: capability %q param[%d] name must not be empty", spec.Name, i)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[spec.Name]; exists {
		return fmt.Errorf("tools: capability %q already registered", spec.Name)
	}
	r.specs[spec.Name] = spec
	r.handlers[spec.Name] = handler
	return nil
}

// Lookup returns the handler for a capability name.
//
// Outputs:
//   - Handler: The registered handler, nil if absent.
//   - bool: Whether the name is registered.
func (r *Registry) Lookup(name string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	return h, ok
}

// Names returns all registered capability names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Specs returns all registered capability specs, sorted by name.
func (r *Registry) Specs() []Spec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	specs := make([]Spec, 0, len(r.specs))
	for _, s := range r.specs {
		specs = append(specs, s)
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })
	return specs
}

// Len returns the number of registered capabilities.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers)
}

// CatalogText renders the capability catalog for the model's system preamble.
//
// Description:
//
//	One block per capability: name, description, and the parameter list
//	with required parameters marked with "*". The model is told to use
//	exactly these names and argument keys.
//
// Outputs:
//   - string: Human/model-readable catalog. Empty registry renders a
//     "no capabilities" line.
func (r *Registry) CatalogText() string {
	specs := r.Specs()
	if len(specs) == 0 {
		return "No capabilities are currently available."
	}

	var b strings.Builder
	b.WriteString("Available capabilities (required parameters marked with *):\n")
	for _, s := range specs {
		fmt.Fprintf(&b, "\n- %s: %s\n", s.Name, s.Description)
		if len(s.Params) == 0 {
			b.WriteString("  Parameters: none\n")
			continue
		}
		b.WriteString("  Parameters:\n")
		for _, p := range s.Params {
			marker := ""
			if p.Required {
				marker = "*"
			}
			fmt.Fprintf(&b, "    %s%s (%s): %s\n", p.Name, marker, p.Type, p.Description)
		}
	}
	return b.String()
}

// =============================================================================
// Argument Helpers
// =============================================================================

// StringArg extracts a required string argument.
//
// Outputs:
//   - string: The value.
//   - error: Non-nil if the key is absent or not a string.
func StringArg(args map[string]any, key string) (string, error) {
	v, ok := args[key]
	if !ok {
		return "", fmt.Errorf("tools: missing required parameter %q", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("tools: parameter %q must be a string, got %T", key, v)
	}
	if s == "" {
		return "", fmt.Errorf("tools: parameter %q must not be empty", key)
	}
	return s, nil
}

// OptionalStringArg extracts an optional string argument, returning the
// fallback when the key is absent.
func OptionalStringArg(args map[string]any, key, fallback string) (string, error) {
	v, ok := args[key]
	if !ok {
		return fallback, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("tools: parameter %q must be a string, got %T", key, v)
	}
	return s, nil
}

// IntArg extracts a required integer argument. JSON numbers arrive as
// float64; both int and float64 are accepted.
func IntArg(args map[string]any, key string) (int, error) {
	v, ok := args[key]
	if !ok {
		return 0, fmt.Errorf("tools: missing required parameter %q", key)
	}
	return coerceInt(key, v)
}

// OptionalIntArg extracts an optional integer argument, returning the
// fallback when the key is absent.
func OptionalIntArg(args map[string]any, key string, fallback int) (int, error) {
	v, ok := args[key]
	if !ok {
		return fallback, nil
	}
	return coerceInt(key, v)
}

func coerceInt(key string, v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n != float64(int(n)) {
			return 0, fmt.Errorf("tools: parameter %q must be an integer, got %v", key, n)
		}
		return int(n), nil
	default:
		return 0, fmt.Errorf("tools: parameter %q must be an integer, got %T", key, v)
	}
}
