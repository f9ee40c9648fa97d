// Package schema publishes JSON Schemas for the documents tracegate reads
// and writes, so bindings in other languages can validate against them.
package schema

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/invopop/jsonschema"

	"github.com/ppiankov/tracegate/internal/audit"
	"github.com/ppiankov/tracegate/internal/denylist"
	"github.com/ppiankov/tracegate/internal/model"
	"github.com/ppiankov/tracegate/internal/policy"
	"github.com/ppiankov/tracegate/internal/tracer"
)

// documents maps schema names to a zero value of the described type.
var documents = map[string]any{
	"decision":    model.ResultJSON{},
	"event":       tracer.Event{},
	"audit-entry": audit.Entry{},
	"snapshot":    tracer.Snapshot{},
	"policy":      policy.PolicyConfig{},
	"denylist":    denylist.Patterns{},
}

// Names lists the available schemas in sorted order.
func Names() []string {
	names := make([]string, 0, len(documents))
	for n := range documents {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Generate returns the indented JSON Schema for a named document.
func Generate(name string) ([]byte, error) {
	v, ok := documents[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown schema %q", model.ErrInvalidArgument, name)
	}
	return GenerateSchema(v)
}

// GenerateSchema creates a JSON Schema (draft 2020-12) from a Go value.
func GenerateSchema(v any) ([]byte, error) {
	reflector := jsonschema.Reflector{
		ExpandedStruct: true,
	}
	s := reflector.Reflect(v)

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	return data, nil
}
