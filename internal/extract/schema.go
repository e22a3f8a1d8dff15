// Package extract drives LLM-based knowledge graph extraction from a
// document chunk: it asks the configured ports.LLM for a structured
// KnowledgeGraph matching a JSON schema generated by reflection over the
// Go result type, instead of hand-maintaining a schema string.
package extract

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/invopop/jsonschema"
)

// SchemaConfig mirrors the reflector knobs that matter for LLM structured
// output: no $ref indirection (providers want a single flat object), no
// additional properties (strict mode), no $schema banner.
type SchemaConfig struct {
	DoNotReference            bool
	AllowAdditionalProperties bool
	IncludeSchemaVersion      bool
}

func defaultSchemaConfig() SchemaConfig {
	return SchemaConfig{DoNotReference: true, AllowAdditionalProperties: false}
}

// MapSchemaOf generates a JSON schema (as a map, the shape
// StructuredComplete's provider adapters expect) for v by reflection.
func MapSchemaOf(v any) (map[string]any, error) {
	return mapSchemaOfWithConfig(v, defaultSchemaConfig())
}

func mapSchemaOfWithConfig(v any, cfg SchemaConfig) (map[string]any, error) {
	if v == nil {
		return nil, fmt.Errorf("cannot generate schema for nil value")
	}
	r := &jsonschema.Reflector{
		DoNotReference:            cfg.DoNotReference,
		AllowAdditionalProperties: cfg.AllowAdditionalProperties,
	}
	t := reflect.TypeOf(v)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() == reflect.Struct {
		r.ExpandedStruct = true
	}
	schema := r.Reflect(v)
	if schema == nil {
		return nil, fmt.Errorf("failed to reflect schema for type %T", v)
	}
	if !cfg.IncludeSchemaVersion {
		schema.Version = ""
	}
	raw, err := schema.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("marshal schema to JSON: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("unmarshal schema to map: %w", err)
	}
	return m, nil
}
