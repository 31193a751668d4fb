package normalize

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/xeipuuv/gojsonschema"
)

// Base reply fields every persona must return.
const (
	FieldContent    = "content"
	FieldConfidence = "confidence"
	FieldReasoning  = "reasoning"
)

// Schema is a compiled JSON schema for one persona's reply.
type Schema struct {
	raw      []byte
	fields   []string
	compiled *gojsonschema.Schema
}

// BuildSchema returns the reply schema with the base fields plus extra properties.
func BuildSchema(extra map[string]json.RawMessage) (*Schema, error) {
	props := map[string]json.RawMessage{
		FieldContent:    json.RawMessage(`{"type":"string","description":"the reply shown to the user"}`),
		FieldConfidence: json.RawMessage(`{"description":"a number between 0 and 1"}`),
		FieldReasoning:  json.RawMessage(`{"description":"a short private rationale"}`),
	}
	fields := []string{FieldContent, FieldConfidence, FieldReasoning}
	extraNames := make([]string, 0, len(extra))
	for name, def := range extra {
		if _, ok := props[name]; ok {
			return nil, fmt.Errorf("schema field %q is reserved", name)
		}
		if !json.Valid(def) {
			return nil, fmt.Errorf("schema field %q is not valid JSON", name)
		}
		props[name] = def
		extraNames = append(extraNames, name)
	}
	sort.Strings(extraNames)
	fields = append(fields, extraNames...)

	raw, err := json.Marshal(map[string]any{
		"type":       "object",
		"required":   []string{FieldContent},
		"properties": props,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &Schema{raw: raw, fields: fields, compiled: compiled}, nil
}

// MustBuildSchema panics on an invalid schema; for package-level defaults.
func MustBuildSchema(extra map[string]json.RawMessage) *Schema {
	s, err := BuildSchema(extra)
	if err != nil {
		panic(err)
	}
	return s
}

func (s *Schema) Raw() json.RawMessage { return json.RawMessage(s.raw) }

// Fields lists the declared reply fields, base fields first.
func (s *Schema) Fields() []string { return append([]string(nil), s.fields...) }

func (s *Schema) validate(doc []byte) ([]string, error) {
	result, err := s.compiled.Validate(gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return nil, err
	}
	if result.Valid() {
		return nil, nil
	}
	problems := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		problems = append(problems, e.String())
	}
	return problems, nil
}
