package schema

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// ProgramSchemaID is the $id of the generated program schema.
const ProgramSchemaID = "https://github.com/ormasoftchile/keystep/schemas/program-v0.json"

// GenerateProgramJSONSchema produces a JSON Schema Draft 2020-12 document
// from the keystep/v0 Program Go types.
func GenerateProgramJSONSchema() ([]byte, error) {
	r := new(jsonschema.Reflector)
	s := r.Reflect(&Program{})
	s.ID = ProgramSchemaID
	s.Title = "keystep program (keystep/v0)"
	s.Description = "Schema for keystep/v0 program documents (Draft 2020-12)"

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal program schema: %w", err)
	}
	return data, nil
}

// GenerateShortcutJSONSchema produces the schema of a single shortcut binding.
func GenerateShortcutJSONSchema() ([]byte, error) {
	r := new(jsonschema.Reflector)
	s := r.Reflect(&Shortcut{})
	s.ID = "https://github.com/ormasoftchile/keystep/schemas/shortcut-v0.json"
	s.Title = "keystep shortcut (keystep/v0)"

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal shortcut schema: %w", err)
	}
	return data, nil
}

// JSONSchema describes Action as a oneOf over the sixteen kinds. Each arm pins
// the "action" tag, requires that kind's fields and forbids all others.
func (Action) JSONSchema() *jsonschema.Schema {
	s := &jsonschema.Schema{
		Title:       "Action",
		Description: "One step of a program; the action tag selects the field set",
	}
	for _, kind := range ActionKinds {
		props := jsonschema.NewProperties()
		props.Set("action", &jsonschema.Schema{Type: "string", Const: string(kind)})
		required := []string{"action"}
		for _, f := range kind.Fields() {
			if f == FieldArgs {
				props.Set(f, &jsonschema.Schema{
					Type:  "array",
					Items: &jsonschema.Schema{Type: "string"},
				})
			} else {
				props.Set(f, &jsonschema.Schema{Type: "string"})
			}
			required = append(required, f)
		}
		s.OneOf = append(s.OneOf, &jsonschema.Schema{
			Type:                 "object",
			Title:                string(kind),
			Properties:           props,
			Required:             required,
			AdditionalProperties: jsonschema.FalseSchema,
		})
	}
	return s
}
