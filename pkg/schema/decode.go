package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	// ErrDuplicateField is returned when two fields share a name.
	ErrDuplicateField = errors.New("schema: duplicate field name")
	// ErrUnknownType is returned when a field declares an unsupported type.
	ErrUnknownType = errors.New("schema: unknown field type")
	// ErrEmptyDocument is returned when a schema payload is blank.
	ErrEmptyDocument = errors.New("schema: document is empty")
)

// Valid reports whether t is one of the supported field types.
func (t FieldType) Valid() bool {
	for _, known := range FieldTypes() {
		if known == t {
			return true
		}
	}
	return false
}

// UnmarshalJSON accepts both {"label","value"} objects and bare strings.
func (o *Option) UnmarshalJSON(data []byte) error {
	var plain string
	if err := json.Unmarshal(data, &plain); err == nil {
		*o = Option{Label: plain, Value: plain}
		return nil
	}
	type rawOption Option
	var raw rawOption
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("schema: decode option: %w", err)
	}
	*o = normalizeOption(Option(raw))
	return nil
}

// UnmarshalYAML mirrors UnmarshalJSON for YAML fixtures.
func (o *Option) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		*o = Option{Label: node.Value, Value: node.Value}
		return nil
	}
	type rawOption Option
	var raw rawOption
	if err := node.Decode(&raw); err != nil {
		return fmt.Errorf("schema: decode option: %w", err)
	}
	*o = normalizeOption(Option(raw))
	return nil
}

func normalizeOption(opt Option) Option {
	if opt.Value == "" {
		opt.Value = opt.Label
	}
	if opt.Label == "" {
		opt.Label = opt.Value
	}
	return opt
}

// wireSchema tolerates the flat layout the registration backend sends
// ({_id, formName, fields}) alongside the sectioned layout.
type wireSchema struct {
	ID              string          `json:"id" yaml:"id"`
	MongoID         string          `json:"_id" yaml:"_id"`
	Name            string          `json:"name" yaml:"name"`
	FormName        string          `json:"formName" yaml:"formName"`
	Sections        []Section       `json:"sections" yaml:"sections"`
	Fields          []Field         `json:"fields" yaml:"fields"`
	PaymentRequired bool            `json:"paymentRequired" yaml:"paymentRequired"`
	PaymentDetails  *PaymentDetails `json:"paymentDetails" yaml:"paymentDetails"`
	Instructions    string          `json:"instructions" yaml:"instructions"`
}

func (w wireSchema) toSchema() FormSchema {
	out := FormSchema{
		ID:              firstNonEmpty(w.ID, w.MongoID),
		Name:            firstNonEmpty(w.Name, w.FormName),
		Sections:        w.Sections,
		PaymentRequired: w.PaymentRequired,
		PaymentDetails:  w.PaymentDetails,
		Instructions:    w.Instructions,
	}
	if len(out.Sections) == 0 && len(w.Fields) > 0 {
		out.Sections = []Section{{Fields: w.Fields}}
	}
	return out
}

// UnmarshalJSON decodes either schema layout.
func (s *FormSchema) UnmarshalJSON(data []byte) error {
	var wire wireSchema
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	*s = wire.toSchema()
	return nil
}

// Parse decodes a JSON or YAML schema document and validates it.
func Parse(data []byte, source string) (FormSchema, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return FormSchema{}, fmt.Errorf("%w: %s", ErrEmptyDocument, source)
	}

	var wire wireSchema
	if err := json.Unmarshal(data, &wire); err != nil {
		wire = wireSchema{}
		if yerr := yaml.Unmarshal(data, &wire); yerr != nil {
			return FormSchema{}, fmt.Errorf("schema: parse %s: invalid JSON or YAML", source)
		}
	}

	out := wire.toSchema()
	if err := out.Validate(); err != nil {
		return FormSchema{}, fmt.Errorf("schema: %s: %w", source, err)
	}
	return out, nil
}

// Validate enforces name uniqueness and the closed type set.
func (s FormSchema) Validate() error {
	seen := make(map[string]struct{})
	for _, field := range s.Fields() {
		name := strings.TrimSpace(field.Name)
		if name == "" {
			return fmt.Errorf("schema: field %q has an empty name", field.Label)
		}
		if _, exists := seen[name]; exists {
			return fmt.Errorf("%w: %q", ErrDuplicateField, name)
		}
		seen[name] = struct{}{}
		if !field.Type.Valid() {
			return fmt.Errorf("%w: %q on field %q", ErrUnknownType, field.Type, name)
		}
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
