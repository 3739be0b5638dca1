package schema

import "strings"

// FieldType is the closed set of input kinds a backend schema may declare.
type FieldType string

const (
	FieldTypeText           FieldType = "text"
	FieldTypeEmail          FieldType = "email"
	FieldTypePassword       FieldType = "password"
	FieldTypeNumber         FieldType = "number"
	FieldTypeDate           FieldType = "date"
	FieldTypeTime           FieldType = "time"
	FieldTypeFile           FieldType = "file"
	FieldTypeCheckbox       FieldType = "checkbox"
	FieldTypeRadio          FieldType = "radio"
	FieldTypeSelect         FieldType = "select"
	FieldTypeSelectMultiple FieldType = "select-multiple"
	FieldTypeTextarea       FieldType = "textarea"
	FieldTypeRange          FieldType = "range"
	FieldTypeColor          FieldType = "color"
)

// FieldTypes lists every supported type in declaration order.
func FieldTypes() []FieldType {
	return []FieldType{
		FieldTypeText,
		FieldTypeEmail,
		FieldTypePassword,
		FieldTypeNumber,
		FieldTypeDate,
		FieldTypeTime,
		FieldTypeFile,
		FieldTypeCheckbox,
		FieldTypeRadio,
		FieldTypeSelect,
		FieldTypeSelectMultiple,
		FieldTypeTextarea,
		FieldTypeRange,
		FieldTypeColor,
	}
}

// Option is a selectable choice for radio, select and select-multiple fields.
type Option struct {
	Label string `json:"label" yaml:"label"`
	Value string `json:"value" yaml:"value"`
}

// Field declares a single typed input. Numeric bounds apply to number and
// range fields, length bounds to text-like fields.
type Field struct {
	Name        string    `json:"name" yaml:"name"`
	Label       string    `json:"label" yaml:"label"`
	Type        FieldType `json:"type" yaml:"type"`
	Required    bool      `json:"required" yaml:"required"`
	Placeholder string    `json:"placeholder,omitempty" yaml:"placeholder,omitempty"`
	Options     []Option  `json:"options,omitempty" yaml:"options,omitempty"`
	Min         *float64  `json:"min,omitempty" yaml:"min,omitempty"`
	Max         *float64  `json:"max,omitempty" yaml:"max,omitempty"`
	Step        *float64  `json:"step,omitempty" yaml:"step,omitempty"`
	MinLength   *int      `json:"minLength,omitempty" yaml:"minLength,omitempty"`
	MaxLength   *int      `json:"maxLength,omitempty" yaml:"maxLength,omitempty"`
	Rows        int       `json:"rows,omitempty" yaml:"rows,omitempty"`
}

// DisplayLabel falls back to the field name when no label is declared.
func (f Field) DisplayLabel() string {
	if label := strings.TrimSpace(f.Label); label != "" {
		return label
	}
	return f.Name
}

// HasOption reports whether value matches one of the declared options.
func (f Field) HasOption(value string) bool {
	for _, opt := range f.Options {
		if opt.Value == value {
			return true
		}
	}
	return false
}

// Section groups fields; order is display-significant.
type Section struct {
	Title  string  `json:"title,omitempty" yaml:"title,omitempty"`
	Fields []Field `json:"fields" yaml:"fields"`
}

// PaymentDetails describes the fee attached to a form.
type PaymentDetails struct {
	Amount   float64 `json:"amount" yaml:"amount"`
	Method   string  `json:"method,omitempty" yaml:"method,omitempty"`
	Currency string  `json:"currency,omitempty" yaml:"currency,omitempty"`
}

// FormSchema is the backend-owned definition of a form. Treat values as
// immutable snapshots; session-scoped additions live in an Overlay.
type FormSchema struct {
	ID              string          `json:"id" yaml:"id"`
	Name            string          `json:"name" yaml:"name"`
	Sections        []Section       `json:"sections" yaml:"sections"`
	PaymentRequired bool            `json:"paymentRequired" yaml:"paymentRequired"`
	PaymentDetails  *PaymentDetails `json:"paymentDetails,omitempty" yaml:"paymentDetails,omitempty"`
	Instructions    string          `json:"instructions,omitempty" yaml:"instructions,omitempty"`
}

// Fields returns every field in declaration order across sections.
func (s FormSchema) Fields() []Field {
	var out []Field
	for _, section := range s.Sections {
		out = append(out, section.Fields...)
	}
	return out
}

// Field looks up a field by name.
func (s FormSchema) Field(name string) (Field, bool) {
	for _, section := range s.Sections {
		for _, field := range section.Fields {
			if field.Name == name {
				return field, true
			}
		}
	}
	return Field{}, false
}

// Index returns the declaration position of a field, or -1.
func (s FormSchema) Index(name string) int {
	idx := 0
	for _, section := range s.Sections {
		for _, field := range section.Fields {
			if field.Name == name {
				return idx
			}
			idx++
		}
	}
	return -1
}

// Clone returns a deep copy so callers can merge overlays without touching
// the original snapshot.
func (s FormSchema) Clone() FormSchema {
	out := s
	if s.PaymentDetails != nil {
		details := *s.PaymentDetails
		out.PaymentDetails = &details
	}
	out.Sections = make([]Section, len(s.Sections))
	for i, section := range s.Sections {
		fields := make([]Field, len(section.Fields))
		for j, field := range section.Fields {
			field.Options = append([]Option(nil), field.Options...)
			fields[j] = field
		}
		out.Sections[i] = Section{Title: section.Title, Fields: fields}
	}
	return out
}
