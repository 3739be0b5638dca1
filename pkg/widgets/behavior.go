package widgets

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/goliatone/go-formengine/pkg/response"
	"github.com/goliatone/go-formengine/pkg/schema"
)

// ErrInvalidValue is returned when a change event cannot be stored for the
// field's value kind.
var ErrInvalidValue = errors.New("widgets: value does not fit field kind")

// OtherOption is the sentinel choice that opens the free-text sub-field of a
// select.
const OtherOption = "Other"

// Kind is the shape of the value a field keeps in the response store.
type Kind string

const (
	KindText Kind = "text"
	KindBool Kind = "bool"
	KindList Kind = "list"
	KindFile Kind = "file"
)

// Behavior is the interaction contract of one field type.
type Behavior struct {
	Type          schema.FieldType
	Control       Control
	InputType     string
	Kind          Kind
	OtherSentinel bool
}

// Default returns the initial store value for the kind.
func (b Behavior) Default() any {
	switch b.Kind {
	case KindBool:
		return false
	case KindList:
		return []string{}
	case KindFile:
		return response.FileRef{}
	default:
		return ""
	}
}

// Coerce converts a raw change event into the value stored for this kind.
// It never applies business rules.
func (b Behavior) Coerce(raw any) (any, error) {
	switch b.Kind {
	case KindBool:
		return coerceBool(raw)
	case KindList:
		return coerceList(raw)
	case KindFile:
		return coerceFile(raw)
	default:
		return coerceText(raw)
	}
}

// Options returns the choices a renderer should offer for field. For
// selects the "Other" sentinel is appended unless the field already has it.
func (b Behavior) Options(field schema.Field) []schema.Option {
	opts := append([]schema.Option(nil), field.Options...)
	if b.OtherSentinel && !field.HasOption(OtherOption) {
		opts = append(opts, schema.Option{Label: OtherOption, Value: OtherOption})
	}
	return opts
}

func coerceText(raw any) (any, error) {
	switch v := raw.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case bool:
		return strconv.FormatBool(v), nil
	case int:
		return strconv.Itoa(v), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	default:
		return nil, fmt.Errorf("%w: %T as text", ErrInvalidValue, raw)
	}
}

func coerceBool(raw any) (any, error) {
	switch v := raw.(type) {
	case nil:
		return false, nil
	case bool:
		return v, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "", "off", "no":
			return false, nil
		case "on", "yes":
			return true, nil
		}
		parsed, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return nil, fmt.Errorf("%w: %q as bool", ErrInvalidValue, v)
		}
		return parsed, nil
	default:
		return nil, fmt.Errorf("%w: %T as bool", ErrInvalidValue, raw)
	}
}

func coerceList(raw any) (any, error) {
	switch v := raw.(type) {
	case nil:
		return []string{}, nil
	case []string:
		return append([]string{}, v...), nil
	case string:
		if v == "" {
			return []string{}, nil
		}
		return []string{v}, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			str, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%w: list item %T", ErrInvalidValue, item)
			}
			out = append(out, str)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %T as list", ErrInvalidValue, raw)
	}
}

func coerceFile(raw any) (any, error) {
	switch v := raw.(type) {
	case nil:
		return response.FileRef{}, nil
	case response.FileRef:
		return v, nil
	case string:
		if strings.TrimSpace(v) == "" {
			return response.FileRef{}, nil
		}
		return response.FileRef{Filename: filepath.Base(v), Path: v}, nil
	default:
		return nil, fmt.Errorf("%w: %T as file", ErrInvalidValue, raw)
	}
}
