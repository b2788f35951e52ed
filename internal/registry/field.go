package registry

import (
	"errors"
	"fmt"

	"composer/internal/domain"
)

// FieldKind is the closed set of editable field variants. Each kind carries
// its own payload on Field; Validate rejects payloads that do not belong.
type FieldKind string

const (
	KindText     FieldKind = "text"
	KindTextarea FieldKind = "textarea"
	KindNumber   FieldKind = "number"
	KindSelect   FieldKind = "select"
	KindRadio    FieldKind = "radio"
	KindArray    FieldKind = "array"
	KindObject   FieldKind = "object"
	KindExternal FieldKind = "external"
	KindCustom   FieldKind = "custom"
)

var ErrInvalidField = errors.New("invalid field")

// Option is one choice of a select or radio field.
type Option struct {
	Label string `json:"label"`
	Value any    `json:"value"`
}

// Field describes one editable prop.
type Field struct {
	Name  string    `json:"name"`
	Kind  FieldKind `json:"type"`
	Label string    `json:"label,omitempty"`

	// select, radio
	Options []Option `json:"options,omitempty"`
	// number
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`
	// array items, object properties
	Fields Fields `json:"fields,omitempty"`
	// external: name of the host data source the picker queries
	Source string `json:"source,omitempty"`
	// custom: name of the host-supplied editor widget
	Widget string `json:"widget,omitempty"`

	ReadOnly bool `json:"readOnly,omitempty"`
}

// Validate checks that the field's payload matches its kind.
func (f Field) Validate() error {
	if f.Name == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidField)
	}
	hasOptions := len(f.Options) > 0
	hasRange := f.Min != nil || f.Max != nil
	hasChildren := len(f.Fields) > 0

	switch f.Kind {
	case KindText, KindTextarea:
		if hasOptions || hasRange || hasChildren {
			return fmt.Errorf("%w: %s: %s takes no payload", ErrInvalidField, f.Name, f.Kind)
		}
	case KindNumber:
		if hasOptions || hasChildren {
			return fmt.Errorf("%w: %s: number takes only min/max", ErrInvalidField, f.Name)
		}
		if f.Min != nil && f.Max != nil && *f.Min > *f.Max {
			return fmt.Errorf("%w: %s: min > max", ErrInvalidField, f.Name)
		}
	case KindSelect, KindRadio:
		if !hasOptions {
			return fmt.Errorf("%w: %s: %s needs options", ErrInvalidField, f.Name, f.Kind)
		}
		if hasRange || hasChildren {
			return fmt.Errorf("%w: %s: %s takes only options", ErrInvalidField, f.Name, f.Kind)
		}
	case KindArray, KindObject:
		if !hasChildren {
			return fmt.Errorf("%w: %s: %s needs fields", ErrInvalidField, f.Name, f.Kind)
		}
		if err := f.Fields.Validate(); err != nil {
			return fmt.Errorf("%s: %w", f.Name, err)
		}
	case KindExternal:
		if f.Source == "" {
			return fmt.Errorf("%w: %s: external needs a source", ErrInvalidField, f.Name)
		}
	case KindCustom:
		if f.Widget == "" {
			return fmt.Errorf("%w: %s: custom needs a widget", ErrInvalidField, f.Name)
		}
	default:
		return fmt.Errorf("%w: %s: unknown kind %q", ErrInvalidField, f.Name, f.Kind)
	}
	return nil
}

// Check reports whether v is an acceptable value for the field. Only kinds
// with a constrained domain are checked; nil is always accepted.
func (f Field) Check(v any) error {
	if v == nil {
		return nil
	}
	switch f.Kind {
	case KindNumber:
		n, ok := toFloat(v)
		if !ok {
			return fmt.Errorf("%s: expected a number, got %T", f.Name, v)
		}
		if f.Min != nil && n < *f.Min {
			return fmt.Errorf("%s: %v is below %v", f.Name, n, *f.Min)
		}
		if f.Max != nil && n > *f.Max {
			return fmt.Errorf("%s: %v is above %v", f.Name, n, *f.Max)
		}
	case KindSelect, KindRadio:
		for _, o := range f.Options {
			if sameValue(o.Value, v) {
				return nil
			}
		}
		return fmt.Errorf("%s: %v is not an option", f.Name, v)
	case KindText, KindTextarea:
		if _, ok := v.(string); !ok {
			return fmt.Errorf("%s: expected a string, got %T", f.Name, v)
		}
	}
	return nil
}

// sameValue compares option values, treating numbers decoded from JSON as
// equal to integer literals.
func sameValue(a, b any) bool {
	if x, ok := toFloat(a); ok {
		y, ok := toFloat(b)
		return ok && x == y
	}
	if s, ok := a.(string); ok {
		t, ok := b.(string)
		return ok && s == t
	}
	if p, ok := a.(bool); ok {
		q, ok := b.(bool)
		return ok && p == q
	}
	return false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// Fields is an ordered field schema.
type Fields []Field

// Get returns the field with the given name.
func (fs Fields) Get(name string) (Field, bool) {
	for _, f := range fs {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Validate checks every field and rejects duplicate names.
func (fs Fields) Validate() error {
	seen := make(map[string]bool, len(fs))
	for _, f := range fs {
		if err := f.Validate(); err != nil {
			return err
		}
		if seen[f.Name] {
			return fmt.Errorf("%w: duplicate field %q", ErrInvalidField, f.Name)
		}
		seen[f.Name] = true
	}
	return nil
}

// Check validates every prop that has a field in the schema. Props without a
// field are left alone.
func (fs Fields) Check(props domain.Props) error {
	var errs []error
	for _, f := range fs {
		if v, ok := props[f.Name]; ok {
			if err := f.Check(v); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// Clone returns a copy that shares no slices with fs.
func (fs Fields) Clone() Fields {
	if fs == nil {
		return nil
	}
	out := make(Fields, len(fs))
	for i, f := range fs {
		f.Options = append([]Option(nil), f.Options...)
		f.Fields = f.Fields.Clone()
		out[i] = f
	}
	return out
}

// Float is a helper for Min/Max literals.
func Float(v float64) *float64 { return &v }
