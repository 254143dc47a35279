// Package widget implements the widget-value and event contracts that page
// logic reads on every pass, plus the UI handle through which a page emits
// its render elements.
package widget

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"sync"

	"github.com/ashureev/pagelab/internal/session"
)

var (
	// ErrUnknownWidget is returned when an event targets a key no pass has
	// declared.
	ErrUnknownWidget = errors.New("widget: unknown widget key")

	// ErrInvalidValue is returned when an event carries a value the widget
	// cannot hold.
	ErrInvalidValue = errors.New("widget: invalid value")

	// ErrDuplicateKey is recorded when two widgets share a key in one pass.
	ErrDuplicateKey = errors.New("widget: duplicate widget key")
)

// Type names a widget kind.
type Type string

// Widget types.
const (
	TypeRadio       Type = "radio"
	TypeSelectbox   Type = "selectbox"
	TypeMultiselect Type = "multiselect"
	TypeTextInput   Type = "text_input"
	TypeNumberInput Type = "number_input"
	TypeSlider      Type = "slider"
	TypeCheckbox    Type = "checkbox"
	TypeButton      Type = "button"
)

// Declaration is the configuration a widget was declared with in the latest pass.
type Declaration struct {
	Type    Type
	Options []string
	Min     float64
	Max     float64
	Step    float64
	Default any
}

// Values holds the current value of every widget in one session. A value
// stays the same across passes until an event changes it.
type Values struct {
	mu     sync.Mutex
	decls  map[string]Declaration
	values map[string]any
}

// NewValues creates an empty registry.
func NewValues() *Values {
	return &Values{
		decls:  make(map[string]Declaration),
		values: make(map[string]any),
	}
}

// Apply validates ev against the widget's declaration and stores the new
// value. Button events are accepted but store nothing: a button only reads
// as pressed in the pass that carries its event.
func (v *Values) Apply(ev *session.Event) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	decl, ok := v.decls[ev.Widget]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownWidget, ev.Widget)
	}
	if decl.Type == TypeButton {
		return nil
	}

	val, err := coerce(decl, ev.Value)
	if err != nil {
		return fmt.Errorf("%w for %s %q: %v", ErrInvalidValue, decl.Type, ev.Widget, err)
	}
	v.values[ev.Widget] = val
	return nil
}

// declare records decl for key and returns the widget's current value,
// falling back to the default when no valid value is stored.
func (v *Values) declare(key string, decl Declaration) any {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.decls[key] = decl
	if cur, ok := v.values[key]; ok {
		if val, err := coerce(decl, cur); err == nil {
			return val
		}
		delete(v.values, key)
	}
	return decl.Default
}

// Restore replaces the stored values with an earlier Snapshot.
func (v *Values) Restore(snap map[string]any) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.values = maps.Clone(snap)
	if v.values == nil {
		v.values = make(map[string]any)
	}
}

// Snapshot returns a copy of the values set by events so far.
func (v *Values) Snapshot() map[string]any {
	v.mu.Lock()
	defer v.mu.Unlock()
	return maps.Clone(v.values)
}

func coerce(decl Declaration, raw any) (any, error) {
	switch decl.Type {
	case TypeRadio, TypeSelectbox:
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("want string, got %T", raw)
		}
		if !slices.Contains(decl.Options, s) {
			return nil, fmt.Errorf("%q is not an option", s)
		}
		return s, nil
	case TypeMultiselect:
		items, err := toStrings(raw)
		if err != nil {
			return nil, err
		}
		out := make([]string, 0, len(items))
		for _, s := range items {
			if !slices.Contains(decl.Options, s) {
				return nil, fmt.Errorf("%q is not an option", s)
			}
			if !slices.Contains(out, s) {
				out = append(out, s)
			}
		}
		return out, nil
	case TypeTextInput:
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("want string, got %T", raw)
		}
		return s, nil
	case TypeNumberInput, TypeSlider:
		f, err := toFloat(raw)
		if err != nil {
			return nil, err
		}
		if f < decl.Min || f > decl.Max {
			return nil, fmt.Errorf("%g outside [%g, %g]", f, decl.Min, decl.Max)
		}
		return f, nil
	case TypeCheckbox:
		b, ok := raw.(bool)
		if !ok {
			return nil, fmt.Errorf("want bool, got %T", raw)
		}
		return b, nil
	default:
		return nil, fmt.Errorf("widget type %q holds no value", decl.Type)
	}
}

func toStrings(raw any) ([]string, error) {
	switch t := raw.(type) {
	case []string:
		return t, nil
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("want string items, got %T", item)
			}
			out = append(out, s)
		}
		return out, nil
	case nil:
		return []string{}, nil
	default:
		return nil, fmt.Errorf("want list of strings, got %T", raw)
	}
}

func toFloat(raw any) (float64, error) {
	switch t := raw.(type) {
	case float64:
		return t, nil
	case float32:
		return float64(t), nil
	case int:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case json.Number:
		return t.Float64()
	case string:
		return strconv.ParseFloat(t, 64)
	default:
		return 0, fmt.Errorf("want number, got %T", raw)
	}
}
