package widget

import (
	"fmt"
	"slices"

	"github.com/ashureev/pagelab/internal/render"
)

// Option adjusts a widget declaration.
type Option func(*options)

type options struct {
	horizontal bool
	index      int
	step       float64
}

// Horizontal lays radio options out in a row.
func Horizontal() Option { return func(o *options) { o.horizontal = true } }

// Index selects the default option of a radio or selectbox.
func Index(i int) Option { return func(o *options) { o.index = i } }

// Step sets the increment of a number input or slider.
func Step(step float64) Option { return func(o *options) { o.step = step } }

func collect(opts []Option) options {
	var o options
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// register checks key uniqueness for the pass, declares the widget and emits the
// widget element. It returns the widget's current value.
func (u *UI) register(key, label string, decl Declaration, props map[string]any) any {
	if key == "" {
		key = string(decl.Type) + ":" + label
	}
	if _, dup := u.scope.seen[key]; dup {
		if u.scope.err == nil {
			u.scope.err = fmt.Errorf("%w: %q", ErrDuplicateKey, key)
		}
		return decl.Default
	}
	u.scope.seen[key] = struct{}{}

	val := u.scope.values.declare(key, decl)

	view := &render.WidgetView{
		Key:     key,
		Type:    string(decl.Type),
		Options: decl.Options,
		Step:    decl.Step,
		Value:   val,
	}
	if decl.Type == TypeNumberInput || decl.Type == TypeSlider {
		lo, hi := decl.Min, decl.Max
		view.Min, view.Max = &lo, &hi
	}
	u.add(&render.Element{Kind: render.KindWidget, Label: label, Widget: view, Props: props})
	return val
}

func defaultOption(opts []string, idx int) string {
	if len(opts) == 0 {
		return ""
	}
	if idx < 0 || idx >= len(opts) {
		idx = 0
	}
	return opts[idx]
}

// Radio returns the selected option, defaulting to the first.
func (u *UI) Radio(key, label string, opts []string, o ...Option) string {
	cfg := collect(o)
	var props map[string]any
	if cfg.horizontal {
		props = map[string]any{"horizontal": true}
	}
	v := u.register(key, label, Declaration{
		Type:    TypeRadio,
		Options: opts,
		Default: defaultOption(opts, cfg.index),
	}, props)
	s, _ := v.(string)
	return s
}

// Selectbox returns the selected option, defaulting to the first.
func (u *UI) Selectbox(key, label string, opts []string, o ...Option) string {
	cfg := collect(o)
	v := u.register(key, label, Declaration{
		Type:    TypeSelectbox,
		Options: opts,
		Default: defaultOption(opts, cfg.index),
	}, nil)
	s, _ := v.(string)
	return s
}

// Multiselect returns the selected options. Defaults that are not options
// are dropped.
func (u *UI) Multiselect(key, label string, opts, defaults []string) []string {
	def := make([]string, 0, len(defaults))
	for _, d := range defaults {
		if slices.Contains(opts, d) && !slices.Contains(def, d) {
			def = append(def, d)
		}
	}
	v := u.register(key, label, Declaration{
		Type:    TypeMultiselect,
		Options: opts,
		Default: def,
	}, nil)
	s, _ := v.([]string)
	return slices.Clone(s)
}

// TextInput returns the current text.
func (u *UI) TextInput(key, label, def string) string {
	v := u.register(key, label, Declaration{Type: TypeTextInput, Default: def}, nil)
	s, _ := v.(string)
	return s
}

func clamp(v, lo, hi float64) float64 {
	return max(lo, min(hi, v))
}

// NumberInput returns the current number within [lo, hi].
func (u *UI) NumberInput(key, label string, lo, hi, def float64, o ...Option) float64 {
	cfg := collect(o)
	if cfg.step == 0 {
		cfg.step = 1
	}
	v := u.register(key, label, Declaration{
		Type:    TypeNumberInput,
		Min:     lo,
		Max:     hi,
		Step:    cfg.step,
		Default: clamp(def, lo, hi),
	}, nil)
	f, _ := v.(float64)
	return f
}

// Slider returns the current slider position within [lo, hi].
func (u *UI) Slider(key, label string, lo, hi, def float64, o ...Option) float64 {
	cfg := collect(o)
	if cfg.step == 0 {
		cfg.step = 1
	}
	v := u.register(key, label, Declaration{
		Type:    TypeSlider,
		Min:     lo,
		Max:     hi,
		Step:    cfg.step,
		Default: clamp(def, lo, hi),
	}, nil)
	f, _ := v.(float64)
	return f
}

// Checkbox returns whether the box is ticked.
func (u *UI) Checkbox(key, label string, def bool) bool {
	v := u.register(key, label, Declaration{Type: TypeCheckbox, Default: def}, nil)
	b, _ := v.(bool)
	return b
}

// Button reports whether the button was clicked by the event that started
// this pass. It is false in every other pass, including reruns.
func (u *UI) Button(key, label string) bool {
	if key == "" {
		key = string(TypeButton) + ":" + label
	}
	u.register(key, label, Declaration{Type: TypeButton, Default: false}, nil)
	ev := u.scope.pass.Event()
	return ev != nil && ev.Widget == key
}
