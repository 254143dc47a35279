// Package render describes the output of a pass: a tree of elements, one
// element kind per data shape, handed to the client as JSON. It does not lay
// anything out; the browser client decides how each kind looks.
package render

// Kind identifies the data shape carried by an Element.
type Kind string

// Element kinds.
const (
	KindTitle     Kind = "title"
	KindHeader    Kind = "header"
	KindSubheader Kind = "subheader"
	KindMarkdown  Kind = "markdown"
	KindText      Kind = "text"
	KindCode      Kind = "code"
	KindDivider   Kind = "divider"
	KindImage     Kind = "image"
	KindAlert     Kind = "alert"
	KindRecord    Kind = "record"
	KindChart     Kind = "chart"
	KindMap       Kind = "map"
	KindBalloons  Kind = "balloons"
	KindWidget    Kind = "widget"
	KindTabs      Kind = "tabs"
	KindTab       Kind = "tab"
	KindColumns   Kind = "columns"
	KindColumn    Kind = "column"
	KindExpander  Kind = "expander"
)

// Alert levels.
const (
	LevelInfo    = "info"
	LevelSuccess = "success"
	LevelWarning = "warning"
	LevelError   = "error"
)

// Chart types.
const (
	ChartLine    = "line"
	ChartArea    = "area"
	ChartBar     = "bar"
	ChartScatter = "scatter"
)

// Element is one node of a frame.
type Element struct {
	Kind     Kind           `json:"kind"`
	Body     string         `json:"body,omitempty"`
	Label    string         `json:"label,omitempty"`
	Level    string         `json:"level,omitempty"`
	Width    int            `json:"width,omitempty"`
	Widget   *WidgetView    `json:"widget,omitempty"`
	Data     any            `json:"data,omitempty"`
	Props    map[string]any `json:"props,omitempty"`
	Children []*Element     `json:"children,omitempty"`
}

// WidgetView is the client-facing description of an interactive widget.
type WidgetView struct {
	Key     string   `json:"key"`
	Type    string   `json:"type"`
	Options []string `json:"options,omitempty"`
	Min     *float64 `json:"min,omitempty"`
	Max     *float64 `json:"max,omitempty"`
	Step    float64  `json:"step,omitempty"`
	Value   any      `json:"value"`
}

// Table is a rectangular numeric data set with named columns.
type Table struct {
	Columns []string    `json:"columns"`
	Rows    [][]float64 `json:"rows"`
}

// Column returns the values of the named column, or nil if absent.
func (t *Table) Column(name string) []float64 {
	idx := -1
	for i, c := range t.Columns {
		if c == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil
	}
	out := make([]float64, 0, len(t.Rows))
	for _, row := range t.Rows {
		out = append(out, row[idx])
	}
	return out
}

// Point is a geographic coordinate.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Series is a pair of numeric sequences plotted against each other.
type Series struct {
	X []float64 `json:"x"`
	Y []float64 `json:"y"`
}

// PageConfig carries page-level presentation settings.
type PageConfig struct {
	Title  string `json:"title" yaml:"title"`
	Icon   string `json:"icon,omitempty" yaml:"icon"`
	Layout string `json:"layout,omitempty" yaml:"layout"`
}

// Frame is the full output of the final pass of one event.
type Frame struct {
	SessionID string     `json:"session_id"`
	Pass      uint64     `json:"pass"`
	Reruns    int        `json:"reruns"`
	Config    PageConfig `json:"config"`
	Sidebar   []*Element `json:"sidebar"`
	Main      []*Element `json:"main"`
}
