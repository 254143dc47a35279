package widget

import (
	"context"
	"fmt"

	"github.com/ashureev/pagelab/internal/render"
	"github.com/ashureev/pagelab/internal/session"
)

// Page is page logic written against the widget API. It runs once per pass.
type Page func(ctx context.Context, ui *UI) error

// passScope is shared by every UI handle derived within one pass.
type passScope struct {
	pass    *session.Pass
	values  *Values
	builder *render.Builder
	seen    map[string]struct{}
	err     error
}

// UI is the handle page logic uses to read widgets and emit elements into
// one container of the frame being built.
type UI struct {
	scope *passScope
	out   *render.Container
}

// New creates the root UI for a pass writing into b's main area.
func New(p *session.Pass, values *Values, b *render.Builder) *UI {
	return &UI{
		scope: &passScope{
			pass:    p,
			values:  values,
			builder: b,
			seen:    make(map[string]struct{}),
		},
		out: b.Main,
	}
}

// Err returns the first widget misuse recorded during the pass.
func (u *UI) Err() error { return u.scope.err }

// Pass returns the pass being executed.
func (u *UI) Pass() *session.Pass { return u.scope.pass }

// State returns the session state container.
func (u *UI) State() *session.State { return u.scope.pass.State() }

// Rerun ends the pass and asks for an immediate new one. Return its result.
func (u *UI) Rerun() error { return u.scope.pass.RequestRerun() }

// SetPageConfig sets the page-level title, icon and layout.
func (u *UI) SetPageConfig(cfg render.PageConfig) { u.scope.builder.SetConfig(cfg) }

func (u *UI) with(out *render.Container) *UI {
	return &UI{scope: u.scope, out: out}
}

func (u *UI) add(e *render.Element) { u.out.Add(e) }

// Sidebar returns a handle writing into the sidebar.
func (u *UI) Sidebar() *UI { return u.with(u.scope.builder.Sidebar) }

// Tabs adds a tab strip and returns one handle per tab, in order.
func (u *UI) Tabs(labels ...string) []*UI {
	strip := u.out.Nest(render.KindTabs, "")
	out := make([]*UI, len(labels))
	for i, l := range labels {
		out[i] = u.with(strip.Nest(render.KindTab, l))
	}
	return out
}

// Columns adds n side-by-side columns.
func (u *UI) Columns(n int) []*UI {
	row := u.out.Nest(render.KindColumns, "")
	out := make([]*UI, n)
	for i := range out {
		out[i] = u.with(row.Nest(render.KindColumn, ""))
	}
	return out
}

// Expander adds a collapsible section.
func (u *UI) Expander(label string) *UI {
	return u.with(u.out.Nest(render.KindExpander, label))
}

// Title adds the page title.
func (u *UI) Title(s string) { u.add(&render.Element{Kind: render.KindTitle, Body: s}) }

// Header adds a section header.
func (u *UI) Header(s string) { u.add(&render.Element{Kind: render.KindHeader, Body: s}) }

// Subheader adds a subsection header.
func (u *UI) Subheader(s string) { u.add(&render.Element{Kind: render.KindSubheader, Body: s}) }

// Markdown adds a markdown block.
func (u *UI) Markdown(s string) { u.add(&render.Element{Kind: render.KindMarkdown, Body: s}) }

// Text adds plain text.
func (u *UI) Text(s string) { u.add(&render.Element{Kind: render.KindText, Body: s}) }

// Textf adds formatted plain text.
func (u *UI) Textf(format string, args ...any) { u.Text(fmt.Sprintf(format, args...)) }

// Write adds a labelled structured value.
func (u *UI) Write(label string, v any) {
	u.add(&render.Element{Kind: render.KindRecord, Label: label, Data: v})
}

// Code adds a code block.
func (u *UI) Code(src string) { u.add(&render.Element{Kind: render.KindCode, Body: src}) }

// Divider adds a horizontal rule.
func (u *UI) Divider() { u.add(&render.Element{Kind: render.KindDivider}) }

// Image adds an image by URL. width <= 0 uses the natural width.
func (u *UI) Image(url string, width int) {
	u.add(&render.Element{Kind: render.KindImage, Body: url, Width: width})
}

func (u *UI) alert(level, s string) {
	u.add(&render.Element{Kind: render.KindAlert, Level: level, Body: s})
}

// Info adds an informational callout.
func (u *UI) Info(s string) { u.alert(render.LevelInfo, s) }

// Success adds a success callout.
func (u *UI) Success(s string) { u.alert(render.LevelSuccess, s) }

// Warning adds a warning callout.
func (u *UI) Warning(s string) { u.alert(render.LevelWarning, s) }

// Error adds an error callout.
func (u *UI) Error(s string) { u.alert(render.LevelError, s) }

// Balloons asks the client to play its celebration animation.
func (u *UI) Balloons() { u.add(&render.Element{Kind: render.KindBalloons}) }

func (u *UI) chart(kind string, data any) {
	u.add(&render.Element{Kind: render.KindChart, Level: kind, Data: data})
}

// LineChart plots every column of t as a line.
func (u *UI) LineChart(t *render.Table) { u.chart(render.ChartLine, t) }

// AreaChart plots every column of t as a filled area.
func (u *UI) AreaChart(t *render.Table) { u.chart(render.ChartArea, t) }

// BarChart plots every column of t as bars.
func (u *UI) BarChart(t *render.Table) { u.chart(render.ChartBar, t) }

// ScatterChart plots s.Y against s.X.
func (u *UI) ScatterChart(s render.Series) { u.chart(render.ChartScatter, s) }

// Map plots points on a map.
func (u *UI) Map(points []render.Point) {
	u.add(&render.Element{Kind: render.KindMap, Data: points})
}
