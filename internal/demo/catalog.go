// Package demo implements the interactive widget catalog page.
package demo

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/ashureev/pagelab/internal/cache"
	"github.com/ashureev/pagelab/internal/config"
	"github.com/ashureev/pagelab/internal/render"
	"github.com/ashureev/pagelab/internal/session"
	"github.com/ashureev/pagelab/internal/widget"
)

// Widget keys that clients may target.
const (
	KeyMenu         = "menu_principal"
	KeyLanguage     = "language"
	KeyTechnologies = "technologies"
	KeyExperience   = "experience"
	KeyName         = "name"
	KeyAge          = "age"
	KeySatisfaction = "satisfaction"
	KeyMagic        = "magic"
	KeySecret       = "secret"
	KeyIncrement    = "counter_increment"
	KeyReset        = "counter_reset"

	counterKey = "counter"
)

const (
	chartRows = 20
	mapPoints = 1000
	centerLat = -23.55
	centerLon = -46.63
)

var (
	languages    = []string{"Python", "JavaScript", "Rust", "Go", "C++"}
	technologies = []string{"Streamlit", "Pandas", "NumPy", "Matplotlib", "Scikit-learn", "TensorFlow", "PyTorch"}
	levels       = []string{"Beginner", "Intermediate", "Advanced"}
)

// Catalog renders the widget catalog. Chart and map data are loaded through
// the shared cache, so every session sees the same data set until it
// expires.
type Catalog struct {
	manifest *config.Manifest
	cache    *cache.Cache
	ttl      time.Duration
	sections []func(*widget.UI) error
}

// New creates the catalog page. The manifest must name one navigation
// section per catalog section, in order.
func New(manifest *config.Manifest, c *cache.Cache, ttl time.Duration) (*Catalog, error) {
	if manifest == nil {
		manifest = config.DefaultManifest()
	}
	if c == nil {
		c = cache.New(nil)
	}
	cat := &Catalog{manifest: manifest, cache: c, ttl: ttl}
	cat.sections = []func(*widget.UI) error{
		cat.home,
		cat.selectors,
		cat.inputs,
		cat.actions,
	}
	if got := len(manifest.Nav.Sections); got != len(cat.sections) {
		return nil, fmt.Errorf("demo: manifest names %d sections, catalog has %d", got, len(cat.sections))
	}
	return cat, nil
}

// Page runs one pass of the catalog.
func (c *Catalog) Page(_ context.Context, ui *widget.UI) error {
	ui.SetPageConfig(c.manifest.Page)

	ui.Title("Complete Guide to Interactive Widgets")
	ui.Markdown("This page shows the main widgets you can use to build menus, " +
		"sidebars and other ways of interacting with the user.")

	nav := c.manifest.Nav
	sidebar := ui.Sidebar()
	if c.manifest.Logo != "" {
		sidebar.Image(c.manifest.Logo, 200)
	}
	sidebar.Header(nav.Header)
	choice := sidebar.Radio(KeyMenu, nav.Label, nav.Sections)
	sidebar.Divider()
	if c.manifest.Footer != "" {
		sidebar.Markdown(c.manifest.Footer)
	}

	for i, name := range nav.Sections {
		if name == choice {
			return c.sections[i](ui)
		}
	}
	return nil
}

func (c *Catalog) home(ui *widget.UI) error {
	ui.Header("Welcome to the home page!")
	ui.Markdown("Use the menu in the sidebar to move between the widget demos. " +
		"Each section covers a different kind of control you can use to build menus " +
		"and interact with your users.")
	ui.Image("https://storage.googleapis.com/streamlit-public-media/animation/share-feat-1.gif", 0)
	return nil
}

func (c *Catalog) selectors(ui *widget.UI) error {
	ui.Header("2. Option Selectors")
	ui.Markdown("These widgets let the user pick one or more options from a list.")

	ui.Subheader("Select box")
	lang := ui.Selectbox(KeyLanguage, "What is your favourite programming language?", languages)
	ui.Write("Your choice was:", lang)

	ui.Subheader("Multiselect")
	picked := ui.Multiselect(KeyTechnologies, "Which technologies do you use day to day?",
		technologies, []string{"Streamlit", "Pandas"})
	ui.Write("You selected:", picked)

	ui.Subheader("Radio buttons")
	level := ui.Radio(KeyExperience, "How experienced are you?", levels, widget.Horizontal())
	ui.Markdown(fmt.Sprintf("Your experience level is: **%s**", level))
	return nil
}

func (c *Catalog) inputs(ui *widget.UI) error {
	ui.Header("3. Data Input Widgets")
	ui.Markdown("Use these widgets to collect information from the user.")

	ui.Subheader("Text input")
	name := ui.TextInput(KeyName, "What is your name?", "Visitor")
	ui.Textf("Hello, %s!", name)

	ui.Subheader("Number input")
	age := ui.NumberInput(KeyAge, "Enter your age:", 0, 120, 25, widget.Step(1))
	ui.Textf("You are %d years old.", int(age))

	ui.Subheader("Slider")
	score := ui.Slider(KeySatisfaction, "How satisfied are you with this guide? (1 to 10)", 1, 10, 8)
	ui.Textf("Selected satisfaction level: %d", int(score))
	return nil
}

func (c *Catalog) actions(ui *widget.UI) error {
	ui.Header("4. Buttons, Actions and Charts")
	ui.Markdown("Use buttons to trigger actions and tabs to organise content such as charts.")
	ui.Subheader("Tabs with multiple charts")
	ui.Info("Tabs are a good fit for organising different views of the same data.")

	tabs := ui.Tabs("📊 All charts", "🚀 Actions", "🗂️ Organizers")
	if err := c.charts(tabs[0]); err != nil {
		return err
	}
	if err := c.triggers(tabs[1]); err != nil {
		return err
	}
	c.organizers(tabs[2])
	return nil
}

func (c *Catalog) charts(ui *widget.UI) error {
	data, err := cache.Load(c.cache, "demo/chart", c.ttl, func() (*render.Table, error) {
		return randomTable(chartRows, "a", "b", "c"), nil
	})
	if err != nil {
		return fmt.Errorf("load chart data: %w", err)
	}
	points, err := cache.Load(c.cache, "demo/map", c.ttl, func() ([]render.Point, error) {
		return randomPoints(mapPoints, centerLat, centerLon), nil
	})
	if err != nil {
		return fmt.Errorf("load map data: %w", err)
	}

	ui.Header("Built-in chart gallery")
	ui.Markdown("These are the main chart types the page can draw directly.")

	ui.Subheader("Line chart")
	ui.LineChart(data)
	ui.Code("ui.LineChart(data)")

	ui.Subheader("Area chart")
	ui.AreaChart(data)
	ui.Code("ui.AreaChart(data)")

	ui.Subheader("Bar chart")
	ui.BarChart(data)
	ui.Code("ui.BarChart(data)")

	ui.Subheader("Scatter chart")
	ui.Markdown("Plot two columns against each other.")
	ui.ScatterChart(render.Series{X: data.Column("a"), Y: data.Column("b")})
	ui.Code(strings.Join([]string{
		`ui.ScatterChart(render.Series{`,
		`	X: data.Column("a"),`,
		`	Y: data.Column("b"),`,
		`})`,
	}, "\n"))

	ui.Subheader("Map")
	ui.Markdown("Good for geographic data with latitude and longitude.")
	ui.Map(points)
	ui.Code("ui.Map(points)")
	return nil
}

func (c *Catalog) triggers(ui *widget.UI) error {
	ui.Header("Triggering actions")

	ui.Subheader("Button")
	if ui.Button(KeyMagic, "Click here for some magic!") {
		ui.Balloons()
		ui.Success("Magic performed successfully!")
	}

	ui.Subheader("Checkbox")
	if ui.Checkbox(KeySecret, "Show secret message", false) {
		ui.Warning("You found the secret message! ✨")
	}

	ui.Subheader("Session counter")
	n, err := session.GetOrInitAs(ui.State(), counterKey, 0)
	if err != nil {
		return err
	}
	ui.Textf("Count: %d", n)
	if ui.Button(KeyIncrement, "Increment") {
		ui.State().Set(counterKey, n+1)
		return ui.Rerun()
	}
	if ui.Button(KeyReset, "Reset") {
		ui.State().Set(counterKey, 0)
		return ui.Rerun()
	}
	return nil
}

func (c *Catalog) organizers(ui *widget.UI) {
	ui.Header("Organising content")

	ui.Subheader("Expander")
	more := ui.Expander("Click here for more details")
	more.Text("This content only shows up when the user opens it. " +
		"It works well for help sections or secondary information.")
	more.Image("https://streamlit.io/images/brand/streamlit-mark-color.png", 50)

	ui.Subheader("Columns")
	ui.Markdown("Split the screen into columns to lay elements out side by side.")
	ordinals := []string{"first", "second", "third"}
	for i, col := range ui.Columns(len(ordinals)) {
		col.Info(fmt.Sprintf("This is the %s column.", ordinals[i]))
		col.Button(fmt.Sprintf("column_button_%d", i+1), fmt.Sprintf("Button %d", i+1))
	}
}

func randomTable(rows int, columns ...string) *render.Table {
	t := &render.Table{Columns: columns, Rows: make([][]float64, rows)}
	for i := range t.Rows {
		row := make([]float64, len(columns))
		for j := range row {
			row[j] = rand.NormFloat64()
		}
		t.Rows[i] = row
	}
	return t
}

func randomPoints(n int, lat, lon float64) []render.Point {
	out := make([]render.Point, n)
	for i := range out {
		out[i] = render.Point{
			Lat: lat + rand.NormFloat64()/50,
			Lon: lon + rand.NormFloat64()/50,
		}
	}
	return out
}
