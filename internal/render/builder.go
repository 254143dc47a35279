package render

// Container collects elements in order. Containers nest: tabs, columns and
// expanders are containers whose element is also a child of the parent.
type Container struct {
	elem *Element
}

// NewContainer creates a detached container of the given kind.
func NewContainer(kind Kind, label string) *Container {
	return &Container{elem: &Element{Kind: kind, Label: label}}
}

// Add appends e and returns it.
func (c *Container) Add(e *Element) *Element {
	c.elem.Children = append(c.elem.Children, e)
	return e
}

// Nest appends a child container of the given kind.
func (c *Container) Nest(kind Kind, label string) *Container {
	child := NewContainer(kind, label)
	c.Add(child.elem)
	return child
}

// Element returns the element backing the container.
func (c *Container) Element() *Element { return c.elem }

// Elements returns the children added so far.
func (c *Container) Elements() []*Element { return c.elem.Children }

// Builder accumulates the frame of a single pass.
type Builder struct {
	Main    *Container
	Sidebar *Container
	config  PageConfig
}

// NewBuilder creates an empty builder with the given page config.
func NewBuilder(cfg PageConfig) *Builder {
	return &Builder{
		Main:    NewContainer("", ""),
		Sidebar: NewContainer("", ""),
		config:  cfg,
	}
}

// SetConfig replaces the page config.
func (b *Builder) SetConfig(cfg PageConfig) { b.config = cfg }

// Config returns the current page config.
func (b *Builder) Config() PageConfig { return b.config }

// Frame assembles the frame built so far.
func (b *Builder) Frame(sessionID string, pass uint64, reruns int) *Frame {
	f := &Frame{
		SessionID: sessionID,
		Pass:      pass,
		Reruns:    reruns,
		Config:    b.config,
		Sidebar:   b.Sidebar.Elements(),
		Main:      b.Main.Elements(),
	}
	if f.Sidebar == nil {
		f.Sidebar = []*Element{}
	}
	if f.Main == nil {
		f.Main = []*Element{}
	}
	return f
}

// Find walks the frame depth first and returns every element matching fn.
func (f *Frame) Find(fn func(*Element) bool) []*Element {
	var out []*Element
	var walk func([]*Element)
	walk = func(es []*Element) {
		for _, e := range es {
			if fn(e) {
				out = append(out, e)
			}
			walk(e.Children)
		}
	}
	walk(f.Sidebar)
	walk(f.Main)
	return out
}

// Widget returns the widget element with the given key, or nil.
func (f *Frame) Widget(key string) *Element {
	found := f.Find(func(e *Element) bool {
		return e.Kind == KindWidget && e.Widget != nil && e.Widget.Key == key
	})
	if len(found) == 0 {
		return nil
	}
	return found[0]
}
