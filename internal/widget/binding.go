package widget

import (
	"context"

	"github.com/ashureev/pagelab/internal/render"
	"github.com/ashureev/pagelab/internal/session"
)

// Binding connects a Page to one session's widget values. Its Run method is
// the session.PageFunc executed for every pass.
type Binding struct {
	page   Page
	values *Values
	config render.PageConfig
	last   *render.Builder
}

// Bind creates a binding with a fresh value registry.
func Bind(page Page, cfg render.PageConfig) *Binding {
	return &Binding{page: page, values: NewValues(), config: cfg}
}

// Values returns the session's widget value registry.
func (b *Binding) Values() *Values { return b.values }

// Run executes the page for pass p with an empty frame builder.
func (b *Binding) Run(ctx context.Context, p *session.Pass) error {
	b.last = render.NewBuilder(b.config)
	ui := New(p, b.values, b.last)
	if err := b.page(ctx, ui); err != nil {
		return err
	}
	return ui.Err()
}

// Frame returns the frame produced by the most recent pass, or nil if no
// pass has run.
func (b *Binding) Frame(sessionID string, p *session.Pass) *render.Frame {
	if b.last == nil || p == nil {
		return nil
	}
	return b.last.Frame(sessionID, p.Number(), p.RerunIndex())
}
