package session

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrRerunRequested is returned by Pass.RequestRerun. Page logic returns it to
	// Run, which ends the current pass and starts the next one immediately.
	ErrRerunRequested = errors.New("session: rerun requested")

	// ErrNoActivePass is returned when a rerun is requested on a pass that has
	// already finished. Nothing is scheduled.
	ErrNoActivePass = errors.New("session: rerun requested outside an active pass")

	// ErrRerunLimit is returned when a single event produces more chained
	// reruns than allowed.
	ErrRerunLimit = errors.New("session: rerun limit exceeded")
)

// DefaultMaxReruns bounds the rerun chain of one event when the caller does
// not configure a limit.
const DefaultMaxReruns = 16

// Event is an interaction that triggers exactly one pass: the widget whose
// value changed and its new value.
type Event struct {
	Widget string    `json:"widget"`
	Value  any       `json:"value,omitempty"`
	At     time.Time `json:"at"`
}

// Pass is one top-to-bottom execution of the page logic.
type Pass struct {
	number uint64
	index  int
	state  *State
	event  *Event
	active bool
	rerun  bool
}

// Number is the session-wide sequence number of the pass, starting at 1.
func (p *Pass) Number() uint64 { return p.number }

// RerunIndex reports how many reruns preceded this pass within the current
// event.
func (p *Pass) RerunIndex() int { return p.index }

// State returns the session state container.
func (p *Pass) State() *State { return p.state }

// Event returns the interaction that triggered the pass. It is nil for passes
// started by a rerun request or by a refresh without interaction.
func (p *Pass) Event() *Event { return p.event }

// Active reports whether the pass is still executing.
func (p *Pass) Active() bool { return p.active }

// RequestRerun marks the pass as finished and asks Run to start a new pass
// immediately. Callers must return the returned error without doing further
// work. On a finished pass it returns ErrNoActivePass and schedules nothing.
func (p *Pass) RequestRerun() error {
	if !p.active {
		return ErrNoActivePass
	}
	p.rerun = true
	p.active = false
	return ErrRerunRequested
}

// PageFunc is the page logic executed once per pass.
type PageFunc func(ctx context.Context, p *Pass) error

// Result describes the outcome of one Run.
type Result struct {
	// Passes is the number of passes executed, including reruns.
	Passes int
	// Last is the final pass of the chain.
	Last *Pass
}

// Runner executes page logic against one session's state.
type Runner struct {
	state     *State
	maxReruns int
	passes    uint64
}

// NewRunner creates a runner bound to state. maxReruns <= 0 selects
// DefaultMaxReruns.
func NewRunner(state *State, maxReruns int) *Runner {
	if maxReruns <= 0 {
		maxReruns = DefaultMaxReruns
	}
	return &Runner{state: state, maxReruns: maxReruns}
}

// State returns the state container the runner executes against.
func (r *Runner) State() *State { return r.state }

// Passes returns the number of passes executed so far.
func (r *Runner) Passes() uint64 { return r.passes }

// Run executes page for ev (which may be nil) and then once more for every
// rerun the page requests. The event is only visible to the first pass.
// Run is not safe for concurrent use; callers serialize passes per session.
func (r *Runner) Run(ctx context.Context, ev *Event, page PageFunc) (Result, error) {
	var res Result
	for i := 0; ; i++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if i > r.maxReruns {
			return res, fmt.Errorf("%w: %d reruns", ErrRerunLimit, r.maxReruns)
		}

		r.passes++
		p := &Pass{number: r.passes, index: i, state: r.state, active: true}
		if i == 0 {
			p.event = ev
		}
		res.Passes++
		res.Last = p

		err := page(ctx, p)
		p.active = false

		if p.rerun {
			if err != nil && !errors.Is(err, ErrRerunRequested) {
				return res, err
			}
			continue
		}
		if errors.Is(err, ErrRerunRequested) {
			// The page returned the sentinel without requesting the rerun.
			return res, ErrNoActivePass
		}
		return res, err
	}
}
