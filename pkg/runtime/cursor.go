package runtime

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ormasoftchile/autopilot/pkg/logging"
	"github.com/ormasoftchile/autopilot/pkg/providers"
	"github.com/ormasoftchile/autopilot/pkg/schema"
	"github.com/ormasoftchile/autopilot/pkg/session"
)

// Dispatcher performs one attempt of one action.
type Dispatcher interface {
	Execute(ctx context.Context, action schema.Action, iteration int) *providers.Outcome
}

// SessionPool is the part of the session registry the cursor drives.
type SessionPool interface {
	ReleaseUnused(reachable map[session.Key]struct{})
	Close()
}

// SleepFunc pauses for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// CursorOptions configures optional collaborators of a Cursor.
type CursorOptions struct {
	RunID    string
	Sessions SessionPool
	Trace    *TraceWriter
	Logger   *slog.Logger
	// Sleep defaults to a timer honoring ctx cancellation.
	Sleep SleepFunc
}

// Cursor walks the flattened step sequence. Position counts traversed steps:
// 0 is before the first step and Len() is past the last. Outcomes are
// recorded per position and replayed when the cursor moves forward again;
// only Reset discards them.
//
// Advance holds the cursor lock for the whole dispatch, so a single step is
// in flight at a time and Close waits for it.
type Cursor struct {
	wf         *schema.Workflow
	steps      []FlatStep
	dispatcher Dispatcher
	opts       CursorOptions
	logger     *slog.Logger

	mu       sync.Mutex
	pos      int
	outcomes []*providers.Outcome
	reached  int
	closed   bool
	started  time.Time
}

// NewCursor flattens wf and positions the cursor at the start.
func NewCursor(wf *schema.Workflow, dispatcher Dispatcher, opts CursorOptions) *Cursor {
	steps := Flatten(wf)
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepContext
	}
	return &Cursor{
		wf:         wf,
		steps:      steps,
		dispatcher: dispatcher,
		opts:       opts,
		logger:     logger.With(slog.String("component", "cursor")),
		outcomes:   make([]*providers.Outcome, len(steps)),
		started:    time.Now(),
	}
}

// Workflow returns the model the cursor walks.
func (c *Cursor) Workflow() *schema.Workflow { return c.wf }

// Steps returns the flattened sequence.
func (c *Cursor) Steps() []FlatStep { return c.steps }

// Len returns the number of flat steps.
func (c *Cursor) Len() int { return len(c.steps) }

// RunID returns the configured run identifier.
func (c *Cursor) RunID() string { return c.opts.RunID }

// Action returns the action a step refers to.
func (c *Cursor) Action(step FlatStep) schema.Action {
	return c.wf.Stages[step.Stage].Actions[step.Action]
}

// StageName returns the name of the stage a step belongs to.
func (c *Cursor) StageName(step FlatStep) string {
	return c.wf.Stages[step.Stage].Name
}

// Position returns the number of traversed steps.
func (c *Cursor) Position() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pos
}

// AtStart reports whether no step has been traversed.
func (c *Cursor) AtStart() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pos == 0
}

// AtEnd reports whether every step has been traversed. An empty workflow
// is always at the end.
func (c *Cursor) AtEnd() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pos == len(c.steps)
}

// State returns the coarse cursor state.
func (c *Cursor) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.pos == len(c.steps):
		return StateEnd
	case c.pos == 0:
		return StateStart
	default:
		return StateRunning
	}
}

// Current returns the most recently traversed step and its outcome. ok is
// false at the start.
func (c *Cursor) Current() (FlatStep, *providers.Outcome, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pos == 0 {
		return FlatStep{}, nil, false
	}
	return c.steps[c.pos-1], c.outcomes[c.pos-1], true
}

// Next returns the step the next Advance would traverse and whether it
// already has a recorded outcome.
func (c *Cursor) Next() (FlatStep, bool, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pos == len(c.steps) {
		return FlatStep{}, false, false
	}
	return c.steps[c.pos], c.outcomes[c.pos] != nil, true
}

// History returns the traversed steps with their outcomes, oldest first.
func (c *Cursor) History() []Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Record, c.pos)
	for i := 0; i < c.pos; i++ {
		out[i] = Record{Step: c.steps[i], Outcome: c.outcomes[i]}
	}
	return out
}

// Failures counts recorded Failed outcomes, traversed or not.
func (c *Cursor) Failures() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, o := range c.outcomes {
		if o.IsFailed() {
			n++
		}
	}
	return n
}

// Advance moves forward one step. A step with a recorded outcome is replayed
// without touching the dispatcher; otherwise the dispatcher runs exactly
// once, after the loop delay when the step is a non-first iteration.
// Failed outcomes never block further advances.
func (c *Cursor) Advance(ctx context.Context) Event {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.pos == len(c.steps) {
		return c.emit(ctx, Event{Kind: End, Position: c.pos})
	}

	idx := c.pos
	step := c.steps[idx]
	if recorded := c.outcomes[idx]; recorded != nil {
		c.pos++
		return c.emit(ctx, c.stepEvent(Replayed, step, recorded))
	}

	action := c.Action(step)
	if c.opts.RunID != "" {
		ctx = logging.WithRunID(ctx, c.opts.RunID)
	}
	stepCtx := logging.WithStep(ctx, c.StageName(step), idx, step.Iteration)

	var outcome *providers.Outcome
	if delay := loopDelay(action); step.Iteration > 0 && delay > 0 {
		if err := c.opts.Sleep(stepCtx, delay); err != nil {
			outcome = &providers.Outcome{
				Kind:       providers.Failed,
				Style:      action.Style,
				Command:    action.Command.String(),
				HideStdout: action.HideStdout,
				HideStderr: action.HideStderr,
				ErrorKind:  providers.Interrupted,
				Detail:     "interrupted during loop delay",
			}
		}
	}
	if outcome == nil {
		outcome = c.dispatcher.Execute(stepCtx, action, step.Iteration)
	}

	c.outcomes[idx] = outcome
	c.pos++
	if c.pos > c.reached {
		c.reached = c.pos
	}
	c.releaseSessions(stepCtx)
	return c.emit(stepCtx, c.stepEvent(Advanced, step, outcome))
}

// Rewind moves back over one step. Its recorded outcome stays and is
// replayed by the next Advance.
func (c *Cursor) Rewind() Event {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.pos == 0 {
		return c.emit(context.Background(), Event{Kind: Start, Position: c.pos})
	}
	c.pos--
	step := c.steps[c.pos]
	return c.emit(context.Background(), c.stepEvent(Rewound, step, c.outcomes[c.pos]))
}

// Reset discards every recorded outcome from the current position onward,
// so the next Advance dispatches again.
func (c *Cursor) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := c.pos; i < len(c.outcomes); i++ {
		c.outcomes[i] = nil
	}
	c.logger.Debug("outcomes reset", slog.Int("from", c.pos))
}

// Rerun executes the current step again: rewind, reset, advance. At the
// start it is a no-op returning a Start event.
func (c *Cursor) Rerun(ctx context.Context) Event {
	if ev := c.Rewind(); ev.Kind == Start {
		return ev
	}
	c.Reset()
	return c.Advance(ctx)
}

// Summary counts recorded outcomes.
func (c *Cursor) Summary(workflowPath string) *RunSummary {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := &RunSummary{
		RunID:     c.opts.RunID,
		Workflow:  workflowPath,
		StartedAt: c.started.Format(time.RFC3339),
		EndedAt:   time.Now().Format(time.RFC3339),
		Steps:     StepsSummary{Total: len(c.steps), Reached: c.reached},
	}
	for _, o := range c.outcomes {
		if o == nil {
			continue
		}
		switch o.Kind {
		case providers.Displayed:
			s.Steps.Displayed++
		case providers.Ran:
			s.Steps.Ran++
		case providers.Failed:
			s.Steps.Failed++
		}
	}
	return s
}

// Close waits for an in-flight Advance, then closes every session and the
// trace. Further moves return End or Start events.
func (c *Cursor) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.opts.Sessions != nil {
		c.opts.Sessions.Close()
	}
	if c.opts.Trace != nil {
		return c.opts.Trace.Close()
	}
	return nil
}

func (c *Cursor) stepEvent(kind EventKind, step FlatStep, outcome *providers.Outcome) Event {
	s := step
	return Event{
		Kind:      kind,
		Position:  c.pos,
		Step:      &s,
		StageName: c.StageName(step),
		Outcome:   outcome,
	}
}

func (c *Cursor) emit(ctx context.Context, ev Event) Event {
	if c.opts.RunID != "" && logging.RunID(ctx) == "" {
		ctx = logging.WithRunID(ctx, c.opts.RunID)
	}
	c.logger.DebugContext(ctx, "cursor event", slog.String("kind", string(ev.Kind)), slog.Int("position", ev.Position))
	if c.opts.Trace != nil && !c.closed {
		if err := c.opts.Trace.Write(ev); err != nil {
			c.logger.WarnContext(ctx, "trace write failed", slog.String("error", err.Error()))
		}
	}
	return ev
}

// releaseSessions closes sessions no remaining step can use. It does nothing
// when a remaining remote target is only known at resolution time.
func (c *Cursor) releaseSessions(ctx context.Context) {
	if c.opts.Sessions == nil {
		return
	}
	reachable := make(map[session.Key]struct{})
	for _, step := range c.steps[c.pos:] {
		r := c.Action(step).Remote
		if r == nil {
			continue
		}
		host, hostOK := r.Host.LiteralValue()
		usr, userOK := r.User.LiteralValue()
		if !hostOK || !userOK {
			c.logger.DebugContext(ctx, "session release skipped: remote target uses environment indirection")
			return
		}
		reachable[session.Key{Host: host, Port: r.EffectivePort(), User: usr}] = struct{}{}
	}
	c.opts.Sessions.ReleaseUnused(reachable)
}

func loopDelay(a schema.Action) time.Duration {
	if a.Loop == nil {
		return 0
	}
	return time.Duration(a.Loop.Delay) * time.Millisecond
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
