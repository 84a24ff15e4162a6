package board

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/amonks/issues/internal/logging"
	"github.com/amonks/issues/issue"
	"github.com/charmbracelet/log"
)

// ErrNotSignedIn is reported when a write is attempted without an identity.
var ErrNotSignedIn = errors.New("sign in to make changes")

// Writer sends changes to the store. client.Client implements it.
type Writer interface {
	Create(ctx context.Context, in issue.NewIssue) (issue.Issue, error)
	Update(ctx context.Context, id string, patch issue.Patch) (issue.Issue, error)
	Delete(ctx context.Context, id string) error
}

// Frame is everything a view needs to draw the board.
type Frame struct {
	Seq      uint64
	Loaded   bool
	Filter   issue.Filter
	Visible  []issue.Issue
	Total    int
	Identity string

	// TitleInput and Similar back the duplicate warning on the create form.
	TitleInput string
	Similar    []issue.Issue

	// Err is the most recent failure, shown until the next successful action.
	Err    string
	Notice string

	// Pending counts writes that have been sent but not answered.
	Pending int
}

// Options configures a Board.
type Options struct {
	Writer Writer
	// Render is called from the event loop after every handled event.
	Render func(Frame)
	// Identity is the signed-in user; writes are refused when empty.
	Identity string
	Filter   issue.Filter
	Logger   *log.Logger
}

// Board is the event-driven session core. All fields below events are owned
// by the Run goroutine.
type Board struct {
	writer   Writer
	render   func(Frame)
	identity string
	logger   *log.Logger
	state    State
	events   chan Event

	filter issue.Filter
	frame  Frame
}

// New creates a Board. Call Run to start it.
func New(opts Options) *Board {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	render := opts.Render
	if render == nil {
		render = func(Frame) {}
	}
	return &Board{
		writer:   opts.Writer,
		render:   render,
		identity: opts.Identity,
		logger:   logger,
		events:   make(chan Event, 16),
		filter:   opts.Filter,
	}
}

// State exposes the snapshot container for read-only use.
func (b *Board) State() *State {
	return &b.state
}

// Send queues an event for the loop. It blocks until the loop accepts the
// event or ctx ends.
func (b *Board) Send(ctx context.Context, ev Event) error {
	select {
	case b.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run consumes snapshots and events until ctx ends. It is the board's only
// subscription; a closed snapshot channel is reported in the frame and the
// board keeps serving local events.
func (b *Board) Run(ctx context.Context, snapshots <-chan issue.Snapshot) error {
	b.frame.Identity = b.identity
	b.derive()
	b.emit()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case snapshot, ok := <-snapshots:
			if !ok {
				snapshots = nil
				b.frame.Err = "live updates stopped"
				b.emit()
				continue
			}
			b.handle(ctx, SnapshotEvent{Snapshot: snapshot})
		case ev := <-b.events:
			b.handle(ctx, ev)
		}
	}
}

func (b *Board) handle(ctx context.Context, ev Event) {
	switch ev := ev.(type) {
	case SnapshotEvent:
		b.state.Replace(ev.Snapshot)
		b.derive()
		b.frame.Similar = issue.FindSimilar(b.frame.TitleInput, b.state.Current().Issues)

	case FilterEvent:
		b.filter = ev.Filter
		b.derive()

	case TitleInputEvent:
		b.frame.TitleInput = ev.Title
		b.frame.Similar = issue.FindSimilar(ev.Title, b.state.Current().Issues)

	case SubmitEvent:
		b.submit(ctx, ev)

	case StatusChangeEvent:
		b.changeStatus(ctx, ev)

	case AssignEvent:
		if !b.requireIdentity() {
			break
		}
		patch := issue.Patch{AssignedTo: issue.StringPtr(ev.AssignedTo)}
		b.dispatch(ctx, writeUpdate, ev.ID, func(ctx context.Context) (issue.Issue, error) {
			return b.writer.Update(ctx, ev.ID, patch)
		})

	case DeleteEvent:
		if !b.requireIdentity() {
			break
		}
		b.dispatch(ctx, writeDelete, ev.ID, func(ctx context.Context) (issue.Issue, error) {
			return issue.Issue{}, b.writer.Delete(ctx, ev.ID)
		})

	case writeResultEvent:
		b.frame.Pending--
		if ev.err != nil {
			b.logger.Warn("write failed", "op", ev.kind, "id", ev.id, "err", ev.err)
			b.frame.Err = ev.err.Error()
			b.frame.Notice = ""
			break
		}
		b.frame.Err = ""
		switch ev.kind {
		case writeCreate:
			b.frame.Notice = fmt.Sprintf("Created %s", ev.issue.ID)
		case writeUpdate:
			b.frame.Notice = fmt.Sprintf("Updated %s", ev.id)
		case writeDelete:
			b.frame.Notice = fmt.Sprintf("Deleted %s", ev.id)
		}

	default:
		b.logger.Error("unknown board event", "type", fmt.Sprintf("%T", ev))
		return
	}

	b.emit()
}

func (b *Board) submit(ctx context.Context, ev SubmitEvent) {
	if !b.requireIdentity() {
		return
	}
	in, err := ev.Issue.Normalize()
	if err != nil {
		b.frame.Err = err.Error()
		return
	}
	b.frame.Similar = issue.FindSimilar(in.Title, b.state.Current().Issues)
	b.frame.TitleInput = ""
	b.dispatch(ctx, writeCreate, "", func(ctx context.Context) (issue.Issue, error) {
		return b.writer.Create(ctx, in)
	})
}

func (b *Board) changeStatus(ctx context.Context, ev StatusChangeEvent) {
	if !b.requireIdentity() {
		return
	}
	item, ok := b.state.Current().Find(ev.ID)
	if !ok {
		b.frame.Err = fmt.Sprintf("%v: %s", issue.ErrIssueNotFound, ev.ID)
		return
	}
	next, err := issue.ValidateTransition(item.Status, ev.Status)
	if err != nil {
		b.frame.Err = err.Error()
		return
	}
	if next == item.Status {
		b.frame.Err = ""
		return
	}
	patch := issue.Patch{Status: issue.StatusPtr(next)}
	b.dispatch(ctx, writeUpdate, ev.ID, func(ctx context.Context) (issue.Issue, error) {
		return b.writer.Update(ctx, ev.ID, patch)
	})
}

func (b *Board) requireIdentity() bool {
	if b.identity == "" || b.writer == nil {
		b.frame.Err = ErrNotSignedIn.Error()
		return false
	}
	return true
}

// dispatch runs write on its own goroutine and posts the outcome back to
// the loop.
func (b *Board) dispatch(ctx context.Context, kind writeKind, id string, write func(context.Context) (issue.Issue, error)) {
	b.frame.Pending++
	b.frame.Err = ""
	go func() {
		writeCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		result, err := write(writeCtx)
		select {
		case b.events <- writeResultEvent{kind: kind, id: id, issue: result, err: err}:
		case <-ctx.Done():
		}
	}()
}

func (b *Board) derive() {
	snapshot := b.state.Current()
	b.frame.Seq = snapshot.Seq
	b.frame.Loaded = b.state.Loaded()
	b.frame.Filter = b.filter
	b.frame.Visible = issue.Visible(snapshot.Issues, b.filter)
	b.frame.Total = len(snapshot.Issues)
}

func (b *Board) emit() {
	frame := b.frame
	frame.Visible = append([]issue.Issue(nil), b.frame.Visible...)
	frame.Similar = append([]issue.Issue(nil), b.frame.Similar...)
	b.render(frame)
}
