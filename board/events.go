package board

import "github.com/amonks/issues/issue"

// Event is something the board reacts to.
type Event interface {
	boardEvent()
}

// SnapshotEvent delivers a full snapshot from the store.
type SnapshotEvent struct {
	Snapshot issue.Snapshot
}

// FilterEvent changes the list selectors.
type FilterEvent struct {
	Filter issue.Filter
}

// TitleInputEvent reports the current contents of the new-issue title field.
type TitleInputEvent struct {
	Title string
}

// SubmitEvent asks to create an issue.
type SubmitEvent struct {
	Issue issue.NewIssue
}

// StatusChangeEvent asks to move an issue to a new status.
type StatusChangeEvent struct {
	ID     string
	Status issue.Status
}

// AssignEvent reassigns an issue. An empty AssignedTo unassigns.
type AssignEvent struct {
	ID         string
	AssignedTo string
}

// DeleteEvent removes an issue.
type DeleteEvent struct {
	ID string
}

type writeKind string

const (
	writeCreate writeKind = "create"
	writeUpdate writeKind = "update"
	writeDelete writeKind = "delete"
)

// writeResultEvent is posted by a write goroutine when its request finishes.
type writeResultEvent struct {
	kind  writeKind
	id    string
	issue issue.Issue
	err   error
}

func (SnapshotEvent) boardEvent()     {}
func (FilterEvent) boardEvent()       {}
func (TitleInputEvent) boardEvent()   {}
func (SubmitEvent) boardEvent()       {}
func (StatusChangeEvent) boardEvent() {}
func (AssignEvent) boardEvent()       {}
func (DeleteEvent) boardEvent()       {}
func (writeResultEvent) boardEvent()  {}
